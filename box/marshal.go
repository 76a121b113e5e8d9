package box

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
)

type jsonPair struct {
	K string `json:"k"`
	V []byte `json:"v"`
}

type cborPair struct {
	_ struct{} `cbor:",toarray"`
	K string
	V []byte
}

// MarshalJSON encodes the box as an ordered array of {"k","v"} objects.
func (b *Box) MarshalJSON() ([]byte, error) {
	out := make([]jsonPair, len(b.pairs))
	for i, p := range b.pairs {
		out[i] = jsonPair{K: p.key, V: p.value}
	}
	return json.Marshal(out)
}

func (b *Box) UnmarshalJSON(data []byte) error {
	var in []jsonPair
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	b.pairs = b.pairs[:0]
	for _, p := range in {
		b.Set(p.K, p.V)
	}
	return b.Validate()
}

// MarshalCBOR encodes the box as an ordered array of [key, value] arrays.
func (b *Box) MarshalCBOR() ([]byte, error) {
	out := make([]cborPair, len(b.pairs))
	for i, p := range b.pairs {
		out[i] = cborPair{K: p.key, V: p.value}
	}
	return cbor.Marshal(out)
}

func (b *Box) UnmarshalCBOR(data []byte) error {
	var in []cborPair
	if err := cbor.Unmarshal(data, &in); err != nil {
		return err
	}
	b.pairs = b.pairs[:0]
	for _, p := range in {
		b.Set(p.K, p.V)
	}
	return b.Validate()
}
