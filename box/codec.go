package box

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Encoder writes boxes to a stream.
type Encoder interface {
	// Encode writes an encoding of v, which must be a *Box for AMP.
	Encode(v interface{}) error
}

// Decoder reads boxes from a stream.
type Decoder interface {
	// Decode reads the next box into the value pointed to by v.
	Decode(v interface{}) error
}

// Codec returns an Encoder or Decoder given a Writer or Reader.
type Codec interface {
	Encoder(w io.Writer) Encoder
	Decoder(r io.Reader) Decoder
}

// Codec names accepted by CodecFor.
const (
	CodecAMP  = "amp"
	CodecJSON = "json"
	CodecCBOR = "cbor"
)

// CodecFor returns the box stream codec registered under name. An empty
// name selects the AMP wire format.
func CodecFor(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", CodecAMP:
		return AMPCodec{}, nil
	case CodecJSON:
		return JSONCodec{}, nil
	case CodecCBOR:
		return CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("box: unknown codec %q", name)
	}
}

// AMPCodec is the native box codec. Its encoders and decoders only accept
// *Box values.
type AMPCodec struct{}

func (AMPCodec) Encoder(w io.Writer) Encoder {
	return NewEncoder(w)
}

func (AMPCodec) Decoder(r io.Reader) Decoder {
	return NewDecoder(r)
}

// JSONCodec writes every box as a JSON document behind a four byte length
// prefix, so boxes can be read back one at a time from a shared stream.
type JSONCodec struct{}

func (JSONCodec) Encoder(w io.Writer) Encoder {
	return &frameEncoder{w: w, marshal: json.Marshal}
}

func (JSONCodec) Decoder(r io.Reader) Decoder {
	return &frameDecoder{r: r, unmarshal: json.Unmarshal}
}

// CBORCodec writes boxes as CBOR. CBOR values are self-delimiting, so no
// framing is needed.
type CBORCodec struct{}

func (CBORCodec) Encoder(w io.Writer) Encoder {
	return cbor.NewEncoder(w)
}

func (CBORCodec) Decoder(r io.Reader) Decoder {
	return cbor.NewDecoder(r)
}
