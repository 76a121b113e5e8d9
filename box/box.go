// Package box implements the ordered key/value message unit that is routed
// over a boxmux connection, along with its AMP wire encoding.
package box

import (
	"bytes"
	"fmt"
	"strings"
)

// Reserved keys used by the routing and command layers.
const (
	RouteKey            = "_route"
	CommandKey          = "_command"
	AskKey              = "_ask"
	AnswerKey           = "_answer"
	ErrorKey            = "_error"
	ErrorCodeKey        = "_error_code"
	ErrorDescriptionKey = "_error_description"
)

const (
	// MaxKeyLength is the longest key the wire format can carry.
	MaxKeyLength = 0xff

	// MaxValueLength is the longest value the wire format can carry.
	MaxValueLength = 0xffff
)

type pair struct {
	key   string
	value []byte
}

// Box is an ordered mapping of string keys to byte string values.
// The zero value is an empty box ready to use.
type Box struct {
	pairs []pair
}

// New returns an empty box.
func New() *Box {
	return &Box{}
}

// FromStrings builds a box from alternating keys and values. It panics
// if given an odd number of arguments.
func FromStrings(kv ...string) *Box {
	if len(kv)%2 != 0 {
		panic("box: FromStrings needs key/value pairs")
	}
	b := &Box{pairs: make([]pair, 0, len(kv)/2)}
	for i := 0; i < len(kv); i += 2 {
		b.SetString(kv[i], kv[i+1])
	}
	return b
}

// Set assigns value to key. An existing key keeps its position.
func (b *Box) Set(key string, value []byte) *Box {
	for i := range b.pairs {
		if b.pairs[i].key == key {
			b.pairs[i].value = value
			return b
		}
	}
	b.pairs = append(b.pairs, pair{key: key, value: value})
	return b
}

// SetString is Set for string values.
func (b *Box) SetString(key, value string) *Box {
	return b.Set(key, []byte(value))
}

// Get returns the value for key and whether it was present.
func (b *Box) Get(key string) ([]byte, bool) {
	if b == nil {
		return nil, false
	}
	for _, p := range b.pairs {
		if p.key == key {
			return p.value, true
		}
	}
	return nil, false
}

// GetString returns the value for key as a string, or "" if absent.
func (b *Box) GetString(key string) string {
	v, _ := b.Get(key)
	return string(v)
}

// Has reports whether key is present.
func (b *Box) Has(key string) bool {
	_, ok := b.Get(key)
	return ok
}

// Delete removes key, returning its value if it was present.
func (b *Box) Delete(key string) ([]byte, bool) {
	for i, p := range b.pairs {
		if p.key == key {
			b.pairs = append(b.pairs[:i], b.pairs[i+1:]...)
			return p.value, true
		}
	}
	return nil, false
}

// Len returns the number of keys.
func (b *Box) Len() int {
	if b == nil {
		return 0
	}
	return len(b.pairs)
}

// Keys returns the keys in order.
func (b *Box) Keys() []string {
	keys := make([]string, 0, b.Len())
	for _, p := range b.pairs {
		keys = append(keys, p.key)
	}
	return keys
}

// Each calls fn for every pair in order.
func (b *Box) Each(fn func(key string, value []byte)) {
	for _, p := range b.pairs {
		fn(p.key, p.value)
	}
}

// Clone returns a deep copy of the box.
func (b *Box) Clone() *Box {
	c := &Box{pairs: make([]pair, len(b.pairs))}
	for i, p := range b.pairs {
		c.pairs[i] = pair{key: p.key, value: append([]byte(nil), p.value...)}
	}
	return c
}

// Equal reports whether both boxes hold the same pairs in the same order.
func (b *Box) Equal(o *Box) bool {
	if b.Len() != o.Len() {
		return false
	}
	for i := range b.pairs {
		if b.pairs[i].key != o.pairs[i].key || !bytes.Equal(b.pairs[i].value, o.pairs[i].value) {
			return false
		}
	}
	return true
}

// Strings returns the box contents as a map of strings. Order is lost.
func (b *Box) Strings() map[string]string {
	m := make(map[string]string, b.Len())
	for _, p := range b.pairs {
		m[p.key] = string(p.value)
	}
	return m
}

// Validate checks the box against the limits of the wire format.
func (b *Box) Validate() error {
	for _, p := range b.pairs {
		if len(p.key) == 0 {
			return ErrEmptyKey
		}
		if len(p.key) > MaxKeyLength {
			return fmt.Errorf("%w: %d bytes", ErrKeyTooLong, len(p.key))
		}
		if len(p.value) > MaxValueLength {
			return fmt.Errorf("%w: key %q has %d bytes", ErrValueTooLong, p.key, len(p.value))
		}
	}
	return nil
}

func (b *Box) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, p := range b.pairs {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%s:%q", p.key, p.value)
	}
	sb.WriteString("}")
	return sb.String()
}
