package box

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
)

var (
	// Debug can be set to get boxes as they're encoded and decoded
	Debug io.Writer

	ErrEmptyKey      = errors.New("box: empty key")
	ErrKeyTooLong    = errors.New("box: key too long")
	ErrValueTooLong  = errors.New("box: value too long")
	ErrNotBox        = errors.New("box: value is not a *Box")
	ErrTruncatedWire = errors.New("box: truncated box")
)

// Encoder writes boxes in the AMP wire format: each pair is a two byte
// big endian key length, the key, a two byte value length and the value.
// A zero key length terminates the box.
type Encoder struct {
	w io.Writer
	sync.Mutex
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes b as a single write call.
func (enc *Encoder) Encode(v interface{}) error {
	b, ok := v.(*Box)
	if !ok {
		return ErrNotBox
	}
	buf, err := Marshal(b)
	if err != nil {
		return err
	}

	enc.Lock()
	defer enc.Unlock()

	if Debug != nil {
		fmt.Fprintln(Debug, "<<ENC", b)
	}

	_, err = enc.w.Write(buf)
	return err
}

// Marshal returns the wire encoding of b.
func Marshal(b *Box) ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	size := 2
	for _, p := range b.pairs {
		size += 4 + len(p.key) + len(p.value)
	}
	buf := make([]byte, 0, size)
	for _, p := range b.pairs {
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(p.key)))
		buf = append(buf, p.key...)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(p.value)))
		buf = append(buf, p.value...)
	}
	return binary.BigEndian.AppendUint16(buf, 0), nil
}

// Decoder reads boxes in the AMP wire format.
type Decoder struct {
	r io.Reader
	sync.Mutex
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode reads the next box into v, which must be a *Box.
func (dec *Decoder) Decode(v interface{}) error {
	b, ok := v.(*Box)
	if !ok {
		return ErrNotBox
	}
	next, err := dec.DecodeBox()
	if err != nil {
		return err
	}
	*b = *next
	return nil
}

// DecodeBox reads the next box. A clean end of stream before the first
// byte of a box is reported as io.EOF.
func (dec *Decoder) DecodeBox() (*Box, error) {
	dec.Lock()
	defer dec.Unlock()

	b := New()
	var length [2]byte
	first := true
	for {
		if _, err := io.ReadFull(dec.r, length[:]); err != nil {
			return nil, readError(err, first)
		}
		first = false
		n := binary.BigEndian.Uint16(length[:])
		if n == 0 {
			break
		}
		if n > MaxKeyLength {
			return nil, fmt.Errorf("%w: %d bytes", ErrKeyTooLong, n)
		}
		key := make([]byte, n)
		if _, err := io.ReadFull(dec.r, key); err != nil {
			return nil, readError(err, false)
		}
		if _, err := io.ReadFull(dec.r, length[:]); err != nil {
			return nil, readError(err, false)
		}
		value := make([]byte, binary.BigEndian.Uint16(length[:]))
		if _, err := io.ReadFull(dec.r, value); err != nil {
			return nil, readError(err, false)
		}
		b.Set(string(key), value)
	}

	if Debug != nil {
		fmt.Fprintln(Debug, ">>DEC", b)
	}

	return b, nil
}

func readError(err error, atBoundary bool) error {
	var syscallErr *os.SyscallError
	if errors.As(err, &syscallErr) && syscallErr.Err == syscall.ECONNRESET {
		return io.EOF
	}
	if atBoundary {
		return err
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncatedWire
	}
	return err
}
