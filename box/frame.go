package box

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds the length prefix a frame decoder will accept.
const MaxFrameSize = 1 << 24

type frameEncoder struct {
	w       io.Writer
	marshal func(v interface{}) ([]byte, error)
}

func (e *frameEncoder) Encode(v interface{}) error {
	b, err := e.marshal(v)
	if err != nil {
		return err
	}
	buf := make([]byte, 4, 4+len(b))
	binary.BigEndian.PutUint32(buf, uint32(len(b)))
	_, err = e.w.Write(append(buf, b...))
	return err
}

type frameDecoder struct {
	r         io.Reader
	unmarshal func(data []byte, v interface{}) error
}

func (d *frameDecoder) Decode(v interface{}) error {
	var prefix [4]byte
	if _, err := io.ReadFull(d.r, prefix[:]); err != nil {
		return err
	}
	size := binary.BigEndian.Uint32(prefix[:])
	if size > MaxFrameSize {
		return fmt.Errorf("box: frame of %d bytes exceeds limit", size)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return d.unmarshal(buf, v)
}
