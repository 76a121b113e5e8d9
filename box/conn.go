package box

import (
	"io"
	"sync"
	"time"
)

// Conn is a stream of boxes over a transport. WriteBox is safe for
// concurrent use; ReadBox is meant to be called from one goroutine.
type Conn struct {
	rwc io.ReadWriteCloser

	writeMu sync.Mutex
	enc     Encoder
	dec     Decoder

	closeOnce sync.Once
	closeErr  error
}

// NewConn returns a Conn using c to encode boxes onto rwc. A nil codec
// selects AMPCodec.
func NewConn(rwc io.ReadWriteCloser, c Codec) *Conn {
	if c == nil {
		c = AMPCodec{}
	}
	return &Conn{
		rwc: rwc,
		enc: c.Encoder(rwc),
		dec: c.Decoder(rwc),
	}
}

// ReadBox blocks for the next box.
func (c *Conn) ReadBox() (*Box, error) {
	b := New()
	if err := c.dec.Decode(b); err != nil {
		return nil, err
	}
	return b, nil
}

// WriteBox writes b. It blocks until the transport accepts the data.
func (c *Conn) WriteBox(b *Box) error {
	if err := b.Validate(); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.enc.Encode(b)
}

// SetReadDeadline sets a read deadline if the transport supports one.
func (c *Conn) SetReadDeadline(t time.Time) error {
	if d, ok := c.rwc.(interface{ SetReadDeadline(time.Time) error }); ok {
		return d.SetReadDeadline(t)
	}
	return nil
}

// Close closes the underlying transport. Repeated calls return the
// result of the first.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.rwc.Close()
	})
	return c.closeErr
}
