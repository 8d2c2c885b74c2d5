package mlwire

import (
	"bufio"
	"encoding/binary"
	"io"
)

// MaxFrameBytes bounds a single frame body to guard against a corrupt or
// hostile length prefix causing an unbounded allocation.
const MaxFrameBytes = 64 << 20 // 64 MiB

// Conn frames messages over an underlying io.ReadWriter: a 4-byte
// big-endian length prefix around the message body. One Conn serves one
// worker connection; the coordinator runs one reader goroutine per Conn
// (spec.md §5's "one task per active worker connection").
type Conn struct {
	r *bufio.Reader
	w io.Writer
}

// NewConn wraps rw as a framed message channel.
func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{r: bufio.NewReader(r), w: w}
}

// WriteMessage encodes and writes one framed message.
func (c *Conn) WriteMessage(m Message) error {
	body, err := m.Encode()
	if err != nil {
		return err
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := c.w.Write(lenPrefix[:]); err != nil {
		return ErrChannelClosed.Wrapf("write length prefix: %v", err)
	}
	if _, err := c.w.Write(body); err != nil {
		return ErrChannelClosed.Wrapf("write body: %v", err)
	}
	return nil
}

// ReadMessage blocks for the next framed message and decodes it.
func (c *Conn) ReadMessage() (Message, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(c.r, lenPrefix[:]); err != nil {
		if err == io.EOF {
			return Message{}, ErrChannelClosed.Wrap("connection closed")
		}
		return Message{}, ErrChannelClosed.Wrapf("read length prefix: %v", err)
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > MaxFrameBytes {
		return Message{}, ErrFrameTooLarge.Wrapf("frame of %d bytes exceeds %d", n, MaxFrameBytes)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(c.r, body); err != nil {
		return Message{}, ErrChannelClosed.Wrapf("read body: %v", err)
	}
	return Decode(body)
}
