package ipc

import (
	"fmt"
	"io"
	"sync"
)

// Client forwards transfers to a bus server over a datagram stream. It
// satisfies spi.Transport.
type Client struct {
	codec  *LineCodec
	closer io.Closer

	mu     sync.Mutex
	closed bool
}

// NewClient speaks to a server reading from r and writing to w. closer may
// be nil.
func NewClient(r io.Reader, w io.Writer, closer io.Closer) *Client {
	return &Client{
		codec:  NewLineCodec(r, w),
		closer: closer,
	}
}

// Init is a no-op; the server initialises its own master.
func (c *Client) Init() error {
	return nil
}

// Transfer sendet ein Kommando und wartet auf die Antwort
func (c *Client) Transfer(cs uint8, tx []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("bus client closed")
	}

	if err := c.codec.WriteDatagram(PackCommand(cs, tx)); err != nil {
		return nil, err
	}

	rx, err := c.codec.ReadDatagram()
	if err != nil {
		return nil, err
	}
	if len(rx) == 0 && len(tx) > 0 {
		return nil, ErrRemote
	}
	if len(rx) != len(tx) {
		return nil, fmt.Errorf("response length mismatch: expected %d, got %d", len(tx), len(rx))
	}
	return rx, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
