// Package ipc carries bus transfers between processes. A command is the chip
// select byte followed by the transmit payload; the response is the raw
// receive payload of the same length.
package ipc

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	ErrEmptyCommand = errors.New("empty bus command")
	ErrRemote       = errors.New("bus server reported a transfer failure")
)

// PackCommand erstellt [cs][payload]
func PackCommand(cs uint8, payload []byte) []byte {
	cmd := make([]byte, 1+len(payload))
	cmd[0] = cs
	copy(cmd[1:], payload)
	return cmd
}

func UnpackCommand(cmd []byte) (uint8, []byte, error) {
	if len(cmd) == 0 {
		return 0, nil, ErrEmptyCommand
	}
	return cmd[0], cmd[1:], nil
}

// LineCodec frames datagrams as base64 lines. Reads and writes are not
// synchronised; callers pair them.
type LineCodec struct {
	r *bufio.Reader
	w io.Writer
}

func NewLineCodec(r io.Reader, w io.Writer) *LineCodec {
	return &LineCodec{r: bufio.NewReader(r), w: w}
}

func (c *LineCodec) WriteDatagram(data []byte) error {
	line := make([]byte, base64.StdEncoding.EncodedLen(len(data))+1)
	base64.StdEncoding.Encode(line, data)
	line[len(line)-1] = '\n'

	if _, err := c.w.Write(line); err != nil {
		return fmt.Errorf("write datagram: %w", err)
	}
	return nil
}

// ReadDatagram returns io.EOF unwrapped when the peer closed the stream
// between datagrams.
func (c *LineCodec) ReadDatagram() ([]byte, error) {
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) == 0 {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read datagram: %w", err)
	}

	line = bytes.TrimRight(line, "\r\n")
	data := make([]byte, base64.StdEncoding.DecodedLen(len(line)))
	n, err := base64.StdEncoding.Decode(data, line)
	if err != nil {
		return nil, fmt.Errorf("decode datagram %q: %w", line, err)
	}
	return data[:n], nil
}
