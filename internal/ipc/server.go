package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenSpiCore/internal/spi"
)

// Server owns the bus master and executes the commands of one client.
type Server struct {
	master spi.Transport
	codec  *LineCodec
	logger *zap.Logger
}

func NewServer(master spi.Transport, r io.Reader, w io.Writer, logger *zap.Logger) *Server {
	return &Server{
		master: master,
		codec:  NewLineCodec(r, w),
		logger: logger,
	}
}

type datagram struct {
	data []byte
	err  error
}

// Serve initialises the master and answers commands until the client closes
// the stream (nil) or ctx is cancelled (ctx.Err()). A failed transfer is
// answered with an empty datagram.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.master.Init(); err != nil {
		return fmt.Errorf("init bus master: %w", err)
	}
	defer s.master.Close()

	s.logger.Info("Bus server running")

	incoming := make(chan datagram)
	go func() {
		for {
			data, err := s.codec.ReadDatagram()
			select {
			case incoming <- datagram{data: data, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Bus server stopped", zap.Error(ctx.Err()))
			return ctx.Err()

		case d := <-incoming:
			if errors.Is(d.err, io.EOF) {
				s.logger.Info("Bus client disconnected")
				return nil
			}
			if d.err != nil {
				return d.err
			}
			if err := s.codec.WriteDatagram(s.execute(d.data)); err != nil {
				return err
			}
		}
	}
}

func (s *Server) execute(cmd []byte) []byte {
	cs, tx, err := UnpackCommand(cmd)
	if err != nil {
		s.logger.Warn("Invalid bus command", zap.Error(err))
		return nil
	}

	rx, err := s.master.Transfer(cs, tx)
	if err != nil {
		s.logger.Error("Bus transfer failed",
			zap.Uint8("chip_select", cs),
			zap.Int("bytes", len(tx)),
			zap.Error(err))
		return nil
	}

	s.logger.Debug("Bus transfer",
		zap.Uint8("chip_select", cs),
		zap.Binary("tx", tx),
		zap.Binary("rx", rx))
	return rx
}
