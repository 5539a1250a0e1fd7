package spi

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenSpiCore/internal/bits"
	"github.com/KevinKickass/OpenSpiCore/internal/operation"
)

// Client runs one goroutine per channel. All channels share the transport
// and take turns on it.
type Client struct {
	transport Transport
	channels  []Channel
	logger    *zap.Logger

	busMu sync.Mutex

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewClient(transport Transport, channels []Channel, logger *zap.Logger) (*Client, error) {
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}
	for _, ch := range channels {
		if ch.Interval <= 0 {
			return nil, fmt.Errorf("channel %s: %w", ch.Name, ErrInvalidInterval)
		}
		if ch.Source == nil {
			return nil, fmt.Errorf("channel %s: no source", ch.Name)
		}
	}

	return &Client{
		transport: transport,
		channels:  channels,
		logger:    logger,
	}, nil
}

// Start sendet die Pre-Transfer-Initialisierung und startet alle Kanäle
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrRunning
	}

	for _, ch := range c.channels {
		for _, word := range ch.PreTransfer {
			tx, err := word.Bytes()
			if err == nil {
				_, err = c.transfer(ch.ChipSelect, tx)
			}
			if err != nil {
				return fmt.Errorf("channel %s: pre-transfer initialization: %w", ch.Name, err)
			}
		}
	}

	c.stopChan = make(chan struct{})
	c.running = true
	for i := range c.channels {
		c.wg.Add(1)
		go c.runChannel(&c.channels[i], c.stopChan)

		c.logger.Info("Channel started",
			zap.String("channel", c.channels[i].Name),
			zap.Uint8("chip_select", c.channels[i].ChipSelect),
			zap.Duration("interval", c.channels[i].Interval))
	}

	return nil
}

// Stop hält alle Kanäle an und wartet auf den laufenden Transfer
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	close(c.stopChan)
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.logger.Info("Client stopped", zap.Int("channels", len(c.channels)))
}

func (c *Client) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Client) Channels() []Channel {
	return c.channels
}

// transfer serialises access to the transport.
func (c *Client) transfer(cs uint8, tx []byte) (bits.BitString, error) {
	c.busMu.Lock()
	rx, err := c.transport.Transfer(cs, tx)
	c.busMu.Unlock()

	if err != nil {
		return bits.BitString{}, err
	}
	if len(rx) != len(tx) {
		return bits.BitString{}, fmt.Errorf("%w: got %d bytes, want %d", ErrResponseLength, len(rx), len(tx))
	}
	return bits.FromBytes(rx), nil
}

func (c *Client) runChannel(ch *Channel, stop <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(ch.Interval)
	defer ticker.Stop()

	var inflight *operation.SingleRequest
	defer func() {
		if inflight != nil {
			operation.Fail(*inflight, ErrStopped)
		}
	}()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			inflight = c.tick(ch, inflight)
		}
	}
}

// tick transmits the next request of ch and hands the bits clocked in to
// the request sent on the previous tick. The returned request is the new
// one in flight.
func (c *Client) tick(ch *Channel, prev *operation.SingleRequest) *operation.SingleRequest {
	req := ch.Source.Next()

	tx, err := req.Op.Command().Bytes()
	if err != nil {
		// nothing was clocked, prev stays in flight
		operation.Fail(req, err)
		return prev
	}

	rsp, err := c.transfer(ch.ChipSelect, tx)
	if err != nil {
		c.logger.Error("Transfer failed",
			zap.String("channel", ch.Name),
			zap.String("operation", req.Op.Name()),
			zap.Error(err))

		if prev != nil {
			operation.Fail(*prev, err)
		}
		operation.Fail(req, err)
		return nil
	}

	if prev == nil {
		c.logger.Debug("Discarding response without request in flight",
			zap.String("channel", ch.Name))
	} else {
		operation.Deliver(*prev, rsp)
	}
	return &req
}
