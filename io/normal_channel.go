package io

import (
	"errors"
	"fmt"
	"time"

	"github.com/accessterm/cardid-go/apdu"
	"github.com/ethereum/go-ethereum/log"
)

var logger = log.New("package", "cardid/io")

var (
	// ErrTimeout is returned when the reader does not answer a command within the channel timeout.
	ErrTimeout = errors.New("reader did not answer in time")
	// ErrCardRemoved is returned by transmitters when the card left the field.
	ErrCardRemoved = errors.New("card removed")
)

// DefaultTimeout bounds a single command/response round trip.
const DefaultTimeout = 3 * time.Second

// Transmitter sends raw apdus, *scard.Card implements it.
type Transmitter interface {
	Transmit([]byte) ([]byte, error)
}

// NormalChannel sends plain apdu commands through a Transmitter.
type NormalChannel struct {
	t       Transmitter
	timeout time.Duration
}

// NewNormalChannel returns a channel using DefaultTimeout.
func NewNormalChannel(t Transmitter) *NormalChannel {
	return NewNormalChannelWithTimeout(t, DefaultTimeout)
}

// NewNormalChannelWithTimeout returns a channel bounding each round trip by
// timeout. A zero timeout waits forever.
func NewNormalChannelWithTimeout(t Transmitter, timeout time.Duration) *NormalChannel {
	return &NormalChannel{
		t:       t,
		timeout: timeout,
	}
}

// Send serializes cmd, transmits it and parses the answer.
func (c *NormalChannel) Send(cmd *apdu.Command) (*apdu.Response, error) {
	rawCmd, err := cmd.Serialize()
	if err != nil {
		return nil, err
	}

	logger.Debug("apdu command", "hex", fmt.Sprintf("%X", rawCmd))
	rawResp, err := c.transmit(rawCmd)
	if err != nil {
		return nil, err
	}

	logger.Debug("apdu response", "hex", fmt.Sprintf("%X", rawResp), "sw", fmt.Sprintf("%04X", apdu.Sw(rawResp)))

	return apdu.ParseResponse(rawResp)
}

func (c *NormalChannel) transmit(raw []byte) ([]byte, error) {
	if c.timeout <= 0 {
		return c.t.Transmit(raw)
	}

	type result struct {
		resp []byte
		err  error
	}

	done := make(chan result, 1)
	go func() {
		resp, err := c.t.Transmit(raw)
		done <- result{resp, err}
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-timer.C:
		logger.Warn("apdu round trip timed out", "timeout", c.timeout)
		return nil, ErrTimeout
	}
}
