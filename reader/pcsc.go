package reader

import (
	"errors"
	"fmt"
	"time"

	cardio "github.com/accessterm/cardid-go/io"
	"github.com/ebfe/scard"
)

// Card is a connected card.
type Card interface {
	cardio.Transmitter
	ATR() ([]byte, error)
	// Release disconnects, resetting the card when reset is set.
	Release(reset bool) error
}

// Context is the part of the PC/SC resource manager used by the Monitor.
type Context interface {
	ListReaders() ([]string, error)
	// WaitChange blocks until the state of reader differs from current or
	// timeout elapses, and returns the new state.
	WaitChange(reader string, current scard.StateFlag, timeout time.Duration) (scard.StateFlag, error)
	Connect(reader string) (Card, error)
	Release() error
}

type pcscContext struct {
	ctx *scard.Context
}

// EstablishContext opens the PC/SC resource manager.
func EstablishContext() (Context, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish pcsc context: %w", err)
	}

	return &pcscContext{ctx: ctx}, nil
}

func (c *pcscContext) ListReaders() ([]string, error) {
	return c.ctx.ListReaders()
}

func (c *pcscContext) WaitChange(reader string, current scard.StateFlag, timeout time.Duration) (scard.StateFlag, error) {
	states := []scard.ReaderState{
		{
			Reader:       reader,
			CurrentState: current,
		},
	}

	if err := c.ctx.GetStatusChange(states, timeout); err != nil {
		if errors.Is(err, scard.ErrTimeout) {
			return current, nil
		}
		return current, err
	}

	return states[0].EventState &^ scard.StateChanged, nil
}

func (c *pcscContext) Connect(reader string) (Card, error) {
	card, err := c.ctx.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		return nil, mapError(err)
	}

	return &pcscCard{card: card}, nil
}

func (c *pcscContext) Release() error {
	return c.ctx.Release()
}

type pcscCard struct {
	card *scard.Card
}

func (c *pcscCard) Transmit(cmd []byte) ([]byte, error) {
	resp, err := c.card.Transmit(cmd)
	if err != nil {
		return nil, mapError(err)
	}

	return resp, nil
}

func (c *pcscCard) ATR() ([]byte, error) {
	status, err := c.card.Status()
	if err != nil {
		return nil, mapError(err)
	}

	switch status.ActiveProtocol {
	case scard.ProtocolT0:
		logger.Debug("card protocol", "T", "0")
	case scard.ProtocolT1:
		logger.Debug("card protocol", "T", "1")
	default:
		logger.Debug("card protocol", "T", "unknown")
	}

	return status.Atr, nil
}

func (c *pcscCard) Release(reset bool) error {
	disposition := scard.LeaveCard
	if reset {
		disposition = scard.ResetCard
	}

	return c.card.Disconnect(disposition)
}

// mapError turns the PC/SC codes meaning the card left the field into
// io.ErrCardRemoved.
func mapError(err error) error {
	switch {
	case errors.Is(err, scard.ErrRemovedCard),
		errors.Is(err, scard.ErrResetCard),
		errors.Is(err, scard.ErrNoSmartcard),
		errors.Is(err, scard.ErrUnpoweredCard):
		return fmt.Errorf("%w: %v", cardio.ErrCardRemoved, err)
	case errors.Is(err, scard.ErrUnresponsiveCard):
		return fmt.Errorf("%w: %v", cardio.ErrTimeout, err)
	default:
		return err
	}
}
