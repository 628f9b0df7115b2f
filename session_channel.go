package cardid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/accessterm/cardid-go/apdu"
	"github.com/accessterm/cardid-go/metrics"
	"github.com/accessterm/cardid-go/types"
)

// sessionChannel records every exchange on the session and stops sending
// as soon as the session context is done.
type sessionChannel struct {
	ctx     context.Context
	c       types.Channel
	session *types.CardSession
	metrics *metrics.Metrics
	now     func() time.Time
}

func newSessionChannel(ctx context.Context, c types.Channel, s *types.CardSession, m *metrics.Metrics, now func() time.Time) *sessionChannel {
	return &sessionChannel{
		ctx:     ctx,
		c:       c,
		session: s,
		metrics: m,
		now:     now,
	}
}

func (sc *sessionChannel) Send(cmd *apdu.Command) (*apdu.Response, error) {
	if err := sc.ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCancelled, err)
	}

	exchange := types.Exchange{Description: describe(cmd)}

	raw, err := cmd.Serialize()
	if err != nil {
		// the command never reached the reader
		exchange.Error = err.Error()
		sc.session.Exchanges = append(sc.session.Exchanges, exchange)
		return nil, fmt.Errorf("%s: %w", exchange.Description, err)
	}
	exchange.Command = raw

	start := sc.now()
	resp, err := sc.c.Send(cmd)
	exchange.Elapsed = sc.now().Sub(start)

	if err != nil {
		exchange.Error = err.Error()
		sc.session.Exchanges = append(sc.session.Exchanges, exchange)
		sc.metrics.ObserveExchange(cmd.Ins(), 0, exchange.Elapsed)
		// a garbled answer is the card's fault, not the reader's
		if errors.Is(err, apdu.ErrBadRawResponse) {
			return nil, err
		}
		return nil, &HardwareError{Op: exchange.Description, Err: err}
	}

	exchange.Response = resp.Data
	exchange.Sw = resp.Sw
	sc.session.Exchanges = append(sc.session.Exchanges, exchange)
	sc.metrics.ObserveExchange(cmd.Ins(), resp.Sw, exchange.Elapsed)

	return resp, nil
}

func describe(cmd *apdu.Command) string {
	switch {
	case cmd.Cla() == ClaPCSC && cmd.Ins() == InsGetData:
		return "get uid"
	case cmd.Cla() == ClaPCSC && cmd.Ins() == InsReadBinary:
		return fmt.Sprintf("read binary block %d", cmd.P2())
	case cmd.Cla() == ClaPCSC && cmd.Ins() == InsDirectTransmit:
		return "direct transmit"
	case cmd.Ins() == InsSelect:
		return fmt.Sprintf("select %X", cmd.Data())
	case cmd.Ins() == InsGetProcessingOptions:
		return "get processing options"
	case cmd.Ins() == InsReadRecord:
		return fmt.Sprintf("read record sfi %d record %d", cmd.P2()>>3, cmd.P1())
	case cmd.Ins() == InsGetData:
		return fmt.Sprintf("get data %02X%02X", cmd.P1(), cmd.P2())
	case cmd.Ins() == InsGetResponse:
		return "get response"
	default:
		return fmt.Sprintf("%02X %02X", cmd.Cla(), cmd.Ins())
	}
}
