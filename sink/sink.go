package sink

import (
	"context"
	"errors"

	"github.com/accessterm/cardid-go/types"
	"github.com/ethereum/go-ethereum/log"
)

var logger = log.New("package", "cardid/sink")

// Sink receives every classified card session.
type Sink interface {
	Record(ctx context.Context, s *types.CardSession) error
}

// Multi forwards a session to each sink, in order, and joins their errors.
type Multi []Sink

func (m Multi) Record(ctx context.Context, s *types.CardSession) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Record(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// LogSink writes one structured log line per session. The PAN only appears masked.
type LogSink struct{}

func (LogSink) Record(_ context.Context, s *types.CardSession) error {
	ctx := []interface{}{
		"session", s.ID,
		"reader", s.Reader,
		"state", s.State,
		"exchanges", len(s.Exchanges),
		"duration", s.FinishedAt.Sub(s.StartedAt),
	}

	if s.Name != "" {
		ctx = append(ctx, "name", s.Name)
	}

	if c := s.Classification; c != nil {
		ctx = append(ctx, "kind", c.Kind, "label", c.Label, "identifier", c.Identifier)
		if c.Brand != "" {
			ctx = append(ctx, "brand", c.Brand)
		}
	}

	if f := s.Fields; f != nil {
		ctx = append(ctx, "pan", f.MaskedPAN, "luhn", f.LuhnValid, "expiry", f.Expiry)
	}

	if !s.Classified() {
		logger.Warn("card session aborted", append(ctx, "reason", s.AbortReason)...)
		return nil
	}

	logger.Info("card session", ctx...)
	return nil
}
