package reader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/accessterm/cardid-go"
	cardio "github.com/accessterm/cardid-go/io"
	"github.com/accessterm/cardid-go/sink"
	"github.com/accessterm/cardid-go/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/ebfe/scard"
	"github.com/ethereum/go-ethereum/log"
)

var logger = log.New("package", "cardid/reader")

var ErrNoReader = errors.New("no reader found")

// pollInterval bounds each status change wait so cancellation is noticed.
const pollInterval = 500 * time.Millisecond

const (
	// DefaultCooldown is how long a repeat scan of the same card is ignored.
	DefaultCooldown = 3 * time.Second

	minRetryInterval = 500 * time.Millisecond
	maxRetryInterval = 30 * time.Second
)

// Monitor runs identification sessions on one reader, one card at a time.
type Monitor struct {
	pcsc       Context
	reader     string
	identifier *cardid.Identifier
	sink       sink.Sink
	timeout    time.Duration

	// establish reopens the resource manager after pcscd went away
	establish func() (Context, error)
	cooldown  time.Duration
	retry     *backoff.ExponentialBackOff
	now       func() time.Time

	// held while a session owns the card
	mu sync.Mutex
}

// NewMonitor uses reader, or the first reader of the context when empty.
func NewMonitor(pcsc Context, reader string, identifier *cardid.Identifier, s sink.Sink, timeout time.Duration) (*Monitor, error) {
	if reader == "" {
		readers, err := pcsc.ListReaders()
		if err != nil {
			return nil, fmt.Errorf("list readers: %w", err)
		}
		if len(readers) == 0 {
			return nil, ErrNoReader
		}
		if len(readers) > 1 {
			logger.Warn("several readers found, using the first one", "readers", readers)
		}
		reader = readers[0]
	}

	logger.Debug("using reader", "name", reader)

	return &Monitor{
		pcsc:       pcsc,
		reader:     reader,
		identifier: identifier,
		sink:       s,
		timeout:    timeout,
		cooldown:   DefaultCooldown,
		retry:      newRetry(minRetryInterval, maxRetryInterval),
		now:        time.Now,
	}, nil
}

func newRetry(initial, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.MaxElapsedTime = 0
	b.Reset()

	return b
}

// SetReconnect makes Run reopen the resource manager with establish when the
// current one stops answering.
func (m *Monitor) SetReconnect(establish func() (Context, error)) {
	m.establish = establish
}

// SetCooldown sets how long Run ignores the same card presented again.
func (m *Monitor) SetCooldown(d time.Duration) {
	m.cooldown = d
}

func (m *Monitor) Reader() string {
	return m.reader
}

// Close releases the resource manager context in use.
func (m *Monitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.pcsc.Release()
}

// WaitForCard blocks until a card is present and powered.
func (m *Monitor) WaitForCard(ctx context.Context) error {
	return m.waitFor(ctx, func(state scard.StateFlag) bool {
		return state&scard.StatePresent != 0 && state&scard.StateMute == 0
	})
}

// WaitForRemoval blocks until the reader field is empty.
func (m *Monitor) WaitForRemoval(ctx context.Context) error {
	return m.waitFor(ctx, func(state scard.StateFlag) bool {
		return state&scard.StateEmpty != 0
	})
}

func (m *Monitor) waitFor(ctx context.Context, done func(scard.StateFlag) bool) error {
	state := scard.StateUnaware
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		next, err := m.pcsc.WaitChange(m.reader, state, pollInterval)
		if err != nil {
			return fmt.Errorf("wait for reader %s: %w", m.reader, err)
		}

		if done(next) {
			return nil
		}
		state = next
	}
}

// Probe connects to the present card, identifies it and hands the session to
// the sink when it was classified. The card is reset after a hardware error
// so the next session starts clean.
func (m *Monitor) Probe(ctx context.Context, name string) (*types.CardSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	card, err := m.pcsc.Connect(m.reader)
	if err != nil {
		return nil, &cardid.HardwareError{Op: "connect", Err: err}
	}

	atr, err := card.ATR()
	if err != nil {
		m.release(card, true)
		return nil, &cardid.HardwareError{Op: "status", Err: err}
	}

	ch := cardio.NewNormalChannelWithTimeout(card, m.timeout)
	session, err := m.identifier.Identify(ctx, ch, m.reader, atr)
	session.Name = name

	var hw *cardid.HardwareError
	reset := errors.As(err, &hw) && !errors.Is(err, cardid.ErrCardRemoved)
	m.release(card, reset)

	if err != nil {
		// aborted sessions are logged, never recorded as classified
		_ = sink.LogSink{}.Record(ctx, session)
		return session, err
	}

	if m.sink != nil {
		if err := m.sink.Record(ctx, session); err != nil {
			logger.Error("error recording session", "session", session.ID, "error", err)
		}
	}

	return session, nil
}

func (m *Monitor) release(card Card, reset bool) {
	if err := card.Release(reset); err != nil && !errors.Is(mapError(err), cardio.ErrCardRemoved) {
		logger.Error("error disconnecting card", "error", err)
	}
}

// Run probes every card presented until ctx is done. handle, when set,
// sees each session and its error. Reader errors do not end the loop: Run
// backs off, reopens the resource manager when it was lost and waits for
// the reader again.
func (m *Monitor) Run(ctx context.Context, handle func(*types.CardSession, error)) error {
	var last recentCard
	for {
		err := m.serve(ctx, handle, &last)
		if err == nil {
			m.retry.Reset()
			continue
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, cardid.ErrSessionCancelled) {
			return nil
		}

		wait := m.retry.NextBackOff()
		logger.Warn("reader error, retrying", "reader", m.reader, "error", err, "in", wait)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		m.reconnect(err)
	}
}

// recentCard remembers the last classified card for the repeat scan cooldown.
type recentCard struct {
	identifier string
	at         time.Time
}

// serve handles one card: wait, probe, wait for removal.
func (m *Monitor) serve(ctx context.Context, handle func(*types.CardSession, error), last *recentCard) error {
	if err := m.WaitForCard(ctx); err != nil {
		return err
	}

	session, err := m.Probe(ctx, "")
	if err != nil {
		logger.Warn("card not identified", "error", err)
	}

	if m.repeated(session, last) {
		logger.Debug("repeat scan ignored", "identifier", session.Classification.Identifier)
	} else if handle != nil {
		handle(session, err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, cardid.ErrSessionCancelled) {
		return err
	}

	return m.WaitForRemoval(ctx)
}

func (m *Monitor) repeated(session *types.CardSession, last *recentCard) bool {
	if session == nil || !session.Classified() {
		return false
	}

	now := m.now()
	id := session.Classification.Identifier
	repeat := id != "" && id == last.identifier && now.Sub(last.at) < m.cooldown

	last.identifier = id
	last.at = now

	return repeat
}

// reconnect reopens the resource manager after errors meaning it is gone.
func (m *Monitor) reconnect(cause error) {
	if m.establish == nil || !contextLost(cause) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.pcsc.Release(); err != nil {
		logger.Debug("error releasing pcsc context", "error", err)
	}

	pcsc, err := m.establish()
	if err != nil {
		logger.Error("error reopening pcsc context", "error", err)
		return
	}

	logger.Info("pcsc context reopened", "reader", m.reader)
	m.pcsc = pcsc
}

func contextLost(err error) bool {
	for _, lost := range []error{
		scard.ErrInvalidHandle,
		scard.ErrNoService,
		scard.ErrServiceStopped,
		scard.ErrReaderUnavailable,
		scard.ErrUnknownReader,
		scard.ErrNoReadersAvailable,
	} {
		if errors.Is(err, lost) {
			return true
		}
	}

	return false
}
