package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/accessterm/cardid-go/types"
)

// FileSink keeps the sessions of a run and rewrites them as one JSON array
// after each Record.
type FileSink struct {
	path      string
	revealPAN bool

	mu       sync.Mutex
	sessions []*types.CardSession
}

// NewFileSink writes to path. Plaintext PANs are only exported with revealPAN.
func NewFileSink(path string, revealPAN bool) *FileSink {
	return &FileSink{
		path:      path,
		revealPAN: revealPAN,
		sessions:  make([]*types.CardSession, 0),
	}
}

func (f *FileSink) Record(_ context.Context, s *types.CardSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.revealPAN {
		s = s.Redacted()
	}

	f.sessions = append(f.sessions, s)
	return f.flush()
}

// Sessions returns the sessions recorded so far.
func (f *FileSink) Sessions() []*types.CardSession {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*types.CardSession, len(f.sessions))
	copy(out, f.sessions)
	return out
}

func (f *FileSink) flush() error {
	data, err := json.MarshalIndent(f.sessions, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".cardid-*.json")
	if err != nil {
		return fmt.Errorf("export %s: %w", f.path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("export %s: %w", f.path, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("export %s: %w", f.path, err)
	}

	logger.Debug("sessions exported", "path", f.path, "sessions", len(f.sessions))

	return os.Rename(tmp.Name(), f.path)
}

// ReadFile loads an export written by FileSink.
func ReadFile(path string) ([]*types.CardSession, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sessions []*types.CardSession
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return sessions, nil
}
