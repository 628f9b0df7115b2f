package relay

import (
	"strings"
	"sync"
	"time"

	"github.com/accessterm/cardid-go/types"
	"github.com/ethereum/go-ethereum/log"
)

var logger = log.New("package", "cardid/relay")

// DefaultPulse is how long the door strike stays energized.
const DefaultPulse = 3 * time.Second

// Relay drives the door opener.
type Relay interface {
	Pulse(d time.Duration) error
}

// LogRelay only logs the pulses it is asked for.
type LogRelay struct {
	mu     sync.Mutex
	pulses int
}

func (r *LogRelay) Pulse(d time.Duration) error {
	r.mu.Lock()
	r.pulses++
	r.mu.Unlock()

	logger.Info("relay pulse", "duration", d)
	return nil
}

// Pulses returns the number of pulses so far.
func (r *LogRelay) Pulses() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.pulses
}

// AllowList decides which classified sessions open the door. An entry
// matches a classification kind ("emv"), a brand ("visa") or an identifier.
type AllowList []string

// ParseAllowList splits a comma separated list.
func ParseAllowList(s string) AllowList {
	var out AllowList
	for _, e := range strings.Split(s, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}

	return out
}

func (a AllowList) Allows(s *types.CardSession) bool {
	if s == nil || !s.Classified() || s.Classification == nil {
		return false
	}

	c := s.Classification
	for _, e := range a {
		switch {
		case strings.EqualFold(e, string(c.Kind)):
			return true
		case c.Brand != "" && strings.EqualFold(e, string(c.Brand)):
			return true
		case c.Identifier != "" && strings.EqualFold(e, c.Identifier):
			return true
		}
	}

	return false
}

// Unlock pulses r when the session is allowed.
func Unlock(r Relay, allow AllowList, s *types.CardSession, d time.Duration) (bool, error) {
	if !allow.Allows(s) {
		logger.Debug("access denied", "session", s.ID)
		return false, nil
	}

	return true, r.Pulse(d)
}
