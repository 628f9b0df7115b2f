package types

import (
	"time"

	"github.com/accessterm/cardid-go/identifiers"
	"github.com/google/uuid"
)

// State is the position of a CardSession in the identification procedure.
type State string

const (
	StateDetected      State = "detected"
	StateAIDDiscovery  State = "aid_discovery"
	StateEMVExtraction State = "emv_extraction"
	StateUIDFallback   State = "uid_fallback"
	StateClassified    State = "classified"
	StateAborted       State = "aborted"
)

// ClassKind tells which path produced the final classification.
type ClassKind string

const (
	ClassEMV     ClassKind = "emv"
	ClassAID     ClassKind = "aid"
	ClassUID     ClassKind = "uid"
	ClassATR     ClassKind = "atr"
	ClassUnknown ClassKind = "unknown"
)

// LabelGenericPPSE is used when the PPSE answered but no brand application did.
const LabelGenericPPSE = "generic 2PAY.SYS.DDF01"

// Classification is the terminal result of a session.
type Classification struct {
	Kind       ClassKind         `json:"kind"`
	Label      string            `json:"label"`
	Brand      identifiers.Brand `json:"brand,omitempty"`
	Identifier string            `json:"identifier,omitempty"`
}

// Exchange records one command and its answer.
type Exchange struct {
	Description string        `json:"description"`
	Command     HexBytes      `json:"command"`
	Response    HexBytes      `json:"response,omitempty"`
	Sw          uint16        `json:"sw"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	Error       string        `json:"error,omitempty"`
}

// Confidence qualifies a fallback identifier.
type Confidence string

const (
	ConfidenceUID Confidence = "uid"
	ConfidenceATR Confidence = "atr"
)

// Identifier is the result of the UID fallback ladder.
type Identifier struct {
	Value      string     `json:"value"`
	Source     string     `json:"source"`
	Confidence Confidence `json:"confidence"`
}

// CardSession is one physical tap, from detection to classification.
type CardSession struct {
	ID             string          `json:"id"`
	Name           string          `json:"name,omitempty"`
	Reader         string          `json:"reader,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	ATR            HexBytes        `json:"atr"`
	State          State           `json:"state"`
	Exchanges      []Exchange      `json:"exchanges"`
	PPSE           bool            `json:"ppse"`
	PSE            bool            `json:"pse"`
	Applications   []*Application  `json:"applications"`
	Fields         *CardFields     `json:"fields,omitempty"`
	Fallback       *Identifier     `json:"fallback,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
	AbortReason    string          `json:"abort_reason,omitempty"`
}

// NewCardSession returns a session in the Detected state.
func NewCardSession(reader string, atr []byte, now time.Time) *CardSession {
	return &CardSession{
		ID:           uuid.NewString(),
		Reader:       reader,
		StartedAt:    now,
		ATR:          atr,
		State:        StateDetected,
		Exchanges:    make([]Exchange, 0),
		Applications: make([]*Application, 0),
	}
}

// Classify moves the session to its terminal state. Only the first call has an effect.
func (s *CardSession) Classify(c Classification, now time.Time) {
	if s.State == StateClassified || s.State == StateAborted {
		return
	}

	s.Classification = &c
	s.State = StateClassified
	s.FinishedAt = now
}

// Abort discards the session. Partial card data is dropped; exchanges, the
// ATR and the selected AIDs stay for diagnostics. An aborted session never
// counts as classified.
func (s *CardSession) Abort(reason string, now time.Time) {
	if s.State == StateClassified || s.State == StateAborted {
		return
	}

	s.Fields = nil
	s.Fallback = nil
	for _, app := range s.Applications {
		app.Records = nil
		app.GPO = nil
		app.Data = nil
		app.Fields = nil
	}

	s.Classification = nil
	s.State = StateAborted
	s.AbortReason = reason
	s.FinishedAt = now
}

// Classified reports whether the session reached its terminal classification.
func (s *CardSession) Classified() bool {
	return s.State == StateClassified
}

// Redacted returns a copy of the session with every plaintext PAN removed.
func (s *CardSession) Redacted() *CardSession {
	out := *s
	if s.Fields != nil {
		out.Fields = s.Fields.Redacted()
	}

	out.Applications = make([]*Application, len(s.Applications))
	for i, app := range s.Applications {
		copied := *app
		if app.Fields != nil {
			copied.Fields = app.Fields.Redacted()
		}
		// a format 2 GPO answer may carry track 2
		copied.Records = nil
		copied.GPO = nil
		copied.Data = nil
		out.Applications[i] = &copied
	}

	// record, GPO, GET DATA and chained GET RESPONSE answers may carry the
	// PAN in clear
	out.Exchanges = make([]Exchange, len(s.Exchanges))
	for i, e := range s.Exchanges {
		if isRecordRead(e.Command) {
			e.Response = nil
		}
		out.Exchanges[i] = e
	}

	return &out
}

func isRecordRead(cmd []byte) bool {
	if len(cmd) < 2 {
		return false
	}

	switch cmd[1] {
	case 0xB2, 0xA8, 0xCA, 0xC0:
		return true
	default:
		return false
	}
}
