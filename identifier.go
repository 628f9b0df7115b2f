package cardid

import (
	"context"
	"crypto/rand"
	"io"
	"time"

	"github.com/accessterm/cardid-go/emv"
	"github.com/accessterm/cardid-go/identifiers"
	"github.com/accessterm/cardid-go/metrics"
	"github.com/accessterm/cardid-go/tlv"
	"github.com/accessterm/cardid-go/types"
	"github.com/ethereum/go-ethereum/log"
)

var logger = log.New("package", "cardid")

const (
	LabelUIDCard = "UID_CARD"
	LabelATR     = "ATR"
	LabelUnknown = "unknown"
)

// DefaultMaxScanRecords is the number of records tried per SFI when
// ScanAllSFI is set.
const DefaultMaxScanRecords = 5

// DefaultGetDataTags are read after the records of each application.
var DefaultGetDataTags = []tlv.Tag{
	tlv.TagATC,
	tlv.TagLastOnlineATC,
	tlv.TagPINTryCounter,
	tlv.TagLogFormat,
}

// Options tunes the identification procedure. The zero value is usable.
type Options struct {
	// Candidates are selected directly after the PSE/PPSE entries.
	// Defaults to identifiers.Candidates().
	Candidates []identifiers.Candidate
	// StopAtFirstMatch stops probing candidates once one application answered.
	StopAtFirstMatch bool
	// ScanAllSFI reads records 1..MaxScanRecords of every SFI from 1 to 31.
	ScanAllSFI     bool
	MaxScanRecords uint8
	// GetDataTags defaults to DefaultGetDataTags. Use an empty non nil
	// slice to skip GET DATA.
	GetDataTags []tlv.Tag
	// PANKey keys the PAN fingerprint.
	PANKey  []byte
	Now     func() time.Time
	Rand    io.Reader
	Metrics *metrics.Metrics
}

// Identifier runs the identification procedure on one card at a time.
type Identifier struct {
	opts      Options
	extractor *emv.Extractor
}

func NewIdentifier(opts Options) *Identifier {
	if opts.Candidates == nil {
		opts.Candidates = identifiers.Candidates()
	}
	if opts.MaxScanRecords == 0 {
		opts.MaxScanRecords = DefaultMaxScanRecords
	}
	if opts.GetDataTags == nil {
		opts.GetDataTags = DefaultGetDataTags
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.Reader
	}

	return &Identifier{
		opts: opts,
		extractor: &emv.Extractor{
			Key: opts.PANKey,
			Now: opts.Now,
		},
	}
}

// probe is the state of one Identify call.
type probe struct {
	opts      *Options
	extractor *emv.Extractor
	session   *types.CardSession
	ch        *sessionChannel
	cs        *CommandSet
}

func (p *probe) now() time.Time {
	return p.opts.Now()
}

// Identify runs AID discovery, EMV extraction and the UID fallback on the
// card behind c. The returned session is either classified, or aborted
// together with a non nil error when the card was removed, the reader
// stopped answering or ctx was cancelled.
func (id *Identifier) Identify(ctx context.Context, c types.Channel, reader string, atr []byte) (*types.CardSession, error) {
	session := types.NewCardSession(reader, atr, id.opts.Now())
	ch := newSessionChannel(ctx, c, session, id.opts.Metrics, id.opts.Now)
	p := &probe{
		opts:      &id.opts,
		extractor: id.extractor,
		session:   session,
		ch:        ch,
		cs:        NewCommandSet(ch),
	}

	logger.Debug("session started", "session", session.ID, "reader", reader, "atr", session.ATR.String())

	if err := p.run(); err != nil {
		session.Abort(err.Error(), id.opts.Now())
		id.opts.Metrics.IncrementAborted(abortReason(err))
		logger.Warn("session aborted", "session", session.ID, "error", err)
		return session, err
	}

	c12n := session.Classification
	id.opts.Metrics.IncrementSession(string(c12n.Kind), string(c12n.Brand))
	id.opts.Metrics.ObserveSession(session.FinishedAt.Sub(session.StartedAt))
	logger.Info("card classified", "session", session.ID, "kind", c12n.Kind, "label", c12n.Label, "brand", c12n.Brand, "exchanges", len(session.Exchanges))

	return session, nil
}

func (p *probe) run() error {
	if err := p.discover(); err != nil {
		return err
	}

	if len(p.session.Applications) > 0 {
		if err := p.retrieve(); err != nil {
			return err
		}
	}

	if p.session.Fields != nil && p.session.Fields.PANValid {
		p.session.Classify(p.emvClassification(), p.now())
		return nil
	}

	fallback, err := p.fallback()
	if err != nil {
		return err
	}

	p.session.Fallback = fallback
	p.session.Classify(p.fallbackClassification(fallback), p.now())

	return nil
}

func (p *probe) emvClassification() types.Classification {
	app := p.primaryApplication()
	c := types.Classification{
		Kind:       types.ClassEMV,
		Label:      applicationName(app),
		Brand:      app.Brand,
		Identifier: p.session.Fields.Fingerprint,
	}

	if c.Identifier == "" {
		c.Identifier = p.session.Fields.MaskedPAN
	}

	return c
}

func (p *probe) fallbackClassification(fallback *types.Identifier) types.Classification {
	var c types.Classification
	if fallback != nil {
		c.Identifier = fallback.Value
	}

	if app := p.primaryApplication(); app != nil {
		c.Kind = types.ClassAID
		c.Label = applicationName(app)
		c.Brand = app.Brand
		return c
	}

	switch {
	case fallback == nil:
		c.Kind = types.ClassUnknown
		c.Label = LabelUnknown
	case fallback.Confidence == types.ConfidenceUID:
		c.Kind = types.ClassUID
		c.Label = LabelUIDCard
	default:
		c.Kind = types.ClassATR
		c.Label = LabelATR
	}

	// the PPSE answering says "payment card" but names no brand
	if p.session.PPSE {
		c.Label = types.LabelGenericPPSE
	}

	return c
}

// primaryApplication is the application the PAN came from, else the first
// branded one, else the first one.
func (p *probe) primaryApplication() *types.Application {
	apps := p.session.Applications
	for _, app := range apps {
		if p.session.Fields != nil && app.Fields == p.session.Fields {
			return app
		}
	}

	for _, app := range apps {
		if app.Brand != identifiers.BrandUnknown {
			return app
		}
	}

	if len(apps) > 0 {
		return apps[0]
	}

	return nil
}

func applicationName(app *types.Application) string {
	switch {
	case app.Name != "":
		return app.Name
	case app.Label != "":
		return app.Label
	default:
		return app.AID.String()
	}
}
