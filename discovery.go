package cardid

import (
	"bytes"
	"fmt"

	"github.com/accessterm/cardid-go/apdu"
	"github.com/accessterm/cardid-go/emv"
	"github.com/accessterm/cardid-go/identifiers"
	"github.com/accessterm/cardid-go/tlv"
	"github.com/accessterm/cardid-go/types"
)

const (
	SourcePSE       = "pse"
	SourcePPSE      = "ppse"
	SourceCandidate = "candidate"
)

// maxDirectoryRecords bounds the PSE directory file read.
const maxDirectoryRecords = 16

// directoryEntry is one application template (61) of a PSE or PPSE directory.
type directoryEntry struct {
	aid    []byte
	label  string
	source string
}

// discover selects the PSE and the PPSE, then every AID they list, then the
// candidate table. Each AID that answers 9000 is added once to the session.
func (p *probe) discover() error {
	p.session.State = types.StateAIDDiscovery

	var entries []directoryEntry

	pse, err := p.selectPSE()
	if isFatal(err) {
		return err
	}
	entries = append(entries, pse...)

	ppse, err := p.selectPPSE()
	if isFatal(err) {
		return err
	}
	entries = append(entries, ppse...)

	for _, e := range entries {
		if err := p.probeAID(e.aid, e.label, e.source); isFatal(err) {
			return err
		}
	}

	for _, c := range p.opts.Candidates {
		if p.opts.StopAtFirstMatch && len(p.session.Applications) > 0 {
			break
		}

		if err := p.probeAID(c.AID, "", SourceCandidate); isFatal(err) {
			return err
		}
	}

	logger.Debug("aid discovery done", "session", p.session.ID, "applications", len(p.session.Applications), "pse", p.session.PSE, "ppse", p.session.PPSE)

	return nil
}

// probeAID selects aid and records it on success. Directory names and AIDs
// already confirmed are skipped.
func (p *probe) probeAID(aid []byte, label string, source string) error {
	if identifiers.IsDirectory(aid) || p.confirmed(aid) {
		return nil
	}

	fci, err := p.cs.Select(aid)
	if err != nil {
		logger.Debug("select failed", "aid", fmt.Sprintf("%X", aid), "error", err)
		return err
	}

	candidate, _ := identifiers.Lookup(aid)
	app := &types.Application{
		AID:    append([]byte{}, aid...),
		Brand:  candidate.Brand,
		Name:   candidate.Name,
		Label:  label,
		Source: source,
		FCI:    fci,
	}

	if app.Label == "" {
		app.Label = applicationLabel(tlv.Decode(fci))
	}

	logger.Info("application found", "aid", fmt.Sprintf("%X", aid), "brand", app.Brand, "source", source)
	p.session.Applications = append(p.session.Applications, app)

	return nil
}

func (p *probe) confirmed(aid []byte) bool {
	for _, app := range p.session.Applications {
		if bytes.Equal(app.AID, aid) {
			return true
		}
	}

	return false
}

// selectPSE reads the contact directory: the FCI names the directory SFI
// (88) and each record lists application templates.
func (p *probe) selectPSE() ([]directoryEntry, error) {
	fci, err := p.cs.Select(identifiers.PSE)
	if err != nil {
		return nil, err
	}

	p.session.PSE = true

	sfiValue, err := apdu.FindTag(fci, tlv.TagFCI, tlv.TagFCIProprietary, tlv.TagSFI)
	if err != nil || len(sfiValue) != 1 {
		logger.Debug("pse without directory sfi", "error", err)
		return nil, nil
	}

	sfi := sfiValue[0]
	var entries []directoryEntry
	for record := uint8(1); record <= maxDirectoryRecords; record++ {
		data, err := p.cs.ReadRecord(sfi, record)
		if isFatal(err) {
			return entries, err
		}
		if err != nil {
			break
		}

		entries = append(entries, directoryEntries(tlv.Decode(data), SourcePSE)...)
	}

	return entries, nil
}

// selectPPSE reads the contactless directory from the FCI issuer
// discretionary data (BF0C).
func (p *probe) selectPPSE() ([]directoryEntry, error) {
	fci, err := p.cs.Select(identifiers.PPSE)
	if err != nil {
		return nil, err
	}

	p.session.PPSE = true

	return directoryEntries(tlv.Decode(fci), SourcePPSE), nil
}

func directoryEntries(nodes []*tlv.Node, source string) []directoryEntry {
	var entries []directoryEntry
	for _, tmpl := range tlv.FindAll(nodes, tlv.TagApplicationTemplate) {
		aid := tlv.Find(tmpl.Children, tlv.TagAID)
		if aid == nil || len(aid.Value) == 0 {
			continue
		}

		entries = append(entries, directoryEntry{
			aid:    aid.Value,
			label:  applicationLabel(tmpl.Children),
			source: source,
		})
	}

	return entries
}

// applicationLabel prefers the issuer's preferred name over the plain label.
func applicationLabel(nodes []*tlv.Node) string {
	for _, tag := range []tlv.Tag{tlv.TagPreferredName, tlv.TagApplicationLabel} {
		if n := tlv.Find(nodes, tag); n != nil {
			if label := emv.ParseLabel(n.Value); label != "" {
				return label
			}
		}
	}

	return ""
}
