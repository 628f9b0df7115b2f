package cardid

import (
	"fmt"

	"github.com/accessterm/cardid-go/apdu"
	"github.com/accessterm/cardid-go/emv"
	"github.com/accessterm/cardid-go/tlv"
	"github.com/accessterm/cardid-go/types"
)

// priorityRecords are read when a card gives no usable AFL. Record 1 of
// SFI 2 holds track 2 and the PAN on most Mastercard and girocard cards.
var priorityRecords = []struct{ sfi, record uint8 }{
	{2, 1},
	{1, 1},
	{2, 2},
	{3, 1},
}

const maxSFI = 31

// retrieve reads the records of each confirmed application until one of
// them yields a well formed PAN.
func (p *probe) retrieve() error {
	p.session.State = types.StateEMVExtraction

	for _, app := range p.session.Applications {
		if err := p.retrieveApplication(app); err != nil {
			return err
		}

		if app.Fields != nil && app.Fields.PANValid {
			p.session.Fields = app.Fields
			return nil
		}
	}

	// keep partial data for the report even without a PAN
	for _, app := range p.session.Applications {
		if app.Fields != nil && (app.Fields.HasPAN() || app.Fields.ExpiryValid) {
			p.session.Fields = app.Fields
			break
		}
	}

	return nil
}

// retrieveApplication returns only fatal errors; card refusals end up in
// the application's parse errors.
func (p *probe) retrieveApplication(app *types.Application) error {
	fci, err := p.cs.Select(app.AID)
	if isFatal(err) {
		return err
	}
	if err != nil {
		app.ParseErrors = append(app.ParseErrors, fmt.Sprintf("reselect: %v", err))
		return nil
	}

	app.FCI = fci
	nodes := p.decode(app, fci)

	gpoNodes, err := p.processingOptions(app, nodes)
	if err != nil {
		return err
	}
	nodes = append(nodes, gpoNodes...)

	records, err := p.readRecords(app)
	if err != nil {
		return err
	}
	nodes = append(nodes, records...)

	if err := p.getData(app); err != nil {
		return err
	}

	app.Fields = p.extractor.Extract(nodes, app.Brand)
	if app.Fields.HasPAN() {
		logger.Info("pan extracted", "aid", app.AID.String(), "pan", app.Fields.MaskedPAN, "valid", app.Fields.PANValid, "luhn", app.Fields.LuhnValid, "source", app.Fields.PANSource)
	}

	return nil
}

// maxPDOLData is the largest PDOL answer that still fits a short command once
// wrapped in template 83 with a two byte length.
const maxPDOLData = 255 - 3

// gpoVariants returns the GET PROCESSING OPTIONS commands in the order they
// are tried. The last one carries full terminal data for the card's PDOL,
// or for defaultPDOL when the card has none. It is left out when the card
// asks for more data than a short command can carry.
func (p *probe) gpoVariants(app *types.Application, fci []*tlv.Node) []*apdu.Command {
	entries := defaultPDOL
	if n := tlv.Find(fci, tlv.TagPDOL); n != nil {
		if parsed, err := tlv.ParseDOL(n.Value); err == nil && len(parsed) > 0 {
			entries = parsed
		}
	}

	variants := []*apdu.Command{
		NewCommandGetProcessingOptions(nil),
		NewCommandGetProcessingOptionsNoData(),
		NewCommandGetProcessingOptions([]byte{0x00, 0x00}),
	}

	if dolLength(entries) > maxPDOLData {
		app.ParseErrors = append(app.ParseErrors, fmt.Sprintf("pdol: %d bytes of terminal data requested, at most %d fit", dolLength(entries), maxPDOLData))
		return variants
	}

	extended := tlv.BuildDOL(entries, terminalData(p.now(), p.opts.Rand))

	return append(variants, NewCommandGetProcessingOptions(extended))
}

func dolLength(entries []tlv.DOLEntry) int {
	total := 0
	for _, e := range entries {
		total += e.Length
	}

	return total
}

func (p *probe) processingOptions(app *types.Application, fci []*tlv.Node) ([]*tlv.Node, error) {
	for _, cmd := range p.gpoVariants(app, fci) {
		data, err := p.cs.GetProcessingOptions(cmd)
		if isFatal(err) {
			return nil, err
		}
		if err != nil {
			logger.Debug("gpo variant refused", "aid", app.AID.String(), "error", err)
			continue
		}

		aip, afl, err := emv.ParseGPO(data)
		if err != nil {
			app.ParseErrors = append(app.ParseErrors, fmt.Sprintf("gpo: %v", err))
			continue
		}

		app.GPO = data
		app.AIP = aip
		entries, err := emv.ParseAFL(afl)
		if err != nil {
			app.ParseErrors = append(app.ParseErrors, fmt.Sprintf("afl: %v", err))
		}
		app.AFL = entries

		// format 2 answers sometimes carry track 2 directly
		return p.decode(app, data), nil
	}

	return nil, nil
}

func (p *probe) readRecords(app *types.Application) ([]*tlv.Node, error) {
	var nodes []*tlv.Node

	read := func(sfi, record uint8) (bool, error) {
		if hasRecord(app, sfi, record) {
			return true, nil
		}

		data, err := p.cs.ReadRecord(sfi, record)
		if isFatal(err) {
			return false, err
		}
		if err != nil {
			return false, nil
		}

		app.Records = append(app.Records, types.Record{SFI: sfi, Number: record, Data: data})
		nodes = append(nodes, p.decode(app, data)...)
		return true, nil
	}

	for _, e := range app.AFL {
		for record := int(e.First); record <= int(e.Last); record++ {
			if _, err := read(e.SFI, uint8(record)); err != nil {
				return nil, err
			}
		}
	}

	if len(app.AFL) == 0 {
		for _, r := range priorityRecords {
			if _, err := read(r.sfi, r.record); err != nil {
				return nil, err
			}
		}
	}

	if p.opts.ScanAllSFI {
		for sfi := uint8(1); sfi <= maxSFI; sfi++ {
			for record := uint8(1); record <= p.opts.MaxScanRecords; record++ {
				ok, err := read(sfi, record)
				if err != nil {
					return nil, err
				}
				// records are numbered from 1 without gaps
				if !ok {
					break
				}
			}
		}
	}

	return nodes, nil
}

func hasRecord(app *types.Application, sfi, record uint8) bool {
	for _, r := range app.Records {
		if r.SFI == sfi && r.Number == record {
			return true
		}
	}

	return false
}

// getData stores the GET DATA objects the card agrees to return, keyed by tag.
func (p *probe) getData(app *types.Application) error {
	for _, tag := range p.opts.GetDataTags {
		data, err := p.cs.GetData(tag)
		if isFatal(err) {
			return err
		}
		if err != nil {
			continue
		}

		if app.Data == nil {
			app.Data = make(map[string]types.HexBytes)
		}

		value := data
		if n := tlv.Find(tlv.Decode(data), tag); n != nil {
			value = n.Value
		}
		app.Data[tag.String()] = value
	}

	return nil
}

func (p *probe) decode(app *types.Application, data []byte) []*tlv.Node {
	nodes := tlv.Decode(data)
	for _, err := range tlv.Errors(nodes) {
		app.ParseErrors = append(app.ParseErrors, err.Error())
	}

	return nodes
}
