package cardid

import (
	"errors"
	"fmt"

	"github.com/accessterm/cardid-go/apdu"
	"github.com/accessterm/cardid-go/types"
)

const (
	SourceGetUID        = "pcsc_get_uid"
	SourceGetUID4       = "pcsc_get_uid_4"
	SourcePN532         = "pn532_in_list_passive_target"
	SourceMifareBlock0  = "mifare_block_0"
	SourceAnticollision = "iso14443_anticollision"
	SourceISOGetData    = "iso_get_data"
	SourceATR           = "atr"
)

const (
	minUIDLength = 4
	maxUIDLength = 8
	// atrIDLength is the number of trailing ATR bytes used as a pseudo id.
	atrIDLength = 8
)

// uidStep is one rung of the fallback ladder. parse returns the UID found
// in a successful answer, or nil.
type uidStep struct {
	source string
	cmd    func() *apdu.Command
	parse  func(data []byte) []byte
}

var uidLadder = []uidStep{
	{SourceGetUID, func() *apdu.Command { return NewCommandGetUID(0) }, plainUID},
	{SourceGetUID4, func() *apdu.Command { return NewCommandGetUID(4) }, plainUID},
	{SourcePN532, NewCommandInListPassiveTarget, pn532TargetUID},
	{SourceMifareBlock0, func() *apdu.Command { return NewCommandReadBinary(0, 16) }, mifareBlock0UID},
	{SourceAnticollision, NewCommandAnticollision, anticollisionUID},
	{SourceISOGetData, NewCommandISOGetData, plainUID},
}

// fallback walks the UID ladder and ends with the ATR derived identifier.
// It only fails when the card is gone or the session is cancelled; a reader
// that stops answering sends the ladder straight to the ATR step.
func (p *probe) fallback() (*types.Identifier, error) {
	p.session.State = types.StateUIDFallback

	for _, step := range uidLadder {
		resp, err := p.ch.Send(step.cmd())
		if err != nil {
			if errors.Is(err, ErrCardRemoved) || errors.Is(err, ErrSessionCancelled) {
				return nil, err
			}
			if errors.Is(err, ErrHardwareUnresponsive) {
				logger.Warn("reader unresponsive, using atr", "step", step.source)
				break
			}

			logger.Debug("uid step failed", "step", step.source, "error", err)
			continue
		}

		if !uidAnswerOK(resp) {
			continue
		}

		if uid := step.parse(resp.Data); uid != nil {
			id := &types.Identifier{
				Value:      types.HexBytes(uid).String(),
				Source:     step.source,
				Confidence: types.ConfidenceUID,
			}
			logger.Info("uid found", "uid", id.Value, "source", id.Source)
			return id, nil
		}
	}

	return atrIdentifier(p.session.ATR), nil
}

// uidAnswerOK accepts 90XX, 91XX and 61XX, the status words readers use for
// a successful UID answer.
func uidAnswerOK(resp *apdu.Response) bool {
	switch resp.Sw1 {
	case 0x90, 0x91, 0x61:
		return true
	default:
		return false
	}
}

func plainUID(data []byte) []byte {
	if len(data) < minUIDLength {
		return nil
	}

	if len(data) > maxUIDLength {
		data = data[:maxUIDLength]
	}

	return data
}

// pn532TargetUID reads the NFCID1 out of an InListPassiveTarget answer:
// D5 4B NbTg Tg SENS_RES(2) SEL_RES NFCIDLength NFCID...
func pn532TargetUID(data []byte) []byte {
	if len(data) < 8 || data[0] != PN532ToHost || data[1] != PN532InListPassiveTarget+1 || data[2] == 0 {
		return nil
	}

	n := int(data[7])
	if len(data) < 8+n {
		return nil
	}

	return plainUID(data[8 : 8+n])
}

// mifareBlock0UID returns the UID stored in the first bytes of a Mifare
// Classic manufacturer block.
func mifareBlock0UID(data []byte) []byte {
	if len(data) < 16 {
		return nil
	}

	return data[:minUIDLength]
}

// anticollisionUID reads D5 43 status UID0..UID3 BCC and checks the BCC.
func anticollisionUID(data []byte) []byte {
	if len(data) < 8 || data[0] != PN532ToHost || data[1] != PN532InCommunicateThru+1 || data[2] != 0x00 {
		return nil
	}

	uid := data[3:7]
	if uid[0]^uid[1]^uid[2]^uid[3] != data[7] {
		return nil
	}

	return uid
}

// atrIdentifier uses the last bytes of the ATR, which carry the historical
// bytes and differ between card products. An empty ATR gives nil.
func atrIdentifier(atr []byte) *types.Identifier {
	if len(atr) == 0 {
		return nil
	}

	if len(atr) > atrIDLength {
		atr = atr[len(atr)-atrIDLength:]
	}

	return &types.Identifier{
		Value:      fmt.Sprintf("%X", atr),
		Source:     SourceATR,
		Confidence: types.ConfidenceATR,
	}
}
