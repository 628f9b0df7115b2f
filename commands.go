package cardid

import (
	"bytes"

	"github.com/accessterm/cardid-go/apdu"
	"github.com/accessterm/cardid-go/tlv"
)

const (
	ClaISO7816     = 0x00
	ClaProprietary = 0x80
	ClaPCSC        = 0xFF

	InsSelect                = 0xA4
	InsReadRecord            = 0xB2
	InsGetProcessingOptions  = 0xA8
	InsGetData               = 0xCA
	InsGetResponse           = 0xC0
	InsReadBinary            = 0xB0
	InsDirectTransmit        = 0x00
	P1SelectByName           = 0x04
	P2SelectFirstOccurrence  = 0x00
	P2ReadRecordSFI          = 0x04
	P1GetUID                 = 0x00
	PN532InListPassiveTarget = 0x4A
	PN532InCommunicateThru   = 0x42
	PN532HostToPN532         = 0xD4
	PN532ToHost              = 0xD5
	PN532BaudRate106TypeA    = 0x00
	ISO14443SelectCL1        = 0x93
	ISO14443NVBAnticollision = 0x20
)

// NewCommandSelect returns a SELECT by name, first occurrence, expecting data back.
func NewCommandSelect(aid []byte) *apdu.Command {
	c := apdu.NewCommand(
		ClaISO7816,
		InsSelect,
		P1SelectByName,
		P2SelectFirstOccurrence,
		aid,
	)

	c.SetLe(0)
	return c
}

// NewCommandGetProcessingOptions wraps pdolData in the command template 83.
// Empty pdolData gives the "83 00" form.
func NewCommandGetProcessingOptions(pdolData []byte) *apdu.Command {
	buf := new(bytes.Buffer)
	buf.WriteByte(byte(tlv.TagCommandTemplate))
	tlv.WriteLength(buf, len(pdolData))
	buf.Write(pdolData)

	c := apdu.NewCommand(
		ClaProprietary,
		InsGetProcessingOptions,
		0,
		0,
		buf.Bytes(),
	)

	c.SetLe(0)
	return c
}

// NewCommandGetProcessingOptionsNoData sends GPO without a command template,
// which a few older cards require.
func NewCommandGetProcessingOptionsNoData() *apdu.Command {
	c := apdu.NewCommand(
		ClaProprietary,
		InsGetProcessingOptions,
		0,
		0,
		nil,
	)

	c.SetLe(0)
	return c
}

func NewCommandReadRecord(sfi uint8, record uint8) *apdu.Command {
	c := apdu.NewCommand(
		ClaISO7816,
		InsReadRecord,
		record,
		sfi<<3|P2ReadRecordSFI,
		nil,
	)

	c.SetLe(0)
	return c
}

func NewCommandGetData(tag tlv.Tag) *apdu.Command {
	b := tag.Bytes()
	p1, p2 := uint8(0), b[0]
	if len(b) > 1 {
		p1, p2 = b[0], b[1]
	}

	c := apdu.NewCommand(
		ClaProprietary,
		InsGetData,
		p1,
		p2,
		nil,
	)

	c.SetLe(0)
	return c
}

func NewCommandGetResponse(le uint8) *apdu.Command {
	c := apdu.NewCommand(
		ClaISO7816,
		InsGetResponse,
		0,
		0,
		nil,
	)

	c.SetLe(le)
	return c
}

// NewCommandGetUID is the PC/SC part 3 pseudo apdu returning the card UID.
// le 0 asks for the full UID.
func NewCommandGetUID(le uint8) *apdu.Command {
	c := apdu.NewCommand(
		ClaPCSC,
		InsGetData,
		P1GetUID,
		0,
		nil,
	)

	c.SetLe(le)
	return c
}

// NewCommandISOGetData is the plain ISO 7816 GET DATA some readers answer with the UID.
func NewCommandISOGetData() *apdu.Command {
	c := apdu.NewCommand(
		ClaISO7816,
		InsGetData,
		0,
		0,
		nil,
	)

	c.SetLe(0)
	return c
}

// NewCommandReadBinary is the PC/SC storage card READ BINARY of one block.
func NewCommandReadBinary(block uint8, le uint8) *apdu.Command {
	c := apdu.NewCommand(
		ClaPCSC,
		InsReadBinary,
		0,
		block,
		nil,
	)

	c.SetLe(le)
	return c
}

// NewCommandDirectTransmit passes payload to the reader's NFC controller
// (PN53x on ACR122U type readers).
func NewCommandDirectTransmit(payload []byte) *apdu.Command {
	return apdu.NewCommand(
		ClaPCSC,
		InsDirectTransmit,
		0,
		0,
		payload,
	)
}

// NewCommandInListPassiveTarget asks the PN532 for one ISO 14443 type A target.
func NewCommandInListPassiveTarget() *apdu.Command {
	return NewCommandDirectTransmit([]byte{
		PN532HostToPN532,
		PN532InListPassiveTarget,
		0x01,
		PN532BaudRate106TypeA,
	})
}

// NewCommandAnticollision sends ISO 14443-3 ANTICOLLISION for cascade level 1 through the PN532.
func NewCommandAnticollision() *apdu.Command {
	return NewCommandDirectTransmit([]byte{
		PN532HostToPN532,
		PN532InCommunicateThru,
		ISO14443SelectCL1,
		ISO14443NVBAnticollision,
	})
}
