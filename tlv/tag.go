package tlv

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Tag is a BER-TLV tag of up to four bytes, stored big endian.
type Tag uint32

const (
	TagAID                    = Tag(0x4F)
	TagApplicationLabel       = Tag(0x50)
	TagTrack2                 = Tag(0x57)
	TagPAN                    = Tag(0x5A)
	TagApplicationTemplate    = Tag(0x61)
	TagFCI                    = Tag(0x6F)
	TagRecordTemplate         = Tag(0x70)
	TagResponseFormat2        = Tag(0x77)
	TagResponseFormat1        = Tag(0x80)
	TagAIP                    = Tag(0x82)
	TagCommandTemplate        = Tag(0x83)
	TagDFName                 = Tag(0x84)
	TagSFI                    = Tag(0x88)
	TagAFL                    = Tag(0x94)
	TagFCIProprietary         = Tag(0xA5)
	TagFCIIssuerDiscretionary = Tag(0xBF0C)
	TagCardholderName         = Tag(0x5F20)
	TagExpiry                 = Tag(0x5F24)
	TagEffectiveDate          = Tag(0x5F25)
	TagIssuerCountry          = Tag(0x5F28)
	TagPANSequence            = Tag(0x5F34)
	TagPreferredName          = Tag(0x9F12)
	TagPDOL                   = Tag(0x9F38)
	TagTrack2MagStripe        = Tag(0x9F6B)

	// terminal data requested through the PDOL
	TagTVR                 = Tag(0x95)
	TagTransactionDate     = Tag(0x9A)
	TagTransactionType     = Tag(0x9C)
	TagTransactionCurrency = Tag(0x5F2A)
	TagAmountAuthorised    = Tag(0x9F02)
	TagAmountOther         = Tag(0x9F03)
	TagTerminalCountry     = Tag(0x9F1A)
	TagUnpredictableNumber = Tag(0x9F37)
	TagTerminalQualifiers  = Tag(0x9F66)

	// GET DATA objects
	TagATC           = Tag(0x9F36)
	TagLastOnlineATC = Tag(0x9F13)
	TagPINTryCounter = Tag(0x9F17)
	TagLogFormat     = Tag(0x9F4F)
)

var (
	errTruncatedTag    = errors.New("truncated tag")
	errTruncatedLength = errors.New("truncated length")
	errIndefinite      = errors.New("indefinite length not supported")
	errLengthTooLong   = errors.New("length of length too long")
	errLengthOverflow  = errors.New("length out of range")
)

// maxLength keeps decoded lengths positive on 32 bit platforms.
const maxLength = 1<<31 - 1

// Bytes returns the encoded form of the tag.
func (t Tag) Bytes() []byte {
	switch {
	case t > 0xFFFFFF:
		return []byte{byte(t >> 24), byte(t >> 16), byte(t >> 8), byte(t)}
	case t > 0xFFFF:
		return []byte{byte(t >> 16), byte(t >> 8), byte(t)}
	case t > 0xFF:
		return []byte{byte(t >> 8), byte(t)}
	default:
		return []byte{byte(t)}
	}
}

// Constructed reports whether bit 6 of the first tag byte is set.
func (t Tag) Constructed() bool {
	return t.Bytes()[0]&0x20 == 0x20
}

func (t Tag) String() string {
	return fmt.Sprintf("%X", t.Bytes())
}

// ReadTag reads a tag from buf. The first byte has its low five bits all set
// when more bytes follow; each following byte has bit 8 set when another one follows.
func ReadTag(buf *bytes.Reader) (Tag, error) {
	first, err := buf.ReadByte()
	if err != nil {
		return 0, err
	}

	tag := Tag(first)
	if first&0x1F != 0x1F {
		return tag, nil
	}

	for i := 0; i < 3; i++ {
		b, err := buf.ReadByte()
		if err != nil {
			return tag, errTruncatedTag
		}

		tag = tag<<8 | Tag(b)
		if b&0x80 == 0 {
			return tag, nil
		}
	}

	return tag, errTruncatedTag
}

// ReadLength reads a short or long form length.
func ReadLength(buf *bytes.Reader) (int, error) {
	first, err := buf.ReadByte()
	if err != nil {
		if err == io.EOF {
			return 0, errTruncatedLength
		}
		return 0, err
	}

	if first&0x80 == 0 {
		return int(first), nil
	}

	count := int(first & 0x7F)
	if count == 0 {
		return 0, errIndefinite
	}

	if count > 4 {
		return 0, errLengthTooLong
	}

	var length uint32
	for i := 0; i < count; i++ {
		b, err := buf.ReadByte()
		if err != nil {
			return 0, errTruncatedLength
		}
		length = length<<8 | uint32(b)
	}

	if length > maxLength {
		return 0, errLengthOverflow
	}

	return int(length), nil
}

// WriteLength writes the minimal encoding of length.
func WriteLength(buf *bytes.Buffer, length int) {
	switch {
	case length < 0x80:
		buf.WriteByte(byte(length))
	case length <= 0xFF:
		buf.WriteByte(0x81)
		buf.WriteByte(byte(length))
	case length <= 0xFFFF:
		buf.WriteByte(0x82)
		buf.WriteByte(byte(length >> 8))
		buf.WriteByte(byte(length))
	case length <= 0xFFFFFF:
		buf.WriteByte(0x83)
		buf.WriteByte(byte(length >> 16))
		buf.WriteByte(byte(length >> 8))
		buf.WriteByte(byte(length))
	default:
		buf.WriteByte(0x84)
		buf.WriteByte(byte(length >> 24))
		buf.WriteByte(byte(length >> 16))
		buf.WriteByte(byte(length >> 8))
		buf.WriteByte(byte(length))
	}
}
