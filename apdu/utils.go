package apdu

import (
	"bytes"
	"fmt"

	"github.com/accessterm/cardid-go/tlv"
)

// ErrTagNotFound is an error returned if a tag is not found in a TLV sequence.
type ErrTagNotFound struct {
	tag tlv.Tag
}

// Error implements the error interface
func (e *ErrTagNotFound) Error() string {
	return fmt.Sprintf("tag %s not found", e.tag)
}

// FindTag searches for a tag value within a TLV sequence following the given path of tags.
func FindTag(raw []byte, tags ...tlv.Tag) ([]byte, error) {
	return findTag(raw, 0, tags...)
}

// FindTagN searches for a tag value within a TLV sequence and returns the n occurrence
func FindTagN(raw []byte, n int, tags ...tlv.Tag) ([]byte, error) {
	return findTag(raw, n, tags...)
}

func findTag(raw []byte, occurrence int, tags ...tlv.Tag) ([]byte, error) {
	if len(tags) == 0 {
		return raw, nil
	}

	target := tags[0]
	buf := bytes.NewReader(raw)

	for buf.Len() > 0 {
		tag, err := tlv.ReadTag(buf)
		if err != nil {
			return nil, err
		}

		length, err := tlv.ReadLength(buf)
		if err != nil {
			return nil, err
		}

		if length > buf.Len() {
			return nil, fmt.Errorf("tag %s: value truncated", tag)
		}

		data := make([]byte, length)
		if length != 0 {
			if _, err = buf.Read(data); err != nil {
				return nil, err
			}
		}

		if tag == target {
			// if it's the last tag in the search path, we start counting the occurrences
			if len(tags) == 1 && occurrence > 0 {
				occurrence--
				continue
			}

			if len(tags) == 1 {
				return data, nil
			}

			return findTag(data, occurrence, tags[1:]...)
		}
	}

	return []byte{}, &ErrTagNotFound{target}
}

// Sw returns the status word of a raw response, or 0 if it is too short.
func Sw(raw []byte) uint16 {
	if len(raw) < 2 {
		return 0
	}

	return uint16(raw[len(raw)-2])<<8 | uint16(raw[len(raw)-1])
}
