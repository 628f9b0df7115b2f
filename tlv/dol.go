package tlv

import (
	"bytes"
	"errors"
	"fmt"
)

// maxDOLEntryLength is the largest length a DOL entry can ask for: EMV
// encodes it in a single byte.
const maxDOLEntryLength = 0xFF

var errDOLEntryLength = errors.New("dol entry length out of range")

// DOLEntry is one element of a data object list such as the PDOL: a tag and
// the number of bytes the card expects for it, without a value.
type DOLEntry struct {
	Tag    Tag
	Length int
}

// ParseDOL decodes a data object list.
func ParseDOL(raw []byte) ([]DOLEntry, error) {
	entries := make([]DOLEntry, 0)
	buf := bytes.NewReader(raw)

	for buf.Len() > 0 {
		offset := len(raw) - buf.Len()
		tag, err := ReadTag(buf)
		if err != nil {
			return entries, &ParseError{offset, tag, err}
		}

		length, err := ReadLength(buf)
		if err != nil {
			return entries, &ParseError{offset, tag, err}
		}
		if length > maxDOLEntryLength {
			return entries, &ParseError{offset, tag, errDOLEntryLength}
		}

		entries = append(entries, DOLEntry{tag, length})
	}

	return entries, nil
}

// BuildDOL concatenates the values the card asked for in entries. Values are
// looked up in known; missing ones are zero filled, and values are truncated
// or left padded with zeros to the requested length.
func BuildDOL(entries []DOLEntry, known map[Tag][]byte) []byte {
	buf := new(bytes.Buffer)
	for _, e := range entries {
		value := known[e.Tag]
		switch {
		case len(value) == e.Length:
			buf.Write(value)
		case len(value) > e.Length:
			buf.Write(value[len(value)-e.Length:])
		default:
			buf.Write(make([]byte, e.Length-len(value)))
			buf.Write(value)
		}
	}

	return buf.Bytes()
}

func (e DOLEntry) String() string {
	return fmt.Sprintf("%s(%d)", e.Tag, e.Length)
}
