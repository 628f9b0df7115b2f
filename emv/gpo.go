package emv

import (
	"errors"
	"fmt"

	"github.com/accessterm/cardid-go/tlv"
	"github.com/accessterm/cardid-go/types"
)

var (
	ErrUnknownGPOFormat = errors.New("unknown get processing options response format")
	ErrBadAFL           = errors.New("application file locator length is not a multiple of 4")
)

// ParseGPO returns the application interchange profile and the application
// file locator of a GET PROCESSING OPTIONS answer, in format 1 (tag 80) or
// format 2 (tag 77).
func ParseGPO(data []byte) (aip []byte, afl []byte, err error) {
	nodes := tlv.Decode(data)
	if len(nodes) == 0 {
		return nil, nil, ErrUnknownGPOFormat
	}

	root := nodes[0]
	if root.Err != nil {
		return nil, nil, root.Err
	}

	switch root.Tag {
	case tlv.TagResponseFormat1:
		if len(root.Value) < 2 {
			return nil, nil, fmt.Errorf("format 1 response too short: %d bytes", len(root.Value))
		}
		return root.Value[:2], root.Value[2:], nil
	case tlv.TagResponseFormat2:
		if n := tlv.Find(root.Children, tlv.TagAIP); n != nil {
			aip = n.Value
		}
		if n := tlv.Find(root.Children, tlv.TagAFL); n != nil {
			afl = n.Value
		}
		return aip, afl, nil
	default:
		return nil, nil, ErrUnknownGPOFormat
	}
}

// ParseAFL splits an application file locator into its entries. Entries with
// SFI 0 or first record 0 are invalid and skipped.
func ParseAFL(afl []byte) ([]types.AFLEntry, error) {
	if len(afl)%4 != 0 {
		return nil, ErrBadAFL
	}

	entries := make([]types.AFLEntry, 0, len(afl)/4)
	for i := 0; i < len(afl); i += 4 {
		e := types.AFLEntry{
			SFI:         afl[i] >> 3,
			First:       afl[i+1],
			Last:        afl[i+2],
			OfflineAuth: afl[i+3],
		}

		if e.SFI == 0 || e.First == 0 || e.Last < e.First {
			continue
		}

		entries = append(entries, e)
	}

	return entries, nil
}
