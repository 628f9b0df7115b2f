package types

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/accessterm/cardid-go/apdu"
)

// Channel is an interface with a Send method to send apdu commands and receive apdu responses.
type Channel interface {
	Send(*apdu.Command) (*apdu.Response, error)
}

// HexBytes marshals to upper case hex instead of base64.
type HexBytes []byte

func (h HexBytes) String() string {
	return strings.ToUpper(hex.EncodeToString(h))
}

// MarshalJSON implements json.Marshaler.
func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}

	*h = raw
	return nil
}
