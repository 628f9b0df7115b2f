package types

import "github.com/accessterm/cardid-go/identifiers"

// AFLEntry is one four byte entry of the application file locator.
type AFLEntry struct {
	SFI         uint8 `json:"sfi"`
	First       uint8 `json:"first"`
	Last        uint8 `json:"last"`
	OfflineAuth uint8 `json:"offline_auth"`
}

// Record is the raw answer to READ RECORD.
type Record struct {
	SFI    uint8    `json:"sfi"`
	Number uint8    `json:"number"`
	Data   HexBytes `json:"data"`
}

// Application is an AID that answered SELECT with 9000.
type Application struct {
	AID         HexBytes            `json:"aid"`
	Brand       identifiers.Brand   `json:"brand,omitempty"`
	Name        string              `json:"name,omitempty"`
	Label       string              `json:"label,omitempty"`
	Source      string              `json:"source"`
	FCI         HexBytes            `json:"fci,omitempty"`
	GPO         HexBytes            `json:"gpo,omitempty"`
	AIP         HexBytes            `json:"aip,omitempty"`
	AFL         []AFLEntry          `json:"afl,omitempty"`
	Records     []Record            `json:"records,omitempty"`
	Data        map[string]HexBytes `json:"data,omitempty"`
	Fields      *CardFields         `json:"fields,omitempty"`
	ParseErrors []string            `json:"parse_errors,omitempty"`
}

// CardFields are the values extracted from an application's records.
type CardFields struct {
	PAN         string `json:"pan,omitempty"`
	PANSource   string `json:"pan_source,omitempty"`
	PANValid    bool   `json:"pan_valid"`
	LuhnValid   bool   `json:"luhn_valid"`
	MaskedPAN   string `json:"masked_pan,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Expiry      string `json:"expiry,omitempty"`
	ExpiryRaw   string `json:"expiry_raw,omitempty"`
	ExpiryValid bool   `json:"expiry_valid"`
	ServiceCode string `json:"service_code,omitempty"`
	Cardholder  string `json:"cardholder,omitempty"`
}

// HasPAN reports whether a PAN was extracted, valid or not.
func (f *CardFields) HasPAN() bool {
	return f != nil && f.PAN != ""
}

// Redacted returns a copy without the plaintext PAN.
func (f *CardFields) Redacted() *CardFields {
	out := *f
	out.PAN = ""
	return &out
}
