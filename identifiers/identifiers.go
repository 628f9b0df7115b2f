package identifiers

import (
	"bytes"
	"encoding/hex"
	"strings"
)

// Brand names the payment scheme an application belongs to.
type Brand string

const (
	BrandUnknown    Brand = ""
	BrandVisa       Brand = "visa"
	BrandMastercard Brand = "mastercard"
	BrandMaestro    Brand = "maestro"
	BrandGirocard   Brand = "girocard"
	BrandPayPal     Brand = "paypal"
	BrandAmex       Brand = "amex"
	BrandJCB        Brand = "jcb"
	BrandUnionPay   Brand = "unionpay"
	BrandDiscover   Brand = "discover"
	BrandBancontact Brand = "bancontact"
	BrandInterac    Brand = "interac"
)

// ExpiryLayout selects how the two significant bytes of tag 5F24 are read.
type ExpiryLayout int

const (
	// ExpiryYYMM is the EMV layout: YY MM [DD].
	ExpiryYYMM ExpiryLayout = iota
	// ExpiryPlausible reads YYMM first and falls back to MMYY, keeping the
	// interpretation closest to the current date.
	ExpiryPlausible
)

var (
	// PSE is the contact payment system environment, "1PAY.SYS.DDF01".
	PSE = []byte("1PAY.SYS.DDF01")
	// PPSE is the proximity payment system environment, "2PAY.SYS.DDF01".
	PPSE = []byte("2PAY.SYS.DDF01")
)

// Candidate is a known application identifier probed by direct SELECT.
type Candidate struct {
	AID      []byte
	Brand    Brand
	Name     string
	Priority int
}

// Hex returns the AID in upper case hex.
func (c Candidate) Hex() string {
	return strings.ToUpper(hex.EncodeToString(c.AID))
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// candidates is kept in probing order. init sets Priority from the position.
var candidates = []Candidate{
	{mustHex("A0000000041010"), BrandMastercard, "Mastercard Credit/Debit", 0},
	{mustHex("A0000000031010"), BrandVisa, "Visa Credit/Debit", 0},
	{mustHex("A0000000043060"), BrandMaestro, "Maestro", 0},
	{mustHex("A0000000032010"), BrandVisa, "Visa Electron", 0},
	{mustHex("A0000000032020"), BrandVisa, "V PAY", 0},
	{mustHex("A0000003591010028001"), BrandGirocard, "girocard", 0},
	{mustHex("A0000001523010"), BrandGirocard, "Sparkassen-Finanzgruppe", 0},
	{mustHex("D27600002547410100"), BrandGirocard, "girocard ZKA", 0},
	{mustHex("A0000006510100"), BrandPayPal, "PayPal", 0},
	{mustHex("A0000000042203"), BrandPayPal, "PayPal Mastercard", 0},
	{mustHex("A0000000041011"), BrandMastercard, "Mastercard Credit", 0},
	{mustHex("A0000000041012"), BrandMastercard, "Mastercard (N26)", 0},
	{mustHex("A0000000042010"), BrandMaestro, "Maestro International", 0},
	{mustHex("A000000004306001"), BrandMaestro, "Maestro UK", 0},
	{mustHex("A0000000046000"), BrandMastercard, "Cirrus", 0},
	{mustHex("A0000000042202"), BrandMastercard, "Mastercard (Revolut)", 0},
	{mustHex("A0000000042204"), BrandMastercard, "Mastercard (Wise)", 0},
	{mustHex("A0000000031020"), BrandVisa, "Visa Credit", 0},
	{mustHex("A0000000031040"), BrandVisa, "Visa Debit", 0},
	{mustHex("A0000000033010"), BrandVisa, "Visa Interlink", 0},
	{mustHex("A0000000038010"), BrandVisa, "Visa Plus", 0},
	{mustHex("A0000000039010"), BrandVisa, "Visa Interlink", 0},
	{mustHex("A00000002501"), BrandAmex, "American Express", 0},
	{mustHex("A000000025010801"), BrandAmex, "American Express", 0},
	{mustHex("A0000000651010"), BrandJCB, "JCB", 0},
	{mustHex("A000000333010101"), BrandUnionPay, "UnionPay Debit", 0},
	{mustHex("A000000333010102"), BrandUnionPay, "UnionPay Credit", 0},
	{mustHex("A0000001524010"), BrandDiscover, "Discover", 0},
	{mustHex("A0000003241010"), BrandDiscover, "Discover ZIP", 0},
	{mustHex("A0000000048002"), BrandMastercard, "SecureCode Auth", 0},
	{mustHex("A0000001544442"), BrandBancontact, "Bancontact", 0},
	{mustHex("A0000002771010"), BrandInterac, "Interac", 0},
}

// rids maps registered application provider ids to brands, used for AIDs
// learned from a PSE directory that are not in the candidate table.
var rids = []struct {
	rid   []byte
	brand Brand
}{
	{mustHex("A000000003"), BrandVisa},
	{mustHex("A000000004"), BrandMastercard},
	{mustHex("A000000025"), BrandAmex},
	{mustHex("A000000065"), BrandJCB},
	{mustHex("A000000152"), BrandDiscover},
	{mustHex("A000000324"), BrandDiscover},
	{mustHex("A000000333"), BrandUnionPay},
	{mustHex("A000000359"), BrandGirocard},
	{mustHex("D276000025"), BrandGirocard},
	{mustHex("A000000651"), BrandPayPal},
	{mustHex("A000000154"), BrandBancontact},
	{mustHex("A000000277"), BrandInterac},
}

func init() {
	for i := range candidates {
		candidates[i].Priority = i
	}
}

// Candidates returns a copy of the candidate table in probing order.
func Candidates() []Candidate {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)

	return out
}

// Lookup returns the candidate entry for aid. AIDs that only share a known
// RID get a synthetic entry with that brand.
func Lookup(aid []byte) (Candidate, bool) {
	for _, c := range candidates {
		if bytes.Equal(c.AID, aid) {
			return c, true
		}
	}

	brand := BrandForAID(aid)
	if brand == BrandUnknown {
		return Candidate{AID: aid, Priority: len(candidates)}, false
	}

	return Candidate{AID: aid, Brand: brand, Name: string(brand), Priority: len(candidates)}, true
}

// BrandForAID returns the brand owning the RID prefix of aid. The PPSE and PSE
// names are directories and never map to a brand.
func BrandForAID(aid []byte) Brand {
	if IsDirectory(aid) {
		return BrandUnknown
	}

	for _, c := range candidates {
		if bytes.Equal(c.AID, aid) {
			return c.Brand
		}
	}

	for _, r := range rids {
		if bytes.HasPrefix(aid, r.rid) {
			return r.brand
		}
	}

	return BrandUnknown
}

// IsDirectory reports whether aid is the PSE or PPSE name.
func IsDirectory(aid []byte) bool {
	return bytes.Equal(aid, PSE) || bytes.Equal(aid, PPSE)
}

// ExpiryLayoutFor returns the expiry formatter matching the brand. Mastercard
// family and PayPal issuers were seen writing 5F24 in either order.
func ExpiryLayoutFor(b Brand) ExpiryLayout {
	switch b {
	case BrandMastercard, BrandMaestro, BrandPayPal:
		return ExpiryPlausible
	default:
		return ExpiryYYMM
	}
}
