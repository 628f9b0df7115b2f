package emv

import (
	"encoding/hex"
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/accessterm/cardid-go/identifiers"
	"github.com/accessterm/cardid-go/tlv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hexMustDecode(str string) []byte {
	out, _ := hex.DecodeString(str)
	return out
}

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func TestDecodeBCD(t *testing.T) {
	digits, err := DecodeBCD(hexMustDecode("5372288697116366"))
	require.NoError(t, err)
	assert.Equal(t, "5372288697116366", digits)

	digits, err = DecodeBCD(hexMustDecode("541333008902001FFF"))
	require.NoError(t, err)
	assert.Equal(t, "541333008902001", digits)

	_, err = DecodeBCD(hexMustDecode("53A2"))
	assert.Equal(t, ErrInvalidDigits, err)

	_, err = DecodeBCD(hexMustDecode("FFFF"))
	assert.Equal(t, ErrInvalidDigits, err)
}

func TestDecodeDigitsASCII(t *testing.T) {
	digits, err := decodeDigits([]byte("4111111111111111"), maxPANLength)
	require.NoError(t, err)
	assert.Equal(t, "4111111111111111", digits)

	// short ascii looking values stay bcd
	digits, err = decodeDigits(hexMustDecode("3132"), maxPANLength)
	require.NoError(t, err)
	assert.Equal(t, "3132", digits)
}

func TestParsePAN(t *testing.T) {
	pan := ParsePAN(hexMustDecode("5372288697116366"))
	assert.Equal(t, "5372288697116366", pan.Digits)
	assert.True(t, pan.Valid)
	assert.True(t, pan.LuhnValid)

	// failing the checksum keeps the number
	pan = ParsePAN(hexMustDecode("4761739400046016"))
	assert.Equal(t, "4761739400046016", pan.Digits)
	assert.True(t, pan.Valid)
	assert.False(t, pan.LuhnValid)

	pan = ParsePAN([]byte("5413330089020011"))
	assert.Equal(t, "5413330089020011", pan.Digits)
	assert.True(t, pan.LuhnValid)

	pan = ParsePAN(hexMustDecode("4761AB"))
	assert.Equal(t, "4761AB", pan.Digits)
	assert.False(t, pan.Valid)
	assert.False(t, pan.LuhnValid)
}

func TestLuhnProperty(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		body := make([]byte, 15)
		for j := range body {
			body[j] = byte('0' + r.Intn(10))
		}

		number := string(body) + strconv.Itoa(checkDigit(string(body)))
		require.True(t, Luhn(number), number)

		// any single digit change is caught
		pos := r.Intn(len(number))
		altered := []byte(number)
		altered[pos] = byte('0' + (int(altered[pos]-'0')+1+r.Intn(9))%10)
		require.NotEqual(t, number, string(altered))
		assert.False(t, Luhn(string(altered)), "%s -> %s", number, altered)
	}
}

func checkDigit(body string) int {
	for d := 0; d < 10; d++ {
		if Luhn(body + strconv.Itoa(d)) {
			return d
		}
	}
	return -1
}

func TestLuhnKnownNumbers(t *testing.T) {
	assert.True(t, Luhn("4111111111111111"))
	assert.True(t, Luhn("5413330089020011"))
	assert.False(t, Luhn("4111111111111112"))
	assert.False(t, Luhn("41111111111A1111"))
	assert.False(t, Luhn("4"))
}

func TestParseTrack2(t *testing.T) {
	// 4761739400046016 D 2901 101 00000 F
	track, err := ParseTrack2(hexMustDecode("4761739400046016D290110100000F"))
	require.NoError(t, err)
	assert.Equal(t, "4761739400046016", track.PAN.Digits)
	assert.True(t, track.PAN.Valid)
	assert.False(t, track.PAN.LuhnValid)
	assert.Equal(t, "2901", track.Expiry)
	assert.Equal(t, "101", track.ServiceCode)
	assert.Equal(t, "00000", track.Discretionary)

	track, err = ParseTrack2(hexMustDecode("5372288697116366D28032010000000000000F"))
	require.NoError(t, err)
	assert.Equal(t, "5372288697116366", track.PAN.Digits)
	assert.Equal(t, "2803", track.Expiry)
	assert.Equal(t, "201", track.ServiceCode)

	track, err = ParseTrack2([]byte("4111111111111111=29121010000"))
	require.NoError(t, err)
	assert.Equal(t, "4111111111111111", track.PAN.Digits)
	assert.Equal(t, "2912", track.Expiry)

	_, err = ParseTrack2(hexMustDecode("47617394000460160000"))
	assert.Equal(t, ErrNoTrack2Separator, err)
}

func TestParseExpiry(t *testing.T) {
	e, err := ParseExpiry(hexMustDecode("290131"), identifiers.ExpiryYYMM, now)
	require.NoError(t, err)
	assert.Equal(t, "01/2029", e.String())

	_, err = ParseExpiry(hexMustDecode("1229"), identifiers.ExpiryYYMM, now)
	assert.Equal(t, ErrInvalidExpiry, err)

	// the plausible layout keeps the EMV order when both make sense
	e, err = ParseExpiry(hexMustDecode("2803"), identifiers.ExpiryPlausible, now)
	require.NoError(t, err)
	assert.Equal(t, "03/2028", e.String())
	assert.Equal(t, "YYMM", e.Layout)

	// and swaps when only MMYY gives a valid month
	e, err = ParseExpiry(hexMustDecode("0929"), identifiers.ExpiryPlausible, now)
	require.NoError(t, err)
	assert.Equal(t, "09/2029", e.String())
	assert.Equal(t, "MMYY", e.Layout)

	_, err = ParseExpiry(hexMustDecode("2A03"), identifiers.ExpiryYYMM, now)
	assert.Equal(t, ErrInvalidExpiry, err)

	_, err = ParseExpiry(hexMustDecode("99"), identifiers.ExpiryYYMM, now)
	assert.Equal(t, ErrInvalidExpiry, err)
}

func TestParseTrack2Expiry(t *testing.T) {
	e, err := ParseTrack2Expiry("2803")
	require.NoError(t, err)
	assert.Equal(t, "03/2028", e.String())

	_, err = ParseTrack2Expiry("2813")
	assert.Equal(t, ErrInvalidExpiry, err)
}

func TestParseCardholder(t *testing.T) {
	assert.Equal(t, "JOHN DOE", ParseCardholder([]byte("DOE/JOHN                  ")))
	assert.Equal(t, "MÜLLER", ParseCardholder([]byte{'M', 0xDC, 'L', 'L', 'E', 'R', '/'}))
	assert.Equal(t, "", ParseCardholder([]byte(" /")))
	assert.Equal(t, "CARDHOLDER", ParseCardholder([]byte("CARDHOLDER")))
	assert.Equal(t, "girocard", ParseLabel([]byte("girocard  ")))
}

func TestMaskPAN(t *testing.T) {
	assert.Equal(t, "****-****-****-6366", MaskPAN("5372288697116366"))
	assert.Equal(t, "****-****-***1-234", MaskPAN("123456789001234"))
	assert.Equal(t, "123", MaskPAN("123"))
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint("5372288697116366", []byte("terminal-key"))
	require.NoError(t, err)
	b, err := Fingerprint("5372288697116366", []byte("terminal-key"))
	require.NoError(t, err)
	c, err := Fingerprint("5372288697116366", []byte("other-key"))
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestParseGPO(t *testing.T) {
	aip, afl, err := ParseGPO(hexMustDecode("800E1980080101001001010118010200"))
	require.NoError(t, err)
	assert.Equal(t, hexMustDecode("1980"), aip)
	assert.Equal(t, hexMustDecode("080101001001010118010200"), afl)

	aip, afl, err = ParseGPO(hexMustDecode("770A82021980940408010100"))
	require.NoError(t, err)
	assert.Equal(t, hexMustDecode("1980"), aip)
	assert.Equal(t, hexMustDecode("08010100"), afl)

	_, _, err = ParseGPO(hexMustDecode("6F00"))
	assert.Equal(t, ErrUnknownGPOFormat, err)
}

func TestParseAFL(t *testing.T) {
	entries, err := ParseAFL(hexMustDecode("08010100" + "10010301" + "00010100" + "18020100"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint8(1), entries[0].SFI)
	assert.Equal(t, uint8(2), entries[1].SFI)
	assert.Equal(t, uint8(1), entries[1].First)
	assert.Equal(t, uint8(3), entries[1].Last)
	assert.Equal(t, uint8(1), entries[1].OfflineAuth)

	_, err = ParseAFL(hexMustDecode("080101"))
	assert.Equal(t, ErrBadAFL, err)
}

func TestExtractor(t *testing.T) {
	x := &Extractor{Key: []byte("k"), Now: func() time.Time { return now }}

	// 5F24 is truncated, the expiry must come from track 2
	nodes := tlv.Decode(hexMustDecode("57135372288697116366D28032010000000000000F5A0853722886971163665F24032803"))
	fields := x.Extract(nodes, identifiers.BrandMastercard)
	assert.Equal(t, "5372288697116366", fields.PAN)
	assert.Equal(t, "5A", fields.PANSource)
	assert.True(t, fields.PANValid)
	assert.True(t, fields.LuhnValid)
	assert.Equal(t, "****-****-****-6366", fields.MaskedPAN)
	assert.NotEmpty(t, fields.Fingerprint)
	assert.Equal(t, "03/2028", fields.Expiry)
	assert.Equal(t, "201", fields.ServiceCode)

	record := tlv.Encode([]*tlv.Node{
		tlv.NewConstructed(tlv.TagRecordTemplate,
			tlv.New(tlv.TagTrack2, hexMustDecode("4761739400046016D290110100000F")),
			tlv.New(tlv.TagCardholderName, []byte("DOE/JOHN")),
			tlv.New(tlv.TagExpiry, hexMustDecode("290131")),
		),
	})
	fields = x.Extract(tlv.Decode(record), identifiers.BrandVisa)
	assert.Equal(t, "4761739400046016", fields.PAN)
	assert.Equal(t, "57", fields.PANSource)
	assert.True(t, fields.PANValid)
	assert.False(t, fields.LuhnValid)
	assert.Equal(t, "01/2029", fields.Expiry)
	assert.Equal(t, "JOHN DOE", fields.Cardholder)

	fields = x.Extract(tlv.Decode(hexMustDecode("9F360200AA")), identifiers.BrandVisa)
	assert.False(t, fields.HasPAN())
}
