package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/accessterm/cardid-go/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func session(name string, atr []byte, aids ...[]byte) *types.CardSession {
	s := types.NewCardSession("reader", atr, now)
	s.Name = name
	for _, aid := range aids {
		s.Applications = append(s.Applications, &types.Application{AID: aid, Source: "candidate"})
	}
	return s
}

func TestWrite(t *testing.T) {
	s := session("visa", []byte{0x3B, 0x80}, []byte{0xA0, 0x00, 0x00, 0x00, 0x03, 0x10, 0x10})
	s.Applications[0].Brand = "visa"
	s.Fields = &types.CardFields{PAN: "4761739400046016", MaskedPAN: "****-****-****-6016", Expiry: "01/2029"}
	s.Exchanges = append(s.Exchanges, types.Exchange{Elapsed: 20 * time.Millisecond}, types.Exchange{Elapsed: 40 * time.Millisecond})
	s.Classify(types.Classification{Kind: types.ClassEMV, Label: "Visa Credit/Debit"}, now)

	aborted := session("", nil)
	aborted.Abort("card removed", now)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "run-1", []*types.CardSession{s, aborted}, now))

	out := buf.String()
	assert.Contains(t, out, "Run: run-1")
	assert.Contains(t, out, "Card: visa")
	assert.Contains(t, out, "visa: A0000000031010 (candidate)")
	assert.Contains(t, out, "PAN: ****-****-****-6016")
	assert.NotContains(t, out, "4761739400046016")
	assert.Contains(t, out, "Total time: 60ms")
	assert.Contains(t, out, "Average: 30ms")
	assert.Contains(t, out, "Card: unnamed")
	assert.Contains(t, out, "Aborted: card removed")
}

func TestCompare(t *testing.T) {
	visa := []byte{0xA0, 0x00, 0x00, 0x00, 0x03, 0x10, 0x10}
	mc := []byte{0xA0, 0x00, 0x00, 0x00, 0x04, 0x10, 0x10}
	maestro := []byte{0xA0, 0x00, 0x00, 0x00, 0x04, 0x30, 0x60}

	var buf bytes.Buffer
	require.NoError(t, Compare(&buf, session("a", []byte{0x3B}, visa, mc), session("b", []byte{0x3B}, mc, maestro)))

	out := buf.String()
	assert.Contains(t, out, "ATR identical: 3B")
	assert.Contains(t, out, "Only in card 1:\n  * A0000000031010")
	assert.Contains(t, out, "Only in card 2:\n  * A0000000043060")
	assert.Contains(t, out, "Common AIDs:\n  * A0000000041010")
}
