package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionClassifiesOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewCardSession("ACS ACR122U", []byte{0x3B, 0x8F}, now)
	assert.Equal(t, StateDetected, s.State)
	assert.NotEmpty(t, s.ID)

	s.Classify(Classification{Kind: ClassATR, Label: "ATR"}, now.Add(time.Second))
	s.Classify(Classification{Kind: ClassEMV, Label: "visa"}, now.Add(2*time.Second))
	s.Abort("card removed", now.Add(3*time.Second))

	assert.True(t, s.Classified())
	assert.Equal(t, ClassATR, s.Classification.Kind)
	assert.Equal(t, now.Add(time.Second), s.FinishedAt)
	assert.Empty(t, s.AbortReason)
}

func TestSessionAbortIsNeverClassified(t *testing.T) {
	now := time.Now()
	s := NewCardSession("reader", []byte{0x3B, 0x80}, now)
	s.State = StateEMVExtraction
	s.Fields = &CardFields{PAN: "4761739400046016"}
	s.Applications = append(s.Applications, &Application{
		AID:     HexBytes{0xA0, 0x00, 0x00, 0x00, 0x03, 0x10, 0x10},
		GPO:     HexBytes{0x80, 0x02, 0x00, 0x80},
		Records: []Record{{SFI: 1, Number: 1, Data: HexBytes{0x70, 0x00}}},
		Data:    map[string]HexBytes{"9F36": {0x00, 0x10}},
		Fields:  &CardFields{PAN: "4761739400046016"},
	})
	s.Exchanges = append(s.Exchanges, Exchange{Description: "read record"})

	s.Abort("card removed", now)
	s.Classify(Classification{Kind: ClassEMV}, now)

	assert.False(t, s.Classified())
	assert.Nil(t, s.Classification)
	assert.Equal(t, "card removed", s.AbortReason)

	assert.Nil(t, s.Fields)
	require.Len(t, s.Applications, 1)
	app := s.Applications[0]
	assert.NotEmpty(t, app.AID)
	assert.Nil(t, app.GPO)
	assert.Nil(t, app.Records)
	assert.Nil(t, app.Data)
	assert.Nil(t, app.Fields)
	assert.Len(t, s.Exchanges, 1)
	assert.Equal(t, HexBytes{0x3B, 0x80}, s.ATR)
}

func TestRedacted(t *testing.T) {
	// format 2 GPO answer with track 2 equivalent data
	gpo := HexBytes{0x77, 0x15, 0x82, 0x02, 0x00, 0x80, 0x57, 0x0F, 0x47, 0x61, 0x73, 0x94, 0x00, 0x04, 0x60, 0x16, 0xD2, 0x90, 0x11, 0x01, 0x00, 0x00, 0x0F}

	s := NewCardSession("reader", nil, time.Now())
	s.Fields = &CardFields{PAN: "4761739400046016", MaskedPAN: "****-****-****-6016"}
	s.Applications = append(s.Applications, &Application{
		AID:     HexBytes{0xA0, 0x00, 0x00, 0x00, 0x03, 0x10, 0x10},
		Fields:  &CardFields{PAN: "4761739400046016"},
		Records: []Record{{SFI: 1, Number: 1, Data: HexBytes{0x70, 0x00}}},
		GPO:     gpo,
		Data:    map[string]HexBytes{"9F36": {0x00, 0x10}},
	})
	s.Exchanges = append(s.Exchanges,
		Exchange{Description: "read record", Command: HexBytes{0x00, 0xB2, 0x01, 0x0C, 0x00}, Response: HexBytes{0x70, 0x00}},
		Exchange{Description: "select", Command: HexBytes{0x00, 0xA4, 0x04, 0x00}, Response: HexBytes{0x6F, 0x00}},
		Exchange{Description: "get response", Command: HexBytes{0x00, 0xC0, 0x00, 0x00, 0x17}, Response: gpo},
	)

	r := s.Redacted()
	assert.Empty(t, r.Fields.PAN)
	assert.Equal(t, "****-****-****-6016", r.Fields.MaskedPAN)
	assert.Empty(t, r.Applications[0].Fields.PAN)
	assert.Nil(t, r.Applications[0].Records)
	assert.Nil(t, r.Applications[0].GPO)
	assert.Nil(t, r.Applications[0].Data)
	assert.Nil(t, r.Exchanges[0].Response)
	assert.NotNil(t, r.Exchanges[1].Response)
	assert.Nil(t, r.Exchanges[2].Response)

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	assert.NotContains(t, strings.ToUpper(string(raw)), "4761739400046016")

	// the original is untouched
	assert.Equal(t, "4761739400046016", s.Fields.PAN)
	assert.Equal(t, "4761739400046016", s.Applications[0].Fields.PAN)
	assert.NotNil(t, s.Exchanges[0].Response)
	assert.NotNil(t, s.Applications[0].GPO)
}

func TestHexBytesJSON(t *testing.T) {
	raw, err := json.Marshal(struct {
		ATR HexBytes `json:"atr"`
	}{HexBytes{0x3B, 0x8F, 0x80}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"atr":"3B8F80"}`, string(raw))

	var out struct {
		ATR HexBytes `json:"atr"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, HexBytes{0x3B, 0x8F, 0x80}, out.ATR)
}
