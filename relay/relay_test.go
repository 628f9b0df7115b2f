package relay

import (
	"testing"
	"time"

	"github.com/accessterm/cardid-go/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func session(c types.Classification) *types.CardSession {
	s := types.NewCardSession("", nil, time.Now())
	s.Classify(c, time.Now())
	return s
}

func TestParseAllowList(t *testing.T) {
	assert.Equal(t, AllowList{"emv", "visa", "04A1B2C3"}, ParseAllowList(" emv,visa ,, 04A1B2C3"))
	assert.Empty(t, ParseAllowList(""))
}

func TestAllows(t *testing.T) {
	allow := ParseAllowList("visa,DEADBEEF")

	assert.True(t, allow.Allows(session(types.Classification{Kind: types.ClassEMV, Brand: "visa"})))
	assert.True(t, allow.Allows(session(types.Classification{Kind: types.ClassUID, Identifier: "deadbeef"})))
	assert.False(t, allow.Allows(session(types.Classification{Kind: types.ClassATR, Identifier: "3B80"})))

	aborted := types.NewCardSession("", nil, time.Now())
	aborted.Abort("card removed", time.Now())
	assert.False(t, ParseAllowList("unknown,emv,atr,uid,aid").Allows(aborted))
}

func TestUnlock(t *testing.T) {
	r := &LogRelay{}
	ok, err := Unlock(r, AllowList{"uid"}, session(types.Classification{Kind: types.ClassUID}), DefaultPulse)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Unlock(r, AllowList{"uid"}, session(types.Classification{Kind: types.ClassATR}), DefaultPulse)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, r.Pulses())
}
