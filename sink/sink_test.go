package sink

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/accessterm/cardid-go/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classifiedSession() *types.CardSession {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	s := types.NewCardSession("reader", []byte{0x3B, 0x80}, now)
	s.Exchanges = append(s.Exchanges, types.Exchange{
		Description: "read record sfi 2 record 1",
		Command:     []byte{0x00, 0xB2, 0x01, 0x14, 0x00},
		Response:    []byte{0x5A, 0x08, 0x53, 0x72, 0x28, 0x86, 0x97, 0x11, 0x63, 0x66},
		Sw:          0x9000,
	})
	s.Fields = &types.CardFields{
		PAN:       "5372288697116366",
		PANValid:  true,
		LuhnValid: true,
		MaskedPAN: "****-****-****-6366",
	}
	s.Classify(types.Classification{Kind: types.ClassEMV, Label: "Mastercard", Identifier: "abc"}, now)

	return s
}

type recordingSink struct {
	sessions []*types.CardSession
	err      error
}

func (r *recordingSink) Record(_ context.Context, s *types.CardSession) error {
	r.sessions = append(r.sessions, s)
	return r.err
}

func TestMulti(t *testing.T) {
	failing := &recordingSink{err: errors.New("boom")}
	ok := &recordingSink{}

	err := Multi{failing, ok, LogSink{}}.Record(context.Background(), classifiedSession())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Len(t, failing.sessions, 1)
	assert.Len(t, ok.sessions, 1)
}

func TestFileSinkRedacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.json")
	f := NewFileSink(path, false)

	s := classifiedSession()
	require.NoError(t, f.Record(context.Background(), s))
	require.NoError(t, f.Record(context.Background(), s))

	sessions, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Empty(t, sessions[0].Fields.PAN)
	assert.Equal(t, "****-****-****-6366", sessions[0].Fields.MaskedPAN)
	assert.Empty(t, sessions[0].Exchanges[0].Response)
	assert.Equal(t, types.ClassEMV, sessions[0].Classification.Kind)

	// the recorded session itself is untouched
	assert.Equal(t, "5372288697116366", s.Fields.PAN)
	assert.Len(t, f.Sessions(), 2)
}

func TestFileSinkRevealPAN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.json")
	f := NewFileSink(path, true)
	require.NoError(t, f.Record(context.Background(), classifiedSession()))

	sessions, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "5372288697116366", sessions[0].Fields.PAN)
}

type fakePublisher struct {
	subject string
	data    []byte
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.subject = subject
	p.data = data
	return nil
}

func TestNATSSink(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNATSSink(pub, "")

	require.NoError(t, n.Record(context.Background(), classifiedSession()))
	assert.Equal(t, DefaultSubject, pub.subject)
	assert.False(t, strings.Contains(string(pub.data), "5372288697116366"))

	var s types.CardSession
	require.NoError(t, json.Unmarshal(pub.data, &s))
	assert.Equal(t, "abc", s.Classification.Identifier)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, n.Record(ctx, classifiedSession()))
}
