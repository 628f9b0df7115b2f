package apdu

import (
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/accessterm/cardid-go/tlv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hexMustDecode(str string) []byte {
	out, _ := hex.DecodeString(str)
	return out
}

func TestCommandSerialize(t *testing.T) {
	withLe := func(c *Command) *Command {
		c.SetLe(0)
		return c
	}

	cases := []struct {
		name     string
		cmd      *Command
		expected string
	}{
		{"case 1", NewCommand(0x00, 0xA4, 0x04, 0x00, nil), "00A40400"},
		{"case 2", withLe(NewCommand(0x00, 0xB2, 0x01, 0x0C, nil)), "00B2010C00"},
		{"case 3", NewCommand(0x80, 0xA8, 0x00, 0x00, []byte{0x83, 0x00}), "80A80000028300"},
		{"case 4", withLe(NewCommand(0x00, 0xA4, 0x04, 0x00, hexMustDecode("A0000000031010"))), "00A4040007A000000003101000"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			raw, err := c.cmd.Serialize()
			require.NoError(t, err)
			assert.Equal(t, c.expected, fmt.Sprintf("%X", raw))
		})
	}
}

func TestCommandSerializeTooLong(t *testing.T) {
	_, err := NewCommand(0x00, 0xD6, 0x00, 0x00, make([]byte, 256)).Serialize()
	assert.Error(t, err)
}

func TestParseResponse(t *testing.T) {
	resp, err := ParseResponse(hexMustDecode("6F0A84080102030405060708" + "9000"))
	require.NoError(t, err)
	assert.True(t, resp.IsOK())
	assert.Equal(t, uint8(0x90), resp.Sw1)
	assert.Equal(t, uint8(0x00), resp.Sw2)
	assert.Equal(t, hexMustDecode("6F0A84080102030405060708"), resp.Data)

	resp, err = ParseResponse([]byte{0x6A, 0x82})
	require.NoError(t, err)
	assert.False(t, resp.IsOK())
	assert.Equal(t, SwFileNotFound, resp.Sw)
	assert.Empty(t, resp.Data)

	resp, err = ParseResponse([]byte{0x61, 0x10})
	require.NoError(t, err)
	assert.True(t, resp.HasMoreData())

	_, err = ParseResponse([]byte{0x90})
	assert.Equal(t, ErrBadRawResponse, err)
}

func TestErrBadResponse(t *testing.T) {
	err := NewErrBadResponse(0x6A82, "unexpected response")
	assert.Equal(t, "bad response 6A82: unexpected response", err.Error())
}

func TestFindTag(t *testing.T) {
	// FCI with a two byte tag and a long form length inside
	fci := hexMustDecode("6F1A840E325041592E5359532E4444463031A5088701015F2D02656E")

	name, err := FindTag(fci, tlv.TagFCI, tlv.TagDFName)
	require.NoError(t, err)
	assert.Equal(t, "2PAY.SYS.DDF01", string(name))

	lang, err := FindTag(fci, tlv.TagFCI, tlv.TagFCIProprietary, tlv.Tag(0x5F2D))
	require.NoError(t, err)
	assert.Equal(t, "en", string(lang))

	_, err = FindTag(fci, tlv.TagFCI, tlv.TagAFL)
	assert.Equal(t, &ErrTagNotFound{tlv.TagAFL}, err)

	long := append(hexMustDecode("70818C"), make([]byte, 0x8C)...)
	value, err := FindTag(long, tlv.TagRecordTemplate)
	require.NoError(t, err)
	assert.Len(t, value, 0x8C)
}

func TestFindTagN(t *testing.T) {
	data := hexMustDecode("A4090201010201020101FF")
	first, err := FindTagN(data, 0, tlv.Tag(0xA4), tlv.Tag(0x02))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, first)

	second, err := FindTagN(data, 1, tlv.Tag(0xA4), tlv.Tag(0x02))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02}, second)
}

func TestSw(t *testing.T) {
	assert.Equal(t, uint16(0x9000), Sw([]byte{0x01, 0x90, 0x00}))
	assert.Equal(t, uint16(0), Sw([]byte{0x90}))
}
