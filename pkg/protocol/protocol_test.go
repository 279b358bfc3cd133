package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCommand(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"op":"MESSAGE_SEND","channel_id":3,"content":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, OpMessageSend, cmd.Op)
	assert.Equal(t, int64(3), cmd.ChannelID)
	assert.Equal(t, "hi", cmd.Content)
}

func TestDecodeCommandDefaults(t *testing.T) {
	// Absent fields decode to zero values.
	cmd, err := DecodeCommand([]byte(`{"op":"CHANNEL_JOIN"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(0), cmd.ChannelID)
	assert.Equal(t, "", cmd.Content)
	assert.Equal(t, "", cmd.Token)
}

func TestDecodeCommandMalformed(t *testing.T) {
	cases := []string{
		`not json`,
		`{"op":`,
		`[1,2,3]`,
		`{"op":42}`,
		`{"op":"MESSAGE_SEND","channel_id":"three"}`,
	}
	for _, raw := range cases {
		_, err := DecodeCommand([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedJSON, "input %q", raw)
	}
}

func TestDecodeCommandMissingOp(t *testing.T) {
	// A valid object without op decodes; the router treats "" as unknown.
	cmd, err := DecodeCommand([]byte(`{"channel_id":1}`))
	require.NoError(t, err)
	assert.Equal(t, "", cmd.Op)
	assert.False(t, KnownOp(cmd.Op))
}

func TestKnownOp(t *testing.T) {
	for _, op := range []string{
		OpAuth, OpChannelJoin, OpChannelLeave, OpMessageSend,
		OpMessageEdit, OpMessageDelete, OpVoiceJoin, OpVoiceLeave, OpVoiceData,
	} {
		assert.True(t, KnownOp(op), op)
	}
	assert.False(t, KnownOp("AUTH_OK"), "server ops are not client commands")
	assert.False(t, KnownOp("NICK"))
}

func TestTruncateContent(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, TruncateContent(short))

	exact := strings.Repeat("x", MaxContentBytes)
	assert.Equal(t, exact, TruncateContent(exact))

	long := strings.Repeat("y", MaxContentBytes+100)
	got := TruncateContent(long)
	assert.Len(t, got, MaxContentBytes)
	assert.Equal(t, long[:MaxContentBytes], got)
}

func TestEncodeMessageNew(t *testing.T) {
	payload, err := Encode(&MessageNew{
		Op:        OpMessageNew,
		ID:        1,
		ChannelID: 1,
		AuthorID:  2,
		Author:    "alice",
		Content:   "hi",
		TS:        1700000000,
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "MESSAGE_NEW", decoded["op"])
	assert.Equal(t, float64(1), decoded["id"])
	assert.Equal(t, float64(2), decoded["author_id"])
	assert.Equal(t, "alice", decoded["author"])
}

func TestEncodeAuthOKOnlineList(t *testing.T) {
	payload, err := Encode(&AuthOK{
		Op:       OpAuthOK,
		UserID:   2,
		Username: "alice",
		Online:   []UserRef{{UserID: 3, Username: "bob"}},
	})
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"online":[{"user_id":3,"username":"bob"}]`)
}

func TestEncodeAuthOKEmptyOnline(t *testing.T) {
	payload, err := Encode(&AuthOK{Op: OpAuthOK, UserID: 2, Username: "alice", Online: []UserRef{}})
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"online":[]`)
}
