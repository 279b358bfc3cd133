package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

// TestCommandRoundTrip tests that any command encoded as a JSON envelope
// decodes back to the same fields.
func TestCommandRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		original := Command{
			Op:        rapid.SampledFrom([]string{OpAuth, OpChannelJoin, OpMessageSend, OpMessageEdit, OpVoiceData}).Draw(t, "op"),
			Token:     rapid.String().Draw(t, "token"),
			ChannelID: rapid.Int64().Draw(t, "channelID"),
			MessageID: rapid.Int64().Draw(t, "messageID"),
			Content:   rapid.String().Draw(t, "content"),
			Data:      rapid.String().Draw(t, "data"),
		}

		raw, err := json.Marshal(original)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}

		decoded, err := DecodeCommand(raw)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if *decoded != original {
			t.Fatalf("round-trip mismatch: got %+v, want %+v", decoded, original)
		}
	})
}

// TestTruncateContentBound tests the content ceiling for arbitrary input.
func TestTruncateContentBound(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		content := rapid.StringN(0, 2*MaxContentBytes, -1).Draw(t, "content")
		got := TruncateContent(content)

		if len(got) > MaxContentBytes {
			t.Fatalf("truncated content still %d bytes", len(got))
		}
		if len(content) <= MaxContentBytes && got != content {
			t.Fatalf("content within the ceiling was altered")
		}
		if !strings.HasPrefix(content, got) {
			t.Fatalf("truncation is not a prefix")
		}
	})
}
