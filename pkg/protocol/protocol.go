// Package protocol defines the NoriChat wire protocol: JSON envelopes
// exchanged as WebSocket text frames. Every envelope is an object with a
// string "op" discriminator and op-specific fields.
package protocol

import (
	"encoding/json"
	"errors"
)

// Client → server opcodes.
const (
	OpAuth          = "AUTH"
	OpChannelJoin   = "CHANNEL_JOIN"
	OpChannelLeave  = "CHANNEL_LEAVE"
	OpMessageSend   = "MESSAGE_SEND"
	OpMessageEdit   = "MESSAGE_EDIT"
	OpMessageDelete = "MESSAGE_DELETE"
	OpVoiceJoin     = "VOICE_JOIN"
	OpVoiceLeave    = "VOICE_LEAVE"
	OpVoiceData     = "VOICE_DATA"
)

// Server → client opcodes.
const (
	OpAuthOK         = "AUTH_OK"
	OpAuthFail       = "AUTH_FAIL"
	OpMessageNew     = "MESSAGE_NEW"
	OpMessageEdited  = "MESSAGE_EDITED"
	OpMessageDeleted = "MESSAGE_DELETED"
	OpUserOnline     = "USER_ONLINE"
	OpUserOffline    = "USER_OFFLINE"
	OpVoiceJoinOK    = "VOICE_JOIN_OK"
	OpVoiceJoined    = "VOICE_JOINED"
	OpVoiceLeft      = "VOICE_LEFT"
	OpError          = "ERROR"
)

// Subprotocol is advertised in the WebSocket upgrade handshake.
const Subprotocol = "norichat"

// Payload ceilings.
const (
	// MaxContentBytes is the ceiling on message content; longer content is
	// truncated, not rejected.
	MaxContentBytes = 4000
	// MaxFrameBytes caps a single inbound logical message. Exceeding it
	// closes the connection.
	MaxFrameBytes = 64 * 1024
	// MaxQueueBytes caps the cumulative pending payload on a session's
	// outbound queue. Exceeding it closes the connection.
	MaxQueueBytes = 64 * 1024
)

// Voice frame parameters. The server relays frames opaquely; these document
// the client framing: 20 ms of little-endian signed 16-bit PCM at 16 kHz mono.
const (
	VoiceSampleRate   = 16000
	VoiceFrameSamples = 320
	VoiceFrameBytes   = 640
)

// ErrMalformedJSON indicates the inbound frame was not a valid JSON envelope.
var ErrMalformedJSON = errors.New("malformed JSON")

// Command is a decoded inbound envelope. Fields absent in the JSON decode to
// zero values (integer 0, empty string).
type Command struct {
	Op        string `json:"op"`
	Token     string `json:"token"`
	ChannelID int64  `json:"channel_id"`
	MessageID int64  `json:"message_id"`
	Content   string `json:"content"`
	Data      string `json:"data"`
}

var clientOps = map[string]bool{
	OpAuth:          true,
	OpChannelJoin:   true,
	OpChannelLeave:  true,
	OpMessageSend:   true,
	OpMessageEdit:   true,
	OpMessageDelete: true,
	OpVoiceJoin:     true,
	OpVoiceLeave:    true,
	OpVoiceData:     true,
}

// KnownOp reports whether op names a client → server command.
func KnownOp(op string) bool {
	return clientOps[op]
}

// DecodeCommand parses one complete inbound frame. Any parse or field-type
// failure is reported as ErrMalformedJSON; the caller keeps the connection
// open and replies with an ERROR envelope.
func DecodeCommand(data []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, ErrMalformedJSON
	}
	return &cmd, nil
}

// TruncateContent cuts content at the MaxContentBytes byte boundary.
func TruncateContent(content string) string {
	if len(content) > MaxContentBytes {
		return content[:MaxContentBytes]
	}
	return content
}

// UserRef identifies a user in presence and participant lists.
type UserRef struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// AuthOK acknowledges a successful AUTH. Online lists every other currently
// authenticated session.
type AuthOK struct {
	Op       string    `json:"op"`
	UserID   int64     `json:"user_id"`
	Username string    `json:"username"`
	Online   []UserRef `json:"online"`
}

// ErrorEvent reports a failure under the given op (ERROR or AUTH_FAIL). The
// connection stays open.
type ErrorEvent struct {
	Op    string `json:"op"`
	Error string `json:"error"`
}

// MessageNew fans out a freshly stored message to channel subscribers,
// including the sender.
type MessageNew struct {
	Op        string `json:"op"`
	ID        int64  `json:"id"`
	ChannelID int64  `json:"channel_id"`
	AuthorID  int64  `json:"author_id"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	TS        int64  `json:"ts"`
}

// MessageEdited announces an accepted edit to subscribers of the original
// channel.
type MessageEdited struct {
	Op        string `json:"op"`
	MessageID int64  `json:"message_id"`
	ChannelID int64  `json:"channel_id"`
	Content   string `json:"content"`
}

// MessageDeleted announces an accepted delete.
type MessageDeleted struct {
	Op        string `json:"op"`
	MessageID int64  `json:"message_id"`
	ChannelID int64  `json:"channel_id"`
}

// UserOnline is broadcast to other authed sessions when a session
// authenticates.
type UserOnline struct {
	Op       string `json:"op"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// UserOffline is broadcast after an authed session is removed from the
// registry.
type UserOffline struct {
	Op     string `json:"op"`
	UserID int64  `json:"user_id"`
}

// VoiceJoinOK acknowledges a voice join with the channel's current
// participant list.
type VoiceJoinOK struct {
	Op           string    `json:"op"`
	ChannelID    int64     `json:"channel_id"`
	Participants []UserRef `json:"participants"`
}

// VoiceJoined announces a new participant to sessions already in the channel.
type VoiceJoined struct {
	Op        string `json:"op"`
	ChannelID int64  `json:"channel_id"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
}

// VoiceLeft announces a departed participant to the remaining ones.
type VoiceLeft struct {
	Op        string `json:"op"`
	ChannelID int64  `json:"channel_id"`
	UserID    int64  `json:"user_id"`
}

// Encode serializes an outbound event to a JSON text frame.
func Encode(event any) ([]byte, error) {
	return json.Marshal(event)
}
