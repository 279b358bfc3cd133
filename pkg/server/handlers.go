package server

import (
	"errors"

	"github.com/norichat/norichat/pkg/database"
	"github.com/norichat/norichat/pkg/protocol"
)

// route dispatches one decoded inbound frame. AUTH is the only op accepted
// before authentication; every failure is reported on the session's own
// queue and never closes the connection.
func (h *Hub) route(sess *Session, data []byte) {
	cmd, err := protocol.DecodeCommand(data)
	if err != nil {
		h.sendError(sess, protocol.OpError, "malformed JSON")
		return
	}

	if cmd.Op == protocol.OpAuth {
		h.handleAuth(sess, cmd)
		return
	}
	if !sess.Authed {
		h.sendError(sess, protocol.OpAuthFail, "not authenticated")
		return
	}

	switch cmd.Op {
	case protocol.OpChannelJoin:
		h.handleChannelJoin(sess, cmd)
	case protocol.OpChannelLeave:
		h.handleChannelLeave(sess, cmd)
	case protocol.OpMessageSend:
		h.handleMessageSend(sess, cmd)
	case protocol.OpMessageEdit:
		h.handleMessageEdit(sess, cmd)
	case protocol.OpMessageDelete:
		h.handleMessageDelete(sess, cmd)
	case protocol.OpVoiceJoin:
		h.handleVoiceJoin(sess, cmd)
	case protocol.OpVoiceLeave:
		h.handleVoiceLeave(sess, cmd)
	case protocol.OpVoiceData:
		h.handleVoiceData(sess, cmd, data)
	default:
		h.sendError(sess, protocol.OpError, "unknown op")
	}
}

// sendError reports a failure to one session under the given op (ERROR or
// AUTH_FAIL).
func (h *Hub) sendError(sess *Session, op, msg string) {
	h.enqueue(sess, h.encode(&protocol.ErrorEvent{Op: op, Error: msg}))
}

func (h *Hub) handleAuth(sess *Session, cmd *protocol.Command) {
	if sess.Authed {
		h.sendError(sess, protocol.OpError, "already authenticated")
		return
	}

	userID, err := h.tokens.Validate(cmd.Token)
	if err != nil {
		h.sendError(sess, protocol.OpAuthFail, "invalid or expired token")
		return
	}
	user, err := h.db.FindUserByID(userID)
	if err != nil {
		h.sendError(sess, protocol.OpAuthFail, "user not found")
		return
	}

	sess.UserID = user.ID
	sess.Username = user.Username
	sess.Authed = true
	h.metrics.RecordSessionAuthed()

	online := []protocol.UserRef{}
	h.forEachAuthed(func(other *Session) {
		if other != sess {
			online = append(online, protocol.UserRef{UserID: other.UserID, Username: other.Username})
		}
	})
	h.enqueue(sess, h.encode(&protocol.AuthOK{
		Op:       protocol.OpAuthOK,
		UserID:   user.ID,
		Username: user.Username,
		Online:   online,
	}))

	h.broadcastAuthed(h.encode(&protocol.UserOnline{
		Op:       protocol.OpUserOnline,
		UserID:   user.ID,
		Username: user.Username,
	}), sess)
}

func (h *Hub) handleChannelJoin(sess *Session, cmd *protocol.Command) {
	if cmd.ChannelID <= 0 {
		h.sendError(sess, protocol.OpError, "invalid channel_id")
		return
	}
	sess.subscribedChannels[cmd.ChannelID] = struct{}{}
}

func (h *Hub) handleChannelLeave(sess *Session, cmd *protocol.Command) {
	delete(sess.subscribedChannels, cmd.ChannelID)
}

func (h *Hub) handleMessageSend(sess *Session, cmd *protocol.Command) {
	if cmd.ChannelID <= 0 || cmd.Content == "" {
		h.sendError(sess, protocol.OpError, "invalid channel_id or empty content")
		return
	}
	content := protocol.TruncateContent(cmd.Content)

	id, ts, err := h.db.AddMessage(cmd.ChannelID, sess.UserID, content)
	if err != nil {
		h.sendError(sess, protocol.OpError, "failed to save message")
		return
	}

	h.broadcastText(cmd.ChannelID, h.encode(&protocol.MessageNew{
		Op:        protocol.OpMessageNew,
		ID:        id,
		ChannelID: cmd.ChannelID,
		AuthorID:  sess.UserID,
		Author:    sess.Username,
		Content:   content,
		TS:        ts,
	}))
}

func (h *Hub) handleMessageEdit(sess *Session, cmd *protocol.Command) {
	if cmd.MessageID <= 0 || cmd.Content == "" {
		h.sendError(sess, protocol.OpError, "invalid message_id or empty content")
		return
	}
	content := protocol.TruncateContent(cmd.Content)

	orig, err := h.db.GetMessageByID(cmd.MessageID)
	if err != nil || orig.AuthorID != sess.UserID {
		if err != nil && !errors.Is(err, database.ErrMessageNotFound) {
			h.sendError(sess, protocol.OpError, "failed to load message")
			return
		}
		h.sendError(sess, protocol.OpError, "message not found or not yours")
		return
	}

	// The statement re-checks author and edit window atomically; the lookup
	// above is only a pre-check.
	ok, err := h.db.UpdateMessage(cmd.MessageID, sess.UserID, content)
	if err != nil {
		h.sendError(sess, protocol.OpError, "failed to update message")
		return
	}
	if !ok {
		h.sendError(sess, protocol.OpError, "cannot edit: too old or not found")
		return
	}

	h.broadcastText(orig.ChannelID, h.encode(&protocol.MessageEdited{
		Op:        protocol.OpMessageEdited,
		MessageID: cmd.MessageID,
		ChannelID: orig.ChannelID,
		Content:   content,
	}))
}

func (h *Hub) handleMessageDelete(sess *Session, cmd *protocol.Command) {
	if cmd.MessageID <= 0 {
		h.sendError(sess, protocol.OpError, "invalid message_id")
		return
	}

	orig, err := h.db.GetMessageByID(cmd.MessageID)
	if err != nil || orig.AuthorID != sess.UserID {
		if err != nil && !errors.Is(err, database.ErrMessageNotFound) {
			h.sendError(sess, protocol.OpError, "failed to load message")
			return
		}
		h.sendError(sess, protocol.OpError, "message not found or not yours")
		return
	}

	ok, err := h.db.DeleteMessage(cmd.MessageID, sess.UserID)
	if err != nil {
		h.sendError(sess, protocol.OpError, "failed to delete message")
		return
	}
	if !ok {
		h.sendError(sess, protocol.OpError, "cannot delete: too old or not found")
		return
	}

	h.broadcastText(orig.ChannelID, h.encode(&protocol.MessageDeleted{
		Op:        protocol.OpMessageDeleted,
		MessageID: cmd.MessageID,
		ChannelID: orig.ChannelID,
	}))
}

func (h *Hub) handleVoiceJoin(sess *Session, cmd *protocol.Command) {
	if cmd.ChannelID <= 0 {
		h.sendError(sess, protocol.OpError, "invalid channel_id")
		return
	}
	sess.voiceChannels[cmd.ChannelID] = struct{}{}

	// Participant list reflects the registry after the join, so it includes
	// the joiner.
	participants := []protocol.UserRef{}
	h.forEachAuthed(func(other *Session) {
		if _, ok := other.voiceChannels[cmd.ChannelID]; ok {
			participants = append(participants, protocol.UserRef{UserID: other.UserID, Username: other.Username})
		}
	})
	h.enqueue(sess, h.encode(&protocol.VoiceJoinOK{
		Op:           protocol.OpVoiceJoinOK,
		ChannelID:    cmd.ChannelID,
		Participants: participants,
	}))

	h.broadcastVoice(cmd.ChannelID, h.encode(&protocol.VoiceJoined{
		Op:        protocol.OpVoiceJoined,
		ChannelID: cmd.ChannelID,
		UserID:    sess.UserID,
		Username:  sess.Username,
	}), sess)
}

func (h *Hub) handleVoiceLeave(sess *Session, cmd *protocol.Command) {
	if _, ok := sess.voiceChannels[cmd.ChannelID]; !ok {
		return
	}
	delete(sess.voiceChannels, cmd.ChannelID)

	h.broadcastVoice(cmd.ChannelID, h.encode(&protocol.VoiceLeft{
		Op:        protocol.OpVoiceLeft,
		ChannelID: cmd.ChannelID,
		UserID:    sess.UserID,
	}), sess)
}

// handleVoiceData relays the inbound envelope byte-for-byte to every other
// participant. The server never decodes the PCM payload.
func (h *Hub) handleVoiceData(sess *Session, cmd *protocol.Command, raw []byte) {
	if cmd.ChannelID <= 0 {
		h.sendError(sess, protocol.OpError, "invalid channel_id")
		return
	}
	h.broadcastVoice(cmd.ChannelID, raw, sess)
	h.metrics.RecordVoiceFrame()
}
