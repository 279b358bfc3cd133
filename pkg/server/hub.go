package server

import (
	"log"

	"github.com/norichat/norichat/pkg/auth"
	"github.com/norichat/norichat/pkg/database"
	"github.com/norichat/norichat/pkg/protocol"
)

type eventKind int

const (
	evConnected eventKind = iota
	evFrame
	evClosed
)

// event is one unit of transport activity, funneled into the hub goroutine.
type event struct {
	kind eventKind
	sess *Session
	data []byte
}

// Hub owns the session registry. All registry reads and writes happen on the
// single goroutine running Run; connection handlers communicate with it
// exclusively through the events channel. Broadcasts iterate the registry
// while mutating outboxes, which is only safe under this ownership.
type Hub struct {
	db      *database.DB
	tokens  *auth.TokenManager
	metrics *Metrics

	events chan event
	quit   chan struct{}
	done   chan struct{}

	// Hub-goroutine state.
	sessions map[uint64]*Session
	nextID   uint64
	stopping bool
}

// NewHub creates a hub. Run must be started before connections are attached.
func NewHub(db *database.DB, tokens *auth.TokenManager, metrics *Metrics) *Hub {
	return &Hub{
		db:       db,
		tokens:   tokens,
		metrics:  metrics,
		events:   make(chan event, 256),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		sessions: make(map[uint64]*Session),
	}
}

// Run processes transport events until Stop is called and every session has
// been torn down.
func (h *Hub) Run() {
	defer close(h.done)

	quit := h.quit
	for {
		select {
		case ev := <-h.events:
			h.handleEvent(ev)
		case <-quit:
			quit = nil
			h.stopping = true
			for _, sess := range h.sessions {
				sess.close()
			}
		}

		if h.stopping && len(h.sessions) == 0 {
			return
		}
	}
}

// Stop asks the hub to close all sessions and blocks until the registry has
// drained.
func (h *Hub) Stop() {
	close(h.quit)
	<-h.done
}

// Attach hands a freshly upgraded connection to the hub.
func (h *Hub) Attach(sess *Session) {
	h.send(event{kind: evConnected, sess: sess})
}

// Dispatch hands one complete inbound frame to the hub.
func (h *Hub) Dispatch(sess *Session, data []byte) {
	h.send(event{kind: evFrame, sess: sess, data: data})
}

// Detach reports that a session's transport has closed.
func (h *Hub) Detach(sess *Session) {
	h.send(event{kind: evClosed, sess: sess})
}

// send enqueues an event unless the hub has already finished shutting down,
// so straggling transport callbacks can never block.
func (h *Hub) send(ev event) {
	select {
	case h.events <- ev:
	case <-h.done:
		ev.sess.close()
	}
}

func (h *Hub) handleEvent(ev event) {
	switch ev.kind {
	case evConnected:
		if h.stopping {
			ev.sess.close()
			return
		}
		h.nextID++
		ev.sess.ID = h.nextID
		h.sessions[ev.sess.ID] = ev.sess
		h.metrics.RecordSessionCreated(len(h.sessions))
		debugLog.Printf("session %d connected", ev.sess.ID)

	case evFrame:
		if _, ok := h.sessions[ev.sess.ID]; !ok {
			return
		}
		h.route(ev.sess, ev.data)

	case evClosed:
		h.removeSession(ev.sess)
	}
}

// removeSession drops the session from the registry and then emits presence
// updates. Removal happens first so USER_OFFLINE is never delivered to the
// departing session itself.
func (h *Hub) removeSession(sess *Session) {
	if _, ok := h.sessions[sess.ID]; !ok {
		return
	}
	delete(h.sessions, sess.ID)
	sess.close()
	h.metrics.RecordSessionDisconnected(len(h.sessions))
	debugLog.Printf("session %d disconnected", sess.ID)

	if !sess.Authed {
		return
	}

	for channelID := range sess.voiceChannels {
		h.broadcastVoice(channelID, h.encode(&protocol.VoiceLeft{
			Op:        protocol.OpVoiceLeft,
			ChannelID: channelID,
			UserID:    sess.UserID,
		}), nil)
	}

	offline := h.encode(&protocol.UserOffline{Op: protocol.OpUserOffline, UserID: sess.UserID})
	for _, other := range h.sessions {
		if other.Authed {
			h.enqueue(other, offline)
		}
	}
}

// enqueue appends a payload to one session's outbound queue. Overflow closes
// the session; removal arrives through its read side.
func (h *Hub) enqueue(sess *Session, payload []byte) {
	if payload == nil {
		return
	}
	if !sess.out.push(payload) {
		log.Printf("session %d outbound queue overflow, closing", sess.ID)
		sess.close()
	}
}

// broadcastText enqueues payload on every authed session subscribed to the
// text channel.
func (h *Hub) broadcastText(channelID int64, payload []byte) {
	fanout := 0
	for _, sess := range h.sessions {
		if !sess.Authed {
			continue
		}
		if _, ok := sess.subscribedChannels[channelID]; ok {
			h.enqueue(sess, payload)
			fanout++
		}
	}
	h.metrics.RecordBroadcast(fanout)
}

// broadcastVoice enqueues payload on every authed session in the voice
// channel, except exclude.
func (h *Hub) broadcastVoice(channelID int64, payload []byte, exclude *Session) {
	for _, sess := range h.sessions {
		if sess == exclude || !sess.Authed {
			continue
		}
		if _, ok := sess.voiceChannels[channelID]; ok {
			h.enqueue(sess, payload)
		}
	}
}

// broadcastAuthed enqueues payload on every authed session except exclude.
func (h *Hub) broadcastAuthed(payload []byte, exclude *Session) {
	for _, sess := range h.sessions {
		if sess == exclude || !sess.Authed {
			continue
		}
		h.enqueue(sess, payload)
	}
}

// forEachAuthed calls fn for every authed session. Used to assemble presence
// and voice-participant snapshots.
func (h *Hub) forEachAuthed(fn func(*Session)) {
	for _, sess := range h.sessions {
		if sess.Authed {
			fn(sess)
		}
	}
}

func (h *Hub) encode(event any) []byte {
	payload, err := protocol.Encode(event)
	if err != nil {
		log.Printf("failed to encode event: %v", err)
		return nil
	}
	return payload
}
