package server

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Session is the in-memory record for one live WebSocket connection. The
// identity and subscription fields are owned by the hub goroutine; only the
// outbox crosses goroutines.
type Session struct {
	ID   uint64
	Conn *websocket.Conn

	UserID   int64
	Username string
	Authed   bool

	subscribedChannels map[int64]struct{}
	voiceChannels      map[int64]struct{}

	out *outbox
}

func newSession(conn *websocket.Conn, maxQueueBytes int) *Session {
	return &Session{
		Conn:               conn,
		subscribedChannels: make(map[int64]struct{}),
		voiceChannels:      make(map[int64]struct{}),
		out:                newOutbox(maxQueueBytes),
	}
}

// close tears down the transport and wakes the write pump so it can exit.
func (s *Session) close() {
	s.out.close()
	s.Conn.Close()
}

// writePump drains the outbox onto the wire. Each wakeup sends queued
// payloads one at a time until the queue is empty; a write failure closes
// the connection, which surfaces as a closed event on the hub via the read
// side.
func (s *Session) writePump() {
	for range s.out.notify {
		for {
			payload, ok := s.out.pop()
			if !ok {
				break
			}
			if err := s.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.Conn.Close()
				return
			}
		}
	}
}

// outbox is the bounded per-session FIFO delivery queue. Enqueues happen on
// the hub goroutine; the session's write pump pops concurrently.
type outbox struct {
	mu       sync.Mutex
	queue    [][]byte
	pending  int
	maxBytes int
	closed   bool
	notify   chan struct{}
}

func newOutbox(maxBytes int) *outbox {
	return &outbox{
		maxBytes: maxBytes,
		notify:   make(chan struct{}, 1),
	}
}

// push appends a payload. It reports false when the cumulative pending
// payload would exceed the ceiling; the caller must close the session — a
// lagging peer cannot be buffered without bound.
func (o *outbox) push(payload []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return true
	}
	if o.pending+len(payload) > o.maxBytes {
		return false
	}
	o.queue = append(o.queue, payload)
	o.pending += len(payload)

	select {
	case o.notify <- struct{}{}:
	default:
	}
	return true
}

func (o *outbox) pop() ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.queue) == 0 {
		return nil, false
	}
	payload := o.queue[0]
	o.queue = o.queue[1:]
	o.pending -= len(payload)
	return payload, true
}

func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true
	close(o.notify)
}

// depth returns the number of queued payloads.
func (o *outbox) depth() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}
