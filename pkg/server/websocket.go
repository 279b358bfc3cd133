package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/norichat/norichat/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	Subprotocols:    []string{protocol.Subprotocol},
	CheckOrigin: func(r *http.Request) bool {
		// The HTTP API already allows any origin; the WebSocket endpoint
		// matches it.
		return true
	},
}

// HandleWebSocket upgrades the request and runs the connection's read loop.
// The gorilla reader reassembles continuation frames, so every returned
// message is one complete logical envelope; the read limit closes the
// connection when a message exceeds the inbound cap.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		debugLog.Printf("websocket upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(int64(s.config.Limits.MaxFrameBytes))

	sess := newSession(conn, s.config.Limits.MaxQueueBytes)
	s.hub.Attach(sess)
	go sess.writePump()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.hub.Detach(sess)
			return
		}
		s.hub.Dispatch(sess, data)
	}
}
