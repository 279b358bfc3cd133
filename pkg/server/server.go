// Package server implements the NoriChat real-time session and routing
// engine: the WebSocket hub, the JSON HTTP API, and their shared lifecycle.
package server

import (
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/norichat/norichat/pkg/auth"
	"github.com/norichat/norichat/pkg/database"
)

var debugLog = log.New(io.Discard, "[debug] ", log.Ldate|log.Ltime|log.Lmicroseconds)

// EnableDebugLogging turns on verbose session logging.
func EnableDebugLogging() {
	debugLog.SetOutput(log.Writer())
}

// Server owns the listener, the HTTP API, and the WebSocket hub.
type Server struct {
	config         Config
	db             *database.DB
	tokens         *auth.TokenManager
	hub            *Hub
	metrics        *Metrics
	registry       *prometheus.Registry
	passwordScheme auth.Scheme

	listener   net.Listener
	httpServer *http.Server
	startTime  time.Time
	stopOnce   sync.Once
}

// New opens the database and assembles a server from the configuration. A
// store failure here is fatal to the process.
func New(config Config) (*Server, error) {
	db, err := database.Open(config.Server.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	tokens := auth.NewTokenManager(config.Server.JWTSecret,
		time.Duration(config.Auth.TokenTTLHours)*time.Hour)

	scheme := auth.Scheme(config.Auth.PasswordScheme)
	if scheme != auth.SchemeSHA256 && scheme != auth.SchemeArgon2id {
		db.Close()
		return nil, fmt.Errorf("unknown password scheme %q", config.Auth.PasswordScheme)
	}

	s := &Server{
		config:         config,
		db:             db,
		tokens:         tokens,
		hub:            NewHub(db, tokens, metrics),
		metrics:        metrics,
		registry:       registry,
		passwordScheme: scheme,
		startTime:      time.Now(),
	}
	s.httpServer = &http.Server{Handler: s.router()}
	return s, nil
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/register", s.handleRegister).Methods("POST")
	r.HandleFunc("/api/login", s.handleLogin).Methods("POST")
	r.HandleFunc("/api/servers", s.handleGetServers).Methods("GET")
	r.HandleFunc("/api/channels", s.handleGetChannels).Methods("GET")
	r.HandleFunc("/api/channels", s.handleCreateChannel).Methods("POST")
	r.HandleFunc("/api/members", s.handleGetMembers).Methods("GET")
	r.HandleFunc("/api/messages", s.handleGetMessages).Methods("GET")
	r.HandleFunc("/ws", s.HandleWebSocket)
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return r
}

// Start begins listening and serving. It returns once the listener is bound.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	log.Printf("listening on %s", listener.Addr())

	go s.hub.Run()
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound listen address. Only valid after Start.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Stop shuts down gracefully: stop accepting, tear down live sessions, close
// the store. Safe to call more than once.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		// Close rather than Shutdown: WebSocket connections are hijacked and
		// would keep Shutdown waiting forever. The hub owns their teardown.
		if cerr := s.httpServer.Close(); cerr != nil {
			log.Printf("error closing http server: %v", cerr)
		}
		s.hub.Stop()
		err = s.db.Close()
	})
	return err
}
