package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/davin/easel/internal/observability"
	"github.com/davin/easel/pkg/scene"
)

// Server accepts collaborator websocket connections, relays every inbound
// command envelope to all other collaborators, and hands it to the local
// subscriber. The sender never gets its own envelope back. The server itself
// is one bus participant, so the board daemon plugs it straight into a
// Synchronizer.
type Server struct {
	host     string
	port     int
	server   *http.Server
	upgrader websocket.Upgrader
	clients  *ClientRegistry
	logger   zerolog.Logger

	handlerMu sync.RWMutex
	handlers  []func(env scene.Envelope)

	shutdownMu     sync.RWMutex
	isShuttingDown bool
}

// Config holds server configuration.
type Config struct {
	Host   string
	Port   int
	Logger zerolog.Logger
}

// NewServer creates a hub server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}

	return &Server{
		host:    cfg.Host,
		port:    cfg.Port,
		clients: NewClientRegistry(),
		logger:  cfg.Logger.With().Str("component", "hub").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}, nil
}

// Handler returns the HTTP handler serving the hub endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Start begins listening for collaborator connections.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: s.Handler(),
	}

	s.logger.Info().Str("host", s.host).Int("port", s.port).Msg("Starting hub server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Hub server error")
		}
	}()

	return nil
}

// Stop gracefully stops the server and drops all collaborator connections.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down hub server")

	for _, client := range s.clients.GetAll() {
		client.Conn.Close()
	}

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Hub server stopped")
	return nil
}

// Publish broadcasts a locally originated envelope to every collaborator.
func (s *Server) Publish(env scene.Envelope) error {
	s.relay("", env)
	return nil
}

// Subscribe registers a handler for envelopes sent by collaborators.
func (s *Server) Subscribe(handler func(env scene.Envelope)) {
	s.handlerMu.Lock()
	s.handlers = append(s.handlers, handler)
	s.handlerMu.Unlock()
}

// Close implements the bus interface; it is an alias for Stop.
func (s *Server) Close() error {
	return s.Stop()
}

// ClientCount returns the number of connected collaborators.
func (s *Server) ClientCount() int {
	return s.clients.Count()
}

// handleWebSocket upgrades a collaborator connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	client := &Client{
		ID:          clientID,
		Conn:        conn,
		ConnectedAt: time.Now(),
		IPAddress:   r.RemoteAddr,
	}
	s.clients.Add(client)

	s.logger.Info().
		Str("clientId", clientID).
		Str("ip", r.RemoteAddr).
		Msg("Collaborator connected")

	go s.handleClient(client)
}

// handleClient reads envelopes from one collaborator until the connection
// drops.
func (s *Server) handleClient(client *Client) {
	defer func() {
		client.Conn.Close()
		s.clients.Remove(client.ID)
		s.logger.Info().Str("clientId", client.ID).Msg("Collaborator disconnected")
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Str("clientId", client.ID).Msg("Connection error")
			}
			return
		}

		var env scene.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			s.logger.Warn().Err(err).Str("clientId", client.ID).Msg("Dropping malformed envelope")
			continue
		}

		s.dispatch(env)
		s.relay(client.ID, env)
	}
}

// dispatch hands an inbound envelope to the local subscribers.
func (s *Server) dispatch(env scene.Envelope) {
	s.handlerMu.RLock()
	handlers := make([]func(env scene.Envelope), len(s.handlers))
	copy(handlers, s.handlers)
	s.handlerMu.RUnlock()

	for _, handler := range handlers {
		handler(env)
	}
}

// relay forwards an envelope to every collaborator except the origin.
// An empty origin means the envelope came from the daemon itself.
func (s *Server) relay(originID string, env scene.Envelope) {
	targets := s.clients.GetExcept(originID)

	delivered := 0
	failed := 0
	for _, client := range targets {
		if err := client.WriteJSON(env); err != nil {
			failed++
			s.logger.Warn().Err(err).Str("clientId", client.ID).Msg("Failed to deliver envelope")
			continue
		}
		delivered++
	}

	observability.RecordBroadcast(delivered, failed)
	s.logger.Debug().
		Str("type", env.Type).
		Int("delivered", delivered).
		Int("failed", failed).
		Msg("Relayed envelope")
}
