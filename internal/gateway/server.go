// Package gateway is the WebSocket/HTTP front door: it upgrades client
// connections, authenticates and rate-limits them, and feeds chat
// frames into the intake pipeline.
package gateway

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/conductorhq/conductor/internal/channel"
	"github.com/conductorhq/conductor/internal/config"
	"github.com/conductorhq/conductor/internal/intake"
	"github.com/conductorhq/conductor/internal/observability"
	"github.com/conductorhq/conductor/pkg/protocol"
)

// Server is the gateway server handling WebSocket and HTTP connections.
// It implements channel.Sender: the channel manager addresses
// connections by id, and the server maps those onto live clients.
type Server struct {
	cfg      *config.Config
	channels *channel.Manager
	pipeline *intake.Pipeline
	limiter  *RateLimiter

	upgrader websocket.Upgrader
	clients  clientTable

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a gateway server. The channel manager must be
// constructed with this server as its sender.
func NewServer(cfg *config.Config, channels *channel.Manager, pipeline *intake.Pipeline) *Server {
	s := &Server{
		cfg:      cfg,
		channels: channels,
		pipeline: pipeline,
		limiter:  NewRateLimiter(cfg.GatewaySnapshot().RateLimitRPM, 5),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.clients.m = make(map[string]*Client)
	return s
}

// Deliver implements channel.Sender.
func (s *Server) Deliver(connectionID string, msg protocol.ChannelMessage) error {
	c, ok := s.clients.get(connectionID)
	if !ok {
		return fmt.Errorf("no client for connection %s", connectionID)
	}
	return c.Enqueue(msg)
}

// checkOrigin validates the WebSocket origin against the whitelist.
// No configured origins means allow all; an empty Origin header
// (non-browser clients) is always allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.GatewaySnapshot().AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("gateway.origin_rejected", "origin", origin)
	return false
}

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", observability.MetricsHandler())
	s.mux = mux
	return mux
}

// Start listens until ctx is cancelled, then shuts down gracefully,
// broadcasting a shutdown notice to connected clients first.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()

	gw := s.cfg.GatewaySnapshot()
	addr := fmt.Sprintf("%s:%d", gw.Host, gw.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	slog.Info("gateway.starting", "addr", addr)

	go func() {
		<-ctx.Done()
		s.channels.Broadcast(protocol.NewMessage("", protocol.EventShutdown, "gateway shutting down"))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// handleWebSocket authenticates, upgrades, and runs the connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("gateway.upgrade_failed", "error", err)
		return
	}

	client := NewClient(conn, s)
	client.userID = r.URL.Query().Get("user_id")

	s.clients.put(client)
	s.channels.RegisterConnection(client.id, client.userID)
	defer func() {
		s.channels.UnregisterConnection(client.id)
		s.clients.remove(client.id)
		s.limiter.Forget(client.id)
		client.Close()
	}()

	client.Run(r.Context())
}

// authorized checks the bearer token when one is configured. The token
// may arrive as an Authorization header or a "token" query parameter
// (browser WebSocket clients cannot set headers).
func (s *Server) authorized(r *http.Request) bool {
	want := s.cfg.GatewaySnapshot().Token
	if want == "" {
		return true
	}
	got := r.URL.Query().Get("token")
	if h := r.Header.Get("Authorization"); len(h) > len("Bearer ") && h[:len("Bearer ")] == "Bearer " {
		got = h[len("Bearer "):]
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","connections":%d}`, s.clients.len())
}

// StartTestServer serves on a random local port and returns the actual
// address plus a blocking start function. Used by integration tests.
func StartTestServer(ctx context.Context, s *Server) (addr string, start func()) {
	mux := s.BuildMux()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic("listen: " + err.Error())
	}
	s.httpServer = &http.Server{Handler: mux}
	addr = ln.Addr().String()

	start = func() {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = s.httpServer.Shutdown(shutdownCtx)
		}()
		_ = s.httpServer.Serve(ln)
	}
	return addr, start
}
