package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	wsWriteTimeout  = 5 * time.Second
)

// Server is the ambient HTTP surface: prometheus exposition, a liveness
// probe, and an optional websocket push of the beat summary. None of it
// is part of the chat command surface.
type Server struct {
	addr     string
	http     *http.Server
	listener net.Listener
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	closed  bool
}

// NewServer builds a Server listening on addr (e.g. ":9090"), serving
// /metrics, /healthz, and /ws/status against mux. jwtSecret, when
// non-empty, gates /ws/status behind an HS256 bearer token.
func NewServer(addr string, collector *Collector, jwtSecret string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		addr:    addr,
		logger:  logger.With(zap.String("component", "metrics_server")),
		clients: make(map[*websocket.Conn]struct{}),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws/status", requireJWT(jwtSecret, s.logger, s.handleWebsocket))

	s.http = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start listens and serves in a background goroutine; it returns once the
// listener is bound, mirroring the teacher's non-blocking Manager.Start.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metrics server is closed")
	}
	if s.listener != nil {
		return fmt.Errorf("metrics server already started")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.logger.Info("metrics server listening", zap.String("addr", s.addr))

	go func() {
		if err := s.http.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server exited", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown gracefully stops the server and drops every websocket client.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for c := range s.clients {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
	}
	s.clients = nil
	s.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	// The stream is push-only; block reading so a client disconnect (or
	// any inbound message, which is ignored) is detected promptly.
	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// BroadcastStatus pushes a beat summary to every connected websocket
// client concurrently, so one slow subscriber never delays delivery to
// the rest. Best-effort: a slow or gone client is dropped, never blocks
// the caller beyond wsWriteTimeout.
func (s *Server) BroadcastStatus(ctx context.Context, summary string) {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range conns {
		c := c
		g.Go(func() error {
			writeCtx, cancel := context.WithTimeout(gctx, wsWriteTimeout)
			defer cancel()
			if err := c.Write(writeCtx, websocket.MessageText, []byte(summary)); err != nil {
				s.mu.Lock()
				delete(s.clients, c)
				s.mu.Unlock()
			}
			return nil // a dropped client is not a broadcast failure
		})
	}
	_ = g.Wait()
}
