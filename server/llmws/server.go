// Package llmws serves the custom LLM WebSocket that voice front ends such
// as Retell connect to. Each connection at /llm-websocket/{call_id} becomes
// one relay session.
package llmws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/AltairaLabs/callrelay/runtime/logger"
	metrics "github.com/AltairaLabs/callrelay/runtime/metrics/prometheus"
	"github.com/AltairaLabs/callrelay/runtime/protocol"
	"github.com/AltairaLabs/callrelay/runtime/session"
)

const (
	// defaultReadHeaderTimeout prevents Slowloris attacks.
	defaultReadHeaderTimeout = 10 * time.Second

	// defaultIdleTimeout applies to keep-alive HTTP connections only.
	defaultIdleTimeout = 120 * time.Second

	// defaultWriteWait is the deadline for each WebSocket write.
	defaultWriteWait = 10 * time.Second

	// defaultPingInterval is how often the server pings the peer.
	defaultPingInterval = 30 * time.Second

	// defaultCloseGrace bounds writing the close frame.
	defaultCloseGrace = 5 * time.Second

	// defaultReadLimit caps a single inbound message (1 MB); transcripts grow with the call.
	defaultReadLimit int64 = 1 << 20

	// RoutePattern is the WebSocket route.
	RoutePattern = "/llm-websocket/{call_id}"
)

// Opener creates the session for a new connection. The sink writes to the
// connection.
type Opener func(ctx context.Context, callID string, sink session.FrameSink) (*session.Session, error)

// Option configures a [Server].
type Option func(*Server)

// WithAddr sets the listen address for ListenAndServe.
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithWriteWait sets the per-write deadline. Default: 10s.
func WithWriteWait(d time.Duration) Option {
	return func(s *Server) { s.connCfg.writeWait = d }
}

// WithPingInterval sets the heartbeat interval. The connection is dropped
// when no message or pong arrives within two intervals. Zero disables
// heartbeats. Default: 30s.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) { s.pingInterval = d }
}

// WithReadLimit sets the maximum inbound message size. Default: 1 MB.
func WithReadLimit(n int64) Option {
	return func(s *Server) { s.connCfg.readLimit = n }
}

// WithCheckOrigin sets the upgrade origin check. By default every origin is accepted.
func WithCheckOrigin(f func(r *http.Request) bool) Option {
	return func(s *Server) { s.upgrader.CheckOrigin = f }
}

// AllowOrigins returns an origin check accepting the listed origins, compared
// case-insensitively. Requests without an Origin header come from server-side
// clients and are always accepted; "*" accepts everything.
func AllowOrigins(origins ...string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range origins {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Server accepts voice front end connections.
type Server struct {
	opener       Opener
	addr         string
	upgrader     websocket.Upgrader
	connCfg      connConfig
	pingInterval time.Duration

	httpSrv   *http.Server
	httpSrvMu sync.Mutex

	connsMu  sync.Mutex
	conns    map[*conn]struct{}
	draining bool
	handlers sync.WaitGroup
}

// NewServer creates a server that opens sessions with opener.
func NewServer(opener Opener, opts ...Option) *Server {
	s := &Server{
		opener: opener,
		addr:   ":8000",
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		connCfg: connConfig{
			writeWait:  defaultWriteWait,
			closeGrace: defaultCloseGrace,
			readLimit:  defaultReadLimit,
		},
		pingInterval: defaultPingInterval,
		conns:        make(map[*conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.connCfg.pongWait = 2 * s.pingInterval
	return s
}

// Handler returns the HTTP handler serving the WebSocket route and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+RoutePattern, s.handleLLMWebSocket)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return otelhttp.NewHandler(mux, "callrelay-llmws")
}

// ListenAndServe starts the HTTP server on the configured address.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve starts the HTTP server on the given listener. It returns nil after Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}

	s.httpSrvMu.Lock()
	s.httpSrv = srv
	s.httpSrvMu.Unlock()

	s.connsMu.Lock()
	draining := s.draining
	s.connsMu.Unlock()
	if draining {
		_ = ln.Close()
		return nil
	}

	logger.Info("LLM WebSocket server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, closes open sockets with "going
// away", and waits for their sessions to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.connsMu.Lock()
	s.draining = true
	open := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		open = append(open, c)
	}
	s.connsMu.Unlock()

	s.httpSrvMu.Lock()
	srv := s.httpSrv
	s.httpSrvMu.Unlock()

	var firstErr error
	if srv != nil {
		firstErr = srv.Shutdown(ctx)
	}

	for _, c := range open {
		_ = c.Close(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if firstErr == nil {
			firstErr = fmt.Errorf("waiting for sessions: %w", ctx.Err())
		}
	}
	return firstErr
}

// ActiveConnections returns the number of open WebSocket connections.
func (s *Server) ActiveConnections() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

func (s *Server) track(c *conn) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if s.draining {
		return false
	}
	s.conns[c] = struct{}{}
	s.handlers.Add(1)
	return true
}

func (s *Server) untrack(c *conn) {
	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()
	s.handlers.Done()
}

func (s *Server) handleLLMWebSocket(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("call_id")
	ctx := logger.WithCallID(r.Context(), callID)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logger.WarnContext(ctx, "WebSocket upgrade failed", "error", err)
		return
	}

	c := newConn(ws, &s.connCfg)
	if !s.track(c) {
		_ = c.Close(websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer s.untrack(c)

	sess, err := s.opener(ctx, callID, c)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to open session", "error", err)
		_ = c.Close(websocket.CloseInternalServerErr, "session unavailable")
		return
	}
	ctx = logger.WithSessionID(ctx, sess.ID())

	defer func() {
		if err := sess.OnClose(); err != nil {
			logger.WarnContext(ctx, "Session close failed", "error", err)
		}
		_ = c.Close(websocket.CloseNormalClosure, "")
	}()

	if err := sess.OnConnect(ctx); err != nil {
		logger.WarnContext(ctx, "Session connect failed", "error", err)
		return
	}

	go c.heartbeat(s.pingInterval)

	s.readLoop(ctx, c, sess)
}

// readLoop dispatches inbound events until the socket fails or closes.
func (s *Server) readLoop(ctx context.Context, c *conn, sess *session.Session) {
	for {
		data, err := c.read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !c.isClosed() {
				logger.WarnContext(ctx, "WebSocket read failed", "error", err)
			} else {
				logger.DebugContext(ctx, "WebSocket closed", "error", err)
			}
			return
		}

		evt, err := protocol.Decode(data)
		if err != nil {
			metrics.RecordInboundEvent(protocol.InteractionTypeOf(data), "rejected")
			logger.WarnContext(ctx, "Rejected inbound event", "error", err)
			continue
		}
		metrics.RecordInboundEvent(string(evt.InteractionType), "accepted")

		if err := sess.HandleEvent(evt); err != nil {
			logger.WarnContext(ctx, "Failed to handle inbound event",
				"interaction_type", string(evt.InteractionType), "error", err)
		}
	}
}
