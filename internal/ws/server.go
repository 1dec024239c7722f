package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chat-relay/relay/internal/config"
	"github.com/chat-relay/relay/internal/relay"
	"github.com/chat-relay/relay/internal/session"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// Server is the WebSocket transport in front of a relay.Handler.
type Server struct {
	cfg            *config.Config
	handler        *relay.Handler
	registry       *session.Registry
	frontend       http.Handler
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	started        time.Time
	active         atomic.Int64
	stats          statsFunc
	log            *slog.Logger
}

func NewServer(cfg *config.Config, handler *relay.Handler, frontend http.Handler, log *slog.Logger) *Server {
	s := &Server{
		cfg:            cfg,
		handler:        handler,
		registry:       handler.Registry(),
		frontend:       frontend,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		started:        time.Now(),
		stats:          processStats,
		log:            log,
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/api/users", securityHeaders(http.HandlerFunc(s.handleUsers)))
	mux.Handle("/api/health", securityHeaders(http.HandlerFunc(s.handleHealth)))

	if s.frontend != nil {
		s.log.Info("serving embedded frontend")
		mux.Handle("/", securityHeaders(s.frontend))
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.reserve() {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.release()
		s.log.Warn("ws upgrade error", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := newClient(conn, r.RemoteAddr, s.cfg.Relay, s.log)
	go c.writePump()

	if err := s.handler.Connect(c); err != nil {
		s.log.Error("ws connect", "remote", r.RemoteAddr, "err", err)
		c.close()
		s.release()
		return
	}
	s.log.Debug("ws client connected", "remote", r.RemoteAddr)

	go func() {
		defer func() {
			s.handler.Disconnect(c)
			c.close()
			s.release()
		}()
		err := c.readPump(func(data []byte) {
			s.handler.Receive(c, data)
		})
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			s.log.Debug("ws read error", "remote", r.RemoteAddr, "err", err)
		}
	}()
}

// reserve claims a connection slot before the upgrade, so concurrent
// upgrades cannot overshoot server.max_connections. Zero means no limit.
func (s *Server) reserve() bool {
	n := s.active.Add(1)
	if limit := int64(s.cfg.Server.MaxConnections); limit > 0 && n > limit {
		s.active.Add(-1)
		return false
	}
	return true
}

func (s *Server) release() {
	s.active.Add(-1)
}

type userView struct {
	ID          string    `json:"id"`
	Nickname    string    `json:"nickname"`
	ConnectedAt time.Time `json:"connectedAt"`
}

type usersResponse struct {
	Users     []userView `json:"users"`
	Anonymous int        `json:"anonymous"`
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := s.registry.Sessions()
	named := lo.Filter(sessions, func(st session.Session, _ int) bool {
		return st.HasName()
	})
	resp := usersResponse{
		Users: lo.Map(named, func(st session.Session, _ int) userView {
			return userView{ID: st.ID, Nickname: st.DisplayName, ConnectedAt: st.ConnectedAt}
		}),
		Anonymous: len(sessions) - len(named),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := healthResponse{
		Status:      "ok",
		Connections: s.registry.Count(),
		Named:       s.registry.NamedCount(),
		Uptime:      time.Since(s.started).Round(time.Second).String(),
	}
	if st, err := s.stats(); err != nil {
		s.log.Debug("process stats unavailable", "err", err)
	} else {
		resp.Process = st
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}
	if host == r.Host {
		return true
	}

	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'; connect-src 'self' ws: wss:")
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves mux until ctx is cancelled, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, host string, port int, mux http.Handler, log *slog.Logger) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	log.Info("server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
