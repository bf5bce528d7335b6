// Package server exposes the voice front end over HTTP: a read-only
// WebSocket event feed for remote observers, a JSON route listing, the
// health probes and the Prometheus scrape endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/echovault/internal/health"
	"github.com/MrWong99/echovault/internal/notify"
	"github.com/MrWong99/echovault/internal/observe"
)

const (
	defaultQueueSize = 64
	writeTimeout     = 5 * time.Second
	shutdownTimeout  = 5 * time.Second
)

// Source is the part of [notify.Channel] the event feed needs.
type Source interface {
	SubscribeAll(h notify.Handler) (unsubscribe func())
}

// Message is one event as sent to feed clients.
type Message struct {
	Event string            `json:"event"`
	Data  map[string]string `json:"data"`
}

// Option configures a Server.
type Option func(*Server)

// WithHealth mounts the probe endpoints.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h at /metrics, typically promhttp.Handler().
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithMetrics overrides the instrument set. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithTLS serves HTTPS with the given PEM files.
func WithTLS(certFile, keyFile string) Option {
	return func(s *Server) { s.certFile, s.keyFile = certFile, keyFile }
}

// WithOriginPatterns allows cross-origin feed clients whose Origin host
// matches one of patterns. By default only same-origin pages may connect.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = patterns }
}

// WithQueueSize sets how many events are buffered per client before new
// ones are dropped for that client. Default: 64.
func WithQueueSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// Server is the HTTP front end.
type Server struct {
	addr           string
	events         Source
	health         *health.Handler
	metricsHandler http.Handler
	metrics        *observe.Metrics
	certFile       string
	keyFile        string
	origins        []string
	queueSize      int
}

// New returns a Server listening on addr once [Server.Run] is called.
// Events published on events are forwarded to every feed client.
func New(addr string, events Source, opts ...Option) *Server {
	s := &Server{
		addr:      addr,
		events:    events,
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the routed and instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /events", s.handleEvents)
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	if s.health != nil {
		s.health.Register(mux)
	}
	return observe.Middleware(s.metrics)(mux)
}

// Run serves until ctx is done, then shuts down gracefully. Open feed
// connections are closed because every request context derives from ctx.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener, which it takes ownership of.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server: listening", "addr", ln.Addr().String(), "tls", s.certFile != "")
		if s.certFile != "" {
			errc <- srv.ServeTLS(ln, s.certFile, s.keyFile)
		} else {
			errc <- srv.Serve(ln)
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("server: stopped")
	return nil
}

// handleIndex lists the routes this server answers.
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	routes := []string{"/events"}
	if s.health != nil {
		routes = append(routes, "/healthz", "/readyz")
	}
	if s.metricsHandler != nil {
		routes = append(routes, "/metrics")
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"service": "echovault", "routes": routes})
}

// handleEvents streams every published event to one client. The feed is
// one-way: anything the client sends is discarded. A client that falls
// queueSize events behind loses the overflow rather than stalling the
// publisher.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		log.Warn("server: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	queue := make(chan Message, s.queueSize)
	unsubscribe := s.events.SubscribeAll(func(event notify.Event, payload notify.Payload) {
		data := map[string]string(payload)
		if data == nil {
			data = map[string]string{}
		}
		select {
		case queue <- Message{Event: string(event), Data: data}:
		default:
			log.Debug("server: event feed client too slow, dropping event", "event", event)
		}
	})
	defer unsubscribe()

	s.metrics.EventClients.Add(r.Context(), 1)
	defer s.metrics.EventClients.Add(context.WithoutCancel(r.Context()), -1)
	log.Info("server: event feed client connected", "remote", r.RemoteAddr)
	defer log.Info("server: event feed client disconnected", "remote", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusGoingAway, "")
			return
		case msg := <-queue:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, msg)
			cancel()
			if err != nil {
				log.Debug("server: event feed write failed", "err", err)
				return
			}
		}
	}
}
