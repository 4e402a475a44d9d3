// Package web exposes the session controller over HTTP: REST commands, a
// websocket event feed and Prometheus metrics.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	wlog "github.com/teslashibe/wingman/internal/log"
	"github.com/teslashibe/wingman/internal/metrics"
	"github.com/teslashibe/wingman/pkg/auth"
	"github.com/teslashibe/wingman/pkg/extract"
	"github.com/teslashibe/wingman/pkg/hub"
	"github.com/teslashibe/wingman/pkg/session"
)

// Session is the controller surface the API drives.
type Session interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	DismissStatus(ctx context.Context) error
	OpenCredentialFlow(ctx context.Context) error
	Snapshot() session.Snapshot
	Logs() []extract.LogEntry
}

// Server is the dashboard API. It is also a session.Observer: pass it to
// the controller with session.WithObserver and every change is pushed to
// websocket subscribers.
type Server struct {
	app     *fiber.App
	hub     *hub.Hub
	store   *auth.Store
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu   sync.RWMutex
	sess Session
}

// Option configures a Server.
type Option func(*Server)

// WithStore lets POST /api/credentials write into store.
func WithStore(store *auth.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithMetrics serves m at /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds the server. Call Bind before serving requests that need the
// controller.
func New(opts ...Option) *Server {
	s := &Server{logger: wlog.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = wlog.Component(s.logger, "web")
	s.hub = hub.New("events", s.logger)

	app := fiber.New(fiber.Config{
		AppName:               "Wingman",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Get("/logs", s.handleLogs)
	api.Post("/session/start", s.handleStart)
	api.Post("/session/stop", s.handleStop)
	api.Post("/credentials", s.handleCredentials)
	api.Post("/status/dismiss", s.handleDismiss)

	if s.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// Bind attaches the controller.
func (s *Server) Bind(sess Session) {
	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()
}

func (s *Server) session() (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess == nil {
		return nil, fiber.NewError(fiber.StatusServiceUnavailable, "session controller not ready")
	}
	return s.sess, nil
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the event hub.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is done.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	errc := make(chan error, 1)
	go func() { errc <- s.app.Listener(ln) }()
	s.logger.Info("dashboard listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	stopHub()
	if err := s.app.ShutdownWithContext(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Observer

func (s *Server) OnState(st session.State) {
	s.publish(hub.EventState, st)
}

func (s *Server) OnHUD(h extract.HUD) {
	s.publish(hub.EventHUD, h)
}

func (s *Server) OnLogEntry(e extract.LogEntry) {
	s.publish(hub.EventLog, e)
}

func (s *Server) OnStatus(st session.Status) {
	s.publish(hub.EventStatus, st)
}

func (s *Server) publish(t hub.EventType, data any) {
	if err := s.hub.Publish(t, data); err != nil {
		s.logger.Warn("encode event", "type", t, "error", err)
	}
}

// greeting brings a new subscriber up to date before live events.
func (s *Server) greeting() []hub.Message {
	sess, err := s.session()
	if err != nil {
		return nil
	}
	snap := sess.Snapshot()
	var msgs []hub.Message
	for _, ev := range []hub.Event{
		{Type: hub.EventState, Data: snap.State},
		{Type: hub.EventHUD, Data: snap.HUD},
		{Type: hub.EventStatus, Data: snap.Status},
	} {
		msg, err := hub.Encode(ev.Type, ev.Data)
		if err != nil {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs
}
