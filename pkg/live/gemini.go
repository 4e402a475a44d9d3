package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/wingman/pkg/auth"
	"github.com/teslashibe/wingman/pkg/pcm"
)

const (
	// GeminiURL is the Gemini Live BidiGenerateContent endpoint.
	GeminiURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// DefaultModel is the native audio model.
	DefaultModel = "gemini-2.5-flash-native-audio-preview-12-2025"

	defaultHandshakeTimeout = 10 * time.Second
	defaultSetupTimeout     = 15 * time.Second
	defaultReadTimeout      = 60 * time.Second
	defaultQueueSize        = 64
	writeWait               = 10 * time.Second
	eventBuffer             = 64
)

// Gemini dials Gemini Live sessions.
type Gemini struct {
	url              string
	handshakeTimeout time.Duration
	setupTimeout     time.Duration
	readTimeout      time.Duration
	queueSize        int
	logger           *slog.Logger
}

// Option configures a Gemini dialer.
type Option func(*Gemini)

// WithURL overrides the endpoint.
func WithURL(u string) Option {
	return func(g *Gemini) {
		g.url = u
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gemini) {
		g.logger = logger
	}
}

// WithSetupTimeout bounds the wait for setupComplete.
func WithSetupTimeout(d time.Duration) Option {
	return func(g *Gemini) {
		g.setupTimeout = d
	}
}

// WithReadTimeout closes the session when nothing, not even a pong, arrives
// for d. Zero disables the deadline.
func WithReadTimeout(d time.Duration) Option {
	return func(g *Gemini) {
		g.readTimeout = d
	}
}

// WithQueueSize sets the outbound queue length.
func WithQueueSize(n int) Option {
	return func(g *Gemini) {
		if n > 0 {
			g.queueSize = n
		}
	}
}

// NewGemini creates a dialer.
func NewGemini(opts ...Option) *Gemini {
	g := &Gemini{
		url:              GeminiURL,
		handshakeTimeout: defaultHandshakeTimeout,
		setupTimeout:     defaultSetupTimeout,
		readTimeout:      defaultReadTimeout,
		queueSize:        defaultQueueSize,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Dial implements Dialer.
func (g *Gemini) Dial(ctx context.Context, cred auth.Credential, setup Setup) (Conn, error) {
	if !cred.Valid() {
		return nil, auth.ErrAuthRequired
	}

	u, err := url.Parse(g.url)
	if err != nil {
		return nil, fmt.Errorf("live: invalid url: %w", err)
	}
	header := make(http.Header)
	switch cred.Kind {
	case auth.KindAPIKey:
		q := u.Query()
		q.Set("key", cred.Value)
		u.RawQuery = q.Encode()
	case auth.KindBearer:
		header.Set("Authorization", "Bearer "+cred.Value)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: g.handshakeTimeout,
	}
	ws, resp, err := dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake rejected with HTTP %d", auth.ErrAuthRequired, resp.StatusCode)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewConnectionError("dial", err, true)
	}

	if err := g.handshake(ctx, ws, setup); err != nil {
		ws.Close()
		return nil, err
	}

	c := &geminiConn{
		ws:          ws,
		logger:      g.logger,
		readTimeout: g.readTimeout,
		queue:       make(chan []byte, g.queueSize),
		events:      make(chan Event, eventBuffer),
		done:        make(chan struct{}),
	}
	ws.SetPongHandler(func(string) error {
		c.extendRead()
		return nil
	})
	c.extendRead()

	go c.writePump()
	go c.readPump()

	g.logger.Info("gemini live session open", "model", setup.Model, "voice", setup.Voice, "tools", len(setup.Tools))
	return c, nil
}

// handshake sends setup and waits for setupComplete.
func (g *Gemini) handshake(ctx context.Context, ws *websocket.Conn, setup Setup) error {
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	data, err := json.Marshal(newSetupMessage(setup))
	if err != nil {
		return fmt.Errorf("live: encode setup: %w", err)
	}
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return NewConnectionError("send setup", err, true)
	}

	ws.SetReadDeadline(time.Now().Add(g.setupTimeout))
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				return NewConnectionError("setup", ErrSetupTimeout, true)
			}
			return classifyClose(err)
		}
		_, ok, err := parseServerMessage(msg)
		if err != nil {
			g.logger.Debug("ignoring message before setup", "error", err)
			continue
		}
		if ok {
			ws.SetReadDeadline(time.Time{})
			return nil
		}
	}
}

// classifyClose maps a read error to the error reported on Closed.
func classifyClose(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Code == CloseCodePolicyViolation {
			return fmt.Errorf("%w: closed by agent: %s", auth.ErrAuthRequired, ce.Text)
		}
		return NewConnectionError(fmt.Sprintf("closed by agent (%d)", ce.Code), err, true)
	}
	return NewConnectionError("read", err, true)
}

type geminiConn struct {
	ws          *websocket.Conn
	logger      *slog.Logger
	readTimeout time.Duration

	queue  chan []byte
	events chan Event

	done      chan struct{}
	closeOnce sync.Once
	local     atomic.Bool // Close was called
}

func (c *geminiConn) extendRead() {
	if c.readTimeout > 0 {
		c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
}

func (c *geminiConn) SendAudio(payload string) error {
	data, err := json.Marshal(newAudioMessage(payload, pcm.CaptureMimeType))
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	select {
	case c.queue <- data:
		return nil
	case <-c.done:
		return ErrNotConnected
	default:
		return ErrQueueFull
	}
}

func (c *geminiConn) SendText(text string) error {
	return c.enqueue(newTextMessage(text))
}

func (c *geminiConn) SendToolResponse(responses ...FunctionResponse) error {
	if len(responses) == 0 {
		return nil
	}
	return c.enqueue(newToolResponseMessage(responses))
}

// enqueue waits for queue space; control messages are never dropped.
func (c *geminiConn) enqueue(msg clientMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	select {
	case c.queue <- data:
		return nil
	case <-c.done:
		return ErrNotConnected
	}
}

func (c *geminiConn) SendHeartbeat() error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		return NewConnectionError("heartbeat", err, true)
	}
	return nil
}

func (c *geminiConn) Events() <-chan Event {
	return c.events
}

func (c *geminiConn) Close() error {
	c.local.Store(true)
	c.shutdown()
	return nil
}

func (c *geminiConn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.ws.Close()
	})
}

// writePump is the only writer of data frames, so queue order is wire order.
func (c *geminiConn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.queue:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("gemini write failed", "error", err)
				c.shutdown()
				return
			}
		}
	}
}

func (c *geminiConn) readPump() {
	defer close(c.events)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.events <- c.closedEvent(err)
			c.shutdown()
			return
		}
		c.extendRead()

		events, _, err := parseServerMessage(data)
		if err != nil {
			c.logger.Debug("dropping malformed message", "error", err)
			continue
		}
		for _, ev := range events {
			c.events <- ev
		}
	}
}

func (c *geminiConn) closedEvent(err error) Closed {
	ev := Closed{Code: websocket.CloseAbnormalClosure}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		ev.Code, ev.Reason = ce.Code, ce.Text
	}
	if c.local.Load() {
		if ev.Code == websocket.CloseAbnormalClosure {
			ev.Code = websocket.CloseNormalClosure
		}
		return ev
	}
	ev.Err = classifyClose(err)
	c.logger.Info("gemini live session closed", "code", ev.Code, "reason", ev.Reason, "error", ev.Err)
	return ev
}
