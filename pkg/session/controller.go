// Package session runs one live voice session at a time: it opens the
// transport, wires capture and playback to it, reacts to everything the
// agent sends, winds down gracefully on request and reconnects after
// unexpected drops.
//
// All state is owned by a single goroutine started with Run. Public methods
// post commands to it and wait for the reply; blocking work (credential
// resolution, microphone grant, dialing) runs on helper goroutines whose
// results come back tagged with the session generation, so results from a
// session that has since been closed are discarded.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	wlog "github.com/teslashibe/wingman/internal/log"
	"github.com/teslashibe/wingman/internal/metrics"
	"github.com/teslashibe/wingman/pkg/audioio"
	"github.com/teslashibe/wingman/pkg/auth"
	"github.com/teslashibe/wingman/pkg/capture"
	"github.com/teslashibe/wingman/pkg/extract"
	"github.com/teslashibe/wingman/pkg/live"
	"github.com/teslashibe/wingman/pkg/pcm"
	"github.com/teslashibe/wingman/pkg/playback"
	"github.com/teslashibe/wingman/pkg/reconnect"
)

// Snapshot is a consistent view of the controller.
type Snapshot struct {
	State            State              `json:"state"`
	HUD              extract.HUD        `json:"hud"`
	Status           Status             `json:"status"`
	Log              []extract.LogEntry `json:"log"`
	PlaybackClock    float64            `json:"playback_clock"`
	LiveUnits        int                `json:"live_units"`
	ReconnectAttempt int                `json:"reconnect_attempt"`
	AuthRequired     bool               `json:"auth_required"`
}

// Controller is the session lifecycle state machine.
type Controller struct {
	cfg      Config
	dialer   live.Dialer
	creds    auth.Provider
	flow     auth.Flow
	mic      audioio.Microphone
	out      audioio.Output
	observer Observer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	clock    clockwork.Clock

	cmds   chan command
	events chan any
	frames chan frame
	done   chan struct{}

	running  atomic.Bool
	sendable atomic.Bool
	gen      atomic.Uint64

	viewMu sync.RWMutex
	view   Snapshot

	// Owned by the Run goroutine.
	runCtx      context.Context
	state       State
	sess        *liveSession
	scheduler   *playback.Scheduler
	extractor   *extract.Extractor
	policy      *reconnect.Policy
	authBlocked bool
	retry       clockwork.Timer
}

// liveSession is the resources of one start-to-close cycle.
type liveSession struct {
	gen     uint64
	cancel  context.CancelFunc
	conn    live.Conn
	stream  audioio.InputStream
	capture *capture.Pipeline
	closing bool

	heartbeat clockwork.Timer
	safety    clockwork.Timer
	grace     clockwork.Timer
}

// Option configures a Controller.
type Option func(*Controller)

// WithDialer sets the transport.
func WithDialer(d live.Dialer) Option {
	return func(c *Controller) { c.dialer = d }
}

// WithCredentials sets the credential provider.
func WithCredentials(p auth.Provider) Option {
	return func(c *Controller) { c.creds = p }
}

// WithCredentialFlow sets the flow run by OpenCredentialFlow.
func WithCredentialFlow(f auth.Flow) Option {
	return func(c *Controller) { c.flow = f }
}

// WithMicrophone sets the capture device.
func WithMicrophone(m audioio.Microphone) Option {
	return func(c *Controller) { c.mic = m }
}

// WithOutput sets the playback timeline.
func WithOutput(o audioio.Output) Option {
	return func(c *Controller) { c.out = o }
}

// WithObserver sets the presentation sink.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics sets the collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock sets the timer source.
func WithClock(clk clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// New creates a controller. Call Run before any other method.
func New(cfg Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:      cfg,
		observer: Observers{},
		logger:   slog.Default(),
		clock:    clockwork.NewRealClock(),
		cmds:     make(chan command),
		events:   make(chan any, 64),
		frames:   make(chan frame, cfg.FrameQueue),
		done:     make(chan struct{}),
		state:    StateIdle,
		view:     Snapshot{State: StateIdle, Log: []extract.LogEntry{}},
	}
	for _, opt := range opts {
		opt(c)
	}

	switch {
	case c.dialer == nil:
		return nil, errMissingDialer
	case c.creds == nil:
		return nil, errMissingCredentials
	case c.mic == nil:
		return nil, errMissingMicrophone
	case c.out == nil:
		return nil, errMissingOutput
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	c.logger = wlog.Component(c.logger, "session")

	c.scheduler = playback.New(c.out, cfg.OutputSampleRate)
	c.extractor = extract.New(extract.WithClock(c.clock.Now))
	c.policy = reconnect.New(cfg.MaxReconnectAttempts, cfg.MaxReconnectDelay)
	c.metrics.SetState(string(StateIdle), stateNames())
	return c, nil
}

// Commands

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdDismiss
	cmdLiftAuth
)

type command struct {
	kind  commandKind
	reply chan error
}

// Internal events

type opened struct {
	gen    uint64
	conn   live.Conn
	stream audioio.InputStream
}

type openFailed struct {
	gen uint64
	err error
}

type transportEvent struct {
	gen uint64
	ev  live.Event
}

type playbackEnded struct {
	handle playback.Handle
}

type timerKind int

const (
	timerHeartbeat timerKind = iota
	timerSafety
	timerGrace
	timerReconnect
)

func (k timerKind) String() string {
	switch k {
	case timerHeartbeat:
		return "heartbeat"
	case timerSafety:
		return "safety"
	case timerGrace:
		return "grace"
	case timerReconnect:
		return "reconnect"
	}
	return "unknown"
}

type timerFired struct {
	gen  uint64
	kind timerKind
}

type frame struct {
	gen     uint64
	payload string
}

// Run processes commands and events until ctx is done, then closes any
// open session.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	c.runCtx = ctx
	defer close(c.done)
	defer c.shutdown()

	c.logger.Info("controller running")
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-c.cmds:
			err := c.handleCommand(cmd.kind)
			c.publish()
			cmd.reply <- err
		case ev := <-c.events:
			c.handleEvent(ev)
			c.publish()
		case f := <-c.frames:
			c.handleFrame(f)
		}
	}
}

func (c *Controller) shutdown() {
	c.stopRetry()
	if c.state != StateIdle || c.sess != nil {
		c.terminalClose("controller shutting down")
	}
	c.publish()
	c.logger.Info("controller stopped")
}

// Start opens a session. It is a no-op unless the controller is idle, and
// fails with auth.ErrAuthRequired while a credential rejection is pending.
// It returns once the controller is connecting; the open completes
// asynchronously.
func (c *Controller) Start(ctx context.Context) error {
	return c.do(ctx, cmdStart)
}

// Stop winds down an open session: it asks the agent for a final summary
// and closes when one arrives or the safety timeout fires. In any other
// state, including a second Stop during wind-down, it closes immediately.
func (c *Controller) Stop(ctx context.Context) error {
	return c.do(ctx, cmdStop)
}

// DismissStatus clears the displayed status.
func (c *Controller) DismissStatus(ctx context.Context) error {
	return c.do(ctx, cmdDismiss)
}

// OpenCredentialFlow runs the configured flow, checks that a credential now
// resolves, and lifts the block set by a credential rejection.
func (c *Controller) OpenCredentialFlow(ctx context.Context) error {
	if c.flow == nil {
		return ErrNoCredentialFlow
	}
	if err := c.flow.Run(ctx); err != nil {
		return fmt.Errorf("session: credential flow: %w", err)
	}
	if _, err := c.creds.Credential(ctx); err != nil {
		return fmt.Errorf("session: credential flow: %w", err)
	}
	return c.do(ctx, cmdLiftAuth)
}

func (c *Controller) do(ctx context.Context, kind commandKind) error {
	cmd := command{kind: kind, reply: make(chan error, 1)}
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current view.
func (c *Controller) Snapshot() Snapshot {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	s := c.view
	s.Log = slices.Clone(c.view.Log)
	return s
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.view.State
}

// Logs returns finalized entries, newest first.
func (c *Controller) Logs() []extract.LogEntry {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return slices.Clone(c.view.Log)
}

// Sendable reports whether captured audio is currently forwarded.
func (c *Controller) Sendable() bool {
	return c.sendable.Load()
}

// SendAudio queues one encoded frame for the open session. It never blocks.
func (c *Controller) SendAudio(payload string) error {
	return c.sendFrame(c.gen.Load(), payload)
}

func (c *Controller) sendFrame(gen uint64, payload string) error {
	if !c.sendable.Load() || gen != c.gen.Load() {
		return ErrNotSendable
	}
	select {
	case c.frames <- frame{gen: gen, payload: payload}:
		return nil
	default:
		return ErrFrameQueueFull
	}
}

// sessionSink binds a capture pipeline to one session generation.
type sessionSink struct {
	c   *Controller
	gen uint64
}

func (s sessionSink) Sendable() bool {
	return s.c.sendable.Load() && s.c.gen.Load() == s.gen
}

func (s sessionSink) SendAudio(payload string) error {
	return s.c.sendFrame(s.gen, payload)
}

// post delivers an event to the Run goroutine. It reports false once Run
// has returned.
func (c *Controller) post(ev any) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Controller) handleCommand(kind commandKind) error {
	switch kind {
	case cmdStart:
		return c.startSession(true)
	case cmdStop:
		c.stop()
	case cmdDismiss:
		c.setStatus(Status{})
	case cmdLiftAuth:
		c.authBlocked = false
		if c.currentStatus().Code == StatusAuthRequired {
			c.setStatus(Status{})
		}
		c.logger.Info("credential block lifted")
	}
	return nil
}

func (c *Controller) handleEvent(ev any) {
	switch ev := ev.(type) {
	case opened:
		c.handleOpened(ev)
	case openFailed:
		c.handleOpenFailed(ev)
	case transportEvent:
		c.handleTransport(ev)
	case playbackEnded:
		c.handlePlaybackEnded(ev)
	case timerFired:
		c.handleTimer(ev)
	default:
		c.logger.Warn("unknown event", "type", fmt.Sprintf("%T", ev))
	}
}

// Lifecycle

func (c *Controller) startSession(manual bool) error {
	if c.authBlocked {
		return auth.ErrAuthRequired
	}
	if c.state != StateIdle {
		c.logger.Debug("start ignored", "state", c.state)
		return nil
	}

	c.stopRetry()
	if manual {
		c.policy.Reset()
	}

	gen := c.gen.Add(1)
	ctx, cancel := context.WithCancel(c.runCtx)
	c.sess = &liveSession{gen: gen, cancel: cancel}
	c.setState(StateConnecting)

	c.logger.Info("opening session", "gen", gen, "manual", manual, "attempt", c.policy.Attempt())
	go c.open(ctx, gen)
	return nil
}

// open performs the blocking part of a start: credential, microphone, dial.
func (c *Controller) open(ctx context.Context, gen uint64) {
	fail := func(err error) {
		c.post(openFailed{gen: gen, err: err})
	}

	cred, err := c.creds.Credential(ctx)
	if err != nil {
		fail(err)
		return
	}

	stream, err := c.mic.Open(ctx)
	if err != nil {
		fail(err)
		return
	}

	conn, err := c.dialer.Dial(ctx, cred, c.setup())
	if err != nil {
		stream.Close()
		fail(err)
		return
	}

	if !c.post(opened{gen: gen, conn: conn, stream: stream}) {
		conn.Close()
		stream.Close()
	}
}

func (c *Controller) setup() live.Setup {
	return live.Setup{
		Model:             c.cfg.Model,
		SystemInstruction: c.cfg.SystemInstruction,
		ResponseModality:  live.ModalityAudio,
		Voice:             c.cfg.Voice,
		Tools:             []live.FunctionDeclaration{extract.Declaration()},
	}
}

func (c *Controller) handleOpened(ev opened) {
	s := c.sess
	if s == nil || s.gen != ev.gen || c.state != StateConnecting {
		c.logger.Debug("discarding stale open", "gen", ev.gen)
		ev.conn.Close()
		ev.stream.Close()
		return
	}

	s.conn, s.stream = ev.conn, ev.stream
	s.capture = capture.New(sessionSink{c: c, gen: s.gen},
		capture.WithLogger(c.logger),
		capture.WithMetrics(c.metrics),
	)
	go c.forward(s.gen, s.conn.Events())

	if err := s.stream.Start(s.capture.Write); err != nil {
		c.fail(err)
		return
	}

	c.extractor.Reset()
	c.policy.Reset()
	c.armHeartbeat(s)
	c.metrics.SessionsOpened.Inc()
	c.setStatus(Status{})
	c.setState(StateListening)
	c.logger.Info("session open", "gen", s.gen)
}

// forward relays transport events. It keeps draining after Run returns so
// the transport never blocks on a full channel.
func (c *Controller) forward(gen uint64, events <-chan live.Event) {
	delivering := true
	for ev := range events {
		if delivering {
			delivering = c.post(transportEvent{gen: gen, ev: ev})
		}
	}
}

func (c *Controller) handleOpenFailed(ev openFailed) {
	s := c.sess
	if s == nil || s.gen != ev.gen {
		return
	}
	c.fail(ev.err)
}

// fail closes the session after err and decides whether to retry.
func (c *Controller) fail(err error) {
	var devErr *audioio.DeviceError
	switch {
	case errors.Is(err, auth.ErrAuthRequired):
		c.terminalClose("credential rejected")
		c.authBlocked = true
		c.setStatus(Status{Code: StatusAuthRequired, Message: err.Error(), Persistent: true})
		c.logger.Warn("credential required", "error", err)

	case errors.As(err, &devErr):
		c.terminalClose("audio device failed")
		c.setStatus(Status{Code: StatusDeviceError, Message: err.Error(), Persistent: true})
		c.logger.Error("audio device failed", "error", err)

	default:
		c.terminalClose("transport failed")
		c.setStatus(Status{Code: StatusTransportError, Message: err.Error()})
		c.logger.Warn("transport failed", "error", err)
		c.scheduleReconnect()
	}
}

func (c *Controller) stop() {
	switch c.state {
	case StateListening, StateResponding:
		c.windDown()
	default:
		c.stopRetry()
		if c.currentStatus().Code == StatusReconnecting {
			c.setStatus(Status{})
		}
		if c.state != StateIdle || c.sess != nil {
			c.terminalClose("stopped")
		}
	}
}

func (c *Controller) windDown() {
	s := c.sess
	s.closing = true
	stopTimer(&s.heartbeat)
	c.setState(StateWindingDown)

	if err := s.conn.SendText(c.cfg.SignOffText); err != nil {
		c.logger.Warn("sign-off failed, closing", "error", err)
		c.terminalClose("sign-off failed")
		return
	}
	s.safety = c.after(c.cfg.SafetyTimeout, s.gen, timerSafety)
	c.logger.Info("winding down", "gen", s.gen, "safety_timeout", c.cfg.SafetyTimeout)
}

// terminalClose releases everything and returns to idle. Events still in
// flight for the closed session are discarded by generation.
func (c *Controller) terminalClose(reason string) {
	if s := c.sess; s != nil {
		stopTimer(&s.heartbeat)
		stopTimer(&s.safety)
		stopTimer(&s.grace)
		s.cancel()
		if s.conn != nil {
			s.conn.Close()
		}
		if s.stream != nil {
			s.stream.Close()
		}
		if s.capture != nil {
			s.capture.Reset()
		}
		c.logger.Info("session closed", "gen", s.gen, "reason", reason)
	}
	c.sess = nil
	c.gen.Add(1)
	c.sendable.Store(false)

	if n := c.scheduler.Interrupt(); n > 0 {
		c.logger.Debug("playback cleared", "units", n)
	}
	c.setHUD(extract.HUD{})
	c.setState(StateIdle)
}

func (c *Controller) scheduleReconnect() {
	attempt, delay, ok := c.policy.Next()
	if !ok {
		c.setStatus(Status{
			Code:       StatusLinkUnstable,
			Message:    fmt.Sprintf("gave up after %d reconnect attempts", c.policy.MaxAttempts()),
			Persistent: true,
		})
		c.logger.Error("reconnect attempts exhausted", "attempts", c.policy.MaxAttempts())
		return
	}

	c.retry = c.after(delay, c.gen.Load(), timerReconnect)
	c.metrics.Reconnects.Inc()
	c.setStatus(Status{
		Code:    StatusReconnecting,
		Message: fmt.Sprintf("reconnecting in %v (attempt %d/%d)", delay, attempt, c.policy.MaxAttempts()),
	})
	c.logger.Info("reconnect scheduled", "attempt", attempt, "delay", delay)
}

// stopRetry cancels a pending reconnect, including one whose timer has
// already fired but not yet been handled.
func (c *Controller) stopRetry() {
	if c.retry != nil {
		stopTimer(&c.retry)
		c.gen.Add(1)
	}
}

// Transport events

func (c *Controller) handleTransport(te transportEvent) {
	s := c.sess
	if s == nil || s.gen != te.gen || s.conn == nil {
		return
	}

	switch ev := te.ev.(type) {
	case live.Audio:
		c.handleAudio(ev)
	case live.ToolCall:
		c.handleToolCall(s, ev)
	case live.Interrupted:
		n := c.scheduler.Interrupt()
		c.metrics.Interruptions.Inc()
		c.logger.Debug("interrupted", "units_stopped", n)
		if c.state != StateWindingDown {
			c.setState(StateListening)
		}
	case live.TurnComplete:
		c.logger.Debug("turn complete")
	case live.Closed:
		c.handleClosed(s, ev)
	}
}

func (c *Controller) handleAudio(ev live.Audio) {
	data, err := pcm.DecodePayload(ev.Payload)
	if err == nil {
		_, err = c.scheduler.Enqueue(data, c.onPlaybackEnded)
	}
	if err != nil {
		c.metrics.DecodeErrors.Inc()
		c.logger.Debug("dropping agent audio", "error", err, "mime_type", ev.MimeType)
		return
	}

	c.metrics.PlaybackUnits.Inc()
	if c.state != StateWindingDown {
		c.setState(StateResponding)
	}
}

// onPlaybackEnded runs on the output's goroutine.
func (c *Controller) onPlaybackEnded(h playback.Handle) {
	c.post(playbackEnded{handle: h})
}

func (c *Controller) handlePlaybackEnded(ev playbackEnded) {
	removed, empty := c.scheduler.Release(ev.handle)
	if removed && empty && c.state == StateResponding {
		c.setState(StateListening)
	}
}

func (c *Controller) handleToolCall(s *liveSession, ev live.ToolCall) {
	for _, call := range ev.Calls {
		res := c.extractor.Handle(call, c.state == StateWindingDown)

		switch res.Kind {
		case extract.KindFinal:
			c.metrics.ToolCalls.WithLabelValues(metrics.ToolCallFinal).Inc()
			if s.closing && s.grace == nil {
				s.grace = c.after(c.cfg.GracePeriod, s.gen, timerGrace)
			}
			c.appendLog(res.Entry)
			c.logger.Info("log entry", "topic", res.Entry.Topic, "bullets", len(res.Entry.Bullets))
		case extract.KindHUD:
			c.metrics.ToolCalls.WithLabelValues(metrics.ToolCallHUD).Inc()
			c.setHUD(res.HUD)
		case extract.KindUnknown:
			c.metrics.ToolCalls.WithLabelValues(metrics.ToolCallUnknown).Inc()
			c.logger.Warn("unknown tool called", "name", call.Name, "id", call.ID)
		case extract.KindDuplicate:
			c.metrics.ToolCalls.WithLabelValues(metrics.ToolCallDuplicate).Inc()
			c.logger.Debug("duplicate tool call", "id", call.ID)
		}

		if res.Ack != nil {
			if err := s.conn.SendToolResponse(*res.Ack); err != nil {
				c.logger.Warn("tool ack failed", "id", call.ID, "error", err)
			}
		}
	}
}

func (c *Controller) handleClosed(s *liveSession, ev live.Closed) {
	switch {
	case errors.Is(ev.Err, auth.ErrAuthRequired):
		c.fail(ev.Err)
	case s.closing:
		c.terminalClose("agent closed during wind-down")
	default:
		err := ev.Err
		if err == nil {
			err = live.NewConnectionError(fmt.Sprintf("closed by agent (%d)", ev.Code), nil, true)
		}
		c.fail(err)
	}
}

// Timers

func (c *Controller) after(d time.Duration, gen uint64, kind timerKind) clockwork.Timer {
	return c.clock.AfterFunc(d, func() {
		c.post(timerFired{gen: gen, kind: kind})
	})
}

func (c *Controller) armHeartbeat(s *liveSession) {
	s.heartbeat = c.after(c.cfg.HeartbeatInterval, s.gen, timerHeartbeat)
}

func (c *Controller) handleTimer(ev timerFired) {
	c.logger.Debug("timer fired", "timer", ev.kind, "gen", ev.gen)
	if ev.kind == timerReconnect {
		if ev.gen != c.gen.Load() || c.state != StateIdle {
			return
		}
		c.retry = nil
		c.logger.Info("reconnecting", "attempt", c.policy.Attempt())
		if err := c.startSession(false); err != nil {
			c.logger.Warn("reconnect blocked", "error", err)
		}
		return
	}

	s := c.sess
	if s == nil || s.gen != ev.gen {
		return
	}

	switch ev.kind {
	case timerHeartbeat:
		if s.closing || s.conn == nil {
			return
		}
		c.armHeartbeat(s)
		if err := s.conn.SendHeartbeat(); err != nil {
			c.logger.Warn("heartbeat failed", "error", err)
			return
		}
		c.metrics.Heartbeats.Inc()
	case timerSafety:
		c.logger.Warn("no summary before safety timeout", "timeout", c.cfg.SafetyTimeout)
		c.terminalClose("safety timeout")
	case timerGrace:
		c.terminalClose("summary received")
	}
}

func stopTimer(t *clockwork.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// Frames

func (c *Controller) handleFrame(f frame) {
	s := c.sess
	if s == nil || s.gen != f.gen || s.conn == nil || !c.sendable.Load() {
		c.metrics.FramesDropped.Inc()
		return
	}
	if err := s.conn.SendAudio(f.payload); err != nil {
		c.metrics.FramesDropped.Inc()
	}
}

// View

func (c *Controller) setState(st State) {
	c.state = st
	s := c.sess
	c.sendable.Store(s != nil && s.conn != nil && (st == StateListening || st == StateResponding))

	c.viewMu.Lock()
	changed := c.view.State != st
	c.view.State = st
	c.refreshLocked()
	c.viewMu.Unlock()

	if changed {
		c.metrics.SetState(string(st), stateNames())
		c.observer.OnState(st)
	}
}

func (c *Controller) setHUD(h extract.HUD) {
	c.viewMu.Lock()
	wasEmpty := c.view.HUD.Empty()
	c.view.HUD = h
	c.viewMu.Unlock()

	if !(wasEmpty && h.Empty()) {
		c.observer.OnHUD(h)
	}
}

func (c *Controller) appendLog(e extract.LogEntry) {
	c.viewMu.Lock()
	c.view.Log = append([]extract.LogEntry{e}, c.view.Log...)
	c.viewMu.Unlock()
	c.observer.OnLogEntry(e)
}

func (c *Controller) setStatus(st Status) {
	c.viewMu.Lock()
	changed := c.view.Status != st
	c.view.Status = st
	c.viewMu.Unlock()

	if changed {
		c.observer.OnStatus(st)
	}
}

func (c *Controller) currentStatus() Status {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.view.Status
}

// publish refreshes the derived fields after every event. State changes
// refresh them too, so a reader that sees a new state sees matching fields.
func (c *Controller) publish() {
	c.viewMu.Lock()
	c.refreshLocked()
	c.viewMu.Unlock()

	c.metrics.PlaybackLive.Set(float64(c.scheduler.Live()))
}

func (c *Controller) refreshLocked() {
	c.view.PlaybackClock = c.scheduler.Clock()
	c.view.LiveUnits = c.scheduler.Live()
	c.view.ReconnectAttempt = c.policy.Attempt()
	c.view.AuthRequired = c.authBlocked
}
