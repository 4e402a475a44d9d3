package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/wingman/internal/log"
	"github.com/teslashibe/wingman/pkg/audioio"
	"github.com/teslashibe/wingman/pkg/auth"
	"github.com/teslashibe/wingman/pkg/extract"
	"github.com/teslashibe/wingman/pkg/live"
	"github.com/teslashibe/wingman/pkg/pcm"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type recorder struct {
	mu       sync.Mutex
	states   []State
	huds     []extract.HUD
	entries  []extract.LogEntry
	statuses []Status
}

func (r *recorder) OnState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) OnHUD(h extract.HUD) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.huds = append(r.huds, h)
}

func (r *recorder) OnLogEntry(e extract.LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recorder) OnStatus(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

type harness struct {
	t       *testing.T
	clock   *clockwork.FakeClock
	dialer  *live.MockDialer
	mic     *audioio.MockMicrophone
	speaker *audioio.MockSpeaker
	store   *auth.Store
	obs     *recorder
	ctrl    *Controller
}

type harnessOption func(*harnessSetup)

type harnessSetup struct {
	micOpts []audioio.MockMicrophoneOption
	noKey   bool
}

func withMicError(err error) harnessOption {
	return func(s *harnessSetup) {
		s.micOpts = append(s.micOpts, audioio.WithOpenError(err))
	}
}

func withoutCredential() harnessOption {
	return func(s *harnessSetup) { s.noKey = true }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	var setup harnessSetup
	for _, opt := range opts {
		opt(&setup)
	}

	h := &harness{
		t:       t,
		clock:   clockwork.NewFakeClock(),
		dialer:  live.NewMockDialer(),
		mic:     audioio.NewMockMicrophone(audioio.DefaultConfig(), log.Discard(), setup.micOpts...),
		speaker: audioio.NewMockSpeaker(pcm.OutputSampleRate),
		store:   auth.NewStore(),
		obs:     &recorder{},
	}
	if !setup.noKey {
		h.store.SetAPIKey("test-key")
	}

	cfg := DefaultConfig()
	cfg.SystemInstruction = "be a good wingman"

	ctrl, err := New(cfg,
		WithDialer(h.dialer),
		WithCredentials(h.store),
		WithCredentialFlow(auth.FlowFunc(func(context.Context) error {
			h.store.SetAPIKey("entered-key")
			return nil
		})),
		WithMicrophone(h.mic),
		WithOutput(h.speaker),
		WithObserver(h.obs),
		WithLogger(log.Discard()),
		WithClock(h.clock),
	)
	require.NoError(t, err)
	h.ctrl = ctrl

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) waitState(want State) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.ctrl.State() == want }, waitFor, tick,
		"state never became %s (is %s)", want, h.ctrl.State())
}

// open starts a session and waits for it to listen.
func (h *harness) open() *live.Mock {
	h.t.Helper()
	require.NoError(h.t, h.ctrl.Start(context.Background()))
	h.waitState(StateListening)
	conn := h.dialer.Last()
	require.NotNil(h.t, conn)
	return conn
}

func (h *harness) stop() {
	h.t.Helper()
	require.NoError(h.t, h.ctrl.Stop(context.Background()))
}

func logCall(id, topic string, bullets ...any) live.FunctionCall {
	return live.FunctionCall{
		ID:   id,
		Name: extract.ToolName,
		Args: map[string]any{"topic": topic, "bullets": bullets},
	}
}

// agentAudio returns d of silent 24 kHz PCM16.
func agentAudio(d time.Duration) []byte {
	frames := int(d.Seconds() * pcm.OutputSampleRate)
	return make([]byte, frames*pcm.SampleWidth)
}

func TestStartOpensSession(t *testing.T) {
	h := newHarness(t)
	h.open()

	assert.Equal(t, []State{StateConnecting, StateListening}, h.obs.States())
	assert.True(t, h.ctrl.Sendable())
	assert.True(t, h.mic.Streaming())

	setups := h.dialer.Setups()
	require.Len(t, setups, 1)
	assert.Equal(t, live.ModalityAudio, setups[0].ResponseModality)
	assert.Equal(t, DefaultVoice, setups[0].Voice)
	assert.Equal(t, "be a good wingman", setups[0].SystemInstruction)
	require.Len(t, setups[0].Tools, 1)
	assert.Equal(t, extract.ToolName, setups[0].Tools[0].Name)

	assert.Equal(t, "test-key", h.dialer.Credentials()[0].Value)
}

func TestDoubleStartDialsOnce(t *testing.T) {
	h := newHarness(t)
	h.dialer.Hold()

	require.NoError(t, h.ctrl.Start(context.Background()))
	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, StateConnecting, h.ctrl.State())

	h.dialer.Release()
	h.waitState(StateListening)
	require.NoError(t, h.ctrl.Start(context.Background()))

	assert.Equal(t, 1, h.dialer.Dials())
	assert.Equal(t, 1, h.mic.Opens())
}

func TestStopWhileConnectingCancelsOpen(t *testing.T) {
	h := newHarness(t)
	h.dialer.Hold()

	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool { return h.dialer.Dials() == 1 }, waitFor, tick)
	h.stop()
	assert.Equal(t, StateIdle, h.ctrl.State())

	h.dialer.Release()
	assert.Never(t, func() bool { return h.ctrl.State() != StateIdle }, 50*time.Millisecond, tick)
	assert.Nil(t, h.dialer.Last(), "canceled dial never yields a session")
	assert.False(t, h.mic.Streaming())
}

func TestCaptureForwardsFrames(t *testing.T) {
	h := newHarness(t)
	conn := h.open()

	require.True(t, h.mic.Emit(make([]float32, pcm.FrameSize+10)))
	require.Eventually(t, func() bool { return len(conn.Audio()) == 1 }, waitFor, tick)
	assert.Equal(t, pcm.EncodeCapture(make([]float32, pcm.FrameSize)), conn.Audio()[0])

	h.stop()
	h.mic.Emit(make([]float32, pcm.FrameSize))
	assert.Never(t, func() bool { return len(conn.Audio()) > 1 }, 50*time.Millisecond, tick,
		"frames are dropped while winding down")
}

func TestAudioSchedulesPlayback(t *testing.T) {
	h := newHarness(t)
	conn := h.open()

	conn.SimulateAudio(agentAudio(100 * time.Millisecond))
	conn.SimulateAudio(agentAudio(100 * time.Millisecond))
	h.waitState(StateResponding)
	require.Eventually(t, func() bool { return h.ctrl.Snapshot().LiveUnits == 2 }, waitFor, tick)
	assert.InDelta(t, 0.2, h.ctrl.Snapshot().PlaybackClock, 1e-6)

	h.speaker.Advance(100 * time.Millisecond)
	require.Eventually(t, func() bool { return h.ctrl.Snapshot().LiveUnits == 1 }, waitFor, tick)
	assert.Equal(t, StateResponding, h.ctrl.State())

	h.speaker.Advance(100 * time.Millisecond)
	h.waitState(StateListening)
	assert.Equal(t, 0, h.ctrl.Snapshot().LiveUnits)
}

func TestMalformedAudioDropped(t *testing.T) {
	h := newHarness(t)
	conn := h.open()

	conn.Push(live.Audio{Payload: "!!not base64!!"})
	conn.SimulateAudio([]byte{1, 2, 3})
	conn.SimulateTurnComplete()

	assert.Never(t, func() bool { return h.ctrl.State() != StateListening }, 50*time.Millisecond, tick)
	assert.Equal(t, 0, h.ctrl.Snapshot().LiveUnits)
}

func TestInterruptClearsPlayback(t *testing.T) {
	h := newHarness(t)
	conn := h.open()

	for i := 0; i < 3; i++ {
		conn.SimulateAudio(agentAudio(time.Second))
	}
	require.Eventually(t, func() bool { return h.ctrl.Snapshot().LiveUnits == 3 }, waitFor, tick)

	conn.SimulateInterrupted()
	h.waitState(StateListening)
	require.Eventually(t, func() bool { return h.ctrl.Snapshot().LiveUnits == 0 }, waitFor, tick)
	assert.Equal(t, 0.0, h.ctrl.Snapshot().PlaybackClock)
	assert.Equal(t, 0, h.speaker.Active())

	conn.SimulateAudio(agentAudio(100 * time.Millisecond))
	h.waitState(StateResponding)
}

func TestToolCallsUpdateHUDAndLog(t *testing.T) {
	h := newHarness(t)
	conn := h.open()

	conn.SimulateToolCall(
		logCall("c1", "WEATHER CHECK", "Sunny", "No rain"),
		logCall("c2", "SESSION SUMMARY", "Talked weather"),
		logCall("c1", "WEATHER CHECK", "repeat"),
	)

	require.Eventually(t, func() bool { return len(conn.ToolResponses()) == 2 }, waitFor, tick)
	acks := conn.ToolResponses()
	assert.Equal(t, "c1", acks[0].ID)
	assert.Equal(t, "c2", acks[1].ID)
	for _, ack := range acks {
		assert.Equal(t, extract.ToolName, ack.Name)
		assert.Equal(t, map[string]any{"result": extract.AckResult}, ack.Response)
	}

	snap := h.ctrl.Snapshot()
	assert.Equal(t, extract.HUD{Topic: "WEATHER CHECK", Bullets: []string{"Sunny", "No rain"}}, snap.HUD)
	require.Len(t, snap.Log, 1)
	assert.Equal(t, "SESSION SUMMARY", snap.Log[0].Topic)
	assert.Equal(t, h.clock.Now(), snap.Log[0].Timestamp)
	assert.Equal(t, StateListening, snap.State, "a summary outside wind-down does not close")

	h.obs.mu.Lock()
	assert.Len(t, h.obs.entries, 1)
	assert.Equal(t, snap.HUD, h.obs.huds[len(h.obs.huds)-1])
	h.obs.mu.Unlock()

	assert.Never(t, func() bool { return len(conn.ToolResponses()) > 2 }, 50*time.Millisecond, tick)
}

func TestLogIsNewestFirst(t *testing.T) {
	h := newHarness(t)
	conn := h.open()

	conn.SimulateToolCall(logCall("a", "FIRST SUMMARY"))
	require.Eventually(t, func() bool { return len(h.ctrl.Logs()) == 1 }, waitFor, tick)
	conn.SimulateToolCall(logCall("b", "SECOND SUMMARY"))
	require.Eventually(t, func() bool { return len(h.ctrl.Logs()) == 2 }, waitFor, tick)

	logs := h.ctrl.Logs()
	assert.Equal(t, "SECOND SUMMARY", logs[0].Topic)
	assert.Equal(t, "FIRST SUMMARY", logs[1].Topic)
	assert.NotEqual(t, logs[0].ID, logs[1].ID)
}

func TestWindDownClosesAfterSummary(t *testing.T) {
	h := newHarness(t)
	conn := h.open()

	h.stop()
	assert.Equal(t, StateWindingDown, h.ctrl.State())
	assert.False(t, h.ctrl.Sendable())
	assert.Equal(t, []string{DefaultSignOff}, conn.Texts())

	// Trailing speech is still played but does not leave wind-down.
	conn.SimulateAudio(agentAudio(500 * time.Millisecond))
	require.Eventually(t, func() bool { return h.ctrl.Snapshot().LiveUnits == 1 }, waitFor, tick)
	assert.Equal(t, StateWindingDown, h.ctrl.State())

	conn.SimulateToolCall(logCall("final", "PHARMACY HOURS", "Open until 9"))
	require.Eventually(t, func() bool { return len(h.ctrl.Logs()) == 1 }, waitFor, tick)

	entry := h.ctrl.Logs()[0]
	assert.Equal(t, "PHARMACY HOURS", entry.Topic, "any call during wind-down is final")
	assert.Equal(t, StateWindingDown, h.ctrl.State())

	h.clock.Advance(DefaultGracePeriod - time.Millisecond)
	assert.Never(t, func() bool { return h.ctrl.State() == StateIdle }, 50*time.Millisecond, tick)

	h.clock.Advance(time.Millisecond)
	h.waitState(StateIdle)
	assert.True(t, conn.Closed())
	assert.False(t, h.mic.Streaming())
	assert.Equal(t, 0, h.ctrl.Snapshot().LiveUnits)
	assert.Equal(t, 0.0, h.ctrl.Snapshot().PlaybackClock)
	assert.Len(t, h.ctrl.Logs(), 1, "log survives close")
	assert.Equal(t, 1, h.dialer.Dials(), "intentional close never reconnects")
}

func TestWindDownSafetyTimeout(t *testing.T) {
	h := newHarness(t)
	conn := h.open()

	h.stop()
	h.clock.Advance(DefaultSafetyTimeout - time.Millisecond)
	assert.Never(t, func() bool { return h.ctrl.State() == StateIdle }, 50*time.Millisecond, tick)

	h.clock.Advance(time.Millisecond)
	h.waitState(StateIdle)
	assert.True(t, conn.Closed())
	assert.Empty(t, h.ctrl.Logs())
	assert.True(t, h.ctrl.Snapshot().Status.IsZero())
}

func TestSecondStopForcesClose(t *testing.T) {
	h := newHarness(t)
	conn := h.open()

	h.stop()
	h.stop()
	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.True(t, conn.Closed())
}

func TestStopClearsHUD(t *testing.T) {
	h := newHarness(t)
	conn := h.open()

	conn.SimulateToolCall(logCall("h", "MEDS", "Pill at noon"))
	require.Eventually(t, func() bool { return !h.ctrl.Snapshot().HUD.Empty() }, waitFor, tick)

	h.stop()
	h.stop()
	assert.True(t, h.ctrl.Snapshot().HUD.Empty())
}

func TestHeartbeat(t *testing.T) {
	h := newHarness(t)
	conn := h.open()

	h.clock.Advance(10 * time.Second)
	require.Eventually(t, func() bool { return conn.Heartbeats() == 1 }, waitFor, tick)
	h.clock.Advance(10 * time.Second)
	require.Eventually(t, func() bool { return conn.Heartbeats() == 2 }, waitFor, tick)

	h.stop()
	h.clock.Advance(5 * time.Second)
	h.clock.Advance(5 * time.Second)
	h.waitState(StateIdle)
	assert.Equal(t, 2, conn.Heartbeats(), "no heartbeat during wind-down")
}

func TestReconnectBackoff(t *testing.T) {
	h := newHarness(t)
	conn := h.open()

	dialErr := live.NewConnectionError("dial", errors.New("connection refused"), true)
	h.dialer.FailNext(dialErr, dialErr, dialErr, dialErr, dialErr)

	conn.SimulateClose(1006, "abnormal", live.NewConnectionError("read", errors.New("EOF"), true))
	h.waitState(StateIdle)

	delays := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second}
	for i, delay := range delays {
		attempt := i + 1
		require.Eventually(t, func() bool {
			s := h.ctrl.Snapshot()
			return s.ReconnectAttempt == attempt && s.Status.Code == StatusReconnecting
		}, waitFor, tick, "attempt %d never scheduled", attempt)

		h.clock.Advance(delay - time.Millisecond)
		assert.Never(t, func() bool { return h.dialer.Dials() > attempt }, 30*time.Millisecond, tick,
			"attempt %d dialed early", attempt)

		h.clock.Advance(time.Millisecond)
		require.Eventually(t, func() bool { return h.dialer.Dials() == attempt+1 }, waitFor, tick,
			"attempt %d never dialed", attempt)
	}

	require.Eventually(t, func() bool {
		return h.ctrl.Snapshot().Status.Code == StatusLinkUnstable
	}, waitFor, tick)
	st := h.ctrl.Snapshot().Status
	assert.True(t, st.Persistent)

	h.obs.mu.Lock()
	assert.Equal(t, StatusLinkUnstable, h.obs.statuses[len(h.obs.statuses)-1].Code)
	h.obs.mu.Unlock()

	h.clock.Advance(time.Hour)
	assert.Never(t, func() bool { return h.dialer.Dials() > 6 }, 50*time.Millisecond, tick)

	// A manual start resets the budget.
	h.open()
	assert.Equal(t, 0, h.ctrl.Snapshot().ReconnectAttempt)
	assert.True(t, h.ctrl.Snapshot().Status.IsZero())
}

func TestReconnectSucceedsAndResets(t *testing.T) {
	h := newHarness(t)
	conn := h.open()

	conn.SimulateClose(1011, "internal", nil)
	require.Eventually(t, func() bool { return h.ctrl.Snapshot().ReconnectAttempt == 1 }, waitFor, tick)

	h.clock.Advance(2 * time.Second)
	h.waitState(StateListening)
	assert.Equal(t, 2, h.dialer.Dials())
	assert.NotSame(t, conn, h.dialer.Last())
	assert.Equal(t, 0, h.ctrl.Snapshot().ReconnectAttempt)
	assert.True(t, h.ctrl.Snapshot().Status.IsZero())
}

func TestStopCancelsPendingReconnect(t *testing.T) {
	h := newHarness(t)
	conn := h.open()

	conn.SimulateClose(1006, "", nil)
	require.Eventually(t, func() bool { return h.ctrl.Snapshot().ReconnectAttempt == 1 }, waitFor, tick)

	h.stop()
	h.clock.Advance(time.Minute)
	assert.Never(t, func() bool { return h.dialer.Dials() > 1 }, 50*time.Millisecond, tick)
	assert.True(t, h.ctrl.Snapshot().Status.IsZero())
}

func TestAuthRequiredBlocksStart(t *testing.T) {
	h := newHarness(t, withoutCredential())

	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool { return h.ctrl.Snapshot().AuthRequired }, waitFor, tick)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, StatusAuthRequired, snap.Status.Code)
	assert.Equal(t, 0, h.dialer.Dials())

	err := h.ctrl.Start(context.Background())
	assert.ErrorIs(t, err, auth.ErrAuthRequired)
	assert.Equal(t, 0, h.mic.Opens(), "credential is resolved before the microphone")

	require.NoError(t, h.ctrl.OpenCredentialFlow(context.Background()))
	assert.False(t, h.ctrl.Snapshot().AuthRequired)
	assert.True(t, h.ctrl.Snapshot().Status.IsZero())

	h.open()
	assert.Equal(t, "entered-key", h.dialer.Credentials()[0].Value)
}

func TestAgentRejectsCredential(t *testing.T) {
	h := newHarness(t)
	h.dialer.FailNext(auth.ErrAuthRequired)

	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool { return h.ctrl.Snapshot().AuthRequired }, waitFor, tick)
	assert.False(t, h.mic.Streaming())

	h.clock.Advance(time.Minute)
	assert.Never(t, func() bool { return h.dialer.Dials() > 1 }, 50*time.Millisecond, tick, "never retried")
}

func TestPolicyCloseBlocksStart(t *testing.T) {
	h := newHarness(t)
	conn := h.open()

	conn.SimulateClose(live.CloseCodePolicyViolation, "bad key", auth.ErrAuthRequired)
	require.Eventually(t, func() bool { return h.ctrl.Snapshot().AuthRequired }, waitFor, tick)
	assert.ErrorIs(t, h.ctrl.Start(context.Background()), auth.ErrAuthRequired)
}

func TestDeviceErrorNotRetried(t *testing.T) {
	h := newHarness(t, withMicError(audioio.ErrPermissionDenied))

	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool {
		return h.ctrl.Snapshot().Status.Code == StatusDeviceError
	}, waitFor, tick)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.True(t, snap.Status.Persistent)

	h.clock.Advance(time.Minute)
	assert.Never(t, func() bool { return h.mic.Opens() > 1 }, 50*time.Millisecond, tick)
	assert.Equal(t, 0, h.dialer.Dials())

	require.NoError(t, h.ctrl.DismissStatus(context.Background()))
	assert.True(t, h.ctrl.Snapshot().Status.IsZero())
}

func TestOpenCredentialFlowWithoutFlow(t *testing.T) {
	ctrl, err := New(DefaultConfig(),
		WithDialer(live.NewMockDialer()),
		WithCredentials(auth.NewStore()),
		WithMicrophone(audioio.NewMockMicrophone(audioio.DefaultConfig(), log.Discard())),
		WithOutput(audioio.NewMockSpeaker(pcm.OutputSampleRate)),
	)
	require.NoError(t, err)
	assert.ErrorIs(t, ctrl.OpenCredentialFlow(context.Background()), ErrNoCredentialFlow)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(DefaultConfig())
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.SafetyTimeout = 0
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestCommandsAfterRunReturns(t *testing.T) {
	ctrl, err := New(DefaultConfig(),
		WithDialer(live.NewMockDialer()),
		WithCredentials(auth.NewStore()),
		WithMicrophone(audioio.NewMockMicrophone(audioio.DefaultConfig(), log.Discard())),
		WithOutput(audioio.NewMockSpeaker(pcm.OutputSampleRate)),
		WithLogger(log.Discard()),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, ctrl.Run(ctx))

	assert.ErrorIs(t, ctrl.Start(context.Background()), ErrStopped)
	assert.ErrorIs(t, ctrl.Run(context.Background()), ErrAlreadyRunning)
}
