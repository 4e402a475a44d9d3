package live

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/teslashibe/wingman/pkg/auth"
)

// Mock is an in-memory Conn for tests. Inbound traffic is injected with the
// Simulate methods; outbound traffic is recorded.
type Mock struct {
	mu         sync.Mutex
	audio      []string
	texts      []string
	responses  []FunctionResponse
	heartbeats int
	audioErr   error

	sendMu sync.Mutex // serializes event sends against close
	closed bool
	events chan Event
}

// NewMock creates an open mock connection.
func NewMock() *Mock {
	return &Mock{events: make(chan Event, 256)}
}

// SendAudio implements Conn.
func (m *Mock) SendAudio(payload string) error {
	if m.isClosed() {
		return ErrNotConnected
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.audioErr != nil {
		return m.audioErr
	}
	m.audio = append(m.audio, payload)
	return nil
}

// SendText implements Conn.
func (m *Mock) SendText(text string) error {
	if m.isClosed() {
		return ErrNotConnected
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return nil
}

// SendToolResponse implements Conn.
func (m *Mock) SendToolResponse(responses ...FunctionResponse) error {
	if m.isClosed() {
		return ErrNotConnected
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
	return nil
}

// SendHeartbeat implements Conn.
func (m *Mock) SendHeartbeat() error {
	if m.isClosed() {
		return ErrNotConnected
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats++
	return nil
}

// Events implements Conn.
func (m *Mock) Events() <-chan Event {
	return m.events
}

// Close implements Conn, delivering a local Closed event.
func (m *Mock) Close() error {
	m.finish(Closed{Code: 1000})
	return nil
}

// SetAudioError makes SendAudio fail with err, for example ErrQueueFull.
func (m *Mock) SetAudioError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audioErr = err
}

// Simulation helpers.

// Push delivers an inbound event. It returns false after close.
func (m *Mock) Push(ev Event) bool {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	if m.closed {
		return false
	}
	m.events <- ev
	return true
}

// SimulateAudio delivers PCM16 bytes as an Audio event.
func (m *Mock) SimulateAudio(pcm16 []byte) bool {
	return m.Push(Audio{Payload: base64.StdEncoding.EncodeToString(pcm16), MimeType: "audio/pcm;rate=24000"})
}

// SimulateToolCall delivers function calls.
func (m *Mock) SimulateToolCall(calls ...FunctionCall) bool {
	return m.Push(ToolCall{Calls: calls})
}

// SimulateInterrupted delivers a barge-in.
func (m *Mock) SimulateInterrupted() bool {
	return m.Push(Interrupted{})
}

// SimulateTurnComplete delivers the end of a turn.
func (m *Mock) SimulateTurnComplete() bool {
	return m.Push(TurnComplete{})
}

// SimulateClose ends the session from the agent side.
func (m *Mock) SimulateClose(code int, reason string, err error) {
	m.finish(Closed{Code: code, Reason: reason, Err: err})
}

func (m *Mock) finish(ev Closed) {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.events <- ev
	close(m.events)
}

func (m *Mock) isClosed() bool {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	return m.closed
}

// Recorded traffic.

// Audio returns the payloads sent with SendAudio.
func (m *Mock) Audio() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.audio...)
}

// Texts returns the text sent with SendText.
func (m *Mock) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

// ToolResponses returns every acknowledgement sent.
func (m *Mock) ToolResponses() []FunctionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FunctionResponse(nil), m.responses...)
}

// Heartbeats returns how many heartbeats were sent.
func (m *Mock) Heartbeats() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heartbeats
}

// Closed reports whether the connection has ended.
func (m *Mock) Closed() bool {
	return m.isClosed()
}

// MockDialer hands out Mock connections.
type MockDialer struct {
	mu     sync.Mutex
	dials  int
	conns  []*Mock
	creds  []auth.Credential
	setups []Setup
	errs   []error
	gate   chan struct{}
}

// NewMockDialer creates a dialer that succeeds by default.
func NewMockDialer() *MockDialer {
	return &MockDialer{}
}

// FailNext makes the next len(errs) dials fail in order.
func (d *MockDialer) FailNext(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs = append(d.errs, errs...)
}

// Hold makes dials block until Release is called.
func (d *MockDialer) Hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate == nil {
		d.gate = make(chan struct{})
	}
}

// Release unblocks held dials.
func (d *MockDialer) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate != nil {
		close(d.gate)
		d.gate = nil
	}
}

// Dial implements Dialer.
func (d *MockDialer) Dial(ctx context.Context, cred auth.Credential, setup Setup) (Conn, error) {
	d.mu.Lock()
	d.dials++
	d.creds = append(d.creds, cred)
	d.setups = append(d.setups, setup)
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		return nil, err
	}
	m := NewMock()
	d.conns = append(d.conns, m)
	return m, nil
}

// Dials returns how many times Dial was called.
func (d *MockDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Last returns the most recent successful connection, or nil.
func (d *MockDialer) Last() *Mock {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// Conns returns every successful connection.
func (d *MockDialer) Conns() []*Mock {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Mock(nil), d.conns...)
}

// Setups returns the setup of every dial.
func (d *MockDialer) Setups() []Setup {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Setup(nil), d.setups...)
}

// Credentials returns the credential of every dial.
func (d *MockDialer) Credentials() []auth.Credential {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]auth.Credential(nil), d.creds...)
}
