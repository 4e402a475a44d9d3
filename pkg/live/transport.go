// Package live is the transport to the remote conversational agent: a
// persistent bidirectional session carrying microphone audio up and
// synthesized audio, interruptions and tool calls down.
package live

import (
	"context"

	"github.com/teslashibe/wingman/pkg/auth"
)

// Modality is a response modality requested at setup.
type Modality string

// ModalityAudio asks the agent to answer with speech.
const ModalityAudio Modality = "AUDIO"

// Setup is sent once when the session opens.
type Setup struct {
	Model             string
	SystemInstruction string
	ResponseModality  Modality
	Voice             string
	Tools             []FunctionDeclaration
}

// Schema is the OpenAPI subset used for tool parameters.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// FunctionDeclaration describes a tool the agent may call.
type FunctionDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// FunctionCall is a tool invocation from the agent.
type FunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResponse acknowledges a FunctionCall.
type FunctionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Event is something received from the agent.
type Event interface {
	event()
}

// Audio is a chunk of synthesized speech, base64 PCM16.
type Audio struct {
	Payload  string
	MimeType string
}

// ToolCall carries one or more function calls, in the order issued.
type ToolCall struct {
	Calls []FunctionCall
}

// Interrupted reports that the agent detected the user talking over it.
type Interrupted struct{}

// TurnComplete marks the end of an agent turn.
type TurnComplete struct{}

// Closed is always the last event; the channel is closed after it.
// Err is nil when the close was requested locally.
type Closed struct {
	Code   int
	Reason string
	Err    error
}

func (Audio) event()        {}
func (ToolCall) event()     {}
func (Interrupted) event()  {}
func (TurnComplete) event() {}
func (Closed) event()       {}

// Dialer opens sessions. Dial returns once the agent has accepted the setup.
// A rejected credential is reported as an error wrapping auth.ErrAuthRequired.
type Dialer interface {
	Dial(ctx context.Context, cred auth.Credential, setup Setup) (Conn, error)
}

// Conn is an open session.
//
// Send methods are safe for concurrent use and preserve call order on the
// wire. SendAudio never blocks: it returns ErrQueueFull instead. Events must
// be drained until the channel is closed.
type Conn interface {
	SendAudio(payload string) error
	SendText(text string) error
	SendToolResponse(responses ...FunctionResponse) error
	SendHeartbeat() error
	Events() <-chan Event
	Close() error
}
