package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/wingman/pkg/live"
)

// ToolCallEvent is a parsed update_flight_log call.
type ToolCallEvent struct {
	ID      string   `json:"id"`
	Topic   string   `json:"topic"`
	Bullets []string `json:"bullets"`
}

// LogEntry is a finalized note kept for the controller's lifetime.
type LogEntry struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Topic     string    `json:"topic"`
	Bullets   []string  `json:"bullets"`
}

// HUD is the transient display of the latest non-final note.
type HUD struct {
	Topic   string   `json:"topic"`
	Bullets []string `json:"bullets"`
}

// Empty reports whether nothing is displayed.
func (h HUD) Empty() bool {
	return h.Topic == "" && len(h.Bullets) == 0
}

// Kind classifies a call.
type Kind string

const (
	KindHUD       Kind = "hud"
	KindFinal     Kind = "final"
	KindUnknown   Kind = "unknown"
	KindDuplicate Kind = "duplicate"
)

// Result is the outcome of one call. Ack is nil only for duplicates.
type Result struct {
	Kind  Kind
	Event ToolCallEvent
	Entry LogEntry // KindFinal
	HUD   HUD      // KindHUD
	Ack   *live.FunctionResponse
}

// Extractor classifies tool calls and remembers which ids it has answered.
// It is not safe for concurrent use.
type Extractor struct {
	now   func() time.Time
	newID func() uuid.UUID
	seen  map[string]struct{}
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithClock sets the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
	}
}

// WithIDs sets the log entry id source.
func WithIDs(newID func() uuid.UUID) Option {
	return func(e *Extractor) {
		e.newID = newID
	}
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		now:   time.Now,
		newID: uuid.New,
		seen:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reset forgets answered ids. Called when a new session opens.
func (e *Extractor) Reset() {
	clear(e.seen)
}

// Handle classifies call. closing is true while the session winds down.
// Every call with an unseen id gets exactly one ack, whatever its contents.
func (e *Extractor) Handle(call live.FunctionCall, closing bool) (res Result) {
	if call.ID != "" {
		if _, dup := e.seen[call.ID]; dup {
			return Result{Kind: KindDuplicate, Event: ToolCallEvent{ID: call.ID}}
		}
		e.seen[call.ID] = struct{}{}
	}
	defer func() {
		res.Ack = &live.FunctionResponse{
			ID:       call.ID,
			Name:     call.Name,
			Response: map[string]any{"result": AckResult},
		}
	}()

	if call.Name != ToolName {
		return Result{Kind: KindUnknown, Event: ToolCallEvent{ID: call.ID}}
	}

	ev := Parse(call)
	topic := ev.Topic
	if IsFinal(topic, closing) {
		if topic == "" {
			topic = DefaultFinalTopic
		}
		return Result{
			Kind:  KindFinal,
			Event: ev,
			Entry: LogEntry{
				ID:        e.newID(),
				Timestamp: e.now(),
				Topic:     topic,
				Bullets:   ev.Bullets,
			},
		}
	}

	if topic == "" {
		topic = DefaultHUDTopic
	}
	return Result{Kind: KindHUD, Event: ev, HUD: HUD{Topic: topic, Bullets: ev.Bullets}}
}

// IsFinal reports whether a call finalizes into the log.
func IsFinal(topic string, closing bool) bool {
	return closing || strings.Contains(strings.ToUpper(topic), SummaryMarker)
}

// Parse reads topic and bullets leniently. Missing or mistyped fields come
// back empty; Bullets is never nil.
func Parse(call live.FunctionCall) ToolCallEvent {
	ev := ToolCallEvent{ID: call.ID, Bullets: []string{}}

	if topic, ok := call.Args["topic"].(string); ok {
		ev.Topic = strings.TrimSpace(topic)
	}

	switch bullets := call.Args["bullets"].(type) {
	case []any:
		for _, b := range bullets {
			if s := bulletText(b); s != "" {
				ev.Bullets = append(ev.Bullets, s)
			}
		}
	case []string:
		for _, b := range bullets {
			if s := strings.TrimSpace(b); s != "" {
				ev.Bullets = append(ev.Bullets, s)
			}
		}
	case string:
		if s := strings.TrimSpace(bullets); s != "" {
			ev.Bullets = append(ev.Bullets, s)
		}
	}
	return ev
}

func bulletText(v any) string {
	switch b := v.(type) {
	case string:
		return strings.TrimSpace(b)
	case nil:
		return ""
	default:
		return fmt.Sprint(b)
	}
}
