// Package extract turns update_flight_log tool calls into HUD updates and
// finalized log entries, and produces the acknowledgement for every call.
package extract

import "github.com/teslashibe/wingman/pkg/live"

const (
	// ToolName is the function the agent calls to report structured notes.
	ToolName = "update_flight_log"

	// AckResult is the fixed result returned for every call.
	AckResult = "LOG_OK"

	// SummaryMarker in a topic finalizes the entry outside of wind-down.
	SummaryMarker = "SUMMARY"

	// DefaultFinalTopic names a finalized entry that arrived without a topic.
	DefaultFinalTopic = "SESSION SUMMARY"

	// DefaultHUDTopic names a HUD update that arrived without a topic.
	DefaultHUDTopic = "WINGMAN_HUD"
)

// Declaration returns the tool declaration sent at setup.
func Declaration() live.FunctionDeclaration {
	return live.FunctionDeclaration{
		Name:        ToolName,
		Description: "Updates the radar screen during chat or the permanent logbook at session end.",
		Parameters: &live.Schema{
			Type: "OBJECT",
			Properties: map[string]*live.Schema{
				"topic": {
					Type:        "STRING",
					Description: "ALL CAPS summary header.",
				},
				"bullets": {
					Type:        "ARRAY",
					Items:       &live.Schema{Type: "STRING"},
					Description: "2-4 concise summary points.",
				},
			},
			Required: []string{"topic", "bullets"},
		},
	}
}
