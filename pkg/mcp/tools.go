package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool names.
const (
	ToolRecorderStatus    = "recorder_status"
	ToolRecorderStart     = "recorder_start"
	ToolRecorderAutoStart = "recorder_auto_start"
	ToolRecorderStop      = "recorder_stop"
	ToolRecorderSplit     = "recorder_split"
	ToolStreamsList       = "streams_list"
	ToolStreamsRefresh    = "streams_refresh"
	ToolStreamsSelect     = "streams_select"
	ToolStreamsSelectAll  = "streams_select_all"
	ToolStreamsSelectNone = "streams_select_none"
	ToolStreamsAutoSelect = "streams_auto_select_own"
	ToolMarkerSend        = "marker_send"
	ToolEventSend         = "event_send"
	ToolStatusLog         = "status_log"
)

// Limits.
const (
	// MaxMarkerBytes caps a marker message.
	MaxMarkerBytes = 4096

	// suggestDistance bounds the edit distance of "did you mean" hints.
	suggestDistance = 2

	defaultStatusLines = 20
	maxStatusLines     = 200
)

// Sentinel errors for tool input validation.
var (
	ErrUnavailable    = errors.New("not available in this process")
	ErrEmptyKey       = errors.New("key is required")
	ErrUnknownStream  = errors.New("stream not in catalog")
	ErrEmptyMessage   = errors.New("message is required")
	ErrMessageTooLong = errors.New("message exceeds maximum size")
	ErrEmptyEvent     = errors.New("event is required")
)

// EmptyInput is the input of tools without parameters.
type EmptyInput struct{}

// SelectInput is the input of streams_select.
type SelectInput struct {
	Key      string `json:"key"      jsonschema:"stream key (name_originid) as listed by streams_list"`
	Selected bool   `json:"selected" jsonschema:"true to capture the stream, false to drop it"`
}

// MarkerInput is the input of marker_send.
type MarkerInput struct {
	Message string `json:"message" jsonschema:"free text published on the TextLogger stream"`
}

// EventInput is the input of event_send.
type EventInput struct {
	Event  string `json:"event"            jsonschema:"event name, e.g. STIMULUS"`
	Label  string `json:"label,omitempty"  jsonschema:"display label of the button that fired the event"`
	Offset string `json:"offset,omitempty" jsonschema:"how long ago it happened: 5s, 2m, 1h or plain seconds"`
	Toggle *bool  `json:"toggle,omitempty" jsonschema:"set for toggle events: true starts, false ends"`
}

// StatusLogInput is the input of status_log.
type StatusLogInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"number of recent lines (default 20, max 200)"`
}

// ToolOutput is the structured output of every tool.
type ToolOutput struct {
	Data any `json:"data"`
}

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}
