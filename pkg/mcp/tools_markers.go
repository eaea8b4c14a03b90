package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/markrec/pkg/markers"
	"github.com/Sumatoshi-tech/markrec/pkg/statusfeed"
)

// SentResult echoes the message that went onto the stream.
type SentResult struct {
	Stream  string `json:"stream"`
	Message string `json:"message"`
}

func (s *Server) registerMarkerTools() {
	addTool(s, ToolMarkerSend,
		"Publish a free-text marker on the TextLogger stream.",
		s.handleMarker)
	addTool(s, ToolEventSend,
		"Publish an event on the EventBoard stream, optionally back-dated by an offset.",
		s.handleEvent)
	addTool(s, ToolStatusLog,
		"Return the most recent status lines.",
		s.handleStatusLog)
}

func (s *Server) handleMarker(_ context.Context, _ *mcpsdk.CallToolRequest, input MarkerInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if s.deps.Markers == nil {
		return errorResult(fmt.Errorf("%w: marker outlets", ErrUnavailable))
	}

	if input.Message == "" {
		return errorResult(ErrEmptyMessage)
	}

	if len(input.Message) > MaxMarkerBytes {
		return errorResult(fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLong, len(input.Message), MaxMarkerBytes))
	}

	err := s.deps.Markers.Log(input.Message)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(SentResult{Stream: markers.TextLoggerName, Message: input.Message})
}

func (s *Server) handleEvent(_ context.Context, _ *mcpsdk.CallToolRequest, input EventInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if s.deps.Markers == nil {
		return errorResult(fmt.Errorf("%w: marker outlets", ErrUnavailable))
	}

	if input.Event == "" {
		return errorResult(ErrEmptyEvent)
	}

	label := input.Label
	if label == "" {
		label = input.Event
	}

	offset := markers.ParseTimeOffset(input.Offset)

	var (
		msg string
		err error
	)

	if input.Toggle != nil {
		msg, err = s.deps.Markers.Toggle(input.Event, label, *input.Toggle, offset)
	} else {
		msg, err = s.deps.Markers.Event(input.Event, label, offset)
	}

	if err != nil {
		return errorResult(err)
	}

	return jsonResult(SentResult{Stream: markers.EventBoardName, Message: msg})
}

func (s *Server) handleStatusLog(_ context.Context, _ *mcpsdk.CallToolRequest, input StatusLogInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if s.deps.Feed == nil {
		return errorResult(fmt.Errorf("%w: status feed", ErrUnavailable))
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultStatusLines
	}

	limit = min(limit, maxStatusLines)

	lines := s.deps.Feed.Recent(limit)
	if lines == nil {
		lines = []statusfeed.Line{}
	}

	return jsonResult(lines)
}
