package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// PathResult reports the file a recorder tool started, stopped or split into.
type PathResult struct {
	OutputPath string `json:"output_path"`
	State      string `json:"state"`
}

func (s *Server) registerRecorderTools() {
	addTool(s, ToolRecorderStatus,
		"Report the recording state, output file, active recorder and sample counts.",
		s.handleStatus)
	addTool(s, ToolRecorderStart,
		"Start recording the selected streams. Fails when nothing is selected or a recording runs.",
		s.sessionCall(Session.Start))
	addTool(s, ToolRecorderAutoStart,
		"Select markrec's own marker streams and start recording.",
		s.sessionCall(Session.AutoStart))
	addTool(s, ToolRecorderStop,
		"Stop recording and export the session file and CSV sidecar.",
		s.sessionCall(Session.Stop))
	addTool(s, ToolRecorderSplit,
		"Close the current file and continue recording into a new one.",
		s.sessionCall(Session.Split))
}

func (s *Server) handleStatus(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if s.deps.Session == nil {
		return errorResult(fmt.Errorf("%w: session", ErrUnavailable))
	}

	return jsonResult(s.deps.Session.Status())
}

// sessionCall adapts a path-returning session operation to a tool handler.
func (s *Server) sessionCall(
	op func(Session, context.Context) (string, error),
) func(context.Context, *mcpsdk.CallToolRequest, EmptyInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
		if s.deps.Session == nil {
			return errorResult(fmt.Errorf("%w: session", ErrUnavailable))
		}

		path, err := op(s.deps.Session, ctx)
		if err != nil && path == "" {
			return errorResult(err)
		}

		result, output, encErr := jsonResult(PathResult{
			OutputPath: path,
			State:      s.deps.Session.Status().State,
		})

		// Split and Stop can succeed at their main job and still report an
		// export failure for the closed file.
		if err != nil && result != nil {
			result.IsError = true
			result.Content = append(result.Content, &mcpsdk.TextContent{Text: err.Error()})
		}

		return result, output, encErr
	}
}
