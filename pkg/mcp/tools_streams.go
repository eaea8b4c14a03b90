package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/markrec/pkg/levenshtein"
	"github.com/Sumatoshi-tech/markrec/pkg/markers"
	"github.com/Sumatoshi-tech/markrec/pkg/stream"
)

// StreamList is the catalog as the operator sees it.
type StreamList struct {
	Streams  []stream.SourceDescriptor `json:"streams"`
	Selected []string                  `json:"selected"`
}

// RefreshResult reports one discovery poll.
type RefreshResult struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	StreamList
}

func (s *Server) registerStreamTools() {
	addTool(s, ToolStreamsList,
		"List discovered streams with kind, channels, rate and selection status.",
		s.handleList)
	addTool(s, ToolStreamsRefresh,
		"Poll the network for streams now and report what appeared or disappeared.",
		s.handleRefresh)
	addTool(s, ToolStreamsSelect,
		"Select or deselect one stream by key.",
		s.handleSelect)
	addTool(s, ToolStreamsSelectAll,
		"Select every discovered stream.",
		s.handleSelectAll)
	addTool(s, ToolStreamsSelectNone,
		"Clear the selection.",
		s.handleSelectNone)
	addTool(s, ToolStreamsAutoSelect,
		"Select only markrec's own marker streams.",
		s.handleAutoSelect)
}

func (s *Server) streamsReady() error {
	if s.deps.Discovery == nil || s.deps.Selection == nil {
		return fmt.Errorf("%w: stream discovery", ErrUnavailable)
	}

	return nil
}

func (s *Server) list() StreamList {
	catalog := s.deps.Discovery.Catalog()

	selected := []string{}
	for _, desc := range s.deps.Selection.Effective(catalog) {
		selected = append(selected, desc.Key)
	}

	return StreamList{
		Streams:  s.deps.Selection.Annotate(catalog),
		Selected: selected,
	}
}

func (s *Server) handleList(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := s.streamsReady()
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(s.list())
}

func (s *Server) handleRefresh(ctx context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := s.streamsReady()
	if err != nil {
		return errorResult(err)
	}

	change, err := s.deps.Discovery.DiscoverOnce(ctx, s.deps.DiscoveryTimeout)
	if err != nil {
		return errorResult(err)
	}

	added := []string{}
	for _, desc := range change.Added {
		added = append(added, desc.Key)
	}

	return jsonResult(RefreshResult{
		Added:      added,
		Removed:    append([]string{}, change.RemovedKeys()...),
		StreamList: s.list(),
	})
}

func (s *Server) handleSelect(_ context.Context, _ *mcpsdk.CallToolRequest, input SelectInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := s.streamsReady()
	if err != nil {
		return errorResult(err)
	}

	if input.Key == "" {
		return errorResult(ErrEmptyKey)
	}

	catalog := s.deps.Discovery.Catalog()
	if input.Selected && !catalog.Contains(input.Key) {
		if guess, ok := levenshtein.Closest(input.Key, catalog.Keys(), suggestDistance); ok {
			return errorResult(fmt.Errorf("%w: %s (did you mean %s?)", ErrUnknownStream, input.Key, guess))
		}

		return errorResult(fmt.Errorf("%w: %s", ErrUnknownStream, input.Key))
	}

	s.deps.Selection.Set(input.Key, input.Selected)

	return jsonResult(s.list())
}

func (s *Server) handleSelectAll(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := s.streamsReady()
	if err != nil {
		return errorResult(err)
	}

	s.deps.Selection.SelectAll(s.deps.Discovery.Catalog())

	return jsonResult(s.list())
}

func (s *Server) handleSelectNone(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := s.streamsReady()
	if err != nil {
		return errorResult(err)
	}

	s.deps.Selection.SelectNone()

	return jsonResult(s.list())
}

func (s *Server) handleAutoSelect(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := s.streamsReady()
	if err != nil {
		return errorResult(err)
	}

	s.deps.Selection.AutoSelectOwn(s.deps.Discovery.Catalog(), markers.OwnNames())

	return jsonResult(s.list())
}
