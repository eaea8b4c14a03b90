package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/Sumatoshi-tech/markrec/pkg/levenshtein"
	"github.com/Sumatoshi-tech/markrec/pkg/markers"
)

const (
	commandPrefix = "/"
	minEventArgs  = 2
	minToggleArgs = 3
	offsetArgIdx  = 2
	toggleOffset  = 3

	// suggestDistance is the largest edit distance offered as a correction.
	suggestDistance = 2
)

var commandNames = []string{
	"help", "start", "auto", "stop", "split", "status", "streams", "refresh",
	"select", "deselect", "all", "none", "event", "toggle",
}

const consoleHelp = "Commands: /start /auto /stop /split /status /streams /refresh " +
	"/select KEY... /deselect KEY... /all /none /event NAME [OFFSET] /toggle NAME on|off [OFFSET]. " +
	"Any other line is sent as a text marker."

// console reads lines from in until EOF or ctx is done.
func (a *App) console(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, commandPrefix) {
			a.sendText(line)

			continue
		}

		a.command(ctx, strings.Fields(strings.TrimPrefix(line, commandPrefix)))
	}

	err := scanner.Err()
	if err != nil {
		a.logger.WarnContext(ctx, "console input failed", "error", err)
	}
}

func (a *App) sendText(text string) {
	err := a.Markers.Log(text)
	if err != nil {
		a.Feed.Error("Marker not sent: " + err.Error())

		return
	}

	a.Feed.Info("Marker sent: " + text)
}

func (a *App) command(ctx context.Context, parts []string) {
	if len(parts) == 0 {
		a.Feed.Info(consoleHelp)

		return
	}

	switch parts[0] {
	case "help":
		a.Feed.Info(consoleHelp)
	case "start":
		a.sessionCommand(ctx, "start", a.Session.Start)
	case "auto":
		a.sessionCommand(ctx, "auto-start", a.Session.AutoStart)
	case "stop":
		a.sessionCommand(ctx, "stop", a.Session.Stop)
	case "split":
		a.sessionCommand(ctx, "split", a.Session.Split)
	case "status":
		a.printStatus()
	case "streams":
		a.printStreams()
	case "refresh":
		a.refresh(ctx)
	case "select", "deselect":
		a.selectKeys(parts[0] == "select", parts[1:])
	case "all":
		a.Selection.SelectAll(a.Discovery.Catalog())
		a.printStreams()
	case "none":
		a.Selection.SelectNone()
		a.printStreams()
	case "event":
		a.event(parts)
	case "toggle":
		a.toggle(parts)
	default:
		msg := "Unknown command /" + parts[0]
		if guess, ok := levenshtein.Closest(parts[0], commandNames, suggestDistance); ok {
			msg += "; did you mean /" + guess + "?"
		} else {
			msg += "; try /help"
		}

		a.Feed.Warn(msg)
	}
}

func (a *App) sessionCommand(ctx context.Context, name string, op func(context.Context) (string, error)) {
	path, err := op(ctx)
	if err != nil {
		a.Feed.Error(fmt.Sprintf("Cannot %s: %v", name, err))

		return
	}

	a.logger.DebugContext(ctx, "console command done", "command", name, "output", path)
}

func (a *App) printStatus() {
	status := a.Session.Status()

	msg := "State: " + status.State
	if status.OutputPath != "" {
		msg += fmt.Sprintf(", file %s, recorder %s, %d samples",
			filepath.Base(status.OutputPath), status.Recorder, status.Samples)
	}

	a.Feed.Info(msg)
}

func (a *App) printStreams() {
	descs := a.Selection.Annotate(a.Discovery.Catalog())
	if len(descs) == 0 {
		a.Feed.Info("No streams found")

		return
	}

	for _, desc := range descs {
		a.Feed.Info(fmt.Sprintf("%s (%s, %s)", desc.Key, desc.Kind, desc.Status))
	}
}

func (a *App) refresh(ctx context.Context) {
	change, err := a.Discovery.DiscoverOnce(ctx, a.Config.Discovery.Timeout)
	if err != nil {
		a.Feed.Error("Refresh failed: " + err.Error())

		return
	}

	if !change.Changed() {
		a.Feed.Info(fmt.Sprintf("No stream changes (%d streams)", change.Catalog.Len()))
	}
}

func (a *App) selectKeys(selected bool, keys []string) {
	catalog := a.Discovery.Catalog()

	for _, key := range keys {
		if selected && !catalog.Contains(key) {
			msg := "Unknown stream " + key
			if guess, ok := levenshtein.Closest(key, catalog.Keys(), suggestDistance); ok {
				msg += "; did you mean " + guess + "?"
			}

			a.Feed.Warn(msg)

			continue
		}

		a.Selection.Set(key, selected)
	}

	a.printStreams()
}

func (a *App) event(parts []string) {
	if len(parts) < minEventArgs {
		a.Feed.Warn("Usage: /event NAME [OFFSET]")

		return
	}

	var offset string
	if len(parts) > offsetArgIdx {
		offset = parts[offsetArgIdx]
	}

	msg, err := a.Markers.Event(parts[1], "", markers.ParseTimeOffset(offset))
	a.reportEvent(msg, err)
}

func (a *App) toggle(parts []string) {
	if len(parts) < minToggleArgs || (parts[2] != "on" && parts[2] != "off") {
		a.Feed.Warn("Usage: /toggle NAME on|off [OFFSET]")

		return
	}

	var offset string
	if len(parts) > toggleOffset {
		offset = parts[toggleOffset]
	}

	msg, err := a.Markers.Toggle(parts[1], "", parts[2] == "on", markers.ParseTimeOffset(offset))
	a.reportEvent(msg, err)
}

func (a *App) reportEvent(msg string, err error) {
	if err != nil {
		a.Feed.Error("Event not sent: " + err.Error())

		return
	}

	a.Feed.Info("Event sent: " + msg)
}
