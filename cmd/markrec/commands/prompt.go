package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Sumatoshi-tech/markrec/pkg/recovery"
)

// skipAnswer skips a backup at the target prompt.
const skipAnswer = "-"

// terminalPrompter asks on the terminal whether and where to recover backups.
// With assumeYes every backup goes to its suggested target unasked.
type terminalPrompter struct {
	in        *bufio.Reader
	out       io.Writer
	assumeYes bool
}

// Confirm implements recovery.Prompter.
func (p *terminalPrompter) Confirm(_ context.Context, candidates []recovery.Candidate) (bool, error) {
	renderBackups(p.out, candidates)

	if p.assumeYes {
		return true, nil
	}

	answer, err := p.ask(fmt.Sprintf("Recover %d backup(s)? [Y/n] ", len(candidates)))
	if err != nil {
		return false, err
	}

	switch strings.ToLower(answer) {
	case "", "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Target implements recovery.Prompter.
func (p *terminalPrompter) Target(_ context.Context, c recovery.Candidate, suggested string) (string, error) {
	if p.assumeYes {
		return suggested, nil
	}

	answer, err := p.ask(fmt.Sprintf("Save %s as [%s] ('%s' skips): ", c.Path, suggested, skipAnswer))
	if err != nil {
		return "", err
	}

	switch answer {
	case "":
		return suggested, nil
	case skipAnswer:
		return "", nil
	default:
		return answer, nil
	}
}

func (p *terminalPrompter) ask(question string) (string, error) {
	fmt.Fprint(p.out, question)

	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read answer: %w", err)
	}

	return strings.TrimSpace(line), nil
}
