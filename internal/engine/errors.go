package engine

import (
	"fmt"
	"strings"

	"simflow/internal/services"
)

const stderrTailLines = 20

// EngineExecutionError reports an engine process that exited non-zero or
// could not be started.
type EngineExecutionError struct {
	Stage    string
	Command  string
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *EngineExecutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "engine execution failed")
	if e.Stage != "" {
		fmt.Fprintf(&b, " in stage %s", e.Stage)
	}
	fmt.Fprintf(&b, ": %s exited %d", e.Command, e.ExitCode)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if tail := tailLines(e.Stderr, stderrTailLines); tail != "" {
		fmt.Fprintf(&b, "\nstderr:\n%s", tail)
	}
	return b.String()
}

func (e *EngineExecutionError) Is(target error) bool {
	return target == services.ErrEngineExecution
}

func (e *EngineExecutionError) Unwrap() error {
	return e.Cause
}

// IncompleteStageOutputError reports expected outputs that were absent after
// a clean engine exit.
type IncompleteStageOutputError struct {
	Stage   string
	Missing []string
}

func (e *IncompleteStageOutputError) Error() string {
	return fmt.Sprintf("stage %s is missing expected output: %s", e.Stage, strings.Join(e.Missing, ", "))
}

func (e *IncompleteStageOutputError) Is(target error) bool {
	return target == services.ErrIncompleteOutput
}

func tailLines(text string, n int) string {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
