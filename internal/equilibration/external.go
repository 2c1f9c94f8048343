package equilibration

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"simflow/internal/engine"
	"simflow/internal/services"
)

// ExternalClassifier delegates to a command that reads one value per line
// on stdin and prints {"equilibrated": bool, "metadata": {...}} on stdout.
type ExternalClassifier struct {
	Runner  *engine.Runner
	Command engine.Command
}

// NewExternalClassifier builds a classifier around commandLine.
func NewExternalClassifier(runner *engine.Runner, commandLine string) (*ExternalClassifier, error) {
	cmd, ok := engine.ParseCommand(commandLine)
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "", "equilibration classifier", "external command is empty", nil)
	}
	return &ExternalClassifier{Runner: runner, Command: cmd}, nil
}

func (e *ExternalClassifier) IsEquilibrated(ctx context.Context, series []float64) (Result, error) {
	var b strings.Builder
	for _, v := range series {
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		b.WriteByte('\n')
	}
	cmd := e.Command
	cmd.Stdin = b.String()
	out, err := e.Runner.Run(ctx, cmd)
	if err != nil {
		return Result{}, err
	}
	var res Result
	if err := json.Unmarshal([]byte(strings.TrimSpace(out.Stdout)), &res); err != nil {
		return Result{}, fmt.Errorf("decode classifier output: %w", err)
	}
	return res, nil
}
