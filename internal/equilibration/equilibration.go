// Package equilibration decides whether observable time series have reached
// steady state. The statistic itself is pluggable through Classifier.
package equilibration

import (
	"context"
	"fmt"
	"log/slog"

	"simflow/internal/artifact"
	"simflow/internal/config"
	"simflow/internal/engine"
	"simflow/internal/job"
	"simflow/internal/logging"
	"simflow/internal/services"
)

// Result is one classifier verdict.
type Result struct {
	Equilibrated bool               `json:"equilibrated"`
	Metadata     map[string]float64 `json:"metadata,omitempty"`
}

// Classifier judges a single series.
type Classifier interface {
	IsEquilibrated(ctx context.Context, series []float64) (Result, error)
}

// Check evaluates the latest artifact matching a numbered pattern.
type Check struct {
	Evaluator  *artifact.Evaluator
	Classifier Classifier
	Pattern    string
	Columns    []int
	Logger     *slog.Logger
}

// Latest reports whether every configured column of the latest numbered
// artifact is equilibrated. With no artifact the answer is false and the
// classifier is not consulted. Every column is classified even after a
// failure so the log carries the full picture.
func (c Check) Latest(ctx context.Context, j *job.Job) (bool, error) {
	path, ok, err := c.Evaluator.LatestNumberedArtifact(j, c.Pattern)
	if err != nil || !ok {
		return false, err
	}
	series, err := artifact.ReadColumns(path, c.Columns...)
	if err != nil {
		return false, err
	}
	logger := logging.NewComponentLogger(c.Logger, "equilibration")
	all := true
	for i, values := range series {
		res, err := c.Classifier.IsEquilibrated(ctx, values)
		if err != nil {
			return false, fmt.Errorf("classify column %d of %s: %w", c.Columns[i], path, err)
		}
		attrs := []logging.Attr{
			logging.String(logging.FieldJobID, j.ID),
			logging.String("artifact", path),
			logging.Int("column", c.Columns[i]),
			logging.Bool("equilibrated", res.Equilibrated),
		}
		for k, v := range res.Metadata {
			attrs = append(attrs, logging.Float64(k, v))
		}
		logger.Debug("series classified", logging.Args(attrs...)...)
		all = all && res.Equilibrated
	}
	return all, nil
}

// Predicate wraps Latest as a named artifact predicate.
func (c Check) Predicate(name string) artifact.Predicate {
	return artifact.New(name, c.Latest)
}

// NewClassifier builds the classifier selected by cfg.
func NewClassifier(cfg config.Equilibration, runner *engine.Runner) (Classifier, error) {
	switch cfg.Method {
	case MethodExternal:
		return NewExternalClassifier(runner, cfg.Command)
	case MethodDrift, "":
		return DriftClassifier{Threshold: cfg.Threshold, ProdFraction: cfg.ProdFraction}, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "", "equilibration classifier", fmt.Sprintf("unknown method %q", cfg.Method), nil)
	}
}

// Classifier selection values for config.Equilibration.Method.
const (
	MethodDrift    = "drift"
	MethodExternal = "external"
)
