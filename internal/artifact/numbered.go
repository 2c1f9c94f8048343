package artifact

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"simflow/internal/job"
	"simflow/internal/logging"
	"simflow/internal/services"
)

// CorruptArtifactError reports a numbered artifact whose ordinal cannot be
// parsed from its file name.
type CorruptArtifactError struct {
	Path   string
	Reason string
}

func (e *CorruptArtifactError) Error() string {
	return fmt.Sprintf("corrupt artifact %s: %s", e.Path, e.Reason)
}

func (e *CorruptArtifactError) Is(target error) bool {
	return target == services.ErrCorruptArtifact
}

// Evaluator resolves numbered artifacts and reports corrupt candidates
// without failing the lookup.
type Evaluator struct {
	logger    *slog.Logger
	onCorrupt func(*job.Job, *CorruptArtifactError)
}

// Option customizes an Evaluator.
type Option func(*Evaluator)

// WithCorruptHandler registers fn to receive every excluded artifact.
func WithCorruptHandler(fn func(*job.Job, *CorruptArtifactError)) Option {
	return func(e *Evaluator) { e.onCorrupt = fn }
}

// NewEvaluator returns an Evaluator that logs corrupt artifacts to logger.
func NewEvaluator(logger *slog.Logger, opts ...Option) *Evaluator {
	e := &Evaluator{logger: logging.NewComponentLogger(logger, "artifact")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LatestNumberedArtifact returns the match of pattern (one `*` standing for
// the ordinal, e.g. "eqlog*.txt") with the greatest ordinal. Equal ordinals
// resolve to the lexically first name. Names whose ordinal does not parse
// are reported and skipped.
func (e *Evaluator) LatestNumberedArtifact(j *job.Job, pattern string) (string, bool, error) {
	prefix, suffix, ok := strings.Cut(pattern, "*")
	if !ok || strings.Contains(suffix, "*") {
		return "", false, services.Wrap(services.ErrConfiguration, "", "latest numbered artifact",
			fmt.Sprintf("pattern %q must contain exactly one *", pattern), nil)
	}
	if strings.ContainsRune(suffix, '/') {
		return "", false, services.Wrap(services.ErrConfiguration, "", "latest numbered artifact",
			fmt.Sprintf("pattern %q: the ordinal must be in the file name", pattern), nil)
	}
	// Ordinals are read from base names; drop any directory part.
	prefix = prefix[strings.LastIndex(prefix, "/")+1:]
	matches, err := filepath.Glob(j.Path(pattern))
	if err != nil {
		return "", false, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(matches)

	best := ""
	bestOrdinal := uint64(0)
	for _, match := range matches {
		name := filepath.Base(match)
		digits := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
		ordinal, perr := strconv.ParseUint(digits, 10, 64)
		if perr != nil {
			e.reportCorrupt(j, &CorruptArtifactError{Path: match, Reason: fmt.Sprintf("ordinal %q is not a number", digits)})
			continue
		}
		if best == "" || ordinal > bestOrdinal {
			best = match
			bestOrdinal = ordinal
		}
	}
	return best, best != "", nil
}

func (e *Evaluator) reportCorrupt(j *job.Job, cerr *CorruptArtifactError) {
	if e.onCorrupt != nil {
		e.onCorrupt(j, cerr)
	}
	logging.WarnWithContext(e.logger, "excluding numbered artifact", "corrupt_artifact",
		logging.String(logging.FieldJobID, j.ID),
		logging.String("path", cerr.Path),
		logging.Error(cerr),
		logging.String(logging.FieldErrorHint, "rename or remove the file"),
		logging.String(logging.FieldImpact, "artifact ignored when picking the latest file"),
	)
}
