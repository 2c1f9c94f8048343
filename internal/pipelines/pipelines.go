package pipelines

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"simflow/internal/artifact"
	"simflow/internal/config"
	"simflow/internal/engine"
	"simflow/internal/equilibration"
	"simflow/internal/fileutil"
	"simflow/internal/job"
	"simflow/internal/logging"
	"simflow/internal/replicate"
	"simflow/internal/services"
	"simflow/internal/stage"
)

// Engine names as they appear in statepoints.
const (
	EngineMCCCS  = "mcccs"
	EngineLAMMPS = "lammps-UD"
)

// Deps carries the collaborators the pipelines are built from.
type Deps struct {
	Config     *config.Config
	Runner     *engine.Runner
	Evaluator  *artifact.Evaluator
	Classifier equilibration.Classifier
	Replicates *replicate.Controller
	Logger     *slog.Logger
}

type builder struct {
	cfg        *config.Config
	runner     *engine.Runner
	evaluator  *artifact.Evaluator
	classifier equilibration.Classifier
	replicates *replicate.Controller
	logger     *slog.Logger
}

// Build registers every pipeline variant in a fresh registry. A duplicate
// stage name is reported as a configuration error.
func Build(d Deps) (*stage.Registry, error) {
	if d.Config == nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "build pipelines", "config is required", nil)
	}
	logger := d.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	b := &builder{
		cfg:        d.Config,
		runner:     d.Runner,
		evaluator:  d.Evaluator,
		classifier: d.Classifier,
		replicates: d.Replicates,
		logger:     logging.NewComponentLogger(logger, "pipelines"),
	}
	if b.runner == nil {
		b.runner = engine.NewRunner(engine.WithLogger(logger))
	}
	if b.evaluator == nil {
		b.evaluator = artifact.NewEvaluator(logger)
	}
	if b.replicates == nil {
		b.replicates = replicate.NewController(logger)
	}
	if b.classifier == nil {
		classifier, err := equilibration.NewClassifier(d.Config.Equilibration, b.runner)
		if err != nil {
			return nil, err
		}
		b.classifier = classifier
	}

	reg := stage.NewRegistry()
	variants := []struct {
		discriminator string
		defs          []stage.Definition
	}{
		{stage.Discriminator(EngineMCCCS, "methane"), b.mcccsMethane()},
		{stage.Discriminator(EngineLAMMPS, stage.Wildcard), b.lammps()},
	}
	for _, v := range variants {
		for _, def := range v.defs {
			if err := reg.Register(v.discriminator, def); err != nil {
				return nil, services.Wrap(services.ErrConfiguration, def.Name, "build pipelines", v.discriminator, err)
			}
		}
	}
	return reg, nil
}

// copyInputs copies engine input files into the job workspace. Each name may
// be a glob; a pattern that matches nothing is a configuration error.
func (b *builder) copyInputs(engineName string, molecule bool, names ...string) stage.Action {
	return func(ctx context.Context, j *job.Job) error {
		parts := []string{engineName}
		if molecule {
			parts = append(parts, j.Statepoint.Molecule)
		}
		dir := b.cfg.EngineInputPath(parts...)
		copied := 0
		for _, name := range names {
			matches, err := filepath.Glob(filepath.Join(dir, name))
			if err != nil {
				return fmt.Errorf("glob %s: %w", name, err)
			}
			if len(matches) == 0 {
				return services.Wrap(services.ErrConfiguration, stageName(ctx), "copy engine inputs",
					fmt.Sprintf("no %s under %s", name, dir), nil)
			}
			sort.Strings(matches)
			for _, src := range matches {
				if err := fileutil.CopyFileVerified(src, j.Path(filepath.Base(src))); err != nil {
					return fmt.Errorf("copy %s: %w", filepath.Base(src), err)
				}
				copied++
			}
		}
		logging.WithContext(ctx, b.logger).Debug("engine inputs copied",
			logging.String("source", dir),
			logging.Int("files", copied),
		)
		return nil
	}
}

// requireOutputs reports the names among rels that are absent.
func requireOutputs(j *job.Job, stageName string, rels ...string) error {
	var missing []string
	for _, rel := range rels {
		if _, err := os.Stat(j.Path(rel)); err != nil {
			missing = append(missing, rel)
		}
	}
	if len(missing) > 0 {
		return &engine.IncompleteStageOutputError{Stage: stageName, Missing: missing}
	}
	return nil
}

// configured is a precondition that holds while value is non-empty, so a
// job waits with a readable blocker instead of failing every pass.
func configured(name, value string) artifact.Predicate {
	return artifact.New(name+"_configured", func(context.Context, *job.Job) (bool, error) {
		return value != "", nil
	})
}

// commandFor parses a configured command line after placeholder
// substitution.
func commandFor(stageName, key, line string, values map[string]string) (engine.Command, error) {
	cmd, ok := engine.ParseCommand(engine.Substitute(line, values))
	if !ok {
		return engine.Command{}, services.Wrap(services.ErrConfiguration, stageName, "resolve command", key+" is empty", nil)
	}
	return cmd, nil
}

func stageName(ctx context.Context) string {
	name, _ := services.StageFromContext(ctx)
	return name
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
