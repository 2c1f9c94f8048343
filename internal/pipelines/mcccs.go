package pipelines

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"simflow/internal/artifact"
	"simflow/internal/engine"
	"simflow/internal/fileutil"
	"simflow/internal/job"
	"simflow/internal/replicate"
	"simflow/internal/services"
	"simflow/internal/stage"
)

// Methane box defaults used when the statepoint leaves them unset.
const (
	methaneNChain    = 1230
	methaneBoxLength = 45.0
)

var (
	mcccsInputStages = []string{"melt", "cool", "equil", "prod"}
	mcccsKeywords    = []string{"NCHAIN", "LENGTH", "TEMPERATURE", "PRESSURE", "SEED"}
	// mcccsUnresolved are placeholders no statepoint field fills; an input
	// still holding one is not ready to run.
	mcccsUnresolved = []string{"VARIABLES"}
)

func mcccsFortFiles() []string {
	files := make([]string, len(mcccsInputStages))
	for i, s := range mcccsInputStages {
		files[i] = "fort.4." + s
	}
	return files
}

func (b *builder) mcccsMethane() []stage.Definition {
	mc := b.cfg.Engines.MCCCS
	fortFiles := mcccsFortFiles()
	hasFort := artifact.Exists(fortFiles...)
	hasTopmon := artifact.Exists("topmon.inp")
	filesReady := artifact.NoPlaceholders(append(append([]string(nil), mcccsKeywords...), mcccsUnresolved...), fortFiles...)
	hasRestart := artifact.Exists("fort.77")
	finished := func(name string) artifact.Predicate {
		return artifact.LogMarker("run."+name, mc.CompletionMarker)
	}
	runnable := artifact.All("", hasRestart, hasFort, hasTopmon, filesReady)

	production := replicate.Stage{
		Base:     "production",
		Pre:      artifact.All("", runnable, finished("equil")),
		Evidence: finished,
		Run: func(ctx context.Context, j *job.Job, name string) error {
			binary := mc.ProdBinary
			if binary == "" {
				binary = mc.TopmonBinary
			}
			return b.runMCCCS(ctx, j, name, "prod", binary)
		},
	}

	return []stage.Definition{
		b.replicates.TargetStage("set_prod_replicates", artifact.True(), b.cfg.Workflow.NumProdReplicates),
		{
			Name:   "copy_files",
			Pre:    artifact.True(),
			Post:   hasFort,
			Action: b.copyInputs(EngineMCCCS, true, "fort.4.*"),
		},
		{
			Name:   "copy_topmon",
			Pre:    artifact.True(),
			Post:   hasTopmon,
			Action: b.copyInputs(EngineMCCCS, true, "topmon.inp"),
		},
		{
			Name:   "replace_keywords",
			Pre:    hasFort,
			Post:   filesReady,
			Action: b.replaceKeywords(fortFiles),
		},
		{
			Name:   "make_restart_file",
			Pre:    artifact.All("", configured("fort77_command", mc.Fort77Command), hasFort),
			Post:   hasRestart,
			Action: b.makeRestartFile,
		},
		{
			Name: "melt",
			Pre:  runnable,
			Post: finished("melt"),
			Action: func(ctx context.Context, j *job.Job) error {
				return b.runMCCCS(ctx, j, "melt", "melt", mc.TopmonBinary)
			},
		},
		{
			Name: "cool",
			Pre:  artifact.All("", runnable, finished("melt")),
			Post: finished("cool"),
			Action: func(ctx context.Context, j *job.Job) error {
				return b.runMCCCS(ctx, j, "cool", "cool", mc.TopmonBinary)
			},
		},
		{
			Name: "equil",
			Pre:  artifact.All("", runnable, finished("cool")),
			Post: finished("equil"),
			Action: func(ctx context.Context, j *job.Job) error {
				return b.runMCCCS(ctx, j, "equil", "equil", mc.TopmonBinary)
			},
		},
		b.replicates.AsStage(production),
	}
}

// mcccsValues are the placeholder substitutions for the fort.4 inputs.
func mcccsValues(sp job.Statepoint) map[string]string {
	nchain := sp.NCompounds
	if nchain == 0 {
		nchain = methaneNChain
	}
	length := sp.BoxLength
	if length == 0 {
		length = methaneBoxLength
	}
	return map[string]string{
		"NCHAIN":      strconv.Itoa(nchain),
		"LENGTH":      formatFloat(length),
		"TEMPERATURE": formatFloat(sp.Temperature),
		"PRESSURE":    formatFloat(sp.Pressure),
		"SEED":        strconv.Itoa(sp.Replica),
	}
}

func (b *builder) replaceKeywords(files []string) stage.Action {
	return func(ctx context.Context, j *job.Job) error {
		values := mcccsValues(j.Statepoint)
		for _, name := range files {
			if err := engine.RenderTemplate(j.Path(name), j.Path(name), values); err != nil {
				return err
			}
			left, err := artifact.ContainsAny(j, name, mcccsUnresolved...)
			if err != nil {
				return err
			}
			if left {
				return services.Wrap(services.ErrConfiguration, stageName(ctx), "replace keywords",
					fmt.Sprintf("%s holds a placeholder no statepoint field fills (%s)", name, strings.Join(mcccsUnresolved, ", ")), nil)
			}
		}
		return nil
	}
}

func (b *builder) makeRestartFile(ctx context.Context, j *job.Job) error {
	values := mcccsValues(j.Statepoint)
	placeholders := map[string]string{
		"{{n_compounds}}": values["NCHAIN"],
		"{{box_length}}":  values["LENGTH"],
		"{{molecule}}":    j.Statepoint.Molecule,
		"{{forcefield}}":  j.Statepoint.ForcefieldName,
		"{{output}}":      "fort.77",
		"{{xyz}}":         "initial_structure.xyz",
	}
	cmd, err := commandFor("make_restart_file", "engines.mcccs.fort77_command", b.cfg.Engines.MCCCS.Fort77Command, placeholders)
	if err != nil {
		return err
	}
	if _, err := b.runner.RunStage(ctx, j, "make_restart_file", cmd); err != nil {
		return err
	}
	return requireOutputs(j, "make_restart_file", "fort.77")
}

// runMCCCS runs one Monte Carlo stage: the stage input becomes fort.4, the
// engine runs in the workspace, and its fixed-name outputs are renamed after
// name. The final configuration is also copied to fort.77 to seed the next
// stage.
func (b *builder) runMCCCS(ctx context.Context, j *job.Job, name, input, binary string) error {
	if err := fileutil.CopyFile(j.Path("fort.4."+input), j.Path("fort.4")); err != nil {
		return fmt.Errorf("stage input fort.4.%s: %w", input, err)
	}
	cmd, err := commandFor(name, "engine binary", binary, nil)
	if err != nil {
		return err
	}
	if _, err := b.runner.RunStage(ctx, j, name, cmd); err != nil {
		return err
	}
	return engine.Relocate(j.Workspace, name, mcccsRelocations(name))
}

func mcccsRelocations(name string) []engine.Relocation {
	return []engine.Relocation{
		{From: "fort.12"},
		{From: "box1config1a.xyz"},
		{From: "run1a.dat", To: "run." + name},
		{From: "config1a.dat", To: "fort.77", Copy: true},
		{From: "config1a.dat"},
		{From: "box1movie1a.pdb", Optional: true},
		{From: "box1movie1a.xyz", Optional: true},
	}
}
