package pipelines

import (
	"context"
	"strconv"

	"simflow/internal/artifact"
	"simflow/internal/engine"
	"simflow/internal/equilibration"
	"simflow/internal/job"
	"simflow/internal/stage"
)

const shakeFix = "fix fix_shake all shake 0.0001 20 1000 b 1 a 1"

// LAMMPS input scripts, each a template in the engine input directory.
const (
	scriptMinimize    = "in.minimize"
	scriptEquilibrate = "in.equilibration"
	scriptProduction  = "in.production-npt"
	submitScript      = "submit.slurm"
)

// Restart files written by the batch runs; their presence is the
// completion evidence of each submitted stage.
const (
	minimizedRestart    = "minimized.restart-0"
	equilibratedRestart = "equilibrated-npt.restart-0"
	productionRestart   = "production-npt.restart-0"
)

func (b *builder) lammps() []stage.Definition {
	lmp := b.cfg.Engines.LAMMPS
	hasBox := artifact.Exists("box.lammps", "box.json")
	hasInputs := artifact.Exists(submitScript, scriptMinimize, scriptEquilibrate, scriptProduction)
	check := equilibration.Check{
		Evaluator:  b.evaluator,
		Classifier: b.classifier,
		Pattern:    "eqlog*.txt",
		Columns:    b.cfg.Equilibration.Columns,
		Logger:     b.logger,
	}
	// The equilibration logs are read only once no extension run is still
	// writing them; prod_npt's precondition shares this guard.
	equilibrated := artifact.All("",
		artifact.Exists(equilibratedRestart),
		artifact.Not(artifact.Outstanding(engine.SubmittedMarker("equil_npt"), equilibratedRestart)),
		check.Predicate("equilibrated"),
	)

	return []stage.Definition{
		{
			Name:   "build_box",
			Pre:    configured("builder_command", lmp.BuilderCommand),
			Post:   hasBox,
			Action: b.buildBox,
		},
		{
			Name:   "copy_inputs",
			Pre:    hasBox,
			Post:   hasInputs,
			Action: b.copyInputs(EngineLAMMPS, false, submitScript, "in.*"),
		},
		{
			Name:     "em_nvt",
			Pre:      hasInputs,
			Post:     artifact.Exists(minimizedRestart),
			InFlight: artifact.Outstanding(engine.SubmittedMarker("em_nvt"), minimizedRestart),
			Action:   b.submitLAMMPS("em_nvt", scriptMinimize, false),
		},
		{
			Name:     "equil_npt",
			Pre:      artifact.Exists(minimizedRestart),
			Post:     equilibrated,
			InFlight: artifact.Outstanding(engine.SubmittedMarker("equil_npt"), equilibratedRestart),
			Action:   b.submitLAMMPS("equil_npt", scriptEquilibrate, true),
		},
		{
			Name:     "prod_npt",
			Pre:      equilibrated,
			Post:     artifact.Exists(productionRestart),
			InFlight: artifact.Outstanding(engine.SubmittedMarker("prod_npt"), productionRestart),
			Action:   b.submitLAMMPS("prod_npt", scriptProduction, true),
		},
		{
			Name:   "reformat_data",
			Pre:    artifact.Exists(productionRestart, "prlog-npt.txt"),
			Post:   artifact.Exists("log-npt.txt"),
			Action: b.reformatData,
		},
	}
}

func (b *builder) buildBox(ctx context.Context, j *job.Job) error {
	sp := j.Statepoint
	values := map[string]string{
		"{{molecule}}":    sp.Molecule,
		"{{forcefield}}":  sp.ForcefieldName,
		"{{n_compounds}}": strconv.Itoa(sp.NCompounds),
		"{{box_length}}":  formatFloat(sp.BoxLength),
		"{{statepoint}}":  j.Path("statepoint.json"),
	}
	cmd, err := commandFor("build_box", "engines.lammps.builder_command", b.cfg.Engines.LAMMPS.BuilderCommand, values)
	if err != nil {
		return err
	}
	if _, err := b.runner.RunStage(ctx, j, "build_box", cmd); err != nil {
		return err
	}
	return requireOutputs(j, "build_box", "box.lammps", "box.json")
}

// submitLAMMPS renders the submit script and the stage input from their
// templates, then hands the run to the batch queue. Rendering from the
// template each time keeps a resubmission identical to the first.
func (b *builder) submitLAMMPS(name, script string, shake bool) stage.Action {
	return func(ctx context.Context, j *job.Job) error {
		values := map[string]string{
			"{{job_name}}": jobName(script, j.ID),
			"{{cores}}":    strconv.Itoa(b.cfg.Engines.LAMMPS.Cores),
			"{{shake}}":    shakeDirective(j.Statepoint.Molecule, shake),
		}
		for _, file := range []string{submitScript, script} {
			if err := engine.RenderTemplate(b.cfg.EngineInputPath(EngineLAMMPS, file), j.Path(file), values); err != nil {
				return err
			}
		}
		cmd, err := commandFor(name, "engines.lammps.submit_command", b.cfg.Engines.LAMMPS.SubmitCommand, nil)
		if err != nil {
			return err
		}
		cmd.Args = append(cmd.Args, submitArgs(j.Statepoint, script)...)
		_, err = b.runner.Submit(ctx, j, name, cmd)
		return err
	}
}

// submitArgs are the positional arguments submit.slurm forwards to LAMMPS.
func submitArgs(sp job.Statepoint, script string) []string {
	lrc := "no"
	if sp.LongRangeCorrection == "energy_pressure" {
		lrc = "yes"
	}
	shift := "no"
	if sp.CutoffStyle == "shift" {
		shift = "yes"
	}
	return []string{
		submitScript,
		script,
		strconv.Itoa(sp.Replica + 1),
		formatFloat(sp.Temperature),
		formatFloat(sp.Pressure),
		formatFloat(sp.RCut * 10),
		formatFloat(timestep(sp.Molecule)),
		lrc,
		shift,
		formatFloat(sp.PDamp),
	}
}

// timestep is the integration step in fs.
func timestep(molecule string) float64 {
	if molecule == "ethanolAA" {
		return 1.0
	}
	return 2.0
}

func jobName(script, id string) string {
	short := id
	if len(short) > 4 {
		short = short[:4]
	}
	return script[len("in."):] + "-" + short
}

func shakeDirective(molecule string, enabled bool) string {
	if enabled && molecule == "waterSPCE" {
		return shakeFix
	}
	return ""
}

func (b *builder) reformatData(ctx context.Context, j *job.Job) error {
	line := b.cfg.Engines.LAMMPS.ReformatCommand
	if line == "" {
		return ReformatThermo(j.Path("prlog-npt.txt"), j.Path("log-npt.txt"))
	}
	cmd, err := commandFor("reformat_data", "engines.lammps.reformat_command", line, map[string]string{
		"{{input}}":  "prlog-npt.txt",
		"{{output}}": "log-npt.txt",
	})
	if err != nil {
		return err
	}
	if _, err := b.runner.RunStage(ctx, j, "reformat_data", cmd); err != nil {
		return err
	}
	return requireOutputs(j, "reformat_data", "log-npt.txt")
}
