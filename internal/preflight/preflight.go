package preflight

import (
	"simflow/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes the directory and engine input checks for the given
// config. Engine binaries are reported separately by CheckSystemDeps.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Workspace directory", cfg.Paths.WorkspaceDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	// Engine inputs are optional per engine: a project may only run one.
	results = append(results,
		CheckEngineInputs("MCCCS methane inputs", cfg.EngineInputPath("mcccs", "methane"), "fort.4.*", "topmon.inp"),
		CheckEngineInputs("LAMMPS inputs", cfg.EngineInputPath("lammps-UD"), "submit.slurm", "in.*"),
	)
	return results
}

// Failed returns the required results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}
