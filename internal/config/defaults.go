package config

const (
	defaultProjectDir        = "."
	defaultWorkspaceDir      = "workspace"
	defaultEngineInputDir    = "src/engine_input"
	defaultStateDir          = ".simflow"
	defaultLogDir            = ".simflow/logs"
	defaultTopmonBinary      = "topmon"
	defaultCompletionMarker  = "Program ended"
	defaultSubmitCommand     = "sbatch"
	defaultLAMMPSCores       = 8
	defaultMaxParallel       = 4
	defaultWatchInterval     = 60
	defaultNumProdReplicates = 4
	defaultEquilMethod       = "drift"
	defaultEquilThreshold    = 2.0
	defaultEquilProdFraction = 0.5
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// defaultEquilColumns are the thermo log columns checked for equilibration:
// potential energy, kinetic energy, pressure, and density.
var defaultEquilColumns = []int{1, 2, 4, 6}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ProjectDir:     defaultProjectDir,
			WorkspaceDir:   defaultWorkspaceDir,
			EngineInputDir: defaultEngineInputDir,
			StateDir:       defaultStateDir,
			LogDir:         defaultLogDir,
		},
		Engines: Engines{
			MCCCS: MCCCS{
				TopmonBinary:     defaultTopmonBinary,
				CompletionMarker: defaultCompletionMarker,
			},
			LAMMPS: LAMMPS{
				SubmitCommand: defaultSubmitCommand,
				Cores:         defaultLAMMPSCores,
			},
		},
		Workflow: Workflow{
			MaxParallel:       defaultMaxParallel,
			WatchInterval:     defaultWatchInterval,
			NumProdReplicates: defaultNumProdReplicates,
		},
		Equilibration: Equilibration{
			Method:       defaultEquilMethod,
			Threshold:    defaultEquilThreshold,
			ProdFraction: defaultEquilProdFraction,
			Columns:      append([]int(nil), defaultEquilColumns...),
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
