package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the directory layout of a simulation project.
type Paths struct {
	ProjectDir     string `toml:"project_dir"`
	WorkspaceDir   string `toml:"workspace_dir"`
	EngineInputDir string `toml:"engine_input_dir"`
	StateDir       string `toml:"state_dir"`
	LogDir         string `toml:"log_dir"`
}

// MCCCS contains settings for the MCCCS-MN Monte Carlo engine.
type MCCCS struct {
	TopmonBinary     string `toml:"topmon_binary"`
	ProdBinary       string `toml:"prod_binary"`
	Fort77Command    string `toml:"fort77_command"`
	CompletionMarker string `toml:"completion_marker"`
}

// LAMMPS contains settings for the batch-submitted LAMMPS pipeline.
type LAMMPS struct {
	SubmitCommand   string `toml:"submit_command"`
	BuilderCommand  string `toml:"builder_command"`
	ReformatCommand string `toml:"reformat_command"`
	Cores           int    `toml:"cores"`
}

// Engines groups per-engine settings.
type Engines struct {
	MCCCS  MCCCS  `toml:"mcccs"`
	LAMMPS LAMMPS `toml:"lammps"`
}

// Workflow contains configuration for pass scheduling.
type Workflow struct {
	MaxParallel       int `toml:"max_parallel"`
	WatchInterval     int `toml:"watch_interval"`
	CommandTimeout    int `toml:"command_timeout"`
	NumProdReplicates int `toml:"num_prod_replicates"`
}

// Equilibration selects and tunes the equilibration classifier.
type Equilibration struct {
	Method       string  `toml:"method"`
	Command      string  `toml:"command"`
	Threshold    float64 `toml:"threshold"`
	ProdFraction float64 `toml:"prod_fraction"`
	Columns      []int   `toml:"columns"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for simflow.
//
// Configuration sections by subsystem:
//   - Paths: project, workspace, engine input, state, and log directories
//   - Engines: binaries and commands for each simulation engine
//   - Workflow: pass parallelism, watch pacing, and replicate targets
//   - Equilibration: classifier selection for equilibration gating
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Engines       Engines       `toml:"engines"`
	Workflow      Workflow      `toml:"workflow"`
	Equilibration Equilibration `toml:"equilibration"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/simflow/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/simflow/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("simflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the pass runner writes to.
// The engine input directory is read-only input and is never created.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkspaceDir, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LedgerPath returns the location of the pass ledger database.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.StateDir, "ledger.db")
}

// LockPath returns the location of the single-runner lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "simflow.lock")
}

// EngineInputPath joins parts onto the engine input directory.
func (c *Config) EngineInputPath(parts ...string) string {
	return filepath.Join(append([]string{c.Paths.EngineInputDir}, parts...)...)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() (string, error) {
	var b strings.Builder
	enc := toml.NewEncoder(&b)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return b.String(), nil
}
