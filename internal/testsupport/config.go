package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"simflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ProjectDir = base
	cfgVal.Paths.WorkspaceDir = filepath.Join(base, "workspace")
	cfgVal.Paths.EngineInputDir = filepath.Join(base, "src", "engine_input")
	cfgVal.Paths.StateDir = filepath.Join(base, ".simflow")
	cfgVal.Paths.LogDir = filepath.Join(base, ".simflow", "logs")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithReplicates sets the production replicate target.
func WithReplicates(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.NumProdReplicates = n
	}
}

// WithEngineInput writes files under <engine_input_dir>/<parts...>.
func WithEngineInput(files map[string]string, parts ...string) ConfigOption {
	return func(b *configBuilder) {
		b.t.Helper()
		dir := b.cfg.EngineInputPath(parts...)
		for name, content := range files {
			WriteFile(b.t, filepath.Join(dir, name), content)
		}
	}
}

// WithMCCCS customizes the MCCCS engine settings.
func WithMCCCS(fn func(*config.MCCCS)) ConfigOption {
	return func(b *configBuilder) {
		fn(&b.cfg.Engines.MCCCS)
	}
}

// WithLAMMPS customizes the LAMMPS engine settings.
func WithLAMMPS(fn func(*config.LAMMPS)) ConfigOption {
	return func(b *configBuilder) {
		fn(&b.cfg.Engines.LAMMPS)
	}
}

// WithEnsureDirectories creates the configured directories.
func WithEnsureDirectories() ConfigOption {
	return func(b *configBuilder) {
		b.t.Helper()
		for _, dir := range []string{b.cfg.Paths.WorkspaceDir, b.cfg.Paths.EngineInputDir, b.cfg.Paths.StateDir, b.cfg.Paths.LogDir} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				b.t.Fatalf("mkdir %s: %v", dir, err)
			}
		}
	}
}
