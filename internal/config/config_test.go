package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"simflow/internal/config"
)

func TestLoadDefaultsResolveAgainstProjectDir(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent")
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	wd, _ = filepath.Abs(wd)
	if cfg.Paths.WorkspaceDir != filepath.Join(wd, "workspace") {
		t.Fatalf("unexpected workspace dir: %q", cfg.Paths.WorkspaceDir)
	}
	if cfg.Paths.StateDir != filepath.Join(wd, ".simflow") {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
	if cfg.Workflow.NumProdReplicates != 4 {
		t.Fatalf("unexpected replicate target: %d", cfg.Workflow.NumProdReplicates)
	}
	if cfg.Engines.MCCCS.CompletionMarker != "Program ended" {
		t.Fatalf("unexpected completion marker: %q", cfg.Engines.MCCCS.CompletionMarker)
	}
	if cfg.Engines.MCCCS.ProdBinary != cfg.Engines.MCCCS.TopmonBinary {
		t.Fatalf("expected prod binary to fall back to topmon, got %q", cfg.Engines.MCCCS.ProdBinary)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkspaceDir, cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
	}
}

func TestLoadCustomConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	project := t.TempDir()
	path := filepath.Join(project, "simflow.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"project_dir":   project,
			"workspace_dir": "runs",
		},
		"workflow": map[string]any{
			"num_prod_replicates": 2,
			"max_parallel":        8,
		},
		"equilibration": map[string]any{
			"method":  "external",
			"command": "detect-equilibration",
		},
		"logging": map[string]any{
			"format": "JSON",
			"level":  "Debug",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Paths.WorkspaceDir != filepath.Join(project, "runs") {
		t.Fatalf("unexpected workspace dir: %q", cfg.Paths.WorkspaceDir)
	}
	if cfg.Workflow.NumProdReplicates != 2 || cfg.Workflow.MaxParallel != 8 {
		t.Fatalf("unexpected workflow: %+v", cfg.Workflow)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging normalized, got %+v", cfg.Logging)
	}
	if cfg.Equilibration.Method != "external" {
		t.Fatalf("unexpected method %q", cfg.Equilibration.Method)
	}
}

func TestEnvOverridesEngineBinaries(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SIMFLOW_TOPMON", "/opt/mcccs/topmon")
	t.Setenv("SIMFLOW_SUBMIT", "qsub")
	t.Chdir(t.TempDir())

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Engines.MCCCS.TopmonBinary != "/opt/mcccs/topmon" {
		t.Fatalf("unexpected topmon binary %q", cfg.Engines.MCCCS.TopmonBinary)
	}
	if cfg.Engines.LAMMPS.SubmitCommand != "qsub" {
		t.Fatalf("unexpected submit command %q", cfg.Engines.LAMMPS.SubmitCommand)
	}
}

func TestValidateRejectsBadEquilibration(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"unknown method", func(c *config.Config) { c.Equilibration.Method = "magic" }, "equilibration.method"},
		{"external without command", func(c *config.Config) { c.Equilibration.Method = "external" }, "equilibration.command"},
		{"bad fraction", func(c *config.Config) { c.Equilibration.ProdFraction = 1.5 }, "prod_fraction"},
		{"zero replicates", func(c *config.Config) { c.Workflow.NumProdReplicates = 0 }, "num_prod_replicates"},
		{"bad format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("sample config should load: exists=%v err=%v", exists, err)
	}
}
