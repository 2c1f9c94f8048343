package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEngines()
	c.normalizeWorkflow()
	c.normalizeEquilibration()
	c.normalizeLogging()
	return nil
}

// normalizePaths resolves relative directories against the project directory
// so a config checked into a project works from any working directory.
func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.ProjectDir) == "" {
		c.Paths.ProjectDir = defaultProjectDir
	}
	if c.Paths.ProjectDir, err = expandPath(c.Paths.ProjectDir); err != nil {
		return fmt.Errorf("paths.project_dir: %w", err)
	}

	fields := []struct {
		name     string
		value    *string
		fallback string
	}{
		{"paths.workspace_dir", &c.Paths.WorkspaceDir, defaultWorkspaceDir},
		{"paths.engine_input_dir", &c.Paths.EngineInputDir, defaultEngineInputDir},
		{"paths.state_dir", &c.Paths.StateDir, defaultStateDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
	}
	for _, field := range fields {
		value := strings.TrimSpace(*field.value)
		if value == "" {
			value = field.fallback
		}
		if !filepath.IsAbs(value) && !strings.HasPrefix(value, "~") {
			value = filepath.Join(c.Paths.ProjectDir, value)
		}
		if *field.value, err = expandPath(value); err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
	}
	return nil
}

func (c *Config) normalizeEngines() {
	mcccs := &c.Engines.MCCCS
	if value, ok := os.LookupEnv("SIMFLOW_TOPMON"); ok && strings.TrimSpace(value) != "" {
		mcccs.TopmonBinary = value
	}
	if value, ok := os.LookupEnv("SIMFLOW_TOPMON_PROD"); ok && strings.TrimSpace(value) != "" {
		mcccs.ProdBinary = value
	}
	mcccs.TopmonBinary = strings.TrimSpace(mcccs.TopmonBinary)
	if mcccs.TopmonBinary == "" {
		mcccs.TopmonBinary = defaultTopmonBinary
	}
	mcccs.ProdBinary = strings.TrimSpace(mcccs.ProdBinary)
	if mcccs.ProdBinary == "" {
		mcccs.ProdBinary = mcccs.TopmonBinary
	}
	mcccs.Fort77Command = strings.TrimSpace(mcccs.Fort77Command)
	if mcccs.CompletionMarker == "" {
		mcccs.CompletionMarker = defaultCompletionMarker
	}

	lammps := &c.Engines.LAMMPS
	if value, ok := os.LookupEnv("SIMFLOW_SUBMIT"); ok && strings.TrimSpace(value) != "" {
		lammps.SubmitCommand = value
	}
	lammps.SubmitCommand = strings.TrimSpace(lammps.SubmitCommand)
	if lammps.SubmitCommand == "" {
		lammps.SubmitCommand = defaultSubmitCommand
	}
	lammps.BuilderCommand = strings.TrimSpace(lammps.BuilderCommand)
	lammps.ReformatCommand = strings.TrimSpace(lammps.ReformatCommand)
	if lammps.Cores <= 0 {
		lammps.Cores = defaultLAMMPSCores
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.MaxParallel <= 0 {
		c.Workflow.MaxParallel = defaultMaxParallel
	}
	if c.Workflow.WatchInterval <= 0 {
		c.Workflow.WatchInterval = defaultWatchInterval
	}
	if c.Workflow.CommandTimeout < 0 {
		c.Workflow.CommandTimeout = 0
	}
}

func (c *Config) normalizeEquilibration() {
	c.Equilibration.Method = strings.ToLower(strings.TrimSpace(c.Equilibration.Method))
	if c.Equilibration.Method == "" {
		c.Equilibration.Method = defaultEquilMethod
	}
	c.Equilibration.Command = strings.TrimSpace(c.Equilibration.Command)
	if len(c.Equilibration.Columns) == 0 {
		c.Equilibration.Columns = append([]int(nil), defaultEquilColumns...)
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
