package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateEquilibration(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.NumProdReplicates <= 0 {
		return errors.New("workflow.num_prod_replicates must be positive")
	}
	if c.Workflow.MaxParallel <= 0 {
		return errors.New("workflow.max_parallel must be positive")
	}
	return nil
}

func (c *Config) validateEquilibration() error {
	switch c.Equilibration.Method {
	case "drift":
		if c.Equilibration.Threshold <= 0 {
			return errors.New("equilibration.threshold must be positive")
		}
		if c.Equilibration.ProdFraction <= 0 || c.Equilibration.ProdFraction >= 1 {
			return errors.New("equilibration.prod_fraction must be between 0 and 1 (exclusive)")
		}
	case "external":
		if c.Equilibration.Command == "" {
			return errors.New("equilibration.command must be set when equilibration.method is external")
		}
	default:
		return fmt.Errorf("equilibration.method: unsupported value %q (want drift or external)", c.Equilibration.Method)
	}
	for _, col := range c.Equilibration.Columns {
		if col < 0 {
			return fmt.Errorf("equilibration.columns: negative column %d", col)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
