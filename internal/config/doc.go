// Package config loads, normalizes, and validates simflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SIMFLOW_TOPMON for engine binaries. The Config type centralizes every knob
// the pass runner and CLI need so project, workspace, and engine input
// directories are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
