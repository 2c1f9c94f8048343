// Package main hosts the simflow CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into
// operations on a simflow project: creating jobs from a grid manifest,
// running scheduling passes once or in a loop, and inspecting job status
// and dispatch history. It centralizes configuration resolution, logging
// setup, and the single-runner lock so subcommands stay small.
//
// Keep this package lean: add new functionality in the internal packages
// first, then surface it through dedicated commands or flags here.
package main
