// Package preflight provides readiness checks for the filesystem layout and
// external programs a simflow project depends on.
//
// The CLI "simflow check" command runs every check and prints the results;
// "simflow run" and "simflow watch" call RunAll before the first pass and
// refuse to start while a required check fails.
package preflight
