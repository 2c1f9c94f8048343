// Package artifact evaluates completion evidence in job workspaces.
//
// Every stage precondition and postcondition is built from the predicates in
// this package: file presence, literal log markers, placeholder scans, the
// latest numbered artifact, and State Document values. Predicates are named
// values so a composed condition can report which part failed.
package artifact
