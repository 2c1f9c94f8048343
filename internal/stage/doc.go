// Package stage declares pipeline stages and the registry that orders them.
//
// A Definition couples a name with a precondition, a postcondition, and an
// action. A stage is eligible for a job when its precondition holds and its
// postcondition does not. The Registry keeps definitions per pipeline
// variant in declaration order, which is the tie-break when several stages
// of one job are eligible at once.
package stage
