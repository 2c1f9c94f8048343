package services

import (
	"errors"
	"strings"
)

var (
	ErrEngineExecution  = errors.New("engine execution error")
	ErrIncompleteOutput = errors.New("incomplete stage output")
	ErrCorruptArtifact  = errors.New("corrupt artifact")
	ErrDuplicateStage   = errors.New("duplicate stage")
	ErrReplicateOverrun = errors.New("replicate overrun")
	ErrValidation       = errors.New("validation error")
	ErrConfiguration    = errors.New("configuration error")
	ErrNotFound         = errors.New("not found")
	ErrTransient        = errors.New("transient failure")
)

// ServiceError carries the stage context alongside a classification marker.
type ServiceError struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Cause     error
}

func (e *ServiceError) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	if e.Cause != nil {
		return e.Marker.Error() + ": " + detail + ": " + e.Cause.Error()
	}
	return e.Marker.Error() + ": " + detail
}

func (e *ServiceError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Marker}
	}
	return []error{e.Marker, e.Cause}
}

// Wrap builds an error that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &ServiceError{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// ErrorDetails is the flattened view of a classified error used for logs
// and pass reports.
type ErrorDetails struct {
	Kind      string
	Stage     string
	Operation string
	Message   string
	Cause     error
}

// Details extracts classification data from err. Errors that were never
// wrapped report their kind from the sentinel chain and their text as the
// message.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return ErrorDetails{
			Kind:      Kind(svcErr.Marker),
			Stage:     svcErr.Stage,
			Operation: svcErr.Operation,
			Message:   svcErr.Message,
			Cause:     svcErr.Cause,
		}
	}
	return ErrorDetails{Kind: Kind(err), Message: err.Error()}
}

var markerKinds = []struct {
	marker error
	kind   string
}{
	{ErrEngineExecution, "engine_execution"},
	{ErrIncompleteOutput, "incomplete_output"},
	{ErrCorruptArtifact, "corrupt_artifact"},
	{ErrDuplicateStage, "duplicate_stage"},
	{ErrReplicateOverrun, "replicate_overrun"},
	{ErrValidation, "validation"},
	{ErrConfiguration, "configuration"},
	{ErrNotFound, "not_found"},
	{ErrTransient, "transient"},
}

// Kind returns the stable classification label for err.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, mk := range markerKinds {
		if errors.Is(err, mk.marker) {
			return mk.kind
		}
	}
	return "unknown"
}

// IsFatal reports whether err describes a misconfiguration that should stop
// the whole run instead of a single job.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDuplicateStage) || errors.Is(err, ErrConfiguration)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage != "" {
		parts = append(parts, stage)
	}
	if operation != "" {
		parts = append(parts, operation)
	}
	if message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
