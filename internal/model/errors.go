package model

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is; a *JobError unwraps to its kind.
var (
	ErrWorkspaceCreate = errors.New("workspace create failed")
	ErrGeneration      = errors.New("generation failed")
	ErrArchive         = errors.New("archive failed")
	ErrTransport       = errors.New("transport failed")

	ErrProbeTimeout     = errors.New("probe timed out")
	ErrProbeUnreachable = errors.New("probe unreachable")

	// ErrInvalidPrompt marks a generation failure caused by caller input.
	ErrInvalidPrompt = errors.New("invalid prompt")
	// ErrBackend marks a generation failure caused by the upstream model server.
	ErrBackend = errors.New("generation backend failed")
)

// JobError is returned by every stage of the packaging pipeline.
// Reason is safe to show to a client: it never carries filesystem paths.
type JobError struct {
	Kind   error
	Reason string
	Err    error
}

func (e *JobError) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *JobError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewJobError(kind error, reason string, err error) *JobError {
	return &JobError{Kind: kind, Reason: reason, Err: err}
}

// Reason returns the client-safe reason of err, or a generic message when err
// is not a *JobError.
func Reason(err error) string {
	var je *JobError
	if errors.As(err, &je) {
		return je.Error()
	}
	return "internal error"
}
