package pipeline

import (
	"errors"
	"fmt"
)

// Kind tags a pipeline error so the orchestration layer can route it
// without string matching.
type Kind string

const (
	// Pipeline-fatal kinds abort the whole per-video computation.
	KindSourceUnreadable    Kind = "SourceUnreadable"
	KindNoFramesExtracted   Kind = "NoFramesExtracted"
	KindNoValidROIs         Kind = "NoValidROIs"
	KindEmptySequence       Kind = "EmptySequence"
	KindTemplateUnavailable Kind = "TemplateUnavailable"

	// Per-frame kinds are absorbed by the continuity policy and never
	// surface to the caller.
	KindNoFaceDetected  Kind = "NoFaceDetected"
	KindAlignmentFailed Kind = "AlignmentFailed"
	KindExcessiveBias   Kind = "ExcessiveBias"

	// KindLocatorUnavailable is a landmark-backend error, not a statement
	// about the frame. Absorbed per-frame like NoFaceDetected, but when it
	// dominates a run that produced no sequence the pipeline reports it
	// instead of NoValidROIs so the job stays retryable.
	KindLocatorUnavailable Kind = "LocatorUnavailable"
)

// Error is a kind-tagged pipeline failure with a human-readable reason.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds a kind-tagged error with a formatted reason.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and reason to an underlying error.
func Wrap(kind Kind, err error, reason string) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// KindOf extracts the kind tag from err, if it carries one.
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

// Recoverable reports whether the kind is a per-frame failure that the
// continuity policy absorbs.
func Recoverable(kind Kind) bool {
	switch kind {
	case KindNoFaceDetected, KindAlignmentFailed, KindExcessiveBias, KindLocatorUnavailable:
		return true
	}
	return false
}

// ContentFatal reports whether the error is determined by the video content
// itself, so retrying the same bytes cannot succeed.
func ContentFatal(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	switch kind {
	case KindNoFramesExtracted, KindNoValidROIs, KindEmptySequence:
		return true
	}
	return false
}
