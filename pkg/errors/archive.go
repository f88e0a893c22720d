package errors

import (
	stdErrors "errors"
	"fmt"
)

// ArchiveError is a specialized error type for the object-store-backed
// segment archive. It embeds baseError to inherit chaining, structured
// details, and error codes, and adds the context specific to archive
// operations: which frame or namespace was involved, and the raw cause
// reported by the object-store SDK when the failure doesn't fit a more
// specific category.
type ArchiveError struct {
	*baseError

	frameNo   uint64
	namespace string
	reason    string
	context   string
}

// NewArchiveError creates a new archive-specific error with the provided context.
func NewArchiveError(err error, code ErrorCode, msg string) *ArchiveError {
	return &ArchiveError{baseError: NewBaseError(err, code, msg)}
}

// WithMessage updates the error message while preserving the ArchiveError type.
func (ae *ArchiveError) WithMessage(msg string) *ArchiveError {
	ae.baseError.WithMessage(msg)
	return ae
}

// WithDetail adds contextual information while preserving the ArchiveError type.
func (ae *ArchiveError) WithDetail(key string, value any) *ArchiveError {
	ae.baseError.WithDetail(key, value)
	return ae
}

// WithFrameNo records which frame number was being looked up or restored.
func (ae *ArchiveError) WithFrameNo(frameNo uint64) *ArchiveError {
	ae.frameNo = frameNo
	return ae
}

// WithNamespace records which namespace the operation was scoped to.
func (ae *ArchiveError) WithNamespace(namespace string) *ArchiveError {
	ae.namespace = namespace
	return ae
}

// WithReason records a human-readable reason, used by InvalidIndex errors
// to distinguish header, checksum, and payload-construction failures.
func (ae *ArchiveError) WithReason(reason string) *ArchiveError {
	ae.reason = reason
	return ae
}

// WithContext records a human-readable description of what the archive was
// attempting when an unclassified object-store error surfaced.
func (ae *ArchiveError) WithContext(context string) *ArchiveError {
	ae.context = context
	return ae
}

// FrameNo returns the frame number associated with the error, if any.
func (ae *ArchiveError) FrameNo() uint64 { return ae.frameNo }

// Namespace returns the namespace associated with the error, if any.
func (ae *ArchiveError) Namespace() string { return ae.namespace }

// Reason returns the InvalidIndex failure reason, if any.
func (ae *ArchiveError) Reason() string { return ae.reason }

// Context returns the human-readable context for an Unhandled error.
func (ae *ArchiveError) Context() string { return ae.context }

// NewFrameNotFoundError builds the error returned when no stored segment
// covers the requested frame.
func NewFrameNotFoundError(frameNo uint64) *ArchiveError {
	return NewArchiveError(nil, ErrorCodeFrameNotFound, fmt.Sprintf("frame %d not found", frameNo)).
		WithFrameNo(frameNo)
}

// NewInvalidIndexError builds the error returned when a segment index
// object fails header, checksum, or payload validation. The reason string
// matches the wording pinned down in the archive's testable properties.
func NewInvalidIndexError(reason string) *ArchiveError {
	return NewArchiveError(nil, ErrorCodeInvalidIndex, reason).WithReason(reason)
}

// NewMissingSegmentError builds the error returned when a restore walk runs
// out of segments before every page has been covered.
func NewMissingSegmentError(frameNo uint64) *ArchiveError {
	return NewArchiveError(
		nil, ErrorCodeMissingSegment,
		fmt.Sprintf("no segment covers frame %d but restore is not complete", frameNo),
	).WithFrameNo(frameNo)
}

// NewUnhandledError wraps an unclassified object-store SDK error together
// with a human-readable description of what the archive was doing.
func NewUnhandledError(cause error, context string) *ArchiveError {
	return NewArchiveError(cause, ErrorCodeUnhandled, context).WithContext(context)
}

// NewUnimplementedError builds the error returned by interface operations
// that are declared but intentionally not implemented yet.
func NewUnimplementedError(operation string) *ArchiveError {
	return NewArchiveError(nil, ErrorCodeUnimplemented, operation+" is not implemented")
}

// IsArchiveError checks if the given error is an ArchiveError or contains
// one in its error chain.
func IsArchiveError(err error) bool {
	var ae *ArchiveError
	return stdErrors.As(err, &ae)
}

// AsArchiveError extracts an ArchiveError from an error chain.
func AsArchiveError(err error) (*ArchiveError, bool) {
	var ae *ArchiveError
	if stdErrors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
