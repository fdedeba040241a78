package depgraph

import "errors"

// AppErrorCode represents gRPC-style error codes for application-level errors.
// note that we are skipping error codes that don't make sense for our use-case,
// like unauthenticated, or permission denied.
type AppErrorCode int

const (
	// OK indicates the operation completed successfully.
	OK AppErrorCode = 0

	// Unknown error. Errors raised by APIs that do not return enough error
	// information may be converted to this error.
	Unknown AppErrorCode = 2

	// InvalidArgument indicates client specified an invalid argument, for
	// example a rectangle whose end lies before its start.
	InvalidArgument AppErrorCode = 3

	// NotFound means some requested entity (e.g., worksheet) was not found.
	NotFound AppErrorCode = 5

	// AlreadyExists means an attempt to create an entity failed because one
	// already exists.
	AlreadyExists AppErrorCode = 6

	// FailedPrecondition indicates operation was rejected because the
	// system is not in a state required for the operation's execution.
	FailedPrecondition AppErrorCode = 9

	// OutOfRange means operation was attempted past the valid range.
	OutOfRange AppErrorCode = 11

	// Unimplemented indicates operation is not implemented or not
	// supported/enabled in this service.
	Unimplemented AppErrorCode = 12

	// Internal errors. Means some invariants expected by underlying
	// system has been broken.
	Internal AppErrorCode = 13
)

// Sentinel errors. callers match them with errors.Is, the AppError wrapping
// them only adds a code and a human readable message.
var (
	// ErrMalformedRef is returned when a rectangle is constructed with
	// inverted bounds. malformed refs are never stored.
	ErrMalformedRef = errors.New("malformed reference")

	// ErrUnsupportedReference is returned when a formula references another
	// worksheet or an external workbook. it aborts the build of the sheet.
	ErrUnsupportedReference = errors.New("unsupported cross-sheet reference")

	// ErrIncompleteRange marks a reference whose rectangle is not fully
	// populated. the builder drops the reference and keeps going.
	ErrIncompleteRange = errors.New("incomplete range")

	// ErrInvalidAddress is returned for text that is not an A1 address.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrSheetNotFound is returned when a worksheet name is unknown.
	ErrSheetNotFound = errors.New("worksheet not found")

	// ErrSheetNotBuilt is returned when querying a worksheet whose graph
	// was never built or whose build was aborted.
	ErrSheetNotBuilt = errors.New("worksheet dependency graph not built")
)

// AppError represents errors at the application level
type AppError struct {
	Code    AppErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewApplicationError creates a new application error
func NewApplicationError(code AppErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// wrapError creates an application error around a sentinel so errors.Is
// keeps working after the message is decorated.
func wrapError(code AppErrorCode, err error, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message + ": " + err.Error(),
		Err:     err,
	}
}

// CodeOf returns the AppErrorCode carried by err, Unknown if there is none
// and OK for a nil error.
func CodeOf(err error) AppErrorCode {
	if err == nil {
		return OK
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return Unknown
}
