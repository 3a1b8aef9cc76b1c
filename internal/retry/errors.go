package retry

import "fmt"

// Reason codes carried by classified errors. Codes are stable: callers and
// dashboards key off them.
const (
	CodeNetwork              = "NETWORK"
	CodePermissionDenied     = "PERMISSION_DENIED"
	CodeNoRows               = "NO_ROWS"
	CodeValidation           = "VALIDATION_ERROR"
	CodeUnclassified         = "UNCLASSIFIED"
	CodeVerificationFailed   = "VERIFICATION_FAILED"
	CodeIdentityDeleteFailed = "IDENTITY_DELETE_FAILED"
)

// Error is a classified operation failure. Retryable is fixed at
// classification time and never flips afterwards. Attempts is the number of
// invocations the executor made before giving up; errors classified outside
// the executor carry 0.
type Error struct {
	Code      string
	Message   string
	Retryable bool
	Attempts  int
	Detail    Detail // transport-specific context, may be nil

	cause error
}

func (e *Error) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s: %s (attempts=%d)", e.Code, e.Message, e.Attempts)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError builds a classified error directly, for failures that originate
// outside a transport (verification, identity deletion).
func NewError(code, message string, retryable bool) *Error {
	return &Error{Code: code, Message: message, Retryable: retryable}
}

// Recode wraps an error under a different, non-retryable code, keeping the
// original as the cause. Used where a failure changes meaning at a higher
// layer: a network error during identity deletion surfaces to the caller as
// IDENTITY_DELETE_FAILED.
func Recode(code string, err error) *Error {
	return &Error{Code: code, Message: err.Error(), cause: err}
}

// Detail carries transport-specific context for a classified error. It is a
// closed set: switch on the concrete type instead of probing maps.
type Detail interface {
	isDetail()
}

// HTTPDetail is attached to errors from HTTP store backends.
type HTTPDetail struct {
	Status int
	Body   string
}

// SQLDetail is attached to errors from SQL store backends.
type SQLDetail struct {
	State string
}

// OpaqueDetail is attached when the transport is unknown; Kind is the dynamic
// type of the underlying error.
type OpaqueDetail struct {
	Kind string
}

func (HTTPDetail) isDetail()   {}
func (SQLDetail) isDetail()    {}
func (OpaqueDetail) isDetail() {}
