package gate

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a validation failure.
type Kind int

const (
	// InvalidRequest: the client header is missing or blank.
	InvalidRequest Kind = iota + 1
	// DuplicateRequest: the fingerprint was admitted within the TTL.
	DuplicateRequest
	// BackendUnavailable: the cache could not be read or written.
	BackendUnavailable
)

func (k Kind) String() string {
	switch k {
	case InvalidRequest:
		return "InvalidRequest"
	case DuplicateRequest:
		return "DuplicateRequest"
	case BackendUnavailable:
		return "BackendUnavailable"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// StatusCode is the HTTP status a failure of this kind maps to.
func (k Kind) StatusCode() int {
	switch k {
	case InvalidRequest:
		return http.StatusBadRequest
	case DuplicateRequest:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

const (
	MsgClientRequired = "client header is required"
	MsgDuplicate      = "duplicate request detected"
	ErrorTagDuplicate = "Duplicate Request"
)

// Error is returned by Gate.Validate.
type Error struct {
	Kind      Kind
	Message   string
	Timestamp time.Time
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a gate *Error of kind k.
func IsKind(err error, k Kind) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.Kind == k
}

func invalidRequest(now time.Time) *Error {
	return &Error{Kind: InvalidRequest, Message: MsgClientRequired, Timestamp: now}
}

func duplicateRequest(now time.Time) *Error {
	return &Error{Kind: DuplicateRequest, Message: MsgDuplicate, Timestamp: now}
}

func backendUnavailable(now time.Time, op string, err error) *Error {
	return &Error{Kind: BackendUnavailable, Message: "cache " + op + " failed", Timestamp: now, Err: err}
}
