package app

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies every failure an operation can surface.
type Kind string

const (
	KindNotAuthenticated  Kind = "NOT_AUTHENTICATED"
	KindIncompleteProfile Kind = "INCOMPLETE_PROFILE"
	KindIntegrityMismatch Kind = "INTEGRITY_MISMATCH"
	KindNotAuthorized     Kind = "NOT_AUTHORIZED"
	KindNotFound          Kind = "NOT_FOUND"
	KindAlreadyExists     Kind = "ALREADY_EXISTS"
	KindStoreUnavailable  Kind = "STORE_UNAVAILABLE"
	KindInvalidInput      Kind = "INVALID_INPUT"
	KindUnknown           Kind = "UNKNOWN"
)

// Error is the only error type that crosses an operation boundary. Err holds
// the internal detail for the failure log; it is never serialized to the
// caller. Message, when set, overrides the table message for validation-type
// failures whose reason is safe to show.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fault is the caller-visible shape of a failure.
type Fault struct {
	Status  int
	Code    string
	Message string
}

// publicFaults maps every kind to its caller-safe representation. Store and
// auth internals stay behind the generic messages; only validation-type
// kinds carry a specific reason.
var publicFaults = map[Kind]Fault{
	KindNotAuthenticated:  {Status: http.StatusUnauthorized, Code: "NOT_AUTHENTICATED", Message: "Sign in to continue"},
	KindIncompleteProfile: {Status: http.StatusForbidden, Code: "INCOMPLETE_PROFILE", Message: "Finish setting up your profile to continue"},
	KindIntegrityMismatch: {Status: http.StatusUnprocessableEntity, Code: "INTEGRITY_MISMATCH", Message: "Content hash does not match the supplied URL"},
	KindNotAuthorized:     {Status: http.StatusForbidden, Code: "NOT_AUTHORIZED", Message: "You do not own this resource"},
	KindNotFound:          {Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "Not found"},
	KindAlreadyExists:     {Status: http.StatusConflict, Code: "ALREADY_EXISTS", Message: "Already exists"},
	KindStoreUnavailable:  {Status: http.StatusServiceUnavailable, Code: "STORE_UNAVAILABLE", Message: "Service is temporarily unavailable"},
	KindInvalidInput:      {Status: http.StatusBadRequest, Code: "INVALID_INPUT", Message: "Invalid input"},
	KindUnknown:           {Status: http.StatusInternalServerError, Code: "UNKNOWN", Message: "Something went wrong"},
}

// PublicFault resolves any error to what the caller is allowed to see.
func PublicFault(err error) Fault {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return publicFaults[KindUnknown]
	}
	fault, ok := publicFaults[appErr.Kind]
	if !ok {
		return publicFaults[KindUnknown]
	}
	if appErr.Message != "" {
		fault.Message = appErr.Message
	}
	return fault
}
