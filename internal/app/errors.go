package app

import "fmt"

// DomainError carries everything the HTTP surface needs to render a failure
// as-is: the status to set, a stable machine-readable code (UNKNOWN_KIND,
// INVALID_BODY, ...), and a human message. Errors from lower layers that are
// not DomainErrors go through mapError instead.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
