// Package apierror classifies failures of the outbound scheduling and
// payment calls so controllers can turn them into user-facing messages.
package apierror

import (
	"errors"
	"fmt"
)

// GenericNetworkMessage is shown when the upstream could not be reached.
const GenericNetworkMessage = "We couldn't reach the booking service. Please check your connection and try again."

// NetworkError is a transport failure: DNS, refused connection, timeout,
// or a body that could not be read.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServiceError is a non-2xx response or an error-flagged payload.
// Message holds the upstream-provided text when there was one; Raw keeps
// the response body for display when there was not.
type ServiceError struct {
	Op      string
	Status  int
	Message string
	Raw     string
}

func (e *ServiceError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Raw
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// UserMessage returns the text a customer should see for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		switch {
		case svcErr.Message != "":
			return svcErr.Message
		case svcErr.Raw != "":
			return svcErr.Raw
		default:
			return fmt.Sprintf("HTTP %d", svcErr.Status)
		}
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return GenericNetworkMessage
	}
	return err.Error()
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
