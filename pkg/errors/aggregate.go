package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// Attempt records the outcome of one provider in a brokered request.
type Attempt struct {
	Provider string `json:"provider"`
	Skipped  bool   `json:"skipped"`
	Reason   string `json:"reason"`
	Err      error  `json:"-"`
}

// AggregateError is returned when every candidate provider was either
// skipped by its rate window or failed. It enumerates each attempt so the
// caller can see exactly why nothing served the request.
type AggregateError struct {
	Attempts []Attempt
}

// Error implements the error interface.
func (e *AggregateError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("[%s] no providers configured", TypeExhausted)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] all %d providers unavailable:", TypeExhausted, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Skipped {
			fmt.Fprintf(&b, " %s(skipped: %s)", a.Provider, a.Reason)
			continue
		}
		fmt.Fprintf(&b, " %s(%s)", a.Provider, a.Reason)
	}
	return b.String()
}

// Unwrap exposes the underlying attempt errors to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// HTTPStatusCode returns the status code to surface on an HTTP transport.
func (e *AggregateError) HTTPStatusCode() int {
	return http.StatusBadGateway
}
