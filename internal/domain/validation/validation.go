// Package validation collects field-level input problems into a single error.
package validation

import (
	"fmt"
	"strings"
)

// Error reports malformed or missing input. Details lists one human-readable
// problem per offending field.
type Error struct {
	Details []string
}

func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return "validation error"
	}
	return "validation error: " + strings.Join(e.Details, "; ")
}

// Collector accumulates problems while a request is checked.
type Collector struct {
	details []string
}

// Addf records a problem.
func (c *Collector) Addf(format string, args ...any) {
	c.details = append(c.details, fmt.Sprintf(format, args...))
}

// Check records msg when ok is false.
func (c *Collector) Check(ok bool, msg string) {
	if !ok {
		c.details = append(c.details, msg)
	}
}

// Err returns an *Error when any problem was recorded, or nil.
func (c *Collector) Err() error {
	if len(c.details) == 0 {
		return nil
	}
	return &Error{Details: c.details}
}

// New returns an *Error with the given details.
func New(details ...string) *Error {
	return &Error{Details: details}
}
