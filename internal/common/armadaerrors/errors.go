// Package armadaerrors holds the typed errors shared by the directories and the histogram.
// Callers match them anywhere in a wrapped chain with IsNotFound and IsInvalidArgument.
package armadaerrors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a directory has no record of a system, node or cluster.
type ErrNotFound struct {
	// Kind of record, e.g. "system" or "node". Optional.
	Type  string
	Value string
	// Optional detail appended to the error.
	Message string
}

func (err *ErrNotFound) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "resource %q", err.Value)
	if err.Type != "" {
		fmt.Fprintf(&b, " of type %q", err.Type)
	}
	b.WriteString(" does not exist")
	return withMessage(b.String(), err.Message)
}

// ErrInvalidArgument is returned for malformed input such as unordered histogram bins.
type ErrInvalidArgument struct {
	Name    string
	Value   interface{}
	Message string
}

func (err *ErrInvalidArgument) Error() string {
	return withMessage(fmt.Sprintf("value %q is invalid for field %q", fmt.Sprint(err.Value), err.Name), err.Message)
}

func withMessage(s, message string) string {
	if message == "" {
		return s
	}
	return s + "; " + message
}

func IsNotFound(err error) bool {
	var e *ErrNotFound
	return errors.As(err, &e)
}

func IsInvalidArgument(err error) bool {
	var e *ErrInvalidArgument
	return errors.As(err, &e)
}
