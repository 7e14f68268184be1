package logging

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Stacktrace is the log field holding the stack trace of a logged error.
const Stacktrace = "stacktrace"

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// WithStacktrace adds err and, if one can be found, its pkg/errors stack trace to logger.
func WithStacktrace(logger *logrus.Entry, err error) *logrus.Entry {
	logger = logger.WithError(err)
	if stack := ExtractStack(err); stack != nil {
		logger = logger.WithField(Stacktrace, stack)
	}
	return logger
}

// ExtractStack returns the outermost stack trace in the chain of err, following both Cause and Unwrap,
// or nil if there is none.
func ExtractStack(err error) errors.StackTrace {
	for err != nil {
		if tracer, ok := err.(stackTracer); ok {
			return tracer.StackTrace()
		}
		switch wrapper := err.(type) {
		case interface{ Cause() error }:
			err = wrapper.Cause()
		case interface{ Unwrap() error }:
			err = wrapper.Unwrap()
		default:
			return nil
		}
	}
	return nil
}
