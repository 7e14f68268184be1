package health

import (
	"errors"

	"go.uber.org/atomic"
)

// StartupCompleteChecker reports unhealthy until MarkComplete has been called.
type StartupCompleteChecker struct {
	complete *atomic.Bool
}

func NewStartupCompleteChecker() *StartupCompleteChecker {
	return &StartupCompleteChecker{complete: atomic.NewBool(false)}
}

func (checker *StartupCompleteChecker) MarkComplete() {
	checker.complete.Store(true)
}

func (checker *StartupCompleteChecker) Check() error {
	if checker.complete.Load() {
		return nil
	}
	return errors.New("startup is not complete")
}
