package health

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type checkerFunc func() error

func (f checkerFunc) Check() error { return f() }

var (
	healthy   = checkerFunc(func() error { return nil })
	unhealthy = func(msg string) Checker { return checkerFunc(func() error { return errors.New(msg) }) }
)

func TestStartupCompleteChecker(t *testing.T) {
	checker := NewStartupCompleteChecker()
	assert.Error(t, checker.Check())
	checker.MarkComplete()
	assert.NoError(t, checker.Check())
}

func TestMultiChecker(t *testing.T) {
	tests := map[string]struct {
		checkers []Checker
		want     string
	}{
		"no checkers":    {},
		"all healthy":    {checkers: []Checker{healthy, healthy}},
		"one unhealthy":  {checkers: []Checker{healthy, unhealthy("a")}, want: "a"},
		"both unhealthy": {checkers: []Checker{unhealthy("a"), unhealthy("b")}, want: "a\nb"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := NewMultiChecker(tc.checkers...).Check()
			if tc.want == "" {
				assert.NoError(t, err)
			} else {
				assert.EqualError(t, err, tc.want)
			}
		})
	}
}

func TestMultiChecker_Add(t *testing.T) {
	mc := NewMultiChecker()
	assert.NoError(t, mc.Check())
	mc.Add(unhealthy("late"))
	assert.EqualError(t, mc.Check(), "late")
}

func TestSetupHttpMux(t *testing.T) {
	tests := map[string]struct {
		checker  Checker
		wantCode int
		wantBody string
	}{
		"healthy":   {checker: healthy, wantCode: http.StatusNoContent},
		"unhealthy": {checker: unhealthy("cycle stuck"), wantCode: http.StatusServiceUnavailable, wantBody: "cycle stuck"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			mux := http.NewServeMux()
			SetupHttpMux(mux, tc.checker)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Equal(t, tc.wantBody, rec.Body.String())
		})
	}
}
