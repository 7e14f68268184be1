package logging

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithStacktrace(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	entry := logrus.NewEntry(logger)

	err := errors.New("test error")
	withStack := WithStacktrace(entry, err)
	assert.Equal(t, err, withStack.Data[logrus.ErrorKey])
	assert.Equal(t, err.(stackTracer).StackTrace(), withStack.Data[Stacktrace])
}

func TestWithStacktrace_NoStack(t *testing.T) {
	entry := logrus.NewEntry(logrus.New())
	withStack := WithStacktrace(entry, plainError("boom"))
	_, ok := withStack.Data[Stacktrace]
	assert.False(t, ok)
}

func TestExtractStack_FollowsCause(t *testing.T) {
	inner := errors.New("inner")
	wrapped := errors.WithMessage(inner, "outer")
	assert.Equal(t, inner.(stackTracer).StackTrace(), ExtractStack(wrapped))
	assert.Nil(t, ExtractStack(plainError("no stack")))
	assert.Nil(t, ExtractStack(nil))
}

func TestExtractStack_FollowsUnwrap(t *testing.T) {
	inner := errors.New("inner")
	wrapped := fmt.Errorf("collecting: %w", inner)
	assert.Equal(t, inner.(stackTracer).StackTrace(), ExtractStack(wrapped))
}

func TestFileConfig_Validate(t *testing.T) {
	assert.NoError(t, FileConfig{}.Validate())
	assert.Error(t, FileConfig{Enabled: true}.Validate())
	valid := FileConfig{Enabled: true, LogFile: "/tmp/phonehome.log", MaxSizeMb: 10, MaxBackups: 1, MaxAgeDays: 1}
	assert.NoError(t, valid.Validate())

	w, err := NewFileWriter(valid)
	require.NoError(t, err)
	assert.NotNil(t, w)
}

func TestPrometheusHook(t *testing.T) {
	registry := prometheus.NewRegistry()
	hook := NewPrometheusHook(registry)

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	logger.AddHook(hook)
	logger.Warn("one")
	logger.Warn("two")
	logger.Error("three")

	assert.Equal(t, 2.0, testutil.ToFloat64(hook.counters[logrus.WarnLevel]))
	assert.Equal(t, 1.0, testutil.ToFloat64(hook.counters[logrus.ErrorLevel]))
	assert.Equal(t, 0.0, testutil.ToFloat64(hook.counters[logrus.InfoLevel]))
}

type plainError string

func (e plainError) Error() string { return string(e) }
