// Package armadacontext provides a context.Context that carries a logrus entry, so that log fields added for a
// cycle or a query follow the work wherever the context goes.
package armadacontext

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Context struct {
	context.Context
	Log *logrus.Entry
}

// Background is context.Background with the standard logger.
func Background() *Context {
	return New(context.Background(), logrus.NewEntry(logrus.StandardLogger()))
}

func New(ctx context.Context, log *logrus.Entry) *Context {
	return &Context{
		Context: ctx,
		Log:     log,
	}
}

func (c *Context) derive(ctx context.Context) *Context {
	return New(ctx, c.Log)
}

func WithCancel(parent *Context) (*Context, context.CancelFunc) {
	c, cancel := context.WithCancel(parent.Context)
	return parent.derive(c), cancel
}

func WithDeadline(parent *Context, d time.Time) (*Context, context.CancelFunc) {
	c, cancel := context.WithDeadline(parent.Context, d)
	return parent.derive(c), cancel
}

func WithTimeout(parent *Context, timeout time.Duration) (*Context, context.CancelFunc) {
	return WithDeadline(parent, time.Now().Add(timeout))
}

// Detached returns a context with parent's logger that is never cancelled and has no deadline.
// Use it for cleanup that must run after parent is done; add a timeout before blocking on it.
func Detached(parent *Context) *Context {
	return parent.derive(context.Background())
}

func WithLogField(parent *Context, key string, val interface{}) *Context {
	return New(parent.Context, parent.Log.WithField(key, val))
}

func WithLogFields(parent *Context, fields logrus.Fields) *Context {
	return New(parent.Context, parent.Log.WithFields(fields))
}

// ErrGroup returns an errgroup running at most limit goroutines at once, and a context that is cancelled
// as soon as one of them fails. A limit below one means no limit.
func ErrGroup(ctx *Context, limit int) (*errgroup.Group, *Context) {
	group, goctx := errgroup.WithContext(ctx)
	if limit > 0 {
		group.SetLimit(limit)
	}
	return group, ctx.derive(goctx)
}
