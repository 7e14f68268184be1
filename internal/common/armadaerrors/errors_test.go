package armadaerrors

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrNotFound_Error(t *testing.T) {
	tests := map[string]struct {
		err  *ErrNotFound
		want string
	}{
		"value only":      {&ErrNotFound{Value: "sys-1"}, `resource "sys-1" does not exist`},
		"type and value":  {&ErrNotFound{Type: "system", Value: "sys-1"}, `resource "sys-1" of type "system" does not exist`},
		"with message":    {&ErrNotFound{Type: "system", Value: "sys-1", Message: "deleted"}, `resource "sys-1" of type "system" does not exist; deleted`},
		"no type message": {&ErrNotFound{Value: "sys-1", Message: "deleted"}, `resource "sys-1" does not exist; deleted`},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestErrInvalidArgument_Error(t *testing.T) {
	err := &ErrInvalidArgument{Name: "bins", Value: 3}
	assert.Equal(t, `value "3" is invalid for field "bins"`, err.Error())

	err.Message = "must be ascending"
	assert.Equal(t, `value "3" is invalid for field "bins"; must be ascending`, err.Error())
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(&ErrNotFound{}))
	assert.True(t, IsNotFound(errors.WithMessage(&ErrNotFound{}, "foo")))
	assert.True(t, IsNotFound(errors.Wrap(&ErrNotFound{}, "foo")))
	assert.False(t, IsNotFound(errors.New("foo")))
	assert.False(t, IsNotFound(nil))
}

func TestIsInvalidArgument(t *testing.T) {
	assert.True(t, IsInvalidArgument(&ErrInvalidArgument{}))
	assert.True(t, IsInvalidArgument(errors.WithStack(&ErrInvalidArgument{})))
	assert.False(t, IsInvalidArgument(&ErrNotFound{}))
}
