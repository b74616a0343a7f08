package rfe_test

import (
	"errors"
	"fmt"
	"testing"

	rfe "github.com/brimdata/ruleflow/errors"
	"github.com/stretchr/testify/assert"
)

func TestE(t *testing.T) {
	err := rfe.E(rfe.Invalid, "unknown function %q", "foo")
	assert.EqualError(t, err, `invalid program: unknown function "foo"`)
	assert.True(t, rfe.IsInvalid(err))
	assert.False(t, rfe.IsNotImplemented(err))

	inner := errors.New("boom")
	err = rfe.E(inner)
	assert.EqualError(t, err, "boom")
	assert.ErrorIs(t, err, inner)

	var e *rfe.Error
	assert.True(t, errors.As(rfe.E(rfe.NotImplemented), &e))
	assert.Equal(t, rfe.NotImplemented, e.Kind)
	assert.EqualError(t, e, "not implemented")
	assert.ErrorContains(t, rfe.E(3.5), "unknown type float64 value 3.5 in errors.E call at ")
}

func TestNotImplementedWrapped(t *testing.T) {
	err := fmt.Errorf("statement 2: %w", rfe.E(rfe.NotImplemented, "%s of %s", "monitor", "action"))
	assert.True(t, rfe.IsNotImplemented(err))
	assert.EqualError(t, err, "statement 2: not implemented: monitor of action")
}
