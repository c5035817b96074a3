package app_errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	t.Run("Wrapped_Transient", func(t *testing.T) {
		err := fmt.Errorf("polling parser: %w", Transient("get-last50", errors.New("timeout")))
		assert.Equal(t, KindTransient, KindOf(err))
		assert.True(t, IsTransient(err))
	})

	t.Run("Plain_Error", func(t *testing.T) {
		assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	})

	t.Run("Sentinel_Survives_Wrapping", func(t *testing.T) {
		err := Validation("parse market", ErrUnsupportedMarket)
		assert.ErrorIs(t, err, ErrUnsupportedMarket)
		assert.Equal(t, "parse market: validation: unsupported marketplace", err.Error())
	})
}

func TestNew_NilError(t *testing.T) {
	assert.NoError(t, New(KindFatal, "op", nil))
}
