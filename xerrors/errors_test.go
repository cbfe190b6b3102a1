package xerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKeepsSentinelIntact(t *testing.T) {
	err := Derive(ErrMissingRiskFactor, "key %s", "DiscountCurve/EUR/3")

	assert.True(t, errors.Is(err, ErrMissingRiskFactor))
	assert.False(t, errors.Is(err, ErrUnknownID))
	assert.Equal(t, "", ErrMissingRiskFactor.Detail)
	assert.Contains(t, err.Error(), "DiscountCurve/EUR/3")
	assert.Equal(t, ErrMissingData, TypeOf(err))
}

func TestWrapPreservesType(t *testing.T) {
	inner := Derive(ErrSingularMatrix, "par keys [%d]", 3)
	wrapped := fmt.Errorf("stress scenario parallel_up: %w", inner)

	e, ok := FromError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrNumerical, e.Type)
	assert.True(t, IsType(wrapped, ErrNumerical))

	w := Wrap(wrapped, ErrInternal, "conversion failed")
	assert.Equal(t, ErrNumerical, w.Type)
	assert.True(t, errors.Is(w, ErrSingularMatrix))
}

func TestTypeOfPlainError(t *testing.T) {
	assert.Equal(t, ErrUnknown, TypeOf(errors.New("plain")))
	assert.False(t, IsType(nil, ErrUnknown))
	assert.Equal(t, "Unknown", ErrorType(99).String())
}
