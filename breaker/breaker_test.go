package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/riskengine/config"
)

func TestBreaker_Disabled(t *testing.T) {
	b := NewBreaker(Settings{Name: "db"}, nil, nil)
	v, err := ExecuteTyped(b, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	b := NewBreaker(Settings{
		Name:        "db",
		Config:      config.CircuitBreakerConfig{Enabled: true, Timeout: time.Minute, Interval: time.Minute},
		MinRequests: 2,
	}, nil, nil)

	boom := errors.New("boom")
	assert.ErrorIs(t, b.Execute(func() error { return boom }), boom)
	assert.ErrorIs(t, b.Execute(func() error { return boom }), boom)
	assert.Equal(t, gobreaker.StateOpen, b.State())

	err := b.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}
