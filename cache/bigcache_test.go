package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/riskengine/config"
	"github.com/wyfcoding/riskengine/metrics"
)

type entry struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

func TestBigCache_RoundTrip(t *testing.T) {
	m := metrics.NewMetrics("cache_test")
	c, err := NewBigCache("par", config.BigCacheConfig{LifeWindow: time.Minute}, m)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	var got []entry
	err = c.Get(ctx, "t1", &got)
	assert.True(t, errors.Is(err, ErrMiss))

	want := []entry{{Key: "DiscountCurve/EUR/0", Value: 1.5}}
	require.NoError(t, c.Set(ctx, "t1", want))
	require.NoError(t, c.Get(ctx, "t1", &got))
	assert.Equal(t, want, got)

	ok, err := c.Exists(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Delete(ctx, "t1", "missing"))
	ok, _ = c.Exists(ctx, "t1")
	assert.False(t, ok)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("par", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("par", "miss")))
}
