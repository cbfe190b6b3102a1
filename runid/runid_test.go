package runid

import (
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sony/sonyflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/riskengine/config"
	"github.com/wyfcoding/riskengine/datetime"
	"github.com/wyfcoding/riskengine/xerrors"
)

func nextN(t *testing.T, g Generator, n int) []uint64 {
	t.Helper()
	ids := make([]uint64, n)
	for i := range ids {
		s, err := g.Next()
		require.NoError(t, err)
		ids[i], err = strconv.ParseUint(s, 10, 64)
		require.NoError(t, err)
	}
	return ids
}

func TestSonyflakeIDsIncrease(t *testing.T) {
	g, err := New(config.RunIDConfig{MachineID: 42})
	require.NoError(t, err)
	ids := nextN(t, g, 300)
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}
	assert.EqualValues(t, 42, sonyflake.Decompose(ids[0])["machine-id"])
}

func TestSnowflakeCarriesNode(t *testing.T) {
	saved := snowflake.Epoch
	t.Cleanup(func() { snowflake.Epoch = saved })

	g, err := New(config.RunIDConfig{Generator: "snowflake", MachineID: 7, StartTime: "2024-01-01"})
	require.NoError(t, err)
	assert.Equal(t, datetime.Date(2024, time.January, 1).UnixMilli(), snowflake.Epoch)

	s, err := g.Next()
	require.NoError(t, err)
	id, err := snowflake.ParseString(s)
	require.NoError(t, err)
	assert.EqualValues(t, 7, id.Node())

	ids := nextN(t, g, 100)
	assert.Greater(t, ids[99], ids[0])
}

func TestNewRejectsBadConfig(t *testing.T) {
	cases := map[string]config.RunIDConfig{
		"unknown generator":    {Generator: "uuid"},
		"snowflake node range": {Generator: "snowflake", MachineID: 1024},
		"sonyflake range":      {MachineID: 70000},
		"bad start":            {StartTime: "01/01/2024"},
		"future start":         {StartTime: "2999-01-01"},
	}
	for name, cfg := range cases {
		_, err := New(cfg)
		assert.Equal(t, xerrors.ErrConfiguration, xerrors.TypeOf(err), name)
	}
}
