package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
version = "1"

[log]
level = "debug"

[simulation]
asof = "2025-01-15"
grid = "6M,1Y,2Y"
samples = 100
seed = 42

[[simulation.factors]]
name = "eur_rate"
process = "ou"
initial = 0.02
volatility = 0.01
mean_reversion = 0.05

[[simulation.correlations]]
first = "eur_rate"
second = "eurusd"
rho = -0.3

[sensitivity]
compute_gamma = true

[[sensitivity.shifts]]
key_type = "DiscountCurve"
size = 0.0001
type = "absolute"

[par_conversion]
continue_on_error = true
disabled_types = ["SurvivalProbability"]

[par_conversion.instruments]
DiscountCurve = ["OIS"]
IndexCurve = ["IRS"]

[database]
driver = "postgres"
dsn = "host=localhost password=hunter2"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "risk.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestReadParsesSections(t *testing.T) {
	var c Config
	require.NoError(t, Read(writeConfig(t, sampleTOML), &c))

	asOf, err := c.Simulation.AsOfDate()
	require.NoError(t, err)
	assert.Equal(t, "2025-01-15", asOf.Format("2006-01-02"))

	ps, err := c.Simulation.GridPeriods()
	require.NoError(t, err)
	assert.Len(t, ps, 3)

	assert.Equal(t, 100, c.Simulation.Samples)
	assert.InDelta(t, -0.3, c.Simulation.Correlation("eurusd", "eur_rate"), 1e-12)
	assert.Equal(t, 1.0, c.Simulation.Correlation("x", "x"))

	s, ok := c.Sensitivity.Shift("DiscountCurve")
	require.True(t, ok)
	assert.Equal(t, 0.0001, s.Size)

	assert.True(t, c.ParConversion.ContinueOnError)
	assert.NotEmpty(t, c.ParConversion.Instruments)
	assert.Equal(t, 1, c.Concurrency.EffectiveWorkers())
}

func TestReadRejectsInvalidGrid(t *testing.T) {
	body := `
[simulation]
asof = "2025-01-15"
grid = "6Q"
samples = 1
`
	var c Config
	err := Read(writeConfig(t, body), &c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Grid")
}

func TestReadRejectsBadAsOf(t *testing.T) {
	body := `
[simulation]
asof = "15/01/2025"
grid = "1Y"
samples = 1
`
	var c Config
	assert.Error(t, Read(writeConfig(t, body), &c))
}

func TestMaskHidesSecrets(t *testing.T) {
	m := map[string]any{
		"Database": map[string]any{"DSN": "x", "Driver": "postgres"},
		"Minio":    map[string]any{"SecretAccessKey": "s", "AccessKeyID": "a", "Endpoint": "e"},
	}
	mask(m)
	db := m["Database"].(map[string]any)
	mi := m["Minio"].(map[string]any)
	assert.Equal(t, "******", db["DSN"])
	assert.Equal(t, "postgres", db["Driver"])
	assert.Equal(t, "******", mi["SecretAccessKey"])
	assert.Equal(t, "******", mi["AccessKeyID"])
	assert.Equal(t, "e", mi["Endpoint"])
}

func TestReloadHooksRunInOrder(t *testing.T) {
	mu.Lock()
	saved := onReload
	onReload = nil
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		onReload = saved
		mu.Unlock()
	})

	var got []string
	RegisterReloadHook(nil)
	RegisterReloadHook(func(c *Config) {
		got = append(got, "first:"+c.Version)
		RegisterReloadHook(func(*Config) { got = append(got, "late") })
	})
	RegisterReloadHook(func(c *Config) { got = append(got, "second:"+c.Version) })

	runReloadHooks(&Config{Version: "2"})
	assert.Equal(t, []string{"first:2", "second:2"}, got)

	got = nil
	runReloadHooks(&Config{Version: "3"})
	assert.Equal(t, []string{"first:3", "second:3", "late"}, got)
}
