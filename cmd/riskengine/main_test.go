package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/riskengine/cube"
	"github.com/wyfcoding/riskengine/datetime"
)

var (
	asOf  = datetime.Date(2024, time.January, 15)
	dates = []time.Time{datetime.Date(2024, time.July, 15), datetime.Date(2025, time.January, 15)}
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	root := newRootCmd()
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// writeTestCube 每个 id 的所有单元取 base+下标，T0 取 -base。
func writeTestCube(t *testing.T, name string, ids []string, base float64) string {
	t.Helper()
	c, err := cube.NewCube("float64", asOf, ids, dates, 2, 1)
	require.NoError(t, err)
	for i := range ids {
		v := base + float64(i)
		require.NoError(t, c.SetT0(-v, i, 0))
		for d := range dates {
			for s := range 2 {
				require.NoError(t, c.Set(v, i, d, s, 0))
			}
		}
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, writeCube(path, c))
	return path
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "riskengine dev"))
}

func TestCubeInfo(t *testing.T) {
	path := writeTestCube(t, "a.cube.gz", []string{"A", "B"}, 1)
	out, err := run(t, "cube", "info", path, "--ids")
	require.NoError(t, err)
	assert.Contains(t, out, "float64")
	assert.Contains(t, out, "2024-01-15")
	assert.Contains(t, out, "(2024-07-15 .. 2025-01-15)")
	assert.Contains(t, out, "min=1 max=2 mean=1.5")
	assert.True(t, strings.HasSuffix(out, "A\nB\n"))

	_, err = run(t, "cube", "info", filepath.Join(t.TempDir(), "missing.cube.gz"))
	assert.Error(t, err)
}

func TestCubeExport(t *testing.T) {
	path := writeTestCube(t, "a.cube.gz", []string{"A", "B"}, 1)
	out, err := run(t, "cube", "export", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1+2*(1+2*2))
	assert.Equal(t, "id,date,sample,depth,value", lines[0])
	assert.Equal(t, "A,2024-01-15,t0,0,-1", lines[1])
	assert.Equal(t, "A,2024-07-15,0,0,1", lines[2])
	assert.Equal(t, "B,2025-01-15,1,0,2", lines[len(lines)-1])

	csvPath := filepath.Join(t.TempDir(), "a.csv")
	_, err = run(t, "cube", "export", path, "-o", csvPath, "--depth", "0")
	require.NoError(t, err)
	b, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, out, string(b))

	_, err = run(t, "cube", "export", path, "--depth", "1")
	assert.Error(t, err)
}

func TestCubeJoin(t *testing.T) {
	a := writeTestCube(t, "a.cube.gz", []string{"A"}, 1)
	b := writeTestCube(t, "b.cube.gz", []string{"A", "B"}, 10)
	outPath := filepath.Join(t.TempDir(), "joint.cube.gz")

	out, err := run(t, "cube", "join", a, b, "-o", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "2 ids")

	joint, err := readCube(outPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, joint.IDs())
	v, err := joint.Get(0, 1, 1, 0)
	require.NoError(t, err)
	assert.InDelta(t, 11, v, 1e-12)
	v, err = joint.GetT0(1, 0)
	require.NoError(t, err)
	assert.InDelta(t, -11, v, 1e-12)

	_, err = run(t, "cube", "join", a, b, "-o", outPath, "--accumulator", "max(acc, value)", "--init", "-1000")
	require.NoError(t, err)
	joint, err = readCube(outPath)
	require.NoError(t, err)
	v, err = joint.Get(0, 0, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 10, v, 1e-12)

	_, err = run(t, "cube", "join", a, b, "-o", outPath, "--unique")
	assert.Error(t, err)
}

const configTOML = `
[simulation]
asof = "2024-01-15"
grid = "6M,1Y"
samples = 10

[[simulation.factors]]
name = "eur_rate"
process = "ou"
initial = 0.02
volatility = 0.01

[cube]
accumulator = "acc + value"
`

func TestConfigCheck(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "risk.toml")
	require.NoError(t, os.WriteFile(path, []byte(configTOML), 0o600))

	out, err := run(t, "config", "check", path)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration valid")
	assert.Contains(t, out, "grid 6M,1Y, 10 samples")

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte(strings.Replace(configTOML, "acc + value", "acc +", 1)), 0o600))
	_, err = run(t, "config", "check", bad)
	assert.Error(t, err)

	missingStress := filepath.Join(dir, "stress.toml")
	require.NoError(t, os.WriteFile(missingStress, []byte(configTOML+"\n[stress]\nfile = \""+filepath.Join(dir, "none.toml")+"\"\n"), 0o600))
	_, err = run(t, "config", "check", missingStress)
	assert.Error(t, err)
}

func TestCubeSaveAndList(t *testing.T) {
	dir := t.TempDir()
	body := strings.Replace(configTOML, "[cube]\n", "[cube]\nstore = \"file\"\ndir = \""+filepath.Join(dir, "store")+"\"\n", 1)
	body += "\n[run_id]\nmachine_id = 3\n"
	cfg := filepath.Join(dir, "risk.toml")
	require.NoError(t, os.WriteFile(cfg, []byte(body), 0o600))
	src := writeTestCube(t, "a.cube.gz", []string{"A", "B"}, 1)

	out, err := run(t, "cube", "save", src, "-c", cfg)
	require.NoError(t, err)
	runID := strings.TrimSpace(out)
	_, err = strconv.ParseUint(runID, 10, 64)
	require.NoError(t, err, runID)

	_, err = run(t, "cube", "save", src, "-c", cfg, "--name", "eod")
	require.NoError(t, err)

	out, err = run(t, "cube", "list", "-c", cfg)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{runID, "eod"}, strings.Fields(out))

	stored, err := readCube(filepath.Join(dir, "store", "eod.cube.gz"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, stored.IDs())

	_, err = run(t, "cube", "save", src)
	assert.Error(t, err)
}

const stressTOML = `
[[scenarios]]
label = "parallel_up"
ir_curve_par_shifts = true

[[scenarios.curves]]
type = "DiscountCurve"
name = "EUR"
tenors = ["1Y", "2Y"]
shifts = [0.001, 0.001]

[[scenarios]]
label = "fx_down"

[[scenarios.spots]]
type = "FXSpot"
name = "USDEUR"
shift_type = "relative"
shift = -0.1
`

func TestStressCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stress.toml")
	require.NoError(t, os.WriteFile(path, []byte(stressTOML), 0o600))
	out, err := run(t, "stress", "check", path)
	require.NoError(t, err)
	assert.Equal(t, "parallel_up: 1 curve shifts, 0 spot shifts (par)\nfx_down: 0 curve shifts, 1 spot shifts\n", out)
}
