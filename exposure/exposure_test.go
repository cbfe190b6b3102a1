package exposure

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/riskengine/cube"
	"github.com/wyfcoding/riskengine/datetime"
	"github.com/wyfcoding/riskengine/valuation"
	"github.com/wyfcoding/riskengine/xerrors"
)

var (
	asOf  = datetime.Date(2024, time.January, 15)
	dates = []time.Time{datetime.Date(2024, time.July, 15), datetime.Date(2025, time.January, 15)}
)

var trades = []valuation.Trade{
	{ID: "T1", NettingSet: "A", Counterparty: "CP1"},
	{ID: "T2", NettingSet: "A", Counterparty: "CP1"},
	{ID: "T3", NettingSet: "B", Counterparty: "CP2"},
}

// fixture 净额集 A：日期 0 的净值 [-1, 0, 1, 2]，日期 1 的净值 [5, 5, -5, -5]，T0 为 0.5。
func fixture(t *testing.T) cube.NPVCube {
	t.Helper()
	c, err := cube.NewCube("float64", asOf, valuation.IDs(trades), dates, 4, 1)
	require.NoError(t, err)
	set := func(id, date int, vals ...float64) {
		for s, v := range vals {
			require.NoError(t, c.Set(v, id, date, s, 0))
		}
	}
	require.NoError(t, c.SetT0(1, 0, 0))
	require.NoError(t, c.SetT0(-0.5, 1, 0))
	require.NoError(t, c.SetT0(-3, 2, 0))
	set(0, 0, 1, 2, 3, 4)
	set(1, 0, -2, -2, -2, -2)
	set(0, 1, 5, 5, -5, -5)
	set(2, 0, -1, -1, -1, -1)
	set(2, 1, -1, -1, -1, -1)
	return c
}

type flatHazard float64

func (h flatHazard) Value(t float64) float64 { return math.Exp(-float64(h) * t) }

func TestCalculator_Profile(t *testing.T) {
	c, err := NewCalculator(fixture(t), trades)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, c.NettingSets())

	p, err := c.Profile("A")
	require.NoError(t, err)
	assert.Equal(t, "CP1", p.Counterparty)
	require.Len(t, p.Dates, 3)
	assert.Equal(t, asOf, p.Dates[0])
	assert.InDelta(t, datetime.YearFraction(asOf, dates[1]), p.Times[2], 1e-15)

	assert.InDelta(t, 0.5, p.EPE[0], 1e-15)
	assert.Zero(t, p.ENE[0])
	assert.InDelta(t, 0.75, p.EPE[1], 1e-15)
	assert.InDelta(t, 0.25, p.ENE[1], 1e-15)
	assert.InDelta(t, 2.5, p.EPE[2], 1e-15)
	assert.InDelta(t, 2.5, p.ENE[2], 1e-15)
	assert.InDelta(t, 2, p.PFE[1], 1e-15)
	assert.InDelta(t, 5, p.PFE[2], 1e-15)

	b, err := c.Profile("B")
	require.NoError(t, err)
	assert.Zero(t, b.EPE[1])
	assert.InDelta(t, 1, b.ENE[1], 1e-15)
	assert.Zero(t, b.PFE[1])

	_, err = c.Profile("Z")
	assert.True(t, errors.Is(err, xerrors.ErrUnknownNettingSet))
}

func TestCalculator_PFEUsesNumeraire(t *testing.T) {
	sd, err := cube.NewScenarioData(dates, 4, []string{cube.DataNumeraire})
	require.NoError(t, err)
	for d := range dates {
		for s := range 4 {
			require.NoError(t, sd.Set(2, d, s, cube.DataNumeraire))
		}
	}
	c, err := NewCalculator(fixture(t), trades, WithScenarioData(sd), WithPFEQuantile(0.5))
	require.NoError(t, err)
	p, err := c.Profile("A")
	require.NoError(t, err)
	// 未平减净值 [-2, 0, 2, 4] 的 50% 分位
	assert.InDelta(t, 0, p.PFE[1], 1e-15)
	// EPE 仍按平减值计算
	assert.InDelta(t, 0.75, p.EPE[1], 1e-15)

	c, err = NewCalculator(fixture(t), trades, WithScenarioData(sd))
	require.NoError(t, err)
	p, err = c.Profile("A")
	require.NoError(t, err)
	assert.InDelta(t, 4, p.PFE[1], 1e-15)
}

func TestCalculator_Profiles(t *testing.T) {
	c, err := NewCalculator(fixture(t), trades, WithWorkers(2))
	require.NoError(t, err)
	all, err := c.Profiles(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "A", all["A"].NettingSet)
	assert.Equal(t, "CP2", all["B"].Counterparty)

	p := all["A"]
	t1, t2 := p.Times[1], p.Times[2]
	assert.InDelta(t, (0.75*t1+2.5*(t2-t1))/t2, p.TimeAveragedEPE(0), 1e-12)
	assert.InDelta(t, 0.75, p.TimeAveragedEPE(t1/2), 1e-12)
}

func TestCVA_DVA(t *testing.T) {
	c, err := NewCalculator(fixture(t), trades)
	require.NoError(t, err)
	p, err := c.Profile("A")
	require.NoError(t, err)

	h := flatHazard(0.02)
	t1, t2 := p.Times[1], p.Times[2]
	cva, err := CVA(p, h, 0.4)
	require.NoError(t, err)
	want := 0.6 * (0.75*(1-h.Value(t1)) + 2.5*(h.Value(t1)-h.Value(t2)))
	assert.InDelta(t, want, cva, 1e-12)

	dva, err := DVA(p, h, 0.4)
	require.NoError(t, err)
	assert.InDelta(t, 0.6*(0.25*(1-h.Value(t1))+2.5*(h.Value(t1)-h.Value(t2))), dva, 1e-12)

	_, err = CVA(p, h, 1)
	assert.Error(t, err)
}

func TestCalculator_CVAFromCube(t *testing.T) {
	c, err := NewCalculator(fixture(t), trades)
	require.NoError(t, err)

	cp, err := cube.NewCube("float64", asOf, []string{"CP1", "CP2"}, dates, 4, 1)
	require.NoError(t, err)
	for id := range 2 {
		require.NoError(t, cp.SetT0(1, id, 0))
		for s := range 4 {
			require.NoError(t, cp.Set(0.99, id, 0, s, 0))
			require.NoError(t, cp.Set(0.97, id, 1, s, 0))
		}
	}
	cva, err := c.CVAFromCube("A", cp, 0, 0.4)
	require.NoError(t, err)
	assert.InDelta(t, 0.6*(0.75*0.01+2.5*0.02), cva, 1e-12)

	cvaB, err := c.CVAFromCube("B", cp, 0, 0.4)
	require.NoError(t, err)
	assert.Zero(t, cvaB)

	short, err := cube.NewCube("float64", asOf, []string{"CP1"}, dates[:1], 4, 1)
	require.NoError(t, err)
	_, err = c.CVAFromCube("A", short, 0, 0.4)
	assert.True(t, errors.Is(err, xerrors.ErrIncompatibleCubes))
}

func TestNewCalculator_Validation(t *testing.T) {
	npv := fixture(t)
	_, err := NewCalculator(npv, trades[:2])
	assert.True(t, errors.Is(err, xerrors.ErrDimMismatch))

	swapped := []valuation.Trade{trades[1], trades[0], trades[2]}
	_, err = NewCalculator(npv, swapped)
	assert.True(t, errors.Is(err, xerrors.ErrUnknownID))

	mixed := []valuation.Trade{trades[0], {ID: "T2", NettingSet: "A", Counterparty: "CP9"}, trades[2]}
	_, err = NewCalculator(npv, mixed)
	assert.Error(t, err)

	_, err = NewCalculator(npv, trades, WithPFEQuantile(1))
	assert.Error(t, err)
	_, err = NewCalculator(npv, trades, WithDepth(1))
	assert.True(t, errors.Is(err, xerrors.ErrIndexOutOfRange))
}
