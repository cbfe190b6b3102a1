package generator

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/riskengine/algorithm/sim"
	"github.com/wyfcoding/riskengine/datetime"
	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/xerrors"
)

var asOf = datetime.Date(2025, time.January, 15)

func threeDateGrid(t *testing.T) *DateGrid {
	t.Helper()
	g, err := ParseDateGrid(asOf, "6M,1Y,2Y")
	require.NoError(t, err)
	return g
}

func TestDateGridValidation(t *testing.T) {
	_, err := NewDateGridFromDates(asOf, nil)
	assert.True(t, errors.Is(err, xerrors.ErrEmptyDateGrid))

	_, err = NewDateGridFromDates(asOf, []time.Time{asOf})
	assert.True(t, errors.Is(err, xerrors.ErrInvalidDateGrid))

	d1 := asOf.AddDate(0, 1, 0)
	_, err = NewDateGridFromDates(asOf, []time.Time{d1, d1})
	assert.True(t, errors.Is(err, xerrors.ErrInvalidDateGrid))

	g := threeDateGrid(t)
	assert.Equal(t, 3, g.Len())
	assert.InDelta(t, 1.0, g.Times()[1], 1e-12)
	_, err = g.Index(asOf.AddDate(0, 0, 3))
	assert.True(t, errors.Is(err, xerrors.ErrUnknownGridDate))
}

type countingBuilder struct {
	grid  *DateGrid
	calls int
}

func (b *countingBuilder) NextPath() ([]scenario.Scenario, error) {
	b.calls++
	out := make([]scenario.Scenario, b.grid.Len())
	for i, d := range b.grid.Dates() {
		out[i] = scenario.NewSimpleScenario(d, "path", float64(b.calls*10+i))
	}
	return out, nil
}

func TestScenarioPathGeneratorTriggersOnFirstDate(t *testing.T) {
	grid := threeDateGrid(t)
	b := &countingBuilder{grid: grid}
	g, err := NewScenarioPathGenerator(grid, b)
	require.NoError(t, err)

	dates := grid.Dates()
	for i, d := range dates {
		s, err := g.Next(d)
		require.NoError(t, err)
		assert.Equal(t, d, s.AsOf())
		assert.Equal(t, float64(10+i), s.Numeraire())
	}
	assert.Equal(t, 1, b.calls)

	// 第二个样本
	_, err = g.Next(dates[0])
	require.NoError(t, err)
	assert.Equal(t, 2, b.calls)
}

func TestScenarioPathGeneratorStepMismatch(t *testing.T) {
	grid := threeDateGrid(t)
	b := &countingBuilder{grid: grid}
	g, err := NewScenarioPathGenerator(grid, b)
	require.NoError(t, err)

	dates := grid.Dates()
	_, err = g.Next(dates[1])
	assert.True(t, errors.Is(err, xerrors.ErrStepMismatch))
	assert.Equal(t, 0, b.calls)

	_, err = g.Next(dates[0])
	require.NoError(t, err)
	_, err = g.Next(dates[2])
	assert.True(t, errors.Is(err, xerrors.ErrStepMismatch))

	require.NoError(t, g.Reset())
	_, err = g.Next(dates[1])
	assert.True(t, errors.Is(err, xerrors.ErrStepMismatch))
}

func TestStaticScenarioGenerator(t *testing.T) {
	s := scenario.NewSimpleScenario(asOf, "t0", 1)
	g := NewStaticScenarioGenerator(s)
	for _, d := range []time.Time{asOf, asOf.AddDate(1, 0, 0)} {
		got, err := g.Next(d)
		require.NoError(t, err)
		assert.Same(t, s, got)
	}
}

func TestCrossAssetModelScenarioGenerator(t *testing.T) {
	grid := threeDateGrid(t)
	proc, err := sim.NewCorrelatedProcess([]sim.Factor{
		{Name: "eur_rate", Kind: sim.OU, Initial: 0.02, MeanReversion: 0.1, LongTermMean: 0.02},
		{Name: "eurusd", Kind: sim.GBM, Initial: 1.1, Volatility: 0.1},
	}, nil)
	require.NoError(t, err)
	paths, err := proc.NewPathGenerator(grid.Times(), 42, 0)
	require.NoError(t, err)

	fx := scenario.NewKey(scenario.FXSpot, "EURUSD", 0)
	df5 := scenario.NewKey(scenario.DiscountCurve, "EUR", 1)
	df1 := scenario.NewKey(scenario.DiscountCurve, "EUR", 0)
	model := CrossAssetModel{
		Mappings: []FactorMapping{
			{Key: fx, Factor: 1, Transform: Level},
			{Key: df5, Factor: 0, Transform: Discount, Tenor: 5},
			{Key: df1, Factor: 0, Transform: Discount, Tenor: 1},
		},
		NumeraireFactor: 0,
	}
	g, err := NewCrossAssetModelScenarioGenerator(model, paths, scenario.NewSimpleScenarioFactory(), grid)
	require.NoError(t, err)
	assert.Equal(t, []scenario.RiskFactorKey{df1, df5, fx}, g.Keys())

	var prev scenario.Scenario
	for _, d := range grid.Dates() {
		s, err := g.Next(d)
		require.NoError(t, err)
		assert.Equal(t, g.Keys(), s.Keys())
		// 零波动率下利率恒为 0.02
		assert.InDelta(t, math.Exp(-0.02*5), scenario.MustGet(s, df5), 1e-12)
		assert.Greater(t, s.Numeraire(), 1.0)
		if prev != nil {
			assert.Greater(t, s.Numeraire(), prev.Numeraire())
		}
		prev = s
	}
	coords := prev.Coordinates()[df1.Curve()]
	assert.Equal(t, []float64{1, 5}, coords)

	_, err = NewCrossAssetModelScenarioGenerator(CrossAssetModel{Mappings: []FactorMapping{{Key: fx}, {Key: fx}}}, paths,
		scenario.NewSimpleScenarioFactory(), grid)
	assert.True(t, errors.Is(err, xerrors.ErrDuplicateID))
}

func histScenario(d time.Time, df, fx float64) scenario.Scenario {
	s := scenario.NewSimpleScenario(d, "", 1)
	_ = s.Add(scenario.NewKey(scenario.DiscountCurve, "EUR", 0), df)
	_ = s.Add(scenario.NewKey(scenario.FXVolatility, "EURUSD", 0), fx)
	return s
}

func TestHistoricalScenarioGenerator(t *testing.T) {
	d := func(day int) time.Time { return datetime.Date(2024, time.March, day) }
	loader, err := NewHistoricalScenarioLoader([]scenario.Scenario{
		histScenario(d(3), 0.90, 0.10),
		histScenario(d(1), 0.80, 0.12),
		histScenario(d(2), 0.88, 0.11),
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{d(1), d(2), d(3)}, loader.Dates())

	base := histScenario(asOf, 0.95, 0.20)
	g, err := NewHistoricalScenarioGenerator(loader, base, 1, nil, scenario.NewSimpleScenarioFactory())
	require.NoError(t, err)
	assert.Equal(t, 2, g.NumScenarios())

	s, err := g.Next(asOf)
	require.NoError(t, err)
	assert.InDelta(t, 0.95*0.88/0.80, scenario.MustGet(s, scenario.NewKey(scenario.DiscountCurve, "EUR", 0)), 1e-12)
	assert.InDelta(t, 0.20+(0.11-0.12), scenario.MustGet(s, scenario.NewKey(scenario.FXVolatility, "EURUSD", 0)), 1e-12)
	assert.Equal(t, "hist_2024-03-01_2024-03-02", s.Label())

	_, err = g.Next(asOf)
	require.NoError(t, err)
	_, err = g.Next(asOf)
	assert.True(t, errors.Is(err, xerrors.ErrPathExhausted))

	require.NoError(t, g.Reset())
	_, err = g.Next(asOf)
	assert.NoError(t, err)

	_, err = NewHistoricalScenarioLoader([]scenario.Scenario{histScenario(d(1), 1, 1), histScenario(d(1), 1, 1)})
	assert.True(t, errors.Is(err, xerrors.ErrDuplicateID))
}

func TestZeroToParScenarioGenerator(t *testing.T) {
	k0 := scenario.NewKey(scenario.DiscountCurve, "EUR", 0)
	k1 := scenario.NewKey(scenario.DiscountCurve, "EUR", 1)
	fx := scenario.NewKey(scenario.FXSpot, "EURUSD", 0)

	zeroBase := scenario.NewSimpleScenario(asOf, "base", 1)
	require.NoError(t, zeroBase.Add(k0, 0.99))
	require.NoError(t, zeroBase.Add(k1, 0.95))
	require.NoError(t, zeroBase.Add(fx, 1.1))

	shocked := scenario.NewSimpleScenario(asOf, "shock", 1)
	require.NoError(t, shocked.Add(k0, 0.985))
	require.NoError(t, shocked.Add(k1, 0.94))
	require.NoError(t, shocked.Add(fx, 1.2))

	parBase := map[scenario.RiskFactorKey]float64{k0: 0.01}
	g := NewZeroToParScenarioGenerator(NewStaticScenarioGenerator(shocked), zeroBase, parBase,
		[]scenario.KeyType{scenario.DiscountCurve}, scenario.NewSimpleScenarioFactory(), nil)
	assert.Equal(t, []scenario.RiskFactorKey{k1}, g.SkippedParKeys())

	_, err := g.LastParScenario()
	assert.Error(t, err)

	zero, err := g.Next(asOf)
	require.NoError(t, err)
	assert.Same(t, shocked, zero)
	assert.True(t, zero.Has(k1))

	par, err := g.LastParScenario()
	require.NoError(t, err)
	assert.InDelta(t, 0.01+(0.985-0.99), scenario.MustGet(par, k0), 1e-15)
	assert.False(t, par.Has(k1))
	assert.Equal(t, 1.2, scenario.MustGet(par, fx))
}

func TestSensitivityScenarioGenerator(t *testing.T) {
	k0 := scenario.NewKey(scenario.DiscountCurve, "EUR", 0)
	k1 := scenario.NewKey(scenario.DiscountCurve, "EUR", 1)
	fx := scenario.NewKey(scenario.FXSpot, "EURUSD", 0)
	f, err := scenario.NewSimpleScenarioFactoryWithKeys([]scenario.RiskFactorKey{k0, k1, fx},
		scenario.Coordinates{k0.Curve(): {1, 5}})
	require.NoError(t, err)
	base := f.BuildScenario(asOf, true, "base", 1)
	require.NoError(t, base.Add(k0, 0.98))
	require.NoError(t, base.Add(k1, 0.90))
	require.NoError(t, base.Add(fx, 1.1))

	g, err := NewSensitivityScenarioGenerator(base, map[scenario.KeyType]ShiftSpec{
		scenario.DiscountCurve: {Size: 0.0001},
		scenario.FXSpot:        {Size: 0.01, Type: RelativeShift},
	}, true)
	require.NoError(t, err)

	descs := g.Descriptions()
	require.Len(t, descs, 7)
	assert.Equal(t, "Base", descs[0].String())
	assert.Equal(t, "Up:DiscountCurve/EUR/1", descs[3].String())
	assert.Equal(t, "5Y", descs[3].IndexDesc)

	up := g.Scenarios()[3]
	assert.InDelta(t, 0.90*math.Exp(-0.0001*5), scenario.MustGet(up, k1), 1e-15)
	assert.Equal(t, 0.98, scenario.MustGet(up, k0))
	down := g.Scenarios()[6]
	assert.InDelta(t, 1.1*0.99, scenario.MustGet(down, fx), 1e-15)
	assert.Equal(t, base.Keys(), up.Keys())

	for range 7 {
		_, err := g.Next(asOf)
		require.NoError(t, err)
	}
	_, err = g.Next(asOf)
	assert.True(t, errors.Is(err, xerrors.ErrPathExhausted))
	_, err = g.Next(asOf.AddDate(0, 0, 1))
	assert.Error(t, err)

	bare := scenario.NewSimpleScenario(asOf, "bare", 1)
	require.NoError(t, bare.Add(k0, 0.99))
	_, err = NewSensitivityScenarioGenerator(bare, map[scenario.KeyType]ShiftSpec{scenario.DiscountCurve: {Size: 1e-4}}, false)
	assert.True(t, xerrors.IsType(err, xerrors.ErrConfiguration))
}
