package market

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/riskengine/datetime"
	"github.com/wyfcoding/riskengine/scenario"
)

func flatScenario(t *testing.T, rate, hazard, vol float64) scenario.Scenario {
	t.Helper()
	times := []float64{0.5, 1, 2, 5}
	coords := scenario.Coordinates{
		{Type: scenario.DiscountCurve, Name: "EUR"}:        times,
		{Type: scenario.SurvivalProbability, Name: "CPTY"}: times,
		{Type: scenario.OptionletVolatility, Name: "EUR"}:  times,
	}
	var keys []scenario.RiskFactorKey
	for id := range coords {
		for i := range times {
			keys = append(keys, scenario.NewKey(id.Type, id.Name, i))
		}
	}
	scenario.SortKeys(keys)
	sd, err := scenario.NewSharedData(keys, coords)
	require.NoError(t, err)
	s := scenario.NewSimpleScenarioWithShared(datetime.Date(2024, time.January, 15), "base", 1, sd)
	for i, tt := range times {
		require.NoError(t, s.Add(scenario.NewKey(scenario.DiscountCurve, "EUR", i), math.Exp(-rate*tt)))
		require.NoError(t, s.Add(scenario.NewKey(scenario.SurvivalProbability, "CPTY", i), math.Exp(-hazard*tt)))
		require.NoError(t, s.Add(scenario.NewKey(scenario.OptionletVolatility, "EUR", i), vol))
	}
	return s
}

func TestCurve_LogLinear(t *testing.T) {
	c, err := NewCurve([]float64{1, 2}, []float64{math.Exp(-0.02), math.Exp(-0.06)})
	require.NoError(t, err)
	assert.InDelta(t, math.Exp(-0.04), c.Value(1.5), 1e-15)
	assert.InDelta(t, 0.02, c.ZeroRate(0.5), 1e-14)
	assert.InDelta(t, 0.03, c.ZeroRate(3), 1e-14)
	assert.Equal(t, 1.0, c.Value(0))

	_, err = NewCurve([]float64{2, 1}, []float64{0.9, 0.8})
	assert.Error(t, err)
	_, err = NewCurve([]float64{1}, []float64{0})
	assert.Error(t, err)
}

func TestBlack76_PutCallParity(t *testing.T) {
	f, k, sd, df := 0.03, 0.025, 0.2*math.Sqrt(2), 0.95
	c := Black76(Call, f, k, sd, df)
	p := Black76(Put, f, k, sd, df)
	assert.InDelta(t, df*(f-k), c-p, 1e-15)
	assert.Equal(t, df*(f-k), Black76(Call, f, k, 0, df))
}

func TestParRates_FlatCurves(t *testing.T) {
	s := flatScenario(t, 0.03, 0.02, 0.25)
	m := NewScenarioMarket(s)
	b := NewBuilder(DefaultInstrumentMap(), WithFrequency(4))

	dep, err := b.Build(m, scenario.NewKey(scenario.DiscountCurve, "EUR", 0))
	require.NoError(t, err)
	assert.Equal(t, Deposit, dep.Type())
	r, err := dep.ParRate(m)
	require.NoError(t, err)
	assert.InDelta(t, (math.Exp(0.03*0.5)-1)/0.5, r, 1e-14)

	swp, err := b.Build(m, scenario.NewKey(scenario.DiscountCurve, "EUR", 3))
	require.NoError(t, err)
	assert.Equal(t, Swap, swp.Type())
	r, err = swp.ParRate(m)
	require.NoError(t, err)
	// 单曲线下平价利率等于 (1 - DF(T)) / 年金
	var annuity float64
	for i := 1; i <= 20; i++ {
		annuity += 0.25 * math.Exp(-0.03*0.25*float64(i))
	}
	assert.InDelta(t, (1-math.Exp(-0.15))/annuity, r, 1e-12)

	cds, err := b.Build(m, scenario.NewKey(scenario.SurvivalProbability, "CPTY", 2))
	require.NoError(t, err)
	r, err = cds.ParRate(m)
	require.NoError(t, err)
	// 平坦强度下利差约为 (1-R)·λ
	assert.InDelta(t, 0.6*0.02, r, 2e-4)

	cp, err := b.Build(m, scenario.NewKey(scenario.OptionletVolatility, "EUR", 3))
	require.NoError(t, err)
	r, err = cp.ParRate(m)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, r, 1e-8)
}

func TestBuilder_Errors(t *testing.T) {
	m := NewScenarioMarket(flatScenario(t, 0.01, 0.01, 0.2))
	b := NewBuilder(InstrumentMap{scenario.DiscountCurve: {Swap}})

	_, err := b.Build(m, scenario.NewKey(scenario.FXSpot, "EURUSD", 0))
	assert.Error(t, err)
	_, err = b.Build(m, scenario.NewKey(scenario.DiscountCurve, "EUR", 9))
	assert.Error(t, err)

	inst, err := b.Build(m, scenario.NewKey(scenario.DiscountCurve, "EUR", 0))
	require.NoError(t, err)
	assert.Equal(t, Swap, inst.Type())

	_, err = ParseInstrumentMap(map[string][]string{"fxspot": {"Swap"}})
	assert.Error(t, err)
	im, err := ParseInstrumentMap(map[string][]string{"discountcurve": {"swap"}})
	require.NoError(t, err)
	assert.Equal(t, []InstrumentType{Swap}, im[scenario.DiscountCurve])
}
