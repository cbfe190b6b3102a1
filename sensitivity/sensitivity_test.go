package sensitivity

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/wyfcoding/riskengine/cache"
	"github.com/wyfcoding/riskengine/config"
	"github.com/wyfcoding/riskengine/datetime"
	"github.com/wyfcoding/riskengine/market"
	"github.com/wyfcoding/riskengine/messagequeue/kafka"
	"github.com/wyfcoding/riskengine/metrics"
	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/scenario/generator"
	"github.com/wyfcoding/riskengine/valuation"
	"github.com/wyfcoding/riskengine/xerrors"
)

var asOf = datetime.Date(2024, time.March, 1)

const shift = 1e-4

var (
	eur0  = scenario.NewKey(scenario.DiscountCurve, "EUR", 0)
	eur1  = scenario.NewKey(scenario.DiscountCurve, "EUR", 1)
	eur2  = scenario.NewKey(scenario.DiscountCurve, "EUR", 2)
	yield = scenario.NewKey(scenario.YieldCurve, "BOND", 0)
)

// fixture 两个交易：t1 三个非零平价 delta，t2 两个，YieldCurve 因子被禁用。
func fixture(t *testing.T) (*SensitivityCube, *ParSensitivityConverter) {
	t.Helper()
	keys := []scenario.RiskFactorKey{eur0, eur1, eur2, yield}
	base := scenario.NewSimpleScenario(asOf, "base", 1)
	for _, k := range keys {
		require.NoError(t, base.Add(k, 0.99))
	}
	descs := []scenario.Description{{Direction: scenario.Base}}
	for _, k := range keys {
		descs = append(descs, scenario.Description{Direction: scenario.Up, Key: k, IndexDesc: "1Y", Shift: shift})
	}
	sc, err := NewEmptySensitivityCube(base, []string{"t1", "t2"}, descs, "EUR")
	require.NoError(t, err)

	fill := func(trade int, baseNPV float64, deltas ...float64) {
		npv := sc.NPVCube()
		require.NoError(t, npv.SetT0(baseNPV, trade, 0))
		require.NoError(t, npv.Set(baseNPV, trade, 0, 0, 0))
		for i, d := range deltas {
			require.NoError(t, npv.Set(baseNPV+d, trade, 0, i+1, 0))
		}
	}
	fill(0, 100, 10, -5, 2, 7)
	fill(1, 50, 0, 3, 4, 1)

	jac := mat.NewDense(4, 4, nil)
	for i := range 4 {
		jac.Set(i, i, 1)
	}
	shifts := []float64{shift, shift, shift, shift}
	conv, err := NewParSensitivityConverter(keys, shifts, shifts, jac, []float64{0.01, 0.01, 0.01, 0.01})
	require.NoError(t, err)
	return sc, conv
}

func TestSensitivityCube_DeltaGamma(t *testing.T) {
	sc, _ := fixture(t)
	d, err := sc.Delta(0, eur1)
	require.NoError(t, err)
	assert.InDelta(t, -5, d, 1e-12)

	_, ok, err := sc.Gamma(0, eur1)
	require.NoError(t, err)
	assert.False(t, ok, "no down scenarios in fixture")

	_, err = sc.Delta(0, scenario.NewKey(scenario.FXSpot, "EURUSD", 0))
	assert.True(t, errors.Is(err, xerrors.ErrMissingRiskFactor))
	assert.Equal(t, []scenario.RiskFactorKey{eur0, eur1, eur2, yield}, sc.Factors())
}

func TestZeroToParCube_FiltersZeroAndDisabled(t *testing.T) {
	sc, conv := fixture(t)
	z, err := NewZeroToParCube(sc, conv, WithDisabledTypes(scenario.YieldCurve))
	require.NoError(t, err)

	for _, id := range []string{"t1", "t2"} {
		pd, err := z.ParDeltas(id)
		require.NoError(t, err)
		for k, v := range pd {
			assert.NotZero(t, v, "%s on %s", k, id)
			assert.NotEqual(t, scenario.YieldCurve, k.Type)
		}
	}
	pd, err := z.ParDeltas("t1")
	require.NoError(t, err)
	require.Len(t, pd, 3)
	assert.InDelta(t, 10, pd[eur0], 1e-9)
	assert.InDelta(t, -5, pd[eur1], 1e-9)

	pd, err = z.ParDeltas("t2")
	require.NoError(t, err)
	assert.Len(t, pd, 2)
	assert.NotContains(t, pd, eur0)

	_, err = z.ParDeltas("t3")
	assert.True(t, errors.Is(err, xerrors.ErrUnknownID))
}

func TestZeroToParCube_ContinueOnError(t *testing.T) {
	sc, _ := fixture(t)
	// 转换器不认识 eur2
	jac := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	conv, err := NewParSensitivityConverter([]scenario.RiskFactorKey{eur0, eur1}, []float64{shift, shift}, []float64{shift, shift}, jac, nil)
	require.NoError(t, err)

	strict, err := NewZeroToParCube(sc, conv)
	require.NoError(t, err)
	_, err = strict.ParDeltas("t1")
	assert.True(t, errors.Is(err, xerrors.ErrMissingInstrument))

	m := metrics.NewMetrics("sensitivity-test")
	lenient, err := NewZeroToParCube(sc, conv, ContinueOnError(true), WithMetrics(m))
	require.NoError(t, err)
	pd, err := lenient.ParDeltas("t1")
	require.NoError(t, err)
	assert.Len(t, pd, 2)
}

func TestMultiZeroToParCube(t *testing.T) {
	a, conv := fixture(t)
	b, _ := fixture(t)
	_, err := NewMultiZeroToParCube([]*SensitivityCube{a, b}, conv)
	assert.True(t, errors.Is(err, xerrors.ErrDuplicateID))

	usd, err := NewSensitivityCube(b.NPVCube(), b.Descriptions(), "USD")
	require.NoError(t, err)
	_, err = NewMultiZeroToParCube([]*SensitivityCube{a, usd}, conv)
	assert.True(t, errors.Is(err, xerrors.ErrCurrencyMismatch))

	descs := slices.Clone(b.Descriptions())
	descs[1].Shift = 2 * shift
	wide, err := NewSensitivityCube(b.NPVCube(), descs, "EUR")
	require.NoError(t, err)
	_, err = NewMultiZeroToParCube([]*SensitivityCube{a, wide}, conv)
	assert.True(t, errors.Is(err, xerrors.ErrIncompatibleCubes))
}

func TestParSensitivityCubeStream(t *testing.T) {
	sc, conv := fixture(t)
	z, err := NewZeroToParCube(sc, conv, WithDisabledTypes(scenario.YieldCurve))
	require.NoError(t, err)
	s := NewParSensitivityCubeStream(z, nil)

	seen := make(map[string]bool)
	var trades []string
	for range 5 {
		rec, ok := s.Next()
		require.True(t, ok)
		assert.True(t, rec.IsPar)
		assert.Nil(t, rec.Gamma)
		assert.Equal(t, "EUR", rec.Currency)
		pair := rec.TradeID + "|" + rec.Key
		assert.False(t, seen[pair], pair)
		seen[pair] = true
		trades = append(trades, rec.TradeID)
	}
	_, ok := s.Next()
	assert.False(t, ok)
	assert.Equal(t, []string{"t1", "t1", "t1", "t2", "t2"}, trades)

	s.Reset()
	first, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, "t1", first.TradeID)
	assert.Equal(t, eur0.String(), first.Key)
	assert.Equal(t, 100.0, first.BaseNPV)
	assert.Len(t, Collect(s), 4)
}

func TestCubeStream_WriteCSV(t *testing.T) {
	sc, _ := fixture(t)
	var buf bytes.Buffer
	n, err := WriteCSV(&buf, NewCubeStream(sc, nil))
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 9)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"t1", "false", "EUR", "100", "DiscountCurve/EUR/0", "DiscountCurve/EUR/0/1Y", "0.0001", "10", ""}, rows[1])
}

type memWriter struct {
	msgs []kafkago.Message
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

func TestKafkaSink(t *testing.T) {
	sc, conv := fixture(t)
	z, err := NewZeroToParCube(sc, conv, WithDisabledTypes(scenario.YieldCurve))
	require.NoError(t, err)

	w := &memWriter{}
	p := kafka.NewProducerWithWriter("sensitivities", w, nil, nil)
	n, err := Drain(context.Background(), NewParSensitivityCubeStream(z, nil), NewKafkaSink(p, nil), 2)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.Len(t, w.msgs, 5)

	var rec SensitivityRecord
	require.NoError(t, json.Unmarshal(w.msgs[3].Value, &rec))
	assert.Equal(t, "t2", rec.TradeID)
	assert.Equal(t, []byte("t2"), w.msgs[3].Key)
}

type fakeRepo struct {
	rows []SensitivityRow
}

func (f *fakeRepo) CreateInBatches(_ context.Context, rows []SensitivityRow, _ int) error {
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeRepo) Upsert(ctx context.Context, rows []SensitivityRow) error {
	return f.CreateInBatches(ctx, rows, 0)
}

func (f *fakeRepo) Find(_ context.Context, conds map[string]any, _ string) ([]SensitivityRow, error) {
	var out []SensitivityRow
	for _, r := range f.rows {
		if r.RunID == conds["run_id"] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepo) DeleteWhere(_ context.Context, conds map[string]any) (int64, error) {
	kept := f.rows[:0]
	var n int64
	for _, r := range f.rows {
		if r.RunID == conds["run_id"] {
			n++
			continue
		}
		kept = append(kept, r)
	}
	f.rows = kept
	return n, nil
}

func TestRecordRepository(t *testing.T) {
	sc, _ := fixture(t)
	repo := &fakeRepo{}
	rr := NewRecordRepository(repo, "run-1", nil)
	n, err := Drain(context.Background(), NewCubeStream(sc, nil), rr, 3)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	recs, err := rr.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 8)
	assert.Equal(t, "t2", recs[7].TradeID)

	deleted, err := rr.Purge(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 8, deleted)
}

func TestZeroToParCube_Cache(t *testing.T) {
	sc, conv := fixture(t)
	c, err := cache.NewBigCache("par", config.BigCacheConfig{}, nil)
	require.NoError(t, err)
	defer c.Close()

	z, err := NewZeroToParCube(sc, conv, WithDisabledTypes(scenario.YieldCurve), WithCache(c, "run-1"))
	require.NoError(t, err)
	first, err := z.ParDeltas("t1")
	require.NoError(t, err)

	ok, err := c.Exists(context.Background(), "par:run-1:0:t1")
	require.NoError(t, err)
	assert.True(t, ok)

	second, err := z.ParDeltas("t1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func curveScenario(t *testing.T, rate float64) scenario.Scenario {
	t.Helper()
	times := []float64{0.5, 1, 2, 5}
	id := scenario.CurveID{Type: scenario.DiscountCurve, Name: "EUR"}
	var keys []scenario.RiskFactorKey
	for i := range times {
		keys = append(keys, scenario.NewKey(id.Type, id.Name, i))
	}
	sd, err := scenario.NewSharedData(keys, scenario.Coordinates{id: times})
	require.NoError(t, err)
	s := scenario.NewSimpleScenarioWithShared(asOf, "base", 1, sd)
	for i, tt := range times {
		require.NoError(t, s.Add(keys[i], math.Exp(-rate*tt)))
	}
	return s
}

func TestEndToEnd_ParConversion(t *testing.T) {
	base := curveScenario(t, 0.02)
	gen, err := generator.NewSensitivityScenarioGenerator(base, map[scenario.KeyType]generator.ShiftSpec{
		scenario.DiscountCurve: {Size: shift},
	}, true)
	require.NoError(t, err)

	// 2 年期零息债券，面值 100
	pricer := valuation.PricerFunc(func(_ valuation.Trade, s scenario.Scenario) (float64, error) {
		c, err := market.CurveFromScenario(s, scenario.CurveID{Type: scenario.DiscountCurve, Name: "EUR"})
		if err != nil {
			return 0, err
		}
		return 100 * c.Discount(2), nil
	})
	a := NewAnalysis(pricer, "EUR", 2, nil, metrics.NewMetrics("sensitivity-e2e"))
	sc, err := a.RunGenerator(context.Background(), []valuation.Trade{{ID: "zcb"}}, gen)
	require.NoError(t, err)

	d, err := sc.Delta(0, eur2)
	require.NoError(t, err)
	assert.InDelta(t, 100*math.Exp(-0.04)*(math.Exp(-2*shift)-1), d, 1e-9)
	g, ok, err := sc.Gamma(0, eur2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, g, 0.0)

	pa := NewParAnalysis(market.NewBuilder(market.DefaultInstrumentMap()), WithParWorkers(4))
	conv, err := pa.Compute(context.Background(), gen.Scenarios(), gen.Descriptions())
	require.NoError(t, err)
	require.Len(t, conv.Keys(), 4)

	jac := conv.Jacobian()
	for i := range 4 {
		assert.Greater(t, jac.At(i, i), 0.0, "diagonal %d", i)
		for j := i + 1; j < 4; j++ {
			assert.InDelta(t, 0, jac.At(i, j), 1e-12, "J[%d][%d]", i, j)
		}
	}

	z, err := NewZeroToParCube(sc, conv)
	require.NoError(t, err)
	pd, err := z.ParDeltas("zcb")
	require.NoError(t, err)
	assert.NotContains(t, pd, scenario.NewKey(scenario.DiscountCurve, "EUR", 3))
	assert.Less(t, pd[eur2], 0.0)

	zs, err := conv.ZeroShiftsFor(map[scenario.RiskFactorKey]float64{eur0: shift})
	require.NoError(t, err)
	assert.InDelta(t, 0, zs[eur1], 1e-6)
}

func TestParSensitivityConverter_Singular(t *testing.T) {
	keys := []scenario.RiskFactorKey{eur0, eur1}
	_, err := NewParSensitivityConverter(keys, []float64{shift, shift}, []float64{shift, shift}, mat.NewDense(2, 2, nil), nil)
	assert.True(t, errors.Is(err, xerrors.ErrSingularMatrix))

	_, err = NewParSensitivityConverter(keys, []float64{shift, shift}, []float64{shift, shift}, mat.NewDense(1, 1, []float64{1}), nil)
	assert.True(t, errors.Is(err, xerrors.ErrDimMismatch))
}

func TestJacobian_Restrict(t *testing.T) {
	keys := []scenario.RiskFactorKey{eur0, eur1, yield}
	m := mat.NewDense(3, 3, []float64{
		2, 1, 0,
		0, 4, 0,
		0, 0, 0,
	})
	j := &Jacobian{Keys: keys, ZeroShift: []float64{shift, shift, shift}, ParShift: []float64{shift, shift, shift}, Matrix: m, ParRates: []float64{0.01, 0.02, 0.03}}

	_, err := j.Converter()
	assert.True(t, errors.Is(err, xerrors.ErrSingularMatrix))

	conv, err := j.Restrict(func(k scenario.RiskFactorKey) bool { return k.Type == scenario.DiscountCurve })
	require.NoError(t, err)
	assert.Equal(t, []scenario.RiskFactorKey{eur0, eur1}, conv.Keys())
	r, ok := conv.ParRate(eur1)
	require.True(t, ok)
	assert.InDelta(t, 0.02, r, 1e-15)

	// J dz = dp：[2 1; 0 4] dz = [4, 8] => dz = [1, 2]
	dz, err := conv.ZeroShiftsFor(map[scenario.RiskFactorKey]float64{eur0: 4, eur1: 8})
	require.NoError(t, err)
	assert.InDelta(t, 1, dz[eur0], 1e-12)
	assert.InDelta(t, 2, dz[eur1], 1e-12)

	_, err = j.Restrict(func(k scenario.RiskFactorKey) bool { return k.Type == scenario.YieldCurve })
	assert.True(t, errors.Is(err, xerrors.ErrSingularMatrix))
	_, err = j.Restrict(func(scenario.RiskFactorKey) bool { return false })
	assert.True(t, errors.Is(err, xerrors.ErrEmptyData))
}
