package scenario

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/riskengine/datetime"
	"github.com/wyfcoding/riskengine/xerrors"
)

var (
	asOf  = datetime.Date(2025, time.January, 15)
	eur0  = NewKey(DiscountCurve, "EUR", 0)
	eur1  = NewKey(DiscountCurve, "EUR", 1)
	fxKey = NewKey(FXSpot, "EURUSD", 0)
)

func TestKeyStringRoundTrip(t *testing.T) {
	k := NewKey(SurvivalProbability, "CPTY/A", 7)
	parsed, err := ParseKey(k.String())
	require.NoError(t, err)
	assert.Equal(t, k, parsed)

	_, err = ParseKey("Nope/EUR/1")
	assert.True(t, errors.Is(err, xerrors.ErrUnknownKeyType))
	_, err = ParseKey("DiscountCurve")
	assert.Error(t, err)

	kt, err := ParseKeyType("discountcurve")
	require.NoError(t, err)
	assert.Equal(t, DiscountCurve, kt)
}

func TestKeyOrdering(t *testing.T) {
	keys := []RiskFactorKey{fxKey, eur1, NewKey(DiscountCurve, "CHF", 5), eur0}
	SortKeys(keys)
	assert.Equal(t, []RiskFactorKey{NewKey(DiscountCurve, "CHF", 5), eur0, eur1, fxKey}, keys)
	assert.True(t, eur0.Less(eur1))
	assert.False(t, eur1.Less(eur1))
}

func TestSimpleScenarioAddGet(t *testing.T) {
	s := NewSimpleScenario(asOf, "base", 1)
	require.NoError(t, s.Add(eur0, 0.99))
	require.NoError(t, s.Add(fxKey, 1.08))
	require.NoError(t, s.Add(eur0, 0.98))

	v, err := s.Get(eur0)
	require.NoError(t, err)
	assert.Equal(t, 0.98, v)
	assert.True(t, s.Has(fxKey))
	assert.Equal(t, []RiskFactorKey{eur0, fxKey}, s.Keys())

	_, err = s.Get(eur1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, xerrors.ErrMissingRiskFactor))
	assert.Contains(t, err.Error(), eur1.String())
}

func TestCloneFreezesSharedKeys(t *testing.T) {
	s := NewSimpleScenario(asOf, "base", 1)
	require.NoError(t, s.Add(eur0, 0.99))

	c := s.Clone()
	require.NoError(t, c.Add(eur0, 0.5))
	assert.Equal(t, 0.99, MustGet(s, eur0))
	assert.Equal(t, 0.5, MustGet(c, eur0))

	err := c.Add(eur1, 0.97)
	assert.True(t, errors.Is(err, xerrors.ErrKeyListFrozen))
	err = s.Add(eur1, 0.97)
	assert.True(t, errors.Is(err, xerrors.ErrKeyListFrozen))
}

func TestSharedDataFreezesOnSecondScenario(t *testing.T) {
	sd, err := NewSharedData([]RiskFactorKey{eur0}, Coordinates{})
	require.NoError(t, err)
	a := NewSimpleScenarioWithShared(asOf, "a", 1, sd)
	require.NoError(t, a.Add(eur1, 0.97))
	assert.False(t, sd.Frozen())

	b := NewSimpleScenarioWithShared(asOf, "b", 1, sd)
	assert.True(t, sd.Frozen())
	assert.Equal(t, []RiskFactorKey{eur0, eur1}, b.Keys())

	err = b.Add(fxKey, 1.1)
	assert.True(t, errors.Is(err, xerrors.ErrKeyListFrozen))
	assert.False(t, a.Has(fxKey))
	_, err = a.Get(fxKey)
	assert.True(t, errors.Is(err, xerrors.ErrMissingRiskFactor))
	assert.Equal(t, 0.97, MustGet(a, eur1))

	d := a.Detach()
	require.NoError(t, d.Add(fxKey, 1.1))
	assert.Equal(t, 1.1, MustGet(d, fxKey))
	assert.False(t, a.Has(fxKey))
}

func TestFactoryFreezesAfterFirstScenario(t *testing.T) {
	f := NewSimpleScenarioFactory()
	first := f.BuildScenario(asOf, true, "s0", 1)
	require.NoError(t, first.Add(eur0, 1))
	require.NoError(t, first.Add(eur1, 2))

	second := f.BuildScenario(asOf, true, "s1", 1)
	assert.Equal(t, first.Keys(), second.Keys())
	require.NoError(t, second.Add(eur1, 3))
	assert.Error(t, second.Add(fxKey, 1))
	assert.Equal(t, 2.0, MustGet(first, eur1))
}

func TestDeltaScenarioReadsDeltaFirstAndBaseKeys(t *testing.T) {
	base := NewSimpleScenario(asOf, "base", 1)
	require.NoError(t, base.Add(eur0, 0.99))
	require.NoError(t, base.Add(eur1, 0.97))

	delta := NewSimpleScenario(asOf.AddDate(0, 0, 1), "up", 1.01)
	require.NoError(t, delta.Add(eur1, 0.96))
	require.NoError(t, delta.Add(fxKey, 1.2))

	d := NewDeltaScenario(base, delta)
	for _, k := range []RiskFactorKey{eur0, eur1} {
		want := MustGet(base, k)
		if delta.Has(k) {
			want = MustGet(delta, k)
		}
		assert.Equal(t, want, MustGet(d, k), k.String())
	}
	// delta 独有的键可读，但不在 Keys/Has 中
	assert.Equal(t, base.Keys(), d.Keys())
	assert.False(t, d.Has(fxKey))
	assert.Equal(t, 1.2, MustGet(d, fxKey))

	assert.Equal(t, "up", d.Label())
	assert.Equal(t, 1.01, d.Numeraire())
	assert.Equal(t, asOf.AddDate(0, 0, 1), d.AsOf())
}

func TestDeltaScenarioAddSkipsUnchangedValues(t *testing.T) {
	base := NewSimpleScenario(asOf, "base", 1)
	require.NoError(t, base.Add(eur0, 0.99))
	require.NoError(t, base.Add(eur1, 0.97))
	delta := NewSimpleScenario(asOf, "d", 1)
	d := NewDeltaScenario(base, delta)

	require.NoError(t, d.Add(eur0, 0.99))
	require.NoError(t, d.Add(eur1, 0.95))
	assert.Equal(t, []RiskFactorKey{eur1}, delta.Keys())

	c := d.Clone()
	require.NoError(t, c.Add(eur0, 0.5))
	assert.Equal(t, 0.99, MustGet(d, eur0))
	assert.Equal(t, 0.5, MustGet(c, eur0))
}

func TestSpreadScenario(t *testing.T) {
	abs := NewSimpleScenario(asOf, "abs", 1)
	require.NoError(t, abs.Add(eur0, 0.99))
	require.NoError(t, abs.Add(eur1, 0.97))
	spr := NewSimpleScenario(asOf, "spr", 1)
	require.NoError(t, spr.Add(eur1, 0.001))

	s := NewSpreadScenario(abs, spr)
	assert.Equal(t, 0.001, MustGet(s, eur1))
	assert.Equal(t, 0.99, MustGet(s, eur0))

	v, err := s.AbsoluteValue(eur1)
	require.NoError(t, err)
	assert.Equal(t, 0.97, v)

	_, err = s.SpreadValue(eur0)
	assert.True(t, errors.Is(err, xerrors.ErrMissingRiskFactor))
}

func TestCSVRoundTripIsExact(t *testing.T) {
	f := NewSimpleScenarioFactory()
	values := []float64{0.1 + 0.2, 1.0 / 3.0, 1e-17, 123456789.123456789}
	var written []Scenario
	for sample := range 2 {
		s := f.BuildScenario(asOf, true, "mc", 1+float64(sample)/7)
		for i, v := range values {
			require.NoError(t, s.Add(NewKey(IndexCurve, "EUR-EURIBOR-6M", i), v*float64(sample+1)))
		}
		written = append(written, s)
	}

	var buf bytes.Buffer
	w := NewCSVWriter(&buf)
	for i, s := range written {
		require.NoError(t, w.Write(i, s))
	}
	require.NoError(t, w.Flush())

	set, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, set.Samples)
	require.Len(t, set.Dates, 1)

	for i, s := range written {
		got, err := set.Get(asOf, i)
		require.NoError(t, err)
		assert.Equal(t, s.Numeraire(), got.Numeraire())
		for _, k := range s.Keys() {
			assert.Equal(t, MustGet(s, k), MustGet(got, k), k.String())
		}
		assert.True(t, s.IsCloseEnough(got))
	}

	_, err = set.Get(asOf, 5)
	assert.Error(t, err)
}
