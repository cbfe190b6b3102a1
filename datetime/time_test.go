package datetime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("3m")
	require.NoError(t, err)
	assert.Equal(t, Period{Length: 3, Unit: Months}, p)
	assert.Equal(t, "3M", p.String())

	for _, bad := range []string{"", "M", "3X", "-1Y", "aY"} {
		_, err := ParsePeriod(bad)
		assert.Error(t, err, bad)
	}
}

func TestPeriodAddToClampsMonthEnd(t *testing.T) {
	d := Date(2024, time.January, 31)
	assert.Equal(t, Date(2024, time.February, 29), Period{1, Months}.AddTo(d))
	assert.Equal(t, Date(2025, time.January, 31), Period{1, Years}.AddTo(d))
	assert.Equal(t, Date(2024, time.February, 14), Period{2, Weeks}.AddTo(d))
}

func TestYearFraction(t *testing.T) {
	from := Date(2025, time.January, 1)
	assert.InDelta(t, 1.0, YearFraction(from, Date(2026, time.January, 1)), 1e-12)
	assert.Equal(t, 0, DaysBetween(from, from.Add(5*time.Hour)))
}

func TestParsePeriods(t *testing.T) {
	ps, err := ParsePeriods("1Y, 2Y,,5Y")
	require.NoError(t, err)
	assert.Len(t, ps, 3)
	assert.InDelta(t, 5.0, ps[2].Years(), 1e-12)
}
