// Package market 提供由情景构建的模拟市场对象：贴现 / 生存曲线、平价校准工具与 Black 公式。
package market

import (
	"math"
	"slices"

	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/xerrors"
)

// Curve 以支柱时间与贴现因子（或生存概率）表示的期限结构，
// 支柱间对数线性插值，首支柱前与末支柱后按常数零息利率（强度）外推。
type Curve struct {
	times  []float64
	values []float64
}

// NewCurve times 必须严格递增且为正，values 必须为正。
func NewCurve(times, values []float64) (*Curve, error) {
	if len(times) == 0 || len(times) != len(values) {
		return nil, xerrors.Derive(xerrors.ErrDimMismatch, "curve has %d times and %d values", len(times), len(values))
	}
	for i, t := range times {
		if t <= 0 || (i > 0 && t <= times[i-1]) {
			return nil, xerrors.Configuration("curve pillar times must be positive and increasing, got %v", times)
		}
		if values[i] <= 0 {
			return nil, xerrors.Derive(xerrors.ErrInvalidShift, "non-positive curve value %g at t=%g", values[i], t)
		}
	}
	return &Curve{times: slices.Clone(times), values: slices.Clone(values)}, nil
}

// Times 支柱时间。
func (c *Curve) Times() []float64 { return c.times }

// Value 在 t 处插值，t<=0 时为 1。
func (c *Curve) Value(t float64) float64 {
	if t <= 0 {
		return 1
	}
	n := len(c.times)
	if t <= c.times[0] {
		return math.Exp(math.Log(c.values[0]) * t / c.times[0])
	}
	if t >= c.times[n-1] {
		return math.Exp(math.Log(c.values[n-1]) * t / c.times[n-1])
	}
	i, _ := slices.BinarySearch(c.times, t)
	t0, t1 := c.times[i-1], c.times[i]
	l0, l1 := math.Log(c.values[i-1]), math.Log(c.values[i])
	w := (t - t0) / (t1 - t0)
	return math.Exp(l0 + w*(l1-l0))
}

// Discount 同 Value，用于贴现曲线。
func (c *Curve) Discount(t float64) float64 { return c.Value(t) }

// ZeroRate 连续复利零息利率。
func (c *Curve) ZeroRate(t float64) float64 {
	if t <= 0 {
		t = c.times[0]
	}
	return -math.Log(c.Value(t)) / t
}

// ForwardRate [t1, t2] 上的简单复利远期利率。
func (c *Curve) ForwardRate(t1, t2 float64) float64 {
	if t2 <= t1 {
		return c.ZeroRate(t1)
	}
	return (c.Value(t1)/c.Value(t2) - 1) / (t2 - t1)
}

// CurveFromScenario 读取情景中 id 曲线的全部支柱，支柱时间来自情景坐标。
func CurveFromScenario(s scenario.Scenario, id scenario.CurveID) (*Curve, error) {
	times, ok := s.Coordinates()[id]
	if !ok || len(times) == 0 {
		return nil, xerrors.Derive(xerrors.ErrMissingRiskFactor, "no coordinates for curve %s", id)
	}
	values := make([]float64, len(times))
	for i := range times {
		v, err := s.Get(scenario.NewKey(id.Type, id.Name, i))
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return NewCurve(times, values)
}
