package market

import (
	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/xerrors"
)

// Market 平价工具定价所需的市场视图。
type Market interface {
	Curve(id scenario.CurveID) (*Curve, error)
	Value(k scenario.RiskFactorKey) (float64, error)
	Has(k scenario.RiskFactorKey) bool
	Pillars(id scenario.CurveID) ([]float64, bool)
}

// ScenarioMarket 直接读取一个情景，曲线按需构建并缓存；非并发安全，每个 goroutine 各持一份。
type ScenarioMarket struct {
	s      scenario.Scenario
	curves map[scenario.CurveID]*Curve
}

func NewScenarioMarket(s scenario.Scenario) *ScenarioMarket {
	return &ScenarioMarket{s: s, curves: make(map[scenario.CurveID]*Curve)}
}

// Scenario 底层情景。
func (m *ScenarioMarket) Scenario() scenario.Scenario { return m.s }

func (m *ScenarioMarket) Curve(id scenario.CurveID) (*Curve, error) {
	if c, ok := m.curves[id]; ok {
		return c, nil
	}
	c, err := CurveFromScenario(m.s, id)
	if err != nil {
		return nil, err
	}
	m.curves[id] = c
	return c, nil
}

func (m *ScenarioMarket) Value(k scenario.RiskFactorKey) (float64, error) { return m.s.Get(k) }

func (m *ScenarioMarket) Has(k scenario.RiskFactorKey) bool { return m.s.Has(k) }

func (m *ScenarioMarket) Pillars(id scenario.CurveID) ([]float64, bool) {
	p, ok := m.s.Coordinates()[id]
	return p, ok
}

// VolAt 在 id 波动率曲线上按期限线性插值，两端平外推。
func VolAt(m Market, id scenario.CurveID, t float64) (float64, error) {
	times, ok := m.Pillars(id)
	if !ok || len(times) == 0 {
		return 0, xerrors.Derive(xerrors.ErrMissingRiskFactor, "no coordinates for %s", id)
	}
	at := func(i int) (float64, error) { return m.Value(scenario.NewKey(id.Type, id.Name, i)) }
	if t <= times[0] {
		return at(0)
	}
	n := len(times)
	if t >= times[n-1] {
		return at(n - 1)
	}
	for i := 1; i < n; i++ {
		if t <= times[i] {
			v0, err := at(i - 1)
			if err != nil {
				return 0, err
			}
			v1, err := at(i)
			if err != nil {
				return 0, err
			}
			w := (t - times[i-1]) / (times[i] - times[i-1])
			return v0 + w*(v1-v0), nil
		}
	}
	return at(n - 1)
}
