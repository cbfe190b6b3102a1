package stress

import (
	"time"

	"github.com/wyfcoding/riskengine/logging"
	"github.com/wyfcoding/riskengine/metrics"
	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/scenario/generator"
	"github.com/wyfcoding/riskengine/xerrors"
)

// ScenarioGenerator 把零息压力情景施加到基准情景上，首个情景为基准本身。
// 压力情景以 DeltaScenario 表示，只保存被冲击的键。
type ScenarioGenerator struct {
	base      scenario.Scenario
	scenarios []scenario.Scenario
	labels    []string
	next      int
}

// NewScenarioGenerator data 中不能再含平价冲击，需先经 ParStressTestConverter 转换。
// m 可以为 nil。
func NewScenarioGenerator(base scenario.Scenario, data *StressTestScenarioData, m *metrics.Metrics, logger *logging.Logger) (*ScenarioGenerator, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	g := &ScenarioGenerator{
		base:      base,
		scenarios: []scenario.Scenario{base},
		labels:    []string{base.Label()},
	}
	for i := range data.Scenarios {
		sc := &data.Scenarios[i]
		if sc.HasParShifts() {
			return nil, xerrors.Derive(xerrors.ErrStressScenario, "scenario %q still has par shifts", sc.Label)
		}
		s, err := apply(base, sc)
		if err != nil {
			return nil, xerrors.DeriveCause(xerrors.ErrStressScenario, err, "scenario %q", sc.Label)
		}
		g.scenarios = append(g.scenarios, s)
		g.labels = append(g.labels, sc.Label)
	}
	if m != nil {
		m.ScenariosGenerated.WithLabelValues("stress").Add(float64(len(data.Scenarios)))
	}
	logging.Component(logger, "stress").Info("stress scenarios built", "count", len(data.Scenarios))
	return g, nil
}

func apply(base scenario.Scenario, sc *Scenario) (scenario.Scenario, error) {
	delta := scenario.NewSimpleScenario(base.AsOf(), sc.Label, base.Numeraire())
	coords := base.Coordinates()
	for _, cs := range sc.Curves {
		pillars, ok := coords[cs.Curve()]
		if !ok {
			return nil, xerrors.Derive(xerrors.ErrMissingRiskFactor, "no pillars for %s", cs.Curve())
		}
		for i, t := range pillars {
			k := scenario.NewKey(cs.Type, cs.Name, i)
			if err := shiftKey(base, delta, k, cs.At(t), cs.ShiftType, t); err != nil {
				return nil, err
			}
		}
	}
	for _, sp := range sc.Spots {
		k := scenario.NewKey(sp.Type, sp.Name, 0)
		if err := shiftKey(base, delta, k, sp.Size, sp.ShiftType, 0); err != nil {
			return nil, err
		}
	}
	return scenario.NewDeltaScenario(base, delta), nil
}

func shiftKey(base scenario.Scenario, delta *scenario.SimpleScenario, k scenario.RiskFactorKey, h float64, st generator.ShiftType, t float64) error {
	v, err := base.Get(k)
	if err != nil {
		return err
	}
	shifted, err := generator.ShiftValue(k, v, h, st, t)
	if err != nil {
		return err
	}
	return delta.Add(k, shifted)
}

// Scenarios 全部情景，首个为基准。
func (g *ScenarioGenerator) Scenarios() []scenario.Scenario { return g.scenarios }

// Labels 与 Scenarios 一一对应。
func (g *ScenarioGenerator) Labels() []string { return g.labels }

// Scenario 按标签查找压力情景。
func (g *ScenarioGenerator) Scenario(label string) (scenario.Scenario, error) {
	for i := 1; i < len(g.labels); i++ {
		if g.labels[i] == label {
			return g.scenarios[i], nil
		}
	}
	return nil, xerrors.Derive(xerrors.ErrUnknownID, "stress scenario %q", label)
}

// Next 依次返回情景，date 必须是基准情景日期。
func (g *ScenarioGenerator) Next(date time.Time) (scenario.Scenario, error) {
	if !date.Equal(g.base.AsOf()) {
		return nil, xerrors.Derive(xerrors.ErrUnknownGridDate, "stress scenarios live at %s", g.base.AsOf().Format("2006-01-02"))
	}
	if g.next >= len(g.scenarios) {
		return nil, xerrors.ErrPathExhausted
	}
	s := g.scenarios[g.next]
	g.next++
	return s, nil
}

func (g *ScenarioGenerator) Reset() error {
	g.next = 0
	return nil
}
