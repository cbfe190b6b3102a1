package generator

import (
	"math"
	"strconv"
	"time"

	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/xerrors"
)

// ShiftType 冲击方式。
type ShiftType int

const (
	AbsoluteShift ShiftType = iota
	RelativeShift
)

// ShiftSpec 某类风险因子的冲击大小与方式。
type ShiftSpec struct {
	Size float64
	Type ShiftType
}

// SensitivityScenarioGenerator 产生基准情景及每个风险因子的上（下）冲击情景。
//
// 曲线与生存概率在零息利率 / 违约强度空间冲击：DF' = DF * exp(-h * t)，t 取自情景坐标；
// 其余类型直接在值空间冲击。冲击情景以 DeltaScenario 表示，仅存被冲击的单个键。
type SensitivityScenarioGenerator struct {
	base      scenario.Scenario
	scenarios []scenario.Scenario
	descs     []scenario.Description
	next      int
}

// NewSensitivityScenarioGenerator 构造全部敏感度情景。没有冲击配置的类型被跳过。
func NewSensitivityScenarioGenerator(base scenario.Scenario, shifts map[scenario.KeyType]ShiftSpec, twoSided bool) (*SensitivityScenarioGenerator, error) {
	g := &SensitivityScenarioGenerator{
		base:      base,
		scenarios: []scenario.Scenario{base},
		descs:     []scenario.Description{{Direction: scenario.Base}},
	}
	keys := base.Keys()
	scenario.SortKeys(keys)
	coords := base.Coordinates()

	dirs := []scenario.Direction{scenario.Up}
	if twoSided {
		dirs = append(dirs, scenario.Down)
	}
	for _, k := range keys {
		spec, ok := shifts[k.Type]
		if !ok {
			continue
		}
		if spec.Size <= 0 {
			return nil, xerrors.Derive(xerrors.ErrInvalidShift, "%s shift %g", k.Type, spec.Size)
		}
		v, err := base.Get(k)
		if err != nil {
			return nil, err
		}
		t, desc, err := pillar(coords, k)
		if err != nil {
			return nil, err
		}
		for _, dir := range dirs {
			h := spec.Size
			if dir == scenario.Down {
				h = -h
			}
			shifted, err := ShiftValue(k, v, h, spec.Type, t)
			if err != nil {
				return nil, err
			}
			d := scenario.Description{Direction: dir, Key: k, IndexDesc: desc, Shift: spec.Size}
			delta := scenario.NewSimpleScenario(base.AsOf(), d.String(), base.Numeraire())
			if err := delta.Add(k, shifted); err != nil {
				return nil, err
			}
			g.scenarios = append(g.scenarios, scenario.NewDeltaScenario(base, delta))
			g.descs = append(g.descs, d)
		}
	}
	return g, nil
}

func needsPillar(t scenario.KeyType) bool {
	return t.IsCurve() || t == scenario.SurvivalProbability
}

func pillar(coords scenario.Coordinates, k scenario.RiskFactorKey) (float64, string, error) {
	c, ok := coords[k.Curve()]
	if !ok || k.Index >= len(c) {
		if needsPillar(k.Type) {
			return 0, "", xerrors.Configuration("no pillar time for %s", k)
		}
		return 0, "", nil
	}
	t := c[k.Index]
	if needsPillar(k.Type) && t <= 0 {
		return 0, "", xerrors.Configuration("pillar time %g for %s", t, k)
	}
	return t, strconv.FormatFloat(t, 'g', 4, 64) + "Y", nil
}

// ShiftValue 对单个风险因子值施加冲击 h。曲线与生存概率在零息利率 / 违约强度空间冲击，t 为支柱时间；
// 其余类型在值空间冲击。
func ShiftValue(k scenario.RiskFactorKey, v, h float64, st ShiftType, t float64) (float64, error) {
	if needsPillar(k.Type) {
		if v <= 0 {
			return 0, xerrors.Derive(xerrors.ErrInvalidShift, "non-positive discount factor %g for %s", v, k)
		}
		if st == RelativeShift {
			z := -math.Log(v) / t
			return math.Exp(-z * (1 + h) * t), nil
		}
		return v * math.Exp(-h*t), nil
	}
	if st == RelativeShift {
		return v * (1 + h), nil
	}
	return v + h, nil
}

// Scenarios 全部情景，首个为基准。
func (g *SensitivityScenarioGenerator) Scenarios() []scenario.Scenario { return g.scenarios }

// Descriptions 与 Scenarios 一一对应的描述。
func (g *SensitivityScenarioGenerator) Descriptions() []scenario.Description { return g.descs }

// Next 依次返回情景，date 必须是基准情景日期。
func (g *SensitivityScenarioGenerator) Next(date time.Time) (scenario.Scenario, error) {
	if !date.Equal(g.base.AsOf()) {
		return nil, xerrors.Derive(xerrors.ErrUnknownGridDate, "sensitivity scenarios live at %s", g.base.AsOf().Format("2006-01-02"))
	}
	if g.next >= len(g.scenarios) {
		return nil, xerrors.ErrPathExhausted
	}
	s := g.scenarios[g.next]
	g.next++
	return s, nil
}

func (g *SensitivityScenarioGenerator) Reset() error {
	g.next = 0
	return nil
}
