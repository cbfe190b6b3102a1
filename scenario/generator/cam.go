package generator

import (
	"math"
	"slices"

	"github.com/wyfcoding/riskengine/algorithm/sim"
	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/xerrors"
)

// Transform 状态变量到风险因子值的映射方式。
type Transform int

const (
	// Level 直接取状态值（FX、权益现价、波动率）。
	Level Transform = iota
	// Discount 把状态视为平坦零息利率，取 exp(-x * Tenor)。
	Discount
	// Survival 把状态视为平坦违约强度，取 exp(-x * Tenor)。
	Survival
)

// FactorMapping 一个风险因子键由哪个状态变量、以何种方式给出。
type FactorMapping struct {
	Key       scenario.RiskFactorKey
	Factor    int
	Transform Transform
	Tenor     float64
}

// StatePaths 交叉资产模型的路径来源，通常为 *sim.PathGenerator。
type StatePaths interface {
	Next() sim.Path
	Times() []float64
}

// CrossAssetModel 描述模型的风险因子映射与计价单位因子。
type CrossAssetModel struct {
	Mappings []FactorMapping
	// NumeraireFactor 银行账户所依赖的短端利率因子下标，<0 表示计价单位恒为 1。
	NumeraireFactor int
}

// CrossAssetModelScenarioGenerator 从多因子模型抽样整条路径，并通过 Factory 映射为情景。
type CrossAssetModelScenarioGenerator struct {
	*ScenarioPathGenerator
	model   CrossAssetModel
	paths   StatePaths
	factory scenario.Factory
	keys    []FactorMapping
	coords  scenario.Coordinates
}

// NewCrossAssetModelScenarioGenerator 创建生成器。键顺序在构造时排序固定。
func NewCrossAssetModelScenarioGenerator(model CrossAssetModel, paths StatePaths, factory scenario.Factory, grid *DateGrid) (*CrossAssetModelScenarioGenerator, error) {
	if len(model.Mappings) == 0 {
		return nil, xerrors.Configuration("cross asset model has no risk factor mappings")
	}
	if !slices.Equal(paths.Times(), grid.Times()) {
		return nil, xerrors.Derive(xerrors.ErrInvalidDateGrid, "path generator times do not match the date grid")
	}
	keys := slices.Clone(model.Mappings)
	slices.SortFunc(keys, func(a, b FactorMapping) int { return a.Key.Compare(b.Key) })
	for i := 1; i < len(keys); i++ {
		if keys[i].Key == keys[i-1].Key {
			return nil, xerrors.Derive(xerrors.ErrDuplicateID, "risk factor %s mapped twice", keys[i].Key)
		}
	}

	coords := scenario.Coordinates{}
	for _, m := range keys {
		if m.Transform != Level {
			c := m.Key.Curve()
			for len(coords[c]) <= m.Key.Index {
				coords[c] = append(coords[c], 0)
			}
			coords[c][m.Key.Index] = m.Tenor
		}
	}

	g := &CrossAssetModelScenarioGenerator{
		model:   model,
		paths:   paths,
		factory: factory,
		keys:    keys,
		coords:  coords,
	}
	spg, err := NewScenarioPathGenerator(grid, PathBuilderFunc(g.nextPath))
	if err != nil {
		return nil, err
	}
	g.ScenarioPathGenerator = spg
	return g, nil
}

// Keys 排序后的风险因子键。
func (g *CrossAssetModelScenarioGenerator) Keys() []scenario.RiskFactorKey {
	out := make([]scenario.RiskFactorKey, len(g.keys))
	for i, m := range g.keys {
		out[i] = m.Key
	}
	return out
}

func (g *CrossAssetModelScenarioGenerator) nextPath() ([]scenario.Scenario, error) {
	p := g.paths.Next()
	dates := g.grid.dates
	out := make([]scenario.Scenario, len(dates))
	for k, d := range dates {
		numeraire := 1.0
		if nf := g.model.NumeraireFactor; nf >= 0 {
			numeraire = math.Exp(p.Integrals[k][nf])
		}
		s := g.factory.BuildScenario(d, true, "", numeraire)
		if ss, ok := s.(*scenario.SimpleScenario); ok && !ss.SharedData().Frozen() {
			if err := ss.SetCoordinates(g.coords); err != nil {
				return nil, err
			}
		}
		state := p.States[k]
		for _, m := range g.keys {
			if m.Factor < 0 || m.Factor >= len(state) {
				return nil, xerrors.Derive(xerrors.ErrIndexOutOfRange, "%s maps to factor %d of %d", m.Key, m.Factor, len(state))
			}
			x := state[m.Factor]
			v := x
			if m.Transform != Level {
				v = math.Exp(-x * m.Tenor)
			}
			if err := s.Add(m.Key, v); err != nil {
				return nil, err
			}
		}
		out[k] = s
	}
	return out, nil
}
