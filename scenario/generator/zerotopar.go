package generator

import (
	"time"

	"github.com/wyfcoding/riskengine/logging"
	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/xerrors"
)

// ZeroToParScenarioGenerator 包装一个零息情景生成器，每步同时给出对应的平价情景：
// par = parBase + (zero - zeroBase)，仅对平价可转换类型的键计算。
//
// 零息基准保留全部键；平价基准中缺失的平价类键只从平价情景中剔除，并通过 SkippedParKeys 报告。
type ZeroToParScenarioGenerator struct {
	inner    Generator
	zeroBase scenario.Scenario
	parBase  map[scenario.RiskFactorKey]float64
	parTypes map[scenario.KeyType]bool
	factory  scenario.Factory
	parKeys  []scenario.RiskFactorKey
	skipped  []scenario.RiskFactorKey
	lastPar  scenario.Scenario
}

// NewZeroToParScenarioGenerator 创建生成器。
func NewZeroToParScenarioGenerator(inner Generator, zeroBase scenario.Scenario, parBase map[scenario.RiskFactorKey]float64,
	parTypes []scenario.KeyType, factory scenario.Factory, logger *logging.Logger) *ZeroToParScenarioGenerator {
	types := make(map[scenario.KeyType]bool, len(parTypes))
	for _, t := range parTypes {
		types[t] = true
	}
	g := &ZeroToParScenarioGenerator{
		inner:    inner,
		zeroBase: zeroBase,
		parBase:  parBase,
		parTypes: types,
		factory:  factory,
	}
	for _, k := range zeroBase.Keys() {
		if !types[k.Type] {
			continue
		}
		if _, ok := parBase[k]; ok {
			g.parKeys = append(g.parKeys, k)
		} else {
			g.skipped = append(g.skipped, k)
		}
	}
	if len(g.skipped) > 0 {
		logging.Component(logger, "zero_to_par_generator").Warn("par-type keys without par base value are excluded from par scenarios",
			"count", len(g.skipped), "first", g.skipped[0].String())
	}
	return g
}

// SkippedParKeys 因缺少平价基准值而未进入平价情景的键。
func (g *ZeroToParScenarioGenerator) SkippedParKeys() []scenario.RiskFactorKey { return g.skipped }

// Next 返回零息情景；对应的平价情景可通过 LastParScenario 读取。
func (g *ZeroToParScenarioGenerator) Next(date time.Time) (scenario.Scenario, error) {
	zero, par, err := g.NextPair(date)
	if err != nil {
		return nil, err
	}
	g.lastPar = par
	return zero, nil
}

// NextPair 同时返回零息与平价情景。
func (g *ZeroToParScenarioGenerator) NextPair(date time.Time) (scenario.Scenario, scenario.Scenario, error) {
	zero, err := g.inner.Next(date)
	if err != nil {
		return nil, nil, err
	}
	par := g.factory.BuildScenario(zero.AsOf(), zero.IsAbsolute(), zero.Label(), zero.Numeraire())
	for _, k := range zero.Keys() {
		if g.parTypes[k.Type] {
			continue
		}
		v, err := zero.Get(k)
		if err != nil {
			return nil, nil, err
		}
		if err := par.Add(k, v); err != nil {
			return nil, nil, err
		}
	}
	for _, k := range g.parKeys {
		z, err := zero.Get(k)
		if err != nil {
			return nil, nil, err
		}
		z0, err := g.zeroBase.Get(k)
		if err != nil {
			return nil, nil, err
		}
		if err := par.Add(k, g.parBase[k]+(z-z0)); err != nil {
			return nil, nil, err
		}
	}
	return zero, par, nil
}

// LastParScenario 最近一次 Next 对应的平价情景。
func (g *ZeroToParScenarioGenerator) LastParScenario() (scenario.Scenario, error) {
	if g.lastPar == nil {
		return nil, xerrors.ErrNotReset
	}
	return g.lastPar, nil
}

func (g *ZeroToParScenarioGenerator) Reset() error {
	g.lastPar = nil
	return g.inner.Reset()
}
