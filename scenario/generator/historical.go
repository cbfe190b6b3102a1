package generator

import (
	"io"
	"math"
	"slices"
	"time"

	"github.com/wyfcoding/riskengine/datetime"
	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/xerrors"
)

// ReturnType 历史收益的计算与施加方式。
type ReturnType int

const (
	Absolute ReturnType = iota
	Relative
	Log
)

// HistoricalScenarioLoader 按日期存放历史市场状态。
type HistoricalScenarioLoader struct {
	dates     []time.Time
	scenarios map[time.Time]scenario.Scenario
}

// NewHistoricalScenarioLoader 由历史情景构造，日期重复返回错误。
func NewHistoricalScenarioLoader(hist []scenario.Scenario) (*HistoricalScenarioLoader, error) {
	l := &HistoricalScenarioLoader{scenarios: make(map[time.Time]scenario.Scenario, len(hist))}
	for _, s := range hist {
		d := datetime.StartOfDay(s.AsOf())
		if _, ok := l.scenarios[d]; ok {
			return nil, xerrors.Derive(xerrors.ErrDuplicateID, "historical scenario for %s", datetime.FormatDate(d))
		}
		l.scenarios[d] = s
		l.dates = append(l.dates, d)
	}
	slices.SortFunc(l.dates, time.Time.Compare)
	return l, nil
}

// LoadHistoricalCSV 读取 scenario.CSVWriter 格式的历史数据，每个日期取样本 0。
func LoadHistoricalCSV(r io.Reader) (*HistoricalScenarioLoader, error) {
	set, err := scenario.ReadCSV(r)
	if err != nil {
		return nil, err
	}
	hist := make([]scenario.Scenario, 0, len(set.Dates))
	for _, d := range set.Dates {
		s, err := set.Get(d, 0)
		if err != nil {
			return nil, err
		}
		hist = append(hist, s)
	}
	return NewHistoricalScenarioLoader(hist)
}

// Dates 历史日期（升序）。
func (l *HistoricalScenarioLoader) Dates() []time.Time { return l.dates }

// Get 读取某一历史日期的情景。
func (l *HistoricalScenarioLoader) Get(d time.Time) (scenario.Scenario, error) {
	s, ok := l.scenarios[datetime.StartOfDay(d)]
	if !ok {
		return nil, xerrors.Derive(xerrors.ErrUnknownDate, "no historical scenario for %s", datetime.FormatDate(d))
	}
	return s, nil
}

// HistoricalScenarioGenerator 把历史窗口 [start, start+lag] 的收益施加到基准情景上。
// 第 i 次调用 Next 使用第 i 个窗口，窗口耗尽后返回 ErrPathExhausted。
type HistoricalScenarioGenerator struct {
	loader      *HistoricalScenarioLoader
	base        scenario.Scenario
	lag         int
	returnTypes map[scenario.KeyType]ReturnType
	factory     scenario.Factory
	next        int
}

// NewHistoricalScenarioGenerator 创建历史情景生成器。lag 为窗口跨越的观测个数。
func NewHistoricalScenarioGenerator(loader *HistoricalScenarioLoader, base scenario.Scenario, lag int,
	returnTypes map[scenario.KeyType]ReturnType, factory scenario.Factory) (*HistoricalScenarioGenerator, error) {
	if lag < 1 {
		return nil, xerrors.Configuration("historical lag must be positive, got %d", lag)
	}
	if len(loader.dates) <= lag {
		return nil, xerrors.Configuration("%d historical dates cannot form a window of lag %d", len(loader.dates), lag)
	}
	return &HistoricalScenarioGenerator{
		loader:      loader,
		base:        base,
		lag:         lag,
		returnTypes: returnTypes,
		factory:     factory,
	}, nil
}

// NumScenarios 可用窗口个数。
func (g *HistoricalScenarioGenerator) NumScenarios() int {
	return len(g.loader.dates) - g.lag
}

// Base 基准情景。
func (g *HistoricalScenarioGenerator) Base() scenario.Scenario { return g.base }

// Window 第 i 个窗口的起止日期。
func (g *HistoricalScenarioGenerator) Window(i int) (time.Time, time.Time) {
	return g.loader.dates[i], g.loader.dates[i+g.lag]
}

func (g *HistoricalScenarioGenerator) returnType(t scenario.KeyType) ReturnType {
	if rt, ok := g.returnTypes[t]; ok {
		return rt
	}
	if t.IsCurve() || t == scenario.SurvivalProbability || t.IsSpot() {
		return Log
	}
	return Absolute
}

func (g *HistoricalScenarioGenerator) Next(date time.Time) (scenario.Scenario, error) {
	if g.next >= g.NumScenarios() {
		return nil, xerrors.ErrPathExhausted
	}
	start, end := g.Window(g.next)
	s1, _ := g.loader.Get(start)
	s2, _ := g.loader.Get(end)

	label := "hist_" + datetime.FormatDate(start) + "_" + datetime.FormatDate(end)
	out := g.factory.BuildScenario(datetime.StartOfDay(date), true, label, g.base.Numeraire())
	for _, k := range g.base.Keys() {
		b, err := g.base.Get(k)
		if err != nil {
			return nil, err
		}
		v1, err := s1.Get(k)
		if err != nil {
			return nil, err
		}
		v2, err := s2.Get(k)
		if err != nil {
			return nil, err
		}
		v, err := applyReturn(g.returnType(k.Type), b, v1, v2, k)
		if err != nil {
			return nil, err
		}
		if err := out.Add(k, v); err != nil {
			return nil, err
		}
	}
	g.next++
	return out, nil
}

func (g *HistoricalScenarioGenerator) Reset() error {
	g.next = 0
	return nil
}

func applyReturn(rt ReturnType, base, v1, v2 float64, k scenario.RiskFactorKey) (float64, error) {
	switch rt {
	case Absolute:
		return base + (v2 - v1), nil
	case Relative:
		if v1 == 0 {
			return 0, xerrors.Derive(xerrors.ErrZeroDivision, "relative return for %s with zero start value", k)
		}
		return base * (v2 / v1), nil
	default:
		if v1 <= 0 || v2 <= 0 {
			return 0, xerrors.Derive(xerrors.ErrZeroDivision, "log return for %s with non-positive values", k)
		}
		return base * math.Exp(math.Log(v2/v1)), nil
	}
}
