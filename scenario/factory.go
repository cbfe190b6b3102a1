package scenario

import "time"

// Factory 为情景生成器构造空白情景。
type Factory interface {
	BuildScenario(asOf time.Time, absolute bool, label string, numeraire float64) Scenario
}

// SimpleScenarioFactory 所有产出的情景共享同一键表。
// 第一个情景负责填充键表，第二次构造时冻结，此后的情景只能写已有键。
type SimpleScenarioFactory struct {
	shared *SharedData
}

// NewSimpleScenarioFactory 创建键表待填充的工厂。
func NewSimpleScenarioFactory() *SimpleScenarioFactory {
	return &SimpleScenarioFactory{}
}

// NewSimpleScenarioFactoryWithKeys 键表预先确定并立即冻结。
func NewSimpleScenarioFactoryWithKeys(keys []RiskFactorKey, coords Coordinates) (*SimpleScenarioFactory, error) {
	sd, err := NewSharedData(keys, coords)
	if err != nil {
		return nil, err
	}
	sd.Freeze()
	return &SimpleScenarioFactory{shared: sd}, nil
}

func (f *SimpleScenarioFactory) BuildScenario(asOf time.Time, absolute bool, label string, numeraire float64) Scenario {
	if f.shared == nil {
		f.shared, _ = NewSharedData(nil, Coordinates{})
	} else {
		f.shared.Freeze()
	}
	s := NewSimpleScenarioWithShared(asOf, label, numeraire, f.shared)
	s.absolute = absolute
	return s
}

// DeltaScenarioFactory 以固定基准情景构造 DeltaScenario，每个 delta 拥有独立键表。
type DeltaScenarioFactory struct {
	base Scenario
}

// NewDeltaScenarioFactory 创建工厂。
func NewDeltaScenarioFactory(base Scenario) *DeltaScenarioFactory {
	return &DeltaScenarioFactory{base: base}
}

func (f *DeltaScenarioFactory) BuildScenario(asOf time.Time, absolute bool, label string, numeraire float64) Scenario {
	delta := NewSimpleScenario(asOf, label, numeraire)
	delta.absolute = absolute
	return NewDeltaScenario(f.base, delta)
}
