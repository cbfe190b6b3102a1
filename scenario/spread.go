package scenario

import "time"

// SpreadScenario 绝对值情景 + 利差情景。元数据与 Keys 取自绝对值情景。
type SpreadScenario struct {
	absolute Scenario
	spread   Scenario
}

// NewSpreadScenario 组合绝对值与利差情景。
func NewSpreadScenario(absolute, spread Scenario) *SpreadScenario {
	return &SpreadScenario{absolute: absolute, spread: spread}
}

func (s *SpreadScenario) AsOf() time.Time          { return s.absolute.AsOf() }
func (s *SpreadScenario) Label() string            { return s.absolute.Label() }
func (s *SpreadScenario) SetLabel(l string)        { s.absolute.SetLabel(l) }
func (s *SpreadScenario) Numeraire() float64       { return s.absolute.Numeraire() }
func (s *SpreadScenario) SetNumeraire(n float64)   { s.absolute.SetNumeraire(n) }
func (s *SpreadScenario) IsAbsolute() bool         { return s.absolute.IsAbsolute() }
func (s *SpreadScenario) SetAbsolute(b bool)       { s.absolute.SetAbsolute(b) }
func (s *SpreadScenario) Coordinates() Coordinates { return s.absolute.Coordinates() }
func (s *SpreadScenario) Keys() []RiskFactorKey    { return s.absolute.Keys() }

func (s *SpreadScenario) Has(k RiskFactorKey) bool {
	return s.absolute.Has(k) || s.spread.Has(k)
}

// Add 写入绝对值。
func (s *SpreadScenario) Add(k RiskFactorKey, v float64) error {
	return s.absolute.Add(k, v)
}

// AddSpread 写入利差值。
func (s *SpreadScenario) AddSpread(k RiskFactorKey, v float64) error {
	return s.spread.Add(k, v)
}

// Get 优先返回利差值，否则返回绝对值。
func (s *SpreadScenario) Get(k RiskFactorKey) (float64, error) {
	if s.spread.Has(k) {
		return s.spread.Get(k)
	}
	return s.absolute.Get(k)
}

// AbsoluteValue 始终读取绝对值情景。
func (s *SpreadScenario) AbsoluteValue(k RiskFactorKey) (float64, error) {
	return s.absolute.Get(k)
}

// SpreadValue 只读取利差情景，不回退。
func (s *SpreadScenario) SpreadValue(k RiskFactorKey) (float64, error) {
	return s.spread.Get(k)
}

func (s *SpreadScenario) Clone() Scenario {
	return &SpreadScenario{absolute: s.absolute.Clone(), spread: s.spread.Clone()}
}

func (s *SpreadScenario) IsCloseEnough(other Scenario) bool {
	o, ok := other.(*SpreadScenario)
	if !ok {
		return closeEnough(s, other)
	}
	return s.absolute.IsCloseEnough(o.absolute) && s.spread.IsCloseEnough(o.spread)
}
