package scenario

import (
	"time"

	"github.com/wyfcoding/riskengine/algorithm/math"
)

// DeltaScenario 基准情景 + 稀疏差异情景。
//
// 日期、标签、计价单位与 absolute 标志取自 delta；Has 与 Keys 始终取自 base，
// 因此 delta 中独有的键不会出现在 Keys 中。
type DeltaScenario struct {
	base  Scenario
	delta Scenario
}

// NewDeltaScenario 组合基准与差异情景，base 被共享引用，不会被修改。
func NewDeltaScenario(base, delta Scenario) *DeltaScenario {
	return &DeltaScenario{base: base, delta: delta}
}

// Base 基准情景。
func (d *DeltaScenario) Base() Scenario { return d.base }

// Delta 差异情景。
func (d *DeltaScenario) Delta() Scenario { return d.delta }

func (d *DeltaScenario) AsOf() time.Time          { return d.delta.AsOf() }
func (d *DeltaScenario) Label() string            { return d.delta.Label() }
func (d *DeltaScenario) SetLabel(l string)        { d.delta.SetLabel(l) }
func (d *DeltaScenario) Numeraire() float64       { return d.delta.Numeraire() }
func (d *DeltaScenario) SetNumeraire(n float64)   { d.delta.SetNumeraire(n) }
func (d *DeltaScenario) IsAbsolute() bool         { return d.delta.IsAbsolute() }
func (d *DeltaScenario) SetAbsolute(b bool)       { d.delta.SetAbsolute(b) }
func (d *DeltaScenario) Coordinates() Coordinates { return d.base.Coordinates() }
func (d *DeltaScenario) Has(k RiskFactorKey) bool { return d.base.Has(k) }
func (d *DeltaScenario) Keys() []RiskFactorKey    { return d.base.Keys() }

// Add 仅当值与基准不同时写入 delta。
func (d *DeltaScenario) Add(k RiskFactorKey, v float64) error {
	if bv, err := d.base.Get(k); err == nil && math.CloseEnough(bv, v) && !d.delta.Has(k) {
		return nil
	}
	return d.delta.Add(k, v)
}

func (d *DeltaScenario) Get(k RiskFactorKey) (float64, error) {
	if d.delta.Has(k) {
		return d.delta.Get(k)
	}
	return d.base.Get(k)
}

// Clone 共享 base，复制 delta。
func (d *DeltaScenario) Clone() Scenario {
	var delta Scenario
	if s, ok := d.delta.(*SimpleScenario); ok {
		delta = s.Detach()
	} else {
		delta = d.delta.Clone()
	}
	return &DeltaScenario{base: d.base, delta: delta}
}

func (d *DeltaScenario) IsCloseEnough(other Scenario) bool {
	return closeEnough(d, other)
}
