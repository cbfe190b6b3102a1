package scenario

import (
	"time"
)

// Coordinates 记录每条曲线各下标对应的坐标（通常为以年计的期限），随 SharedData 共享。
type Coordinates map[CurveID][]float64

// Clone 深拷贝。
func (c Coordinates) Clone() Coordinates {
	if c == nil {
		return nil
	}
	out := make(Coordinates, len(c))
	for k, v := range c {
		out[k] = append([]float64(nil), v...)
	}
	return out
}

// Scenario 某一日期、某一样本下的市场状态：风险因子值及计价单位比率 N(t)/N(0)。
type Scenario interface {
	AsOf() time.Time
	Label() string
	SetLabel(label string)
	Numeraire() float64
	SetNumeraire(n float64)
	// IsAbsolute 为 false 时值表示相对基准情景的差分。
	IsAbsolute() bool
	SetAbsolute(b bool)
	Coordinates() Coordinates
	Has(k RiskFactorKey) bool
	Keys() []RiskFactorKey
	Add(k RiskFactorKey, v float64) error
	// Get 读取不存在的键返回 MissingData 错误，错误信息包含键名。
	Get(k RiskFactorKey) (float64, error)
	Clone() Scenario
	IsCloseEnough(other Scenario) bool
}

// MustGet 供测试与已知完整的情景使用。
func MustGet(s Scenario, k RiskFactorKey) float64 {
	v, err := s.Get(k)
	if err != nil {
		panic(err)
	}
	return v
}

// Values 按给定键顺序读取。
func Values(s Scenario, keys []RiskFactorKey) ([]float64, error) {
	out := make([]float64, len(keys))
	for i, k := range keys {
		v, err := s.Get(k)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
