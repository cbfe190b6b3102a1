package config

import (
	"time"

	"github.com/wyfcoding/riskengine/datetime"
)

// AsOfDate 解析估值日。
func (c SimulationConfig) AsOfDate() (time.Time, error) {
	return datetime.ParseDate(c.AsOf)
}

// GridPeriods 解析模拟日期网格的期限列表。
func (c SimulationConfig) GridPeriods() ([]datetime.Period, error) {
	return datetime.ParsePeriods(c.Grid)
}

// Correlation 返回两个状态变量间的相关系数，未配置时同名为 1、异名为 0。
func (c SimulationConfig) Correlation(a, b string) float64 {
	if a == b {
		return 1
	}
	for _, cc := range c.Correlations {
		if (cc.First == a && cc.Second == b) || (cc.First == b && cc.Second == a) {
			return cc.Rho
		}
	}
	return 0
}

// Shift 返回指定风险因子类型的冲击配置。
func (c SensitivityConfig) Shift(keyType string) (ShiftConfig, bool) {
	for _, s := range c.Shifts {
		if s.KeyType == keyType {
			return s, true
		}
	}
	return ShiftConfig{}, false
}

// EffectiveWorkers 返回有效并发数，未配置时为 1。
func (c ConcurrencyConfig) EffectiveWorkers() int {
	if c.Workers <= 0 {
		return 1
	}
	return c.Workers
}
