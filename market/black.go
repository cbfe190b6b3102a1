package market

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// OptionType 看涨 / 看跌。
type OptionType int

const (
	Call OptionType = iota
	Put
)

var stdNormal = distuv.UnitNormal

// Black76 远期价格为 forward、执行价 strike、总标准差 stdDev 的期权价值，乘以 discount。
func Black76(typ OptionType, forward, strike, stdDev, discount float64) float64 {
	if stdDev <= 0 || forward <= 0 || strike <= 0 {
		intrinsic := forward - strike
		if typ == Put {
			intrinsic = -intrinsic
		}
		return discount * math.Max(intrinsic, 0)
	}
	d1 := (math.Log(forward/strike) + 0.5*stdDev*stdDev) / stdDev
	d2 := d1 - stdDev
	if typ == Call {
		return discount * (forward*stdNormal.CDF(d1) - strike*stdNormal.CDF(d2))
	}
	return discount * (strike*stdNormal.CDF(-d2) - forward*stdNormal.CDF(-d1))
}

// BlackVega 对波动率 sigma 的导数，t 为期权期限。
func BlackVega(forward, strike, sigma, t, discount float64) float64 {
	if sigma <= 0 || t <= 0 || forward <= 0 || strike <= 0 {
		return 0
	}
	sd := sigma * math.Sqrt(t)
	d1 := (math.Log(forward/strike) + 0.5*sd*sd) / sd
	return discount * forward * stdNormal.Prob(d1) * math.Sqrt(t)
}
