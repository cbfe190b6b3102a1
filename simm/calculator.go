package simm

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/riskengine/logging"
	"github.com/wyfcoding/riskengine/xerrors"
)

// ScheduleTrade 标准表法的输入：名义本金、剩余期限与当前 NPV。
type ScheduleTrade struct {
	ID           string
	NettingSet   string
	ProductClass ProductClass
	Currency     string
	Notional     decimal.Decimal
	NPV          decimal.Decimal
	Maturity     float64 // 年
}

var (
	weight1  = decimal.RequireFromString("0.01")
	weight2  = decimal.RequireFromString("0.02")
	weight4  = decimal.RequireFromString("0.04")
	weight5  = decimal.RequireFromString("0.05")
	weight6  = decimal.RequireFromString("0.06")
	weight10 = decimal.RequireFromString("0.10")
	weight15 = decimal.RequireFromString("0.15")

	grossShare = decimal.RequireFromString("0.4")
	netShare   = decimal.RequireFromString("0.6")
)

// ScheduleWeight BCBS-IOSCO 标准表权重。
func ScheduleWeight(pc ProductClass, maturity float64) decimal.Decimal {
	switch pc {
	case Rates, RatesFX:
		switch {
		case maturity < 2:
			return weight1
		case maturity <= 5:
			return weight2
		default:
			return weight4
		}
	case Credit:
		switch {
		case maturity < 2:
			return weight2
		case maturity <= 5:
			return weight5
		default:
			return weight10
		}
	case FX:
		return weight6
	default:
		return weight15
	}
}

// ScheduleCalculator 按净额集计算标准表法初始保证金：
// ScheduleIM = GrossIM * (0.4 + 0.6 * NGR)，NGR = NetRC / GrossRC 在净额集层面计算。
type ScheduleCalculator struct {
	currency string
	fx       map[string]decimal.Decimal
	logger   *logging.Logger
	results  map[string]*IMScheduleResults
}

// NewScheduleCalculator fx 为 1 单位外币折合计算币种的汇率，计算币种本身不需要给出。
func NewScheduleCalculator(currency string, fx map[string]decimal.Decimal, logger *logging.Logger) *ScheduleCalculator {
	return &ScheduleCalculator{
		currency: currency,
		fx:       fx,
		logger:   logging.Component(logger, "simm-schedule"),
		results:  make(map[string]*IMScheduleResults),
	}
}

func (c *ScheduleCalculator) rate(ccy string) (decimal.Decimal, error) {
	if ccy == "" || ccy == c.currency {
		return decimal.NewFromInt(1), nil
	}
	r, ok := c.fx[ccy]
	if !ok {
		return decimal.Zero, xerrors.Derive(xerrors.ErrMissingRiskFactor, "no FX rate %s%s", ccy, c.currency)
	}
	return r, nil
}

type nettingTotals struct {
	grossRC decimal.Decimal
	npv     decimal.Decimal
	grossIM map[ProductClass]decimal.Decimal
}

// Calculate 重新计算全部净额集，返回按净额集的结果。
func (c *ScheduleCalculator) Calculate(trades []ScheduleTrade) (map[string]*IMScheduleResults, error) {
	totals := make(map[string]*nettingTotals)
	type converted struct {
		trade   ScheduleTrade
		grossIM decimal.Decimal
	}
	conv := make([]converted, 0, len(trades))

	for _, t := range trades {
		r, err := c.rate(t.Currency)
		if err != nil {
			return nil, err
		}
		if t.Maturity < 0 {
			return nil, xerrors.InvalidArg("negative maturity for trade " + t.ID)
		}
		npv := t.NPV.Mul(r)
		gim := t.Notional.Abs().Mul(r).Mul(ScheduleWeight(t.ProductClass, t.Maturity))
		nt, ok := totals[t.NettingSet]
		if !ok {
			nt = &nettingTotals{grossRC: decimal.Zero, npv: decimal.Zero, grossIM: make(map[ProductClass]decimal.Decimal)}
			totals[t.NettingSet] = nt
		}
		nt.npv = nt.npv.Add(npv)
		if npv.IsPositive() {
			nt.grossRC = nt.grossRC.Add(npv)
		}
		nt.grossIM[t.ProductClass] = nt.grossIM[t.ProductClass].Add(gim)
		conv = append(conv, converted{trade: t, grossIM: gim})
	}

	out := make(map[string]*IMScheduleResults, len(totals))
	for _, cv := range conv {
		ns := cv.trade.NettingSet
		nt := totals[ns]
		netRC := decimal.Max(nt.npv, decimal.Zero)
		// 没有正的重置成本时不做净额抵减
		ngr := decimal.NewFromInt(1)
		if nt.grossRC.IsPositive() {
			ngr = netRC.Div(nt.grossRC)
		}
		factor := grossShare.Add(netShare.Mul(ngr))
		res, ok := out[ns]
		if !ok {
			res = NewIMScheduleResults(c.currency)
			out[ns] = res
		}
		pc := cv.trade.ProductClass
		scheduleIM := nt.grossIM[pc].Mul(factor)
		if err := res.Add(pc, c.currency, cv.grossIM, nt.grossRC, netRC, ngr, scheduleIM); err != nil {
			return nil, err
		}
	}
	c.results = out

	ids := make([]string, 0, len(out))
	for ns := range out {
		ids = append(ids, ns)
	}
	slices.Sort(ids)
	for _, ns := range ids {
		c.logger.Debug("schedule IM calculated", "netting_set", ns, "currency", c.currency, "schedule_im", out[ns].Total().StringFixed(2))
	}
	return out, nil
}

// Results 最近一次计算的结果。
func (c *ScheduleCalculator) Results(nettingSet string) (*IMScheduleResults, bool) {
	r, ok := c.results[nettingSet]
	return r, ok
}
