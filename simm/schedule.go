// Package simm 计算初始保证金：BCBS-IOSCO 标准表法与基于立方体敏感度的简化动态 SIMM。
package simm

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/riskengine/xerrors"
)

// ProductClass 标准表法的产品类别。
type ProductClass int

const (
	Rates ProductClass = iota
	FX
	RatesFX
	Credit
	Equity
	Commodity
	Other
)

var productClassNames = [...]string{
	Rates:     "Rates",
	FX:        "FX",
	RatesFX:   "RatesFX",
	Credit:    "Credit",
	Equity:    "Equity",
	Commodity: "Commodity",
	Other:     "Other",
}

func (pc ProductClass) String() string {
	if pc >= 0 && int(pc) < len(productClassNames) {
		return productClassNames[pc]
	}
	return "Unknown"
}

// ParseProductClass 大小写不敏感。
func ParseProductClass(s string) (ProductClass, error) {
	for i, n := range productClassNames {
		if strings.EqualFold(n, strings.TrimSpace(s)) {
			return ProductClass(i), nil
		}
	}
	return Other, xerrors.InvalidArg("unknown product class " + s)
}

// IMScheduleResult 一个产品类别的标准表法结果。
type IMScheduleResult struct {
	GrossIM    decimal.Decimal `json:"gross_im"`
	GrossRC    decimal.Decimal `json:"gross_rc"`
	NetRC      decimal.Decimal `json:"net_rc"`
	NGR        decimal.Decimal `json:"ngr"`
	ScheduleIM decimal.Decimal `json:"schedule_im"`
}

// IMScheduleResults 按产品类别汇总，所有条目共用一个币种。
type IMScheduleResults struct {
	currency string
	data     map[ProductClass]IMScheduleResult
}

// NewIMScheduleResults currency 可以为空，由第一次 Add 决定。
func NewIMScheduleResults(currency string) *IMScheduleResults {
	return &IMScheduleResults{currency: currency, data: make(map[ProductClass]IMScheduleResult)}
}

// Add 新类别写入全部字段；已有类别只累加 GrossIM，其余字段保持首次写入的值。
// 币种与已有币种不同时返回 ErrCurrencyMismatch。
func (r *IMScheduleResults) Add(pc ProductClass, currency string, grossIM, grossRC, netRC, ngr, scheduleIM decimal.Decimal) error {
	if r.currency == "" {
		r.currency = currency
	} else if currency != r.currency {
		return xerrors.Derive(xerrors.ErrCurrencyMismatch, "cannot add %s %s result to %s schedule results", pc, currency, r.currency)
	}
	if cur, ok := r.data[pc]; ok {
		cur.GrossIM = cur.GrossIM.Add(grossIM)
		r.data[pc] = cur
		return nil
	}
	r.data[pc] = IMScheduleResult{GrossIM: grossIM, GrossRC: grossRC, NetRC: netRC, NGR: ngr, ScheduleIM: scheduleIM}
	return nil
}

// Get 产品类别的结果。
func (r *IMScheduleResults) Get(pc ProductClass) (IMScheduleResult, bool) {
	v, ok := r.data[pc]
	return v, ok
}

func (r *IMScheduleResults) Has(pc ProductClass) bool {
	_, ok := r.data[pc]
	return ok
}

func (r *IMScheduleResults) Currency() string { return r.currency }

func (r *IMScheduleResults) Empty() bool { return len(r.data) == 0 }

// Clear 清空结果，币种保留。
func (r *IMScheduleResults) Clear() { clear(r.data) }

// ProductClasses 有结果的类别，升序。
func (r *IMScheduleResults) ProductClasses() []ProductClass {
	out := make([]ProductClass, 0, len(r.data))
	for pc := range r.data {
		out = append(out, pc)
	}
	slices.Sort(out)
	return out
}

// Total 各类别 ScheduleIM 之和。
func (r *IMScheduleResults) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range r.data {
		total = total.Add(v.ScheduleIM)
	}
	return total
}

// ConvertTo 以 rate（1 单位当前币种折合目标币种）换算全部金额，NGR 不变。
func (r *IMScheduleResults) ConvertTo(currency string, rate decimal.Decimal) *IMScheduleResults {
	out := NewIMScheduleResults(currency)
	for pc, v := range r.data {
		out.data[pc] = IMScheduleResult{
			GrossIM:    v.GrossIM.Mul(rate),
			GrossRC:    v.GrossRC.Mul(rate),
			NetRC:      v.NetRC.Mul(rate),
			NGR:        v.NGR,
			ScheduleIM: v.ScheduleIM.Mul(rate),
		}
	}
	return out
}
