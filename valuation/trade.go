// Package valuation 按 交易 × 日期 × 样本 重估组合并填充 NPV 立方体。
//
// 定价本身由外部 Pricer 提供，本包只负责循环、平减与写入。
package valuation

import (
	"github.com/wyfcoding/riskengine/scenario"
)

// Trade 参与重估的交易。
type Trade struct {
	ID           string
	NettingSet   string
	Counterparty string
	Currency     string
}

// Pricer 在给定情景下对交易定价，返回交易币种的 NPV。
type Pricer interface {
	NPV(trade Trade, s scenario.Scenario) (float64, error)
}

// PricerFunc 函数适配器。
type PricerFunc func(trade Trade, s scenario.Scenario) (float64, error)

func (f PricerFunc) NPV(trade Trade, s scenario.Scenario) (float64, error) { return f(trade, s) }

// IDs 交易 id 列表，顺序与输入一致。
func IDs(trades []Trade) []string {
	ids := make([]string, len(trades))
	for i, t := range trades {
		ids[i] = t.ID
	}
	return ids
}
