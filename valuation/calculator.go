package valuation

import (
	"github.com/wyfcoding/riskengine/cube"
	"github.com/wyfcoding/riskengine/datetime"
	"github.com/wyfcoding/riskengine/logging"
	"github.com/wyfcoding/riskengine/market"
	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/xerrors"
)

// Calculator 把单个交易在单个情景下的结果写入立方体。
type Calculator interface {
	CalculateT0(trade Trade, id int, s scenario.Scenario, c cube.NPVCube) error
	Calculate(trade Trade, id int, s scenario.Scenario, c cube.NPVCube, date, sample int) error
}

// NPVCalculator 写入以基础币种计价的 NPV，非 T0 日期除以情景计价单位（平减）。
type NPVCalculator struct {
	pricer       Pricer
	baseCurrency string
	depth        int
}

// NewNPVCalculator depth 为写入的深度下标；baseCurrency 为空时不做汇率换算。
func NewNPVCalculator(pricer Pricer, baseCurrency string, depth int) *NPVCalculator {
	return &NPVCalculator{pricer: pricer, baseCurrency: baseCurrency, depth: depth}
}

func (n *NPVCalculator) npv(trade Trade, s scenario.Scenario) (float64, error) {
	v, err := n.pricer.NPV(trade, s)
	if err != nil {
		return 0, xerrors.Wrap(err, xerrors.ErrNumerical, "price "+trade.ID)
	}
	if n.baseCurrency == "" || trade.Currency == "" || trade.Currency == n.baseCurrency {
		return v, nil
	}
	fx, err := s.Get(scenario.NewKey(scenario.FXSpot, trade.Currency+n.baseCurrency, 0))
	if err != nil {
		return 0, err
	}
	return v * fx, nil
}

func (n *NPVCalculator) CalculateT0(trade Trade, id int, s scenario.Scenario, c cube.NPVCube) error {
	v, err := n.npv(trade, s)
	if err != nil {
		return err
	}
	return c.SetT0(v, id, n.depth)
}

func (n *NPVCalculator) Calculate(trade Trade, id int, s scenario.Scenario, c cube.NPVCube, date, sample int) error {
	v, err := n.npv(trade, s)
	if err != nil {
		return err
	}
	num := s.Numeraire()
	if num == 0 {
		return xerrors.Derive(xerrors.ErrZeroDivision, "numeraire of scenario %q", s.Label())
	}
	return c.Set(v/num, id, date, sample, n.depth)
}

// CounterpartyCalculator 把对手方层面的量写入对手方立方体。
type CounterpartyCalculator interface {
	CalculateT0(counterparty string, id int, s scenario.Scenario, c cube.NPVCube) error
	Calculate(counterparty string, id int, s scenario.Scenario, c cube.NPVCube, date, sample int) error
}

// SurvivalProbabilityCalculator 写入对手方截至各网格日期的生存概率，T0 为 1。
// 生存曲线读取 SurvivalProbability/<对手方> 的支柱，期限自立方体估值日起算。
type SurvivalProbabilityCalculator struct {
	depth int
}

func NewSurvivalProbabilityCalculator(depth int) *SurvivalProbabilityCalculator {
	return &SurvivalProbabilityCalculator{depth: depth}
}

func (sp *SurvivalProbabilityCalculator) CalculateT0(_ string, id int, _ scenario.Scenario, c cube.NPVCube) error {
	return c.SetT0(1, id, sp.depth)
}

func (sp *SurvivalProbabilityCalculator) Calculate(counterparty string, id int, s scenario.Scenario, c cube.NPVCube, date, sample int) error {
	curve, err := market.CurveFromScenario(s, scenario.CurveID{Type: scenario.SurvivalProbability, Name: counterparty})
	if err != nil {
		return err
	}
	t := datetime.YearFraction(c.AsOf(), c.Dates()[date])
	return c.Set(curve.Value(t), id, date, sample, sp.depth)
}

// fallbackCalculator 内层计算失败时记录日志并写入固定值。
type fallbackCalculator struct {
	inner  CounterpartyCalculator
	value  float64
	depth  int
	logger *logging.Logger
}

// WithFallback 包装对手方计算器：失败时记录告警并在 depth 处写入 value，而不是中断构建。
func WithFallback(inner CounterpartyCalculator, value float64, depth int, logger *logging.Logger) CounterpartyCalculator {
	return &fallbackCalculator{inner: inner, value: value, depth: depth, logger: logging.Component(logger, "valuation")}
}

func (f *fallbackCalculator) CalculateT0(cp string, id int, s scenario.Scenario, c cube.NPVCube) error {
	if err := f.inner.CalculateT0(cp, id, s, c); err != nil {
		f.logger.Warn("counterparty calculation failed, writing fallback", "counterparty", cp, "value", f.value, "error", err)
		return c.SetT0(f.value, id, f.depth)
	}
	return nil
}

func (f *fallbackCalculator) Calculate(cp string, id int, s scenario.Scenario, c cube.NPVCube, date, sample int) error {
	if err := f.inner.Calculate(cp, id, s, c, date, sample); err != nil {
		f.logger.Warn("counterparty calculation failed, writing fallback",
			"counterparty", cp, "date", date, "sample", sample, "value", f.value, "error", err)
		return c.Set(f.value, id, date, sample, f.depth)
	}
	return nil
}
