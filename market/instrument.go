package market

import (
	"math"

	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/xerrors"
)

// InstrumentType 平价校准工具类型。
type InstrumentType string

const (
	Deposit  InstrumentType = "Deposit"
	Swap     InstrumentType = "Swap"
	CapFloor InstrumentType = "CapFloor"
	CDS      InstrumentType = "CDS"
)

// Instrument 以一个平价风险因子报价的校准工具。
type Instrument interface {
	Type() InstrumentType
	// Key 该工具对应的平价风险因子。
	Key() scenario.RiskFactorKey
	Maturity() float64
	// ParRate 在给定市场下的报价：存款 / 互换为平价利率，CDS 为平价利差，上限期权为平价（平坦）波动率。
	ParRate(m Market) (float64, error)
	// Curves 报价依赖的曲线，用于确定雅可比矩阵的非零列。
	Curves() []scenario.CurveID
}

func schedule(maturity float64, frequency int) []float64 {
	n := int(math.Round(maturity * float64(frequency)))
	if n < 1 {
		n = 1
	}
	ts := make([]float64, n)
	for i := range ts {
		ts[i] = maturity * float64(i+1) / float64(n)
	}
	return ts
}

// DepositInstrument 单期简单复利存款。
type DepositInstrument struct {
	key   scenario.RiskFactorKey
	curve scenario.CurveID
	t     float64
}

func NewDeposit(key scenario.RiskFactorKey, curve scenario.CurveID, maturity float64) *DepositInstrument {
	return &DepositInstrument{key: key, curve: curve, t: maturity}
}

func (d *DepositInstrument) Type() InstrumentType        { return Deposit }
func (d *DepositInstrument) Key() scenario.RiskFactorKey { return d.key }
func (d *DepositInstrument) Maturity() float64           { return d.t }
func (d *DepositInstrument) Curves() []scenario.CurveID  { return []scenario.CurveID{d.curve} }

func (d *DepositInstrument) ParRate(m Market) (float64, error) {
	c, err := m.Curve(d.curve)
	if err != nil {
		return 0, err
	}
	return (1/c.Discount(d.t) - 1) / d.t, nil
}

// SwapInstrument 固定对浮动利率互换，浮动端由 forward 曲线投影、discount 曲线贴现。
type SwapInstrument struct {
	key       scenario.RiskFactorKey
	forward   scenario.CurveID
	discount  scenario.CurveID
	t         float64
	frequency int
}

func NewSwap(key scenario.RiskFactorKey, forward, discount scenario.CurveID, maturity float64, frequency int) *SwapInstrument {
	return &SwapInstrument{key: key, forward: forward, discount: discount, t: maturity, frequency: frequency}
}

func (s *SwapInstrument) Type() InstrumentType        { return Swap }
func (s *SwapInstrument) Key() scenario.RiskFactorKey { return s.key }
func (s *SwapInstrument) Maturity() float64           { return s.t }

func (s *SwapInstrument) Curves() []scenario.CurveID {
	if s.forward == s.discount {
		return []scenario.CurveID{s.forward}
	}
	return []scenario.CurveID{s.forward, s.discount}
}

func (s *SwapInstrument) ParRate(m Market) (float64, error) {
	fwd, err := m.Curve(s.forward)
	if err != nil {
		return 0, err
	}
	disc, err := m.Curve(s.discount)
	if err != nil {
		return 0, err
	}
	var annuity, float float64
	prev := 0.0
	for _, t := range schedule(s.t, s.frequency) {
		tau := t - prev
		df := disc.Discount(t)
		annuity += tau * df
		float += tau * fwd.ForwardRate(prev, t) * df
		prev = t
	}
	if annuity == 0 {
		return 0, xerrors.Derive(xerrors.ErrZeroDivision, "swap annuity for %s", s.key)
	}
	return float / annuity, nil
}

// CDSInstrument 平价信用违约互换，报价为平价利差。
type CDSInstrument struct {
	key       scenario.RiskFactorKey
	survival  scenario.CurveID
	discount  *scenario.CurveID
	recovery  float64
	t         float64
	frequency int
}

// NewCDS discount 为 nil 时不贴现；recovery 在情景中存在 RecoveryRate/<name>/0 时以情景为准。
func NewCDS(key scenario.RiskFactorKey, survival scenario.CurveID, discount *scenario.CurveID, recovery, maturity float64, frequency int) *CDSInstrument {
	return &CDSInstrument{key: key, survival: survival, discount: discount, recovery: recovery, t: maturity, frequency: frequency}
}

func (c *CDSInstrument) Type() InstrumentType        { return CDS }
func (c *CDSInstrument) Key() scenario.RiskFactorKey { return c.key }
func (c *CDSInstrument) Maturity() float64           { return c.t }

func (c *CDSInstrument) Curves() []scenario.CurveID {
	if c.discount == nil {
		return []scenario.CurveID{c.survival}
	}
	return []scenario.CurveID{c.survival, *c.discount}
}

func (c *CDSInstrument) ParRate(m Market) (float64, error) {
	surv, err := m.Curve(c.survival)
	if err != nil {
		return 0, err
	}
	df := func(float64) float64 { return 1 }
	if c.discount != nil {
		disc, err := m.Curve(*c.discount)
		if err != nil {
			return 0, err
		}
		df = disc.Discount
	}
	recovery := c.recovery
	if rk := scenario.NewKey(scenario.RecoveryRate, c.survival.Name, 0); m.Has(rk) {
		if recovery, err = m.Value(rk); err != nil {
			return 0, err
		}
	}
	var premium, protection float64
	prev, sPrev := 0.0, 1.0
	for _, t := range schedule(c.t, c.frequency) {
		s := surv.Value(t)
		d := df(t)
		premium += (t - prev) * d * s
		protection += d * (sPrev - s)
		prev, sPrev = t, s
	}
	if premium == 0 {
		return 0, xerrors.Derive(xerrors.ErrZeroDivision, "cds risky annuity for %s", c.key)
	}
	return (1 - recovery) * protection / premium, nil
}

// CapInstrument 平价利率上限，报价为使各期 Black 价格之和与按分段波动率定价相等的平坦波动率。
// 执行价在构造时固定。
type CapInstrument struct {
	key       scenario.RiskFactorKey
	forward   scenario.CurveID
	discount  scenario.CurveID
	vol       scenario.CurveID
	strike    float64
	t         float64
	frequency int
}

func NewCap(key scenario.RiskFactorKey, forward, discount, vol scenario.CurveID, strike, maturity float64, frequency int) *CapInstrument {
	return &CapInstrument{key: key, forward: forward, discount: discount, vol: vol, strike: strike, t: maturity, frequency: frequency}
}

func (c *CapInstrument) Type() InstrumentType        { return CapFloor }
func (c *CapInstrument) Key() scenario.RiskFactorKey { return c.key }
func (c *CapInstrument) Maturity() float64           { return c.t }
func (c *CapInstrument) Strike() float64             { return c.strike }

func (c *CapInstrument) Curves() []scenario.CurveID {
	ids := []scenario.CurveID{c.vol, c.forward}
	if c.discount != c.forward {
		ids = append(ids, c.discount)
	}
	return ids
}

type caplet struct {
	fix, tau, fwd, df, vol float64
}

func (c *CapInstrument) caplets(m Market) ([]caplet, error) {
	fwd, err := m.Curve(c.forward)
	if err != nil {
		return nil, err
	}
	disc, err := m.Curve(c.discount)
	if err != nil {
		return nil, err
	}
	ts := schedule(c.t, c.frequency)
	if len(ts) < 2 {
		return nil, xerrors.Derive(xerrors.ErrMissingInstrument, "cap %s has no optionlets at maturity %g", c.key, c.t)
	}
	out := make([]caplet, 0, len(ts)-1)
	for i := 1; i < len(ts); i++ {
		fix, pay := ts[i-1], ts[i]
		v, err := VolAt(m, c.vol, fix)
		if err != nil {
			return nil, err
		}
		out = append(out, caplet{fix: fix, tau: pay - fix, fwd: fwd.ForwardRate(fix, pay), df: disc.Discount(pay), vol: v})
	}
	return out, nil
}

func capPrice(cs []caplet, strike float64, flat float64) (price, vega float64) {
	for _, cl := range cs {
		sigma := cl.vol
		if flat >= 0 {
			sigma = flat
		}
		price += cl.tau * Black76(Call, cl.fwd, strike, sigma*math.Sqrt(cl.fix), cl.df)
		vega += cl.tau * BlackVega(cl.fwd, strike, sigma, cl.fix, cl.df)
	}
	return price, vega
}

// ATMStrike 上限期权首个固定日之后的平价互换利率，作为执行价。
func ATMStrike(m Market, forward, discount scenario.CurveID, maturity float64, frequency int) (float64, error) {
	fwd, err := m.Curve(forward)
	if err != nil {
		return 0, err
	}
	disc, err := m.Curve(discount)
	if err != nil {
		return 0, err
	}
	ts := schedule(maturity, frequency)
	var annuity, float float64
	for i := 1; i < len(ts); i++ {
		tau := ts[i] - ts[i-1]
		df := disc.Discount(ts[i])
		annuity += tau * df
		float += tau * fwd.ForwardRate(ts[i-1], ts[i]) * df
	}
	if annuity == 0 {
		return fwd.ForwardRate(0, maturity), nil
	}
	return float / annuity, nil
}

func (c *CapInstrument) ParRate(m Market) (float64, error) {
	cs, err := c.caplets(m)
	if err != nil {
		return 0, err
	}
	target, _ := capPrice(cs, c.strike, -1)
	return impliedFlatVol(cs, c.strike, target, c.key)
}

// impliedFlatVol 牛顿迭代，步长越界或 vega 过小时退化为二分。
func impliedFlatVol(cs []caplet, strike, target float64, key scenario.RiskFactorKey) (float64, error) {
	lo, hi := 1e-8, 5.0
	sigma := 0.0
	for _, cl := range cs {
		sigma += cl.vol
	}
	sigma /= float64(len(cs))
	if sigma <= lo || sigma >= hi {
		sigma = 0.2
	}
	for range 100 {
		p, vega := capPrice(cs, strike, sigma)
		diff := p - target
		if math.Abs(diff) < 1e-14 {
			return sigma, nil
		}
		if diff > 0 {
			hi = sigma
		} else {
			lo = sigma
		}
		next := sigma - diff/vega
		if vega < 1e-16 || next <= lo || next >= hi {
			next = 0.5 * (lo + hi)
		}
		if math.Abs(next-sigma) < 1e-15 {
			return next, nil
		}
		sigma = next
	}
	return 0, xerrors.Derive(xerrors.ErrMathConvergence, "implied flat vol for %s", key)
}
