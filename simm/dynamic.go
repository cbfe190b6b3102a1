package simm

import (
	stdmath "math"
	"slices"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/wyfcoding/riskengine/algorithm/math"
	"github.com/wyfcoding/riskengine/xerrors"
)

// Sensitivities 计算币种下的分桶敏感度。
// IR delta 为 1bp 平行冲击下各期限桶的 PV 变化；FX delta 为 1% 相对冲击下的 PV 变化；
// vega 为波动率敏感度乘以波动率，按期权到期期限分桶。
type Sensitivities struct {
	IRDelta map[string][]float64 // 币种 -> 期限桶
	IRVega  map[string][]float64 // 币种 -> 到期桶
	FXDelta map[string]float64   // 币种 -> 对计算币种
	FXVega  map[string][]float64 // 币种 -> 到期桶
}

// NewSensitivities 空的敏感度集合。
func NewSensitivities() *Sensitivities {
	return &Sensitivities{
		IRDelta: make(map[string][]float64),
		IRVega:  make(map[string][]float64),
		FXDelta: make(map[string]float64),
		FXVega:  make(map[string][]float64),
	}
}

// Components 参与计算的保证金分量。
type Components struct {
	IRDelta, IRVega, IRCurvature bool
	FXDelta, FXVega, FXCurvature bool
}

// AllComponents 全部分量。
func AllComponents() Components {
	return Components{true, true, true, true, true, true}
}

// Margins 一次计算的分量与总额。
type Margins struct {
	IRDelta     float64 `json:"ir_delta"`
	IRVega      float64 `json:"ir_vega"`
	IRCurvature float64 `json:"ir_curvature"`
	FXDelta     float64 `json:"fx_delta"`
	FXVega      float64 `json:"fx_vega"`
	FXCurvature float64 `json:"fx_curvature"`
	Total       float64 `json:"total"`
}

// Delta IR 与 FX delta 保证金之和。
func (m Margins) Delta() float64 { return m.IRDelta + m.FXDelta }

func (m Margins) Vega() float64 { return m.IRVega + m.FXVega }

func (m Margins) Curvature() float64 { return m.IRCurvature + m.FXCurvature }

// SimpleDynamicSimm 只覆盖 IR 与 FX 两个风险类的 SIMM 风格聚合。
type SimpleDynamicSimm struct {
	params  *Parameters
	irCurv  *math.Matrix
	fxDelta *math.Matrix
	lambda  float64
}

func NewSimpleDynamicSimm(p *Parameters) (*SimpleDynamicSimm, error) {
	if p == nil {
		p = DefaultParameters()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	q := distuv.UnitNormal.Quantile(0.995)
	return &SimpleDynamicSimm{
		params:  p,
		irCurv:  squared(p.IRTenorCorr),
		fxDelta: math.Identity(1),
		lambda:  q*q - 1,
	}, nil
}

func (s *SimpleDynamicSimm) Parameters() *Parameters { return s.params }

// Calculate 按 comp 选择的分量计算保证金。
func (s *SimpleDynamicSimm) Calculate(sens *Sensitivities, comp Components) (Margins, error) {
	var (
		m   Margins
		err error
	)
	n := len(s.params.Tenors)
	for ccy, v := range sens.IRDelta {
		if len(v) != n {
			return Margins{}, xerrors.Derive(xerrors.ErrDimMismatch, "IR delta for %s has %d buckets, expected %d", ccy, len(v), n)
		}
	}
	for ccy, v := range sens.IRVega {
		if len(v) != n {
			return Margins{}, xerrors.Derive(xerrors.ErrDimMismatch, "IR vega for %s has %d buckets, expected %d", ccy, len(v), n)
		}
	}
	for ccy, v := range sens.FXVega {
		if len(v) != n {
			return Margins{}, xerrors.Derive(xerrors.ErrDimMismatch, "FX vega for %s has %d buckets, expected %d", ccy, len(v), n)
		}
	}

	if comp.IRDelta {
		ws := weighted(sens.IRDelta, func(k int, v float64) float64 { return s.params.IRDeltaWeights[k] * v })
		if m.IRDelta, err = aggregate(ws, s.params.IRTenorCorr, s.params.IRCurrencyCorr); err != nil {
			return Margins{}, err
		}
	}
	if comp.IRVega {
		ws := weighted(sens.IRVega, func(_ int, v float64) float64 { return s.params.IRVegaWeight * v })
		if m.IRVega, err = aggregate(ws, s.params.IRTenorCorr, s.params.IRCurrencyCorr); err != nil {
			return Margins{}, err
		}
	}
	if comp.IRCurvature {
		if m.IRCurvature, err = s.curvature(sens.IRVega, s.params.IRCurrencyCorr); err != nil {
			return Margins{}, err
		}
	}
	if comp.FXDelta {
		ws := make(map[string][]float64, len(sens.FXDelta))
		for ccy, v := range sens.FXDelta {
			ws[ccy] = []float64{s.params.FXDeltaWeight * v}
		}
		if m.FXDelta, err = aggregate(ws, s.fxDelta, s.params.FXCurrencyCorr); err != nil {
			return Margins{}, err
		}
	}
	if comp.FXVega {
		ws := weighted(sens.FXVega, func(_ int, v float64) float64 { return s.params.FXVegaWeight * v })
		if m.FXVega, err = aggregate(ws, s.params.IRTenorCorr, s.params.FXCurrencyCorr); err != nil {
			return Margins{}, err
		}
	}
	if comp.FXCurvature {
		if m.FXCurvature, err = s.curvature(sens.FXVega, s.params.FXCurrencyCorr); err != nil {
			return Margins{}, err
		}
	}

	ir := m.IRDelta + m.IRVega + m.IRCurvature
	fx := m.FXDelta + m.FXVega + m.FXCurvature
	m.Total = stdmath.Sqrt(stdmath.Max(ir*ir+fx*fx+2*s.params.RiskClassCorr*ir*fx, 0))
	return m, nil
}

func weighted(in map[string][]float64, w func(k int, v float64) float64) map[string][]float64 {
	out := make(map[string][]float64, len(in))
	for ccy, v := range in {
		ws := make([]float64, len(v))
		for k, x := range v {
			ws[k] = w(k, x)
		}
		out[ccy] = ws
	}
	return out
}

// aggregate 桶内 K_b = sqrt(WS' ρ WS)，桶间 sqrt(Σ K_b² + Σ_{b≠c} γ S_b S_c)，S_b 截断到 [-K_b, K_b]。
func aggregate(buckets map[string][]float64, intra *math.Matrix, inter float64) (float64, error) {
	names := make([]string, 0, len(buckets))
	for b := range buckets {
		names = append(names, b)
	}
	slices.Sort(names)

	k2 := 0.0
	s := make([]float64, len(names))
	for i, b := range names {
		ws := buckets[b]
		qf, err := intra.QuadraticForm(ws)
		if err != nil {
			return 0, err
		}
		kb := stdmath.Sqrt(stdmath.Max(qf, 0))
		sum := 0.0
		for _, x := range ws {
			sum += x
		}
		s[i] = stdmath.Max(stdmath.Min(sum, kb), -kb)
		k2 += kb * kb
	}
	cross := 0.0
	for i := range s {
		for j := range s {
			if i != j {
				cross += inter * s[i] * s[j]
			}
		}
	}
	return stdmath.Sqrt(stdmath.Max(k2+cross, 0)), nil
}

// curvature CVR_k = SF(t_k) * vega_k；相关系数取平方，λ 按全部 CVR 的符号调整。
func (s *SimpleDynamicSimm) curvature(vega map[string][]float64, inter float64) (float64, error) {
	cvr := weighted(vega, func(k int, v float64) float64 { return curvatureScale(s.params.Tenors[k]) * v })
	sum, abs := 0.0, 0.0
	for _, v := range cvr {
		for _, x := range v {
			sum += x
			abs += stdmath.Abs(x)
		}
	}
	if abs == 0 {
		return 0, nil
	}
	k, err := aggregate(cvr, s.irCurv, inter*inter)
	if err != nil {
		return 0, err
	}
	theta := stdmath.Min(sum/abs, 0)
	lambda := s.lambda*(1+theta) - theta
	return stdmath.Max(sum+lambda*k, 0), nil
}
