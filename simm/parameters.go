package simm

import (
	stdmath "math"

	"github.com/wyfcoding/riskengine/algorithm/math"
	"github.com/wyfcoding/riskengine/xerrors"
)

// Parameters 简化动态 SIMM 的风险权重与相关系数。
// IR 的 delta、vega 与曲率共用同一组期限桶。
type Parameters struct {
	TenorLabels []string
	Tenors      []float64 // 年

	IRDeltaWeights []float64
	IRVegaWeight   float64
	IRTenorCorr    *math.Matrix
	IRCurrencyCorr float64

	FXDeltaWeight  float64
	FXVegaWeight   float64
	FXCurrencyCorr float64

	// RiskClassCorr IR 与 FX 风险类之间的相关系数。
	RiskClassCorr float64
}

var (
	defaultTenorLabels = []string{"2w", "1m", "3m", "6m", "1y", "2y", "3y", "5y", "10y", "15y", "20y", "30y"}
	defaultTenors      = []float64{14.0 / 365, 1.0 / 12, 0.25, 0.5, 1, 2, 3, 5, 10, 15, 20, 30}
	defaultIRWeights   = []float64{109, 105, 90, 71, 66, 66, 64, 60, 60, 61, 61, 67}
)

// DefaultParameters 常规波动率币种的权重，期限相关系数取 exp(-0.25 |ln(ti/tj)|)。
func DefaultParameters() *Parameters {
	p := &Parameters{
		TenorLabels:    append([]string(nil), defaultTenorLabels...),
		Tenors:         append([]float64(nil), defaultTenors...),
		IRDeltaWeights: append([]float64(nil), defaultIRWeights...),
		IRVegaWeight:   0.23,
		IRCurrencyCorr: 0.32,
		FXDeltaWeight:  7.4,
		FXVegaWeight:   0.47,
		FXCurrencyCorr: 0.5,
		RiskClassCorr:  0.27,
	}
	p.IRTenorCorr = ExpTenorCorrelation(p.Tenors, 0.25)
	return p
}

// ExpTenorCorrelation ρ_ij = exp(-decay |ln(ti/tj)|)，对任意正期限半正定。
func ExpTenorCorrelation(tenors []float64, decay float64) *math.Matrix {
	n := len(tenors)
	m := math.NewMatrix(n, n)
	for i := range n {
		for j := range n {
			m.Set(i, j, stdmath.Exp(-decay*stdmath.Abs(stdmath.Log(tenors[i]/tenors[j]))))
		}
	}
	return m
}

// Validate 检查维度与取值范围。
func (p *Parameters) Validate() error {
	n := len(p.Tenors)
	if n == 0 {
		return xerrors.Derive(xerrors.ErrEmptyData, "simm tenors")
	}
	if len(p.IRDeltaWeights) != n || len(p.TenorLabels) != n {
		return xerrors.Derive(xerrors.ErrDimMismatch, "%d tenors, %d labels, %d IR weights", n, len(p.TenorLabels), len(p.IRDeltaWeights))
	}
	if p.IRTenorCorr == nil || p.IRTenorCorr.Rows != n || p.IRTenorCorr.Cols != n {
		return xerrors.Derive(xerrors.ErrDimMismatch, "IR tenor correlation must be %dx%d", n, n)
	}
	if !p.IRTenorCorr.IsSymmetric(1e-12) {
		return xerrors.Configuration("IR tenor correlation is not symmetric")
	}
	for i := 1; i < n; i++ {
		if p.Tenors[i] <= p.Tenors[i-1] {
			return xerrors.Configuration("SIMM tenors must be increasing")
		}
	}
	if p.Tenors[0] <= 0 {
		return xerrors.Configuration("SIMM tenors must be positive")
	}
	for _, c := range []float64{p.IRCurrencyCorr, p.FXCurrencyCorr, p.RiskClassCorr} {
		if c < -1 || c > 1 {
			return xerrors.Configuration("correlation %g outside [-1, 1]", c)
		}
	}
	return nil
}

// curvatureScale SF(t) = 0.5 * min(1, 14 天 / t)。
func curvatureScale(t float64) float64 {
	return 0.5 * stdmath.Min(1, (14.0/365)/t)
}

func squared(m *math.Matrix) *math.Matrix {
	out := math.NewMatrix(m.Rows, m.Cols)
	for i, v := range m.Data {
		out.Data[i] = v * v
	}
	return out
}
