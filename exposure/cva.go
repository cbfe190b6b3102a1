package exposure

import (
	"github.com/wyfcoding/riskengine/cube"
	"github.com/wyfcoding/riskengine/xerrors"
)

// SurvivalCurve 生存概率 S(t)，*market.Curve 满足该接口。
type SurvivalCurve interface {
	Value(t float64) float64
}

func checkRecovery(r float64) error {
	if r < 0 || r >= 1 {
		return xerrors.Configuration("recovery rate %g outside [0, 1)", r)
	}
	return nil
}

// adjustment (1-R) Σ_j e_j (S(t_{j-1}) - S(t_j))，e_j 取区间末端的敞口。
func adjustment(times, exposure []float64, s SurvivalCurve, recovery float64) (float64, error) {
	if err := checkRecovery(recovery); err != nil {
		return 0, err
	}
	if len(times) != len(exposure) {
		return 0, xerrors.Derive(xerrors.ErrDimMismatch, "%d times for %d exposures", len(times), len(exposure))
	}
	sum := 0.0
	for j := 1; j < len(times); j++ {
		sum += exposure[j] * (s.Value(times[j-1]) - s.Value(times[j]))
	}
	return (1 - recovery) * sum, nil
}

// CVA 对手方违约造成的损失期望，使用 EPE 与确定性生存曲线。
func CVA(p *Profile, counterparty SurvivalCurve, recovery float64) (float64, error) {
	return adjustment(p.Times, p.EPE, counterparty, recovery)
}

// DVA 自身违约带来的收益期望，使用 ENE 与自身生存曲线。
func DVA(p *Profile, own SurvivalCurve, recovery float64) (float64, error) {
	return adjustment(p.Times, p.ENE, own, recovery)
}

// CVAFromCube 使用对手方立方体中逐路径的生存概率：
// CVA = (1-R) Σ_j mean_k[ max(V_jk, 0) (S_{j-1,k} - S_{j,k}) ]，S 在估值日取对手方立方体的 T0 值。
// cp 的日期、样本须与 NPV 立方体一致，depth 为生存概率所在深度。
func (c *Calculator) CVAFromCube(ns string, cp cube.NPVCube, depth int, recovery float64) (float64, error) {
	if err := checkRecovery(recovery); err != nil {
		return 0, err
	}
	idx, ok := c.members[ns]
	if !ok {
		return 0, xerrors.Derive(xerrors.ErrUnknownNettingSet, "%q", ns)
	}
	if cp.NumDates() != c.npv.NumDates() || cp.Samples() < c.npv.Samples() {
		return 0, xerrors.Derive(xerrors.ErrIncompatibleCubes, "counterparty cube %dx%d, npv cube %dx%d",
			cp.NumDates(), cp.Samples(), c.npv.NumDates(), c.npv.Samples())
	}
	id, err := cube.IndexOfID(cp, c.counterparty[ns])
	if err != nil {
		return 0, err
	}
	s0, err := cp.GetT0(id, depth)
	if err != nil {
		return 0, err
	}
	samples := c.npv.Samples()
	sum := 0.0
	for k := range samples {
		prev := s0
		for d := range c.npv.NumDates() {
			cur, err := cp.Get(id, d, k, depth)
			if err != nil {
				return 0, err
			}
			v, err := c.netValue(idx, d, k)
			if err != nil {
				return 0, err
			}
			if v > 0 {
				sum += v * (prev - cur)
			}
			prev = cur
		}
	}
	return (1 - recovery) * sum / float64(samples), nil
}
