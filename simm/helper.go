package simm

import (
	"context"

	"github.com/wyfcoding/riskengine/cube"
	"github.com/wyfcoding/riskengine/logging"
	"github.com/wyfcoding/riskengine/market"
	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/xerrors"
)

// SimmHelper 从立方体读取净额集的敏感度并计算动态初始保证金。
//
// date 与 sample 同时为 nil 时读取 T0 切片与 t0 市场；同时给出时读取 (date, sample) 单元，
// 立方体值乘以 ScenarioData 中的计价单位还原，现价与贴现因子取自 ScenarioData。
// 各分量保证金在 InitialMargin 调用后可读。
type SimmHelper struct {
	npv    cube.NPVCube
	data   *cube.ScenarioData
	t0     scenario.Scenario
	layout *SensitivityLayout
	simm   *SimpleDynamicSimm
	par    *IrDeltaParConverter
	logger *logging.Logger

	margins Margins
	sens    *Sensitivities
}

// NewSimmHelper par 为 nil 时 IR delta 不做平价转换；data 为 nil 时只能在 T0 上计算。
func NewSimmHelper(npv cube.NPVCube, data *cube.ScenarioData, t0 scenario.Scenario, layout *SensitivityLayout,
	simm *SimpleDynamicSimm, par *IrDeltaParConverter, logger *logging.Logger) (*SimmHelper, error) {
	if npv.Depth() < layout.Depth() {
		return nil, xerrors.Derive(xerrors.ErrInvalidDimension, "cube depth %d, SIMM layout needs %d", npv.Depth(), layout.Depth())
	}
	if n := len(simm.Parameters().Tenors); layout.NumTenors() != n {
		return nil, xerrors.Derive(xerrors.ErrDimMismatch, "layout has %d tenors, SIMM parameters have %d", layout.NumTenors(), n)
	}
	return &SimmHelper{
		npv:    npv,
		data:   data,
		t0:     t0,
		layout: layout,
		simm:   simm,
		par:    par,
		logger: logging.Component(logger, "simm"),
	}, nil
}

type slice struct {
	id        int
	date      int
	sample    int
	t0        bool
	numeraire float64
}

func (h *SimmHelper) selectSlice(nettingSet string, date, sample *int) (slice, error) {
	if (date == nil) != (sample == nil) {
		return slice{}, xerrors.ErrInvalidSelector
	}
	id, err := cube.IndexOfID(h.npv, nettingSet)
	if err != nil {
		return slice{}, xerrors.DeriveCause(xerrors.ErrUnknownNettingSet, err, "%q", nettingSet)
	}
	if date == nil {
		if h.t0 == nil {
			return slice{}, xerrors.Configuration("T0 margin needs a T0 market scenario")
		}
		return slice{id: id, t0: true, numeraire: 1}, nil
	}
	if h.data == nil {
		return slice{}, xerrors.Configuration("scenario margin needs scenario data")
	}
	sl := slice{id: id, date: *date, sample: *sample, numeraire: 1}
	if h.data.Has(cube.DataNumeraire) {
		if sl.numeraire, err = h.data.Get(sl.date, sl.sample, cube.DataNumeraire); err != nil {
			return slice{}, err
		}
	}
	return sl, nil
}

func (h *SimmHelper) cell(sl slice, depth int) (float64, error) {
	if sl.t0 {
		return h.npv.GetT0(sl.id, depth)
	}
	v, err := h.npv.Get(sl.id, sl.date, sl.sample, depth)
	return v * sl.numeraire, err
}

func (h *SimmHelper) market(sl slice, k scenario.RiskFactorKey) (float64, error) {
	if sl.t0 {
		return h.t0.Get(k)
	}
	return h.data.Get(sl.date, sl.sample, k.String())
}

// discountFactors 在 SIMM 期限上的贴现因子，曲线支柱取 t0 情景的坐标。
func (h *SimmHelper) discountFactors(sl slice, ccy string) ([]float64, error) {
	if h.t0 == nil {
		return nil, xerrors.Configuration("par conversion needs T0 curve coordinates")
	}
	id := scenario.CurveID{Type: scenario.DiscountCurve, Name: ccy}
	pillars, ok := h.t0.Coordinates()[id]
	if !ok {
		return nil, xerrors.Derive(xerrors.ErrMissingRiskFactor, "no pillars for %s", id)
	}
	values := make([]float64, len(pillars))
	for i := range pillars {
		v, err := h.market(sl, scenario.NewKey(id.Type, ccy, i))
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	curve, err := market.NewCurve(pillars, values)
	if err != nil {
		return nil, err
	}
	tenors := h.simm.Parameters().Tenors
	dfs := make([]float64, len(tenors))
	for i, t := range tenors {
		dfs[i] = curve.Discount(t)
	}
	return dfs, nil
}

func (h *SimmHelper) collect(ctx context.Context, sl slice, comp Components) (*Sensitivities, error) {
	sens := NewSensitivities()
	n := h.layout.NumTenors()
	calc := h.layout.CalculationCurrency()
	for ci, ccy := range h.layout.Currencies() {
		if comp.IRDelta {
			d := make([]float64, n)
			for k := range n {
				depth, err := h.layout.IRDelta(ccy, k)
				if err != nil {
					return nil, err
				}
				if d[k], err = h.cell(sl, depth); err != nil {
					return nil, err
				}
			}
			if h.par != nil && nonZero(d) {
				dfs, err := h.discountFactors(sl, ccy)
				if err != nil {
					return nil, err
				}
				if d, err = h.par.Convert(ctx, ccy, dfs, d); err != nil {
					return nil, err
				}
			}
			sens.IRDelta[ccy] = d
		}
		if comp.IRVega || comp.IRCurvature {
			v := make([]float64, n)
			for k := range n {
				depth, err := h.layout.IRVega(ccy, k)
				if err != nil {
					return nil, err
				}
				if v[k], err = h.cell(sl, depth); err != nil {
					return nil, err
				}
			}
			sens.IRVega[ccy] = v
		}
		if ci == 0 {
			continue
		}
		if comp.FXDelta {
			depth, err := h.layout.FXDelta(ccy)
			if err != nil {
				return nil, err
			}
			dvds, err := h.cell(sl, depth)
			if err != nil {
				return nil, err
			}
			spot, err := h.market(sl, scenario.NewKey(scenario.FXSpot, ccy+calc, 0))
			if err != nil {
				return nil, err
			}
			sens.FXDelta[ccy] = dvds * spot * 0.01
		}
		if comp.FXVega || comp.FXCurvature {
			v := make([]float64, n)
			for k := range n {
				depth, err := h.layout.FXVega(ccy, k)
				if err != nil {
					return nil, err
				}
				if v[k], err = h.cell(sl, depth); err != nil {
					return nil, err
				}
			}
			sens.FXVega[ccy] = v
		}
	}
	return sens, nil
}

func nonZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return true
		}
	}
	return false
}

// InitialMargin 计算净额集的初始保证金并更新各分量。
func (h *SimmHelper) InitialMargin(ctx context.Context, nettingSet string, date, sample *int, comp Components) (float64, error) {
	sl, err := h.selectSlice(nettingSet, date, sample)
	if err != nil {
		return 0, err
	}
	sens, err := h.collect(ctx, sl, comp)
	if err != nil {
		return 0, err
	}
	m, err := h.simm.Calculate(sens, comp)
	if err != nil {
		return 0, err
	}
	h.margins, h.sens = m, sens
	h.logger.DebugContext(ctx, "initial margin calculated", "netting_set", nettingSet, "t0", sl.t0, "total", m.Total)
	return m.Total, nil
}

func (h *SimmHelper) Margins() Margins { return h.margins }

// Sensitivities 最近一次计算使用的敏感度（IR delta 已做平价转换）。
func (h *SimmHelper) Sensitivities() *Sensitivities { return h.sens }

func (h *SimmHelper) DeltaMargin() float64       { return h.margins.Delta() }
func (h *SimmHelper) VegaMargin() float64        { return h.margins.Vega() }
func (h *SimmHelper) CurvatureMargin() float64   { return h.margins.Curvature() }
func (h *SimmHelper) IRDeltaMargin() float64     { return h.margins.IRDelta }
func (h *SimmHelper) IRVegaMargin() float64      { return h.margins.IRVega }
func (h *SimmHelper) IRCurvatureMargin() float64 { return h.margins.IRCurvature }
func (h *SimmHelper) FXDeltaMargin() float64     { return h.margins.FXDelta }
func (h *SimmHelper) FXVegaMargin() float64      { return h.margins.FXVega }
func (h *SimmHelper) FXCurvatureMargin() float64 { return h.margins.FXCurvature }
