package simm

import (
	"context"
	"strings"
	"time"

	"github.com/wyfcoding/riskengine/config"
	"github.com/wyfcoding/riskengine/market"
	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/scenario/generator"
	"github.com/wyfcoding/riskengine/sensitivity"
	"github.com/wyfcoding/riskengine/xerrors"
)

const irShift = 1e-4

// IrDeltaParConverter 把 SIMM 期限桶上的零息 IR delta 转换为平价 delta。
// 每次转换在给定贴现因子上重建平价工具并计算雅可比。
type IrDeltaParConverter struct {
	tenors  []float64
	builder *market.Builder
}

// NewIrDeltaParConverter types 为贴现曲线的校准工具类型，例如 Deposit + Swap。
func NewIrDeltaParConverter(tenors []float64, types []market.InstrumentType, opts ...market.BuilderOption) (*IrDeltaParConverter, error) {
	if len(tenors) == 0 {
		return nil, xerrors.Derive(xerrors.ErrEmptyData, "par converter tenors")
	}
	if len(types) == 0 {
		return nil, xerrors.Configuration("no par instrument types for IR delta conversion")
	}
	im := market.InstrumentMap{scenario.DiscountCurve: types}
	return &IrDeltaParConverter{tenors: tenors, builder: market.NewBuilder(im, opts...)}, nil
}

// NewIrDeltaParConverterFromConfig par_instrument 为逗号分隔的工具类型；为空时不做转换，返回 nil。
func NewIrDeltaParConverterFromConfig(cfg config.SimmConfig, tenors []float64) (*IrDeltaParConverter, error) {
	if strings.TrimSpace(cfg.ParInstrument) == "" {
		return nil, nil
	}
	var types []market.InstrumentType
	for _, s := range strings.Split(cfg.ParInstrument, ",") {
		t, err := market.ParseInstrumentType(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return NewIrDeltaParConverter(tenors, types)
}

// Convert dfs 为各期限桶上的贴现因子，zeroDeltas 为对应的 1bp 零息 delta。
func (c *IrDeltaParConverter) Convert(ctx context.Context, ccy string, dfs, zeroDeltas []float64) ([]float64, error) {
	n := len(c.tenors)
	if len(dfs) != n || len(zeroDeltas) != n {
		return nil, xerrors.Derive(xerrors.ErrDimMismatch, "%d tenors, %d discount factors, %d deltas", n, len(dfs), len(zeroDeltas))
	}
	id := scenario.CurveID{Type: scenario.DiscountCurve, Name: ccy}
	keys := make([]scenario.RiskFactorKey, n)
	for i := range keys {
		keys[i] = scenario.NewKey(id.Type, ccy, i)
	}
	sd, err := scenario.NewSharedData(keys, scenario.Coordinates{id: c.tenors})
	if err != nil {
		return nil, err
	}
	base := scenario.NewSimpleScenarioWithShared(time.Time{}, "simm-par-"+ccy, 1, sd)
	for i, k := range keys {
		if err := base.Add(k, dfs[i]); err != nil {
			return nil, err
		}
	}
	gen, err := generator.NewSensitivityScenarioGenerator(base, map[scenario.KeyType]generator.ShiftSpec{
		scenario.DiscountCurve: {Size: irShift},
	}, false)
	if err != nil {
		return nil, err
	}
	conv, err := sensitivity.NewParAnalysis(c.builder).Compute(ctx, gen.Scenarios(), gen.Descriptions())
	if err != nil {
		return nil, err
	}

	out := make([]float64, n)
	for j, k := range keys {
		if zeroDeltas[j] == 0 {
			continue
		}
		contrib, err := conv.Contributions(k, zeroDeltas[j])
		if err != nil {
			return nil, err
		}
		for i, v := range contrib {
			out[i] += v
		}
	}
	return out, nil
}
