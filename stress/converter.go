package stress

import (
	"context"
	"errors"
	"math"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wyfcoding/riskengine/config"
	"github.com/wyfcoding/riskengine/logging"
	"github.com/wyfcoding/riskengine/market"
	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/scenario/generator"
	"github.com/wyfcoding/riskengine/sensitivity"
	"github.com/wyfcoding/riskengine/tracing"
	"github.com/wyfcoding/riskengine/xerrors"
)

// Toggles 一次转换中启用的平价组。
type Toggles struct {
	IRCurves bool
	CapFloor bool
	Credit   bool
}

// TogglesFromConfig 读取 [stress] 段的开关。
func TogglesFromConfig(cfg config.StressConfig) Toggles {
	return Toggles{IRCurves: cfg.ParIRCurves, CapFloor: cfg.ParCapFloor, Credit: cfg.ParCredit}
}

func (t Toggles) Enabled(g ParGroup) bool {
	switch g {
	case ParIRCurves:
		return t.IRCurves
	case ParCapFloor:
		return t.CapFloor
	default:
		return t.Credit
	}
}

var parGroups = [...]ParGroup{ParIRCurves, ParCapFloor, ParCredit}

var groupNames = [...]string{ParIRCurves: "ir_curves", ParCapFloor: "cap_floor", ParCredit: "credit"}

func (g ParGroup) String() string { return groupNames[g] }

const defaultZeroShift = 1e-4

// ParStressTestConverter 把压力情景中的平价冲击换算为等价的零息冲击。
//
// 每次 Convert 在基准情景上对启用的平价组计算雅可比 J，再对每个情景解 J dz = dp。
// 某个情景的子雅可比奇异或缺少校准工具时只有该情景失败，不做近似。
type ParStressTestConverter struct {
	base    scenario.Scenario
	builder *market.Builder
	shifts  map[scenario.KeyType]generator.ShiftSpec
	workers int
	logger  *logging.Logger
}

type ConverterOption func(*ParStressTestConverter)

// WithZeroShifts 计算雅可比时各类型的零息冲击，默认 1bp 绝对冲击。
func WithZeroShifts(shifts map[scenario.KeyType]generator.ShiftSpec) ConverterOption {
	return func(c *ParStressTestConverter) {
		for t, s := range shifts {
			c.shifts[t] = s
		}
	}
}

func WithWorkers(n int) ConverterOption {
	return func(c *ParStressTestConverter) { c.workers = max(n, 1) }
}

func WithLogger(l *logging.Logger) ConverterOption {
	return func(c *ParStressTestConverter) { c.logger = logging.Component(l, "stress") }
}

// NewParStressTestConverter base 为今日市场，其坐标决定平价工具的支柱。
func NewParStressTestConverter(base scenario.Scenario, builder *market.Builder, opts ...ConverterOption) *ParStressTestConverter {
	c := &ParStressTestConverter{
		base:    base,
		builder: builder,
		shifts:  make(map[scenario.KeyType]generator.ShiftSpec),
		workers: 1,
		logger:  logging.Component(nil, "stress"),
	}
	for _, t := range builder.InstrumentMap().Types() {
		c.shifts[t] = generator.ShiftSpec{Size: defaultZeroShift}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ParStressTestConverter) jacobian(ctx context.Context, tg Toggles) (*sensitivity.Jacobian, error) {
	shifts := make(map[scenario.KeyType]generator.ShiftSpec)
	var disabled []scenario.KeyType
	for _, t := range c.builder.InstrumentMap().Types() {
		if g, ok := Group(t); ok && tg.Enabled(g) {
			if s, ok := c.shifts[t]; ok {
				shifts[t] = s
				continue
			}
		}
		disabled = append(disabled, t)
	}
	gen, err := generator.NewSensitivityScenarioGenerator(c.base, shifts, false)
	if err != nil {
		return nil, err
	}
	pa := sensitivity.NewParAnalysis(c.builder, sensitivity.WithDisabledParTypes(disabled...), sensitivity.WithParWorkers(c.workers))
	return pa.ComputeJacobian(ctx, gen.Scenarios(), gen.Descriptions())
}

// Convert 返回只含零息冲击的情景集合。
// 单个情景转换失败时该情景不出现在结果中，错误以 errors.Join 汇总返回，其余情景照常输出；
// 雅可比本身无法计算时整个转换失败，返回 nil。
// 情景请求了本次未启用的平价组时，该组冲击按零息冲击原样保留并记录告警。
func (c *ParStressTestConverter) Convert(ctx context.Context, data *StressTestScenarioData, tg Toggles) (res *StressTestScenarioData, err error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	ctx, span := tracing.StartSpan(ctx, "stress.Convert", attribute.Int("scenarios", len(data.Scenarios)))
	defer func() { tracing.End(span, err) }()
	needed := false
	for i := range data.Scenarios {
		for _, g := range parGroups {
			if data.Scenarios[i].ParShifts(g) && tg.Enabled(g) {
				needed = true
			}
		}
	}
	var jac *sensitivity.Jacobian
	if needed {
		var err error
		if jac, err = c.jacobian(ctx, tg); err != nil {
			return nil, xerrors.DeriveCause(xerrors.ErrStressScenario, err, "par stress conversion")
		}
	}

	out := &StressTestScenarioData{Scenarios: make([]Scenario, 0, len(data.Scenarios))}
	var errs []error
	for i := range data.Scenarios {
		sc := &data.Scenarios[i]
		conv, err := c.convertScenario(jac, sc, tg)
		if err != nil {
			c.logger.ErrorContext(ctx, "stress scenario conversion failed", "scenario", sc.Label, "error", err)
			errs = append(errs, xerrors.DeriveCause(xerrors.ErrStressScenario, err, "scenario %q", sc.Label))
			continue
		}
		out.Scenarios = append(out.Scenarios, conv)
	}
	return out, errors.Join(errs...)
}

func (c *ParStressTestConverter) convertScenario(jac *sensitivity.Jacobian, sc *Scenario, tg Toggles) (Scenario, error) {
	out := sc.Clone()
	active := make(map[ParGroup]bool)
	for _, g := range parGroups {
		if !sc.ParShifts(g) {
			continue
		}
		if tg.Enabled(g) {
			active[g] = true
		} else {
			c.logger.Warn("par shifts left unconverted", "scenario", sc.Label, "group", g.String())
		}
		out.setParShifts(g, false)
	}
	if len(active) == 0 {
		return out, nil
	}
	isPar := func(t scenario.KeyType) bool {
		g, ok := Group(t)
		return ok && active[g]
	}

	conv, err := jac.Restrict(func(k scenario.RiskFactorKey) bool { return isPar(k.Type) })
	if err != nil {
		return Scenario{}, err
	}
	coords := c.base.Coordinates()
	dp := make(map[scenario.RiskFactorKey]float64)
	kept := make([]CurveShift, 0, len(sc.Curves))
	for _, cs := range sc.Curves {
		if !isPar(cs.Type) {
			kept = append(kept, cs)
			continue
		}
		pillars, ok := coords[cs.Curve()]
		if !ok {
			return Scenario{}, xerrors.Derive(xerrors.ErrMissingRiskFactor, "no pillars for %s", cs.Curve())
		}
		for i, t := range pillars {
			k := scenario.NewKey(cs.Type, cs.Name, i)
			if !conv.Has(k) {
				return Scenario{}, xerrors.Derive(xerrors.ErrMissingInstrument, "no par instrument for %s", k)
			}
			s := cs.At(t)
			if cs.ShiftType == generator.RelativeShift {
				r, _ := conv.ParRate(k)
				s *= r
			}
			dp[k] = s
		}
	}

	dz, err := conv.ZeroShiftsFor(dp)
	if err != nil {
		return Scenario{}, err
	}
	var converted []CurveShift
	var cur *CurveShift
	for _, k := range conv.Keys() {
		if cur == nil || cur.Curve() != k.Curve() {
			converted = append(converted, CurveShift{Type: k.Type, Name: k.Name, ShiftType: generator.AbsoluteShift})
			cur = &converted[len(converted)-1]
		}
		cur.Tenors = append(cur.Tenors, coords[k.Curve()][k.Index])
		cur.Shifts = append(cur.Shifts, dz[k])
	}
	for _, cs := range converted {
		if nonZero(cs.Shifts) {
			kept = append(kept, cs)
		}
	}
	out.Curves = kept
	return out, nil
}

func nonZero(v []float64) bool {
	for _, x := range v {
		if math.Abs(x) > 0 {
			return true
		}
	}
	return false
}
