package sensitivity

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/wyfcoding/riskengine/market"
	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/xerrors"
)

// ParAnalysis 在基准市场上为每个平价因子构建校准工具，
// 并以有限差分计算雅可比矩阵 J[i][j] = ∂parRate_i / ∂zero_j。
type ParAnalysis struct {
	builder  *market.Builder
	disabled map[scenario.KeyType]bool
	parShift map[scenario.KeyType]float64
	workers  int
}

// ParOption ParAnalysis 选项。
type ParOption func(*ParAnalysis)

// WithDisabledParTypes 这些类型不参与平价转换。
func WithDisabledParTypes(types ...scenario.KeyType) ParOption {
	return func(p *ParAnalysis) {
		for _, t := range types {
			p.disabled[t] = true
		}
	}
}

// WithParShift 平价空间的冲击大小，未设置时与零息冲击相同。
func WithParShift(t scenario.KeyType, size float64) ParOption {
	return func(p *ParAnalysis) { p.parShift[t] = size }
}

// WithParWorkers 并行计算雅可比列的 goroutine 数。
func WithParWorkers(n int) ParOption {
	return func(p *ParAnalysis) { p.workers = max(n, 1) }
}

func NewParAnalysis(builder *market.Builder, opts ...ParOption) *ParAnalysis {
	p := &ParAnalysis{
		builder:  builder,
		disabled: make(map[scenario.KeyType]bool),
		parShift: make(map[scenario.KeyType]float64),
		workers:  1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enabled 该类型是否参与平价转换。
func (p *ParAnalysis) Enabled(t scenario.KeyType) bool {
	return p.builder.InstrumentMap().Supports(t) && !p.disabled[t]
}

// Compute 使用敏感度情景（基准 + 上冲击）计算雅可比并返回转换器。
// 平价因子与参与转换的零息因子一一对应（同一曲线同一支柱）。
func (p *ParAnalysis) Compute(ctx context.Context, scenarios []scenario.Scenario, descs []scenario.Description) (*ParSensitivityConverter, error) {
	j, err := p.ComputeJacobian(ctx, scenarios, descs)
	if err != nil {
		return nil, err
	}
	return j.Converter()
}

// Jacobian 有限差分得到的 J[i][j] = ∂parRate_i / ∂zero_j，尚未求逆。
type Jacobian struct {
	Keys      []scenario.RiskFactorKey
	ZeroShift []float64
	ParShift  []float64
	Matrix    *mat.Dense
	ParRates  []float64
}

// Converter 对整个雅可比求逆。
func (j *Jacobian) Converter() (*ParSensitivityConverter, error) {
	return NewParSensitivityConverter(j.Keys, j.ZeroShift, j.ParShift, j.Matrix, j.ParRates)
}

// Restrict 只保留 keep 返回 true 的因子，取对应子矩阵求逆。
func (j *Jacobian) Restrict(keep func(scenario.RiskFactorKey) bool) (*ParSensitivityConverter, error) {
	var idx []int
	for i, k := range j.Keys {
		if keep(k) {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return nil, xerrors.Derive(xerrors.ErrEmptyData, "no par factors left after restriction")
	}
	n := len(idx)
	keys := make([]scenario.RiskFactorKey, n)
	zs, ps, rates := make([]float64, n), make([]float64, n), make([]float64, n)
	sub := mat.NewDense(n, n, nil)
	for a, i := range idx {
		keys[a], zs[a], ps[a], rates[a] = j.Keys[i], j.ZeroShift[i], j.ParShift[i], j.ParRates[i]
		for b, c := range idx {
			sub.Set(a, b, j.Matrix.At(i, c))
		}
	}
	return NewParSensitivityConverter(keys, zs, ps, sub, rates)
}

// ComputeJacobian 只做有限差分，不求逆。
func (p *ParAnalysis) ComputeJacobian(ctx context.Context, scenarios []scenario.Scenario, descs []scenario.Description) (*Jacobian, error) {
	if len(scenarios) == 0 || len(scenarios) != len(descs) {
		return nil, xerrors.Derive(xerrors.ErrDimMismatch, "%d scenarios for %d descriptions", len(scenarios), len(descs))
	}
	base := scenarios[0]

	type column struct {
		key   scenario.RiskFactorKey
		shift float64
		scen  scenario.Scenario
	}
	var cols []column
	for i, d := range descs {
		if d.Direction != scenario.Up || !p.Enabled(d.Key.Type) {
			continue
		}
		cols = append(cols, column{key: d.Key, shift: d.Shift, scen: scenarios[i]})
	}
	slices.SortFunc(cols, func(a, b column) int { return a.key.Compare(b.key) })
	if len(cols) == 0 {
		return nil, xerrors.Derive(xerrors.ErrEmptyData, "no zero factors eligible for par conversion")
	}

	keys := make([]scenario.RiskFactorKey, len(cols))
	zeroShift := make([]float64, len(cols))
	parShift := make([]float64, len(cols))
	for i, c := range cols {
		keys[i] = c.key
		zeroShift[i] = c.shift
		parShift[i] = c.shift
		if h, ok := p.parShift[c.key.Type]; ok && h > 0 {
			parShift[i] = h
		}
	}

	baseMarket := market.NewScenarioMarket(base)
	instruments, err := p.builder.BuildAll(baseMarket, keys)
	if err != nil {
		return nil, err
	}
	baseRates := make([]float64, len(instruments))
	for i, inst := range instruments {
		if baseRates[i], err = inst.ParRate(baseMarket); err != nil {
			return nil, err
		}
	}

	n := len(keys)
	jac := mat.NewDense(n, n, nil)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for j, c := range cols {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m := market.NewScenarioMarket(c.scen)
			curve := c.key.Curve()
			for i, inst := range instruments {
				if !slices.Contains(inst.Curves(), curve) {
					continue
				}
				r, err := inst.ParRate(m)
				if err != nil {
					return err
				}
				// 各 goroutine 只写第 j 列
				jac.Set(i, j, (r-baseRates[i])/c.shift)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Jacobian{Keys: keys, ZeroShift: zeroShift, ParShift: parShift, Matrix: jac, ParRates: baseRates}, nil
}

// ParSensitivityConverter 持有零息 → 平价转换所需的 (J^T)^-1 与冲击大小。
type ParSensitivityConverter struct {
	keys      []scenario.RiskFactorKey
	index     map[scenario.RiskFactorKey]int
	zeroShift []float64
	parShift  []float64
	jacobian  *mat.Dense
	inverse   *mat.Dense
	parRates  []float64
	types     map[scenario.KeyType]bool
}

// NewParSensitivityConverter jacobian 必须为 n×n 且可逆，否则返回 ErrSingularMatrix。
func NewParSensitivityConverter(keys []scenario.RiskFactorKey, zeroShift, parShift []float64, jacobian *mat.Dense, parRates []float64) (*ParSensitivityConverter, error) {
	n := len(keys)
	r, c := jacobian.Dims()
	if r != n || c != n || len(zeroShift) != n || len(parShift) != n {
		return nil, xerrors.Derive(xerrors.ErrDimMismatch, "jacobian %dx%d for %d keys", r, c, n)
	}
	var inv mat.Dense
	if err := inv.Inverse(jacobian.T()); err != nil {
		return nil, xerrors.DeriveCause(xerrors.ErrSingularMatrix, err, "zero-to-par jacobian over %d factors", n)
	}
	conv := &ParSensitivityConverter{
		keys:      slices.Clone(keys),
		index:     make(map[scenario.RiskFactorKey]int, n),
		zeroShift: slices.Clone(zeroShift),
		parShift:  slices.Clone(parShift),
		jacobian:  jacobian,
		inverse:   &inv,
		parRates:  slices.Clone(parRates),
		types:     make(map[scenario.KeyType]bool),
	}
	for i, k := range keys {
		if _, dup := conv.index[k]; dup {
			return nil, xerrors.Derive(xerrors.ErrDuplicateID, "factor %s", k)
		}
		if zeroShift[i] == 0 {
			return nil, xerrors.Derive(xerrors.ErrInvalidShift, "zero shift for %s", k)
		}
		conv.index[k] = i
		conv.types[k.Type] = true
	}
	return conv, nil
}

// Keys 零息与平价因子（两者相同），有序。
func (c *ParSensitivityConverter) Keys() []scenario.RiskFactorKey { return c.keys }

// Supports 该类型是否出现在转换器中。
func (c *ParSensitivityConverter) Supports(t scenario.KeyType) bool { return c.types[t] }

// Has 零息因子是否有对应的校准工具。
func (c *ParSensitivityConverter) Has(k scenario.RiskFactorKey) bool {
	_, ok := c.index[k]
	return ok
}

// ZeroShift 零息冲击大小。
func (c *ParSensitivityConverter) ZeroShift(k scenario.RiskFactorKey) (float64, bool) {
	i, ok := c.index[k]
	if !ok {
		return 0, false
	}
	return c.zeroShift[i], true
}

// ParShift 平价冲击大小。
func (c *ParSensitivityConverter) ParShift(k scenario.RiskFactorKey) (float64, bool) {
	i, ok := c.index[k]
	if !ok {
		return 0, false
	}
	return c.parShift[i], true
}

// ParRate 基准平价报价。
func (c *ParSensitivityConverter) ParRate(k scenario.RiskFactorKey) (float64, bool) {
	i, ok := c.index[k]
	if !ok || i >= len(c.parRates) {
		return 0, false
	}
	return c.parRates[i], true
}

// Jacobian J[i][j] = ∂par_i/∂zero_j。
func (c *ParSensitivityConverter) Jacobian() mat.Matrix { return c.jacobian }

// Contributions 单个零息 delta 对各平价因子的贡献：
// parDelta_i = parShift_i * [(J^T)^-1]_ij * zeroDelta_j / zeroShift_j。
func (c *ParSensitivityConverter) Contributions(k scenario.RiskFactorKey, zeroDelta float64) ([]float64, error) {
	j, ok := c.index[k]
	if !ok {
		return nil, xerrors.Derive(xerrors.ErrMissingInstrument, "%s", k)
	}
	out := make([]float64, len(c.keys))
	scale := zeroDelta / c.zeroShift[j]
	for i := range out {
		out[i] = c.parShift[i] * c.inverse.At(i, j) * scale
	}
	return out, nil
}

// ZeroShiftsFor 求与平价冲击向量等价的零息冲击：dz = J^-1 dp。
func (c *ParSensitivityConverter) ZeroShiftsFor(parShifts map[scenario.RiskFactorKey]float64) (map[scenario.RiskFactorKey]float64, error) {
	n := len(c.keys)
	dp := mat.NewVecDense(n, nil)
	for k, v := range parShifts {
		i, ok := c.index[k]
		if !ok {
			return nil, xerrors.Derive(xerrors.ErrMissingInstrument, "par shift on %s", k)
		}
		dp.SetVec(i, v)
	}
	var dz mat.VecDense
	if err := dz.SolveVec(c.jacobian, dp); err != nil {
		return nil, xerrors.DeriveCause(xerrors.ErrSingularMatrix, err, "solving for zero shifts")
	}
	out := make(map[scenario.RiskFactorKey]float64, n)
	for i, k := range c.keys {
		out[k] = dz.AtVec(i)
	}
	return out, nil
}
