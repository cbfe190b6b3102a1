package sensitivity

import (
	"context"
	"math"
	"slices"
	"strconv"

	"github.com/wyfcoding/riskengine/cache"
	"github.com/wyfcoding/riskengine/logging"
	"github.com/wyfcoding/riskengine/metrics"
	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/xerrors"
)

// ParDelta 平价 delta 的一个条目，按键排序输出。
type ParDelta struct {
	Key   scenario.RiskFactorKey
	Value float64
}

type cachedParDelta struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

type tradeRef struct {
	cube  int
	trade int
}

// ZeroToParCube 把一个或多个零息敏感度立方体的 delta 经 ParSensitivityConverter 转换为平价 delta。
// 交易 id 到 (立方体, 交易下标) 的映射在构造时固定。
type ZeroToParCube struct {
	cubes           []*SensitivityCube
	conv            *ParSensitivityConverter
	disabled        map[scenario.KeyType]bool
	continueOnError bool
	refs            map[string]tradeRef
	order           []string
	cache           cache.Cache
	cacheTag        string
	logger          *logging.Logger
	metrics         *metrics.Metrics
}

// ZeroToParOption ZeroToParCube 选项。
type ZeroToParOption func(*ZeroToParCube)

// WithDisabledTypes 这些类型的零息 delta 不参与转换。
func WithDisabledTypes(types ...scenario.KeyType) ZeroToParOption {
	return func(z *ZeroToParCube) {
		for _, t := range types {
			z.disabled[t] = true
		}
	}
}

// ContinueOnError 单个因子转换失败时跳过该因子而不是返回错误。
func ContinueOnError(b bool) ZeroToParOption {
	return func(z *ZeroToParCube) { z.continueOnError = b }
}

// WithCache 以 tag 区分不同运行的缓存条目。
func WithCache(c cache.Cache, tag string) ZeroToParOption {
	return func(z *ZeroToParCube) {
		z.cache = c
		z.cacheTag = tag
	}
}

func WithMetrics(m *metrics.Metrics) ZeroToParOption {
	return func(z *ZeroToParCube) { z.metrics = m }
}

func WithLogger(l *logging.Logger) ZeroToParOption {
	return func(z *ZeroToParCube) { z.logger = logging.Component(l, "zero-to-par") }
}

// NewZeroToParCube 单立方体构造。
func NewZeroToParCube(zero *SensitivityCube, conv *ParSensitivityConverter, opts ...ZeroToParOption) (*ZeroToParCube, error) {
	return NewMultiZeroToParCube([]*SensitivityCube{zero}, conv, opts...)
}

// NewMultiZeroToParCube 多立方体共享同一转换器：币种必须一致，
// 且各立方体中出现的转换因子冲击大小必须与转换器相同。
func NewMultiZeroToParCube(zeros []*SensitivityCube, conv *ParSensitivityConverter, opts ...ZeroToParOption) (*ZeroToParCube, error) {
	if len(zeros) == 0 {
		return nil, xerrors.Derive(xerrors.ErrEmptyData, "no zero sensitivity cubes")
	}
	if conv == nil {
		return nil, xerrors.InvalidArg("nil par sensitivity converter")
	}
	z := &ZeroToParCube{
		cubes:    slices.Clone(zeros),
		conv:     conv,
		disabled: make(map[scenario.KeyType]bool),
		refs:     make(map[string]tradeRef),
		logger:   logging.Component(nil, "zero-to-par"),
	}
	for _, opt := range opts {
		opt(z)
	}

	ccy := zeros[0].Currency()
	for ci, zc := range zeros {
		if zc.Currency() != ccy {
			return nil, xerrors.Derive(xerrors.ErrCurrencyMismatch, "cube %d is in %s, cube 0 is in %s", ci, zc.Currency(), ccy)
		}
		for _, k := range zc.Factors() {
			want, ok := conv.ZeroShift(k)
			if !ok {
				continue
			}
			got, _ := zc.ShiftSize(k)
			if math.Abs(got-want) > 1e-12*math.Max(1, math.Abs(want)) {
				return nil, xerrors.Derive(xerrors.ErrIncompatibleCubes, "cube %d shifts %s by %g, converter expects %g", ci, k, got, want)
			}
		}
		for ti, id := range zc.IDs() {
			if prev, dup := z.refs[id]; dup {
				return nil, xerrors.Derive(xerrors.ErrDuplicateID, "trade %q in cubes %d and %d", id, prev.cube, ci)
			}
			z.refs[id] = tradeRef{cube: ci, trade: ti}
			z.order = append(z.order, id)
		}
	}
	return z, nil
}

// Currency 敏感度币种。
func (z *ZeroToParCube) Currency() string { return z.cubes[0].Currency() }

// TradeIDs 立方体顺序、再按各立方体内交易顺序。
func (z *ZeroToParCube) TradeIDs() []string { return z.order }

// Converter 使用的转换器。
func (z *ZeroToParCube) Converter() *ParSensitivityConverter { return z.conv }

// Lookup 交易所在的立方体与下标。
func (z *ZeroToParCube) Lookup(tradeID string) (cubeIdx, tradeIdx int, err error) {
	ref, ok := z.refs[tradeID]
	if !ok {
		return 0, 0, xerrors.Derive(xerrors.ErrUnknownID, "trade %q", tradeID)
	}
	return ref.cube, ref.trade, nil
}

// BaseNPV 交易的基准 NPV。
func (z *ZeroToParCube) BaseNPV(tradeID string) (float64, error) {
	ci, ti, err := z.Lookup(tradeID)
	if err != nil {
		return 0, err
	}
	return z.cubes[ci].BaseNPV(ti)
}

// ParDeltas 交易的平价 delta，只含非零条目且不含被禁用的类型。
func (z *ZeroToParCube) ParDeltas(tradeID string) (map[scenario.RiskFactorKey]float64, error) {
	ci, ti, err := z.Lookup(tradeID)
	if err != nil {
		return nil, err
	}
	return z.ParDeltasAt(ci, ti)
}

// ParDeltasAt 按 (立方体, 交易下标) 取平价 delta。
func (z *ZeroToParCube) ParDeltasAt(cubeIdx, tradeIdx int) (map[scenario.RiskFactorKey]float64, error) {
	sorted, err := z.SortedParDeltasAt(cubeIdx, tradeIdx)
	if err != nil {
		return nil, err
	}
	out := make(map[scenario.RiskFactorKey]float64, len(sorted))
	for _, d := range sorted {
		out[d.Key] = d.Value
	}
	return out, nil
}

// SortedParDeltasAt 与 ParDeltasAt 相同，按键排序返回。
func (z *ZeroToParCube) SortedParDeltasAt(cubeIdx, tradeIdx int) ([]ParDelta, error) {
	if cubeIdx < 0 || cubeIdx >= len(z.cubes) {
		return nil, xerrors.Derive(xerrors.ErrIndexOutOfRange, "cube %d of %d", cubeIdx, len(z.cubes))
	}
	zc := z.cubes[cubeIdx]
	if tradeIdx < 0 || tradeIdx >= zc.NumIDs() {
		return nil, xerrors.Derive(xerrors.ErrIndexOutOfRange, "trade %d of %d in cube %d", tradeIdx, zc.NumIDs(), cubeIdx)
	}
	ctx := context.Background()
	cacheKey := z.cacheKey(cubeIdx, zc.IDs()[tradeIdx])
	if z.cache != nil {
		if out, ok := z.fromCache(ctx, cacheKey); ok {
			return out, nil
		}
	}

	keys := z.conv.Keys()
	acc := make([]float64, len(keys))
	for _, k := range zc.Factors() {
		if z.disabled[k.Type] || !z.conv.Supports(k.Type) {
			continue
		}
		zeroDelta, err := zc.Delta(tradeIdx, k)
		if err == nil && zeroDelta == 0 {
			continue
		}
		var contrib []float64
		if err == nil {
			contrib, err = z.conv.Contributions(k, zeroDelta)
		}
		if err != nil {
			if !z.continueOnError {
				return nil, err
			}
			z.logger.Warn("skipping factor in par conversion", "trade", zc.IDs()[tradeIdx], "factor", k.String(), "error", err)
			if z.metrics != nil {
				z.metrics.ParConversionSkips.WithLabelValues(k.Type.String()).Inc()
			}
			continue
		}
		for i, v := range contrib {
			acc[i] += v
		}
	}

	var out []ParDelta
	for i, k := range keys {
		if z.disabled[k.Type] {
			continue
		}
		h, _ := z.conv.ParShift(k)
		if v := acc[i]; v != 0 && math.Abs(v) > 1e-12*math.Max(1, math.Abs(h)) {
			out = append(out, ParDelta{Key: k, Value: v})
		}
	}
	if z.cache != nil {
		z.toCache(ctx, cacheKey, out)
	}
	return out, nil
}

func (z *ZeroToParCube) cacheKey(cubeIdx int, tradeID string) string {
	return "par:" + z.cacheTag + ":" + strconv.Itoa(cubeIdx) + ":" + tradeID
}

func (z *ZeroToParCube) fromCache(ctx context.Context, key string) ([]ParDelta, bool) {
	var cached []cachedParDelta
	if err := z.cache.Get(ctx, key, &cached); err != nil {
		return nil, false
	}
	out := make([]ParDelta, 0, len(cached))
	for _, c := range cached {
		k, err := scenario.ParseKey(c.Key)
		if err != nil {
			z.logger.Warn("dropping unreadable cached par deltas", "key", key, "error", err)
			return nil, false
		}
		out = append(out, ParDelta{Key: k, Value: c.Value})
	}
	return out, true
}

func (z *ZeroToParCube) toCache(ctx context.Context, key string, deltas []ParDelta) {
	cached := make([]cachedParDelta, len(deltas))
	for i, d := range deltas {
		cached[i] = cachedParDelta{Key: d.Key.String(), Value: d.Value}
	}
	if err := z.cache.Set(ctx, key, cached); err != nil {
		z.logger.Warn("failed to cache par deltas", "key", key, "error", err)
	}
}

// Description 平价因子的描述，沿用零息立方体中的下标说明。
func (z *ZeroToParCube) Description(cubeIdx int, k scenario.RiskFactorKey) scenario.Description {
	h, _ := z.conv.ParShift(k)
	d, ok := z.cubes[cubeIdx].Description(k)
	if !ok {
		d = scenario.Description{Direction: scenario.Up, Key: k}
	}
	d.Shift = h
	return d
}
