package market

import (
	"slices"
	"strings"

	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/xerrors"
)

// InstrumentMap 风险因子类型到可用校准工具类型的映射，由配置注入。
type InstrumentMap map[scenario.KeyType][]InstrumentType

// DefaultInstrumentMap 曲线用存款 + 互换，上限期权波动率用 CapFloor，生存概率用 CDS。
func DefaultInstrumentMap() InstrumentMap {
	return InstrumentMap{
		scenario.DiscountCurve:       {Deposit, Swap},
		scenario.IndexCurve:          {Deposit, Swap},
		scenario.YieldCurve:          {Swap},
		scenario.OptionletVolatility: {CapFloor},
		scenario.SurvivalProbability: {CDS},
	}
}

// ParseInstrumentMap 解析配置中的 key_type -> [instrument...]，空配置返回默认映射。
func ParseInstrumentMap(cfg map[string][]string) (InstrumentMap, error) {
	if len(cfg) == 0 {
		return DefaultInstrumentMap(), nil
	}
	out := make(InstrumentMap, len(cfg))
	for kt, names := range cfg {
		t, err := scenario.ParseKeyType(kt)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			it, err := ParseInstrumentType(n)
			if err != nil {
				return nil, err
			}
			if !supports(it, t) {
				return nil, xerrors.Derive(xerrors.ErrUnsupportedInstrType, "%s cannot calibrate %s", it, t)
			}
			out[t] = append(out[t], it)
		}
	}
	return out, nil
}

// ParseInstrumentType 大小写不敏感。
func ParseInstrumentType(s string) (InstrumentType, error) {
	for _, it := range []InstrumentType{Deposit, Swap, CapFloor, CDS} {
		if strings.EqualFold(string(it), s) {
			return it, nil
		}
	}
	return "", xerrors.Derive(xerrors.ErrUnsupportedInstrType, "%q", s)
}

func supports(it InstrumentType, t scenario.KeyType) bool {
	switch it {
	case Deposit, Swap:
		return t.IsCurve()
	case CapFloor:
		return t == scenario.OptionletVolatility
	case CDS:
		return t == scenario.SurvivalProbability
	}
	return false
}

// Types 映射中出现的全部风险因子类型，有序。
func (im InstrumentMap) Types() []scenario.KeyType {
	out := make([]scenario.KeyType, 0, len(im))
	for t := range im {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Supports 该类型是否可做平价转换。
func (im InstrumentMap) Supports(t scenario.KeyType) bool {
	return len(im[t]) > 0
}

// Builder 按风险因子键与基准市场构建平价工具。
type Builder struct {
	types         InstrumentMap
	frequency     int
	depositCutoff float64
	recovery      float64
	discount      map[string]string
	capIndex      map[string]string
}

// BuilderOption 构建器选项。
type BuilderOption func(*Builder)

// WithFrequency 每年付息次数，默认 2。
func WithFrequency(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.frequency = n
		}
	}
}

// WithDepositCutoff 支柱期限不超过 cutoff 年时优先使用存款，默认 1。
func WithDepositCutoff(years float64) BuilderOption {
	return func(b *Builder) { b.depositCutoff = years }
}

// WithRecovery CDS 默认回收率，默认 0.4。
func WithRecovery(r float64) BuilderOption {
	return func(b *Builder) { b.recovery = r }
}

// WithDiscountCurve 指数曲线、信用曲线或波动率名称对应的贴现曲线名。
func WithDiscountCurve(name, discount string) BuilderOption {
	return func(b *Builder) { b.discount[name] = discount }
}

// WithCapIndex 上限期权波动率名称对应的投影指数曲线名。
func WithCapIndex(volName, index string) BuilderOption {
	return func(b *Builder) { b.capIndex[volName] = index }
}

func NewBuilder(types InstrumentMap, opts ...BuilderOption) *Builder {
	b := &Builder{
		types:         types,
		frequency:     2,
		depositCutoff: 1,
		recovery:      0.4,
		discount:      make(map[string]string),
		capIndex:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// InstrumentMap 构建器使用的映射。
func (b *Builder) InstrumentMap() InstrumentMap { return b.types }

func (b *Builder) discountFor(name string) scenario.CurveID {
	if d, ok := b.discount[name]; ok {
		return scenario.CurveID{Type: scenario.DiscountCurve, Name: d}
	}
	return scenario.CurveID{Type: scenario.DiscountCurve, Name: name}
}

// Build 为平价键 key 构建工具，期限取基准市场中该支柱的坐标。
func (b *Builder) Build(base Market, key scenario.RiskFactorKey) (Instrument, error) {
	types := b.types[key.Type]
	if len(types) == 0 {
		return nil, xerrors.Derive(xerrors.ErrUnsupportedFactor, "%s", key)
	}
	pillars, ok := base.Pillars(key.Curve())
	if !ok || key.Index >= len(pillars) {
		return nil, xerrors.Derive(xerrors.ErrMissingInstrument, "no pillar for %s", key)
	}
	t := pillars[key.Index]
	it := Deposit
	if !slices.Contains(types, Deposit) || (t > b.depositCutoff && len(types) > 1) {
		for _, x := range types {
			if x != Deposit {
				it = x
				break
			}
		}
	}

	switch it {
	case Deposit:
		return NewDeposit(key, key.Curve(), t), nil
	case Swap:
		disc := key.Curve()
		if key.Type != scenario.DiscountCurve {
			if d, ok := b.discount[key.Name]; ok {
				disc = scenario.CurveID{Type: scenario.DiscountCurve, Name: d}
			}
		}
		return NewSwap(key, key.Curve(), disc, t, b.frequency), nil
	case CDS:
		var disc *scenario.CurveID
		if d, ok := b.discount[key.Name]; ok {
			id := scenario.CurveID{Type: scenario.DiscountCurve, Name: d}
			disc = &id
		}
		return NewCDS(key, key.Curve(), disc, b.recovery, t, b.frequency), nil
	case CapFloor:
		disc := b.discountFor(key.Name)
		fwd := disc
		if idx, ok := b.capIndex[key.Name]; ok {
			fwd = scenario.CurveID{Type: scenario.IndexCurve, Name: idx}
		}
		strike, err := ATMStrike(base, fwd, disc, t, b.frequency)
		if err != nil {
			return nil, err
		}
		return NewCap(key, fwd, disc, key.Curve(), strike, t, b.frequency), nil
	default:
		return nil, xerrors.Derive(xerrors.ErrUnsupportedInstrType, "%s for %s", it, key)
	}
}

// BuildAll 按给定顺序为全部平价键构建工具。
func (b *Builder) BuildAll(base Market, keys []scenario.RiskFactorKey) ([]Instrument, error) {
	out := make([]Instrument, len(keys))
	for i, k := range keys {
		inst, err := b.Build(base, k)
		if err != nil {
			return nil, err
		}
		out[i] = inst
	}
	return out, nil
}
