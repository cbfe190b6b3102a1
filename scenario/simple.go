package scenario

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/wyfcoding/riskengine/algorithm/math"
	"github.com/wyfcoding/riskengine/xerrors"
)

// SharedData 多个 SimpleScenario 共享的键表与坐标。
// 第二个情景挂接或 Clone 时冻结，冻结后不再允许新增键。
type SharedData struct {
	keys        []RiskFactorKey
	index       map[RiskFactorKey]int
	coordinates Coordinates
	frozen      atomic.Bool
	attached    atomic.Int32
}

// NewSharedData 以给定键序与坐标创建共享数据，重复键返回错误。
func NewSharedData(keys []RiskFactorKey, coords Coordinates) (*SharedData, error) {
	sd := &SharedData{
		keys:        make([]RiskFactorKey, 0, len(keys)),
		index:       make(map[RiskFactorKey]int, len(keys)),
		coordinates: coords,
	}
	for _, k := range keys {
		if _, ok := sd.index[k]; ok {
			return nil, xerrors.Derive(xerrors.ErrDuplicateID, "risk factor %s listed twice", k)
		}
		sd.index[k] = len(sd.keys)
		sd.keys = append(sd.keys, k)
	}
	return sd, nil
}

// Freeze 冻结键表，幂等。
func (sd *SharedData) Freeze() { sd.frozen.Store(true) }

// Frozen 是否已冻结。
func (sd *SharedData) Frozen() bool { return sd.frozen.Load() }

// Keys 键序（只读）。
func (sd *SharedData) Keys() []RiskFactorKey { return sd.keys }

// Len 键个数。
func (sd *SharedData) Len() int { return len(sd.keys) }

// IndexOf 键的位置。
func (sd *SharedData) IndexOf(k RiskFactorKey) (int, bool) {
	i, ok := sd.index[k]
	return i, ok
}

func (sd *SharedData) add(k RiskFactorKey) (int, error) {
	if i, ok := sd.index[k]; ok {
		return i, nil
	}
	if sd.Frozen() {
		return 0, xerrors.Derive(xerrors.ErrKeyListFrozen, "cannot add %s", k)
	}
	sd.index[k] = len(sd.keys)
	sd.keys = append(sd.keys, k)
	return len(sd.keys) - 1, nil
}

// SimpleScenario 稠密值向量 + 共享键表。
type SimpleScenario struct {
	asOf      time.Time
	label     string
	numeraire float64
	absolute  bool
	shared    *SharedData
	data      []float64
}

// NewSimpleScenario 创建拥有独立键表的情景。
func NewSimpleScenario(asOf time.Time, label string, numeraire float64) *SimpleScenario {
	sd, _ := NewSharedData(nil, Coordinates{})
	return NewSimpleScenarioWithShared(asOf, label, numeraire, sd)
}

// NewSimpleScenarioWithShared 基于已有共享数据创建情景，值初始化为 0。
// sd 已挂接其他情景时随即冻结。
func NewSimpleScenarioWithShared(asOf time.Time, label string, numeraire float64, sd *SharedData) *SimpleScenario {
	if sd.attached.Add(1) > 1 {
		sd.Freeze()
	}
	return &SimpleScenario{
		asOf:      asOf,
		label:     label,
		numeraire: numeraire,
		absolute:  true,
		shared:    sd,
		data:      make([]float64, sd.Len()),
	}
}

func (s *SimpleScenario) AsOf() time.Time          { return s.asOf }
func (s *SimpleScenario) Label() string            { return s.label }
func (s *SimpleScenario) SetLabel(l string)        { s.label = l }
func (s *SimpleScenario) Numeraire() float64       { return s.numeraire }
func (s *SimpleScenario) SetNumeraire(n float64)   { s.numeraire = n }
func (s *SimpleScenario) IsAbsolute() bool         { return s.absolute }
func (s *SimpleScenario) SetAbsolute(b bool)       { s.absolute = b }
func (s *SimpleScenario) Coordinates() Coordinates { return s.shared.coordinates }

// SharedData 返回共享块，供工厂与加载器复用。
func (s *SimpleScenario) SharedData() *SharedData { return s.shared }

// SetCoordinates 仅允许在冻结前修改。
func (s *SimpleScenario) SetCoordinates(c Coordinates) error {
	if s.shared.Frozen() {
		return xerrors.Derive(xerrors.ErrKeyListFrozen, "coordinates are shared")
	}
	s.shared.coordinates = c
	return nil
}

func (s *SimpleScenario) Has(k RiskFactorKey) bool {
	i, ok := s.shared.index[k]
	return ok && i < len(s.data)
}

func (s *SimpleScenario) Keys() []RiskFactorKey {
	return slices.Clone(s.shared.keys[:len(s.data)])
}

// Add 写入值；新键会追加到共享键表，键表已冻结时返回 ErrKeyListFrozen。
func (s *SimpleScenario) Add(k RiskFactorKey, v float64) error {
	i, err := s.shared.add(k)
	if err != nil {
		return err
	}
	if i >= len(s.data) {
		s.data = append(s.data, make([]float64, i+1-len(s.data))...)
	}
	s.data[i] = v
	return nil
}

func (s *SimpleScenario) Get(k RiskFactorKey) (float64, error) {
	i, ok := s.shared.index[k]
	if !ok || i >= len(s.data) {
		return 0, xerrors.Derive(xerrors.ErrMissingRiskFactor, "%s not in scenario %q at %s", k, s.label, s.asOf.Format("2006-01-02"))
	}
	return s.data[i], nil
}

// Clone 复制值向量并共享（同时冻结）键表。
func (s *SimpleScenario) Clone() Scenario {
	s.shared.Freeze()
	c := *s
	c.data = slices.Clone(s.data)
	return &c
}

// Detach 深拷贝，包括一份未冻结的独立键表。
func (s *SimpleScenario) Detach() *SimpleScenario {
	sd, _ := NewSharedData(s.shared.keys, s.shared.coordinates.Clone())
	sd.attached.Store(1)
	c := *s
	c.shared = sd
	c.data = make([]float64, sd.Len())
	copy(c.data, s.data)
	return &c
}

func (s *SimpleScenario) IsCloseEnough(other Scenario) bool {
	return closeEnough(s, other)
}

func closeEnough(a, b Scenario) bool {
	if b == nil || !a.AsOf().Equal(b.AsOf()) || a.Label() != b.Label() ||
		a.IsAbsolute() != b.IsAbsolute() || !math.CloseEnough(a.Numeraire(), b.Numeraire()) {
		return false
	}
	ka, kb := a.Keys(), b.Keys()
	if len(ka) != len(kb) {
		return false
	}
	for _, k := range ka {
		if !b.Has(k) {
			return false
		}
		va, err1 := a.Get(k)
		vb, err2 := b.Get(k)
		if err1 != nil || err2 != nil || !math.CloseEnough(va, vb) {
			return false
		}
	}
	return true
}
