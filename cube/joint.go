package cube

import (
	"slices"
	"time"

	"github.com/wyfcoding/riskengine/xerrors"
)

// Accumulator 联合立方体读取时的折叠函数。
type Accumulator func(acc, value float64) float64

// Sum 默认累加器。
func Sum(acc, value float64) float64 { return acc + value }

type slot struct {
	cube  int
	local int
}

// idSlots 某个 id 在各输入立方体中的位置，构造时一次性确定。
// unique 为 true 时恰好一个位置，可写；否则为聚合 id，写入是歧义的。
type idSlots struct {
	unique bool
	slots  []slot
}

// JointCube 不持有数据，只在共享 id 空间上引用多个立方体。
type JointCube struct {
	cubes []NPVCube
	ids   []string
	index map[string]int
	slots []idSlots
	acc   Accumulator
	init  float64
}

type jointOptions struct {
	ids       []string
	requireID bool
	acc       Accumulator
	init      float64
}

// JointOption 联合立方体构造选项。
type JointOption func(*jointOptions)

// WithIDs 限定结果 id 集合（排序去重），否则取所有输入 id 的并集。
func WithIDs(ids []string) JointOption {
	return func(o *jointOptions) { o.ids = ids }
}

// RequireUniqueIDs 为 true（默认）时，任何 id 出现在多个输入中都会使构造失败。
func RequireUniqueIDs(b bool) JointOption {
	return func(o *jointOptions) { o.requireID = b }
}

// WithAccumulator 设置折叠函数及初值，默认为从 0 开始求和。
func WithAccumulator(acc Accumulator, init float64) JointOption {
	return func(o *jointOptions) {
		o.acc = acc
		o.init = init
	}
}

// NewJointCube 组合多个维度一致的立方体。
func NewJointCube(cubes []NPVCube, opts ...JointOption) (*JointCube, error) {
	o := jointOptions{requireID: true, acc: Sum}
	for _, opt := range opts {
		opt(&o)
	}
	if len(cubes) == 0 {
		return nil, xerrors.Derive(xerrors.ErrIncompatibleCubes, "no input cubes")
	}
	for i := 1; i < len(cubes); i++ {
		if !SameShape(cubes[0], cubes[i]) {
			return nil, xerrors.Derive(xerrors.ErrIncompatibleCubes, "cube %d differs from cube 0 in as-of, dates, samples or depth", i)
		}
	}

	ids := o.ids
	if ids == nil {
		for _, c := range cubes {
			ids = append(ids, c.IDs()...)
		}
	} else {
		ids = slices.Clone(ids)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	j := &JointCube{
		cubes: cubes,
		ids:   ids,
		index: make(map[string]int, len(ids)),
		slots: make([]idSlots, len(ids)),
		acc:   o.acc,
		init:  o.init,
	}
	for i, id := range ids {
		var ss []slot
		for ci, c := range cubes {
			if local, ok := c.IDsAndIndexes()[id]; ok {
				ss = append(ss, slot{cube: ci, local: local})
			}
		}
		switch {
		case len(ss) == 0:
			return nil, xerrors.Derive(xerrors.ErrUnknownID, "%q not found in any input cube", id)
		case len(ss) > 1 && o.requireID:
			return nil, xerrors.Derive(xerrors.ErrDuplicateID, "%q appears in %d input cubes", id, len(ss))
		}
		j.index[id] = i
		j.slots[i] = idSlots{unique: len(ss) == 1, slots: ss}
	}
	return j, nil
}

func (j *JointCube) NumIDs() int                   { return len(j.ids) }
func (j *JointCube) NumDates() int                 { return j.cubes[0].NumDates() }
func (j *JointCube) Samples() int                  { return j.cubes[0].Samples() }
func (j *JointCube) Depth() int                    { return j.cubes[0].Depth() }
func (j *JointCube) AsOf() time.Time               { return j.cubes[0].AsOf() }
func (j *JointCube) Dates() []time.Time            { return j.cubes[0].Dates() }
func (j *JointCube) IDs() []string                 { return j.ids }
func (j *JointCube) IDsAndIndexes() map[string]int { return j.index }

func (j *JointCube) lookup(id int) (idSlots, error) {
	if id < 0 || id >= len(j.slots) {
		return idSlots{}, xerrors.Derive(xerrors.ErrIndexOutOfRange, "id %d of %d", id, len(j.slots))
	}
	return j.slots[id], nil
}

func (j *JointCube) writable(id int) (slot, error) {
	s, err := j.lookup(id)
	if err != nil {
		return slot{}, err
	}
	if !s.unique {
		return slot{}, xerrors.Derive(xerrors.ErrAmbiguousWrite, "id %q is aggregated over %d cubes", j.ids[id], len(s.slots))
	}
	return s.slots[0], nil
}

func (j *JointCube) GetT0(id, depth int) (float64, error) {
	s, err := j.lookup(id)
	if err != nil {
		return 0, err
	}
	acc := j.init
	for _, sl := range s.slots {
		v, err := j.cubes[sl.cube].GetT0(sl.local, depth)
		if err != nil {
			return 0, err
		}
		acc = j.acc(acc, v)
	}
	return acc, nil
}

func (j *JointCube) SetT0(value float64, id, depth int) error {
	sl, err := j.writable(id)
	if err != nil {
		return err
	}
	return j.cubes[sl.cube].SetT0(value, sl.local, depth)
}

func (j *JointCube) Get(id, date, sample, depth int) (float64, error) {
	s, err := j.lookup(id)
	if err != nil {
		return 0, err
	}
	acc := j.init
	for _, sl := range s.slots {
		v, err := j.cubes[sl.cube].Get(sl.local, date, sample, depth)
		if err != nil {
			return 0, err
		}
		acc = j.acc(acc, v)
	}
	return acc, nil
}

func (j *JointCube) Set(value float64, id, date, sample, depth int) error {
	sl, err := j.writable(id)
	if err != nil {
		return err
	}
	return j.cubes[sl.cube].Set(value, sl.local, date, sample, depth)
}
