// Package cube 实现 NPV 立方体（交易 × 日期 × 样本 × 深度）及其组合运算。
//
// 立方体不做内部同步：并行重估时调用方须保证各 worker 写入互不相交的单元；
// 填充完成后可被任意多个 goroutine 并发读取。
package cube

import (
	"slices"
	"time"

	"github.com/wyfcoding/riskengine/datetime"
	"github.com/wyfcoding/riskengine/xerrors"
)

// NPVCube 稠密 4 维结果容器，T0 切片位于日期网格之外。
type NPVCube interface {
	NumIDs() int
	NumDates() int
	Samples() int
	Depth() int
	AsOf() time.Time
	Dates() []time.Time
	// IDs 按索引顺序排列的交易 id。
	IDs() []string
	// IDsAndIndexes id 到索引的映射，构造时确定，之后不再重新编号。
	IDsAndIndexes() map[string]int
	GetT0(id, depth int) (float64, error)
	SetT0(value float64, id, depth int) error
	Get(id, date, sample, depth int) (float64, error)
	Set(value float64, id, date, sample, depth int) error
}

// IndexOfID 按业务 id 查索引。
func IndexOfID(c NPVCube, id string) (int, error) {
	i, ok := c.IDsAndIndexes()[id]
	if !ok {
		return -1, xerrors.Derive(xerrors.ErrUnknownID, "%q", id)
	}
	return i, nil
}

// IndexOfDate 按日期查索引。
func IndexOfDate(c NPVCube, d time.Time) (int, error) {
	d = datetime.StartOfDay(d)
	for i, x := range c.Dates() {
		if x.Equal(d) {
			return i, nil
		}
	}
	return -1, xerrors.Derive(xerrors.ErrUnknownDate, "%s", datetime.FormatDate(d))
}

// GetByKey 以业务 id 与日期读取。
func GetByKey(c NPVCube, id string, date time.Time, sample, depth int) (float64, error) {
	i, err := IndexOfID(c, id)
	if err != nil {
		return 0, err
	}
	j, err := IndexOfDate(c, date)
	if err != nil {
		return 0, err
	}
	return c.Get(i, j, sample, depth)
}

// SetByKey 以业务 id 与日期写入。
func SetByKey(c NPVCube, value float64, id string, date time.Time, sample, depth int) error {
	i, err := IndexOfID(c, id)
	if err != nil {
		return err
	}
	j, err := IndexOfDate(c, date)
	if err != nil {
		return err
	}
	return c.Set(value, i, j, sample, depth)
}

// GetT0ByKey 以业务 id 读取 T0。
func GetT0ByKey(c NPVCube, id string, depth int) (float64, error) {
	i, err := IndexOfID(c, id)
	if err != nil {
		return 0, err
	}
	return c.GetT0(i, depth)
}

// Float 立方体存储精度。
type Float interface {
	~float32 | ~float64
}

// InMemoryCube 以连续切片存储的立方体，float32 精度可将内存减半。
type InMemoryCube[T Float] struct {
	asOf    time.Time
	ids     []string
	index   map[string]int
	dates   []time.Time
	samples int
	depth   int
	t0      []T
	data    []T
}

// NewInMemoryCube 分配一次性确定维度的立方体。
func NewInMemoryCube[T Float](asOf time.Time, ids []string, dates []time.Time, samples, depth int) (*InMemoryCube[T], error) {
	if samples < 1 || depth < 1 {
		return nil, xerrors.Derive(xerrors.ErrInvalidDimension, "samples=%d depth=%d", samples, depth)
	}
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, dup := index[id]; dup {
			return nil, xerrors.Derive(xerrors.ErrDuplicateID, "trade %q", id)
		}
		index[id] = i
	}
	ds := make([]time.Time, len(dates))
	for i, d := range dates {
		ds[i] = datetime.StartOfDay(d)
		if i > 0 && !ds[i].After(ds[i-1]) {
			return nil, xerrors.Derive(xerrors.ErrInvalidDateGrid, "cube dates not increasing at %s", datetime.FormatDate(ds[i]))
		}
	}
	return &InMemoryCube[T]{
		asOf:    datetime.StartOfDay(asOf),
		ids:     slices.Clone(ids),
		index:   index,
		dates:   ds,
		samples: samples,
		depth:   depth,
		t0:      make([]T, len(ids)*depth),
		data:    make([]T, len(ids)*len(ds)*samples*depth),
	}, nil
}

func (c *InMemoryCube[T]) NumIDs() int                   { return len(c.ids) }
func (c *InMemoryCube[T]) NumDates() int                 { return len(c.dates) }
func (c *InMemoryCube[T]) Samples() int                  { return c.samples }
func (c *InMemoryCube[T]) Depth() int                    { return c.depth }
func (c *InMemoryCube[T]) AsOf() time.Time               { return c.asOf }
func (c *InMemoryCube[T]) Dates() []time.Time            { return c.dates }
func (c *InMemoryCube[T]) IDs() []string                 { return c.ids }
func (c *InMemoryCube[T]) IDsAndIndexes() map[string]int { return c.index }

func (c *InMemoryCube[T]) t0Offset(id, depth int) (int, error) {
	if id < 0 || id >= len(c.ids) || depth < 0 || depth >= c.depth {
		return 0, xerrors.Derive(xerrors.ErrIndexOutOfRange, "t0 (id=%d, depth=%d) outside %dx%d", id, depth, len(c.ids), c.depth)
	}
	return id*c.depth + depth, nil
}

func (c *InMemoryCube[T]) offset(id, date, sample, depth int) (int, error) {
	if id < 0 || id >= len(c.ids) || date < 0 || date >= len(c.dates) ||
		sample < 0 || sample >= c.samples || depth < 0 || depth >= c.depth {
		return 0, xerrors.Derive(xerrors.ErrIndexOutOfRange, "(id=%d, date=%d, sample=%d, depth=%d) outside %dx%dx%dx%d",
			id, date, sample, depth, len(c.ids), len(c.dates), c.samples, c.depth)
	}
	return ((id*len(c.dates)+date)*c.samples+sample)*c.depth + depth, nil
}

func (c *InMemoryCube[T]) GetT0(id, depth int) (float64, error) {
	o, err := c.t0Offset(id, depth)
	if err != nil {
		return 0, err
	}
	return float64(c.t0[o]), nil
}

func (c *InMemoryCube[T]) SetT0(value float64, id, depth int) error {
	o, err := c.t0Offset(id, depth)
	if err != nil {
		return err
	}
	c.t0[o] = T(value)
	return nil
}

func (c *InMemoryCube[T]) Get(id, date, sample, depth int) (float64, error) {
	o, err := c.offset(id, date, sample, depth)
	if err != nil {
		return 0, err
	}
	return float64(c.data[o]), nil
}

func (c *InMemoryCube[T]) Set(value float64, id, date, sample, depth int) error {
	o, err := c.offset(id, date, sample, depth)
	if err != nil {
		return err
	}
	c.data[o] = T(value)
	return nil
}

// NewCube 按精度名称（"float32"/"float64"，默认 float64）创建立方体。
func NewCube(precision string, asOf time.Time, ids []string, dates []time.Time, samples, depth int) (NPVCube, error) {
	if precision == "float32" {
		c, err := NewInMemoryCube[float32](asOf, ids, dates, samples, depth)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	c, err := NewInMemoryCube[float64](asOf, ids, dates, samples, depth)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// SameShape 判断两个立方体的日期、样本、深度与估值日是否一致。
func SameShape(a, b NPVCube) bool {
	return a.AsOf().Equal(b.AsOf()) && a.Samples() == b.Samples() && a.Depth() == b.Depth() &&
		slices.EqualFunc(a.Dates(), b.Dates(), time.Time.Equal)
}
