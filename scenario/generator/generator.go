// Package generator 提供情景生成器：整路径生成、交叉资产模型、静态、历史、零息转平价与敏感度情景。
//
// 生成器有内部状态（步数计数），同一实例不能并发调用；并行模拟时每个 worker 持有独立实例。
package generator

import (
	"slices"
	"time"

	"github.com/wyfcoding/riskengine/datetime"
	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/xerrors"
)

// Generator 按网格日期顺序产生情景。
type Generator interface {
	Next(date time.Time) (scenario.Scenario, error)
	Reset() error
}

// Factory 为每个并行 worker 构造独立的生成器，stream 用于区分随机流。
type Factory func(stream uint64) (Generator, error)

// DateGrid 严格递增、首日晚于估值日的模拟日期网格。
type DateGrid struct {
	asOf  time.Time
	dates []time.Time
	times []float64
}

// NewDateGrid 由估值日与期限列表构造网格。
func NewDateGrid(asOf time.Time, tenors []datetime.Period) (*DateGrid, error) {
	dates := make([]time.Time, len(tenors))
	for i, p := range tenors {
		dates[i] = p.AddTo(datetime.StartOfDay(asOf))
	}
	return NewDateGridFromDates(asOf, dates)
}

// ParseDateGrid 解析 "6M,1Y,2Y" 形式的网格。
func ParseDateGrid(asOf time.Time, spec string) (*DateGrid, error) {
	ps, err := datetime.ParsePeriods(spec)
	if err != nil {
		return nil, xerrors.DeriveCause(xerrors.ErrInvalidDateGrid, err, "%q", spec)
	}
	return NewDateGrid(asOf, ps)
}

// NewDateGridFromDates 校验并构造网格。
func NewDateGridFromDates(asOf time.Time, dates []time.Time) (*DateGrid, error) {
	if len(dates) == 0 {
		return nil, xerrors.ErrEmptyDateGrid
	}
	asOf = datetime.StartOfDay(asOf)
	g := &DateGrid{asOf: asOf, dates: make([]time.Time, len(dates)), times: make([]float64, len(dates))}
	prev := asOf
	for i, d := range dates {
		d = datetime.StartOfDay(d)
		if !d.After(prev) {
			if i == 0 {
				return nil, xerrors.Derive(xerrors.ErrInvalidDateGrid, "first date %s must be after as-of %s",
					datetime.FormatDate(d), datetime.FormatDate(asOf))
			}
			return nil, xerrors.Derive(xerrors.ErrInvalidDateGrid, "date %s not after %s",
				datetime.FormatDate(d), datetime.FormatDate(prev))
		}
		g.dates[i] = d
		g.times[i] = datetime.YearFraction(asOf, d)
		prev = d
	}
	return g, nil
}

// AsOf 估值日。
func (g *DateGrid) AsOf() time.Time { return g.asOf }

// Dates 网格日期（只读）。
func (g *DateGrid) Dates() []time.Time { return slices.Clone(g.dates) }

// Times 以 ACT/365F 计的年化时间。
func (g *DateGrid) Times() []float64 { return slices.Clone(g.times) }

// Len 日期个数。
func (g *DateGrid) Len() int { return len(g.dates) }

// Index 线性查找日期位置，不在网格上返回 ErrUnknownGridDate。
func (g *DateGrid) Index(d time.Time) (int, error) {
	d = datetime.StartOfDay(d)
	for i, x := range g.dates {
		if x.Equal(d) {
			return i, nil
		}
	}
	return -1, xerrors.Derive(xerrors.ErrUnknownGridDate, "%s", datetime.FormatDate(d))
}
