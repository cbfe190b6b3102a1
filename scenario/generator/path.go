package generator

import (
	"time"

	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/xerrors"
)

// PathBuilder 产生一条覆盖整个网格的情景路径（一个样本）。
type PathBuilder interface {
	NextPath() ([]scenario.Scenario, error)
}

// PathBuilderFunc 函数适配器。
type PathBuilderFunc func() ([]scenario.Scenario, error)

func (f PathBuilderFunc) NextPath() ([]scenario.Scenario, error) { return f() }

// ScenarioPathGenerator 在网格首日触发整路径生成，其后按步推进。
// 调用方只需按网格顺序调用 Next，每遍历一次网格即得到一个样本。
type ScenarioPathGenerator struct {
	grid    *DateGrid
	builder PathBuilder
	path    []scenario.Scenario
	step    int
}

// NewScenarioPathGenerator 创建整路径生成器。
func NewScenarioPathGenerator(grid *DateGrid, builder PathBuilder) (*ScenarioPathGenerator, error) {
	if grid == nil || grid.Len() == 0 {
		return nil, xerrors.ErrEmptyDateGrid
	}
	return &ScenarioPathGenerator{grid: grid, builder: builder}, nil
}

// Grid 日期网格。
func (g *ScenarioPathGenerator) Grid() *DateGrid { return g.grid }

// Next 返回 date 对应的情景。date 必须是网格日期且与当前步数一致。
func (g *ScenarioPathGenerator) Next(date time.Time) (scenario.Scenario, error) {
	idx, err := g.grid.Index(date)
	if err != nil {
		return nil, err
	}
	if idx == 0 {
		path, err := g.builder.NextPath()
		if err != nil {
			return nil, err
		}
		if len(path) != g.grid.Len() {
			return nil, xerrors.Derive(xerrors.ErrPathExhausted, "path has %d scenarios for %d dates", len(path), g.grid.Len())
		}
		g.path = path
		g.step = 0
	}
	if idx != g.step {
		return nil, xerrors.Derive(xerrors.ErrStepMismatch, "date %s is step %d, generator expects step %d",
			date.Format("2006-01-02"), idx, g.step)
	}
	if g.step >= len(g.path) {
		return nil, xerrors.ErrPathExhausted
	}
	s := g.path[g.step]
	g.step++
	return s, nil
}

// Reset 丢弃当前路径，下一次调用须从网格首日开始。
func (g *ScenarioPathGenerator) Reset() error {
	g.path = nil
	g.step = 0
	return nil
}
