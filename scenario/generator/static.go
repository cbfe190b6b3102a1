package generator

import (
	"time"

	"github.com/wyfcoding/riskengine/scenario"
)

// StaticScenarioGenerator 无论日期始终返回同一情景，用于 t0 等确定性切片。
type StaticScenarioGenerator struct {
	s scenario.Scenario
}

// NewStaticScenarioGenerator 创建静态生成器。
func NewStaticScenarioGenerator(s scenario.Scenario) *StaticScenarioGenerator {
	return &StaticScenarioGenerator{s: s}
}

func (g *StaticScenarioGenerator) Next(time.Time) (scenario.Scenario, error) { return g.s, nil }

func (g *StaticScenarioGenerator) Reset() error { return nil }
