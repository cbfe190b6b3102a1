package sensitivity

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/riskengine/logging"
	"github.com/wyfcoding/riskengine/metrics"
	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/valuation"
	"github.com/wyfcoding/riskengine/xerrors"
)

// Analysis 在全部敏感度情景下重估每个交易，生成 SensitivityCube。
type Analysis struct {
	pricer   valuation.Pricer
	currency string
	workers  int
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// NewAnalysis currency 为 NPV 的计价币种（仅用于记录），workers<1 按 1 处理。
func NewAnalysis(pricer valuation.Pricer, currency string, workers int, logger *logging.Logger, m *metrics.Metrics) *Analysis {
	return &Analysis{
		pricer:   pricer,
		currency: currency,
		workers:  max(workers, 1),
		logger:   logging.Component(logger, "sensitivity"),
		metrics:  m,
	}
}

// Run 情景只读共享，每个交易独占立方体中的一行，因此可以按交易并行。
func (a *Analysis) Run(ctx context.Context, trades []valuation.Trade, scenarios []scenario.Scenario, descs []scenario.Description) (*SensitivityCube, error) {
	if len(scenarios) == 0 {
		return nil, xerrors.Derive(xerrors.ErrEmptyData, "no sensitivity scenarios")
	}
	start := time.Now()
	sc, err := NewEmptySensitivityCube(scenarios[0], valuation.IDs(trades), descs, a.currency)
	if err != nil {
		return nil, err
	}
	npv := sc.NPVCube()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, trade := range trades {
		g.Go(func() error {
			for j, s := range scenarios {
				if err := ctx.Err(); err != nil {
					return err
				}
				v, err := a.pricer.NPV(trade, s)
				if err != nil {
					return err
				}
				if j == 0 {
					if err := npv.SetT0(v, i, 0); err != nil {
						return err
					}
				}
				if err := npv.Set(v, i, 0, j, 0); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if a.metrics != nil {
		a.metrics.RevaluationDuration.WithLabelValues("sensitivity").Observe(time.Since(start).Seconds())
		a.metrics.CubeCellsWritten.WithLabelValues("sensitivity").Add(float64(len(trades) * (len(scenarios) + 1)))
	}
	a.logger.InfoContext(ctx, "sensitivity analysis finished", "trades", len(trades), "scenarios", len(scenarios), "duration", time.Since(start))
	return sc, nil
}

// RunGenerator 使用敏感度情景生成器中的全部情景。
func (a *Analysis) RunGenerator(ctx context.Context, trades []valuation.Trade, gen ScenarioSource) (*SensitivityCube, error) {
	return a.Run(ctx, trades, gen.Scenarios(), gen.Descriptions())
}

// ScenarioSource 由 generator.SensitivityScenarioGenerator 实现。
type ScenarioSource interface {
	Scenarios() []scenario.Scenario
	Descriptions() []scenario.Description
}
