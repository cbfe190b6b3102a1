package valuation

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wyfcoding/riskengine/cube"
	"github.com/wyfcoding/riskengine/logging"
	"github.com/wyfcoding/riskengine/metrics"
	"github.com/wyfcoding/riskengine/scenario"
	"github.com/wyfcoding/riskengine/scenario/generator"
	"github.com/wyfcoding/riskengine/tracing"
	"github.com/wyfcoding/riskengine/xerrors"
)

// Job 一次立方体构建的全部输入。Counterparty* 与 ScenarioData 可选。
type Job struct {
	Trades      []Trade
	T0          scenario.Scenario
	Grid        *generator.DateGrid
	Samples     int
	Cube        cube.NPVCube
	Calculators []Calculator

	Counterparties          []string
	CounterpartyCube        cube.NPVCube
	CounterpartyCalculators []CounterpartyCalculator

	// ScenarioData 记录每个 (日期, 样本) 的计价单位及 DataKeys 对应的市场量。
	ScenarioData *cube.ScenarioData
	DataKeys     []scenario.RiskFactorKey
}

func (j *Job) validate() error {
	if j.Cube == nil || j.T0 == nil || j.Grid == nil {
		return xerrors.Configuration("valuation job needs a cube, a t0 scenario and a date grid")
	}
	if j.Cube.NumIDs() != len(j.Trades) {
		return xerrors.Derive(xerrors.ErrDimMismatch, "cube has %d ids for %d trades", j.Cube.NumIDs(), len(j.Trades))
	}
	if j.Cube.NumDates() != j.Grid.Len() || j.Cube.Samples() < j.Samples {
		return xerrors.Derive(xerrors.ErrDimMismatch, "cube %dx%d does not fit grid %d x samples %d",
			j.Cube.NumDates(), j.Cube.Samples(), j.Grid.Len(), j.Samples)
	}
	if j.CounterpartyCube != nil && j.CounterpartyCube.NumIDs() != len(j.Counterparties) {
		return xerrors.Derive(xerrors.ErrDimMismatch, "counterparty cube has %d ids for %d counterparties",
			j.CounterpartyCube.NumIDs(), len(j.Counterparties))
	}
	return nil
}

// Engine 立方体构建器。
type Engine struct {
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewEngine m 可为 nil。
func NewEngine(logger *logging.Logger, m *metrics.Metrics) *Engine {
	return &Engine{logger: logging.Component(logger, "valuation"), metrics: m}
}

// BuildCube 顺序构建：先写 T0，再按 样本 → 日期 → 交易 遍历生成器。
func (e *Engine) BuildCube(ctx context.Context, job Job, gen generator.Generator) (err error) {
	if err := job.validate(); err != nil {
		return err
	}
	ctx, span := tracing.StartSpan(ctx, "valuation.BuildCube",
		attribute.Int("trades", len(job.Trades)), attribute.Int("dates", job.Grid.Len()), attribute.Int("samples", job.Samples))
	defer func() { tracing.End(span, err) }()
	start := time.Now()
	e.logger.InfoContext(ctx, "cube build started", "trades", len(job.Trades), "dates", job.Grid.Len(), "samples", job.Samples)

	if err := e.run(ctx, job, gen, 0, len(job.Trades), true); err != nil {
		return err
	}
	e.observe("sequential", len(job.Trades), job, start)
	e.logger.InfoContext(ctx, "cube build finished", "duration", time.Since(start))
	return nil
}

// BuildCubeParallel 按交易分区并行构建。每个 worker 通过 factory 持有独立生成器，
// factory 对同一 stream 必须产出相同路径，使结果与顺序构建一致；各 worker 写入的交易区间互不相交。
// 对手方立方体与场景数据只由第一个 worker 写入。
func (e *Engine) BuildCubeParallel(ctx context.Context, job Job, factory generator.Factory, workers int) (err error) {
	if err := job.validate(); err != nil {
		return err
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(job.Trades) {
		workers = max(len(job.Trades), 1)
	}
	ctx, span := tracing.StartSpan(ctx, "valuation.BuildCubeParallel",
		attribute.Int("trades", len(job.Trades)), attribute.Int("workers", workers))
	defer func() { tracing.End(span, err) }()
	start := time.Now()
	e.logger.InfoContext(ctx, "parallel cube build started", "trades", len(job.Trades), "workers", workers)

	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithCancelOnError().WithFirstError()
	chunk := (len(job.Trades) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo, hi := w*chunk, min((w+1)*chunk, len(job.Trades))
		if lo >= hi && w > 0 {
			break
		}
		primary := w == 0
		p.Go(func(ctx context.Context) error {
			gen, err := factory(0)
			if err != nil {
				return err
			}
			return e.run(ctx, job, gen, lo, hi, primary)
		})
	}
	if err := p.Wait(); err != nil {
		return err
	}
	e.observe("parallel", len(job.Trades), job, start)
	e.logger.InfoContext(ctx, "parallel cube build finished", "duration", time.Since(start))
	return nil
}

func (e *Engine) observe(mode string, trades int, job Job, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.RevaluationDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	cells := trades * (job.Grid.Len()*job.Samples + 1)
	e.metrics.CubeCellsWritten.WithLabelValues("npv").Add(float64(cells))
}

// run 处理交易区间 [lo, hi)；primary 为 true 时同时写对手方立方体与场景数据。
func (e *Engine) run(ctx context.Context, job Job, gen generator.Generator, lo, hi int, primary bool) error {
	for i := lo; i < hi; i++ {
		for _, calc := range job.Calculators {
			if err := calc.CalculateT0(job.Trades[i], i, job.T0, job.Cube); err != nil {
				return err
			}
		}
	}
	if primary && job.CounterpartyCube != nil {
		for ci, cp := range job.Counterparties {
			for _, calc := range job.CounterpartyCalculators {
				if err := calc.CalculateT0(cp, ci, job.T0, job.CounterpartyCube); err != nil {
					return err
				}
			}
		}
	}

	if err := gen.Reset(); err != nil {
		return err
	}
	dates := job.Grid.Dates()
	for sample := 0; sample < job.Samples; sample++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for di, d := range dates {
			s, err := gen.Next(d)
			if err != nil {
				return err
			}
			if primary && e.metrics != nil {
				e.metrics.ScenariosGenerated.WithLabelValues("valuation").Inc()
			}
			for i := lo; i < hi; i++ {
				for _, calc := range job.Calculators {
					if err := calc.Calculate(job.Trades[i], i, s, job.Cube, di, sample); err != nil {
						return err
					}
				}
			}
			if !primary {
				continue
			}
			if job.CounterpartyCube != nil {
				for ci, cp := range job.Counterparties {
					for _, calc := range job.CounterpartyCalculators {
						if err := calc.Calculate(cp, ci, s, job.CounterpartyCube, di, sample); err != nil {
							return err
						}
					}
				}
			}
			if job.ScenarioData != nil {
				if err := recordScenarioData(job, s, di, sample); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func recordScenarioData(job Job, s scenario.Scenario, date, sample int) error {
	sd := job.ScenarioData
	if sd.Has(cube.DataNumeraire) {
		if err := sd.Set(s.Numeraire(), date, sample, cube.DataNumeraire); err != nil {
			return err
		}
	}
	for _, k := range job.DataKeys {
		v, err := s.Get(k)
		if err != nil {
			return err
		}
		if err := sd.Set(v, date, sample, k.String()); err != nil {
			return err
		}
	}
	return nil
}
