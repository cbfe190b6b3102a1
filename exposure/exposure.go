// Package exposure 从 NPV 立方体聚合净额集敞口曲线（EPE、ENE、PFE）并计算 CVA / DVA。
package exposure

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/stat"

	"github.com/wyfcoding/riskengine/cube"
	"github.com/wyfcoding/riskengine/datetime"
	"github.com/wyfcoding/riskengine/logging"
	"github.com/wyfcoding/riskengine/tracing"
	"github.com/wyfcoding/riskengine/valuation"
	"github.com/wyfcoding/riskengine/xerrors"
)

// Profile 一个净额集的敞口曲线，下标 0 为估值日，其后与立方体日期一一对应。
//
// EPE、ENE 由平减后的立方体值取样本均值，即以今日货币计的期望正 / 负敞口；
// PFE 为未平减净额值在给定分位数上的取值（有场景数据时乘回计价单位）。
type Profile struct {
	NettingSet   string      `json:"netting_set"`
	Counterparty string      `json:"counterparty"`
	Dates        []time.Time `json:"dates"`
	Times        []float64   `json:"times"`
	EPE          []float64   `json:"epe"`
	ENE          []float64   `json:"ene"`
	PFE          []float64   `json:"pfe"`
}

// TimeAveragedEPE 在 [0, horizon] 上对 EPE 做时间加权平均，horizon<=0 时取整条曲线。
func (p *Profile) TimeAveragedEPE(horizon float64) float64 {
	if len(p.Times) < 2 {
		return 0
	}
	if horizon <= 0 {
		horizon = p.Times[len(p.Times)-1]
	}
	sum, span := 0.0, 0.0
	for j := 1; j < len(p.Times); j++ {
		t0, t1 := p.Times[j-1], math.Min(p.Times[j], horizon)
		if t1 <= t0 {
			break
		}
		sum += p.EPE[j] * (t1 - t0)
		span += t1 - t0
	}
	if span == 0 {
		return 0
	}
	return sum / span
}

// Calculator 按净额集聚合交易立方体。
type Calculator struct {
	npv      cube.NPVCube
	data     *cube.ScenarioData
	depth    int
	quantile float64
	workers  int
	logger   *logging.Logger

	order        []string
	members      map[string][]int
	counterparty map[string]string
}

type Option func(*Calculator)

// WithDepth 读取的 NPV 深度，默认 0。
func WithDepth(d int) Option { return func(c *Calculator) { c.depth = d } }

// WithPFEQuantile PFE 分位数，默认 0.95。
func WithPFEQuantile(q float64) Option { return func(c *Calculator) { c.quantile = q } }

// WithScenarioData 提供计价单位，PFE 乘回计价单位后再取分位数。
func WithScenarioData(sd *cube.ScenarioData) Option { return func(c *Calculator) { c.data = sd } }

func WithWorkers(n int) Option { return func(c *Calculator) { c.workers = max(n, 1) } }

func WithLogger(l *logging.Logger) Option {
	return func(c *Calculator) { c.logger = logging.Component(l, "exposure") }
}

// NewCalculator trades 的顺序必须与立方体 id 一致；同一净额集的交易须属于同一对手方。
func NewCalculator(npv cube.NPVCube, trades []valuation.Trade, opts ...Option) (*Calculator, error) {
	if npv.NumIDs() != len(trades) {
		return nil, xerrors.Derive(xerrors.ErrDimMismatch, "cube has %d ids for %d trades", npv.NumIDs(), len(trades))
	}
	c := &Calculator{
		npv:          npv,
		quantile:     0.95,
		workers:      1,
		logger:       logging.Component(nil, "exposure"),
		members:      make(map[string][]int),
		counterparty: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.quantile <= 0 || c.quantile >= 1 {
		return nil, xerrors.Configuration("PFE quantile %g outside (0, 1)", c.quantile)
	}
	if c.depth < 0 || c.depth >= npv.Depth() {
		return nil, xerrors.Derive(xerrors.ErrIndexOutOfRange, "depth %d, cube depth %d", c.depth, npv.Depth())
	}
	for i, t := range trades {
		if npv.IDs()[i] != t.ID {
			return nil, xerrors.Derive(xerrors.ErrUnknownID, "cube id %q at %d, trade %q", npv.IDs()[i], i, t.ID)
		}
		ns := t.NettingSet
		if ns == "" {
			ns = t.ID
		}
		if cp, ok := c.counterparty[ns]; ok && cp != t.Counterparty {
			return nil, xerrors.Configuration("netting set %q spans counterparties %q and %q", ns, cp, t.Counterparty)
		}
		if _, ok := c.members[ns]; !ok {
			c.order = append(c.order, ns)
		}
		c.counterparty[ns] = t.Counterparty
		c.members[ns] = append(c.members[ns], i)
	}
	return c, nil
}

// NettingSets 按交易首次出现的顺序。
func (c *Calculator) NettingSets() []string { return c.order }

// Counterparty 净额集的对手方。
func (c *Calculator) Counterparty(ns string) (string, error) {
	cp, ok := c.counterparty[ns]
	if !ok {
		return "", xerrors.Derive(xerrors.ErrUnknownNettingSet, "%q", ns)
	}
	return cp, nil
}

// netValue 净额集在 (date, sample) 上的平减值。
func (c *Calculator) netValue(idx []int, date, sample int) (float64, error) {
	v := 0.0
	for _, i := range idx {
		x, err := c.npv.Get(i, date, sample, c.depth)
		if err != nil {
			return 0, err
		}
		v += x
	}
	return v, nil
}

func (c *Calculator) numeraire(date, sample int) (float64, error) {
	if c.data == nil || !c.data.Has(cube.DataNumeraire) {
		return 1, nil
	}
	return c.data.Get(date, sample, cube.DataNumeraire)
}

// Profile 计算单个净额集的敞口曲线。
func (c *Calculator) Profile(ns string) (*Profile, error) {
	idx, ok := c.members[ns]
	if !ok {
		return nil, xerrors.Derive(xerrors.ErrUnknownNettingSet, "%q", ns)
	}
	dates := c.npv.Dates()
	n, samples := len(dates), c.npv.Samples()
	p := &Profile{
		NettingSet:   ns,
		Counterparty: c.counterparty[ns],
		Dates:        append([]time.Time{c.npv.AsOf()}, dates...),
		Times:        make([]float64, n+1),
		EPE:          make([]float64, n+1),
		ENE:          make([]float64, n+1),
		PFE:          make([]float64, n+1),
	}
	v0 := 0.0
	for _, i := range idx {
		x, err := c.npv.GetT0(i, c.depth)
		if err != nil {
			return nil, err
		}
		v0 += x
	}
	p.EPE[0], p.ENE[0], p.PFE[0] = math.Max(v0, 0), math.Max(-v0, 0), math.Max(v0, 0)

	undeflated := make([]float64, samples)
	for d := range n {
		p.Times[d+1] = datetime.YearFraction(c.npv.AsOf(), dates[d])
		epe, ene := 0.0, 0.0
		for s := range samples {
			v, err := c.netValue(idx, d, s)
			if err != nil {
				return nil, err
			}
			epe += math.Max(v, 0)
			ene += math.Max(-v, 0)
			num, err := c.numeraire(d, s)
			if err != nil {
				return nil, err
			}
			undeflated[s] = v * num
		}
		p.EPE[d+1] = epe / float64(samples)
		p.ENE[d+1] = ene / float64(samples)
		slices.Sort(undeflated)
		p.PFE[d+1] = math.Max(stat.Quantile(c.quantile, stat.Empirical, undeflated, nil), 0)
	}
	return p, nil
}

// Profiles 并行计算全部净额集。
func (c *Calculator) Profiles(ctx context.Context) (_ map[string]*Profile, err error) {
	ctx, span := tracing.StartSpan(ctx, "exposure.Profiles", attribute.Int("netting_sets", len(c.order)))
	defer func() { tracing.End(span, err) }()
	p := pool.NewWithResults[*Profile]().WithContext(ctx).WithMaxGoroutines(c.workers).WithCancelOnError()
	for _, ns := range c.order {
		p.Go(func(ctx context.Context) (*Profile, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return c.Profile(ns)
		})
	}
	list, err := p.Wait()
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Profile, len(list))
	for _, prof := range list {
		out[prof.NettingSet] = prof
	}
	c.logger.DebugContext(ctx, "exposure profiles calculated", "netting_sets", len(out), "dates", c.npv.NumDates(), "samples", c.npv.Samples())
	return out, nil
}
