// Package sim 实现多因子相关随机过程的路径模拟（GBM 与 OU，精确离散化）。
package sim

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	linalg "github.com/wyfcoding/riskengine/algorithm/math"
	"github.com/wyfcoding/riskengine/xerrors"
)

// Kind 状态变量的动态类型。
type Kind int

const (
	// GBM 几何布朗运动，用于 FX 与权益现价。
	GBM Kind = iota
	// OU Ornstein-Uhlenbeck（Hull-White 型短端利率、信用强度）。
	OU
)

// ParseKind 解析 "gbm"/"ou"。
func ParseKind(s string) (Kind, error) {
	switch s {
	case "gbm":
		return GBM, nil
	case "ou":
		return OU, nil
	}
	return 0, xerrors.InvalidArg("unknown process " + s)
}

// Factor 单个状态变量。
type Factor struct {
	Name          string
	Kind          Kind
	Initial       float64
	Drift         float64 // GBM 漂移
	Volatility    float64
	MeanReversion float64 // OU 回归速度
	LongTermMean  float64 // OU 长期均值
}

// CorrelatedProcess 带相关结构的多因子过程，构造后只读，可被多个路径生成器共享。
type CorrelatedProcess struct {
	factors []Factor
	chol    *linalg.Matrix
}

// NewCorrelatedProcess 校验相关矩阵并预先做 Cholesky 分解。correlation 为 nil 时各因子独立。
func NewCorrelatedProcess(factors []Factor, correlation [][]float64) (*CorrelatedProcess, error) {
	if len(factors) == 0 {
		return nil, xerrors.ErrEmptyData
	}
	for _, f := range factors {
		if f.Kind == GBM && f.Initial <= 0 {
			return nil, xerrors.InvalidArg("gbm factor " + f.Name + " needs positive initial value")
		}
	}
	if correlation == nil {
		return &CorrelatedProcess{factors: factors, chol: linalg.Identity(len(factors))}, nil
	}
	if len(correlation) != len(factors) {
		return nil, xerrors.Derive(xerrors.ErrDimMismatch, "%d factors, correlation is %dx%d", len(factors), len(correlation), len(correlation))
	}
	_, l, err := linalg.CorrelationMatrix(correlation)
	if err != nil {
		return nil, err
	}
	return &CorrelatedProcess{factors: factors, chol: l}, nil
}

// Size 因子个数。
func (p *CorrelatedProcess) Size() int { return len(p.factors) }

// Factors 返回因子定义。
func (p *CorrelatedProcess) Factors() []Factor { return p.factors }

// Initial 返回 t=0 状态。
func (p *CorrelatedProcess) Initial() []float64 {
	x := make([]float64, len(p.factors))
	for i, f := range p.factors {
		x[i] = f.Initial
	}
	return x
}

// evolve 由 x(t) 与相关正态增量 dw 得到 x(t+dt)。
func (p *CorrelatedProcess) evolve(x []float64, dt float64, dw []float64, out []float64) {
	sqrtDt := math.Sqrt(dt)
	for i, f := range p.factors {
		switch f.Kind {
		case GBM:
			out[i] = x[i] * math.Exp((f.Drift-0.5*f.Volatility*f.Volatility)*dt+f.Volatility*sqrtDt*dw[i])
		case OU:
			a := f.MeanReversion
			if a < 1e-10 {
				out[i] = x[i] + f.Volatility*sqrtDt*dw[i]
				continue
			}
			e := math.Exp(-a * dt)
			sd := f.Volatility * math.Sqrt((1-e*e)/(2*a))
			out[i] = f.LongTermMean + (x[i]-f.LongTermMean)*e + sd*dw[i]
		}
	}
}

// Path 单条样本路径。States[k] 为 times[k] 时刻的状态，Integrals[k] 为 OU 因子从 0 到 times[k] 的梯形积分。
type Path struct {
	States    [][]float64
	Integrals [][]float64
}

// PathGenerator 在固定时间网格上逐条生成路径，非并发安全，每个 worker 应持有独立实例。
type PathGenerator struct {
	proc   *CorrelatedProcess
	times  []float64
	normal distuv.Normal
	z      []float64
	dw     []float64
}

// NewPathGenerator 创建路径生成器。times 为严格递增的正年化时间；stream 区分并行 worker 的随机流。
func (p *CorrelatedProcess) NewPathGenerator(times []float64, seed, stream uint64) (*PathGenerator, error) {
	if len(times) == 0 {
		return nil, xerrors.ErrEmptyDateGrid
	}
	prev := 0.0
	for i, t := range times {
		if t <= prev {
			return nil, xerrors.Derive(xerrors.ErrInvalidDateGrid, "time %d (%g) not after %g", i, t, prev)
		}
		prev = t
	}
	n := p.Size()
	return &PathGenerator{
		proc:   p,
		times:  append([]float64(nil), times...),
		normal: distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(seed, stream)},
		z:      make([]float64, n),
		dw:     make([]float64, n),
	}, nil
}

// Times 返回时间网格。
func (g *PathGenerator) Times() []float64 { return g.times }

// Next 生成下一条路径。
func (g *PathGenerator) Next() Path {
	n := g.proc.Size()
	path := Path{
		States:    make([][]float64, len(g.times)),
		Integrals: make([][]float64, len(g.times)),
	}
	x := g.proc.Initial()
	integral := make([]float64, n)
	prevT := 0.0
	for k, t := range g.times {
		dt := t - prevT
		for i := range n {
			g.z[i] = g.normal.Rand()
		}
		g.correlate()

		next := make([]float64, n)
		g.proc.evolve(x, dt, g.dw, next)
		acc := make([]float64, n)
		for i, f := range g.proc.factors {
			if f.Kind == OU {
				integral[i] += 0.5 * (x[i] + next[i]) * dt
			}
			acc[i] = integral[i]
		}
		path.States[k] = next
		path.Integrals[k] = acc
		x = next
		prevT = t
	}
	return path
}

func (g *PathGenerator) correlate() {
	l := g.proc.chol
	for i := range l.Rows {
		var s float64
		for j := 0; j <= i; j++ {
			s += l.Get(i, j) * g.z[j]
		}
		g.dw[i] = s
	}
}
