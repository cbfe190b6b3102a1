package cube

import (
	"math"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/wyfcoding/riskengine/xerrors"
)

type accEnv struct {
	Acc   float64 `expr:"acc"`
	Value float64 `expr:"value"`
}

// NewExprAccumulator 由配置中的表达式构造累加器，可用变量为 acc 与 value，例如 "max(acc, value)"。
// 表达式在构造时编译并检查返回类型；运行期失败时返回 NaN。
func NewExprAccumulator(expression string) (Accumulator, error) {
	program, err := expr.Compile(expression, expr.Env(accEnv{}), expr.AsFloat64())
	if err != nil {
		return nil, xerrors.DeriveCause(xerrors.ErrInvalidAccumulator, err, "%q", expression)
	}
	return func(acc, value float64) float64 {
		return runAccumulator(program, acc, value)
	}, nil
}

func runAccumulator(program *vm.Program, acc, value float64) float64 {
	out, err := expr.Run(program, accEnv{Acc: acc, Value: value})
	if err != nil {
		return math.NaN()
	}
	f, ok := out.(float64)
	if !ok {
		return math.NaN()
	}
	return f
}

// AccumulatorFromConfig 表达式为空时返回 Sum。
func AccumulatorFromConfig(expression string) (Accumulator, error) {
	if expression == "" {
		return Sum, nil
	}
	return NewExprAccumulator(expression)
}
