// Package breaker 提供基于 gobreaker 的熔断器，保护结果库等外部依赖。
package breaker

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"

	"github.com/wyfcoding/riskengine/config"
	"github.com/wyfcoding/riskengine/logging"
	"github.com/wyfcoding/riskengine/metrics"
	"github.com/wyfcoding/riskengine/xerrors"
)

// ErrServiceUnavailable 熔断器处于打开状态。
var ErrServiceUnavailable = xerrors.New(xerrors.ErrUnavailable, 503, "service unavailable: circuit breaker is open", "", nil)

// Breaker 封装 gobreaker，状态变化写入日志与指标。
type Breaker struct {
	circuitBreaker *gobreaker.CircuitBreaker
}

// Settings 熔断器初始化参数。
type Settings struct {
	Name         string
	Config       config.CircuitBreakerConfig
	FailureRatio float64
	MinRequests  uint32
}

// NewBreaker 未启用时返回直通实现。
func NewBreaker(st Settings, m *metrics.Metrics, logger *logging.Logger) *Breaker {
	if !st.Config.Enabled {
		return &Breaker{}
	}

	failureRatio := st.FailureRatio
	if failureRatio <= 0 {
		failureRatio = 0.5
	}
	minRequests := st.MinRequests
	if minRequests == 0 {
		minRequests = 5
	}

	var state *prometheus.GaugeVec
	if m != nil {
		state = m.NewGaugeVec(prometheus.GaugeOpts{
			Name: "risk_circuit_breaker_state",
			Help: "Circuit breaker state (0: Closed, 1: Half-Open, 2: Open)",
		}, []string{"name"})
	}
	logger = logging.Component(logger, "breaker")

	gs := gobreaker.Settings{
		Name:        st.Name,
		MaxRequests: st.Config.MaxRequests,
		Interval:    st.Config.Interval,
		Timeout:     st.Config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && ratio >= failureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			if state != nil {
				state.WithLabelValues(name).Set(float64(to))
			}
		},
	}
	return &Breaker{circuitBreaker: gobreaker.NewCircuitBreaker(gs)}
}

// Execute 执行受熔断保护的函数。
func (b *Breaker) Execute(fn func() error) error {
	_, err := ExecuteTyped(b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// ExecuteTyped 带返回值的 Execute。
func ExecuteTyped[T any](b *Breaker, fn func() (T, error)) (T, error) {
	if b == nil || b.circuitBreaker == nil {
		return fn()
	}

	res, err := b.circuitBreaker.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, xerrors.DeriveCause(ErrServiceUnavailable, err, "%s", b.circuitBreaker.Name())
		}
		return zero, err
	}
	return res.(T), nil
}

// State 当前状态，未启用时恒为 Closed。
func (b *Breaker) State() gobreaker.State {
	if b == nil || b.circuitBreaker == nil {
		return gobreaker.StateClosed
	}
	return b.circuitBreaker.State()
}
