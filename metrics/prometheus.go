// Package metrics 封装风险引擎的 Prometheus 指标注册表与预定义指标。
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wyfcoding/riskengine/logging"
)

// Metrics 持有独立注册表及引擎标准指标。
type Metrics struct {
	registry *prometheus.Registry

	ScenariosGenerated  *prometheus.CounterVec   // 维度: generator
	CubeCellsWritten    *prometheus.CounterVec   // 维度: cube
	RevaluationDuration *prometheus.HistogramVec // 维度: mode
	ParConversionSkips  *prometheus.CounterVec   // 维度: key_type
	RecordsEmitted      *prometheus.CounterVec   // 维度: sink
	CacheRequests       *prometheus.CounterVec   // 维度: cache, result
	LogSinkErrors       *prometheus.CounterVec   // 维度: sink
}

// NewMetrics 初始化指标注册表，自动注册 Go 运行时与进程指标。
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.ScenariosGenerated = m.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_scenarios_generated_total",
		Help: "Number of scenarios produced by scenario generators",
	}, []string{"generator"})

	m.CubeCellsWritten = m.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_cube_cells_written_total",
		Help: "Number of NPV cube cells written during revaluation",
	}, []string{"cube"})

	m.RevaluationDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "risk_revaluation_duration_seconds",
		Help:    "Wall time of a full cube revaluation",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"mode"})

	m.ParConversionSkips = m.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_par_conversion_skips_total",
		Help: "Zero risk factors skipped under continue-on-error",
	}, []string{"key_type"})

	m.RecordsEmitted = m.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_sensitivity_records_total",
		Help: "Sensitivity records written to a sink",
	}, []string{"sink"})

	m.CacheRequests = m.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_cache_requests_total",
		Help: "Cache lookups by result",
	}, []string{"cache", "result"})

	m.LogSinkErrors = m.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_log_sink_errors_total",
		Help: "Log records a sink failed to write",
	}, []string{"sink"})
	logging.OnSinkError(func(sink string, _ error) {
		m.LogSinkErrors.WithLabelValues(sink).Inc()
	})

	slog.Info("risk metrics registry initialized", "service", serviceName)
	return m
}

// NewCounterVec 创建并注册计数器。
func (m *Metrics) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labelNames)
	m.registry.MustRegister(cv)
	return cv
}

// NewGaugeVec 创建并注册仪表盘。
func (m *Metrics) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(opts, labelNames)
	m.registry.MustRegister(gv)
	return gv
}

// NewHistogramVec 创建并注册直方图。
func (m *Metrics) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(opts, labelNames)
	m.registry.MustRegister(hv)
	return hv
}

// Registry 返回底层注册表，测试中用于读取指标值。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回指标暴露用的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ExposeHttp 在指定端口启动独立 HTTP 服务暴露指标，返回关闭函数。
func (m *Metrics) ExposeHttp(port string) func() {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown metrics server", "error", err)
		}
	}
}
