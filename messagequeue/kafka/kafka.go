// Package kafka 提供带追踪上下文传播的 Kafka 生产者，用于向下游推送敏感度记录。
package kafka

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/wyfcoding/riskengine/config"
	"github.com/wyfcoding/riskengine/logging"
	"github.com/wyfcoding/riskengine/metrics"
	"github.com/wyfcoding/riskengine/xerrors"
)

// Writer kafka-go Writer 的最小接口，测试中可替换。
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Message 待发送的键值对。
type Message struct {
	Key   []byte
	Value []byte
}

type Producer struct {
	topic    string
	writer   Writer
	logger   *logging.Logger
	produced *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewProducer 按配置创建 kafka-go Writer；m 可为 nil。
func NewProducer(cfg config.KafkaConfig, logger *logging.Logger, m *metrics.Metrics) (*Producer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, xerrors.Configuration("kafka brokers and topic are required")
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		MaxAttempts:  maxAttempts,
		RequiredAcks: kafkago.RequiredAcks(cfg.RequiredAcks),
		BatchSize:    cfg.BatchSize,
		Async:        cfg.Async,
	}
	return NewProducerWithWriter(cfg.Topic, w, logger, m), nil
}

// NewProducerWithWriter 使用给定 Writer 构造生产者。
func NewProducerWithWriter(topic string, w Writer, logger *logging.Logger, m *metrics.Metrics) *Producer {
	p := &Producer{topic: topic, writer: w, logger: logging.Component(logger, "kafka")}
	if m != nil {
		p.produced = m.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_mq_produced_total",
			Help: "Messages produced by topic and status",
		}, []string{"topic", "status"})
		p.duration = m.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "risk_mq_publish_duration_seconds",
			Help:    "Kafka publish latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
	}
	return p
}

// Publish 发送一条消息。
func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	return p.PublishBatch(ctx, []Message{{Key: key, Value: value}})
}

// PublishBatch 在一个 span 内批量发送，追踪上下文写入每条消息的 header。
func (p *Producer) PublishBatch(ctx context.Context, batch []Message) error {
	if len(batch) == 0 {
		return nil
	}
	start := time.Now()
	ctx, span := otel.Tracer("kafka-producer").Start(ctx, "Kafka.Publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	headers := make([]kafkago.Header, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}

	now := time.Now()
	msgs := make([]kafkago.Message, len(batch))
	for i, m := range batch {
		msgs[i] = kafkago.Message{Key: m.Key, Value: m.Value, Headers: headers, Time: now}
	}

	err := p.writer.WriteMessages(ctx, msgs...)
	if p.duration != nil {
		p.duration.WithLabelValues(p.topic).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		p.count("failed", len(batch))
		span.SetStatus(codes.Error, err.Error())
		p.logger.ErrorContext(ctx, "failed to publish messages", "topic", p.topic, "count", len(batch), "error", err)
		return xerrors.Wrap(err, xerrors.ErrUnavailable, "kafka publish to "+p.topic)
	}
	p.count("success", len(batch))
	return nil
}

func (p *Producer) count(status string, n int) {
	if p.produced != nil {
		p.produced.WithLabelValues(p.topic, status).Add(float64(n))
	}
}

func (p *Producer) Topic() string { return p.topic }

func (p *Producer) Close() error {
	return p.writer.Close()
}
