package sensitivity

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/wyfcoding/riskengine/database"
	"github.com/wyfcoding/riskengine/messagequeue/kafka"
	"github.com/wyfcoding/riskengine/metrics"
	"github.com/wyfcoding/riskengine/xerrors"
)

var csvHeader = []string{"TradeId", "IsPar", "Currency", "BaseNpv", "Factor", "Desc", "ShiftSize", "Delta", "Gamma"}

// Sink 批量接收敏感度记录。
type Sink interface {
	Write(ctx context.Context, recs []SensitivityRecord) error
}

// Drain 从流中按批读取记录写入 sink，返回写入条数。
func Drain(ctx context.Context, s Stream, sink Sink, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	total := 0
	batch := make([]SensitivityRecord, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := sink.Write(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		rec, ok := s.Next()
		if !ok {
			break
		}
		batch = append(batch, rec)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	if se, ok := s.(interface{ Err() error }); ok && se.Err() != nil {
		return total, se.Err()
	}
	return total, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func csvRow(rec SensitivityRecord) []string {
	gamma := ""
	if rec.Gamma != nil {
		gamma = formatFloat(*rec.Gamma)
	}
	return []string{
		rec.TradeID,
		strconv.FormatBool(rec.IsPar),
		rec.Currency,
		formatFloat(rec.BaseNPV),
		rec.Key,
		rec.Desc,
		formatFloat(rec.Shift),
		formatFloat(rec.Delta),
		gamma,
	}
}

// WriteCSV 把流中全部记录写成 CSV，Gamma 缺失时留空。
func WriteCSV(w io.Writer, s Stream) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, xerrors.Internal("failed to write csv header", err)
	}
	n := 0
	for {
		rec, ok := s.Next()
		if !ok {
			break
		}
		if err := cw.Write(csvRow(rec)); err != nil {
			return n, xerrors.Internal("failed to write csv row", err)
		}
		n++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, xerrors.Internal("failed to flush csv", err)
	}
	if se, ok := s.(interface{ Err() error }); ok && se.Err() != nil {
		return n, se.Err()
	}
	return n, nil
}

// CSVSink 以 Sink 形式写 CSV，首批写入前输出表头。
type CSVSink struct {
	w       *csv.Writer
	header  bool
	metrics *metrics.Metrics
}

func NewCSVSink(w io.Writer, m *metrics.Metrics) *CSVSink {
	return &CSVSink{w: csv.NewWriter(w), metrics: m}
}

func (c *CSVSink) Write(_ context.Context, recs []SensitivityRecord) error {
	if !c.header {
		if err := c.w.Write(csvHeader); err != nil {
			return xerrors.Internal("failed to write csv header", err)
		}
		c.header = true
	}
	for _, rec := range recs {
		if err := c.w.Write(csvRow(rec)); err != nil {
			return xerrors.Internal("failed to write csv row", err)
		}
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return xerrors.Internal("failed to flush csv", err)
	}
	emitted(c.metrics, "csv", len(recs))
	return nil
}

func emitted(m *metrics.Metrics, sink string, n int) {
	if m != nil {
		m.RecordsEmitted.WithLabelValues(sink).Add(float64(n))
	}
}

// KafkaSink 以 JSON 发布记录，消息键为交易 id，同一交易落在同一分区。
type KafkaSink struct {
	producer *kafka.Producer
	metrics  *metrics.Metrics
}

func NewKafkaSink(p *kafka.Producer, m *metrics.Metrics) *KafkaSink {
	return &KafkaSink{producer: p, metrics: m}
}

func (k *KafkaSink) Write(ctx context.Context, recs []SensitivityRecord) error {
	batch := make([]kafka.Message, len(recs))
	for i, rec := range recs {
		v, err := json.Marshal(rec)
		if err != nil {
			return xerrors.Internal("failed to marshal sensitivity record", err)
		}
		batch[i] = kafka.Message{Key: []byte(rec.TradeID), Value: v}
	}
	if err := k.producer.PublishBatch(ctx, batch); err != nil {
		return err
	}
	emitted(k.metrics, "kafka", len(recs))
	return nil
}

// SensitivityRow 敏感度结果表的一行。
type SensitivityRow struct {
	ID        uint      `gorm:"primaryKey"`
	RunID     string    `gorm:"size:64;index:idx_run_trade"`
	TradeID   string    `gorm:"size:128;index:idx_run_trade"`
	IsPar     bool      `gorm:"not null"`
	Currency  string    `gorm:"size:3"`
	BaseNPV   float64   `gorm:"column:base_npv"`
	Factor    string    `gorm:"size:256"`
	Desc      string    `gorm:"size:256"`
	ShiftSize float64   `gorm:"not null"`
	Delta     float64   `gorm:"not null"`
	Gamma     *float64  `gorm:"default:null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (SensitivityRow) TableName() string { return "sensitivity_records" }

// RecordRepository 按运行 id 写入和查询敏感度记录。
type RecordRepository struct {
	repo    database.Repository[SensitivityRow]
	runID   string
	metrics *metrics.Metrics
}

func NewRecordRepository(repo database.Repository[SensitivityRow], runID string, m *metrics.Metrics) *RecordRepository {
	return &RecordRepository{repo: repo, runID: runID, metrics: m}
}

func (r *RecordRepository) Write(ctx context.Context, recs []SensitivityRecord) error {
	rows := make([]SensitivityRow, len(recs))
	for i, rec := range recs {
		rows[i] = SensitivityRow{
			RunID:     r.runID,
			TradeID:   rec.TradeID,
			IsPar:     rec.IsPar,
			Currency:  rec.Currency,
			BaseNPV:   rec.BaseNPV,
			Factor:    rec.Key,
			Desc:      rec.Desc,
			ShiftSize: rec.Shift,
			Delta:     rec.Delta,
			Gamma:     rec.Gamma,
		}
	}
	if err := r.repo.CreateInBatches(ctx, rows, len(rows)); err != nil {
		return err
	}
	emitted(r.metrics, "database", len(recs))
	return nil
}

// Records 读回本次运行的记录，按写入顺序。
func (r *RecordRepository) Records(ctx context.Context) ([]SensitivityRecord, error) {
	rows, err := r.repo.Find(ctx, map[string]any{"run_id": r.runID}, "id")
	if err != nil {
		return nil, err
	}
	out := make([]SensitivityRecord, len(rows))
	for i, row := range rows {
		out[i] = SensitivityRecord{
			TradeID:  row.TradeID,
			IsPar:    row.IsPar,
			Currency: row.Currency,
			BaseNPV:  row.BaseNPV,
			Key:      row.Factor,
			Desc:     row.Desc,
			Shift:    row.ShiftSize,
			Delta:    row.Delta,
			Gamma:    row.Gamma,
		}
	}
	return out, nil
}

// Purge 删除本次运行的记录。
func (r *RecordRepository) Purge(ctx context.Context) (int64, error) {
	return r.repo.DeleteWhere(ctx, map[string]any{"run_id": r.runID})
}
