// Package runid 为重估运行生成按时间递增的唯一标识，用作立方体存储名与敏感度记录的运行号。
package runid

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sony/sonyflake"

	"github.com/wyfcoding/riskengine/config"
	"github.com/wyfcoding/riskengine/datetime"
	"github.com/wyfcoding/riskengine/xerrors"
)

// Generator 返回十进制字符串形式的运行标识。
type Generator interface {
	Next() (string, error)
}

var defaultStart = datetime.Date(2020, time.January, 1)

// Sonyflake 39 位 10ms 时间戳、8 位序号、16 位机器号。
type Sonyflake struct {
	sf *sonyflake.Sonyflake
}

// NewSonyflake start 为零值时取 2020-01-01，不能晚于当前时间。
func NewSonyflake(machineID uint16, start time.Time) (*Sonyflake, error) {
	if start.IsZero() {
		start = defaultStart
	}
	sf, err := sonyflake.New(sonyflake.Settings{
		StartTime: start,
		MachineID: func() (uint16, error) { return machineID, nil },
	})
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.ErrConfiguration, "create sonyflake")
	}
	return &Sonyflake{sf: sf}, nil
}

func (g *Sonyflake) Next() (string, error) {
	id, err := g.sf.NextID()
	if err != nil {
		return "", xerrors.Internal("sonyflake next id", err)
	}
	return strconv.FormatUint(id, 10), nil
}

// Snowflake 41 位毫秒时间戳、10 位节点号、12 位序号。
type Snowflake struct {
	node *snowflake.Node
}

// NewSnowflake start 非零时改写进程级 snowflake.Epoch。
func NewSnowflake(node int64, start time.Time) (*Snowflake, error) {
	if !start.IsZero() {
		snowflake.Epoch = start.UnixMilli()
	}
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.ErrConfiguration, "create snowflake node")
	}
	return &Snowflake{node: n}, nil
}

func (g *Snowflake) Next() (string, error) {
	return g.node.Generate().String(), nil
}

// New 按配置构造生成器，未指定类型时使用 sonyflake。
func New(cfg config.RunIDConfig) (Generator, error) {
	var start time.Time
	if cfg.StartTime != "" {
		st, err := datetime.ParseDate(cfg.StartTime)
		if err != nil {
			return nil, xerrors.Wrap(err, xerrors.ErrConfiguration, "run_id start_time")
		}
		start = st
	}
	switch cfg.Generator {
	case "", "sonyflake":
		if cfg.MachineID < 0 || cfg.MachineID > 65535 {
			return nil, xerrors.Configuration("sonyflake machine_id %d outside [0, 65535]", cfg.MachineID)
		}
		g, err := NewSonyflake(uint16(cfg.MachineID), start)
		if err != nil {
			return nil, err
		}
		slog.Debug("run id generator initialized", "generator", "sonyflake", "machine_id", cfg.MachineID)
		return g, nil
	case "snowflake":
		g, err := NewSnowflake(cfg.MachineID, start)
		if err != nil {
			return nil, err
		}
		slog.Debug("run id generator initialized", "generator", "snowflake", "machine_id", cfg.MachineID)
		return g, nil
	default:
		return nil, xerrors.Configuration("unknown run id generator %q", cfg.Generator)
	}
}
