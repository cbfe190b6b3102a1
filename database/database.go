// Package database 提供敏感度结果入库所用的 GORM 连接封装。
package database

import (
	"context"
	"time"

	"gorm.io/driver/clickhouse"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/wyfcoding/riskengine/breaker"
	"github.com/wyfcoding/riskengine/config"
	"github.com/wyfcoding/riskengine/logging"
	"github.com/wyfcoding/riskengine/metrics"
	"github.com/wyfcoding/riskengine/xerrors"
)

const defaultSlowThreshold = 200 * time.Millisecond

// DB 封装了 GORM 实例与熔断器.
type DB struct {
	*gorm.DB
	breaker *breaker.Breaker
	logger  *logging.Logger
}

// Dialector 按驱动名构造方言.
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "mysql":
		return mysql.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "clickhouse":
		return clickhouse.Open(dsn), nil
	default:
		return nil, xerrors.Configuration("unsupported database driver %q", driver)
	}
}

// NewDB 打开连接、注册 otel 插件并挂上熔断器.
func NewDB(cfg config.DatabaseConfig, cbCfg config.CircuitBreakerConfig, logger *logging.Logger, m *metrics.Metrics) (*DB, error) {
	dialer, err := Dialector(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return Open(dialer, cfg, cbCfg, logger, m)
}

// Open 使用给定方言打开连接，测试中可注入任意 gorm.Dialector.
func Open(dialer gorm.Dialector, cfg config.DatabaseConfig, cbCfg config.CircuitBreakerConfig, logger *logging.Logger, m *metrics.Metrics) (*DB, error) {
	logger = logging.Component(logger, "database")
	slow := cfg.SlowThreshold
	if slow <= 0 {
		slow = defaultSlowThreshold
	}

	gormDB, err := gorm.Open(dialer, &gorm.Config{
		Logger:      logging.NewGormLogger(logger, slow),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, xerrors.Internal("failed to open database connection", err)
	}
	if err := gormDB.Use(tracing.NewPlugin()); err != nil {
		return nil, xerrors.Internal("failed to register gorm otel plugin", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, xerrors.Internal("failed to get underlying sql.DB", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	cb := breaker.NewBreaker(breaker.Settings{Name: "database-" + cfg.Driver, Config: cbCfg}, m, logger)
	logger.Info("database connected", "driver", cfg.Driver)

	return &DB{DB: gormDB, breaker: cb, logger: logger}, nil
}

// Transaction 带熔断保护的事务.
func (db *DB) Transaction(ctx context.Context, fc func(tx *gorm.DB) error) error {
	return db.breaker.Execute(func() error {
		if err := db.DB.WithContext(ctx).Transaction(fc); err != nil {
			return xerrors.Wrap(err, xerrors.ErrInternal, "transaction failed")
		}
		return nil
	})
}

// Close 关闭底层连接池.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
