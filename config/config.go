// Package config 提供风险引擎的统一配置加载：TOML 文件、环境变量覆盖、结构校验与热更新。
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gorm.io/gorm/logger"

	"github.com/wyfcoding/riskengine/datetime"
	"github.com/wyfcoding/riskengine/logging"
)

// Config 风险引擎顶级配置。
type Config struct {
	Version        string               `mapstructure:"version"        toml:"version"`
	Log            LogConfig            `mapstructure:"log"            toml:"log"`
	Metrics        MetricsConfig        `mapstructure:"metrics"        toml:"metrics"`
	Simulation     SimulationConfig     `mapstructure:"simulation"     toml:"simulation"`
	Sensitivity    SensitivityConfig    `mapstructure:"sensitivity"    toml:"sensitivity"`
	ParConversion  ParConversionConfig  `mapstructure:"par_conversion" toml:"par_conversion"`
	Simm           SimmConfig           `mapstructure:"simm"           toml:"simm"`
	Stress         StressConfig         `mapstructure:"stress"         toml:"stress"`
	Cube           CubeConfig           `mapstructure:"cube"           toml:"cube"`
	Concurrency    ConcurrencyConfig    `mapstructure:"concurrency"    toml:"concurrency"`
	Database       DatabaseConfig       `mapstructure:"database"       toml:"database"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuitbreaker" toml:"circuitbreaker"`
	Minio          MinioConfig          `mapstructure:"minio"          toml:"minio"`
	Kafka          KafkaConfig          `mapstructure:"kafka"          toml:"kafka"`
	BigCache       BigCacheConfig       `mapstructure:"bigcache"       toml:"bigcache"`
	Tracing        TracingConfig        `mapstructure:"tracing"        toml:"tracing"`
	RunID          RunIDConfig          `mapstructure:"run_id"         toml:"run_id"`
}

// LogConfig 定义日志输出、级别与切割策略。
type LogConfig struct {
	Level      string `mapstructure:"level"       toml:"level"  validate:"omitempty,oneof=debug info warn error"`
	Format     string `mapstructure:"format"      toml:"format" validate:"omitempty,oneof=json text"`
	Output     string `mapstructure:"output"      toml:"output" validate:"omitempty,oneof=stdout stderr file both"`
	File       string `mapstructure:"file"        toml:"file"`
	MaxSize    int    `mapstructure:"max_size"    toml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"     toml:"max_age"`
	Compress   bool   `mapstructure:"compress"    toml:"compress"`
}

// LoggingConfig 转换为 logging.Config。
func (c LogConfig) LoggingConfig(service, module string) logging.Config {
	return logging.Config{
		Service:    service,
		Module:     module,
		Level:      c.Level,
		Format:     c.Format,
		Output:     c.Output,
		File:       c.File,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
	}
}

// MetricsConfig 普罗米修斯指标暴露配置。
type MetricsConfig struct {
	Port    string `mapstructure:"port"    toml:"port"`
	Path    string `mapstructure:"path"    toml:"path"`
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
}

// SimulationConfig 蒙特卡洛情景模拟参数。
type SimulationConfig struct {
	AsOf         string              `mapstructure:"asof"         toml:"asof"         validate:"required,date"`
	Grid         string              `mapstructure:"grid"         toml:"grid"         validate:"required,periods"`
	Samples      int                 `mapstructure:"samples"      toml:"samples"      validate:"min=1"`
	Depth        int                 `mapstructure:"depth"        toml:"depth"        validate:"min=0"`
	Seed         uint64              `mapstructure:"seed"         toml:"seed"`
	Factors      []FactorConfig      `mapstructure:"factors"      toml:"factors"      validate:"dive"`
	Correlations []CorrelationConfig `mapstructure:"correlations" toml:"correlations" validate:"dive"`
}

// FactorConfig 单个状态变量的动态与映射到的风险因子。
type FactorConfig struct {
	Name           string   `mapstructure:"name"            toml:"name"            validate:"required"`
	Process        string   `mapstructure:"process"         toml:"process"         validate:"oneof=gbm ou"`
	Initial        float64  `mapstructure:"initial"         toml:"initial"`
	Drift          float64  `mapstructure:"drift"           toml:"drift"`
	Volatility     float64  `mapstructure:"volatility"      toml:"volatility"      validate:"gte=0"`
	MeanReversion  float64  `mapstructure:"mean_reversion"  toml:"mean_reversion"  validate:"gte=0"`
	LongTermMean   float64  `mapstructure:"long_term_mean"  toml:"long_term_mean"`
	Keys           []string `mapstructure:"keys"            toml:"keys"`
	DiscountTenors []string `mapstructure:"discount_tenors" toml:"discount_tenors"`
	Numeraire      bool     `mapstructure:"numeraire"       toml:"numeraire"`
}

// CorrelationConfig 两个状态变量间的相关系数。
type CorrelationConfig struct {
	First  string  `mapstructure:"first"  toml:"first"  validate:"required"`
	Second string  `mapstructure:"second" toml:"second" validate:"required"`
	Rho    float64 `mapstructure:"rho"    toml:"rho"    validate:"gte=-1,lte=1"`
}

// SensitivityConfig 敏感度情景的冲击参数。
type SensitivityConfig struct {
	Shifts       []ShiftConfig `mapstructure:"shifts"        toml:"shifts"        validate:"dive"`
	ComputeGamma bool          `mapstructure:"compute_gamma" toml:"compute_gamma"`
}

// ShiftConfig 某一风险因子类型的冲击大小与方式。
type ShiftConfig struct {
	KeyType string  `mapstructure:"key_type" toml:"key_type" validate:"required"`
	Size    float64 `mapstructure:"size"     toml:"size"     validate:"gt=0"`
	Type    string  `mapstructure:"type"     toml:"type"     validate:"omitempty,oneof=absolute relative"`
}

// ParConversionConfig 零息转平价的校准工具映射与容错开关。
type ParConversionConfig struct {
	Instruments     map[string][]string `mapstructure:"instruments"       toml:"instruments"`
	DisabledTypes   []string            `mapstructure:"disabled_types"    toml:"disabled_types"`
	ContinueOnError bool                `mapstructure:"continue_on_error" toml:"continue_on_error"`
	ParShift        float64             `mapstructure:"par_shift"         toml:"par_shift"   validate:"gte=0"`
	Cache           bool                `mapstructure:"cache"             toml:"cache"`
}

// SimmConfig 动态 SIMM 参数。
type SimmConfig struct {
	CalculationCurrency string   `mapstructure:"calculation_currency" toml:"calculation_currency" validate:"omitempty,len=3"`
	Currencies          []string `mapstructure:"currencies"           toml:"currencies"`
	ParInstrument       string   `mapstructure:"par_instrument"       toml:"par_instrument"`
}

// StressConfig 压力测试参数。
type StressConfig struct {
	File        string `mapstructure:"file"            toml:"file"`
	ParIRCurves bool   `mapstructure:"par_ir_curves"   toml:"par_ir_curves"`
	ParCapFloor bool   `mapstructure:"par_cap_floor"   toml:"par_cap_floor"`
	ParCredit   bool   `mapstructure:"par_credit"      toml:"par_credit"`
}

// CubeConfig NPV 立方体存储与联合方式。
type CubeConfig struct {
	Store           string  `mapstructure:"store"            toml:"store"     validate:"omitempty,oneof=file minio"`
	Dir             string  `mapstructure:"dir"              toml:"dir"`
	Prefix          string  `mapstructure:"prefix"           toml:"prefix"`
	Precision       string  `mapstructure:"precision"        toml:"precision" validate:"omitempty,oneof=float32 float64"`
	Accumulator     string  `mapstructure:"accumulator"      toml:"accumulator"`
	AccumulatorInit float64 `mapstructure:"accumulator_init" toml:"accumulator_init"`
}

// ConcurrencyConfig 并行重估参数。
type ConcurrencyConfig struct {
	Workers int `mapstructure:"workers" toml:"workers" validate:"gte=0"`
}

// DatabaseConfig 敏感度结果库连接参数。
type DatabaseConfig struct {
	Driver          string          `mapstructure:"driver"            toml:"driver"   validate:"omitempty,oneof=mysql postgres clickhouse"`
	DSN             string          `mapstructure:"dsn"               toml:"dsn"`
	ConnMaxLifetime time.Duration   `mapstructure:"conn_max_lifetime" toml:"conn_max_lifetime"`
	SlowThreshold   time.Duration   `mapstructure:"slow_threshold"    toml:"slow_threshold"`
	LogLevel        logger.LogLevel `mapstructure:"log_level"         toml:"log_level"`
	MaxIdleConns    int             `mapstructure:"max_idle_conns"    toml:"max_idle_conns"`
	MaxOpenConns    int             `mapstructure:"max_open_conns"    toml:"max_open_conns"`
}

// CircuitBreakerConfig 熔断保护策略。
type CircuitBreakerConfig struct {
	Interval    time.Duration `mapstructure:"interval"     toml:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"      toml:"timeout"`
	MaxRequests uint32        `mapstructure:"max_requests" toml:"max_requests"`
	Enabled     bool          `mapstructure:"enabled"      toml:"enabled"`
}

// MinioConfig 立方体归档用的 S3 兼容对象存储。
type MinioConfig struct {
	Endpoint        string `mapstructure:"endpoint"          toml:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"     toml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" toml:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"       toml:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"           toml:"use_ssl"`
}

// KafkaConfig 敏感度记录推送参数。
type KafkaConfig struct {
	Topic        string        `mapstructure:"topic"         toml:"topic"`
	Brokers      []string      `mapstructure:"brokers"       toml:"brokers"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" toml:"write_timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"  toml:"max_attempts"`
	RequiredAcks int           `mapstructure:"required_acks" toml:"required_acks"`
	BatchSize    int           `mapstructure:"batch_size"    toml:"batch_size"`
	Async        bool          `mapstructure:"async"         toml:"async"`
}

// BigCacheConfig 平价敏感度本地缓存参数。
type BigCacheConfig struct {
	LifeWindow       time.Duration `mapstructure:"life_window"         toml:"life_window"`
	HardMaxCacheSize int           `mapstructure:"hard_max_cache_size" toml:"hard_max_cache_size"`
}

// TracingConfig OTLP 追踪导出参数。
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
	ServiceName  string  `mapstructure:"service_name"  toml:"service_name"  validate:"required_if=Enabled true"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" toml:"otlp_endpoint" validate:"required_if=Enabled true"`
	SampleRatio  float64 `mapstructure:"sample_ratio"  toml:"sample_ratio"  validate:"gte=0,lte=1"`
}

// RunIDConfig 运行标识生成器；machine_id 在 snowflake 下不超过 1023。
type RunIDConfig struct {
	Generator string `mapstructure:"generator"  toml:"generator"  validate:"omitempty,oneof=sonyflake snowflake"`
	MachineID int64  `mapstructure:"machine_id" toml:"machine_id" validate:"gte=0,lte=65535"`
	StartTime string `mapstructure:"start_time" toml:"start_time" validate:"omitempty,date"`
}

var (
	mu        sync.RWMutex
	vInstance = viper.New()
	onReload  []func(*Config)
	validate  = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := datetime.ParseDate(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("periods", func(fl validator.FieldLevel) bool {
		ps, err := datetime.ParsePeriods(fl.Field().String())
		return err == nil && len(ps) > 0
	})
	return v
}

// Validate 对任意配置结构执行校验。
func Validate(conf any) error {
	if err := validate.Struct(conf); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// RegisterReloadHook 注册配置热更新回调。
func RegisterReloadHook(hook func(*Config)) {
	if hook == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	onReload = append(onReload, hook)
}

// runReloadHooks 在锁外按注册顺序调用回调，回调内可再注册。
func runReloadHooks(cfg *Config) {
	mu.RLock()
	hooks := slices.Clone(onReload)
	mu.RUnlock()
	for _, hook := range hooks {
		hook(cfg)
	}
}

// Read 读取并校验配置，不开启文件监听。
func Read(path string, conf any) error {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config error: %w", err)
	}
	if err := v.Unmarshal(conf); err != nil {
		return fmt.Errorf("unmarshal config error: %w", err)
	}
	if err := Validate(conf); err != nil {
		return err
	}

	mu.Lock()
	vInstance = v
	mu.Unlock()
	return nil
}

// Load 读取配置并开启热更新；热更新会同步日志级别并触发回调。
func Load(path string, conf any) error {
	if err := Read(path, conf); err != nil {
		return err
	}

	v := GetViper()
	v.OnConfigChange(func(event fsnotify.Event) {
		slog.Info("detecting config change", "file", event.Name)
		const debounceTimeout = 500 * time.Millisecond
		time.Sleep(debounceTimeout)

		if err := v.Unmarshal(conf); err != nil {
			slog.Error("reload config unmarshal failed", "error", err)
			return
		}
		if lvl, ok := logLevelOf(conf); ok {
			logging.SetLevel(lvl)
		}
		if err := Validate(conf); err != nil {
			slog.Error("reload config validation failed", "error", err)
			return
		}
		slog.Info("config hot-reloaded and validated successfully")

		if cfg, ok := conf.(*Config); ok {
			runReloadHooks(cfg)
		}
	})
	v.WatchConfig()
	return nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("RISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func logLevelOf(conf any) (string, bool) {
	if c, ok := conf.(*Config); ok {
		return c.Log.Level, true
	}
	val := reflect.ValueOf(conf)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return "", false
	}
	logField := val.FieldByName("Log")
	if !logField.IsValid() || logField.Kind() != reflect.Struct {
		return "", false
	}
	levelField := logField.FieldByName("Level")
	if levelField.IsValid() && levelField.Kind() == reflect.String {
		return levelField.String(), true
	}
	return "", false
}

// PrintWithMask 脱敏打印当前配置。
func PrintWithMask(conf any) {
	data, err := json.Marshal(conf)
	if err != nil {
		slog.Error("failed to marshal config for printing", "error", err)
		return
	}

	var configMap map[string]any
	if err := json.Unmarshal(data, &configMap); err != nil {
		slog.Error("failed to unmarshal config for masking", "error", err)
		return
	}

	mask(configMap)

	maskedJSON, err := json.MarshalIndent(configMap, "  ", "  ")
	if err != nil {
		slog.Error("failed to marshal masked config", "error", err)
		return
	}

	slog.Info("current effective configuration", "config", string(maskedJSON))
}

func mask(configMap map[string]any) {
	sensitiveKeys := []string{"password", "secret", "dsn", "accesskey", "token"}

	for key, val := range configMap {
		if subMap, ok := val.(map[string]any); ok {
			mask(subMap)
			continue
		}
		if slice, ok := val.([]any); ok {
			for _, item := range slice {
				if itemMap, ok := item.(map[string]any); ok {
					mask(itemMap)
				}
			}
			continue
		}
		lower := strings.ToLower(key)
		for _, sensitiveKey := range sensitiveKeys {
			if strings.Contains(lower, sensitiveKey) {
				configMap[key] = "******"
				break
			}
		}
	}
}

// GetViper 返回最近一次加载使用的 Viper 实例。
func GetViper() *viper.Viper {
	mu.RLock()
	defer mu.RUnlock()
	return vInstance
}
