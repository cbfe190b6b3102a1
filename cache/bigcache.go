package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/wyfcoding/riskengine/config"
	"github.com/wyfcoding/riskengine/metrics"
	"github.com/wyfcoding/riskengine/xerrors"
)

// BigCache 基于 allegro/bigcache 的 Cache 实现，所有键共用一个全局 TTL。
type BigCache struct {
	name    string
	cache   *bigcache.BigCache
	metrics *metrics.Metrics
}

// NewBigCache 按配置创建缓存；LifeWindow 为 0 时默认 1 小时。
// m 可为 nil，此时不记录命中率。
func NewBigCache(name string, cfg config.BigCacheConfig, m *metrics.Metrics) (*BigCache, error) {
	ttl := cfg.LifeWindow
	if ttl <= 0 {
		ttl = time.Hour
	}
	bc := bigcache.DefaultConfig(ttl)
	bc.HardMaxCacheSize = cfg.HardMaxCacheSize
	bc.CleanWindow = 5 * time.Minute
	bc.Verbose = false

	c, err := bigcache.New(context.Background(), bc)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.ErrConfiguration, "init bigcache")
	}
	return &BigCache{name: name, cache: c, metrics: m}, nil
}

func (c *BigCache) observe(result string) {
	if c.metrics != nil {
		c.metrics.CacheRequests.WithLabelValues(c.name, result).Inc()
	}
}

// Get 读取并反序列化到 value（必须是指针）。
func (c *BigCache) Get(_ context.Context, key string, value any) error {
	data, err := c.cache.Get(key)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			c.observe("miss")
			return xerrors.Derive(ErrMiss, "%s", key)
		}
		return err
	}
	c.observe("hit")
	return json.Unmarshal(data, value)
}

func (c *BigCache) Set(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.cache.Set(key, data)
}

// Delete 删除不存在的键不报错。
func (c *BigCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		if err := c.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
			return err
		}
	}
	return nil
}

func (c *BigCache) Exists(_ context.Context, key string) (bool, error) {
	_, err := c.cache.Get(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bigcache.ErrEntryNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Len 当前条目数。
func (c *BigCache) Len() int { return c.cache.Len() }

func (c *BigCache) Close() error {
	return c.cache.Close()
}
