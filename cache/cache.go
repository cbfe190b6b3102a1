// Package cache 提供进程内缓存抽象，用于平价敏感度等可重复计算结果的记忆化。
package cache

import (
	"context"

	"github.com/wyfcoding/riskengine/xerrors"
)

// ErrMiss 键不存在或已过期。
var ErrMiss = xerrors.New(xerrors.ErrNotFound, 404, "cache miss", "", nil)

// Cache 缓存接口，值以 JSON 编码存储。
type Cache interface {
	Get(ctx context.Context, key string, value any) error
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}
