package database

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/riskengine/xerrors"
)

// Repository 通用仓储接口，结果表只追加、按条件查询与整批替换.
type Repository[T any] interface {
	// CreateInBatches 分批插入.
	CreateInBatches(ctx context.Context, entities []T, batchSize int) error
	// Upsert 主键或唯一索引冲突时整行覆盖.
	Upsert(ctx context.Context, entities []T) error
	// Find 按等值条件查询，conds 为 nil 时返回全部.
	Find(ctx context.Context, conds map[string]any, order string) ([]T, error)
	// DeleteWhere 按等值条件删除，返回删除行数.
	DeleteWhere(ctx context.Context, conds map[string]any) (int64, error)
}

// GormRepository 基于 DB 的泛型仓储，写操作走熔断事务.
type GormRepository[T any] struct {
	db *DB
}

// NewGormRepository 创建一个新的 GORM 泛型仓储实例.
func NewGormRepository[T any](db *DB) *GormRepository[T] {
	return &GormRepository[T]{db: db}
}

// AutoMigrate 建表或补齐列.
func (r *GormRepository[T]) AutoMigrate(ctx context.Context) error {
	var entity T
	if err := r.db.WithContext(ctx).AutoMigrate(&entity); err != nil {
		return xerrors.Internal("failed to migrate table", err)
	}
	return nil
}

func (r *GormRepository[T]) CreateInBatches(ctx context.Context, entities []T, batchSize int) error {
	if len(entities) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return r.db.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.CreateInBatches(entities, batchSize).Error
	})
}

func (r *GormRepository[T]) Upsert(ctx context.Context, entities []T) error {
	if len(entities) == 0 {
		return nil
	}
	return r.db.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(entities).Error
	})
}

func (r *GormRepository[T]) Find(ctx context.Context, conds map[string]any, order string) ([]T, error) {
	var out []T
	q := r.db.WithContext(ctx)
	if len(conds) > 0 {
		q = q.Where(conds)
	}
	if order != "" {
		q = q.Order(order)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, xerrors.Internal("failed to query entities", err)
	}
	return out, nil
}

func (r *GormRepository[T]) DeleteWhere(ctx context.Context, conds map[string]any) (int64, error) {
	if len(conds) == 0 {
		return 0, xerrors.InvalidArg("refusing to delete without conditions")
	}
	var (
		entity T
		n      int64
	)
	err := r.db.Transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Where(conds).Delete(&entity)
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}
