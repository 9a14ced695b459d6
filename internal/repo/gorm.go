package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRepository 基于 gorm 的实现, 主键列从模型的 schema 中解析
type GormRepository[T Record] struct {
	db *gorm.DB
	pk string
}

func NewGormRepository[T Record](db *gorm.DB) (*GormRepository[T], error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(new(T)); err != nil {
		return nil, fmt.Errorf("parse model schema: %w", err)
	}
	pk := stmt.Schema.PrioritizedPrimaryField
	if pk == nil {
		return nil, fmt.Errorf("model %s has no primary key", stmt.Schema.Name)
	}
	return &GormRepository[T]{db: db, pk: pk.DBName}, nil
}

func (r *GormRepository[T]) byID(id string) clause.Expression {
	return clause.Eq{Column: clause.Column{Name: r.pk}, Value: id}
}

func (r *GormRepository[T]) Get(ctx context.Context, id string) (T, error) {
	var rec T
	err := r.db.WithContext(ctx).Where(r.byID(id)).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rec, ErrNotFound
	}
	return rec, err
}

// Put 按主键 upsert
func (r *GormRepository[T]) Put(ctx context.Context, rec T) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}

func (r *GormRepository[T]) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(new(T)).Count(&n).Error
	return n, err
}

func (r *GormRepository[T]) List(ctx context.Context) ([]T, error) {
	var out []T
	err := r.db.WithContext(ctx).Find(&out).Error
	return out, err
}

func (r *GormRepository[T]) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where(r.byID(id)).Delete(new(T)).Error
}
