package repo

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("record not found")

// Record is anything stored by id.
type Record interface {
	RecordID() string
}

// Repository is a plain key-value store. No transactions span multiple calls.
type Repository[T Record] interface {
	Get(ctx context.Context, id string) (T, error)
	Put(ctx context.Context, rec T) error
	Count(ctx context.Context) (int64, error)
	List(ctx context.Context) ([]T, error)
	Delete(ctx context.Context, id string) error
}
