// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"

	"github.com/amirphl/counter-app/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// CounterRepository is the counter store. Every mutating call is a single
// transaction whose write is one atomic upsert on the name key.
type CounterRepository interface {
	Repository[models.Counter, models.CounterFilter]
	ByName(ctx context.Context, name string) (*models.Counter, error)
	GetOrCreate(ctx context.Context, name string) (*models.Counter, error)
	Increment(ctx context.Context, name string) (*models.Counter, error)
	Decrement(ctx context.Context, name string) (*models.Counter, error)
	Reset(ctx context.Context, name string) (*models.Counter, error)
}
