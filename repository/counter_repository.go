package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/amirphl/counter-app/models"
	"github.com/amirphl/counter-app/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CounterRepositoryImpl implements CounterRepository interface
type CounterRepositoryImpl struct {
	*BaseRepository[models.Counter, models.CounterFilter]
}

// NewCounterRepository creates a new counter repository
func NewCounterRepository(db *gorm.DB) CounterRepository {
	return &CounterRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Counter, models.CounterFilter](db),
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ByName retrieves a counter by name, nil if it does not exist
func (r *CounterRepositoryImpl) ByName(ctx context.Context, name string) (*models.Counter, error) {
	return counterByName(r.getDB(ctx), name)
}

// GetOrCreate returns the counter for name, inserting it with value 0 if absent
func (r *CounterRepositoryImpl) GetOrCreate(ctx context.Context, name string) (*models.Counter, error) {
	var counter *models.Counter
	err := r.withWriteTx(ctx, func(tx *gorm.DB) error {
		row := models.Counter{Name: name}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("failed to create counter %q: %w", name, err)
		}

		found, err := counterByName(tx, name)
		if err != nil {
			return err
		}
		if found == nil {
			return fmt.Errorf("counter %q missing after create", name)
		}
		counter = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counter, nil
}

// Increment adds one to the counter, creating it with value 1 if absent
func (r *CounterRepositoryImpl) Increment(ctx context.Context, name string) (*models.Counter, error) {
	return r.upsert(ctx, name, 1, gorm.Expr(models.Counter{}.TableName()+".value + ?", 1))
}

// Decrement subtracts one from the counter, creating it with value -1 if absent
func (r *CounterRepositoryImpl) Decrement(ctx context.Context, name string) (*models.Counter, error) {
	return r.upsert(ctx, name, -1, gorm.Expr(models.Counter{}.TableName()+".value - ?", 1))
}

// Reset sets the counter to 0, creating it with value 0 if absent
func (r *CounterRepositoryImpl) Reset(ctx context.Context, name string) (*models.Counter, error) {
	return r.upsert(ctx, name, 0, 0)
}

// upsert inserts name with the initial value or, when the name exists, applies
// next to the stored value and bumps the version in the same statement. The
// row is read back inside the transaction, where the upsert still holds its
// row lock.
func (r *CounterRepositoryImpl) upsert(ctx context.Context, name string, initial int64, next any) (*models.Counter, error) {
	var counter *models.Counter
	err := r.withWriteTx(ctx, func(tx *gorm.DB) error {
		now := utils.UTCNow()
		row := models.Counter{
			Name:      name,
			Value:     initial,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		table := models.Counter{}.TableName()
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]any{
				"value":      next,
				"version":    gorm.Expr(table + ".version + 1"),
				"updated_at": now,
			}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("failed to upsert counter %q: %w", name, err)
		}

		found, err := counterByName(tx, name)
		if err != nil {
			return err
		}
		if found == nil {
			return fmt.Errorf("counter %q missing after upsert", name)
		}
		counter = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counter, nil
}

func counterByName(db *gorm.DB, name string) (*models.Counter, error) {
	var row models.Counter
	err := db.Where("name = ?", name).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find counter %q: %w", name, err)
	}
	return &row, nil
}

// applyFilter applies filter criteria to a GORM query
func (r *CounterRepositoryImpl) applyFilter(query *gorm.DB, filter models.CounterFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.Name != nil {
		query = query.Where("name = ?", *filter.Name)
	}
	if filter.NamePrefix != nil && *filter.NamePrefix != "" {
		query = query.Where(`name LIKE ? ESCAPE '\'`, likeEscaper.Replace(*filter.NamePrefix)+"%")
	}
	if filter.UpdatedAfter != nil {
		query = query.Where("updated_at > ?", *filter.UpdatedAfter)
	}
	if filter.UpdatedBefore != nil {
		query = query.Where("updated_at < ?", *filter.UpdatedBefore)
	}
	return query
}

// ByFilter retrieves counters based on filter criteria
func (r *CounterRepositoryImpl) ByFilter(ctx context.Context, filter models.CounterFilter, orderBy string, limit, offset int) ([]*models.Counter, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Counter{}), filter)

	if orderBy == "" {
		orderBy = "name ASC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.Counter
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list counters: %w", err)
	}
	return rows, nil
}

// Count returns number of counters matching filter
func (r *CounterRepositoryImpl) Count(ctx context.Context, filter models.CounterFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Counter{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count counters: %w", err)
	}
	return count, nil
}

// Exists checks if any counter matches the filter
func (r *CounterRepositoryImpl) Exists(ctx context.Context, filter models.CounterFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
