package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/counter-app/app/dto"
	"github.com/amirphl/counter-app/app/services"
	"github.com/amirphl/counter-app/config"
	"github.com/amirphl/counter-app/models"
	"github.com/amirphl/counter-app/repository"
	"github.com/amirphl/counter-app/utils"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const exportBatchSize = 500

// CounterFlow defines the counter use cases.
// Absence of a counter is never an error: every operation creates it on demand.
type CounterFlow interface {
	GetOrCreateCounter(ctx context.Context, name string) (*dto.CounterResponse, error)
	GetCounterValue(ctx context.Context, name string) (int64, error)
	IncrementCounter(ctx context.Context, name string) (int64, error)
	DecrementCounter(ctx context.Context, name string) (int64, error)
	ResetCounter(ctx context.Context, name string) (int64, error)
	ListCounters(ctx context.Context, req *dto.ListCountersRequest) (*dto.ListCountersResponse, error)
	ExportCounters(ctx context.Context) (string, []byte, error)
}

// CounterFlowImpl implements CounterFlow
type CounterFlowImpl struct {
	counterRepo repository.CounterRepository
	cache       services.CounterCache // nil when caching is disabled
	cfg         config.CounterConfig
	logger      *zap.Logger
	locks       counterLocks
	stale       staleNames
}

// NewCounterFlow creates a new counter flow. cache may be nil.
func NewCounterFlow(
	counterRepo repository.CounterRepository,
	cache services.CounterCache,
	cfg config.CounterConfig,
	logger *zap.Logger,
) CounterFlow {
	if cfg.DefaultName == "" {
		cfg.DefaultName = utils.DefaultCounterName
	}
	return &CounterFlowImpl{
		counterRepo: counterRepo,
		cache:       cache,
		cfg:         cfg,
		logger:      logger,
	}
}

func (f *CounterFlowImpl) GetOrCreateCounter(ctx context.Context, name string) (_ *dto.CounterResponse, err error) {
	defer observe(opGetOrCreate, time.Now(), &err)

	name, err = NormalizeCounterName(name, f.cfg.DefaultName)
	if err != nil {
		return nil, err
	}

	counter, err := f.counterRepo.GetOrCreate(ctx, name)
	if err != nil {
		return nil, err
	}
	f.populateCache(ctx, counter)

	res := ToCounterDTO(*counter)
	return &res, nil
}

func (f *CounterFlowImpl) GetCounterValue(ctx context.Context, name string) (_ int64, err error) {
	defer observe(opGetValue, time.Now(), &err)

	name, err = NormalizeCounterName(name, f.cfg.DefaultName)
	if err != nil {
		return 0, err
	}

	if value, ok := f.cachedValue(ctx, name); ok {
		return value, nil
	}

	counter, err := f.counterRepo.GetOrCreate(ctx, name)
	if err != nil {
		return 0, err
	}
	f.populateCache(ctx, counter)
	return counter.Value, nil
}

func (f *CounterFlowImpl) IncrementCounter(ctx context.Context, name string) (int64, error) {
	return f.mutate(ctx, opIncrement, name, f.counterRepo.Increment)
}

func (f *CounterFlowImpl) DecrementCounter(ctx context.Context, name string) (int64, error) {
	return f.mutate(ctx, opDecrement, name, f.counterRepo.Decrement)
}

func (f *CounterFlowImpl) ResetCounter(ctx context.Context, name string) (int64, error) {
	return f.mutate(ctx, opReset, name, f.counterRepo.Reset)
}

// mutate applies one change to the store. The cached entry is evicted before
// the write and rewritten with the committed row afterwards; a name whose
// entry could not be rewritten is marked stale until an eviction succeeds.
func (f *CounterFlowImpl) mutate(ctx context.Context, operation, name string, apply func(context.Context, string) (*models.Counter, error)) (_ int64, err error) {
	defer observe(operation, time.Now(), &err)

	name, err = NormalizeCounterName(name, f.cfg.DefaultName)
	if err != nil {
		return 0, err
	}

	if f.cache != nil {
		// Orders mutations of one name within this process only. Writers in
		// other processes are ordered by the row version the cache compares.
		unlock := f.locks.lock(name)
		defer unlock()

		if cerr := f.cache.Delete(ctx, name); cerr != nil {
			f.cacheFailed("failed to invalidate cached counter value", name, cerr)
		}
	}

	counter, err := apply(ctx, name)
	if err != nil {
		f.logger.Error("counter operation failed",
			zap.String("operation", operation),
			zap.String("name", name),
			zap.String("request_id", utils.RequestIDFromContext(ctx)),
			zap.Error(err),
		)
		return 0, err
	}

	if f.cache != nil {
		if cerr := f.cache.Set(ctx, name, counter.Value, counter.Version); cerr != nil {
			f.stale.mark(name)
			f.cacheFailed("failed to update cached counter value", name, cerr)
		} else {
			f.stale.clear(name)
		}
	}

	f.logger.Debug("counter updated",
		zap.String("operation", operation),
		zap.String("name", name),
		zap.Int64("value", counter.Value),
		zap.Int64("version", counter.Version),
		zap.String("request_id", utils.RequestIDFromContext(ctx)),
	)
	return counter.Value, nil
}

func (f *CounterFlowImpl) ListCounters(ctx context.Context, req *dto.ListCountersRequest) (_ *dto.ListCountersResponse, err error) {
	defer observe(opList, time.Now(), &err)

	if req == nil {
		return nil, NewBusinessError("INVALID_REQUEST", "request is required", nil)
	}
	if req.Page < 1 {
		return nil, NewBusinessError("INVALID_PAGE", ErrInvalidPage.Error(), ErrInvalidPage)
	}
	if req.PageSize < 1 || req.PageSize > utils.MaxPageSize {
		return nil, NewBusinessError("INVALID_PAGE_SIZE", ErrInvalidPageSize.Error(), ErrInvalidPageSize)
	}

	filter := models.CounterFilter{}
	if req.Prefix != "" {
		filter.NamePrefix = &req.Prefix
	}

	total, err := f.counterRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	offset := (req.Page - 1) * req.PageSize
	rows, err := f.counterRepo.ByFilter(ctx, filter, "name ASC", req.PageSize, offset)
	if err != nil {
		return nil, err
	}

	items := make([]dto.CounterResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, ToCounterDTO(*row))
	}

	totalPages := int((total + int64(req.PageSize) - 1) / int64(req.PageSize))
	return &dto.ListCountersResponse{
		Items: items,
		Pagination: dto.PaginationInfo{
			CurrentPage: req.Page,
			PageSize:    req.PageSize,
			TotalItems:  total,
			TotalPages:  totalPages,
			HasNext:     req.Page < totalPages,
			HasPrevious: req.Page > 1,
		},
	}, nil
}

// ExportCounters renders every counter into an XLSX workbook
func (f *CounterFlowImpl) ExportCounters(ctx context.Context) (_ string, _ []byte, err error) {
	defer observe(opExport, time.Now(), &err)

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	sheet := "counters"
	if err := xl.SetSheetName(xl.GetSheetName(0), sheet); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to prepare Excel sheet", err)
	}

	header := []any{"id", "name", "value", "created_at", "updated_at"}
	if err := xl.SetSheetRow(sheet, "A1", &header); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel header", err)
	}

	rowIndex := 2
	for offset := 0; ; offset += exportBatchSize {
		rows, err := f.counterRepo.ByFilter(ctx, models.CounterFilter{}, "id ASC", exportBatchSize, offset)
		if err != nil {
			return "", nil, err
		}
		for _, row := range rows {
			record := []any{
				row.ID,
				row.Name,
				row.Value,
				utils.TimeToUTC(row.CreatedAt).Format(time.RFC3339),
				utils.TimeToUTC(row.UpdatedAt).Format(time.RFC3339),
			}
			cellRef, err := excelize.CoordinatesToCellName(1, rowIndex)
			if err != nil {
				return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to address Excel row", err)
			}
			if err := xl.SetSheetRow(sheet, cellRef, &record); err != nil {
				return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel row", err)
			}
			rowIndex++
		}
		if len(rows) < exportBatchSize {
			break
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}

	filename := fmt.Sprintf("counters_%s.xlsx", utils.UTCNowFormat("20060102T150405Z"))
	f.logger.Info("counters exported",
		zap.Int("rows", rowIndex-2),
		zap.String("filename", filename),
		zap.String("request_id", utils.RequestIDFromContext(ctx)),
	)
	return filename, buf.Bytes(), nil
}

func (f *CounterFlowImpl) cachedValue(ctx context.Context, name string) (int64, bool) {
	if f.cache == nil {
		return 0, false
	}
	if f.stale.has(name) && !f.evictStale(ctx, name) {
		counterCacheResults.WithLabelValues("bypass").Inc()
		return 0, false
	}

	value, ok, err := f.cache.Get(ctx, name)
	switch {
	case err != nil:
		f.cacheFailed("failed to read cached counter value", name, err)
		if !IsCacheNotAvailable(err) {
			// unreadable entry; the store repopulates it
			if derr := f.cache.Delete(ctx, name); derr != nil {
				f.stale.mark(name)
			}
		}
		return 0, false
	case ok:
		counterCacheResults.WithLabelValues("hit").Inc()
		return value, true
	default:
		counterCacheResults.WithLabelValues("miss").Inc()
		return 0, false
	}
}

// evictStale removes the entry of a name whose last write-back failed.
// It reports whether the cache may be used for that name again.
func (f *CounterFlowImpl) evictStale(ctx context.Context, name string) bool {
	unlock := f.locks.lock(name)
	defer unlock()

	if !f.stale.has(name) {
		return true
	}
	if err := f.cache.Delete(ctx, name); err != nil {
		f.cacheFailed("failed to invalidate cached counter value", name, err)
		return false
	}
	f.stale.clear(name)
	return true
}

// populateCache stores a row read from the store. The version check in the
// cache keeps it from replacing a value written by a newer mutation.
func (f *CounterFlowImpl) populateCache(ctx context.Context, counter *models.Counter) {
	if f.cache == nil || f.stale.has(counter.Name) {
		return
	}
	if err := f.cache.Set(ctx, counter.Name, counter.Value, counter.Version); err != nil {
		f.cacheFailed("failed to cache counter value", counter.Name, err)
	}
}

func (f *CounterFlowImpl) cacheFailed(msg, name string, err error) {
	counterCacheResults.WithLabelValues("error").Inc()
	f.logger.Warn(msg,
		zap.String("name", name),
		zap.Bool("unavailable", IsCacheNotAvailable(err)),
		zap.Error(err),
	)
}
