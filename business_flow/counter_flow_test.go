package businessflow

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/amirphl/counter-app/app/dto"
	"github.com/amirphl/counter-app/app/services"
	"github.com/amirphl/counter-app/config"
	"github.com/amirphl/counter-app/repository"
	testingutil "github.com/amirphl/counter-app/testing"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func newTestFlow(t *testing.T, testDB *testingutil.TestDB, cache services.CounterCache) CounterFlow {
	t.Helper()
	return NewCounterFlow(
		repository.NewCounterRepository(testDB.DB),
		cache,
		config.CounterConfig{DefaultName: "default"},
		zaptest.NewLogger(t),
	)
}

func newMiniredisCache(t *testing.T) (*services.RedisCounterCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rc.Close() })
	return services.NewRedisCounterCache(rc, config.CacheConfig{RedisPrefix: "test:", DefaultTTL: time.Minute}), mr
}

func TestNormalizeCounterName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain", input: "visits", want: "visits"},
		{name: "trimmed", input: "  visits\t", want: "visits"},
		{name: "empty uses default", input: "", want: "default"},
		{name: "blank uses default", input: "   ", want: "default"},
		{name: "max length", input: strings.Repeat("a", 100), want: strings.Repeat("a", 100)},
		{name: "multibyte counts runes", input: strings.Repeat("é", 100), want: strings.Repeat("é", 100)},
		{name: "too long", input: strings.Repeat("a", 101), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeCounterName(tt.input, "default")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsInvalidCounterName(err))
				be, ok := AsBusinessError(err)
				require.True(t, ok)
				assert.Equal(t, "INVALID_COUNTER_NAME", be.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCounterFlow(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newTestFlow(t, testDB, nil)
		ctx := testingutil.CreateTestContext()

		t.Run("GetValueFreshCreatesRow", func(t *testing.T) {
			value, err := flow.GetCounterValue(ctx, "fresh")
			require.NoError(t, err)
			assert.Equal(t, int64(0), value)

			row, err := testDB.CounterRow("fresh")
			require.NoError(t, err)
			assert.Equal(t, int64(0), row.Value)
		})

		t.Run("GetOrCreateCounter", func(t *testing.T) {
			res, err := flow.GetOrCreateCounter(ctx, "record")
			require.NoError(t, err)
			assert.Equal(t, "record", res.Name)
			assert.Equal(t, int64(0), res.Value)
			assert.NotZero(t, res.ID)
			_, err = time.Parse(time.RFC3339, res.CreatedAt)
			assert.NoError(t, err)
		})

		t.Run("DefaultName", func(t *testing.T) {
			value, err := flow.IncrementCounter(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, int64(1), value)

			value, err = flow.GetCounterValue(ctx, "default")
			require.NoError(t, err)
			assert.Equal(t, int64(1), value)

			value, err = flow.ResetCounter(ctx, "  ")
			require.NoError(t, err)
			assert.Equal(t, int64(0), value)
		})

		t.Run("ScenarioX", func(t *testing.T) {
			for _, step := range []struct {
				op   func(context.Context, string) (int64, error)
				want int64
			}{
				{flow.IncrementCounter, 1},
				{flow.IncrementCounter, 2},
				{flow.DecrementCounter, 1},
				{flow.ResetCounter, 0},
				{flow.GetCounterValue, 0},
			} {
				value, err := step.op(ctx, "x")
				require.NoError(t, err)
				assert.Equal(t, step.want, value)
			}
		})

		t.Run("ScenarioY", func(t *testing.T) {
			for _, step := range []struct {
				op   func(context.Context, string) (int64, error)
				want int64
			}{
				{flow.DecrementCounter, -1},
				{flow.DecrementCounter, -2},
				{flow.GetCounterValue, -2},
			} {
				value, err := step.op(ctx, "y")
				require.NoError(t, err)
				assert.Equal(t, step.want, value)
			}
		})

		t.Run("RejectsLongName", func(t *testing.T) {
			long := strings.Repeat("n", 101)
			_, err := flow.IncrementCounter(ctx, long)
			require.Error(t, err)
			assert.True(t, IsInvalidCounterName(err))

			rows, err := testDB.CountRows(long)
			require.NoError(t, err)
			assert.Equal(t, int64(0), rows)
		})

		t.Run("ConcurrentIncrements", func(t *testing.T) {
			const workers = 20
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = flow.IncrementCounter(ctx, "parallel")
				}()
			}
			wg.Wait()

			value, err := flow.GetCounterValue(ctx, "parallel")
			require.NoError(t, err)
			assert.Equal(t, int64(workers), value)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestCounterFlowListCounters(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newTestFlow(t, testDB, nil)
		ctx := testingutil.CreateTestContext()

		for _, name := range []string{"page_a", "page_b", "page_c", "other"} {
			_, err := flow.IncrementCounter(ctx, name)
			require.NoError(t, err)
		}

		t.Run("FirstPage", func(t *testing.T) {
			res, err := flow.ListCounters(ctx, &dto.ListCountersRequest{Page: 1, PageSize: 2, Prefix: "page_"})
			require.NoError(t, err)
			require.Len(t, res.Items, 2)
			assert.Equal(t, "page_a", res.Items[0].Name)
			assert.Equal(t, int64(3), res.Pagination.TotalItems)
			assert.Equal(t, 2, res.Pagination.TotalPages)
			assert.True(t, res.Pagination.HasNext)
			assert.False(t, res.Pagination.HasPrevious)
		})

		t.Run("LastPage", func(t *testing.T) {
			res, err := flow.ListCounters(ctx, &dto.ListCountersRequest{Page: 2, PageSize: 2, Prefix: "page_"})
			require.NoError(t, err)
			require.Len(t, res.Items, 1)
			assert.Equal(t, "page_c", res.Items[0].Name)
			assert.False(t, res.Pagination.HasNext)
			assert.True(t, res.Pagination.HasPrevious)
		})

		t.Run("InvalidPage", func(t *testing.T) {
			_, err := flow.ListCounters(ctx, &dto.ListCountersRequest{Page: 0, PageSize: 10})
			assert.True(t, IsInvalidPage(err))
		})

		t.Run("InvalidPageSize", func(t *testing.T) {
			_, err := flow.ListCounters(ctx, &dto.ListCountersRequest{Page: 1, PageSize: 101})
			assert.True(t, IsInvalidPageSize(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestCounterFlowExportCounters(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newTestFlow(t, testDB, nil)
		ctx := testingutil.CreateTestContext()

		_, err := flow.IncrementCounter(ctx, "exported")
		require.NoError(t, err)
		_, err = flow.DecrementCounter(ctx, "negative")
		require.NoError(t, err)

		filename, data, err := flow.ExportCounters(ctx)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(filename, "counters_"))
		assert.True(t, strings.HasSuffix(filename, ".xlsx"))

		xl, err := excelize.OpenReader(bytes.NewReader(data))
		require.NoError(t, err)
		defer xl.Close()

		rows, err := xl.GetRows("counters")
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, []string{"id", "name", "value", "created_at", "updated_at"}, rows[0])
		assert.Equal(t, "exported", rows[1][1])
		assert.Equal(t, "1", rows[1][2])
		assert.Equal(t, "negative", rows[2][1])
		assert.Equal(t, "-1", rows[2][2])
		return nil
	})
	require.NoError(t, err)
}

func TestCounterFlowCache(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()

		t.Run("MutationsWriteThrough", func(t *testing.T) {
			cache, mr := newMiniredisCache(t)
			flow := newTestFlow(t, testDB, cache)

			_, err := flow.IncrementCounter(ctx, "cached")
			require.NoError(t, err)
			_, err = flow.IncrementCounter(ctx, "cached")
			require.NoError(t, err)

			assert.Equal(t, "2", mr.HGet("test:counter:cached", "value"))
			assert.Equal(t, "2", mr.HGet("test:counter:cached", "version"))
		})

		t.Run("ReadsServedFromCache", func(t *testing.T) {
			cache, _ := newMiniredisCache(t)
			flow := newTestFlow(t, testDB, cache)

			_, err := flow.ResetCounter(ctx, "served")
			require.NoError(t, err)
			// a change behind the flow's back is not visible while cached
			require.NoError(t, testDB.SetTestCounterValue("served", 99))

			value, err := flow.GetCounterValue(ctx, "served")
			require.NoError(t, err)
			assert.Equal(t, int64(0), value)
		})

		t.Run("MissPopulatesCache", func(t *testing.T) {
			cache, mr := newMiniredisCache(t)
			flow := newTestFlow(t, testDB, cache)

			_, err := testDB.InsertTestCounter("warm", 5)
			require.NoError(t, err)

			value, err := flow.GetCounterValue(ctx, "warm")
			require.NoError(t, err)
			assert.Equal(t, int64(5), value)

			assert.Equal(t, "5", mr.HGet("test:counter:warm", "value"))
		})

		t.Run("FailedWriteBackIsNotServed", func(t *testing.T) {
			cache, mr := newMiniredisCache(t)
			flow := newTestFlow(t, testDB, cache)

			value, err := flow.GetCounterValue(ctx, "flaky")
			require.NoError(t, err)
			assert.Equal(t, int64(0), value)
			require.Equal(t, "0", mr.HGet("test:counter:flaky", "value"))

			mr.SetError("ERR transient failure")
			value, err = flow.IncrementCounter(ctx, "flaky")
			require.NoError(t, err)
			assert.Equal(t, int64(1), value)
			mr.SetError("")

			value, err = flow.GetCounterValue(ctx, "flaky")
			require.NoError(t, err)
			assert.Equal(t, int64(1), value)
			assert.Equal(t, "1", mr.HGet("test:counter:flaky", "value"))

			value, err = flow.GetCounterValue(ctx, "flaky")
			require.NoError(t, err)
			assert.Equal(t, int64(1), value)
		})

		t.Run("StaleNameBypassesCacheWhileUnreachable", func(t *testing.T) {
			cache, mr := newMiniredisCache(t)
			flow := newTestFlow(t, testDB, cache)

			_, err := flow.ResetCounter(ctx, "bypassed")
			require.NoError(t, err)

			mr.SetError("ERR transient failure")
			_, err = flow.IncrementCounter(ctx, "bypassed")
			require.NoError(t, err)
			bypassBefore := testutil.ToFloat64(counterCacheResults.WithLabelValues("bypass"))

			value, err := flow.GetCounterValue(ctx, "bypassed")
			require.NoError(t, err)
			assert.Equal(t, int64(1), value)
			assert.Equal(t, bypassBefore+1, testutil.ToFloat64(counterCacheResults.WithLabelValues("bypass")))
			mr.SetError("")
		})

		t.Run("OlderRowCannotOverwriteNewerEntry", func(t *testing.T) {
			cache, mr := newMiniredisCache(t)
			writer := newTestFlow(t, testDB, cache)
			reader := newTestFlow(t, testDB, cache)

			_, err := writer.IncrementCounter(ctx, "shared")
			require.NoError(t, err)
			_, err = writer.IncrementCounter(ctx, "shared")
			require.NoError(t, err)

			// a reader in another process that loaded the row at version 1
			require.NoError(t, cache.Set(ctx, "shared", 1, 1))
			assert.Equal(t, "2", mr.HGet("test:counter:shared", "value"))

			value, err := reader.GetCounterValue(ctx, "shared")
			require.NoError(t, err)
			assert.Equal(t, int64(2), value)
		})

		t.Run("CorruptEntryIsRepaired", func(t *testing.T) {
			cache, mr := newMiniredisCache(t)
			flow := newTestFlow(t, testDB, cache)

			_, err := testDB.InsertTestCounter("corrupt", 7)
			require.NoError(t, err)
			mr.HSet("test:counter:corrupt", "value", "junk", "version", "0")

			value, err := flow.GetCounterValue(ctx, "corrupt")
			require.NoError(t, err)
			assert.Equal(t, int64(7), value)
			assert.Equal(t, "7", mr.HGet("test:counter:corrupt", "value"))
		})

		t.Run("OutageFallsBackToStore", func(t *testing.T) {
			cache, mr := newMiniredisCache(t)
			core, logs := observer.New(zap.WarnLevel)
			flow := NewCounterFlow(
				repository.NewCounterRepository(testDB.DB),
				cache,
				config.CounterConfig{DefaultName: "default"},
				zap.New(core),
			)
			mr.Close()
			errorsBefore := testutil.ToFloat64(counterCacheResults.WithLabelValues("error"))

			value, err := flow.IncrementCounter(ctx, "outage")
			require.NoError(t, err)
			assert.Equal(t, int64(1), value)

			value, err = flow.GetCounterValue(ctx, "outage")
			require.NoError(t, err)
			assert.Equal(t, int64(1), value)

			assert.NotZero(t, logs.FilterMessage("failed to invalidate cached counter value").Len())
			assert.NotZero(t, logs.FilterMessage("failed to update cached counter value").Len())
			for _, entry := range logs.All() {
				assert.Equal(t, true, entry.ContextMap()["unavailable"])
			}
			// eviction and write-back failed during the increment, the retried eviction during the read
			assert.Equal(t, errorsBefore+3, testutil.ToFloat64(counterCacheResults.WithLabelValues("error")))
		})

		return nil
	})
	require.NoError(t, err)
}
