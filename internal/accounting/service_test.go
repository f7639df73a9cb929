package accounting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cdr.dev/slog/v3/sloggers/slogtest"
	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"ecoleafdrive/internal/domain"
)

const (
	mb = int64(1024 * 1024)
	gb = 1024 * mb
)

var testNow = time.Date(2026, 10, 17, 12, 30, 0, 0, time.UTC)

type testEnv struct {
	svc   *Service
	store *memStore
	clock *quartz.Mock
	reg   *prometheus.Registry
}

func newTestEnv(t *testing.T, opts ...func(*Options)) *testEnv {
	t.Helper()

	mClock := quartz.NewMock(t)
	mClock.Set(testNow)

	env := &testEnv{
		store: newMemStore(),
		clock: mClock,
		reg:   prometheus.NewRegistry(),
	}
	o := Options{
		Clock:      mClock,
		Logger:     slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}),
		Registerer: env.reg,
	}
	for _, opt := range opts {
		opt(&o)
	}
	env.svc = NewService(env.store, o)
	return env
}

func (e *testEnv) recordFile(t *testing.T, owner string, size int64, c domain.Category) string {
	t.Helper()
	id, err := e.svc.Record(context.Background(), RecordParams{
		OwnerID:   owner,
		Kind:      domain.KindFile,
		SizeBytes: size,
		Category:  c,
	})
	require.NoError(t, err)
	return id
}

func requireSumInvariant(t *testing.T, snap domain.QuotaSnapshot) {
	t.Helper()
	var sum int64
	for _, c := range domain.Categories {
		sum += snap.StorageByType[c]
	}
	require.Equal(t, snap.StorageUsed, sum, "usage by type must add up to storage used")
	require.GreaterOrEqual(t, snap.StorageUsed, int64(0))
	require.LessOrEqual(t, snap.StorageUsed, snap.StorageLimit)
}

func TestRecordAndRemoveRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t)

	before, err := env.svc.Snapshot(ctx, "alice")
	require.NoError(t, err)

	id := env.recordFile(t, "alice", 5*mb, domain.CategoryImage)

	snap, err := env.svc.Snapshot(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 5*mb, snap.StorageUsed)
	assert.Equal(t, 5*mb, snap.StorageByType[domain.CategoryImage])
	requireSumInvariant(t, snap)

	require.NoError(t, env.svc.Remove(ctx, "alice", id))

	after, err := env.svc.Snapshot(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRecordUsesGivenID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t)

	id, err := env.svc.Record(ctx, RecordParams{
		ID:        "file-42",
		OwnerID:   "alice",
		Kind:      domain.KindFile,
		SizeBytes: 1,
		Category:  domain.CategoryPDF,
	})
	require.NoError(t, err)
	assert.Equal(t, "file-42", id)

	_, err = env.svc.Record(ctx, RecordParams{
		ID:        "file-42",
		OwnerID:   "alice",
		Kind:      domain.KindFile,
		SizeBytes: 1,
		Category:  domain.CategoryPDF,
	})
	require.ErrorIs(t, err, domain.ErrEntryExists)

	snap, err := env.svc.Snapshot(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1, snap.StorageUsed)
}

func TestRecordRejectsOverQuota(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t)

	env.recordFile(t, "alice", 9*gb+900*mb, domain.CategoryVideo)

	_, err := env.svc.Record(ctx, RecordParams{
		OwnerID:   "alice",
		Kind:      domain.KindFile,
		SizeBytes: 200 * mb,
		Category:  domain.CategoryVideo,
	})
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)

	stats, err := env.svc.StorageStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 9*gb+900*mb, stats.StorageUsed)
	assert.EqualValues(t, 1, stats.FileCount)

	// остаток ровно до лимита допускается
	env.recordFile(t, "alice", 100*mb, domain.CategoryVideo)
	stats, err = env.svc.StorageStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.StorageLimit, stats.StorageUsed)
	assert.Zero(t, stats.StorageRemaining)
	assert.Equal(t, float64(100), stats.PercentageUsed)

	assert.Equal(t, float64(1), promtestutil.ToFloat64(env.svc.metrics.admissions.WithLabelValues("rejected")))
	assert.Equal(t, float64(2), promtestutil.ToFloat64(env.svc.metrics.admissions.WithLabelValues("accepted")))
	assert.Equal(t, float64(domain.StorageLimit), promtestutil.ToFloat64(env.svc.metrics.admittedBytes))
}

func TestConcurrentAdmissionsOnlyOneFits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t)

	var accepted, rejected atomic.Int64
	var eg errgroup.Group
	for i := 0; i < 2; i++ {
		eg.Go(func() error {
			_, err := env.svc.Record(ctx, RecordParams{
				OwnerID:   "alice",
				Kind:      domain.KindFile,
				SizeBytes: 6 * gb,
				Category:  domain.CategoryVideo,
			})
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, domain.ErrQuotaExceeded):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	assert.EqualValues(t, 1, accepted.Load())
	assert.EqualValues(t, 1, rejected.Load())

	snap, err := env.svc.Snapshot(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 6*gb, snap.StorageUsed)
}

func TestConcurrentAdmissionsNeverExceedLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t)

	const workers = 50
	var accepted atomic.Int64
	var eg errgroup.Group
	for i := 0; i < workers; i++ {
		category := domain.Categories[i%len(domain.Categories)]
		eg.Go(func() error {
			_, err := env.svc.Record(ctx, RecordParams{
				OwnerID:   "alice",
				Kind:      domain.KindFile,
				SizeBytes: 300 * mb,
				Category:  category,
			})
			if errors.Is(err, domain.ErrQuotaExceeded) {
				return nil
			}
			if err != nil {
				return err
			}
			accepted.Add(1)
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	// 10240MB / 300MB
	assert.EqualValues(t, 34, accepted.Load())

	snap, err := env.svc.Snapshot(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 34*300*mb, snap.StorageUsed)
	requireSumInvariant(t, snap)

	stats, err := env.svc.StorageStats(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 34, stats.FileCount)
}

func TestConcurrentMixedOperations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t)

	var (
		mu  sync.Mutex
		ids []string
	)
	var eg errgroup.Group
	for i := 0; i < 40; i++ {
		eg.Go(func() error {
			id, err := env.svc.Record(ctx, RecordParams{
				OwnerID:   "alice",
				Kind:      domain.KindFile,
				SizeBytes: int64(i+1) * mb,
				Category:  domain.Categories[i%len(domain.Categories)],
			})
			if err != nil {
				return err
			}
			mu.Lock()
			ids = append(ids, id)
			mu.Unlock()
			return nil
		})
		eg.Go(func() error {
			_, err := env.svc.StorageStats(ctx, "alice")
			return err
		})
	}
	require.NoError(t, eg.Wait())

	for _, id := range ids[:20] {
		eg.Go(func() error {
			return env.svc.Remove(ctx, "alice", id)
		})
	}
	require.NoError(t, eg.Wait())

	snap, err := env.svc.Snapshot(ctx, "alice")
	require.NoError(t, err)
	requireSumInvariant(t, snap)

	state, err := env.store.RecomputeAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, state.StorageUsed, snap.StorageUsed)
	assert.EqualValues(t, 20, state.FileCount)
}

func TestOwnersAreIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t)

	env.recordFile(t, "alice", domain.StorageLimit, domain.CategoryVideo)
	env.recordFile(t, "bob", 1*gb, domain.CategoryAudio)

	bob, err := env.svc.Snapshot(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1*gb, bob.StorageUsed)
	assert.Zero(t, bob.StorageByType[domain.CategoryVideo])
}

func TestRecordCanceledContextChangesNothing(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.svc.Record(ctx, RecordParams{
		OwnerID:   "alice",
		Kind:      domain.KindFile,
		SizeBytes: mb,
		Category:  domain.CategoryImage,
	})
	require.ErrorIs(t, err, context.Canceled)

	snap, err := env.svc.Snapshot(context.Background(), "alice")
	require.NoError(t, err)
	assert.Zero(t, snap.StorageUsed)

	state, err := env.store.RecomputeAccount(context.Background(), "alice")
	require.NoError(t, err)
	assert.Zero(t, state.Entries())
}

func TestRecordCommitFailureChangesNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t)
	env.recordFile(t, "alice", mb, domain.CategoryImage)

	diskFull := errors.New("disk full")
	env.store.fail(diskFull)

	_, err := env.svc.Record(ctx, RecordParams{
		OwnerID:   "alice",
		Kind:      domain.KindFile,
		SizeBytes: mb,
		Category:  domain.CategoryImage,
	})
	require.ErrorIs(t, err, diskFull)

	loads := env.store.loads
	stats, err := env.svc.StorageStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, mb, stats.StorageUsed)
	assert.EqualValues(t, 1, stats.FileCount)
	// после ошибки фиксации аккаунт перечитывается из хранилища
	assert.Equal(t, loads+1, env.store.loads)
}

func TestRemoveUnknownEntry(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	err := env.svc.Remove(context.Background(), "alice", "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRemoveOtherOwnersEntry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t)
	id := env.recordFile(t, "alice", mb, domain.CategoryImage)

	require.ErrorIs(t, env.svc.Remove(ctx, "bob", id), domain.ErrNotFound)

	snap, err := env.svc.Snapshot(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, mb, snap.StorageUsed)
}

func TestRemoveWithoutLiveCountIsViolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t)
	_, err := env.svc.Snapshot(ctx, "alice")
	require.NoError(t, err)

	// запись есть в леджере, но в агрегатах не учтена
	env.store.mu.Lock()
	env.store.entries["ghost"] = &domain.LedgerEntry{
		ID:        "ghost",
		OwnerID:   "alice",
		Kind:      domain.KindNote,
		SizeBytes: 10,
		Category:  domain.CategoryOthers,
	}
	env.store.mu.Unlock()

	err = env.svc.Remove(ctx, "alice", "ghost")
	require.ErrorIs(t, err, domain.ErrInvariantViolation)
	assert.Equal(t, float64(1), promtestutil.ToFloat64(env.svc.metrics.violations))
}

func TestResize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t)

	id, err := env.svc.OnObjectCreated(ctx, "alice", "", domain.KindText, 100)
	require.NoError(t, err)

	require.NoError(t, env.svc.Resize(ctx, "alice", id, 250))
	snap, err := env.svc.Snapshot(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 250, snap.StorageUsed)
	assert.EqualValues(t, 250, snap.StorageByType[domain.CategoryOthers])

	require.NoError(t, env.svc.Resize(ctx, "alice", id, 40))
	snap, err = env.svc.Snapshot(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 40, snap.StorageUsed)

	// без изменений
	require.NoError(t, env.svc.Resize(ctx, "alice", id, 40))

	require.ErrorIs(t, env.svc.Resize(ctx, "alice", id, -1), domain.ErrInvalidSize)
	require.ErrorIs(t, env.svc.Resize(ctx, "alice", "missing", 1), domain.ErrNotFound)

	stats, err := env.svc.StorageStats(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.TextsCount)
}

func TestResizeGrowthRejectedOverQuota(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t)

	env.recordFile(t, "alice", domain.StorageLimit-10, domain.CategoryVideo)
	id, err := env.svc.OnObjectCreated(ctx, "alice", "", domain.KindNote, 5)
	require.NoError(t, err)

	require.NoError(t, env.svc.Resize(ctx, "alice", id, 10))
	require.ErrorIs(t, env.svc.Resize(ctx, "alice", id, 11), domain.ErrQuotaExceeded)

	snap, err := env.svc.Snapshot(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.StorageLimit, snap.StorageUsed)
}

func TestResizeWithRevertsWhenApplyFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t)

	id, err := env.svc.OnObjectCreated(ctx, "alice", "", domain.KindNote, 100)
	require.NoError(t, err)

	errWrite := errors.New("row update failed")
	err = env.svc.ResizeWith(ctx, "alice", id, 300, func(context.Context) error { return errWrite })
	require.ErrorIs(t, err, errWrite)

	snap, err := env.svc.Snapshot(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 100, snap.StorageUsed)

	entry, err := env.store.GetEntry(ctx, "alice", id)
	require.NoError(t, err)
	assert.EqualValues(t, 100, entry.SizeBytes)

	stored, err := env.store.LoadAccount(ctx, "alice", testNow)
	require.NoError(t, err)
	assert.EqualValues(t, 100, stored.StorageUsed)
}

func TestResizeWithAppliesUpdatesInLedgerOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t)

	id, err := env.svc.OnObjectCreated(ctx, "alice", "", domain.KindText, 1)
	require.NoError(t, err)

	// последний примененный размер должен совпасть с размером в леджере
	var (
		mu      sync.Mutex
		applied int64
	)
	var eg errgroup.Group
	for i := int64(1); i <= 40; i++ {
		size := i * 10
		eg.Go(func() error {
			return env.svc.ResizeWith(ctx, "alice", id, size, func(context.Context) error {
				mu.Lock()
				applied = size
				mu.Unlock()
				return nil
			})
		})
	}
	require.NoError(t, eg.Wait())

	entry, err := env.store.GetEntry(ctx, "alice", id)
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, applied, entry.SizeBytes)

	snap, err := env.svc.Snapshot(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, applied, snap.StorageUsed)
}

func TestRecordValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params RecordParams
		err    error
	}{
		{
			name:   "UnknownCategory",
			params: RecordParams{OwnerID: "alice", Kind: domain.KindFile, SizeBytes: 1, Category: "documents"},
			err:    domain.ErrInvalidCategory,
		},
		{
			name:   "FileWithoutCategory",
			params: RecordParams{OwnerID: "alice", Kind: domain.KindFile, SizeBytes: 1},
			err:    domain.ErrInvalidCategory,
		},
		{
			name:   "NoteInImageCategory",
			params: RecordParams{OwnerID: "alice", Kind: domain.KindNote, SizeBytes: 1, Category: domain.CategoryImage},
			err:    domain.ErrInvalidCategory,
		},
		{
			name:   "UnknownKind",
			params: RecordParams{OwnerID: "alice", Kind: "folder", SizeBytes: 1, Category: domain.CategoryOthers},
			err:    domain.ErrInvalidKind,
		},
		{
			name:   "NegativeSize",
			params: RecordParams{OwnerID: "alice", Kind: domain.KindFile, SizeBytes: -1, Category: domain.CategoryImage},
			err:    domain.ErrInvalidSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			_, err := env.svc.Record(context.Background(), tt.params)
			require.ErrorIs(t, err, tt.err)

			snap, err := env.svc.Snapshot(context.Background(), "alice")
			require.NoError(t, err)
			assert.Zero(t, snap.StorageUsed)
		})
	}

	t.Run("EmptyOwner", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		_, err := env.svc.Record(context.Background(), RecordParams{Kind: domain.KindFile, SizeBytes: 1, Category: domain.CategoryImage})
		require.Error(t, err)
		_, err = env.svc.StorageStats(context.Background(), " ")
		require.Error(t, err)
	})
}

func TestNotesAndTextsCountAsOthers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.svc.Record(ctx, RecordParams{OwnerID: "alice", Kind: domain.KindNote, SizeBytes: 30})
	require.NoError(t, err)
	_, err = env.svc.OnObjectCreated(ctx, "alice", "", domain.KindText, 70)
	require.NoError(t, err)
	env.recordFile(t, "alice", 400, domain.CategoryAudio)

	stats, err := env.svc.StorageStats(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 500, stats.StorageUsed)
	assert.EqualValues(t, 100, stats.StorageByType[domain.CategoryOthers])
	assert.EqualValues(t, 1, stats.FileCount)
	assert.EqualValues(t, 1, stats.NotesCount)
	assert.EqualValues(t, 1, stats.TextsCount)

	analytics, err := env.svc.Analytics(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1, analytics.TotalFiles)
	assert.EqualValues(t, 500, analytics.TotalStorage)
	// в распределении только файлы
	assert.EqualValues(t, 1, analytics.FileTypeDistribution[domain.CategoryAudio])
	assert.Zero(t, analytics.FileTypeDistribution[domain.CategoryOthers])
}

func TestAnalyticsForNewUser(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	analytics, err := env.svc.Analytics(context.Background(), "nobody")
	require.NoError(t, err)

	assert.Zero(t, analytics.TotalFiles)
	assert.Zero(t, analytics.TotalStorage)
	require.Len(t, analytics.FileTypeDistribution, len(domain.Categories))
	requireContiguous(t, analytics.UploadTrends, "2026-10-17")
	for _, p := range analytics.UploadTrends {
		assert.Zero(t, p.Count)
		assert.Zero(t, p.Size)
	}

	stats, err := env.svc.StorageStats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, domain.StorageLimit, stats.StorageRemaining)
	assert.Zero(t, stats.PercentageUsed)
}

func TestAnalyticsUploadTrends(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t)

	record := func(createdAt time.Time, size int64) {
		_, err := env.svc.Record(ctx, RecordParams{
			OwnerID:   "alice",
			Kind:      domain.KindFile,
			SizeBytes: size,
			Category:  domain.CategoryImage,
			CreatedAt: createdAt,
		})
		require.NoError(t, err)
	}

	record(time.Time{}, 10)
	record(testNow.Add(-72*time.Hour), 20)
	// будущее время считается сегодняшним днем
	record(testNow.Add(48*time.Hour), 30)
	// старше окна: место учитывается, тренд нет
	record(testNow.AddDate(0, -2, 0), 40)

	analytics, err := env.svc.Analytics(ctx, "alice")
	require.NoError(t, err)
	points := analytics.UploadTrends
	requireContiguous(t, points, "2026-10-17")

	assert.EqualValues(t, 2, points[29].Count)
	assert.EqualValues(t, 40, points[29].Size)
	assert.Equal(t, "2026-10-14", points[26].Date)
	assert.EqualValues(t, 1, points[26].Count)
	assert.EqualValues(t, 100, analytics.TotalStorage)

	// через два дня окно сдвигается без новых загрузок
	env.clock.Advance(48 * time.Hour)
	analytics, err = env.svc.Analytics(ctx, "alice")
	require.NoError(t, err)
	requireContiguous(t, analytics.UploadTrends, "2026-10-19")
	assert.EqualValues(t, 2, analytics.UploadTrends[27].Count)
	assert.Zero(t, analytics.UploadTrends[29].Count)
}

func TestTrendsSurviveReload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t)
	env.recordFile(t, "alice", 10, domain.CategoryImage)

	// новый экземпляр сервиса поверх того же хранилища
	svc := NewService(env.store, Options{
		Clock:  env.clock,
		Logger: slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}),
	})
	analytics, err := svc.Analytics(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1, analytics.UploadTrends[29].Count)
	assert.EqualValues(t, 1, analytics.TotalFiles)
}

func TestCorruptStoredStateIsReported(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t)
	env.store.corrupt("alice", func(st *domain.AccountState) {
		st.StorageUsed = 100
	})

	_, err := env.svc.Snapshot(ctx, "alice")
	require.ErrorIs(t, err, domain.ErrInvariantViolation)
	_, err = env.svc.Record(ctx, RecordParams{OwnerID: "alice", Kind: domain.KindNote, SizeBytes: 1})
	require.ErrorIs(t, err, domain.ErrInvariantViolation)
	assert.Equal(t, float64(2), promtestutil.ToFloat64(env.svc.metrics.violations))
}

// mapCache кеш отчетов в памяти
type mapCache struct {
	mu        sync.Mutex
	stats     map[string]*domain.StorageStats
	analytics map[string]*domain.Analytics
	failGet   bool
}

func newMapCache() *mapCache {
	return &mapCache{
		stats:     make(map[string]*domain.StorageStats),
		analytics: make(map[string]*domain.Analytics),
	}
}

func (c *mapCache) GetStats(_ context.Context, ownerID string) (*domain.StorageStats, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, false, errors.New("cache unavailable")
	}
	s, ok := c.stats[ownerID]
	return s, ok, nil
}

func (c *mapCache) SetStats(_ context.Context, ownerID string, stats *domain.StorageStats) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats[ownerID] = stats
	return nil
}

func (c *mapCache) GetAnalytics(_ context.Context, ownerID, day string) (*domain.Analytics, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, false, errors.New("cache unavailable")
	}
	a, ok := c.analytics[ownerID+"/"+day]
	return a, ok, nil
}

func (c *mapCache) SetAnalytics(_ context.Context, ownerID, day string, analytics *domain.Analytics) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.analytics[ownerID+"/"+day] = analytics
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, ownerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stats, ownerID)
	for key := range c.analytics {
		if len(key) > len(ownerID) && key[:len(ownerID)+1] == ownerID+"/" {
			delete(c.analytics, key)
		}
	}
	return nil
}

func TestReportCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := newMapCache()
	env := newTestEnv(t, func(o *Options) { o.Cache = cache })

	env.recordFile(t, "alice", 10, domain.CategoryImage)

	_, err := env.svc.StorageStats(ctx, "alice")
	require.NoError(t, err)
	_, err = env.svc.StorageStats(ctx, "alice")
	require.NoError(t, err)

	lookups := env.svc.metrics.cacheLookups
	assert.Equal(t, float64(1), promtestutil.ToFloat64(lookups.WithLabelValues("stats", "miss")))
	assert.Equal(t, float64(1), promtestutil.ToFloat64(lookups.WithLabelValues("stats", "hit")))

	_, err = env.svc.Analytics(ctx, "alice")
	require.NoError(t, err)
	require.Contains(t, cache.analytics, "alice/2026-10-17")

	// запись сбрасывает оба отчета
	env.recordFile(t, "alice", 15, domain.CategoryImage)
	assert.Empty(t, cache.stats)
	assert.Empty(t, cache.analytics)

	stats, err := env.svc.StorageStats(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 25, stats.StorageUsed)

	// недоступный кеш не мешает отчетам
	cache.mu.Lock()
	cache.failGet = true
	cache.mu.Unlock()
	stats, err = env.svc.StorageStats(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 25, stats.StorageUsed)
}

// stalledCache кеш, запись в который висит до отмены контекста
type stalledCache struct {
	nopCache
	timeouts atomic.Int64
}

func (c *stalledCache) wait(ctx context.Context) error {
	<-ctx.Done()
	c.timeouts.Add(1)
	return ctx.Err()
}

func (c *stalledCache) SetStats(ctx context.Context, _ string, _ *domain.StorageStats) error {
	return c.wait(ctx)
}

func (c *stalledCache) SetAnalytics(ctx context.Context, _, _ string, _ *domain.Analytics) error {
	return c.wait(ctx)
}

func (c *stalledCache) Invalidate(ctx context.Context, _ string) error {
	return c.wait(ctx)
}

func TestStalledCacheDoesNotHoldAccount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := &stalledCache{}
	env := newTestEnv(t, func(o *Options) {
		o.Cache = cache
		o.CacheTimeout = 20 * time.Millisecond
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := env.svc.Record(ctx, RecordParams{
			OwnerID:   "alice",
			Kind:      domain.KindFile,
			SizeBytes: 10,
			Category:  domain.CategoryImage,
		})
		assert.NoError(t, err)
		stats, err := env.svc.StorageStats(ctx, "alice")
		assert.NoError(t, err)
		assert.EqualValues(t, 10, stats.StorageUsed)
		_, err = env.svc.Analytics(ctx, "alice")
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("report cache blocked the account")
	}
	assert.Equal(t, int64(3), cache.timeouts.Load())

	// аккаунт свободен для следующего допуска
	snap, err := env.svc.Snapshot(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 10, snap.StorageUsed)
}

func TestMetricsRegistered(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.recordFile(t, "alice", 10, domain.CategoryImage)

	families, err := env.reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, name := range []string{
		"ecoleaf_accounting_admissions_total",
		"ecoleaf_accounting_admitted_bytes_total",
	} {
		assert.True(t, names[name], fmt.Sprintf("metric %s is not registered", name))
	}
}
