package accounting

import (
	"context"
	"time"

	"ecoleafdrive/internal/domain"
)

// Store постоянное хранилище леджера и агрегатов.
//
// InsertEntry и ResizeEntry обязаны повторить проверку лимита внутри своей
// транзакции и вернуть domain.ErrQuotaExceeded, если она не прошла. Запись
// леджера, агрегаты и дневной счетчик фиксируются вместе или не фиксируются.
type Store interface {
	// LoadAccount возвращает нулевое состояние для неизвестного пользователя
	LoadAccount(ctx context.Context, ownerID string, since time.Time) (*domain.AccountState, error)
	GetEntry(ctx context.Context, ownerID, entryID string) (*domain.LedgerEntry, error)
	InsertEntry(ctx context.Context, entry *domain.LedgerEntry, limit int64) error
	DeleteEntry(ctx context.Context, entry *domain.LedgerEntry) error
	ResizeEntry(ctx context.Context, entry *domain.LedgerEntry, newSize, limit int64) error

	// RecomputeAccount пересчитывает агрегаты по живым записям леджера.
	// Только для сверки, не для обработки запросов.
	RecomputeAccount(ctx context.Context, ownerID string) (*domain.AccountState, error)
	// ReplaceAccount перезаписывает агрегаты, дневные счетчики не трогает
	ReplaceAccount(ctx context.Context, state *domain.AccountState) error
	PruneTrends(ctx context.Context, before time.Time) (int64, error)
}

// ReportCache кеш готовых отчетов
type ReportCache interface {
	GetStats(ctx context.Context, ownerID string) (*domain.StorageStats, bool, error)
	SetStats(ctx context.Context, ownerID string, stats *domain.StorageStats) error
	GetAnalytics(ctx context.Context, ownerID, day string) (*domain.Analytics, bool, error)
	SetAnalytics(ctx context.Context, ownerID, day string, analytics *domain.Analytics) error
	Invalidate(ctx context.Context, ownerID string) error
}

type nopCache struct{}

func (nopCache) GetStats(context.Context, string) (*domain.StorageStats, bool, error) {
	return nil, false, nil
}

func (nopCache) SetStats(context.Context, string, *domain.StorageStats) error { return nil }

func (nopCache) GetAnalytics(context.Context, string, string) (*domain.Analytics, bool, error) {
	return nil, false, nil
}

func (nopCache) SetAnalytics(context.Context, string, string, *domain.Analytics) error { return nil }

func (nopCache) Invalidate(context.Context, string) error { return nil }
