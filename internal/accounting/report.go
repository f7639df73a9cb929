package accounting

import (
	"context"

	"cdr.dev/slog/v3"

	"ecoleafdrive/internal/domain"
)

// StorageStats отчет о занятом месте. Читает только агрегаты, пользователь
// без объектов получает нулевой отчет.
func (s *Service) StorageStats(ctx context.Context, ownerID string) (*domain.StorageStats, error) {
	if cached, ok := s.cachedStats(ctx, ownerID); ok {
		return cached, nil
	}

	acc, err := s.acquire(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer acc.mu.Unlock()

	snap := acc.quota.snapshot()
	stats := &domain.StorageStats{
		StorageUsed:      snap.StorageUsed,
		StorageRemaining: snap.StorageRemaining,
		StorageLimit:     snap.StorageLimit,
		PercentageUsed:   snap.PercentageUsed,
		FileCount:        acc.quota.counts[domain.KindFile],
		NotesCount:       acc.quota.counts[domain.KindNote],
		TextsCount:       acc.quota.counts[domain.KindText],
		StorageByType:    snap.StorageByType,
	}

	// Пишем в кеш под блокировкой аккаунта, чтобы не перетереть инвалидацию
	cctx, cancel := s.cacheContext(ctx)
	defer cancel()
	if err := s.cache.SetStats(cctx, ownerID, stats); err != nil {
		s.logger.Warn(ctx, "failed to cache storage stats", slog.F("owner_id", ownerID), slog.Error(err))
	}
	return stats, nil
}

// Analytics отчет для страницы аналитики: итоги, распределение файлов по
// категориям и тренд загрузок за 30 дней, заканчивающийся сегодняшним днем.
func (s *Service) Analytics(ctx context.Context, ownerID string) (*domain.Analytics, error) {
	today := dayOf(s.clock.Now())
	day := today.Format(domain.TrendDateLayout)

	if cached, ok := s.cachedAnalytics(ctx, ownerID, day); ok {
		return cached, nil
	}

	acc, err := s.acquire(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer acc.mu.Unlock()

	analytics := &domain.Analytics{
		TotalFiles:           acc.quota.counts[domain.KindFile],
		TotalStorage:         acc.quota.used,
		NotesCount:           acc.quota.counts[domain.KindNote],
		TextsCount:           acc.quota.counts[domain.KindText],
		FileTypeDistribution: acc.quota.fileDistribution(),
		UploadTrends:         acc.trend.series(today),
	}

	cctx, cancel := s.cacheContext(ctx)
	defer cancel()
	if err := s.cache.SetAnalytics(cctx, ownerID, day, analytics); err != nil {
		s.logger.Warn(ctx, "failed to cache analytics", slog.F("owner_id", ownerID), slog.Error(err))
	}
	return analytics, nil
}

func (s *Service) cachedStats(ctx context.Context, ownerID string) (*domain.StorageStats, bool) {
	cctx, cancel := s.cacheContext(ctx)
	defer cancel()

	stats, ok, err := s.cache.GetStats(cctx, ownerID)
	if err != nil {
		s.logger.Warn(ctx, "report cache lookup failed", slog.F("owner_id", ownerID), slog.Error(err))
		return nil, false
	}
	s.countLookup("stats", ok)
	return stats, ok
}

func (s *Service) cachedAnalytics(ctx context.Context, ownerID, day string) (*domain.Analytics, bool) {
	cctx, cancel := s.cacheContext(ctx)
	defer cancel()

	analytics, ok, err := s.cache.GetAnalytics(cctx, ownerID, day)
	if err != nil {
		s.logger.Warn(ctx, "report cache lookup failed", slog.F("owner_id", ownerID), slog.Error(err))
		return nil, false
	}
	s.countLookup("analytics", ok)
	return analytics, ok
}

func (s *Service) countLookup(report string, hit bool) {
	if _, ok := s.cache.(nopCache); ok {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	s.metrics.cacheLookups.WithLabelValues(report, result).Inc()
}
