package accounting

import (
	"context"
	"fmt"
	"time"

	"cdr.dev/slog/v3"

	"ecoleafdrive/internal/domain"
)

// Reconcile сверяет сохраненные агрегаты с живыми записями леджера. С fix
// агрегаты перезаписываются пересчитанными значениями. Полный пересчет
// нужен только администратору, отчеты его никогда не используют.
func (s *Service) Reconcile(ctx context.Context, ownerID string, fix bool) (*domain.ReconcileReport, error) {
	s.mu.Lock()
	acc, ok := s.accounts[ownerID]
	if !ok {
		acc = &account{}
		s.accounts[ownerID] = acc
	}
	s.mu.Unlock()

	// Не через acquire: испорченный аккаунт не загрузится, а чинить его нужно
	acc.mu.Lock()
	defer acc.mu.Unlock()

	today := s.clock.Now()
	stored, err := s.store.LoadAccount(ctx, ownerID, windowStart(today))
	if err != nil {
		return nil, fmt.Errorf("failed to load stored account: %w", err)
	}

	actual, err := s.store.RecomputeAccount(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to recompute account: %w", err)
	}
	actual.Trends = stored.Trends

	report := &domain.ReconcileReport{
		OwnerID: ownerID,
		Stored:  stored,
		Actual:  actual,
		Drift:   !sameTotals(stored, actual),
	}

	if !report.Drift {
		return report, nil
	}

	s.logger.Warn(ctx, "stored aggregates drifted from ledger",
		slog.F("owner_id", ownerID),
		slog.F("stored_used", stored.StorageUsed),
		slog.F("actual_used", actual.StorageUsed),
	)

	if !fix {
		return report, nil
	}

	if err := s.store.ReplaceAccount(ctx, actual); err != nil {
		return nil, fmt.Errorf("failed to replace account: %w", err)
	}
	report.Fixed = true

	acc.loaded = false
	if err := s.load(ctx, ownerID, acc); err != nil {
		return report, err
	}
	s.invalidate(ctx, ownerID)

	return report, nil
}

func sameTotals(a, b *domain.AccountState) bool {
	if a.StorageUsed != b.StorageUsed ||
		a.FileCount != b.FileCount ||
		a.NotesCount != b.NotesCount ||
		a.TextsCount != b.TextsCount {
		return false
	}
	for _, c := range domain.Categories {
		if a.ByType[c] != b.ByType[c] {
			return false
		}
	}
	return true
}

// PruneTrends удаляет сохраненные дневные счетчики старше окна
func (s *Service) PruneTrends(ctx context.Context) (int64, error) {
	cutoff := windowStart(s.clock.Now())
	removed, err := s.store.PruneTrends(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune upload trends: %w", err)
	}
	return removed, nil
}

// RunPruner периодически чистит старые дневные счетчики до отмены ctx
func (s *Service) RunPruner(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval, "accounting", "prune")
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.PruneTrends(ctx)
			if err != nil {
				s.logger.Error(ctx, "trend pruning failed", slog.Error(err))
				continue
			}
			s.logger.Debug(ctx, "pruned upload trends", slog.F("removed", removed))
		}
	}
}
