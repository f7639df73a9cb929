package service

import (
	"context"
	"fmt"

	"ecoleafdrive/internal/accounting"
	"ecoleafdrive/internal/domain"
)

// StorageQuotaService отчеты по занятому месту и административная сверка
type StorageQuotaService struct {
	ledger *accounting.Service
}

func NewStorageQuotaService(ledger *accounting.Service) *StorageQuotaService {
	return &StorageQuotaService{
		ledger: ledger,
	}
}

func (s *StorageQuotaService) GetStorageStats(ctx context.Context, ownerID string) (*domain.StorageStats, error) {
	stats, err := s.ledger.StorageStats(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage stats: %w", err)
	}
	return stats, nil
}

func (s *StorageQuotaService) GetAnalytics(ctx context.Context, ownerID string) (*domain.Analytics, error) {
	analytics, err := s.ledger.Analytics(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get analytics: %w", err)
	}
	return analytics, nil
}

func (s *StorageQuotaService) GetQuotaInfo(ctx context.Context, ownerID string) (domain.QuotaSnapshot, error) {
	snap, err := s.ledger.Snapshot(ctx, ownerID)
	if err != nil {
		return domain.QuotaSnapshot{}, fmt.Errorf("failed to get quota: %w", err)
	}
	return snap, nil
}

// CheckSpaceAvailable предварительная проверка для клиента. Окончательное
// решение принимается при записи в леджер.
func (s *StorageQuotaService) CheckSpaceAvailable(ctx context.Context, ownerID string, requiredBytes int64) (bool, error) {
	if requiredBytes < 0 {
		return false, fmt.Errorf("%w: %d", domain.ErrInvalidSize, requiredBytes)
	}
	snap, err := s.GetQuotaInfo(ctx, ownerID)
	if err != nil {
		return false, err
	}
	return requiredBytes <= snap.StorageRemaining, nil
}

// Reconcile сверка агрегатов пользователя с леджером, только для администратора
func (s *StorageQuotaService) Reconcile(ctx context.Context, ownerID string, fix bool) (*domain.ReconcileReport, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrInvalidInput)
	}
	return s.ledger.Reconcile(ctx, ownerID, fix)
}
