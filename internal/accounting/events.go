package accounting

import (
	"context"
	"errors"
	"fmt"

	"cdr.dev/slog/v3"

	"ecoleafdrive/internal/domain"
)

// События от сервисов файлов, заметок и текстов. ownerID всегда приходит
// уже проверенным сервисом авторизации.

func (s *Service) OnFileCreated(ctx context.Context, ownerID, fileID string, sizeBytes int64, category domain.Category) (string, error) {
	return s.Record(ctx, RecordParams{
		ID:        fileID,
		OwnerID:   ownerID,
		Kind:      domain.KindFile,
		SizeBytes: sizeBytes,
		Category:  category,
	})
}

func (s *Service) OnFileDeleted(ctx context.Context, ownerID, fileID string) error {
	return s.forget(ctx, ownerID, fileID)
}

func (s *Service) OnObjectCreated(ctx context.Context, ownerID, objectID string, kind domain.ObjectKind, sizeBytes int64) (string, error) {
	if kind == domain.KindFile {
		return "", fmt.Errorf("%w: files are reported with OnFileCreated", domain.ErrInvalidKind)
	}
	return s.Record(ctx, RecordParams{
		ID:        objectID,
		OwnerID:   ownerID,
		Kind:      kind,
		SizeBytes: sizeBytes,
		Category:  domain.CategoryOthers,
	})
}

func (s *Service) OnObjectUpdated(ctx context.Context, ownerID, objectID string, newSizeBytes int64) error {
	return s.Resize(ctx, ownerID, objectID, newSizeBytes)
}

func (s *Service) OnObjectDeleted(ctx context.Context, ownerID, objectID string) error {
	return s.forget(ctx, ownerID, objectID)
}

// forget удаление, для которого отсутствие записи не ошибка
func (s *Service) forget(ctx context.Context, ownerID, entryID string) error {
	err := s.Remove(ctx, ownerID, entryID)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn(ctx, "delete event for unknown ledger entry",
			slog.F("owner_id", ownerID),
			slog.F("entry_id", entryID),
		)
		return nil
	}
	return err
}
