package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"
	"github.com/google/uuid"

	"ecoleafdrive/internal/accounting"
	"ecoleafdrive/internal/domain"
	"ecoleafdrive/internal/repository"
	"ecoleafdrive/internal/service/s3"
)

const (
	defaultMIMEType     = "application/octet-stream"
	compensationTimeout = 30 * time.Second
)

// FileService представляет сервис для работы с файлами
type FileService struct {
	fileRepo *repository.FileRepository
	ledger   *accounting.Service
	s3Client s3.Storage
	clock    quartz.Clock
	logger   slog.Logger
}

func NewFileService(
	fileRepo *repository.FileRepository,
	ledger *accounting.Service,
	s3Client s3.Storage,
	clock quartz.Clock,
	logger slog.Logger,
) *FileService {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &FileService{
		fileRepo: fileRepo,
		ledger:   ledger,
		s3Client: s3Client,
		clock:    clock,
		logger:   logger.Named("files"),
	}
}

// UploadFile загружает файл. Место резервируется в леджере до загрузки в S3,
// при любой последующей ошибке резерв снимается.
func (s *FileService) UploadFile(ctx context.Context, upload domain.FileUpload, body io.Reader) (*domain.File, error) {
	if upload.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrInvalidInput)
	}
	name := strings.TrimSpace(upload.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: file name is required", domain.ErrInvalidInput)
	}
	if upload.Size < 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidSize, upload.Size)
	}
	mimeType := upload.MIMEType
	if mimeType == "" {
		mimeType = defaultMIMEType
	}

	fileID := uuid.New()
	file := &domain.File{
		ID:        fileID,
		OwnerID:   upload.OwnerID,
		Name:      name,
		MIMEType:  mimeType,
		SizeBytes: upload.Size,
		Category:  domain.CategoryFromMIME(mimeType, name),
		S3Key:     fmt.Sprintf("files/%s/%s", upload.OwnerID, fileID),
		CreatedAt: s.clock.Now().UTC(),
	}

	if _, err := s.ledger.OnFileCreated(ctx, file.OwnerID, fileID.String(), file.SizeBytes, file.Category); err != nil {
		return nil, fmt.Errorf("failed to reserve storage: %w", err)
	}

	if err := s.s3Client.PutObject(ctx, file.S3Key, body, file.SizeBytes, file.MIMEType); err != nil {
		s.releaseReservation(file)
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	if err := s.fileRepo.Create(ctx, file); err != nil {
		s.removeObject(file)
		s.releaseReservation(file)
		return nil, fmt.Errorf("failed to save file metadata: %w", err)
	}

	s.logger.Info(ctx, "file uploaded",
		slog.F("owner_id", file.OwnerID),
		slog.F("file_id", file.ID),
		slog.F("size_bytes", file.SizeBytes),
		slog.F("category", file.Category),
	)
	return file, nil
}

// ListFiles возвращает файлы пользователя, новые первыми
func (s *FileService) ListFiles(ctx context.Context, ownerID string) ([]domain.File, error) {
	files, err := s.fileRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

// DownloadFile возвращает метаданные и содержимое файла. Вызывающий
// обязан закрыть объект.
func (s *FileService) DownloadFile(ctx context.Context, ownerID string, fileID uuid.UUID) (*domain.File, s3.Object, error) {
	file, err := s.fileRepo.GetByID(ctx, ownerID, fileID)
	if err != nil {
		return nil, nil, err
	}

	obj, err := s.s3Client.GetObject(ctx, file.S3Key)
	if err != nil {
		if errors.Is(err, s3.ErrObjectNotFound) {
			s.logger.Error(ctx, "file content is missing in object storage",
				slog.F("owner_id", ownerID),
				slog.F("file_id", fileID),
				slog.F("s3_key", file.S3Key),
			)
			return nil, nil, fmt.Errorf("%w: file content", domain.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to get file content: %w", err)
	}
	return file, obj, nil
}

// DeleteFile удаляет метаданные, освобождает место и удаляет содержимое.
// Ошибка удаления из S3 только логируется: место уже освобождено.
func (s *FileService) DeleteFile(ctx context.Context, ownerID string, fileID uuid.UUID) error {
	file, err := s.fileRepo.GetByID(ctx, ownerID, fileID)
	if err != nil {
		return err
	}

	if err := s.fileRepo.Delete(ctx, ownerID, fileID); err != nil {
		return err
	}

	if err := s.ledger.OnFileDeleted(ctx, ownerID, fileID.String()); err != nil {
		s.logger.Critical(ctx, "file deleted but its storage is still accounted, run reconcile",
			slog.F("owner_id", ownerID),
			slog.F("file_id", fileID),
			slog.F("size_bytes", file.SizeBytes),
			slog.Error(err),
		)
		return fmt.Errorf("failed to release storage: %w", err)
	}

	if err := s.s3Client.DeleteObject(ctx, file.S3Key); err != nil {
		s.logger.Warn(ctx, "failed to delete file content, object left orphaned",
			slog.F("owner_id", ownerID),
			slog.F("s3_key", file.S3Key),
			slog.Error(err),
		)
	}

	s.logger.Info(ctx, "file deleted",
		slog.F("owner_id", ownerID),
		slog.F("file_id", fileID),
		slog.F("size_bytes", file.SizeBytes),
	)
	return nil
}

// releaseReservation снимает резерв после неудачной загрузки. Выполняется
// без контекста запроса: отмена запроса не должна оставлять место занятым.
func (s *FileService) releaseReservation(file *domain.File) {
	ctx, cancel := context.WithTimeout(context.Background(), compensationTimeout)
	defer cancel()

	if err := s.ledger.OnFileDeleted(ctx, file.OwnerID, file.ID.String()); err != nil {
		s.logger.Error(ctx, "failed to release storage reservation",
			slog.F("owner_id", file.OwnerID),
			slog.F("file_id", file.ID),
			slog.Error(err),
		)
	}
}

func (s *FileService) removeObject(file *domain.File) {
	ctx, cancel := context.WithTimeout(context.Background(), compensationTimeout)
	defer cancel()

	if err := s.s3Client.DeleteObject(ctx, file.S3Key); err != nil {
		s.logger.Warn(ctx, "failed to delete uploaded content",
			slog.F("s3_key", file.S3Key),
			slog.Error(err),
		)
	}
}
