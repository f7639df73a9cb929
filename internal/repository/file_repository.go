package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"ecoleafdrive/internal/domain"
)

type FileRepository struct {
	db *sqlx.DB
}

func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Create(ctx context.Context, file *domain.File) error {
	query := r.db.Rebind(`
        INSERT INTO files (id, owner_id, name, mime_type, size_bytes, category, s3_key, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		file.ID,
		file.OwnerID,
		file.Name,
		file.MIMEType,
		file.SizeBytes,
		file.Category,
		file.S3Key,
		file.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}
	return nil
}

func (r *FileRepository) GetByID(ctx context.Context, ownerID string, id uuid.UUID) (*domain.File, error) {
	var file domain.File
	query := r.db.Rebind(`
        SELECT id, owner_id, name, mime_type, size_bytes, category, s3_key, created_at
        FROM files WHERE id = ? AND owner_id = ?`)

	err := r.db.GetContext(ctx, &file, query, id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: file %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	return &file, nil
}

// ListByOwner файлы пользователя, новые первыми
func (r *FileRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.File, error) {
	files := make([]domain.File, 0)
	query := r.db.Rebind(`
        SELECT id, owner_id, name, mime_type, size_bytes, category, s3_key, created_at
        FROM files WHERE owner_id = ?
        ORDER BY created_at DESC, name`)

	if err := r.db.SelectContext(ctx, &files, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return files, nil
}

func (r *FileRepository) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM files WHERE id = ? AND owner_id = ?`), id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return expectRow(res, fmt.Errorf("%w: file %s", domain.ErrNotFound, id))
}
