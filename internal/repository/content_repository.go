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

// contentTable общая схема заметок и текстов: у обеих таблиц одинаковые
// колонки, отличается только имя
type contentTable struct {
	db    *sqlx.DB
	table string
	label string
}

func (t contentTable) create(ctx context.Context, row *domain.Note) error {
	query := t.db.Rebind(fmt.Sprintf(`
        INSERT INTO %s (id, owner_id, title, content, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)`, t.table))

	_, err := t.db.ExecContext(ctx, query,
		row.ID, row.OwnerID, row.Title, row.Content, row.CreatedAt.UTC(), row.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", t.label, err)
	}
	return nil
}

func (t contentTable) get(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Note, error) {
	var row domain.Note
	query := t.db.Rebind(fmt.Sprintf(`
        SELECT id, owner_id, title, content, created_at, updated_at
        FROM %s WHERE id = ? AND owner_id = ?`, t.table))

	err := t.db.GetContext(ctx, &row, query, id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", domain.ErrNotFound, t.label, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", t.label, err)
	}
	return &row, nil
}

func (t contentTable) list(ctx context.Context, ownerID string) ([]domain.Note, error) {
	rows := make([]domain.Note, 0)
	query := t.db.Rebind(fmt.Sprintf(`
        SELECT id, owner_id, title, content, created_at, updated_at
        FROM %s WHERE owner_id = ?
        ORDER BY updated_at DESC`, t.table))

	if err := t.db.SelectContext(ctx, &rows, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list %ss: %w", t.label, err)
	}
	return rows, nil
}

func (t contentTable) update(ctx context.Context, row *domain.Note) error {
	query := t.db.Rebind(fmt.Sprintf(`
        UPDATE %s SET title = ?, content = ?, updated_at = ?
        WHERE id = ? AND owner_id = ?`, t.table))

	res, err := t.db.ExecContext(ctx, query, row.Title, row.Content, row.UpdatedAt.UTC(), row.ID, row.OwnerID)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", t.label, err)
	}
	return expectRow(res, fmt.Errorf("%w: %s %s", domain.ErrNotFound, t.label, row.ID))
}

func (t contentTable) delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	query := t.db.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND owner_id = ?`, t.table))

	res, err := t.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", t.label, err)
	}
	return expectRow(res, fmt.Errorf("%w: %s %s", domain.ErrNotFound, t.label, id))
}

type NoteRepository struct {
	t contentTable
}

func NewNoteRepository(db *sqlx.DB) *NoteRepository {
	return &NoteRepository{t: contentTable{db: db, table: "notes", label: "note"}}
}

func (r *NoteRepository) Create(ctx context.Context, note *domain.Note) error {
	return r.t.create(ctx, note)
}

func (r *NoteRepository) Get(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Note, error) {
	return r.t.get(ctx, ownerID, id)
}

func (r *NoteRepository) List(ctx context.Context, ownerID string) ([]domain.Note, error) {
	return r.t.list(ctx, ownerID)
}

func (r *NoteRepository) Update(ctx context.Context, note *domain.Note) error {
	return r.t.update(ctx, note)
}

func (r *NoteRepository) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	return r.t.delete(ctx, ownerID, id)
}

type TextRepository struct {
	t contentTable
}

func NewTextRepository(db *sqlx.DB) *TextRepository {
	return &TextRepository{t: contentTable{db: db, table: "texts", label: "text"}}
}

func (r *TextRepository) Create(ctx context.Context, text *domain.Text) error {
	return r.t.create(ctx, (*domain.Note)(text))
}

func (r *TextRepository) Get(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Text, error) {
	row, err := r.t.get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return (*domain.Text)(row), nil
}

func (r *TextRepository) List(ctx context.Context, ownerID string) ([]domain.Text, error) {
	rows, err := r.t.list(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	texts := make([]domain.Text, 0, len(rows))
	for _, row := range rows {
		texts = append(texts, domain.Text(row))
	}
	return texts, nil
}

func (r *TextRepository) Update(ctx context.Context, text *domain.Text) error {
	return r.t.update(ctx, (*domain.Note)(text))
}

func (r *TextRepository) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	return r.t.delete(ctx, ownerID, id)
}
