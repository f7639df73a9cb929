package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"ecoleafdrive/internal/accounting"
	"ecoleafdrive/internal/domain"
)

var _ accounting.Store = (*LedgerRepository)(nil)

// LedgerRepository хранит леджер объектов и агрегаты учета. Каждая
// мутация выполняется одной транзакцией: запись леджера, итоги
// пользователя, разбивка по категориям и дневной счетчик.
type LedgerRepository struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

type usageRow struct {
	Category domain.Category `db:"category"`
	domain.CategoryUsage
}

func (r *LedgerRepository) LoadAccount(ctx context.Context, ownerID string, since time.Time) (*domain.AccountState, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	state := domain.NewAccountState(ownerID)

	var quota domain.StorageQuota
	err = tx.GetContext(ctx, &quota, tx.Rebind(`
        SELECT owner_id, storage_limit, storage_used, file_count, notes_count, texts_count, created_at, updated_at
        FROM storage_quotas WHERE owner_id = ?`), ownerID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Пользователь без объектов
		return state, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get quota: %w", err)
	}

	state.StorageLimit = quota.StorageLimit
	state.StorageUsed = quota.StorageUsed
	state.FileCount = quota.FileCount
	state.NotesCount = quota.NotesCount
	state.TextsCount = quota.TextsCount

	var usage []usageRow
	err = tx.SelectContext(ctx, &usage, tx.Rebind(`
        SELECT category, bytes, file_count FROM storage_usage_by_type WHERE owner_id = ?`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get usage by type: %w", err)
	}
	for _, u := range usage {
		state.ByType[u.Category] = u.CategoryUsage
	}

	err = tx.SelectContext(ctx, &state.Trends, tx.Rebind(`
        SELECT day, upload_count, upload_bytes FROM upload_trends
        WHERE owner_id = ? AND day >= ?
        ORDER BY day`), ownerID, since.UTC().Format(domain.TrendDateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to get upload trends: %w", err)
	}

	return state, tx.Commit()
}

func (r *LedgerRepository) GetEntry(ctx context.Context, ownerID, entryID string) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := r.db.GetContext(ctx, &entry, r.db.Rebind(`
        SELECT id, owner_id, kind, size_bytes, category, created_at, updated_at
        FROM ledger_entries WHERE id = ? AND owner_id = ?`), entryID, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: ledger entry %s", domain.ErrNotFound, entryID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return &entry, nil
}

func (r *LedgerRepository) InsertEntry(ctx context.Context, entry *domain.LedgerEntry, limit int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if err := ensureQuota(ctx, tx, entry.OwnerID, limit, now); err != nil {
		return err
	}

	var exists int
	err = tx.GetContext(ctx, &exists, tx.Rebind(`SELECT COUNT(*) FROM ledger_entries WHERE id = ?`), entry.ID)
	if err != nil {
		return fmt.Errorf("failed to check ledger entry: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", domain.ErrEntryExists, entry.ID)
	}

	// Повторная проверка лимита внутри транзакции
	files, notes, texts := kindCounters(entry.Kind, 1)
	res, err := tx.ExecContext(ctx, tx.Rebind(`
        UPDATE storage_quotas
        SET storage_used = storage_used + ?,
            file_count = file_count + ?,
            notes_count = notes_count + ?,
            texts_count = texts_count + ?,
            updated_at = ?
        WHERE owner_id = ? AND storage_used + ? <= storage_limit`),
		entry.SizeBytes, files, notes, texts, now, entry.OwnerID, entry.SizeBytes)
	if err != nil {
		return fmt.Errorf("failed to update quota: %w", err)
	}
	if err := expectRow(res, fmt.Errorf("%w: %d bytes for %s", domain.ErrQuotaExceeded, entry.SizeBytes, entry.OwnerID)); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
        INSERT INTO storage_usage_by_type (owner_id, category, bytes, file_count)
        VALUES (?, ?, ?, ?)
        ON CONFLICT (owner_id, category) DO UPDATE
        SET bytes = storage_usage_by_type.bytes + excluded.bytes,
            file_count = storage_usage_by_type.file_count + excluded.file_count`),
		entry.OwnerID, entry.Category, entry.SizeBytes, files)
	if err != nil {
		return fmt.Errorf("failed to update usage by type: %w", err)
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
        INSERT INTO ledger_entries (id, owner_id, kind, size_bytes, category, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`),
		entry.ID, entry.OwnerID, entry.Kind, entry.SizeBytes, entry.Category, entry.CreatedAt.UTC(), entry.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
        INSERT INTO upload_trends (owner_id, day, upload_count, upload_bytes)
        VALUES (?, ?, 1, ?)
        ON CONFLICT (owner_id, day) DO UPDATE
        SET upload_count = upload_trends.upload_count + excluded.upload_count,
            upload_bytes = upload_trends.upload_bytes + excluded.upload_bytes`),
		entry.OwnerID, entry.CreatedAt.UTC().Format(domain.TrendDateLayout), entry.SizeBytes)
	if err != nil {
		return fmt.Errorf("failed to update upload trend: %w", err)
	}

	return tx.Commit()
}

func (r *LedgerRepository) DeleteEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM ledger_entries WHERE id = ? AND owner_id = ?`),
		entry.ID, entry.OwnerID)
	if err != nil {
		return fmt.Errorf("failed to delete ledger entry: %w", err)
	}
	if err := expectRow(res, fmt.Errorf("%w: ledger entry %s", domain.ErrNotFound, entry.ID)); err != nil {
		return err
	}

	files, notes, texts := kindCounters(entry.Kind, 1)
	res, err = tx.ExecContext(ctx, tx.Rebind(`
        UPDATE storage_quotas
        SET storage_used = storage_used - ?,
            file_count = file_count - ?,
            notes_count = notes_count - ?,
            texts_count = texts_count - ?,
            updated_at = ?
        WHERE owner_id = ? AND storage_used >= ?
          AND file_count >= ? AND notes_count >= ? AND texts_count >= ?`),
		entry.SizeBytes, files, notes, texts, time.Now().UTC(), entry.OwnerID, entry.SizeBytes, files, notes, texts)
	if err != nil {
		return fmt.Errorf("failed to update quota: %w", err)
	}
	if err := expectRow(res, fmt.Errorf("%w: release of %d bytes for %s", domain.ErrInvariantViolation, entry.SizeBytes, entry.OwnerID)); err != nil {
		return err
	}

	res, err = tx.ExecContext(ctx, tx.Rebind(`
        UPDATE storage_usage_by_type
        SET bytes = bytes - ?, file_count = file_count - ?
        WHERE owner_id = ? AND category = ? AND bytes >= ? AND file_count >= ?`),
		entry.SizeBytes, files, entry.OwnerID, entry.Category, entry.SizeBytes, files)
	if err != nil {
		return fmt.Errorf("failed to update usage by type: %w", err)
	}
	if err := expectRow(res, fmt.Errorf("%w: release of %d bytes from %s", domain.ErrInvariantViolation, entry.SizeBytes, entry.Category)); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *LedgerRepository) ResizeEntry(ctx context.Context, entry *domain.LedgerEntry, newSize, limit int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	delta := newSize - entry.SizeBytes

	// Размер в леджере должен совпадать с тем, от которого считали разницу
	res, err := tx.ExecContext(ctx, tx.Rebind(`
        UPDATE ledger_entries SET size_bytes = ?, updated_at = ?
        WHERE id = ? AND owner_id = ? AND size_bytes = ?`),
		newSize, now, entry.ID, entry.OwnerID, entry.SizeBytes)
	if err != nil {
		return fmt.Errorf("failed to resize ledger entry: %w", err)
	}
	if err := expectRow(res, fmt.Errorf("%w: ledger entry %s with size %d", domain.ErrNotFound, entry.ID, entry.SizeBytes)); err != nil {
		return err
	}

	if delta > 0 {
		if err := ensureQuota(ctx, tx, entry.OwnerID, limit, now); err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, tx.Rebind(`
            UPDATE storage_quotas SET storage_used = storage_used + ?, updated_at = ?
            WHERE owner_id = ? AND storage_used + ? <= storage_limit`),
			delta, now, entry.OwnerID, delta)
		if err != nil {
			return fmt.Errorf("failed to update quota: %w", err)
		}
		if err := expectRow(res, fmt.Errorf("%w: %d bytes for %s", domain.ErrQuotaExceeded, delta, entry.OwnerID)); err != nil {
			return err
		}
	} else {
		res, err = tx.ExecContext(ctx, tx.Rebind(`
            UPDATE storage_quotas SET storage_used = storage_used - ?, updated_at = ?
            WHERE owner_id = ? AND storage_used >= ?`),
			-delta, now, entry.OwnerID, -delta)
		if err != nil {
			return fmt.Errorf("failed to update quota: %w", err)
		}
		if err := expectRow(res, fmt.Errorf("%w: release of %d bytes for %s", domain.ErrInvariantViolation, -delta, entry.OwnerID)); err != nil {
			return err
		}
	}

	res, err = tx.ExecContext(ctx, tx.Rebind(`
        UPDATE storage_usage_by_type SET bytes = bytes + ?
        WHERE owner_id = ? AND category = ? AND bytes + ? >= 0`),
		delta, entry.OwnerID, entry.Category, delta)
	if err != nil {
		return fmt.Errorf("failed to update usage by type: %w", err)
	}
	if err := expectRow(res, fmt.Errorf("%w: resize of %s in %s", domain.ErrInvariantViolation, entry.ID, entry.Category)); err != nil {
		return err
	}

	return tx.Commit()
}

type kindTotal struct {
	Kind     domain.ObjectKind `db:"kind"`
	Category domain.Category   `db:"category"`
	Count    int64             `db:"entries"`
	Bytes    int64             `db:"total"`
}

func (r *LedgerRepository) RecomputeAccount(ctx context.Context, ownerID string) (*domain.AccountState, error) {
	var totals []kindTotal
	err := r.db.SelectContext(ctx, &totals, r.db.Rebind(`
        SELECT kind, category, COUNT(*) AS entries, COALESCE(SUM(size_bytes), 0) AS total
        FROM ledger_entries
        WHERE owner_id = ?
        GROUP BY kind, category`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to recompute account: %w", err)
	}

	state := domain.NewAccountState(ownerID)
	for _, t := range totals {
		state.StorageUsed += t.Bytes
		u := state.ByType[t.Category]
		u.Bytes += t.Bytes
		switch t.Kind {
		case domain.KindFile:
			state.FileCount += t.Count
			u.Files += t.Count
		case domain.KindNote:
			state.NotesCount += t.Count
		case domain.KindText:
			state.TextsCount += t.Count
		}
		state.ByType[t.Category] = u
	}
	return state, nil
}

func (r *LedgerRepository) ReplaceAccount(ctx context.Context, state *domain.AccountState) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, tx.Rebind(`
        INSERT INTO storage_quotas (owner_id, storage_limit, storage_used, file_count, notes_count, texts_count, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (owner_id) DO UPDATE
        SET storage_limit = excluded.storage_limit,
            storage_used = excluded.storage_used,
            file_count = excluded.file_count,
            notes_count = excluded.notes_count,
            texts_count = excluded.texts_count,
            updated_at = excluded.updated_at`),
		state.OwnerID, state.StorageLimit, state.StorageUsed, state.FileCount, state.NotesCount, state.TextsCount, now, now)
	if err != nil {
		return fmt.Errorf("failed to replace quota: %w", err)
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM storage_usage_by_type WHERE owner_id = ?`), state.OwnerID)
	if err != nil {
		return fmt.Errorf("failed to clear usage by type: %w", err)
	}
	for c, u := range state.ByType {
		_, err = tx.ExecContext(ctx, tx.Rebind(`
            INSERT INTO storage_usage_by_type (owner_id, category, bytes, file_count) VALUES (?, ?, ?, ?)`),
			state.OwnerID, c, u.Bytes, u.Files)
		if err != nil {
			return fmt.Errorf("failed to insert usage by type: %w", err)
		}
	}

	return tx.Commit()
}

func (r *LedgerRepository) PruneTrends(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM upload_trends WHERE day < ?`),
		before.UTC().Format(domain.TrendDateLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to prune upload trends: %w", err)
	}
	return res.RowsAffected()
}

// ensureQuota создает строку итогов пользователя, если ее еще нет
func ensureQuota(ctx context.Context, tx *sqlx.Tx, ownerID string, limit int64, now time.Time) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
        INSERT INTO storage_quotas (owner_id, storage_limit, storage_used, file_count, notes_count, texts_count, created_at, updated_at)
        VALUES (?, ?, 0, 0, 0, 0, ?, ?)
        ON CONFLICT (owner_id) DO NOTHING`),
		ownerID, limit, now, now)
	if err != nil {
		return fmt.Errorf("failed to create quota: %w", err)
	}
	return nil
}

func kindCounters(kind domain.ObjectKind, n int64) (files, notes, texts int64) {
	switch kind {
	case domain.KindFile:
		files = n
	case domain.KindNote:
		notes = n
	case domain.KindText:
		texts = n
	}
	return files, notes, texts
}

func expectRow(res sql.Result, notMatched error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return notMatched
	}
	return nil
}
