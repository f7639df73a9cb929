package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"ecoleafdrive/internal/domain"
)

type ProfileRepository struct {
	db *sqlx.DB
}

func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

type profileRow struct {
	OwnerID     string `db:"owner_id"`
	DisplayName string `db:"display_name"`
	domain.UserSettings
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *ProfileRepository) Get(ctx context.Context, ownerID string) (*domain.UserProfile, error) {
	var row profileRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
        SELECT owner_id, display_name, theme, layout_preference, sidebar_collapsed, analytics_auto_refresh, created_at, updated_at
        FROM user_profiles WHERE owner_id = ?`), ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: profile %s", domain.ErrNotFound, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return &domain.UserProfile{
		OwnerID:     row.OwnerID,
		DisplayName: row.DisplayName,
		Settings:    row.UserSettings,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

// Save создает или перезаписывает профиль
func (r *ProfileRepository) Save(ctx context.Context, p *domain.UserProfile) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
        INSERT INTO user_profiles (owner_id, display_name, theme, layout_preference, sidebar_collapsed, analytics_auto_refresh, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (owner_id) DO UPDATE
        SET display_name = excluded.display_name,
            theme = excluded.theme,
            layout_preference = excluded.layout_preference,
            sidebar_collapsed = excluded.sidebar_collapsed,
            analytics_auto_refresh = excluded.analytics_auto_refresh,
            updated_at = excluded.updated_at`),
		p.OwnerID,
		p.DisplayName,
		p.Settings.Theme,
		p.Settings.LayoutPreference,
		p.Settings.SidebarCollapsed,
		p.Settings.AnalyticsAutoRefresh,
		p.CreatedAt.UTC(),
		p.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}
