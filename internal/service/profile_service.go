package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"

	"ecoleafdrive/internal/domain"
	"ecoleafdrive/internal/repository"
)

const maxDisplayNameLength = 100

var (
	validThemes  = map[string]bool{"light": true, "dark": true}
	validLayouts = map[string]bool{"grid": true, "list": true}
)

// ProfileService профиль и настройки интерфейса пользователя
type ProfileService struct {
	profileRepo *repository.ProfileRepository
	clock       quartz.Clock
	logger      slog.Logger
}

func NewProfileService(profileRepo *repository.ProfileRepository, clock quartz.Clock, logger slog.Logger) *ProfileService {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &ProfileService{
		profileRepo: profileRepo,
		clock:       clock,
		logger:      logger.Named("profiles"),
	}
}

// GetProfile возвращает профиль, при первом обращении создает его с
// настройками по умолчанию
func (s *ProfileService) GetProfile(ctx context.Context, ownerID string) (*domain.UserProfile, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrInvalidInput)
	}

	profile, err := s.profileRepo.Get(ctx, ownerID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := s.clock.Now().UTC()
	profile = &domain.UserProfile{
		OwnerID:   ownerID,
		Settings:  domain.DefaultUserSettings(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.profileRepo.Save(ctx, profile); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "profile created", slog.F("owner_id", ownerID))
	return profile, nil
}

func (s *ProfileService) UpdateProfile(ctx context.Context, ownerID string, update domain.ProfileUpdate) (*domain.UserProfile, error) {
	if update.DisplayName != nil {
		name := strings.TrimSpace(*update.DisplayName)
		if len(name) > maxDisplayNameLength {
			return nil, fmt.Errorf("%w: display name is longer than %d bytes", domain.ErrInvalidInput, maxDisplayNameLength)
		}
		update.DisplayName = &name
	}
	if update.Settings != nil {
		if err := validateSettings(*update.Settings); err != nil {
			return nil, err
		}
	}

	profile, err := s.GetProfile(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if update.DisplayName != nil {
		profile.DisplayName = *update.DisplayName
	}
	if update.Settings != nil {
		update.Settings.Apply(&profile.Settings)
	}
	profile.UpdatedAt = s.clock.Now().UTC()

	if err := s.profileRepo.Save(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// UpdateSettings меняет только переданные настройки
func (s *ProfileService) UpdateSettings(ctx context.Context, ownerID string, update domain.SettingsUpdate) (*domain.UserProfile, error) {
	return s.UpdateProfile(ctx, ownerID, domain.ProfileUpdate{Settings: &update})
}

func validateSettings(u domain.SettingsUpdate) error {
	if u.Theme != nil && !validThemes[*u.Theme] {
		return fmt.Errorf("%w: unknown theme %q", domain.ErrInvalidInput, *u.Theme)
	}
	if u.LayoutPreference != nil && !validLayouts[*u.LayoutPreference] {
		return fmt.Errorf("%w: unknown layout %q", domain.ErrInvalidInput, *u.LayoutPreference)
	}
	return nil
}
