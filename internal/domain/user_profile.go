package domain

import "time"

type UserSettings struct {
	Theme                string `json:"theme" db:"theme"`
	LayoutPreference     string `json:"layoutPreference" db:"layout_preference"`
	SidebarCollapsed     bool   `json:"sidebarCollapsed" db:"sidebar_collapsed"`
	AnalyticsAutoRefresh bool   `json:"analyticsAutoRefresh" db:"analytics_auto_refresh"`
}

// DefaultUserSettings настройки нового пользователя
func DefaultUserSettings() UserSettings {
	return UserSettings{
		Theme:                "light",
		LayoutPreference:     "grid",
		SidebarCollapsed:     false,
		AnalyticsAutoRefresh: true,
	}
}

type UserProfile struct {
	OwnerID     string       `json:"id" db:"owner_id"`
	DisplayName string       `json:"displayName" db:"display_name"`
	Settings    UserSettings `json:"settings" db:"-"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

// SettingsUpdate частичное обновление настроек, nil поля не меняются
type SettingsUpdate struct {
	Theme                *string `json:"theme"`
	LayoutPreference     *string `json:"layoutPreference"`
	SidebarCollapsed     *bool   `json:"sidebarCollapsed"`
	AnalyticsAutoRefresh *bool   `json:"analyticsAutoRefresh"`
}

// Apply применяет изменения к настройкам
func (u SettingsUpdate) Apply(s *UserSettings) {
	if u.Theme != nil {
		s.Theme = *u.Theme
	}
	if u.LayoutPreference != nil {
		s.LayoutPreference = *u.LayoutPreference
	}
	if u.SidebarCollapsed != nil {
		s.SidebarCollapsed = *u.SidebarCollapsed
	}
	if u.AnalyticsAutoRefresh != nil {
		s.AnalyticsAutoRefresh = *u.AnalyticsAutoRefresh
	}
}

// ProfileUpdate изменение профиля
type ProfileUpdate struct {
	DisplayName *string         `json:"displayName"`
	Settings    *SettingsUpdate `json:"settings"`
}
