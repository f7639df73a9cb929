package domain

import "time"

const (
	// StorageLimit лимит хранилища на пользователя, 10GB
	StorageLimit int64 = 10 * 1024 * 1024 * 1024

	// TrendDays длина окна статистики загрузок
	TrendDays = 30

	TrendDateLayout = "2006-01-02"
)

// StorageQuota агрегированная строка учета пользователя
type StorageQuota struct {
	OwnerID      string    `json:"owner_id" db:"owner_id"`
	StorageLimit int64     `json:"storage_limit" db:"storage_limit"`
	StorageUsed  int64     `json:"storage_used" db:"storage_used"`
	FileCount    int64     `json:"file_count" db:"file_count"`
	NotesCount   int64     `json:"notes_count" db:"notes_count"`
	TextsCount   int64     `json:"texts_count" db:"texts_count"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// CategoryUsage занятое место и число файлов в одной категории
type CategoryUsage struct {
	Bytes int64 `json:"bytes" db:"bytes"`
	Files int64 `json:"files" db:"file_count"`
}

// TrendBucket счетчик загрузок за один день (UTC)
type TrendBucket struct {
	Day   string `json:"day" db:"day"`
	Count int64  `json:"count" db:"upload_count"`
	Bytes int64  `json:"bytes" db:"upload_bytes"`
}

// AccountState полное сохраненное состояние учета пользователя
type AccountState struct {
	OwnerID      string
	StorageLimit int64
	StorageUsed  int64
	FileCount    int64
	NotesCount   int64
	TextsCount   int64
	ByType       map[Category]CategoryUsage
	Trends       []TrendBucket
}

// NewAccountState нулевое состояние для пользователя без объектов
func NewAccountState(ownerID string) *AccountState {
	return &AccountState{
		OwnerID:      ownerID,
		StorageLimit: StorageLimit,
		ByType:       make(map[Category]CategoryUsage, len(Categories)),
	}
}

// Entries число живых записей леджера
func (s *AccountState) Entries() int64 {
	return s.FileCount + s.NotesCount + s.TextsCount
}

// QuotaSnapshot текущее состояние квоты
type QuotaSnapshot struct {
	StorageUsed      int64              `json:"storageUsed"`
	StorageRemaining int64              `json:"storageRemaining"`
	StorageLimit     int64              `json:"storageLimit"`
	PercentageUsed   float64            `json:"percentageUsed"`
	StorageByType    map[Category]int64 `json:"storageByType"`
}

// StorageStats ответ /storage/stats
type StorageStats struct {
	StorageUsed      int64              `json:"storageUsed"`
	StorageRemaining int64              `json:"storageRemaining"`
	StorageLimit     int64              `json:"storageLimit"`
	PercentageUsed   float64            `json:"percentageUsed"`
	FileCount        int64              `json:"fileCount"`
	NotesCount       int64              `json:"notesCount"`
	TextsCount       int64              `json:"textsCount"`
	StorageByType    map[Category]int64 `json:"storageByType"`
}

// TrendPoint точка графика загрузок
type TrendPoint struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
	Size  int64  `json:"size"`
}

// Analytics ответ /analytics. FileTypeDistribution содержит количество
// файлов по категориям, байты отдаются в StorageStats.StorageByType
type Analytics struct {
	TotalFiles           int64              `json:"totalFiles"`
	TotalStorage         int64              `json:"totalStorage"`
	NotesCount           int64              `json:"notesCount"`
	TextsCount           int64              `json:"textsCount"`
	FileTypeDistribution map[Category]int64 `json:"fileTypeDistribution"`
	UploadTrends         []TrendPoint       `json:"uploadTrends"`
}

// ReconcileReport результат сверки агрегатов с записями леджера
type ReconcileReport struct {
	OwnerID string        `json:"owner_id"`
	Stored  *AccountState `json:"stored"`
	Actual  *AccountState `json:"actual"`
	Drift   bool          `json:"drift"`
	Fixed   bool          `json:"fixed"`
}
