package domain

import "time"

// LedgerEntry один объект, занимающий место: файл, заметка или текст
type LedgerEntry struct {
	ID        string     `json:"id" db:"id"`
	OwnerID   string     `json:"owner_id" db:"owner_id"`
	Kind      ObjectKind `json:"kind" db:"kind"`
	SizeBytes int64      `json:"size_bytes" db:"size_bytes"`
	Category  Category   `json:"category" db:"category"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}
