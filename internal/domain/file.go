package domain

import (
	"time"

	"github.com/google/uuid"
)

type File struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Name      string    `json:"name" db:"name"`
	MIMEType  string    `json:"mime_type" db:"mime_type"`
	SizeBytes int64     `json:"size_bytes" db:"size_bytes"`
	Category  Category  `json:"category" db:"category"`
	S3Key     string    `json:"-" db:"s3_key"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type FileUpload struct {
	Name     string
	MIMEType string
	Size     int64
	OwnerID  string
}

type FileDownload struct {
	File *File
	Data []byte
}
