package domain

import (
	"time"

	"github.com/google/uuid"
)

// Note заметка пользователя
type Note struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Title     string    `json:"title" db:"title"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Text текстовый фрагмент пользователя
type Text struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Title     string    `json:"title" db:"title"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ContentInput тело запроса на создание или изменение заметки/текста
type ContentInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ContentSize размер заметки или текста в байтах: заголовок плюс содержимое
func ContentSize(title, content string) int64 {
	return int64(len(title) + len(content))
}
