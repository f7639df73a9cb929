// storage.go
package s3

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound объекта с таким ключом нет в бакете
var ErrObjectNotFound = errors.New("object not found")

// Object определяет интерфейс для объектов S3
type Object interface {
	io.ReadCloser
	ContentLength() int64
	ContentType() string
}

// s3Object реализует интерфейс Object
type s3Object struct {
	io.ReadCloser
	contentLength int64
	contentType   string
}

func (o *s3Object) ContentLength() int64 {
	return o.contentLength
}

func (o *s3Object) ContentType() string {
	return o.contentType
}

// Storage определяет интерфейс для работы с S3-совместимым хранилищем
type Storage interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	GetObject(ctx context.Context, key string) (Object, error)
	// DeleteObject не считает отсутствие объекта ошибкой
	DeleteObject(ctx context.Context, key string) error
}
