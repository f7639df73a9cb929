package domain

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Category тип содержимого, по которому разбивается занятое место
type Category string

const (
	CategoryImage  Category = "image"
	CategoryVideo  Category = "video"
	CategoryAudio  Category = "audio"
	CategoryPDF    Category = "pdf"
	CategoryOthers Category = "others"
)

// Categories фиксированный набор категорий в порядке отчета
var Categories = []Category{
	CategoryImage,
	CategoryVideo,
	CategoryAudio,
	CategoryPDF,
	CategoryOthers,
}

func (c Category) Valid() bool {
	switch c {
	case CategoryImage, CategoryVideo, CategoryAudio, CategoryPDF, CategoryOthers:
		return true
	}
	return false
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}

// CategoryFromMIME определяет категорию файла по MIME-типу, а если он
// не задан или общий, то по расширению
func CategoryFromMIME(mimeType, filename string) Category {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return CategoryImage
	case strings.HasPrefix(mimeType, "video/"):
		return CategoryVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return CategoryAudio
	case mimeType == "application/pdf":
		return CategoryPDF
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".heic", ".svg":
		return CategoryImage
	case ".mp4", ".mov", ".mkv", ".avi", ".webm":
		return CategoryVideo
	case ".mp3", ".wav", ".flac", ".ogg", ".m4a", ".aac":
		return CategoryAudio
	case ".pdf":
		return CategoryPDF
	}

	return CategoryOthers
}

// ObjectKind вид объекта, занимающего место
type ObjectKind string

const (
	KindFile ObjectKind = "file"
	KindNote ObjectKind = "note"
	KindText ObjectKind = "text"
)

func (k ObjectKind) Valid() bool {
	return k == KindFile || k == KindNote || k == KindText
}

func ParseObjectKind(s string) (ObjectKind, error) {
	k := ObjectKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}
