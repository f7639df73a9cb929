package domain

import "errors"

// Ошибки учета хранилища. Проверяются через errors.Is на границе HTTP/gRPC.
var (
	ErrQuotaExceeded      = errors.New("storage quota exceeded")
	ErrNotFound           = errors.New("not found")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrInvalidKind        = errors.New("invalid object kind")
	ErrInvalidSize        = errors.New("invalid size")
	ErrEntryExists        = errors.New("ledger entry already exists")
	ErrInvariantViolation = errors.New("storage accounting invariant violated")
	ErrInvalidInput       = errors.New("invalid input")
)
