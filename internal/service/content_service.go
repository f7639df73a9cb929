package service

import (
	"context"
	"fmt"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"
	"github.com/google/uuid"

	"ecoleafdrive/internal/accounting"
	"ecoleafdrive/internal/domain"
	"ecoleafdrive/internal/repository"
)

// contentLedger общая часть учета заметок и текстов: размер объекта равен
// длине заголовка и содержимого в байтах
type contentLedger struct {
	ledger *accounting.Service
	kind   domain.ObjectKind
	logger slog.Logger
}

// admit резервирует место под новый объект, persist сохраняет его. Если
// сохранить не удалось, резерв снимается.
func (c contentLedger) admit(ctx context.Context, ownerID string, id uuid.UUID, in domain.ContentInput, persist func() error) error {
	size := domain.ContentSize(in.Title, in.Content)
	if _, err := c.ledger.OnObjectCreated(ctx, ownerID, id.String(), c.kind, size); err != nil {
		return fmt.Errorf("failed to reserve storage for %s: %w", c.kind, err)
	}

	if err := persist(); err != nil {
		c.compensate(ownerID, id, func(ctx context.Context) error {
			return c.ledger.OnObjectDeleted(ctx, ownerID, id.String())
		})
		return fmt.Errorf("failed to save %s: %w", c.kind, err)
	}
	return nil
}

// resize меняет размер в леджере и сохраняет объект под блокировкой
// владельца: параллельные правки одного объекта не перемешиваются. Рост
// сверх квоты отклоняется до записи, при ошибке записи размер возвращается.
func (c contentLedger) resize(ctx context.Context, ownerID string, id uuid.UUID, in domain.ContentInput, persist func(context.Context) error) error {
	newSize := domain.ContentSize(in.Title, in.Content)
	if err := c.ledger.ResizeWith(ctx, ownerID, id.String(), newSize, persist); err != nil {
		return fmt.Errorf("failed to update %s: %w", c.kind, err)
	}
	return nil
}

// release освобождает место удаленного объекта. Объект уже удален, поэтому
// ошибка означает место, занятое несуществующим объектом.
func (c contentLedger) release(ctx context.Context, ownerID string, id uuid.UUID) error {
	if err := c.ledger.OnObjectDeleted(ctx, ownerID, id.String()); err != nil {
		c.logger.Critical(ctx, "object deleted but its storage is still accounted, run reconcile",
			slog.F("owner_id", ownerID),
			slog.F("object_id", id),
			slog.F("kind", c.kind),
			slog.Error(err),
		)
		return fmt.Errorf("failed to release storage for %s: %w", c.kind, err)
	}
	return nil
}

func (c contentLedger) compensate(ownerID string, id uuid.UUID, undo func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), compensationTimeout)
	defer cancel()

	if err := undo(ctx); err != nil {
		c.logger.Error(ctx, "failed to roll back storage accounting",
			slog.F("owner_id", ownerID),
			slog.F("object_id", id),
			slog.F("kind", c.kind),
			slog.Error(err),
		)
	}
}

// NoteService заметки пользователя
type NoteService struct {
	noteRepo *repository.NoteRepository
	ledger   contentLedger
	clock    quartz.Clock
	logger   slog.Logger
}

func NewNoteService(noteRepo *repository.NoteRepository, ledger *accounting.Service, clock quartz.Clock, logger slog.Logger) *NoteService {
	if clock == nil {
		clock = quartz.NewReal()
	}
	logger = logger.Named("notes")
	return &NoteService{
		noteRepo: noteRepo,
		ledger:   contentLedger{ledger: ledger, kind: domain.KindNote, logger: logger},
		clock:    clock,
		logger:   logger,
	}
}

func (s *NoteService) CreateNote(ctx context.Context, ownerID string, in domain.ContentInput) (*domain.Note, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrInvalidInput)
	}

	now := s.clock.Now().UTC()
	note := &domain.Note{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Title:     in.Title,
		Content:   in.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.ledger.admit(ctx, ownerID, note.ID, in, func() error {
		return s.noteRepo.Create(ctx, note)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "note created", slog.F("owner_id", ownerID), slog.F("note_id", note.ID))
	return note, nil
}

func (s *NoteService) GetNote(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Note, error) {
	return s.noteRepo.Get(ctx, ownerID, id)
}

func (s *NoteService) ListNotes(ctx context.Context, ownerID string) ([]domain.Note, error) {
	notes, err := s.noteRepo.List(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return notes, nil
}

func (s *NoteService) UpdateNote(ctx context.Context, ownerID string, id uuid.UUID, in domain.ContentInput) (*domain.Note, error) {
	note, err := s.noteRepo.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	note.Title = in.Title
	note.Content = in.Content

	err = s.ledger.resize(ctx, ownerID, id, in, func(ctx context.Context) error {
		note.UpdatedAt = s.clock.Now().UTC()
		return s.noteRepo.Update(ctx, note)
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

func (s *NoteService) DeleteNote(ctx context.Context, ownerID string, id uuid.UUID) error {
	if err := s.noteRepo.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	return s.ledger.release(ctx, ownerID, id)
}

// TextService текстовые фрагменты пользователя
type TextService struct {
	textRepo *repository.TextRepository
	ledger   contentLedger
	clock    quartz.Clock
	logger   slog.Logger
}

func NewTextService(textRepo *repository.TextRepository, ledger *accounting.Service, clock quartz.Clock, logger slog.Logger) *TextService {
	if clock == nil {
		clock = quartz.NewReal()
	}
	logger = logger.Named("texts")
	return &TextService{
		textRepo: textRepo,
		ledger:   contentLedger{ledger: ledger, kind: domain.KindText, logger: logger},
		clock:    clock,
		logger:   logger,
	}
}

func (s *TextService) CreateText(ctx context.Context, ownerID string, in domain.ContentInput) (*domain.Text, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrInvalidInput)
	}

	now := s.clock.Now().UTC()
	text := &domain.Text{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Title:     in.Title,
		Content:   in.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.ledger.admit(ctx, ownerID, text.ID, in, func() error {
		return s.textRepo.Create(ctx, text)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "text created", slog.F("owner_id", ownerID), slog.F("text_id", text.ID))
	return text, nil
}

func (s *TextService) GetText(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Text, error) {
	return s.textRepo.Get(ctx, ownerID, id)
}

func (s *TextService) ListTexts(ctx context.Context, ownerID string) ([]domain.Text, error) {
	texts, err := s.textRepo.List(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list texts: %w", err)
	}
	return texts, nil
}

func (s *TextService) UpdateText(ctx context.Context, ownerID string, id uuid.UUID, in domain.ContentInput) (*domain.Text, error) {
	text, err := s.textRepo.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	text.Title = in.Title
	text.Content = in.Content

	err = s.ledger.resize(ctx, ownerID, id, in, func(ctx context.Context) error {
		text.UpdatedAt = s.clock.Now().UTC()
		return s.textRepo.Update(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return text, nil
}

func (s *TextService) DeleteText(ctx context.Context, ownerID string, id uuid.UUID) error {
	if err := s.textRepo.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	return s.ledger.release(ctx, ownerID, id)
}
