package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"ecoleafdrive/internal/domain"
)

// defaultCacheTimeout предел ожидания кеша отчетов, в том числе под
// блокировкой аккаунта
const defaultCacheTimeout = 250 * time.Millisecond

type Options struct {
	Clock  quartz.Clock
	Logger slog.Logger
	// Cache необязателен
	Cache        ReportCache
	CacheTimeout time.Duration
	Registerer   prometheus.Registerer
}

// Service учет занятого места: леджер объектов, квота, тренд загрузок и
// отчеты. Состояние каждого пользователя блокируется отдельно, запросы
// разных пользователей не конкурируют.
type Service struct {
	store   Store
	clock   quartz.Clock
	logger  slog.Logger
	cache   ReportCache
	metrics *metrics

	cacheTimeout time.Duration

	mu       sync.Mutex
	accounts map[string]*account
}

// account состояние одного пользователя, загружается при первом обращении
type account struct {
	mu     sync.Mutex
	loaded bool
	quota  *quota
	trend  trendWindow
}

func NewService(store Store, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Cache == nil {
		opts.Cache = nopCache{}
	}
	if opts.CacheTimeout <= 0 {
		opts.CacheTimeout = defaultCacheTimeout
	}

	return &Service{
		store:    store,
		clock:    opts.Clock,
		logger:   opts.Logger.Named("accounting"),
		cache:    opts.Cache,
		metrics:  newMetrics(opts.Registerer),
		accounts: make(map[string]*account),

		cacheTimeout: opts.CacheTimeout,
	}
}

// RecordParams параметры новой записи леджера. Пустой ID генерируется,
// нулевой CreatedAt заменяется текущим временем.
type RecordParams struct {
	ID        string
	OwnerID   string
	Kind      domain.ObjectKind
	SizeBytes int64
	Category  domain.Category
	CreatedAt time.Time
}

// Record добавляет объект в леджер. Допуск по квоте, запись леджера,
// агрегаты и дневной счетчик фиксируются вместе.
func (s *Service) Record(ctx context.Context, p RecordParams) (string, error) {
	entry, err := s.newEntry(p)
	if err != nil {
		return "", err
	}

	acc, err := s.acquire(ctx, entry.OwnerID)
	if err != nil {
		return "", err
	}
	defer acc.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	committed := false
	err = acc.quota.checkAndReserve(entry.SizeBytes, entry.Category, func() error {
		committed = true
		return s.store.InsertEntry(ctx, entry, acc.quota.limit)
	})
	if err != nil {
		if committed {
			// Хранилище могло разойтись с памятью, перечитаем при следующем обращении
			acc.loaded = false
		}
		if errors.Is(err, domain.ErrQuotaExceeded) {
			s.metrics.admissions.WithLabelValues("rejected").Inc()
			s.logger.Info(ctx, "admission rejected",
				slog.F("owner_id", entry.OwnerID),
				slog.F("kind", entry.Kind),
				slog.F("size_bytes", entry.SizeBytes),
			)
		}
		return "", err
	}

	acc.quota.countEntry(entry.Kind, entry.Category, 1)
	acc.trend.bump(entry.CreatedAt, entry.SizeBytes)

	s.metrics.admissions.WithLabelValues("accepted").Inc()
	s.metrics.admittedBytes.Add(float64(entry.SizeBytes))
	s.invalidate(ctx, entry.OwnerID)

	s.logger.Debug(ctx, "ledger entry recorded",
		slog.F("owner_id", entry.OwnerID),
		slog.F("entry_id", entry.ID),
		slog.F("kind", entry.Kind),
		slog.F("category", entry.Category),
		slog.F("size_bytes", entry.SizeBytes),
	)

	return entry.ID, nil
}

// Remove удаляет объект из леджера и освобождает место. Отсутствующая
// запись дает domain.ErrNotFound, вызывающий может ее игнорировать.
func (s *Service) Remove(ctx context.Context, ownerID, entryID string) error {
	acc, err := s.acquire(ctx, ownerID)
	if err != nil {
		return err
	}
	defer acc.mu.Unlock()

	entry, err := s.store.GetEntry(ctx, ownerID, entryID)
	if err != nil {
		return err
	}

	if err := acc.quota.checkRemove(entry.Kind, entry.Category); err != nil {
		s.violation(ctx, acc, ownerID, err)
		return err
	}

	committed := false
	err = acc.quota.release(entry.SizeBytes, entry.Category, func() error {
		committed = true
		return s.store.DeleteEntry(ctx, entry)
	})
	if err != nil {
		if committed {
			acc.loaded = false
		} else if errors.Is(err, domain.ErrInvariantViolation) {
			s.violation(ctx, acc, ownerID, err)
		}
		return err
	}

	acc.quota.countEntry(entry.Kind, entry.Category, -1)
	s.metrics.releasedBytes.Add(float64(entry.SizeBytes))
	s.invalidate(ctx, ownerID)

	s.logger.Debug(ctx, "ledger entry removed",
		slog.F("owner_id", ownerID),
		slog.F("entry_id", entryID),
		slog.F("size_bytes", entry.SizeBytes),
	)
	return nil
}

// Resize применяет изменение размера объекта. Рост проходит допуск по
// квоте, уменьшение всегда успешно.
func (s *Service) Resize(ctx context.Context, ownerID, entryID string, newSize int64) error {
	return s.ResizeWith(ctx, ownerID, entryID, newSize, nil)
}

// ResizeWith как Resize, но apply сохраняет сам объект под той же
// блокировкой владельца, что и изменение леджера. Так изменения одного
// объекта применяются по очереди. Если apply вернул ошибку, размер в
// леджере возвращается к прежнему.
func (s *Service) ResizeWith(ctx context.Context, ownerID, entryID string, newSize int64, apply func(context.Context) error) error {
	if newSize < 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidSize, newSize)
	}

	acc, err := s.acquire(ctx, ownerID)
	if err != nil {
		return err
	}
	defer acc.mu.Unlock()

	entry, err := s.store.GetEntry(ctx, ownerID, entryID)
	if err != nil {
		return err
	}

	delta := newSize - entry.SizeBytes
	if delta == 0 {
		if apply != nil {
			return apply(ctx)
		}
		return nil
	}

	committed := false
	commit := func() error {
		if err := s.store.ResizeEntry(ctx, entry, newSize, acc.quota.limit); err != nil {
			committed = true
			return err
		}
		if apply == nil {
			return nil
		}
		if err := apply(ctx); err != nil {
			s.revertResize(ctx, acc, entry, newSize)
			return err
		}
		return nil
	}

	if delta > 0 {
		err = acc.quota.checkAndReserve(delta, entry.Category, commit)
	} else {
		err = acc.quota.release(-delta, entry.Category, commit)
	}
	if err != nil {
		switch {
		case committed:
			acc.loaded = false
		case errors.Is(err, domain.ErrInvariantViolation):
			s.violation(ctx, acc, ownerID, err)
		}
		if errors.Is(err, domain.ErrQuotaExceeded) {
			s.metrics.admissions.WithLabelValues("rejected").Inc()
		}
		return err
	}

	if delta > 0 {
		s.metrics.admissions.WithLabelValues("accepted").Inc()
		s.metrics.admittedBytes.Add(float64(delta))
	} else {
		s.metrics.releasedBytes.Add(float64(-delta))
	}
	s.invalidate(ctx, ownerID)
	return nil
}

// revertResize возвращает прежний размер записи после неудачного apply.
// Счетчики в памяти еще не менялись. Если откат не удался, аккаунт
// перечитывается из хранилища.
func (s *Service) revertResize(ctx context.Context, acc *account, entry *domain.LedgerEntry, newSize int64) {
	resized := *entry
	resized.SizeBytes = newSize

	ctx = context.WithoutCancel(ctx)
	if err := s.store.ResizeEntry(ctx, &resized, entry.SizeBytes, acc.quota.limit); err != nil {
		acc.loaded = false
		s.metrics.violations.Inc()
		s.logger.Critical(ctx, "failed to revert ledger entry size, object and ledger disagree",
			slog.F("owner_id", entry.OwnerID),
			slog.F("entry_id", entry.ID),
			slog.F("size_bytes", entry.SizeBytes),
			slog.F("new_size_bytes", newSize),
			slog.Error(err),
		)
	}
}

// Snapshot текущее состояние квоты пользователя
func (s *Service) Snapshot(ctx context.Context, ownerID string) (domain.QuotaSnapshot, error) {
	acc, err := s.acquire(ctx, ownerID)
	if err != nil {
		return domain.QuotaSnapshot{}, err
	}
	defer acc.mu.Unlock()

	return acc.quota.snapshot(), nil
}

// acquire возвращает заблокированный и загруженный аккаунт
func (s *Service) acquire(ctx context.Context, ownerID string) (*account, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("owner id is required")
	}

	s.mu.Lock()
	acc, ok := s.accounts[ownerID]
	if !ok {
		acc = &account{}
		s.accounts[ownerID] = acc
	}
	s.mu.Unlock()

	acc.mu.Lock()
	if !acc.loaded {
		if err := s.load(ctx, ownerID, acc); err != nil {
			acc.mu.Unlock()
			return nil, err
		}
	}
	return acc, nil
}

func (s *Service) load(ctx context.Context, ownerID string, acc *account) error {
	today := s.clock.Now()

	state, err := s.store.LoadAccount(ctx, ownerID, windowStart(today))
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}

	q, err := newQuota(state)
	if err != nil {
		s.metrics.violations.Inc()
		s.logger.Critical(ctx, "stored account state is inconsistent",
			slog.F("owner_id", ownerID),
			slog.Error(err),
		)
		return err
	}

	if err := acc.trend.load(state.Trends, today); err != nil {
		return fmt.Errorf("failed to load upload trends: %w", err)
	}

	acc.quota = q
	acc.loaded = true
	return nil
}

func (s *Service) newEntry(p RecordParams) (*domain.LedgerEntry, error) {
	if strings.TrimSpace(p.OwnerID) == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	if !p.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidKind, p.Kind)
	}
	if p.SizeBytes < 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidSize, p.SizeBytes)
	}

	category := p.Category
	if p.Kind == domain.KindFile {
		if !category.Valid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidCategory, category)
		}
	} else {
		// Заметки и тексты всегда учитываются в others
		if category == "" {
			category = domain.CategoryOthers
		}
		if category != domain.CategoryOthers {
			return nil, fmt.Errorf("%w: %s entries belong to %q, got %q",
				domain.ErrInvalidCategory, p.Kind, domain.CategoryOthers, category)
		}
	}

	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}

	now := s.clock.Now().UTC()
	createdAt := p.CreatedAt.UTC()
	if p.CreatedAt.IsZero() || createdAt.After(now) {
		createdAt = now
	}

	return &domain.LedgerEntry{
		ID:        id,
		OwnerID:   p.OwnerID,
		Kind:      p.Kind,
		SizeBytes: p.SizeBytes,
		Category:  category,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}, nil
}

// violation фиксирует нарушение инварианта. Аккаунт перечитывается из
// хранилища при следующем обращении.
func (s *Service) violation(ctx context.Context, acc *account, ownerID string, err error) {
	acc.loaded = false
	s.metrics.violations.Inc()
	s.logger.Critical(ctx, "storage accounting invariant violated",
		slog.F("owner_id", ownerID),
		slog.Error(err),
	)
}

func (s *Service) invalidate(ctx context.Context, ownerID string) {
	cctx, cancel := s.cacheContext(ctx)
	defer cancel()

	if err := s.cache.Invalidate(cctx, ownerID); err != nil {
		s.logger.Warn(ctx, "failed to invalidate report cache",
			slog.F("owner_id", ownerID),
			slog.Error(err),
		)
	}
}

// cacheContext ограничивает обращение к кешу. Отмена запроса не прерывает
// инвалидацию после уже зафиксированного изменения.
func (s *Service) cacheContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cacheTimeout)
}
