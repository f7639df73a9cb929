package accounting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ecoleafdrive/internal/domain"
)

// memStore хранилище в памяти для тестов ядра, с внедрением ошибок
type memStore struct {
	mu      sync.Mutex
	quotas  map[string]*domain.AccountState
	entries map[string]*domain.LedgerEntry
	trends  map[string]map[string]domain.TrendBucket

	failNext error
	loads    int
}

func newMemStore() *memStore {
	return &memStore{
		quotas:  make(map[string]*domain.AccountState),
		entries: make(map[string]*domain.LedgerEntry),
		trends:  make(map[string]map[string]domain.TrendBucket),
	}
}

func (m *memStore) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func (m *memStore) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *memStore) account(ownerID string) *domain.AccountState {
	st, ok := m.quotas[ownerID]
	if !ok {
		st = domain.NewAccountState(ownerID)
		m.quotas[ownerID] = st
	}
	return st
}

func copyState(st *domain.AccountState) *domain.AccountState {
	out := *st
	out.ByType = make(map[domain.Category]domain.CategoryUsage, len(st.ByType))
	for c, u := range st.ByType {
		out.ByType[c] = u
	}
	out.Trends = append([]domain.TrendBucket(nil), st.Trends...)
	return &out
}

func (m *memStore) LoadAccount(_ context.Context, ownerID string, since time.Time) (*domain.AccountState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++

	st := domain.NewAccountState(ownerID)
	if stored, ok := m.quotas[ownerID]; ok {
		st = copyState(stored)
	}
	st.Trends = nil
	cutoff := since.Format(domain.TrendDateLayout)
	for day, b := range m.trends[ownerID] {
		if day >= cutoff {
			st.Trends = append(st.Trends, b)
		}
	}
	return st, nil
}

func (m *memStore) GetEntry(_ context.Context, ownerID, entryID string) (*domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[entryID]
	if !ok || e.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: ledger entry %s", domain.ErrNotFound, entryID)
	}
	out := *e
	return &out, nil
}

func (m *memStore) InsertEntry(ctx context.Context, entry *domain.LedgerEntry, limit int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := m.entries[entry.ID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrEntryExists, entry.ID)
	}

	st := m.account(entry.OwnerID)
	if st.StorageUsed+entry.SizeBytes > limit {
		return fmt.Errorf("%w: store check", domain.ErrQuotaExceeded)
	}

	st.StorageUsed += entry.SizeBytes
	u := st.ByType[entry.Category]
	u.Bytes += entry.SizeBytes
	switch entry.Kind {
	case domain.KindFile:
		st.FileCount++
		u.Files++
	case domain.KindNote:
		st.NotesCount++
	case domain.KindText:
		st.TextsCount++
	}
	st.ByType[entry.Category] = u

	out := *entry
	m.entries[entry.ID] = &out

	day := entry.CreatedAt.UTC().Format(domain.TrendDateLayout)
	if m.trends[entry.OwnerID] == nil {
		m.trends[entry.OwnerID] = make(map[string]domain.TrendBucket)
	}
	b := m.trends[entry.OwnerID][day]
	b.Day = day
	b.Count++
	b.Bytes += entry.SizeBytes
	m.trends[entry.OwnerID][day] = b
	return nil
}

func (m *memStore) DeleteEntry(_ context.Context, entry *domain.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return err
	}
	if _, ok := m.entries[entry.ID]; !ok {
		return fmt.Errorf("%w: ledger entry %s", domain.ErrNotFound, entry.ID)
	}
	delete(m.entries, entry.ID)

	st := m.account(entry.OwnerID)
	st.StorageUsed -= entry.SizeBytes
	u := st.ByType[entry.Category]
	u.Bytes -= entry.SizeBytes
	switch entry.Kind {
	case domain.KindFile:
		st.FileCount--
		u.Files--
	case domain.KindNote:
		st.NotesCount--
	case domain.KindText:
		st.TextsCount--
	}
	st.ByType[entry.Category] = u
	return nil
}

func (m *memStore) ResizeEntry(_ context.Context, entry *domain.LedgerEntry, newSize, limit int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return err
	}
	delta := newSize - entry.SizeBytes
	st := m.account(entry.OwnerID)
	if delta > 0 && st.StorageUsed+delta > limit {
		return fmt.Errorf("%w: store check", domain.ErrQuotaExceeded)
	}
	st.StorageUsed += delta
	u := st.ByType[entry.Category]
	u.Bytes += delta
	st.ByType[entry.Category] = u
	m.entries[entry.ID].SizeBytes = newSize
	return nil
}

func (m *memStore) RecomputeAccount(_ context.Context, ownerID string) (*domain.AccountState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := domain.NewAccountState(ownerID)
	for _, e := range m.entries {
		if e.OwnerID != ownerID {
			continue
		}
		st.StorageUsed += e.SizeBytes
		u := st.ByType[e.Category]
		u.Bytes += e.SizeBytes
		switch e.Kind {
		case domain.KindFile:
			st.FileCount++
			u.Files++
		case domain.KindNote:
			st.NotesCount++
		case domain.KindText:
			st.TextsCount++
		}
		st.ByType[e.Category] = u
	}
	return st, nil
}

func (m *memStore) ReplaceAccount(_ context.Context, state *domain.AccountState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := copyState(state)
	st.Trends = nil
	m.quotas[state.OwnerID] = st
	return nil
}

func (m *memStore) PruneTrends(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := before.Format(domain.TrendDateLayout)
	var removed int64
	for _, days := range m.trends {
		for day := range days {
			if day < cutoff {
				delete(days, day)
				removed++
			}
		}
	}
	return removed, nil
}

// corrupt портит сохраненные агрегаты в обход леджера
func (m *memStore) corrupt(ownerID string, fn func(st *domain.AccountState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.account(ownerID))
}
