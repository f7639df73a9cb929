package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cdr.dev/slog/v3/sloggers/slogtest"
	"github.com/coder/quartz"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"ecoleafdrive/internal/accounting"
	"ecoleafdrive/internal/repository"
	"ecoleafdrive/internal/service/s3"
)

var serviceNow = time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)

// memStorage хранилище объектов в памяти
type memStorage struct {
	mu        sync.Mutex
	objects   map[string]memBlob
	putErr    error
	deleteErr error
	deleted   []string
}

type memBlob struct {
	data        []byte
	contentType string
}

type memObject struct {
	io.ReadCloser
	length      int64
	contentType string
}

func (o *memObject) ContentLength() int64 { return o.length }
func (o *memObject) ContentType() string  { return o.contentType }

var _ s3.Storage = (*memStorage)(nil)

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string]memBlob)}
}

func (m *memStorage) PutObject(_ context.Context, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	if int64(len(data)) != size {
		return fmt.Errorf("content length mismatch: declared %d, got %d", size, len(data))
	}
	m.objects[key] = memBlob{data: data, contentType: contentType}
	return nil
}

func (m *memStorage) GetObject(_ context.Context, key string) (s3.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	blob, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", s3.ErrObjectNotFound, key)
	}
	return &memObject{
		ReadCloser:  io.NopCloser(bytes.NewReader(blob.data)),
		length:      int64(len(blob.data)),
		contentType: blob.contentType,
	}, nil
}

func (m *memStorage) DeleteObject(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memStorage) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func (m *memStorage) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

type serviceEnv struct {
	db       *sqlx.DB
	ledger   *accounting.Service
	storage  *memStorage
	clock    *quartz.Mock
	files    *FileService
	notes    *NoteService
	texts    *TextService
	profiles *ProfileService
	quotas   *StorageQuotaService
}

func openTestDB(t *testing.T, migrate bool) *sqlx.DB {
	t.Helper()

	db, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "drive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if migrate {
		require.NoError(t, repository.Migrate(context.Background(), db, slogtest.Make(t, nil)))
	}
	return db
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()

	logger := slogtest.Make(t, &slogtest.Options{IgnoreErrors: true})
	mClock := quartz.NewMock(t)
	mClock.Set(serviceNow)

	db := openTestDB(t, true)
	ledger := accounting.NewService(repository.NewLedgerRepository(db), accounting.Options{
		Clock:  mClock,
		Logger: logger,
	})
	storage := newMemStorage()

	return &serviceEnv{
		db:       db,
		ledger:   ledger,
		storage:  storage,
		clock:    mClock,
		files:    NewFileService(repository.NewFileRepository(db), ledger, storage, mClock, logger),
		notes:    NewNoteService(repository.NewNoteRepository(db), ledger, mClock, logger),
		texts:    NewTextService(repository.NewTextRepository(db), ledger, mClock, logger),
		profiles: NewProfileService(repository.NewProfileRepository(db), mClock, logger),
		quotas:   NewStorageQuotaService(ledger),
	}
}

func (e *serviceEnv) storageUsed(t *testing.T, owner string) int64 {
	t.Helper()

	stats, err := e.quotas.GetStorageStats(context.Background(), owner)
	require.NoError(t, err)
	return stats.StorageUsed
}
