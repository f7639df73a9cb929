package accounting

import (
	"fmt"
	"math"

	"ecoleafdrive/internal/domain"
)

// quota итоговые счетчики пользователя. Все методы вызываются под
// блокировкой аккаунта.
type quota struct {
	limit  int64
	used   int64
	usage  map[domain.Category]domain.CategoryUsage
	counts map[domain.ObjectKind]int64
}

func newQuota(state *domain.AccountState) (*quota, error) {
	q := &quota{
		limit: domain.StorageLimit,
		used:  state.StorageUsed,
		usage: make(map[domain.Category]domain.CategoryUsage, len(domain.Categories)),
		counts: map[domain.ObjectKind]int64{
			domain.KindFile: state.FileCount,
			domain.KindNote: state.NotesCount,
			domain.KindText: state.TextsCount,
		},
	}

	var sum int64
	for c, u := range state.ByType {
		if !c.Valid() {
			return nil, fmt.Errorf("%w: stored usage for unknown category %q", domain.ErrInvariantViolation, c)
		}
		q.usage[c] = u
		sum += u.Bytes
	}

	if err := q.verify(sum); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *quota) verify(sumByType int64) error {
	if q.used < 0 || q.used > q.limit {
		return fmt.Errorf("%w: storage used %d outside [0, %d]", domain.ErrInvariantViolation, q.used, q.limit)
	}
	if sumByType != q.used {
		return fmt.Errorf("%w: usage by type %d != storage used %d", domain.ErrInvariantViolation, sumByType, q.used)
	}
	for kind, n := range q.counts {
		if n < 0 {
			return fmt.Errorf("%w: negative %s count %d", domain.ErrInvariantViolation, kind, n)
		}
	}
	return nil
}

// checkAndReserve допуск: сравнение с лимитом и увеличение выполняются
// одной операцией. commit вызывается между ними, при его ошибке счетчики
// не меняются. Граница включительная: used+delta == limit допускается.
func (q *quota) checkAndReserve(delta int64, c domain.Category, commit func() error) error {
	if delta < 0 {
		return fmt.Errorf("%w: reserve of %d bytes", domain.ErrInvalidSize, delta)
	}
	if !c.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidCategory, c)
	}
	if delta > q.limit-q.used {
		return fmt.Errorf("%w: %d bytes requested, %d remaining", domain.ErrQuotaExceeded, delta, q.limit-q.used)
	}

	if commit != nil {
		if err := commit(); err != nil {
			return err
		}
	}

	q.used += delta
	u := q.usage[c]
	u.Bytes += delta
	q.usage[c] = u
	return nil
}

// release уменьшает занятое место. Квотой не ограничивается, но уход в
// минус означает рассинхрон допуска и освобождения и не маскируется.
func (q *quota) release(delta int64, c domain.Category, commit func() error) error {
	if delta < 0 {
		return fmt.Errorf("%w: release of %d bytes", domain.ErrInvalidSize, delta)
	}
	if !c.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidCategory, c)
	}
	u := q.usage[c]
	if delta > q.used || delta > u.Bytes {
		return fmt.Errorf("%w: release of %d bytes from %s (used %d, category %d)",
			domain.ErrInvariantViolation, delta, c, q.used, u.Bytes)
	}

	if commit != nil {
		if err := commit(); err != nil {
			return err
		}
	}

	q.used -= delta
	u.Bytes -= delta
	q.usage[c] = u
	return nil
}

// checkRemove проверяет, что удаление записи не уведет счетчики в минус
func (q *quota) checkRemove(kind domain.ObjectKind, c domain.Category) error {
	if q.counts[kind] <= 0 {
		return fmt.Errorf("%w: no live %s entries to remove", domain.ErrInvariantViolation, kind)
	}
	if kind == domain.KindFile && q.usage[c].Files <= 0 {
		return fmt.Errorf("%w: no live %s files to remove", domain.ErrInvariantViolation, c)
	}
	return nil
}

func (q *quota) countEntry(kind domain.ObjectKind, c domain.Category, delta int64) {
	q.counts[kind] += delta
	if kind == domain.KindFile {
		u := q.usage[c]
		u.Files += delta
		q.usage[c] = u
	}
}

func (q *quota) snapshot() domain.QuotaSnapshot {
	byType := make(map[domain.Category]int64, len(domain.Categories))
	for _, c := range domain.Categories {
		byType[c] = q.usage[c].Bytes
	}

	remaining := q.limit - q.used
	if remaining < 0 {
		remaining = 0
	}

	return domain.QuotaSnapshot{
		StorageUsed:      q.used,
		StorageRemaining: remaining,
		StorageLimit:     q.limit,
		PercentageUsed:   percentage(q.used, q.limit),
		StorageByType:    byType,
	}
}

func (q *quota) fileDistribution() map[domain.Category]int64 {
	dist := make(map[domain.Category]int64, len(domain.Categories))
	for _, c := range domain.Categories {
		dist[c] = q.usage[c].Files
	}
	return dist
}

// percentage доля занятого места в процентах, [0, 100], два знака
func percentage(used, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	p := float64(used) / float64(limit) * 100
	p = math.Max(0, math.Min(100, p))
	return math.Round(p*100) / 100
}
