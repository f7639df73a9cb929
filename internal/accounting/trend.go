package accounting

import (
	"time"

	"ecoleafdrive/internal/domain"
)

type trendSlot struct {
	count int64
	bytes int64
}

// trendWindow кольцо дневных счетчиков. head указывает на слот дня last,
// предыдущие дни лежат левее по кольцу.
type trendWindow struct {
	slots [domain.TrendDays]trendSlot
	head  int
	last  time.Time
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(dayOf(to).Sub(dayOf(from)) / (24 * time.Hour))
}

// windowStart первый день окна, которое заканчивается днем today
func windowStart(today time.Time) time.Time {
	return dayOf(today).AddDate(0, 0, -(domain.TrendDays - 1))
}

// advance сдвигает окно вперед так, чтобы последним днем стал day.
// Пропущенные дни получают нулевые счетчики, старые вытесняются.
func (w *trendWindow) advance(day time.Time) {
	day = dayOf(day)
	if w.last.IsZero() {
		w.last = day
		return
	}

	gap := daysBetween(w.last, day)
	if gap <= 0 {
		return
	}

	if gap >= domain.TrendDays {
		w.slots = [domain.TrendDays]trendSlot{}
		w.head = 0
	} else {
		for i := 0; i < gap; i++ {
			w.head = (w.head + 1) % domain.TrendDays
			w.slots[w.head] = trendSlot{}
		}
	}
	w.last = day
}

// slot индекс дня в кольце или -1, если день вне окна
func (w *trendWindow) slot(day time.Time) int {
	if w.last.IsZero() {
		return -1
	}
	offset := daysBetween(day, w.last)
	if offset < 0 || offset >= domain.TrendDays {
		return -1
	}
	return (w.head - offset + domain.TrendDays) % domain.TrendDays
}

// bump учитывает создание объекта в день day. Дни старше окна игнорируются.
func (w *trendWindow) bump(day time.Time, size int64) bool {
	w.advance(day)
	i := w.slot(day)
	if i < 0 {
		return false
	}
	w.slots[i].count++
	w.slots[i].bytes += size
	return true
}

// series ровно TrendDays точек от старой к новой, последняя точка - today.
// Окно сдвигается и при чтении, чтобы пользователь без новых загрузок
// видел окно на сегодняшний день.
func (w *trendWindow) series(today time.Time) []domain.TrendPoint {
	today = dayOf(today)
	w.advance(today)

	points := make([]domain.TrendPoint, 0, domain.TrendDays)
	for offset := domain.TrendDays - 1; offset >= 0; offset-- {
		day := today.AddDate(0, 0, -offset)
		p := domain.TrendPoint{Date: day.Format(domain.TrendDateLayout)}
		if i := w.slot(day); i >= 0 {
			p.Count = w.slots[i].count
			p.Size = w.slots[i].bytes
		}
		points = append(points, p)
	}
	return points
}

// load заполняет окно сохраненными счетчиками, окно заканчивается днем today
func (w *trendWindow) load(buckets []domain.TrendBucket, today time.Time) error {
	*w = trendWindow{}
	w.advance(today)

	for _, b := range buckets {
		day, err := time.Parse(domain.TrendDateLayout, b.Day)
		if err != nil {
			return err
		}
		if i := w.slot(day); i >= 0 {
			w.slots[i].count += b.Count
			w.slots[i].bytes += b.Bytes
		}
	}
	return nil
}
