package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Manual is a deterministic Scheduler for tests. It also serves as the test
// clock: tasks fire only when Advance moves the manual time past their due
// instant, in due order, on the calling goroutine.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	tasks  []*manualTask
}

type manualTask struct {
	id       int
	owner    *Manual
	due      time.Time
	interval time.Duration // zero for one-shot
	fn       func()
	stopped  bool
}

func (t *manualTask) Cancel() {
	t.owner.mu.Lock()
	t.stopped = true
	t.owner.mu.Unlock()
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Once(d time.Duration, fn func()) Handle {
	return m.add(d, 0, fn)
}

func (m *Manual) Repeat(interval time.Duration, fn func()) Handle {
	return m.add(interval, interval, fn)
}

func (m *Manual) add(d, interval time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	task := &manualTask{
		id:       m.nextID,
		owner:    m,
		due:      m.now.Add(d),
		interval: interval,
		fn:       fn,
	}
	m.tasks = append(m.tasks, task)
	return task
}

// Advance moves the manual time forward by d and fires every pending task
// whose due instant is reached, in due order. Repeating tasks re-arm and may
// fire multiple times within a single Advance.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)

	for {
		task := m.nextDue(target)
		if task == nil {
			break
		}

		m.now = task.due
		if task.interval > 0 {
			task.due = task.due.Add(task.interval)
		} else {
			task.stopped = true
		}

		fn := task.fn
		m.mu.Unlock()
		fn()
		m.mu.Lock()
	}

	m.now = target
	m.compact()
	m.mu.Unlock()
}

// nextDue returns the pending task with the earliest due time not after
// target, ties broken by scheduling order. Caller holds mu.
func (m *Manual) nextDue(target time.Time) *manualTask {
	var next *manualTask
	for _, task := range m.tasks {
		if task.stopped || task.due.After(target) {
			continue
		}
		if next == nil || task.due.Before(next.due) || (task.due.Equal(next.due) && task.id < next.id) {
			next = task
		}
	}
	return next
}

func (m *Manual) compact() {
	live := m.tasks[:0]
	for _, task := range m.tasks {
		if !task.stopped {
			live = append(live, task)
		}
	}
	sort.SliceStable(live, func(i, j int) bool {
		return live[i].due.Before(live[j].due)
	})
	m.tasks = live
}
