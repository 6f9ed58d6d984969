package scheduler

import (
	"sync"
	"time"
)

// Handle represents a scheduled task. Cancel is idempotent and prevents any
// further fires; a fire already in progress is allowed to finish.
type Handle interface {
	Cancel()
}

// Scheduler abstracts timer creation so components owning background work
// (token refresh, inactivity checks, cache cleanup) can be tested without
// waiting on wall-clock timers.
type Scheduler interface {
	// Once runs fn a single time after d has elapsed.
	Once(d time.Duration, fn func()) Handle

	// Repeat runs fn every interval until the handle is cancelled.
	Repeat(interval time.Duration, fn func()) Handle
}

type systemScheduler struct{}

// System returns a Scheduler backed by the runtime timer facilities.
func System() Scheduler {
	return systemScheduler{}
}

type timerHandle struct {
	timer *time.Timer
}

func (h *timerHandle) Cancel() {
	h.timer.Stop()
}

func (systemScheduler) Once(d time.Duration, fn func()) Handle {
	return &timerHandle{timer: time.AfterFunc(d, fn)}
}

type tickerHandle struct {
	once sync.Once
	done chan struct{}
}

func (h *tickerHandle) Cancel() {
	h.once.Do(func() {
		close(h.done)
	})
}

func (systemScheduler) Repeat(interval time.Duration, fn func()) Handle {
	handle := &tickerHandle{done: make(chan struct{})}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				fn()
			case <-handle.done:
				return
			}
		}
	}()

	return handle
}
