package provider

import (
	"sort"
	"sync"
	"time"
)

// CancelFunc stops a scheduled task if it has not fired yet. Safe to call
// more than once.
type CancelFunc func()

// Scheduler runs a function once after a delay. The mock engine schedules
// transfer completion through this seam so tests can advance virtual time
// instead of sleeping.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) CancelFunc
}

// TimerScheduler schedules on real wall-clock timers.
type TimerScheduler struct{}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{}
}

func (s *TimerScheduler) Schedule(delay time.Duration, fn func()) CancelFunc {
	timer := time.AfterFunc(delay, fn)
	return func() { timer.Stop() }
}

// FakeScheduler holds scheduled tasks until virtual time is advanced.
type FakeScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	next  int
	tasks map[int]*fakeTask
}

type fakeTask struct {
	due time.Duration
	fn  func()
}

func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{tasks: make(map[int]*fakeTask)}
}

func (s *FakeScheduler) Schedule(delay time.Duration, fn func()) CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	s.tasks[id] = &fakeTask{due: s.now + delay, fn: fn}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.tasks, id)
	}
}

// Advance moves virtual time forward and fires every task that came due,
// in due order. Tasks run without the scheduler lock held so they may
// schedule or cancel freely.
func (s *FakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d

	type dueTask struct {
		id   int
		task *fakeTask
	}
	var due []dueTask
	for id, task := range s.tasks {
		if task.due <= s.now {
			due = append(due, dueTask{id: id, task: task})
		}
	}
	for _, dt := range due {
		delete(s.tasks, dt.id)
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].task.due < due[j].task.due })
	for _, dt := range due {
		dt.task.fn()
	}
}

// Pending reports how many tasks have not fired or been cancelled.
func (s *FakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
