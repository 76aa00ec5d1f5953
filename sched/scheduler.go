package sched

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/mklimuk/sensorloop"
)

// Action is a unit of work invoked by the scheduler. Actions run to
// completion on the scheduler goroutine; they must never block waiting for
// hardware — a driver that needs to wait schedules a deferred callback
// instead.
type Action func(ctx context.Context)

// Conventional setup priorities. Lower runs first, so bus infrastructure
// comes up before the devices sitting on it.
const (
	PriorityBus          = 10
	PriorityHardware     = 20
	PriorityHardwareLate = 30
)

// Clock abstracts time so driver protocols can be exercised in tests by
// advancing a manual clock instead of sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock used by default.
var SystemClock Clock = systemClock{}

// Task is one registered periodic unit of work. Tasks live for the whole
// device uptime; only nextDue mutates after registration.
type Task struct {
	name     string
	priority int
	interval time.Duration
	setup    Action
	update   Action
	status   *sensorloop.DeviceStatus
	nextDue  time.Time
	oneShot  bool
	done     bool
}

type deferred struct {
	owner  string
	key    string
	fireAt time.Time
	action Action
}

// Deferrer installs one-shot callbacks relative to now. Re-registering
// under the same (owner, key) pair replaces the pending callback.
type Deferrer interface {
	ScheduleAfter(owner, key string, delay time.Duration, action Action)
}

// Scheduler owns the registered tasks and pending deferred callbacks.
// It is single-threaded by construction: RunSetup, Tick and Run must all be
// driven from one goroutine, which is also what serializes transactions on
// the shared buses.
type Scheduler struct {
	clock    Clock
	tasks    []*Task
	deferred []*deferred
	setupRun bool
}

func New() *Scheduler {
	return NewWithClock(SystemClock)
}

func NewWithClock(clock Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

func (s *Scheduler) Clock() Clock { return s.clock }

// Register appends a task. priority orders the one-time setup phase
// (lower runs first, registration order breaks ties); interval is the
// polling period, 0 means the update runs once at the first tick and never
// again. setup may be nil. status may be nil for tasks that cannot fail.
func (s *Scheduler) Register(name string, priority int, interval time.Duration, setup, update Action, status *sensorloop.DeviceStatus) *Task {
	t := &Task{
		name:     name,
		priority: priority,
		interval: interval,
		setup:    setup,
		update:   update,
		status:   status,
		oneShot:  interval <= 0,
		nextDue:  s.clock.Now().Add(interval),
	}
	s.tasks = append(s.tasks, t)
	return t
}

// RunSetup invokes every task's setup callback once, in ascending priority
// order. A setup that marks its device failed does not stop the remaining
// setups.
func (s *Scheduler) RunSetup(ctx context.Context) {
	if s.setupRun {
		return
	}
	s.setupRun = true
	ordered := make([]*Task, len(s.tasks))
	copy(ordered, s.tasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].priority < ordered[j].priority
	})
	for _, t := range ordered {
		if t.setup == nil {
			continue
		}
		slog.Debug("running task setup", "task", t.name, "priority", t.priority)
		t.setup(ctx)
	}
}

// Tick runs every due task update in registration order, then fires due
// deferred callbacks. A failed device is skipped and never polled again.
// nextDue advances by exactly one interval from the due time; if the task
// is more than one interval behind it snaps to now+interval so a backlog
// never produces catch-up bursts.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	for _, t := range s.tasks {
		if t.done || t.update == nil {
			continue
		}
		if t.status != nil && t.status.Failed() {
			continue
		}
		if t.nextDue.After(now) {
			continue
		}
		t.update(ctx)
		if t.oneShot {
			t.done = true
			continue
		}
		t.nextDue = t.nextDue.Add(t.interval)
		if !t.nextDue.After(now) {
			t.nextDue = now.Add(t.interval)
		}
	}
	s.fireDeferred(ctx, now)
}

// ScheduleAfter installs a one-shot callback firing at now+delay,
// replacing any pending callback registered under the same (owner, key).
func (s *Scheduler) ScheduleAfter(owner, key string, delay time.Duration, action Action) {
	s.cancel(owner, key)
	s.deferred = append(s.deferred, &deferred{
		owner:  owner,
		key:    key,
		fireAt: s.clock.Now().Add(delay),
		action: action,
	})
}

func (s *Scheduler) cancel(owner, key string) {
	kept := s.deferred[:0]
	for _, d := range s.deferred {
		if d.owner == owner && d.key == key {
			continue
		}
		kept = append(kept, d)
	}
	s.deferred = kept
}

func (s *Scheduler) fireDeferred(ctx context.Context, now time.Time) {
	// callbacks may schedule new callbacks while firing, collect first
	var due []*deferred
	kept := s.deferred[:0]
	for _, d := range s.deferred {
		if d.fireAt.After(now) {
			kept = append(kept, d)
			continue
		}
		due = append(due, d)
	}
	s.deferred = kept
	for _, d := range due {
		d.action(ctx)
	}
}

// nextWake returns the earliest instant anything becomes due, or the zero
// time when nothing is scheduled.
func (s *Scheduler) nextWake() time.Time {
	var next time.Time
	for _, t := range s.tasks {
		if t.done || t.update == nil {
			continue
		}
		if t.status != nil && t.status.Failed() {
			continue
		}
		if next.IsZero() || t.nextDue.Before(next) {
			next = t.nextDue
		}
	}
	for _, d := range s.deferred {
		if next.IsZero() || d.fireAt.Before(next) {
			next = d.fireAt
		}
	}
	return next
}

// Run executes the setup phase and then ticks the scheduler until the
// context is cancelled. The loop sleeps until the next due instant instead
// of polling.
func (s *Scheduler) Run(ctx context.Context) {
	s.RunSetup(ctx)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		next := s.nextWake()
		if next.IsZero() {
			resetTimer(timer, time.Hour)
		} else {
			resetTimer(timer, next.Sub(s.clock.Now()))
		}
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.Tick(ctx, s.clock.Now())
		}
	}
}

// resetTimer safely stops, drains, and resets a timer.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	if d < 0 {
		d = 0
	}
	t.Reset(d)
}
