// Package scheduling runs configured tasks, such as unattended self-play
// batches, on cron expressions or fixed intervals.
package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"muehle-agent/internal/domain"
)

// ScheduledAction identifies a type of scheduled action.
type ScheduledAction string

const (
	ActionSelfPlay ScheduledAction = "selfplay"
)

// DefaultTaskTimeout bounds a single run when the task sets no timeout.
const DefaultTaskTimeout = 30 * time.Minute

// ScheduledTask defines a recurring task.
type ScheduledTask struct {
	Name     string
	Schedule string // cron expression "*/5 * * * *" OR duration "30m"
	Action   ScheduledAction
	Timeout  time.Duration
	OneShot  bool

	// Self-play parameters; zero values fall back to the runner's defaults.
	Games int
	White string
	Black string
}

// ActionFunc executes one run of a task.
type ActionFunc func(ctx context.Context, task ScheduledTask) error

// Scheduler runs tasks on a recurring schedule using cron expressions or durations.
type Scheduler struct {
	cron    *cron.Cron
	actions map[ScheduledAction]ActionFunc
	entries map[string]cron.EntryID
	bus     domain.EventBus
	logger  *slog.Logger
	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler. bus may be nil.
func NewScheduler(logger *slog.Logger, bus domain.EventBus) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		actions: make(map[ScheduledAction]ActionFunc),
		entries: make(map[string]cron.EntryID),
		bus:     bus,
		logger:  logger,
	}
}

// RegisterAction registers a handler for a scheduled action type.
func (s *Scheduler) RegisterAction(action ScheduledAction, fn ActionFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[action] = fn
}

// AddTask adds a scheduled task. The schedule can be a cron expression or a duration string.
func (s *Scheduler) AddTask(task ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, ok := s.actions[task.Action]
	if !ok {
		return fmt.Errorf("scheduler: unknown action %q for task %q", task.Action, task.Name)
	}
	if _, dup := s.entries[task.Name]; dup {
		return fmt.Errorf("scheduler: task %q: %w", task.Name, domain.ErrDuplicate)
	}

	schedule, err := parseSchedule(task.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for task %q: %w", task.Schedule, task.Name, err)
	}
	if task.Timeout <= 0 {
		task.Timeout = DefaultTaskTimeout
	}

	var entryID cron.EntryID
	entryID = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.run(task, fn)
		if task.OneShot {
			s.cron.Remove(entryID)
			s.mu.Lock()
			delete(s.entries, task.Name)
			s.mu.Unlock()
		}
	}))
	s.entries[task.Name] = entryID

	s.logger.Info("task added to scheduler", "name", task.Name, "schedule", task.Schedule, "action", string(task.Action))
	return nil
}

func (s *Scheduler) run(task ScheduledTask, fn ActionFunc) {
	// Read context under lock
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		s.logger.Debug("scheduler stopped, skipping task", "task", task.Name)
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, task.Timeout)
	defer cancel()

	if s.bus != nil {
		s.bus.Publish(ctx, domain.NewEvent(domain.EventSchedulerFired, "", map[string]string{
			"task":   task.Name,
			"action": string(task.Action),
		}))
	}

	start := time.Now()
	if err := fn(taskCtx, task); err != nil {
		s.logger.Warn("scheduled task failed",
			"task", task.Name,
			"error", err,
			"duration", time.Since(start))
	} else {
		s.logger.Info("scheduled task completed",
			"task", task.Name,
			"duration", time.Since(start))
	}
}

// NextRun returns the next run time of the named task, or nil if unknown.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.Lock()
	entryID, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	entry := s.cron.Entry(entryID)
	if entry.ID == 0 {
		return nil
	}
	t := entry.Next
	return &t
}

// Start begins running the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
	return nil
}

// Stop signals the scheduler to stop and waits for running jobs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.started = false
	s.mu.Unlock()

	// Running jobs take mu to read the context; wait outside the lock.
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	return nil
}

// ParseSchedule tries to parse a schedule string as a cron expression first,
// then falls back to time.ParseDuration.
func ParseSchedule(schedule string) (cron.Schedule, error) {
	return parseSchedule(schedule)
}

func parseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	dur, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", schedule)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return &constantDelay{delay: dur}, nil
}

// constantDelay implements cron.Schedule for a fixed interval.
// Unlike cron.Every(), it supports sub-second durations.
type constantDelay struct {
	delay time.Duration
}

func (d *constantDelay) Next(t time.Time) time.Time {
	return t.Add(d.delay)
}
