// Package scheduler runs the daemon's periodic background work: the TTL
// sweep, store maintenance and audit pruning.
package scheduler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"grimm.is/holdover/internal/clock"
	"grimm.is/holdover/internal/logging"
)

// ErrNotStarted is returned by RunTask before Start.
var ErrNotStarted = errors.New("scheduler not started")

// TaskFunc performs one run of a task. ctx is cancelled when the task's
// timeout passes or the scheduler stops.
type TaskFunc func(ctx context.Context) error

// Schedule yields the run after a given time.
type Schedule interface {
	Next(after time.Time) time.Time
}

// Task describes periodic work.
type Task struct {
	ID          string
	Name        string
	Description string
	Schedule    Schedule
	Func        TaskFunc
	Enabled     bool
	RunOnStart  bool
	Timeout     time.Duration
}

// TaskStatus is a snapshot of a task's bookkeeping.
type TaskStatus struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Running      bool          `json:"running"`
	LastRun      time.Time     `json:"last_run,omitzero"`
	LastDuration time.Duration `json:"last_duration,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	NextRun      time.Time     `json:"next_run,omitzero"`
	RunCount     int64         `json:"run_count"`
	ErrorCount   int64         `json:"error_count"`
}

// Options configures a Scheduler.
type Options struct {
	Logger *logging.Logger
	Clock  clock.Clock

	// Resolution is how often due tasks are checked. Defaults to one second.
	Resolution time.Duration
}

// Scheduler runs tasks on their schedules. A task never overlaps itself: a
// run that comes due while the previous one is still going is skipped.
type Scheduler struct {
	logger     *slog.Logger
	clock      clock.Clock
	resolution time.Duration

	mu    sync.Mutex
	tasks map[string]*job
	ctx   context.Context // nil until Start
	stop  context.CancelFunc
	wg    sync.WaitGroup
}

type job struct {
	task   *Task
	status TaskStatus
}

// New creates a stopped scheduler.
func New(opts Options) *Scheduler {
	logger := slog.Default()
	if opts.Logger != nil {
		logger = opts.Logger.Logger
	}
	return &Scheduler{
		logger:     logger.With("component", "scheduler"),
		clock:      clock.OrReal(opts.Clock),
		resolution: cmp.Or(opts.Resolution, time.Second),
		tasks:      make(map[string]*job),
	}
}

// AddTask registers task. IDs must be unique.
func (s *Scheduler) AddTask(task *Task) error {
	switch {
	case task.ID == "":
		return errors.New("task ID is required")
	case task.Schedule == nil:
		return fmt.Errorf("task %s: schedule is required", task.ID)
	case task.Func == nil:
		return fmt.Errorf("task %s: function is required", task.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.tasks[task.ID]; dup {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	j := &job{task: task, status: TaskStatus{ID: task.ID, Name: task.Name}}
	if task.Enabled {
		j.status.NextRun = task.Schedule.Next(s.clock.Now())
	}
	s.tasks[task.ID] = j
	s.logger.Debug("task added", "id", task.ID, "next_run", j.status.NextRun)
	return nil
}

// RunTask starts task id now, outside its schedule. It does nothing while
// the task is already running.
func (s *Scheduler) RunTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	if s.ctx == nil {
		return ErrNotStarted
	}
	s.launch(j)
	return nil
}

// GetStatus returns every task's status ordered by name.
func (s *Scheduler) GetStatus() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskStatus, 0, len(s.tasks))
	for _, j := range s.tasks {
		out = append(out, j.status)
	}
	slices.SortFunc(out, func(a, b TaskStatus) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// GetTaskStatus returns the status of task id.
func (s *Scheduler) GetTaskStatus(id string) (TaskStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.tasks[id]
	if !ok {
		return TaskStatus{}, false
	}
	return j.status, true
}

// Start launches RunOnStart tasks and begins checking schedules.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return
	}
	s.ctx, s.stop = context.WithCancel(context.Background())
	for _, j := range s.tasks {
		if j.task.Enabled && j.task.RunOnStart {
			s.launch(j)
		}
	}
	s.wg.Add(1)
	go s.loop(s.ctx)
	s.logger.Info("scheduler started", "tasks", len(s.tasks))
}

// Stop cancels running tasks and waits for them to return. A stopped
// scheduler cannot be restarted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stop == nil {
		s.mu.Unlock()
		return
	}
	s.stop()
	s.stop = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.resolution)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(s.clock.Now())
		}
	}
}

// tick launches every enabled task that is due at now. The next run is
// computed from the slot that came due, skipping any slots already missed,
// so a late tick neither drifts the schedule nor fires a backlog.
func (s *Scheduler) tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil || s.ctx.Err() != nil {
		return
	}
	for _, j := range s.tasks {
		due := j.status.NextRun
		if !j.task.Enabled || due.IsZero() || now.Before(due) {
			continue
		}
		next := j.task.Schedule.Next(due)
		for !next.After(now) {
			next = j.task.Schedule.Next(next)
		}
		j.status.NextRun = next
		s.launch(j)
	}
}

// launch runs j in the background unless it is already running. s.mu is held.
func (s *Scheduler) launch(j *job) {
	if j.status.Running {
		s.logger.Debug("task still running, skipping", "id", j.task.ID)
		return
	}
	j.status.Running = true

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if j.task.Timeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, j.task.Timeout)
	} else {
		ctx, cancel = context.WithCancel(s.ctx)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		started := s.clock.Now()
		err := j.task.Func(ctx)
		s.finish(j, started, s.clock.Since(started), err)
	}()
}

func (s *Scheduler) finish(j *job, started time.Time, took time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &j.status
	st.Running = false
	st.LastRun = started
	st.LastDuration = took
	st.RunCount++
	st.LastError = ""
	if err != nil {
		st.LastError = err.Error()
		st.ErrorCount++
		s.logger.Warn("task failed", "id", j.task.ID, "error", err, "duration", took)
		return
	}
	s.logger.Debug("task completed", "id", j.task.ID, "duration", took)
}
