package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RunFunc executes a due task: dispatch the prompt and deliver the reply.
type RunFunc func(ctx context.Context, task Task) error

// ServiceOptions configure the scheduler.
type ServiceOptions struct {
	// StorePath is the JSON file tasks persist to.
	StorePath string
	// Run executes a due task.
	Run RunFunc
}

// Service owns the task list. Each enabled task gets its own timer; firing
// re-arms the timer for the next occurrence.
type Service struct {
	path   string
	run    RunFunc
	tasks  map[string]*Task
	timers map[string]*time.Timer

	mu      sync.Mutex
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates the scheduler and loads persisted tasks. Call Start to
// arm timers.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.StorePath == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if opts.Run == nil {
		return nil, fmt.Errorf("run callback is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		path:   opts.StorePath,
		run:    opts.Run,
		tasks:  make(map[string]*Task),
		timers: make(map[string]*time.Timer),
		ctx:    ctx,
		cancel: cancel,
	}

	if err := s.load(); err != nil {
		log.Warn().Err(err).Msg("Failed to load scheduled tasks, starting empty")
	}

	log.Info().Int("tasks", len(s.tasks)).Msg("Scheduler initialized")
	return s, nil
}

// Start arms a timer for every enabled task. Tasks whose next run is already
// past fire shortly after start instead of being dropped.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, task := range s.tasks {
		if task.Enabled {
			s.armLocked(task)
		}
	}
}

// Stop cancels all timers and waits for in-flight executions.
func (s *Service) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	log.Info().Msg("Scheduler stopped")
}

// Add creates and arms a new task.
func (s *Service) Add(chatID int64, expr, prompt string, maxRuns int) (Task, error) {
	if prompt == "" {
		return Task{}, fmt.Errorf("task prompt is required")
	}
	next, err := NextRun(expr, time.Now())
	if err != nil {
		return Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return Task{}, fmt.Errorf("scheduler is stopped")
	}

	task := &Task{
		ID:        uuid.New().String()[:8],
		ChatID:    chatID,
		Prompt:    prompt,
		Expr:      expr,
		Enabled:   true,
		MaxRuns:   maxRuns,
		CreatedAt: time.Now().UTC(),
		NextRunAt: next,
	}
	s.tasks[task.ID] = task

	if err := s.persistLocked(); err != nil {
		delete(s.tasks, task.ID)
		return Task{}, fmt.Errorf("failed to persist task: %w", err)
	}
	s.armLocked(task)

	log.Info().Str("task_id", task.ID).Str("expr", expr).Msg("Task scheduled")
	return *task, nil
}

// Delete removes a task and cancels its timer.
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("no task with id %s", id)
	}
	delete(s.tasks, id)
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("failed to persist deletion: %w", err)
	}

	log.Info().Str("task_id", id).Msg("Task deleted")
	return nil
}

// Get returns a task by ID.
func (s *Service) Get(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// List returns tasks ordered by creation time. A non-zero chatID filters to
// that chat.
func (s *Service) List(chatID int64) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if chatID != 0 && task.ChatID != chatID {
			continue
		}
		out = append(out, *task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// armLocked schedules the task's next firing. Caller holds s.mu.
func (s *Service) armLocked(task *Task) {
	if s.stopped {
		return
	}
	if timer, ok := s.timers[task.ID]; ok {
		timer.Stop()
	}

	delay := time.Until(task.NextRunAt)
	if delay < 0 {
		delay = time.Second
	}

	id := task.ID
	s.timers[id] = time.AfterFunc(delay, func() { s.fire(id) })
}

// fire executes a due task and re-arms or disables it.
func (s *Service) fire(id string) {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok || !task.Enabled || s.stopped {
		s.mu.Unlock()
		return
	}
	snapshot := *task
	// Register the in-flight run before releasing the lock. Stop flips
	// stopped under the same lock before it waits, so it either observes
	// this run or this fire observes stopped; the Add can never race the
	// Wait.
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	log.Info().Str("task_id", id).Msg("Executing scheduled task")
	err := s.run(s.ctx, snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok = s.tasks[id]
	if !ok {
		// Deleted while running.
		return
	}

	now := time.Now().UTC()
	task.Runs++
	task.LastRunAt = &now
	if err != nil {
		task.LastStatus = "error"
		task.LastError = err.Error()
		log.Error().Str("task_id", id).Err(err).Msg("Scheduled task failed")
	} else {
		task.LastStatus = "ok"
		task.LastError = ""
	}

	if task.MaxRuns > 0 && task.Runs >= task.MaxRuns {
		task.Enabled = false
		delete(s.timers, id)
		log.Info().Str("task_id", id).Int("runs", task.Runs).Msg("Task reached max runs, disabled")
	} else if next, nerr := NextRun(task.Expr, now); nerr == nil {
		task.NextRunAt = next
		s.armLocked(task)
	} else {
		task.Enabled = false
		task.LastError = nerr.Error()
	}

	if perr := s.persistLocked(); perr != nil {
		log.Error().Err(perr).Msg("Failed to persist task state")
	}
}

type taskFile struct {
	Tasks []*Task `json:"tasks"`
}

func (s *Service) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var file taskFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("task store is corrupt: %w", err)
	}
	for _, task := range file.Tasks {
		s.tasks[task.ID] = task
	}
	return nil
}

// persistLocked writes the task list atomically. Caller holds s.mu.
func (s *Service) persistLocked() error {
	tasks := make([]*Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })

	data, err := json.MarshalIndent(taskFile{Tasks: tasks}, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tmp-tasks-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}
