package cron

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, run RunFunc) *Service {
	t.Helper()
	if run == nil {
		run = func(context.Context, Task) error { return nil }
	}
	s, err := NewService(ServiceOptions{
		StorePath: filepath.Join(t.TempDir(), "tasks.json"),
		Run:       run,
	})
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

func TestNextRun(t *testing.T) {
	after := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)

	next, err := NextRun("0 9 * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), next)

	next, err = NextRun("*/15 * * * *", after)
	require.NoError(t, err)
	assert.Equal(t, after.Add(15*time.Minute), next)
}

func TestValidateExpr(t *testing.T) {
	assert.NoError(t, ValidateExpr("0 9 * * 1-5"))
	assert.Error(t, ValidateExpr("not a cron"))
	assert.Error(t, ValidateExpr("* * * * * *"))
}

func TestAddAndList(t *testing.T) {
	s := newTestService(t, nil)

	task, err := s.Add(42, "0 9 * * *", "morning briefing", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.True(t, task.Enabled)
	assert.False(t, task.NextRunAt.IsZero())

	_, err = s.Add(99, "0 18 * * *", "other chat's task", 0)
	require.NoError(t, err)

	mine := s.List(42)
	require.Len(t, mine, 1)
	assert.Equal(t, "morning briefing", mine[0].Prompt)

	all := s.List(0)
	assert.Len(t, all, 2)
}

func TestAdd_InvalidExpr(t *testing.T) {
	s := newTestService(t, nil)

	_, err := s.Add(42, "whenever", "x", 0)
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	s := newTestService(t, nil)

	task, err := s.Add(42, "0 9 * * *", "x", 0)
	require.NoError(t, err)

	require.NoError(t, s.Delete(task.ID))
	assert.Empty(t, s.List(0))
	assert.Error(t, s.Delete(task.ID))
}

func TestPersistenceAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")

	s, err := NewService(ServiceOptions{StorePath: path,
		Run: func(context.Context, Task) error { return nil }})
	require.NoError(t, err)
	task, err := s.Add(42, "0 9 * * *", "survives restart", 2)
	require.NoError(t, err)
	s.Stop()

	reopened, err := NewService(ServiceOptions{StorePath: path,
		Run: func(context.Context, Task) error { return nil }})
	require.NoError(t, err)
	defer reopened.Stop()

	restored, ok := reopened.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, "survives restart", restored.Prompt)
	assert.Equal(t, 2, restored.MaxRuns)
}

func TestFire_RunsAndReArms(t *testing.T) {
	executed := make(chan Task, 4)
	s := newTestService(t, func(_ context.Context, task Task) error {
		executed <- task
		return nil
	})

	// A due-in-the-past task fires shortly after arming.
	task, err := s.Add(42, "* * * * *", "tick", 0)
	require.NoError(t, err)

	s.mu.Lock()
	s.tasks[task.ID].NextRunAt = time.Now().Add(-time.Minute)
	s.armLocked(s.tasks[task.ID])
	s.mu.Unlock()

	select {
	case got := <-executed:
		assert.Equal(t, "tick", got.Prompt)
	case <-time.After(5 * time.Second):
		t.Fatal("task did not fire")
	}

	require.Eventually(t, func() bool {
		updated, ok := s.Get(task.ID)
		return ok && updated.Runs == 1 && updated.LastStatus == "ok"
	}, 5*time.Second, 50*time.Millisecond)

	updated, _ := s.Get(task.ID)
	assert.True(t, updated.Enabled)
	assert.True(t, updated.NextRunAt.After(time.Now().Add(-time.Second)))
}

func TestFire_MaxRunsDisables(t *testing.T) {
	var mu sync.Mutex
	runs := 0
	s := newTestService(t, func(context.Context, Task) error {
		mu.Lock()
		runs++
		mu.Unlock()
		return nil
	})

	task, err := s.Add(42, "* * * * *", "once", 1)
	require.NoError(t, err)

	s.mu.Lock()
	s.tasks[task.ID].NextRunAt = time.Now().Add(-time.Minute)
	s.armLocked(s.tasks[task.ID])
	s.mu.Unlock()

	require.Eventually(t, func() bool {
		updated, ok := s.Get(task.ID)
		return ok && !updated.Enabled && updated.Runs == 1
	}, 5*time.Second, 50*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, runs)
	mu.Unlock()
}

func TestFire_ErrorRecorded(t *testing.T) {
	s := newTestService(t, func(context.Context, Task) error {
		return assert.AnError
	})

	task, err := s.Add(42, "* * * * *", "fails", 0)
	require.NoError(t, err)

	s.mu.Lock()
	s.tasks[task.ID].NextRunAt = time.Now().Add(-time.Minute)
	s.armLocked(s.tasks[task.ID])
	s.mu.Unlock()

	require.Eventually(t, func() bool {
		updated, ok := s.Get(task.ID)
		return ok && updated.LastStatus == "error" && updated.LastError != ""
	}, 5*time.Second, 50*time.Millisecond)
}

func TestStop_WaitsForInFlightRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := newTestService(t, func(context.Context, Task) error {
		close(started)
		<-release
		return nil
	})

	task, err := s.Add(42, "* * * * *", "slow", 0)
	require.NoError(t, err)

	s.mu.Lock()
	s.tasks[task.ID].NextRunAt = time.Now().Add(-time.Minute)
	s.armLocked(s.tasks[task.ID])
	s.mu.Unlock()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not fire")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a run was still in flight")
	case <-time.After(150 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the run finished")
	}
}
