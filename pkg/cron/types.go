// Package cron schedules prompts for future dispatch: reminders, periodic
// reports, one-shot follow-ups. Tasks persist as JSON so they survive
// restarts.
package cron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Task is one scheduled prompt.
type Task struct {
	ID      string `json:"id"`
	ChatID  int64  `json:"chat_id"`
	Prompt  string `json:"prompt"`
	Expr    string `json:"expr"`
	Enabled bool   `json:"enabled"`

	// MaxRuns disables the task after that many executions; zero means
	// unlimited.
	MaxRuns int `json:"max_runs"`
	Runs    int `json:"runs"`

	CreatedAt  time.Time  `json:"created_at"`
	NextRunAt  time.Time  `json:"next_run_at"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// standard 5-field cron: minute hour dom month dow
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextRun returns the first execution time after the given moment.
func NextRun(expr string, after time.Time) (time.Time, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule.Next(after), nil
}

// ValidateExpr checks a cron expression without scheduling anything.
func ValidateExpr(expr string) error {
	_, err := parser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}
