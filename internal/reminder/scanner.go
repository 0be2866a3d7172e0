// Package reminder runs the scheduled jobs of the notification core: overdue reminders,
// idle connection reaping, read notification retention and digest dispatch.
package reminder

import (
	"context"
	"time"

	db "github.com/katatrina/taskhub-BE/internal/db"
	"github.com/rs/zerolog/log"
)

type ScanStore interface {
	ListOverdueTasks(ctx context.Context, now time.Time) ([]db.TaskScope, error)
	HasNotificationSince(ctx context.Context, taskID int64, notificationType db.NotificationType, since time.Time) (bool, error)
}

type OverdueNotifier interface {
	SendOverdueReminder(ctx context.Context, task db.TaskScope) (*db.Notification, error)
}

// Scanner sends overdue reminders, at most one per task within the dedupe window.
type Scanner struct {
	store    ScanStore
	notifier OverdueNotifier
	window   time.Duration
	now      func() time.Time
}

func NewScanner(store ScanStore, notifier OverdueNotifier, window time.Duration) *Scanner {
	return &Scanner{
		store:    store,
		notifier: notifier,
		window:   window,
		now:      db.Now,
	}
}

// ScanResult counts what one scan did with the overdue candidates it found.
type ScanResult struct {
	Candidates int
	Sent       int
	Deduped    int
	Skipped    int
	Failed     int
}

// Scan reminds the assignee of every overdue task not reminded within the window and
// returns how many reminders were sent.
func (s *Scanner) Scan(ctx context.Context) (int, error) {
	result, err := s.Run(ctx)
	return result.Sent, err
}

// Run is Scan with the full tally. Failures on a single task are logged and counted;
// only a failure to list candidates or a cancelled context is returned.
func (s *Scanner) Run(ctx context.Context) (ScanResult, error) {
	var result ScanResult
	now := s.now()

	tasks, err := s.store.ListOverdueTasks(ctx, now)
	if err != nil {
		return result, err
	}
	result.Candidates = len(tasks)

	since := now.Add(-s.window)
	for _, task := range tasks {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		reminded, err := s.store.HasNotificationSince(ctx, task.ID, db.NotificationTypeTaskOverdue, since)
		if err != nil {
			log.Error().Err(err).Int64("task_id", task.ID).Msg("failed to check recent overdue reminders")
			result.Failed++
			continue
		}
		if reminded {
			result.Deduped++
			continue
		}

		n, err := s.notifier.SendOverdueReminder(ctx, task)
		switch {
		case err != nil:
			log.Error().Err(err).Int64("task_id", task.ID).Msg("failed to send overdue reminder")
			result.Failed++
		case n == nil:
			result.Skipped++
		default:
			result.Sent++
		}
	}

	log.Info().
		Int("candidates", result.Candidates).
		Int("sent", result.Sent).
		Int("deduped", result.Deduped).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("overdue scan finished")
	return result, nil
}
