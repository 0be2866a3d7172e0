// Package tasktracking turns task mutations into notification events. The write path
// captures the task before and after it persists a change and hands the pair to a Detector.
package tasktracking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	db "github.com/katatrina/taskhub-BE/internal/db"
	"github.com/katatrina/taskhub-BE/internal/notification"
	"github.com/rs/zerolog/log"
)

const (
	ChangeCreated   = "created"
	ChangeTitle     = "title"
	ChangeStatus    = "status"
	ChangeDueDate   = "due_date"
	ChangeAssignees = "assignees"
)

// Image holds the fields of a task that matter for change detection.
type Image struct {
	TaskID      int64         `json:"task_id" binding:"required,min=1"`
	Title       string        `json:"title"`
	Status      db.TaskStatus `json:"status" binding:"required,oneof=TODO IN_PROGRESS DONE"`
	DueDate     *time.Time    `json:"due_date"`
	AssigneeIDs []int64       `json:"assignee_ids"`
}

// Changes lists the fields that differ between before and after. A nil before
// means the task was just created.
func Changes(before *Image, after Image) []string {
	if before == nil {
		return []string{ChangeCreated}
	}

	var changes []string
	if before.Title != after.Title {
		changes = append(changes, ChangeTitle)
	}
	if before.Status != after.Status {
		changes = append(changes, ChangeStatus)
	}
	if !sameTime(before.DueDate, after.DueDate) {
		changes = append(changes, ChangeDueDate)
	}
	if !sameSet(before.AssigneeIDs, after.AssigneeIDs) {
		changes = append(changes, ChangeAssignees)
	}
	return changes
}

// Detect returns the notification types a mutation emits, assignment first.
// Creation emits nothing.
func Detect(before *Image, after Image) []db.NotificationType {
	if before == nil {
		return nil
	}

	var types []db.NotificationType
	if !sameSet(before.AssigneeIDs, after.AssigneeIDs) {
		types = append(types, db.NotificationTypeTaskAssigned)
	}

	if before.Status != after.Status {
		if after.Status == db.TaskStatusDone {
			types = append(types, db.NotificationTypeTaskCompleted)
		} else {
			types = append(types, db.NotificationTypeTaskStatusUpdated)
		}
	}
	return types
}

func sameSet(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// Notifier is the part of the notification service the detector drives.
type Notifier interface {
	NotifyTaskEvent(ctx context.Context, ev notification.TaskEvent) ([]db.Notification, error)
	PublishIssueUpdate(ctx context.Context, task db.TaskScope, assigneeIDs []int64, changes []string)
}

type Store interface {
	GetTaskScope(ctx context.Context, id int64) (db.TaskScope, error)
	ListTaskAssigneeIDs(ctx context.Context, taskID int64) ([]int64, error)
}

type Detector struct {
	store    Store
	notifier Notifier
}

func NewDetector(store Store, notifier Notifier) *Detector {
	return &Detector{
		store:    store,
		notifier: notifier,
	}
}

// Capture reads the current image of a task.
func (d *Detector) Capture(ctx context.Context, taskID int64) (Image, error) {
	task, err := d.store.GetTaskScope(ctx, taskID)
	if err != nil {
		return Image{}, fmt.Errorf("failed to get task %d: %w", taskID, err)
	}

	assignees, err := d.store.ListTaskAssigneeIDs(ctx, taskID)
	if err != nil {
		return Image{}, fmt.Errorf("failed to list assignees of task %d: %w", taskID, err)
	}

	return Image{
		TaskID:      task.ID,
		Title:       task.Title,
		Status:      task.Status,
		DueDate:     task.DueDate,
		AssigneeIDs: assignees,
	}, nil
}

// Mutation is a before and after pair produced by the write path.
type Mutation struct {
	Before  *Image
	After   Image
	ActorID *int64
}

var ErrTaskMismatch = errors.New("before and after images describe different tasks")

// Apply emits every event the mutation implies and pushes an issue update to the
// project room when anything changed. Each event is sent independently; the first
// failure is returned after the rest were attempted.
func (d *Detector) Apply(ctx context.Context, m Mutation) ([]db.Notification, error) {
	if m.Before != nil && m.Before.TaskID != m.After.TaskID {
		return nil, ErrTaskMismatch
	}

	changes := Changes(m.Before, m.After)
	if len(changes) == 0 {
		return nil, nil
	}

	task, err := d.store.GetTaskScope(ctx, m.After.TaskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task %d: %w", m.After.TaskID, err)
	}

	var (
		created  []db.Notification
		firstErr error
	)
	for _, notificationType := range Detect(m.Before, m.After) {
		notifications, err := d.notifier.NotifyTaskEvent(ctx, notification.TaskEvent{
			Task:     task,
			Type:     notificationType,
			SenderID: m.ActorID,
		})
		if err != nil {
			log.Error().Err(err).
				Int64("task_id", task.ID).
				Str("notification_type", string(notificationType)).
				Msg("failed to notify task event")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		created = append(created, notifications...)
	}

	d.notifier.PublishIssueUpdate(ctx, task, m.After.AssigneeIDs, changes)
	return created, firstErr
}

// Track captures the task, runs mutate, captures it again and applies the difference.
// Nothing is emitted when mutate fails.
func (d *Detector) Track(ctx context.Context, taskID int64, actorID *int64, mutate func(ctx context.Context) error) ([]db.Notification, error) {
	before, err := d.Capture(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if err := mutate(ctx); err != nil {
		return nil, err
	}

	after, err := d.Capture(ctx, taskID)
	if err != nil {
		return nil, err
	}

	return d.Apply(ctx, Mutation{Before: &before, After: after, ActorID: actorID})
}
