package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	db "github.com/katatrina/taskhub-BE/internal/db"
	"github.com/katatrina/taskhub-BE/internal/event"
	"github.com/katatrina/taskhub-BE/internal/preference"
	"github.com/katatrina/taskhub-BE/internal/registry"
	"github.com/rs/zerolog/log"
)

// ErrPersistence marks failures the event source should retry. Nothing was delivered.
var ErrPersistence = errors.New("notification persistence failed")

var ErrInvalidType = errors.New("invalid notification type")

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Mirror copies created notifications to a secondary feed.
type Mirror interface {
	Mirror(ctx context.Context, n db.Notification) error
}

type Service struct {
	store  db.Store
	prefs  *preference.Store
	bus    event.Publisher
	reads  *ReadStateTracker
	mirror Mirror
	now    func() time.Time
}

type Option func(*Service)

// WithMirror makes the service copy every created notification to m after it is stored.
func WithMirror(m Mirror) Option {
	return func(s *Service) {
		s.mirror = m
	}
}

// WithClock replaces the time source used for created_at and read_at.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store db.Store, prefs *preference.Store, bus event.Publisher, opts ...Option) *Service {
	s := &Service{
		store: store,
		prefs: prefs,
		bus:   bus,
		now:   db.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reads = NewReadStateTracker(store, s.now)

	return s
}

// TaskEvent is a domain event about one task.
type TaskEvent struct {
	Task     db.TaskScope
	Type     db.NotificationType
	SenderID *int64
	// Message replaces the rendered message when set.
	Message  string
}

// NotifyTaskEvent creates one notification per organization member other than the sender
// whose preferences allow it, then pushes each one to the organization group.
//
// Storage failures are returned wrapped in ErrPersistence. Push failures are logged only;
// the stored rows are what clients eventually read.
func (s *Service) NotifyTaskEvent(ctx context.Context, ev TaskEvent) ([]db.Notification, error) {
	if !ev.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, ev.Type)
	}

	project, err := s.store.GetProject(ctx, ev.Task.ProjectID)
	if err != nil {
		return nil, persistenceError("get project", err)
	}

	var sender *db.User
	if ev.SenderID != nil {
		user, err := s.store.GetUser(ctx, *ev.SenderID)
		if err != nil {
			return nil, persistenceError("get sender", err)
		}
		sender = &user
	}

	recipients, err := s.resolveRecipients(ctx, ev.Task.OrganizationID, ev.Type, ev.SenderID)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, nil
	}

	title := renderTitle(ev.Type, ev.Task)
	message := ev.Message
	if message == "" {
		message = renderMessage(ev.Type, ev.Task, project, sender)
	}
	createdAt := s.now()

	notifications := make([]db.Notification, 0, len(recipients))
	err = s.store.ExecTx(ctx, func(q *db.Queries) error {
		for _, recipientID := range recipients {
			n, err := q.CreateNotification(ctx, db.CreateNotificationParams{
				RecipientID:      recipientID,
				SenderID:         ev.SenderID,
				OrganizationID:   ev.Task.OrganizationID,
				ProjectID:        ev.Task.ProjectID,
				TaskID:           ev.Task.ID,
				NotificationType: ev.Type,
				Title:            title,
				Message:          message,
				CreatedAt:        createdAt,
			})
			if err != nil {
				return err
			}
			notifications = append(notifications, n)
		}
		return nil
	})
	if err != nil {
		return nil, persistenceError("create notifications", err)
	}

	log.Info().
		Int64("task_id", ev.Task.ID).
		Int64("organization_id", ev.Task.OrganizationID).
		Str("notification_type", string(ev.Type)).
		Int("recipients", len(notifications)).
		Msg("task notifications created")

	s.deliver(ctx, notifications, sender)
	return notifications, nil
}

// resolveRecipients returns organization members minus the sender, keeping those whose
// preference toggle for this kind of event is on.
func (s *Service) resolveRecipients(ctx context.Context, organizationID int64, notificationType db.NotificationType, senderID *int64) ([]int64, error) {
	members, err := s.store.ListOrganizationMemberIDs(ctx, organizationID)
	if err != nil {
		return nil, persistenceError("list organization members", err)
	}

	candidates := make([]int64, 0, len(members))
	for _, id := range members {
		if senderID != nil && id == *senderID {
			continue
		}
		candidates = append(candidates, id)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	prefs, err := s.prefs.Lookup(ctx, candidates)
	if err != nil {
		return nil, persistenceError("lookup preferences", err)
	}

	recipients := candidates[:0]
	for _, id := range candidates {
		if wants(prefs[id], notificationType) {
			recipients = append(recipients, id)
		}
	}
	return recipients, nil
}

// wants reports whether the preference toggle governing notificationType is on.
func wants(pref db.NotificationPreference, notificationType db.NotificationType) bool {
	if notificationType == db.NotificationTypeTaskOverdue {
		return pref.OverdueReminders
	}
	return pref.IssueUpdates
}

// SendOverdueReminder notifies the task's primary assignee that it is overdue. It returns
// nil without error when the task has no assignee or the assignee opted out. It does not
// deduplicate.
func (s *Service) SendOverdueReminder(ctx context.Context, task db.TaskScope) (*db.Notification, error) {
	assignees, err := s.store.ListTaskAssigneeIDs(ctx, task.ID)
	if err != nil {
		return nil, persistenceError("list assignees", err)
	}
	if len(assignees) == 0 {
		return nil, nil
	}
	assigneeID := assignees[0]

	prefs, err := s.prefs.Lookup(ctx, []int64{assigneeID})
	if err != nil {
		return nil, persistenceError("lookup preferences", err)
	}
	if !wants(prefs[assigneeID], db.NotificationTypeTaskOverdue) {
		log.Debug().Int64("task_id", task.ID).Int64("user_id", assigneeID).Msg("overdue reminders disabled, skipping")
		return nil, nil
	}

	n, err := s.store.CreateNotification(ctx, db.CreateNotificationParams{
		RecipientID:      assigneeID,
		OrganizationID:   task.OrganizationID,
		ProjectID:        task.ProjectID,
		TaskID:           task.ID,
		NotificationType: db.NotificationTypeTaskOverdue,
		Title:            renderTitle(db.NotificationTypeTaskOverdue, task),
		Message:          overdueMessage(task),
		CreatedAt:        s.now(),
	})
	if err != nil {
		return nil, persistenceError("create overdue notification", err)
	}

	s.deliver(ctx, []db.Notification{n}, nil)
	return &n, nil
}

// deliver mirrors and pushes stored notifications. Failures are logged and swallowed.
func (s *Service) deliver(ctx context.Context, notifications []db.Notification, sender *db.User) {
	for _, n := range notifications {
		if s.mirror != nil {
			if err := s.mirror.Mirror(ctx, n); err != nil {
				log.Error().Err(err).Str("notification_id", n.ID.String()).Msg("failed to mirror notification")
			}
		}

		group := registry.OrganizationGroup(n.OrganizationID)
		ev := event.Event{
			Type:        event.EventTypeNotification,
			RecipientID: n.RecipientID,
			Data:        NewSnapshot(n, sender),
		}
		if err := s.bus.Publish(ctx, group, ev); err != nil {
			log.Error().Err(err).
				Str("group", group).
				Str("notification_id", n.ID.String()).
				Msg("failed to publish notification")
		}
	}
}

// PublishIssueUpdate pushes the current task state to members of the task's project room.
func (s *Service) PublishIssueUpdate(ctx context.Context, task db.TaskScope, assigneeIDs []int64, changes []string) {
	group := registry.ProjectGroup(task.ProjectID)
	ev := event.Event{
		Type: event.EventTypeIssueUpdate,
		Data: IssueUpdate{
			TaskID:         task.ID,
			ProjectID:      task.ProjectID,
			OrganizationID: task.OrganizationID,
			Title:          task.Title,
			Status:         task.Status,
			DueDate:        task.DueDate,
			AssigneeIDs:    assigneeIDs,
			Changes:        changes,
			UpdatedAt:      task.UpdatedAt,
		},
	}
	if err := s.bus.Publish(ctx, group, ev); err != nil {
		log.Error().Err(err).Str("group", group).Int64("task_id", task.ID).Msg("failed to publish issue update")
	}
}

// MarkRead marks the user's own notifications as read. Ids that are unknown or belong to
// someone else are skipped silently.
func (s *Service) MarkRead(ctx context.Context, userID int64, ids []uuid.UUID) (int64, error) {
	return s.reads.MarkRead(ctx, userID, ids)
}

func (s *Service) UnreadCount(ctx context.Context, userID int64, filter Filter) (int64, error) {
	return s.reads.UnreadCount(ctx, userID, filter)
}

// DeleteReadBefore removes read notifications whose read_at is older than cutoff.
func (s *Service) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	deleted, err := s.store.DeleteReadNotificationsBefore(ctx, cutoff)
	if err != nil {
		return 0, persistenceError("delete read notifications", err)
	}
	return deleted, nil
}
