package db

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const notificationColumns = `
id, recipient_id, sender_id, organization_id, project_id, task_id,
notification_type, title, message, is_read, read_at, created_at
`

const createNotification = `
INSERT INTO notifications (
	id, recipient_id, sender_id, organization_id, project_id, task_id,
	notification_type, title, message, is_read, read_at, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)
RETURNING` + notificationColumns

type CreateNotificationParams struct {
	RecipientID      int64            `json:"recipient_id"`
	SenderID         *int64           `json:"sender_id"`
	OrganizationID   int64            `json:"organization_id"`
	ProjectID        int64            `json:"project_id"`
	TaskID           int64            `json:"task_id"`
	NotificationType NotificationType `json:"notification_type"`
	Title            string           `json:"title"`
	Message          string           `json:"message"`
	CreatedAt        time.Time        `json:"created_at"`
}

// CreateNotification inserts an unread notification under a fresh random id.
func (q *Queries) CreateNotification(ctx context.Context, arg CreateNotificationParams) (Notification, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return Notification{}, err
	}
	createdAt := arg.CreatedAt
	if createdAt.IsZero() {
		createdAt = Now()
	}

	var i Notification
	err = q.db.GetContext(ctx, &i, q.db.Rebind(createNotification),
		id, arg.RecipientID, arg.SenderID, arg.OrganizationID, arg.ProjectID, arg.TaskID,
		arg.NotificationType, arg.Title, arg.Message, false, utc(createdAt))
	return i, err
}

const getNotification = `
SELECT` + notificationColumns + `FROM notifications
WHERE id = ?
`

func (q *Queries) GetNotification(ctx context.Context, id uuid.UUID) (Notification, error) {
	var i Notification
	err := q.db.GetContext(ctx, &i, q.db.Rebind(getNotification), id)
	return i, err
}

// NotificationCursor positions a page after the last row of the previous page.
type NotificationCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

type ListNotificationsParams struct {
	RecipientID    int64
	OrganizationID *int64
	ProjectID      *int64
	UnreadOnly     bool
	After          *NotificationCursor
	Limit          int
	Offset         int
}

// notificationFilter builds the conjunctive WHERE clause shared by listing and counting.
func notificationFilter(recipientID int64, organizationID, projectID *int64, unreadOnly bool) (string, []any) {
	conds := []string{"recipient_id = ?"}
	args := []any{recipientID}

	if organizationID != nil {
		conds = append(conds, "organization_id = ?")
		args = append(args, *organizationID)
	}
	if projectID != nil {
		conds = append(conds, "project_id = ?")
		args = append(args, *projectID)
	}
	if unreadOnly {
		conds = append(conds, "is_read = ?")
		args = append(args, false)
	}

	return strings.Join(conds, " AND "), args
}

// ListNotifications returns the recipient's notifications newest first.
func (q *Queries) ListNotifications(ctx context.Context, arg ListNotificationsParams) ([]Notification, error) {
	where, args := notificationFilter(arg.RecipientID, arg.OrganizationID, arg.ProjectID, arg.UnreadOnly)
	if arg.After != nil {
		where += " AND (created_at < ? OR (created_at = ? AND id < ?))"
		createdAt := utc(arg.After.CreatedAt)
		args = append(args, createdAt, createdAt, arg.After.ID)
	}

	query := "SELECT" + notificationColumns + "FROM notifications WHERE " + where +
		" ORDER BY created_at DESC, id DESC"
	if arg.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, arg.Limit, arg.Offset)
	}

	items := []Notification{}
	err := q.db.SelectContext(ctx, &items, q.db.Rebind(query), args...)
	return items, err
}

type CountUnreadNotificationsParams struct {
	RecipientID    int64
	OrganizationID *int64
	ProjectID      *int64
}

func (q *Queries) CountUnreadNotifications(ctx context.Context, arg CountUnreadNotificationsParams) (int64, error) {
	where, args := notificationFilter(arg.RecipientID, arg.OrganizationID, arg.ProjectID, true)

	var count int64
	err := q.db.GetContext(ctx, &count, q.db.Rebind("SELECT COUNT(*) FROM notifications WHERE "+where), args...)
	return count, err
}

const markNotificationsRead = `
UPDATE notifications SET is_read = ?, read_at = ?
WHERE id IN (?) AND recipient_id = ? AND is_read = ?
`

type MarkNotificationsReadParams struct {
	IDs         []uuid.UUID
	RecipientID int64
	ReadAt      time.Time
}

// MarkNotificationsRead flips unread rows owned by the recipient. Ids of other users' rows match nothing.
func (q *Queries) MarkNotificationsRead(ctx context.Context, arg MarkNotificationsReadParams) (int64, error) {
	if len(arg.IDs) == 0 {
		return 0, nil
	}

	ids := make([]string, len(arg.IDs))
	for i, id := range arg.IDs {
		ids[i] = id.String()
	}

	query, args, err := sqlx.In(markNotificationsRead, true, utc(arg.ReadAt), ids, arg.RecipientID, false)
	if err != nil {
		return 0, err
	}

	result, err := q.db.ExecContext(ctx, q.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const hasNotificationSince = `
SELECT EXISTS (
	SELECT 1 FROM notifications
	WHERE task_id = ? AND notification_type = ? AND created_at >= ?
)
`

// HasNotificationSince reports whether a notification of the given type was created for the task at or after since.
func (q *Queries) HasNotificationSince(ctx context.Context, taskID int64, notificationType NotificationType, since time.Time) (bool, error) {
	var ok bool
	err := q.db.GetContext(ctx, &ok, q.db.Rebind(hasNotificationSince), taskID, notificationType, utc(since))
	return ok, err
}

const deleteReadNotificationsBefore = `
DELETE FROM notifications
WHERE is_read = ? AND read_at < ?
`

func (q *Queries) DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, q.db.Rebind(deleteReadNotificationsBefore), true, utc(cutoff))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listDigestRecipientIDs = `
SELECT DISTINCT n.recipient_id FROM notifications n
LEFT JOIN notification_preferences p ON p.user_id = n.recipient_id
WHERE n.is_read = ? AND n.created_at >= ?
  AND (p.id IS NULL OR p.email_enabled = ?)
ORDER BY n.recipient_id
`

// ListDigestRecipientIDs returns users with email enabled who received unread notifications since the given time.
func (q *Queries) ListDigestRecipientIDs(ctx context.Context, since time.Time) ([]int64, error) {
	var ids []int64
	err := q.db.SelectContext(ctx, &ids, q.db.Rebind(listDigestRecipientIDs), false, utc(since), true)
	return ids, err
}

const listUnreadNotificationsSince = `
SELECT` + notificationColumns + `FROM notifications
WHERE recipient_id = ? AND is_read = ? AND created_at >= ?
ORDER BY created_at DESC, id DESC
`

func (q *Queries) ListUnreadNotificationsSince(ctx context.Context, recipientID int64, since time.Time) ([]Notification, error) {
	var items []Notification
	err := q.db.SelectContext(ctx, &items, q.db.Rebind(listUnreadNotificationsSince), recipientID, false, utc(since))
	return items, err
}
