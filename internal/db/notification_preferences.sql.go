package db

import (
	"context"

	"github.com/jmoiron/sqlx"
)

const preferenceColumns = `
id, user_id, email_enabled, websocket_enabled, overdue_reminders, issue_updates, created_at, updated_at
`

const getNotificationPreference = `
SELECT` + preferenceColumns + `FROM notification_preferences
WHERE user_id = ?
`

func (q *Queries) GetNotificationPreference(ctx context.Context, userID int64) (NotificationPreference, error) {
	var i NotificationPreference
	err := q.db.GetContext(ctx, &i, q.db.Rebind(getNotificationPreference), userID)
	return i, err
}

const createNotificationPreference = `
INSERT INTO notification_preferences (
	user_id, email_enabled, websocket_enabled, overdue_reminders, issue_updates, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING` + preferenceColumns

type CreateNotificationPreferenceParams struct {
	UserID           int64 `json:"user_id"`
	EmailEnabled     bool  `json:"email_enabled"`
	WebsocketEnabled bool  `json:"websocket_enabled"`
	OverdueReminders bool  `json:"overdue_reminders"`
	IssueUpdates     bool  `json:"issue_updates"`
}

func (q *Queries) CreateNotificationPreference(ctx context.Context, arg CreateNotificationPreferenceParams) (NotificationPreference, error) {
	now := Now()

	var i NotificationPreference
	err := q.db.GetContext(ctx, &i, q.db.Rebind(createNotificationPreference),
		arg.UserID, arg.EmailEnabled, arg.WebsocketEnabled, arg.OverdueReminders, arg.IssueUpdates, now, now)
	return i, err
}

const updateNotificationPreference = `
UPDATE notification_preferences
SET email_enabled = ?, websocket_enabled = ?, overdue_reminders = ?, issue_updates = ?, updated_at = ?
WHERE user_id = ?
RETURNING` + preferenceColumns

type UpdateNotificationPreferenceParams struct {
	UserID           int64 `json:"user_id"`
	EmailEnabled     bool  `json:"email_enabled"`
	WebsocketEnabled bool  `json:"websocket_enabled"`
	OverdueReminders bool  `json:"overdue_reminders"`
	IssueUpdates     bool  `json:"issue_updates"`
}

func (q *Queries) UpdateNotificationPreference(ctx context.Context, arg UpdateNotificationPreferenceParams) (NotificationPreference, error) {
	var i NotificationPreference
	err := q.db.GetContext(ctx, &i, q.db.Rebind(updateNotificationPreference),
		arg.EmailEnabled, arg.WebsocketEnabled, arg.OverdueReminders, arg.IssueUpdates, Now(), arg.UserID)
	return i, err
}

const listNotificationPreferencesByUserIDs = `
SELECT` + preferenceColumns + `FROM notification_preferences
WHERE user_id IN (?)
`

func (q *Queries) ListNotificationPreferencesByUserIDs(ctx context.Context, userIDs []int64) ([]NotificationPreference, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(listNotificationPreferencesByUserIDs, userIDs)
	if err != nil {
		return nil, err
	}

	var items []NotificationPreference
	err = q.db.SelectContext(ctx, &items, q.db.Rebind(query), args...)
	return items, err
}
