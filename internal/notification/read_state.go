package notification

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	db "github.com/katatrina/taskhub-BE/internal/db"
)

const listPageSize = 50

// Filter narrows listing and counting. Nil fields match everything.
type Filter struct {
	OrganizationID *int64
	ProjectID      *int64
	UnreadOnly     bool
}

// ReadStateTracker owns the read flag of stored notifications.
type ReadStateTracker struct {
	store db.Querier
	now   func() time.Time
}

func NewReadStateTracker(store db.Querier, now func() time.Time) *ReadStateTracker {
	if now == nil {
		now = db.Now
	}
	return &ReadStateTracker{store: store, now: now}
}

// MarkRead sets is_read and read_at on the listed notifications the user owns and has not
// read yet. It returns how many rows changed. Already read rows keep their original read_at.
func (t *ReadStateTracker) MarkRead(ctx context.Context, userID int64, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	updated, err := t.store.MarkNotificationsRead(ctx, db.MarkNotificationsReadParams{
		IDs:         ids,
		RecipientID: userID,
		ReadAt:      t.now(),
	})
	if err != nil {
		return 0, persistenceError("mark notifications read", err)
	}
	return updated, nil
}

func (t *ReadStateTracker) UnreadCount(ctx context.Context, userID int64, filter Filter) (int64, error) {
	count, err := t.store.CountUnreadNotifications(ctx, db.CountUnreadNotificationsParams{
		RecipientID:    userID,
		OrganizationID: filter.OrganizationID,
		ProjectID:      filter.ProjectID,
	})
	if err != nil {
		return 0, persistenceError("count unread notifications", err)
	}
	return count, nil
}

// List returns one page of the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID int64, filter Filter, limit, offset int) ([]db.Notification, error) {
	items, err := s.store.ListNotifications(ctx, db.ListNotificationsParams{
		RecipientID:    userID,
		OrganizationID: filter.OrganizationID,
		ProjectID:      filter.ProjectID,
		UnreadOnly:     filter.UnreadOnly,
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		return nil, persistenceError("list notifications", err)
	}
	return items, nil
}

// ListForUser walks all of the user's notifications newest first, fetching them lazily in
// keyset pages. Iteration stops at the first error, which is yielded once.
func (s *Service) ListForUser(ctx context.Context, userID int64, filter Filter) iter.Seq2[db.Notification, error] {
	return func(yield func(db.Notification, error) bool) {
		var after *db.NotificationCursor
		for {
			page, err := s.store.ListNotifications(ctx, db.ListNotificationsParams{
				RecipientID:    userID,
				OrganizationID: filter.OrganizationID,
				ProjectID:      filter.ProjectID,
				UnreadOnly:     filter.UnreadOnly,
				After:          after,
				Limit:          listPageSize,
			})
			if err != nil {
				yield(db.Notification{}, persistenceError("list notifications", err))
				return
			}

			for _, n := range page {
				if !yield(n, nil) {
					return
				}
			}
			if len(page) < listPageSize {
				return
			}

			last := page[len(page)-1]
			after = &db.NotificationCursor{CreatedAt: last.CreatedAt, ID: last.ID}
		}
	}
}
