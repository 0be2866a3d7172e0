// Package preference stores per-user delivery preferences.
//
// Every user owns exactly one preference row. Rows are created on the user-creation hook
// and lazily by GetOrCreate, so a missing row only exists for users created before the hook
// ran. Readers treat a missing row as the documented defaults (everything enabled).
package preference

import (
	"context"
	"errors"
	"fmt"
	"sort"

	db "github.com/katatrina/taskhub-BE/internal/db"
)

const (
	FieldEmailEnabled     = "email_enabled"
	FieldWebsocketEnabled = "websocket_enabled"
	FieldOverdueReminders = "overdue_reminders"
	FieldIssueUpdates     = "issue_updates"
)

var (
	ErrUnknownField = errors.New("unknown preference field")
	ErrInvalidValue = errors.New("preference value must be a boolean")
	ErrNoFields     = errors.New("no preference fields to update")
)

// ValidationError reports which field of an update was rejected.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Defaults returns the preferences of a user without a stored row.
func Defaults(userID int64) db.NotificationPreference {
	return db.NotificationPreference{
		UserID:           userID,
		EmailEnabled:     true,
		WebsocketEnabled: true,
		OverdueReminders: true,
		IssueUpdates:     true,
	}
}

type Store struct {
	store db.Store
}

func NewStore(store db.Store) *Store {
	return &Store{store: store}
}

// GetOrCreate returns the user's preferences, creating the default row on first access.
// Concurrent callers converge on a single row.
func (s *Store) GetOrCreate(ctx context.Context, userID int64) (db.NotificationPreference, error) {
	var pref db.NotificationPreference

	err := s.store.ExecTx(ctx, func(q *db.Queries) error {
		var err error
		pref, err = q.GetNotificationPreference(ctx, userID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, db.ErrRecordNotFound) {
			return err
		}

		defaults := Defaults(userID)
		pref, err = q.CreateNotificationPreference(ctx, db.CreateNotificationPreferenceParams{
			UserID:           userID,
			EmailEnabled:     defaults.EmailEnabled,
			WebsocketEnabled: defaults.WebsocketEnabled,
			OverdueReminders: defaults.OverdueReminders,
			IssueUpdates:     defaults.IssueUpdates,
		})
		return err
	})
	if err != nil {
		if !db.IsUniqueViolation(err) {
			return db.NotificationPreference{}, fmt.Errorf("failed to get or create preferences of user %d: %w", userID, err)
		}

		// Lost the race against a concurrent insert; that row is the one.
		pref, err = s.store.GetNotificationPreference(ctx, userID)
		if err != nil {
			return db.NotificationPreference{}, fmt.Errorf("failed to read preferences of user %d: %w", userID, err)
		}
	}

	return pref, nil
}

// Update applies a partial update. Only the four boolean toggles are accepted; the whole
// update is rejected if any key is unknown or any value is not a boolean.
func (s *Store) Update(ctx context.Context, userID int64, fields map[string]any) (db.NotificationPreference, error) {
	if err := Validate(fields); err != nil {
		return db.NotificationPreference{}, err
	}

	if _, err := s.GetOrCreate(ctx, userID); err != nil {
		return db.NotificationPreference{}, err
	}

	var updated db.NotificationPreference
	err := s.store.ExecTx(ctx, func(q *db.Queries) error {
		current, err := q.GetNotificationPreference(ctx, userID)
		if err != nil {
			return err
		}

		arg := db.UpdateNotificationPreferenceParams{
			UserID:           userID,
			EmailEnabled:     current.EmailEnabled,
			WebsocketEnabled: current.WebsocketEnabled,
			OverdueReminders: current.OverdueReminders,
			IssueUpdates:     current.IssueUpdates,
		}
		for field, value := range fields {
			v := value.(bool)
			switch field {
			case FieldEmailEnabled:
				arg.EmailEnabled = v
			case FieldWebsocketEnabled:
				arg.WebsocketEnabled = v
			case FieldOverdueReminders:
				arg.OverdueReminders = v
			case FieldIssueUpdates:
				arg.IssueUpdates = v
			}
		}

		updated, err = q.UpdateNotificationPreference(ctx, arg)
		return err
	})
	if err != nil {
		return db.NotificationPreference{}, fmt.Errorf("failed to update preferences of user %d: %w", userID, err)
	}

	return updated, nil
}

// Validate checks a partial update without touching storage. Fields are checked in
// name order so the reported violation is deterministic.
func Validate(fields map[string]any) error {
	if len(fields) == 0 {
		return ErrNoFields
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		switch name {
		case FieldEmailEnabled, FieldWebsocketEnabled, FieldOverdueReminders, FieldIssueUpdates:
		default:
			return &ValidationError{Field: name, Err: ErrUnknownField}
		}
		if _, ok := fields[name].(bool); !ok {
			return &ValidationError{Field: name, Err: ErrInvalidValue}
		}
	}

	return nil
}

// Lookup returns the preferences of every given user, falling back to Defaults for users
// without a stored row.
func (s *Store) Lookup(ctx context.Context, userIDs []int64) (map[int64]db.NotificationPreference, error) {
	rows, err := s.store.ListNotificationPreferencesByUserIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}

	prefs := make(map[int64]db.NotificationPreference, len(userIDs))
	for _, id := range userIDs {
		prefs[id] = Defaults(id)
	}
	for _, row := range rows {
		prefs[row.UserID] = row
	}

	return prefs, nil
}
