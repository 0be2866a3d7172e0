package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	db "github.com/katatrina/taskhub-BE/internal/db"
	"github.com/katatrina/taskhub-BE/internal/db/dbtest"
	"github.com/katatrina/taskhub-BE/internal/mailer"
	"github.com/katatrina/taskhub-BE/internal/preference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []mailer.Email
	err  error
}

func (s *fakeSender) SendEmail(_ context.Context, email mailer.Email) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, email)
	return nil
}

var digestNow = time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC)

func newTestProcessor(t *testing.T) (*RedisTaskProcessor, *db.SQLStore, *fakeSender) {
	t.Helper()

	store := dbtest.NewStore(t)
	sender := &fakeSender{}
	return &RedisTaskProcessor{
		store:  store,
		prefs:  preference.NewStore(store),
		mailer: sender,
		now:    func() time.Time { return digestNow },
	}, store, sender
}

func createUnread(t *testing.T, store db.Store, team dbtest.Team, recipient db.User, createdAt time.Time) {
	t.Helper()

	task := dbtest.CreateTask(t, store, team.Project.ID, "Fix login", db.TaskStatusTodo, nil)
	_, err := store.CreateNotification(context.Background(), db.CreateNotificationParams{
		RecipientID:      recipient.ID,
		OrganizationID:   team.Org.ID,
		ProjectID:        team.Project.ID,
		TaskID:           task.ID,
		NotificationType: db.NotificationTypeTaskUpdated,
		Title:            "Task Updated: Fix login",
		Message:          "Alice updated the task in Website Redesign",
		CreatedAt:        createdAt,
	})
	require.NoError(t, err)
}

func digestTask(t *testing.T, payload PayloadSendDigest) *asynq.Task {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(TaskSendDigest, data)
}

func TestProcessTaskSendDigest(t *testing.T) {
	processor, store, sender := newTestProcessor(t)
	team := dbtest.CreateTeam(t, store)
	since := digestNow.Add(-24 * time.Hour)

	createUnread(t, store, team, team.Bob, digestNow.Add(-2*time.Hour))
	createUnread(t, store, team, team.Bob, digestNow.Add(-5*time.Hour))
	createUnread(t, store, team, team.Bob, digestNow.Add(-30*time.Hour))

	err := processor.ProcessTaskSendDigest(context.Background(), digestTask(t, PayloadSendDigest{UserID: team.Bob.ID, Since: since}))
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{team.Bob.Email}, sender.sent[0].To)
	assert.Equal(t, "Daily Digest - 2 unread notifications", sender.sent[0].Subject)
}

func TestSendDigestSkips(t *testing.T) {
	processor, store, sender := newTestProcessor(t)
	team := dbtest.CreateTeam(t, store)
	since := digestNow.Add(-24 * time.Hour)

	createUnread(t, store, team, team.Carol, digestNow.Add(-time.Hour))
	_, err := preference.NewStore(store).Update(context.Background(), team.Carol.ID, map[string]any{
		preference.FieldEmailEnabled: false,
	})
	require.NoError(t, err)

	testCases := []struct {
		name   string
		userID int64
	}{
		{name: "EmailDisabled", userID: team.Carol.ID},
		{name: "NothingUnread", userID: team.Alice.ID},
		{name: "UserDeleted", userID: 99999},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sent, err := processor.sendDigest(context.Background(), PayloadSendDigest{UserID: tc.userID, Since: since})
			require.NoError(t, err)
			assert.False(t, sent)
		})
	}
	assert.Empty(t, sender.sent)
}

func TestProcessTaskSendDigestErrors(t *testing.T) {
	processor, store, sender := newTestProcessor(t)
	team := dbtest.CreateTeam(t, store)
	createUnread(t, store, team, team.Bob, digestNow.Add(-time.Hour))

	err := processor.ProcessTaskSendDigest(context.Background(), asynq.NewTask(TaskSendDigest, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	sender.err = errors.New("smtp: connection refused")
	err = processor.ProcessTaskSendDigest(context.Background(), digestTask(t, PayloadSendDigest{UserID: team.Bob.ID, Since: digestNow.Add(-24 * time.Hour)}))
	require.ErrorIs(t, err, sender.err)
}

func TestDigestTaskID(t *testing.T) {
	morning := time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 14, 22, 0, 0, 0, time.UTC)

	assert.Equal(t, "digest:42:2026-03-14", DigestTaskID(42, morning))
	assert.Equal(t, DigestTaskID(42, morning), DigestTaskID(42, evening))
	assert.NotEqual(t, DigestTaskID(42, morning), DigestTaskID(42, morning.AddDate(0, 0, 1)))
}
