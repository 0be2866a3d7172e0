package reminder

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	db "github.com/katatrina/taskhub-BE/internal/db"
	"github.com/katatrina/taskhub-BE/internal/db/dbtest"
	"github.com/katatrina/taskhub-BE/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDistributor struct {
	payloads []worker.PayloadSendDigest
	enqueued map[int64]bool
}

func (d *fakeDistributor) DistributeTaskSendDigest(_ context.Context, payload *worker.PayloadSendDigest, _ ...asynq.Option) error {
	if d.enqueued[payload.UserID] {
		return fmt.Errorf("failed to enqueue task: %w", asynq.ErrTaskIDConflict)
	}
	d.enqueued[payload.UserID] = true
	d.payloads = append(d.payloads, *payload)
	return nil
}

type recordingAlerter struct {
	messages []string
}

func (a *recordingAlerter) Alert(_ context.Context, message string) error {
	a.messages = append(a.messages, message)
	return nil
}

var testConfig = Config{
	OverdueScanHour:       21,
	OverdueScanMinute:     4,
	ConnectionIdleTimeout: time.Hour,
	IdleReapInterval:      30 * time.Minute,
	NotificationRetention: 30 * 24 * time.Hour,
	RetentionHour:         2,
	DigestHour:            7,
}

func newTestScheduler(t *testing.T, store db.Store, distributor worker.TaskDistributor, alerter *recordingAlerter) *Scheduler {
	t.Helper()

	s, err := NewScheduler(testConfig, store, NewScanner(store, &flakyNotifier{}, 24*time.Hour), distributor, alerter)
	require.NoError(t, err)
	s.ctx = context.Background()
	return s
}

func TestRunDigestDispatch(t *testing.T) {
	store := dbtest.NewStore(t)
	team := dbtest.CreateTeam(t, store)
	task := dbtest.CreateTask(t, store, team.Project.ID, "Fix login", db.TaskStatusTodo, nil)

	for _, user := range []db.User{team.Bob, team.Carol} {
		_, err := store.CreateNotification(context.Background(), db.CreateNotificationParams{
			RecipientID:      user.ID,
			OrganizationID:   team.Org.ID,
			ProjectID:        team.Project.ID,
			TaskID:           task.ID,
			NotificationType: db.NotificationTypeTaskUpdated,
			Title:            "Task Updated: Fix login",
		})
		require.NoError(t, err)
	}

	distributor := &fakeDistributor{enqueued: map[int64]bool{}}
	s := newTestScheduler(t, store, distributor, &recordingAlerter{})

	require.NoError(t, s.runDigestDispatch())
	require.NoError(t, s.runDigestDispatch())

	require.Len(t, distributor.payloads, 2)
	assert.ElementsMatch(t, []int64{team.Bob.ID, team.Carol.ID},
		[]int64{distributor.payloads[0].UserID, distributor.payloads[1].UserID})
}

func TestRunIdleReap(t *testing.T) {
	store := dbtest.NewStore(t)
	team := dbtest.CreateTeam(t, store)
	ctx := context.Background()

	for _, connID := range []string{"ws_stale", "ws_fresh"} {
		_, err := store.UpsertWebsocketConnection(ctx, db.UpsertWebsocketConnectionParams{
			UserID:         team.Bob.ID,
			ConnectionID:   connID,
			OrganizationID: team.Org.ID,
		})
		require.NoError(t, err)
	}
	require.NoError(t, store.TouchWebsocketConnection(ctx, "ws_stale", time.Now().Add(-2*time.Hour)))

	s := newTestScheduler(t, store, nil, &recordingAlerter{})
	require.NoError(t, s.runIdleReap())

	remaining, err := store.ListWebsocketConnectionsByUser(ctx, team.Bob.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "ws_fresh", remaining[0].ConnectionID)
}

func TestRunRetention(t *testing.T) {
	store := dbtest.NewStore(t)
	team := dbtest.CreateTeam(t, store)
	task := dbtest.CreateTask(t, store, team.Project.ID, "Fix login", db.TaskStatusTodo, nil)
	ctx := context.Background()

	create := func() db.Notification {
		n, err := store.CreateNotification(ctx, db.CreateNotificationParams{
			RecipientID:      team.Bob.ID,
			OrganizationID:   team.Org.ID,
			ProjectID:        team.Project.ID,
			TaskID:           task.ID,
			NotificationType: db.NotificationTypeTaskUpdated,
			Title:            "Task Updated: Fix login",
		})
		require.NoError(t, err)
		return n
	}

	oldRead, recentRead, unread := create(), create(), create()
	for id, readAt := range map[uuid.UUID]time.Time{
		oldRead.ID:    time.Now().Add(-40 * 24 * time.Hour),
		recentRead.ID: time.Now().Add(-time.Hour),
	} {
		_, err := store.MarkNotificationsRead(ctx, db.MarkNotificationsReadParams{
			IDs:         []uuid.UUID{id},
			RecipientID: team.Bob.ID,
			ReadAt:      readAt,
		})
		require.NoError(t, err)
	}

	s := newTestScheduler(t, store, nil, &recordingAlerter{})
	require.NoError(t, s.runRetention())

	_, err := store.GetNotification(ctx, oldRead.ID)
	assert.ErrorIs(t, err, db.ErrRecordNotFound)
	for _, id := range []uuid.UUID{recentRead.ID, unread.ID} {
		_, err = store.GetNotification(ctx, id)
		assert.NoError(t, err)
	}
}

func TestReportFailureAlerts(t *testing.T) {
	store := dbtest.NewStore(t)
	alerter := &recordingAlerter{}
	s := newTestScheduler(t, store, nil, alerter)

	s.reportFailure(uuid.Nil, JobOverdueScan, fmt.Errorf("database is locked"))

	require.Len(t, alerter.messages, 1)
	assert.Equal(t, "job overdue_scan failed: database is locked", alerter.messages[0])
}

func TestSchedulerStartStop(t *testing.T) {
	store := dbtest.NewStore(t)
	s, err := NewScheduler(testConfig, store, NewScanner(store, &flakyNotifier{}, 24*time.Hour), nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Len(t, s.scheduler.Jobs(), 3)
	require.NoError(t, s.Stop())
}

func TestRunOverdueScanReportsTally(t *testing.T) {
	store := dbtest.NewStore(t)
	team := dbtest.CreateTeam(t, store)
	past := time.Now().Add(-time.Hour)
	dbtest.CreateTask(t, store, team.Project.ID, "Quarterly report", db.TaskStatusTodo, &past, team.Bob.ID)

	alerter := &recordingAlerter{}
	s := newTestScheduler(t, store, nil, alerter)
	require.NoError(t, s.runOverdueScan())

	require.Len(t, alerter.messages, 1)
	assert.Equal(t, "overdue scan: 1 sent, 0 failed (1 candidates)", alerter.messages[0])
}
