package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	db "github.com/katatrina/taskhub-BE/internal/db"
	"github.com/katatrina/taskhub-BE/internal/db/dbtest"
	"github.com/katatrina/taskhub-BE/internal/event"
	"github.com/katatrina/taskhub-BE/internal/preference"
	"github.com/katatrina/taskhub-BE/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	group string
	event event.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, group string, ev event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{group: group, event: ev})
	return p.err
}

func (p *recordingPublisher) published() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

type recordingMirror struct {
	ids []uuid.UUID
}

func (m *recordingMirror) Mirror(_ context.Context, n db.Notification) error {
	m.ids = append(m.ids, n.ID)
	return errors.New("firestore unavailable")
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, opts ...Option) (*Service, *db.SQLStore, *recordingPublisher) {
	t.Helper()

	store := dbtest.NewStore(t)
	bus := &recordingPublisher{}
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewService(store, preference.NewStore(store), bus, opts...), store, bus
}

func recipients(notifications []db.Notification) []int64 {
	ids := make([]int64, len(notifications))
	for i, n := range notifications {
		ids[i] = n.RecipientID
	}
	return ids
}

func TestNotifyTaskEventCompleted(t *testing.T) {
	svc, store, bus := newTestService(t)
	team := dbtest.CreateTeam(t, store)
	task := dbtest.CreateTask(t, store, team.Project.ID, "Fix login", db.TaskStatusDone, nil, team.Bob.ID)

	notifications, err := svc.NotifyTaskEvent(context.Background(), TaskEvent{
		Task:     task,
		Type:     db.NotificationTypeTaskCompleted,
		SenderID: &team.Alice.ID,
	})
	require.NoError(t, err)
	require.Len(t, notifications, 2)
	assert.ElementsMatch(t, []int64{team.Bob.ID, team.Carol.ID}, recipients(notifications))

	for _, n := range notifications {
		assert.Equal(t, "Task Completed: Fix login", n.Title)
		assert.Equal(t, "Alice completed the task in Website Redesign", n.Message)
		assert.Equal(t, db.NotificationTypeTaskCompleted, n.NotificationType)
		assert.Equal(t, team.Org.ID, n.OrganizationID)
		assert.Equal(t, team.Project.ID, n.ProjectID)
		assert.Equal(t, task.ID, n.TaskID)
		require.NotNil(t, n.SenderID)
		assert.Equal(t, team.Alice.ID, *n.SenderID)
		assert.False(t, n.IsRead)
		assert.Nil(t, n.ReadAt)
		assert.True(t, n.CreatedAt.Equal(fixedNow))
	}

	events := bus.published()
	require.Len(t, events, 2)
	for i, p := range events {
		assert.Equal(t, registry.OrganizationGroup(team.Org.ID), p.group)
		assert.Equal(t, event.EventTypeNotification, p.event.Type)
		assert.Equal(t, notifications[i].RecipientID, p.event.RecipientID)

		snapshot, ok := p.event.Data.(Snapshot)
		require.True(t, ok)
		assert.Equal(t, notifications[i].ID, snapshot.ID)
		require.NotNil(t, snapshot.Sender)
		assert.Equal(t, "alice", snapshot.Sender.Username)
	}
}

func TestNotifyTaskEventRespectsIssueUpdates(t *testing.T) {
	svc, store, bus := newTestService(t)
	team := dbtest.CreateTeam(t, store)
	task := dbtest.CreateTask(t, store, team.Project.ID, "Write docs", db.TaskStatusInProgress, nil)

	_, err := preference.NewStore(store).Update(context.Background(), team.Carol.ID, map[string]any{
		preference.FieldIssueUpdates: false,
	})
	require.NoError(t, err)

	notifications, err := svc.NotifyTaskEvent(context.Background(), TaskEvent{
		Task:     task,
		Type:     db.NotificationTypeTaskStatusUpdated,
		SenderID: &team.Alice.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{team.Bob.ID}, recipients(notifications))
	assert.Len(t, bus.published(), 1)
}

// websocket_enabled is not consulted here: the row is stored and the push is still attempted.
func TestNotifyTaskEventIgnoresWebsocketToggle(t *testing.T) {
	svc, store, bus := newTestService(t)
	team := dbtest.CreateTeam(t, store)
	task := dbtest.CreateTask(t, store, team.Project.ID, "Fix login", db.TaskStatusInProgress, nil)

	prefs := preference.NewStore(store)
	_, err := prefs.Update(context.Background(), team.Bob.ID, map[string]any{preference.FieldWebsocketEnabled: false})
	require.NoError(t, err)

	notifications, err := svc.NotifyTaskEvent(context.Background(), TaskEvent{
		Task:     task,
		Type:     db.NotificationTypeTaskStatusUpdated,
		SenderID: &team.Alice.ID,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{team.Bob.ID, team.Carol.ID}, recipients(notifications))

	var pushedTo []int64
	for _, p := range bus.published() {
		pushedTo = append(pushedTo, p.event.RecipientID)
	}
	assert.ElementsMatch(t, []int64{team.Bob.ID, team.Carol.ID}, pushedTo)
}

func TestNotifyTaskEventWithoutSender(t *testing.T) {
	svc, store, _ := newTestService(t)
	team := dbtest.CreateTeam(t, store)
	task := dbtest.CreateTask(t, store, team.Project.ID, "Rotate keys", db.TaskStatusTodo, nil)

	notifications, err := svc.NotifyTaskEvent(context.Background(), TaskEvent{
		Task:    task,
		Type:    db.NotificationTypeTaskUpdated,
		Message: "Keys rotate on Friday",
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{team.Alice.ID, team.Bob.ID, team.Carol.ID}, recipients(notifications))
	for _, n := range notifications {
		assert.Nil(t, n.SenderID)
		assert.Equal(t, "Keys rotate on Friday", n.Message)
	}
}

func TestNotifyTaskEventSenderIsOnlyMember(t *testing.T) {
	svc, store, bus := newTestService(t)
	solo := dbtest.CreateUser(t, store, "solo")
	org := dbtest.CreateOrganization(t, store, "Solo Inc", solo)
	project := dbtest.CreateProject(t, store, org.ID, "Side Project")
	task := dbtest.CreateTask(t, store, project.ID, "Ship it", db.TaskStatusDone, nil)

	notifications, err := svc.NotifyTaskEvent(context.Background(), TaskEvent{
		Task:     task,
		Type:     db.NotificationTypeTaskCompleted,
		SenderID: &solo.ID,
	})
	require.NoError(t, err)
	assert.Empty(t, notifications)
	assert.Empty(t, bus.published())
}

func TestNotifyTaskEventPublishFailureIsNotFatal(t *testing.T) {
	mirror := &recordingMirror{}
	svc, store, bus := newTestService(t, WithMirror(mirror))
	bus.err = errors.New("redis down")
	team := dbtest.CreateTeam(t, store)
	task := dbtest.CreateTask(t, store, team.Project.ID, "Fix login", db.TaskStatusDone, nil)

	notifications, err := svc.NotifyTaskEvent(context.Background(), TaskEvent{
		Task:     task,
		Type:     db.NotificationTypeTaskCompleted,
		SenderID: &team.Alice.ID,
	})
	require.NoError(t, err)
	require.Len(t, notifications, 2)
	assert.Len(t, mirror.ids, 2)

	for _, n := range notifications {
		stored, err := store.GetNotification(context.Background(), n.ID)
		require.NoError(t, err)
		assert.Equal(t, n.Title, stored.Title)
	}
}

func TestNotifyTaskEventInvalidType(t *testing.T) {
	svc, store, bus := newTestService(t)
	team := dbtest.CreateTeam(t, store)
	task := dbtest.CreateTask(t, store, team.Project.ID, "Fix login", db.TaskStatusTodo, nil)

	_, err := svc.NotifyTaskEvent(context.Background(), TaskEvent{Task: task, Type: "task_deleted"})
	require.ErrorIs(t, err, ErrInvalidType)
	assert.Empty(t, bus.published())
}

func TestNotifyTaskEventPersistenceFailure(t *testing.T) {
	svc, store, bus := newTestService(t)
	team := dbtest.CreateTeam(t, store)
	task := dbtest.CreateTask(t, store, team.Project.ID, "Fix login", db.TaskStatusDone, nil)
	require.NoError(t, store.Close())

	_, err := svc.NotifyTaskEvent(context.Background(), TaskEvent{
		Task:     task,
		Type:     db.NotificationTypeTaskCompleted,
		SenderID: &team.Alice.ID,
	})
	require.ErrorIs(t, err, ErrPersistence)
	assert.Empty(t, bus.published())
}

func TestSendOverdueReminder(t *testing.T) {
	svc, store, bus := newTestService(t)
	team := dbtest.CreateTeam(t, store)
	due := time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC)
	task := dbtest.CreateTask(t, store, team.Project.ID, "Quarterly report", db.TaskStatusInProgress, &due, team.Bob.ID, team.Carol.ID)

	n, err := svc.SendOverdueReminder(context.Background(), task)
	require.NoError(t, err)
	require.NotNil(t, n)

	assert.Equal(t, team.Bob.ID, n.RecipientID)
	assert.Nil(t, n.SenderID)
	assert.Equal(t, db.NotificationTypeTaskOverdue, n.NotificationType)
	assert.Equal(t, "Overdue: Quarterly report", n.Title)
	assert.Equal(t, `Task "Quarterly report" is overdue. Due date was 2026-03-10 17:00:00 UTC.`, n.Message)

	events := bus.published()
	require.Len(t, events, 1)
	assert.Equal(t, registry.OrganizationGroup(team.Org.ID), events[0].group)
	assert.Equal(t, team.Bob.ID, events[0].event.RecipientID)
	assert.Nil(t, events[0].event.Data.(Snapshot).Sender)
}

func TestSendOverdueReminderSkips(t *testing.T) {
	svc, store, bus := newTestService(t)
	team := dbtest.CreateTeam(t, store)
	due := fixedNow.Add(-48 * time.Hour)

	unassigned := dbtest.CreateTask(t, store, team.Project.ID, "Nobody's job", db.TaskStatusTodo, &due)
	n, err := svc.SendOverdueReminder(context.Background(), unassigned)
	require.NoError(t, err)
	assert.Nil(t, n)

	_, err = preference.NewStore(store).Update(context.Background(), team.Bob.ID, map[string]any{
		preference.FieldOverdueReminders: false,
	})
	require.NoError(t, err)

	optedOut := dbtest.CreateTask(t, store, team.Project.ID, "Bob's job", db.TaskStatusTodo, &due, team.Bob.ID)
	n, err = svc.SendOverdueReminder(context.Background(), optedOut)
	require.NoError(t, err)
	assert.Nil(t, n)

	assert.Empty(t, bus.published())
}

func TestPublishIssueUpdate(t *testing.T) {
	svc, store, bus := newTestService(t)
	team := dbtest.CreateTeam(t, store)
	task := dbtest.CreateTask(t, store, team.Project.ID, "Fix login", db.TaskStatusInProgress, nil, team.Bob.ID)

	svc.PublishIssueUpdate(context.Background(), task, []int64{team.Bob.ID}, []string{"status"})

	events := bus.published()
	require.Len(t, events, 1)
	assert.Equal(t, registry.ProjectGroup(team.Project.ID), events[0].group)
	assert.Equal(t, event.EventTypeIssueUpdate, events[0].event.Type)
	assert.Zero(t, events[0].event.RecipientID)

	update := events[0].event.Data.(IssueUpdate)
	assert.Equal(t, task.ID, update.TaskID)
	assert.Equal(t, db.TaskStatusInProgress, update.Status)
	assert.Equal(t, []string{"status"}, update.Changes)
}

func TestDeleteReadBefore(t *testing.T) {
	svc, store, _ := newTestService(t)
	team := dbtest.CreateTeam(t, store)
	task := dbtest.CreateTask(t, store, team.Project.ID, "Fix login", db.TaskStatusDone, nil)

	notifications, err := svc.NotifyTaskEvent(context.Background(), TaskEvent{
		Task:     task,
		Type:     db.NotificationTypeTaskCompleted,
		SenderID: &team.Alice.ID,
	})
	require.NoError(t, err)
	require.Len(t, notifications, 2)

	_, err = svc.MarkRead(context.Background(), team.Bob.ID, []uuid.UUID{notifications[0].ID, notifications[1].ID})
	require.NoError(t, err)

	deleted, err := svc.DeleteReadBefore(context.Background(), fixedNow)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = svc.DeleteReadBefore(context.Background(), fixedNow.Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	count, err := svc.UnreadCount(context.Background(), team.Carol.ID, Filter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
