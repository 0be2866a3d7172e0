package tasktracking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	db "github.com/katatrina/taskhub-BE/internal/db"
	"github.com/katatrina/taskhub-BE/internal/db/dbtest"
	"github.com/katatrina/taskhub-BE/internal/event"
	"github.com/katatrina/taskhub-BE/internal/notification"
	"github.com/katatrina/taskhub-BE/internal/preference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	base := Image{TaskID: 1, Title: "Fix login", Status: db.TaskStatusInProgress, AssigneeIDs: []int64{2, 3}}

	with := func(mutate func(*Image)) Image {
		img := base
		img.AssigneeIDs = append([]int64(nil), base.AssigneeIDs...)
		mutate(&img)
		return img
	}

	testCases := []struct {
		name   string
		before *Image
		after  Image
		want   []db.NotificationType
	}{
		{
			name:   "Created",
			before: nil,
			after:  base,
			want:   nil,
		},
		{
			name:   "Unchanged",
			before: &base,
			after:  with(func(img *Image) {}),
			want:   nil,
		},
		{
			name:   "AssigneesReordered",
			before: &base,
			after:  with(func(img *Image) { img.AssigneeIDs = []int64{3, 2} }),
			want:   nil,
		},
		{
			name:   "AssigneeAdded",
			before: &base,
			after:  with(func(img *Image) { img.AssigneeIDs = append(img.AssigneeIDs, 4) }),
			want:   []db.NotificationType{db.NotificationTypeTaskAssigned},
		},
		{
			name:   "Completed",
			before: &base,
			after:  with(func(img *Image) { img.Status = db.TaskStatusDone }),
			want:   []db.NotificationType{db.NotificationTypeTaskCompleted},
		},
		{
			name:   "StatusChanged",
			before: &base,
			after:  with(func(img *Image) { img.Status = db.TaskStatusTodo }),
			want:   []db.NotificationType{db.NotificationTypeTaskStatusUpdated},
		},
		{
			name:   "ReassignedAndCompleted",
			before: &base,
			after: with(func(img *Image) {
				img.Status = db.TaskStatusDone
				img.AssigneeIDs = []int64{2}
			}),
			want: []db.NotificationType{db.NotificationTypeTaskAssigned, db.NotificationTypeTaskCompleted},
		},
		{
			name:   "TitleOnly",
			before: &base,
			after:  with(func(img *Image) { img.Title = "Fix signup" }),
			want:   nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Detect(tc.before, tc.after))
		})
	}
}

func TestDetectAlreadyDone(t *testing.T) {
	before := Image{TaskID: 1, Status: db.TaskStatusDone}
	after := Image{TaskID: 1, Status: db.TaskStatusDone}

	assert.Empty(t, Detect(&before, after))
}

func TestChanges(t *testing.T) {
	due := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	sameDue := due.In(time.FixedZone("ICT", 7*60*60))
	before := Image{TaskID: 1, Title: "A", Status: db.TaskStatusTodo, DueDate: &due, AssigneeIDs: []int64{1}}

	assert.Equal(t, []string{ChangeCreated}, Changes(nil, before))
	assert.Empty(t, Changes(&before, Image{TaskID: 1, Title: "A", Status: db.TaskStatusTodo, DueDate: &sameDue, AssigneeIDs: []int64{1}}))
	assert.Equal(t,
		[]string{ChangeTitle, ChangeStatus, ChangeDueDate, ChangeAssignees},
		Changes(&before, Image{TaskID: 1, Title: "B", Status: db.TaskStatusDone, AssigneeIDs: nil}),
	)
}

type fakeNotifier struct {
	events  []notification.TaskEvent
	updates [][]string
	failOn  db.NotificationType
}

func (n *fakeNotifier) NotifyTaskEvent(_ context.Context, ev notification.TaskEvent) ([]db.Notification, error) {
	n.events = append(n.events, ev)
	if ev.Type == n.failOn {
		return nil, notification.ErrPersistence
	}
	return []db.Notification{{TaskID: ev.Task.ID, NotificationType: ev.Type}}, nil
}

func (n *fakeNotifier) PublishIssueUpdate(_ context.Context, _ db.TaskScope, _ []int64, changes []string) {
	n.updates = append(n.updates, changes)
}

func TestApply(t *testing.T) {
	store := dbtest.NewStore(t)
	team := dbtest.CreateTeam(t, store)
	task := dbtest.CreateTask(t, store, team.Project.ID, "Fix login", db.TaskStatusDone, nil, team.Bob.ID)

	notifier := &fakeNotifier{}
	detector := NewDetector(store, notifier)

	before := Image{TaskID: task.ID, Title: task.Title, Status: db.TaskStatusInProgress}
	after := Image{TaskID: task.ID, Title: task.Title, Status: db.TaskStatusDone, AssigneeIDs: []int64{team.Bob.ID}}

	created, err := detector.Apply(context.Background(), Mutation{Before: &before, After: after, ActorID: &team.Alice.ID})
	require.NoError(t, err)
	require.Len(t, created, 2)

	require.Len(t, notifier.events, 2)
	assert.Equal(t, db.NotificationTypeTaskAssigned, notifier.events[0].Type)
	assert.Equal(t, db.NotificationTypeTaskCompleted, notifier.events[1].Type)
	for _, ev := range notifier.events {
		assert.Equal(t, task.ID, ev.Task.ID)
		assert.Equal(t, team.Org.ID, ev.Task.OrganizationID)
		assert.Equal(t, &team.Alice.ID, ev.SenderID)
	}
	assert.Equal(t, [][]string{{ChangeStatus, ChangeAssignees}}, notifier.updates)
}

func TestApplyCreationOnlyPublishesUpdate(t *testing.T) {
	store := dbtest.NewStore(t)
	team := dbtest.CreateTeam(t, store)
	task := dbtest.CreateTask(t, store, team.Project.ID, "Fix login", db.TaskStatusTodo, nil)

	notifier := &fakeNotifier{}
	created, err := NewDetector(store, notifier).Apply(context.Background(), Mutation{
		After: Image{TaskID: task.ID, Title: task.Title, Status: task.Status},
	})
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Empty(t, notifier.events)
	assert.Equal(t, [][]string{{ChangeCreated}}, notifier.updates)
}

func TestApplyContinuesAfterFailure(t *testing.T) {
	store := dbtest.NewStore(t)
	team := dbtest.CreateTeam(t, store)
	task := dbtest.CreateTask(t, store, team.Project.ID, "Fix login", db.TaskStatusDone, nil)

	notifier := &fakeNotifier{failOn: db.NotificationTypeTaskAssigned}
	created, err := NewDetector(store, notifier).Apply(context.Background(), Mutation{
		Before: &Image{TaskID: task.ID, Status: db.TaskStatusTodo, AssigneeIDs: []int64{team.Bob.ID}},
		After:  Image{TaskID: task.ID, Status: db.TaskStatusDone},
	})
	require.ErrorIs(t, err, notification.ErrPersistence)
	require.Len(t, created, 1)
	assert.Equal(t, db.NotificationTypeTaskCompleted, created[0].NotificationType)
	assert.Len(t, notifier.updates, 1)
}

func TestApplyRejectsMismatchedImages(t *testing.T) {
	store := dbtest.NewStore(t)
	notifier := &fakeNotifier{}

	_, err := NewDetector(store, notifier).Apply(context.Background(), Mutation{
		Before: &Image{TaskID: 1},
		After:  Image{TaskID: 2},
	})
	require.ErrorIs(t, err, ErrTaskMismatch)
}

type recordingPublisher struct {
	groups []string
	events []event.Event
}

func (p *recordingPublisher) Publish(_ context.Context, group string, ev event.Event) error {
	p.groups = append(p.groups, group)
	p.events = append(p.events, ev)
	return nil
}

func TestTrackStatusChangeToDone(t *testing.T) {
	store := dbtest.NewStore(t)
	team := dbtest.CreateTeam(t, store)
	task := dbtest.CreateTask(t, store, team.Project.ID, "Fix login", db.TaskStatusInProgress, nil, team.Bob.ID)

	bus := &recordingPublisher{}
	svc := notification.NewService(store, preference.NewStore(store), bus)
	detector := NewDetector(store, svc)

	created, err := detector.Track(context.Background(), task.ID, &team.Alice.ID, func(ctx context.Context) error {
		_, err := store.UpdateTaskStatus(ctx, task.ID, db.TaskStatusDone)
		return err
	})
	require.NoError(t, err)
	require.Len(t, created, 2)

	var recipients []int64
	for _, n := range created {
		recipients = append(recipients, n.RecipientID)
		assert.Equal(t, "Task Completed: Fix login", n.Title)
	}
	assert.ElementsMatch(t, []int64{team.Bob.ID, team.Carol.ID}, recipients)

	notifications := 0
	for i, ev := range bus.events {
		if ev.Type == event.EventTypeNotification {
			notifications++
			assert.Equal(t, fmt.Sprintf("org_%d", team.Org.ID), bus.groups[i])
		}
	}
	assert.Equal(t, 2, notifications)
	assert.Equal(t, event.EventTypeIssueUpdate, bus.events[len(bus.events)-1].Type)
}

func TestTrackMutationFailure(t *testing.T) {
	store := dbtest.NewStore(t)
	team := dbtest.CreateTeam(t, store)
	task := dbtest.CreateTask(t, store, team.Project.ID, "Fix login", db.TaskStatusInProgress, nil)

	notifier := &fakeNotifier{}
	mutateErr := errors.New("write conflict")
	_, err := NewDetector(store, notifier).Track(context.Background(), task.ID, nil, func(context.Context) error {
		return mutateErr
	})
	require.ErrorIs(t, err, mutateErr)
	assert.Empty(t, notifier.events)
	assert.Empty(t, notifier.updates)
}
