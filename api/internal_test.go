package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	db "github.com/katatrina/taskhub-BE/internal/db"
	"github.com/katatrina/taskhub-BE/internal/db/dbtest"
	"github.com/katatrina/taskhub-BE/internal/tasktracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternalRoutesRequireKey(t *testing.T) {
	env := newTestEnv(t)

	for _, key := range []string{"", "wrong-key"} {
		request, err := http.NewRequest(http.MethodPost, fmt.Sprintf("/v1/internal/users/%d/created", env.team.Bob.ID), bytes.NewReader(nil))
		require.NoError(t, err)
		if key != "" {
			request.Header.Set(internalKeyHeader, key)
		}

		recorder := httptest.NewRecorder()
		env.server.Handler().ServeHTTP(recorder, request)
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	}
}

func TestHandleUserCreated(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.doInternal(t, http.MethodPost, fmt.Sprintf("/v1/internal/users/%d/created", env.team.Carol.ID), nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	prefs := decode[db.NotificationPreference](t, recorder)
	assert.Equal(t, env.team.Carol.ID, prefs.UserID)
	assert.True(t, prefs.EmailEnabled)

	// repeated hooks are harmless
	recorder = env.doInternal(t, http.MethodPost, fmt.Sprintf("/v1/internal/users/%d/created", env.team.Carol.ID), nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = env.doInternal(t, http.MethodPost, "/v1/internal/users/999999/created", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestHandleTaskChange(t *testing.T) {
	env := newTestEnv(t)
	task := dbtest.CreateTask(t, env.store, env.team.Project.ID, "Ship landing page", db.TaskStatusInProgress, nil, env.team.Bob.ID)

	before := tasktracking.Image{
		TaskID:      task.ID,
		Title:       task.Title,
		Status:      db.TaskStatusInProgress,
		AssigneeIDs: []int64{env.team.Bob.ID},
	}
	after := before
	after.Status = db.TaskStatusDone

	recorder := env.doInternal(t, http.MethodPost, "/v1/internal/task-changes", gin.H{
		"before":   before,
		"after":    after,
		"actor_id": env.team.Alice.ID,
	})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	resp := decode[createdNotificationsResponse](t, recorder)
	require.Len(t, resp.Notifications, 2)
	for _, n := range resp.Notifications {
		assert.Equal(t, db.NotificationTypeTaskCompleted, n.NotificationType)
		assert.NotEqual(t, env.team.Alice.ID, n.RecipientID)
	}

	// an unchanged pair emits nothing
	recorder = env.doInternal(t, http.MethodPost, "/v1/internal/task-changes", gin.H{
		"before": after,
		"after":  after,
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Empty(t, decode[createdNotificationsResponse](t, recorder).Notifications)
}

func TestHandleTaskChangeErrors(t *testing.T) {
	env := newTestEnv(t)
	task := dbtest.CreateTask(t, env.store, env.team.Project.ID, "Ship landing page", db.TaskStatusTodo, nil)

	image := tasktracking.Image{TaskID: task.ID, Title: task.Title, Status: db.TaskStatusTodo}
	other := image
	other.TaskID = task.ID + 1
	missing := tasktracking.Image{TaskID: 999999, Title: "Ghost", Status: db.TaskStatusTodo}
	invalid := image
	invalid.Status = "BLOCKED"

	testCases := []struct {
		name   string
		body   gin.H
		status int
	}{
		{"Mismatch", gin.H{"before": image, "after": other}, http.StatusBadRequest},
		{"UnknownTask", gin.H{"after": missing}, http.StatusNotFound},
		{"InvalidStatus", gin.H{"before": image, "after": invalid}, http.StatusBadRequest},
		{"MissingAfter", gin.H{"before": image}, http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := env.doInternal(t, http.MethodPost, "/v1/internal/task-changes", tc.body)
			assert.Equal(t, tc.status, recorder.Code, recorder.Body.String())
		})
	}
}

func TestHandleTaskEvent(t *testing.T) {
	env := newTestEnv(t)
	task := dbtest.CreateTask(t, env.store, env.team.Project.ID, "Write release notes", db.TaskStatusTodo, nil, env.team.Carol.ID)
	url := fmt.Sprintf("/v1/internal/tasks/%d/events", task.ID)

	recorder := env.doInternal(t, http.MethodPost, url, gin.H{
		"type":      db.NotificationTypeTaskCreated,
		"sender_id": env.team.Alice.ID,
	})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	resp := decode[createdNotificationsResponse](t, recorder)
	require.Len(t, resp.Notifications, 2)
	assert.Equal(t, "New Task: Write release notes", resp.Notifications[0].Title)
	assert.Equal(t, "Alice created a new task in Website Redesign", resp.Notifications[0].Message)

	recorder = env.doInternal(t, http.MethodPost, url, gin.H{"type": "task_exploded"})
	require.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
	assert.Equal(t, "type", decode[FailedValidationResponse](t, recorder).FieldViolations[0].Field)

	recorder = env.doInternal(t, http.MethodPost, "/v1/internal/tasks/999999/events", gin.H{
		"type": db.NotificationTypeTaskUpdated,
	})
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(t, http.MethodGet, "/health", 0, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	resp := decode[healthResponse](t, recorder)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Database)
	assert.Zero(t, resp.Connections)
	assert.Nil(t, resp.DigestQueue)
}

func TestCancelledRequestContextReachesStore(t *testing.T) {
	env := newTestEnv(t)
	env.completeTask(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	testCases := []struct {
		name   string
		url    string
		userID int64
		status int
	}{
		{"ListNotifications", "/v1/notifications", env.team.Bob.ID, http.StatusInternalServerError},
		{"NotificationCounts", "/v1/notifications/counts", env.team.Bob.ID, http.StatusInternalServerError},
		{"Preferences", "/v1/notification-preferences", env.team.Bob.ID, http.StatusInternalServerError},
		{"Health", "/health", 0, http.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := env.doContext(t, ctx, http.MethodGet, tc.url, tc.userID, nil)
			assert.Equal(t, tc.status, recorder.Code)
		})
	}

	// a live request context is unaffected
	recorder := env.do(t, http.MethodGet, "/v1/notifications", env.team.Bob.ID, nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
}
