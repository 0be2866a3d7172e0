package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Querier interface {
	CreateUser(ctx context.Context, arg CreateUserParams) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	ListUsersByIDs(ctx context.Context, ids []int64) ([]User, error)

	CreateOrganization(ctx context.Context, arg CreateOrganizationParams) (Organization, error)
	AddOrganizationMember(ctx context.Context, organizationID, userID int64) error
	ListOrganizationMemberIDs(ctx context.Context, organizationID int64) ([]int64, error)
	IsOrganizationMember(ctx context.Context, organizationID, userID int64) (bool, error)

	CreateProject(ctx context.Context, arg CreateProjectParams) (Project, error)
	GetProject(ctx context.Context, id int64) (Project, error)
	CanAccessProject(ctx context.Context, projectID, userID int64) (bool, error)

	CreateTask(ctx context.Context, arg CreateTaskParams) (Task, error)
	GetTaskScope(ctx context.Context, id int64) (TaskScope, error)
	UpdateTaskStatus(ctx context.Context, id int64, status TaskStatus) (Task, error)
	UpdateTaskDueDate(ctx context.Context, id int64, dueDate *time.Time) error
	AddTaskAssignee(ctx context.Context, taskID, userID int64) error
	RemoveTaskAssignee(ctx context.Context, taskID, userID int64) error
	ListTaskAssigneeIDs(ctx context.Context, taskID int64) ([]int64, error)
	ListOverdueTasks(ctx context.Context, now time.Time) ([]TaskScope, error)

	GetNotificationPreference(ctx context.Context, userID int64) (NotificationPreference, error)
	CreateNotificationPreference(ctx context.Context, arg CreateNotificationPreferenceParams) (NotificationPreference, error)
	UpdateNotificationPreference(ctx context.Context, arg UpdateNotificationPreferenceParams) (NotificationPreference, error)
	ListNotificationPreferencesByUserIDs(ctx context.Context, userIDs []int64) ([]NotificationPreference, error)

	CreateNotification(ctx context.Context, arg CreateNotificationParams) (Notification, error)
	GetNotification(ctx context.Context, id uuid.UUID) (Notification, error)
	ListNotifications(ctx context.Context, arg ListNotificationsParams) ([]Notification, error)
	CountUnreadNotifications(ctx context.Context, arg CountUnreadNotificationsParams) (int64, error)
	MarkNotificationsRead(ctx context.Context, arg MarkNotificationsReadParams) (int64, error)
	HasNotificationSince(ctx context.Context, taskID int64, notificationType NotificationType, since time.Time) (bool, error)
	DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListDigestRecipientIDs(ctx context.Context, since time.Time) ([]int64, error)
	ListUnreadNotificationsSince(ctx context.Context, recipientID int64, since time.Time) ([]Notification, error)

	UpsertWebsocketConnection(ctx context.Context, arg UpsertWebsocketConnectionParams) (WebsocketConnection, error)
	TouchWebsocketConnection(ctx context.Context, connectionID string, seenAt time.Time) error
	DeleteWebsocketConnection(ctx context.Context, connectionID string) (int64, error)
	DeleteIdleWebsocketConnections(ctx context.Context, cutoff time.Time) (int64, error)
	GetWebsocketConnection(ctx context.Context, connectionID string) (WebsocketConnection, error)
	ListWebsocketConnectionsByUser(ctx context.Context, userID int64) ([]WebsocketConnection, error)
}

var _ Querier = (*Queries)(nil)
