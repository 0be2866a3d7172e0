package db

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "TODO"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusDone       TaskStatus = "DONE"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

type NotificationType string

const (
	NotificationTypeTaskCreated       NotificationType = "task_created"
	NotificationTypeTaskUpdated       NotificationType = "task_updated"
	NotificationTypeTaskAssigned      NotificationType = "task_assigned"
	NotificationTypeTaskOverdue       NotificationType = "task_overdue"
	NotificationTypeTaskCompleted     NotificationType = "task_completed"
	NotificationTypeTaskStatusUpdated NotificationType = "task_status_updated"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationTypeTaskCreated, NotificationTypeTaskUpdated, NotificationTypeTaskAssigned,
		NotificationTypeTaskOverdue, NotificationTypeTaskCompleted, NotificationTypeTaskStatusUpdated:
		return true
	}
	return false
}

type User struct {
	ID       int64  `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
	Email    string `db:"email" json:"email"`
	FullName string `db:"full_name" json:"full_name"`
}

type Organization struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Project struct {
	ID             int64     `db:"id" json:"id"`
	OrganizationID int64     `db:"organization_id" json:"organization_id"`
	Name           string    `db:"name" json:"name"`
	Slug           string    `db:"slug" json:"slug"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

type Task struct {
	ID        int64      `db:"id" json:"id"`
	ProjectID int64      `db:"project_id" json:"project_id"`
	Title     string     `db:"title" json:"title"`
	Status    TaskStatus `db:"status" json:"status"`
	DueDate   *time.Time `db:"due_date" json:"due_date"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// TaskScope is a task joined with the project and organization it belongs to.
type TaskScope struct {
	Task
	OrganizationID int64 `db:"organization_id" json:"organization_id"`
}

type NotificationPreference struct {
	ID               int64     `db:"id" json:"-"`
	UserID           int64     `db:"user_id" json:"user_id"`
	EmailEnabled     bool      `db:"email_enabled" json:"email_enabled"`
	WebsocketEnabled bool      `db:"websocket_enabled" json:"websocket_enabled"`
	OverdueReminders bool      `db:"overdue_reminders" json:"overdue_reminders"`
	IssueUpdates     bool      `db:"issue_updates" json:"issue_updates"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

type Notification struct {
	ID               uuid.UUID        `db:"id" json:"id"`
	RecipientID      int64            `db:"recipient_id" json:"recipient_id"`
	SenderID         *int64           `db:"sender_id" json:"sender_id"`
	OrganizationID   int64            `db:"organization_id" json:"organization_id"`
	ProjectID        int64            `db:"project_id" json:"project_id"`
	TaskID           int64            `db:"task_id" json:"task_id"`
	NotificationType NotificationType `db:"notification_type" json:"notification_type"`
	Title            string           `db:"title" json:"title"`
	Message          string           `db:"message" json:"message"`
	IsRead           bool             `db:"is_read" json:"is_read"`
	ReadAt           *time.Time       `db:"read_at" json:"read_at"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}

type WebsocketConnection struct {
	ID             int64     `db:"id" json:"id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	ConnectionID   string    `db:"connection_id" json:"connection_id"`
	OrganizationID int64     `db:"organization_id" json:"organization_id"`
	ProjectID      *int64    `db:"project_id" json:"project_id"`
	ConnectedAt    time.Time `db:"connected_at" json:"connected_at"`
	LastSeen       time.Time `db:"last_seen" json:"last_seen"`
}
