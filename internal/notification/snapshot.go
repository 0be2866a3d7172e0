package notification

import (
	"time"

	"github.com/google/uuid"
	db "github.com/katatrina/taskhub-BE/internal/db"
)

// Snapshot is the payload pushed to connected clients for a new notification.
type Snapshot struct {
	ID             uuid.UUID           `json:"id"`
	Type           db.NotificationType `json:"type"`
	Title          string              `json:"title"`
	Message        string              `json:"message"`
	TaskID         int64               `json:"task_id"`
	ProjectID      int64               `json:"project_id"`
	OrganizationID int64               `json:"organization_id"`
	IsRead         bool                `json:"is_read"`
	CreatedAt      time.Time           `json:"created_at"`
	Sender         *Sender             `json:"sender"`
}

type Sender struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

func NewSnapshot(n db.Notification, sender *db.User) Snapshot {
	snapshot := Snapshot{
		ID:             n.ID,
		Type:           n.NotificationType,
		Title:          n.Title,
		Message:        n.Message,
		TaskID:         n.TaskID,
		ProjectID:      n.ProjectID,
		OrganizationID: n.OrganizationID,
		IsRead:         n.IsRead,
		CreatedAt:      n.CreatedAt,
	}
	if sender != nil {
		snapshot.Sender = &Sender{
			ID:       sender.ID,
			Username: sender.Username,
			FullName: sender.FullName,
		}
	}
	return snapshot
}

// IssueUpdate is the payload pushed to a project room when a task changes.
type IssueUpdate struct {
	TaskID         int64         `json:"task_id"`
	ProjectID      int64         `json:"project_id"`
	OrganizationID int64         `json:"organization_id"`
	Title          string        `json:"title"`
	Status         db.TaskStatus `json:"status"`
	DueDate        *time.Time    `json:"due_date"`
	AssigneeIDs    []int64       `json:"assignee_ids"`
	Changes        []string      `json:"changes"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
