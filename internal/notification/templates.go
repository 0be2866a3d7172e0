package notification

import (
	"fmt"
	"time"

	db "github.com/katatrina/taskhub-BE/internal/db"
)

var titleTemplates = map[db.NotificationType]string{
	db.NotificationTypeTaskCreated:       "New Task: %s",
	db.NotificationTypeTaskUpdated:       "Task Updated: %s",
	db.NotificationTypeTaskAssigned:      "Task Assigned: %s",
	db.NotificationTypeTaskCompleted:     "Task Completed: %s",
	db.NotificationTypeTaskStatusUpdated: "Task Status Updated: %s",
	db.NotificationTypeTaskOverdue:       "Overdue: %s",
}

func renderTitle(notificationType db.NotificationType, task db.TaskScope) string {
	tmpl, ok := titleTemplates[notificationType]
	if !ok {
		tmpl = "Task Notification: %s"
	}
	return fmt.Sprintf(tmpl, task.Title)
}

func senderName(sender *db.User) string {
	switch {
	case sender == nil:
		return "System"
	case sender.FullName != "":
		return sender.FullName
	default:
		return sender.Username
	}
}

func renderMessage(notificationType db.NotificationType, task db.TaskScope, project db.Project, sender *db.User) string {
	name := senderName(sender)

	switch notificationType {
	case db.NotificationTypeTaskCreated:
		return fmt.Sprintf("%s created a new task in %s", name, project.Name)
	case db.NotificationTypeTaskUpdated:
		return fmt.Sprintf("%s updated the task in %s", name, project.Name)
	case db.NotificationTypeTaskAssigned:
		return fmt.Sprintf("The assignees of this task in %s were changed by %s", project.Name, name)
	case db.NotificationTypeTaskCompleted:
		return fmt.Sprintf("%s completed the task in %s", name, project.Name)
	case db.NotificationTypeTaskStatusUpdated:
		return fmt.Sprintf("%s moved the task to %s in %s", name, task.Status, project.Name)
	case db.NotificationTypeTaskOverdue:
		return overdueMessage(task)
	}
	return fmt.Sprintf("Task notification from %s", name)
}

func overdueMessage(task db.TaskScope) string {
	due := "unknown"
	if task.DueDate != nil {
		due = task.DueDate.UTC().Format(time.DateTime + " MST")
	}
	return fmt.Sprintf("Task %q is overdue. Due date was %s.", task.Title, due)
}
