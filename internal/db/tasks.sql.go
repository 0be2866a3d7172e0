package db

import (
	"context"
	"time"
)

const createTask = `
INSERT INTO tasks (project_id, title, status, due_date, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id, project_id, title, status, due_date, created_at, updated_at
`

type CreateTaskParams struct {
	ProjectID int64      `json:"project_id"`
	Title     string     `json:"title"`
	Status    TaskStatus `json:"status"`
	DueDate   *time.Time `json:"due_date"`
}

func (q *Queries) CreateTask(ctx context.Context, arg CreateTaskParams) (Task, error) {
	if arg.Status == "" {
		arg.Status = TaskStatusTodo
	}
	now := Now()

	var i Task
	err := q.db.GetContext(ctx, &i, q.db.Rebind(createTask),
		arg.ProjectID, arg.Title, arg.Status, utcPtr(arg.DueDate), now, now)
	return i, err
}

const taskScopeColumns = `
t.id, t.project_id, t.title, t.status, t.due_date, t.created_at, t.updated_at, p.organization_id
`

const getTaskScope = `
SELECT` + taskScopeColumns + `FROM tasks t
JOIN projects p ON p.id = t.project_id
WHERE t.id = ?
`

func (q *Queries) GetTaskScope(ctx context.Context, id int64) (TaskScope, error) {
	var i TaskScope
	err := q.db.GetContext(ctx, &i, q.db.Rebind(getTaskScope), id)
	return i, err
}

const updateTaskStatus = `
UPDATE tasks SET status = ?, updated_at = ?
WHERE id = ?
RETURNING id, project_id, title, status, due_date, created_at, updated_at
`

func (q *Queries) UpdateTaskStatus(ctx context.Context, id int64, status TaskStatus) (Task, error) {
	var i Task
	err := q.db.GetContext(ctx, &i, q.db.Rebind(updateTaskStatus), status, Now(), id)
	return i, err
}

const updateTaskDueDate = `
UPDATE tasks SET due_date = ?, updated_at = ?
WHERE id = ?
`

func (q *Queries) UpdateTaskDueDate(ctx context.Context, id int64, dueDate *time.Time) error {
	_, err := q.db.ExecContext(ctx, q.db.Rebind(updateTaskDueDate), utcPtr(dueDate), Now(), id)
	return err
}

const addTaskAssignee = `
INSERT INTO task_assignees (task_id, user_id, assigned_at)
VALUES (?, ?, ?)
`

func (q *Queries) AddTaskAssignee(ctx context.Context, taskID, userID int64) error {
	_, err := q.db.ExecContext(ctx, q.db.Rebind(addTaskAssignee), taskID, userID, Now())
	return err
}

const removeTaskAssignee = `
DELETE FROM task_assignees
WHERE task_id = ? AND user_id = ?
`

func (q *Queries) RemoveTaskAssignee(ctx context.Context, taskID, userID int64) error {
	_, err := q.db.ExecContext(ctx, q.db.Rebind(removeTaskAssignee), taskID, userID)
	return err
}

const listTaskAssigneeIDs = `
SELECT user_id FROM task_assignees
WHERE task_id = ?
ORDER BY assigned_at, user_id
`

// ListTaskAssigneeIDs returns assignees in assignment order; the first one is the primary assignee.
func (q *Queries) ListTaskAssigneeIDs(ctx context.Context, taskID int64) ([]int64, error) {
	var ids []int64
	err := q.db.SelectContext(ctx, &ids, q.db.Rebind(listTaskAssigneeIDs), taskID)
	return ids, err
}

const listOverdueTasks = `
SELECT` + taskScopeColumns + `FROM tasks t
JOIN projects p ON p.id = t.project_id
WHERE t.due_date IS NOT NULL
  AND t.due_date < ?
  AND t.status <> 'DONE'
  AND EXISTS (SELECT 1 FROM task_assignees a WHERE a.task_id = t.id)
ORDER BY t.due_date, t.id
`

// ListOverdueTasks returns unfinished tasks with at least one assignee whose due date is before now.
func (q *Queries) ListOverdueTasks(ctx context.Context, now time.Time) ([]TaskScope, error) {
	var items []TaskScope
	err := q.db.SelectContext(ctx, &items, q.db.Rebind(listOverdueTasks), utc(now))
	return items, err
}
