package db

import (
	"context"

	"github.com/jmoiron/sqlx"
)

const createUser = `
INSERT INTO users (username, email, full_name)
VALUES (?, ?, ?)
RETURNING id, username, email, full_name
`

type CreateUserParams struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	var i User
	err := q.db.GetContext(ctx, &i, q.db.Rebind(createUser), arg.Username, arg.Email, arg.FullName)
	return i, err
}

const getUser = `
SELECT id, username, email, full_name FROM users
WHERE id = ?
`

func (q *Queries) GetUser(ctx context.Context, id int64) (User, error) {
	var i User
	err := q.db.GetContext(ctx, &i, q.db.Rebind(getUser), id)
	return i, err
}

const createOrganization = `
INSERT INTO organizations (name, slug, created_at)
VALUES (?, ?, ?)
RETURNING id, name, slug, created_at
`

type CreateOrganizationParams struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (q *Queries) CreateOrganization(ctx context.Context, arg CreateOrganizationParams) (Organization, error) {
	var i Organization
	err := q.db.GetContext(ctx, &i, q.db.Rebind(createOrganization), arg.Name, arg.Slug, Now())
	return i, err
}

const addOrganizationMember = `
INSERT INTO organization_members (organization_id, user_id, joined_at)
VALUES (?, ?, ?)
`

func (q *Queries) AddOrganizationMember(ctx context.Context, organizationID, userID int64) error {
	_, err := q.db.ExecContext(ctx, q.db.Rebind(addOrganizationMember), organizationID, userID, Now())
	return err
}

const listOrganizationMemberIDs = `
SELECT user_id FROM organization_members
WHERE organization_id = ?
ORDER BY user_id
`

func (q *Queries) ListOrganizationMemberIDs(ctx context.Context, organizationID int64) ([]int64, error) {
	var ids []int64
	err := q.db.SelectContext(ctx, &ids, q.db.Rebind(listOrganizationMemberIDs), organizationID)
	return ids, err
}

const isOrganizationMember = `
SELECT EXISTS (
	SELECT 1 FROM organization_members
	WHERE organization_id = ? AND user_id = ?
)
`

func (q *Queries) IsOrganizationMember(ctx context.Context, organizationID, userID int64) (bool, error) {
	var ok bool
	err := q.db.GetContext(ctx, &ok, q.db.Rebind(isOrganizationMember), organizationID, userID)
	return ok, err
}

const createProject = `
INSERT INTO projects (organization_id, name, slug, created_at)
VALUES (?, ?, ?, ?)
RETURNING id, organization_id, name, slug, created_at
`

type CreateProjectParams struct {
	OrganizationID int64  `json:"organization_id"`
	Name           string `json:"name"`
	Slug           string `json:"slug"`
}

func (q *Queries) CreateProject(ctx context.Context, arg CreateProjectParams) (Project, error) {
	var i Project
	err := q.db.GetContext(ctx, &i, q.db.Rebind(createProject), arg.OrganizationID, arg.Name, arg.Slug, Now())
	return i, err
}

const getProject = `
SELECT id, organization_id, name, slug, created_at FROM projects
WHERE id = ?
`

func (q *Queries) GetProject(ctx context.Context, id int64) (Project, error) {
	var i Project
	err := q.db.GetContext(ctx, &i, q.db.Rebind(getProject), id)
	return i, err
}

const canAccessProject = `
SELECT EXISTS (
	SELECT 1 FROM projects p
	JOIN organization_members m ON m.organization_id = p.organization_id
	WHERE p.id = ? AND m.user_id = ?
)
`

// CanAccessProject reports whether the project belongs to an organization the user is a member of.
func (q *Queries) CanAccessProject(ctx context.Context, projectID, userID int64) (bool, error) {
	var ok bool
	err := q.db.GetContext(ctx, &ok, q.db.Rebind(canAccessProject), projectID, userID)
	return ok, err
}

const listUsersByIDs = `
SELECT id, username, email, full_name FROM users
WHERE id IN (?)
ORDER BY id
`

func (q *Queries) ListUsersByIDs(ctx context.Context, ids []int64) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(listUsersByIDs, ids)
	if err != nil {
		return nil, err
	}

	var items []User
	err = q.db.SelectContext(ctx, &items, q.db.Rebind(query), args...)
	return items, err
}

