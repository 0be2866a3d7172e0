// Package dbtest provides an in-memory store and fixtures for package tests.
package dbtest

import (
	"context"
	"strings"
	"testing"
	"time"

	db "github.com/katatrina/taskhub-BE/internal/db"
	"github.com/katatrina/taskhub-BE/internal/util"
	"github.com/stretchr/testify/require"
)

// NewStore creates an in-memory SQLite store with all migrations applied.
// It is closed automatically when the test completes.
func NewStore(t testing.TB) *db.SQLStore {
	t.Helper()

	store, err := db.Open(context.Background(), db.DriverSQLite, ":memory:")
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return store
}

func CreateUser(t testing.TB, store db.Store, username string) db.User {
	t.Helper()

	user, err := store.CreateUser(context.Background(), db.CreateUserParams{
		Username: username,
		Email:    username + "@example.com",
		FullName: strings.ToUpper(username[:1]) + username[1:],
	})
	require.NoError(t, err)
	return user
}

// CreateOrganization creates an organization and adds every given user as a member.
func CreateOrganization(t testing.TB, store db.Store, name string, members ...db.User) db.Organization {
	t.Helper()
	ctx := context.Background()

	org, err := store.CreateOrganization(ctx, db.CreateOrganizationParams{
		Name: name,
		Slug: util.GenerateRandomSlug(name),
	})
	require.NoError(t, err)

	for _, member := range members {
		require.NoError(t, store.AddOrganizationMember(ctx, org.ID, member.ID))
	}
	return org
}

func CreateProject(t testing.TB, store db.Store, organizationID int64, name string) db.Project {
	t.Helper()

	project, err := store.CreateProject(context.Background(), db.CreateProjectParams{
		OrganizationID: organizationID,
		Name:           name,
		Slug:           util.GenerateRandomSlug(name),
	})
	require.NoError(t, err)
	return project
}

// CreateTask creates a task and assigns it to assignees in order, so the first one is the primary assignee.
func CreateTask(t testing.TB, store db.Store, projectID int64, title string, status db.TaskStatus, dueDate *time.Time, assignees ...int64) db.TaskScope {
	t.Helper()
	ctx := context.Background()

	task, err := store.CreateTask(ctx, db.CreateTaskParams{
		ProjectID: projectID,
		Title:     title,
		Status:    status,
		DueDate:   dueDate,
	})
	require.NoError(t, err)

	for _, userID := range assignees {
		require.NoError(t, store.AddTaskAssignee(ctx, task.ID, userID))
		// assignment order is by assigned_at, keep it strictly increasing
		time.Sleep(time.Millisecond)
	}

	scope, err := store.GetTaskScope(ctx, task.ID)
	require.NoError(t, err)
	return scope
}

// Team is an organization with three members and one project.
type Team struct {
	Org     db.Organization
	Project db.Project
	Alice   db.User
	Bob     db.User
	Carol   db.User
}

func (team Team) Members() []db.User {
	return []db.User{team.Alice, team.Bob, team.Carol}
}

func CreateTeam(t testing.TB, store db.Store) Team {
	t.Helper()

	team := Team{
		Alice: CreateUser(t, store, "alice"),
		Bob:   CreateUser(t, store, "bob"),
		Carol: CreateUser(t, store, "carol"),
	}
	team.Org = CreateOrganization(t, store, "Acme Corp", team.Members()...)
	team.Project = CreateProject(t, store, team.Org.ID, "Website Redesign")
	return team
}
