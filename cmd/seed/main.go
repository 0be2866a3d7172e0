// Command seed fills a development database with one organization, its members and a few
// tasks, and prints an access token for every member.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	db "github.com/katatrina/taskhub-BE/internal/db"
	"github.com/katatrina/taskhub-BE/internal/token"
	"github.com/katatrina/taskhub-BE/internal/util"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type seedTask struct {
	title     string
	status    db.TaskStatus
	dueIn     time.Duration
	assignees []int
}

var (
	members = []db.CreateUserParams{
		{Username: "alice", Email: "alice@example.com", FullName: "Alice Nguyen"},
		{Username: "bob", Email: "bob@example.com", FullName: "Bob Tran"},
		{Username: "carol", Email: "carol@example.com", FullName: "Carol Le"},
	}

	tasks = []seedTask{
		{title: "Design landing page", status: db.TaskStatusInProgress, dueIn: 72 * time.Hour, assignees: []int{0}},
		{title: "Fix login redirect", status: db.TaskStatusTodo, dueIn: -48 * time.Hour, assignees: []int{1, 2}},
		{title: "Write release notes", status: db.TaskStatusTodo, assignees: []int{2}},
		{title: "Set up CI", status: db.TaskStatusDone, dueIn: -24 * time.Hour, assignees: []int{0, 1}},
	}
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	configPath := flag.String("config", "./app.env", "path of the config file")
	flag.Parse()

	config, err := util.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config file 😣")
	}

	ctx := context.Background()
	store, err := db.Open(ctx, config.DatabaseDriver, config.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db 😣")
	}
	defer store.Close()

	var users []db.User
	err = store.ExecTx(ctx, func(q *db.Queries) error {
		users, err = seed(ctx, q)
		return err
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to seed database 😣")
	}

	tokenMaker, err := token.NewJWTMaker(config.TokenSecretKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token maker 😣")
	}

	for _, user := range users {
		accessToken, _, err := tokenMaker.CreateToken(user.ID, config.AccessTokenDuration)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create access token 😣")
		}
		fmt.Printf("%s (id %d): %s\n", user.Username, user.ID, accessToken)
	}
	log.Info().Int("users", len(users)).Int("tasks", len(tasks)).Msg("database seeded ✅")
}

func seed(ctx context.Context, q *db.Queries) ([]db.User, error) {
	users := make([]db.User, 0, len(members))
	for _, arg := range members {
		user, err := q.CreateUser(ctx, arg)
		if err != nil {
			return nil, fmt.Errorf("failed to create user %s: %w", arg.Username, err)
		}
		users = append(users, user)
	}

	org, err := q.CreateOrganization(ctx, db.CreateOrganizationParams{
		Name: "Acme Corp",
		Slug: util.GenerateRandomSlug("Acme Corp"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	for _, user := range users {
		if err = q.AddOrganizationMember(ctx, org.ID, user.ID); err != nil {
			return nil, fmt.Errorf("failed to add member %d: %w", user.ID, err)
		}
	}

	project, err := q.CreateProject(ctx, db.CreateProjectParams{
		OrganizationID: org.ID,
		Name:           "Website Redesign",
		Slug:           util.GenerateRandomSlug("Website Redesign"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	now := db.Now()
	for _, st := range tasks {
		var dueDate *time.Time
		if st.dueIn != 0 {
			due := now.Add(st.dueIn)
			dueDate = &due
		}

		task, err := q.CreateTask(ctx, db.CreateTaskParams{
			ProjectID: project.ID,
			Title:     st.title,
			Status:    st.status,
			DueDate:   dueDate,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create task %q: %w", st.title, err)
		}

		for _, i := range st.assignees {
			if err = q.AddTaskAssignee(ctx, task.ID, users[i].ID); err != nil {
				return nil, fmt.Errorf("failed to assign task %d: %w", task.ID, err)
			}
		}
	}

	return users, nil
}
