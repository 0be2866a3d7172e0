package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	db "github.com/katatrina/taskhub-BE/internal/db"
	"github.com/katatrina/taskhub-BE/internal/mailer"
	"github.com/rs/zerolog/log"
)

// PayloadSendDigest asks for a digest of the user's notifications created since Since.
type PayloadSendDigest struct {
	UserID int64     `json:"user_id"`
	Since  time.Time `json:"since"`
}

// DigestTaskID is unique per user and day so a second dispatch on the same day is rejected by the queue.
func DigestTaskID(userID int64, day time.Time) string {
	return fmt.Sprintf("digest:%d:%s", userID, day.UTC().Format(time.DateOnly))
}

func (distributor *RedisTaskDistributor) DistributeTaskSendDigest(
	ctx context.Context,
	payload *PayloadSendDigest,
	opts ...asynq.Option,
) error {
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TaskSendDigest, jsonPayload, opts...)
	info, err := distributor.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	log.Info().Str("type", task.Type()).Bytes("payload", task.Payload()).Str("queue", info.Queue).Int("max_retry", info.MaxRetry).Msg("task enqueued")

	return nil
}

func (processor *RedisTaskProcessor) ProcessTaskSendDigest(
	ctx context.Context,
	task *asynq.Task,
) error {
	var payload PayloadSendDigest
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", asynq.SkipRetry)
	}

	sent, err := processor.sendDigest(ctx, payload)
	if err != nil {
		return err
	}

	log.Info().Str("type", task.Type()).Int64("user_id", payload.UserID).
		Bool("sent", sent).Msg("task processed")

	return nil
}

// sendDigest mails the digest and reports whether anything was sent. Users who were
// deleted, turned email off or have nothing unread are skipped.
func (processor *RedisTaskProcessor) sendDigest(ctx context.Context, payload PayloadSendDigest) (bool, error) {
	user, err := processor.store.GetUser(ctx, payload.UserID)
	if err != nil {
		if errors.Is(err, db.ErrRecordNotFound) {
			log.Warn().Int64("user_id", payload.UserID).Msg("digest recipient no longer exists")
			return false, nil
		}
		return false, fmt.Errorf("failed to get user: %w", err)
	}

	prefs, err := processor.prefs.Lookup(ctx, []int64{user.ID})
	if err != nil {
		return false, fmt.Errorf("failed to lookup preferences: %w", err)
	}
	if !prefs[user.ID].EmailEnabled {
		return false, nil
	}

	notifications, err := processor.store.ListUnreadNotificationsSince(ctx, user.ID, payload.Since)
	if err != nil {
		return false, fmt.Errorf("failed to list unread notifications: %w", err)
	}
	if len(notifications) == 0 {
		return false, nil
	}

	email := mailer.RenderDigest(user, notifications, processor.now())
	if err = processor.mailer.SendEmail(ctx, email); err != nil {
		return false, err
	}
	return true, nil
}
