package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/katatrina/taskhub-BE/internal/alert"
	db "github.com/katatrina/taskhub-BE/internal/db"
	"github.com/katatrina/taskhub-BE/internal/worker"
	"github.com/rs/zerolog/log"
)

const (
	JobOverdueScan     = "overdue_scan"
	JobIdleReap        = "idle_reap"
	JobRetention       = "notification_retention"
	JobDigestDispatch  = "digest_dispatch"
	digestLookback     = 24 * time.Hour
	digestMaxRetry     = 3
	digestTaskDeadline = 2 * time.Minute
)

// Config holds the schedule of every job. Hours and minutes are in UTC.
type Config struct {
	OverdueScanHour       uint
	OverdueScanMinute     uint
	ConnectionIdleTimeout time.Duration
	IdleReapInterval      time.Duration
	NotificationRetention time.Duration
	RetentionHour         uint
	DigestHour            uint
}

type Store interface {
	DeleteIdleWebsocketConnections(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListDigestRecipientIDs(ctx context.Context, since time.Time) ([]int64, error)
}

// Scheduler runs the periodic jobs. Every job is a singleton: a tick that arrives while
// the previous run is still going is rescheduled instead of overlapping it.
type Scheduler struct {
	config      Config
	store       Store
	scanner     *Scanner
	distributor worker.TaskDistributor
	alerter     alert.Alerter
	scheduler   gocron.Scheduler
	ctx         context.Context
	cancel      context.CancelFunc
	now         func() time.Time
}

// NewScheduler creates the scheduler. distributor may be nil, in which case digests are not dispatched.
func NewScheduler(config Config, store Store, scanner *Scanner, distributor worker.TaskDistributor, alerter alert.Alerter) (*Scheduler, error) {
	if alerter == nil {
		alerter = alert.LogAlerter{}
	}

	s := &Scheduler{
		config:      config,
		store:       store,
		scanner:     scanner,
		distributor: distributor,
		alerter:     alerter,
		now:         db.Now,
	}

	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithGlobalJobOptions(
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithEventListeners(gocron.AfterJobRunsWithError(s.reportFailure)),
		),
	)
	if err != nil {
		return nil, err
	}
	s.scheduler = scheduler

	return s, nil
}

func (s *Scheduler) reportFailure(jobID uuid.UUID, jobName string, err error) {
	log.Error().Err(err).Str("job", jobName).Str("job_id", jobID.String()).Msg("scheduled job failed")

	if alertErr := s.alerter.Alert(s.ctx, fmt.Sprintf("job %s failed: %v", jobName, err)); alertErr != nil {
		log.Error().Err(alertErr).Str("job", jobName).Msg("failed to send job alert")
	}
}

type job struct {
	name       string
	definition gocron.JobDefinition
	run        func() error
}

func daily(hour, minute uint) gocron.JobDefinition {
	return gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(hour, minute, 0)))
}

// Start registers the jobs and starts the scheduler. Jobs stop when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	jobs := []job{
		{JobOverdueScan, daily(s.config.OverdueScanHour, s.config.OverdueScanMinute), s.runOverdueScan},
		{JobIdleReap, gocron.DurationJob(s.config.IdleReapInterval), s.runIdleReap},
		{JobRetention, daily(s.config.RetentionHour, 0), s.runRetention},
	}
	if s.distributor != nil {
		jobs = append(jobs, job{JobDigestDispatch, daily(s.config.DigestHour, 0), s.runDigestDispatch})
	}

	for _, j := range jobs {
		_, err := s.scheduler.NewJob(j.definition, gocron.NewTask(j.run), gocron.WithName(j.name))
		if err != nil {
			return fmt.Errorf("failed to schedule %s: %w", j.name, err)
		}
	}

	s.scheduler.Start()
	log.Info().Int("jobs", len(jobs)).Msg("scheduler started")
	return nil
}

func (s *Scheduler) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.scheduler.Shutdown()
}

// runOverdueScan scans and posts the tally to the alert channel.
func (s *Scheduler) runOverdueScan() error {
	result, err := s.scanner.Run(s.ctx)
	if err != nil {
		return err
	}

	message := fmt.Sprintf("overdue scan: %d sent, %d failed (%d candidates)", result.Sent, result.Failed, result.Candidates)
	if err := s.alerter.Alert(s.ctx, message); err != nil {
		log.Error().Err(err).Str("job", JobOverdueScan).Msg("failed to send job alert")
	}
	return nil
}

// runIdleReap deletes liveness rows of connections that have not been seen within the idle timeout.
func (s *Scheduler) runIdleReap() error {
	deleted, err := s.store.DeleteIdleWebsocketConnections(s.ctx, s.now().Add(-s.config.ConnectionIdleTimeout))
	if err != nil {
		return err
	}
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Msg("idle websocket connections reaped")
	}
	return nil
}

func (s *Scheduler) runRetention() error {
	deleted, err := s.store.DeleteReadNotificationsBefore(s.ctx, s.now().Add(-s.config.NotificationRetention))
	if err != nil {
		return err
	}
	log.Info().Int64("deleted", deleted).Msg("read notifications cleaned up")
	return nil
}

// runDigestDispatch enqueues one digest task per eligible user. A task already enqueued
// today for the same user is left alone.
func (s *Scheduler) runDigestDispatch() error {
	now := s.now()
	since := now.Add(-digestLookback)

	userIDs, err := s.store.ListDigestRecipientIDs(s.ctx, since)
	if err != nil {
		return err
	}

	var firstErr error
	enqueued := 0
	for _, userID := range userIDs {
		err := s.distributor.DistributeTaskSendDigest(s.ctx,
			&worker.PayloadSendDigest{UserID: userID, Since: since},
			asynq.TaskID(worker.DigestTaskID(userID, now)),
			asynq.MaxRetry(digestMaxRetry),
			asynq.Timeout(digestTaskDeadline),
			asynq.Queue(worker.QueueDefault),
		)
		switch {
		case err == nil:
			enqueued++
		case errors.Is(err, asynq.ErrTaskIDConflict):
		default:
			log.Error().Err(err).Int64("user_id", userID).Msg("failed to enqueue digest")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	log.Info().Int("recipients", len(userIDs)).Int("enqueued", enqueued).Msg("digests dispatched")
	return firstErr
}
