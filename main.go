package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/katatrina/taskhub-BE/api"
	"github.com/katatrina/taskhub-BE/internal/alert"
	db "github.com/katatrina/taskhub-BE/internal/db"
	"github.com/katatrina/taskhub-BE/internal/event"
	"github.com/katatrina/taskhub-BE/internal/mailer"
	"github.com/katatrina/taskhub-BE/internal/notification"
	"github.com/katatrina/taskhub-BE/internal/preference"
	"github.com/katatrina/taskhub-BE/internal/registry"
	"github.com/katatrina/taskhub-BE/internal/reminder"
	"github.com/katatrina/taskhub-BE/internal/util"
	"github.com/katatrina/taskhub-BE/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configurations
	config, err := util.LoadConfig("./app.env")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config file 😣")
	}
	log.Info().Msg("configurations loaded successfully ✅")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, config.DatabaseDriver, config.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db 😣")
	}
	defer store.Close()
	log.Info().Str("driver", config.DatabaseDriver).Msg("connected to db ✅")

	var alerter alert.Alerter = alert.LogAlerter{}
	if config.DiscordBotToken != "" && config.DiscordChannelID != "" {
		discordAlerter, err := alert.NewDiscordAlerter(config.DiscordBotToken, config.DiscordChannelID)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create discord alerter 😣")
		}
		alerter = discordAlerter
	}

	connRegistry := registry.New(store)
	localBus := event.NewLocalBus(connRegistry)

	var (
		bus           event.Publisher = localBus
		distributor   worker.TaskDistributor
		taskInspector worker.TaskInspector
	)

	if config.RedisServerAddress != "" {
		redisDb := redis.NewClient(&redis.Options{
			Addr: config.RedisServerAddress,
		})
		defer redisDb.Close()

		if err = redisDb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis 😣")
		}
		log.Info().Msg("connected to redis ✅")

		redisBus := event.NewRedisBus(redisDb, localBus)
		bus = redisBus
		go func() {
			if err := redisBus.Run(ctx); err != nil {
				log.Error().Err(err).Msg("redis event relay stopped")
				if alertErr := alerter.Alert(context.WithoutCancel(ctx), "redis event relay stopped: "+err.Error()); alertErr != nil {
					log.Error().Err(alertErr).Msg("failed to send relay alert")
				}
			}
		}()

		redisOpt := asynq.RedisClientOpt{Addr: config.RedisServerAddress}

		inspector := worker.NewTaskInspector(redisOpt)
		defer inspector.Close()
		taskInspector = inspector

		if config.SMTPHost != "" {
			emailSender, err := mailer.NewSMTPSender(config.SMTPHost, config.SMTPPort, config.SMTPUsername, config.SMTPPassword, config.MailFrom)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to create mailer 😣")
			}

			taskDistributor := worker.NewTaskDistributor(redisOpt)
			defer taskDistributor.Close()
			distributor = taskDistributor

			processor := worker.NewRedisTaskProcessor(redisOpt, store, emailSender)
			if err = processor.Start(); err != nil {
				log.Fatal().Err(err).Msg("failed to start task processor 😣")
			}
			defer processor.Shutdown()
			log.Info().Msg("task processor started ✅")
		} else {
			log.Warn().Msg("SMTP_HOST is not set, email digests are disabled")
		}
	} else {
		log.Warn().Msg("REDIS_SERVER_ADDRESS is not set, running as a single node without digests")
	}

	var opts []notification.Option
	if config.FirebaseCredentialsFile != "" {
		mirror, err := notification.NewFirestoreMirror(ctx, config.FirebaseCredentialsFile)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create firestore mirror 😣")
		}
		defer mirror.Close()
		opts = append(opts, notification.WithMirror(mirror))
		log.Info().Msg("firestore mirror enabled ✅")
	}

	notifier := notification.NewService(store, preference.NewStore(store), bus, opts...)

	scheduler, err := reminder.NewScheduler(reminder.Config{
		OverdueScanHour:       config.OverdueScanHour,
		OverdueScanMinute:     config.OverdueScanMinute,
		ConnectionIdleTimeout: config.ConnectionIdleTimeout,
		IdleReapInterval:      config.IdleReapInterval,
		NotificationRetention: config.NotificationRetention,
		RetentionHour:         config.RetentionHour,
		DigestHour:            config.DigestHour,
	}, store, reminder.NewScanner(store, notifier, config.ReminderDedupeWindow), distributor, alerter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler 😣")
	}
	if err = scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler 😣")
	}
	defer func() {
		if err := scheduler.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop scheduler")
		}
	}()
	log.Info().Msg("scheduler started ✅")

	runHTTPServer(ctx, config, store, connRegistry, notifier, taskInspector)
}

func runHTTPServer(ctx context.Context, config util.Config, store db.Store, connRegistry *registry.Registry, notifier *notification.Service, taskInspector worker.TaskInspector) {
	server, err := api.NewServer(config, store, connRegistry, notifier, taskInspector)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create HTTP server 😣")
	}

	httpServer := &http.Server{
		Addr:              config.HTTPServerAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("address", config.HTTPServerAddress).Msg("HTTP server started ✅")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start HTTP server 😣")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shut down HTTP server gracefully")
	}
	connRegistry.CloseAll(shutdownCtx)
}
