package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/ridehub/ridehub/configs"
	"github.com/ridehub/ridehub/database"
	"github.com/ridehub/ridehub/handlers"
	"github.com/ridehub/ridehub/jobs"
	"github.com/ridehub/ridehub/notifications"
	"github.com/ridehub/ridehub/routes"
	"github.com/ridehub/ridehub/services"
	"github.com/ridehub/ridehub/utils"
	"github.com/ridehub/ridehub/websocket"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("🔥 %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := utils.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn("store close failed", zap.Error(err))
		}
	}()
	logger.Info("✅ Database connected", zap.String("driver", cfg.DBDriver))

	hub := websocket.NewHub(store, logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	auth := services.NewAuthService(store, cfg.JWTSecret, cfg.TokenTTL, logger)
	chat := services.NewChatService(store, hub, logger)
	h := handlers.New(auth, chat, hub, cfg.SocketBuffer, logger)

	mailer := notifications.NewMailer(cfg.BrevoAPIKey, cfg.EmailSender, cfg.EmailSenderName, logger)
	scheduler, err := scheduleDigest(cfg, store, hub, mailer, logger)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()
	logger.Info("✅ Unread digest scheduled",
		zap.String("schedule", cfg.UnreadDigestSchedule),
		zap.Bool("email", cfg.EmailEnabled()))

	app := routes.NewApp(cfg.Origins(), logger)
	routes.Register(app, h, cfg.JWTSecret)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("✅ Server is running", zap.Int("port", cfg.Port))
		errCh <- app.Listen(fmt.Sprintf(":%d", cfg.Port))
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	// closing the sockets first lets their handlers return before fiber drains
	stopHub()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	return nil
}

// scheduleDigest registers the unread digest. The digest window equals the
// interval between two runs of the schedule.
func scheduleDigest(cfg *config.Settings, store database.Store, hub *websocket.Hub, mailer notifications.Mailer, logger *zap.Logger) (*cron.Cron, error) {
	schedule, err := cron.ParseStandard(cfg.UnreadDigestSchedule)
	if err != nil {
		return nil, fmt.Errorf("config: UNREAD_DIGEST_SCHEDULE: %w", err)
	}
	first := schedule.Next(time.Now())
	window := schedule.Next(first).Sub(first)

	digest := jobs.NewUnreadDigest(store, hub, mailer, cfg.UnreadDigestAge, window, logger)
	c := cron.New()
	c.Schedule(schedule, cron.FuncJob(digest.Run))
	return c, nil
}
