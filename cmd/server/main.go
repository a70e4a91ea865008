package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/libraryhub/backend/docs"
	"github.com/libraryhub/backend/internal/audit"
	"github.com/libraryhub/backend/internal/config"
	"github.com/libraryhub/backend/internal/daemon"
	"github.com/libraryhub/backend/internal/database"
	"github.com/libraryhub/backend/internal/handlers"
	"github.com/libraryhub/backend/internal/notify"
	"github.com/libraryhub/backend/internal/services"
	"github.com/spf13/cobra"
)

// @title Library Backend API
// @version 1.0
// @description Member registry, catalog, loans, fines and notifications
// @host localhost:8080
// @BasePath /api
// @schemes http https

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "library",
		Short:        "Library management backend",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newSweepCmd(), newDashboardCmd())
	return root
}

// app is the wired service graph shared by serve and sweep
type app struct {
	cfg      *config.Config
	db       *sql.DB
	redis    *redis.Client
	services handlers.Services
}

func newApp(cfg *config.Config) *app {
	db := database.InitDatabase(cfg.Database)
	redisClient := database.InitRedis(cfg.Redis)
	auditLogger := audit.NewLogger()

	fines := services.NewFineService(db, redisClient, cfg.Fines, auditLogger)
	return &app{
		cfg:   cfg,
		db:    db,
		redis: redisClient,
		services: handlers.Services{
			Books:         services.NewBookService(db, auditLogger),
			Members:       services.NewMemberService(db, auditLogger),
			Transactions:  services.NewTransactionService(db, fines, cfg.LoanPeriodDays, auditLogger),
			Fines:         fines,
			Notifications: services.NewNotificationService(db, redisClient, newSender(cfg.Notifications), cfg.Notifications.ReminderDays, auditLogger),
		},
	}
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if err := a.db.Close(); err != nil {
		log.Printf("Failed to close database: %v", err)
	}
}

// newSender delivers member notifications through the log channel and mirrors them to the staff
// Telegram chat when a bot token is configured.
func newSender(cfg config.NotificationConfig) notify.Sender {
	primary := notify.NewLogSender()
	if cfg.TelegramToken == "" {
		return primary
	}
	tg, err := notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		log.Printf("[NOTIFY] Telegram mirror disabled: %v", err)
		return primary
	}
	return notify.NewMultiSender(primary, tg)
}

func newServeCmd() *cobra.Command {
	var accessLog bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic fine sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			a := newApp(cfg)
			defer a.Close()

			docs.SwaggerInfo.Host = "localhost:" + cfg.Server.Port
			docs.SwaggerInfo.BasePath = "/api"

			r := handlers.NewRouter(a.services, handlers.RouterOptions{
				AllowedOrigins: cfg.Server.AllowedOrigins,
				SwaggerURL:     "/swagger/doc.json",
				AccessLog:      accessLog,
			})

			server := &http.Server{
				Addr:         ":" + cfg.Server.Port,
				Handler:      r,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 65 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sweeper := &daemon.Sweeper{Fines: a.services.Fines, Interval: cfg.Fines.SweepInterval}
			sweepDone := sweeper.Start(ctx)

			errCh := make(chan error, 1)
			go func() {
				log.Printf("Server starting on :%s", cfg.Server.Port)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				stop()
				<-sweepDone
				return err
			case <-ctx.Done():
			}

			log.Println("Server shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("Server forced to shutdown: %v", err)
			}
			<-sweepDone

			log.Println("Server stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&accessLog, "access-log", true, "log every request")
	return cmd
}
