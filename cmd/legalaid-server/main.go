package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/legalaid/legalaid/internal/config"
	"github.com/legalaid/legalaid/internal/domain/cases"
	"github.com/legalaid/legalaid/internal/domain/scheduling"
	"github.com/legalaid/legalaid/internal/platform/auth"
	"github.com/legalaid/legalaid/internal/platform/db"
	"github.com/legalaid/legalaid/internal/platform/middleware"
	"github.com/legalaid/legalaid/internal/platform/notification"
	"github.com/legalaid/legalaid/internal/platform/schedtz"
	"github.com/legalaid/legalaid/internal/platform/websocket"
)

// tokenIssuer is stamped into every JWT this server issues or accepts.
const tokenIssuer = "legalaid"

func main() {
	rootCmd := &cobra.Command{
		Use:   "legalaid-server",
		Short: "LegalAid appointment and case messaging API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// tokenCmd mints a signed JWT for local development and smoke testing.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development JWT for a lawyer or client account",
		RunE: func(cmd *cobra.Command, args []string) error {
			roleStr, _ := cmd.Flags().GetString("role")
			id, _ := cmd.Flags().GetInt64("id")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			role, err := parseRole(roleStr)
			if err != nil {
				return err
			}
			if id <= 0 {
				return fmt.Errorf("--id must be a positive account id")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			token, err := auth.IssueToken(
				auth.Principal{Role: role, ID: id},
				auth.JWTConfig{SigningKey: []byte(cfg.JWTSecret), Issuer: tokenIssuer},
				ttl,
			)
			if err != nil {
				return err
			}

			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("role", "", "Account role: lawyer or client")
	cmd.Flags().Int64("id", 0, "Account id the token authenticates as")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

// parseRole maps a CLI role string onto the auth roles the API accepts.
func parseRole(s string) (auth.Role, error) {
	switch s {
	case string(auth.RoleLawyer):
		return auth.RoleLawyer, nil
	case string(auth.RoleClient):
		return auth.RoleClient, nil
	default:
		return "", fmt.Errorf("unknown role %q: must be %q or %q", s, auth.RoleLawyer, auth.RoleClient)
	}
}

// newEmailSender picks the delivery backend from config. An SMTP host selects
// real delivery; otherwise emails are written to the log, which is what local
// development wants.
func newEmailSender(cfg *config.Config, logger zerolog.Logger) notification.EmailSender {
	if cfg.SMTPHost != "" {
		return notification.NewSMTPSender(notification.SMTPConfig{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			From: cfg.SMTPFrom,
		})
	}
	return notification.NewLogEmailSender(logger)
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	zone, err := schedtz.Load(cfg.SchedulingZone)
	if err != nil {
		logger.Fatal().Err(err).Str("zone", cfg.SchedulingZone).Msg("failed to load scheduling timezone")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Notification plumbing
	mailer := notification.NewMailer(newEmailSender(cfg, logger), notification.NewTemplateEngine())

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health checks stay outside the authenticated group.
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	jwtCfg := auth.JWTConfig{SigningKey: []byte(cfg.JWTSecret), Issuer: tokenIssuer}
	api := e.Group("/api")
	api.Use(auth.JWTMiddleware(jwtCfg))

	// Scheduling domain
	apptRepo := scheduling.NewAppointmentRepoPG(pool)
	directoryRepo := scheduling.NewDirectoryRepoPG(pool)
	runTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.RunInTx(ctx, pool, fn)
	}
	schedSvc := scheduling.NewService(apptRepo, directoryRepo, mailer, zone, runTx, logger)
	scheduling.NewHandler(schedSvc).RegisterRoutes(api)

	// Cases domain: REST history plus the live websocket channel.
	hub := websocket.NewHub()
	caseRepo := cases.NewCaseRepoPG(pool)
	messageRepo := cases.NewMessageRepoPG(pool)
	caseSvc := cases.NewService(caseRepo, messageRepo, hub, logger)
	cases.NewHandler(caseSvc).RegisterRoutes(api)
	cases.NewWSHandler(caseSvc, hub).RegisterRoutes(api)

	// Reminder dispatcher sweeps for upcoming confirmed appointments.
	dispatcher := scheduling.NewDispatcher(
		apptRepo, directoryRepo, mailer, zone,
		cfg.ReminderInterval, cfg.ReminderHorizon, logger,
	)
	reminderCtx, stopReminders := context.WithCancel(ctx)
	defer stopReminders()
	go dispatcher.Run(reminderCtx)
	logger.Info().
		Dur("interval", cfg.ReminderInterval).
		Dur("horizon", cfg.ReminderHorizon).
		Msg("reminder dispatcher started")

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopReminders()
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
