package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	sloggorm "github.com/orandin/slog-gorm"
	otellib "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"

	servermiddleware "github.com/algobattle/algobattle-server/cmd/server/internal/middleware"
	"github.com/algobattle/algobattle-server/cmd/server/internal/routes"
	"github.com/algobattle/algobattle-server/cmd/server/internal/routes/api"
	"github.com/algobattle/algobattle-server/cmd/server/internal/taskrunner"
	"github.com/algobattle/algobattle-server/internal/battle"
	"github.com/algobattle/algobattle-server/internal/blob"
	"github.com/algobattle/algobattle-server/internal/command"
	"github.com/algobattle/algobattle-server/internal/config"
	"github.com/algobattle/algobattle-server/internal/extract"
	"github.com/algobattle/algobattle-server/internal/logger"
	"github.com/algobattle/algobattle-server/internal/mail"
	"github.com/algobattle/algobattle-server/internal/match"
	"github.com/algobattle/algobattle-server/internal/migrations"
	"github.com/algobattle/algobattle-server/internal/models"
	"github.com/algobattle/algobattle-server/internal/otel"
	"github.com/algobattle/algobattle-server/internal/token"
	"github.com/algobattle/algobattle-server/internal/upload"
)

const name string = "github.com/algobattle/algobattle-server/cmd/server"

var tracer = otellib.Tracer(name)

type server struct {
	router       *echo.Echo
	config       *config.Config
	db           *gorm.DB
	taskRunner   *taskrunner.Client
	otelShutdown func(context.Context) error
}

func initServer(ctx context.Context) (*server, error) {
	server := new(server)

	cfg, err := config.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize server config: %w", err)
	}
	server.config = cfg

	shutdownOTel, err := otel.SetupOTelSDK(ctx, cfg.Logging.UseOTLP)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OTEL SDK: %w", err)
	}
	defer func() {
		// Something failed to initialize, make sure everything gets flushed to the server
		if server.otelShutdown == nil {
			otelShutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				time.Second*time.Duration(cfg.GracefulShutdownSecs),
			)
			defer cancel()

			if err = shutdownOTel(otelShutdownCtx); err != nil {
				logger.Logger.Error("failed to flush otel data", "error", err)
			}
		}
	}()

	ctx, span := tracer.Start(ctx, "initServer")
	defer span.End()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to initialize database")
		return nil, err
	}

	span.AddEvent("initialized database connection")

	err = migrations.Up(ctx, db)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to perform database migrations")
		return nil, fmt.Errorf("failed to perform database migrations: %w", err)
	}

	span.AddEvent("migrated database to latest version")

	err = ensureAdmin(ctx, db, cfg.AdminEmail)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to ensure admin user")
		return nil, fmt.Errorf("failed to ensure admin user: %w", err)
	}

	span.AddEvent("ensured admin user exists")

	store, err := blob.NewStore(cfg.StoragePath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open blob store")
		return nil, err
	}

	secret, err := cfg.DecodedSecretKey()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode secret key")
		return nil, err
	}

	tokenKey, err := token.NewKey(secret, cfg.Algorithm)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build token key")
		return nil, err
	}

	var archiver upload.Uploader
	if cfg.S3Archive != nil {
		minioArchiver, err := upload.NewMinioUploader(
			cfg.S3Archive.Endpoint,
			cfg.S3Archive.AccessKeyID,
			cfg.S3Archive.SecretAccessKey,
			cfg.S3Archive.SSLEnabled,
			cfg.S3Archive.BucketName,
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to construct archiver")
			return nil, err
		}
		archiver = upload.NewRetryUploader(minioArchiver)
	}

	engine, err := battle.NewCLIEngine(
		command.NewShellExecutor(),
		strings.Fields(cfg.Scheduler.EngineCommand),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to construct battle engine")
		return nil, err
	}

	runner := match.NewRunner(db, store, engine, extract.NewZipExtractor(), archiver)
	taskRunnerClient := taskrunner.Create()
	mailer := &mail.LogMailer{FrontendBaseURL: cfg.FrontendBaseURL}

	middlewareHandler := servermiddleware.Handler{DB: db, TokenKey: tokenKey}
	apiHandler := api.NewHandler(db, cfg, store, tokenKey, mailer, runner, taskRunnerClient)

	e, err := routes.BuildEcho(logger.Logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error building router")
		return nil, fmt.Errorf("error building router: %w", err)
	}

	span.AddEvent("created echo router")

	apiHandler.AddRoutes(e, &middlewareHandler)

	server.otelShutdown = shutdownOTel
	server.router = e
	server.db = db
	server.taskRunner = taskRunnerClient

	return server, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	_, span := tracer.Start(ctx, "openDatabase")
	defer span.End()

	logger.LogLevel.Set(slog.Level(cfg.Logging.App.Level))
	gormLogger := slog.New(logger.Handler)

	sg := sloggorm.New(
		sloggorm.WithHandler(gormLogger.Handler()),
		sloggorm.SetLogLevel(sloggorm.DefaultLogType, slog.Level(cfg.Logging.Gorm.Level)),
	)
	if cfg.Logging.Gorm.TraceQueries {
		sg = sloggorm.New(
			sloggorm.WithHandler(gormLogger.Handler()),
			sloggorm.WithTraceAll(),
			sloggorm.SetLogLevel(sloggorm.DefaultLogType, slog.Level(cfg.Logging.Gorm.Level)),
		)
	}

	db, err := gorm.Open(
		postgres.Open(cfg.DatabaseURL),
		&gorm.Config{Logger: sg, TranslateError: true},
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open database")
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	err = db.Use(gormtracing.NewPlugin())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to add otel plugin to gorm")
		return nil, fmt.Errorf("failed to add otel plugin to gorm: %w", err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "opened database")
	return db, nil
}

// ensureAdmin creates the configured admin account on first boot so a
// fresh deployment can be logged into.
func ensureAdmin(ctx context.Context, db *gorm.DB, email string) error {
	user, err := models.UserByEmail(ctx, db, email)
	if err != nil {
		return err
	}
	if user != nil {
		if !user.IsAdmin {
			return db.WithContext(ctx).Model(user).Update("is_admin", true).Error
		}
		return nil
	}

	admin := models.User{Email: email, Name: "admin", IsAdmin: true}
	return db.WithContext(ctx).Create(&admin).Error
}

func (s *server) Start(_ context.Context) error {
	logger.Logger.Info("Starting services...")

	err := s.router.Start(s.config.ListenAddress)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *server) Shutdown() error {
	var errs error

	ctx, cancelTimeout := context.WithTimeout(
		context.Background(),
		time.Second*time.Duration(s.config.GracefulShutdownSecs),
	)
	defer cancelTimeout()

	if err := s.router.Shutdown(ctx); err != nil {
		errs = errors.Join(errs, err)
	}

	if err := s.taskRunner.Shutdown(ctx); err != nil {
		errs = errors.Join(errs, fmt.Errorf("failed to shutdown taskRunner gracefully: %w", err))
	}

	if s.otelShutdown != nil {
		errs = errors.Join(errs, s.otelShutdown(ctx))
	}

	return errs
}

func main() {
	ctx, cancelSignal := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)

	logger.InitSlog()

	server, err := initServer(ctx)
	if err != nil {
		logger.Logger.Error(err.Error())
		cancelSignal()
		os.Exit(1)
	}

	errch := make(chan error, 1)
	go func() {
		<-ctx.Done()
		logger.Logger.Info("Got shutdown signal!")
		errch <- server.Shutdown()
		close(errch)
	}()

	if err := server.Start(ctx); err != nil {
		logger.Logger.Error(err.Error())
		cancelSignal()
		os.Exit(1)
	}

	if err := <-errch; err != nil {
		logger.Logger.Error("Error shutting down server", "error", err)
	}

	cancelSignal()
}
