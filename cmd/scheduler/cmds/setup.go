package cmds

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sloggorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"

	"github.com/algobattle/algobattle-server/internal/battle"
	"github.com/algobattle/algobattle-server/internal/blob"
	"github.com/algobattle/algobattle-server/internal/command"
	"github.com/algobattle/algobattle-server/internal/config"
	"github.com/algobattle/algobattle-server/internal/extract"
	"github.com/algobattle/algobattle-server/internal/logger"
	"github.com/algobattle/algobattle-server/internal/match"
	"github.com/algobattle/algobattle-server/internal/otel"
	"github.com/algobattle/algobattle-server/internal/upload"
)

// env holds everything a scheduler subcommand needs. Migrations are the
// server's job; the scheduler assumes the schema is already current.
type env struct {
	cfg          *config.Config
	db           *gorm.DB
	sweeper      *match.Sweeper
	otelShutdown func(context.Context) error
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scheduler config: %w", err)
	}

	shutdownOTel, err := otel.SetupOTelSDK(ctx, cfg.Logging.UseOTLP)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OTEL SDK: %w", err)
	}

	logger.LogLevel.Set(slog.Level(cfg.Logging.App.Level))
	gormLogger := slog.New(logger.Handler)

	sg := sloggorm.New(
		sloggorm.WithHandler(gormLogger.Handler()),
		sloggorm.SetLogLevel(sloggorm.DefaultLogType, slog.Level(cfg.Logging.Gorm.Level)),
	)

	db, err := gorm.Open(
		postgres.Open(cfg.DatabaseURL),
		&gorm.Config{Logger: sg, TranslateError: true},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	err = db.Use(gormtracing.NewPlugin())
	if err != nil {
		return nil, fmt.Errorf("failed to add otel plugin to gorm: %w", err)
	}

	store, err := blob.NewStore(cfg.StoragePath)
	if err != nil {
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
			return nil, err
		}
		archiver = upload.NewRetryUploader(minioArchiver)
	}

	engine, err := battle.NewCLIEngine(
		command.NewShellExecutor(),
		strings.Fields(cfg.Scheduler.EngineCommand),
	)
	if err != nil {
		return nil, err
	}

	runner := match.NewRunner(db, store, engine, extract.NewZipExtractor(), archiver)
	sweeper := match.NewSweeper(db, runner, cfg.MatchExecutionInterval)

	return &env{
		cfg:          cfg,
		db:           db,
		sweeper:      sweeper,
		otelShutdown: shutdownOTel,
	}, nil
}

func (e *env) shutdown() {
	ctx, cancel := context.WithTimeout(
		context.Background(),
		time.Second*time.Duration(e.cfg.GracefulShutdownSecs),
	)
	defer cancel()

	if err := e.otelShutdown(ctx); err != nil {
		logger.Logger.Error("failed to flush otel data", "error", err)
	}
}
