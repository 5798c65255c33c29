package config

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/algobattle/algobattle-server/internal/logger"
	"github.com/algobattle/algobattle-server/internal/validator"
)

type SlogConfig struct {
	Level int `mapstructure:"level"`
}

type GormLogConfig struct {
	Level        int  `mapstructure:"level"`
	TraceQueries bool `mapstructure:"trace_queries"`
}

type LoggingConfig struct {
	Gorm    GormLogConfig `mapstructure:"gorm"`
	App     SlogConfig    `mapstructure:"app"`
	UseOTLP bool          `mapstructure:"use_otlp"`
}

// Optional S3 target the scheduler mirrors match log files into after a
// result is finalized. The on-disk blob store stays authoritative.
type S3ArchiveConfig struct {
	Endpoint        string `mapstructure:"endpoint"          validate:"required"`
	AccessKeyID     string `mapstructure:"access_key_id"     validate:"required"`
	SecretAccessKey string `mapstructure:"secret_access_key" validate:"required"`
	BucketName      string `mapstructure:"bucket_name"       validate:"required"`
	SSLEnabled      bool   `mapstructure:"ssl_enabled"`
}

type RateLimitConfig struct {
	RedisHost       string `mapstructure:"redis_host"`
	UploadPerMinute int64  `mapstructure:"upload_per_minute"`
	FailOpen        bool   `mapstructure:"fail_open"`
}

type SchedulerConfig struct {
	// Address the scheduler process serves its health endpoint on.
	HealthAddress string `mapstructure:"health_address" validate:"required"`
	// Command used to drive the battle engine, e.g. "algobattle".
	EngineCommand string `mapstructure:"engine_command" validate:"required"`
}

// See algobattle.example.toml for an example config
type Config struct {
	Algorithm              string           `mapstructure:"algorithm"                validate:"required,oneof=HS256 HS384 HS512"`
	SecretKey              string           `mapstructure:"secret_key"               validate:"required,base64"`
	DatabaseURL            string           `mapstructure:"database_url"             validate:"required"`
	AdminEmail             string           `mapstructure:"admin_email"              validate:"required,email"`
	StoragePath            string           `mapstructure:"storage_path"             validate:"required"`
	MatchExecutionInterval time.Duration    `mapstructure:"match_execution_interval" validate:"required"`
	FrontendBaseURL        string           `mapstructure:"frontend_base_url"        validate:"required,url"`
	BackendBaseURL         string           `mapstructure:"backend_base_url"         validate:"required,url"`
	ListenAddress          string           `mapstructure:"listen_address"           validate:"required"`
	Logging                LoggingConfig    `mapstructure:"logging"`
	S3Archive              *S3ArchiveConfig `mapstructure:"s3_archive"`
	RateLimit              *RateLimitConfig `mapstructure:"ratelimit"`
	Scheduler              SchedulerConfig  `mapstructure:"scheduler"`
	GracefulShutdownSecs   int64            `mapstructure:"graceful_shutdown_secs"`
}

const (
	Algorithm              string = "algorithm"
	SecretKey              string = "secret_key"
	DatabaseURL            string = "database_url"
	AdminEmail             string = "admin_email"
	StoragePath            string = "storage_path"
	MatchExecutionInterval string = "match_execution_interval"
	FrontendBaseURL        string = "frontend_base_url"
	BackendBaseURL         string = "backend_base_url"
	ListenAddress          string = "listen_address"
	AppLogLevel            string = "logging.app.level"
	GormLogLevel           string = "logging.gorm.level"
	GormTraceQueries       string = "logging.gorm.trace_queries"
	UseOTLP                string = "logging.use_otlp"
	SchedulerHealthAddress string = "scheduler.health_address"
	SchedulerEngineCommand string = "scheduler.engine_command"
	GracefulShutdownSecs   string = "graceful_shutdown_secs"
	EnvPrefix              string = "algobattle"
)

var configReady = false
var config Config

func GetConfig() (*Config, error) {
	if configReady {
		logger.Logger.Debug("returning already-loaded config")
		return &config, nil
	}
	logger.Logger.Info("loading config")

	v := viper.New()

	v.SetConfigName("algobattle")

	v.AddConfigPath("/etc/algobattle/")
	v.AddConfigPath(".")

	v.SetConfigType("toml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.AutomaticEnv()

	// workaround for https://github.com/spf13/viper/issues/761
	// bind env vars explicitly so they unmarshal into the struct
	err := v.BindEnv(SecretKey)
	if err != nil {
		return nil, err
	}
	err = v.BindEnv(DatabaseURL)
	if err != nil {
		return nil, err
	}
	err = v.BindEnv(StoragePath)
	if err != nil {
		return nil, err
	}

	v.SetDefault(Algorithm, "HS256")
	v.SetDefault(MatchExecutionInterval, 5*time.Minute)
	v.SetDefault(ListenAddress, "[::]:8000")
	v.SetDefault(AppLogLevel, int(slog.LevelInfo))
	v.SetDefault(GormLogLevel, int(slog.LevelDebug))
	v.SetDefault(GormTraceQueries, false)
	v.SetDefault(UseOTLP, false)
	v.SetDefault(SchedulerHealthAddress, "[::]:8001")
	v.SetDefault(SchedulerEngineCommand, "algobattle")
	v.SetDefault(GracefulShutdownSecs, 30)

	err = v.ReadInConfig()
	if err != nil {
		// ignore config file not found to allow pure env config
		if _, ok := err.(*viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	err = v.Unmarshal(&config)
	if err != nil {
		configReady = false
		return nil, err
	}

	valid := validator.Create()
	err = valid.Validate(&config)
	if err != nil {
		configReady = false
		return nil, err
	}

	configReady = true
	return &config, nil
}

// DecodedSecretKey returns the raw HMAC secret. The config file stores it
// base64 encoded.
func (c *Config) DecodedSecretKey() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(c.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode secret_key: %w", err)
	}

	return key, nil
}
