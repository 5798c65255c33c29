// Package api implements the platform's HTTP surface: login, entity CRUD,
// program uploads, file downloads and match scheduling.
package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	servermiddleware "github.com/algobattle/algobattle-server/cmd/server/internal/middleware"
	"github.com/algobattle/algobattle-server/cmd/server/internal/ratelimit"
	"github.com/algobattle/algobattle-server/cmd/server/internal/response"
	"github.com/algobattle/algobattle-server/cmd/server/internal/taskrunner"
	"github.com/algobattle/algobattle-server/internal/blob"
	"github.com/algobattle/algobattle-server/internal/config"
	"github.com/algobattle/algobattle-server/internal/logger"
	"github.com/algobattle/algobattle-server/internal/mail"
	"github.com/algobattle/algobattle-server/internal/match"
	"github.com/algobattle/algobattle-server/internal/models"
	"github.com/algobattle/algobattle-server/internal/token"
	"github.com/algobattle/algobattle-server/internal/types"
)

const name = "github.com/algobattle/algobattle-server/cmd/server/routes/api"

var tracer = otel.Tracer(name)

type Handler struct {
	DB         *gorm.DB
	config     *config.Config
	store      *blob.Store
	tokenKey   token.Key
	mailer     mail.Mailer
	runner     *match.Runner
	taskRunner *taskrunner.Client
}

func NewHandler(
	db *gorm.DB,
	cfg *config.Config,
	store *blob.Store,
	tokenKey token.Key,
	mailer mail.Mailer,
	runner *match.Runner,
	taskRunner *taskrunner.Client,
) Handler {
	return Handler{
		DB:         db,
		config:     cfg,
		store:      store,
		tokenKey:   tokenKey,
		mailer:     mailer,
		runner:     runner,
		taskRunner: taskRunner,
	}
}

func NewRedisLimiter(
	redisHost string,
	limiterKey string,
	perMinute int64,
	failOpen bool,
	onlyMethod *string,
) middleware.RateLimiterConfig {
	l := logger.Logger

	redisAddr := redisHost + ":6379"
	l.Debug("Setting up rate limiter with Redis", "redis", redisAddr)
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	store := ratelimit.NewRedisLimitStore(ratelimit.RedisLimiterConfig{
		PerMinute:   perMinute,
		RedisClient: rdb,
		LimiterKey:  limiterKey,
		FailOpen:    failOpen,
	})

	skipper := middleware.DefaultSkipper
	if onlyMethod != nil {
		skipper = func(c echo.Context) bool {
			return c.Request().Method != *onlyMethod
		}
	}

	return middleware.RateLimiterConfig{
		Skipper: skipper,
		Store:   store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			user, err := servermiddleware.RequestUser(c)
			if err != nil {
				return "", err
			}
			return user.ID.String(), nil
		},
		ErrorHandler: func(context echo.Context, _ error) error {
			return context.JSON(http.StatusForbidden, nil)
		},
		DenyHandler: func(context echo.Context, _ string, _ error) error {
			return context.JSON(http.StatusTooManyRequests, nil)
		},
	}
}

func (h *Handler) AddRoutes(e *echo.Echo, middlewareHandler *servermiddleware.Handler) {
	api := e.Group("/api")

	api.POST("/login/request/", h.RequestLogin)
	api.POST("/login/token/", h.CompleteLogin)

	auth := api.Group("", middlewareHandler.UserToken())

	auth.GET("/user/self/", h.SelfUser)
	auth.POST("/user/logout/", h.Logout)
	auth.POST("/user/settings/", h.UpdateSettings)

	auth.GET(
		"/files/:file_id/",
		h.GetFile,
		servermiddleware.PopulateFromIDParam[models.File](middlewareHandler, "file_id", "file"),
	)

	admin := auth.Group("", servermiddleware.RequireAdmin())
	admin.POST("/tournaments/", h.CreateTournament)
	admin.POST("/teams/", h.CreateTeam)

	auth.GET("/problems/", h.ListProblems)
	auth.GET(
		"/problems/:problem_id/",
		h.GetProblem,
		servermiddleware.PopulateFromIDParam[models.Problem](middlewareHandler, "problem_id", "problem"),
	)
	admin.POST("/problems/", h.CreateProblem)

	problemGroup := auth.Group(
		"/problems/:problem_id",
		servermiddleware.PopulateFromIDParam[models.Problem](middlewareHandler, "problem_id", "problem"),
	)
	problemGroup.GET("/documentation/", h.GetDocumentation)
	problemGroup.PUT("/documentation/", h.PutDocumentation)

	auth.GET("/programs/", h.ListPrograms)
	programUpload := auth.Group("/programs")
	if h.config.RateLimit != nil && h.config.RateLimit.UploadPerMinute > 0 {
		post := http.MethodPost
		programUpload.Use(
			middleware.RateLimiterWithConfig(
				NewRedisLimiter(
					h.config.RateLimit.RedisHost,
					"upload",
					h.config.RateLimit.UploadPerMinute,
					h.config.RateLimit.FailOpen,
					&post,
				),
			),
		)
	} else {
		logger.Logger.Warn("not configured to have an upload rate limit")
	}
	programUpload.POST("/", h.UploadProgram)

	auth.GET("/matches/results/", h.ListMatchResults)
	auth.GET("/matches/scheduled/", h.ListScheduledMatches)
	admin.POST("/matches/scheduled/", h.ScheduleMatch)
	admin.DELETE(
		"/matches/scheduled/:match_id/",
		h.DeleteScheduledMatch,
		servermiddleware.PopulateFromIDParam[models.ScheduledMatch](middlewareHandler, "match_id", "scheduledMatch"),
	)
	admin.PATCH(
		"/matches/scheduled/:match_id/",
		h.EditScheduledMatch,
		servermiddleware.PopulateFromIDParam[models.ScheduledMatch](middlewareHandler, "match_id", "scheduledMatch"),
	)
	admin.POST(
		"/matches/scheduled/:match_id/run/",
		h.RunScheduledMatch,
		servermiddleware.PopulateFromIDParam[models.ScheduledMatch](middlewareHandler, "match_id", "scheduledMatch"),
	)
	admin.DELETE(
		"/matches/results/:result_id/",
		h.DeleteMatchResult,
		servermiddleware.PopulateFromIDParam[models.MatchResult](middlewareHandler, "result_id", "matchResult"),
	)
}

// conflictError builds the 409 payload for a uniqueness violation.
func conflictError(field, value string, object *uuid.UUID) *echo.HTTPError {
	return echo.NewHTTPError(
		http.StatusConflict,
		types.ValueTaken{Field: field, Value: value, Object: object},
	)
}

// dbError maps storage errors to responses: duplicates become 409 on the
// given field, missing rows 400, everything else 500.
func dbError(span trace.Span, err error, field, value string) error {
	span.RecordError(err)

	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return conflictError(field, value, nil)
	case errors.Is(err, models.ErrNotFound):
		return response.EntityNotFoundError
	default:
		return response.InternalServerError
	}
}

func validationFailed(c echo.Context, err error) error {
	return c.JSON(http.StatusUnprocessableEntity, types.ValidationError(err))
}
