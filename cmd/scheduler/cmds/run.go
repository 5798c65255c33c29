package cmds

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/algobattle/algobattle-server/internal/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sweep for due matches on the configured interval until terminated",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, span := tracer.Start(cmd.Context(), "runCmd")
		defer span.End()

		env, err := setup(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to set up scheduler")
			return err
		}
		defer env.shutdown()

		health := echo.New()
		health.HideBanner = true
		health.GET("/health/", func(c echo.Context) error {
			return c.JSON(http.StatusOK, map[string]any{
				"last_sweep": env.sweeper.LastSweep(),
			})
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			err := health.Start(env.cfg.Scheduler.HealthAddress)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			return env.sweeper.Run(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			return health.Shutdown(context.WithoutCancel(gctx))
		})

		logger.Logger.InfoContext(ctx, "scheduler running",
			"interval", env.cfg.MatchExecutionInterval,
			"health", env.cfg.Scheduler.HealthAddress,
		)

		err = g.Wait()
		if err != nil && !errors.Is(err, context.Canceled) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "scheduler exited with error")
			return err
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "scheduler shut down")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
