package cmds

import (
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/codes"
)

// Mostly useful for operators driving the scheduler from cron or by hand.
var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single sweep and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, span := tracer.Start(cmd.Context(), "onceCmd")
		defer span.End()

		env, err := setup(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to set up scheduler")
			return err
		}
		defer env.shutdown()

		err = env.sweeper.Reconcile(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to reconcile stale results")
			return err
		}

		err = env.sweeper.Sweep(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "sweep failed")
			return err
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "swept once")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(onceCmd)
}
