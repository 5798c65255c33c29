package cmds

import (
	"context"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/algobattle/algobattle-server/cmd/scheduler")

var rootCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Runs scheduled matches for the algobattle platform",
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
