package recommender

import (
	"context"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

// StatsCmd prints corpus statistics as JSON.
var StatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show freshness and cluster statistics",
	Run: func(cmd *cobra.Command, args []string) {
		if err := printStats(cmd.Context(), os.Stdout); err != nil {
			logFailure(err, "failed to compute stats")
		}
	},
}

func printStats(ctx context.Context, w io.Writer) error {
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	stats, err := app.engine.Stats(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
