package main

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	recommender "github.com/karelholub/article-recommender"
	"github.com/karelholub/article-recommender/internal/config"
	"github.com/karelholub/article-recommender/internal/logging"
)

func main() {
	// Load .env file when present
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Fatal().Err(err).Msg("error loading .env file")
	}

	cfg, err := config.Load(os.Getenv(config.EnvPrefix + "CONFIG"))
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	recommender.Config = cfg

	rootCmd := &cobra.Command{
		Use:   "recommender",
		Short: "Content-based article recommendation engine",
	}

	rootCmd.AddCommand(recommender.IngestArticlesCmd)
	rootCmd.AddCommand(recommender.EmbedArticlesCmd)
	rootCmd.AddCommand(recommender.ClusterArticlesCmd)
	rootCmd.AddCommand(recommender.RecommendCmd)
	rootCmd.AddCommand(recommender.StatsCmd)
	rootCmd.AddCommand(recommender.ServeCmd)
	rootCmd.AddCommand(recommender.ListArticlesCmd)
	rootCmd.AddCommand(recommender.SchemaCmd)
	rootCmd.AddCommand(recommender.CleanCmd)
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logging.Fatal().Err(err).Msg("command failed")
	}
}

var runCmd = &cobra.Command{
	Use:   "run <path>...",
	Short: "Run the full pipeline: ingest-articles -> embed-articles -> cluster-articles",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		logging.Info().Msg("running full pipeline")
		recommender.IngestArticlesCmd.Run(cmd, args)
		recommender.EmbedArticlesCmd.Run(cmd, nil)
		recommender.ClusterArticlesCmd.Run(cmd, nil)
		logging.Info().Msg("pipeline complete")
	},
}
