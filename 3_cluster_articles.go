package recommender

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/karelholub/article-recommender/internal/cluster"
	"github.com/karelholub/article-recommender/internal/logging"
)

// ClusterArticlesCmd refits the topic model over the whole corpus.
var ClusterArticlesCmd = &cobra.Command{
	Use:   "cluster-articles",
	Short: "Cluster articles into topics using their embeddings",
	Run: func(cmd *cobra.Command, args []string) {
		if err := clusterArticles(cmd.Context(), os.Stdout); err != nil {
			logFailure(err, "failed to cluster articles")
			return
		}
		logging.Info().Msg("article clustering complete")
	},
}

func clusterArticles(ctx context.Context, w io.Writer) error {
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	model, err := app.engine.Refit(ctx)
	if err != nil {
		return err
	}

	stats, err := app.engine.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "clusters: %d  articles: %d  silhouette: %.4f\n",
		model.K(), model.Size(), app.engine.Silhouette())
	for k, size := range cluster.Sizes(model) {
		fmt.Fprintf(w, "  #%d  %4d  %v\n", k, size, stats.Topics[k])
	}
	return nil
}
