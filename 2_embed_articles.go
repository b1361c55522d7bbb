package recommender

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/karelholub/article-recommender/internal/logging"
)

var forceEmbed bool

// EmbedArticlesCmd recomputes embeddings that are missing or out of date.
var EmbedArticlesCmd = &cobra.Command{
	Use:   "embed-articles",
	Short: "Generate embeddings for all articles",
	Run: func(cmd *cobra.Command, args []string) {
		n, err := embedArticles(cmd.Context(), forceEmbed)
		if err != nil {
			logFailure(err, "failed to embed articles")
			return
		}
		logging.Info().Int("updated", n).Msg("article embedding complete")
	},
}

func init() {
	EmbedArticlesCmd.Flags().BoolVar(&forceEmbed, "force", false, "re-embed every article, ignoring cached embeddings")
}

func embedArticles(ctx context.Context, force bool) (int, error) {
	app, err := openApp(ctx)
	if err != nil {
		return 0, err
	}
	defer app.Close()

	return app.engine.Reembed(ctx, force)
}
