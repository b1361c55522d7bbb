package recommender

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var recommendCount int

// RecommendCmd prints the articles recommended for reading after one.
var RecommendCmd = &cobra.Command{
	Use:   "recommend <article-id>",
	Short: "Recommend articles similar to the given one",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := recommendArticles(cmd.Context(), os.Stdout, args[0], recommendCount); err != nil {
			logFailure(err, "failed to recommend articles for "+args[0])
		}
	},
}

func init() {
	RecommendCmd.Flags().IntVarP(&recommendCount, "count", "n", 5, "number of recommendations")
}

func recommendArticles(ctx context.Context, w io.Writer, id string, n int) error {
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if Config.Recommend.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, Config.Recommend.Timeout)
		defer cancel()
	}
	res, err := app.engine.Recommend(ctx, id, n)
	if err != nil {
		return err
	}

	if res.StaleModel {
		fmt.Fprintln(w, "warning: cluster model is stale, run cluster-articles")
	}
	for i, r := range res.Items {
		c := r.Components
		fmt.Fprintf(w, "%2d. %-24s %.4f  (semantic %.4f, freshness %.4f, topic %.4f)  %s\n",
			i+1, r.Article.ID, r.Score, c.Semantic, c.Freshness, c.Topic, r.Article.Title)
	}
	return nil
}
