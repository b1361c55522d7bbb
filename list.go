package recommender

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// ListArticlesCmd prints the corpus ordered by id.
var ListArticlesCmd = &cobra.Command{
	Use:   "list-articles",
	Short: "List stored articles",
	Run: func(cmd *cobra.Command, args []string) {
		if err := listArticles(cmd.Context(), os.Stdout); err != nil {
			logFailure(err, "failed to list articles")
		}
	},
}

func listArticles(ctx context.Context, w io.Writer) error {
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	for _, s := range app.engine.List() {
		cluster := "-"
		if s.ClusterID != nil {
			cluster = fmt.Sprint(*s.ClusterID)
		}
		date := "undated"
		if s.ScrapedAt != nil {
			date = s.ScrapedAt.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%-24s %-10s %3s  %s\n", s.ID, date, cluster, s.Title)
	}
	return nil
}
