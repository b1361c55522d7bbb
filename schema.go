package recommender

import (
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/karelholub/article-recommender/internal/article"
	"github.com/karelholub/article-recommender/internal/logging"
)

// SchemaCmd prints the JSON schema of an ingestible article record.
var SchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema for article records",
	Run: func(cmd *cobra.Command, args []string) {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(article.RecordSchema()); err != nil {
			logging.Error().Err(err).Msg("failed to encode schema")
		}
	},
}
