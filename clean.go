package recommender

import (
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/karelholub/article-recommender/internal/logging"
)

// CleanCmd deletes the article database, embeddings and cluster model
// included.
var CleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the article database",
	Run: func(cmd *cobra.Command, args []string) {
		removed, err := cleanDatabase(Config.Database.Path)
		if err != nil {
			logging.Error().Err(err).Msg("failed to clean database")
			return
		}
		logging.Info().Strs("removed", removed).Msg("database cleaned")
	},
}

// cleanDatabase removes the SQLite file at path and its journal files. It
// returns the files that existed.
func cleanDatabase(path string) ([]string, error) {
	var removed []string
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		err := os.Remove(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return removed, err
		}
		removed = append(removed, p)
	}
	return removed, nil
}
