package recommender

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/karelholub/article-recommender/internal/article"
	"github.com/karelholub/article-recommender/internal/logging"
)

// IngestArticlesCmd reads scraped articles from files and adds them to the
// corpus. JSON and YAML files hold one record or a list of records; a .txt
// file is one article with its title on the first line and its id taken
// from the file name.
var IngestArticlesCmd = &cobra.Command{
	Use:   "ingest-articles <path>...",
	Short: "Ingest scraped articles from files or directories",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		n, err := ingestArticles(cmd.Context(), args)
		if err != nil {
			logFailure(err, "failed to ingest articles")
			return
		}
		logging.Info().Int("changed", n).Msg("article ingestion complete")
	},
}

var articleExtensions = []string{".json", ".yaml", ".yml", ".txt"}

func ingestArticles(ctx context.Context, paths []string) (int, error) {
	records, err := readRecords(paths)
	if err != nil {
		return 0, err
	}

	articles := make([]article.Article, 0, len(records))
	for _, r := range records {
		a, err := r.Article()
		if err != nil {
			logging.Warn().Err(err).Str("id", r.ID).Msg("skipping invalid article")
			continue
		}
		articles = append(articles, a)
	}
	if len(articles) == 0 {
		return 0, errors.New("no valid articles found")
	}

	app, err := openApp(ctx)
	if err != nil {
		return 0, err
	}
	defer app.Close()

	return app.engine.IngestBatch(ctx, articles)
}

// readRecords collects records from files and, recursively, directories.
func readRecords(paths []string) ([]article.Record, error) {
	var records []article.Record
	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			// Files named explicitly are read whatever their extension.
			if path != root && !slices.Contains(articleExtensions, strings.ToLower(filepath.Ext(path))) {
				return nil
			}
			rs, err := readRecordFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			logging.Debug().Str("path", path).Int("records", len(rs)).Msg("read article file")
			records = append(records, rs...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return records, nil
}

func readRecordFile(path string) ([]article.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decodeYAMLRecords(data)
	case ".txt":
		id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return []article.Record{decodeTextRecord(id, data)}, nil
	default:
		return decodeJSONRecords(data)
	}
}

func decodeJSONRecords(data []byte) ([]article.Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var records []article.Record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, err
		}
		return records, nil
	}
	var r article.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return []article.Record{r}, nil
}

func decodeYAMLRecords(data []byte) ([]article.Record, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	if node.Content[0].Kind == yaml.SequenceNode {
		var records []article.Record
		if err := node.Decode(&records); err != nil {
			return nil, err
		}
		return records, nil
	}
	var r article.Record
	if err := node.Decode(&r); err != nil {
		return nil, err
	}
	return []article.Record{r}, nil
}

func decodeTextRecord(id string, data []byte) article.Record {
	r := article.Record{ID: id}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	var body []string
	for scanner.Scan() {
		line := scanner.Text()
		if r.Title == "" {
			r.Title = strings.TrimSpace(line)
			continue
		}
		body = append(body, line)
	}
	r.Content = strings.TrimSpace(strings.Join(body, "\n"))
	return r
}
