package recommender

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/karelholub/article-recommender/internal/config"
	"github.com/karelholub/article-recommender/internal/embed"
	"github.com/karelholub/article-recommender/internal/recommend"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDecodeJSONRecords(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ids   []string
	}{
		{"object", `{"id":"a","title":"A"}`, []string{"a"}},
		{"array", ` [{"id":"a","title":"A"},{"id":"b","title":"B"}]`, []string{"a", "b"}},
		{"empty", "  \n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := decodeJSONRecords([]byte(tt.input))
			if err != nil {
				t.Fatalf("decodeJSONRecords() error = %v", err)
			}
			if len(records) != len(tt.ids) {
				t.Fatalf("got %d records, want %d", len(records), len(tt.ids))
			}
			for i, r := range records {
				if r.ID != tt.ids[i] {
					t.Errorf("records[%d].ID = %q, want %q", i, r.ID, tt.ids[i])
				}
			}
		})
	}

	if _, err := decodeJSONRecords([]byte(`{"id":`)); err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func TestDecodeYAMLRecords(t *testing.T) {
	list := "- id: a\n  title: A\n  scraped_at: 2024-05-01\n- id: b\n  title: B\n"
	records, err := decodeYAMLRecords([]byte(list))
	if err != nil {
		t.Fatalf("decodeYAMLRecords() error = %v", err)
	}
	if len(records) != 2 || records[1].ID != "b" || records[0].ScrapedAt != "2024-05-01" {
		t.Errorf("unexpected records %+v", records)
	}

	single := "id: c\ntitle: C\ncontent: |\n  first line\n  second line\n"
	records, err = decodeYAMLRecords([]byte(single))
	if err != nil {
		t.Fatalf("decodeYAMLRecords() error = %v", err)
	}
	if len(records) != 1 || !strings.Contains(records[0].Content, "second line") {
		t.Errorf("unexpected records %+v", records)
	}
}

func TestDecodeTextRecord(t *testing.T) {
	r := decodeTextRecord("story-1", []byte("\nHeadline here\n\nBody one.\nBody two.\n"))
	if r.ID != "story-1" {
		t.Errorf("ID = %q", r.ID)
	}
	if r.Title != "Headline here" {
		t.Errorf("Title = %q", r.Title)
	}
	if r.Content != "Body one.\nBody two." {
		t.Errorf("Content = %q", r.Content)
	}
}

func TestReadRecords(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "batch.json"), `[{"id":"a","title":"A"},{"id":"b","title":"B"}]`)
	writeFile(t, filepath.Join(dir, "nested", "c.yaml"), "id: c\ntitle: C\n")
	writeFile(t, filepath.Join(dir, "d.txt"), "D\nbody")
	writeFile(t, filepath.Join(dir, "notes.md"), "ignored")

	records, err := readRecords([]string{dir})
	if err != nil {
		t.Fatalf("readRecords() error = %v", err)
	}
	got := map[string]bool{}
	for _, r := range records {
		got[r.ID] = true
	}
	for _, id := range []string{"a", "b", "c", "d"} {
		if !got[id] {
			t.Errorf("missing record %q", id)
		}
	}
	if len(records) != 4 {
		t.Errorf("got %d records, want 4", len(records))
	}

	if _, err := readRecords([]string{filepath.Join(dir, "missing.json")}); err == nil {
		t.Error("expected error for missing path")
	}
}

// useTestConfig installs a configuration with the offline hashing embedder
// and a database under dir.
func useTestConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, strings.Join([]string{
		"database:",
		"  path: " + filepath.Join(dir, "articles.db"),
		"embedding:",
		"  provider: hashing",
		"  dimensions: 64",
		"cluster:",
		"  k: 2",
		"logging:",
		"  level: disabled",
	}, "\n"))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	prev := Config
	Config = cfg
	t.Cleanup(func() { Config = prev })
	return cfg
}

func TestPipeline(t *testing.T) {
	dir := t.TempDir()
	useTestConfig(t, dir)

	articles := filepath.Join(dir, "articles")
	writeFile(t, filepath.Join(articles, "markets.json"), `[
		{"id":"m1","title":"Stocks rally as markets rebound","content":"Markets and stocks rose sharply.","scraped_at":"2024-05-30T08:00:00Z"},
		{"id":"m2","title":"Markets slide on rate fears","content":"Stocks and markets fell as rates rose.","scraped_at":"2024-05-29"}
	]`)
	writeFile(t, filepath.Join(articles, "sport.yaml"), strings.Join([]string{
		"- id: s1",
		"  title: Local team wins the football final",
		"  content: The football team won the final match.",
		"- id: s2",
		"  title: Football coach resigns after final",
		"  content: The football coach left the team.",
	}, "\n"))
	writeFile(t, filepath.Join(articles, "broken.json"), `{"id":"x"}`)

	ctx := context.Background()
	n, err := ingestArticles(ctx, []string{articles})
	if err != nil {
		t.Fatalf("ingestArticles() error = %v", err)
	}
	if n != 4 {
		t.Errorf("ingested %d articles, want 4", n)
	}

	var out bytes.Buffer
	if err := clusterArticles(ctx, &out); err != nil {
		t.Fatalf("clusterArticles() error = %v", err)
	}
	if !strings.Contains(out.String(), "clusters: 2") {
		t.Errorf("cluster output = %q", out.String())
	}

	out.Reset()
	if err := recommendArticles(ctx, &out, "m1", 2); err != nil {
		t.Fatalf("recommendArticles() error = %v", err)
	}
	var items []string
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if strings.HasPrefix(line, "warning") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			t.Fatalf("unexpected line %q", line)
		}
		items = append(items, fields[1])
	}
	if len(items) != 2 {
		t.Fatalf("got %d recommendations, want 2: %q", len(items), out.String())
	}
	for _, id := range items {
		if id == "m1" {
			t.Error("query article recommended to itself")
		}
	}

	out.Reset()
	if err := printStats(ctx, &out); err != nil {
		t.Fatalf("printStats() error = %v", err)
	}
	var stats recommend.Stats
	if err := json.Unmarshal(out.Bytes(), &stats); err != nil {
		t.Fatalf("stats output is not JSON: %v", err)
	}
	if stats.TotalArticles != 4 {
		t.Errorf("TotalArticles = %d, want 4", stats.TotalArticles)
	}
	if len(stats.Clusters) != 2 {
		t.Errorf("Clusters = %v, want 2 clusters", stats.Clusters)
	}

	out.Reset()
	if err := listArticles(ctx, &out); err != nil {
		t.Fatalf("listArticles() error = %v", err)
	}
	if lines := strings.Count(out.String(), "\n"); lines != 4 {
		t.Errorf("listed %d articles, want 4", lines)
	}

	if err := recommendArticles(ctx, &out, "missing", 2); !errors.Is(err, recommend.ErrNotFound) {
		t.Errorf("recommendArticles(missing) error = %v, want ErrNotFound", err)
	}
}

func TestServeFailsWithoutEmbeddingModel(t *testing.T) {
	cfg := useTestConfig(t, t.TempDir())
	cfg.Embedding.Provider = "word2vec"

	err := serve(context.Background())
	if !errors.Is(err, embed.ErrModelUnavailable) {
		t.Fatalf("serve() error = %v, want ErrModelUnavailable", err)
	}
}

func TestCleanDatabase(t *testing.T) {
	dir := t.TempDir()
	useTestConfig(t, dir)
	ctx := context.Background()

	writeFile(t, filepath.Join(dir, "a.json"), `{"id":"a","title":"Alpha"}`)
	if _, err := ingestArticles(ctx, []string{filepath.Join(dir, "a.json")}); err != nil {
		t.Fatalf("ingestArticles() error = %v", err)
	}

	removed, err := cleanDatabase(Config.Database.Path)
	if err != nil {
		t.Fatalf("cleanDatabase() error = %v", err)
	}
	if len(removed) == 0 || removed[0] != Config.Database.Path {
		t.Errorf("removed = %v", removed)
	}
	if _, err := os.Stat(Config.Database.Path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("database still present: %v", err)
	}

	// A second run finds nothing and is not an error.
	if removed, err := cleanDatabase(Config.Database.Path); err != nil || len(removed) != 0 {
		t.Errorf("cleanDatabase() again = %v, %v", removed, err)
	}
}
