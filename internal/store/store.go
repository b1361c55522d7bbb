// Package store persists articles, their embeddings and the last fitted
// cluster model in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/karelholub/article-recommender/internal/article"
	"github.com/karelholub/article-recommender/internal/cluster"
)

const schema = `
CREATE TABLE IF NOT EXISTS articles (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	url TEXT NOT NULL DEFAULT '',
	scraped_at TEXT,
	content_hash TEXT NOT NULL,
	embedding_json TEXT,
	embedding_empty INTEGER NOT NULL DEFAULT 0,
	embedding_model TEXT NOT NULL DEFAULT '',
	cluster_id INTEGER NOT NULL DEFAULT -1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_articles_updated_at ON articles(updated_at);
CREATE INDEX IF NOT EXISTS idx_articles_cluster_id ON articles(cluster_id);

CREATE TABLE IF NOT EXISTS cluster_model (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	k INTEGER NOT NULL,
	dim INTEGER NOT NULL,
	centroids_json TEXT NOT NULL,
	labels_json TEXT NOT NULL,
	fitted_at TEXT NOT NULL
);
`

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a SQLite backed article repository.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// Open opens or creates the database at path and applies the schema.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			logger.Error().Err(cerr).Msg("failed to close database")
		}
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveArticles upserts articles with their embeddings and cluster labels in
// one transaction. updated_at only moves when the content hash changes.
func (s *Store) SaveArticles(ctx context.Context, articles []article.Article) error {
	if len(articles) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now().UTC().Format(timeLayout)
		for i := range articles {
			a := &articles[i]
			embeddingJSON, err := encodeVector(a.Embedding.Vector)
			if err != nil {
				return fmt.Errorf("failed to marshal embedding of %s: %w", a.ID, err)
			}
			hash := a.Embedding.ContentHash
			if hash == "" {
				hash = a.Hash()
			}

			query, args, err := sq.Insert("articles").
				Columns("id", "title", "content", "url", "scraped_at", "content_hash",
					"embedding_json", "embedding_empty", "embedding_model", "cluster_id",
					"created_at", "updated_at").
				Values(a.ID, a.Title, a.Content, a.URL, formatTime(a.ScrapedAt), hash,
					embeddingJSON, a.Embedding.Empty, a.Embedding.Model, a.ClusterID,
					now, now).
				Suffix(`ON CONFLICT(id) DO UPDATE SET
					title = excluded.title,
					content = excluded.content,
					url = excluded.url,
					scraped_at = excluded.scraped_at,
					embedding_json = excluded.embedding_json,
					embedding_empty = excluded.embedding_empty,
					embedding_model = excluded.embedding_model,
					cluster_id = excluded.cluster_id,
					updated_at = CASE WHEN articles.content_hash != excluded.content_hash
						THEN excluded.updated_at ELSE articles.updated_at END,
					content_hash = excluded.content_hash`).
				ToSql()
			if err != nil {
				return fmt.Errorf("failed to build upsert: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to upsert article %s: %w", a.ID, err)
			}
		}
		return nil
	})
}

// LoadArticles returns every stored article ordered by id.
func (s *Store) LoadArticles(ctx context.Context) ([]article.Article, error) {
	query, args, err := sq.Select("id", "title", "content", "url", "scraped_at", "content_hash",
		"embedding_json", "embedding_empty", "embedding_model", "cluster_id").
		From("articles").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error().Err(err).Msg("failed to close rows")
		}
	}()

	var out []article.Article
	for rows.Next() {
		var (
			a             article.Article
			scrapedAt     sql.NullString
			embeddingJSON sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Title, &a.Content, &a.URL, &scrapedAt, &a.Embedding.ContentHash,
			&embeddingJSON, &a.Embedding.Empty, &a.Embedding.Model, &a.ClusterID); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		if scrapedAt.Valid && scrapedAt.String != "" {
			t, err := time.Parse(timeLayout, scrapedAt.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse scraped_at of %s: %w", a.ID, err)
			}
			a.ScrapedAt = t
		}
		if embeddingJSON.Valid && embeddingJSON.String != "" {
			if err := json.Unmarshal([]byte(embeddingJSON.String), &a.Embedding.Vector); err != nil {
				return nil, fmt.Errorf("failed to parse embedding of %s: %w", a.ID, err)
			}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read articles: %w", err)
	}
	return out, nil
}

// Count returns the number of stored articles.
func (s *Store) Count(ctx context.Context) (int, error) {
	query, args, err := sq.Select("COUNT(*)").From("articles").ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return n, nil
}

// UpdatedSince counts articles created or whose content changed after t.
func (s *Store) UpdatedSince(ctx context.Context, t time.Time) (int, error) {
	query, args, err := sq.Select("COUNT(*)").
		From("articles").
		Where(sq.Gt{"updated_at": t.UTC().Format(timeLayout)}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count updated articles: %w", err)
	}
	return n, nil
}

// SaveModel stores m as the current model and writes labels to the articles
// it names. Articles missing from labels are marked unassigned.
func (s *Store) SaveModel(ctx context.Context, m *cluster.Model, labels map[string]int) error {
	centroidsJSON, err := json.Marshal(m.Centroids())
	if err != nil {
		return fmt.Errorf("failed to marshal centroids: %w", err)
	}
	labelsJSON, err := json.Marshal(m.Labels())
	if err != nil {
		return fmt.Errorf("failed to marshal labels: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		query, args, err := sq.Insert("cluster_model").
			Columns("id", "k", "dim", "centroids_json", "labels_json", "fitted_at").
			Values(1, m.K(), m.Dim(), string(centroidsJSON), string(labelsJSON), m.FittedAt().UTC().Format(timeLayout)).
			Suffix(`ON CONFLICT(id) DO UPDATE SET
				k = excluded.k,
				dim = excluded.dim,
				centroids_json = excluded.centroids_json,
				labels_json = excluded.labels_json,
				fitted_at = excluded.fitted_at`).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build model upsert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to save model: %w", err)
		}

		reset, resetArgs, err := sq.Update("articles").Set("cluster_id", article.Unassigned).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, reset, resetArgs...); err != nil {
			return fmt.Errorf("failed to reset labels: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, "UPDATE articles SET cluster_id = ? WHERE id = ?")
		if err != nil {
			return fmt.Errorf("failed to prepare label update: %w", err)
		}
		defer stmt.Close()
		for id, l := range labels {
			if _, err := stmt.ExecContext(ctx, l, id); err != nil {
				return fmt.Errorf("failed to label %s: %w", id, err)
			}
		}
		return nil
	})
}

// LoadModel returns the stored model, or nil if none was saved yet.
func (s *Store) LoadModel(ctx context.Context) (*cluster.Model, error) {
	query, args, err := sq.Select("centroids_json", "labels_json", "fitted_at").
		From("cluster_model").
		Where(sq.Eq{"id": 1}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var centroidsJSON, labelsJSON, fittedAt string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&centroidsJSON, &labelsJSON, &fittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	var centroids [][]float64
	if err := json.Unmarshal([]byte(centroidsJSON), &centroids); err != nil {
		return nil, fmt.Errorf("failed to parse centroids: %w", err)
	}
	labels := map[string]int{}
	if err := json.Unmarshal([]byte(labelsJSON), &labels); err != nil {
		return nil, fmt.Errorf("failed to parse labels: %w", err)
	}
	t, err := time.Parse(timeLayout, fittedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fitted_at: %w", err)
	}
	return cluster.NewModel(centroids, labels, t)
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			s.logger.Error().Err(rerr).Msg("failed to roll back transaction")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func encodeVector(v []float64) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}
