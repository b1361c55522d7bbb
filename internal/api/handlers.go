package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/karelholub/article-recommender/internal/article"
	"github.com/karelholub/article-recommender/internal/recommend"
	"github.com/karelholub/article-recommender/internal/score"
)

const maxBodyBytes = 1 << 20

type recommendationItem struct {
	ArticleID  string           `json:"article_id"`
	Title      string           `json:"title"`
	Content    string           `json:"content"`
	URL        string           `json:"url,omitempty"`
	ScrapedAt  *time.Time       `json:"scraped_at,omitempty"`
	ClusterID  *int             `json:"cluster_id,omitempty"`
	Score      float64          `json:"score"`
	Components score.Components `json:"similarity_components"`
}

type similarResponse struct {
	QueryID         string               `json:"query_id"`
	Recommendations []recommendationItem `json:"recommendations"`
	ModelVersion    uint64               `json:"model_version"`
	StaleModel      bool                 `json:"stale_model"`
}

type articleResponse struct {
	article.Summary
	Content string `json:"content"`
}

type healthResponse struct {
	Health string `json:"status"`
	recommend.Status
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.rec.Status()
	setStale(w, st.Stale)
	s.respondJSON(w, http.StatusOK, healthResponse{Health: "ok", Status: st})
}

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.rec.List())
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	a, err := s.rec.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, articleResponse{Summary: a.Summary(), Content: a.Content})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.respondError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	var rec article.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	a, err := rec.Article()
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.rec.Ingest(r.Context(), a); err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	stored, err := s.rec.Get(a.ID)
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	setStale(w, s.rec.Status().Stale)
	s.respondJSON(w, http.StatusCreated, articleResponse{Summary: stored.Summary(), Content: stored.Content})
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	n := s.cfg.DefaultN
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			s.respondError(w, r, http.StatusBadRequest, fmt.Sprintf("n must be a positive integer, got %q", v))
			return
		}
		n = min(parsed, s.cfg.MaxN)
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	res, err := s.rec.Recommend(ctx, chi.URLParam(r, "id"), n)
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}

	items := make([]recommendationItem, len(res.Items))
	for i, it := range res.Items {
		sum := it.Article.Summary()
		items[i] = recommendationItem{
			ArticleID: sum.ID,
			Title:     sum.Title,
			Content:   article.Excerpt(it.Article.Content, s.cfg.ExcerptLength),
			URL:       sum.URL,
			ScrapedAt: sum.ScrapedAt,
			ClusterID: sum.ClusterID,
			Score:     round4(it.Score),
			Components: score.Components{
				Semantic:  round4(it.Components.Semantic),
				Freshness: round4(it.Components.Freshness),
				Topic:     round4(it.Components.Topic),
			},
		}
	}
	setStale(w, res.StaleModel)
	s.respondJSON(w, http.StatusOK, similarResponse{
		QueryID:         res.QueryID,
		Recommendations: items,
		ModelVersion:    res.ModelVersion,
		StaleModel:      res.StaleModel,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	st, err := s.rec.Stats(ctx)
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	setStale(w, st.Stale)
	s.respondJSON(w, http.StatusOK, st)
}

type refitResponse struct {
	Clusters     int       `json:"clusters"`
	Articles     int       `json:"articles"`
	FittedAt     time.Time `json:"fitted_at"`
	ModelVersion uint64    `json:"model_version"`
}

// handleRefit refits synchronously; the engine serializes it with the
// background refits.
func (s *Server) handleRefit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RefitTimeout)
	defer cancel()

	m, err := s.rec.Refit(ctx)
	if err != nil && m == nil {
		s.respondEngineError(w, r, err)
		return
	}
	if err != nil {
		// Published in memory but not persisted.
		s.logger.Warn().Err(err).Msg("refit not persisted")
	}
	if m.K() == 0 {
		// The empty model is published; tell the caller nothing was clustered.
		s.respondError(w, r, http.StatusConflict, "no embedded articles to cluster")
		return
	}
	s.respondJSON(w, http.StatusOK, refitResponse{
		Clusters:     m.K(),
		Articles:     m.Size(),
		FittedAt:     m.FittedAt(),
		ModelVersion: s.rec.Status().ModelVersion,
	})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, article.RecordSchema())
}
