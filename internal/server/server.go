// Package server はブラウザ UI 向けの JSON API を提供します。
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shouni/gemini-picture-book/internal/metrics"
	"github.com/shouni/gemini-picture-book/internal/session"
	"github.com/shouni/gemini-picture-book/pkg/book"
	"github.com/shouni/gemini-picture-book/pkg/domain"
	"github.com/shouni/gemini-picture-book/pkg/generator"
	"github.com/shouni/gemini-picture-book/pkg/imgutil"
	"golang.org/x/sync/singleflight"
)

// BookGenerator は 1 冊分の絵本を組み立てます。*book.Assembler がこれを満たします。
type BookGenerator interface {
	GeneratePictureBook(ctx context.Context, req book.Request) ([]domain.BookPage, error)
}

// Deps はサーバーが使う依存関係です。
type Deps struct {
	Books       BookGenerator
	Regenerator generator.PageRegenerator
	Store       *session.Store

	// Metrics と Gatherer は nil なら計測しません。
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
	Upload UploadSettings
}

// UploadSettings はアップロードの受け付け条件です。
type UploadSettings struct {
	MaxBytes int64
	Image    imgutil.UploadOptions
}

// Server は HTTP ハンドラー群です。
type Server struct {
	books       BookGenerator
	regenerator generator.PageRegenerator
	store       *session.Store
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	logger      *slog.Logger
	upload      UploadSettings
	validate    *validator.Validate

	// regenerations は同じページへの再生成リクエストを 1 回の呼び出しにまとめる。
	regenerations singleflight.Group
}

// New は Server を作ります。
func New(d Deps) (*Server, error) {
	if d.Books == nil || d.Regenerator == nil || d.Store == nil {
		return nil, fmt.Errorf("books, regenerator and store are required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Upload.MaxBytes <= 0 {
		d.Upload.MaxBytes = 32 << 20
	}
	return &Server{
		books:       d.Books,
		regenerator: d.Regenerator,
		store:       d.Store,
		metrics:     d.Metrics,
		gatherer:    d.Gatherer,
		logger:      d.Logger,
		upload:      d.Upload,
		validate:    validator.New(),
	}, nil
}

// Routes はルーティング済みのハンドラーを返します。
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.instrument)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/styles", s.handleListStyles)
		r.Post("/books", s.handleCreateBook)
		r.Get("/books/{bookID}", s.handleGetBook)
		r.Post("/books/{bookID}/pages/{pageID}/regenerate", s.handleRegeneratePage)
	})

	return r
}
