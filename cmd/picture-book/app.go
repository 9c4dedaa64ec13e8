package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shouni/gemini-picture-book/internal/config"
	"github.com/shouni/gemini-picture-book/internal/metrics"
	"github.com/shouni/gemini-picture-book/internal/server"
	"github.com/shouni/gemini-picture-book/internal/session"
	"github.com/shouni/gemini-picture-book/pkg/book"
	"github.com/shouni/gemini-picture-book/pkg/generator"
	"github.com/shouni/gemini-picture-book/pkg/imgutil"
	"github.com/shouni/gemini-picture-book/pkg/provider"
	"github.com/shouni/gemini-picture-book/pkg/retry"
	"golang.org/x/time/rate"
)

const rateBurst = 2

type application struct {
	cfg     *config.Config
	logger  *slog.Logger
	handler http.Handler
}

// newApplication は設定を読み込み、依存関係を組み立てます。
// API キーはここでは読まないので、未設定でも起動できます。
func newApplication(configPath string) (*application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	handler, err := buildHandler(cfg, logger, m, reg, provider.NewAccessor(cfg.APIKeySource(), nil))
	if err != nil {
		return nil, err
	}
	return &application{cfg: cfg, logger: logger, handler: handler}, nil
}

func buildHandler(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, gatherer prometheus.Gatherer, clients generator.ClientProvider) (http.Handler, error) {
	opts := []generator.Option{
		generator.WithModels(cfg.Gemini.StoryModel, cfg.Gemini.ImageModel),
		generator.WithRetryPolicy(retry.Policy{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
		}),
		generator.WithLogger(logger),
		generator.WithCallObserver(m),
	}
	if rpm := cfg.Gemini.RequestsPerMinute; rpm > 0 {
		opts = append(opts, generator.WithRateLimiter(rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rateBurst)))
	}

	gen, err := generator.NewGeminiGenerator(clients, opts...)
	if err != nil {
		return nil, fmt.Errorf("ジェネレーターの初期化に失敗しました: %w", err)
	}

	assembler, err := book.NewAssembler(gen, gen, book.WithLogger(logger), book.WithObserver(m))
	if err != nil {
		return nil, fmt.Errorf("アセンブラーの初期化に失敗しました: %w", err)
	}

	srv, err := server.New(server.Deps{
		Books:       assembler,
		Regenerator: gen,
		Store:       session.NewStore(cfg.Session.TTL),
		Metrics:     m,
		Gatherer:    gatherer,
		Logger:      logger,
		Upload: server.UploadSettings{
			MaxBytes: cfg.Upload.MaxBytes,
			Image: imgutil.UploadOptions{
				CompressOverBytes: cfg.Upload.CompressOverBytes,
				JPEGQuality:       cfg.Upload.JPEGQuality,
			},
		},
	})
	if err != nil {
		return nil, err
	}
	return srv.Routes(), nil
}
