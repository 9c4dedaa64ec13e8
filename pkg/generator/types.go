package generator

import (
	"log/slog"

	"github.com/shouni/gemini-picture-book/pkg/retry"
	"golang.org/x/time/rate"
)

const (
	DefaultStoryModel = "gemini-2.5-flash"
	DefaultImageModel = "gemini-2.5-flash-image"

	tracerName = "github.com/shouni/gemini-picture-book/pkg/generator"
)

// storyResponse は物語生成でモデルに返させる JSON の形です。
type storyResponse struct {
	Pages []string `json:"pages"`
}

// Option は GeminiGenerator の設定を変更します。
type Option func(*GeminiGenerator)

// WithModels は物語用と画像用のモデル名を指定します。空文字は既定値のままにします。
func WithModels(storyModel, imageModel string) Option {
	return func(g *GeminiGenerator) {
		if storyModel != "" {
			g.storyModel = storyModel
		}
		if imageModel != "" {
			g.imageModel = imageModel
		}
	}
}

// WithRetryPolicy は再試行ポリシーを差し替えます。OnRetry は内部で上書きされます。
func WithRetryPolicy(p retry.Policy) Option {
	return func(g *GeminiGenerator) {
		g.policy = p
	}
}

// WithRateLimiter はプロバイダ呼び出しの前に待つリミッターを設定します。
func WithRateLimiter(l *rate.Limiter) Option {
	return func(g *GeminiGenerator) {
		g.core.limiter = l
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(g *GeminiGenerator) {
		if l != nil {
			g.logger = l
		}
	}
}

func WithCallObserver(o CallObserver) Option {
	return func(g *GeminiGenerator) {
		if o != nil {
			g.core.observer = o
		}
	}
}
