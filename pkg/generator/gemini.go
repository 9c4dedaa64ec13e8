package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouni/gemini-picture-book/pkg/domain"
	"github.com/shouni/gemini-picture-book/pkg/provider"
	"github.com/shouni/gemini-picture-book/pkg/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

// GeminiGenerator は物語生成、ページ画像生成、ページ再生成をまとめて担当するジェネレーターです。
// 3 つの処理はどれも同じ再試行ポリシーを通してプロバイダを呼びます。
type GeminiGenerator struct {
	core       *geminiCore
	storyModel string
	imageModel string
	policy     retry.Policy
	logger     *slog.Logger
	tracer     trace.Tracer
}

var (
	_ StoryGenerator     = (*GeminiGenerator)(nil)
	_ PageImageGenerator = (*GeminiGenerator)(nil)
	_ PageRegenerator    = (*GeminiGenerator)(nil)
)

// NewGeminiGenerator は GeminiGenerator を初期化します。
func NewGeminiGenerator(clients ClientProvider, opts ...Option) (*GeminiGenerator, error) {
	if clients == nil {
		return nil, fmt.Errorf("clients (ClientProvider) is required")
	}

	g := &GeminiGenerator{
		core: &geminiCore{
			clients:  clients,
			observer: nopObserver{},
		},
		storyModel: DefaultStoryModel,
		imageModel: DefaultImageModel,
		policy:     retry.DefaultPolicy(),
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// GenerateStory はテーマとページ数から、ページ順に並んだ文章のリストを生成します。
// 返るページ数がリクエストと一致することは保証しません。
func (g *GeminiGenerator) GenerateStory(ctx context.Context, theme string, pageCount int) ([]string, error) {
	ctx, span := g.tracer.Start(ctx, "generator.GenerateStory", trace.WithAttributes(
		attribute.Int("book.page_count", pageCount),
		attribute.Int("book.theme_length", len(theme)),
	))
	defer span.End()

	if pageCount <= 0 {
		return nil, g.fail(ctx, span, KindStory, 0, fmt.Errorf("%w: page count must be positive, got %d", ErrInvalidInput, pageCount))
	}

	prompt, err := buildStoryPrompt(theme, pageCount)
	if err != nil {
		return nil, g.fail(ctx, span, KindStory, 0, err)
	}
	parts := []*genai.Part{{Text: prompt}}

	g.logger.InfoContext(ctx, "物語の生成をリクエストします", "model", g.storyModel, "page_count", pageCount)

	pages, err := retry.Do(ctx, g.policyFor(ctx, KindStory), func(ctx context.Context) ([]string, error) {
		resp, err := g.core.executeRequest(ctx, KindStory, g.storyModel, parts, storyConfig())
		if err != nil {
			return nil, err
		}
		text, err := responseText(resp)
		if err != nil {
			return nil, err
		}
		return parseStoryPages(text)
	}, validateStoryPages)
	if err != nil {
		return nil, g.fail(ctx, span, KindStory, 0, err)
	}

	if len(pages) != pageCount {
		g.logger.WarnContext(ctx, "要求と異なるページ数の物語が返りました", "requested", pageCount, "returned", len(pages))
	}
	span.SetAttributes(attribute.Int("book.pages_returned", len(pages)))
	g.logger.InfoContext(ctx, "物語の生成が完了しました", "pages", len(pages))
	return pages, nil
}

// GeneratePage は 1 ページ分の挿絵を生成し、BookPage を組み立てます。
// refs はそのままページに共有参照として持たせます。
func (g *GeminiGenerator) GeneratePage(ctx context.Context, index int, storyText string, refs []domain.OriginalImage, style domain.StylePreset) (*domain.BookPage, error) {
	ctx, span := g.tracer.Start(ctx, "generator.GeneratePage", trace.WithAttributes(
		attribute.Int("page.index", index),
		attribute.String("page.style", string(style)),
		attribute.Int("page.reference_count", len(refs)),
	))
	defer span.End()

	img, err := g.generateImage(ctx, KindPage, storyText, refs, style, false)
	if err != nil {
		return nil, g.fail(ctx, span, KindPage, index, err)
	}

	return &domain.BookPage{
		ID:             index,
		Text:           storyText,
		ImageURL:       img.DataURI(),
		OriginalImages: refs,
	}, nil
}

// RegeneratePage は 1 ページの挿絵を前回とは別の案で作り直し、新しい data URI を返します。
// 物語の文章や他のページには触れません。
func (g *GeminiGenerator) RegeneratePage(ctx context.Context, storyText string, refs []domain.OriginalImage, style domain.StylePreset) (string, error) {
	ctx, span := g.tracer.Start(ctx, "generator.RegeneratePage", trace.WithAttributes(
		attribute.String("page.style", string(style)),
		attribute.Int("page.reference_count", len(refs)),
	))
	defer span.End()

	img, err := g.generateImage(ctx, KindRegenerate, storyText, refs, style, true)
	if err != nil {
		return "", g.fail(ctx, span, KindRegenerate, 0, err)
	}
	return img.DataURI(), nil
}

// generateImage は参照画像とプロンプトを送り、画像パーツが得られるまで再試行します。
func (g *GeminiGenerator) generateImage(ctx context.Context, kind Kind, storyText string, refs []domain.OriginalImage, style domain.StylePreset, variation bool) (*domain.ImageResponse, error) {
	prompt, err := buildPagePrompt(storyText, style, len(refs), variation)
	if err != nil {
		return nil, err
	}

	parts, err := referenceParts(refs)
	if err != nil {
		return nil, err
	}
	parts = append(parts, &genai.Part{Text: prompt})

	g.logger.InfoContext(ctx, "画像生成をリクエストします", "kind", kind, "model", g.imageModel, "ref_count", len(refs), "style", style)

	return retry.Do(ctx, g.policyFor(ctx, kind), func(ctx context.Context) (*domain.ImageResponse, error) {
		resp, err := g.core.executeRequest(ctx, kind, g.imageModel, parts, imageConfig())
		if err != nil {
			return nil, err
		}
		return parseToResponse(resp)
	}, validateImage)
}

// policyFor は設定済みのポリシーに、設定エラーとキャンセルを再試行しない判定とログ出力を足します。
func (g *GeminiGenerator) policyFor(ctx context.Context, kind Kind) retry.Policy {
	p := g.policy
	base := p.Retryable
	if base == nil {
		base = func(err error) bool { return retry.IsRetryable(err) }
	}
	p.Retryable = func(err error) bool {
		if errors.Is(err, provider.ErrConfiguration) ||
			errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		return base(err)
	}
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		g.logger.WarnContext(ctx, "一時的なエラーのため再試行します",
			"kind", kind,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		g.core.observer.ObserveRetry(kind)
	}
	return p
}

// fail はエラーを記録し、呼び出し元に渡す最終エラーに変換します。
// 設定エラーはそのまま返し、それ以外は GenerationError で包みます。
func (g *GeminiGenerator) fail(ctx context.Context, span trace.Span, kind Kind, page int, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind)+" generation failed")

	if errors.Is(err, provider.ErrConfiguration) {
		g.logger.ErrorContext(ctx, "APIキーが設定されていないため生成できません", "kind", kind)
		return err
	}

	g.logger.ErrorContext(ctx, "生成に失敗しました", "kind", kind, "page", page, "error", err)
	return &GenerationError{Kind: kind, Page: page, Err: err}
}
