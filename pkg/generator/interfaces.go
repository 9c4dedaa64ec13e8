package generator

import (
	"context"

	"github.com/shouni/gemini-picture-book/pkg/domain"
	"github.com/shouni/gemini-picture-book/pkg/provider"
)

// ClientProvider はモデル呼び出し用のクライアントを返します。provider.Accessor がこれを満たします。
type ClientProvider interface {
	Client(ctx context.Context) (provider.ModelClient, error)
}

// StoryGenerator はテーマから各ページの文章を生成します。
type StoryGenerator interface {
	GenerateStory(ctx context.Context, theme string, pageCount int) ([]string, error)
}

// PageImageGenerator は 1 ページ分の挿絵を生成して BookPage を組み立てます。
type PageImageGenerator interface {
	GeneratePage(ctx context.Context, index int, storyText string, refs []domain.OriginalImage, style domain.StylePreset) (*domain.BookPage, error)
}

// PageRegenerator は既存ページの挿絵だけを別案で作り直し、新しい data URI を返します。
type PageRegenerator interface {
	RegeneratePage(ctx context.Context, storyText string, refs []domain.OriginalImage, style domain.StylePreset) (string, error)
}

// CallObserver はプロバイダ呼び出しと再試行の発生を受け取ります。メトリクス収集に使います。
type CallObserver interface {
	ObserveCall(kind Kind, err error)
	ObserveRetry(kind Kind)
}

type nopObserver struct{}

func (nopObserver) ObserveCall(Kind, error) {}
func (nopObserver) ObserveRetry(Kind)       {}
