package book

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouni/gemini-picture-book/pkg/domain"
	"github.com/shouni/gemini-picture-book/pkg/generator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/shouni/gemini-picture-book/pkg/book"

// ErrInvalidRequest は組み立てを始める前に入力が不正と分かったことを表します。
var ErrInvalidRequest = errors.New("invalid picture book request")

// Request は 1 冊分の生成リクエストです。
type Request struct {
	Theme     string
	Refs      []domain.OriginalImage
	Style     domain.StylePreset
	PageCount int
}

// Assembler は物語の生成とページごとの挿絵生成を順番に行い、1 冊の絵本を組み立てます。
type Assembler struct {
	story    generator.StoryGenerator
	pages    generator.PageImageGenerator
	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer
	now      func() time.Time
}

// Option は Assembler の設定を変更します。
type Option func(*Assembler)

func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithObserver は進捗の通知先を設定します。
func WithObserver(o Observer) Option {
	return func(a *Assembler) {
		if o != nil {
			a.observer = o
		}
	}
}

// NewAssembler は Assembler を作ります。
func NewAssembler(story generator.StoryGenerator, pages generator.PageImageGenerator, opts ...Option) (*Assembler, error) {
	if story == nil || pages == nil {
		return nil, fmt.Errorf("story and page generators are required")
	}
	a := &Assembler{
		story:    story,
		pages:    pages,
		logger:   slog.Default(),
		observer: nopObserver{},
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// GeneratePictureBook は絵本を 1 冊組み立てます。
//
// ページは物語が返した順に 1 枚ずつ生成し、どこかで失敗したら途中までのページは捨ててエラーを返します。
// 成功時のページ数は物語生成が返したページ数で、PageCount と一致するとは限りません。
func (a *Assembler) GeneratePictureBook(ctx context.Context, req Request) ([]domain.BookPage, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	ctx, span := a.tracer.Start(ctx, "book.GeneratePictureBook", trace.WithAttributes(
		attribute.String("book.style", string(req.Style)),
		attribute.Int("book.page_count", req.PageCount),
		attribute.Int("book.reference_count", len(req.Refs)),
	))
	defer span.End()

	start := a.now()
	a.notify(State{Phase: PhaseGeneratingStory})
	a.logger.InfoContext(ctx, "絵本の生成を開始します", "style", req.Style, "page_count", req.PageCount, "ref_count", len(req.Refs))

	texts, err := a.story.GenerateStory(ctx, req.Theme, req.PageCount)
	if err != nil {
		return nil, a.failed(ctx, span, start, err)
	}

	book := make([]domain.BookPage, 0, len(texts))
	for i, text := range texts {
		a.notify(State{Phase: PhaseGeneratingPage, Page: i, Total: len(texts)})

		page, err := a.pages.GeneratePage(ctx, i, text, req.Refs, req.Style)
		if err != nil {
			// 途中までのページは返さない。
			return nil, a.failed(ctx, span, start, err)
		}
		book = append(book, *page)
		a.logger.InfoContext(ctx, "ページを生成しました", "page", i+1, "total", len(texts))
	}

	elapsed := a.now().Sub(start)
	span.SetAttributes(attribute.Int("book.pages_generated", len(book)))
	a.notify(State{Phase: PhaseComplete, Total: len(book), Elapsed: elapsed})
	a.logger.InfoContext(ctx, "絵本の生成が完了しました", "pages", len(book), "elapsed", elapsed)
	return book, nil
}

func (a *Assembler) failed(ctx context.Context, span trace.Span, start time.Time, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "picture book generation failed")
	a.notify(State{Phase: PhaseFailed, Err: err, Elapsed: a.now().Sub(start)})
	a.logger.ErrorContext(ctx, "絵本の生成を中断しました", "error", err)
	return err
}

func (a *Assembler) notify(s State) {
	a.observer.OnStateChange(s)
}

func validate(req Request) error {
	switch {
	case req.PageCount <= 0:
		return fmt.Errorf("%w: page count must be positive, got %d", ErrInvalidRequest, req.PageCount)
	case !req.Style.Valid():
		return fmt.Errorf("%w: unknown style %q", ErrInvalidRequest, req.Style)
	}
	return nil
}
