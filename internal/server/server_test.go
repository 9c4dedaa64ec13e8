package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shouni/gemini-picture-book/internal/metrics"
	"github.com/shouni/gemini-picture-book/internal/session"
	"github.com/shouni/gemini-picture-book/pkg/book"
	"github.com/shouni/gemini-picture-book/pkg/domain"
	"github.com/shouni/gemini-picture-book/pkg/generator"
	"github.com/shouni/gemini-picture-book/pkg/imgutil"
	"github.com/shouni/gemini-picture-book/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type mockBookGenerator struct {
	generateFunc func(ctx context.Context, req book.Request) ([]domain.BookPage, error)
}

func (m *mockBookGenerator) GeneratePictureBook(ctx context.Context, req book.Request) ([]domain.BookPage, error) {
	return m.generateFunc(ctx, req)
}

type mockRegenerator struct {
	calls          atomic.Int32
	regenerateFunc func(ctx context.Context, storyText string, refs []domain.OriginalImage, style domain.StylePreset) (string, error)
}

func (m *mockRegenerator) RegeneratePage(ctx context.Context, storyText string, refs []domain.OriginalImage, style domain.StylePreset) (string, error) {
	m.calls.Add(1)
	return m.regenerateFunc(ctx, storyText, refs, style)
}

// --- Helpers ---

func pagesFor(req book.Request) []domain.BookPage {
	pages := make([]domain.BookPage, req.PageCount)
	for i := range pages {
		pages[i] = domain.BookPage{
			ID:             i,
			Text:           "ページの文章",
			ImageURL:       "data:image/png;base64,b2xk",
			OriginalImages: req.Refs,
		}
	}
	return pages
}

func newTestServer(t *testing.T, books BookGenerator, regen *mockRegenerator) (*Server, *session.Store) {
	t.Helper()
	if books == nil {
		books = &mockBookGenerator{generateFunc: func(_ context.Context, req book.Request) ([]domain.BookPage, error) {
			return pagesFor(req), nil
		}}
	}
	if regen == nil {
		regen = &mockRegenerator{regenerateFunc: func(context.Context, string, []domain.OriginalImage, domain.StylePreset) (string, error) {
			return "data:image/png;base64,bmV3", nil
		}}
	}
	store := session.NewStore(time.Hour)
	reg := prometheus.NewRegistry()
	srv, err := New(Deps{
		Books:       books,
		Regenerator: regen,
		Store:       store,
		Metrics:     metrics.New(reg),
		Gatherer:    reg,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Upload:      UploadSettings{MaxBytes: 1 << 20, Image: imgutil.DefaultUploadOptions()},
	})
	require.NoError(t, err)
	return srv, store
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{0, 128, 255, 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, fields map[string]string, images ...[]byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for i, data := range images {
		fw, err := mw.CreateFormFile("images", "chara"+string(rune('a'+i))+".png")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/books", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out.Error
}

// --- Tests ---

func TestNew(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestHandleListStyles(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	rec := httptest.NewRecorder()

	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/styles", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var styles []styleResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&styles))
	require.Len(t, styles, len(domain.AllStyles()))
	assert.Equal(t, domain.StyleWatercolor, styles[0].ID)
	assert.Equal(t, "水彩画", styles[0].Label)
}

func TestHandleCreateBook(t *testing.T) {
	valid := map[string]string{"theme": "くまのぼうけん", "style": "crayon", "pageCount": "4"}

	t.Run("正常系: 絵本を生成して保存する", func(t *testing.T) {
		var got book.Request
		books := &mockBookGenerator{generateFunc: func(_ context.Context, req book.Request) ([]domain.BookPage, error) {
			got = req
			return pagesFor(req), nil
		}}
		srv, store := newTestServer(t, books, nil)
		rec := httptest.NewRecorder()

		srv.Routes().ServeHTTP(rec, multipartRequest(t, valid, pngBytes(t), pngBytes(t)))

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "くまのぼうけん", got.Theme)
		assert.Equal(t, domain.StyleCrayon, got.Style)
		assert.Equal(t, 4, got.PageCount)
		require.Len(t, got.Refs, 2)
		assert.Equal(t, "image/png", got.Refs[0].MimeType)

		var saved session.Book
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&saved))
		assert.Len(t, saved.Pages, 4)
		stored, err := store.Get(saved.ID)
		require.NoError(t, err)
		assert.Equal(t, saved.Pages[3].ImageURL, stored.Pages[3].ImageURL)
	})

	t.Run("異常系: 入力が足りない", func(t *testing.T) {
		cases := []struct {
			name   string
			fields map[string]string
			images int
			want   string
		}{
			{"テーマが空", map[string]string{"theme": " ", "style": "crayon", "pageCount": "4"}, 1, "テーマ"},
			{"ページ数が0", map[string]string{"theme": "t", "style": "crayon", "pageCount": "0"}, 1, "ページ数"},
			{"画像が無い", valid, 0, "キャラクターの絵"},
			{"未知の画風", map[string]string{"theme": "t", "style": "oil", "pageCount": "4"}, 1, "画風"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				srv, _ := newTestServer(t, nil, nil)
				images := make([][]byte, tc.images)
				for i := range images {
					images[i] = pngBytes(t)
				}
				rec := httptest.NewRecorder()

				srv.Routes().ServeHTTP(rec, multipartRequest(t, tc.fields, images...))

				assert.Equal(t, http.StatusBadRequest, rec.Code)
				assert.Contains(t, decodeError(t, rec), tc.want)
			})
		}
	})

	t.Run("異常系: 画像以外のファイル", func(t *testing.T) {
		srv, _ := newTestServer(t, nil, nil)
		rec := httptest.NewRecorder()

		srv.Routes().ServeHTTP(rec, multipartRequest(t, valid, []byte("just some text")))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("異常系: 生成に失敗したら502と画面向けの文言だけを返す", func(t *testing.T) {
		books := &mockBookGenerator{generateFunc: func(context.Context, book.Request) ([]domain.BookPage, error) {
			return nil, &generator.GenerationError{Kind: generator.KindPage, Page: 2, Err: errors.New("upstream said: secret detail")}
		}}
		srv, _ := newTestServer(t, books, nil)
		rec := httptest.NewRecorder()

		srv.Routes().ServeHTTP(rec, multipartRequest(t, valid, pngBytes(t)))

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		msg := decodeError(t, rec)
		assert.Contains(t, msg, "3ページ目")
		assert.NotContains(t, msg, "secret")
	})

	t.Run("異常系: APIキー未設定は503", func(t *testing.T) {
		books := &mockBookGenerator{generateFunc: func(context.Context, book.Request) ([]domain.BookPage, error) {
			return nil, provider.ErrConfiguration
		}}
		srv, _ := newTestServer(t, books, nil)
		rec := httptest.NewRecorder()

		srv.Routes().ServeHTTP(rec, multipartRequest(t, valid, pngBytes(t)))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, provider.ErrConfiguration.Error(), decodeError(t, rec))
	})

	t.Run("異常系: multipartでないリクエスト", func(t *testing.T) {
		srv, _ := newTestServer(t, nil, nil)
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/books", strings.NewReader(`{"theme":"x"}`))
		req.Header.Set("Content-Type", "application/json")

		srv.Routes().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleGetBook(t *testing.T) {
	srv, store := newTestServer(t, nil, nil)
	saved := store.Save("t", domain.StyleManga, pagesFor(book.Request{PageCount: 2}))

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/books/"+saved.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/books/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRegeneratePage(t *testing.T) {
	regenURL := func(id string, page string) string {
		return "/api/books/" + id + "/pages/" + page + "/regenerate"
	}

	t.Run("正常系: 新しい画像を差し込み、他のページは変えない", func(t *testing.T) {
		var gotText string
		var gotStyle domain.StylePreset
		regen := &mockRegenerator{regenerateFunc: func(_ context.Context, text string, _ []domain.OriginalImage, style domain.StylePreset) (string, error) {
			gotText, gotStyle = text, style
			return "data:image/png;base64,bmV3", nil
		}}
		srv, store := newTestServer(t, nil, regen)
		pages := pagesFor(book.Request{PageCount: 3})
		pages[1].Text = "二ページ目"
		saved := store.Save("t", domain.StylePixelArt, pages)
		rec := httptest.NewRecorder()

		srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, regenURL(saved.ID, "1"), nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "二ページ目", gotText)
		assert.Equal(t, domain.StylePixelArt, gotStyle)

		var page domain.BookPage
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
		assert.Equal(t, 1, page.ID)
		assert.Equal(t, "data:image/png;base64,bmV3", page.ImageURL)

		stored, err := store.Get(saved.ID)
		require.NoError(t, err)
		assert.Equal(t, "data:image/png;base64,bmV3", stored.Pages[1].ImageURL)
		assert.Equal(t, "data:image/png;base64,b2xk", stored.Pages[0].ImageURL)
		assert.Equal(t, "二ページ目", stored.Pages[1].Text)
	})

	t.Run("異常系: 失敗しても前の画像を残す", func(t *testing.T) {
		regen := &mockRegenerator{regenerateFunc: func(context.Context, string, []domain.OriginalImage, domain.StylePreset) (string, error) {
			return "", &generator.GenerationError{Kind: generator.KindRegenerate, Err: errors.New("overloaded")}
		}}
		srv, store := newTestServer(t, nil, regen)
		saved := store.Save("t", domain.StyleManga, pagesFor(book.Request{PageCount: 2}))
		rec := httptest.NewRecorder()

		srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, regenURL(saved.ID, "0"), nil))

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, decodeError(t, rec), "前の画像はそのまま")
		stored, err := store.Get(saved.ID)
		require.NoError(t, err)
		assert.Equal(t, "data:image/png;base64,b2xk", stored.Pages[0].ImageURL)
	})

	t.Run("異常系: 存在しないページ", func(t *testing.T) {
		srv, store := newTestServer(t, nil, nil)
		saved := store.Save("t", domain.StyleManga, pagesFor(book.Request{PageCount: 2}))

		for _, page := range []string{"7", "abc"} {
			rec := httptest.NewRecorder()
			srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, regenURL(saved.ID, page), nil))
			assert.Equal(t, http.StatusNotFound, rec.Code, page)
		}
	})

	t.Run("同じページへの同時リクエストは1回の呼び出しを共有する", func(t *testing.T) {
		release := make(chan struct{})
		started := make(chan struct{}, 1)
		regen := &mockRegenerator{regenerateFunc: func(context.Context, string, []domain.OriginalImage, domain.StylePreset) (string, error) {
			started <- struct{}{}
			<-release
			return "data:image/png;base64,c2hhcmVk", nil
		}}
		srv, store := newTestServer(t, nil, regen)
		saved := store.Save("t", domain.StyleManga, pagesFor(book.Request{PageCount: 1}))
		handler := srv.Routes()

		var wg sync.WaitGroup
		codes := make([]int, 2)
		do := func(i int) {
			defer wg.Done()
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, regenURL(saved.ID, "0"), nil))
			codes[i] = rec.Code
		}

		wg.Add(1)
		go do(0)
		<-started
		wg.Add(1)
		go do(1)
		// 2 つ目のリクエストが相乗りするまで少し待つ
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, []int{http.StatusOK, http.StatusOK}, codes)
		assert.Equal(t, int32(1), regen.calls.Load())
	})
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	handler := srv.Routes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `picture_book_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}
