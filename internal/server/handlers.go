package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shouni/gemini-picture-book/internal/session"
	"github.com/shouni/gemini-picture-book/pkg/book"
	"github.com/shouni/gemini-picture-book/pkg/domain"
	"github.com/shouni/gemini-picture-book/pkg/imgutil"
)

type styleResponse struct {
	ID    domain.StylePreset `json:"id"`
	Label string             `json:"label"`
}

// createBookForm は POST /api/books のフォーム値です。
type createBookForm struct {
	Theme     string `validate:"required"`
	Style     string `validate:"required"`
	PageCount int    `validate:"gt=0"`
	Images    int    `validate:"gt=0"`
}

func (s *Server) handleListStyles(w http.ResponseWriter, r *http.Request) {
	styles := domain.AllStyles()
	out := make([]styleResponse, 0, len(styles))
	for _, st := range styles {
		out = append(out, styleResponse{ID: st, Label: st.Label()})
	}
	respondJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.upload.MaxBytes)
	if err := r.ParseMultipartForm(s.upload.MaxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, http.StatusRequestEntityTooLarge, "アップロードできるサイズを超えています。")
			return
		}
		respondError(w, r, http.StatusBadRequest, "フォームの形式が正しくありません。")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	files := r.MultipartForm.File["images"]
	pageCount, _ := strconv.Atoi(r.FormValue("pageCount"))
	form := createBookForm{
		Theme:     strings.TrimSpace(r.FormValue("theme")),
		Style:     r.FormValue("style"),
		PageCount: pageCount,
		Images:    len(files),
	}
	if err := s.validate.Struct(form); err != nil {
		respondError(w, r, http.StatusBadRequest, invalidFieldMessage(err))
		return
	}

	style, err := domain.ParseStylePreset(form.Style)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "選べない画風です。")
		return
	}

	refs, err := s.readReferences(files)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}

	pages, err := s.books.GeneratePictureBook(r.Context(), book.Request{
		Theme:     form.Theme,
		Refs:      refs,
		Style:     style,
		PageCount: form.PageCount,
	})
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}

	saved := s.store.Save(form.Theme, style, pages)
	s.logger.InfoContext(r.Context(), "絵本を保存しました", "book_id", saved.ID, "pages", len(saved.Pages))
	respondJSON(w, r, http.StatusCreated, saved)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.Get(chi.URLParam(r, "bookID"))
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, b)
}

// handleRegeneratePage は 1 ページの挿絵だけを作り直します。
// 失敗しても保存済みの画像はそのまま残ります。
func (s *Server) handleRegeneratePage(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "bookID")
	pageID, err := strconv.Atoi(chi.URLParam(r, "pageID"))
	if err != nil {
		s.respondFailure(w, r, session.ErrPageNotFound)
		return
	}

	key := fmt.Sprintf("%s/%d", bookID, pageID)
	// 最初のリクエストが切断されても、相乗りしている他のリクエストのために処理は続ける。
	ctx := context.WithoutCancel(r.Context())
	v, err, shared := s.regenerations.Do(key, func() (any, error) {
		return s.regenerate(ctx, bookID, pageID)
	})
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	if shared {
		s.logger.InfoContext(r.Context(), "進行中の再生成の結果を共有しました", "book_id", bookID, "page_id", pageID)
	}
	respondJSON(w, r, http.StatusOK, v.(domain.BookPage))
}

func (s *Server) regenerate(ctx context.Context, bookID string, pageID int) (domain.BookPage, error) {
	page, b, err := s.store.Page(bookID, pageID)
	if err != nil {
		return domain.BookPage{}, err
	}

	imageURL, err := s.regenerator.RegeneratePage(ctx, page.Text, page.OriginalImages, b.Style)
	if err != nil {
		return domain.BookPage{}, err
	}
	return s.store.UpdatePageImage(bookID, pageID, imageURL)
}

// readReferences はアップロードされた画像をフォームの順番どおりに参照画像へ変換します。
func (s *Server) readReferences(files []*multipart.FileHeader) ([]domain.OriginalImage, error) {
	refs := make([]domain.OriginalImage, 0, len(files))
	for _, fh := range files {
		data, err := readFile(fh)
		if err != nil {
			return nil, err
		}
		img, err := imgutil.ToOriginalImage(data, s.upload.Image)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fh.Filename, err)
		}
		refs = append(refs, img)
	}
	return refs, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func invalidFieldMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "入力内容を確認してください。"
	}
	switch verrs[0].Field() {
	case "Theme":
		return "テーマを入力してください。"
	case "Style":
		return "画風を選んでください。"
	case "PageCount":
		return "ページ数は1以上を指定してください。"
	case "Images":
		return "キャラクターの絵を1枚以上選んでください。"
	default:
		return "入力内容を確認してください。"
	}
}
