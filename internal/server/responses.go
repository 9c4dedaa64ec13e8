package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/shouni/gemini-picture-book/internal/session"
	"github.com/shouni/gemini-picture-book/pkg/book"
	"github.com/shouni/gemini-picture-book/pkg/generator"
	"github.com/shouni/gemini-picture-book/pkg/imgutil"
	"github.com/shouni/gemini-picture-book/pkg/provider"
)

// errorResponse は API のエラー応答です。
type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode JSON response", "error", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, r, status, errorResponse{
		Error:     message,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// respondFailure はエラーを状態コードと画面向けの文言に変換して返します。
// 元のエラーはログにだけ残します。
func (s *Server) respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "status", status, "error", err)
	} else {
		s.logger.DebugContext(r.Context(), "request rejected", "status", status, "error", err)
	}
	respondError(w, r, status, message)
}

func classify(err error) (int, string) {
	var genErr *generator.GenerationError
	switch {
	case errors.Is(err, provider.ErrConfiguration):
		return http.StatusServiceUnavailable, provider.ErrConfiguration.Error()
	case errors.As(err, &genErr):
		return http.StatusBadGateway, genErr.UserMessage()
	case errors.Is(err, session.ErrBookNotFound):
		return http.StatusNotFound, "絵本が見つかりません。"
	case errors.Is(err, session.ErrPageNotFound):
		return http.StatusNotFound, "ページが見つかりません。"
	case errors.Is(err, imgutil.ErrUnsupportedImage):
		return http.StatusBadRequest, "画像ファイル（PNG または JPEG）を選んでください。"
	case errors.Is(err, book.ErrInvalidRequest),
		errors.Is(err, generator.ErrInvalidInput):
		return http.StatusBadRequest, "入力内容を確認してください。"
	default:
		return http.StatusInternalServerError, "予期しないエラーが発生しました。"
	}
}
