package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shouni/gemini-picture-book/pkg/domain"
	"github.com/shouni/gemini-picture-book/pkg/retry"
	"google.golang.org/genai"
)

// ErrNoImageData はレスポンスに画像パーツが無かったことを表します。
// 過負荷のモデルはテキストだけを返すことがあるため、再試行の対象です。
var ErrNoImageData = errors.New("no image data in response")

// referenceParts は参照画像を InlineData パーツに変換します。順番は入力のままです。
func referenceParts(refs []domain.OriginalImage) ([]*genai.Part, error) {
	parts := make([]*genai.Part, 0, len(refs))
	for i, ref := range refs {
		data, err := ref.Bytes()
		if err != nil {
			return nil, fmt.Errorf("%w: reference image %d is not valid base64: %v", ErrInvalidInput, i, err)
		}
		parts = append(parts, toPart(data, ref.MimeType))
	}
	return parts, nil
}

// toPart はバイト列を genai.Part (InlineData) に変換します。MIME タイプは渡されたものをそのまま使います。
func toPart(data []byte, mimeType string) *genai.Part {
	return &genai.Part{
		InlineData: &genai.Blob{
			MIMEType: mimeType,
			Data:     data,
		},
	}
}

// parseToResponse は最初の候補から最初の画像パーツを取り出します。
func parseToResponse(resp *genai.GenerateContentResponse) (*domain.ImageResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: %w: no candidates", retry.ErrMalformedResponse, ErrNoImageData)
	}

	// 現在の仕様では、最初の候補 (Candidate) のみを利用する。
	candidate := resp.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mimeType := part.InlineData.MIMEType
			if mimeType == "" {
				mimeType = http.DetectContentType(part.InlineData.Data)
			}
			return &domain.ImageResponse{
				Data:     part.InlineData.Data,
				MimeType: mimeType,
			}, nil
		}
	}

	if candidate.FinishReason != genai.FinishReasonUnspecified && candidate.FinishReason != genai.FinishReasonStop {
		return nil, fmt.Errorf("%w: %w (finish reason: %s)", retry.ErrMalformedResponse, ErrNoImageData, candidate.FinishReason)
	}
	return nil, fmt.Errorf("%w: %w", retry.ErrMalformedResponse, ErrNoImageData)
}

// responseText は最初の候補のテキストパーツを連結します。思考過程のパーツは除きます。
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: empty response", retry.ErrMalformedResponse)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: no text in response", retry.ErrMalformedResponse)
	}
	return text, nil
}

// parseStoryPages はモデルが返した JSON テキストを読みます。
func parseStoryPages(text string) ([]string, error) {
	var out storyResponse
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("%w: failed to parse story JSON: %v", retry.ErrMalformedResponse, err)
	}
	return out.Pages, nil
}

func validateStoryPages(pages []string) error {
	if len(pages) == 0 {
		return errors.New("pages array is empty or missing")
	}
	return nil
}

func validateImage(img *domain.ImageResponse) error {
	if img == nil || len(img.Data) == 0 {
		return ErrNoImageData
	}
	return nil
}
