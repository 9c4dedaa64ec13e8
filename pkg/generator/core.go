package generator

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// imageModalities は画像モデルに画像とテキストの両方を返させる指定です。
var imageModalities = []string{"IMAGE", "TEXT"}

// geminiCore はモデル呼び出しに共通する処理（クライアント取得、レート制御、計測）を受け持ちます。
type geminiCore struct {
	clients  ClientProvider
	limiter  *rate.Limiter
	observer CallObserver
}

// executeRequest は 1 回分のリクエストを送ります。再試行は呼び出し元が行います。
func (c *geminiCore) executeRequest(ctx context.Context, kind Kind, model string, parts []*genai.Part, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	client, err := c.clients.Client(ctx)
	if err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	contents := []*genai.Content{{Role: string(genai.RoleUser), Parts: parts}}
	resp, err := client.GenerateContent(ctx, model, contents, config)
	c.observer.ObserveCall(kind, err)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func storyConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"pages": {
					Type:        genai.TypeArray,
					Description: "各ページの物語の文章。ページ順に並べる。",
					Items:       &genai.Schema{Type: genai.TypeString},
				},
			},
			Required: []string{"pages"},
		},
	}
}

func imageConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ResponseModalities: imageModalities,
	}
}
