// Package provider は生成 AI プロバイダ（Gemini）へのクライアントを遅延生成して共有します。
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// ErrConfiguration は認証情報が設定されていないことを表します。再試行はしません。
var ErrConfiguration = errors.New("APIキーが設定されていません")

// ModelClient は generator が使うモデル呼び出しの窓口です。*genai.Models がこれを満たします。
type ModelClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// KeySource は呼び出し時点の API キーを返します。空文字は未設定として扱います。
type KeySource func() string

// ClientFactory は API キーから ModelClient を作ります。ネットワーク通信は行いません。
type ClientFactory func(ctx context.Context, apiKey string) (ModelClient, error)

// Accessor は ModelClient を最初の利用時に 1 度だけ作り、以降は同じものを返します。
// キーの検証も最初の利用時まで遅らせるので、キー未設定でもアプリ自体は起動できます。
type Accessor struct {
	keySource KeySource
	factory   ClientFactory

	mu     sync.Mutex
	client ModelClient
}

// NewAccessor は Accessor を作ります。factory が nil なら genai のクライアントを使います。
func NewAccessor(keySource KeySource, factory ClientFactory) *Accessor {
	if factory == nil {
		factory = NewGenAIClient
	}
	return &Accessor{
		keySource: keySource,
		factory:   factory,
	}
}

// Client はキャッシュ済みのクライアントを返します。未作成ならキーを読んで作成します。
func (a *Accessor) Client(ctx context.Context) (ModelClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}

	var apiKey string
	if a.keySource != nil {
		apiKey = a.keySource()
	}
	if apiKey == "" {
		return nil, ErrConfiguration
	}

	client, err := a.factory(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("%w: クライアントの初期化に失敗しました: %v", ErrConfiguration, err)
	}
	a.client = client
	return client, nil
}

// NewGenAIClient は Gemini API バックエンドの genai クライアントを作ります。
func NewGenAIClient(ctx context.Context, apiKey string) (ModelClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return client.Models, nil
}
