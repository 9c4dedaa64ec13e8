package generator

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/shouni/gemini-picture-book/pkg/domain"
	"github.com/shouni/gemini-picture-book/pkg/provider"
	"github.com/shouni/gemini-picture-book/pkg/retry"
	"google.golang.org/genai"
)

// --- Mocks ---

type generateCall struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

type mockModelClient struct {
	mu           sync.Mutex
	calls        []generateCall
	generateFunc func(call int, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func (m *mockModelClient) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, generateCall{model: model, contents: contents, config: config})
	n := len(m.calls)
	m.mu.Unlock()

	if m.generateFunc != nil {
		return m.generateFunc(n, model, contents, config)
	}
	return nil, nil
}

func (m *mockModelClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockModelClient) lastCall() generateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

type mockClientProvider struct {
	client provider.ModelClient
	err    error
}

func (m *mockClientProvider) Client(ctx context.Context) (provider.ModelClient, error) {
	return m.client, m.err
}

type mockObserver struct {
	mu      sync.Mutex
	calls   map[Kind]int
	failed  map[Kind]int
	retries map[Kind]int
}

func newMockObserver() *mockObserver {
	return &mockObserver{calls: map[Kind]int{}, failed: map[Kind]int{}, retries: map[Kind]int{}}
}

func (m *mockObserver) ObserveCall(kind Kind, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[kind]++
	if err != nil {
		m.failed[kind]++
	}
}

func (m *mockObserver) ObserveRetry(kind Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries[kind]++
}

// --- Helpers ---

// noWaitPolicy は待機を記録するだけで実際には待たない再試行ポリシーなのだ。
func noWaitPolicy(delays *[]time.Duration) retry.Policy {
	return retry.Policy{
		Sleep: func(_ context.Context, d time.Duration) error {
			if delays != nil {
				*delays = append(*delays, d)
			}
			return nil
		},
	}
}

func newTestGenerator(client *mockModelClient, opts ...Option) *GeminiGenerator {
	base := []Option{WithRetryPolicy(noWaitPolicy(nil))}
	g, err := NewGeminiGenerator(&mockClientProvider{client: client}, append(base, opts...)...)
	if err != nil {
		panic(err)
	}
	return g
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func imageResponse(mimeType string, data []byte) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "ここに挿絵があります"},
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
			}},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func testRefs() []domain.OriginalImage {
	return []domain.OriginalImage{
		{Base64: base64.StdEncoding.EncodeToString([]byte("bear-drawing")), MimeType: "image/png"},
		{Base64: base64.StdEncoding.EncodeToString([]byte("rabbit-drawing")), MimeType: "image/jpeg"},
	}
}
