package retry

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name    string
		failure any
		want    bool
	}{
		{"JSONのerror.codeが数値の503", map[string]any{"message": `{"error":{"code":503}}`}, true},
		{"JSONのerror.codeが文字列の503", map[string]any{"message": `{"error":{"code":"503","status":"UNAVAILABLE"}}`}, true},
		{"JSONだが503以外のコード", map[string]any{"message": `{"error":{"code":400}}`}, false},
		{"プレーンテキストのoverloaded", map[string]any{"message": "Service overloaded, retry later"}, true},
		{"プレーンテキストの503", map[string]any{"message": "upstream returned 503"}, true},
		{"大文字のOverloadedは対象外", map[string]any{"message": "Model Overloaded"}, false},
		{"無関係なメッセージ", map[string]any{"message": "invalid argument"}, false},
		{"messageが文字列でない", map[string]any{"message": 123}, false},
		{"messageが無い", map[string]any{"code": 503}, false},
		{"オブジェクトでない値", 42, false},
		{"文字列そのもの", "overloaded", false},
		{"nil", nil, false},
		{"errorのメッセージがJSON", errors.New(`{"error":{"code":503,"message":"The model is overloaded."}}`), true},
		{"errorのメッセージがテキスト", errors.New("Service overloaded, retry later"), true},
		{"ラップされたerror", fmt.Errorf("call failed: %w", errors.New("503 Service Unavailable")), true},
		{"無関係なerror", errors.New("invalid argument"), false},
		{"SDKの503 APIError", genai.APIError{Code: 503, Message: "unavailable", Status: "UNAVAILABLE"}, true},
		{"ラップされたSDKの503 APIError", fmt.Errorf("generate: %w", genai.APIError{Code: 503}), true},
		{"SDKの400 APIError", genai.APIError{Code: 400, Message: "bad request", Status: "INVALID_ARGUMENT"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.failure))
		})
	}
}
