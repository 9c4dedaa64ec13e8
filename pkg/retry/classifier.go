package retry

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"google.golang.org/genai"
)

const overloadedCode = http.StatusServiceUnavailable

// IsRetryable は失敗が「サービス過負荷」（HTTP 503 相当）を表し、再試行する価値があるかを判定します。
//
// failure の型は問いません。判定に使うのは message 文字列だけで、取り出せるのは
// error（Error() の結果）と "message" キーに文字列を持つ map の 2 通りです。
// message が JSON オブジェクトとして読めれば error.code が 503 かどうかで判定し、
// 読めなければ "503" か "overloaded" を含むかで判定します。
func IsRetryable(failure any) bool {
	if err, ok := failure.(error); ok && isOverloadedAPIError(err) {
		return true
	}

	msg, ok := messageOf(failure)
	if !ok {
		return false
	}

	if gjson.Valid(msg) && gjson.Parse(msg).IsObject() {
		return hasOverloadedCode(gjson.Get(msg, "error.code"))
	}
	return strings.Contains(msg, "503") || strings.Contains(msg, "overloaded")
}

func messageOf(failure any) (string, bool) {
	switch f := failure.(type) {
	case error:
		return f.Error(), true
	case map[string]any:
		msg, ok := f["message"].(string)
		return msg, ok
	default:
		return "", false
	}
}

func hasOverloadedCode(code gjson.Result) bool {
	switch code.Type {
	case gjson.Number:
		return code.Num == overloadedCode
	case gjson.String:
		return strings.TrimSpace(code.Str) == "503"
	default:
		return false
	}
}

// isOverloadedAPIError は SDK が返す構造化エラーのステータスコードを見ます。
func isOverloadedAPIError(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == overloadedCode {
		return true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil && apiErrPtr.Code == overloadedCode {
		return true
	}
	return false
}
