package generator

import (
	"errors"
	"fmt"
)

// Kind はどの生成処理で失敗したかを表します。
type Kind string

const (
	KindStory      Kind = "story"
	KindPage       Kind = "page"
	KindRegenerate Kind = "regenerate"
)

// ErrInvalidInput は呼び出し側の入力が不正で、プロバイダを呼ぶ前に失敗したことを表します。
var ErrInvalidInput = errors.New("invalid generation input")

// GenerationError は再試行を使い切った後、または再試行対象外のエラーで生成が失敗したことを表します。
// Err にはログ用の元のエラーが入り、画面には UserMessage だけを出します。
type GenerationError struct {
	Kind Kind
	// Page は 0 始まりのページ番号です。KindPage のときだけ意味を持ちます。
	Page int
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Kind == KindPage {
		return fmt.Sprintf("%s generation failed (page %d): %v", e.Kind, e.Page+1, e.Err)
	}
	return fmt.Sprintf("%s generation failed: %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// UserMessage は画面に表示する短いメッセージです。
func (e *GenerationError) UserMessage() string {
	switch e.Kind {
	case KindStory:
		return "物語の生成に失敗しました。もう一度お試しください。"
	case KindPage:
		return fmt.Sprintf("%dページ目の生成に失敗しました。もう一度お試しください。", e.Page+1)
	case KindRegenerate:
		return "画像の再生成に失敗しました。前の画像はそのまま残っています。"
	default:
		return "生成に失敗しました。"
	}
}
