package book

import (
	"fmt"
	"time"
)

// Phase は絵本の組み立てがどの段階にあるかを表します。
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseGeneratingStory
	PhaseGeneratingPage
	PhaseComplete
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseGeneratingStory:
		return "generating_story"
	case PhaseGeneratingPage:
		return "generating_page"
	case PhaseComplete:
		return "complete"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State は進捗の通知内容です。Page と Total は PhaseGeneratingPage のときだけ意味を持ちます。
type State struct {
	Phase Phase
	// Page は 0 始まりのページ番号です。
	Page  int
	Total int
	Err   error
	// Elapsed は開始からの経過時間です。PhaseComplete と PhaseFailed で設定されます。
	Elapsed time.Duration
}

// Observer は状態が変わるたびに呼ばれます。呼び出しは生成と同じゴルーチンで同期的に行われます。
type Observer interface {
	OnStateChange(State)
}

// ObserverFunc は関数を Observer として使うためのアダプターです。
type ObserverFunc func(State)

func (f ObserverFunc) OnStateChange(s State) { f(s) }

type nopObserver struct{}

func (nopObserver) OnStateChange(State) {}
