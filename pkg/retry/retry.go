package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultMaxAttempts は初回を含めた試行回数の上限です。
	DefaultMaxAttempts = 3
	// DefaultInitialDelay は 2 回目の試行前に待つ時間です。以降は倍々に伸びます。
	DefaultInitialDelay = 2 * time.Second
)

var (
	// ErrTransient は過負荷などの一時的な失敗で再試行を使い切ったことを表します。
	ErrTransient = errors.New("transient provider error")
	// ErrMalformedResponse は通信は成功したが使えるペイロードが無かったことを表します。
	// 再試行の扱いは一時的な失敗と同じです。
	ErrMalformedResponse = errors.New("malformed provider response")
	// ErrExhausted はすべての試行が失敗したことを表します。
	ErrExhausted = errors.New("retry attempts exhausted")
)

// SleepFunc は再試行前の待機です。ctx がキャンセルされたら ctx.Err() を返します。
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy は上限付き指数バックオフの設定です。ゼロ値のフィールドは既定値で補われます。
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration

	// Retryable は操作が返したエラーを再試行するかどうかを決めます。既定は IsRetryable です。
	Retryable func(err error) bool
	Sleep     SleepFunc

	// OnRetry は待機に入る直前に呼ばれます。attempt は次に行う試行の番号（1 始まり）です。
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy は 3 回・初回待機 2 秒のポリシーを返します。
func DefaultPolicy() Policy {
	return Policy{}.withDefaults()
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.Retryable == nil {
		p.Retryable = func(err error) bool { return IsRetryable(err) }
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

// Backoff は n 回目（0 始まり）の失敗の後に待つ時間 InitialDelay * 2^n を返します。
func (p Policy) Backoff(n int) time.Duration {
	p = p.withDefaults()
	return p.InitialDelay << uint(n)
}

func (p Policy) shouldRetry(err error) bool {
	return errors.Is(err, ErrMalformedResponse) || p.Retryable(err)
}

// Do は op を最大 MaxAttempts 回実行します。
//
// validate が nil でなければ成功した結果を検査し、エラーなら ErrMalformedResponse として
// 一時的な失敗と同じく再試行します。再試行対象外のエラーはその場で返し、
// 試行を使い切った場合は ErrExhausted で包んだ最後のエラーを返します。
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), validate func(T) error) (T, error) {
	p = p.withDefaults()

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := p.Backoff(attempt - 1)
			if p.OnRetry != nil {
				p.OnRetry(attempt+1, delay, lastErr)
			}
			if err := p.Sleep(ctx, delay); err != nil {
				return zero, fmt.Errorf("retry wait interrupted: %w", errors.Join(err, lastErr))
			}
		}

		result, err := op(ctx)
		if err == nil && validate != nil {
			if verr := validate(result); verr != nil {
				err = fmt.Errorf("%w: %w", ErrMalformedResponse, verr)
			}
		}
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !p.shouldRetry(err) {
			return zero, err
		}
	}

	if !errors.Is(lastErr, ErrMalformedResponse) {
		lastErr = fmt.Errorf("%w: %w", ErrTransient, lastErr)
	}
	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
