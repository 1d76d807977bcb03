package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
)

// 部分服务商会返回很大的 Retry-After，超过上限按上限等待
const maxRetryAfter = 60 * time.Second

// TransientError 可重试的服务商错误：408、429、5xx 以及网络错误
type TransientError struct {
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("临时性错误 (HTTP %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("临时性错误: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// classify 将 go-openai 返回的错误归类，可重试的包装为 TransientError
func classify(err error, retryAfter time.Duration) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	if status > 0 {
		if retryableStatus(status) {
			return &TransientError{StatusCode: status, RetryAfter: retryAfter, Err: err}
		}
		return err
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return &TransientError{Err: err}
	}
	return err
}

func retryableStatus(status int) bool {
	return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500
}

// retryDelay 429 优先使用 Retry-After，否则指数退避 2^attempt*base + base
func retryDelay(attempt int, base, retryAfter time.Duration) time.Duration {
	var delay time.Duration
	if retryAfter > 0 {
		delay = retryAfter + base
	} else {
		delay = time.Duration(1<<uint(attempt))*base + base
	}
	if delay > maxRetryAfter {
		delay = maxRetryAfter
	}
	return delay
}

// retryHint 传输层记录的 Retry-After，go-openai 的错误类型不携带响应头
type retryHint struct {
	mu    sync.Mutex
	value time.Duration
}

func (h *retryHint) set(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.value = d
}

func (h *retryHint) get() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value
}

type retryHintKey struct{}

func withRetryHint(ctx context.Context, hint *retryHint) context.Context {
	return context.WithValue(ctx, retryHintKey{}, hint)
}

// retryAfterTransport 在 429 响应上读取 Retry-After 写回请求上下文
type retryAfterTransport struct {
	base http.RoundTripper
}

func (t *retryAfterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusTooManyRequests {
		return resp, err
	}
	if hint, ok := req.Context().Value(retryHintKey{}).(*retryHint); ok {
		hint.set(parseRetryAfter(resp.Header.Get("Retry-After")))
	}
	return resp, nil
}

// parseRetryAfter 支持秒数和 HTTP 日期两种格式
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
