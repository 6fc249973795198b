package api

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
)

// Pacer は連続するAPI呼び出しの間に最小間隔を挿入します
type Pacer interface {
	Pace(ctx context.Context) error
}

// ErrNotFound はソース側のリソースが存在しないことを表します
var ErrNotFound = errors.New("リソースが見つかりません")

const requestRetryMaxElapsed = 30 * time.Second

// BackOff実装は状態を持つため、呼び出しごとに新しいインスタンスを返します
func newRequestBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = requestRetryMaxElapsed
	return bo
}

// withRetry は一時的なエラーに対してリトライ付きで処理を実行します
func withRetry(ctx context.Context, op func() error) error {
	return backoff.Retry(op, backoff.WithContext(newRequestBackoff(), ctx))
}

// retryableStatus は再試行すべきHTTPステータスかどうかを判定します
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
