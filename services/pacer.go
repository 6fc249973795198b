package services

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// デフォルトの呼び出し間隔
// 0を黙って許容するとバックプレッシャーが消えるため、必ず正の値にします
const defaultPaceInterval = 500 * time.Millisecond

// Pacer は連続するAPI呼び出しの間に最小間隔を強制します
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer は指定間隔のペーサーを作成します
// 間隔が0以下の場合はデフォルト間隔を使用します
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		interval = defaultPaceInterval
	}
	return &Pacer{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Pace は次の呼び出しが許可されるまでブロックします
func (p *Pacer) Pace(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
