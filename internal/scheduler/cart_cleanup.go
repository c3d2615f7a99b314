package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Sweeper はスケジューラが叩く掃除系の口（CartUsecaseが満たす）。
type Sweeper interface {
	CleanupExpiredCarts(ctx context.Context) (int, error)
	MarkApproachingExpiry(ctx context.Context) (int, error)
}

// 1回の掃除がこれより長いと警告ログを出す
const slowSweepThreshold = 30 * time.Second

// スケジューラ動作の集計値のスナップショット
type Stats struct {
	TotalCartsAbandoned int64
	TotalWarningsMarked int64
	TotalSweepErrors    int64
	LastSweepCount      int
	LastSweepTime       time.Time
}

// CartCleanupService は期限切れカートの定期掃除と警告フラグ付けを回す。
// 掃除は best-effort：1回の失敗は記録して次の周期に任せる。
type CartCleanupService struct {
	sweeper         Sweeper
	log             *zap.SugaredLogger
	cleanupInterval time.Duration
	warningInterval time.Duration

	totalAbandoned atomic.Int64
	totalWarnings  atomic.Int64
	totalErrors    atomic.Int64

	mu             sync.Mutex
	lastSweepCount int
	lastSweepTime  time.Time
}

// DI
func NewCartCleanupService(
	sweeper Sweeper,
	log *zap.SugaredLogger,
	cleanupInterval time.Duration,
	warningInterval time.Duration,
) *CartCleanupService {
	if cleanupInterval <= 0 {
		cleanupInterval = 6 * time.Hour
	}
	if warningInterval <= 0 {
		warningInterval = 2 * time.Hour
	}
	return &CartCleanupService{
		sweeper:         sweeper,
		log:             log,
		cleanupInterval: cleanupInterval,
		warningInterval: warningInterval,
	}
}

// Start は2本の周期ループを起動してctx終了までブロックする。
// 起動直後に1回ずつ実行してから周期に入る。
func (s *CartCleanupService) Start(ctx context.Context) {
	s.log.Infow("cart cleanup scheduler started",
		"cleanup_interval", s.cleanupInterval, "warning_interval", s.warningInterval)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		s.runLoop(ctx, s.cleanupInterval, s.RunCleanup)
	}()
	go func() {
		defer wg.Done()
		s.runLoop(ctx, s.warningInterval, s.RunWarningCheck)
	}()

	wg.Wait()
	s.log.Infow("cart cleanup scheduler stopped")
}

func (s *CartCleanupService) runLoop(ctx context.Context, interval time.Duration, task func(context.Context)) {
	task(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task(ctx)
		}
	}
}

// RunCleanup は期限切れカートの掃除を1回実行する。
func (s *CartCleanupService) RunCleanup(ctx context.Context) {
	start := time.Now()

	count, err := s.sweeper.CleanupExpiredCarts(ctx)
	elapsed := time.Since(start)

	if err != nil {
		s.totalErrors.Add(1)
		s.log.Errorw("cart cleanup sweep failed", "error", err)
		return
	}

	s.totalAbandoned.Add(int64(count))
	s.mu.Lock()
	s.lastSweepCount = count
	s.lastSweepTime = time.Now()
	s.mu.Unlock()

	s.log.Infow("cart cleanup sweep finished", "abandoned", count, "elapsed", elapsed)
	if elapsed > slowSweepThreshold {
		s.log.Warnw("cart cleanup sweep took longer than expected", "elapsed", elapsed)
	}
}

// RunWarningCheck は警告ウィンドウに入ったカートのフラグ付けを1回実行する。
func (s *CartCleanupService) RunWarningCheck(ctx context.Context) {
	count, err := s.sweeper.MarkApproachingExpiry(ctx)
	if err != nil {
		s.totalErrors.Add(1)
		s.log.Warnw("expiry warning check failed", "error", err)
		return
	}

	s.totalWarnings.Add(int64(count))
	if count > 0 {
		s.log.Infow("marked carts approaching expiry", "count", count)
	}
}

// Stats は現在の集計値のスナップショットを返す。
func (s *CartCleanupService) Stats() Stats {
	s.mu.Lock()
	lastCount := s.lastSweepCount
	lastTime := s.lastSweepTime
	s.mu.Unlock()

	return Stats{
		TotalCartsAbandoned: s.totalAbandoned.Load(),
		TotalWarningsMarked: s.totalWarnings.Load(),
		TotalSweepErrors:    s.totalErrors.Load(),
		LastSweepCount:      lastCount,
		LastSweepTime:       lastTime,
	}
}
