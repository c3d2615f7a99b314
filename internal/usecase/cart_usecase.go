package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/juanbetancurm/burgercartservice/internal/domain/model"
	repo "github.com/juanbetancurm/burgercartservice/internal/repository"

	"go.uber.org/zap"
)

// UUID等のIDを作る約束
type IDGenerator interface {
	NewID() string
}

// 現在の時間
type Clock interface {
	Now() time.Time
}

// CartService は /cart の業務ロジックの約束（ハンドラが使う口）。
type CartService interface {
	CreateCart(ctx context.Context, userID string) (model.Cart, error)
	GetActiveCart(ctx context.Context, userID string) (model.Cart, error)
	AddItem(ctx context.Context, userID string, in AddItemInput) (model.Cart, error)
	UpdateItemQuantity(ctx context.Context, userID string, articleID int64, quantity int) (model.Cart, error)
	RemoveItem(ctx context.Context, userID string, articleID int64) (model.Cart, error)
	ClearCart(ctx context.Context, userID string) (model.Cart, error)
	AbandonCart(ctx context.Context, userID string) (model.Cart, error)
	CompleteCart(ctx context.Context, userID string) (model.Cart, error)
	GetCartByStatus(ctx context.Context, userID string, status model.CartStatus) (model.Cart, error)
	IsApproachingExpiry(cart model.Cart) bool
}

// カートまわりの調整値。ゼロ値はNewCartUsecaseでデフォルトに置き換える。
type CartConfig struct {
	TTL            time.Duration // 放置カートの寿命
	WarningWindow  time.Duration // 期限切れ警告の幅
	MaxItems       int           // 明細数上限
	MaxRetries     int           // version競合時の試行回数
	RetryBaseDelay time.Duration // リトライ待ち（×試行回数）
}

const (
	defaultTTL            = 24 * time.Hour
	defaultWarningWindow  = 4 * time.Hour
	defaultMaxItems       = 50
	defaultMaxRetries     = 3
	defaultRetryBaseDelay = 100 * time.Millisecond
)

// CartUsecase はカート1件に対する read-modify-write を楽観ロックで調停する。
// 集約の業務ルール違反は即時に返し、version競合だけを再試行する。
type CartUsecase struct {
	carts repo.CartRepository
	clock Clock
	idGen IDGenerator
	log   *zap.SugaredLogger
	cfg   CartConfig

	// テストで差し替えるためのフック
	sleep func(time.Duration)
}

// DI
func NewCartUsecase(
	carts repo.CartRepository,
	clock Clock,
	idGen IDGenerator,
	log *zap.SugaredLogger,
	cfg CartConfig,
) *CartUsecase {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.WarningWindow <= 0 {
		cfg.WarningWindow = defaultWarningWindow
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = defaultMaxItems
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}

	return &CartUsecase{
		carts: carts,
		clock: clock,
		idGen: idGen,
		log:   log,
		cfg:   cfg,
		sleep: time.Sleep,
	}
}

type AddItemInput struct {
	ArticleID   int64
	ArticleName string
	Quantity    int
	Price       float64
}

// CreateCart は空のACTIVEカートを明示的に作る。
// 有効なACTIVEカートが既にあれば拒否する。
func (u *CartUsecase) CreateCart(ctx context.Context, userID string) (model.Cart, error) {
	if err := validateUserID(userID); err != nil {
		return model.Cart{}, err
	}

	_, err := u.loadActive(ctx, userID)
	if err == nil {
		return model.Cart{}, fmt.Errorf("user already has an active cart: %w", model.ErrInvalidOperation)
	}
	if !errors.Is(err, model.ErrCartNotFound) {
		return model.Cart{}, err
	}

	u.log.Infow("creating new cart", "user_id", userID)
	return u.createCart(ctx, userID)
}

// GetActiveCart はACTIVEカートを返す。
// 期限切れならその場でABANDONEDにし、無い扱いで返す。
func (u *CartUsecase) GetActiveCart(ctx context.Context, userID string) (model.Cart, error) {
	if err := validateUserID(userID); err != nil {
		return model.Cart{}, err
	}
	return u.loadActive(ctx, userID)
}

// AddItem は明細を追加する。ACTIVEカートが無ければ作ってから追加する。
func (u *CartUsecase) AddItem(ctx context.Context, userID string, in AddItemInput) (model.Cart, error) {
	item, err := model.NewCartItem(in.ArticleID, in.ArticleName, in.Quantity, in.Price)
	if err != nil {
		return model.Cart{}, err
	}

	return u.mutate(ctx, userID, true, func(cart *model.Cart, now time.Time) error {
		return cart.AddItem(item, u.cfg.MaxItems, now)
	})
}

// UpdateItemQuantity は明細の数量を変更する。
func (u *CartUsecase) UpdateItemQuantity(ctx context.Context, userID string, articleID int64, quantity int) (model.Cart, error) {
	return u.mutate(ctx, userID, false, func(cart *model.Cart, now time.Time) error {
		return cart.UpdateItemQuantity(articleID, quantity, now)
	})
}

// RemoveItem は明細を削除する。
func (u *CartUsecase) RemoveItem(ctx context.Context, userID string, articleID int64) (model.Cart, error) {
	return u.mutate(ctx, userID, false, func(cart *model.Cart, now time.Time) error {
		return cart.RemoveItem(articleID, now)
	})
}

// ClearCart は明細を全て消す。
func (u *CartUsecase) ClearCart(ctx context.Context, userID string) (model.Cart, error) {
	return u.mutate(ctx, userID, false, func(cart *model.Cart, now time.Time) error {
		return cart.Clear(now)
	})
}

// AbandonCart はカートを放棄する。
func (u *CartUsecase) AbandonCart(ctx context.Context, userID string) (model.Cart, error) {
	return u.mutate(ctx, userID, false, func(cart *model.Cart, now time.Time) error {
		return cart.Abandon(now)
	})
}

// CompleteCart はカートを完了にする（注文確定後に呼ばれる想定）。
func (u *CartUsecase) CompleteCart(ctx context.Context, userID string) (model.Cart, error) {
	return u.mutate(ctx, userID, false, func(cart *model.Cart, now time.Time) error {
		return cart.Complete(now)
	})
}

// GetCartByStatus は任意statusのカートを返す。期限切れの副作用は無し。
func (u *CartUsecase) GetCartByStatus(ctx context.Context, userID string, status model.CartStatus) (model.Cart, error) {
	if err := validateUserID(userID); err != nil {
		return model.Cart{}, err
	}
	if !model.ValidStatus(status) {
		return model.Cart{}, fmt.Errorf("unknown cart status %q: %w", status, model.ErrInvalidParameter)
	}

	cart, err := u.carts.FindByUserIDAndStatus(ctx, userID, status)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Cart{}, fmt.Errorf("no %s cart for user: %w", status, model.ErrCartNotFound)
	}
	if err != nil {
		return model.Cart{}, fmt.Errorf("find cart by status: %w", err)
	}
	return cart, nil
}

// IsApproachingExpiry は警告ウィンドウ内かどうか（表示用）。
func (u *CartUsecase) IsApproachingExpiry(cart model.Cart) bool {
	return cart.IsApproachingExpiry(u.clock.Now(), u.cfg.TTL, u.cfg.WarningWindow)
}

// CleanupExpiredCarts はTTLを超えたACTIVEカートをまとめてABANDONEDにする。
// 1件ごとのCAS失敗はログして飛ばす（best-effort）。戻り値は処理できた件数。
func (u *CartUsecase) CleanupExpiredCarts(ctx context.Context) (int, error) {
	cutoff := u.clock.Now().Add(-u.cfg.TTL)

	expired, err := u.carts.FindActiveOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired carts: %w", err)
	}

	abandoned := 0
	for _, cart := range expired {
		if err := u.carts.UpdateStatus(ctx, cart.ID, cart.Version, model.CartStatusAbandoned); err != nil {
			u.log.Warnw("failed to abandon expired cart",
				"cart_id", cart.ID, "user_id", cart.UserID, "error", err)
			continue
		}
		abandoned++
	}

	if abandoned > 0 {
		u.log.Infow("abandoned expired carts", "count", abandoned, "cutoff", cutoff)
	}
	return abandoned, nil
}

// MarkApproachingExpiry は警告ウィンドウに入ったカートに警告済みフラグを立てる。
// 通知自体は別系（クライアントがexpiring_soonを見る）なのでフラグ管理だけ行う。
func (u *CartUsecase) MarkApproachingExpiry(ctx context.Context) (int, error) {
	now := u.clock.Now()
	from := now.Add(-u.cfg.TTL)
	to := now.Add(-(u.cfg.TTL - u.cfg.WarningWindow))

	warnable, err := u.carts.FindActiveUpdatedBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("list carts approaching expiry: %w", err)
	}

	marked := 0
	for _, cart := range warnable {
		if err := u.carts.MarkExpiryWarningSent(ctx, cart.ID, cart.Version); err != nil {
			u.log.Warnw("failed to mark expiry warning",
				"cart_id", cart.ID, "user_id", cart.UserID, "error", err)
			continue
		}
		marked++
	}
	return marked, nil
}

// mutate は「ACTIVEカート取得→集約操作→CAS保存」を1サイクルとして、
// version競合の時だけ最初から再試行する。業務エラーはその場で返す。
func (u *CartUsecase) mutate(
	ctx context.Context,
	userID string,
	createIfMissing bool,
	apply func(cart *model.Cart, now time.Time) error,
) (model.Cart, error) {
	if err := validateUserID(userID); err != nil {
		return model.Cart{}, err
	}

	for attempt := 1; attempt <= u.cfg.MaxRetries; attempt++ {
		cart, err := u.loadActive(ctx, userID)
		if errors.Is(err, model.ErrCartNotFound) && createIfMissing {
			cart, err = u.createCart(ctx, userID)
		}
		if err != nil {
			return model.Cart{}, err
		}

		if err := apply(&cart, u.clock.Now()); err != nil {
			//集約のルール違反はリトライしても結果が変わらない
			return model.Cart{}, err
		}
		if err := cart.Validate(); err != nil {
			return model.Cart{}, err
		}

		saved, err := u.carts.Save(ctx, cart)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, repo.ErrVersionConflict) {
			return model.Cart{}, fmt.Errorf("save cart: %w", err)
		}

		//別の書き込みが勝った。取り直してもう一度。
		u.log.Debugw("cart version conflict, retrying",
			"user_id", userID, "cart_id", cart.ID, "attempt", attempt)
		if attempt < u.cfg.MaxRetries {
			u.sleep(u.cfg.RetryBaseDelay * time.Duration(attempt))
		}
	}

	u.log.Warnw("cart mutation gave up after retries",
		"user_id", userID, "attempts", u.cfg.MaxRetries)
	return model.Cart{}, fmt.Errorf("optimistic lock exhausted after %d attempts: %w",
		u.cfg.MaxRetries, model.ErrConcurrencyConflict)
}

// loadActive はACTIVEカートを1件に正規化して返す。
//   - ACTIVEが複数ある異常は、最新のlast_updated（同時刻ならid最小）を残して
//     他をABANDONEDにしてから続行する。
//   - 残った1件が期限切れなら遅延abandonして「無い」扱いにする。
func (u *CartUsecase) loadActive(ctx context.Context, userID string) (model.Cart, error) {
	carts, err := u.carts.FindAllActiveByUserID(ctx, userID)
	if err != nil {
		return model.Cart{}, fmt.Errorf("find active cart: %w", err)
	}
	if len(carts) == 0 {
		return model.Cart{}, fmt.Errorf("no active cart for user: %w", model.ErrCartNotFound)
	}

	cart := carts[0]
	if len(carts) > 1 {
		u.log.Warnw("multiple active carts detected, reconciling",
			"user_id", userID, "count", len(carts), "kept_cart_id", cart.ID)
		for _, dup := range carts[1:] {
			if err := u.carts.UpdateStatus(ctx, dup.ID, dup.Version, model.CartStatusAbandoned); err != nil {
				u.log.Warnw("failed to abandon duplicate active cart",
					"cart_id", dup.ID, "error", err)
			}
		}
	}

	if cart.IsStale(u.clock.Now(), u.cfg.TTL) {
		u.log.Infow("active cart is stale, abandoning",
			"user_id", userID, "cart_id", cart.ID, "last_updated", cart.LastUpdated)
		if err := u.carts.UpdateStatus(ctx, cart.ID, cart.Version, model.CartStatusAbandoned); err != nil {
			u.log.Warnw("failed to abandon stale cart", "cart_id", cart.ID, "error", err)
		}
		return model.Cart{}, fmt.Errorf("cart session expired: %w", model.ErrCartNotFound)
	}

	return cart, nil
}

func (u *CartUsecase) createCart(ctx context.Context, userID string) (model.Cart, error) {
	cart, err := model.NewCart(userID, u.clock.Now())
	if err != nil {
		return model.Cart{}, err
	}
	cart.SessionID = u.idGen.NewID()

	created, err := u.carts.Create(ctx, cart)
	if err != nil {
		return model.Cart{}, fmt.Errorf("create cart: %w", err)
	}

	u.log.Debugw("created cart",
		"user_id", userID, "cart_id", created.ID, "session_id", created.SessionID)
	return created, nil
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id cannot be empty: %w", model.ErrInvalidParameter)
	}
	return nil
}
