package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type CartStatus string

const (
	CartStatusActive    CartStatus = "ACTIVE"
	CartStatusAbandoned CartStatus = "ABANDONED"
	CartStatusCompleted CartStatus = "COMPLETED"
)

// 合計金額の比較に使う許容誤差
const TotalEpsilon = 1e-9

// ValidStatus はstatus文字列が定義済みかを返す。
func ValidStatus(s CartStatus) bool {
	switch s {
	case CartStatusActive, CartStatusAbandoned, CartStatusCompleted:
		return true
	}
	return false
}

// 1ユーザーにつきACTIVEカートは1つ。
// version は楽観ロック用のカウンタで、Save成功時にストア側が+1する。
// total は明細から導出し、直接は設定しない。
type Cart struct {
	ID                int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID            string     `gorm:"not null;index" json:"user_id"`
	Items             []CartItem `gorm:"foreignKey:CartID" json:"items"`
	Total             float64    `gorm:"not null" json:"total"`
	Status            CartStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	SessionID         string     `gorm:"column:session_id;size:32;uniqueIndex" json:"session_id"`
	Version           int        `gorm:"not null;default:0" json:"version"`
	ExpiryWarningSent bool       `gorm:"not null;default:false" json:"expiry_warning_sent"`
	CreatedAt         time.Time  `gorm:"not null" json:"created_at"`
	LastUpdated       time.Time  `gorm:"column:last_updated;not null;index" json:"last_updated"`
}

// NewCart はACTIVEな空カートを作る。IDとsession_idは永続化時に確定する。
func NewCart(userID string, now time.Time) (Cart, error) {
	if strings.TrimSpace(userID) == "" {
		return Cart{}, fmt.Errorf("user id cannot be empty: %w", ErrInvalidParameter)
	}
	return Cart{
		UserID:      userID,
		Items:       []CartItem{},
		Total:       0,
		Status:      CartStatusActive,
		CreatedAt:   now,
		LastUpdated: now,
	}, nil
}

// AddItem は明細を追加する。同一articleの二重追加は拒否。
// maxItems は設定値（0以下なら無制限）。
func (c *Cart) AddItem(item CartItem, maxItems int, now time.Time) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	if maxItems > 0 && len(c.Items) >= maxItems {
		return fmt.Errorf("cart cannot hold more than %d items: %w", maxItems, ErrLimitExceeded)
	}
	if c.indexOf(item.ArticleID) >= 0 {
		return fmt.Errorf("article %d: %w", item.ArticleID, ErrDuplicateArticle)
	}

	c.Items = append(c.Items, item)
	c.refresh(now)
	return nil
}

// UpdateItemQuantity は既存明細の数量を変更する。
func (c *Cart) UpdateItemQuantity(articleID int64, quantity int, now time.Time) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	if err := validateQuantity(quantity); err != nil {
		return err
	}

	idx := c.indexOf(articleID)
	if idx < 0 {
		return fmt.Errorf("article %d: %w", articleID, ErrItemNotFound)
	}
	if err := c.Items[idx].UpdateQuantity(quantity); err != nil {
		return err
	}

	c.refresh(now)
	return nil
}

// RemoveItem は明細を削除する。
func (c *Cart) RemoveItem(articleID int64, now time.Time) error {
	if err := c.ensureActive(); err != nil {
		return err
	}

	idx := c.indexOf(articleID)
	if idx < 0 {
		return fmt.Errorf("article %d: %w", articleID, ErrItemNotFound)
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)

	c.refresh(now)
	return nil
}

// Clear は明細を全て消して合計を0にする。
func (c *Cart) Clear(now time.Time) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	c.Items = []CartItem{}
	c.refresh(now)
	return nil
}

// Abandon はACTIVE→ABANDONEDの遷移。終端状態からの再遷移は拒否。
func (c *Cart) Abandon(now time.Time) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	c.Status = CartStatusAbandoned
	c.LastUpdated = now
	return nil
}

// Complete はACTIVE→COMPLETEDの遷移。
func (c *Cart) Complete(now time.Time) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	c.Status = CartStatusCompleted
	c.LastUpdated = now
	return nil
}

// IsStale は最終更新からTTLを超えて放置されているかを返す。副作用なし。
func (c *Cart) IsStale(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.LastUpdated) > ttl
}

// IsApproachingExpiry は期限切れ警告の対象か（TTL−warning以上放置、ただし未失効）。
// クライアント向けの通知用で、操作はブロックしない。
func (c *Cart) IsApproachingExpiry(now time.Time, ttl, warning time.Duration) bool {
	if c.IsStale(now, ttl) {
		return false
	}
	return now.Sub(c.LastUpdated) >= ttl-warning
}

// Validate は永続化前の構造チェック（合計の整合、明細の不変条件）。
func (c *Cart) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return fmt.Errorf("user id cannot be empty: %w", ErrInvalidParameter)
	}
	if !ValidStatus(c.Status) {
		return fmt.Errorf("unknown cart status %q: %w", c.Status, ErrInvalidParameter)
	}

	var sum float64
	seen := make(map[int64]struct{}, len(c.Items))
	for _, item := range c.Items {
		if item.ArticleID <= 0 {
			return fmt.Errorf("article id is required: %w", ErrInvalidParameter)
		}
		if _, ok := seen[item.ArticleID]; ok {
			return fmt.Errorf("article %d: %w", item.ArticleID, ErrDuplicateArticle)
		}
		seen[item.ArticleID] = struct{}{}

		if err := validateQuantity(item.Quantity); err != nil {
			return err
		}
		if err := validatePrice(item.Price); err != nil {
			return err
		}
		sum += item.Subtotal
	}

	if math.Abs(sum-c.Total) > TotalEpsilon {
		return fmt.Errorf("cart total %v does not match items sum %v: %w", c.Total, sum, ErrInvalidParameter)
	}
	return nil
}

// Item はarticle_idで明細を探す。
func (c *Cart) Item(articleID int64) (CartItem, bool) {
	idx := c.indexOf(articleID)
	if idx < 0 {
		return CartItem{}, false
	}
	return c.Items[idx], true
}

func (c *Cart) ensureActive() error {
	if c.Status != CartStatusActive {
		return fmt.Errorf("cart status is %s: %w", c.Status, ErrInvalidOperation)
	}
	return nil
}

func (c *Cart) indexOf(articleID int64) int {
	for i := range c.Items {
		if c.Items[i].ArticleID == articleID {
			return i
		}
	}
	return -1
}

// 合計再計算と最終更新時刻の更新をまとめて行う
func (c *Cart) refresh(now time.Time) {
	var sum float64
	for i := range c.Items {
		sum += c.Items[i].Subtotal
	}
	c.Total = sum
	c.LastUpdated = now
}
