package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// 1明細あたりの数量上限
const MaxItemQuantity = 999

// カートの明細。article_id はカート内でユニーク。
// subtotal は quantity × price の導出値で、外から直接は設定しない。
type CartItem struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CartID      int64     `gorm:"not null;index" json:"cart_id"`
	ArticleID   int64     `gorm:"not null;index" json:"article_id"`
	ArticleName string    `gorm:"not null" json:"article_name"`
	Quantity    int       `gorm:"not null" json:"quantity"`
	Price       float64   `gorm:"not null" json:"price"`
	Subtotal    float64   `gorm:"not null" json:"subtotal"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// NewCartItem は入力チェック込みで明細を作る。
func NewCartItem(articleID int64, articleName string, quantity int, price float64) (CartItem, error) {
	if articleID <= 0 {
		return CartItem{}, fmt.Errorf("article id is required: %w", ErrInvalidParameter)
	}
	if strings.TrimSpace(articleName) == "" {
		return CartItem{}, fmt.Errorf("article name is required: %w", ErrInvalidParameter)
	}
	if err := validateQuantity(quantity); err != nil {
		return CartItem{}, err
	}
	if err := validatePrice(price); err != nil {
		return CartItem{}, err
	}

	item := CartItem{
		ArticleID:   articleID,
		ArticleName: articleName,
		Quantity:    quantity,
		Price:       price,
	}
	item.calcSubtotal()
	return item, nil
}

// UpdateQuantity は数量を変更してsubtotalを再計算する。
func (i *CartItem) UpdateQuantity(quantity int) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	i.Quantity = quantity
	i.calcSubtotal()
	return nil
}

func (i *CartItem) calcSubtotal() {
	i.Subtotal = float64(i.Quantity) * i.Price
}

func validateQuantity(quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be greater than zero: %w", ErrInvalidParameter)
	}
	if quantity > MaxItemQuantity {
		return fmt.Errorf("quantity must be %d or less: %w", MaxItemQuantity, ErrInvalidParameter)
	}
	return nil
}

func validatePrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return fmt.Errorf("invalid price value: %w", ErrInvalidParameter)
	}
	if price < 0 {
		return fmt.Errorf("price must be greater than or equal to zero: %w", ErrInvalidParameter)
	}
	return nil
}
