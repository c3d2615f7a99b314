package repository

import (
	"context"
	"errors"
	"time"

	"github.com/juanbetancurm/burgercartservice/internal/domain/model"
	repo "github.com/juanbetancurm/burgercartservice/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQLのunique_violation
const pgUniqueViolation = "23505"

type CartGormRepository struct {
	db *gorm.DB
}

// DI
func NewCartGormRepository(db *gorm.DB) *CartGormRepository {
	return &CartGormRepository{db: db}
}

// ユーザーのACTIVEカートを1件取得
func (r *CartGormRepository) FindActiveByUserID(ctx context.Context, userID string) (model.Cart, error) {
	var cart model.Cart

	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ? AND status = ?", userID, model.CartStatusActive).
		Order("last_updated desc, id asc").
		First(&cart).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Cart{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Cart{}, err
	}
	return cart, nil
}

// ACTIVEカートを全件取得（本来1件のはずだが、重複異常の修復に使う）
func (r *CartGormRepository) FindAllActiveByUserID(ctx context.Context, userID string) ([]model.Cart, error) {
	var carts []model.Cart

	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ? AND status = ?", userID, model.CartStatusActive).
		Order("last_updated desc, id asc").
		Find(&carts).Error; err != nil {
		return nil, err
	}
	return carts, nil
}

// 任意statusのカートを1件取得
func (r *CartGormRepository) FindByUserIDAndStatus(ctx context.Context, userID string, status model.CartStatus) (model.Cart, error) {
	var cart model.Cart

	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ? AND status = ?", userID, status).
		Order("last_updated desc, id asc").
		First(&cart).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Cart{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Cart{}, err
	}
	return cart, nil
}

// 新規カートを作成（version=0で開始）
func (r *CartGormRepository) Create(ctx context.Context, cart model.Cart) (model.Cart, error) {
	cart.Version = 0

	if err := r.db.WithContext(ctx).Create(&cart).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return model.Cart{}, repo.ErrDuplicateKey
		}
		return model.Cart{}, err
	}
	return cart, nil
}

// カート全体をCASで保存。
// versionが読んだ時と同じ行だけを更新し、ヒットしなければ競合として弾く。
// 明細はカート単位で全入れ替え（部分更新の食い違いを避ける）。
func (r *CartGormRepository) Save(ctx context.Context, cart model.Cart) (model.Cart, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Cart{}).
			Where("id = ? AND version = ?", cart.ID, cart.Version).
			Updates(map[string]interface{}{
				"total":               cart.Total,
				"status":              cart.Status,
				"last_updated":        cart.LastUpdated,
				"expiry_warning_sent": cart.ExpiryWarningSent,
				"version":             cart.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			//行が消えたのかversionがずれたのかを区別する
			var count int64
			if err := tx.Model(&model.Cart{}).
				Where("id = ?", cart.ID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return repo.ErrNotFound
			}
			return repo.ErrVersionConflict
		}

		//明細を全削除→再作成
		if err := tx.Where("cart_id = ?", cart.ID).
			Delete(&model.CartItem{}).Error; err != nil {
			return err
		}

		if len(cart.Items) == 0 {
			return nil
		}

		now := time.Now()
		for i := range cart.Items {
			cart.Items[i].ID = 0
			cart.Items[i].CartID = cart.ID
			if cart.Items[i].CreatedAt.IsZero() {
				cart.Items[i].CreatedAt = now
			}
			cart.Items[i].UpdatedAt = now
		}
		return tx.Create(&cart.Items).Error
	})

	if err != nil {
		return model.Cart{}, err
	}

	cart.Version++
	return cart, nil
}

// statusだけをCASで更新
func (r *CartGormRepository) UpdateStatus(ctx context.Context, cartID int64, expectedVersion int, status model.CartStatus) error {
	res := r.db.WithContext(ctx).
		Model(&model.Cart{}).
		Where("id = ? AND version = ?", cartID, expectedVersion).
		Updates(map[string]interface{}{
			"status":  status,
			"version": expectedVersion + 1,
		})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrVersionConflict
	}
	return nil
}

// 期限切れ警告済みフラグをCASで立てる
func (r *CartGormRepository) MarkExpiryWarningSent(ctx context.Context, cartID int64, expectedVersion int) error {
	res := r.db.WithContext(ctx).
		Model(&model.Cart{}).
		Where("id = ? AND version = ?", cartID, expectedVersion).
		Updates(map[string]interface{}{
			"expiry_warning_sent": true,
			"version":             expectedVersion + 1,
		})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrVersionConflict
	}
	return nil
}

// cutoffより前から放置されているACTIVEカートを列挙（定期掃除用）
func (r *CartGormRepository) FindActiveOlderThan(ctx context.Context, cutoff time.Time) ([]model.Cart, error) {
	var carts []model.Cart

	if err := r.db.WithContext(ctx).
		Where("status = ? AND last_updated < ?", model.CartStatusActive, cutoff).
		Order("last_updated asc").
		Find(&carts).Error; err != nil {
		return nil, err
	}
	return carts, nil
}

// 警告ウィンドウ内（from < last_updated <= to）で未警告のACTIVEカートを列挙
func (r *CartGormRepository) FindActiveUpdatedBetween(ctx context.Context, from, to time.Time) ([]model.Cart, error) {
	var carts []model.Cart

	if err := r.db.WithContext(ctx).
		Where("status = ? AND expiry_warning_sent = ? AND last_updated > ? AND last_updated <= ?",
			model.CartStatusActive, false, from, to).
		Order("last_updated asc").
		Find(&carts).Error; err != nil {
		return nil, err
	}
	return carts, nil
}
