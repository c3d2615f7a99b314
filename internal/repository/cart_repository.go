package repository

import (
	"context"
	"errors"
	"time"

	"github.com/juanbetancurm/burgercartservice/internal/domain/model"
)

var (
	ErrNotFound = errors.New("not found")

	// 楽観ロックの比較に失敗（別の書き込みが先に勝った）
	ErrVersionConflict = errors.New("version conflict")

	// 一意制約に違反（session_idの衝突など）
	ErrDuplicateKey = errors.New("duplicate key")
)

// CartRepository はバージョン付きカートストアの約束。
// Save と UpdateStatus は「versionを比較して一致した時だけ書く」を
// アトミックに行うこと（compare-and-swap）。成功時にversionは+1される。
type CartRepository interface {
	// ACTIVEカートを1件取得（複数あれば last_updated 降順・id昇順の先頭）
	FindActiveByUserID(ctx context.Context, userID string) (model.Cart, error)

	// ACTIVEカートを全件取得（重複ACTIVE異常の検出・修復用）。
	// last_updated 降順、同時刻なら id 昇順で返す。
	FindAllActiveByUserID(ctx context.Context, userID string) ([]model.Cart, error)

	// 任意statusのカートを1件取得
	FindByUserIDAndStatus(ctx context.Context, userID string, status model.CartStatus) (model.Cart, error)

	// 新規カートを永続化（ID採番、version=0）
	Create(ctx context.Context, cart model.Cart) (model.Cart, error)

	// カート全体（明細含む）をCASで保存。versionずれは ErrVersionConflict。
	Save(ctx context.Context, cart model.Cart) (model.Cart, error)

	// statusだけをCASで更新（遅延abandon・後片付け用）
	UpdateStatus(ctx context.Context, cartID int64, expectedVersion int, status model.CartStatus) error

	// 期限切れ警告済みフラグをCASで立てる
	MarkExpiryWarningSent(ctx context.Context, cartID int64, expectedVersion int) error

	// cutoffより前から放置されているACTIVEカートを列挙（定期掃除用）
	FindActiveOlderThan(ctx context.Context, cutoff time.Time) ([]model.Cart, error)

	// last_updated が (from, to] にある警告未送信のACTIVEカートを列挙
	FindActiveUpdatedBetween(ctx context.Context, from, to time.Time) ([]model.Cart, error)
}
