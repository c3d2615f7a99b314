package model

import "errors"

// カート業務のエラー分類。
// ハンドラ側で errors.Is を使ってHTTPステータスへ変換する。
var (
	// 入力が不正（リトライしない）
	ErrInvalidParameter = errors.New("invalid parameter")

	// カートの状態的に許されない操作（ACTIVE以外など）
	ErrInvalidOperation = errors.New("cart is not active")

	// 明細が無い
	ErrItemNotFound = errors.New("article not found in cart")

	// 対象のカートが無い（期限切れ含む）
	ErrCartNotFound = errors.New("cart not found")

	// 同一商品の二重追加
	ErrDuplicateArticle = errors.New("article already exists in cart")

	// 明細数の上限超過
	ErrLimitExceeded = errors.New("cart item limit exceeded")

	// 楽観ロックのリトライ上限到達
	ErrConcurrencyConflict = errors.New("cart was modified concurrently")
)
