package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/juanbetancurm/burgercartservice/internal/config"
	"github.com/juanbetancurm/burgercartservice/internal/domain/model"
	"github.com/juanbetancurm/burgercartservice/internal/middleware"
	"github.com/juanbetancurm/burgercartservice/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type CartServiceMock struct{ mock.Mock }

func (m *CartServiceMock) CreateCart(ctx context.Context, userID string) (model.Cart, error) {
	args := m.Called(ctx, userID)
	cart, _ := args.Get(0).(model.Cart)
	return cart, args.Error(1)
}

func (m *CartServiceMock) GetActiveCart(ctx context.Context, userID string) (model.Cart, error) {
	args := m.Called(ctx, userID)
	cart, _ := args.Get(0).(model.Cart)
	return cart, args.Error(1)
}

func (m *CartServiceMock) AddItem(ctx context.Context, userID string, in usecase.AddItemInput) (model.Cart, error) {
	args := m.Called(ctx, userID, in)
	cart, _ := args.Get(0).(model.Cart)
	return cart, args.Error(1)
}

func (m *CartServiceMock) UpdateItemQuantity(ctx context.Context, userID string, articleID int64, quantity int) (model.Cart, error) {
	args := m.Called(ctx, userID, articleID, quantity)
	cart, _ := args.Get(0).(model.Cart)
	return cart, args.Error(1)
}

func (m *CartServiceMock) RemoveItem(ctx context.Context, userID string, articleID int64) (model.Cart, error) {
	args := m.Called(ctx, userID, articleID)
	cart, _ := args.Get(0).(model.Cart)
	return cart, args.Error(1)
}

func (m *CartServiceMock) ClearCart(ctx context.Context, userID string) (model.Cart, error) {
	args := m.Called(ctx, userID)
	cart, _ := args.Get(0).(model.Cart)
	return cart, args.Error(1)
}

func (m *CartServiceMock) AbandonCart(ctx context.Context, userID string) (model.Cart, error) {
	args := m.Called(ctx, userID)
	cart, _ := args.Get(0).(model.Cart)
	return cart, args.Error(1)
}

func (m *CartServiceMock) CompleteCart(ctx context.Context, userID string) (model.Cart, error) {
	args := m.Called(ctx, userID)
	cart, _ := args.Get(0).(model.Cart)
	return cart, args.Error(1)
}

func (m *CartServiceMock) GetCartByStatus(ctx context.Context, userID string, status model.CartStatus) (model.Cart, error) {
	args := m.Called(ctx, userID, status)
	cart, _ := args.Get(0).(model.Cart)
	return cart, args.Error(1)
}

func (m *CartServiceMock) IsApproachingExpiry(cart model.Cart) bool {
	args := m.Called(cart)
	return args.Bool(0)
}

// レスポンス組み立てで呼ばれるexpiring_soon判定のデフォルト
func stubNotExpiring(uc *CartServiceMock) {
	uc.On("IsApproachingExpiry", mock.Anything).Return(false).Maybe()
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:        "test-secret",
		CartExpiryHours:  24,
		CartWarningHours: 4,
	}
}

func newContext(t *testing.T, method, target, body string, params map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(middleware.CtxUserIDKey, "user-1")

	for k, v := range params {
		c.SetParamNames(k)
		c.SetParamValues(v)
	}
	return c, rec
}

func sampleCart() model.Cart {
	item, _ := model.NewCartItem(7, "Burger", 2, 3.50)
	return model.Cart{
		ID:          1,
		UserID:      "user-1",
		Items:       []model.CartItem{item},
		Total:       7.00,
		Status:      model.CartStatusActive,
		SessionID:   "cart_abcdef0123456789",
		Version:     3,
		LastUpdated: time.Now().Add(-time.Hour),
	}
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) CartResponse {
	t.Helper()
	var resp CartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestGetActiveCart(t *testing.T) {
	uc := new(CartServiceMock)
	uc.On("GetActiveCart", mock.Anything, "user-1").Return(sampleCart(), nil)
	stubNotExpiring(uc)
	h := NewCartHandler(uc)

	c, rec := newContext(t, http.MethodGet, "/cart", "", nil)
	require.NoError(t, h.getActiveCart(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeCart(t, rec)
	assert.Equal(t, int64(1), resp.ID)
	assert.Len(t, resp.Items, 1)
	assert.InDelta(t, 7.00, resp.Total, 1e-9)
	assert.Equal(t, "ACTIVE", resp.Status)
	assert.False(t, resp.ExpiringSoon)
}

// 期限切れ判定はusecaseに委ね、結果がexpiring_soonにそのまま出る
func TestGetActiveCart_ExpiringSoon(t *testing.T) {
	cart := sampleCart()

	uc := new(CartServiceMock)
	uc.On("GetActiveCart", mock.Anything, "user-1").Return(cart, nil)
	uc.On("IsApproachingExpiry", mock.MatchedBy(func(c model.Cart) bool {
		return c.ID == cart.ID
	})).Return(true)
	h := NewCartHandler(uc)

	c, rec := newContext(t, http.MethodGet, "/cart", "", nil)
	require.NoError(t, h.getActiveCart(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeCart(t, rec).ExpiringSoon)
	uc.AssertExpectations(t)
}

func TestGetActiveCart_MissingUserID(t *testing.T) {
	h := NewCartHandler(new(CartServiceMock))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.getActiveCart(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateCart(t *testing.T) {
	uc := new(CartServiceMock)
	uc.On("CreateCart", mock.Anything, "user-1").Return(sampleCart(), nil)
	stubNotExpiring(uc)
	h := NewCartHandler(uc)

	c, rec := newContext(t, http.MethodPost, "/cart", "", nil)
	require.NoError(t, h.createCart(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestAddItem(t *testing.T) {
	uc := new(CartServiceMock)
	uc.On("AddItem", mock.Anything, "user-1", usecase.AddItemInput{
		ArticleID: 7, ArticleName: "Burger", Quantity: 2, Price: 3.50,
	}).Return(sampleCart(), nil)
	stubNotExpiring(uc)
	h := NewCartHandler(uc)

	body := `{"article_id":7,"article_name":"Burger","quantity":2,"price":3.50}`
	c, rec := newContext(t, http.MethodPost, "/cart/items", body, nil)
	require.NoError(t, h.addItem(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	uc.AssertExpectations(t)
}

func TestAddItem_BadBody(t *testing.T) {
	uc := new(CartServiceMock)
	stubNotExpiring(uc)
	h := NewCartHandler(uc)

	c, rec := newContext(t, http.MethodPost, "/cart/items", `{"quantity":"two"}`, nil)
	require.NoError(t, h.addItem(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	uc.AssertNotCalled(t, "AddItem", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateItemQuantity(t *testing.T) {
	uc := new(CartServiceMock)
	uc.On("UpdateItemQuantity", mock.Anything, "user-1", int64(7), 5).Return(sampleCart(), nil)
	stubNotExpiring(uc)
	h := NewCartHandler(uc)

	body := `{"article_id":7,"quantity":5}`
	c, rec := newContext(t, http.MethodPut, "/cart/items", body, nil)
	require.NoError(t, h.updateItemQuantity(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	uc.AssertExpectations(t)
}

func TestRemoveItem(t *testing.T) {
	uc := new(CartServiceMock)
	uc.On("RemoveItem", mock.Anything, "user-1", int64(7)).Return(sampleCart(), nil)
	stubNotExpiring(uc)
	h := NewCartHandler(uc)

	c, rec := newContext(t, http.MethodDelete, "/cart/items/7", "", map[string]string{"articleId": "7"})
	require.NoError(t, h.removeItem(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	uc.AssertExpectations(t)
}

func TestRemoveItem_BadArticleID(t *testing.T) {
	uc := new(CartServiceMock)
	stubNotExpiring(uc)
	h := NewCartHandler(uc)

	for _, raw := range []string{"abc", "0", "-1"} {
		c, rec := newContext(t, http.MethodDelete, "/cart/items/"+raw, "", map[string]string{"articleId": raw})
		require.NoError(t, h.removeItem(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "articleId=%s", raw)
	}
	uc.AssertNotCalled(t, "RemoveItem", mock.Anything, mock.Anything, mock.Anything)
}

func TestClearCart(t *testing.T) {
	empty := sampleCart()
	empty.Items = nil
	empty.Total = 0

	uc := new(CartServiceMock)
	uc.On("ClearCart", mock.Anything, "user-1").Return(empty, nil)
	stubNotExpiring(uc)
	h := NewCartHandler(uc)

	c, rec := newContext(t, http.MethodDelete, "/cart/items", "", nil)
	require.NoError(t, h.clearCart(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeCart(t, rec)
	assert.Empty(t, resp.Items)
	assert.Zero(t, resp.Total)
	//空でもitemsはnullではなく[]で返す
	assert.Contains(t, rec.Body.String(), `"items":[]`)
}

func TestAbandonCart(t *testing.T) {
	abandoned := sampleCart()
	abandoned.Status = model.CartStatusAbandoned

	uc := new(CartServiceMock)
	uc.On("AbandonCart", mock.Anything, "user-1").Return(abandoned, nil)
	stubNotExpiring(uc)
	h := NewCartHandler(uc)

	c, rec := newContext(t, http.MethodPost, "/cart/abandon", "", nil)
	require.NoError(t, h.abandonCart(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ABANDONED", decodeCart(t, rec).Status)
}

func TestCompleteCart(t *testing.T) {
	completed := sampleCart()
	completed.Status = model.CartStatusCompleted

	uc := new(CartServiceMock)
	uc.On("CompleteCart", mock.Anything, "user-1").Return(completed, nil)
	stubNotExpiring(uc)
	h := NewCartHandler(uc)

	c, rec := newContext(t, http.MethodPost, "/cart/complete", "", nil)
	require.NoError(t, h.completeCart(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "COMPLETED", decodeCart(t, rec).Status)
}

func TestGetCartByStatus(t *testing.T) {
	completed := sampleCart()
	completed.Status = model.CartStatusCompleted

	uc := new(CartServiceMock)
	uc.On("GetCartByStatus", mock.Anything, "user-1", model.CartStatusCompleted).Return(completed, nil)
	stubNotExpiring(uc)
	h := NewCartHandler(uc)

	c, rec := newContext(t, http.MethodGet, "/cart/status/COMPLETED", "", map[string]string{"status": "COMPLETED"})
	require.NoError(t, h.getCartByStatus(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	uc.AssertExpectations(t)
}

// 業務エラーごとのHTTPステータス
func TestWriteError_StatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"入力エラーは400", model.ErrInvalidParameter, http.StatusBadRequest},
		{"明細なしは404", model.ErrItemNotFound, http.StatusNotFound},
		{"カートなしは404", model.ErrCartNotFound, http.StatusNotFound},
		{"重複商品は409", model.ErrDuplicateArticle, http.StatusConflict},
		{"状態違反は409", model.ErrInvalidOperation, http.StatusConflict},
		{"明細数上限は409", model.ErrLimitExceeded, http.StatusConflict},
		{"楽観ロック衝突は409", model.ErrConcurrencyConflict, http.StatusConflict},
		{"想定外は500", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			uc := new(CartServiceMock)
			uc.On("GetActiveCart", mock.Anything, "user-1").Return(model.Cart{}, tt.err)
			stubNotExpiring(uc)
			h := NewCartHandler(uc)

			c, rec := newContext(t, http.MethodGet, "/cart", "", nil)
			require.NoError(t, h.getActiveCart(c))
			assert.Equal(t, tt.code, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

// ルート登録。JWT無しで叩くと全部401になる
func TestRegisterRoutes_RequireAuth(t *testing.T) {
	e := echo.New()
	h := NewCartHandler(new(CartServiceMock))
	h.RegisterRoutes(e, testConfig())

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/cart"},
		{http.MethodPost, "/cart"},
		{http.MethodPost, "/cart/items"},
		{http.MethodPut, "/cart/items"},
		{http.MethodDelete, "/cart/items/7"},
		{http.MethodDelete, "/cart/items"},
		{http.MethodPost, "/cart/abandon"},
		{http.MethodPost, "/cart/complete"},
		{http.MethodGet, "/cart/status/ACTIVE"},
	}

	for _, rt := range routes {
		req := httptest.NewRequest(rt.method, rt.path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", rt.method, rt.path)
	}
}
