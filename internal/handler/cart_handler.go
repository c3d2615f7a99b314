package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/juanbetancurm/burgercartservice/internal/config"
	"github.com/juanbetancurm/burgercartservice/internal/domain/model"
	"github.com/juanbetancurm/burgercartservice/internal/middleware"
	"github.com/juanbetancurm/burgercartservice/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// /cartのHTTP
type CartHandler struct {
	uc usecase.CartService
}

// DI
func NewCartHandler(uc usecase.CartService) *CartHandler {
	return &CartHandler{uc: uc}
}

type AddCartItemRequest struct {
	ArticleID   int64   `json:"article_id"`
	ArticleName string  `json:"article_name"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

type UpdateCartItemRequest struct {
	ArticleID int64 `json:"article_id"`
	Quantity  int   `json:"quantity"`
}

type CartItemResponse struct {
	ArticleID   int64   `json:"article_id"`
	ArticleName string  `json:"article_name"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	Subtotal    float64 `json:"subtotal"`
}

type CartResponse struct {
	ID           int64              `json:"id"`
	UserID       string             `json:"user_id"`
	Items        []CartItemResponse `json:"items"`
	Total        float64            `json:"total"`
	Status       string             `json:"status"`
	SessionID    string             `json:"session_id"`
	LastUpdated  time.Time          `json:"last_updated"`
	ExpiringSoon bool               `json:"expiring_soon"`
}

// /cart配下を登録（全てJWT必須）
func (h *CartHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/cart")
	g.Use(middleware.AuthJWT(cfg))

	g.GET("", h.getActiveCart)
	g.POST("", h.createCart)
	g.POST("/items", h.addItem)
	g.PUT("/items", h.updateItemQuantity)
	g.DELETE("/items/:articleId", h.removeItem)
	g.DELETE("/items", h.clearCart)
	g.POST("/abandon", h.abandonCart)
	g.POST("/complete", h.completeCart)
	g.GET("/status/:status", h.getCartByStatus)
}

func (h *CartHandler) getActiveCart(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	cart, err := h.uc.GetActiveCart(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, h.toCartResponse(cart))
}

func (h *CartHandler) createCart(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	cart, err := h.uc.CreateCart(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, h.toCartResponse(cart))
}

func (h *CartHandler) addItem(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req AddCartItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	cart, err := h.uc.AddItem(c.Request().Context(), userID, usecase.AddItemInput{
		ArticleID:   req.ArticleID,
		ArticleName: req.ArticleName,
		Quantity:    req.Quantity,
		Price:       req.Price,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, h.toCartResponse(cart))
}

func (h *CartHandler) updateItemQuantity(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req UpdateCartItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	cart, err := h.uc.UpdateItemQuantity(c.Request().Context(), userID, req.ArticleID, req.Quantity)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, h.toCartResponse(cart))
}

func (h *CartHandler) removeItem(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	articleID, err := strconv.ParseInt(c.Param("articleId"), 10, 64)
	if err != nil || articleID <= 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid article id"})
	}

	cart, err := h.uc.RemoveItem(c.Request().Context(), userID, articleID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, h.toCartResponse(cart))
}

func (h *CartHandler) clearCart(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	cart, err := h.uc.ClearCart(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, h.toCartResponse(cart))
}

func (h *CartHandler) abandonCart(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	cart, err := h.uc.AbandonCart(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, h.toCartResponse(cart))
}

func (h *CartHandler) completeCart(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	cart, err := h.uc.CompleteCart(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, h.toCartResponse(cart))
}

func (h *CartHandler) getCartByStatus(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	status := model.CartStatus(c.Param("status"))

	cart, err := h.uc.GetCartByStatus(c.Request().Context(), userID, status)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, h.toCartResponse(cart))
}

// 業務エラー→HTTPステータスの変換を1か所にまとめる
func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, model.ErrInvalidParameter):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrItemNotFound),
		errors.Is(err, model.ErrCartNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrDuplicateArticle),
		errors.Is(err, model.ErrInvalidOperation),
		errors.Is(err, model.ErrLimitExceeded),
		errors.Is(err, model.ErrConcurrencyConflict):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	}

	//500
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

// middleware.AuthJWT が c.Set("user_id", string) した値を取り出す
func getUserIDFromContext(c echo.Context) (string, bool) {
	v := c.Get(middleware.CtxUserIDKey)
	if v == nil {
		return "", false
	}

	id, ok := v.(string)
	if !ok || id == "" {
		return "", false
	}

	return id, true
}

func (h *CartHandler) toCartResponse(cart model.Cart) CartResponse {
	items := make([]CartItemResponse, 0, len(cart.Items))
	for _, it := range cart.Items {
		items = append(items, CartItemResponse{
			ArticleID:   it.ArticleID,
			ArticleName: it.ArticleName,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Subtotal:    it.Subtotal,
		})
	}

	return CartResponse{
		ID:           cart.ID,
		UserID:       cart.UserID,
		Items:        items,
		Total:        cart.Total,
		Status:       string(cart.Status),
		SessionID:    cart.SessionID,
		LastUpdated:  cart.LastUpdated,
		ExpiringSoon: h.uc.IsApproachingExpiry(cart),
	}
}
