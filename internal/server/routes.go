package server

import (
	"net/http"

	"github.com/juanbetancurm/burgercartservice/internal/config"
	"github.com/juanbetancurm/burgercartservice/internal/handler"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, cfg config.Config, cartH *handler.CartHandler) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	cartH.RegisterRoutes(e, cfg)
}
