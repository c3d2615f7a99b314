package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/juanbetancurm/burgercartservice/internal/config"
	"github.com/juanbetancurm/burgercartservice/internal/handler"

	"github.com/labstack/echo/v4"
)

// シャットダウン時に処理中のリクエストを待つ上限
const shutdownTimeout = 10 * time.Second

// Start はHTTPサーバーを起動し、ctxが終わるまでブロックする。
// ctx終了時は処理中のリクエストを待ってから戻る（正常終了はnil）。
func Start(ctx context.Context, addr string, cfg config.Config, cartH *handler.CartHandler) error {
	e := echo.New()
	e.HideBanner = true

	RegisterRoutes(e, cfg, cartH)

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		//listen失敗など、シグナルを待たずに落ちた
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}

	//Shutdown後のe.StartはErrServerClosedを返す
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
