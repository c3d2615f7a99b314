package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/juanbetancurm/burgercartservice/internal/config"
	"github.com/juanbetancurm/burgercartservice/internal/domain/model"
	"github.com/juanbetancurm/burgercartservice/internal/handler"
	"github.com/juanbetancurm/burgercartservice/internal/infra/db"
	"github.com/juanbetancurm/burgercartservice/internal/infra/logger"
	infraRepo "github.com/juanbetancurm/burgercartservice/internal/infra/repository"
	"github.com/juanbetancurm/burgercartservice/internal/scheduler"
	"github.com/juanbetancurm/burgercartservice/internal/server"
	"github.com/juanbetancurm/burgercartservice/internal/usecase"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// セッションIDは cart_ + UUID先頭16桁（全体で32文字以内）
type sessionIDGenerator struct{}

func (g *sessionIDGenerator) NewID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "cart_" + raw[:16]
}

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

func main() {
	//.envが無くても環境変数だけで動く
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.GoEnv)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatalw("db connect failed", "error", err)
	}
	if err := gormDB.AutoMigrate(
		&model.Cart{},
		&model.CartItem{},
	); err != nil {
		log.Fatalw("db migrate failed", "error", err)
	}

	//Repository（GORM実装）生成
	cartRepo := infraRepo.NewCartGormRepository(gormDB)

	//usecaseに渡す部品
	idGen := &sessionIDGenerator{}
	clock := &realClock{}

	//Usecase生成
	cartUC := usecase.NewCartUsecase(cartRepo, clock, idGen, log, usecase.CartConfig{
		TTL:            cfg.CartTTL(),
		WarningWindow:  cfg.CartWarningWindow(),
		MaxItems:       cfg.CartMaxItems,
		MaxRetries:     cfg.CartMaxRetries,
		RetryBaseDelay: cfg.CartRetryBaseDelay(),
	})

	//定期掃除
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.CartCleanupEnabled {
		sweeper := scheduler.NewCartCleanupService(
			cartUC, log, cfg.CartCleanupInterval(), cfg.CartWarningInterval())
		go sweeper.Start(ctx)
	} else {
		log.Infow("cart cleanup scheduler disabled")
	}

	//Handler生成
	cartH := handler.NewCartHandler(cartUC)

	//Server起動
	addr := cfg.Port
	if !strings.HasPrefix(addr, ":") {
		addr = ":" + addr
	}

	log.Infow("starting cart service", "addr", addr,
		"cart_ttl_hours", cfg.CartExpiryHours, "max_items", cfg.CartMaxItems)

	//SIGINT/SIGTERMでサーバーも巻き込んで畳む
	if err := server.Start(ctx, addr, cfg, cartH); err != nil {
		log.Fatalw("server stopped", "error", err)
	}
	log.Infow("shutdown complete")
}
