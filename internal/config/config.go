package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	DatabaseURL      string // 指定があれば最優先
	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     int    // DBポート

	JWTSecret string // JWT署名シークレット

	GoEnv string // dev/prod

	// カートのセッション・並行制御まわり
	CartExpiryHours        int  // 放置されたカートの寿命（時間）
	CartWarningHours       int  // 期限切れ警告の幅（時間）
	CartMaxItems           int  // 1カートの明細数上限
	CartMaxRetries         int  // version競合時のリトライ回数
	CartRetryBaseDelayMS   int  // リトライの基本待ち時間（ms）
	CartCleanupIntervalMin int  // 定期掃除の間隔（分）
	CartWarningIntervalMin int  // 警告チェックの間隔（分）
	CartCleanupEnabled     bool // 定期掃除のON/OFF
}

// Loadは環境変数から設定を読む。カート系の項目は未設定ならデフォルトを使う。
func Load() (Config, error) {
	cfg := Config{
		Port: getenvDefault("PORT", "8080"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     getenvDefault("POSTGRES_HOST", "localhost"),
		PostgresPort:     atoiDefault("POSTGRES_PORT", 5432),

		JWTSecret: os.Getenv("JWT_SECRET"),

		GoEnv: getenvDefault("GO_ENV", "dev"),

		CartExpiryHours:        atoiDefault("CART_EXPIRY_HOURS", 24),
		CartWarningHours:       atoiDefault("CART_WARNING_HOURS", 4),
		CartMaxItems:           atoiDefault("CART_MAX_ITEMS", 50),
		CartMaxRetries:         atoiDefault("CART_MAX_RETRIES", 3),
		CartRetryBaseDelayMS:   atoiDefault("CART_RETRY_BASE_DELAY_MS", 100),
		CartCleanupIntervalMin: atoiDefault("CART_CLEANUP_INTERVAL_MINUTES", 360),
		CartWarningIntervalMin: atoiDefault("CART_WARNING_INTERVAL_MINUTES", 120),
		CartCleanupEnabled:     boolDefault("CART_CLEANUP_ENABLED", true),
	}

	//必須チェック
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.CartExpiryHours <= 0 {
		return Config{}, fmt.Errorf("CART_EXPIRY_HOURS must be positive")
	}
	if cfg.CartWarningHours < 0 || cfg.CartWarningHours >= cfg.CartExpiryHours {
		return Config{}, fmt.Errorf("CART_WARNING_HOURS must be less than CART_EXPIRY_HOURS")
	}
	if cfg.CartMaxRetries <= 0 {
		return Config{}, fmt.Errorf("CART_MAX_RETRIES must be positive")
	}

	return cfg, nil
}

// CartTTL は期限切れ判定の時間幅
func (c Config) CartTTL() time.Duration {
	return time.Duration(c.CartExpiryHours) * time.Hour
}

// CartWarningWindow は期限切れ警告の幅
func (c Config) CartWarningWindow() time.Duration {
	return time.Duration(c.CartWarningHours) * time.Hour
}

// CartRetryBaseDelay はリトライ1回目の待ち時間（以降は回数倍）
func (c Config) CartRetryBaseDelay() time.Duration {
	return time.Duration(c.CartRetryBaseDelayMS) * time.Millisecond
}

// CartCleanupInterval は定期掃除の間隔
func (c Config) CartCleanupInterval() time.Duration {
	return time.Duration(c.CartCleanupIntervalMin) * time.Minute
}

// CartWarningInterval は警告チェックの間隔
func (c Config) CartWarningInterval() time.Duration {
	return time.Duration(c.CartWarningIntervalMin) * time.Minute
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func atoiDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func boolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
