package logger

import (
	"go.uber.org/zap"
)

// New は環境に応じたzapロガーを作る（prodはJSON、それ以外は開発用の色付き）。
func New(env string) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	switch env {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// Nop はテスト用の何もしないロガー
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
