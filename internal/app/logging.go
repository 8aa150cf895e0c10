package app

import (
	"strings"

	"cronlock/internal/config"
	"cronlock/internal/transport/telegram/alert"
	"cronlock/pkg/logx"
)

// LogConfig maps the logging section onto logx.
func LogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled:    lc.File.Enabled,
			Path:       lc.File.Path,
			MaxSizeMB:  lc.File.MaxSizeMB,
			MaxBackups: lc.File.MaxBackups,
		},
		Alert: logx.AlertConfig{
			Enabled:    lc.Telegram.Enabled,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

// alertSender connects the Telegram sink. A failure is logged and alerts
// stay off; the service itself does not depend on Telegram.
func alertSender(cfg *config.Config, boot logx.Logger) logx.AlertSender {
	if !cfg.Logging.Telegram.Enabled || strings.TrimSpace(cfg.Telegram.Token) == "" {
		return nil
	}
	s, err := alert.New(alert.Config{
		Token:    cfg.Telegram.Token,
		ChatID:   cfg.Telegram.ChatID,
		ThreadID: cfg.Telegram.ThreadID,
	})
	if err != nil {
		boot.Warn("telegram alerts disabled", logx.Err(err))
		return nil
	}
	return s
}
