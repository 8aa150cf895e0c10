package config

import (
	"reflect"

	"cronlock/pkg/logx"
)

// SummarizeChange lists the top-level sections that differ and safe fields
// for logging. Secrets (telegram.token) are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)
	note := func(section string, differs bool, fields ...logx.Field) {
		if !differs {
			return
		}
		changed = append(changed, section)
		attrs = append(attrs, fields...)
	}

	note("paths", oldCfg.Paths != newCfg.Paths,
		logx.String("paths.lock_dir", newCfg.Paths.LockDir),
		logx.String("paths.log_dir", newCfg.Paths.LogDir),
	)
	note("lock", oldCfg.Lock != newCfg.Lock, logx.String("lock.mode", newCfg.Lock.Mode))
	note("launch", oldCfg.Launch != newCfg.Launch,
		logx.String("launch.shell", newCfg.Launch.Shell),
		logx.String("launch.grace", newCfg.Launch.Grace),
	)
	note("cron", oldCfg.Cron != newCfg.Cron, logx.String("cron.backend", newCfg.Cron.Backend))
	note("storage", oldCfg.Storage != newCfg.Storage, logx.String("storage.driver", newCfg.Storage.Driver))
	note("http", oldCfg.HTTP != newCfg.HTTP, logx.String("http.addr", newCfg.HTTP.Addr))
	note("logging", !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging),
		logx.String("logging.level", newCfg.Logging.Level),
		logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
	)
	note("telegram", oldCfg.Telegram != newCfg.Telegram,
		logx.Bool("telegram.token_set", newCfg.Telegram.Token != ""),
		logx.Int64("telegram.chat_id", newCfg.Telegram.ChatID),
	)
	return changed, attrs
}

// HotReloadable reports whether every changed section can be applied to a
// running server. Only logging qualifies; the rest needs a restart.
func HotReloadable(changed []string) bool {
	for _, s := range changed {
		if s != "logging" {
			return false
		}
	}
	return true
}
