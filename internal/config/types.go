package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "300ms", "10s", "1m").
type Config struct {
	Paths    PathsConfig    `json:"paths"`
	Lock     LockConfig     `json:"lock"`
	Launch   LaunchConfig   `json:"launch"`
	Cron     CronConfig     `json:"cron"`
	Storage  StorageConfig  `json:"storage"`
	HTTP     HTTPConfig     `json:"http"`
	Logging  LoggingConfig  `json:"logging"`
	Telegram TelegramConfig `json:"telegram"`
}

// PathsConfig holds every directory cronlock writes to. Relative paths are
// resolved against the config file's directory.
type PathsConfig struct {
	LockDir string `json:"lock_dir"`
	LogDir  string `json:"log_dir"`
	WorkDir string `json:"work_dir"`
}

// LockConfig selects the acquire mode: "advisory" (default) or "atomic".
type LockConfig struct {
	Mode string `json:"mode"`
}

type LaunchConfig struct {
	Shell string `json:"shell"`
	// Grace is how long a manual run waits before confirming the child is
	// alive.
	Grace string `json:"grace"`
}

// CronConfig selects where schedules are installed.
//
// Backend values:
//   - "command": the user's crontab via crontab(1) (default)
//   - "file": a plain file at Path (cron.d style drop-in, tests)
type CronConfig struct {
	Backend string `json:"backend"`
	Path    string `json:"path,omitempty"`
	Bin     string `json:"bin,omitempty"`
	User    string `json:"user,omitempty"`
	// Executable is the cronlock binary crontab entries call. Defaults to
	// the running binary.
	Executable string `json:"executable,omitempty"`
}

// StorageConfig controls the definition store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "/var/lib/cronlock/cronlock.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type HTTPConfig struct {
	Addr          string  `json:"addr"`
	ReadTimeout   string  `json:"read_timeout,omitempty"`
	WriteTimeout  string  `json:"write_timeout,omitempty"`
	IdleTimeout   string  `json:"idle_timeout,omitempty"`
	RunRatePerSec float64 `json:"run_rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// TelegramConfig is the alert destination used when logging.telegram is
// enabled.
type TelegramConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}
