package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Counter controls the card-tally core (display style, edit debounce,
	// auto-report bounds, reply throttling).
	Counter CounterConfig `json:"counter"`

	Storage     *StorageConfig    `json:"storage,omitempty"`
	Maintenance MaintenanceConfig `json:"maintenance"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// GroupLog is the chat id (as string) receiving log lines when
	// logging.telegram is enabled.
	GroupLog string `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// CounterConfig controls the tally core.
//
// Defaults (when fields are omitted/zero):
//   - style: 1
//   - quiet_window: "3s"
//   - report_min_minutes / report_max_minutes: 5 / 32
//   - reply_rate_per_sec: 1
type CounterConfig struct {
	// Style selects how counter responses are rendered (1..3).
	Style int `json:"style,omitempty"`

	// QuietWindow is how long an edited message must stay unchanged before
	// it is counted (Go duration string).
	QuietWindow string `json:"quiet_window,omitempty"`

	ReportMinMinutes int `json:"report_min_minutes,omitempty"`
	ReportMaxMinutes int `json:"report_max_minutes,omitempty"`

	ReplyRatePerSec int `json:"reply_rate_per_sec,omitempty"`
}

// StorageConfig controls the optional best-effort persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./tallybot_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// MaintenanceConfig controls the periodic housekeeping job
// (status flush + dedup journal compaction).
type MaintenanceConfig struct {
	Enabled bool `json:"enabled"`
	// FlushSpec is a cron spec or "@every <duration>" (robfig/cron syntax).
	FlushSpec string `json:"flush_spec,omitempty"`
}
