package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Reminders RemindersConfig `json:"reminders"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the persistence backend.
//
// Driver values:
//   - "file": one JSON document per record under Path (a directory)
//   - "sqlite": SQLite database file at Path
type StorageConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// RemindersConfig controls the daily trigger loop.
//
// Morning and Afternoon are local wall-clock times in "HH:MM" form.
// Timezone is an IANA name; empty means the process local zone.
type RemindersConfig struct {
	Enabled   bool   `json:"enabled"`
	Morning   string `json:"morning,omitempty"`
	Afternoon string `json:"afternoon,omitempty"`
	Timezone  string `json:"timezone,omitempty"`

	// RatePerSec caps reminder sends per second (Telegram flood protection).
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// PassTimeout bounds a single dispatch pass (Go duration string).
	PassTimeout string `json:"pass_timeout,omitempty"`
}
