package settings

// Settings is the process-wide configuration. It is hot-reloadable: agents
// must re-read it through a Provider on every dispatch instead of caching
// long-lived copies.
type Settings struct {
	Main     MainSettings     `json:"main"`
	Logging  LoggingSettings  `json:"logging"`
	Storage  *StorageSettings `json:"storage,omitempty"`
	Ingest    IngestSettings     `json:"ingest"`
	Metadata  MetadataSettings   `json:"metadata"`
	Retention *RetentionSettings `json:"retention,omitempty"`

	Notifications NotificationsSettings `json:"notifications"`
}

type MainSettings struct {
	// ApplicationTitle is used in rendered deep-link lines
	// ("View Media in <title>").
	ApplicationTitle string `json:"application_title"`
	// ApplicationURL enables deep links when set (no trailing slash).
	ApplicationURL string `json:"application_url,omitempty"`
}

type LoggingSettings struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageSettings controls the optional persistence layer
// (users + delivery audit records).
type StorageSettings struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// IngestSettings controls the HTTP event-ingest listener.
type IngestSettings struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address,omitempty"` // default: "127.0.0.1:5480"
	Token   string `json:"token,omitempty"`   // optional bearer token (do not log)
}

// MetadataSettings configures the TMDB title lookup used when turning domain
// events into notification payloads.
type MetadataSettings struct {
	TMDBAPIKey string `json:"tmdb_api_key,omitempty"`
}

// RetentionSettings controls pruning of delivery audit records.
//
// Schedule is a cron expression; MaxAge is a Go duration string.
type RetentionSettings struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // default: "0 3 * * *"
	MaxAge   string `json:"max_age,omitempty"`  // default: "720h"
}

type NotificationsSettings struct {
	Telegram TelegramSettings `json:"telegram"`
	Slack    SlackSettings    `json:"slack"`
	Webhook  WebhookSettings  `json:"webhook"`
}

// TelegramSettings configures the Telegram channel agent.
//
// Types is the notification-kind bitmask the system destination is
// subscribed to; per-user deliveries are governed by each user's own mask.
type TelegramSettings struct {
	Enabled bool            `json:"enabled"`
	Types   uint32          `json:"types"`
	Options TelegramOptions `json:"options"`
}

type TelegramOptions struct {
	BotToken        string `json:"bot_token"`
	ChatID          int64  `json:"chat_id,omitempty"`
	MessageThreadID int    `json:"message_thread_id,omitempty"`
	SendSilently    bool   `json:"send_silently,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
}

type SlackSettings struct {
	Enabled bool         `json:"enabled"`
	Types   uint32       `json:"types"`
	Options SlackOptions `json:"options"`
}

type SlackOptions struct {
	WebhookURL string `json:"webhook_url"`
}

type WebhookSettings struct {
	Enabled bool           `json:"enabled"`
	Types   uint32         `json:"types"`
	Options WebhookOptions `json:"options"`
}

type WebhookOptions struct {
	URL        string `json:"url"`
	AuthHeader string `json:"auth_header,omitempty"`
}
