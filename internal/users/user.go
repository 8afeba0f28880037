package users

import "context"

// Permission is a bitmask of capabilities granted to a user.
//
// Admin implies every other permission; HasPermission accounts for that.
type Permission uint32

const (
	PermissionNone Permission = 0

	PermissionAdmin Permission = 1 << iota
	PermissionManageSettings
	PermissionManageUsers
	PermissionManageRequests
	PermissionManageIssues
	PermissionAutoApprove
)

// AgentKey identifies a notification channel in per-user preferences.
type AgentKey string

const (
	AgentTelegram AgentKey = "telegram"
	AgentSlack    AgentKey = "slack"
	AgentWebhook  AgentKey = "webhook"
)

// ChannelPrefs holds one user's delivery preferences for a single channel.
//
// NotifyTypes is a notification-kind bitmask; a zero mask means the user has
// opted out of this channel entirely.
type ChannelPrefs struct {
	NotifyTypes uint32 `json:"notify_types"`
	ChatID      int64  `json:"chat_id,omitempty"`
	ThreadID    int    `json:"thread_id,omitempty"`
	Silent      bool   `json:"silent,omitempty"`
}

// NotificationSettings holds a user's per-channel preferences.
type NotificationSettings struct {
	Channels map[AgentKey]ChannelPrefs `json:"channels,omitempty"`
}

// Channel returns the preferences for the given channel, if any were saved.
func (s *NotificationSettings) Channel(key AgentKey) (ChannelPrefs, bool) {
	if s == nil || s.Channels == nil {
		return ChannelPrefs{}, false
	}
	p, ok := s.Channels[key]
	return p, ok
}

// HasNotificationType reports whether the user subscribed to any of the kinds
// in types on the given channel.
func (s *NotificationSettings) HasNotificationType(key AgentKey, types uint32) bool {
	p, ok := s.Channel(key)
	if !ok {
		return false
	}
	return p.NotifyTypes&types != 0
}

type User struct {
	ID          int64                 `json:"id"`
	DisplayName string                `json:"display_name"`
	Email       string                `json:"email,omitempty"`
	Permissions Permission            `json:"permissions"`
	Settings    *NotificationSettings `json:"settings,omitempty"`
}

func (u *User) HasPermission(p Permission) bool {
	if u == nil {
		return false
	}
	if u.Permissions&PermissionAdmin != 0 {
		return true
	}
	return u.Permissions&p != 0
}

// Repository is the read boundary the notification engine uses to fan out to
// administrators. Implementations must return a snapshot; callers iterate the
// returned slice without further locking.
type Repository interface {
	All(ctx context.Context) ([]User, error)
}
