package users

import "testing"

func TestHasPermission(t *testing.T) {
	t.Parallel()
	admin := &User{ID: 1, Permissions: PermissionAdmin}
	manager := &User{ID: 2, Permissions: PermissionManageRequests}
	var nobody *User

	if !admin.HasPermission(PermissionManageIssues) {
		t.Fatal("admin implies every permission")
	}
	if !manager.HasPermission(PermissionManageRequests) {
		t.Fatal("explicit permission should pass")
	}
	if manager.HasPermission(PermissionManageIssues) {
		t.Fatal("permissions are not transitive")
	}
	if nobody.HasPermission(PermissionManageRequests) {
		t.Fatal("nil user has no permissions")
	}
}

func TestChannelPrefsNilSafety(t *testing.T) {
	t.Parallel()
	var s *NotificationSettings
	if _, ok := s.Channel(AgentTelegram); ok {
		t.Fatal("nil settings have no channels")
	}
	if s.HasNotificationType(AgentTelegram, 0xffff) {
		t.Fatal("nil settings subscribe to nothing")
	}

	s = &NotificationSettings{
		Channels: map[AgentKey]ChannelPrefs{
			AgentTelegram: {NotifyTypes: 0b110, ChatID: 42},
		},
	}
	prefs, ok := s.Channel(AgentTelegram)
	if !ok || prefs.ChatID != 42 {
		t.Fatalf("prefs = %+v", prefs)
	}
	if _, ok := s.Channel(AgentSlack); ok {
		t.Fatal("unconfigured channel should report absent")
	}
	if !s.HasNotificationType(AgentTelegram, 0b010) {
		t.Fatal("overlapping mask should match")
	}
	if s.HasNotificationType(AgentTelegram, 0b1000) {
		t.Fatal("disjoint mask should not match")
	}
}
