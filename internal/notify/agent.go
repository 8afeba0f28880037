package notify

import (
	"context"

	"mediarelay/internal/users"
)

// Agent is one delivery channel.
//
// ShouldSend is the gate: it must be pure with respect to current settings
// and is evaluated once per dispatch. Send resolves recipients, renders the
// payload into the channel's wire format, and attempts every resolved
// delivery. Send reports true once all recipient branches were attempted,
// regardless of individual outcomes; failures surface only through the
// delivery reporter.
type Agent interface {
	Name() string
	ShouldSend() bool
	Send(ctx context.Context, kind Kind, p Payload) bool
}

// Delivery is the explicit outcome of one recipient delivery attempt.
type Delivery struct {
	Agent     string
	Kind      Kind
	Recipient string
	Subject   string
	Err       error
}

func (d Delivery) OK() bool { return d.Err == nil }

// AdminFilter decides whether an administrator should receive an admin-targeted
// notification. It is supplied from outside the agents so deployment-specific
// rules stay out of the channel implementations.
type AdminFilter func(kind Kind, u *users.User, p Payload) bool

// DefaultAdminFilter requires the managing permission for the event family and
// suppresses notifications about the user's own activity.
func DefaultAdminFilter(kind Kind, u *users.User, p Payload) bool {
	if u == nil {
		return false
	}
	if IsIssueKind(kind) {
		if !u.HasPermission(users.PermissionManageIssues) {
			return false
		}
	} else if !u.HasPermission(users.PermissionManageRequests) {
		return false
	}

	// Own actions are not news.
	if p.Comment != nil && p.Comment.User != nil && p.Comment.User.ID == u.ID {
		return false
	}
	if p.Issue != nil && kind == KindIssueCreated && p.Issue.ReportedBy != nil && p.Issue.ReportedBy.ID == u.ID {
		return false
	}
	if p.Request != nil && p.Request.RequestedBy != nil && p.Request.RequestedBy.ID == u.ID {
		return false
	}
	return true
}
