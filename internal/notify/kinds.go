package notify

import (
	"sort"
	"strings"
)

// Kind is a bitmask of notification event types.
//
// The numeric values are part of the settings format (system subscription
// masks and per-user preference masks are stored as plain integers), so new
// kinds must only ever be appended.
type Kind uint32

const (
	KindNone Kind = 0

	KindMediaPending Kind = 1 << iota // 2
	KindMediaApproved
	KindMediaAvailable
	KindMediaFailed
	KindTest
	KindMediaDeclined
	KindMediaAutoApproved
	KindIssueCreated
	KindIssueComment
	KindIssueResolved
	KindIssueReopened
	KindMediaAutoRequested
)

// KindAll subscribes to every known kind.
const KindAll = KindMediaPending | KindMediaApproved | KindMediaAvailable |
	KindMediaFailed | KindTest | KindMediaDeclined | KindMediaAutoApproved |
	KindIssueCreated | KindIssueComment | KindIssueResolved |
	KindIssueReopened | KindMediaAutoRequested

var kindNames = map[Kind]string{
	KindMediaPending:       "media.pending",
	KindMediaApproved:      "media.approved",
	KindMediaAvailable:     "media.available",
	KindMediaFailed:        "media.failed",
	KindTest:               "test",
	KindMediaDeclined:      "media.declined",
	KindMediaAutoApproved:  "media.auto_approved",
	KindIssueCreated:       "issue.created",
	KindIssueComment:       "issue.comment",
	KindIssueResolved:      "issue.resolved",
	KindIssueReopened:      "issue.reopened",
	KindMediaAutoRequested: "media.auto_requested",
}

func (k Kind) String() string {
	if k == KindNone {
		return "none"
	}
	if n, ok := kindNames[k]; ok {
		return n
	}
	// Composite masks: join the set bits.
	parts := make([]string, 0, 4)
	for bit, n := range kindNames {
		if k&bit != 0 {
			parts = append(parts, n)
		}
	}
	if len(parts) == 0 {
		return "unknown"
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

// HasNotificationType reports whether kind is included in the mask types.
func HasNotificationType(kind Kind, types Kind) bool {
	return types&kind != 0
}

// IsIssueKind reports whether kind belongs to the issue event family.
func IsIssueKind(kind Kind) bool {
	return kind&(KindIssueCreated|KindIssueComment|KindIssueResolved|KindIssueReopened) != 0
}
