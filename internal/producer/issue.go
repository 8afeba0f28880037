package producer

import (
	"context"
	"sort"
	"strconv"

	"mediarelay/internal/notify"
	"mediarelay/internal/users"
	logx "mediarelay/pkg/logx"
)

func (s *Service) IssueCreated(ctx context.Context, issue Issue) {
	s.sendIssue(ctx, issue, notify.KindIssueCreated)
}

func (s *Service) IssueResolved(ctx context.Context, issue Issue) {
	s.sendIssue(ctx, issue, notify.KindIssueResolved)
}

func (s *Service) IssueReopened(ctx context.Context, issue Issue) {
	s.sendIssue(ctx, issue, notify.KindIssueReopened)
}

func (s *Service) sendIssue(ctx context.Context, issue Issue, kind notify.Kind) {
	title, image, err := s.resolveMedia(ctx, issue.Media)
	if err != nil {
		s.log.Error("dropping issue notification: media lookup failed",
			logx.Int("issue_id", issue.ID),
			logx.String("kind", kind.String()),
			logx.Err(err),
		)
		return
	}

	var message string
	if first := firstComment(issue.Comments); first != nil {
		message = first.Message
	}

	var extra []notify.Extra
	if issue.Media.Type == notify.MediaTypeTV && issue.ProblemSeason > 0 {
		extra = append(extra, notify.Extra{Name: "Affected Season", Value: strconv.Itoa(issue.ProblemSeason)})
		if issue.ProblemEpisode > 0 {
			extra = append(extra, notify.Extra{Name: "Affected Episode", Value: strconv.Itoa(issue.ProblemEpisode)})
		}
	}

	// The reporter is only told about other people's status changes, and only
	// when they can't see the admin stream anyway.
	var notifyUser *users.User
	if kind == notify.KindIssueResolved || kind == notify.KindIssueReopened {
		if issue.CreatedBy != nil && !issue.CreatedBy.HasPermission(users.PermissionManageIssues) &&
			(issue.ModifiedBy == nil || issue.ModifiedBy.ID != issue.CreatedBy.ID) {
			notifyUser = issue.CreatedBy
		}
	}

	s.dispatcher.Send(ctx, kind, notify.Payload{
		Event:   issueEvent(issue.Type, kind),
		Subject: title,
		Message: message,
		Image:   image,
		Extra:   extra,
		Issue: &notify.IssueInfo{
			ID:         issue.ID,
			ReportedBy: issue.CreatedBy,
			Type:       issue.Type,
			Status:     issue.Status,
		},
		Media:        mediaRef(issue.Media),
		NotifySystem: true,
		NotifyAdmin:  true,
		NotifyUser:   notifyUser,
	})
}

// IssueCommentAdded dispatches a comment notification unless the comment is
// the issue's opening description.
func (s *Service) IssueCommentAdded(ctx context.Context, issue Issue, comment IssueComment) {
	if first := firstComment(issue.Comments); first != nil && first.ID == comment.ID {
		return
	}

	title, image, err := s.resolveMedia(ctx, issue.Media)
	if err != nil {
		s.log.Error("dropping comment notification: media lookup failed",
			logx.Int("issue_id", issue.ID),
			logx.Int("comment_id", comment.ID),
			logx.Err(err),
		)
		return
	}

	var notifyUser *users.User
	if issue.CreatedBy != nil && !issue.CreatedBy.HasPermission(users.PermissionManageIssues) &&
		(comment.User == nil || comment.User.ID != issue.CreatedBy.ID) {
		notifyUser = issue.CreatedBy
	}

	s.dispatcher.Send(ctx, notify.KindIssueComment, notify.Payload{
		Event:   "New Comment on " + issueTypePrefix(issue.Type) + "Issue",
		Subject: title,
		Message: comment.Message,
		Image:   image,
		Comment: &notify.CommentInfo{User: comment.User, Message: comment.Message},
		Media:   mediaRef(issue.Media),
		// The comment block wins over the issue block (a payload carries at
		// most one context), but the issue id still drives the deep link via
		// the media reference.
		NotifySystem: true,
		NotifyAdmin:  true,
		NotifyUser:   notifyUser,
	})
}

func issueEvent(t notify.IssueType, kind notify.Kind) string {
	prefix := issueTypePrefix(t)
	switch kind {
	case notify.KindIssueResolved:
		return prefix + "Issue Resolved"
	case notify.KindIssueReopened:
		return prefix + "Issue Reopened"
	default:
		return prefix + "Issue Reported"
	}
}

func issueTypePrefix(t notify.IssueType) string {
	if t == notify.IssueTypeOther {
		return ""
	}
	return t.Label() + " "
}

func firstComment(comments []IssueComment) *IssueComment {
	if len(comments) == 0 {
		return nil
	}
	sorted := append([]IssueComment(nil), comments...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &sorted[0]
}
