package telegram

import (
	"fmt"
	"strings"

	"mediarelay/internal/notify"
	"mediarelay/internal/settings"
)

// captionMaxLength is Telegram's sendPhoto caption limit.
const captionMaxLength = 1024

// mdv2Escaper backslash-escapes every character MarkdownV2 reserves. It is
// applied to user-controlled text only, never to markup the renderer emits.
var mdv2Escaper = strings.NewReplacer(
	"_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`,
	"(", `\(`, ")", `\)`, "~", `\~`, ">", `\>`,
	"#", `\#`, "+", `\+`, "-", `\-`, "=", `\=`,
	"|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
)

func escapeText(s string) string {
	if s == "" {
		return ""
	}
	return mdv2Escaper.Replace(s)
}

// Rendered is the channel-native form of one payload. When Photo is set,
// Text is the (already length-bounded) caption.
type Rendered struct {
	Text  string
	Photo string
}

// Render builds the MarkdownV2 message body for a payload. It is a pure
// function of its arguments and performs no I/O.
func Render(kind notify.Kind, p notify.Payload, main settings.MainSettings) Rendered {
	var b strings.Builder

	title := p.Subject
	if p.Event != "" {
		title = p.Event + " - " + p.Subject
	}
	b.WriteString("*" + escapeText(title) + "*")

	if p.Message != "" {
		b.WriteString("\n" + escapeText(p.Message))
	}

	switch {
	case p.Request != nil:
		name := ""
		if p.Request.RequestedBy != nil {
			name = p.Request.RequestedBy.DisplayName
		}
		b.WriteString("\n\n*Requested By:* " + escapeText(name))
		if status := requestStatus(kind, p.Media); status != "" {
			b.WriteString("\n*Request Status:* " + status)
		}
	case p.Comment != nil:
		name := ""
		if p.Comment.User != nil {
			name = p.Comment.User.DisplayName
		}
		b.WriteString("\n\n*Comment from " + escapeText(name) + ":* " + escapeText(p.Comment.Message))
	case p.Issue != nil:
		name := ""
		if p.Issue.ReportedBy != nil {
			name = p.Issue.ReportedBy.DisplayName
		}
		b.WriteString("\n\n*Reported By:* " + escapeText(name))
		b.WriteString("\n*Issue Type:* " + p.Issue.Type.Label())
		status := "Open"
		if p.Issue.Status == notify.IssueStatusResolved {
			status = "Resolved"
		}
		b.WriteString("\n*Issue Status:* " + status)
	}

	for _, extra := range p.Extra {
		b.WriteString("\n*" + escapeText(extra.Name) + ":* " + escapeText(extra.Value))
	}

	if url := deepLink(main.ApplicationURL, p); url != "" {
		what := "Media"
		if p.Issue != nil {
			what = "Issue"
		}
		b.WriteString("\n\n[View " + what + " in " + escapeText(main.ApplicationTitle) + "](" + url + ")")
	}

	if p.Image != "" {
		return Rendered{Photo: p.Image, Text: truncateCaption(b.String(), captionMaxLength)}
	}
	return Rendered{Text: b.String()}
}

// requestStatus maps a kind to the human status line. Kinds outside the table
// render no status line.
func requestStatus(kind notify.Kind, media *notify.MediaRef) string {
	switch kind {
	case notify.KindMediaAutoRequested:
		if media != nil && media.Status == notify.MediaStatusPending {
			return "Pending Approval"
		}
		return "Processing"
	case notify.KindMediaPending:
		return "Pending Approval"
	case notify.KindMediaApproved, notify.KindMediaAutoApproved:
		return "Processing"
	case notify.KindMediaAvailable:
		return "Available"
	case notify.KindMediaDeclined:
		return "Declined"
	case notify.KindMediaFailed:
		return "Failed"
	default:
		return ""
	}
}

func deepLink(appURL string, p notify.Payload) string {
	if appURL == "" {
		return ""
	}
	if p.Issue != nil {
		return fmt.Sprintf("%s/issues/%d", appURL, p.Issue.ID)
	}
	if p.Media != nil {
		return fmt.Sprintf("%s/%s/%d", appURL, p.Media.Type, p.Media.TmdbID)
	}
	return ""
}

// truncateCaption bounds a caption so that the final length, ellipsis
// included, never exceeds maxLen.
func truncateCaption(caption string, maxLen int) string {
	if len(caption) <= maxLen {
		return caption
	}
	return caption[:maxLen-3] + "..."
}
