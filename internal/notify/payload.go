package notify

import (
	"errors"

	"mediarelay/internal/users"
)

type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

type MediaStatus int

const (
	MediaStatusUnknown MediaStatus = iota
	MediaStatusPending
	MediaStatusProcessing
	MediaStatusPartiallyAvailable
	MediaStatusAvailable
)

type IssueType int

const (
	IssueTypeVideo IssueType = iota + 1
	IssueTypeAudio
	IssueTypeSubtitles
	IssueTypeOther
)

func (t IssueType) Label() string {
	switch t {
	case IssueTypeVideo:
		return "Video"
	case IssueTypeAudio:
		return "Audio"
	case IssueTypeSubtitles:
		return "Subtitle"
	case IssueTypeOther:
		return "Other"
	default:
		return "Unknown"
	}
}

type IssueStatus int

const (
	IssueStatusOpen IssueStatus = iota + 1
	IssueStatusResolved
)

// MediaRef identifies the media a payload is about. It feeds the request
// status derivation and the deep link at the bottom of rendered messages.
type MediaRef struct {
	Type   MediaType
	TmdbID int
	Status MediaStatus
}

// Extra is one additional labeled fact appended to the rendered message.
type Extra struct {
	Name  string
	Value string
}

// RequestInfo is the contextual block for request lifecycle events.
type RequestInfo struct {
	RequestedBy *users.User
}

// CommentInfo is the contextual block for issue comment events.
type CommentInfo struct {
	User    *users.User
	Message string
}

// IssueInfo is the contextual block for issue lifecycle events.
type IssueInfo struct {
	ID         int
	ReportedBy *users.User
	Type       IssueType
	Status     IssueStatus
}

var ErrAmbiguousContext = errors.New("payload carries more than one context block")

// Payload is the channel-agnostic description of one notification event.
//
// It is passed by value into the manager, fanned out to agents, and discarded
// once the dispatch completes; it owns no persistent state.
//
// Exactly zero or one of Request, Comment, Issue may be set. The three
// targeting flags are independent: one payload may address the system
// destination, a directly-affected user, and the admin set simultaneously.
type Payload struct {
	Event   string
	Subject string
	Message string
	Image   string
	Extra   []Extra

	Request *RequestInfo
	Comment *CommentInfo
	Issue   *IssueInfo
	Media   *MediaRef

	NotifySystem bool
	NotifyUser   *users.User
	NotifyAdmin  bool
}

func (p Payload) Validate() error {
	if p.Subject == "" {
		return errors.New("payload subject is required")
	}
	n := 0
	if p.Request != nil {
		n++
	}
	if p.Comment != nil {
		n++
	}
	if p.Issue != nil {
		n++
	}
	if n > 1 {
		return ErrAmbiguousContext
	}
	return nil
}
