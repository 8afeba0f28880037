package producer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"mediarelay/internal/notify"
	"mediarelay/internal/users"
	logx "mediarelay/pkg/logx"
)

type capturedSend struct {
	kind notify.Kind
	p    notify.Payload
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []capturedSend
}

func (d *fakeDispatcher) Send(ctx context.Context, kind notify.Kind, p notify.Payload) {
	d.mu.Lock()
	d.sent = append(d.sent, capturedSend{kind: kind, p: p})
	d.mu.Unlock()
}

func (d *fakeDispatcher) last(t *testing.T) capturedSend {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sent) == 0 {
		t.Fatal("no payload dispatched")
	}
	return d.sent[len(d.sent)-1]
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

type fakeResolver struct {
	movies map[int]Metadata
	series map[int]Metadata
}

func (r *fakeResolver) Movie(ctx context.Context, id int) (Metadata, error) {
	md, ok := r.movies[id]
	if !ok {
		return Metadata{}, errors.New("movie not found")
	}
	return md, nil
}

func (r *fakeResolver) Series(ctx context.Context, id int) (Metadata, error) {
	md, ok := r.series[id]
	if !ok {
		return Metadata{}, errors.New("series not found")
	}
	return md, nil
}

func newTestService() (*Service, *fakeDispatcher) {
	d := &fakeDispatcher{}
	r := &fakeResolver{
		movies: map[int]Metadata{
			27205: {Title: "Inception", Year: "2010", PosterPath: "/incep.jpg"},
		},
		series: map[int]Metadata{
			1399: {Title: "Game of Thrones", Year: "2011", PosterPath: "/got.jpg"},
		},
	}
	return New(d, r, logx.Nop()), d
}

func TestRequestProducers(t *testing.T) {
	t.Parallel()
	requester := &users.User{ID: 7, DisplayName: "alice"}
	movie := Media{Type: notify.MediaTypeMovie, TmdbID: 27205, Status: notify.MediaStatusProcessing}

	tests := []struct {
		name        string
		fire        func(s *Service, ctx context.Context, req MediaRequest)
		kind        notify.Kind
		event       string
		wantUser    bool
		wantAdmin   bool
	}{
		{name: "pending", fire: (*Service).RequestPending, kind: notify.KindMediaPending, event: "New Request", wantAdmin: true},
		{name: "auto submitted", fire: (*Service).RequestAutoSubmitted, kind: notify.KindMediaAutoRequested, event: "Request Automatically Submitted", wantUser: true},
		{name: "approved", fire: (*Service).RequestApproved, kind: notify.KindMediaApproved, event: "Request Approved", wantUser: true},
		{name: "auto approved", fire: (*Service).RequestAutoApproved, kind: notify.KindMediaAutoApproved, event: "Request Automatically Approved", wantUser: true, wantAdmin: true},
		{name: "declined", fire: (*Service).RequestDeclined, kind: notify.KindMediaDeclined, event: "Request Declined", wantUser: true},
		{name: "available", fire: (*Service).RequestAvailable, kind: notify.KindMediaAvailable, event: "Movie Request Now Available", wantUser: true},
		{name: "failed", fire: (*Service).RequestFailed, kind: notify.KindMediaFailed, event: "Request Failed", wantAdmin: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			s, d := newTestService()
			tt.fire(s, context.Background(), MediaRequest{ID: 1, Media: movie, RequestedBy: requester})

			got := d.last(t)
			if got.kind != tt.kind {
				t.Fatalf("kind = %s, want %s", got.kind, tt.kind)
			}
			if got.p.Event != tt.event {
				t.Fatalf("event = %q, want %q", got.p.Event, tt.event)
			}
			if got.p.Subject != "Inception (2010)" {
				t.Fatalf("subject = %q", got.p.Subject)
			}
			if got.p.Image == "" {
				t.Fatal("poster image missing")
			}
			if !got.p.NotifySystem {
				t.Fatal("system flag should always be set")
			}
			if (got.p.NotifyUser != nil) != tt.wantUser {
				t.Fatalf("NotifyUser set = %v, want %v", got.p.NotifyUser != nil, tt.wantUser)
			}
			if got.p.NotifyAdmin != tt.wantAdmin {
				t.Fatalf("NotifyAdmin = %v, want %v", got.p.NotifyAdmin, tt.wantAdmin)
			}
			if got.p.Request == nil || got.p.Request.RequestedBy != requester {
				t.Fatal("request context missing")
			}
		})
	}
}

func TestRequestAvailableSeriesEventAndSeasons(t *testing.T) {
	t.Parallel()
	s, d := newTestService()
	s.RequestAvailable(context.Background(), MediaRequest{
		ID:          2,
		Media:       Media{Type: notify.MediaTypeTV, TmdbID: 1399, Status: notify.MediaStatusAvailable},
		RequestedBy: &users.User{ID: 7},
		Seasons:     []int{1, 2, 4},
	})

	got := d.last(t)
	if got.p.Event != "Series Request Now Available" {
		t.Fatalf("event = %q", got.p.Event)
	}
	if got.p.Subject != "Game of Thrones (2011)" {
		t.Fatalf("subject = %q", got.p.Subject)
	}
	if len(got.p.Extra) != 1 || got.p.Extra[0].Name != "Requested Seasons" || got.p.Extra[0].Value != "1, 2, 4" {
		t.Fatalf("extras = %+v", got.p.Extra)
	}
}

func TestRequestDroppedOnMetadataFailure(t *testing.T) {
	t.Parallel()
	s, d := newTestService()
	s.RequestApproved(context.Background(), MediaRequest{
		ID:    3,
		Media: Media{Type: notify.MediaTypeMovie, TmdbID: 999999},
	})
	if d.count() != 0 {
		t.Fatal("metadata failure must drop the notification")
	}
}

func TestIssueCreated(t *testing.T) {
	t.Parallel()
	reporter := &users.User{ID: 5, DisplayName: "bob"}
	s, d := newTestService()
	s.IssueCreated(context.Background(), Issue{
		ID:             10,
		Type:           notify.IssueTypeVideo,
		Status:         notify.IssueStatusOpen,
		Media:          Media{Type: notify.MediaTypeTV, TmdbID: 1399},
		CreatedBy:      reporter,
		ProblemSeason:  2,
		ProblemEpisode: 5,
		Comments:       []IssueComment{{ID: 1, User: reporter, Message: "stutters badly"}},
	})

	got := d.last(t)
	if got.kind != notify.KindIssueCreated {
		t.Fatalf("kind = %s", got.kind)
	}
	if got.p.Event != "Video Issue Reported" {
		t.Fatalf("event = %q", got.p.Event)
	}
	if got.p.Message != "stutters badly" {
		t.Fatalf("message = %q (want the opening comment)", got.p.Message)
	}
	if got.p.Issue == nil || got.p.Issue.ID != 10 {
		t.Fatal("issue context missing")
	}
	if len(got.p.Extra) != 2 ||
		got.p.Extra[0].Name != "Affected Season" || got.p.Extra[0].Value != "2" ||
		got.p.Extra[1].Name != "Affected Episode" || got.p.Extra[1].Value != "5" {
		t.Fatalf("extras = %+v", got.p.Extra)
	}
	if got.p.NotifyUser != nil {
		t.Fatal("creation must not notify the reporter directly")
	}
}

func TestIssueResolvedNotifiesReporter(t *testing.T) {
	t.Parallel()
	reporter := &users.User{ID: 5, DisplayName: "bob"}
	admin := &users.User{ID: 1, Permissions: users.PermissionManageIssues}

	tests := []struct {
		name     string
		created  *users.User
		modified *users.User
		wantUser bool
	}{
		{name: "resolved by someone else", created: reporter, modified: admin, wantUser: true},
		{name: "self resolved", created: reporter, modified: reporter, wantUser: false},
		{name: "reporter manages issues", created: admin, modified: reporter, wantUser: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			s, d := newTestService()
			s.IssueResolved(context.Background(), Issue{
				ID:         11,
				Type:       notify.IssueTypeAudio,
				Status:     notify.IssueStatusResolved,
				Media:      Media{Type: notify.MediaTypeMovie, TmdbID: 27205},
				CreatedBy:  tt.created,
				ModifiedBy: tt.modified,
			})
			got := d.last(t)
			if (got.p.NotifyUser != nil) != tt.wantUser {
				t.Fatalf("NotifyUser set = %v, want %v", got.p.NotifyUser != nil, tt.wantUser)
			}
		})
	}
}

func TestIssueCommentSkipsOpeningComment(t *testing.T) {
	t.Parallel()
	reporter := &users.User{ID: 5}
	issue := Issue{
		ID:        12,
		Type:      notify.IssueTypeOther,
		Status:    notify.IssueStatusOpen,
		Media:     Media{Type: notify.MediaTypeMovie, TmdbID: 27205},
		CreatedBy: reporter,
		Comments: []IssueComment{
			{ID: 1, User: reporter, Message: "opening description"},
			{ID: 2, User: &users.User{ID: 9, DisplayName: "carol"}, Message: "same here"},
		},
	}

	s, d := newTestService()
	s.IssueCommentAdded(context.Background(), issue, issue.Comments[0])
	if d.count() != 0 {
		t.Fatal("the opening comment must not produce a notification")
	}

	s.IssueCommentAdded(context.Background(), issue, issue.Comments[1])
	got := d.last(t)
	if got.kind != notify.KindIssueComment {
		t.Fatalf("kind = %s", got.kind)
	}
	if got.p.Event != "New Comment on Issue" {
		t.Fatalf("event = %q", got.p.Event)
	}
	if got.p.Comment == nil || got.p.Comment.Message != "same here" {
		t.Fatal("comment context missing")
	}
	if got.p.NotifyUser != reporter {
		t.Fatal("the reporter should hear about someone else's comment")
	}
}

func TestIssueCommentByReporterDoesNotNotifyReporter(t *testing.T) {
	t.Parallel()
	reporter := &users.User{ID: 5}
	issue := Issue{
		ID:        13,
		Type:      notify.IssueTypeSubtitles,
		Status:    notify.IssueStatusOpen,
		Media:     Media{Type: notify.MediaTypeMovie, TmdbID: 27205},
		CreatedBy: reporter,
		Comments: []IssueComment{
			{ID: 1, User: reporter, Message: "opening"},
			{ID: 2, User: reporter, Message: "still broken"},
		},
	}
	s, d := newTestService()
	s.IssueCommentAdded(context.Background(), issue, issue.Comments[1])
	got := d.last(t)
	if got.p.Event != "New Comment on Subtitle Issue" {
		t.Fatalf("event = %q", got.p.Event)
	}
	if got.p.NotifyUser != nil {
		t.Fatal("reporters do not get notified about their own comments")
	}
}

func TestIssueDroppedOnMetadataFailure(t *testing.T) {
	t.Parallel()
	s, d := newTestService()
	s.IssueCreated(context.Background(), Issue{
		ID:    14,
		Media: Media{Type: notify.MediaTypeTV, TmdbID: 424242},
	})
	if d.count() != 0 {
		t.Fatal("metadata failure must drop the notification")
	}
}
