package producer

import (
	"context"

	"mediarelay/internal/notify"
	"mediarelay/internal/users"
)

// Dispatcher is the producer-side view of the notification manager.
type Dispatcher interface {
	Send(ctx context.Context, kind notify.Kind, p notify.Payload)
}

// Metadata is the subset of external title metadata the producers need.
type Metadata struct {
	Title      string
	Year       string
	PosterPath string
}

// MetadataResolver looks up title metadata for a media reference. The actual
// client (TMDB or a local cache) lives outside this package.
type MetadataResolver interface {
	Movie(ctx context.Context, tmdbID int) (Metadata, error)
	Series(ctx context.Context, tmdbID int) (Metadata, error)
}

const posterBaseURL = "https://image.tmdb.org/t/p/w600_and_h900_bestv2"

// Media is the domain media record as seen by producers.
type Media struct {
	Type   notify.MediaType
	TmdbID int
	Status notify.MediaStatus
}

type IssueComment struct {
	ID      int
	User    *users.User
	Message string
}

type Issue struct {
	ID             int
	Type           notify.IssueType
	Status         notify.IssueStatus
	Media          Media
	CreatedBy      *users.User
	ModifiedBy     *users.User
	ProblemSeason  int
	ProblemEpisode int
	Comments       []IssueComment
}

type MediaRequest struct {
	ID          int
	Media       Media
	RequestedBy *users.User
	Seasons     []int
}
