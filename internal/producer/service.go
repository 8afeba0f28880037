package producer

import (
	"context"
	"fmt"

	"mediarelay/internal/notify"
	logx "mediarelay/pkg/logx"
)

// Service turns domain entity events into notification payloads.
//
// Every producer path follows the same shape: resolve title metadata, build
// a payload, dispatch. When metadata cannot be resolved the notification is
// dropped with a log line; no partial payload is ever dispatched.
type Service struct {
	dispatcher Dispatcher
	meta       MetadataResolver
	log        logx.Logger
}

func New(dispatcher Dispatcher, meta MetadataResolver, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{dispatcher: dispatcher, meta: meta, log: log.With(logx.String("comp", "producer"))}
}

// resolveMedia returns the display title ("Name (Year)") and poster image URL
// for a media record.
func (s *Service) resolveMedia(ctx context.Context, m Media) (title, image string, err error) {
	if s.meta == nil {
		return "", "", fmt.Errorf("no metadata resolver configured")
	}
	var md Metadata
	switch m.Type {
	case notify.MediaTypeMovie:
		md, err = s.meta.Movie(ctx, m.TmdbID)
	case notify.MediaTypeTV:
		md, err = s.meta.Series(ctx, m.TmdbID)
	default:
		err = fmt.Errorf("unknown media type %q", m.Type)
	}
	if err != nil {
		return "", "", err
	}

	title = md.Title
	if md.Year != "" {
		title = fmt.Sprintf("%s (%s)", md.Title, md.Year)
	}
	if md.PosterPath != "" {
		image = posterBaseURL + md.PosterPath
	}
	return title, image, nil
}

func mediaRef(m Media) *notify.MediaRef {
	return &notify.MediaRef{Type: m.Type, TmdbID: m.TmdbID, Status: m.Status}
}
