package producer

import (
	"context"
	"strconv"
	"strings"

	"mediarelay/internal/notify"
	logx "mediarelay/pkg/logx"
)

func (s *Service) RequestPending(ctx context.Context, req MediaRequest) {
	s.sendRequest(ctx, req, notify.KindMediaPending, "New Request", true, false)
}

func (s *Service) RequestAutoSubmitted(ctx context.Context, req MediaRequest) {
	s.sendRequest(ctx, req, notify.KindMediaAutoRequested, "Request Automatically Submitted", false, true)
}

func (s *Service) RequestApproved(ctx context.Context, req MediaRequest) {
	s.sendRequest(ctx, req, notify.KindMediaApproved, "Request Approved", false, true)
}

func (s *Service) RequestAutoApproved(ctx context.Context, req MediaRequest) {
	s.sendRequest(ctx, req, notify.KindMediaAutoApproved, "Request Automatically Approved", true, true)
}

func (s *Service) RequestDeclined(ctx context.Context, req MediaRequest) {
	s.sendRequest(ctx, req, notify.KindMediaDeclined, "Request Declined", false, true)
}

func (s *Service) RequestAvailable(ctx context.Context, req MediaRequest) {
	event := "Movie Request Now Available"
	if req.Media.Type == notify.MediaTypeTV {
		event = "Series Request Now Available"
	}
	s.sendRequest(ctx, req, notify.KindMediaAvailable, event, false, true)
}

func (s *Service) RequestFailed(ctx context.Context, req MediaRequest) {
	s.sendRequest(ctx, req, notify.KindMediaFailed, "Request Failed", true, false)
}

func (s *Service) sendRequest(ctx context.Context, req MediaRequest, kind notify.Kind, event string, notifyAdmin, notifyRequester bool) {
	title, image, err := s.resolveMedia(ctx, req.Media)
	if err != nil {
		s.log.Error("dropping request notification: media lookup failed",
			logx.Int("request_id", req.ID),
			logx.String("kind", kind.String()),
			logx.Err(err),
		)
		return
	}

	var extra []notify.Extra
	if req.Media.Type == notify.MediaTypeTV && len(req.Seasons) > 0 {
		extra = append(extra, notify.Extra{Name: "Requested Seasons", Value: joinSeasons(req.Seasons)})
	}

	p := notify.Payload{
		Event:        event,
		Subject:      title,
		Image:        image,
		Extra:        extra,
		Request:      &notify.RequestInfo{RequestedBy: req.RequestedBy},
		Media:        mediaRef(req.Media),
		NotifySystem: true,
		NotifyAdmin:  notifyAdmin,
	}
	if notifyRequester {
		p.NotifyUser = req.RequestedBy
	}

	s.dispatcher.Send(ctx, kind, p)
}

func joinSeasons(seasons []int) string {
	parts := make([]string, 0, len(seasons))
	for _, n := range seasons {
		parts = append(parts, strconv.Itoa(n))
	}
	return strings.Join(parts, ", ")
}
