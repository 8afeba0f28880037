// Package ingest exposes the HTTP listener that feeds domain events into the
// notification pipeline.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"mediarelay/internal/notify"
	"mediarelay/internal/producer"
	"mediarelay/internal/settings"
	"mediarelay/internal/users"
	logx "mediarelay/pkg/logx"
)

const defaultAddress = "127.0.0.1:5480"

// Tester triggers a test notification across all enabled channels.
type Tester interface {
	SendTest(ctx context.Context) error
}

type Service struct {
	mu   sync.Mutex
	log  logx.Logger
	cfg  settings.IngestSettings
	prod *producer.Service
	test Tester

	ln  net.Listener
	srv *http.Server
}

func New(prod *producer.Service, test Tester, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{prod: prod, test: test, log: log.With(logx.String("comp", "ingest"))}
}

// Apply reconciles the running listener with cfg. Safe to call during
// hot-reload; a change of address or token restarts the server.
func (s *Service) Apply(ctx context.Context, cfg settings.IngestSettings) {
	s.mu.Lock()
	prev := s.cfg
	running := s.srv != nil
	s.cfg = cfg
	s.mu.Unlock()

	if !cfg.Enabled {
		if running {
			s.Stop(ctx)
		}
		return
	}
	if running && prev.Address == cfg.Address && prev.Token == cfg.Token {
		return
	}
	if running {
		s.Stop(ctx)
	}
	if err := s.start(); err != nil {
		s.log.Error("ingest listen failed", logx.String("addr", cfg.Address), logx.Err(err))
	}
}

func (s *Service) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return nil
	}

	addr := strings.TrimSpace(s.cfg.Address)
	if addr == "" {
		addr = defaultAddress
	}

	// Refuse to expose an unauthenticated listener beyond loopback.
	if s.cfg.Token == "" && !isLoopbackAddr(addr) {
		return errors.New("non-loopback address requires a token")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/events", s.withAuth(s.handleEvent))
	mux.HandleFunc("POST /v1/test", s.withAuth(s.handleTest))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.ln = ln
	s.srv = srv
	s.log.Info("ingest started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", s.cfg.Token != ""))

	go func() {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("ingest server exited", logx.Err(err))
		}
	}()
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	ln := s.ln
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()

	if srv == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = srv.Close()
	if ln != nil {
		_ = ln.Close()
	}
	s.log.Info("ingest stopped")
}

func (s *Service) withAuth(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		tok := strings.TrimSpace(s.cfg.Token)
		s.mu.Unlock()

		if tok == "" {
			h(w, r)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) &&
			strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
			h(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
}

// Wire types. These stay decoupled from the producer entities so the HTTP
// contract can evolve without touching domain code.

type wireMedia struct {
	MediaType string `json:"media_type"`
	TmdbID    int    `json:"tmdb_id"`
	Status    int    `json:"status,omitempty"`
}

type wireUser struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Permissions uint32 `json:"permissions,omitempty"`
}

type wireComment struct {
	ID      int       `json:"id"`
	User    *wireUser `json:"user,omitempty"`
	Message string    `json:"message"`
}

type wireRequest struct {
	ID          int       `json:"id"`
	RequestedBy *wireUser `json:"requested_by,omitempty"`
	Seasons     []int     `json:"seasons,omitempty"`
}

type wireIssue struct {
	ID             int           `json:"id"`
	IssueType      int           `json:"issue_type"`
	Status         int           `json:"status,omitempty"`
	CreatedBy      *wireUser     `json:"created_by,omitempty"`
	ModifiedBy     *wireUser     `json:"modified_by,omitempty"`
	ProblemSeason  int           `json:"problem_season,omitempty"`
	ProblemEpisode int           `json:"problem_episode,omitempty"`
	Comments       []wireComment `json:"comments,omitempty"`
}

type envelope struct {
	Type    string       `json:"type"`
	Media   *wireMedia   `json:"media,omitempty"`
	Request *wireRequest `json:"request,omitempty"`
	Issue   *wireIssue   `json:"issue,omitempty"`
	Comment *wireComment `json:"comment,omitempty"`
}

func (s *Service) handleEvent(w http.ResponseWriter, r *http.Request) {
	var env envelope
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&env); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.route(r.Context(), env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Service) handleTest(w http.ResponseWriter, r *http.Request) {
	if s.test == nil {
		http.Error(w, "test notifications unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := s.test.SendTest(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Service) route(ctx context.Context, env envelope) error {
	if env.Media == nil {
		return errors.New("missing media")
	}
	media := toMedia(*env.Media)
	if media.Type != notify.MediaTypeMovie && media.Type != notify.MediaTypeTV {
		return errors.New("unknown media_type")
	}

	switch env.Type {
	case "request.pending", "request.auto_submitted", "request.approved",
		"request.auto_approved", "request.declined", "request.available", "request.failed":
		if env.Request == nil {
			return errors.New("missing request")
		}
		req := producer.MediaRequest{
			ID:          env.Request.ID,
			Media:       media,
			RequestedBy: toUser(env.Request.RequestedBy),
			Seasons:     env.Request.Seasons,
		}
		switch env.Type {
		case "request.pending":
			s.prod.RequestPending(ctx, req)
		case "request.auto_submitted":
			s.prod.RequestAutoSubmitted(ctx, req)
		case "request.approved":
			s.prod.RequestApproved(ctx, req)
		case "request.auto_approved":
			s.prod.RequestAutoApproved(ctx, req)
		case "request.declined":
			s.prod.RequestDeclined(ctx, req)
		case "request.available":
			s.prod.RequestAvailable(ctx, req)
		case "request.failed":
			s.prod.RequestFailed(ctx, req)
		}
		return nil

	case "issue.created", "issue.resolved", "issue.reopened", "issue.comment":
		if env.Issue == nil {
			return errors.New("missing issue")
		}
		issue := toIssue(*env.Issue, media)
		switch env.Type {
		case "issue.created":
			s.prod.IssueCreated(ctx, issue)
		case "issue.resolved":
			s.prod.IssueResolved(ctx, issue)
		case "issue.reopened":
			s.prod.IssueReopened(ctx, issue)
		case "issue.comment":
			if env.Comment == nil {
				return errors.New("missing comment")
			}
			s.prod.IssueCommentAdded(ctx, issue, toComment(*env.Comment))
		}
		return nil

	default:
		return errors.New("unknown event type " + env.Type)
	}
}

func toMedia(m wireMedia) producer.Media {
	return producer.Media{
		Type:   notify.MediaType(m.MediaType),
		TmdbID: m.TmdbID,
		Status: notify.MediaStatus(m.Status),
	}
}

func toUser(u *wireUser) *users.User {
	if u == nil {
		return nil
	}
	return &users.User{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Permissions: users.Permission(u.Permissions),
	}
}

func toComment(c wireComment) producer.IssueComment {
	return producer.IssueComment{ID: c.ID, User: toUser(c.User), Message: c.Message}
}

func toIssue(in wireIssue, media producer.Media) producer.Issue {
	status := notify.IssueStatus(in.Status)
	if in.Status == 0 {
		status = notify.IssueStatusOpen
	}
	out := producer.Issue{
		ID:             in.ID,
		Type:           notify.IssueType(in.IssueType),
		Status:         status,
		Media:          media,
		CreatedBy:      toUser(in.CreatedBy),
		ModifiedBy:     toUser(in.ModifiedBy),
		ProblemSeason:  in.ProblemSeason,
		ProblemEpisode: in.ProblemEpisode,
	}
	for _, c := range in.Comments {
		out.Comments = append(out.Comments, toComment(c))
	}
	return out
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
