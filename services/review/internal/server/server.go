// Package server exposes the review engine over HTTP. Routing uses the
// standard mux with path parsing per subtree; public routes serve the
// editorial console, /internal routes are guarded by service tokens.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"reviewdesk/internal/servicetoken"
	"reviewdesk/internal/util"
	"reviewdesk/pkg/cleanup"
	"reviewdesk/pkg/domain"
	"reviewdesk/pkg/lifecycle"
	"reviewdesk/pkg/queue"
	"reviewdesk/pkg/store"
	"reviewdesk/services/review/internal/app"
)

// Limiter bounds request rates on the expensive analyze/cleanup routes.
type Limiter interface {
	Allow(key string) bool
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// InternalVerifier guards /internal routes; nil disables them.
	InternalVerifier *servicetoken.Verifier
	// Limiter applies to impact and cleanup requests; nil means no limit.
	Limiter        Limiter
	TrustedProxies *util.TrustedProxies
}

// Server exposes HTTP endpoints for the review service.
type Server struct {
	app            *app.App
	internalVerify *servicetoken.Verifier
	limiter        Limiter
	trustedProxies *util.TrustedProxies
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	s := &Server{
		app:            cfg.App,
		internalVerify: cfg.InternalVerifier,
		limiter:        cfg.Limiter,
		trustedProxies: cfg.TrustedProxies,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("review", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/internal/dispatch", s.withInternal(s.handleDispatch))

	s.mux.HandleFunc("/manuscripts/", s.handleManuscriptSubtree)
	s.mux.HandleFunc("/invitations", s.handleCreateInvitation)
	s.mux.HandleFunc("/invitations/", s.handleInvitationAction)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) withInternal(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.internalVerify == nil {
			writeError(w, http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR", "internal auth not configured")
			return
		}
		token, ok := servicetoken.BearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "unauthorized")
			return
		}
		if _, err := s.internalVerify.Verify(token); err != nil {
			writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "unauthorized")
			return
		}
		next(w, r)
	})
}

func (s *Server) allowExpensive(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter == nil {
		return true
	}
	if s.limiter.Allow(util.ClientIP(r, s.trustedProxies)) {
		return true
	}
	writeError(w, http.StatusTooManyRequests, "SYSTEM_RATE_LIMITED", "too many requests")
	return false
}

// /manuscripts/{id}/impact
// /manuscripts/{id}/cleanup
// /manuscripts/{id}/invitations
// /manuscripts/{id}/queue[/active | /{reviewerID}[/position]]
func (s *Server) handleManuscriptSubtree(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/manuscripts/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" {
		notFound(w)
		return
	}
	id := parts[0]
	switch parts[1] {
	case "impact":
		if len(parts) != 2 {
			notFound(w)
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		if !s.allowExpensive(w, r) {
			return
		}
		s.handleImpact(w, r, id)
	case "cleanup":
		if len(parts) != 2 {
			notFound(w)
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !s.allowExpensive(w, r) {
			return
		}
		s.handleCleanup(w, r, id)
	case "invitations":
		if len(parts) != 2 {
			notFound(w)
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		s.handleListInvitations(w, r, id)
	case "queue":
		s.handleQueue(w, r, id, parts[2:])
	default:
		notFound(w)
	}
}

func (s *Server) handleImpact(w http.ResponseWriter, r *http.Request, id string) {
	report, err := s.app.Impact(r.Context(), id, nil)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type cleanupRequest struct {
	ReviewerIDs   []string `json:"reviewerIds"`
	ConfirmShared bool     `json:"confirmShared"`
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request, id string) {
	var req cleanupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "REVIEW_INVALID_REQUEST", "invalid JSON body")
		return
	}
	summary, err := s.app.Cleanup(r.Context(), id, req.ReviewerIDs, req.ConfirmShared, nil)
	if errors.Is(err, cleanup.ErrPartialDeletion) {
		writeJSON(w, http.StatusMultiStatus, summary)
		return
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListInvitations(w http.ResponseWriter, r *http.Request, id string) {
	views, err := s.app.Invitations(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": views,
		"count": len(views),
	})
}

type enqueueRequest struct {
	ReviewerID string `json:"reviewerId"`
	Priority   string `json:"priority"`
	Notes      string `json:"notes"`
}

type queueActiveRequest struct {
	Active bool `json:"active"`
}

type reorderRequest struct {
	Position int `json:"position"`
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request, id string, rest []string) {
	switch {
	case len(rest) == 0:
		switch r.Method {
		case http.MethodGet:
			state, err := s.app.Queue(r.Context(), id)
			if err != nil {
				s.writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"control": state.Control,
				"items":   state.Items,
				"count":   len(state.Items),
			})
		case http.MethodPost:
			var req enqueueRequest
			if err := decodeBody(r, &req); err != nil || req.ReviewerID == "" {
				writeError(w, http.StatusBadRequest, "REVIEW_INVALID_REQUEST", "reviewerId is required")
				return
			}
			item, err := s.app.EnqueueReviewer(r.Context(), id, req.ReviewerID, domain.QueuePriority(req.Priority), req.Notes)
			if err != nil {
				s.writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, item)
		default:
			methodNotAllowed(w)
		}
	case len(rest) == 1 && rest[0] == "active":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		var req queueActiveRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "REVIEW_INVALID_REQUEST", "invalid JSON body")
			return
		}
		if err := s.app.SetQueueActive(r.Context(), id, req.Active); err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
	case len(rest) == 1 && rest[0] != "":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w)
			return
		}
		if err := s.app.DequeueReviewer(r.Context(), id, rest[0]); err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
	case len(rest) == 2 && rest[1] == "position":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		var req reorderRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "REVIEW_INVALID_REQUEST", "invalid JSON body")
			return
		}
		items, err := s.app.ReorderReviewer(r.Context(), id, rest[0], req.Position)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": items,
			"count": len(items),
		})
	default:
		notFound(w)
	}
}

type inviteRequest struct {
	ManuscriptID string `json:"manuscriptId"`
	ReviewerID   string `json:"reviewerId"`
}

func (s *Server) handleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req inviteRequest
	if err := decodeBody(r, &req); err != nil || req.ManuscriptID == "" || req.ReviewerID == "" {
		writeError(w, http.StatusBadRequest, "REVIEW_INVALID_REQUEST", "manuscriptId and reviewerId are required")
		return
	}
	view, err := s.app.Invite(r.Context(), req.ManuscriptID, req.ReviewerID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type actionRequest struct {
	Reason     string `json:"reason"`
	NewDueDate string `json:"newDueDate"`
}

// /invitations/{id}/{action}
func (s *Server) handleInvitationAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/invitations/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		notFound(w)
		return
	}
	var req actionRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "REVIEW_INVALID_REQUEST", "invalid JSON body")
			return
		}
	}
	opts := lifecycle.TransitionOpts{Reason: req.Reason}
	if req.NewDueDate != "" {
		due, err := parseDate(req.NewDueDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "REVIEW_INVALID_REQUEST", "invalid newDueDate")
			return
		}
		opts.NewDueDate = due
	}
	view, err := s.app.InvitationAction(r.Context(), parts[0], lifecycle.Action(parts[1]), opts)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	res, err := s.app.DispatchTick(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sent":     len(res.Sent),
		"skipped":  res.Skipped,
		"failures": dispatchFailures(res),
	})
}

func dispatchFailures(res queue.DispatchResult) []map[string]string {
	out := make([]map[string]string, 0, len(res.Failures))
	for _, f := range res.Failures {
		entry := map[string]string{
			"manuscriptId": f.ManuscriptID,
			"reviewerId":   f.ReviewerID,
		}
		if f.Err != nil {
			entry["error"] = f.Err.Error()
		}
		out = append(out, entry)
	}
	return out
}

// writeDomainError maps engine sentinels onto HTTP statuses and codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var sharedErr *app.SharedReviewersError
	switch {
	case errors.Is(err, store.ErrManuscriptNotFound):
		writeError(w, http.StatusNotFound, "MANUSCRIPT_NOT_FOUND", "manuscript not found")
	case errors.Is(err, lifecycle.ErrNotFound):
		writeError(w, http.StatusNotFound, "INVITATION_NOT_FOUND", "invitation not found")
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "INVITATION_INVALID_TRANSITION", err.Error())
	case errors.Is(err, lifecycle.ErrDuplicateActiveInvitation):
		writeError(w, http.StatusConflict, "INVITATION_DUPLICATE_ACTIVE", err.Error())
	case errors.Is(err, lifecycle.ErrReviewerQueued):
		writeError(w, http.StatusConflict, "INVITATION_REVIEWER_QUEUED", err.Error())
	case errors.Is(err, lifecycle.ErrUnknownAction):
		writeError(w, http.StatusBadRequest, "INVITATION_UNKNOWN_ACTION", err.Error())
	case errors.Is(err, queue.ErrInvitationActive):
		writeError(w, http.StatusConflict, "QUEUE_INVITATION_ACTIVE", err.Error())
	case errors.Is(err, queue.ErrAlreadyQueued):
		writeError(w, http.StatusConflict, "QUEUE_DUPLICATE", err.Error())
	case errors.Is(err, queue.ErrNotQueued):
		writeError(w, http.StatusNotFound, "QUEUE_ITEM_NOT_FOUND", err.Error())
	case errors.Is(err, store.ErrQueueConflict):
		writeError(w, http.StatusConflict, "QUEUE_VERSION_CONFLICT", "queue changed concurrently, retry")
	case errors.As(err, &sharedErr):
		writeError(w, http.StatusConflict, "CLEANUP_SHARED_REVIEWERS", sharedErr.Error())
	default:
		writeError(w, http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR", "internal error")
	}
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "SYSTEM_METHOD_NOT_ALLOWED", "method not allowed")
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "SYSTEM_NOT_FOUND", "not found")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}
