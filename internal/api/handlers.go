// Package api exposes the sync gateway HTTP handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"example.com/fittrack/internal/auth"
	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/livesync"
	"example.com/fittrack/internal/localstore"
	"example.com/fittrack/internal/media"
	"example.com/fittrack/internal/offline"
	"example.com/fittrack/internal/persistence"
)

const (
	defaultLogPage = 50
	maxLogPage     = 200
)

// Sessions hands out the live session of a user. *livesync.Manager satisfies it.
type Sessions interface {
	Session(ctx context.Context, userID string) (*livesync.Session, error)
}

// LogLister pages through a user's stored rows, newest first. *postgres.Repository satisfies it.
type LogLister interface {
	List(ctx context.Context, table domain.Table, userID string, cursor *domain.Cursor, limit int) ([]domain.Record, *domain.Cursor, error)
}

// Deps collects what the handlers need.
type Deps struct {
	Sessions Sessions
	Logs     LogLister
	Store    *localstore.Store
	Queue    *offline.Queue
	Feed     *livesync.Feed
	Online   livesync.Connectivity
	Media    *media.Resolver
	Location *time.Location
	Logger   *log.Logger
	Now      func() time.Time
}

// Handler coordinates HTTP requests with the live sync layer.
type Handler struct {
	sessions Sessions
	history  LogLister
	store    *localstore.Store
	queue    *offline.Queue
	feed     *livesync.Feed
	online   livesync.Connectivity
	media    *media.Resolver
	loc      *time.Location
	logger   *log.Logger
	now      func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(deps Deps) *Handler {
	h := &Handler{
		sessions: deps.Sessions,
		history:  deps.Logs,
		store:    deps.Store,
		queue:    deps.Queue,
		feed:     deps.Feed,
		online:   deps.Online,
		media:    deps.Media,
		loc:      deps.Location,
		logger:   deps.Logger,
		now:      deps.Now,
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if h.logger == nil {
		h.logger = log.New(log.Writer(), "[api] ", log.LstdFlags|log.Lshortfile)
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.feed == nil {
		h.feed = livesync.NewFeed(0)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", healthz)
	mux.HandleFunc("/v1/dashboard/daily", h.read(h.dailyDashboard))
	mux.HandleFunc("/v1/dashboard/calendar", h.read(h.calendar))
	mux.HandleFunc("/v1/dashboard/training", h.read(h.training))
	mux.HandleFunc("/v1/challenge", h.challenge)
	mux.HandleFunc("/v1/logs", h.logs)
	mux.HandleFunc("/v1/sync/status", h.read(h.syncStatus))
	mux.HandleFunc("/v1/sync/drain", h.drain)
	mux.HandleFunc("/v1/notifications", h.read(h.notifications))
	mux.HandleFunc("/v1/analysis", h.read(h.analysis))
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

// read restricts next to GET and to tokens with read or write scope.
func (h *Handler) read(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		userID, ok := authorize(w, r, auth.ScopeLogsRead, auth.ScopeLogsWrite)
		if !ok {
			return
		}
		next(w, r, userID)
	}
}

// authorize resolves the caller and checks that it holds one of scopes.
func authorize(w http.ResponseWriter, r *http.Request, scopes ...string) (string, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return "", false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims.UserID(), true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return "", false
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request, userID string) (*livesync.Session, bool) {
	s, err := h.sessions.Session(r.Context(), userID)
	if s == nil {
		detail := "session unavailable"
		if err != nil {
			detail = err.Error()
		}
		writeError(w, http.StatusServiceUnavailable, "unavailable", detail)
		return nil, false
	}
	if err != nil {
		h.logger.Printf("session for %s opened with errors: %v", userID, err)
	}
	return s, true
}

func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.read(h.listLogs)(w, r)
	case http.MethodPost:
		h.writeLog(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

// listLogs serves one page of stored rows straight from the backend.
func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request, userID string) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "log history unavailable")
		return
	}
	query := r.URL.Query()
	table := domain.Table(query.Get("table"))
	if !table.Valid() || table == domain.TableProfiles {
		writeError(w, http.StatusBadRequest, "validation_failed", "unknown table")
		return
	}
	cursor, err := persistence.DecodeCursor(query.Get("cursor"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	limit := defaultLogPage
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxLogPage)
	}

	items, next, err := h.history.List(r.Context(), table, userID, cursor, limit)
	if err != nil {
		if livesync.Unreachable(err) {
			writeError(w, http.StatusServiceUnavailable, "unavailable", "backend unreachable")
			return
		}
		writeDomainError(w, err)
		return
	}
	if items == nil {
		items = []domain.Record{}
	}
	writeJSON(w, http.StatusOK, LogPage{Table: table, Items: items, NextCursor: persistence.EncodeCursor(next)})
}

func (h *Handler) writeLog(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r, auth.ScopeLogsWrite)
	if !ok {
		return
	}

	var m domain.Mutation
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if m.UserID != "" && m.UserID != userID {
		writeError(w, http.StatusForbidden, "forbidden", "mutation targets another user")
		return
	}

	s, ok := h.session(w, r, userID)
	if !ok {
		return
	}
	result, err := s.Write(r.Context(), m)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if result.Queued {
		writeJSON(w, http.StatusAccepted, WriteResponse{Queued: true, ActionID: result.Action.ID.String(), RowID: result.Action.Mutation.RowID})
		return
	}
	writeJSON(w, http.StatusOK, WriteResponse{RowID: result.Change.RowID, Change: &result.Change})
}

func (h *Handler) syncStatus(w http.ResponseWriter, r *http.Request, userID string) {
	s, ok := h.session(w, r, userID)
	if !ok {
		return
	}
	pending, err := h.queue.Len(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SyncStatusResponse{
		Online:   h.online == nil || h.online.Online(),
		Loading:  s.IsLoading(),
		Pending:  pending,
		Draining: h.queue.Draining(userID),
	})
}

func (h *Handler) drain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	userID, ok := authorize(w, r, auth.ScopeLogsWrite)
	if !ok {
		return
	}
	if h.online != nil && !h.online.Online() {
		writeError(w, http.StatusConflict, "offline", "backend unreachable, queue kept")
		return
	}
	s, ok := h.session(w, r, userID)
	if !ok {
		return
	}

	result, err := s.DrainQueue(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := DrainResponse{Applied: result.Applied, Attempted: result.Attempts, Skipped: result.Skipped}
	for _, f := range result.Failed {
		resp.Failed = append(resp.Failed, DrainFailure{ActionID: f.Action.ID.String(), Table: f.Action.Mutation.Table, RowID: f.Action.Mutation.RowID, Error: f.Err.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) notifications(w http.ResponseWriter, r *http.Request, userID string) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	items := h.feed.Recent(userID)
	if len(items) > limit {
		items = items[:limit]
	}
	writeJSON(w, http.StatusOK, NotificationsResponse{Items: items})
}

func (h *Handler) analysis(w http.ResponseWriter, r *http.Request, userID string) {
	kind := domain.AnalysisKind(r.URL.Query().Get("kind"))
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "validation_failed", "kind must be body or food")
		return
	}
	signed, _ := strconv.ParseBool(r.URL.Query().Get("signed"))

	s, ok := h.session(w, r, userID)
	if !ok {
		return
	}
	entries := s.Mirror().Analysis(kind).Snapshot()
	items := make([]AnalysisView, 0, len(entries))
	for _, e := range entries {
		view := AnalysisView{AnalysisEntry: e}
		if e.ImageRef != "" && h.media != nil {
			url, err := h.media.URL(r.Context(), e.ImageRef, signed)
			if err != nil {
				h.logger.Printf("resolve image for analysis %s: %v", e.ID, err)
			} else {
				view.ImageURL = url
			}
		}
		items = append(items, view)
	}
	writeJSON(w, http.StatusOK, AnalysisResponse{Kind: kind, Items: items})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, localstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrLocked):
		writeError(w, http.StatusConflict, "locked", err.Error())
	case errors.Is(err, livesync.ErrNoUser):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
