package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"telecare/auth"
	"telecare/domain"
	apperrors "telecare/errors"
	"telecare/observability"
	"telecare/services"
)

type identityKey struct{}

// API serves the REST companion to the WebSocket: history, unread counts,
// full-text search, backend notifications, and operator stats.
type API struct {
	log         *slog.Logger
	tokens      *auth.Tokens
	chat        services.IChatService
	notify      services.INotifyService
	monitor     *observability.MonitoringManager
	searchLimit int
}

func NewAPI(
	log *slog.Logger,
	tokens *auth.Tokens,
	chat services.IChatService,
	notify services.INotifyService,
	monitor *observability.MonitoringManager,
	searchLimit int,
) *API {
	return &API{
		log:         log,
		tokens:      tokens,
		chat:        chat,
		notify:      notify,
		monitor:     monitor,
		searchLimit: searchLimit,
	}
}

func (a *API) Routes(r chi.Router) {
	r.Use(a.authenticated)
	r.Get("/messages/unread", a.handleUnread)
	r.Get("/messages/search", a.handleSearch)
	r.Get("/messages/{peerID}", a.handleHistory)
	r.Post("/notify", a.handleNotify)
	r.Get("/stats", a.handleStats)
}

// authenticated validates the bearer token and stores the identity on the
// request context.
func (a *API) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.tokens.Validate(bearerToken(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, apperrors.ErrInvalidToken)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, identity)))
	})
}

func identityFrom(r *http.Request) domain.Identity {
	identity, _ := r.Context().Value(identityKey{}).(domain.Identity)
	return identity
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	peerID := chi.URLParam(r, "peerID")

	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}

	messages, next, err := a.chat.History(identity.UserID, peerID, cursor)
	if err != nil {
		a.log.Error("history failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages":    messages,
		"next_cursor": next,
	})
}

func (a *API) handleUnread(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	count, err := a.chat.UnreadCount(identity.UserID)
	if err != nil {
		a.log.Error("unread count failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": count})
}

func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, apperrors.ErrInvalidPayload)
		return
	}

	limit := a.searchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n < limit {
			limit = n
		}
	}

	messages, err := a.chat.Search(r.Context(), identity.UserID, query, limit)
	if err != nil {
		a.log.Error("search failed", "query", query, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type notifyRequest struct {
	Target  string          `json:"target" validate:"required"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

func (a *API) handleNotify(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	if identity.Role != domain.RoleDoctor {
		writeError(w, http.StatusForbidden, apperrors.ErrRoleNotAllowed)
		return
	}

	var body notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrInvalidPayload)
		return
	}
	if err := validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrInvalidPayload)
		return
	}

	if err := a.notify.Notify(r.Context(), body.Target, body.Payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.monitor.GetLatest())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{
		"code":  apperrors.CodeOf(err),
		"error": err.Error(),
	})
}
