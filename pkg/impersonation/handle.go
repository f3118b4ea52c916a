package impersonation

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

const defaultSearchLimit = 50

// Handle handles HTTP requests for the admin-console impersonation API
type Handle struct {
	service *Service
}

// NewHandle creates a new impersonation handler
func NewHandle(service *Service) *Handle {
	return &Handle{
		service: service,
	}
}

// RegisterRoutes registers the impersonation routes
func (h *Handle) RegisterRoutes(r chi.Router) {
	r.Route("/impersonation", func(r chi.Router) {
		r.Post("/", h.StartImpersonation)
		r.Delete("/", h.EndImpersonation)
		r.Get("/status", h.GetStatus)
		r.Get("/users", h.SearchUsers)
		r.Post("/emergency-terminate", h.EmergencyTerminate)
	})
}

// StartRequest is the request body for starting an impersonation session
type StartRequest struct {
	TargetEmail string `json:"target_email"`
	Reason      string `json:"reason"`
}

// EndRequest is the request body for ending an impersonation session
type EndRequest struct {
	ImpersonationToken string `json:"impersonation_token"`
}

// bearerCredential extracts the bearer credential from the Authorization header
func bearerCredential(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// errorStatus maps service errors to HTTP status codes. Error strings go to
// the console verbatim, so they stay descriptive.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrAuthenticationRequired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInsufficientPermissions),
		errors.Is(err, ErrCannotImpersonateAdmin):
		return http.StatusForbidden
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyTerminated):
		return http.StatusConflict
	}

	var targetNotFound ErrTargetUserNotFound
	if errors.As(err, &targetNotFound) {
		return http.StatusNotFound
	}
	var maxSessions ErrMaxConcurrentSessionsExceeded
	if errors.As(err, &maxSessions) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// StartImpersonation handles POST /impersonation
func (h *Handle) StartImpersonation(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TargetEmail == "" {
		http.Error(w, "target_email is required", http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		http.Error(w, "A justification reason is required to impersonate a user", http.StatusBadRequest)
		return
	}

	result, err := h.service.StartImpersonation(r.Context(), bearerCredential(r), req.TargetEmail, req.Reason)
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// EndImpersonation handles DELETE /impersonation
func (h *Handle) EndImpersonation(w http.ResponseWriter, r *http.Request) {
	var req EndRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ImpersonationToken == "" {
		http.Error(w, "impersonation_token is required", http.StatusBadRequest)
		return
	}

	result, err := h.service.EndImpersonation(r.Context(), req.ImpersonationToken)
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}

	render.JSON(w, r, result)
}

// GetStatus handles GET /impersonation/status. Always 200: an unknown or
// expired token is a valid "not impersonating" answer, not an error.
func (h *Handle) GetStatus(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerCredential(r)
	}

	status := h.service.GetImpersonationStatus(r.Context(), token)
	render.JSON(w, r, status)
}

// SearchUsers handles GET /impersonation/users
func (h *Handle) SearchUsers(w http.ResponseWriter, r *http.Request) {
	searchTerm := r.URL.Query().Get("search")

	limit := defaultSearchLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limitInt, err := strconv.Atoi(limitStr)
		if err != nil || limitInt <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = limitInt
	}

	results, err := h.service.SearchUsersForImpersonation(r.Context(), bearerCredential(r), searchTerm, limit)
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}

	render.JSON(w, r, results)
}

// EmergencyTerminate handles POST /impersonation/emergency-terminate
func (h *Handle) EmergencyTerminate(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.EmergencyTerminateAllSessions(r.Context(), bearerCredential(r))
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}

	slog.Info("Emergency termination requested via admin console", "sessions_terminated", result.SessionsTerminated)
	render.JSON(w, r, result)
}
