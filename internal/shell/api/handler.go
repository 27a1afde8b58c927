// Package api exposes the orchestration operation surface over HTTP. The
// surrounding authenticated shell supplies the tenant identity through the
// X-Tenant-ID and X-Tenant-Name headers; this package never authenticates.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/canopy-host/canopy/internal/core/domain"
	"github.com/canopy-host/canopy/internal/shell/engine"
	"github.com/canopy-host/canopy/internal/shell/runtime"
	"github.com/canopy-host/canopy/internal/shell/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Tenant identity headers set by the authenticated outer shell.
const (
	HeaderTenantID   = "X-Tenant-ID"
	HeaderTenantName = "X-Tenant-Name"
)

type tenantKey struct{}

// =============================================================================
// Handler
// =============================================================================

// Handler provides the HTTP handlers for the API.
type Handler struct {
	store     store.Store
	engine    *engine.Engine
	rt        runtime.Gateway
	logger    *slog.Logger
	homesRoot string
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, eng *engine.Engine, rt runtime.Gateway, logger *slog.Logger, homesRoot string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:     s,
		engine:    eng,
		rt:        rt,
		logger:    logger,
		homesRoot: homesRoot,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)

	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.tenantIdentity)

		r.Get("/templates", h.handleListAllowedTemplates)
		r.Get("/images", h.handleListImages)
		r.Get("/audit", h.handleListAuditEvents)

		r.Route("/containers", func(r chi.Router) {
			r.Post("/", h.handleCreateContainer)
			r.Get("/", h.handleListContainers)
			r.Delete("/{id}", h.handleRemoveContainer)
			r.Post("/{id}/start", h.handleStartContainer)
			r.Post("/{id}/stop", h.handleStopContainer)
			r.Post("/{id}/restart", h.handleRestartContainer)
			r.Get("/{id}/logs", h.handleContainerLogs)
		})

		r.Route("/stacks", func(r chi.Router) {
			r.Post("/", h.handleCreateStack)
			r.Get("/", h.handleListStacks)
			r.Delete("/{id}", h.handleDeleteStack)
			r.Post("/{id}/up", h.handleStackUp)
			r.Post("/{id}/down", h.handleStackDown)
			r.Get("/{id}/logs", h.handleStackLogs)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// tenantIdentity resolves the caller's tenant from the identity headers and
// stores it on the request context. Requests without both headers are
// rejected before reaching any handler.
func (h *Handler) tenantIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderTenantID)
		username := r.Header.Get(HeaderTenantName)
		if id == "" || username == "" {
			h.writeError(w, http.StatusUnauthorized, "validation_error", "tenant identity headers are required", nil)
			return
		}
		if err := domain.ValidateUsername(username); err != nil {
			h.writeError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
			return
		}

		tenant, err := h.store.ResolveTenant(r.Context(), id, username, filepath.Join(h.homesRoot, username))
		if err != nil {
			h.logger.Error("failed to resolve tenant", "tenant_id", id, "error", err)
			h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to resolve tenant", nil)
			return
		}

		ctx := context.WithValue(r.Context(), tenantKey{}, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tenantFrom(ctx context.Context) *domain.Tenant {
	t, _ := ctx.Value(tenantKey{}).(*domain.Tenant)
	return t
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, Response{OK: true, Data: HealthResponse{Status: "healthy"}})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok", "runtime": "ok"}
	ready := true

	if _, err := h.store.CountTemplates(r.Context()); err != nil {
		checks["database"] = "failed"
		ready = false
	}
	if err := h.rt.Ping(r.Context()); err != nil {
		checks["runtime"] = "failed"
		ready = false
	}

	if !ready {
		h.writeJSON(w, http.StatusServiceUnavailable, Response{
			OK:   false,
			Data: ReadyResponse{Status: "not_ready", Checks: checks},
		})
		return
	}

	h.writeJSON(w, http.StatusOK, Response{OK: true, Data: ReadyResponse{Status: "ready", Checks: checks}})
}

// =============================================================================
// Container Handlers
// =============================================================================

func (h *Handler) handleCreateContainer(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())

	var req CreateContainerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON", nil)
		return
	}

	c, err := h.engine.CreateContainer(r.Context(), tenant, engine.CreateContainerParams{
		Name:          req.Name,
		Image:         req.Image,
		Env:           req.Env,
		ContainerPort: req.ContainerPort,
		HostPort:      req.HostPort,
		Protocol:      req.Protocol,
		HostPath:      req.HostPath,
		ContainerPath: req.ContainerPath,
		ReadOnly:      req.ReadOnly,
		CPULimit:      req.CPULimit,
		MemoryLimit:   req.MemoryLimit,
		Network:       req.Network,
	})
	if err != nil {
		h.writeEngineError(w, "create container", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, Response{OK: true, Data: c})
}

func (h *Handler) handleListContainers(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())

	containers, err := h.engine.ListContainers(r.Context(), tenant.ID, listOptionsFrom(r))
	if err != nil {
		h.writeEngineError(w, "list containers", err)
		return
	}

	h.writeJSON(w, http.StatusOK, Response{OK: true, Data: containers})
}

func (h *Handler) handleStartContainer(w http.ResponseWriter, r *http.Request) {
	h.handleContainerTransition(w, r, "start container", h.engine.StartContainer)
}

func (h *Handler) handleStopContainer(w http.ResponseWriter, r *http.Request) {
	h.handleContainerTransition(w, r, "stop container", h.engine.StopContainer)
}

func (h *Handler) handleRestartContainer(w http.ResponseWriter, r *http.Request) {
	h.handleContainerTransition(w, r, "restart container", h.engine.RestartContainer)
}

func (h *Handler) handleContainerTransition(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(context.Context, string, string) (*domain.Container, error),
) {
	tenant := tenantFrom(r.Context())
	id := chi.URLParam(r, "id")

	c, err := fn(r.Context(), tenant.ID, id)
	if err != nil {
		h.writeEngineError(w, op, err)
		return
	}

	h.writeJSON(w, http.StatusOK, Response{OK: true, Data: c})
}

func (h *Handler) handleRemoveContainer(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.engine.RemoveContainer(r.Context(), tenant.ID, id); err != nil {
		h.writeEngineError(w, "remove container", err)
		return
	}

	h.writeJSON(w, http.StatusOK, Response{OK: true})
}

func (h *Handler) handleContainerLogs(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())
	id := chi.URLParam(r, "id")

	lines, err := h.engine.ContainerLogs(r.Context(), tenant.ID, id, tailFrom(r))
	if err != nil {
		h.writeEngineError(w, "fetch container logs", err)
		return
	}

	h.writeJSON(w, http.StatusOK, Response{OK: true, Data: LogsResponse{Lines: lines}})
}

func (h *Handler) handleListImages(w http.ResponseWriter, r *http.Request) {
	refs, err := h.engine.ListImages(r.Context())
	if err != nil {
		h.writeEngineError(w, "list images", err)
		return
	}

	images := make([]ImageResponse, 0, len(refs))
	for _, ref := range refs {
		images = append(images, ImageResponse{
			ID:        ref.ID,
			Tags:      ref.Tags,
			SizeBytes: ref.SizeBytes,
			CreatedAt: ref.CreatedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, Response{OK: true, Data: images})
}

// =============================================================================
// Stack Handlers
// =============================================================================

func (h *Handler) handleCreateStack(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())

	var req CreateStackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON", nil)
		return
	}

	slug := req.Slug
	if slug == "" {
		slug = domain.Slugify(req.Name)
	}

	st, err := h.engine.CreateStack(r.Context(), tenant, engine.CreateStackParams{
		TemplateID: req.TemplateID,
		Name:       req.Name,
		Slug:       slug,
		Variables:  req.Variables,
	})
	if err != nil {
		h.writeEngineError(w, "create stack", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, Response{OK: true, Data: st})
}

func (h *Handler) handleListStacks(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())

	stacks, err := h.engine.ListStacks(r.Context(), tenant.ID, listOptionsFrom(r))
	if err != nil {
		h.writeEngineError(w, "list stacks", err)
		return
	}

	h.writeJSON(w, http.StatusOK, Response{OK: true, Data: stacks})
}

func (h *Handler) handleStackUp(w http.ResponseWriter, r *http.Request) {
	h.handleStackTransition(w, r, "stack up", h.engine.StackUp)
}

func (h *Handler) handleStackDown(w http.ResponseWriter, r *http.Request) {
	h.handleStackTransition(w, r, "stack down", h.engine.StackDown)
}

func (h *Handler) handleStackTransition(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(context.Context, string, string) (*domain.Stack, error),
) {
	tenant := tenantFrom(r.Context())
	id := chi.URLParam(r, "id")

	st, err := fn(r.Context(), tenant.ID, id)
	if err != nil {
		h.writeEngineError(w, op, err)
		return
	}

	h.writeJSON(w, http.StatusOK, Response{OK: true, Data: st})
}

func (h *Handler) handleStackLogs(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())
	id := chi.URLParam(r, "id")

	lines, err := h.engine.StackLogs(r.Context(), tenant.ID, id, tailFrom(r))
	if err != nil {
		h.writeEngineError(w, "fetch stack logs", err)
		return
	}

	h.writeJSON(w, http.StatusOK, Response{OK: true, Data: LogsResponse{Lines: lines}})
}

func (h *Handler) handleDeleteStack(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.engine.DeleteStack(r.Context(), tenant.ID, id); err != nil {
		h.writeEngineError(w, "delete stack", err)
		return
	}

	h.writeJSON(w, http.StatusOK, Response{OK: true})
}

// =============================================================================
// Template Handlers
// =============================================================================

func (h *Handler) handleListAllowedTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.engine.ListAllowedTemplates(r.Context())
	if err != nil {
		h.writeEngineError(w, "list templates", err)
		return
	}

	out := make([]TemplateResponse, 0, len(templates))
	for _, t := range templates {
		out = append(out, TemplateResponse{
			ID:        t.ID,
			Name:      t.Name,
			Slug:      t.Slug,
			Kind:      string(t.Kind),
			Defaults:  t.Defaults,
			UpdatedAt: t.UpdatedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, Response{OK: true, Data: out})
}

// =============================================================================
// Audit Handlers
// =============================================================================

func (h *Handler) handleListAuditEvents(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())

	events, err := h.store.ListAuditEvents(r.Context(), tenant.ID, listOptionsFrom(r).Limit)
	if err != nil {
		h.writeEngineError(w, "list audit events", err)
		return
	}

	h.writeJSON(w, http.StatusOK, Response{OK: true, Data: events})
}

// =============================================================================
// Helpers
// =============================================================================

func listOptionsFrom(r *http.Request) store.ListOptions {
	opts := store.DefaultListOptions()
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			opts.Limit = l
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			opts.Offset = o
		}
	}
	return opts.Normalize()
}

func tailFrom(r *http.Request) int {
	if tail := r.URL.Query().Get("tail"); tail != "" {
		if n, err := strconv.Atoi(tail); err == nil && n > 0 {
			return n
		}
	}
	return 100
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, kind, message string, out *OutputBody) {
	h.writeJSON(w, status, Response{
		OK:    false,
		Error: &ErrorBody{Kind: kind, Message: message, Output: out},
	})
}

// writeEngineError maps a lifecycle error onto the wire envelope.
func (h *Handler) writeEngineError(w http.ResponseWriter, op string, err error) {
	kind := domain.ErrorKind(err)
	status := statusForKind(kind)

	if status >= http.StatusInternalServerError {
		h.logger.Error("operation failed", "op", op, "kind", kind, "error", err)
	}

	var out *OutputBody
	if captured, ok := engine.CapturedOutput(err); ok {
		out = &OutputBody{
			ExitCode: captured.ExitCode,
			Stdout:   captured.Stdout,
			Stderr:   captured.Stderr,
		}
	}

	message := err.Error()
	if kind == "internal_error" {
		// Unclassified errors stay server-side.
		message = "internal error"
	}

	h.writeError(w, status, kind, message, out)
}

func statusForKind(kind string) int {
	switch kind {
	case "validation_error", "unsupported_template_kind":
		return http.StatusBadRequest
	case "sandbox_violation", "template_not_allowed":
		return http.StatusForbidden
	case "port_conflict", "port_range_exhausted":
		return http.StatusConflict
	case "not_found":
		return http.StatusNotFound
	case "runtime_timeout":
		return http.StatusGatewayTimeout
	case "runtime_error":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
