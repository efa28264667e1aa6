package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gravecore/internal/core"
	"gravecore/pkg/domain"
	"gravecore/pkg/log"
)

const maxBodyBytes = 1 << 20

// Handler serves the REST API over a core.Service.
type Handler struct {
	logger    *slog.Logger
	service   *core.Service
	payloads  *payloadValidator
	resources []resource
	metrics   http.Handler
	checks    map[string]func(context.Context) error
}

// HandlerOption customises a Handler.
type HandlerOption func(*Handler)

// WithMetricsHandler replaces the /metrics handler. promhttp.Handler is the default.
func WithMetricsHandler(metrics http.Handler) HandlerOption {
	return func(h *Handler) {
		if metrics != nil {
			h.metrics = metrics
		}
	}
}

// WithHealthCheck adds a named dependency probe to /health.
func WithHealthCheck(name string, check func(context.Context) error) HandlerOption {
	return func(h *Handler) {
		if check != nil {
			h.checks[name] = check
		}
	}
}

// NewHandler creates a new HTTP handler
func NewHandler(service *core.Service, opts ...HandlerOption) (*Handler, error) {
	payloads, err := newPayloadValidator()
	if err != nil {
		return nil, err
	}
	h := &Handler{
		logger:   log.Logger("http.handler"),
		service:  service,
		payloads: payloads,
		metrics:  promhttp.Handler(),
		checks:   map[string]func(context.Context) error{},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.resources = []resource{
		newResource(domain.EntityCemetery, crud[domain.Cemetery]{
			create: service.CreateCemetery,
			update: service.UpdateCemetery,
			delete: service.DeleteCemetery,
			get:    service.GetCemetery,
			list:   service.ListCemeteries,
			keep: func(cur, next *domain.Cemetery) {
				next.Base = cur.Base
				next.GraveIDs = cur.GraveIDs
			},
		}, payloads),
		newResource(domain.EntityGrave, crud[domain.Grave]{
			create: service.CreateGrave,
			update: service.UpdateGrave,
			delete: service.DeleteGrave,
			get:    service.GetGrave,
			list:   service.ListGraves,
			keep: func(cur, next *domain.Grave) {
				next.Base = cur.Base
				next.BurialIDs = cur.BurialIDs
				next.CoverIDs = cur.CoverIDs
			},
		}, payloads),
		newResource(domain.EntityBurial, crud[domain.Burial]{
			create: service.CreateBurial,
			update: service.UpdateBurial,
			delete: service.DeleteBurial,
			get:    service.GetBurial,
			list:   service.ListBurials,
			keep:   func(cur, next *domain.Burial) { next.Base = cur.Base },
		}, payloads),
		newResource(domain.EntityCover, crud[domain.Cover]{
			create: service.CreateCover,
			update: service.UpdateCover,
			delete: service.DeleteCover,
			get:    service.GetCover,
			list:   service.ListCovers,
			keep:   func(cur, next *domain.Cover) { next.Base = cur.Base },
		}, payloads),
	}
	return h, nil
}

// Response represents a standard API response
type Response struct {
	Success    bool               `json:"success"`
	Data       any                `json:"data,omitempty"`
	Error      string             `json:"error,omitempty"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	for _, res := range h.resources {
		base := "/api/v1/" + res.name
		mux.HandleFunc("GET "+base, h.list(res))
		mux.HandleFunc("POST "+base, h.create(res))
		mux.HandleFunc("GET "+base+"/{id}", h.get(res))
		mux.HandleFunc("PUT "+base+"/{id}", h.replace(res))
		mux.HandleFunc("DELETE "+base+"/{id}", h.delete(res))
		mux.HandleFunc("GET "+base+"/{id}/change_log", h.changeLog(res.entity))
		mux.HandleFunc("GET "+base+"/{id}/audit_trail", h.auditTrail(res.entity))
	}

	// Relationships
	mux.HandleFunc("PUT /api/v1/graves/{id}/burials/{burialID}", h.link(h.service.AddBurialToGrave, "burialID"))
	mux.HandleFunc("DELETE /api/v1/graves/{id}/burials/{burialID}", h.link(h.service.RemoveBurialFromGrave, "burialID"))
	mux.HandleFunc("PUT /api/v1/graves/{id}/covers/{coverID}", h.link(h.service.AddCoverToGrave, "coverID"))
	mux.HandleFunc("DELETE /api/v1/graves/{id}/covers/{coverID}", h.link(h.service.RemoveCoverFromGrave, "coverID"))
	mux.HandleFunc("PUT /api/v1/cemeteries/{id}/graves/{graveID}", linkCemetery(h, h.service.AddGraveToCemetery))
	mux.HandleFunc("DELETE /api/v1/cemeteries/{id}/graves/{graveID}", linkCemetery(h, h.service.RemoveGraveFromCemetery))

	mux.HandleFunc("GET /api/v1/schema/{resource}", h.Schema)
	mux.Handle("GET /metrics", h.metrics)

	// Health check
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /api/v1/health", h.Health)
}

func (h *Handler) list(res resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := core.ParseListQuery(res.entity, r.URL.RawQuery)
		if err != nil {
			h.writeServiceError(w, err, domain.Result{})
			return
		}
		page, err := res.list(r.Context(), q)
		if err != nil {
			h.writeServiceError(w, err, domain.Result{})
			return
		}
		h.writeJSON(w, http.StatusOK, Response{Success: true, Data: page})
	}
}

func (h *Handler) create(res resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := h.readBody(w, r)
		if !ok {
			return
		}
		created, result, err := res.create(r.Context(), body)
		if err != nil {
			h.writeServiceError(w, err, result)
			return
		}
		h.writeJSON(w, http.StatusCreated, Response{Success: true, Data: created, Violations: result.Violations})
	}
}

func (h *Handler) get(res resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		found, err := res.get(r.Context(), r.PathValue("id"))
		if err != nil {
			h.writeServiceError(w, err, domain.Result{})
			return
		}
		h.writeJSON(w, http.StatusOK, Response{Success: true, Data: found})
	}
}

func (h *Handler) replace(res resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := h.readBody(w, r)
		if !ok {
			return
		}
		updated, result, err := res.replace(r.Context(), r.PathValue("id"), body)
		if err != nil {
			h.writeServiceError(w, err, result)
			return
		}
		h.writeJSON(w, http.StatusOK, Response{Success: true, Data: updated, Violations: result.Violations})
	}
}

func (h *Handler) delete(res resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		result, err := res.delete(r.Context(), id)
		if err != nil {
			h.writeServiceError(w, err, result)
			return
		}
		h.writeJSON(w, http.StatusOK, Response{
			Success:    true,
			Data:       map[string]string{"deleted": id},
			Violations: result.Violations,
		})
	}
}

func (h *Handler) changeLog(entity domain.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := h.service.ChangeLog(r.Context(), entity, r.PathValue("id"))
		if err != nil {
			h.writeServiceError(w, err, domain.Result{})
			return
		}
		if entries == nil {
			entries = []domain.ChangeLogEntry{}
		}
		h.writeJSON(w, http.StatusOK, Response{Success: true, Data: entries})
	}
}

func (h *Handler) auditTrail(entity domain.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := h.service.AuditTrail(r.Context(), entity, r.PathValue("id"))
		if err != nil {
			h.writeServiceError(w, err, domain.Result{})
			return
		}
		if entries == nil {
			entries = []domain.AuditEntry{}
		}
		h.writeJSON(w, http.StatusOK, Response{Success: true, Data: entries})
	}
}

func (h *Handler) link(op func(context.Context, string, string) (domain.Grave, domain.Result, error), param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		grave, result, err := op(r.Context(), r.PathValue("id"), r.PathValue(param))
		if err != nil {
			h.writeServiceError(w, err, result)
			return
		}
		h.writeJSON(w, http.StatusOK, Response{Success: true, Data: grave, Violations: result.Violations})
	}
}

func linkCemetery(h *Handler, op func(context.Context, string, string) (domain.Cemetery, domain.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cemetery, result, err := op(r.Context(), r.PathValue("id"), r.PathValue("graveID"))
		if err != nil {
			h.writeServiceError(w, err, result)
			return
		}
		h.writeJSON(w, http.StatusOK, Response{Success: true, Data: cemetery, Violations: result.Violations})
	}
}

// Schema handles GET /api/v1/schema/{resource}
func (h *Handler) Schema(w http.ResponseWriter, r *http.Request) {
	schema, ok := domain.SchemaForResource(r.PathValue("resource"))
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown resource: "+r.PathValue("resource"))
		return
	}
	h.writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]any{
			"schema":      schema,
			"json_schema": WriteSchema(schema),
		},
	})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			h.logger.Warn("health check failed", "check", name, "error", err)
			status[name] = err.Error()
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	h.writeJSON(w, code, Response{Success: code == http.StatusOK, Data: status})
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return nil, false
	}
	return body, true
}

// writeServiceError maps domain and query errors onto status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, result domain.Result) {
	var (
		notFound   domain.NotFoundError
		conflict   domain.ConflictError
		violation  domain.RuleViolationError
		validation *domain.ValidationError
		query      *core.QueryError
		payload    *payloadError
	)
	switch {
	case errors.As(err, &notFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &validation):
		h.writeJSON(w, http.StatusUnprocessableEntity, Response{Error: err.Error(), Data: validation})
	case errors.As(err, &violation):
		violations := violation.Result.Violations
		if len(violations) == 0 {
			violations = result.Violations
		}
		h.writeJSON(w, http.StatusConflict, Response{Error: err.Error(), Violations: violations})
	case errors.As(err, &conflict):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &query), errors.As(err, &payload):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, Response{
		Success: false,
		Error:   message,
	})
}
