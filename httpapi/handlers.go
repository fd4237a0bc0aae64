package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	leadcommand "github.com/goliatone/go-leadhooks/command"
	"github.com/goliatone/go-leadhooks/core"
	"github.com/goliatone/go-leadhooks/intake"
	"github.com/goliatone/go-leadhooks/trigger"
	"github.com/goliatone/go-leadhooks/webhooks"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

// Backend is the slice of the lead hooks service the HTTP surface drives.
type Backend interface {
	LeadCreated(ctx context.Context, msg leadcommand.LeadCreatedMessage) (trigger.Report, error)
	LeadUpdated(ctx context.Context, msg leadcommand.LeadUpdatedMessage) (trigger.Report, error)
	SubmitForm(ctx context.Context, msg leadcommand.FormSubmittedMessage) (intake.Result, error)
	ListTargets(ctx context.Context, tenantID string) ([]core.WebhookTarget, error)
	LeadActivity(ctx context.Context, leadID string) ([]core.AuditEntry, error)
	CheckTarget(ctx context.Context, url string, secret string) (webhooks.HealthReport, error)
	InvalidateTargets(ctx context.Context, tenantID string) error
}

type Handlers struct {
	backend  Backend
	metrics  http.Handler
	observer core.Observer
}

func NewHandlers(backend Backend, metrics http.Handler, observer core.Observer) (*Handlers, error) {
	if backend == nil {
		return nil, fmt.Errorf("httpapi: backend is required")
	}
	return &Handlers{backend: backend, metrics: metrics, observer: observer}, nil
}

// NewRouter mounts every route on a fresh router.
func NewRouter(h *Handlers) *mux.Router {
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return router
}

func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	if h.metrics != nil {
		router.Handle("/metrics", h.metrics).Methods(http.MethodGet)
	}

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/leads/created", h.leadCreated).Methods(http.MethodPost)
	v1.HandleFunc("/leads/updated", h.leadUpdated).Methods(http.MethodPost)
	v1.HandleFunc("/forms/{form}/submissions", h.formSubmitted).Methods(http.MethodPost)
	v1.HandleFunc("/leads/{lead}/activity", h.leadActivity).Methods(http.MethodGet)
	v1.HandleFunc("/tenants/{tenant}/targets", h.listTargets).Methods(http.MethodGet)
	v1.HandleFunc("/tenants/{tenant}/targets/cache", h.invalidateTargets).Methods(http.MethodDelete)
	v1.HandleFunc("/targets/health", h.checkTarget).Methods(http.MethodPost)
}

func (h *Handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// leadCreated handles POST /v1/leads/created
func (h *Handlers) leadCreated(w http.ResponseWriter, r *http.Request) {
	var req leadCreatedRequest
	if !h.decode(w, r, &req) {
		return
	}
	report, err := h.backend.LeadCreated(r.Context(), leadcommand.LeadCreatedMessage{
		Lead:             req.Lead.toDomain(),
		Source:           core.CreationSource(strings.TrimSpace(req.Source)),
		SuppressWebhooks: req.SuppressWebhooks,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newReportResponse(report))
}

// leadUpdated handles POST /v1/leads/updated
func (h *Handlers) leadUpdated(w http.ResponseWriter, r *http.Request) {
	var req leadUpdatedRequest
	if !h.decode(w, r, &req) {
		return
	}
	original := make(map[core.WatchedField]string, len(req.Original))
	for field, value := range req.Original {
		original[core.WatchedField(strings.TrimSpace(field))] = value
	}
	report, err := h.backend.LeadUpdated(r.Context(), leadcommand.LeadUpdatedMessage{
		Lead:             req.Lead.toDomain(),
		Original:         original,
		SuppressWebhooks: req.SuppressWebhooks,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newReportResponse(report))
}

// formSubmitted handles POST /v1/forms/{form}/submissions
func (h *Handlers) formSubmitted(w http.ResponseWriter, r *http.Request) {
	var req formSubmittedRequest
	if !h.decode(w, r, &req) {
		return
	}
	form := req.Form.toDomain()
	form.ID = mux.Vars(r)["form"]
	result, err := h.backend.SubmitForm(r.Context(), leadcommand.FormSubmittedMessage{
		Form: form,
		Lead: req.Lead.toDomain(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, formSubmittedResponse{
		FormBatchID: result.FormBatchID,
		Source:      string(result.Source),
		Report:      newReportResponse(result.Report),
	})
}

// leadActivity handles GET /v1/leads/{lead}/activity
func (h *Handlers) leadActivity(w http.ResponseWriter, r *http.Request) {
	entries, err := h.backend.LeadActivity(r.Context(), mux.Vars(r)["lead"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]activityResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, newActivityResponse(entry))
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": out, "count": len(out)})
}

// listTargets handles GET /v1/tenants/{tenant}/targets
func (h *Handlers) listTargets(w http.ResponseWriter, r *http.Request) {
	list, err := h.backend.ListTargets(r.Context(), mux.Vars(r)["tenant"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]targetResponse, 0, len(list))
	for _, target := range list {
		out = append(out, newTargetResponse(target))
	}
	writeJSON(w, http.StatusOK, map[string]any{"targets": out, "count": len(out)})
}

// invalidateTargets handles DELETE /v1/tenants/{tenant}/targets/cache
func (h *Handlers) invalidateTargets(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.InvalidateTargets(r.Context(), mux.Vars(r)["tenant"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// checkTarget handles POST /v1/targets/health
func (h *Handlers) checkTarget(w http.ResponseWriter, r *http.Request) {
	var req checkTargetRequest
	if !h.decode(w, r, &req) {
		return
	}
	report, err := h.backend.CheckTarget(r.Context(), req.URL, req.Secret)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		h.writeError(w, r, core.NewError("httpapi: invalid request body: "+err.Error(), goerrors.CategoryBadInput, core.ErrorBadInput))
		return false
	}
	return true
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	mapped := core.MapError(err)
	status := mapped.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}
	fields := map[string]any{
		"method":    r.Method,
		"path":      r.URL.Path,
		"status":    status,
		"text_code": mapped.TextCode,
		"error":     err.Error(),
	}
	if status >= http.StatusInternalServerError {
		h.observer.Error(r.Context(), "http request failed", fields)
	} else {
		h.observer.Debug(r.Context(), "http request rejected", fields)
	}
	writeJSON(w, status, errorResponse{Error: errorBody{
		TextCode: mapped.TextCode,
		Message:  mapped.Message,
		Category: fmt.Sprint(mapped.Category),
	}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
