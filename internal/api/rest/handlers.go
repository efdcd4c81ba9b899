package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/safeworkhq/compliance-backend/internal/domain/audit"
	apperrors "github.com/safeworkhq/compliance-backend/internal/domain/errors"
	"github.com/safeworkhq/compliance-backend/internal/domain/risk"
	"github.com/safeworkhq/compliance-backend/internal/domain/template"
	"github.com/safeworkhq/compliance-backend/internal/service/catalog"
	"github.com/safeworkhq/compliance-backend/internal/service/records"
	"github.com/safeworkhq/compliance-backend/internal/service/registry"
)

// Handler carries the service dependencies of the HTTP surface.
type Handler struct {
	registry *registry.Service
	records  *records.Service
	trail    audit.Repository
	catalog  *catalog.Service
	hub      *AuditHub
	logger   *slog.Logger
	validate *validator.Validate
}

func NewHandler(
	reg *registry.Service,
	rec *records.Service,
	trail audit.Repository,
	cat *catalog.Service,
	hub *AuditHub,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		registry: reg,
		records:  rec,
		trail:    trail,
		catalog:  cat,
		hub:      hub,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes wires all routes onto the mux. The ingest route gets its own
// rate limit on top of the shared middleware chain.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, ingestLimit Middleware) {
	mux.HandleFunc("PUT /api/v1/templates/{id}", h.putTemplate)
	mux.HandleFunc("GET /api/v1/templates/{id}", h.getTemplate)
	mux.HandleFunc("GET /api/v1/templates", h.listTemplates)

	ingest := http.HandlerFunc(h.createSubmission)
	if ingestLimit != nil {
		mux.Handle("POST /api/v1/submissions", ingestLimit(ingest))
	} else {
		mux.Handle("POST /api/v1/submissions", ingest)
	}
	mux.HandleFunc("GET /api/v1/submissions/{id}", h.getSubmission)

	mux.HandleFunc("GET /api/v1/audit/trail", h.auditTrail)
	mux.HandleFunc("GET /api/v1/audit/recent", h.auditRecent)
	mux.HandleFunc("GET /api/v1/audit/stream", h.hub.handleAuditStream)

	mux.HandleFunc("POST /api/v1/risk/rating", h.riskRating)

	mux.HandleFunc("GET /api/v1/catalog", h.listIndustries)
	mux.HandleFunc("GET /api/v1/catalog/{industry}/checklist", h.industryChecklist)

	mux.HandleFunc("POST /api/v1/integration/webhook", h.integrationWebhook)

	mux.HandleFunc("GET /healthz", h.healthz)
}

// --- templates ---

func (h *Handler) putTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl template.Template
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		writeError(w, r, apperrors.NewValidationError("INVALID_JSON", "request body is not valid JSON"))
		return
	}
	// The path id wins over any id in the body.
	tpl.ID = r.PathValue("id")
	tpl.Locked = false

	if err := h.registry.Save(r.Context(), &tpl); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (h *Handler) getTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.registry.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := h.registry.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": list, "count": len(list)})
}

// --- submissions ---

type createSubmissionRequest struct {
	TemplateID   string `json:"template_id" validate:"required"`
	SourceSystem string `json:"source_system" validate:"required"`
	DocType      string `json:"doc_type" validate:"required"`
	Document     string `json:"document" validate:"required"`
}

func (h *Handler) createSubmission(w http.ResponseWriter, r *http.Request) {
	var req createSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apperrors.NewValidationError("INVALID_JSON", "request body is not valid JSON"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, r, apperrors.NewValidationError("INVALID_INPUT", err.Error()))
		return
	}

	rec, err := h.records.Ingest(r.Context(), &records.IngestRequest{
		TemplateID:   req.TemplateID,
		SourceSystem: req.SourceSystem,
		DocType:      req.DocType,
		Actor:        ActorFrom(r.Context()),
		Document:     []byte(req.Document),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	ingestedDocuments.WithLabelValues(req.TemplateID).Inc()
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) getSubmission(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, apperrors.NewValidationError("INVALID_SUBMISSION_ID", "submission id must be a UUID"))
		return
	}

	rec, err := h.records.Get(r.Context(), id, ActorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// --- audit ---

func (h *Handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	objectID := r.URL.Query().Get("object_id")
	if objectID == "" {
		writeError(w, r, apperrors.NewValidationError("MISSING_OBJECT_ID", "object_id query parameter is required"))
		return
	}

	trail, err := h.trail.TrailFor(r.Context(), objectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"object_id": objectID, "records": trail})
}

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

func (h *Handler) auditRecent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, r, apperrors.NewValidationError("INVALID_LIMIT", "limit must be a non-negative integer"))
			return
		}
		limit = parsed
		if limit > maxRecentLimit {
			limit = maxRecentLimit
		}
	}

	recent, err := h.trail.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recent})
}

// --- risk ---

type riskRatingRequest struct {
	Probability int `json:"probability" validate:"required"`
	Severity    int `json:"severity" validate:"required"`
	Frequency   int `json:"frequency"`
}

func (h *Handler) riskRating(w http.ResponseWriter, r *http.Request) {
	var req riskRatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apperrors.NewValidationError("INVALID_JSON", "request body is not valid JSON"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, r, apperrors.NewValidationError("INVALID_INPUT", err.Error()))
		return
	}
	if req.Frequency == 0 {
		req.Frequency = 1
	}

	rating, err := risk.Assess(req.Probability, req.Severity, req.Frequency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rating)
}

// --- catalog ---

func (h *Handler) listIndustries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"industries": h.catalog.Industries(r.Context())})
}

func (h *Handler) industryChecklist(w http.ResponseWriter, r *http.Request) {
	cl, err := h.catalog.Checklist(r.Context(), r.PathValue("industry"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cl)
}

// --- integration ---

type webhookRequest struct {
	System string         `json:"system" validate:"required"`
	Event  string         `json:"event" validate:"required"`
	Data   map[string]any `json:"data"`
}

// integrationWebhook records an inbound event from an external system on the
// audit trail. Payload processing stays with the caller-facing ingest route;
// the webhook only acknowledges and audits.
func (h *Handler) integrationWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apperrors.NewValidationError("INVALID_JSON", "request body is not valid JSON"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, r, apperrors.NewValidationError("INVALID_INPUT", err.Error()))
		return
	}

	details := map[string]any{"event": req.Event}
	if req.Data != nil {
		details["data"] = req.Data
	}
	rec, err := audit.NewRecord(ActorFrom(r.Context()), audit.ActionWebhook, "external_system", req.System, details)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.trail.Append(r.Context(), rec); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "received",
		"system": req.System,
		"event":  req.Event,
	})
}

// --- health ---

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
