package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docuforge/conversion-engine/internal/domain"
	"github.com/docuforge/conversion-engine/internal/jobs"
	"github.com/docuforge/conversion-engine/internal/observability"
	"github.com/docuforge/conversion-engine/internal/storage"
)

// ConversionHandler handles conversion submission and lifecycle requests.
type ConversionHandler struct {
	logger  *observability.Logger
	service *jobs.Service
	repos   *storage.Repositories
}

// NewConversionHandler creates a conversion handler.
func NewConversionHandler(logger *observability.Logger, service *jobs.Service, repos *storage.Repositories) *ConversionHandler {
	return &ConversionHandler{logger: logger, service: service, repos: repos}
}

// ConversionRequestDTO is the submission body.
type ConversionRequestDTO struct {
	DocumentID string          `json:"documentId"`
	ToFormat   string          `json:"toFormat"`
	Priority   string          `json:"priority,omitempty"`
	Options    json.RawMessage `json:"options,omitempty"`
}

// ConversionDTO is the API representation of a conversion.
type ConversionDTO struct {
	ID               string  `json:"id"`
	DocumentID       string  `json:"documentId"`
	ResultDocumentID *string `json:"resultDocumentId,omitempty"`
	FromFormat       string  `json:"fromFormat"`
	ToFormat         string  `json:"toFormat"`
	Status           string  `json:"status"`
	Priority         string  `json:"priority"`
	Progress         int     `json:"progress"`
	ErrorMessage     *string `json:"errorMessage,omitempty"`
	ErrorKind        *string `json:"errorKind,omitempty"`
	RetryCount       int     `json:"retryCount"`
	CreatedAt        string  `json:"createdAt"`
	StartedAt        *string `json:"startedAt,omitempty"`
	CompletedAt      *string `json:"completedAt,omitempty"`
}

func toConversionDTO(conv *storage.Conversion) ConversionDTO {
	dto := ConversionDTO{
		ID:           conv.ID.String(),
		DocumentID:   conv.DocumentID.String(),
		FromFormat:   conv.FromFormat,
		ToFormat:     conv.ToFormat,
		Status:       string(conv.Status),
		Priority:     string(conv.Priority),
		Progress:     conv.Progress,
		ErrorMessage: conv.ErrorMessage,
		ErrorKind:    conv.ErrorKind,
		RetryCount:   conv.RetryCount,
		CreatedAt:    conv.CreatedAt.Format(time.RFC3339),
	}
	if conv.ResultDocumentID != nil {
		s := conv.ResultDocumentID.String()
		dto.ResultDocumentID = &s
	}
	if conv.StartedAt != nil {
		s := conv.StartedAt.Format(time.RFC3339)
		dto.StartedAt = &s
	}
	if conv.CompletedAt != nil {
		s := conv.CompletedAt.Format(time.RFC3339)
		dto.CompletedAt = &s
	}
	return dto
}

// Create handles POST /conversions.
func (h *ConversionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, _ := domain.TenantFromContext(ctx)

	var req ConversionRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	docID, err := uuid.Parse(req.DocumentID)
	if err != nil {
		writeBadRequest(w, "malformed documentId")
		return
	}
	if req.ToFormat == "" {
		writeBadRequest(w, "toFormat is required")
		return
	}

	priority := storage.Priority(req.Priority)
	switch priority {
	case "", storage.PriorityDefault:
		priority = storage.PriorityDefault
	case storage.PriorityHigh, storage.PriorityLow:
	default:
		writeBadRequest(w, "priority must be high, default, or low")
		return
	}

	conv, err := h.service.Request(ctx, tc.TenantID, tc.UserID, docID, req.ToFormat, priority, req.Options)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toConversionDTO(conv))
}

// Get handles GET /conversions/{conversionID}.
func (h *ConversionHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, _ := domain.TenantFromContext(ctx)

	convID, err := uuid.Parse(chi.URLParam(r, "conversionID"))
	if err != nil {
		writeBadRequest(w, "malformed conversion id")
		return
	}

	conv, err := h.service.Status(ctx, tc.TenantID, convID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversionDTO(conv))
}

// ListByDocument handles GET /documents/{documentID}/conversions.
func (h *ConversionHandler) ListByDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, _ := domain.TenantFromContext(ctx)

	docID, err := uuid.Parse(chi.URLParam(r, "documentID"))
	if err != nil {
		writeBadRequest(w, "malformed document id")
		return
	}

	convs, err := h.repos.Conversions.ListByDocument(ctx, tc.TenantID, docID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]ConversionDTO, 0, len(convs))
	for _, conv := range convs {
		dtos = append(dtos, toConversionDTO(conv))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"conversions": dtos})
}

// Cancel handles POST /conversions/{conversionID}/cancel.
func (h *ConversionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, _ := domain.TenantFromContext(ctx)

	convID, err := uuid.Parse(chi.URLParam(r, "conversionID"))
	if err != nil {
		writeBadRequest(w, "malformed conversion id")
		return
	}

	if err := h.service.Cancel(ctx, tc.TenantID, convID); err != nil {
		writeDomainError(w, err)
		return
	}
	conv, err := h.repos.Conversions.GetByID(ctx, tc.TenantID, convID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversionDTO(conv))
}

// Retry handles POST /conversions/{conversionID}/retry.
func (h *ConversionHandler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, _ := domain.TenantFromContext(ctx)

	convID, err := uuid.Parse(chi.URLParam(r, "conversionID"))
	if err != nil {
		writeBadRequest(w, "malformed conversion id")
		return
	}

	conv, err := h.service.Retry(ctx, tc.TenantID, convID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toConversionDTO(conv))
}
