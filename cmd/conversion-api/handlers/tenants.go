package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/docuforge/conversion-engine/internal/domain"
	"github.com/docuforge/conversion-engine/internal/observability"
	"github.com/docuforge/conversion-engine/internal/storage"
)

// TenantHandler handles tenant provisioning and usage reporting.
type TenantHandler struct {
	logger *observability.Logger
	repos  *storage.Repositories
}

// NewTenantHandler creates a tenant handler.
func NewTenantHandler(logger *observability.Logger, repos *storage.Repositories) *TenantHandler {
	return &TenantHandler{logger: logger, repos: repos}
}

// TenantRequestDTO is the provisioning body.
type TenantRequestDTO struct {
	Name         string `json:"name"`
	PlanTier     string `json:"planTier,omitempty"`
	ContactEmail string `json:"contactEmail,omitempty"`
	QuotaBytes   int64  `json:"quotaBytes,omitempty"`
}

// TenantDTO is the API representation of a tenant.
type TenantDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PlanTier   string `json:"planTier"`
	QuotaBytes int64  `json:"quotaBytes"`
	CreatedAt  string `json:"createdAt"`
}

// Create handles POST /tenants. Provisioning sits outside tenancy middleware;
// in deployment it is reachable only from the control plane.
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req TenantRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	tier := storage.PlanTier(req.PlanTier)
	switch tier {
	case "":
		tier = storage.PlanTierFree
	case storage.PlanTierFree, storage.PlanTierPro, storage.PlanTierEnterprise:
	default:
		writeBadRequest(w, "planTier must be free, pro, or enterprise")
		return
	}

	tenant := &storage.Tenant{
		Name:       req.Name,
		PlanTier:   tier,
		QuotaBytes: req.QuotaBytes,
	}
	if req.ContactEmail != "" {
		tenant.ContactEmail = &req.ContactEmail
	}
	if err := h.repos.Tenants.Create(r.Context(), tenant); err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.Info().Str("tenant_id", tenant.ID.String()).Str("plan", string(tier)).Msg("tenant provisioned")
	writeJSON(w, http.StatusCreated, TenantDTO{
		ID:         tenant.ID.String(),
		Name:       tenant.Name,
		PlanTier:   string(tenant.PlanTier),
		QuotaBytes: tenant.QuotaBytes,
		CreatedAt:  tenant.CreatedAt.Format(time.RFC3339),
	})
}

// Usage handles GET /usage for the calling tenant.
func (h *TenantHandler) Usage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, _ := domain.TenantFromContext(ctx)

	tenant, err := h.repos.Tenants.GetByID(ctx, tc.TenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	used, err := h.repos.Tenants.StorageUsed(ctx, tc.TenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenantId":   tenant.ID.String(),
		"planTier":   tenant.PlanTier,
		"quotaBytes": tenant.QuotaBytes,
		"usedBytes":  used,
	})
}
