package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docuforge/conversion-engine/internal/blob"
	"github.com/docuforge/conversion-engine/internal/convert"
	"github.com/docuforge/conversion-engine/internal/domain"
	"github.com/docuforge/conversion-engine/internal/observability"
	"github.com/docuforge/conversion-engine/internal/storage"
)

// DocumentHandler handles document upload, retrieval, and deletion.
type DocumentHandler struct {
	logger         *observability.Logger
	repos          *storage.Repositories
	blobs          blob.Store
	maxUploadBytes int64
}

// NewDocumentHandler creates a document handler.
func NewDocumentHandler(logger *observability.Logger, repos *storage.Repositories, blobs blob.Store, maxUploadBytes int64) *DocumentHandler {
	return &DocumentHandler{
		logger:         logger,
		repos:          repos,
		blobs:          blobs,
		maxUploadBytes: maxUploadBytes,
	}
}

// DocumentDTO is the API representation of a document.
type DocumentDTO struct {
	ID        string  `json:"id"`
	ParentID  *string `json:"parentId,omitempty"`
	Filename  string  `json:"filename"`
	MimeType  string  `json:"mimeType"`
	Extension string  `json:"extension"`
	SizeBytes int64   `json:"sizeBytes"`
	SHA256    string  `json:"sha256"`
	PageCount *int    `json:"pageCount,omitempty"`
	CreatedAt string  `json:"createdAt"`
}

func toDocumentDTO(doc *storage.Document) DocumentDTO {
	dto := DocumentDTO{
		ID:        doc.ID.String(),
		Filename:  doc.Filename,
		MimeType:  doc.MimeType,
		Extension: doc.Extension,
		SizeBytes: doc.SizeBytes,
		SHA256:    doc.SHA256,
		PageCount: doc.PageCount,
		CreatedAt: doc.CreatedAt.Format(time.RFC3339),
	}
	if doc.ParentID != nil {
		s := doc.ParentID.String()
		dto.ParentID = &s
	}
	return dto
}

// Upload handles POST /documents. The file arrives as the "file" field of a
// multipart form.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, _ := domain.TenantFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "multipart form must carry a \"file\" field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeBadRequest(w, "upload truncated or too large")
		return
	}
	if len(data) == 0 {
		writeBadRequest(w, "uploaded file is empty")
		return
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	format := convert.Normalize(ext)
	if !convert.Known(format) {
		writeDomainError(w, domain.InvalidInput("unsupported file extension "+ext))
		return
	}

	if err := h.checkQuota(ctx, tc.TenantID, int64(len(data))); err != nil {
		writeDomainError(w, err)
		return
	}

	key := blob.NewKey(tc.TenantID, string(format))
	if err := h.blobs.Write(ctx, key, data); err != nil {
		h.logger.Error().Err(err).Msg("blob write failed")
		writeDomainError(w, err)
		return
	}

	doc := &storage.Document{
		TenantID:   tc.TenantID,
		UserID:     tc.UserID,
		Filename:   filepath.Base(header.Filename),
		StorageKey: key,
		MimeType:   convert.MimeType(format),
		Extension:  string(format),
		SizeBytes:  int64(len(data)),
		SHA256:     blob.HashBytes(data),
	}
	if format == convert.FormatPDF {
		if path, err := blob.WriteTemp("", "upload-*.pdf", data); err == nil {
			if n, err := convert.PageCount(path); err == nil {
				doc.PageCount = &n
			}
			removeFile(path)
		}
	}

	if err := h.repos.Documents.Create(ctx, doc); err != nil {
		h.discardBlob(ctx, key)
		writeDomainError(w, err)
		return
	}

	h.logger.WithTenant(tc.TenantID).Info().
		Str("document_id", doc.ID.String()).
		Str("filename", doc.Filename).
		Int64("size_bytes", doc.SizeBytes).
		Msg("document uploaded")
	writeJSON(w, http.StatusCreated, toDocumentDTO(doc))
}

// Get handles GET /documents/{documentID}.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, _ := domain.TenantFromContext(ctx)

	docID, err := uuid.Parse(chi.URLParam(r, "documentID"))
	if err != nil {
		writeBadRequest(w, "malformed document id")
		return
	}

	doc, err := h.repos.Documents.GetByID(ctx, tc.TenantID, docID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentDTO(doc))
}

// List handles GET /documents.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, _ := domain.TenantFromContext(ctx)

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	docs, err := h.repos.Documents.ListByTenant(ctx, tc.TenantID, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]DocumentDTO, 0, len(docs))
	for _, doc := range docs {
		dtos = append(dtos, toDocumentDTO(doc))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": dtos})
}

// Download handles GET /documents/{documentID}/content.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, _ := domain.TenantFromContext(ctx)

	docID, err := uuid.Parse(chi.URLParam(r, "documentID"))
	if err != nil {
		writeBadRequest(w, "malformed document id")
		return
	}

	doc, err := h.repos.Documents.GetByID(ctx, tc.TenantID, docID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	data, err := h.blobs.Read(ctx, doc.StorageKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorDTO{Error: "document content missing"})
			return
		}
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", doc.MimeType)
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(doc.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// Delete handles DELETE /documents/{documentID}. Deletion is soft in the
// database and cascades to derived documents; blobs are removed eagerly.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, _ := domain.TenantFromContext(ctx)

	docID, err := uuid.Parse(chi.URLParam(r, "documentID"))
	if err != nil {
		writeBadRequest(w, "malformed document id")
		return
	}

	doc, err := h.repos.Documents.GetByID(ctx, tc.TenantID, docID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	children, err := h.repos.Documents.ListChildren(ctx, tc.TenantID, docID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if _, err := h.repos.Documents.SoftDelete(ctx, tc.TenantID, docID); err != nil {
		writeDomainError(w, err)
		return
	}

	h.discardBlob(ctx, doc.StorageKey)
	for _, child := range children {
		h.discardBlob(ctx, child.StorageKey)
	}

	h.logger.WithTenant(tc.TenantID).Info().
		Str("document_id", docID.String()).
		Int("derived", len(children)).
		Msg("document deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) checkQuota(ctx context.Context, tenantID uuid.UUID, addition int64) error {
	tenant, err := h.repos.Tenants.GetByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if tenant.QuotaBytes <= 0 {
		return nil
	}
	used, err := h.repos.Tenants.StorageUsed(ctx, tenantID)
	if err != nil {
		return err
	}
	if used+addition > tenant.QuotaBytes {
		return domain.StorageQuotaExceeded("upload would exceed tenant storage quota")
	}
	return nil
}

func (h *DocumentHandler) discardBlob(ctx context.Context, key string) {
	if err := h.blobs.Delete(ctx, key); err != nil {
		h.logger.Warn().Err(err).Str("key", key).Msg("blob delete failed")
	}
}

func removeFile(path string) {
	_ = os.Remove(path)
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
