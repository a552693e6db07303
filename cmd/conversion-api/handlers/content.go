package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docuforge/conversion-engine/internal/blob"
	"github.com/docuforge/conversion-engine/internal/convert"
	"github.com/docuforge/conversion-engine/internal/domain"
	"github.com/docuforge/conversion-engine/internal/extract"
	"github.com/docuforge/conversion-engine/internal/modify"
	"github.com/docuforge/conversion-engine/internal/observability"
	"github.com/docuforge/conversion-engine/internal/storage"
)

// ContentHandler serves element extraction and content modification, the
// editing surface over stored PDFs.
type ContentHandler struct {
	logger    *observability.Logger
	repos     *storage.Repositories
	blobs     blob.Store
	extractor *extract.Extractor
	applier   *modify.Applier
}

// NewContentHandler creates a content handler.
func NewContentHandler(logger *observability.Logger, repos *storage.Repositories, blobs blob.Store, extractor *extract.Extractor, applier *modify.Applier) *ContentHandler {
	return &ContentHandler{
		logger:    logger,
		repos:     repos,
		blobs:     blobs,
		extractor: extractor,
		applier:   applier,
	}
}

// ExtractionDTO is the extraction response.
type ExtractionDTO struct {
	Elements     []domain.TextElement `json:"elements"`
	PageCount    int                  `json:"pageCount"`
	SkippedPages int                  `json:"skippedPages"`
}

// Elements handles GET /documents/{documentID}/elements. An optional ?page=N
// query narrows the response to one page; extraction still runs over the
// whole document so skippedPages stays accurate.
func (h *ContentHandler) Elements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, _ := domain.TenantFromContext(ctx)

	doc, data, err := h.loadPDF(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := h.extractor.Extract(ctx, data)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	elements := result.Elements
	if page := queryInt(r, "page", 0); page > 0 {
		filtered := elements[:0:0]
		for _, el := range elements {
			if el.Page == page {
				filtered = append(filtered, el)
			}
		}
		elements = filtered
	}

	h.logger.WithTenant(tc.TenantID).WithDocument(doc.ID).Debug().
		Int("elements", len(elements)).
		Int("skipped_pages", result.SkippedPages).
		Msg("elements extracted")
	writeJSON(w, http.StatusOK, ExtractionDTO{
		Elements:     elements,
		PageCount:    result.PageCount,
		SkippedPages: result.SkippedPages,
	})
}

// ModificationRequestDTO is the modification submission body.
type ModificationRequestDTO struct {
	Modifications []domain.Modification `json:"modifications"`
	// Strategy optionally forces one strategy instead of the default
	// direct-then-overlay selection. "html" is only ever used when named here.
	Strategy string `json:"strategy,omitempty"`
}

// ModificationResponseDTO reports the derived document and the strategy that
// produced it.
type ModificationResponseDTO struct {
	Document DocumentDTO `json:"document"`
	Strategy string      `json:"strategy"`
}

// Modify handles POST /documents/{documentID}/modifications. The source
// document is never mutated; the edited bytes become a new derived document.
func (h *ContentHandler) Modify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, _ := domain.TenantFromContext(ctx)

	doc, data, err := h.loadPDF(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req ModificationRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if len(req.Modifications) == 0 {
		writeBadRequest(w, "modifications must not be empty")
		return
	}

	result, err := h.applier.Apply(ctx, data, req.Modifications, modify.StrategyName(req.Strategy))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	key := blob.NewKey(tc.TenantID, string(convert.FormatPDF))
	if err := h.blobs.Write(ctx, key, result.Data); err != nil {
		writeDomainError(w, err)
		return
	}

	resultDoc := &storage.Document{
		TenantID:   tc.TenantID,
		UserID:     tc.UserID,
		ParentID:   &doc.ID,
		Filename:   doc.Filename,
		StorageKey: key,
		MimeType:   convert.MimeType(convert.FormatPDF),
		Extension:  string(convert.FormatPDF),
		SizeBytes:  int64(len(result.Data)),
		SHA256:     blob.HashBytes(result.Data),
		PageCount:  doc.PageCount,
	}
	if err := h.repos.Documents.Create(ctx, resultDoc); err != nil {
		h.discardBlob(ctx, key)
		writeDomainError(w, err)
		return
	}

	h.logger.WithTenant(tc.TenantID).WithDocument(doc.ID).Info().
		Str("result_document_id", resultDoc.ID.String()).
		Str("strategy", string(result.Strategy)).
		Int("modifications", len(req.Modifications)).
		Msg("modifications applied")
	writeJSON(w, http.StatusCreated, ModificationResponseDTO{
		Document: toDocumentDTO(resultDoc),
		Strategy: string(result.Strategy),
	})
}

// loadPDF resolves the path document and reads its bytes, rejecting non-PDFs.
func (h *ContentHandler) loadPDF(r *http.Request) (*storage.Document, []byte, error) {
	ctx := r.Context()
	tc, _ := domain.TenantFromContext(ctx)

	docID, err := uuid.Parse(chi.URLParam(r, "documentID"))
	if err != nil {
		return nil, nil, domain.InvalidInput("malformed document id")
	}
	doc, err := h.repos.Documents.GetByID(ctx, tc.TenantID, docID)
	if err != nil {
		return nil, nil, err
	}
	if convert.Normalize(doc.Extension) != convert.FormatPDF {
		return nil, nil, domain.InvalidInput("operation requires a PDF document, got " + doc.Extension)
	}
	data, err := h.blobs.Read(ctx, doc.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return doc, data, nil
}

func (h *ContentHandler) discardBlob(ctx context.Context, key string) {
	if err := h.blobs.Delete(ctx, key); err != nil {
		h.logger.Warn().Err(err).Str("key", key).Msg("blob delete failed")
	}
}
