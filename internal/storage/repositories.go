package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrNotFound      = errors.New("record not found")
	ErrConflict      = errors.New("record conflict")
	ErrInvalidTenant = errors.New("invalid tenant")
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// TenantRepository handles tenant CRUD operations.
type TenantRepository struct {
	db DB
}

// NewTenantRepository creates a new tenant repository.
func NewTenantRepository(db DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create creates a new tenant.
func (r *TenantRepository) Create(ctx context.Context, tenant *Tenant) error {
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	tenant.CreatedAt = time.Now()
	tenant.UpdatedAt = time.Now()

	query := `
		INSERT INTO tenants (id, name, plan_tier, contact_email, quota_bytes, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		tenant.ID, tenant.Name, tenant.PlanTier, tenant.ContactEmail,
		tenant.QuotaBytes, tenant.Settings, tenant.CreatedAt, tenant.UpdatedAt,
	)
	return err
}

// GetByID retrieves a tenant by ID.
func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	query := `
		SELECT id, name, plan_tier, contact_email, quota_bytes, settings, created_at, updated_at
		FROM tenants WHERE id = $1
	`
	tenant := &Tenant{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&tenant.ID, &tenant.Name, &tenant.PlanTier, &tenant.ContactEmail,
		&tenant.QuotaBytes, &tenant.Settings, &tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tenant, err
}

// StorageUsed sums the live document bytes for a tenant. Soft-deleted
// documents stop counting toward quota once their blobs are gone.
func (r *TenantRepository) StorageUsed(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	query := `
		SELECT COALESCE(SUM(size_bytes), 0)
		FROM documents WHERE tenant_id = $1 AND deleted_at IS NULL
	`
	var used int64
	err := r.db.QueryRowContext(ctx, query, tenantID).Scan(&used)
	return used, err
}

const documentColumns = `id, tenant_id, user_id, parent_id, filename, storage_key, mime_type,
		extension, size_bytes, sha256, page_count, search_text, thumbnail_key,
		metadata, deleted_at, created_at, updated_at`

// DocumentRepository handles document CRUD operations.
type DocumentRepository struct {
	db DB
}

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(db DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func scanDocument(row interface{ Scan(...interface{}) error }) (*Document, error) {
	doc := &Document{}
	err := row.Scan(
		&doc.ID, &doc.TenantID, &doc.UserID, &doc.ParentID, &doc.Filename,
		&doc.StorageKey, &doc.MimeType, &doc.Extension, &doc.SizeBytes, &doc.SHA256,
		&doc.PageCount, &doc.SearchText, &doc.ThumbnailKey, &doc.Metadata,
		&doc.DeletedAt, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

// Create creates a new document.
func (r *DocumentRepository) Create(ctx context.Context, doc *Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = time.Now()

	query := `
		INSERT INTO documents (id, tenant_id, user_id, parent_id, filename, storage_key, mime_type,
			extension, size_bytes, sha256, page_count, search_text, thumbnail_key,
			metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.TenantID, doc.UserID, doc.ParentID, doc.Filename,
		doc.StorageKey, doc.MimeType, doc.Extension, doc.SizeBytes, doc.SHA256,
		doc.PageCount, doc.SearchText, doc.ThumbnailKey, doc.Metadata,
		doc.CreatedAt, doc.UpdatedAt,
	)
	return err
}

// GetByID retrieves a live document by ID with tenant scoping.
func (r *DocumentRepository) GetByID(ctx context.Context, tenantID, documentID uuid.UUID) (*Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL
	`
	return scanDocument(r.db.QueryRowContext(ctx, query, documentID, tenantID))
}

// ListByTenant lists live documents for a tenant, newest first.
func (r *DocumentRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE tenant_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ListChildren lists live documents derived from the given parent.
func (r *DocumentRepository) ListChildren(ctx context.Context, tenantID, parentID uuid.UUID) ([]*Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE tenant_id = $1 AND parent_id = $2 AND deleted_at IS NULL
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpdateContent updates the stored blob reference after a rewrite. Parents of
// derived documents are never updated through this path.
func (r *DocumentRepository) UpdateContent(ctx context.Context, tenantID, documentID uuid.UUID, storageKey, sha256 string, sizeBytes int64, pageCount *int) error {
	query := `
		UPDATE documents SET storage_key = $1, sha256 = $2, size_bytes = $3, page_count = $4, updated_at = $5
		WHERE id = $6 AND tenant_id = $7 AND deleted_at IS NULL
	`
	return r.execExpectingRow(ctx, query, storageKey, sha256, sizeBytes, pageCount, time.Now(), documentID, tenantID)
}

// UpdateSearchText stores indexer output on a document.
func (r *DocumentRepository) UpdateSearchText(ctx context.Context, tenantID, documentID uuid.UUID, text string, metadata []byte) error {
	query := `
		UPDATE documents SET search_text = $1, metadata = $2, updated_at = $3
		WHERE id = $4 AND tenant_id = $5 AND deleted_at IS NULL
	`
	return r.execExpectingRow(ctx, query, text, metadata, time.Now(), documentID, tenantID)
}

// UpdateThumbnail stores a rendered thumbnail reference.
func (r *DocumentRepository) UpdateThumbnail(ctx context.Context, tenantID, documentID uuid.UUID, thumbnailKey string) error {
	query := `
		UPDATE documents SET thumbnail_key = $1, updated_at = $2
		WHERE id = $3 AND tenant_id = $4 AND deleted_at IS NULL
	`
	return r.execExpectingRow(ctx, query, thumbnailKey, time.Now(), documentID, tenantID)
}

// SoftDelete marks a document deleted and returns the IDs of live descendant
// documents so the caller can cascade blob deletion.
func (r *DocumentRepository) SoftDelete(ctx context.Context, tenantID, documentID uuid.UUID) ([]uuid.UUID, error) {
	now := time.Now()

	children, err := r.ListChildren(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE documents SET deleted_at = $1, updated_at = $1
		WHERE tenant_id = $2 AND deleted_at IS NULL AND (id = $3 OR parent_id = $3)
	`
	result, err := r.db.ExecContext(ctx, query, now, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrNotFound
	}

	ids := make([]uuid.UUID, 0, len(children))
	for _, child := range children {
		ids = append(ids, child.ID)
	}
	return ids, nil
}

func (r *DocumentRepository) execExpectingRow(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

const conversionColumns = `id, tenant_id, user_id, document_id, result_document_id, from_format,
		to_format, status, priority, progress, error_message, error_kind, options,
		retry_count, started_at, completed_at, created_at, updated_at`

// ConversionRepository handles conversion job persistence. The conditional
// UPDATEs below are the mutual-exclusion point of the job state machine: a
// transition only lands when the row is still in the expected prior status.
type ConversionRepository struct {
	db DB
}

// NewConversionRepository creates a new conversion repository.
func NewConversionRepository(db DB) *ConversionRepository {
	return &ConversionRepository{db: db}
}

func scanConversion(row interface{ Scan(...interface{}) error }) (*Conversion, error) {
	conv := &Conversion{}
	err := row.Scan(
		&conv.ID, &conv.TenantID, &conv.UserID, &conv.DocumentID, &conv.ResultDocumentID,
		&conv.FromFormat, &conv.ToFormat, &conv.Status, &conv.Priority, &conv.Progress,
		&conv.ErrorMessage, &conv.ErrorKind, &conv.Options, &conv.RetryCount,
		&conv.StartedAt, &conv.CompletedAt, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return conv, err
}

// Create creates a new pending conversion.
func (r *ConversionRepository) Create(ctx context.Context, conv *Conversion) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	if conv.Status == "" {
		conv.Status = ConversionStatusPending
	}
	if conv.Priority == "" {
		conv.Priority = PriorityDefault
	}
	conv.CreatedAt = time.Now()
	conv.UpdatedAt = time.Now()

	query := `
		INSERT INTO conversions (id, tenant_id, user_id, document_id, from_format, to_format,
			status, priority, progress, options, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		conv.ID, conv.TenantID, conv.UserID, conv.DocumentID, conv.FromFormat, conv.ToFormat,
		conv.Status, conv.Priority, conv.Progress, conv.Options, conv.RetryCount,
		conv.CreatedAt, conv.UpdatedAt,
	)
	return err
}

// GetByID retrieves a conversion with tenant scoping.
func (r *ConversionRepository) GetByID(ctx context.Context, tenantID, conversionID uuid.UUID) (*Conversion, error) {
	query := `
		SELECT ` + conversionColumns + `
		FROM conversions
		WHERE id = $1 AND tenant_id = $2
	`
	return scanConversion(r.db.QueryRowContext(ctx, query, conversionID, tenantID))
}

// Get retrieves a conversion without tenant scoping. Used by workers that
// receive the ID from the queue and re-establish the tenant from the row.
func (r *ConversionRepository) Get(ctx context.Context, conversionID uuid.UUID) (*Conversion, error) {
	query := `
		SELECT ` + conversionColumns + `
		FROM conversions
		WHERE id = $1
	`
	return scanConversion(r.db.QueryRowContext(ctx, query, conversionID))
}

// ListByDocument lists conversions for a source document, newest first.
func (r *ConversionRepository) ListByDocument(ctx context.Context, tenantID, documentID uuid.UUID) ([]*Conversion, error) {
	query := `
		SELECT ` + conversionColumns + `
		FROM conversions
		WHERE tenant_id = $1 AND document_id = $2
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []*Conversion
	for rows.Next() {
		conv, err := scanConversion(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// Claim atomically moves a pending conversion to processing. Returns
// ErrConflict when the row is no longer pending, which callers treat as
// another worker having won the claim or the job having been cancelled.
func (r *ConversionRepository) Claim(ctx context.Context, conversionID uuid.UUID) (*Conversion, error) {
	now := time.Now()
	query := `
		UPDATE conversions
		SET status = $1, started_at = $2, progress = 0, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query,
		ConversionStatusProcessing, now, conversionID, ConversionStatusPending,
	)
	if err != nil {
		return nil, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrConflict
	}
	return r.Get(ctx, conversionID)
}

// UpdateProgress records advisory progress. Progress never moves backward.
func (r *ConversionRepository) UpdateProgress(ctx context.Context, conversionID uuid.UUID, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	query := `
		UPDATE conversions SET progress = $1, updated_at = $2
		WHERE id = $3 AND status = $4 AND progress <= $1
	`
	_, err := r.db.ExecContext(ctx, query, progress, time.Now(), conversionID, ConversionStatusProcessing)
	return err
}

// Complete moves a processing conversion to completed with its result
// document. Fails with ErrConflict when cancellation superseded the worker.
func (r *ConversionRepository) Complete(ctx context.Context, conversionID, resultDocumentID uuid.UUID) error {
	now := time.Now()
	query := `
		UPDATE conversions
		SET status = $1, result_document_id = $2, progress = 100, completed_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	return r.transition(ctx, query,
		ConversionStatusCompleted, resultDocumentID, now, conversionID, ConversionStatusProcessing,
	)
}

// Fail moves a processing conversion to failed with an error message and
// kind. Fails with ErrConflict when cancellation superseded the worker.
func (r *ConversionRepository) Fail(ctx context.Context, conversionID uuid.UUID, message, kind string) error {
	now := time.Now()
	query := `
		UPDATE conversions
		SET status = $1, error_message = $2, error_kind = $3, completed_at = $4, updated_at = $4
		WHERE id = $5 AND status = $6
	`
	return r.transition(ctx, query,
		ConversionStatusFailed, message, kind, now, conversionID, ConversionStatusProcessing,
	)
}

// Cancel moves a pending or processing conversion to cancelled.
func (r *ConversionRepository) Cancel(ctx context.Context, tenantID, conversionID uuid.UUID) error {
	now := time.Now()
	query := `
		UPDATE conversions
		SET status = $1, completed_at = $2, updated_at = $2
		WHERE id = $3 AND tenant_id = $4 AND status IN ($5, $6)
	`
	return r.transition(ctx, query,
		ConversionStatusCancelled, now, conversionID, tenantID,
		ConversionStatusPending, ConversionStatusProcessing,
	)
}

// ResetForRetry moves a failed conversion back to pending, clearing error
// state and incrementing the retry count. The retry bound is enforced here
// so concurrent retry requests cannot exceed it.
func (r *ConversionRepository) ResetForRetry(ctx context.Context, tenantID, conversionID uuid.UUID, maxRetries int) error {
	query := `
		UPDATE conversions
		SET status = $1, progress = 0, error_message = NULL, error_kind = NULL,
			result_document_id = NULL, started_at = NULL, completed_at = NULL,
			retry_count = retry_count + 1, updated_at = $2
		WHERE id = $3 AND tenant_id = $4 AND status = $5 AND retry_count < $6
	`
	return r.transition(ctx, query,
		ConversionStatusPending, time.Now(), conversionID, tenantID,
		ConversionStatusFailed, maxRetries,
	)
}

func (r *ConversionRepository) transition(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrConflict
	}
	return nil
}

// Repositories bundles all repositories together.
type Repositories struct {
	Tenants     *TenantRepository
	Documents   *DocumentRepository
	Conversions *ConversionRepository
}

// NewRepositories creates all repositories with the given database connection.
func NewRepositories(db DB) *Repositories {
	return &Repositories{
		Tenants:     NewTenantRepository(db),
		Documents:   NewDocumentRepository(db),
		Conversions: NewConversionRepository(db),
	}
}
