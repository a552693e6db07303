// Package storage provides database models and repositories for the conversion engine.
package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PlanTier represents tenant subscription tiers.
type PlanTier string

const (
	PlanTierFree       PlanTier = "free"
	PlanTierPro        PlanTier = "pro"
	PlanTierEnterprise PlanTier = "enterprise"
)

// ConversionStatus represents the lifecycle state of a conversion job.
type ConversionStatus string

const (
	ConversionStatusPending    ConversionStatus = "pending"
	ConversionStatusProcessing ConversionStatus = "processing"
	ConversionStatusCompleted  ConversionStatus = "completed"
	ConversionStatusFailed     ConversionStatus = "failed"
	ConversionStatusCancelled  ConversionStatus = "cancelled"
)

// Terminal reports whether the status admits no further worker transitions.
func (s ConversionStatus) Terminal() bool {
	switch s {
	case ConversionStatusCompleted, ConversionStatusFailed, ConversionStatusCancelled:
		return true
	}
	return false
}

// Priority represents a queue lane.
type Priority string

const (
	PriorityHigh    Priority = "high"
	PriorityDefault Priority = "default"
	PriorityLow     Priority = "low"
)

// Tenant represents a customer account.
type Tenant struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	PlanTier     PlanTier        `json:"plan_tier" db:"plan_tier"`
	ContactEmail *string         `json:"contact_email,omitempty" db:"contact_email"`
	QuotaBytes   int64           `json:"quota_bytes" db:"quota_bytes"`
	Settings     json.RawMessage `json:"settings" db:"settings"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Document represents one stored file version. A Document with a non-nil
// ParentID is an immutable derived artifact of that parent; edits and
// conversions always produce a new Document rather than mutating bytes in
// place.
type Document struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	TenantID     uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	UserID       uuid.UUID       `json:"user_id" db:"user_id"`
	ParentID     *uuid.UUID      `json:"parent_id,omitempty" db:"parent_id"`
	Filename     string          `json:"filename" db:"filename"`
	StorageKey   string          `json:"storage_key" db:"storage_key"`
	MimeType     string          `json:"mime_type" db:"mime_type"`
	Extension    string          `json:"extension" db:"extension"`
	SizeBytes    int64           `json:"size_bytes" db:"size_bytes"`
	SHA256       string          `json:"sha256" db:"sha256"`
	PageCount    *int            `json:"page_count,omitempty" db:"page_count"`
	SearchText   *string         `json:"search_text,omitempty" db:"search_text"`
	ThumbnailKey *string         `json:"thumbnail_key,omitempty" db:"thumbnail_key"`
	Metadata     json.RawMessage `json:"metadata" db:"metadata"`
	DeletedAt    *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Deleted reports whether the document has been soft deleted.
func (d *Document) Deleted() bool {
	return d.DeletedAt != nil
}

// Conversion represents one requested transformation of a Document.
//
// Invariants enforced by the repository and the jobs package:
// ResultDocumentID is set iff Status is completed; ErrorMessage is set iff
// Status is failed; a row is claimed by at most one worker at a time.
type Conversion struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	TenantID         uuid.UUID        `json:"tenant_id" db:"tenant_id"`
	UserID           uuid.UUID        `json:"user_id" db:"user_id"`
	DocumentID       uuid.UUID        `json:"document_id" db:"document_id"`
	ResultDocumentID *uuid.UUID       `json:"result_document_id,omitempty" db:"result_document_id"`
	FromFormat       string           `json:"from_format" db:"from_format"`
	ToFormat         string           `json:"to_format" db:"to_format"`
	Status           ConversionStatus `json:"status" db:"status"`
	Priority         Priority         `json:"priority" db:"priority"`
	Progress         int              `json:"progress" db:"progress"`
	ErrorMessage     *string          `json:"error_message,omitempty" db:"error_message"`
	ErrorKind        *string          `json:"error_kind,omitempty" db:"error_kind"`
	Options          json.RawMessage  `json:"options" db:"options"`
	RetryCount       int              `json:"retry_count" db:"retry_count"`
	StartedAt        *time.Time       `json:"started_at,omitempty" db:"started_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

// ProcessingTime returns completed_at minus started_at, or zero when either
// timestamp is missing.
func (c *Conversion) ProcessingTime() time.Duration {
	if c.StartedAt == nil || c.CompletedAt == nil {
		return 0
	}
	return c.CompletedAt.Sub(*c.StartedAt)
}

// CanRetry reports whether a failed conversion may be reset to pending.
func (c *Conversion) CanRetry(maxRetries int) bool {
	return c.Status == ConversionStatusFailed && c.RetryCount < maxRetries
}
