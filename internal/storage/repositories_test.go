package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// A second connection would see its own empty in-memory database.
	db.SetMaxOpenConns(1)
	require.NoError(t, Migrate(context.Background(), db))
	t.Cleanup(func() { db.Close() })
	return db
}

func seedTenant(t *testing.T, repos *Repositories, quota int64) *Tenant {
	t.Helper()
	tenant := &Tenant{Name: "tenant-" + uuid.NewString(), PlanTier: PlanTierPro, QuotaBytes: quota}
	require.NoError(t, repos.Tenants.Create(context.Background(), tenant))
	return tenant
}

func seedDocument(t *testing.T, repos *Repositories, tenantID uuid.UUID) *Document {
	t.Helper()
	doc := &Document{
		TenantID:   tenantID,
		UserID:     uuid.New(),
		Filename:   "report.pdf",
		StorageKey: "documents/x/report.pdf",
		MimeType:   "application/pdf",
		Extension:  "pdf",
		SizeBytes:  2048,
		SHA256:     "deadbeef",
	}
	require.NoError(t, repos.Documents.Create(context.Background(), doc))
	return doc
}

func seedConversion(t *testing.T, repos *Repositories, tenantID, docID uuid.UUID) *Conversion {
	t.Helper()
	conv := &Conversion{
		TenantID:   tenantID,
		UserID:     uuid.New(),
		DocumentID: docID,
		FromFormat: "docx",
		ToFormat:   "pdf",
	}
	require.NoError(t, repos.Conversions.Create(context.Background(), conv))
	return conv
}

func TestTenantRepository_CreateAndGet(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()

	tenant := seedTenant(t, repos, 1<<30)

	got, err := repos.Tenants.GetByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.Name, got.Name)
	assert.Equal(t, PlanTierPro, got.PlanTier)
	assert.Equal(t, int64(1<<30), got.QuotaBytes)

	_, err = repos.Tenants.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTenantRepository_StorageUsed_IgnoresDeleted(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()

	tenant := seedTenant(t, repos, 0)
	doc := seedDocument(t, repos, tenant.ID)
	seedDocument(t, repos, tenant.ID)

	used, err := repos.Tenants.StorageUsed(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), used)

	_, err = repos.Documents.SoftDelete(ctx, tenant.ID, doc.ID)
	require.NoError(t, err)

	used, err = repos.Tenants.StorageUsed(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), used)
}

func TestDocumentRepository_TenantScoping(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()

	owner := seedTenant(t, repos, 0)
	other := seedTenant(t, repos, 0)
	doc := seedDocument(t, repos, owner.ID)

	got, err := repos.Documents.GetByID(ctx, owner.ID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)

	_, err = repos.Documents.GetByID(ctx, other.ID, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound, "cross-tenant reads must miss")
}

func TestDocumentRepository_SoftDelete_CascadesToChildren(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()

	tenant := seedTenant(t, repos, 0)
	parent := seedDocument(t, repos, tenant.ID)

	child := &Document{
		TenantID:   tenant.ID,
		UserID:     parent.UserID,
		ParentID:   &parent.ID,
		Filename:   "report.docx",
		StorageKey: "documents/x/report.docx",
		MimeType:   "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Extension:  "docx",
		SizeBytes:  1024,
		SHA256:     "cafebabe",
	}
	require.NoError(t, repos.Documents.Create(ctx, child))

	childIDs, err := repos.Documents.SoftDelete(ctx, tenant.ID, parent.ID)
	require.NoError(t, err)
	require.Len(t, childIDs, 1)
	assert.Equal(t, child.ID, childIDs[0])

	_, err = repos.Documents.GetByID(ctx, tenant.ID, parent.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repos.Documents.GetByID(ctx, tenant.ID, child.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repos.Documents.SoftDelete(ctx, tenant.ID, parent.ID)
	assert.ErrorIs(t, err, ErrNotFound, "double delete finds nothing live")
}

func TestDocumentRepository_UpdateSearchText(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()

	tenant := seedTenant(t, repos, 0)
	doc := seedDocument(t, repos, tenant.ID)

	require.NoError(t, repos.Documents.UpdateSearchText(ctx, tenant.ID, doc.ID, "hello world", []byte(`{"ocr_attempted":false}`)))

	got, err := repos.Documents.GetByID(ctx, tenant.ID, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SearchText)
	assert.Equal(t, "hello world", *got.SearchText)
}

func TestConversionRepository_Create_DefaultsToPending(t *testing.T) {
	repos := NewRepositories(newTestDB(t))

	tenant := seedTenant(t, repos, 0)
	doc := seedDocument(t, repos, tenant.ID)
	conv := seedConversion(t, repos, tenant.ID, doc.ID)

	got, err := repos.Conversions.GetByID(context.Background(), tenant.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, ConversionStatusPending, got.Status)
	assert.Equal(t, PriorityDefault, got.Priority)
	assert.Equal(t, 0, got.Progress)
	assert.Nil(t, got.ResultDocumentID)
	assert.Nil(t, got.ErrorMessage)
}

func TestConversionRepository_Claim_IsExclusive(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()

	tenant := seedTenant(t, repos, 0)
	doc := seedDocument(t, repos, tenant.ID)
	conv := seedConversion(t, repos, tenant.ID, doc.ID)

	claimed, err := repos.Conversions.Claim(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, ConversionStatusProcessing, claimed.Status)
	assert.NotNil(t, claimed.StartedAt)

	_, err = repos.Conversions.Claim(ctx, conv.ID)
	assert.ErrorIs(t, err, ErrConflict, "second claim must lose")
}

func TestConversionRepository_Complete_SetsResultExactlyOnCompleted(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()

	tenant := seedTenant(t, repos, 0)
	doc := seedDocument(t, repos, tenant.ID)
	result := seedDocument(t, repos, tenant.ID)
	conv := seedConversion(t, repos, tenant.ID, doc.ID)

	// Completing an unclaimed job is illegal.
	err := repos.Conversions.Complete(ctx, conv.ID, result.ID)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = repos.Conversions.Claim(ctx, conv.ID)
	require.NoError(t, err)
	require.NoError(t, repos.Conversions.Complete(ctx, conv.ID, result.ID))

	got, err := repos.Conversions.GetByID(ctx, tenant.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, ConversionStatusCompleted, got.Status)
	require.NotNil(t, got.ResultDocumentID)
	assert.Equal(t, result.ID, *got.ResultDocumentID)
	assert.Equal(t, 100, got.Progress)
	assert.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.ErrorMessage)
	assert.GreaterOrEqual(t, got.ProcessingTime(), time.Duration(0))
}

func TestConversionRepository_Fail_SetsErrorExactlyOnFailed(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()

	tenant := seedTenant(t, repos, 0)
	doc := seedDocument(t, repos, tenant.ID)
	conv := seedConversion(t, repos, tenant.ID, doc.ID)

	_, err := repos.Conversions.Claim(ctx, conv.ID)
	require.NoError(t, err)
	require.NoError(t, repos.Conversions.Fail(ctx, conv.ID, "soffice exited 1", "backend_crashed"))

	got, err := repos.Conversions.GetByID(ctx, tenant.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, ConversionStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "soffice exited 1", *got.ErrorMessage)
	require.NotNil(t, got.ErrorKind)
	assert.Equal(t, "backend_crashed", *got.ErrorKind)
	assert.Nil(t, got.ResultDocumentID)
}

func TestConversionRepository_Cancel_SupersedesWorkerCommit(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()

	tenant := seedTenant(t, repos, 0)
	doc := seedDocument(t, repos, tenant.ID)
	result := seedDocument(t, repos, tenant.ID)
	conv := seedConversion(t, repos, tenant.ID, doc.ID)

	_, err := repos.Conversions.Claim(ctx, conv.ID)
	require.NoError(t, err)

	// User cancels while the worker is mid-conversion.
	require.NoError(t, repos.Conversions.Cancel(ctx, tenant.ID, conv.ID))

	// The worker's commit arrives late and must lose.
	err = repos.Conversions.Complete(ctx, conv.ID, result.ID)
	assert.ErrorIs(t, err, ErrConflict)
	err = repos.Conversions.Fail(ctx, conv.ID, "late failure", "internal")
	assert.ErrorIs(t, err, ErrConflict)

	got, err := repos.Conversions.GetByID(ctx, tenant.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, ConversionStatusCancelled, got.Status)
	assert.Nil(t, got.ResultDocumentID)
}

func TestConversionRepository_Cancel_TerminalIsConflict(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()

	tenant := seedTenant(t, repos, 0)
	doc := seedDocument(t, repos, tenant.ID)
	result := seedDocument(t, repos, tenant.ID)
	conv := seedConversion(t, repos, tenant.ID, doc.ID)

	_, err := repos.Conversions.Claim(ctx, conv.ID)
	require.NoError(t, err)
	require.NoError(t, repos.Conversions.Complete(ctx, conv.ID, result.ID))

	err = repos.Conversions.Cancel(ctx, tenant.ID, conv.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestConversionRepository_ResetForRetry_BoundedAndClearsState(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()
	maxRetries := 3

	tenant := seedTenant(t, repos, 0)
	doc := seedDocument(t, repos, tenant.ID)
	conv := seedConversion(t, repos, tenant.ID, doc.ID)

	// A pending job cannot be retried.
	err := repos.Conversions.ResetForRetry(ctx, tenant.ID, conv.ID, maxRetries)
	assert.ErrorIs(t, err, ErrConflict)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		_, err = repos.Conversions.Claim(ctx, conv.ID)
		require.NoError(t, err)
		require.NoError(t, repos.Conversions.Fail(ctx, conv.ID, "boom", "internal"))

		require.NoError(t, repos.Conversions.ResetForRetry(ctx, tenant.ID, conv.ID, maxRetries))

		got, err := repos.Conversions.GetByID(ctx, tenant.ID, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, ConversionStatusPending, got.Status)
		assert.Equal(t, attempt, got.RetryCount)
		assert.Nil(t, got.ErrorMessage, "retry clears error state")
		assert.Nil(t, got.StartedAt)
		assert.Equal(t, 0, got.Progress)
	}

	// Fourth failure exhausts the bound.
	_, err = repos.Conversions.Claim(ctx, conv.ID)
	require.NoError(t, err)
	require.NoError(t, repos.Conversions.Fail(ctx, conv.ID, "boom", "internal"))
	err = repos.Conversions.ResetForRetry(ctx, tenant.ID, conv.ID, maxRetries)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestConversionRepository_UpdateProgress_Monotonic(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()

	tenant := seedTenant(t, repos, 0)
	doc := seedDocument(t, repos, tenant.ID)
	conv := seedConversion(t, repos, tenant.ID, doc.ID)

	_, err := repos.Conversions.Claim(ctx, conv.ID)
	require.NoError(t, err)

	require.NoError(t, repos.Conversions.UpdateProgress(ctx, conv.ID, 60))
	// A stale lower write is silently dropped.
	require.NoError(t, repos.Conversions.UpdateProgress(ctx, conv.ID, 30))

	got, err := repos.Conversions.GetByID(ctx, tenant.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, got.Progress)

	// Clamped above 100.
	require.NoError(t, repos.Conversions.UpdateProgress(ctx, conv.ID, 250))
	got, err = repos.Conversions.GetByID(ctx, tenant.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)
}
