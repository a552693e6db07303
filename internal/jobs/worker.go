package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/docuforge/conversion-engine/internal/blob"
	"github.com/docuforge/conversion-engine/internal/config"
	"github.com/docuforge/conversion-engine/internal/convert"
	"github.com/docuforge/conversion-engine/internal/domain"
	"github.com/docuforge/conversion-engine/internal/indexer"
	"github.com/docuforge/conversion-engine/internal/observability"
	"github.com/docuforge/conversion-engine/internal/queue"
	"github.com/docuforge/conversion-engine/internal/storage"
)

// errSuperseded marks a job whose row left processing while the worker ran,
// which only cancellation can cause. The worker discards its result.
var errSuperseded = errors.New("conversion superseded")

// Pool claims queued conversions and executes them. Delivery is at least
// once, so every path through process tolerates seeing a job twice: terminal
// rows are dropped, and the atomic claim makes double execution impossible.
type Pool struct {
	cfg     config.WorkerConfig
	repos   *storage.Repositories
	blobs   blob.Store
	queue   queue.Queue
	engine  *convert.Engine
	indexer *indexer.Indexer
	logger  *observability.Logger
}

// NewPool wires a worker pool.
func NewPool(cfg config.WorkerConfig, repos *storage.Repositories, blobs blob.Store, q queue.Queue, engine *convert.Engine, ix *indexer.Indexer, logger *observability.Logger) *Pool {
	if logger == nil {
		logger = observability.DefaultLogger()
	}
	return &Pool{
		cfg:     cfg,
		repos:   repos,
		blobs:   blobs,
		queue:   q,
		engine:  engine,
		indexer: ix,
		logger:  logger.WithComponent("worker"),
	}
}

// Run consumes jobs until ctx is cancelled, then waits for in-flight jobs.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.loop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) loop(ctx context.Context, id int) {
	logger := p.logger.With().Int("worker", id).Logger()
	logger.Info().Msg("worker started")
	for {
		job, err := p.queue.Dequeue(ctx, p.cfg.PollInterval)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				continue
			}
			if ctx.Err() != nil {
				logger.Info().Msg("worker stopping")
				return
			}
			logger.Error().Err(err).Msg("dequeue failed")
			continue
		}
		p.process(ctx, job)
	}
}

// process drives one job through the state machine.
func (p *Pool) process(ctx context.Context, job *queue.Job) {
	logger := p.logger.WithConversion(job.ConversionID)

	conv, err := p.repos.Conversions.Get(ctx, job.ConversionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.Warn().Msg("queued conversion no longer exists, dropping")
			return
		}
		logger.Error().Err(err).Msg("load conversion failed")
		return
	}
	if !CanTransition(conv.Status, EventClaim) {
		// Re-delivered job, or cancelled before it started.
		logger.Debug().Str("status", string(conv.Status)).Msg("conversion not claimable, dropping")
		return
	}

	conv, err = p.repos.Conversions.Claim(ctx, conv.ID)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			logger.Debug().Msg("conversion claimed elsewhere, dropping")
			return
		}
		logger.Error().Err(err).Msg("claim failed")
		return
	}

	jobCtx := ctx
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}

	logger = logger.WithTenant(conv.TenantID)
	logger.Info().
		Str("from", conv.FromFormat).
		Str("to", conv.ToFormat).
		Int("retry_count", conv.RetryCount).
		Msg("conversion started")

	err = p.execute(jobCtx, conv)
	switch {
	case err == nil:
		logger.Info().Msg("conversion completed")
	case errors.Is(err, errSuperseded):
		logger.Info().Msg("conversion cancelled mid-flight, result discarded")
	default:
		p.fail(ctx, conv, err, logger)
	}
}

// fail records the failure and re-enqueues retryable kinds within the retry
// bound.
func (p *Pool) fail(ctx context.Context, conv *storage.Conversion, jobErr error, logger *observability.Logger) {
	kind := domain.KindOf(jobErr)
	if errors.Is(jobErr, context.DeadlineExceeded) {
		kind = domain.ErrorKindBackendTimeout
		jobErr = domain.BackendTimeout("conversion exceeded job timeout", jobErr)
	}

	logger.Error().Err(jobErr).Str("kind", string(kind)).Msg("conversion failed")
	if err := p.repos.Conversions.Fail(ctx, conv.ID, jobErr.Error(), string(kind)); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Cancelled while we were failing it. Cancellation wins.
			logger.Info().Msg("conversion already left processing, failure not recorded")
			return
		}
		logger.Error().Err(err).Msg("record failure failed")
		return
	}

	if !domain.IsRetryable(jobErr) || conv.RetryCount >= p.cfg.MaxRetries {
		return
	}
	if err := p.repos.Conversions.ResetForRetry(ctx, conv.TenantID, conv.ID, p.cfg.MaxRetries); err != nil {
		logger.Warn().Err(err).Msg("automatic retry reset failed")
		return
	}
	if err := p.queue.Enqueue(ctx, queue.Job{ConversionID: conv.ID, Priority: conv.Priority}); err != nil {
		logger.Error().Err(err).Msg("automatic retry enqueue failed")
		return
	}
	logger.Info().Int("attempt", conv.RetryCount+1).Msg("retryable failure re-queued")
}

// execute runs the conversion and commits the result. Progress only moves
// forward; the conditional update in the repository drops stale writes.
func (p *Pool) execute(ctx context.Context, conv *storage.Conversion) error {
	doc, err := p.repos.Documents.GetByID(ctx, conv.TenantID, conv.DocumentID)
	if err != nil {
		return err
	}
	data, err := p.blobs.Read(ctx, doc.StorageKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return domain.UnreadableDocument("source blob missing", err)
		}
		return err
	}
	p.progress(ctx, conv.ID, 10)

	work, err := os.MkdirTemp("", "job-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(work)

	from := convert.Format(conv.FromFormat)
	to := convert.Format(conv.ToFormat)
	inputPath := filepath.Join(work, "input."+string(from))
	if err := os.WriteFile(inputPath, data, 0o600); err != nil {
		return err
	}

	var opts convert.Options
	if len(conv.Options) > 0 {
		if err := json.Unmarshal(conv.Options, &opts); err != nil {
			return domain.InvalidInput(fmt.Sprintf("malformed conversion options: %v", err))
		}
	}
	p.progress(ctx, conv.ID, 25)

	outPath, err := p.engine.Convert(ctx, inputPath, work, from, to, opts)
	if err != nil {
		return err
	}
	p.progress(ctx, conv.ID, 70)

	result, err := os.ReadFile(outPath)
	if err != nil {
		return err
	}
	if err := p.checkQuota(ctx, conv.TenantID, int64(len(result))); err != nil {
		return err
	}

	key := blob.NewKey(conv.TenantID, string(to))
	if err := p.blobs.Write(ctx, key, result); err != nil {
		return err
	}
	p.progress(ctx, conv.ID, 85)

	resultDoc, err := p.createResultDocument(ctx, conv, doc, key, result, to, outPath)
	if err != nil {
		p.discardBlob(ctx, key)
		return err
	}

	if err := p.repos.Conversions.Complete(ctx, conv.ID, resultDoc.ID); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Cancelled while converting. Unwind the result.
			p.discardBlob(ctx, key)
			if _, derr := p.repos.Documents.SoftDelete(ctx, conv.TenantID, resultDoc.ID); derr != nil {
				p.logger.Warn().Err(derr).Msg("discard superseded result document failed")
			}
			return errSuperseded
		}
		return err
	}
	return nil
}

// createResultDocument stores the derived artifact row and indexes PDF output
// for search. Index failures never fail the conversion.
func (p *Pool) createResultDocument(ctx context.Context, conv *storage.Conversion, parent *storage.Document, key string, result []byte, to convert.Format, outPath string) (*storage.Document, error) {
	var pageCount *int
	if to == convert.FormatPDF {
		if n, err := convert.PageCount(outPath); err == nil {
			pageCount = &n
		}
	}

	resultDoc := &storage.Document{
		TenantID:   conv.TenantID,
		UserID:     conv.UserID,
		ParentID:   &parent.ID,
		Filename:   replaceExt(parent.Filename, string(to)),
		StorageKey: key,
		MimeType:   convert.MimeType(to),
		Extension:  string(to),
		SizeBytes:  int64(len(result)),
		SHA256:     blob.HashBytes(result),
		PageCount:  pageCount,
	}
	if err := p.repos.Documents.Create(ctx, resultDoc); err != nil {
		return nil, err
	}

	if to == convert.FormatPDF && p.indexer != nil {
		p.indexResult(ctx, resultDoc, outPath)
	}
	return resultDoc, nil
}

func (p *Pool) indexResult(ctx context.Context, doc *storage.Document, pdfPath string) {
	logger := p.logger.WithDocument(doc.ID)
	outcome, err := p.indexer.Index(ctx, pdfPath)
	if err != nil {
		logger.Warn().Err(err).Msg("indexing failed")
		return
	}
	meta, err := json.Marshal(map[string]interface{}{
		"ocr_attempted": outcome.OCRAttempted,
		"ocr_failed":    outcome.OCRFailed,
		"truncated":     outcome.Truncated,
	})
	if err != nil {
		return
	}
	if err := p.repos.Documents.UpdateSearchText(ctx, doc.TenantID, doc.ID, outcome.Text, meta); err != nil {
		logger.Warn().Err(err).Msg("store search text failed")
	}
}

// checkQuota rejects writes that would push the tenant past its storage
// quota. A zero quota means unlimited.
func (p *Pool) checkQuota(ctx context.Context, tenantID uuid.UUID, addition int64) error {
	tenant, err := p.repos.Tenants.GetByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if tenant.QuotaBytes <= 0 {
		return nil
	}
	used, err := p.repos.Tenants.StorageUsed(ctx, tenantID)
	if err != nil {
		return err
	}
	if used+addition > tenant.QuotaBytes {
		return domain.StorageQuotaExceeded(fmt.Sprintf(
			"storing %d bytes would exceed quota (%d of %d used)", addition, used, tenant.QuotaBytes))
	}
	return nil
}

func (p *Pool) progress(ctx context.Context, conversionID uuid.UUID, pct int) {
	if err := p.repos.Conversions.UpdateProgress(ctx, conversionID, pct); err != nil {
		p.logger.Debug().Err(err).Int("progress", pct).Msg("progress update skipped")
	}
}

func (p *Pool) discardBlob(ctx context.Context, key string) {
	if err := p.blobs.Delete(ctx, key); err != nil {
		p.logger.Warn().Err(err).Str("key", key).Msg("discard result blob failed")
	}
}

func replaceExt(filename, ext string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	return base + "." + ext
}
