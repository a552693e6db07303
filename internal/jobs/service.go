package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docuforge/conversion-engine/internal/cache"
	"github.com/docuforge/conversion-engine/internal/config"
	"github.com/docuforge/conversion-engine/internal/convert"
	"github.com/docuforge/conversion-engine/internal/domain"
	"github.com/docuforge/conversion-engine/internal/observability"
	"github.com/docuforge/conversion-engine/internal/queue"
	"github.com/docuforge/conversion-engine/internal/storage"
)

// statusTTL bounds how stale a cached status read may be. Terminal statuses
// cache longer since they no longer change.
const (
	statusTTL         = 2 * time.Second
	statusTerminalTTL = 5 * time.Minute
)

// Service is the submission-side API over the conversion pipeline. Workers
// consume what it enqueues.
type Service struct {
	repos  *storage.Repositories
	queue  queue.Queue
	cache  cache.Client
	cfg    config.WorkerConfig
	logger *observability.Logger
}

// NewService wires a Service.
func NewService(repos *storage.Repositories, q queue.Queue, c cache.Client, cfg config.WorkerConfig, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.DefaultLogger()
	}
	return &Service{repos: repos, queue: q, cache: c, cfg: cfg, logger: logger.WithComponent("jobs")}
}

// Request validates and enqueues a new conversion for a document.
func (s *Service) Request(ctx context.Context, tenantID, userID, documentID uuid.UUID, toFormat string, priority storage.Priority, options json.RawMessage) (*storage.Conversion, error) {
	doc, err := s.repos.Documents.GetByID(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}

	from := convert.Normalize(doc.Extension)
	to := convert.Normalize(toFormat)
	if !convert.Known(to) {
		return nil, domain.InvalidInput(fmt.Sprintf("unknown target format %q", toFormat))
	}
	if !convert.Known(from) {
		return nil, domain.UnsupportedFormatPair(string(from), string(to))
	}
	if from == to {
		return nil, domain.InvalidInput("document is already in the requested format")
	}

	conv := &storage.Conversion{
		TenantID:   tenantID,
		UserID:     userID,
		DocumentID: doc.ID,
		FromFormat: string(from),
		ToFormat:   string(to),
		Priority:   priority,
		Options:    options,
	}
	if err := s.repos.Conversions.Create(ctx, conv); err != nil {
		return nil, err
	}

	if err := s.queue.Enqueue(ctx, queue.Job{ConversionID: conv.ID, Priority: conv.Priority}); err != nil {
		// The row stays pending; a requeue sweep or manual retry can pick it
		// up, so the submission itself is not rolled back.
		s.logger.Error().Err(err).Str("conversion_id", conv.ID.String()).Msg("enqueue failed after create")
		return nil, domain.NewError(domain.ErrorKindInternal, "enqueue conversion", err)
	}

	s.logger.Info().
		Str("conversion_id", conv.ID.String()).
		Str("tenant_id", tenantID.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("priority", string(conv.Priority)).
		Msg("conversion queued")
	return conv, nil
}

// Status returns the conversion, served from cache when fresh.
func (s *Service) Status(ctx context.Context, tenantID, conversionID uuid.UUID) (*storage.Conversion, error) {
	key := cache.ConversionStatusKey(tenantID.String(), conversionID.String())
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil {
			var conv storage.Conversion
			if err := json.Unmarshal(data, &conv); err == nil {
				return &conv, nil
			}
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn().Err(err).Msg("status cache read failed")
		}
	}

	conv, err := s.repos.Conversions.GetByID(ctx, tenantID, conversionID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		ttl := statusTTL
		if conv.Status.Terminal() {
			ttl = statusTerminalTTL
		}
		if data, err := json.Marshal(conv); err == nil {
			if err := s.cache.Set(ctx, key, data, ttl); err != nil {
				s.logger.Warn().Err(err).Msg("status cache write failed")
			}
		}
	}
	return conv, nil
}

// Cancel requests cancellation. Pending jobs never start; processing jobs are
// superseded, and the worker's eventual commit loses the conditional update.
func (s *Service) Cancel(ctx context.Context, tenantID, conversionID uuid.UUID) error {
	if err := s.repos.Conversions.Cancel(ctx, tenantID, conversionID); err != nil {
		return err
	}
	s.invalidateStatus(ctx, tenantID, conversionID)
	s.logger.Info().Str("conversion_id", conversionID.String()).Msg("conversion cancelled")
	return nil
}

// Retry resets a failed conversion to pending and re-enqueues it.
func (s *Service) Retry(ctx context.Context, tenantID, conversionID uuid.UUID) (*storage.Conversion, error) {
	if err := s.repos.Conversions.ResetForRetry(ctx, tenantID, conversionID, s.cfg.MaxRetries); err != nil {
		return nil, err
	}
	conv, err := s.repos.Conversions.GetByID(ctx, tenantID, conversionID)
	if err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(ctx, queue.Job{ConversionID: conv.ID, Priority: conv.Priority}); err != nil {
		return nil, domain.NewError(domain.ErrorKindInternal, "enqueue retry", err)
	}
	s.invalidateStatus(ctx, tenantID, conversionID)
	s.logger.Info().
		Str("conversion_id", conversionID.String()).
		Int("retry_count", conv.RetryCount).
		Msg("conversion re-queued")
	return conv, nil
}

func (s *Service) invalidateStatus(ctx context.Context, tenantID, conversionID uuid.UUID) {
	if s.cache == nil {
		return
	}
	key := cache.ConversionStatusKey(tenantID.String(), conversionID.String())
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Msg("status cache invalidation failed")
	}
}
