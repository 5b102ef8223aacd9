package alttext

import (
	"context"

	"alt-text-server/internal/infrastructure/metrics"
	"alt-text-server/internal/utils/apperrors"
)

// ProcessPending sweeps records whose alt text is still outstanding and
// runs one attempt per record with the batch time budget. Per-record
// failures are isolated; the sweep itself only fails on selection errors.
// Returns the succeeded and failed counts.
func (s *Service) ProcessPending(ctx context.Context, batchSize int, dryRun bool) (int, int, error) {
	if !s.cfg.VisionCredentialsAvailable() {
		return 0, 0, apperrors.New(apperrors.KindConfiguration, "OPENROUTER_API_KEY and OPENROUTER_MODEL_ORDER must be set")
	}

	docs, err := s.images.ListRetryable(ctx, batchSize)
	if err != nil {
		return 0, 0, err
	}
	s.log.Info().Int("count", len(docs)).Int("batch_size", batchSize).Msg("records needing alt text")

	if dryRun {
		for _, doc := range docs {
			s.log.Info().
				Str("document_id", doc.ID).
				Str("filename", doc.OriginalFilename).
				Str("status", doc.ProcessingStatus.String()).
				Msg("dry run: would generate alt text")
		}
		return 0, 0, nil
	}

	succeeded, failed := 0, 0
	for _, doc := range docs {
		if err := s.attempt(ctx, doc, s.cfg.OpenRouterBatchTimeout); err != nil {
			failed++
			metrics.BatchRecordsTotal.WithLabelValues("failed").Inc()
			s.log.Warn().Err(err).Str("document_id", doc.ID).Msg("batch attempt failed")
			continue
		}
		succeeded++
		metrics.BatchRecordsTotal.WithLabelValues("succeeded").Inc()
	}

	s.log.Info().Int("succeeded", succeeded).Int("failed", failed).Msg("batch sweep finished")
	return succeeded, failed, nil
}
