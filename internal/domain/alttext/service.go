package alttext

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"alt-text-server/internal/config"
	"alt-text-server/internal/domain/status"
	"alt-text-server/internal/domain/thumbnail"
	"alt-text-server/internal/domain/vision"
	"alt-text-server/internal/infrastructure/metrics"
	"alt-text-server/internal/utils/apperrors"
)

const timeoutDeferralMessage = "sync attempt timed out; will retry in background"

// Service coordinates upload identity, file storage, thumbnailing and the
// alt-text generation lifecycle.
type Service struct {
	cfg     *config.Config
	images  ImageRepository
	results ResultRepository
	files   FileStore
	vision  vision.Provider
	log     zerolog.Logger
}

func NewService(cfg *config.Config, images ImageRepository, results ResultRepository, files FileStore, provider vision.Provider, log zerolog.Logger) *Service {
	return &Service{
		cfg:     cfg,
		images:  images,
		results: results,
		files:   files,
		vision:  provider,
		log:     log.With().Str("component", "alttext-service").Logger(),
	}
}

// Upload ingests an image. Identity is the content checksum: a re-upload of
// known bytes returns the existing record, and only a previously failed
// record is reset and retried. The returned bool reports deduplication.
func (s *Service) Upload(ctx context.Context, input UploadInput) (*ImageDocument, bool, error) {
	if len(input.Data) == 0 {
		return nil, false, ErrEmptyUpload
	}

	checksum, err := Checksum(bytes.NewReader(input.Data))
	if err != nil {
		return nil, false, err
	}

	existing, err := s.images.FindByChecksum(ctx, checksum)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return s.resolveExisting(ctx, existing, input.Data)
	}

	mimeType := strings.TrimSpace(input.MimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mimetype.Detect(input.Data).String()
	}

	doc := &ImageDocument{
		ID:               uuid.NewString(),
		OriginalFilename: input.Filename,
		FileChecksum:     checksum,
		FileSize:         int64(len(input.Data)),
		MimeType:         mimeType,
		FileExtension:    strings.ToLower(strings.TrimPrefix(filepath.Ext(input.Filename), ".")),
		Submitter:        input.Submitter,
		ProcessingStatus: status.StatusPending,
	}
	if err := s.images.Create(ctx, doc); err != nil {
		// A concurrent identical upload may have won the unique-checksum
		// race between the find and the insert. Re-read and resolve the
		// winner the same way a found record is resolved.
		winner, ferr := s.images.FindByChecksum(ctx, checksum)
		if ferr == nil && winner != nil {
			return s.resolveExisting(ctx, winner, input.Data)
		}
		return nil, false, err
	}

	s.process(ctx, doc, input.Data)
	return s.refresh(ctx, doc), false, nil
}

// resolveExisting applies the re-upload rules to a record that already owns
// this content: completed, pending and processing records are surfaced
// untouched; a failed record is reset and gets a fresh attempt, its
// previous result row left alone until the next attempt overwrites it.
func (s *Service) resolveExisting(ctx context.Context, existing *ImageDocument, data []byte) (*ImageDocument, bool, error) {
	if existing.ProcessingStatus != status.StatusFailed {
		s.log.Info().
			Str("document_id", existing.ID).
			Str("status", existing.ProcessingStatus.String()).
			Msg("duplicate upload, returning existing record")
		return existing, true, nil
	}
	if err := s.images.MarkPending(ctx, existing.ID); err != nil {
		return nil, false, err
	}
	s.log.Info().Str("document_id", existing.ID).Msg("re-upload of failed record, retrying")
	s.process(ctx, existing, data)
	return s.refresh(ctx, existing), true, nil
}

// process runs the post-identity pipeline: persist the file, generate the
// thumbnail, then make one synchronous alt-text attempt.
func (s *Service) process(ctx context.Context, doc *ImageDocument, data []byte) {
	key := StorageKey(doc.FileChecksum, doc.FileExtension)
	if _, err := s.files.Save(ctx, key, data); err != nil {
		s.log.Error().Err(err).Str("document_id", doc.ID).Msg("failed to persist uploaded file")
		if uerr := s.images.MarkFailed(ctx, doc.ID, "failed to store file: "+err.Error()); uerr != nil {
			s.log.Error().Err(uerr).Str("document_id", doc.ID).Msg("failed to record storage failure")
		}
		return
	}

	s.generateThumbnail(ctx, doc, data)
	s.SyncAttempt(ctx, doc)
}

// generateThumbnail is best effort. A failure is recorded on the document
// and never interrupts the alt-text pipeline.
func (s *Service) generateThumbnail(ctx context.Context, doc *ImageDocument, data []byte) {
	thumb, err := thumbnail.Generate(data)
	if err != nil {
		metrics.ThumbnailsTotal.WithLabelValues("failed").Inc()
		s.log.Warn().Err(err).Str("document_id", doc.ID).Msg("thumbnail generation failed")
		if uerr := s.images.SaveThumbnailError(ctx, doc.ID, err.Error()); uerr != nil {
			s.log.Error().Err(uerr).Str("document_id", doc.ID).Msg("failed to record thumbnail error")
		}
		return
	}
	metrics.ThumbnailsTotal.WithLabelValues("succeeded").Inc()
	if err := s.images.SaveThumbnail(ctx, doc.ID, thumb); err != nil {
		s.log.Error().Err(err).Str("document_id", doc.ID).Msg("failed to store thumbnail")
	}
}

// SyncAttempt makes one bounded alt-text attempt during the upload request.
// Without credentials no attempt is made at all and the record rests at
// pending for the batch worker.
func (s *Service) SyncAttempt(ctx context.Context, doc *ImageDocument) {
	if !s.cfg.VisionCredentialsAvailable() {
		s.log.Warn().Str("document_id", doc.ID).Msg("vision credentials not configured, leaving record pending")
		return
	}
	if err := s.attempt(ctx, doc, s.cfg.OpenRouterSyncTimeout); err != nil {
		s.log.Warn().Err(err).Str("document_id", doc.ID).Msg("sync alt-text attempt did not complete")
	}
}

// attempt runs one full generation attempt against the configured model
// order. All resulting state transitions are persisted before returning.
func (s *Service) attempt(ctx context.Context, doc *ImageDocument, timeout time.Duration) error {
	if err := s.images.MarkProcessing(ctx, doc.ID); err != nil {
		return err
	}

	result, created, err := s.results.GetOrCreate(ctx, doc.ID)
	if err != nil {
		return err
	}
	if !created {
		if err := s.results.MarkProcessing(ctx, result.ID); err != nil {
			return err
		}
	}

	prompt := Prompt()
	if err := s.results.SetPrompt(ctx, result.ID, prompt); err != nil {
		return err
	}

	data, err := s.readStoredFile(ctx, doc)
	if err != nil {
		s.failAttempt(ctx, doc.ID, result.ID, err.Error())
		return err
	}

	resp, err := s.vision.CallWithFallback(ctx, prompt, s.cfg.OpenRouterAPIKey, s.cfg.ModelOrder(), timeout, vision.DataURL(doc.MimeType, data))
	if err != nil {
		if apperrors.IsTimeout(err) {
			s.deferAttempt(ctx, doc.ID, result.ID)
			return err
		}
		s.failAttempt(ctx, doc.ID, result.ID, err.Error())
		return err
	}

	parsed := vision.Parse(resp)
	if err := s.results.PersistSuccess(ctx, result.ID, resp.Raw, parsed); err != nil {
		return err
	}
	if err := s.images.MarkCompleted(ctx, doc.ID); err != nil {
		return err
	}
	s.log.Info().
		Str("document_id", doc.ID).
		Str("model", parsed.Model).
		Str("response_id", parsed.ResponseID).
		Msg("alt text generated")
	return nil
}

func (s *Service) readStoredFile(ctx context.Context, doc *ImageDocument) ([]byte, error) {
	key := StorageKey(doc.FileChecksum, doc.FileExtension)
	exists, err := s.files.Exists(ctx, key)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstream, "check stored file", err)
	}
	if !exists {
		return nil, apperrors.Newf(apperrors.KindNotFound, "stored file missing: %s", key)
	}
	data, err := s.files.Read(ctx, key)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstream, "read stored file", err)
	}
	return data, nil
}

// failAttempt moves both records to the terminal failed state.
func (s *Service) failAttempt(ctx context.Context, docID, resultID, message string) {
	if err := s.results.PersistFailure(ctx, resultID, message, status.StatusFailed); err != nil {
		s.log.Error().Err(err).Str("result_id", resultID).Msg("failed to persist attempt failure")
	}
	if err := s.images.MarkFailed(ctx, docID, message); err != nil {
		s.log.Error().Err(err).Str("document_id", docID).Msg("failed to mark document failed")
	}
}

// deferAttempt returns both records to pending after a timeout so the batch
// worker retries with a larger budget. The in-flight upstream call may still
// complete and be discarded; only persisted state counts.
func (s *Service) deferAttempt(ctx context.Context, docID, resultID string) {
	if err := s.results.PersistFailure(ctx, resultID, timeoutDeferralMessage, status.StatusPending); err != nil {
		s.log.Error().Err(err).Str("result_id", resultID).Msg("failed to persist timeout deferral")
	}
	if err := s.images.MarkPending(ctx, docID); err != nil {
		s.log.Error().Err(err).Str("document_id", docID).Msg("failed to return document to pending")
	}
}

// refresh re-reads the document so callers see the state the attempt left
// behind. On read failure the in-memory copy is returned as is.
func (s *Service) refresh(ctx context.Context, doc *ImageDocument) *ImageDocument {
	fresh, err := s.images.GetByID(ctx, doc.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("document_id", doc.ID).Msg("failed to re-read document after processing")
		return doc
	}
	return fresh
}

// Get returns a document with its result row, which may be nil when no
// attempt has been made yet.
func (s *Service) Get(ctx context.Context, id string) (*ImageDocument, *Result, error) {
	doc, err := s.images.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.results.GetByImageID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return doc, result, nil
}

// ReadFile returns the stored original bytes for a document.
func (s *Service) ReadFile(ctx context.Context, doc *ImageDocument) ([]byte, error) {
	return s.readStoredFile(ctx, doc)
}
