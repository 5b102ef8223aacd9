package alttext

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"alt-text-server/internal/domain/status"
	"alt-text-server/internal/domain/thumbnail"
	"alt-text-server/internal/domain/vision"
)

// ErrEmptyUpload rejects zero-byte uploads before any state is created.
var ErrEmptyUpload = errors.New("uploaded file is empty")

// Submitter holds the identity attached to an upload. Opaque metadata: the
// processing pipeline never interprets it.
type Submitter struct {
	FirstName string
	LastName  string
	Email     string
	Groups    []string
}

// Preview is the stored thumbnail state of an image document.
type Preview struct {
	Bytes       []byte
	Width       *int
	Height      *int
	GeneratedAt *time.Time
	Error       *string
}

// ImageDocument is one distinct uploaded file content, keyed by checksum.
type ImageDocument struct {
	ID               string
	OriginalFilename string
	FileChecksum     string
	FileSize         int64
	MimeType         string
	FileExtension    string
	Submitter        Submitter

	UploadedAt          time.Time
	ProcessingStartedAt *time.Time
	ProcessingStatus    status.Status
	ProcessingError     *string

	Thumbnail Preview
}

// Result tracks one image's alt-text generation lifecycle. Retries reuse
// the same record, overwriting transient fields.
type Result struct {
	ID              string
	ImageDocumentID string

	RawResponse json.RawMessage
	AltText     string
	Prompt      string

	ResponseID   string
	Provider     string
	Model        string
	FinishReason string

	Status status.Status
	Error  *string

	RequestedAt       *time.Time
	CompletedAt       *time.Time
	UpstreamCreatedAt *time.Time

	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
	Cost             *decimal.Decimal
}

// UploadInput is the payload for ingesting a new image.
type UploadInput struct {
	Filename  string
	Data      []byte
	MimeType  string
	Submitter Submitter
}

// ImageRepository defines image-record persistence operations needed by the
// service. Mark* methods update a named subset of fields only, so writers
// racing on unrelated columns never clobber each other.
type ImageRepository interface {
	Create(ctx context.Context, doc *ImageDocument) error
	GetByID(ctx context.Context, id string) (*ImageDocument, error)
	FindByChecksum(ctx context.Context, checksum string) (*ImageDocument, error)

	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, message string) error
	// MarkPending resets a record to the retryable resting state, clearing
	// started_at and error.
	MarkPending(ctx context.Context, id string) error

	SaveThumbnail(ctx context.Context, id string, thumb *thumbnail.Thumbnail) error
	SaveThumbnailError(ctx context.Context, id, message string) error

	// ListRetryable selects records eligible for a batch retry, oldest
	// upload first.
	ListRetryable(ctx context.Context, limit int) ([]*ImageDocument, error)
}

// ResultRepository defines alt-text result persistence. One row per image,
// found-or-created atomically.
type ResultRepository interface {
	// GetOrCreate returns the result row for an image, creating it with
	// status=processing and requested_at=now when absent. The bool reports
	// whether a row was created.
	GetOrCreate(ctx context.Context, imageDocumentID string) (*Result, bool, error)
	// GetByImageID returns nil without error when no row exists.
	GetByImageID(ctx context.Context, imageDocumentID string) (*Result, error)

	// MarkProcessing resets an existing row for a fresh attempt.
	MarkProcessing(ctx context.Context, id string) error
	SetPrompt(ctx context.Context, id, prompt string) error
	// PersistSuccess is the only transition into completed.
	PersistSuccess(ctx context.Context, id string, raw json.RawMessage, parsed vision.Parsed) error
	// PersistFailure covers both the terminal failed state and the
	// pending-again deferral after a timeout.
	PersistFailure(ctx context.Context, id, message string, resulting status.Status) error
}

// FileStore abstracts the stored-file backend; key = "{checksum}.{ext}".
type FileStore interface {
	Save(ctx context.Context, key string, data []byte) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Read(ctx context.Context, key string) ([]byte, error)
}
