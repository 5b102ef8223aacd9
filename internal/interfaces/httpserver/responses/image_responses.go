package responses

import (
	"time"

	"alt-text-server/internal/domain/alttext"
)

// UploadResponse acknowledges an upload. Returned for new and deduplicated
// uploads alike; Status reflects the record after the sync attempt.
type UploadResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Deduped  bool   `json:"deduped"`
	Checksum string `json:"checksum"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// StatusResponse is the polling view of a record.
type StatusResponse struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	Terminal bool    `json:"terminal"`
	Error    *string `json:"error,omitempty"`
}

// ThumbnailInfo describes the stored preview without its bytes.
type ThumbnailInfo struct {
	Available   bool       `json:"available"`
	Width       *int       `json:"width,omitempty"`
	Height      *int       `json:"height,omitempty"`
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
}

// AltTextInfo is the result row as reported to clients. The raw upstream
// payload stays server side.
type AltTextInfo struct {
	AltText      string     `json:"alt_text"`
	Status       string     `json:"status"`
	Error        *string    `json:"error,omitempty"`
	Provider     string     `json:"provider,omitempty"`
	Model        string     `json:"model,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
	RequestedAt  *time.Time `json:"requested_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	TotalTokens  *int       `json:"total_tokens,omitempty"`
	Cost         *string    `json:"cost,omitempty"`
}

// ImageReport is the full record view.
type ImageReport struct {
	ID         string        `json:"id"`
	Filename   string        `json:"filename"`
	Checksum   string        `json:"checksum"`
	MimeType   string        `json:"mime_type"`
	Size       int64         `json:"size"`
	Status     string        `json:"status"`
	Error      *string       `json:"error,omitempty"`
	UploadedAt time.Time     `json:"uploaded_at"`
	Thumbnail  ThumbnailInfo `json:"thumbnail"`
	AltText    *AltTextInfo  `json:"alt_text,omitempty"`
}

// NewImageReport maps a document and its optional result row.
func NewImageReport(doc *alttext.ImageDocument, result *alttext.Result) ImageReport {
	report := ImageReport{
		ID:         doc.ID,
		Filename:   doc.OriginalFilename,
		Checksum:   doc.FileChecksum,
		MimeType:   doc.MimeType,
		Size:       doc.FileSize,
		Status:     doc.ProcessingStatus.String(),
		Error:      doc.ProcessingError,
		UploadedAt: doc.UploadedAt,
		Thumbnail: ThumbnailInfo{
			Available:   len(doc.Thumbnail.Bytes) > 0,
			Width:       doc.Thumbnail.Width,
			Height:      doc.Thumbnail.Height,
			GeneratedAt: doc.Thumbnail.GeneratedAt,
			Error:       doc.Thumbnail.Error,
		},
	}
	if result != nil {
		info := AltTextInfo{
			AltText:      result.AltText,
			Status:       result.Status.String(),
			Error:        result.Error,
			Provider:     result.Provider,
			Model:        result.Model,
			FinishReason: result.FinishReason,
			RequestedAt:  result.RequestedAt,
			CompletedAt:  result.CompletedAt,
			TotalTokens:  result.TotalTokens,
		}
		if result.Cost != nil {
			cost := result.Cost.String()
			info.Cost = &cost
		}
		report.AltText = &info
	}
	return report
}
