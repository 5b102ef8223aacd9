package entities

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// AltTextResult tracks one image's alt-text generation lifecycle. At most
// one row per image document; retries reuse and overwrite the same row.
type AltTextResult struct {
	ID              string `gorm:"type:uuid;primaryKey"`
	ImageDocumentID string `gorm:"type:uuid;uniqueIndex;not null"`

	RawResponse datatypes.JSON `gorm:"type:jsonb"`
	AltText     string         `gorm:"type:text"`
	Prompt      string         `gorm:"type:text"`

	// Upstream identity/metadata.
	ResponseID   string `gorm:"type:varchar(128)"`
	Provider     string `gorm:"type:varchar(64)"`
	Model        string `gorm:"type:varchar(128)"`
	FinishReason string `gorm:"type:varchar(32)"`

	Status string  `gorm:"type:varchar(20);not null;default:pending;index"`
	Error  *string `gorm:"type:text"`

	RequestedAt       *time.Time
	CompletedAt       *time.Time
	UpstreamCreatedAt *time.Time

	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
	Cost             *decimal.Decimal `gorm:"type:numeric(10,6)"`
}

func (AltTextResult) TableName() string {
	return "alt_text_results"
}
