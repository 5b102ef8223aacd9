package entities

import (
	"time"

	"gorm.io/datatypes"
)

// ImageDocument represents one distinct uploaded file content.
type ImageDocument struct {
	ID               string `gorm:"type:uuid;primaryKey"`
	OriginalFilename string `gorm:"type:varchar(255);not null"`
	FileChecksum     string `gorm:"type:char(64);uniqueIndex;not null"`
	FileSize         int64  `gorm:"not null"`
	MimeType         string `gorm:"type:varchar(100)"`
	FileExtension    string `gorm:"type:varchar(10)"`

	// Submitter identity captured at upload time; opaque to processing.
	UserFirstName string         `gorm:"type:varchar(100)"`
	UserLastName  string         `gorm:"type:varchar(100)"`
	UserEmail     string         `gorm:"type:varchar(254)"`
	UserGroups    datatypes.JSON `gorm:"type:jsonb"`

	UploadedAt          time.Time `gorm:"autoCreateTime;index"`
	ProcessingStartedAt *time.Time

	ProcessingStatus string  `gorm:"type:varchar(20);not null;default:pending;index"`
	ProcessingError  *string `gorm:"type:text"`

	// Thumbnail preview; independent of alt-text status.
	ThumbnailBytes       []byte `gorm:"type:bytea"`
	ThumbnailWidth       *int
	ThumbnailHeight      *int
	ThumbnailGeneratedAt *time.Time
	ThumbnailError       *string `gorm:"type:text"`
}

func (ImageDocument) TableName() string {
	return "image_documents"
}
