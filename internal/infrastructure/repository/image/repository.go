package image

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"alt-text-server/internal/domain/alttext"
	"alt-text-server/internal/domain/status"
	"alt-text-server/internal/domain/thumbnail"
	"alt-text-server/internal/infrastructure/database/entities"
	"alt-text-server/internal/utils/apperrors"
)

// Repository handles image document persistence.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ alttext.ImageRepository = (*Repository)(nil)

func (r *Repository) Create(ctx context.Context, doc *alttext.ImageDocument) error {
	entity := mapDomain(doc)
	if err := r.db.WithContext(ctx).Create(&entity).Error; err != nil {
		return apperrors.Wrap(apperrors.KindUpstream, "create image document", err)
	}
	doc.UploadedAt = entity.UploadedAt
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*alttext.ImageDocument, error) {
	var entity entities.ImageDocument
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.Newf(apperrors.KindNotFound, "image document %s not found", id)
		}
		return nil, apperrors.Wrap(apperrors.KindUpstream, "get image document", err)
	}
	doc := mapEntity(entity)
	return &doc, nil
}

func (r *Repository) FindByChecksum(ctx context.Context, checksum string) (*alttext.ImageDocument, error) {
	var entity entities.ImageDocument
	err := r.db.WithContext(ctx).Where("file_checksum = ?", checksum).First(&entity).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.KindUpstream, "find image document by checksum", err)
	}
	doc := mapEntity(entity)
	return &doc, nil
}

func (r *Repository) MarkProcessing(ctx context.Context, id string) error {
	return r.updateFields(ctx, id, map[string]interface{}{
		"processing_status":     string(status.StatusProcessing),
		"processing_started_at": time.Now(),
		"processing_error":      nil,
	})
}

func (r *Repository) MarkCompleted(ctx context.Context, id string) error {
	return r.updateFields(ctx, id, map[string]interface{}{
		"processing_status": string(status.StatusCompleted),
		"processing_error":  nil,
	})
}

func (r *Repository) MarkFailed(ctx context.Context, id, message string) error {
	return r.updateFields(ctx, id, map[string]interface{}{
		"processing_status": string(status.StatusFailed),
		"processing_error":  message,
	})
}

func (r *Repository) MarkPending(ctx context.Context, id string) error {
	return r.updateFields(ctx, id, map[string]interface{}{
		"processing_status":     string(status.StatusPending),
		"processing_started_at": nil,
		"processing_error":      nil,
	})
}

func (r *Repository) SaveThumbnail(ctx context.Context, id string, thumb *thumbnail.Thumbnail) error {
	return r.updateFields(ctx, id, map[string]interface{}{
		"thumbnail_bytes":        thumb.Bytes,
		"thumbnail_width":        thumb.Width,
		"thumbnail_height":       thumb.Height,
		"thumbnail_generated_at": time.Now(),
		"thumbnail_error":        nil,
	})
}

func (r *Repository) SaveThumbnailError(ctx context.Context, id, message string) error {
	return r.updateFields(ctx, id, map[string]interface{}{
		"thumbnail_error": message,
	})
}

// ListRetryable selects documents still waiting on alt text: pending or
// processing records whose result row is absent or itself retryable.
// Records stuck at processing are included so work stranded by a crashed
// worker is eventually picked up again. Oldest uploads first.
func (r *Repository) ListRetryable(ctx context.Context, limit int) ([]*alttext.ImageDocument, error) {
	var rows []entities.ImageDocument
	err := r.db.WithContext(ctx).
		Select("image_documents.*").
		Joins("LEFT JOIN alt_text_results ON alt_text_results.image_document_id = image_documents.id").
		Where("image_documents.processing_status IN ?", []string{
			string(status.StatusPending),
			string(status.StatusProcessing),
		}).
		Where("alt_text_results.id IS NULL OR alt_text_results.status IN ?", []string{
			string(status.StatusPending),
			string(status.StatusFailed),
		}).
		Order("image_documents.uploaded_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstream, "list retryable image documents", err)
	}
	docs := make([]*alttext.ImageDocument, 0, len(rows))
	for _, row := range rows {
		doc := mapEntity(row)
		docs = append(docs, &doc)
	}
	return docs, nil
}

func (r *Repository) updateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	err := r.db.WithContext(ctx).
		Model(&entities.ImageDocument{}).
		Where("id = ?", id).
		Updates(fields).Error
	if err != nil {
		return apperrors.Wrap(apperrors.KindUpstream, "update image document", err)
	}
	return nil
}

func mapDomain(doc *alttext.ImageDocument) entities.ImageDocument {
	var groups []byte
	if len(doc.Submitter.Groups) > 0 {
		groups, _ = json.Marshal(doc.Submitter.Groups)
	}
	return entities.ImageDocument{
		ID:               doc.ID,
		OriginalFilename: doc.OriginalFilename,
		FileChecksum:     doc.FileChecksum,
		FileSize:         doc.FileSize,
		MimeType:         doc.MimeType,
		FileExtension:    doc.FileExtension,
		UserFirstName:    doc.Submitter.FirstName,
		UserLastName:     doc.Submitter.LastName,
		UserEmail:        doc.Submitter.Email,
		UserGroups:       groups,
		ProcessingStatus: string(doc.ProcessingStatus),
		ProcessingError:  doc.ProcessingError,
	}
}

func mapEntity(entity entities.ImageDocument) alttext.ImageDocument {
	var groups []string
	if len(entity.UserGroups) > 0 {
		_ = json.Unmarshal(entity.UserGroups, &groups)
	}
	return alttext.ImageDocument{
		ID:               entity.ID,
		OriginalFilename: entity.OriginalFilename,
		FileChecksum:     entity.FileChecksum,
		FileSize:         entity.FileSize,
		MimeType:         entity.MimeType,
		FileExtension:    entity.FileExtension,
		Submitter: alttext.Submitter{
			FirstName: entity.UserFirstName,
			LastName:  entity.UserLastName,
			Email:     entity.UserEmail,
			Groups:    groups,
		},
		UploadedAt:          entity.UploadedAt,
		ProcessingStartedAt: entity.ProcessingStartedAt,
		ProcessingStatus:    status.Status(entity.ProcessingStatus),
		ProcessingError:     entity.ProcessingError,
		Thumbnail: alttext.Preview{
			Bytes:       entity.ThumbnailBytes,
			Width:       entity.ThumbnailWidth,
			Height:      entity.ThumbnailHeight,
			GeneratedAt: entity.ThumbnailGeneratedAt,
			Error:       entity.ThumbnailError,
		},
	}
}
