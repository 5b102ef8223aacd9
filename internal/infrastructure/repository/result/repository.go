package result

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"alt-text-server/internal/domain/alttext"
	"alt-text-server/internal/domain/status"
	"alt-text-server/internal/domain/vision"
	"alt-text-server/internal/infrastructure/database/entities"
	"alt-text-server/internal/utils/apperrors"
)

// Repository handles alt-text result persistence. One row per image
// document, enforced by the unique index on image_document_id.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ alttext.ResultRepository = (*Repository)(nil)

// GetOrCreate returns the result row for an image, creating it fresh at
// status=processing when none exists. A concurrent insert losing the race
// falls back to re-reading the winner's row.
func (r *Repository) GetOrCreate(ctx context.Context, imageDocumentID string) (*alttext.Result, bool, error) {
	existing, err := r.GetByImageID(ctx, imageDocumentID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	now := time.Now()
	entity := entities.AltTextResult{
		ID:              uuid.NewString(),
		ImageDocumentID: imageDocumentID,
		Status:          string(status.StatusProcessing),
		RequestedAt:     &now,
	}
	if err := r.db.WithContext(ctx).Create(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			winner, rerr := r.GetByImageID(ctx, imageDocumentID)
			if rerr != nil {
				return nil, false, rerr
			}
			if winner != nil {
				return winner, false, nil
			}
		}
		return nil, false, apperrors.Wrap(apperrors.KindUpstream, "create alt-text result", err)
	}
	res := mapEntity(entity)
	return &res, true, nil
}

func (r *Repository) GetByImageID(ctx context.Context, imageDocumentID string) (*alttext.Result, error) {
	var entity entities.AltTextResult
	err := r.db.WithContext(ctx).Where("image_document_id = ?", imageDocumentID).First(&entity).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.KindUpstream, "get alt-text result", err)
	}
	res := mapEntity(entity)
	return &res, nil
}

func (r *Repository) MarkProcessing(ctx context.Context, id string) error {
	return r.updateFields(ctx, id, map[string]interface{}{
		"status":       string(status.StatusProcessing),
		"requested_at": time.Now(),
		"error":        nil,
	})
}

func (r *Repository) SetPrompt(ctx context.Context, id, prompt string) error {
	return r.updateFields(ctx, id, map[string]interface{}{
		"prompt": prompt,
	})
}

// PersistSuccess writes the full upstream outcome and is the only
// transition into completed.
func (r *Repository) PersistSuccess(ctx context.Context, id string, raw json.RawMessage, parsed vision.Parsed) error {
	return r.updateFields(ctx, id, map[string]interface{}{
		"raw_response":        datatypes.JSON(raw),
		"alt_text":            parsed.AltText,
		"response_id":         parsed.ResponseID,
		"provider":            parsed.Provider,
		"model":               parsed.Model,
		"finish_reason":       parsed.FinishReason,
		"upstream_created_at": parsed.CreatedAt,
		"prompt_tokens":       parsed.PromptTokens,
		"completion_tokens":   parsed.CompletionTokens,
		"total_tokens":        parsed.TotalTokens,
		"cost":                parsed.Cost,
		"status":              string(status.StatusCompleted),
		"completed_at":        time.Now(),
		"error":               nil,
	})
}

func (r *Repository) PersistFailure(ctx context.Context, id, message string, resulting status.Status) error {
	return r.updateFields(ctx, id, map[string]interface{}{
		"status": string(resulting),
		"error":  message,
	})
}

func (r *Repository) updateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	err := r.db.WithContext(ctx).
		Model(&entities.AltTextResult{}).
		Where("id = ?", id).
		Updates(fields).Error
	if err != nil {
		return apperrors.Wrap(apperrors.KindUpstream, "update alt-text result", err)
	}
	return nil
}

func mapEntity(entity entities.AltTextResult) alttext.Result {
	return alttext.Result{
		ID:                entity.ID,
		ImageDocumentID:   entity.ImageDocumentID,
		RawResponse:       json.RawMessage(entity.RawResponse),
		AltText:           entity.AltText,
		Prompt:            entity.Prompt,
		ResponseID:        entity.ResponseID,
		Provider:          entity.Provider,
		Model:             entity.Model,
		FinishReason:      entity.FinishReason,
		Status:            status.Status(entity.Status),
		Error:             entity.Error,
		RequestedAt:       entity.RequestedAt,
		CompletedAt:       entity.CompletedAt,
		UpstreamCreatedAt: entity.UpstreamCreatedAt,
		PromptTokens:      entity.PromptTokens,
		CompletionTokens:  entity.CompletionTokens,
		TotalTokens:       entity.TotalTokens,
		Cost:              entity.Cost,
	}
}
