package database

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"alt-text-server/internal/infrastructure/database/entities"
)

// AutoMigrate applies database schema changes.
func AutoMigrate(ctx context.Context, db *gorm.DB, log zerolog.Logger) error {
	if err := db.WithContext(ctx).AutoMigrate(&entities.ImageDocument{}, &entities.AltTextResult{}); err != nil {
		return err
	}
	log.Info().Msg("applied image document and alt-text result migrations")
	return nil
}
