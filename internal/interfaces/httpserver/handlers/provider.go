package handlers

import (
	"github.com/rs/zerolog"

	"alt-text-server/internal/config"
	"alt-text-server/internal/domain/alttext"
)

// Provider wires HTTP handlers.
type Provider struct {
	Images *ImageHandler
}

func NewProvider(cfg *config.Config, service *alttext.Service, log zerolog.Logger) *Provider {
	return &Provider{
		Images: NewImageHandler(cfg, service, log),
	}
}
