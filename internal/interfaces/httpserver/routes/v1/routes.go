package v1

import (
	"github.com/gin-gonic/gin"

	"alt-text-server/internal/interfaces/httpserver/handlers"
)

// Routes encapsulates versioned route registration.
type Routes struct {
	handlers *handlers.Provider
}

func NewRoutes(provider *handlers.Provider) *Routes {
	return &Routes{handlers: provider}
}

// Register attaches all v1 routes under the /v1 prefix.
func (r *Routes) Register(router gin.IRouter) {
	group := router.Group("/v1")
	group.POST("/images", r.handlers.Images.Upload)
	group.GET("/images/:id", r.handlers.Images.Get)
	group.GET("/images/:id/status", r.handlers.Images.Status)
	group.GET("/images/:id/file", r.handlers.Images.File)
	group.GET("/images/:id/thumbnail", r.handlers.Images.Thumbnail)
}
