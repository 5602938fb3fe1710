package adminapi

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"dnsrouter/internal/adminapi/handlers"

	_ "dnsrouter/internal/adminapi/docs" // swagger docs
)

// RegisterRoutes mounts the admin API's read-only status surface and
// its swagger UI onto r.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler) {
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	api.GET("/health", h.Health)
	api.GET("/stats", h.Stats)
	api.POST("/rules/validate", h.Validate)
}
