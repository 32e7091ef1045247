package upload

import "github.com/gin-gonic/gin"

// RegisterRoutes registers upload routes under the protected group.
// Everything here requires an authenticated user.
func RegisterRoutes(rg *gin.RouterGroup, h *Handler) {
	uploads := rg.Group("/uploads")
	{
		uploads.POST("", h.Create)
		uploads.GET("", h.List)
		uploads.GET("/facets", h.Facets)
		uploads.GET("/zip", h.ExportZip)
		uploads.PATCH("/:id", h.Update)
		uploads.DELETE("/:id", h.Delete)
		uploads.POST("/:id/replace", h.Replace)
		uploads.GET("/:id/download", h.Download)
		uploads.POST("/:id/summarize", h.Summarize)
	}

	rg.POST("/analyze", h.Analyze)
	rg.POST("/cache/revalidate", h.Revalidate)
}
