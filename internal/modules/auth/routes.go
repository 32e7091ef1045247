package auth

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the public auth endpoints.
func RegisterRoutes(rg *gin.RouterGroup, h *Handler) {
	a := rg.Group("/auth")
	{
		a.POST("/register", h.Register)
		a.POST("/login", h.Login)
	}
}

// RegisterProtectedRoutes mounts endpoints that need an authenticated user.
func RegisterProtectedRoutes(rg *gin.RouterGroup, h *Handler) {
	rg.GET("/auth/me", h.Me)
}
