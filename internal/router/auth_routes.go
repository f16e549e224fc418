package router

import (
	"github.com/labstack/echo/v4"

	"github.com/geoatlas/poi-admin-api/internal/middleware"
)

func registerAuthRoutes(api *echo.Group, d Deps) {
	auth := api.Group("/auth")

	auth.POST("/register", d.Auth.Register)
	auth.POST("/login", d.Auth.Login, middleware.LoginRateLimit(d.Attempts))
	auth.POST("/refresh", d.Auth.Refresh)

	protected := auth.Group("", middleware.JWTAuth(d.Cfg.JWTSecret))
	protected.POST("/logout", d.Auth.Logout)
	protected.PUT("/change-password", d.Auth.ChangePassword)
	protected.PUT("/profile-picture", d.Auth.UpdateProfilePicture)
}
