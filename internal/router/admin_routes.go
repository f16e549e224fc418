package router

import (
	"github.com/labstack/echo/v4"

	"github.com/geoatlas/poi-admin-api/internal/middleware"
)

func registerAdminRoutes(api *echo.Group, d Deps) {
	admins := api.Group("/admins",
		middleware.JWTAuth(d.Cfg.JWTSecret),
		middleware.RequireRole("SUPER_ADMIN"))

	admins.GET("", d.Admins.List)
	admins.GET("/stats", d.Admins.Stats)
	admins.GET("/:id", d.Admins.GetByID)
	admins.POST("", d.Admins.Create)
	admins.PUT("/:id", d.Admins.Update)
	admins.DELETE("/:id", d.Admins.Delete)
}
