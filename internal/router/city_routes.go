package router

import (
	"github.com/labstack/echo/v4"

	"github.com/geoatlas/poi-admin-api/internal/middleware"
)

func registerCityRoutes(api *echo.Group, d Deps) {
	cities := api.Group("/cities", middleware.JWTAuth(d.Cfg.JWTSecret))
	super := middleware.RequireRole("SUPER_ADMIN")

	cities.GET("", d.Cities.List, super)
	cities.GET("/admin", d.Cities.ListMine)
	cities.PUT("/admin/:id", d.Cities.UpdateMine)
	cities.POST("/create", d.Cities.Create, super)
	cities.PUT("/:id", d.Cities.Update, super)
	cities.PUT("/:id/assign", d.Cities.Assign, super)
	cities.DELETE("/:id/unassign", d.Cities.Unassign, super)
	cities.DELETE("/:id", d.Cities.Delete, super)
}
