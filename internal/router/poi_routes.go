package router

import (
	"github.com/labstack/echo/v4"

	"github.com/geoatlas/poi-admin-api/internal/middleware"
)

func registerPOIRoutes(api *echo.Group, d Deps) {
	pois := api.Group("/pois", middleware.JWTAuth(d.Cfg.JWTSecret))
	super := middleware.RequireRole("SUPER_ADMIN")

	pois.GET("", d.POIs.List)
	pois.GET("/admin", d.POIs.ListMine)
	pois.GET("/city/:cityId", d.POIs.ListByCity)

	// Admin-scoped mutations: ownership is enforced through the city join,
	// so no role gate here beyond authentication.
	pois.POST("/admin/create", d.POIs.CreateMine)
	pois.PUT("/admin/:id", d.POIs.UpdateMine)
	pois.DELETE("/admin/:id", d.POIs.DeleteMine)

	pois.POST("/create", d.POIs.Create, super)
	pois.GET("/:id", d.POIs.GetByID)
	pois.PUT("/:id", d.POIs.Update, super)
	pois.DELETE("/:id", d.POIs.Delete, super)
}
