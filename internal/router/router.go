// Package router wires handlers, middleware and route groups onto the echo
// instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/geoatlas/poi-admin-api/internal/config"
	"github.com/geoatlas/poi-admin-api/internal/handler"
	"github.com/geoatlas/poi-admin-api/internal/ratelimit"
)

// Deps carries everything the route tables need.
type Deps struct {
	Cfg      config.Config
	Auth     *handler.AuthHandler
	Cities   *handler.CityHandler
	POIs     *handler.POIHandler
	Admins   *handler.AdminHandler
	Attempts ratelimit.AttemptStore
}

// Register mounts the whole HTTP surface under /api, plus the health probe
// and the static uploads tree.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)
	e.Static("/uploads", d.Cfg.UploadDir)

	api := e.Group("/api")
	registerAuthRoutes(api, d)
	registerCityRoutes(api, d)
	registerPOIRoutes(api, d)
	registerAdminRoutes(api, d)
}
