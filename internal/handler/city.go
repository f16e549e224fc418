package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	q "github.com/geoatlas/poi-admin-api/internal/queue"
	"github.com/geoatlas/poi-admin-api/internal/repository"
	queue_publisher "github.com/geoatlas/poi-admin-api/internal/service"
)

// CityHandler serves the city endpoints. The SUPER_ADMIN operations work on
// any city; the /admin variants only ever see the caller's own cities.
type CityHandler struct {
	Cities *repository.CityRepo
	POIs   *repository.POIRepo
}

func NewCityHandler(cities *repository.CityRepo, pois *repository.POIRepo) *CityHandler {
	return &CityHandler{Cities: cities, POIs: pois}
}

type cityReq struct {
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Radius    *float64 `json:"radius"`
	AdminID   *uint64  `json:"adminId"`
}

func (r cityReq) validate() (string, bool) {
	if r.Name == "" || r.Latitude == nil || r.Longitude == nil || r.Radius == nil {
		return "Le nom, la latitude, la longitude et le rayon sont obligatoires", false
	}
	if *r.Radius <= 0 {
		return "Le rayon doit être supérieur à 0", false
	}
	return "", true
}

// List returns every city with its owning admin and its POIs. One query per
// relation, stitched in memory; fine at admin-dashboard scale.
func (h *CityHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	cities, err := h.Cities.ListAll(ctx)
	if err != nil {
		c.Logger().Errorf("list cities: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "An error occurred while fetching cities"})
	}
	pois, err := h.POIs.ListAll(ctx)
	if err != nil {
		c.Logger().Errorf("list cities: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "An error occurred while fetching cities"})
	}

	byCity := make(map[uint64][]poiResp)
	for _, p := range pois {
		byCity[p.CityID] = append(byCity[p.CityID], newPOIResp(c, p, false))
	}

	out := make([]cityResp, 0, len(cities))
	for _, city := range cities {
		resp := newCityResp(&city.City)
		if city.AdminID.Valid && city.AdminEmail.Valid {
			resp.Admin = &adminPart{ID: uint64(city.AdminID.Int64), Email: city.AdminEmail.String}
		}
		resp.POIs = byCity[city.ID]
		out = append(out, resp)
	}
	return c.JSON(http.StatusOK, out)
}

// ListMine returns the caller's cities, 404 when the caller owns none.
func (h *CityHandler) ListMine(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Admin ID is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	cities, err := h.Cities.ListByOwner(ctx, userID)
	if err != nil {
		c.Logger().Errorf("list cities by admin: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "An error occurred while fetching cities for the admin"})
	}
	if len(cities) == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "No cities found for this admin"})
	}

	out := make([]cityResp, 0, len(cities))
	for _, city := range cities {
		out = append(out, newCityResp(city))
	}
	return c.JSON(http.StatusOK, out)
}

// Create adds a city, optionally already assigned to an admin.
func (h *CityHandler) Create(c echo.Context) error {
	var req cityReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if msg, ok := req.validate(); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	city := repository.City{
		Name:      req.Name,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Radius:    *req.Radius,
	}
	if req.AdminID != nil {
		city.AdminID.Valid = true
		city.AdminID.Int64 = int64(*req.AdminID)
	}
	if err := h.Cities.Create(ctx, &city); err != nil {
		c.Logger().Errorf("create city: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "An error occurred while creating the city"})
	}

	h.publish(c, "created", &city)
	return c.JSON(http.StatusCreated, newCityResp(&city))
}

// Update rewrites name and geofence of any city.
func (h *CityHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid city id"})
	}
	var req cityReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if msg, ok := req.validate(); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Cities.Update(ctx, id, req.Name, *req.Latitude, *req.Longitude, *req.Radius); err != nil {
		if errors.Is(err, repository.ErrCityNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "City not found"})
		}
		c.Logger().Errorf("update city: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "An error occurred while updating the city"})
	}

	city, err := h.Cities.GetByID(ctx, id)
	if err != nil {
		c.Logger().Errorf("update city: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "An error occurred while updating the city"})
	}
	h.publish(c, "updated", city)
	return c.JSON(http.StatusOK, newCityResp(city))
}

// UpdateMine lets an admin edit a city it owns. The ownership predicate is
// inside the repository query, so a foreign or missing city is the same 403.
func (h *CityHandler) UpdateMine(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Admin ID is required"})
	}
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid city id"})
	}
	var req cityReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if msg, ok := req.validate(); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Cities.UpdateByIDAndOwner(ctx, id, userID, req.Name, *req.Latitude, *req.Longitude, *req.Radius); err != nil {
		if errors.Is(err, repository.ErrCityNotFound) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "Vous n'avez pas l'autorisation de modifier cette ville"})
		}
		c.Logger().Errorf("update own city: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "An error occurred while updating the city"})
	}

	city, err := h.Cities.GetByIDAndOwner(ctx, id, userID)
	if err != nil {
		c.Logger().Errorf("update own city: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "An error occurred while updating the city"})
	}
	h.publish(c, "updated", city)
	return c.JSON(http.StatusOK, newCityResp(city))
}

type assignReq struct {
	AdminID *uint64 `json:"adminId"`
}

// Assign hands a city to an admin, replacing any previous owner.
func (h *CityHandler) Assign(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid city id"})
	}
	var req assignReq
	if err := c.Bind(&req); err != nil || req.AdminID == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "City ID and Admin ID are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Cities.Assign(ctx, id, *req.AdminID); err != nil {
		if errors.Is(err, repository.ErrCityNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "City not found"})
		}
		c.Logger().Errorf("assign city: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "An error occurred while assigning the city to the admin"})
	}

	city, err := h.Cities.GetByID(ctx, id)
	if err != nil {
		c.Logger().Errorf("assign city: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "An error occurred while assigning the city to the admin"})
	}
	return c.JSON(http.StatusOK, newCityResp(city))
}

// Unassign detaches a city from its owner. The city and its POIs stay.
func (h *CityHandler) Unassign(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid city id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Cities.Unassign(ctx, id); err != nil {
		if errors.Is(err, repository.ErrCityNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "City not found"})
		}
		c.Logger().Errorf("unassign city: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "An error occurred while unassigning the city from the admin"})
	}

	city, err := h.Cities.GetByID(ctx, id)
	if err != nil {
		c.Logger().Errorf("unassign city: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "An error occurred while unassigning the city from the admin"})
	}
	return c.JSON(http.StatusOK, newCityResp(city))
}

// Delete removes a city, refusing while POIs still reference it.
func (h *CityHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid city id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Cities.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrCityNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "City not found"})
		case errors.Is(err, repository.ErrCityHasPOIs):
			return c.JSON(http.StatusConflict, echo.Map{"error": "La ville contient encore des POIs et ne peut pas être supprimée"})
		default:
			c.Logger().Errorf("delete city: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "An error occurred while deleting the city"})
		}
	}

	_ = queue_publisher.PublishContentChanged(c.Request().Context(), q.ContentChangedEvent{
		Kind:      "city",
		Action:    "deleted",
		ID:        id,
		ChangedAt: time.Now().UTC().Format(time.RFC3339),
	})
	return c.NoContent(http.StatusNoContent)
}

func (h *CityHandler) publish(c echo.Context, action string, city *repository.City) {
	_ = queue_publisher.PublishContentChanged(c.Request().Context(), q.ContentChangedEvent{
		Kind:      "city",
		Action:    action,
		ID:        city.ID,
		Name:      city.Name,
		Latitude:  city.Latitude,
		Longitude: city.Longitude,
		ChangedAt: time.Now().UTC().Format(time.RFC3339),
	})
}
