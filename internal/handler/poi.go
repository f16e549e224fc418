package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	q "github.com/geoatlas/poi-admin-api/internal/queue"
	"github.com/geoatlas/poi-admin-api/internal/repository"
	queue_publisher "github.com/geoatlas/poi-admin-api/internal/service"
	"github.com/geoatlas/poi-admin-api/internal/storage"
)

// POIHandler serves the POI endpoints. SUPER_ADMIN operations reach any
// POI; the /admin variants derive ownership from the POI's city.
type POIHandler struct {
	POIs    *repository.POIRepo
	Cities  *repository.CityRepo
	Uploads *storage.Store
}

func NewPOIHandler(pois *repository.POIRepo, cities *repository.CityRepo, uploads *storage.Store) *POIHandler {
	return &POIHandler{POIs: pois, Cities: cities, Uploads: uploads}
}

// List returns every POI with its city.
func (h *POIHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	pois, err := h.POIs.ListAll(ctx)
	if err != nil {
		c.Logger().Errorf("list pois: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to fetch POIs"})
	}
	return c.JSON(http.StatusOK, poiList(c, pois))
}

// ListMine returns the POIs in cities owned by the caller.
func (h *POIHandler) ListMine(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Admin ID is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	pois, err := h.POIs.ListByAdmin(ctx, userID)
	if err != nil {
		c.Logger().Errorf("list pois by admin: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "An error occurred while fetching POIs for the admin"})
	}
	return c.JSON(http.StatusOK, poiList(c, pois))
}

// GetByID returns one POI with its city.
func (h *POIHandler) GetByID(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ID POI invalide"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	p, err := h.POIs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPOINotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "POI not found"})
		}
		c.Logger().Errorf("get poi: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Error fetching POI"})
	}
	return c.JSON(http.StatusOK, newPOIResp(c, p, true))
}

// ListByCity returns the POIs of one city. The city must exist; an existing
// city with no POIs yields an empty list, not a 404.
func (h *POIHandler) ListByCity(c echo.Context) error {
	cityID, err := parseID(c, "cityId")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid city id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Cities.GetByID(ctx, cityID); err != nil {
		if errors.Is(err, repository.ErrCityNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "City not found"})
		}
		c.Logger().Errorf("list pois by city: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Error fetching POIs by city"})
	}

	pois, err := h.POIs.ListByCity(ctx, cityID)
	if err != nil {
		c.Logger().Errorf("list pois by city: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Error fetching POIs by city"})
	}
	return c.JSON(http.StatusOK, poiList(c, pois))
}

// Create adds a POI under any existing city.
func (h *POIHandler) Create(c echo.Context) error {
	req, msg, code := h.bindPOIForm(c)
	if msg != "" {
		return c.JSON(code, echo.Map{"error": msg})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Cities.GetByID(ctx, req.cityID); err != nil {
		if errors.Is(err, repository.ErrCityNotFound) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "La ville spécifiée n'existe pas"})
		}
		c.Logger().Errorf("create poi: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Error creating POI"})
	}
	return h.create(c, ctx, req)
}

// CreateMine adds a POI under a city the caller owns. A missing or foreign
// city gets the same 403.
func (h *POIHandler) CreateMine(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Admin ID is required"})
	}
	req, msg, code := h.bindPOIForm(c)
	if msg != "" {
		return c.JSON(code, echo.Map{"error": msg})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Cities.GetByIDAndOwner(ctx, req.cityID, userID); err != nil {
		if errors.Is(err, repository.ErrCityNotFound) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "Vous n'avez pas l'autorisation de créer un POI dans cette ville"})
		}
		c.Logger().Errorf("create poi as admin: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Error creating POI"})
	}
	return h.create(c, ctx, req)
}

// Update changes any POI. Only the fields present in the payload move; an
// omitted field keeps its stored value. The city binding is fixed at
// creation.
func (h *POIHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ID POI invalide"})
	}
	upd, msg, code := h.bindPOIUpdate(c)
	if msg != "" {
		return c.JSON(code, echo.Map{"error": msg})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.POIs.Update(ctx, id, upd); err != nil {
		if errors.Is(err, repository.ErrPOINotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "POI not found"})
		}
		c.Logger().Errorf("update poi: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Error updating POI"})
	}
	return h.respondUpdated(c, ctx, id)
}

// UpdateMine is the partial update scoped to the caller's own cities.
func (h *POIHandler) UpdateMine(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Admin ID is required"})
	}
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ID POI invalide"})
	}
	upd, msg, code := h.bindPOIUpdate(c)
	if msg != "" {
		return c.JSON(code, echo.Map{"error": msg})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.POIs.UpdateForAdmin(ctx, id, userID, upd); err != nil {
		if errors.Is(err, repository.ErrPOINotFound) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "Vous n'avez pas l'autorisation de modifier ce POI"})
		}
		c.Logger().Errorf("update poi as admin: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Error updating POI"})
	}
	return h.respondUpdated(c, ctx, id)
}

// Delete removes any POI.
func (h *POIHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ID POI invalide"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.POIs.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrPOINotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "POI introuvable"})
		}
		c.Logger().Errorf("delete poi: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Erreur lors de la suppression du POI"})
	}

	h.publishDeleted(c, id)
	return c.NoContent(http.StatusNoContent)
}

// DeleteMine removes a POI only when the caller owns its city.
func (h *POIHandler) DeleteMine(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Admin ID is required"})
	}
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ID POI invalide"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.POIs.DeleteForAdmin(ctx, id, userID); err != nil {
		if errors.Is(err, repository.ErrPOINotFound) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "Vous n'avez pas l'autorisation de supprimer ce POI"})
		}
		c.Logger().Errorf("delete poi as admin: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Erreur lors de la suppression du POI"})
	}

	h.publishDeleted(c, id)
	return c.NoContent(http.StatusNoContent)
}

// ----- shared plumbing -----

type poiForm struct {
	name        string
	description string
	latitude    float64
	longitude   float64
	iconURL     string
	modelURL    string
	cityID      uint64
}

// bindPOIForm reads a full POI payload for creation from either JSON or a
// multipart form. Icon and model come from uploaded files when present,
// otherwise from URL strings. Returns a user-facing message and the HTTP
// status to answer with when the payload cannot be accepted.
func (h *POIHandler) bindPOIForm(c echo.Context) (poiForm, string, int) {
	var out poiForm

	ct := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(ct, echo.MIMEMultipartForm) || strings.HasPrefix(ct, echo.MIMEApplicationForm) {
		out.name = strings.TrimSpace(c.FormValue("name"))
		out.description = strings.TrimSpace(c.FormValue("description"))
		out.iconURL = strings.TrimSpace(c.FormValue("iconUrl"))
		out.modelURL = strings.TrimSpace(c.FormValue("modelUrl"))

		var err error
		if out.latitude, err = strconv.ParseFloat(c.FormValue("latitude"), 64); err != nil {
			return out, "La latitude est invalide", http.StatusBadRequest
		}
		if out.longitude, err = strconv.ParseFloat(c.FormValue("longitude"), 64); err != nil {
			return out, "La longitude est invalide", http.StatusBadRequest
		}
		if out.cityID, err = strconv.ParseUint(c.FormValue("cityId"), 10, 64); err != nil {
			return out, "La ville est obligatoire", http.StatusBadRequest
		}

		if f := formFile(c, "iconFile"); f != nil {
			url, err := h.Uploads.SaveIcon(f)
			if err != nil {
				msg, code := uploadError(c, err)
				return out, msg, code
			}
			out.iconURL = url
		}
		if f := formFile(c, "modelFile"); f != nil {
			url, err := h.Uploads.SaveModel(f)
			if err != nil {
				msg, code := uploadError(c, err)
				return out, msg, code
			}
			out.modelURL = url
		}
	} else {
		var body struct {
			Name        string   `json:"name"`
			Description string   `json:"description"`
			Latitude    *float64 `json:"latitude"`
			Longitude   *float64 `json:"longitude"`
			IconURL     string   `json:"iconUrl"`
			ModelURL    string   `json:"modelUrl"`
			CityID      *uint64  `json:"cityId"`
		}
		if err := c.Bind(&body); err != nil {
			return out, "invalid body", http.StatusBadRequest
		}
		if body.Latitude == nil || body.Longitude == nil {
			return out, "La latitude et la longitude sont obligatoires", http.StatusBadRequest
		}
		if body.CityID == nil {
			return out, "La ville est obligatoire", http.StatusBadRequest
		}
		out.name = strings.TrimSpace(body.Name)
		out.description = strings.TrimSpace(body.Description)
		out.latitude = *body.Latitude
		out.longitude = *body.Longitude
		out.iconURL = strings.TrimSpace(body.IconURL)
		out.modelURL = strings.TrimSpace(body.ModelURL)
		out.cityID = *body.CityID
	}

	if out.name == "" {
		return out, "Le nom est obligatoire", http.StatusBadRequest
	}
	return out, "", 0
}

// bindPOIUpdate reads a partial POI payload: only the fields present in the
// request end up as non-nil pointers, so the repository leaves everything
// else alone. Uploaded files override the matching URL fields.
func (h *POIHandler) bindPOIUpdate(c echo.Context) (repository.POIUpdate, string, int) {
	var upd repository.POIUpdate

	ct := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(ct, echo.MIMEMultipartForm) || strings.HasPrefix(ct, echo.MIMEApplicationForm) {
		if v, ok := formValue(c, "name"); ok {
			v = strings.TrimSpace(v)
			if v == "" {
				return upd, "Le nom est obligatoire", http.StatusBadRequest
			}
			upd.Name = &v
		}
		if v, ok := formValue(c, "description"); ok {
			v = strings.TrimSpace(v)
			upd.Description = &v
		}
		if v, ok := formValue(c, "latitude"); ok {
			lat, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return upd, "La latitude est invalide", http.StatusBadRequest
			}
			upd.Latitude = &lat
		}
		if v, ok := formValue(c, "longitude"); ok {
			lon, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return upd, "La longitude est invalide", http.StatusBadRequest
			}
			upd.Longitude = &lon
		}
		if v, ok := formValue(c, "iconUrl"); ok {
			v = strings.TrimSpace(v)
			upd.IconURL = &v
		}
		if v, ok := formValue(c, "modelUrl"); ok {
			v = strings.TrimSpace(v)
			upd.ModelURL = &v
		}

		if f := formFile(c, "iconFile"); f != nil {
			url, err := h.Uploads.SaveIcon(f)
			if err != nil {
				msg, code := uploadError(c, err)
				return upd, msg, code
			}
			upd.IconURL = &url
		}
		if f := formFile(c, "modelFile"); f != nil {
			url, err := h.Uploads.SaveModel(f)
			if err != nil {
				msg, code := uploadError(c, err)
				return upd, msg, code
			}
			upd.ModelURL = &url
		}
		return upd, "", 0
	}

	var body struct {
		Name        *string  `json:"name"`
		Description *string  `json:"description"`
		Latitude    *float64 `json:"latitude"`
		Longitude   *float64 `json:"longitude"`
		IconURL     *string  `json:"iconUrl"`
		ModelURL    *string  `json:"modelUrl"`
	}
	if err := c.Bind(&body); err != nil {
		return upd, "invalid body", http.StatusBadRequest
	}
	if body.Name != nil {
		v := strings.TrimSpace(*body.Name)
		if v == "" {
			return upd, "Le nom est obligatoire", http.StatusBadRequest
		}
		upd.Name = &v
	}
	if body.Description != nil {
		v := strings.TrimSpace(*body.Description)
		upd.Description = &v
	}
	upd.Latitude = body.Latitude
	upd.Longitude = body.Longitude
	if body.IconURL != nil {
		v := strings.TrimSpace(*body.IconURL)
		upd.IconURL = &v
	}
	if body.ModelURL != nil {
		v := strings.TrimSpace(*body.ModelURL)
		upd.ModelURL = &v
	}
	return upd, "", 0
}

func (h *POIHandler) create(c echo.Context, ctx context.Context, req poiForm) error {
	p := repository.POI{
		Name:        req.name,
		Description: req.description,
		Latitude:    req.latitude,
		Longitude:   req.longitude,
		IconURL:     req.iconURL,
		ModelURL:    req.modelURL,
		CityID:      req.cityID,
	}
	if err := h.POIs.Create(ctx, &p); err != nil {
		c.Logger().Errorf("create poi: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Error creating POI"})
	}

	full, err := h.POIs.GetByID(ctx, p.ID)
	if err != nil {
		c.Logger().Errorf("create poi: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Error creating POI"})
	}

	h.publish(c, "created", &full.POI)
	return c.JSON(http.StatusCreated, newPOIResp(c, full, true))
}

func (h *POIHandler) respondUpdated(c echo.Context, ctx context.Context, id uint64) error {
	full, err := h.POIs.GetByID(ctx, id)
	if err != nil {
		c.Logger().Errorf("update poi: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Error updating POI"})
	}
	h.publish(c, "updated", &full.POI)
	return c.JSON(http.StatusOK, newPOIResp(c, full, true))
}

func (h *POIHandler) publish(c echo.Context, action string, p *repository.POI) {
	_ = queue_publisher.PublishContentChanged(c.Request().Context(), q.ContentChangedEvent{
		Kind:      "poi",
		Action:    action,
		ID:        p.ID,
		CityID:    p.CityID,
		Name:      p.Name,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		ChangedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *POIHandler) publishDeleted(c echo.Context, id uint64) {
	_ = queue_publisher.PublishContentChanged(c.Request().Context(), q.ContentChangedEvent{
		Kind:      "poi",
		Action:    "deleted",
		ID:        id,
		ChangedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func poiList(c echo.Context, pois []*repository.POIWithCity) []poiResp {
	out := make([]poiResp, 0, len(pois))
	for _, p := range pois {
		out = append(out, newPOIResp(c, p, true))
	}
	return out
}

func formFile(c echo.Context, name string) *multipart.FileHeader {
	f, err := c.FormFile(name)
	if err != nil {
		return nil
	}
	return f
}

// uploadError maps a failed upload to a user-facing message and status.
// Payload problems answer 400; anything else is a server-side failure.
func uploadError(c echo.Context, err error) (string, int) {
	switch {
	case errors.Is(err, storage.ErrUnsupportedType):
		return "Type de fichier non supporté", http.StatusBadRequest
	case errors.Is(err, storage.ErrFileTooLarge):
		return "Fichier trop volumineux", http.StatusBadRequest
	default:
		c.Logger().Errorf("save upload: %v", err)
		return "Erreur lors de l'enregistrement du fichier", http.StatusInternalServerError
	}
}
