package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/geoatlas/poi-admin-api/internal/config"
	"github.com/geoatlas/poi-admin-api/internal/repository"
	"github.com/geoatlas/poi-admin-api/internal/storage"
	"github.com/geoatlas/poi-admin-api/internal/utils"
)

// AdminHandler serves the SUPER_ADMIN-only administrator management API.
type AdminHandler struct {
	Cfg     config.Config
	Users   *repository.UserRepo
	Cities  *repository.CityRepo
	Uploads *storage.Store
}

func NewAdminHandler(cfg config.Config, users *repository.UserRepo, cities *repository.CityRepo, uploads *storage.Store) *AdminHandler {
	return &AdminHandler{Cfg: cfg, Users: users, Cities: cities, Uploads: uploads}
}

// List returns every administrator with its owned cities, newest first.
func (h *AdminHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	users, err := h.Users.List(ctx)
	if err != nil {
		c.Logger().Errorf("list admins: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la récupération des administrateurs"})
	}
	refs, err := h.Cities.RefsGroupedByAdmin(ctx)
	if err != nil {
		c.Logger().Errorf("list admins: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la récupération des administrateurs"})
	}

	out := make([]userResp, 0, len(users))
	for i := range users {
		resp := newUserResp(c, &users[i])
		resp.Cities = refs[users[i].ID]
		out = append(out, resp)
	}
	return c.JSON(http.StatusOK, out)
}

// Stats returns the dashboard counters.
func (h *AdminHandler) Stats(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	stats, err := h.Users.Stats(ctx)
	if err != nil {
		c.Logger().Errorf("admin stats: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la récupération des statistiques"})
	}
	return c.JSON(http.StatusOK, stats)
}

// GetByID returns one administrator with the full geometry of its cities.
func (h *AdminHandler) GetByID(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ID administrateur invalide"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Administrateur introuvable"})
		}
		c.Logger().Errorf("get admin: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la récupération de l'administrateur"})
	}
	cities, err := h.Cities.ListByOwner(ctx, id)
	if err != nil {
		c.Logger().Errorf("get admin: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la récupération de l'administrateur"})
	}

	type adminDetail struct {
		userResp
		Cities []cityResp `json:"cities"`
	}
	detail := adminDetail{userResp: newUserResp(c, &u), Cities: make([]cityResp, 0, len(cities))}
	detail.userResp.Cities = nil
	for _, city := range cities {
		detail.Cities = append(detail.Cities, newCityResp(city))
	}
	return c.JSON(http.StatusOK, detail)
}

// Create adds an administrator, optionally with a profile picture and an
// initial city set, from a multipart form.
func (h *AdminHandler) Create(c echo.Context) error {
	firstname := strings.TrimSpace(c.FormValue("firstname"))
	lastname := strings.TrimSpace(c.FormValue("lastname"))
	email := strings.TrimSpace(c.FormValue("email"))
	password := c.FormValue("password")
	role := c.FormValue("role")
	if role == "" {
		role = "ADMIN"
	}
	if firstname == "" || lastname == "" || email == "" || password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Tous les champs obligatoires doivent être remplis"})
	}
	if len(password) < 6 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Le mot de passe doit contenir au moins 6 caractères"})
	}

	cityIDs, err := parseCityIDs(c.FormValue("cityIds"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Une ou plusieurs villes sélectionnées sont invalides"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if len(cityIDs) > 0 {
		n, err := h.Cities.CountByIDs(ctx, cityIDs)
		if err != nil {
			c.Logger().Errorf("create admin: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la création de l'administrateur"})
		}
		if n != len(cityIDs) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Une ou plusieurs villes sélectionnées sont invalides"})
		}
	}

	var pictureURL string
	if f := formFile(c, "profilePicture"); f != nil {
		pictureURL, err = h.Uploads.SaveProfilePicture(f)
		if err != nil {
			if errors.Is(err, storage.ErrUnsupportedType) || errors.Is(err, storage.ErrFileTooLarge) {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "Fichier invalide"})
			}
			c.Logger().Errorf("create admin: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la création de l'administrateur"})
		}
	}

	hash, err := utils.HashPassword(password, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la création de l'administrateur"})
	}

	id, err := h.Users.Create(ctx, firstname, lastname, email, hash, role, pictureURL)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "Un administrateur avec cet email existe déjà"})
		}
		c.Logger().Errorf("create admin: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la création de l'administrateur"})
	}

	if len(cityIDs) > 0 {
		if err := h.Cities.ReplaceOwnerCities(ctx, id, cityIDs); err != nil {
			c.Logger().Errorf("create admin: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la création de l'administrateur"})
		}
	}
	return h.respondWithAdmin(c, ctx, id, http.StatusCreated)
}

// Update applies a partial update: only the fields present in the form
// change. cityIds, when present, replaces the admin's whole city set.
func (h *AdminHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ID administrateur invalide"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Users.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Administrateur introuvable"})
		}
		c.Logger().Errorf("update admin: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la mise à jour de l'administrateur"})
	}

	var upd repository.UserUpdate
	set := func(dst **string, field string) {
		if v := strings.TrimSpace(c.FormValue(field)); v != "" {
			*dst = &v
		}
	}
	set(&upd.Firstname, "firstname")
	set(&upd.Lastname, "lastname")
	set(&upd.Email, "email")
	set(&upd.Role, "role")

	if password := c.FormValue("password"); password != "" {
		if len(password) < 6 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Le mot de passe doit contenir au moins 6 caractères"})
		}
		hash, err := utils.HashPassword(password, h.Cfg.BcryptCost)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la mise à jour de l'administrateur"})
		}
		upd.PasswordHash = &hash
	}

	if f := formFile(c, "profilePicture"); f != nil {
		url, err := h.Uploads.SaveProfilePicture(f)
		if err != nil {
			if errors.Is(err, storage.ErrUnsupportedType) || errors.Is(err, storage.ErrFileTooLarge) {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "Fichier invalide"})
			}
			c.Logger().Errorf("update admin: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la mise à jour de l'administrateur"})
		}
		upd.ProfilePictureURL = &url
	}

	// cityIds: absent field means leave assignments alone; an empty value
	// means detach everything.
	var cityIDs []uint64
	replaceCities := false
	if raw, ok := formValue(c, "cityIds"); ok {
		replaceCities = true
		cityIDs, err = parseCityIDs(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Une ou plusieurs villes sélectionnées sont invalides"})
		}
		if len(cityIDs) > 0 {
			n, err := h.Cities.CountByIDs(ctx, cityIDs)
			if err != nil {
				c.Logger().Errorf("update admin: %v", err)
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la mise à jour de l'administrateur"})
			}
			if n != len(cityIDs) {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "Une ou plusieurs villes sélectionnées sont invalides"})
			}
		}
	}

	if err := h.Users.Update(ctx, id, upd); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return c.JSON(http.StatusConflict, echo.Map{"error": "Un administrateur avec cet email existe déjà"})
		case errors.Is(err, repository.ErrUserNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Administrateur introuvable"})
		default:
			c.Logger().Errorf("update admin: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la mise à jour de l'administrateur"})
		}
	}
	if replaceCities {
		if err := h.Cities.ReplaceOwnerCities(ctx, id, cityIDs); err != nil {
			c.Logger().Errorf("update admin: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la mise à jour de l'administrateur"})
		}
	}
	return h.respondWithAdmin(c, ctx, id, http.StatusOK)
}

// Delete removes an administrator. Its cities are detached, never deleted;
// both steps run in one transaction inside the repository.
func (h *AdminHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ID administrateur invalide"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Administrateur introuvable"})
		}
		c.Logger().Errorf("delete admin: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la suppression de l'administrateur"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Administrateur supprimé avec succès"})
}

func (h *AdminHandler) respondWithAdmin(c echo.Context, ctx context.Context, id uint64, status int) error {
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		c.Logger().Errorf("load admin %d: %v", id, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue"})
	}
	refs, err := h.Cities.RefsGroupedByAdmin(ctx)
	if err != nil {
		c.Logger().Errorf("load admin %d: %v", id, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue"})
	}
	resp := newUserResp(c, &u)
	resp.Cities = refs[id]
	return c.JSON(status, resp)
}

// parseCityIDs accepts a JSON array ("[1,2]") or a comma-separated list
// ("1,2"); an empty string is a valid empty set.
func parseCityIDs(raw string) ([]uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "[") {
		var ids []uint64
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return nil, err
		}
		return ids, nil
	}
	var ids []uint64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// formValue reports presence as well as value, so handlers can tell an
// omitted field from an empty one.
func formValue(c echo.Context, name string) (string, bool) {
	form, err := c.FormParams()
	if err != nil {
		return "", false
	}
	vs, ok := form[name]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}
