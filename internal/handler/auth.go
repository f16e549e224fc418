package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/geoatlas/poi-admin-api/internal/config"
	"github.com/geoatlas/poi-admin-api/internal/ratelimit"
	"github.com/geoatlas/poi-admin-api/internal/repository"
	"github.com/geoatlas/poi-admin-api/internal/storage"
	"github.com/geoatlas/poi-admin-api/internal/utils"
)

const refreshCookieName = "refreshToken"

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Users    *repository.UserRepo
	Uploads  *storage.Store
	Attempts ratelimit.AttemptStore
}

func NewAuthHandler(cfg config.Config, users *repository.UserRepo, uploads *storage.Store, attempts ratelimit.AttemptStore) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: users, Uploads: uploads, Attempts: attempts}
}

// ----- DTOs -----

type registerReq struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordReq struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Register creates a new administrator account. Whatever the client sends,
// the account starts as a plain ADMIN; only an existing SUPER_ADMIN can
// promote it afterwards through the admins API.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Firstname = strings.TrimSpace(req.Firstname)
	req.Lastname = strings.TrimSpace(req.Lastname)
	req.Email = strings.TrimSpace(req.Email)
	if req.Firstname == "" || req.Lastname == "" || req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Veillez remplir tout les champs"})
	}
	if len(req.Password) < 6 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Le mot de passe doit contenir au moins 6 caractères"})
	}

	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de l'inscription"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	id, err := h.Users.Create(ctx, req.Firstname, req.Lastname, req.Email, hash, "ADMIN", "")
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "Email déjà utilisé"})
		}
		c.Logger().Errorf("register: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de l'inscription"})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"id":        id,
		"firstname": req.Firstname,
		"lastname":  req.Lastname,
		"email":     req.Email,
		"role":      "ADMIN",
	})
}

// Login verifies credentials and opens a session: access token in the body,
// refresh token in an HTTP-only cookie. Unknown email and wrong password
// produce the exact same response so the endpoint cannot be used to
// enumerate accounts.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "L'email et mot e passe sont obligatoires"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Identifiants invalides"})
		}
		c.Logger().Errorf("login: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la connexion"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Identifiants invalides"})
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Email, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la connexion"})
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.JWTRefreshSecret, u.ID, u.Email, u.Role, u.TokenVersion, h.Cfg.RefreshTTLDays)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la connexion"})
	}

	// The caller proved who they are; give the full attempt budget back.
	_ = h.Attempts.Reset(ctx, ratelimit.ClientIP(c.Request()))

	h.setRefreshCookie(c, refresh)
	return c.JSON(http.StatusOK, echo.Map{
		"accessToken": access.Token,
		"user":        newUserResp(c, &u),
	})
}

// Logout clears the refresh cookie. Sessions are stateless, so there is
// nothing server-side to tear down; the access token simply ages out.
func (h *AuthHandler) Logout(c echo.Context) error {
	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"message": "Déconnexion réussie"})
}

// Refresh exchanges a valid refresh cookie for a new access token. The
// refresh token itself is not rotated. A token minted before the user's
// last password change carries a stale version and is rejected.
func (h *AuthHandler) Refresh(c echo.Context) error {
	cookie, err := c.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "No refresh token provided"})
	}

	claims, err := utils.VerifyRefreshToken(h.Cfg.JWTRefreshSecret, cookie.Value)
	if err != nil {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "Invalid refresh token"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "Invalid token"})
		}
		c.Logger().Errorf("refresh: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue"})
	}
	if claims.TokenVersion != u.TokenVersion {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "Invalid refresh token"})
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Email, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"accessToken": access.Token,
		"user":        newUserResp(c, &u),
	})
}

// ChangePassword verifies the current password, rejects a no-op change and
// persists the new hash. The token version bump happens in the same UPDATE,
// so every refresh token issued before the change stops working at once.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Utilisateur non authentifié"})
	}
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Le mot de passe actuel et le nouveau mot de passe sont obligatoires"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Utilisateur non trouvé"})
		}
		c.Logger().Errorf("change password: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la modification du mot de passe"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.CurrentPassword) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Mot de passe actuel incorrect"})
	}
	if utils.VerifyPassword(u.PasswordHash, req.NewPassword) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Le nouveau mot de passe doit être différent de l'actuel"})
	}

	hash, err := utils.HashPassword(req.NewPassword, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la modification du mot de passe"})
	}
	if err := h.Users.UpdatePassword(ctx, userID, hash); err != nil {
		c.Logger().Errorf("change password: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la modification du mot de passe"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Mot de passe modifié avec succès"})
}

// UpdateProfilePicture replaces the caller's avatar: store the new file,
// delete the previous one, persist the relative URL.
func (h *AuthHandler) UpdateProfilePicture(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Utilisateur non authentifié"})
	}
	file, err := c.FormFile("profilePicture")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Aucun fichier fourni"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Utilisateur non trouvé"})
		}
		c.Logger().Errorf("profile picture: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la mise à jour de la photo de profil"})
	}

	url, err := h.Uploads.SaveProfilePicture(file)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedType) || errors.Is(err, storage.ErrFileTooLarge) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Fichier invalide"})
		}
		c.Logger().Errorf("profile picture: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la mise à jour de la photo de profil"})
	}
	if u.ProfilePictureURL.Valid {
		_ = h.Uploads.Remove(u.ProfilePictureURL.String)
	}
	if err := h.Users.UpdateProfilePicture(ctx, userID, url); err != nil {
		c.Logger().Errorf("profile picture: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Une erreur est survenue lors de la mise à jour de la photo de profil"})
	}

	u.ProfilePictureURL.Valid = true
	u.ProfilePictureURL.String = url
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Photo de profil mise à jour avec succès",
		"user":    newUserResp(c, &u),
	})
}

func (h *AuthHandler) setRefreshCookie(c echo.Context, refresh utils.RefreshToken) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    refresh.Token,
		Path:     "/",
		Expires:  refresh.Exp,
		MaxAge:   h.Cfg.RefreshTTLDays * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   h.Cfg.IsProduction(),
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Cfg.IsProduction(),
		SameSite: http.SameSiteStrictMode,
	})
}
