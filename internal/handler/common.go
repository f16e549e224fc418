package handler // handler defines http handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/geoatlas/poi-admin-api/internal/repository"
)

// getUserID extracts the user_id placed in context by the JWT middleware.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// parseID parses a numeric path parameter.
func parseID(c echo.Context, name string) (uint64, error) {
	return strconv.ParseUint(c.Param(name), 10, 64)
}

// toAbsoluteURL turns a stored relative asset URL into an absolute one
// using the scheme and host of the current request. External URLs pass
// through untouched.
func toAbsoluteURL(c echo.Context, url string) string {
	if url == "" {
		return ""
	}
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	origin := c.Scheme() + "://" + c.Request().Host
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	return origin + url
}

// ----- response DTOs shared by several handlers -----

type adminPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
}

type cityResp struct {
	ID        uint64     `json:"id"`
	Name      string     `json:"name"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Radius    float64    `json:"radius"`
	AdminID   *uint64    `json:"adminId"`
	Admin     *adminPart `json:"admin,omitempty"`
	POIs      []poiResp  `json:"pois,omitempty"`
}

type poiResp struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	IconURL     string    `json:"iconUrl"`
	ModelURL    string    `json:"modelUrl"`
	CityID      uint64    `json:"cityId"`
	City        *cityResp `json:"city,omitempty"`
}

type userResp struct {
	ID                uint64               `json:"id"`
	Firstname         string               `json:"firstname"`
	Lastname          string               `json:"lastname"`
	Email             string               `json:"email"`
	Role              string               `json:"role"`
	ProfilePictureURL string               `json:"profilePictureUrl,omitempty"`
	Cities            []repository.CityRef `json:"cities,omitempty"`
}

func newCityResp(city *repository.City) cityResp {
	out := cityResp{
		ID:        city.ID,
		Name:      city.Name,
		Latitude:  city.Latitude,
		Longitude: city.Longitude,
		Radius:    city.Radius,
	}
	if city.AdminID.Valid {
		id := uint64(city.AdminID.Int64)
		out.AdminID = &id
	}
	return out
}

func newPOIResp(c echo.Context, p *repository.POIWithCity, withCity bool) poiResp {
	out := poiResp{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
		IconURL:     toAbsoluteURL(c, p.IconURL),
		ModelURL:    toAbsoluteURL(c, p.ModelURL),
		CityID:      p.CityID,
	}
	if withCity {
		city := newCityResp(&p.City)
		out.City = &city
	}
	return out
}

func newUserResp(c echo.Context, u *repository.User) userResp {
	out := userResp{
		ID:        u.ID,
		Firstname: u.Firstname,
		Lastname:  u.Lastname,
		Email:     u.Email,
		Role:      u.Role,
	}
	if u.ProfilePictureURL.Valid {
		out.ProfilePictureURL = toAbsoluteURL(c, u.ProfilePictureURL.String)
	}
	return out
}
