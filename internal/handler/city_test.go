package handler

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoatlas/poi-admin-api/internal/repository"
)

func newCityHandler(t *testing.T) (*CityHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewCityHandler(repository.NewCityRepo(db), repository.NewPOIRepo(db)), mock
}

func handlerCityRows(id uint64, name string, adminID interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "name", "latitude", "longitude", "radius", "admin_id", "created_at", "updated_at",
	}).AddRow(id, name, 48.85, 2.35, 1200.0, adminID, now, now)
}

func TestCityCreateMissingFields(t *testing.T) {
	h, _ := newCityHandler(t)
	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/api/cities/create", `{"name":"Paris"}`)

	require.NoError(t, h.Create(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCityCreateRejectsNonPositiveRadius(t *testing.T) {
	h, _ := newCityHandler(t)
	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/api/cities/create",
		`{"name":"Paris","latitude":48.85,"longitude":2.35,"radius":0}`)

	require.NoError(t, h.Create(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "rayon")
}

func TestCityListMineEmpty(t *testing.T) {
	h, mock := newCityHandler(t)
	// an empty result set answers 404, not an empty list
	mock.ExpectQuery("SELECT .+ FROM cities WHERE admin_id=").
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "latitude", "longitude", "radius", "admin_id", "created_at", "updated_at",
		}))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/cities/admin", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", uint64(7))

	require.NoError(t, h.ListMine(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "No cities found for this admin")
}

func TestCityListMine(t *testing.T) {
	h, mock := newCityHandler(t)
	mock.ExpectQuery("SELECT .+ FROM cities WHERE admin_id=").
		WithArgs(uint64(7)).
		WillReturnRows(handlerCityRows(3, "Paris", int64(7)))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/cities/admin", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", uint64(7))

	require.NoError(t, h.ListMine(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Paris"`)
}

func TestCityUpdateMineForeignCity(t *testing.T) {
	h, mock := newCityHandler(t)
	mock.ExpectExec("UPDATE cities SET name=").
		WithArgs("Paris", 48.85, 2.35, 1200.0, uint64(3), uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	e := echo.New()
	req, rec := jsonRequest(http.MethodPut, "/",
		`{"name":"Paris","latitude":48.85,"longitude":2.35,"radius":1200}`)
	c := e.NewContext(req, rec)
	c.SetPath("/api/cities/admin/:id")
	c.SetParamNames("id")
	c.SetParamValues("3")
	c.Set("user_id", uint64(7))

	require.NoError(t, h.UpdateMine(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Vous n'avez pas l'autorisation de modifier cette ville")
}

func TestCityDeleteWithPOIs(t *testing.T) {
	h, mock := newCityHandler(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM cities WHERE id=? FOR UPDATE")).
		WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM pois WHERE city_id=?")).
		WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/cities/:id")
	c.SetParamNames("id")
	c.SetParamValues("3")

	require.NoError(t, h.Delete(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCityDeleteNotFound(t *testing.T) {
	h, mock := newCityHandler(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM cities WHERE id=? FOR UPDATE")).
		WithArgs(uint64(99)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/cities/:id")
	c.SetParamNames("id")
	c.SetParamValues("99")

	require.NoError(t, h.Delete(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCityAssignRequiresAdminID(t *testing.T) {
	h, _ := newCityHandler(t)
	e := echo.New()
	req, rec := jsonRequest(http.MethodPut, "/", `{}`)
	c := e.NewContext(req, rec)
	c.SetPath("/api/cities/:id/assign")
	c.SetParamNames("id")
	c.SetParamValues("3")

	require.NoError(t, h.Assign(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "City ID and Admin ID are required")
}
