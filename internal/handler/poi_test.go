package handler

import (
	"bytes"
	"database/sql"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoatlas/poi-admin-api/internal/repository"
	"github.com/geoatlas/poi-admin-api/internal/storage"
)

func newPOIHandler(t *testing.T) (*POIHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	uploads, err := storage.New(t.TempDir())
	require.NoError(t, err)
	return NewPOIHandler(repository.NewPOIRepo(db), repository.NewCityRepo(db), uploads), mock
}

func handlerPOIRows(id, cityID uint64, name string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"p.id", "p.name", "p.description", "p.latitude", "p.longitude",
		"p.icon_url", "p.model_url", "p.city_id", "p.created_at", "p.updated_at",
		"c.id", "c.name", "c.latitude", "c.longitude", "c.radius", "c.admin_id",
		"c.created_at", "c.updated_at",
	}).AddRow(id, name, "desc", 48.86, 2.34, "/uploads/icons/a.png", "", cityID, now, now,
		cityID, "Paris", 48.85, 2.35, 1200.0, int64(3), now, now)
}

func TestPOIGetByIDAbsolutizesURLs(t *testing.T) {
	h, mock := newPOIHandler(t)
	mock.ExpectQuery("SELECT .+ FROM pois p JOIN cities c").
		WithArgs(uint64(5)).
		WillReturnRows(handlerPOIRows(5, 2, "Tour Eiffel"))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "api.example.com"
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/pois/:id")
	c.SetParamNames("id")
	c.SetParamValues("5")

	require.NoError(t, h.GetByID(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http://api.example.com/uploads/icons/a.png")
	assert.Contains(t, rec.Body.String(), `"city"`)
}

func TestPOIGetByIDNotFound(t *testing.T) {
	h, mock := newPOIHandler(t)
	mock.ExpectQuery("SELECT .+ FROM pois p JOIN cities c").
		WithArgs(uint64(99)).
		WillReturnError(sql.ErrNoRows)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/pois/:id")
	c.SetParamNames("id")
	c.SetParamValues("99")

	require.NoError(t, h.GetByID(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "POI not found")
}

func TestPOIListByCityMissingCity(t *testing.T) {
	h, mock := newPOIHandler(t)
	mock.ExpectQuery("SELECT .+ FROM cities WHERE id=").
		WithArgs(uint64(9)).
		WillReturnError(sql.ErrNoRows)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/pois/city/:cityId")
	c.SetParamNames("cityId")
	c.SetParamValues("9")

	require.NoError(t, h.ListByCity(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "City not found")
}

func TestPOIListByCityEmptyIsValid(t *testing.T) {
	h, mock := newPOIHandler(t)
	mock.ExpectQuery("SELECT .+ FROM cities WHERE id=").
		WithArgs(uint64(2)).
		WillReturnRows(handlerCityRows(2, "Paris", int64(3)))
	mock.ExpectQuery("SELECT .+ FROM pois p JOIN cities c .+ WHERE p.city_id=").
		WithArgs(uint64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"p.id"}))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/pois/city/:cityId")
	c.SetParamNames("cityId")
	c.SetParamValues("2")

	require.NoError(t, h.ListByCity(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestPOICreateUnknownCity(t *testing.T) {
	h, mock := newPOIHandler(t)
	mock.ExpectQuery("SELECT .+ FROM cities WHERE id=").
		WithArgs(uint64(42)).
		WillReturnError(sql.ErrNoRows)

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/api/pois/create",
		`{"name":"X","latitude":1,"longitude":2,"cityId":42}`)

	require.NoError(t, h.Create(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "La ville spécifiée n'existe pas")
}

func TestPOICreateMineForeignCity(t *testing.T) {
	h, mock := newPOIHandler(t)
	mock.ExpectQuery("SELECT .+ FROM cities WHERE id=. AND admin_id=.").
		WithArgs(uint64(42), uint64(7)).
		WillReturnError(sql.ErrNoRows)

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/api/pois/admin/create",
		`{"name":"X","latitude":1,"longitude":2,"cityId":42}`)
	c := e.NewContext(req, rec)
	c.Set("user_id", uint64(7))

	require.NoError(t, h.CreateMine(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Vous n'avez pas l'autorisation de créer un POI dans cette ville")
}

func TestPOIUpdateMineForeignPOI(t *testing.T) {
	h, mock := newPOIHandler(t)
	mock.ExpectExec("UPDATE pois p JOIN cities c").
		WithArgs("X", 1.0, 2.0, uint64(5), uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	e := echo.New()
	req, rec := jsonRequest(http.MethodPut, "/", `{"name":"X","latitude":1,"longitude":2}`)
	c := e.NewContext(req, rec)
	c.SetPath("/api/pois/admin/:id")
	c.SetParamNames("id")
	c.SetParamValues("5")
	c.Set("user_id", uint64(7))

	require.NoError(t, h.UpdateMine(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Vous n'avez pas l'autorisation de modifier ce POI")
}

func TestPOIDeleteMineForeignPOI(t *testing.T) {
	h, mock := newPOIHandler(t)
	mock.ExpectExec("DELETE p FROM pois p JOIN cities c").
		WithArgs(uint64(5), uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/pois/admin/:id")
	c.SetParamNames("id")
	c.SetParamValues("5")
	c.Set("user_id", uint64(7))

	require.NoError(t, h.DeleteMine(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Vous n'avez pas l'autorisation de supprimer ce POI")
}

func TestPOIUpdateOmittedURLsSurvive(t *testing.T) {
	h, mock := newPOIHandler(t)
	// No iconUrl/modelUrl/description in the payload: none of those columns
	// may appear in the UPDATE, so the stored values stay put.
	mock.ExpectExec(`UPDATE pois SET name=\?, latitude=\?, longitude=\?, updated_at=CURRENT_TIMESTAMP WHERE id=\?`).
		WithArgs("Tour Eiffel", 48.858, 2.294, uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .+ FROM pois p JOIN cities c").
		WithArgs(uint64(7)).
		WillReturnRows(handlerPOIRows(7, 2, "Tour Eiffel"))

	e := echo.New()
	req, rec := jsonRequest(http.MethodPut, "/",
		`{"name":"Tour Eiffel","latitude":48.858,"longitude":2.294}`)
	c := e.NewContext(req, rec)
	c.SetPath("/api/pois/:id")
	c.SetParamNames("id")
	c.SetParamValues("7")

	require.NoError(t, h.Update(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/uploads/icons/a.png")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPOIUpdateUploadIOErrorIsServerError(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	dir := t.TempDir()
	uploads, err := storage.New(dir)
	require.NoError(t, err)
	h := NewPOIHandler(repository.NewPOIRepo(db), repository.NewCityRepo(db), uploads)

	// A valid icon that cannot be written to disk.
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "icons")))

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("name", "X"))
	fw, err := w.CreateFormFile("iconFile", "pin.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	e := echo.New()
	req := httptest.NewRequest(http.MethodPut, "/", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/pois/:id")
	c.SetParamNames("id")
	c.SetParamValues("5")

	require.NoError(t, h.Update(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Erreur lors de l'enregistrement du fichier")
}

func TestPOIDeleteInvalidID(t *testing.T) {
	h, _ := newPOIHandler(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/pois/:id")
	c.SetParamNames("id")
	c.SetParamValues("abc")

	require.NoError(t, h.Delete(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ID POI invalide")
}
