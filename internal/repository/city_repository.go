// This file defines the City model and repository methods for CRUD and
// ownership-scoped lookups. A City is a geofenced area (center + radius)
// that POIs are nested under; it is owned by at most one admin. The
// ownership predicate is part of every scoped query rather than a
// post-fetch check, so an admin probing a foreign city id gets the same
// answer as for an id that does not exist.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// City represents a city row. AdminID is NULL while the city is unassigned.
type City struct {
	ID        uint64
	Name      string
	Latitude  float64
	Longitude float64
	Radius    float64
	AdminID   sql.NullInt64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CityWithAdmin joins the owning admin's public identity onto a city for
// the SUPER_ADMIN listing.
type CityWithAdmin struct {
	City
	AdminEmail sql.NullString
}

// CityRef is the minimal city shape embedded in admin listings.
type CityRef struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// CityRepo encapsulates all database queries related to cities.
type CityRepo struct {
	db *sql.DB
}

// NewCityRepo constructs a CityRepo with the provided DB handle.
func NewCityRepo(db *sql.DB) *CityRepo {
	return &CityRepo{db: db}
}

const cityCols = "id, name, latitude, longitude, radius, admin_id, created_at, updated_at"

func scanCity(scan func(dest ...interface{}) error) (City, error) {
	var c City
	err := scan(&c.ID, &c.Name, &c.Latitude, &c.Longitude, &c.Radius, &c.AdminID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// Create inserts a new city, optionally bound to an owner. On success the
// struct is re-read so the caller gets DB-assigned id and timestamps.
func (r *CityRepo) Create(ctx context.Context, c *City) error {
	var admin interface{}
	if c.AdminID.Valid {
		admin = c.AdminID.Int64
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO cities (name, latitude, longitude, radius, admin_id) VALUES (?,?,?,?,?)",
		c.Name, c.Latitude, c.Longitude, c.Radius, admin)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := scanCity(r.db.QueryRowContext(ctx,
		"SELECT "+cityCols+" FROM cities WHERE id=?", id).Scan)
	if err != nil {
		return err
	}
	*c = created
	return nil
}

// GetByID fetches a city regardless of owner.
func (r *CityRepo) GetByID(ctx context.Context, id uint64) (*City, error) {
	c, err := scanCity(r.db.QueryRowContext(ctx,
		"SELECT "+cityCols+" FROM cities WHERE id=?", id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCityNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetByIDAndOwner fetches a city only if it belongs to the specified admin.
// A city that exists under another owner is reported as ErrCityNotFound.
func (r *CityRepo) GetByIDAndOwner(ctx context.Context, id, adminID uint64) (*City, error) {
	c, err := scanCity(r.db.QueryRowContext(ctx,
		"SELECT "+cityCols+" FROM cities WHERE id=? AND admin_id=?", id, adminID).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCityNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListAll returns every city with its owning admin's email, ordered by id.
func (r *CityRepo) ListAll(ctx context.Context) ([]*CityWithAdmin, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.latitude, c.longitude, c.radius, c.admin_id, c.created_at, c.updated_at, u.email
		FROM cities c
		LEFT JOIN users u ON u.id = c.admin_id
		ORDER BY c.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*CityWithAdmin
	for rows.Next() {
		c := new(CityWithAdmin)
		if err := rows.Scan(&c.ID, &c.Name, &c.Latitude, &c.Longitude, &c.Radius,
			&c.AdminID, &c.CreatedAt, &c.UpdatedAt, &c.AdminEmail); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListByOwner returns the cities assigned to one admin, ordered by id.
func (r *CityRepo) ListByOwner(ctx context.Context, adminID uint64) ([]*City, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+cityCols+" FROM cities WHERE admin_id=? ORDER BY id", adminID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*City
	for rows.Next() {
		var c City
		if err := rows.Scan(&c.ID, &c.Name, &c.Latitude, &c.Longitude, &c.Radius,
			&c.AdminID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// RefsGroupedByAdmin returns {id,name} city refs keyed by owning admin id,
// used to embed owned cities in admin listings with a single query.
func (r *CityRepo) RefsGroupedByAdmin(ctx context.Context) (map[uint64][]CityRef, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT admin_id, id, name FROM cities WHERE admin_id IS NOT NULL ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uint64][]CityRef)
	for rows.Next() {
		var adminID uint64
		var ref CityRef
		if err := rows.Scan(&adminID, &ref.ID, &ref.Name); err != nil {
			return nil, err
		}
		out[adminID] = append(out[adminID], ref)
	}
	return out, rows.Err()
}

// CountByIDs reports how many of the given ids exist, so callers can reject
// assignment requests that name unknown cities.
func (r *CityRepo) CountByIDs(ctx context.Context, ids []uint64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	var n int
	err := r.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM cities WHERE id IN (%s)", placeholders), args...).Scan(&n)
	return n, err
}

// Update rewrites the non-ownership fields of a city.
func (r *CityRepo) Update(ctx context.Context, id uint64, name string, lat, lon, radius float64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE cities SET name=?, latitude=?, longitude=?, radius=?, updated_at=CURRENT_TIMESTAMP
		WHERE id=?`, name, lat, lon, radius, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCityNotFound
	}
	return nil
}

// UpdateByIDAndOwner is the scoped variant of Update: the ownership
// predicate rides in the WHERE clause, so a non-owner updating a foreign
// city affects zero rows and learns nothing.
func (r *CityRepo) UpdateByIDAndOwner(ctx context.Context, id, adminID uint64, name string, lat, lon, radius float64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE cities SET name=?, latitude=?, longitude=?, radius=?, updated_at=CURRENT_TIMESTAMP
		WHERE id=? AND admin_id=?`, name, lat, lon, radius, id, adminID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCityNotFound
	}
	return nil
}

// Assign binds a city to an admin.
func (r *CityRepo) Assign(ctx context.Context, cityID, adminID uint64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE cities SET admin_id=?, updated_at=CURRENT_TIMESTAMP WHERE id=?", adminID, cityID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCityNotFound
	}
	return nil
}

// Unassign detaches a city from its admin.
func (r *CityRepo) Unassign(ctx context.Context, cityID uint64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE cities SET admin_id=NULL, updated_at=CURRENT_TIMESTAMP WHERE id=?", cityID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCityNotFound
	}
	return nil
}

// ReplaceOwnerCities reassigns an admin's city set in one transaction:
// detach everything it owns, then attach the new set.
func (r *CityRepo) ReplaceOwnerCities(ctx context.Context, adminID uint64, cityIDs []uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	if _, err = tx.ExecContext(ctx, "UPDATE cities SET admin_id=NULL WHERE admin_id=?", adminID); err != nil {
		return err
	}
	for _, cityID := range cityIDs {
		if _, err = tx.ExecContext(ctx, "UPDATE cities SET admin_id=? WHERE id=?", adminID, cityID); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a city, but only when no POI references it. The existence
// check, the POI count and the delete share a transaction so a POI created
// concurrently cannot slip under the delete.
func (r *CityRepo) Delete(ctx context.Context, id uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	var exists int
	if err = tx.QueryRowContext(ctx, "SELECT 1 FROM cities WHERE id=? FOR UPDATE", id).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrCityNotFound
		}
		return err
	}
	var pois int
	if err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM pois WHERE city_id=?", id).Scan(&pois); err != nil {
		return err
	}
	if pois > 0 {
		err = ErrCityHasPOIs
		return err
	}
	_, err = tx.ExecContext(ctx, "DELETE FROM cities WHERE id=?", id)
	return err
}
