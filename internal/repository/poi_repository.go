// This file defines the POI model and its repository. A POI belongs to
// exactly one city, set at creation and immutable afterwards; ownership for
// admin-scoped operations is derived transitively by joining through the
// city's admin_id inside the query itself.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// POI represents a point of interest inside a city's geofence. IconURL and
// ModelURL are stored as relative upload paths or external URLs; handlers
// absolutize them in responses.
type POI struct {
	ID          uint64
	Name        string
	Description string
	Latitude    float64
	Longitude   float64
	IconURL     string
	ModelURL    string
	CityID      uint64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// POIUpdate carries the optional fields of a POI update. Nil pointers leave
// the column untouched, so a payload that omits a field never clears it.
type POIUpdate struct {
	Name        *string
	Description *string
	Latitude    *float64
	Longitude   *float64
	IconURL     *string
	ModelURL    *string
}

func (u POIUpdate) assignments(prefix string) ([]string, []interface{}) {
	sets := []string{}
	args := []interface{}{}
	addStr := func(col string, v *string) {
		if v != nil {
			sets = append(sets, prefix+col+"=?")
			args = append(args, *v)
		}
	}
	addFloat := func(col string, v *float64) {
		if v != nil {
			sets = append(sets, prefix+col+"=?")
			args = append(args, *v)
		}
	}
	addStr("name", u.Name)
	addStr("description", u.Description)
	addFloat("latitude", u.Latitude)
	addFloat("longitude", u.Longitude)
	addStr("icon_url", u.IconURL)
	addStr("model_url", u.ModelURL)
	return sets, args
}

// POIWithCity carries the owning city alongside the POI for list and detail
// responses.
type POIWithCity struct {
	POI
	City City
}

// POIRepo encapsulates all database queries related to POIs.
type POIRepo struct {
	db *sql.DB
}

// NewPOIRepo constructs a POIRepo with the provided DB handle.
func NewPOIRepo(db *sql.DB) *POIRepo {
	return &POIRepo{db: db}
}

const poiJoinedCols = `p.id, p.name, p.description, p.latitude, p.longitude, p.icon_url, p.model_url, p.city_id, p.created_at, p.updated_at,
	c.id, c.name, c.latitude, c.longitude, c.radius, c.admin_id, c.created_at, c.updated_at`

func scanPOIWithCity(scan func(dest ...interface{}) error) (*POIWithCity, error) {
	var p POIWithCity
	err := scan(&p.ID, &p.Name, &p.Description, &p.Latitude, &p.Longitude,
		&p.IconURL, &p.ModelURL, &p.CityID, &p.CreatedAt, &p.UpdatedAt,
		&p.City.ID, &p.City.Name, &p.City.Latitude, &p.City.Longitude,
		&p.City.Radius, &p.City.AdminID, &p.City.CreatedAt, &p.City.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *POIRepo) queryJoined(ctx context.Context, q string, args ...interface{}) ([]*POIWithCity, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*POIWithCity
	for rows.Next() {
		p, err := scanPOIWithCity(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Create inserts a POI under an existing city and re-reads the row so the
// caller gets the DB-assigned id and timestamps.
func (r *POIRepo) Create(ctx context.Context, p *POI) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO pois (name, description, latitude, longitude, icon_url, model_url, city_id) VALUES (?,?,?,?,?,?,?)",
		p.Name, p.Description, p.Latitude, p.Longitude, p.IconURL, p.ModelURL, p.CityID)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	var created POI
	err = r.db.QueryRowContext(ctx,
		"SELECT id, name, description, latitude, longitude, icon_url, model_url, city_id, created_at, updated_at FROM pois WHERE id=?", id).
		Scan(&created.ID, &created.Name, &created.Description, &created.Latitude, &created.Longitude,
			&created.IconURL, &created.ModelURL, &created.CityID, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		return err
	}
	*p = created
	return nil
}

// GetByID fetches a POI with its city regardless of ownership.
func (r *POIRepo) GetByID(ctx context.Context, id uint64) (*POIWithCity, error) {
	p, err := scanPOIWithCity(r.db.QueryRowContext(ctx,
		"SELECT "+poiJoinedCols+" FROM pois p JOIN cities c ON c.id = p.city_id WHERE p.id=?", id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPOINotFound
	}
	return p, err
}

// GetByIDForAdmin fetches a POI only when the caller owns its city. A POI
// under someone else's city is indistinguishable from a missing one.
func (r *POIRepo) GetByIDForAdmin(ctx context.Context, id, adminID uint64) (*POIWithCity, error) {
	p, err := scanPOIWithCity(r.db.QueryRowContext(ctx,
		"SELECT "+poiJoinedCols+" FROM pois p JOIN cities c ON c.id = p.city_id WHERE p.id=? AND c.admin_id=?",
		id, adminID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPOINotFound
	}
	return p, err
}

// ListAll returns every POI with its city, ordered by id.
func (r *POIRepo) ListAll(ctx context.Context) ([]*POIWithCity, error) {
	return r.queryJoined(ctx,
		"SELECT "+poiJoinedCols+" FROM pois p JOIN cities c ON c.id = p.city_id ORDER BY p.id")
}

// ListByCity returns the POIs of one city. An empty result is valid; the
// handler checks city existence separately.
func (r *POIRepo) ListByCity(ctx context.Context, cityID uint64) ([]*POIWithCity, error) {
	return r.queryJoined(ctx,
		"SELECT "+poiJoinedCols+" FROM pois p JOIN cities c ON c.id = p.city_id WHERE p.city_id=? ORDER BY p.id", cityID)
}

// ListByAdmin returns the POIs inside cities owned by the given admin.
func (r *POIRepo) ListByAdmin(ctx context.Context, adminID uint64) ([]*POIWithCity, error) {
	return r.queryJoined(ctx,
		"SELECT "+poiJoinedCols+" FROM pois p JOIN cities c ON c.id = p.city_id WHERE c.admin_id=? ORDER BY p.id", adminID)
}

// Update applies the non-nil fields of upd. The city binding never changes
// after creation. A payload that supplies nothing still verifies the POI
// exists.
func (r *POIRepo) Update(ctx context.Context, id uint64, upd POIUpdate) error {
	sets, args := upd.assignments("")
	if len(sets) == 0 {
		var one int
		err := r.db.QueryRowContext(ctx, "SELECT 1 FROM pois WHERE id=? LIMIT 1", id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPOINotFound
		}
		return err
	}
	sets = append(sets, "updated_at=CURRENT_TIMESTAMP")
	args = append(args, id)

	q := fmt.Sprintf("UPDATE pois SET %s WHERE id=?", strings.Join(sets, ", "))
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPOINotFound
	}
	return nil
}

// UpdateForAdmin is the scoped variant of Update: the city-ownership join
// lives in the UPDATE itself, so a non-owner affects zero rows.
func (r *POIRepo) UpdateForAdmin(ctx context.Context, id, adminID uint64, upd POIUpdate) error {
	sets, args := upd.assignments("p.")
	if len(sets) == 0 {
		var one int
		err := r.db.QueryRowContext(ctx,
			"SELECT 1 FROM pois p JOIN cities c ON c.id = p.city_id WHERE p.id=? AND c.admin_id=? LIMIT 1",
			id, adminID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPOINotFound
		}
		return err
	}
	sets = append(sets, "p.updated_at=CURRENT_TIMESTAMP")
	args = append(args, id, adminID)

	q := fmt.Sprintf("UPDATE pois p JOIN cities c ON c.id = p.city_id SET %s WHERE p.id=? AND c.admin_id=?",
		strings.Join(sets, ", "))
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPOINotFound
	}
	return nil
}

// Delete removes a POI by id.
func (r *POIRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM pois WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPOINotFound
	}
	return nil
}

// DeleteForAdmin removes a POI only when the caller owns its city.
func (r *POIRepo) DeleteForAdmin(ctx context.Context, id, adminID uint64) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE p FROM pois p JOIN cities c ON c.id = p.city_id
		WHERE p.id=? AND c.admin_id=?`, id, adminID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPOINotFound
	}
	return nil
}
