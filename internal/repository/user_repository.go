package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// User mirrors the 'users' table. TokenVersion is embedded in refresh
// tokens; bumping it on a password change invalidates every refresh token
// issued before the change.
type User struct {
	ID                uint64
	Firstname         string
	Lastname          string
	Email             string
	PasswordHash      string
	Role              string
	ProfilePictureURL sql.NullString
	TokenVersion      int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// UserUpdate carries the optional fields of an admin update. Nil pointers
// leave the column untouched.
type UserUpdate struct {
	Firstname         *string
	Lastname          *string
	Email             *string
	Role              *string
	PasswordHash      *string
	ProfilePictureURL *string
}

// AdminStats aggregates counters for the dashboard.
type AdminStats struct {
	Total               int `json:"total"`
	SuperAdmins         int `json:"superAdmins"`
	RegularAdmins       int `json:"regularAdmins"`
	AdminsWithCities    int `json:"adminsWithCities"`
	AdminsWithoutCities int `json:"adminsWithoutCities"`
}

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userCols = "id, firstname, lastname, email, password_hash, role, profile_picture_url, token_version, created_at, updated_at"

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Firstname, &u.Lastname, &u.Email, &u.PasswordHash,
		&u.Role, &u.ProfilePictureURL, &u.TokenVersion, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// Create inserts a user and returns its ID. Uniqueness is enforced by an
// existence check first, with the unique index as the backstop for the race
// between the check and the insert.
func (r *UserRepo) Create(ctx context.Context, firstname, lastname, email, passwordHash, role, pictureURL string) (uint64, error) {
	var exists int
	err := r.DB.QueryRowContext(ctx, "SELECT 1 FROM users WHERE email=? LIMIT 1", email).Scan(&exists)
	if err == nil {
		return 0, ErrEmailExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	var pic interface{}
	if pictureURL != "" {
		pic = pictureURL
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (firstname, lastname, email, password_hash, role, profile_picture_url) VALUES (?,?,?,?,?,?)",
		firstname, lastname, email, passwordHash, role, pic)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by exact email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE email=? LIMIT 1", email))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE id=? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

// List returns all users, newest first.
func (r *UserRepo) List(ctx context.Context) ([]User, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+userCols+" FROM users ORDER BY id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Firstname, &u.Lastname, &u.Email, &u.PasswordHash,
			&u.Role, &u.ProfilePictureURL, &u.TokenVersion, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Update applies the non-nil fields of upd. An email change collides with
// an existing account via the unique index, reported as ErrEmailExists.
func (r *UserRepo) Update(ctx context.Context, id uint64, upd UserUpdate) error {
	sets := []string{}
	args := []interface{}{}
	add := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+"=?")
			args = append(args, *v)
		}
	}
	add("firstname", upd.Firstname)
	add("lastname", upd.Lastname)
	add("email", upd.Email)
	add("role", upd.Role)
	add("password_hash", upd.PasswordHash)
	add("profile_picture_url", upd.ProfilePictureURL)
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at=CURRENT_TIMESTAMP")
	args = append(args, id)

	q := fmt.Sprintf("UPDATE users SET %s WHERE id=?", strings.Join(sets, ", "))
	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrEmailExists
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdatePassword stores a new hash and bumps token_version in the same
// statement so outstanding refresh tokens die with the old password.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, passwordHash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, token_version=token_version+1, updated_at=CURRENT_TIMESTAMP WHERE id=?",
		passwordHash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateProfilePicture stores the new relative URL.
func (r *UserRepo) UpdateProfilePicture(ctx context.Context, id uint64, url string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET profile_picture_url=?, updated_at=CURRENT_TIMESTAMP WHERE id=?", url, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes a user after detaching the cities it owns. Both steps run
// in one transaction: a crash between them must not leave the admin deleted
// while its cities still point at the dead id. Cities are detached, never
// deleted, when their owner goes away.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
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

	if _, err = tx.ExecContext(ctx, "UPDATE cities SET admin_id=NULL WHERE admin_id=?", id); err != nil {
		return err
	}
	var res sql.Result
	if res, err = tx.ExecContext(ctx, "DELETE FROM users WHERE id=?", id); err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrUserNotFound
		return err
	}
	return nil
}

// Stats computes the admin dashboard counters.
func (r *UserRepo) Stats(ctx context.Context) (AdminStats, error) {
	var s AdminStats
	err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(role = 'SUPER_ADMIN'), 0),
		       COALESCE(SUM(role = 'ADMIN'), 0),
		       COALESCE(SUM(EXISTS (SELECT 1 FROM cities c WHERE c.admin_id = users.id)), 0)
		FROM users`).
		Scan(&s.Total, &s.SuperAdmins, &s.RegularAdmins, &s.AdminsWithCities)
	if err != nil {
		return AdminStats{}, err
	}
	s.AdminsWithoutCities = s.Total - s.AdminsWithCities
	return s, nil
}
