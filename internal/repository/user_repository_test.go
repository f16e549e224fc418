package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserRepo(t *testing.T) (*UserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewUserRepo(db), mock
}

func userRows(id uint64, email, role string, version int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "firstname", "lastname", "email", "password_hash", "role",
		"profile_picture_url", "token_version", "created_at", "updated_at",
	}).AddRow(id, "Jean", "Dupont", email, "$2a$10$hash", role, nil, version, now, now)
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE email=? LIMIT 1")).
		WithArgs("taken@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	_, err := repo.Create(context.Background(), "Jean", "Dupont", "taken@example.com", "hash", "ADMIN", "")
	assert.ErrorIs(t, err, ErrEmailExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreateSuccess(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE email=? LIMIT 1")).
		WithArgs("new@example.com").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("Jean", "Dupont", "new@example.com", "hash", "ADMIN", nil).
		WillReturnResult(sqlmock.NewResult(7, 1))

	id, err := repo.Create(context.Background(), "Jean", "Dupont", "new@example.com", "hash", "ADMIN", "")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserGetByEmailNotFound(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectQuery("SELECT .+ FROM users WHERE email=").
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserGetByEmail(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectQuery("SELECT .+ FROM users WHERE email=").
		WithArgs("a@b.c").
		WillReturnRows(userRows(3, "a@b.c", "SUPER_ADMIN", 2))

	u, err := repo.GetByEmail(context.Background(), "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), u.ID)
	assert.Equal(t, "SUPER_ADMIN", u.Role)
	assert.Equal(t, 2, u.TokenVersion)
}

func TestUserUpdatePasswordBumpsVersion(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE users SET password_hash=?, token_version=token_version+1, updated_at=CURRENT_TIMESTAMP WHERE id=?")).
		WithArgs("newhash", uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdatePassword(context.Background(), 5, "newhash"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserUpdatePasswordMissingUser(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectExec("UPDATE users SET password_hash").
		WithArgs("newhash", uint64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdatePassword(context.Background(), 99, "newhash")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserUpdateDuplicateEmail(t *testing.T) {
	repo, mock := newUserRepo(t)

	email := "taken@example.com"
	mock.ExpectExec("UPDATE users SET email=").
		WithArgs(email, uint64(4)).
		WillReturnError(&mysqlDupErr{})

	err := repo.Update(context.Background(), 4, UserUpdate{Email: &email})
	assert.ErrorIs(t, err, ErrEmailExists)
}

// mysqlDupErr mimics the driver's duplicate-key error text.
type mysqlDupErr struct{}

func (*mysqlDupErr) Error() string {
	return "Error 1062 (23000): Duplicate entry 'taken@example.com' for key 'users.uq_users_email'"
}

func TestUserDeleteDetachesCities(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE cities SET admin_id=NULL WHERE admin_id=?")).
		WithArgs(uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id=?")).
		WithArgs(uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserDeleteMissingRollsBack(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE cities SET admin_id=NULL").
		WithArgs(uint64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM users").
		WithArgs(uint64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), 99)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStats(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"total", "super", "regular", "with"}).
			AddRow(10, 2, 8, 6))

	s, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, AdminStats{Total: 10, SuperAdmins: 2, RegularAdmins: 8, AdminsWithCities: 6, AdminsWithoutCities: 4}, s)
}
