package repository_test

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	repository "github.com/ripvault/backend/internal/repository/postgres"
	pkgerrors "github.com/ripvault/backend/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/ripvault/backend/internal/models"
)

func TestPostgresUserRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresUserRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		user := &models.User{
			Username:     "collector",
			Email:        "c@example.com",
			PasswordHash: "hash",
		}
		createdAt := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users (username, email, password_hash, balance)`)).
			WithArgs(user.Username, user.Email, user.PasswordHash).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int32(1), createdAt))

		err := repo.Create(ctx, user)
		assert.NoError(t, err)
		assert.Equal(t, int32(1), user.ID)
		assert.Equal(t, int64(0), user.Balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DuplicateUsername", func(t *testing.T) {
		user := &models.User{
			Username:     "collector",
			Email:        "c@example.com",
			PasswordHash: "hash",
		}
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users (username, email, password_hash, balance)`)).
			WithArgs(user.Username, user.Email, user.PasswordHash).
			WillReturnError(&pq.Error{Code: "23505"})

		err := repo.Create(ctx, user)
		assert.ErrorIs(t, err, pkgerrors.ErrUsernameExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MissingFields", func(t *testing.T) {
		err := repo.Create(ctx, &models.User{Username: ""})
		assert.Error(t, err)
	})
}

func TestPostgresUserRepository_GetByUsername(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresUserRepository(db)
	ctx := context.Background()

	query := regexp.QuoteMeta(`SELECT id, username, email, password_hash, balance, created_at FROM users WHERE username = $1`)

	t.Run("Success", func(t *testing.T) {
		createdAt := time.Now()
		mock.ExpectQuery(query).
			WithArgs("collector").
			WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "balance", "created_at"}).
				AddRow(int32(1), "collector", "c@example.com", "hash", int64(500), createdAt))

		user, err := repo.GetByUsername(ctx, "collector")
		assert.NoError(t, err)
		assert.Equal(t, int32(1), user.ID)
		assert.Equal(t, int64(500), user.Balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UserNotFound", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		user, err := repo.GetByUsername(ctx, "ghost")
		assert.Nil(t, user)
		assert.ErrorIs(t, err, pkgerrors.ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresUserRepository_GetBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresUserRepository(db)
	ctx := context.Background()

	query := regexp.QuoteMeta(`SELECT balance FROM users WHERE id = $1`)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(int32(1)).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(750)))

		balance, err := repo.GetBalance(ctx, 1)
		assert.NoError(t, err)
		assert.Equal(t, int64(750), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UserNotFound", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(int32(42)).
			WillReturnError(sql.ErrNoRows)

		balance, err := repo.GetBalance(ctx, 42)
		assert.Zero(t, balance)
		assert.ErrorIs(t, err, pkgerrors.ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DatabaseError", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(int32(1)).
			WillReturnError(fmt.Errorf("database error"))

		_, err := repo.GetBalance(ctx, 1)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get balance")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
