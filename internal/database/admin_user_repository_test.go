package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/festpass/registration-backend/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminUserRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("GetByEmail found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAdminUserRepository(db)
		id := uuid.New()
		now := time.Now()

		mock.ExpectQuery(`SELECT (.+) FROM admin_users WHERE email = \$1`).
			WithArgs("ops@fest.in").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "email", "password_hash", "full_name", "is_active", "last_login_at", "created_at", "updated_at",
			}).AddRow(id.String(), "ops@fest.in", "$2a$10$hash", "Ops", true, nil, now, now))

		admin, err := repo.GetByEmail(ctx, "ops@fest.in")
		require.NoError(t, err)
		require.NotNil(t, admin)
		assert.Equal(t, id, admin.ID)
		assert.True(t, admin.IsActive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GetByEmail missing", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAdminUserRepository(db)

		mock.ExpectQuery(`SELECT (.+) FROM admin_users`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		admin, err := repo.GetByEmail(ctx, "ghost@fest.in")
		assert.NoError(t, err)
		assert.Nil(t, admin)
	})

	t.Run("Create", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAdminUserRepository(db)
		admin := &models.AdminUser{Email: "ops@fest.in", PasswordHash: "hash", FullName: "Ops", IsActive: true}

		mock.ExpectExec(`INSERT INTO admin_users`).
			WithArgs(sqlmock.AnyArg(), "ops@fest.in", "hash", "Ops", true, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(ctx, admin))
		assert.NotEqual(t, uuid.Nil, admin.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Create duplicate email", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAdminUserRepository(db)

		mock.ExpectExec(`INSERT INTO admin_users`).
			WillReturnError(&pq.Error{Code: "23505"})

		err := repo.Create(ctx, &models.AdminUser{Email: "ops@fest.in", PasswordHash: "hash"})
		assert.ErrorIs(t, err, ErrAdminExists)
	})
}
