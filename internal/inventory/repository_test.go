package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_FindOrphaned(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)
		id1, id2 := uuid.New(), uuid.New()

		mock.ExpectQuery("SELECT r.order_id").
			WithArgs(now).
			WillReturnRows(sqlmock.NewRows([]string{"order_id"}).AddRow(id1).AddRow(id2))

		ids, err := repo.FindOrphaned(ctx, now)

		assert.NoError(t, err)
		assert.Equal(t, []uuid.UUID{id1, id2}, ids)
	})

	t.Run("No orphans", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)

		mock.ExpectQuery("SELECT r.order_id").
			WillReturnRows(sqlmock.NewRows([]string{"order_id"}))

		ids, err := repo.FindOrphaned(ctx, now)

		assert.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("Error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)

		mock.ExpectQuery("SELECT r.order_id").
			WillReturnError(errors.New("db error"))

		_, err = repo.FindOrphaned(ctx, now)
		assert.Error(t, err)
	})
}

func TestRepository_Availability(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)

		mock.ExpectQuery("SELECT quantity - reserved_quantity FROM products").
			WithArgs("p1").
			WillReturnRows(sqlmock.NewRows([]string{"available"}).AddRow(7))

		available, err := repo.Availability(ctx, "p1")

		assert.NoError(t, err)
		assert.Equal(t, 7, available)
	})

	t.Run("Error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewRepository(db)

		mock.ExpectQuery("SELECT quantity - reserved_quantity FROM products").
			WillReturnError(errors.New("db error"))

		_, err = repo.Availability(ctx, "p1")
		assert.Error(t, err)
	})
}
