package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/cartstore/pkg/database"
)

func setupKV(t *testing.T) (*KV, pgxmock.PgxPoolIface) {
	t.Helper()
	mock := database.NewMockPool(t)
	return NewKV(mock), mock
}

func TestKV_Get_Found(t *testing.T) {
	kv, mock := setupKV(t)

	mock.ExpectQuery(regexp.QuoteMeta(getQuery)).
		WithArgs("cart_u1").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow(`[{"id":"p1"}]`))

	v, found, err := kv.Get(context.Background(), "cart_u1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[{"id":"p1"}]`, v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKV_Get_NoRows(t *testing.T) {
	kv, mock := setupKV(t)

	mock.ExpectQuery(regexp.QuoteMeta(getQuery)).
		WithArgs("cart_u1").
		WillReturnError(pgx.ErrNoRows)

	v, found, err := kv.Get(context.Background(), "cart_u1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKV_Get_DBError(t *testing.T) {
	kv, mock := setupKV(t)

	mock.ExpectQuery(regexp.QuoteMeta(getQuery)).
		WithArgs("cart_u1").
		WillReturnError(errors.New("connection reset"))

	_, _, err := kv.Get(context.Background(), "cart_u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "select snapshot cart_u1")
}

func TestKV_Set_Upserts(t *testing.T) {
	kv, mock := setupKV(t)

	mock.ExpectExec("INSERT INTO cart_snapshots").
		WithArgs("cart_u1", `[]`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, kv.Set(context.Background(), "cart_u1", `[]`))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKV_Set_Error(t *testing.T) {
	kv, mock := setupKV(t)

	mock.ExpectExec("INSERT INTO cart_snapshots").
		WithArgs("cart_u1", `[]`).
		WillReturnError(errors.New("disk full"))

	err := kv.Set(context.Background(), "cart_u1", `[]`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert snapshot")
}

func TestKV_Remove(t *testing.T) {
	kv, mock := setupKV(t)

	mock.ExpectExec(regexp.QuoteMeta(deleteQuery)).
		WithArgs("cart_u1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, kv.Remove(context.Background(), "cart_u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
