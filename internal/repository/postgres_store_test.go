package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dineflow/internal/domain"
)

func setupMockStore(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresStore) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresStore(db)
}

func orderColumns() []string {
	meta, _ := domain.EntityOrder.Meta()
	return meta.Columns
}

func TestPostgresStore_Find_BuildsQuery(t *testing.T) {
	db, mock, s := setupMockStore(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "order_number", "status"}).
		AddRow("o1", "ORD-20250101-002", "PENDING").
		AddRow("o2", "ORD-20250101-001", []byte("CONFIRMED"))

	mock.ExpectQuery(regexp.QuoteMeta(`FROM orders WHERE restaurant_id = $1 AND status IN ($2, $3) ORDER BY placed_at DESC LIMIT $4 OFFSET $5`)).
		WithArgs("r1", "PENDING", "CONFIRMED", 20, 20).
		WillReturnRows(rows)

	recs, err := s.Find(context.Background(), domain.EntityOrder, Query{
		Where:   []Cond{Eq("restaurant_id", "r1"), In("status", []string{"PENDING", "CONFIRMED"})},
		OrderBy: []OrderBy{{Column: "placed_at", Desc: true}},
		Limit:   20,
		Offset:  20,
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "o1", recs[0]["id"])
	// []byte values are normalized to strings
	assert.Equal(t, "CONFIRMED", recs[1]["status"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Find_RejectsUnknownColumns(t *testing.T) {
	db, mock, s := setupMockStore(t)
	defer db.Close()

	_, err := s.Find(context.Background(), domain.EntityOrder, Query{Where: []Cond{Eq("1=1; DROP TABLE orders; --", "x")}})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = s.Find(context.Background(), domain.EntityOrder, Query{OrderBy: []OrderBy{{Column: "nope"}}})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = s.Find(context.Background(), domain.Entity(99), Query{})
	assert.ErrorIs(t, err, ErrUnknownEntity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Count_InSelect(t *testing.T) {
	db, mock, s := setupMockStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM order_items WHERE order_id = $1 AND order_id IN (SELECT id FROM orders WHERE restaurant_id = $2)`)).
		WithArgs("o1", "r1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := s.Count(context.Background(), domain.EntityOrderItem, []Cond{
		Eq("order_id", "o1"),
		InSelect("order_id", SubSelect{Entity: domain.EntityOrder, Column: "id", Where: []Cond{Eq("restaurant_id", "r1")}}),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Count_EmptyInAndNulls(t *testing.T) {
	db, mock, s := setupMockStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM orders WHERE FALSE AND table_id IS NULL AND request_id IS NOT NULL`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	n, err := s.Count(context.Background(), domain.EntityOrder, []Cond{
		In("id", []string{}),
		Eq("table_id", nil),
		Ne("request_id", nil),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Insert_ClassifiesUniqueViolation(t *testing.T) {
	db, mock, s := setupMockStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO orders (id, order_number, request_id, restaurant_id) VALUES ($1, $2, $3, $4) RETURNING ` + strings.Join(orderColumns(), ", "))).
		WithArgs("o1", "ORD-20250101-001", "req-1", "r1").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "orders_request_id_key"})

	_, err := s.Insert(context.Background(), domain.EntityOrder, Record{
		"id":            "o1",
		"restaurant_id": "r1",
		"order_number":  "ORD-20250101-001",
		"request_id":    "req-1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUniqueViolation)
	assert.True(t, IsUniqueViolation(err, "orders_request_id_key"))
	assert.False(t, IsUniqueViolation(err, "orders_order_number_key"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClassifiesInvalidValues(t *testing.T) {
	db, mock, s := setupMockStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM restaurant_tables WHERE id = $1`)).
		WithArgs("table-7").
		WillReturnError(&pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "table-7"`})
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO orders (id, request_id) VALUES ($1, $2) RETURNING`)).
		WithArgs("o1", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "22001", Message: "value too long for type character varying(128)"})

	_, err := s.Count(context.Background(), domain.EntityTable, []Cond{Eq("id", "table-7")})
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = s.Insert(context.Background(), domain.EntityOrder, Record{"id": "o1", "request_id": strings.Repeat("x", 200)})
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.False(t, errors.Is(err, ErrUniqueViolation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Upsert(t *testing.T) {
	db, mock, s := setupMockStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO memberships (id, is_active, restaurant_id, role, user_id) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (user_id, restaurant_id) DO UPDATE SET is_active = EXCLUDED.is_active, role = EXCLUDED.role RETURNING`)).
		WithArgs("m1", true, "r1", "STAFF", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "role"}).AddRow("m0", "STAFF"))

	rec, err := s.Upsert(context.Background(), domain.EntityMembership, []string{"user_id", "restaurant_id"}, Record{
		"id":            "m1",
		"user_id":       "u1",
		"restaurant_id": "r1",
		"role":          "STAFF",
		"is_active":     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "m0", rec["id"])

	_, err = s.Upsert(context.Background(), domain.EntityMembership, nil, Record{"id": "m1"})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Update_VersionPredicate(t *testing.T) {
	db, mock, s := setupMockStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE orders SET status = $1, version = $2 WHERE id = $3 AND version = $4 RETURNING`)).
		WithArgs("CONFIRMED", int64(2), "o1", int64(1)).
		WillReturnRows(sqlmock.NewRows(orderColumns()))

	recs, err := s.Update(context.Background(), domain.EntityOrder,
		[]Cond{Eq("id", "o1"), Eq("version", int64(1))},
		Record{"status": "CONFIRMED", "version": int64(2)},
	)
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = s.Update(context.Background(), domain.EntityOrder, nil, Record{"status": "CANCELLED"})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete(t *testing.T) {
	db, mock, s := setupMockStore(t)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM restaurant_tables WHERE restaurant_id = $1 AND is_active = $2`)).
		WithArgs("r1", false).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := s.Delete(context.Background(), domain.EntityTable, []Cond{Eq("restaurant_id", "r1"), Eq("is_active", false)})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	_, err = s.Delete(context.Background(), domain.EntityTable, nil)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InTx_CommitAndJoin(t *testing.T) {
	db, mock, s := setupMockStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM orders WHERE id = $1`)).
		WithArgs("o1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM orders WHERE id = $1`)).
		WithArgs("o2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.InTx(context.Background(), func(ctx context.Context, tx Store) error {
		if _, err := tx.Delete(ctx, domain.EntityOrder, []Cond{Eq("id", "o1")}); err != nil {
			return err
		}
		// nested InTx joins the outer transaction
		return tx.(TxStore).InTx(ctx, func(ctx context.Context, inner Store) error {
			_, err := inner.Delete(ctx, domain.EntityOrder, []Cond{Eq("id", "o2")})
			return err
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InTx_RollbackOnError(t *testing.T) {
	db, mock, s := setupMockStore(t)
	defer db.Close()

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(ctx context.Context, tx Store) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InTx_SerializationOnCommit(t *testing.T) {
	db, mock, s := setupMockStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(&pq.Error{Code: "40001", Message: "could not serialize access"})

	err := s.InTx(context.Background(), func(ctx context.Context, tx Store) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrSerialization)
	assert.NoError(t, mock.ExpectationsWereMet())
}
