package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"dineflow/internal/domain"

	"github.com/lib/pq"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresStore Store over database/sql + lib/pq
type PostgresStore struct {
	db   *sql.DB
	q    querier
	inTx bool
}

// NewPostgresStore creates the store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

var _ TxStore = (*PostgresStore)(nil)

// InTx runs fn in a REPEATABLE READ transaction. A concurrent committed write to a
// row this transaction also writes surfaces as ErrSerialization.
func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &PostgresStore{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", classify(err))
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, e domain.Entity, q Query) ([]Record, error) {
	meta, err := metaOf(e)
	if err != nil {
		return nil, err
	}
	if err := checkConds(e, q.Where); err != nil {
		return nil, err
	}

	args := []any{}
	query := `SELECT ` + strings.Join(meta.Columns, ", ") + ` FROM ` + meta.Table
	where, err := buildWhere(q.Where, &args)
	if err != nil {
		return nil, err
	}
	query += where

	if len(q.OrderBy) > 0 {
		parts := make([]string, 0, len(q.OrderBy))
		for _, ob := range q.OrderBy {
			if err := checkColumns(e, ob.Column); err != nil {
				return nil, err
			}
			dir := "ASC"
			if ob.Desc {
				dir = "DESC"
			}
			parts = append(parts, ob.Column+" "+dir)
		}
		query += ` ORDER BY ` + strings.Join(parts, ", ")
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", meta.Table, classify(err))
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PostgresStore) Count(ctx context.Context, e domain.Entity, where []Cond) (int, error) {
	meta, err := metaOf(e)
	if err != nil {
		return 0, err
	}
	if err := checkConds(e, where); err != nil {
		return 0, err
	}

	args := []any{}
	clause, err := buildWhere(where, &args)
	if err != nil {
		return 0, err
	}
	var total int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+meta.Table+clause, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", meta.Table, classify(err))
	}
	return total, nil
}

func (s *PostgresStore) Insert(ctx context.Context, e domain.Entity, rec Record) (Record, error) {
	meta, err := metaOf(e)
	if err != nil {
		return nil, err
	}
	cols := sortedKeys(rec)
	if len(cols) == 0 {
		return nil, fmt.Errorf("insert into %s: empty record", meta.Table)
	}
	if err := checkColumns(e, cols...); err != nil {
		return nil, err
	}

	args := make([]any, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	for _, c := range cols {
		args = append(args, sqlValue(rec[c]))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	query := `INSERT INTO ` + meta.Table + ` (` + strings.Join(cols, ", ") + `) VALUES (` +
		strings.Join(placeholders, ", ") + `) RETURNING ` + strings.Join(meta.Columns, ", ")

	return s.queryOne(ctx, meta.Table, query, args)
}

func (s *PostgresStore) Upsert(ctx context.Context, e domain.Entity, conflict []string, rec Record) (Record, error) {
	meta, err := metaOf(e)
	if err != nil {
		return nil, err
	}
	if len(conflict) == 0 {
		return nil, fmt.Errorf("upsert into %s: conflict columns are required", meta.Table)
	}
	cols := sortedKeys(rec)
	if err := checkColumns(e, append(cols, conflict...)...); err != nil {
		return nil, err
	}

	args := make([]any, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	sets := []string{}
	for _, c := range cols {
		args = append(args, sqlValue(rec[c]))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		if c == "id" || c == "created_at" || contains(conflict, c) {
			continue
		}
		sets = append(sets, c+" = EXCLUDED."+c)
	}
	action := `DO NOTHING`
	if len(sets) > 0 {
		action = `DO UPDATE SET ` + strings.Join(sets, ", ")
	}
	query := `INSERT INTO ` + meta.Table + ` (` + strings.Join(cols, ", ") + `) VALUES (` +
		strings.Join(placeholders, ", ") + `) ON CONFLICT (` + strings.Join(conflict, ", ") + `) ` +
		action + ` RETURNING ` + strings.Join(meta.Columns, ", ")

	return s.queryOne(ctx, meta.Table, query, args)
}

func (s *PostgresStore) Update(ctx context.Context, e domain.Entity, where []Cond, set Record) ([]Record, error) {
	meta, err := metaOf(e)
	if err != nil {
		return nil, err
	}
	if len(where) == 0 {
		return nil, fmt.Errorf("update %s: refusing to update without a predicate", meta.Table)
	}
	cols := sortedKeys(set)
	if len(cols) == 0 {
		return nil, fmt.Errorf("update %s: nothing to set", meta.Table)
	}
	if err := checkColumns(e, cols...); err != nil {
		return nil, err
	}
	if err := checkConds(e, where); err != nil {
		return nil, err
	}

	args := []any{}
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		args = append(args, sqlValue(set[c]))
		sets = append(sets, fmt.Sprintf("%s = $%d", c, len(args)))
	}
	clause, err := buildWhere(where, &args)
	if err != nil {
		return nil, err
	}
	query := `UPDATE ` + meta.Table + ` SET ` + strings.Join(sets, ", ") + clause +
		` RETURNING ` + strings.Join(meta.Columns, ", ")

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", meta.Table, classify(err))
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PostgresStore) Delete(ctx context.Context, e domain.Entity, where []Cond) (int64, error) {
	meta, err := metaOf(e)
	if err != nil {
		return 0, err
	}
	if len(where) == 0 {
		return 0, fmt.Errorf("delete from %s: refusing to delete without a predicate", meta.Table)
	}
	if err := checkConds(e, where); err != nil {
		return 0, err
	}

	args := []any{}
	clause, err := buildWhere(where, &args)
	if err != nil {
		return 0, err
	}
	res, err := s.q.ExecContext(ctx, `DELETE FROM `+meta.Table+clause, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", meta.Table, classify(err))
	}
	return res.RowsAffected()
}

func (s *PostgresStore) queryOne(ctx context.Context, table, query string, args []any) (Record, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", table, classify(err))
	}
	defer rows.Close()
	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// buildWhere renders conds as " WHERE ...", appending parameters to args.
// Column names are validated against entity metadata before they get here.
func buildWhere(conds []Cond, args *[]any) (string, error) {
	if len(conds) == 0 {
		return "", nil
	}
	parts, err := buildConds(conds, args)
	if err != nil {
		return "", err
	}
	return ` WHERE ` + strings.Join(parts, " AND "), nil
}

func buildConds(conds []Cond, args *[]any) ([]string, error) {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		switch c.Op {
		case OpEq, OpNe, OpGte, OpLt:
			if c.Value == nil {
				if c.Op == OpEq {
					parts = append(parts, c.Column+" IS NULL")
					continue
				}
				if c.Op == OpNe {
					parts = append(parts, c.Column+" IS NOT NULL")
					continue
				}
				return nil, fmt.Errorf("%s %s NULL is not supported", c.Column, c.Op)
			}
			*args = append(*args, sqlValue(c.Value))
			parts = append(parts, fmt.Sprintf("%s %s $%d", c.Column, c.Op, len(*args)))
		case OpIsNull:
			parts = append(parts, c.Column+" IS NULL")
		case OpIn:
			values := listValues(c.Value)
			if len(values) == 0 {
				parts = append(parts, "FALSE")
				continue
			}
			ph := make([]string, 0, len(values))
			for _, v := range values {
				*args = append(*args, sqlValue(v))
				ph = append(ph, fmt.Sprintf("$%d", len(*args)))
			}
			parts = append(parts, c.Column+" IN ("+strings.Join(ph, ", ")+")")
		case OpInSelect:
			sub := c.Value.(SubSelect)
			inner, err := buildConds(sub.Where, args)
			if err != nil {
				return nil, err
			}
			q := "SELECT " + sub.Column + " FROM " + sub.Entity.Table()
			if len(inner) > 0 {
				q += " WHERE " + strings.Join(inner, " AND ")
			}
			parts = append(parts, c.Column+" IN ("+q+")")
		default:
			return nil, fmt.Errorf("unsupported operator %q", c.Op)
		}
	}
	return parts, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []Record{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec := make(Record, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				rec[c] = string(b)
				continue
			}
			rec[c] = values[i]
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// classify maps PostgreSQL error codes to store errors.
func classify(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "23505":
		return &UniqueViolationError{Constraint: pqErr.Constraint}
	case "40001", "40P01":
		return fmt.Errorf("%w: %s", ErrSerialization, pqErr.Message)
	case "22P02", "22001":
		// malformed uuid, value too long for its column
		return fmt.Errorf("%w: %s", ErrInvalidValue, pqErr.Message)
	}
	return err
}

func sortedKeys(rec Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
