package repository

import (
	"context"
	"errors"
	"fmt"

	"dineflow/internal/domain"
)

// Record one row, column -> value
type Record map[string]any

// Clone shallow copy
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Op comparison operator of a Cond
type Op string

const (
	OpEq       Op = "="
	OpNe       Op = "<>"
	OpGte      Op = ">="
	OpLt       Op = "<"
	OpIn       Op = "IN"
	OpIsNull   Op = "IS NULL"
	OpInSelect Op = "IN SELECT"
)

// Cond single predicate; conditions in a slice are ANDed
type Cond struct {
	Column string
	Op     Op
	Value  any
}

// SubSelect value of an OpInSelect condition:
// Column IN (SELECT <SubSelect.Column> FROM <Entity> WHERE <Where>)
type SubSelect struct {
	Entity domain.Entity
	Column string
	Where  []Cond
}

func Eq(col string, v any) Cond  { return Cond{Column: col, Op: OpEq, Value: v} }
func Ne(col string, v any) Cond  { return Cond{Column: col, Op: OpNe, Value: v} }
func Gte(col string, v any) Cond { return Cond{Column: col, Op: OpGte, Value: v} }
func Lt(col string, v any) Cond  { return Cond{Column: col, Op: OpLt, Value: v} }
func IsNull(col string) Cond     { return Cond{Column: col, Op: OpIsNull} }

// In values must be a []string or []any
func In(col string, values any) Cond { return Cond{Column: col, Op: OpIn, Value: values} }

func InSelect(col string, sub SubSelect) Cond {
	return Cond{Column: col, Op: OpInSelect, Value: sub}
}

// OrderBy sort key
type OrderBy struct {
	Column string
	Desc   bool
}

// Query read shape
type Query struct {
	Where   []Cond
	OrderBy []OrderBy
	Limit   int
	Offset  int
}

// Store record-level data access, one implementation per backend.
type Store interface {
	Find(ctx context.Context, e domain.Entity, q Query) ([]Record, error)
	Count(ctx context.Context, e domain.Entity, where []Cond) (int, error)
	Insert(ctx context.Context, e domain.Entity, rec Record) (Record, error)
	// Upsert inserts rec or, on conflict over the conflict columns, updates the
	// remaining columns of the existing row.
	Upsert(ctx context.Context, e domain.Entity, conflict []string, rec Record) (Record, error)
	Update(ctx context.Context, e domain.Entity, where []Cond, set Record) ([]Record, error)
	Delete(ctx context.Context, e domain.Entity, where []Cond) (int64, error)
}

// TxStore Store that can open a transaction. fn receives a Store bound to the
// transaction; returning an error rolls back. Calling InTx on the tx-bound store
// joins the outer transaction.
type TxStore interface {
	Store
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

var (
	ErrUniqueViolation = errors.New("unique constraint violation")
	ErrSerialization   = errors.New("serialization failure")
	ErrInvalidValue    = errors.New("value not valid for column")
	ErrUnknownColumn   = errors.New("unknown column")
	ErrUnknownEntity   = errors.New("unknown entity")
)

// UniqueViolationError carries the violated constraint name
type UniqueViolationError struct {
	Constraint string
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique constraint violation: %s", e.Constraint)
}

func (e *UniqueViolationError) Is(target error) bool {
	return target == ErrUniqueViolation
}

// IsUniqueViolation reports whether err is a violation of constraint
func IsUniqueViolation(err error, constraint string) bool {
	var uv *UniqueViolationError
	if errors.As(err, &uv) {
		return uv.Constraint == constraint
	}
	return false
}

func metaOf(e domain.Entity) (domain.EntityMeta, error) {
	meta, ok := e.Meta()
	if !ok {
		return domain.EntityMeta{}, fmt.Errorf("%w: %d", ErrUnknownEntity, int(e))
	}
	return meta, nil
}

func checkColumns(e domain.Entity, cols ...string) error {
	for _, c := range cols {
		if !e.HasColumn(c) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, e.Table(), c)
		}
	}
	return nil
}

func checkConds(e domain.Entity, where []Cond) error {
	for _, c := range where {
		if err := checkColumns(e, c.Column); err != nil {
			return err
		}
		if c.Op == OpInSelect {
			sub, ok := c.Value.(SubSelect)
			if !ok {
				return fmt.Errorf("IN SELECT on %s needs a SubSelect value", c.Column)
			}
			if err := checkColumns(sub.Entity, sub.Column); err != nil {
				return err
			}
			if err := checkConds(sub.Entity, sub.Where); err != nil {
				return err
			}
		}
	}
	return nil
}
