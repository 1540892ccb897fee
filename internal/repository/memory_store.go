package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dineflow/internal/domain"
)

// MemoryStore in-process Store used when the DB is disabled (dev) and by tests.
// Transactions are serialized: InTx holds the store lock for its whole duration and
// works on a copy of the tables that replaces the originals on success.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[domain.Entity][]Record
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: map[domain.Entity][]Record{},
		now:    time.Now,
	}
}

var _ TxStore = (*MemoryStore)(nil)

type memTx struct {
	tables map[domain.Entity][]Record
	now    func() time.Time
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{tables: cloneTables(s.tables), now: s.now}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.tables = tx.tables
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, e domain.Entity, q Query) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{tables: s.tables, now: s.now}).Find(ctx, e, q)
}

func (s *MemoryStore) Count(ctx context.Context, e domain.Entity, where []Cond) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{tables: s.tables, now: s.now}).Count(ctx, e, where)
}

func (s *MemoryStore) Insert(ctx context.Context, e domain.Entity, rec Record) (Record, error) {
	var out Record
	err := s.InTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		out, err = tx.Insert(ctx, e, rec)
		return err
	})
	return out, err
}

func (s *MemoryStore) Upsert(ctx context.Context, e domain.Entity, conflict []string, rec Record) (Record, error) {
	var out Record
	err := s.InTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		out, err = tx.Upsert(ctx, e, conflict, rec)
		return err
	})
	return out, err
}

func (s *MemoryStore) Update(ctx context.Context, e domain.Entity, where []Cond, set Record) ([]Record, error) {
	var out []Record
	err := s.InTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		out, err = tx.Update(ctx, e, where, set)
		return err
	})
	return out, err
}

func (s *MemoryStore) Delete(ctx context.Context, e domain.Entity, where []Cond) (int64, error) {
	var n int64
	err := s.InTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		n, err = tx.Delete(ctx, e, where)
		return err
	})
	return n, err
}

func (t *memTx) Find(_ context.Context, e domain.Entity, q Query) ([]Record, error) {
	if _, err := metaOf(e); err != nil {
		return nil, err
	}
	if err := checkConds(e, q.Where); err != nil {
		return nil, err
	}
	matched := []Record{}
	for _, rec := range t.tables[e] {
		if t.matches(rec, q.Where) {
			matched = append(matched, rec.Clone())
		}
	}

	if len(q.OrderBy) > 0 {
		for _, ob := range q.OrderBy {
			if err := checkColumns(e, ob.Column); err != nil {
				return nil, err
			}
		}
		sort.SliceStable(matched, func(i, j int) bool {
			for _, ob := range q.OrderBy {
				c, ok := compareValues(matched[i][ob.Column], matched[j][ob.Column])
				if !ok || c == 0 {
					continue
				}
				if ob.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return []Record{}, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (t *memTx) Count(_ context.Context, e domain.Entity, where []Cond) (int, error) {
	if _, err := metaOf(e); err != nil {
		return 0, err
	}
	if err := checkConds(e, where); err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range t.tables[e] {
		if t.matches(rec, where) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) Insert(_ context.Context, e domain.Entity, rec Record) (Record, error) {
	meta, err := metaOf(e)
	if err != nil {
		return nil, err
	}
	if err := checkColumns(e, sortedKeys(rec)...); err != nil {
		return nil, err
	}

	row := make(Record, len(meta.Columns))
	for _, c := range meta.Columns {
		row[c] = nil
	}
	for k, v := range rec {
		row[k] = sqlValue(v)
	}
	now := t.now().UTC()
	for _, c := range []string{"created_at", "updated_at"} {
		if e.HasColumn(c) && row[c] == nil {
			row[c] = now
		}
	}

	if err := t.checkUnique(e, meta, row, -1); err != nil {
		return nil, err
	}
	t.tables[e] = append(t.tables[e], row)
	return row.Clone(), nil
}

func (t *memTx) Upsert(ctx context.Context, e domain.Entity, conflict []string, rec Record) (Record, error) {
	if len(conflict) == 0 {
		return nil, fmt.Errorf("upsert into %s: conflict columns are required", e.Table())
	}
	if err := checkColumns(e, conflict...); err != nil {
		return nil, err
	}
	where := make([]Cond, 0, len(conflict))
	for _, c := range conflict {
		where = append(where, Eq(c, rec[c]))
	}
	existing, err := t.Count(ctx, e, where)
	if err != nil {
		return nil, err
	}
	if existing == 0 {
		return t.Insert(ctx, e, rec)
	}

	set := Record{}
	for k, v := range rec {
		if k == "id" || k == "created_at" || contains(conflict, k) {
			continue
		}
		set[k] = v
	}
	if len(set) == 0 {
		return nil, nil
	}
	updated, err := t.Update(ctx, e, where, set)
	if err != nil || len(updated) == 0 {
		return nil, err
	}
	return updated[0], nil
}

func (t *memTx) Update(_ context.Context, e domain.Entity, where []Cond, set Record) ([]Record, error) {
	meta, err := metaOf(e)
	if err != nil {
		return nil, err
	}
	if len(where) == 0 {
		return nil, fmt.Errorf("update %s: refusing to update without a predicate", meta.Table)
	}
	if err := checkColumns(e, sortedKeys(set)...); err != nil {
		return nil, err
	}
	if err := checkConds(e, where); err != nil {
		return nil, err
	}

	out := []Record{}
	rows := t.tables[e]
	for i, rec := range rows {
		if !t.matches(rec, where) {
			continue
		}
		next := rec.Clone()
		for k, v := range set {
			next[k] = sqlValue(v)
		}
		if err := t.checkUnique(e, meta, next, i); err != nil {
			return nil, err
		}
		rows[i] = next
		out = append(out, next.Clone())
	}
	return out, nil
}

func (t *memTx) Delete(_ context.Context, e domain.Entity, where []Cond) (int64, error) {
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

	kept := make([]Record, 0, len(t.tables[e]))
	var n int64
	for _, rec := range t.tables[e] {
		if t.matches(rec, where) {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	t.tables[e] = kept
	return n, nil
}

func (t *memTx) matches(rec Record, where []Cond) bool {
	for _, c := range where {
		if !t.matchCond(rec, c) {
			return false
		}
	}
	return true
}

func (t *memTx) matchCond(rec Record, c Cond) bool {
	v := rec[c.Column]
	switch c.Op {
	case OpEq:
		if c.Value == nil {
			return v == nil
		}
		cmp, ok := compareValues(v, c.Value)
		return ok && cmp == 0
	case OpNe:
		if c.Value == nil {
			return v != nil
		}
		cmp, ok := compareValues(v, c.Value)
		return ok && cmp != 0
	case OpGte:
		cmp, ok := compareValues(v, c.Value)
		return ok && cmp >= 0
	case OpLt:
		cmp, ok := compareValues(v, c.Value)
		return ok && cmp < 0
	case OpIsNull:
		return v == nil
	case OpIn:
		return containsValue(listValues(c.Value), v)
	case OpInSelect:
		sub := c.Value.(SubSelect)
		values := []any{}
		for _, row := range t.tables[sub.Entity] {
			if t.matches(row, sub.Where) {
				values = append(values, row[sub.Column])
			}
		}
		return containsValue(values, v)
	}
	return false
}

func (t *memTx) checkUnique(e domain.Entity, meta domain.EntityMeta, row Record, skip int) error {
	for _, uc := range meta.Unique {
		if hasNil(row, uc.Columns) {
			continue
		}
		for i, other := range t.tables[e] {
			if i == skip {
				continue
			}
			if sameValues(row, other, uc.Columns) {
				return &UniqueViolationError{Constraint: uc.Name}
			}
		}
	}
	return nil
}

func containsValue(values []any, v any) bool {
	for _, candidate := range values {
		if cmp, ok := compareValues(v, candidate); ok && cmp == 0 {
			return true
		}
	}
	return false
}

func hasNil(rec Record, cols []string) bool {
	for _, c := range cols {
		if rec[c] == nil {
			return true
		}
	}
	return false
}

func sameValues(a, b Record, cols []string) bool {
	for _, c := range cols {
		cmp, ok := compareValues(a[c], b[c])
		if !ok || cmp != 0 {
			return false
		}
	}
	return true
}

func cloneTables(src map[domain.Entity][]Record) map[domain.Entity][]Record {
	out := make(map[domain.Entity][]Record, len(src))
	for e, rows := range src {
		cp := make([]Record, len(rows))
		copy(cp, rows)
		out[e] = cp
	}
	return out
}
