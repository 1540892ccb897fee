// Package gateway is the tenant-scoped data gateway. Every read and write goes through
// an explicit, ordered chain of interceptors before reaching the store; the usual
// chain is Access -> Scope -> audit -> store.
package gateway

import (
	"context"
	"fmt"

	"dineflow/internal/access"
	"dineflow/internal/domain"
	"dineflow/internal/repository"
)

// Call one data-access request travelling down the chain. Interceptors may rewrite
// it; they must copy slices and maps before changing them.
type Call struct {
	Entity    domain.Entity
	Op        access.Operation
	Query     repository.Query
	Data      repository.Record
	Conflict  []string
	CountOnly bool
}

// Clone deep enough for interceptors to edit Where and Data safely
func (c *Call) Clone() *Call {
	out := *c
	out.Query.Where = append([]repository.Cond(nil), c.Query.Where...)
	out.Query.OrderBy = append([]repository.OrderBy(nil), c.Query.OrderBy...)
	out.Conflict = append([]string(nil), c.Conflict...)
	if c.Data != nil {
		out.Data = c.Data.Clone()
	}
	return &out
}

// Result store outcome
type Result struct {
	Records  []repository.Record
	Affected int64
	Count    int
}

// Handler executes a call against store (a transaction-bound store inside InTx)
type Handler func(ctx context.Context, store repository.Store, call *Call) (*Result, error)

// Interceptor wraps a Handler
type Interceptor func(next Handler) Handler

// Chain builds final wrapped by interceptors; the first interceptor runs first.
func Chain(final Handler, interceptors ...Interceptor) Handler {
	h := final
	for i := len(interceptors) - 1; i >= 0; i-- {
		h = interceptors[i](h)
	}
	return h
}

// Execute terminal handler dispatching to the store
func Execute(ctx context.Context, store repository.Store, call *Call) (*Result, error) {
	switch call.Op {
	case access.OpRead, access.OpExport:
		if call.CountOnly {
			n, err := store.Count(ctx, call.Entity, call.Query.Where)
			if err != nil {
				return nil, err
			}
			return &Result{Count: n}, nil
		}
		recs, err := store.Find(ctx, call.Entity, call.Query)
		if err != nil {
			return nil, err
		}
		return &Result{Records: recs, Count: len(recs)}, nil
	case access.OpCreate:
		rec, err := store.Insert(ctx, call.Entity, call.Data)
		if err != nil {
			return nil, err
		}
		return &Result{Records: []repository.Record{rec}, Affected: 1}, nil
	case access.OpUpsert:
		rec, err := store.Upsert(ctx, call.Entity, call.Conflict, call.Data)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return &Result{}, nil
		}
		return &Result{Records: []repository.Record{rec}, Affected: 1}, nil
	case access.OpUpdate:
		recs, err := store.Update(ctx, call.Entity, call.Query.Where, call.Data)
		if err != nil {
			return nil, err
		}
		return &Result{Records: recs, Affected: int64(len(recs))}, nil
	case access.OpDelete:
		n, err := store.Delete(ctx, call.Entity, call.Query.Where)
		if err != nil {
			return nil, err
		}
		return &Result{Affected: n}, nil
	}
	return nil, fmt.Errorf("unsupported operation %q", call.Op)
}

// Gateway the data-access surface handed to services
type Gateway struct {
	root    repository.TxStore
	store   repository.Store
	handler Handler
	inTx    bool
}

// New builds a gateway whose calls run through interceptors in order.
func New(store repository.TxStore, interceptors ...Interceptor) *Gateway {
	return &Gateway{
		root:    store,
		store:   store,
		handler: Chain(Execute, interceptors...),
	}
}

// InTx runs fn inside one store transaction. Hooks registered with AfterCommit run
// once the transaction has committed; nothing runs if it rolls back.
func (g *Gateway) InTx(ctx context.Context, fn func(ctx context.Context, tx *Gateway) error) error {
	if g.inTx {
		return fn(ctx, g)
	}

	hooks := &txHooks{}
	txCtx := context.WithValue(ctx, hooksKey{}, hooks)
	err := g.root.InTx(txCtx, func(ctx context.Context, tx repository.Store) error {
		return fn(ctx, &Gateway{root: g.root, store: tx, handler: g.handler, inTx: true})
	})
	if err != nil {
		return err
	}
	hooks.run(context.WithoutCancel(ctx))
	return nil
}

func (g *Gateway) Find(ctx context.Context, e domain.Entity, q repository.Query) ([]repository.Record, error) {
	res, err := g.handler(ctx, g.store, &Call{Entity: e, Op: access.OpRead, Query: q})
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// FindOne returns domain.ErrNotFound when nothing matches
func (g *Gateway) FindOne(ctx context.Context, e domain.Entity, where ...repository.Cond) (repository.Record, error) {
	recs, err := g.Find(ctx, e, repository.Query{Where: where, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, e)
	}
	return recs[0], nil
}

func (g *Gateway) Count(ctx context.Context, e domain.Entity, where ...repository.Cond) (int, error) {
	res, err := g.handler(ctx, g.store, &Call{
		Entity:    e,
		Op:        access.OpRead,
		Query:     repository.Query{Where: where},
		CountOnly: true,
	})
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

// Export reads like Find but is authorized as an export
func (g *Gateway) Export(ctx context.Context, e domain.Entity, q repository.Query) ([]repository.Record, error) {
	res, err := g.handler(ctx, g.store, &Call{Entity: e, Op: access.OpExport, Query: q})
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

func (g *Gateway) Create(ctx context.Context, e domain.Entity, data repository.Record) (repository.Record, error) {
	res, err := g.handler(ctx, g.store, &Call{Entity: e, Op: access.OpCreate, Data: data})
	if err != nil {
		return nil, err
	}
	return res.Records[0], nil
}

// Upsert returns nil when the conflicting row was left untouched
func (g *Gateway) Upsert(ctx context.Context, e domain.Entity, conflict []string, data repository.Record) (repository.Record, error) {
	res, err := g.handler(ctx, g.store, &Call{Entity: e, Op: access.OpUpsert, Conflict: conflict, Data: data})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, nil
	}
	return res.Records[0], nil
}

func (g *Gateway) Update(ctx context.Context, e domain.Entity, set repository.Record, where ...repository.Cond) ([]repository.Record, error) {
	res, err := g.handler(ctx, g.store, &Call{
		Entity: e,
		Op:     access.OpUpdate,
		Query:  repository.Query{Where: where},
		Data:   set,
	})
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

func (g *Gateway) Delete(ctx context.Context, e domain.Entity, where ...repository.Cond) (int64, error) {
	res, err := g.handler(ctx, g.store, &Call{
		Entity: e,
		Op:     access.OpDelete,
		Query:  repository.Query{Where: where},
	})
	if err != nil {
		return 0, err
	}
	return res.Affected, nil
}

type hooksKey struct{}

type txHooks struct {
	fns []func(ctx context.Context)
}

func (h *txHooks) run(ctx context.Context) {
	for _, fn := range h.fns {
		fn(ctx)
	}
}

// AfterCommit defers fn until the surrounding InTx commits. Outside a transaction
// fn runs immediately.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if h, ok := ctx.Value(hooksKey{}).(*txHooks); ok {
		h.fns = append(h.fns, fn)
		return
	}
	fn(ctx)
}
