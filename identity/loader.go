package identity

import (
	"context"
	"sync"
	"time"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/hotel_migration/models"
)

// BatchResolver coalesces lookups issued while mapping one chunk into one query
// per kind. Create one per chunk: results are cached for its lifetime.
type BatchResolver struct {
	store   *Store
	scope   Scope
	wait    time.Duration
	mu      sync.Mutex
	loaders map[models.EntityKind]*dataloader.Loader[int, Resolution]
}

func NewBatchResolver(store *Store, scope Scope) *BatchResolver {
	return &BatchResolver{
		store:   store,
		scope:   scope,
		wait:    time.Millisecond,
		loaders: map[models.EntityKind]*dataloader.Loader[int, Resolution]{},
	}
}

func (r *BatchResolver) loader(kind models.EntityKind) *dataloader.Loader[int, Resolution] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.loaders[kind]; ok {
		return l
	}
	batch := func(ctx context.Context, ids []int) []*dataloader.Result[Resolution] {
		found, err := r.store.LookupMany(ctx, r.scope, kind, ids)
		if err != nil {
			return handleError[Resolution](len(ids), err)
		}
		results := make([]*dataloader.Result[Resolution], 0, len(ids))
		for _, id := range ids {
			results = append(results, &dataloader.Result[Resolution]{Data: found[id]})
		}
		return results
	}
	l := dataloader.NewBatchedLoader(batch, dataloader.WithWait[int, Resolution](r.wait))
	r.loaders[kind] = l
	return l
}

func (r *BatchResolver) Resolve(ctx context.Context, kind models.EntityKind, remoteId int) (Resolution, error) {
	if remoteId <= 0 {
		return Unresolved(), nil
	}
	return r.loader(kind).Load(ctx, remoteId)()
}

// ResolveMany queues every id before waiting so they share one batch.
func (r *BatchResolver) ResolveMany(ctx context.Context, kind models.EntityKind, remoteIds []int) (map[int]Resolution, error) {
	out := make(map[int]Resolution, len(remoteIds))
	var ids []int
	for _, id := range remoteIds {
		if id > 0 {
			ids = append(ids, id)
		} else {
			out[id] = Unresolved()
		}
	}
	if len(ids) == 0 {
		return out, nil
	}
	thunks := r.loader(kind).LoadMany(ctx, ids)
	values, errs := thunks()
	for i, id := range ids {
		if i < len(errs) && errs[i] != nil {
			return nil, errs[i]
		}
		out[id] = values[i]
	}
	return out, nil
}

// Remember records a resolution produced inside the chunk, e.g. a folio just
// created, so later lookups see it without a query.
func (r *BatchResolver) Remember(ctx context.Context, kind models.EntityKind, remoteId int, res Resolution) {
	l := r.loader(kind)
	l.Clear(ctx, remoteId)
	l.Prime(ctx, remoteId, res)
}

// handleError repeats err for every requested key.
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}
