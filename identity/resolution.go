package identity

import (
	"context"
	"sort"

	"github.com/mmdatafocus/hotel_migration/models"
)

type Status int

const (
	NotFound Status = iota
	Found
	Ambiguous
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case Ambiguous:
		return "ambiguous"
	}
	return "not_found"
}

// Resolution is the outcome of resolving one remote reference to a local record.
// Known is set on NotFound results when the remote id was recorded on purpose
// without a local counterpart.
type Resolution struct {
	Status     Status
	LocalId    int
	Candidates []int
	Known      bool
}

func Resolved(localId int) Resolution {
	return Resolution{Status: Found, LocalId: localId}
}

func Unresolved() Resolution {
	return Resolution{Status: NotFound}
}

// FromCandidates sorts ids and resolves them: none is NotFound, one is Found,
// more is Ambiguous.
func FromCandidates(ids []int) Resolution {
	switch len(ids) {
	case 0:
		return Unresolved()
	case 1:
		return Resolved(ids[0])
	}
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)
	return Resolution{Status: Ambiguous, Candidates: sorted}
}

func (r Resolution) IsFound() bool { return r.Status == Found }

// Ptr returns the local id for optional foreign keys; nil unless Found.
func (r Resolution) Ptr() *int {
	if r.Status != Found {
		return nil
	}
	id := r.LocalId
	return &id
}

// Lowest picks the smallest candidate of an ambiguous result.
func (r Resolution) Lowest() (int, bool) {
	switch r.Status {
	case Found:
		return r.LocalId, true
	case Ambiguous:
		if len(r.Candidates) > 0 {
			return r.Candidates[0], true
		}
	}
	return 0, false
}

// Resolver maps a remote id of a kind to its local record.
type Resolver interface {
	Resolve(ctx context.Context, kind models.EntityKind, remoteId int) (Resolution, error)
}

// StoreResolver queries the store on every call.
type StoreResolver struct {
	store *Store
	scope Scope
}

func NewStoreResolver(store *Store, scope Scope) *StoreResolver {
	return &StoreResolver{store: store, scope: scope}
}

func (r *StoreResolver) Resolve(ctx context.Context, kind models.EntityKind, remoteId int) (Resolution, error) {
	if remoteId <= 0 {
		return Unresolved(), nil
	}
	return r.store.LookupLocal(ctx, r.scope, kind, remoteId)
}
