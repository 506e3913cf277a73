// Package store implements the entity synchronization layer: one generic
// Store per entity kind caching a paged list plus a single current-detail
// record, and a query controller with stale-response suppression. The remote
// service is the sole source of truth; the last acknowledged response wins.
package store

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"

	"github.com/leadstack/leadstack/internal/api"
)

// ListPage is one page of a paged listing, in server order.
type ListPage[T any] struct {
	Items []T
	Total int
	Page  int
	Pages int
}

// Query carries the list parameters for one fetch. LeadID is only used by
// entity kinds scoped to a lead (activities).
type Query struct {
	Page   int
	Search string
	Status string
	LeadID string
}

// Messages are the per-operation fallback errors surfaced when the server
// response carries no message of its own.
type Messages struct {
	List   string
	Get    string
	Create string
	Update string
	Delete string
}

// Config parametrizes a Store for one entity kind.
type Config[T any] struct {
	// Path is the collection endpoint, e.g. "/leads". Item operations
	// append "/<id>".
	Path string
	// ID extracts the opaque server id from a record.
	ID func(T) string
	// ListRequest maps a Query onto the list endpoint and its params.
	ListRequest func(q Query) (path string, params url.Values)
	// DecodeList parses the raw list response body; entity kinds differ in
	// envelope shape (paged object vs bare array).
	DecodeList func(data []byte) (ListPage[T], error)
	Messages   Messages
}

// Store caches the current list page and the current detail record for one
// entity kind and reconciles both on every acknowledged mutation. A failed
// call never corrupts the cache.
type Store[T any] struct {
	mu       sync.Mutex
	client   *api.Client
	cfg      Config[T]
	list     ListPage[T]
	current  *T
	inflight int
	err      error
}

// Snapshot is a copy of the store's read state, safe for the caller to hold.
type Snapshot[T any] struct {
	Items   []T
	Total   int
	Page    int
	Pages   int
	Current *T
	Loading bool
	Err     error
}

func New[T any](client *api.Client, cfg Config[T]) *Store[T] {
	return &Store[T]{client: client, cfg: cfg}
}

// Snapshot returns a copy of the cached state.
func (s *Store[T]) Snapshot() Snapshot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]T, len(s.list.Items))
	copy(items, s.list.Items)
	var current *T
	if s.current != nil {
		copied := *s.current
		current = &copied
	}
	return Snapshot[T]{
		Items:   items,
		Total:   s.list.Total,
		Page:    s.list.Page,
		Pages:   s.list.Pages,
		Current: current,
		Loading: s.inflight > 0,
		Err:     s.err,
	}
}

// Pages reports the last known page count, 0 when no list has been applied.
func (s *Store[T]) Pages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Pages
}

// List issues exactly one network call and, on success, replaces the entire
// list cache. On failure the cache is left unchanged and the error recorded.
func (s *Store[T]) List(ctx context.Context, q Query) (ListPage[T], error) {
	return s.listTagged(ctx, q, nil)
}

// listTagged is List with an apply-time gate: accept is consulted under the
// cache lock just before the response is applied, and a false verdict
// discards the response without touching the cache. Stale discards report
// ErrStale. A nil accept always applies.
func (s *Store[T]) listTagged(ctx context.Context, q Query, accept func() bool) (ListPage[T], error) {
	s.mu.Lock()
	s.inflight++
	s.err = nil
	s.mu.Unlock()

	requestPath, params := s.cfg.ListRequest(q)
	var raw json.RawMessage
	err := s.client.Get(ctx, requestPath, params, &raw, s.cfg.Messages.List)
	var page ListPage[T]
	if err == nil {
		page, err = s.cfg.DecodeList(raw)
		if err != nil {
			err = &api.Error{Kind: api.KindUnknown, Message: s.cfg.Messages.List, Err: err}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	if accept != nil && !accept() {
		return ListPage[T]{}, ErrStale
	}
	if err != nil {
		s.err = err
		return ListPage[T]{}, err
	}
	s.list = page
	s.err = nil
	result := ListPage[T]{Items: make([]T, len(page.Items)), Total: page.Total, Page: page.Page, Pages: page.Pages}
	copy(result.Items, page.Items)
	return result, nil
}

// GetByID fetches a single record and replaces the detail cache with it.
func (s *Store[T]) GetByID(ctx context.Context, id string) (T, error) {
	var out T
	err := s.run(ctx, func(ctx context.Context) error {
		return s.client.Get(ctx, s.itemPath(id), nil, &out, s.cfg.Messages.Get)
	}, func() {
		copied := out
		s.current = &copied
	})
	return out, err
}

// Create posts the payload and, on acknowledgment, inserts the returned
// record at the head of the list and increments Total. Page and Pages are
// not altered. There is no speculative insertion before acknowledgment.
func (s *Store[T]) Create(ctx context.Context, payload any) (T, error) {
	var created T
	err := s.run(ctx, func(ctx context.Context) error {
		return s.client.Post(ctx, s.cfg.Path, payload, &created, s.cfg.Messages.Create)
	}, func() {
		s.list.Items = append([]T{created}, s.list.Items...)
		s.list.Total++
	})
	return created, err
}

// Update puts the payload and, on acknowledgment, replaces the matching list
// entry in place and, when the detail cache holds the same id, replaces it
// too. Both updates use the identical server-returned record so list and
// detail never disagree.
func (s *Store[T]) Update(ctx context.Context, id string, payload any) (T, error) {
	var updated T
	err := s.run(ctx, func(ctx context.Context) error {
		return s.client.Put(ctx, s.itemPath(id), payload, &updated, s.cfg.Messages.Update)
	}, func() {
		updatedID := s.cfg.ID(updated)
		for i := range s.list.Items {
			if s.cfg.ID(s.list.Items[i]) == updatedID {
				s.list.Items[i] = updated
				break
			}
		}
		if s.current != nil && s.cfg.ID(*s.current) == updatedID {
			copied := updated
			s.current = &copied
		}
	})
	return updated, err
}

// Delete removes the record remotely and, on acknowledgment, filters it out
// of the list cache and decrements Total. The decrement applies even when the
// id is not on the cached page: the server lost a record either way. The
// detail cache is left as-is; a detail view actively displays that id and
// removal is its caller's responsibility.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	return s.run(ctx, func(ctx context.Context) error {
		return s.client.Delete(ctx, s.itemPath(id), s.cfg.Messages.Delete)
	}, func() {
		kept := s.list.Items[:0:0]
		for _, item := range s.list.Items {
			if s.cfg.ID(item) == id {
				continue
			}
			kept = append(kept, item)
		}
		s.list.Items = kept
		s.list.Total--
	})
}

// run executes one remote call and applies the cache mutation only on
// success, with loading/error flags reset on both outcomes.
func (s *Store[T]) run(ctx context.Context, call func(ctx context.Context) error, apply func()) error {
	s.mu.Lock()
	s.inflight++
	s.err = nil
	s.mu.Unlock()

	err := call(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	if err != nil {
		s.err = err
		return err
	}
	s.err = nil
	apply()
	return nil
}

// ClearCurrent drops the detail cache, e.g. when navigation leaves the
// detail context.
func (s *Store[T]) ClearCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

// ClearError resets the recorded error.
func (s *Store[T]) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = nil
}

func (s *Store[T]) itemPath(id string) string {
	return s.cfg.Path + "/" + url.PathEscape(id)
}
