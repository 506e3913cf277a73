package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrStale marks a list response that was superseded by a newer query before
// it arrived. The cache was not touched; the caller may ignore it.
var ErrStale = errors.New("stale list response discarded")

// Controller owns the pagination/filter/search parameters for one list view
// and drives the store's list fetches. Every query change bumps a monotonic
// sequence number; a response is applied only when its sequence still matches,
// so the last-issued query always wins regardless of completion order.
// Suppression happens at apply time, never at the transport level.
type Controller[T any] struct {
	store *Store[T]

	mu    sync.Mutex
	query Query
	seq   atomic.Uint64
}

func NewController[T any](s *Store[T]) *Controller[T] {
	c := &Controller[T]{store: s}
	c.query = Query{Page: 1}
	return c
}

// Query returns the current query state.
func (c *Controller[T]) Query() Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// SetLeadID scopes the list to one lead (activity views) and resets the page.
func (c *Controller[T]) SetLeadID(ctx context.Context, leadID string) error {
	return c.change(ctx, func(q *Query) bool {
		if q.LeadID == leadID {
			return false
		}
		q.LeadID = leadID
		q.Page = 1
		return true
	})
}

// SetSearch updates the search term. Any change resets the page to 1: first
// page semantics must be re-evaluated under the new filter.
func (c *Controller[T]) SetSearch(ctx context.Context, search string) error {
	return c.change(ctx, func(q *Query) bool {
		if q.Search == search {
			return false
		}
		q.Search = search
		q.Page = 1
		return true
	})
}

// SetStatus updates the status filter; like SetSearch it resets the page.
func (c *Controller[T]) SetStatus(ctx context.Context, status string) error {
	return c.change(ctx, func(q *Query) bool {
		if q.Status == status {
			return false
		}
		q.Status = status
		q.Page = 1
		return true
	})
}

// SetPage moves to page p, clamped to [1, pages] using the last known pages
// value (1 when no list has been applied yet).
func (c *Controller[T]) SetPage(ctx context.Context, page int) error {
	pages := c.store.Pages()
	if pages < 1 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	return c.change(ctx, func(q *Query) bool {
		if q.Page == page {
			return false
		}
		q.Page = page
		return true
	})
}

// Refresh re-issues the current query, e.g. after a mutation elsewhere.
func (c *Controller[T]) Refresh(ctx context.Context) error {
	return c.change(ctx, func(q *Query) bool { return true })
}

func (c *Controller[T]) change(ctx context.Context, mutate func(q *Query) bool) error {
	c.mu.Lock()
	if !mutate(&c.query) {
		c.mu.Unlock()
		return nil
	}
	seq := c.seq.Add(1)
	q := c.query
	c.mu.Unlock()

	_, err := c.store.listTagged(ctx, q, func() bool {
		return c.seq.Load() == seq
	})
	return err
}
