package store

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStaleResponseSuppressed(t *testing.T) {
	slowArrived := make(chan struct{})
	releaseSlow := make(chan struct{})
	store, _ := newLeadTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		search := r.URL.Query().Get("search")
		if search == "slow" {
			close(slowArrived)
			<-releaseSlow
			_, _ = w.Write(leadPage([]Lead{{ID: "stale", FirstName: "Stale", Email: "s@x.com", Status: "New"}}, 1, 1, 1))
			return
		}
		_, _ = w.Write(leadPage([]Lead{{ID: "fresh", FirstName: "Fresh", Email: "f@x.com", Status: "New"}}, 1, 1, 1))
	}))
	ctrl := NewController(store)

	slowDone := make(chan error, 1)
	go func() {
		slowDone <- ctrl.SetSearch(context.Background(), "slow")
	}()
	<-slowArrived

	// a newer query supersedes the in-flight one
	if err := ctrl.SetSearch(context.Background(), "fast"); err != nil {
		t.Fatalf("fast query failed: %v", err)
	}
	close(releaseSlow)

	select {
	case err := <-slowDone:
		if !errors.Is(err, ErrStale) {
			t.Fatalf("expected stale discard, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("slow query never returned")
	}

	snapshot := store.Snapshot()
	if len(snapshot.Items) != 1 || snapshot.Items[0].ID != "fresh" {
		t.Fatalf("cache must reflect only the last-issued query, got %+v", snapshot.Items)
	}
}

func TestFilterChangeResetsPage(t *testing.T) {
	var mu sync.Mutex
	var lastPage, lastSearch, lastStatus string
	store, _ := newLeadTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		lastPage = r.URL.Query().Get("page")
		lastSearch = r.URL.Query().Get("search")
		lastStatus = r.URL.Query().Get("status")
		mu.Unlock()
		_, _ = w.Write(leadPage(makeLeads(2), 40, 1, 5))
	}))
	ctrl := NewController(store)
	ctx := context.Background()
	last := func() (string, string, string) {
		mu.Lock()
		defer mu.Unlock()
		return lastPage, lastSearch, lastStatus
	}

	if err := ctrl.Refresh(ctx); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if err := ctrl.SetPage(ctx, 3); err != nil {
		t.Fatalf("set page failed: %v", err)
	}
	if page, _, _ := last(); page != "3" {
		t.Fatalf("expected page=3 on the wire, got %q", page)
	}

	if err := ctrl.SetSearch(ctx, "acme"); err != nil {
		t.Fatalf("set search failed: %v", err)
	}
	if page, search, _ := last(); page != "1" || search != "acme" {
		t.Fatalf("search change must reset page to 1, got page=%q search=%q", page, search)
	}
	if got := ctrl.Query(); got.Page != 1 || got.Search != "acme" {
		t.Fatalf("query state not reset: %+v", got)
	}

	if err := ctrl.SetPage(ctx, 2); err != nil {
		t.Fatalf("set page failed: %v", err)
	}
	if err := ctrl.SetStatus(ctx, "Won"); err != nil {
		t.Fatalf("set status failed: %v", err)
	}
	if page, _, status := last(); page != "1" || status != "Won" {
		t.Fatalf("status change must reset page to 1, got page=%q status=%q", page, status)
	}
}

func TestSetPageClampsToKnownBounds(t *testing.T) {
	store, _ := newLeadTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		_, _ = w.Write(leadPage(makeLeads(2), 40, page, 4))
	}))
	ctrl := NewController(store)
	ctx := context.Background()

	if err := ctrl.Refresh(ctx); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if err := ctrl.SetPage(ctx, 99); err != nil {
		t.Fatalf("set page failed: %v", err)
	}
	if got := ctrl.Query().Page; got != 4 {
		t.Fatalf("expected clamp to 4, got %d", got)
	}
	if err := ctrl.SetPage(ctx, 0); err != nil {
		t.Fatalf("set page failed: %v", err)
	}
	if got := ctrl.Query().Page; got != 1 {
		t.Fatalf("expected clamp to 1, got %d", got)
	}
}

func TestSetPageWithUnknownPages(t *testing.T) {
	store, _ := newLeadTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(leadPage(nil, 0, 1, 1))
	}))
	ctrl := NewController(store)

	// no list applied yet: pages unknown, everything clamps to 1, and page 1
	// is already current so nothing is fetched
	if err := ctrl.SetPage(context.Background(), 7); err != nil {
		t.Fatalf("set page failed: %v", err)
	}
	if got := ctrl.Query().Page; got != 1 {
		t.Fatalf("expected page 1, got %d", got)
	}
}

func TestUnchangedQueryDoesNotRefetch(t *testing.T) {
	var calls int32
	store, _ := newLeadTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write(leadPage(makeLeads(1), 1, 1, 1))
	}))
	ctrl := NewController(store)
	ctx := context.Background()

	if err := ctrl.SetSearch(ctx, "acme"); err != nil {
		t.Fatalf("set search failed: %v", err)
	}
	if err := ctrl.SetSearch(ctx, "acme"); err != nil {
		t.Fatalf("repeat set search failed: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected a single fetch, got %d", got)
	}
}
