// Package dashboard fetches the server-computed aggregate snapshot. It is a
// derived read model: replaced wholesale on each fetch, never reconciled
// against individual lead or activity mutations.
package dashboard

import (
	"context"
	"sync"

	"github.com/leadstack/leadstack/internal/api"
	"github.com/leadstack/leadstack/internal/store"
)

type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type OwnerCount struct {
	Owner string `json:"owner"`
	Count int    `json:"count"`
}

// Snapshot is the immutable aggregate returned by GET /dashboard.
type Snapshot struct {
	TotalLeads       int              `json:"totalLeads"`
	TotalValue       float64          `json:"totalValue"`
	LeadsThisMonth   int              `json:"leadsThisMonth"`
	ConversionRate   float64          `json:"conversionRate"`
	LeadsByStatus    []StatusCount    `json:"leadsByStatus"`
	ActivityTypes    []TypeCount      `json:"activityTypes"`
	LeadsByOwner     []OwnerCount     `json:"leadsByOwner"`
	RecentActivities []store.Activity `json:"recentActivities"`
}

// Service caches the last fetched snapshot.
type Service struct {
	mu      sync.Mutex
	client  *api.Client
	data    *Snapshot
	loading bool
	err     error
}

func NewService(client *api.Client) *Service {
	return &Service{client: client}
}

// Fetch issues a single GET and replaces the whole snapshot atomically. The
// previous snapshot survives a failed fetch.
func (s *Service) Fetch(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	s.loading = true
	s.err = nil
	s.mu.Unlock()

	var snapshot Snapshot
	err := s.client.Get(ctx, "/dashboard", nil, &snapshot, "Failed to fetch dashboard data")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.err = err
		return nil, err
	}
	s.data = &snapshot
	copied := snapshot
	return &copied, nil
}

// Data returns the last snapshot, nil before the first successful fetch.
func (s *Service) Data() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil
	}
	copied := *s.data
	return &copied
}

// Loading reports whether a fetch is in flight.
func (s *Service) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the last fetch error, cleared by the next attempt.
func (s *Service) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
