// Package app is the application root: it owns the explicit store objects
// (session, entity stores, controllers, dashboard, realtime) and passes them
// by reference to consumers. Nothing here is process-global.
package app

import (
	"context"
	"net/http"

	"github.com/leadstack/leadstack/internal/api"
	"github.com/leadstack/leadstack/internal/config"
	"github.com/leadstack/leadstack/internal/dashboard"
	"github.com/leadstack/leadstack/internal/realtime"
	"github.com/leadstack/leadstack/internal/session"
	"github.com/leadstack/leadstack/internal/store"
)

type App struct {
	Client     *api.Client
	Session    *session.Session
	Leads      *store.Store[store.Lead]
	LeadQuery  *store.Controller[store.Lead]
	Activities *store.Store[store.Activity]
	ActQuery   *store.Controller[store.Activity]
	Dashboard  *dashboard.Service
	Realtime   *realtime.Manager
}

type Options struct {
	Config     config.Config
	Storage    session.Storage
	HTTPClient *http.Client
	Logger     realtime.Logger
}

// New wires the whole client from configuration. The session is initialized
// from persisted state and acts as the token provider for every other
// component, read fresh at each call.
func New(opts Options) (*App, error) {
	storage := opts.Storage
	if storage == nil {
		storage = session.NewFileStorage(opts.Config.Session.StateFile)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil && opts.Config.API.Timeout > 0 {
		httpClient = &http.Client{Timeout: opts.Config.API.Timeout}
	}

	// the provider closes over the session variable: mutual dependency
	// between client and session without a second construction pass
	var sess *session.Session
	client := api.NewClient(api.ClientOptions{
		BaseURL: opts.Config.API.URL,
		TokenProvider: func(ctx context.Context) (string, error) {
			return sess.Token(ctx)
		},
		HTTPClient: httpClient,
	})
	sess = session.New(client, storage)

	if err := sess.Initialize(); err != nil {
		return nil, err
	}

	leads := store.NewLeadStore(client)
	activities := store.NewActivityStore(client)

	return &App{
		Client:     client,
		Session:    sess,
		Leads:      leads,
		LeadQuery:  store.NewController(leads),
		Activities: activities,
		ActQuery:   store.NewController(activities),
		Dashboard:  dashboard.NewService(client),
		Realtime: realtime.NewManager(realtime.ManagerOptions{
			BaseURL: opts.Config.Realtime.URL,
			Logger:  opts.Logger,
		}),
	}, nil
}

// ConnectRealtime opens the push channel for the authenticated user. No-op
// when a channel already exists or when logged out.
func (a *App) ConnectRealtime(ctx context.Context) *realtime.Channel {
	user := a.Session.User()
	token, err := a.Session.Token(ctx)
	if err != nil || user == nil {
		return nil
	}
	return a.Realtime.Connect(ctx, token, user.ID)
}

// Logout tears the realtime channel down before clearing the session so a
// stale authenticated channel never outlives it.
func (a *App) Logout() error {
	a.Realtime.Disconnect()
	return a.Session.Logout()
}

// WireInvalidation subscribes the given channel events and re-issues the
// current lead query when one arrives. The channel stays a pure event
// source; this is the consumer-side wiring.
func (a *App) WireInvalidation(ch *realtime.Channel, events ...string) {
	if ch == nil {
		return
	}
	if len(events) == 0 {
		events = []string{"lead-created", "lead-updated", "lead-deleted"}
	}
	for _, name := range events {
		ch.On(name, func(realtime.Event) {
			_ = a.LeadQuery.Refresh(context.Background())
		})
	}
}

// ListUsers fetches the assignable owners (Admin/Manager only server-side).
func (a *App) ListUsers(ctx context.Context) ([]session.User, error) {
	var users []session.User
	if err := a.Client.Get(ctx, "/users", nil, &users, "Failed to fetch users"); err != nil {
		return nil, err
	}
	return users, nil
}
