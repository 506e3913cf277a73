package store

import (
	"encoding/json"
	"net/url"
	"time"

	"github.com/leadstack/leadstack/internal/api"
)

// Activity types as the server spells them.
var ActivityTypes = []string{"Note", "Call", "Meeting", "Email", "Status Change"}

type Activity struct {
	ID          string    `json:"id"`
	LeadID      string    `json:"leadId"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	User        *UserRef  `json:"user,omitempty"`
}

// NewActivityStore builds the Store instance for the Activity entity kind.
// The list endpoint is scoped per lead and returns a bare array, so the
// decoded page always spans the whole result.
func NewActivityStore(client *api.Client) *Store[Activity] {
	return New(client, Config[Activity]{
		Path: "/activities",
		ID:   func(a Activity) string { return a.ID },
		ListRequest: func(q Query) (string, url.Values) {
			return "/activities/lead/" + url.PathEscape(q.LeadID), nil
		},
		DecodeList: func(data []byte) (ListPage[Activity], error) {
			var items []Activity
			if err := json.Unmarshal(data, &items); err != nil {
				return ListPage[Activity]{}, err
			}
			return ListPage[Activity]{
				Items: items,
				Total: len(items),
				Page:  1,
				Pages: 1,
			}, nil
		},
		Messages: Messages{
			List:   "Failed to fetch activities",
			Get:    "Failed to fetch activity",
			Create: "Failed to create activity",
			Update: "Failed to update activity",
			Delete: "Failed to delete activity",
		},
	})
}
