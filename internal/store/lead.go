package store

import (
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/leadstack/leadstack/internal/api"
)

// Lead statuses as the server spells them.
var LeadStatuses = []string{"New", "Contacted", "Qualified", "Proposal", "Negotiation", "Won", "Lost"}

// UserRef is the embedded owner/author reference carried on records.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type Lead struct {
	ID             string   `json:"id"`
	FirstName      string   `json:"firstName"`
	LastName       string   `json:"lastName"`
	Email          string   `json:"email"`
	Phone          string   `json:"phone,omitempty"`
	Company        string   `json:"company,omitempty"`
	Status         string   `json:"status"`
	Source         string   `json:"source,omitempty"`
	EstimatedValue float64  `json:"estimatedValue"`
	Notes          string   `json:"notes,omitempty"`
	OwnerID        string   `json:"ownerId"`
	Owner          *UserRef `json:"owner,omitempty"`
}

// leadListResponse is the paged envelope of GET /leads.
type leadListResponse struct {
	Leads []Lead `json:"leads"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Pages int    `json:"pages"`
}

// NewLeadStore builds the Store instance for the Lead entity kind.
func NewLeadStore(client *api.Client) *Store[Lead] {
	return New(client, Config[Lead]{
		Path: "/leads",
		ID:   func(l Lead) string { return l.ID },
		ListRequest: func(q Query) (string, url.Values) {
			params := url.Values{}
			page := q.Page
			if page < 1 {
				page = 1
			}
			params.Set("page", strconv.Itoa(page))
			if q.Search != "" {
				params.Set("search", q.Search)
			}
			if q.Status != "" {
				params.Set("status", q.Status)
			}
			return "/leads", params
		},
		DecodeList: func(data []byte) (ListPage[Lead], error) {
			var resp leadListResponse
			if err := json.Unmarshal(data, &resp); err != nil {
				return ListPage[Lead]{}, err
			}
			return ListPage[Lead]{
				Items: resp.Leads,
				Total: resp.Total,
				Page:  resp.Page,
				Pages: resp.Pages,
			}, nil
		},
		Messages: Messages{
			List:   "Failed to fetch leads",
			Get:    "Failed to fetch lead",
			Create: "Failed to create lead",
			Update: "Failed to update lead",
			Delete: "Failed to delete lead",
		},
	})
}
