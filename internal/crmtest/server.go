// Package crmtest provides an in-memory fake of the lead service for package
// tests: auth, users, leads CRUD with paging/search/status, activities, and
// the dashboard aggregate. State lives behind one mutex and is seeded
// directly by tests.
package crmtest

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/leadstack/leadstack/internal/dashboard"
	"github.com/leadstack/leadstack/internal/store"
)

type account struct {
	User     store.UserRef
	Role     string
	Password string
}

type Server struct {
	// PageSize controls lead list pagination (default 10).
	PageSize int

	mu         sync.Mutex
	accounts   map[string]*account // by email
	tokens     map[string]string   // token -> user id
	leads      []store.Lead
	activities []store.Activity
	nextID     int
}

func NewServer() *Server {
	return &Server{
		PageSize: 10,
		accounts: map[string]*account{},
		tokens:   map[string]string{},
	}
}

// SeedUser registers an account without going through the HTTP surface and
// returns a valid bearer token for it.
func (s *Server) SeedUser(id, name, email, role, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[email] = &account{
		User:     store.UserRef{ID: id, Name: name, Email: email},
		Role:     role,
		Password: password,
	}
	token := "tok_" + id
	s.tokens[token] = id
	return token
}

// SeedLead inserts a lead at the head of the collection, matching server
// insertion order (newest first).
func (s *Server) SeedLead(lead store.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads = append([]store.Lead{lead}, s.leads...)
}

// SeedActivity inserts an activity at the head of the collection.
func (s *Server) SeedActivity(a store.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append([]store.Activity{a}, s.activities...)
}

// LeadCount reports the current number of leads, for test assertions.
func (s *Server) LeadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.leads)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")

	switch {
	case path == "/auth/register" && r.Method == http.MethodPost:
		s.handleRegister(w, r)
	case path == "/auth/login" && r.Method == http.MethodPost:
		s.handleLogin(w, r)
	case path == "/auth/me" && r.Method == http.MethodGet:
		s.withAuth(w, r, s.handleMe)
	case path == "/users" && r.Method == http.MethodGet:
		s.withAuth(w, r, s.handleUsers)
	case path == "/leads" && r.Method == http.MethodGet:
		s.withAuth(w, r, s.handleLeadList)
	case path == "/leads" && r.Method == http.MethodPost:
		s.withAuth(w, r, s.handleLeadCreate)
	case len(parts) == 2 && parts[0] == "leads":
		s.withAuth(w, r, func(w http.ResponseWriter, r *http.Request, _ store.UserRef) {
			s.handleLeadItem(w, r, parts[1])
		})
	case len(parts) == 3 && parts[0] == "activities" && parts[1] == "lead" && r.Method == http.MethodGet:
		s.withAuth(w, r, func(w http.ResponseWriter, _ *http.Request, _ store.UserRef) {
			s.handleActivityList(w, parts[2])
		})
	case path == "/activities" && r.Method == http.MethodPost:
		s.withAuth(w, r, s.handleActivityCreate)
	case len(parts) == 2 && parts[0] == "activities":
		s.withAuth(w, r, func(w http.ResponseWriter, r *http.Request, _ store.UserRef) {
			s.handleActivityItem(w, r, parts[1])
		})
	case path == "/dashboard" && r.Method == http.MethodGet:
		s.withAuth(w, r, s.handleDashboard)
	default:
		writeMessage(w, http.StatusNotFound, "Route not found")
	}
}

func (s *Server) withAuth(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request, store.UserRef)) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		writeMessage(w, http.StatusUnauthorized, "Not authorized")
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	s.mu.Lock()
	userID, ok := s.tokens[token]
	var user store.UserRef
	if ok {
		for _, acct := range s.accounts {
			if acct.User.ID == userID {
				user = acct.User
				break
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Not authorized")
		return
	}
	next(w, r, user)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[body.Email]; exists {
		writeMessage(w, http.StatusBadRequest, "User already exists")
		return
	}
	s.nextID++
	id := fmt.Sprintf("u%d", s.nextID)
	acct := &account{
		User:     store.UserRef{ID: id, Name: body.Name, Email: body.Email},
		Role:     "Rep",
		Password: body.Password,
	}
	s.accounts[body.Email] = acct
	token := "tok_" + id
	s.tokens[token] = id
	writeJSON(w, http.StatusCreated, authPayload(acct, token))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[body.Email]
	if !ok || acct.Password != body.Password {
		// no message: clients fall back to their own default
		writeJSON(w, http.StatusUnauthorized, map[string]any{})
		return
	}
	token := "tok_" + acct.User.ID
	s.tokens[token] = acct.User.ID
	writeJSON(w, http.StatusOK, authPayload(acct, token))
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, user store.UserRef) {
	s.mu.Lock()
	role := ""
	for _, acct := range s.accounts {
		if acct.User.ID == user.ID {
			role = acct.Role
			break
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"id":    user.ID,
		"name":  user.Name,
		"email": user.Email,
		"role":  role,
	})
}

func (s *Server) handleUsers(w http.ResponseWriter, _ *http.Request, _ store.UserRef) {
	s.mu.Lock()
	users := make([]map[string]any, 0, len(s.accounts))
	for _, acct := range s.accounts {
		users = append(users, map[string]any{
			"id":    acct.User.ID,
			"name":  acct.User.Name,
			"email": acct.User.Email,
			"role":  acct.Role,
		})
	}
	s.mu.Unlock()
	sort.Slice(users, func(i, j int) bool {
		return users[i]["id"].(string) < users[j]["id"].(string)
	})
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleLeadList(w http.ResponseWriter, r *http.Request, _ store.UserRef) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	search := strings.ToLower(r.URL.Query().Get("search"))
	status := r.URL.Query().Get("status")

	s.mu.Lock()
	filtered := make([]store.Lead, 0, len(s.leads))
	for _, lead := range s.leads {
		if status != "" && lead.Status != status {
			continue
		}
		if search != "" && !leadMatches(lead, search) {
			continue
		}
		filtered = append(filtered, lead)
	}
	s.mu.Unlock()

	pageSize := s.PageSize
	if pageSize < 1 {
		pageSize = 10
	}
	total := len(filtered)
	pages := int(math.Ceil(float64(total) / float64(pageSize)))
	if pages < 1 {
		pages = 1
	}
	if page > pages {
		page = pages
	}
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"leads": filtered[start:end],
		"total": total,
		"page":  page,
		"pages": pages,
	})
}

func leadMatches(lead store.Lead, search string) bool {
	for _, field := range []string{lead.FirstName, lead.LastName, lead.Email, lead.Company} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

func (s *Server) handleLeadCreate(w http.ResponseWriter, r *http.Request, _ store.UserRef) {
	var lead store.Lead
	if err := json.NewDecoder(r.Body).Decode(&lead); err != nil || lead.FirstName == "" || lead.Email == "" {
		writeMessage(w, http.StatusBadRequest, "First name and email are required")
		return
	}
	s.mu.Lock()
	s.nextID++
	lead.ID = fmt.Sprintf("lead_%d", s.nextID)
	if lead.Status == "" {
		lead.Status = "New"
	}
	s.leads = append([]store.Lead{lead}, s.leads...)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, lead)
}

func (s *Server) handleLeadItem(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		lead, idx := s.findLead(id)
		s.mu.Unlock()
		if idx < 0 {
			writeMessage(w, http.StatusNotFound, "Lead not found")
			return
		}
		writeJSON(w, http.StatusOK, lead)
	case http.MethodPut:
		var patch store.Lead
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid lead payload")
			return
		}
		s.mu.Lock()
		_, idx := s.findLead(id)
		if idx < 0 {
			s.mu.Unlock()
			writeMessage(w, http.StatusNotFound, "Lead not found")
			return
		}
		patch.ID = id
		s.leads[idx] = patch
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, patch)
	case http.MethodDelete:
		s.mu.Lock()
		_, idx := s.findLead(id)
		if idx < 0 {
			s.mu.Unlock()
			writeMessage(w, http.StatusNotFound, "Lead not found")
			return
		}
		s.leads = append(s.leads[:idx], s.leads[idx+1:]...)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"message": "Lead deleted"})
	default:
		writeMessage(w, http.StatusNotFound, "Route not found")
	}
}

func (s *Server) findLead(id string) (store.Lead, int) {
	for i, lead := range s.leads {
		if lead.ID == id {
			return lead, i
		}
	}
	return store.Lead{}, -1
}

func (s *Server) handleActivityList(w http.ResponseWriter, leadID string) {
	s.mu.Lock()
	items := make([]store.Activity, 0)
	for _, a := range s.activities {
		if a.LeadID == leadID {
			items = append(items, a)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleActivityCreate(w http.ResponseWriter, r *http.Request, user store.UserRef) {
	var activity store.Activity
	if err := json.NewDecoder(r.Body).Decode(&activity); err != nil || activity.LeadID == "" || activity.Title == "" {
		writeMessage(w, http.StatusBadRequest, "Lead and title are required")
		return
	}
	s.mu.Lock()
	s.nextID++
	activity.ID = fmt.Sprintf("act_%d", s.nextID)
	if activity.User == nil {
		u := user
		activity.User = &u
	}
	s.activities = append([]store.Activity{activity}, s.activities...)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, activity)
}

func (s *Server) handleActivityItem(w http.ResponseWriter, r *http.Request, id string) {
	s.mu.Lock()
	idx := -1
	for i, a := range s.activities {
		if a.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		writeMessage(w, http.StatusNotFound, "Activity not found")
		return
	}
	switch r.Method {
	case http.MethodPut:
		var patch store.Activity
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			s.mu.Unlock()
			writeMessage(w, http.StatusBadRequest, "Invalid activity payload")
			return
		}
		patch.ID = id
		s.activities[idx] = patch
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, patch)
	case http.MethodDelete:
		s.activities = append(s.activities[:idx], s.activities[idx+1:]...)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"message": "Activity deleted"})
	default:
		s.mu.Unlock()
		writeMessage(w, http.StatusNotFound, "Route not found")
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request, _ store.UserRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totalValue := 0.0
	won := 0
	byStatus := map[string]int{}
	byOwner := map[string]int{}
	for _, lead := range s.leads {
		totalValue += lead.EstimatedValue
		byStatus[lead.Status]++
		owner := lead.OwnerID
		if lead.Owner != nil {
			owner = lead.Owner.Name
		}
		byOwner[owner]++
		if lead.Status == "Won" {
			won++
		}
	}
	conversion := 0.0
	if len(s.leads) > 0 {
		conversion = math.Round(float64(won)/float64(len(s.leads))*1000) / 10
	}
	byType := map[string]int{}
	for _, a := range s.activities {
		byType[a.Type]++
	}

	snapshot := dashboard.Snapshot{
		TotalLeads:     len(s.leads),
		TotalValue:     totalValue,
		LeadsThisMonth: len(s.leads),
		ConversionRate: conversion,
	}
	for _, status := range store.LeadStatuses {
		if byStatus[status] > 0 {
			snapshot.LeadsByStatus = append(snapshot.LeadsByStatus, dashboard.StatusCount{Status: status, Count: byStatus[status]})
		}
	}
	for _, typ := range store.ActivityTypes {
		if byType[typ] > 0 {
			snapshot.ActivityTypes = append(snapshot.ActivityTypes, dashboard.TypeCount{Type: typ, Count: byType[typ]})
		}
	}
	owners := make([]string, 0, len(byOwner))
	for owner := range byOwner {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	for _, owner := range owners {
		snapshot.LeadsByOwner = append(snapshot.LeadsByOwner, dashboard.OwnerCount{Owner: owner, Count: byOwner[owner]})
	}
	recent := s.activities
	if len(recent) > 5 {
		recent = recent[:5]
	}
	snapshot.RecentActivities = append([]store.Activity(nil), recent...)

	writeJSON(w, http.StatusOK, snapshot)
}

func authPayload(acct *account, token string) map[string]any {
	return map[string]any{
		"id":    acct.User.ID,
		"name":  acct.User.Name,
		"email": acct.User.Email,
		"role":  acct.Role,
		"token": token,
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
