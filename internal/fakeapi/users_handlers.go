package fakeapi

import (
	"net/http"
	"slices"
	"sort"
	"strings"

	"github.com/jrsteele09/go-ticket-client/identity"
	"github.com/jrsteele09/go-ticket-client/users"
)

func (b *Backend) userRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /users/me", b.getMe)
	mux.HandleFunc("PUT /users/me", b.updateMe)
	mux.HandleFunc("GET /users", b.listUsers)
	mux.HandleFunc("POST /users", b.createUser)
	mux.HandleFunc("GET /users/{id}", b.getUser)
	mux.HandleFunc("GET /users/technicians", b.filterUsers(func(u *users.User, _ *http.Request) bool {
		return u.Role == users.RoleTechnician
	}))
	mux.HandleFunc("GET /users/role/{role}", b.filterUsers(func(u *users.User, r *http.Request) bool {
		return string(u.Role) == r.PathValue("role")
	}))
	mux.HandleFunc("GET /users/status/{status}", b.filterUsers(func(u *users.User, r *http.Request) bool {
		return string(u.Status) == r.PathValue("status")
	}))
	mux.HandleFunc("GET /users/search", b.searchUser)
	mux.HandleFunc("GET /users/statistics", b.userStats)
	mux.HandleFunc("PUT /users/{id}/role", b.updateUser(func(u *users.User, r *http.Request) error {
		var req struct{ Role users.Role }
		err := decode(r, &req)
		u.Role = req.Role
		return err
	}))
	mux.HandleFunc("PUT /users/{id}/status", b.updateUser(func(u *users.User, r *http.Request) error {
		var req struct{ Status users.Status }
		err := decode(r, &req)
		u.Status = req.Status
		return err
	}))
	mux.HandleFunc("PATCH /users/{id}/activate", b.updateUser(func(u *users.User, _ *http.Request) error {
		u.Status = users.StatusActive
		return nil
	}))
	mux.HandleFunc("PATCH /users/{id}/deactivate", b.updateUser(func(u *users.User, _ *http.Request) error {
		u.Status = users.StatusInactive
		return nil
	}))

	mux.HandleFunc("GET /users/sync/token-info", b.tokenInfo)
	mux.HandleFunc("GET /users/sync/user-info", b.tokenInfo)
	mux.HandleFunc("GET /debug/token-info", b.tokenInfo)
	mux.HandleFunc("GET /users/sync/exists", b.exists)
	mux.HandleFunc("POST /users/sync/force-sync", b.syncUser(users.PathSyncForceSync, true))
	mux.HandleFunc("POST /users/sync/create-minimal", b.syncUser(users.PathSyncCreateMinimal, false))
}

func (b *Backend) currentUser(w http.ResponseWriter, r *http.Request) (*users.User, bool) {
	claims := claimsFrom(r.Context())
	b.mu.RLock()
	u, ok := b.users[claims.Subject]
	b.mu.RUnlock()
	if !ok {
		writeError(w, r, http.StatusNotFound, "User not found with id: "+claims.Subject)
		return nil, false
	}
	return u, true
}

func (b *Backend) getMe(w http.ResponseWriter, r *http.Request) {
	if u, ok := b.currentUser(w, r); ok {
		b.mu.RLock()
		defer b.mu.RUnlock()
		writeJSON(w, http.StatusOK, u)
	}
}

func (b *Backend) updateMe(w http.ResponseWriter, r *http.Request) {
	u, ok := b.currentUser(w, r)
	if !ok {
		return
	}
	var req users.UpdateProfileRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Malformed request")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if req.FirstName != nil {
		u.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		u.LastName = *req.LastName
	}
	if req.Email != nil {
		u.Email = *req.Email
	}
	if req.PhoneNumber != nil {
		u.PhoneNumber = req.PhoneNumber
	}
	if req.Company != nil {
		u.Company = req.Company
	}
	if req.Department != nil {
		u.Department = req.Department
	}
	u.FullName = strings.TrimSpace(u.FirstName + " " + u.LastName)
	u.UpdatedAt = timestamp()
	writeJSON(w, http.StatusOK, u)
}

func (b *Backend) sortedUsers(keep func(*users.User) bool) []users.User {
	b.mu.RLock()
	defer b.mu.RUnlock()

	list := make([]users.User, 0)
	for _, u := range b.users {
		if keep(u) {
			list = append(list, *u)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func (b *Backend) listUsers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, b.sortedUsers(func(*users.User) bool { return true }))
}

func (b *Backend) filterUsers(keep func(*users.User, *http.Request) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, b.sortedUsers(func(u *users.User) bool { return keep(u, r) }))
	}
}

func (b *Backend) getUser(w http.ResponseWriter, r *http.Request) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	u, ok := b.users[r.PathValue("id")]
	if !ok {
		writeError(w, r, http.StatusNotFound, "User not found with id: "+r.PathValue("id"))
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (b *Backend) searchUser(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	list := b.sortedUsers(func(u *users.User) bool { return u.Username == username })
	if len(list) == 0 {
		writeError(w, r, http.StatusNotFound, "User not found with username: "+username)
		return
	}
	writeJSON(w, http.StatusOK, list[0])
}

func (b *Backend) userStats(w http.ResponseWriter, _ *http.Request) {
	var s users.Stats
	for _, u := range b.sortedUsers(func(*users.User) bool { return true }) {
		s.TotalUsers++
		if u.Status == users.StatusActive {
			s.ActiveUsers++
		} else {
			s.InactiveUsers++
		}
		switch u.Role {
		case users.RoleUser:
			s.Clients++
		case users.RoleTechnician:
			s.Technicians++
		case users.RoleAdmin:
			s.Admins++
		}
	}
	writeJSON(w, http.StatusOK, s)
}

func (b *Backend) createUser(w http.ResponseWriter, r *http.Request) {
	var req users.CreateRequest
	if err := decode(r, &req); err != nil || req.Username == "" || req.Email == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"status":           http.StatusUnprocessableEntity,
			"message":          "Validation failed",
			"validationErrors": map[string]string{"username": "must not be blank", "email": "must not be blank"},
		})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	id := "local-" + req.Username
	u := &users.User{
		ID:          id,
		Username:    req.Username,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		FullName:    strings.TrimSpace(req.FirstName + " " + req.LastName),
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Role:        req.Role,
		Status:      users.StatusPendingActivation,
		Company:     req.Company,
		Department:  req.Department,
		CreatedAt:   timestamp(),
		UpdatedAt:   timestamp(),
	}
	b.users[id] = u
	writeJSON(w, http.StatusCreated, u)
}

func (b *Backend) updateUser(apply func(*users.User, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		u, ok := b.users[r.PathValue("id")]
		if !ok {
			writeError(w, r, http.StatusNotFound, "User not found with id: "+r.PathValue("id"))
			return
		}
		if err := apply(u, r); err != nil {
			writeError(w, r, http.StatusBadRequest, "Malformed request")
			return
		}
		u.UpdatedAt = timestamp()
		writeJSON(w, http.StatusOK, u)
	}
}

func (b *Backend) tokenInfo(w http.ResponseWriter, r *http.Request) {
	c := claimsFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"subject":           c.Subject,
		"preferredUsername": c.Username,
		"email":             c.Email,
		"roles":             c.RealmRoles,
	})
}

func (b *Backend) exists(w http.ResponseWriter, r *http.Request) {
	if status := b.syncFailure(users.PathSyncExists); status != 0 {
		writeError(w, r, status, http.StatusText(status))
		return
	}
	c := claimsFrom(r.Context())
	writeJSON(w, http.StatusOK, users.ExistsResponse{
		UserID:   c.Subject,
		Username: c.Username,
		Exists:   b.HasUser(c.Subject),
	})
}

// syncUser creates the backend user from the token. Minimal creation keeps
// only the identifiers.
func (b *Backend) syncUser(path string, full bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if status := b.syncFailure(path); status != 0 {
			writeError(w, r, status, "Sync failed")
			return
		}
		c := claimsFrom(r.Context())
		u := users.User{
			Username:  c.Username,
			Email:     c.Email,
			Role:      users.RoleUser,
			Status:    users.StatusActive,
			CreatedAt: timestamp(),
			UpdatedAt: timestamp(),
		}
		if full {
			u.FirstName, u.LastName, u.FullName = c.GivenName, c.FamilyName, c.Name
			if roles := c.Roles(); len(roles) > 0 {
				u.Role = highestRole(roles)
			}
		}
		b.AddUser(c.Subject, u)
		u.ID = c.Subject
		writeJSON(w, http.StatusOK, u)
	}
}

func (b *Backend) syncFailure(path string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.syncStatus[path]
}

func highestRole(roles []identity.Role) identity.Role {
	for _, r := range []identity.Role{identity.RoleAdmin, identity.RoleTechnician} {
		if slices.Contains(roles, r) {
			return r
		}
	}
	return identity.RoleUser
}
