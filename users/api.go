package users

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-ticket-client/gateway"
)

const (
	PathMe          = "/users/me"
	PathUsers       = "/users"
	PathTechnicians = "/users/technicians"
	PathByRole      = "/users/role/"
	PathByStatus    = "/users/status/"
	PathSearch      = "/users/search"
	PathStatistics  = "/users/statistics"
)

type API struct {
	client *gateway.Client
}

func NewAPI(client *gateway.Client) *API {
	return &API{client: client}
}

// Me returns the backend record of the authenticated user
func (a *API) Me(ctx context.Context) (*User, error) {
	var u User
	if err := a.client.Get(ctx, PathMe, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (a *API) UpdateMe(ctx context.Context, req UpdateProfileRequest) (*User, error) {
	var u User
	if err := a.client.Put(ctx, PathMe, req, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (a *API) List(ctx context.Context) ([]User, error) {
	return a.list(ctx, PathUsers, nil)
}

func (a *API) Get(ctx context.Context, id string) (*User, error) {
	var u User
	if err := a.client.Get(ctx, userPath(id), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (a *API) Technicians(ctx context.Context) ([]User, error) {
	return a.list(ctx, PathTechnicians, nil)
}

func (a *API) ByRole(ctx context.Context, role Role) ([]User, error) {
	return a.list(ctx, PathByRole+url.PathEscape(string(role)), nil)
}

func (a *API) ByStatus(ctx context.Context, status Status) ([]User, error) {
	return a.list(ctx, PathByStatus+url.PathEscape(string(status)), nil)
}

// Search looks a user up by exact username
func (a *API) Search(ctx context.Context, username string) (*User, error) {
	var u User
	if err := a.client.Get(ctx, PathSearch, url.Values{"username": {username}}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (a *API) Statistics(ctx context.Context) (*Stats, error) {
	var s Stats
	if err := a.client.Get(ctx, PathStatistics, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (a *API) Create(ctx context.Context, req CreateRequest) (*User, error) {
	var u User
	if err := a.client.Post(ctx, PathUsers, req, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (a *API) UpdateRole(ctx context.Context, id string, role Role) (*User, error) {
	return a.modify(ctx, http.MethodPut, userPath(id)+"/role", map[string]Role{"role": role})
}

func (a *API) UpdateStatus(ctx context.Context, id string, status Status) (*User, error) {
	return a.modify(ctx, http.MethodPut, userPath(id)+"/status", map[string]Status{"status": status})
}

func (a *API) Activate(ctx context.Context, id string) (*User, error) {
	return a.modify(ctx, http.MethodPatch, userPath(id)+"/activate", struct{}{})
}

func (a *API) Deactivate(ctx context.Context, id string) (*User, error) {
	return a.modify(ctx, http.MethodPatch, userPath(id)+"/deactivate", struct{}{})
}

func (a *API) list(ctx context.Context, path string, query url.Values) ([]User, error) {
	var list []User
	if err := a.client.Get(ctx, path, query, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (a *API) modify(ctx context.Context, method, path string, body any) (*User, error) {
	var u User
	if err := a.client.Send(ctx, method, path, body, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func userPath(id string) string {
	return PathUsers + "/" + url.PathEscape(id)
}
