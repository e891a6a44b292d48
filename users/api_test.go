package users_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/jrsteele09/go-ticket-client/gateway"
	"github.com/jrsteele09/go-ticket-client/identity/identitytest"
	"github.com/jrsteele09/go-ticket-client/internal/fakeapi"
	"github.com/jrsteele09/go-ticket-client/internal/utils"
	"github.com/jrsteele09/go-ticket-client/users"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newAPI(t *testing.T) (*users.API, *fakeapi.Backend) {
	t.Helper()
	backend := fakeapi.New(t)
	session := fakeapi.NewSession("user-1", identitytest.WithRealmRoles("admin"))
	client := gateway.New(backend.URL(), session, gateway.WithLogger(zerolog.Nop()))
	return users.NewAPI(client), backend
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	api, backend := newAPI(t)
	backend.AddUser("user-1", users.User{Username: "jdoe", FirstName: "Jane", LastName: "Doe", Role: users.RoleUser})

	me, err := api.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "user-1", me.ID)
	require.Equal(t, "jdoe", me.Username)

	me, err = api.UpdateMe(ctx, users.UpdateProfileRequest{
		LastName: utils.Ptr("Smith"),
		Company:  utils.Ptr("Acme"),
	})
	require.NoError(t, err)
	require.Equal(t, "Jane Smith", me.FullName)
	require.Equal(t, "Acme", utils.Value(me.Company))
}

func TestMeWithoutBackendUser(t *testing.T) {
	api, _ := newAPI(t)

	_, err := api.Me(context.Background())
	var apiErr *gateway.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	require.Contains(t, apiErr.Message(), "User not found")
}

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	api, backend := newAPI(t)
	backend.AddUser("a", users.User{Username: "alice", Role: users.RoleTechnician, Status: users.StatusActive})
	backend.AddUser("b", users.User{Username: "bob", Role: users.RoleUser, Status: users.StatusInactive})
	backend.AddUser("c", users.User{Username: "carol", Role: users.RoleAdmin, Status: users.StatusActive})

	all, err := api.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	u, err := api.Get(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, "bob", u.Username)

	techs, err := api.Technicians(ctx)
	require.NoError(t, err)
	require.Len(t, techs, 1)
	require.Equal(t, "alice", techs[0].Username)

	admins, err := api.ByRole(ctx, users.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, admins, 1)

	inactive, err := api.ByStatus(ctx, users.StatusInactive)
	require.NoError(t, err)
	require.Len(t, inactive, 1)
	require.Equal(t, "b", inactive[0].ID)

	found, err := api.Search(ctx, "carol")
	require.NoError(t, err)
	require.Equal(t, "c", found.ID)

	stats, err := api.Statistics(ctx)
	require.NoError(t, err)
	require.Equal(t, users.Stats{TotalUsers: 3, ActiveUsers: 2, InactiveUsers: 1, Clients: 1, Technicians: 1, Admins: 1}, *stats)
}

func TestAdministration(t *testing.T) {
	ctx := context.Background()
	api, _ := newAPI(t)

	created, err := api.Create(ctx, users.CreateRequest{
		Username:  "dave",
		FirstName: "Dave",
		LastName:  "Jones",
		Email:     "dave@example.com",
		Role:      users.RoleUser,
	})
	require.NoError(t, err)
	require.Equal(t, users.StatusPendingActivation, created.Status)

	u, err := api.UpdateRole(ctx, created.ID, users.RoleTechnician)
	require.NoError(t, err)
	require.Equal(t, users.RoleTechnician, u.Role)

	u, err = api.Activate(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, users.StatusActive, u.Status)

	u, err = api.Deactivate(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, users.StatusInactive, u.Status)

	u, err = api.UpdateStatus(ctx, created.ID, users.StatusSuspended)
	require.NoError(t, err)
	require.Equal(t, users.StatusSuspended, u.Status)

	t.Run("validation errors", func(t *testing.T) {
		_, err := api.Create(ctx, users.CreateRequest{FirstName: "No", LastName: "Name"})
		require.Equal(t, map[string]string{
			"username": "must not be blank",
			"email":    "must not be blank",
		}, gateway.ValidationErrors(err))
	})
}

func TestSyncEndpoints(t *testing.T) {
	ctx := context.Background()
	api, backend := newAPI(t)

	exists, err := api.CheckExists(ctx)
	require.NoError(t, err)
	require.Equal(t, users.ExistsResponse{UserID: "user-1", Username: "jdoe", Exists: false}, *exists)

	info, err := api.TokenInfo(ctx)
	require.NoError(t, err)
	require.Equal(t, "user-1", info["subject"])

	_, err = api.UserInfo(ctx)
	require.NoError(t, err)
	_, err = api.DebugTokenInfo(ctx)
	require.NoError(t, err)

	u, err := api.ForceSync(ctx)
	require.NoError(t, err)
	require.Equal(t, users.RoleAdmin, u.Role)
	require.Equal(t, "Jane Doe", u.FullName)
	require.True(t, backend.HasUser("user-1"))

	exists, err = api.CheckExists(ctx)
	require.NoError(t, err)
	require.True(t, exists.Exists)

	minimal, err := api.CreateMinimal(ctx)
	require.NoError(t, err)
	require.Equal(t, users.RoleUser, minimal.Role)
	require.Empty(t, minimal.FirstName)
}

func TestLabels(t *testing.T) {
	require.Equal(t, "Pending activation", users.StatusPendingActivation.Label())
	require.Equal(t, "Administrator", users.RoleLabel(users.RoleAdmin))
	require.Equal(t, "GUEST", users.RoleLabel("GUEST"))
}
