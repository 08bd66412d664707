package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chapterhq/roster-sync/internal/config"
)

// fakeAPI is an in-memory identity API double.
type fakeAPI struct {
	accounts map[string]*Account // keyed by email
	taken    map[string]bool

	created []Account
	updated map[string]Account

	findErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		accounts: map[string]*Account{},
		taken:    map[string]bool{},
		updated:  map[string]Account{},
	}
}

func (f *fakeAPI) FindByEmail(ctx context.Context, email string) (*Account, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.accounts[email], nil
}

func (f *fakeAPI) UsernameExists(ctx context.Context, username string) (bool, error) {
	return f.taken[username], nil
}

func (f *fakeAPI) CreateAccount(ctx context.Context, account Account) error {
	f.created = append(f.created, account)
	return nil
}

func (f *fakeAPI) UpdateAccount(ctx context.Context, id string, account Account) error {
	f.updated[id] = account
	return nil
}

func testProvisioner(api API) *Provisioner {
	p := NewProvisioner(api, config.IdentityConfig{
		DefaultFirstName: "Comrade",
		UsernameAttempts: 3,
	})
	p.randSuffix = func() int { return 9999 }
	return p
}

func TestUsername(t *testing.T) {
	p := testProvisioner(newFakeAPI())

	tests := []struct {
		first, last string
		suffix      int
		want        string
	}{
		{"Karl", "Marx", 9999, "KarlM9999"},
		{"", "Marx", 9999, "ComradeM9999"},
		{"Karl", "", 9999, "Karl9999"},
		{"Karl", "Marx", 10, "KarlM0010"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Username(tt.first, tt.last, tt.suffix))
		})
	}
}

func TestProvision_CreatesNewAccount(t *testing.T) {
	api := newFakeAPI()
	p := testProvisioner(api)

	err := p.Provision(context.Background(), "kmarx@example.org", "Karl", "Marx")
	require.NoError(t, err)

	require.Len(t, api.created, 1)
	account := api.created[0]
	assert.Equal(t, "KarlM9999", account.Username)
	assert.Equal(t, "kmarx@example.org", account.Email)
	assert.True(t, account.Enabled)
	assert.Equal(t, []string{"UPDATE_PASSWORD"}, account.RequiredActions)
}

func TestProvision_RegeneratesOnCollision(t *testing.T) {
	api := newFakeAPI()
	api.taken["KarlM0001"] = true

	p := testProvisioner(api)
	suffixes := []int{1, 2}
	p.randSuffix = func() int {
		s := suffixes[0]
		if len(suffixes) > 1 {
			suffixes = suffixes[1:]
		}
		return s
	}

	err := p.Provision(context.Background(), "kmarx@example.org", "Karl", "Marx")
	require.NoError(t, err)
	require.Len(t, api.created, 1)
	assert.Equal(t, "KarlM0002", api.created[0].Username)
}

func TestProvision_CollisionExhaustionIsTerminal(t *testing.T) {
	api := newFakeAPI()
	api.taken["KarlM9999"] = true

	p := testProvisioner(api)

	err := p.Provision(context.Background(), "kmarx@example.org", "Karl", "Marx")
	require.Error(t, err)
	assert.Empty(t, api.created)
}

func TestProvision_MigratesLegacyUsername(t *testing.T) {
	api := newFakeAPI()
	api.accounts["kmarx@example.org"] = &Account{
		ID:       "id-1",
		Username: "kmarx@example.org",
		Email:    "kmarx@example.org",
		Enabled:  false,
	}

	p := testProvisioner(api)
	err := p.Provision(context.Background(), "kmarx@example.org", "Karl", "Marx")
	require.NoError(t, err)

	updated, ok := api.updated["id-1"]
	require.True(t, ok)
	assert.Equal(t, "KarlM9999", updated.Username)
	assert.Equal(t, "Karl", updated.FirstName)
	assert.True(t, updated.Enabled)
	assert.Empty(t, api.created)
}

func TestProvision_UpdatesProfileOnly(t *testing.T) {
	api := newFakeAPI()
	api.accounts["kmarx@example.org"] = &Account{
		ID:       "id-2",
		Username: "KarlM1234",
		Email:    "kmarx@example.org",
	}

	p := testProvisioner(api)
	err := p.Provision(context.Background(), "kmarx@example.org", "Karl", "Marx")
	require.NoError(t, err)

	updated := api.updated["id-2"]
	assert.Equal(t, "KarlM1234", updated.Username, "existing generated username kept")
	assert.Equal(t, "Marx", updated.LastName)
}

func TestProvision_LookupFailurePropagates(t *testing.T) {
	api := newFakeAPI()
	api.findErr = errors.New("identity system down")

	p := testProvisioner(api)
	err := p.Provision(context.Background(), "kmarx@example.org", "Karl", "Marx")
	assert.Error(t, err)
}
