package identity

import (
	"context"
	"fmt"
	"log"
	"math/rand"

	"github.com/chapterhq/roster-sync/internal/config"
)

// requiredActionPasswordReset forces a password reset on first login.
const requiredActionPasswordReset = "UPDATE_PASSWORD"

// Provisioner creates and maintains identity accounts for members.
type Provisioner struct {
	api              API
	defaultFirstName string
	usernameAttempts int
	// randSuffix returns the numeric suffix for a generated username,
	// in [0, 10000). Swapped out in tests.
	randSuffix func() int
}

func NewProvisioner(api API, cfg config.IdentityConfig) *Provisioner {
	return &Provisioner{
		api:              api,
		defaultFirstName: cfg.DefaultFirstName,
		usernameAttempts: cfg.UsernameAttempts,
		randSuffix:       func() int { return rand.Intn(10000) },
	}
}

// Username builds a candidate username from name parts and a numeric
// suffix: first name, last-name initial, zero-padded four digits. An
// empty first name falls back to the configured placeholder.
func (p *Provisioner) Username(firstName, lastName string, suffix int) string {
	if firstName == "" {
		firstName = p.defaultFirstName
	}
	initial := ""
	if lastName != "" {
		initial = lastName[:1]
	}
	return fmt.Sprintf("%s%s%04d", firstName, initial, suffix)
}

// generateUsername finds a free username, regenerating the random
// suffix on collision up to the attempt bound. The check and the
// later create are separate calls; the window between them is an
// accepted race since the identity system has no atomic reservation.
func (p *Provisioner) generateUsername(ctx context.Context, firstName, lastName string) (string, error) {
	for attempt := 0; attempt < p.usernameAttempts; attempt++ {
		candidate := p.Username(firstName, lastName, p.randSuffix())

		taken, err := p.api.UsernameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		log.Printf("identity: username %s taken, regenerating", candidate)
	}
	return "", fmt.Errorf("no free username found for %s %s after %d attempts",
		firstName, lastName, p.usernameAttempts)
}

// Provision ensures the member has an identity account with current
// profile fields. New accounts get a generated username and must
// reset their password on first login. Accounts still on the legacy
// email-as-username convention are migrated to generated usernames.
func (p *Provisioner) Provision(ctx context.Context, email, givenName, familyName string) error {
	account, err := p.api.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("provisioning %s: %w", email, err)
	}

	if account == nil {
		username, err := p.generateUsername(ctx, givenName, familyName)
		if err != nil {
			return fmt.Errorf("provisioning %s: %w", email, err)
		}

		log.Printf("identity: creating account for %s as %s", email, username)
		err = p.api.CreateAccount(ctx, Account{
			Username:        username,
			Email:           email,
			FirstName:       givenName,
			LastName:        familyName,
			Enabled:         true,
			RequiredActions: []string{requiredActionPasswordReset},
		})
		if err != nil {
			return fmt.Errorf("provisioning %s: %w", email, err)
		}
		return nil
	}

	updated := Account{
		Username:  account.Username,
		Email:     email,
		FirstName: givenName,
		LastName:  familyName,
		Enabled:   true,
	}

	if account.Username == account.Email {
		// Legacy convention: username was the email address.
		username, err := p.generateUsername(ctx, givenName, familyName)
		if err != nil {
			return fmt.Errorf("provisioning %s: %w", email, err)
		}
		log.Printf("identity: migrating %s to username %s", email, username)
		updated.Username = username
	}

	if err := p.api.UpdateAccount(ctx, account.ID, updated); err != nil {
		return fmt.Errorf("provisioning %s: %w", email, err)
	}
	return nil
}
