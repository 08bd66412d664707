// Package identity manages accounts in the external identity system:
// looking accounts up, creating them for new members, and keeping
// profile fields in step with the roster.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/chapterhq/roster-sync/internal/config"
	"github.com/chapterhq/roster-sync/internal/pkg/retry"
)

// Account is the identity system's view of a user.
type Account struct {
	ID              string   `json:"id,omitempty"`
	Username        string   `json:"username"`
	Email           string   `json:"email"`
	FirstName       string   `json:"firstName,omitempty"`
	LastName        string   `json:"lastName,omitempty"`
	Enabled         bool     `json:"enabled"`
	RequiredActions []string `json:"requiredActions,omitempty"`
}

// API is the subset of the identity admin API the provisioner needs.
type API interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	CreateAccount(ctx context.Context, account Account) error
	UpdateAccount(ctx context.Context, id string, account Account) error
}

// Client talks to the identity system's admin API, authenticating
// with OAuth2 client credentials. Calls run under the shared retry
// policy.
type Client struct {
	baseURL    string
	realm      string
	httpClient *http.Client
	retry      retry.Policy
}

// NewClient creates a new identity admin API client. The context
// governs token refresh requests for the lifetime of the client.
func NewClient(ctx context.Context, cfg config.IdentityConfig) *Client {
	creds := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", cfg.BaseURL, cfg.Realm),
	}

	httpClient := creds.Client(ctx)
	httpClient.Timeout = cfg.Timeout()

	return &Client{
		baseURL:    cfg.BaseURL,
		realm:      cfg.Realm,
		httpClient: httpClient,
		retry:      retry.NewPolicy(cfg.RetryAttempts, cfg.RetryDelay()),
	}
}

// FindByEmail returns the account registered under an email address,
// or nil when none exists.
func (c *Client) FindByEmail(ctx context.Context, email string) (*Account, error) {
	params := url.Values{}
	params.Set("email", email)
	params.Set("exact", "true")

	body, err := c.doRequest(ctx, http.MethodGet, "/users?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("finding account by email: %w", err)
	}

	var accounts []Account
	if err := json.Unmarshal(body, &accounts); err != nil {
		return nil, fmt.Errorf("decoding account search response: %w", err)
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

// UsernameExists reports whether a username is already taken.
func (c *Client) UsernameExists(ctx context.Context, username string) (bool, error) {
	params := url.Values{}
	params.Set("username", username)
	params.Set("exact", "true")

	body, err := c.doRequest(ctx, http.MethodGet, "/users?"+params.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("checking username: %w", err)
	}

	var accounts []Account
	if err := json.Unmarshal(body, &accounts); err != nil {
		return false, fmt.Errorf("decoding username search response: %w", err)
	}
	return len(accounts) > 0, nil
}

// CreateAccount registers a new account.
func (c *Client) CreateAccount(ctx context.Context, account Account) error {
	if _, err := c.doRequest(ctx, http.MethodPost, "/users", account); err != nil {
		return fmt.Errorf("creating account %s: %w", account.Email, err)
	}
	return nil
}

// UpdateAccount rewrites profile fields on an existing account.
func (c *Client) UpdateAccount(ctx context.Context, id string, account Account) error {
	if _, err := c.doRequest(ctx, http.MethodPut, "/users/"+id, account); err != nil {
		return fmt.Errorf("updating account %s: %w", id, err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var jsonBody []byte
	if payload != nil {
		var err error
		jsonBody, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
	}

	adminPath := fmt.Sprintf("%s/admin/realms/%s%s", c.baseURL, c.realm, path)

	var respBody []byte
	err := c.retry.Do(ctx, method+" "+path, func(ctx context.Context) error {
		var reqBody io.Reader
		if jsonBody != nil {
			reqBody = bytes.NewReader(jsonBody)
		}

		req, err := http.NewRequestWithContext(ctx, method, adminPath, reqBody)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &retry.TransientError{Err: fmt.Errorf("executing request: %w", err)}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &retry.TransientError{Err: fmt.Errorf("reading response: %w", err)}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
			if retry.TransientStatus(resp.StatusCode) {
				return &retry.TransientError{Err: apiErr}
			}
			return apiErr
		}

		respBody = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return respBody, nil
}
