package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/chapterhq/roster-sync/internal/config"
	"github.com/chapterhq/roster-sync/internal/mapper"
	"github.com/chapterhq/roster-sync/internal/pkg/retry"
)

// Client is a supporter-directory API client. Every network call runs
// under the shared retry policy: transient failures are retried on a
// fixed delay, rejections are not, and an exhausted budget surfaces
// the terminal error.
//
// Create is not assumed safe to repeat; the orchestrator looks a
// person up first and chooses create vs. update.
type Client struct {
	baseURL    string
	apiKey     string
	namespace  string
	httpClient *http.Client
	retry      retry.Policy
}

// NewClient creates a new directory API client
func NewClient(cfg config.DirectoryConfig) *Client {
	return &Client{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		namespace: cfg.IDNamespace,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
		retry: retry.NewPolicy(cfg.RetryAttempts, cfg.RetryDelay()),
	}
}

// Namespace returns the identifier namespace of the directory's own IDs.
func (c *Client) Namespace() string { return c.namespace }

// peopleEnvelope is the HAL-style search response wrapper.
type peopleEnvelope struct {
	Embedded struct {
		People []Person `json:"osdi:people"`
	} `json:"_embedded"`
}

// FindByEmail searches the directory for people matching an email
// address. Zero matches is a normal result, not an error.
func (c *Client) FindByEmail(ctx context.Context, email string) ([]Person, error) {
	params := url.Values{}
	params.Set("filter", fmt.Sprintf("email_address eq '%s'", email))

	body, err := c.doRequest(ctx, http.MethodGet, "/people?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("finding person by email: %w", err)
	}

	var envelope peopleEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding people search response: %w", err)
	}
	return envelope.Embedded.People, nil
}

// GetByID fetches a single person by directory ID.
func (c *Client) GetByID(ctx context.Context, id string) (Person, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/people/"+id, nil)
	if err != nil {
		return Person{}, fmt.Errorf("fetching person %s: %w", id, err)
	}

	var person Person
	if err := json.Unmarshal(body, &person); err != nil {
		return Person{}, fmt.Errorf("decoding person response: %w", err)
	}
	return person, nil
}

// Create adds a new person to the directory.
func (c *Client) Create(ctx context.Context, person mapper.CanonicalPerson) (Person, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/people", personPayload(person))
	if err != nil {
		return Person{}, fmt.Errorf("creating person %s: %w", person.Email, err)
	}

	var created Person
	if err := json.Unmarshal(body, &created); err != nil {
		return Person{}, fmt.Errorf("decoding create response: %w", err)
	}
	return created, nil
}

// Update rewrites an existing person. The canonical person must carry
// the directory ID of the record being updated.
func (c *Client) Update(ctx context.Context, person mapper.CanonicalPerson) (Person, error) {
	if person.DirectoryID == "" {
		return Person{}, fmt.Errorf("updating person %s: directory ID not set", person.Email)
	}

	body, err := c.doRequest(ctx, http.MethodPut, "/people/"+person.DirectoryID, personPayload(person))
	if err != nil {
		return Person{}, fmt.Errorf("updating person %s: %w", person.DirectoryID, err)
	}

	var updated Person
	if err := json.Unmarshal(body, &updated); err != nil {
		return Person{}, fmt.Errorf("decoding update response: %w", err)
	}
	return updated, nil
}

// DeactivateByEmail flips the membership flag off for every person
// matching the email. Deactivation is a soft flag; records are never
// deleted.
func (c *Client) DeactivateByEmail(ctx context.Context, email string) ([]Person, error) {
	people, err := c.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	updated := make([]Person, 0, len(people))
	for _, person := range people {
		id := person.ID(c.namespace)
		if id == "" {
			continue
		}

		payload := map[string]any{
			"custom_fields": map[string]string{"is_member": "0"},
		}
		body, err := c.doRequest(ctx, http.MethodPut, "/people/"+id, payload)
		if err != nil {
			return updated, fmt.Errorf("deactivating person %s: %w", id, err)
		}

		var p Person
		if err := json.Unmarshal(body, &p); err != nil {
			return updated, fmt.Errorf("decoding deactivate response: %w", err)
		}
		updated = append(updated, p)
	}
	return updated, nil
}

// personPayload converts the canonical person to the directory's wire
// shape.
func personPayload(person mapper.CanonicalPerson) map[string]any {
	payload := map[string]any{
		"given_name":  person.GivenName,
		"family_name": person.FamilyName,
		"email_addresses": []EmailAddress{
			{Address: person.Email, Primary: true},
		},
		"postal_addresses": []PostalAddress{
			{
				AddressLines: person.Address,
				Locality:     person.City,
				Region:       person.State,
				Country:      person.Country,
				PostalCode:   person.PostalCode,
				Primary:      true,
			},
		},
		"custom_fields": person.CustomFields,
	}
	return payload
}

// doRequest makes an HTTP request to the directory API under the
// retry policy. The request is rebuilt per attempt so the body can be
// replayed.
func (c *Client) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var jsonBody []byte
	if payload != nil {
		var err error
		jsonBody, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
	}

	var respBody []byte
	err := c.retry.Do(ctx, method+" "+path, func(ctx context.Context) error {
		var reqBody io.Reader
		if jsonBody != nil {
			reqBody = bytes.NewReader(jsonBody)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("OSDI-API-Token", c.apiKey)
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
