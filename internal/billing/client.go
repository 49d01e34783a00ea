// Package billing is the HTTP client for the payment provider's
// subscription API. The core consumes it only through
// core.SubscriptionSource; nothing here interprets payment data.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spellhq/spellgate/internal/core"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type subscriptionItem struct {
	ScopeRef  string     `json:"scope_ref"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Snapshot fetches the subject's current subscription state from the
// provider. Only items the provider reports as active count.
func (c *Client) Snapshot(ctx context.Context, subjectID string) ([]core.SubscriptionState, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("billing provider not configured")
	}

	u := fmt.Sprintf("%s/v1/subscriptions?subject=%s", c.baseURL, url.QueryEscape(subjectID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build subscription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions for %s: %w", subjectID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query subscriptions for %s: status %d", subjectID, resp.StatusCode)
	}

	var payload struct {
		Items []subscriptionItem `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode subscription response: %w", err)
	}

	var states []core.SubscriptionState
	for _, item := range payload.Items {
		if item.Status != "active" {
			continue
		}
		states = append(states, core.SubscriptionState{
			ScopeRef:  item.ScopeRef,
			ExpiresAt: item.ExpiresAt,
		})
	}
	return states, nil
}
