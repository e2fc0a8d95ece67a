package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// TerraClient fetches measurement records from a Terra-style fitness data
// API. The API aggregates wearable data per user; this client only reads.
type TerraClient struct {
	baseURL string
	apiKey  string
	devID   string
	client  *http.Client
}

// NewTerraClient creates a client for the given API endpoint.
func NewTerraClient(baseURL, apiKey, devID string) *TerraClient {
	return &TerraClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		devID:   devID,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Fetch retrieves the measurement record set for one principal and interval.
func (c *TerraClient) Fetch(ctx context.Context, principal string, start, end time.Time) (Bundle, error) {
	q := url.Values{}
	q.Set("user_id", principal)
	q.Set("start_date", start.Format(time.RFC3339))
	q.Set("end_date", end.Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/activity?"+q.Encode(), nil)
	if err != nil {
		return Bundle{}, err
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("dev-id", c.devID)

	resp, err := c.client.Do(req)
	if err != nil {
		return Bundle{}, fmt.Errorf("evidence fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Bundle{}, fmt.Errorf("evidence API returned status %d", resp.StatusCode)
	}

	var b Bundle
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		return Bundle{}, fmt.Errorf("failed to decode evidence: %w", err)
	}
	b.Principal = principal
	b.Start = start
	b.End = end
	return b, nil
}
