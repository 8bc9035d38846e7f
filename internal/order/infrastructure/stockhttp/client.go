// Package stockhttp is the order service's read-only client for the stock
// ledger's availability probe. It runs outside any commit boundary; a
// failure here never rolls back order state.
package stockhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: 3 * time.Second},
	}
}

func (c *Client) Check(ctx context.Context, items map[string]int) (bool, error) {
	body, err := json.Marshal(map[string]any{"items": items})
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/stock/check", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("stock check: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Available bool `json:"available"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.Available, nil
}
