package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client fetches the category/feature schema and model list from the cloud
// REST API. Requests authenticate with the same credentials as the MQTT
// session.
type Client struct {
	endpoint string
	login    string
	password string
	http     *http.Client
}

// NewClient creates a schema client for the given cloud endpoint.
//
// Parameters:
//   - endpoint: Cloud HTTP API base URL (no trailing slash required)
//   - login: MQTT account login, reused as basic-auth user
//   - password: MQTT account password
//   - timeout: Per-request timeout
func NewClient(endpoint, login, password string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		login:    login,
		password: password,
		http:     &http.Client{Timeout: timeout},
	}
}

// FetchCategories retrieves the category list and, per category, its
// feature list.
//
// Returns:
//   - map[string][]Feature: category → features
//   - error: If any request fails or returns a non-200 status
func (c *Client) FetchCategories(ctx context.Context) (map[string][]Feature, error) {
	var list struct {
		Categories []string `json:"categories"`
	}
	if err := c.getJSON(ctx, "/v1/mqtt-gate/categories", &list); err != nil {
		return nil, fmt.Errorf("fetching categories: %w", err)
	}

	out := make(map[string][]Feature, len(list.Categories))
	for _, cat := range list.Categories {
		var features struct {
			Features []Feature `json:"features"`
		}
		path := "/v1/mqtt-gate/categories/" + cat + "/features"
		if err := c.getJSON(ctx, path, &features); err != nil {
			return nil, fmt.Errorf("fetching features for %q: %w", cat, err)
		}
		out[cat] = features.Features
	}

	return out, nil
}

// FetchModels retrieves the raw model list document.
func (c *Client) FetchModels(ctx context.Context) (json.RawMessage, error) {
	body, err := c.get(ctx, "/v1/mqtt-gate/models")
	if err != nil {
		return nil, fmt.Errorf("fetching models: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("fetching models: response is not valid JSON")
	}
	return body, nil
}

// Proxy forwards a GET to the cloud API and returns status, content type
// and body. Used by the admin passthrough endpoints.
func (c *Client) Proxy(ctx context.Context, path string) (int, string, []byte, error) {
	req, err := c.newRequest(ctx, path)
	if err != nil {
		return 0, "", nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", nil, fmt.Errorf("cloud request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", nil, fmt.Errorf("reading cloud response: %w", err)
	}
	return resp.StatusCode, resp.Header.Get("Content-Type"), body, nil
}

func (c *Client) newRequest(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building cloud request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.login, c.password)
	return req, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := c.newRequest(ctx, path)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloud request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cloud returned status %d for %s", resp.StatusCode, path)
	}

	return io.ReadAll(resp.Body)
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
