package bouncefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

func NewClient(host string) *Client {
	host = strings.TrimRight(host, "/")
	return &Client{
		host: host,
	}
}

// Client talks to a running bouncefeed daemon.
type Client struct {
	host string
}

type RecordsResponse struct {
	Status       string         `json:"status"`
	Data         []BounceRecord `json:"data"`
	FetchedAt    string         `json:"fetched_at,omitempty"`
	TotalBounced int            `json:"total_bounced"`
	Message      string         `json:"message,omitempty"`
}

type LogsResponse struct {
	Logs []FetchLog `json:"logs"`
}

func (c *Client) Records(ctx context.Context) (RecordsResponse, error) {
	var res RecordsResponse
	err := c.get(ctx, "/bounced-emails", &res)
	return res, err
}

func (c *Client) Logs(ctx context.Context, limit int) (LogsResponse, error) {
	var res LogsResponse
	err := c.get(ctx, fmt.Sprintf("/logs?limit=%d", limit), &res)
	return res, err
}

// Refresh triggers a synchronous fetch run and returns its outcome.
func (c *Client) Refresh(ctx context.Context) (FetchLog, error) {
	var entry FetchLog

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/refresh", nil)
	if err != nil {
		return entry, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return entry, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return entry, err
	}
	if resp.StatusCode != http.StatusOK {
		return entry, fmt.Errorf("refresh returned %d, %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	err = json.Unmarshal(body, &entry)
	return entry, err
}

func (c *Client) get(ctx context.Context, path string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+path, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(into)
}
