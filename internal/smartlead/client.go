// Package smartlead wraps the Smartlead REST API. Pagination, rate limit
// handling and retries live here, the rest of the pipeline only sees
// campaigns and raw per-email event rows.
package smartlead

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/modfin/henry/slicez"
	"github.com/ruthkhan/bouncefeed/tools"
	"github.com/sirupsen/logrus"
)

// Recoverable errors
var ErrRateLimited = errors.New("upstream rate limited the request")
var ErrServerError = errors.New("upstream returned a server error")
var ErrTransport = errors.New("could not reach upstream")

// Terminal errors
var ErrBadStatus = errors.New("upstream returned an unexpected status")
var ErrMalformedPayload = errors.New("upstream returned a malformed payload")

var retryableErrors = []error{
	ErrRateLimited,
	ErrServerError,
	ErrTransport,
}

func IsRetryable(err error) bool {
	return slicez.ContainsBy(retryableErrors, func(e error) bool {
		return errors.Is(err, e)
	})
}

type Campaign struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// RawEvent is one per-email statistics row as the provider returns it.
// Optional fields may be absent or null.
type RawEvent struct {
	LeadEmail      string `json:"lead_email"`
	FromEmail      string `json:"from_email"`
	EmailMessage   string `json:"email_message"`
	EmailSubject   string `json:"email_subject"`
	EmailStatus    string `json:"email_status"`
	SentTime       string `json:"sent_time"`
	SequenceNumber *int   `json:"sequence_number"`
	IsBounced      *bool  `json:"is_bounced"`
}

type Config struct {
	BaseURL  string
	APIKey   string
	PageSize int
	Timeout  time.Duration

	Backoff *FailConfig
}

func New(cfg Config, lc *tools.Logger) *Client {

	logger := lc.New("smartlead")

	if cfg.PageSize < 1 {
		cfg.PageSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultFailConfig
	}

	return &Client{
		cfg:  cfg,
		log:  logger,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type Client struct {
	cfg  Config
	log  *logrus.Logger
	http *http.Client
}

// ListCampaigns returns all campaigns visible to the api key.
func (c *Client) ListCampaigns(ctx context.Context) ([]Campaign, error) {

	body, err := c.get(ctx, c.endpoint("/campaigns", nil))
	if err != nil {
		return nil, fmt.Errorf("could not list campaigns, %w", err)
	}

	var campaigns []Campaign
	err = json.Unmarshal(body, &campaigns)
	if err != nil {
		return nil, fmt.Errorf("could not decode campaign list, %w, %w", ErrMalformedPayload, err)
	}
	return campaigns, nil
}

// ListBounceEvents pages through the bounce classified statistics of one
// campaign and concatenates the pages.
func (c *Client) ListBounceEvents(ctx context.Context, campaignID int64) ([]RawEvent, error) {

	var all []RawEvent
	offset := 0
	for {
		params := url.Values{}
		params.Set("email_status", bounced)
		params.Set("offset", strconv.Itoa(offset))
		params.Set("limit", strconv.Itoa(c.cfg.PageSize))

		body, err := c.get(ctx, c.endpoint(fmt.Sprintf("/campaigns/%d/statistics", campaignID), params))
		if err != nil {
			return nil, fmt.Errorf("could not fetch statistics page at offset %d for campaign %d, %w", offset, campaignID, err)
		}

		events, err := decodeEvents(body)
		if err != nil {
			return nil, fmt.Errorf("campaign %d, %w", campaignID, err)
		}

		c.log.WithField("campaign_id", campaignID).
			WithField("offset", offset).
			Debugf("fetched %d bounce events", len(events))

		all = append(all, events...)

		// a short page means the provider has no further pages
		if len(events) < c.cfg.PageSize {
			break
		}
		offset += c.cfg.PageSize
	}

	return all, nil
}

const bounced = "bounced"

// decodeEvents tolerates both the bare array shape and the object shape with
// a 'data' key, the provider has returned both.
func decodeEvents(body []byte) ([]RawEvent, error) {
	body = bytes.TrimSpace(body)

	if len(body) > 0 && body[0] == '[' {
		var events []RawEvent
		err := json.Unmarshal(body, &events)
		if err != nil {
			return nil, fmt.Errorf("could not decode event array, %w, %w", ErrMalformedPayload, err)
		}
		return events, nil
	}

	var page struct {
		Data []RawEvent `json:"data"`
	}
	err := json.Unmarshal(body, &page)
	if err != nil {
		return nil, fmt.Errorf("could not decode event page, %w, %w", ErrMalformedPayload, err)
	}
	return page.Data, nil
}

func (c *Client) endpoint(path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.cfg.APIKey)
	return strings.TrimRight(c.cfg.BaseURL, "/") + path + "?" + params.Encode()
}

// get issues one GET, retrying transient failures with exponential backoff.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {

	retries := c.cfg.Backoff.NewRetries()
	for {
		body, err := c.do(ctx, u)
		if err == nil {
			return body, nil
		}
		if !IsRetryable(err) {
			return nil, err
		}

		c.log.WithError(err).Warn("transient upstream failure, backing off")

		berr := retries.Backoff(ctx)
		if berr != nil {
			return nil, fmt.Errorf("%w, %w", berr, err)
		}
	}
}

func (c *Client) do(ctx context.Context, u string) ([]byte, error) {

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w, %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w, status %d", ErrServerError, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w, status %d", ErrBadStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w, %w", ErrTransport, err)
	}
	return body, nil
}
