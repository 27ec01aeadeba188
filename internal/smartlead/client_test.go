package smartlead

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ruthkhan/bouncefeed/tools"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, srv *httptest.Server, pageSize int) *Client {
	t.Helper()

	l := logrus.New()
	l.SetOutput(io.Discard)

	return New(Config{
		BaseURL:  srv.URL,
		APIKey:   "test-key",
		PageSize: pageSize,
		Timeout:  5 * time.Second,
		Backoff:  &FailConfig{Base: 1, Cap: 5, Jitter: 1, MaxAttempts: 3},
	}, tools.LoggerCloner(l))
}

func TestListCampaigns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/campaigns", r.URL.Path)
		require.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		_ = json.NewEncoder(w).Encode([]Campaign{{ID: 1, Name: "Camp A"}, {ID: 2, Name: "Camp B"}})
	}))
	defer srv.Close()

	campaigns, err := testClient(t, srv, 100).ListCampaigns(context.Background())
	require.NoError(t, err)
	require.Len(t, campaigns, 2)
	require.Equal(t, int64(1), campaigns[0].ID)
	require.Equal(t, "Camp B", campaigns[1].Name)
}

func TestListCampaigns_MalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"nope": true}`))
	}))
	defer srv.Close()

	_, err := testClient(t, srv, 100).ListCampaigns(context.Background())
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestListBounceEvents_PaginatesUntilShortPage(t *testing.T) {
	pages := [][]RawEvent{
		{{LeadEmail: "a@example.com"}, {LeadEmail: "b@example.com"}},
		{{LeadEmail: "c@example.com"}, {LeadEmail: "d@example.com"}},
		{{LeadEmail: "e@example.com"}},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/campaigns/7/statistics", r.URL.Path)
		require.Equal(t, "bounced", r.URL.Query().Get("email_status"))

		var offset int
		_, _ = fmt.Sscan(r.URL.Query().Get("offset"), &offset)
		page := offset / 2
		if page >= len(pages) {
			_ = json.NewEncoder(w).Encode([]RawEvent{})
			return
		}
		_ = json.NewEncoder(w).Encode(pages[page])
	}))
	defer srv.Close()

	events, err := testClient(t, srv, 2).ListBounceEvents(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, events, 5)
	require.Equal(t, "a@example.com", events[0].LeadEmail)
	require.Equal(t, "e@example.com", events[4].LeadEmail)
}

func TestListBounceEvents_ObjectShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [{"lead_email": "a@example.com", "sequence_number": 2}]}`))
	}))
	defer srv.Close()

	events, err := testClient(t, srv, 100).ListBounceEvents(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "a@example.com", events[0].LeadEmail)
	require.NotNil(t, events[0].SequenceNumber)
	require.Equal(t, 2, *events[0].SequenceNumber)
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode([]Campaign{{ID: 1, Name: "Camp A"}})
	}))
	defer srv.Close()

	campaigns, err := testClient(t, srv, 100).ListCampaigns(context.Background())
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestGet_RetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode([]Campaign{})
	}))
	defer srv.Close()

	_, err := testClient(t, srv, 100).ListCampaigns(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestGet_TerminalStatusDoesNotRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(t, srv, 100).ListCampaigns(context.Background())
	require.ErrorIs(t, err, ErrBadStatus)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestGet_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(t, srv, 100).ListCampaigns(context.Background())
	require.ErrorIs(t, err, ErrMaxRetriesExceeded)
	require.ErrorIs(t, err, ErrServerError)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}
