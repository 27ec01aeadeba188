package fetcher

import (
	"errors"
	"testing"
	"time"

	"github.com/ruthkhan/bouncefeed"
	"github.com/ruthkhan/bouncefeed/internal/smartlead"
)

func intp(i int) *int {
	return &i
}

func boolp(b bool) *bool {
	return &b
}

func TestNormalize(t *testing.T) {
	type testCase struct {
		name     string
		raw      smartlead.RawEvent
		wantErr  bool
		want     bouncefeed.BounceRecord
		wantTime string
	}

	for _, tc := range []testCase{
		{
			name: "complete event",
			raw: smartlead.RawEvent{
				LeadEmail:      "lead@example.com",
				FromEmail:      "sender@example.com",
				EmailMessage:   "hello",
				EmailSubject:   "subject",
				EmailStatus:    "bounced",
				SentTime:       "2024-03-01T10:00:00Z",
				SequenceNumber: intp(2),
				IsBounced:      boolp(true),
			},
			want: bouncefeed.BounceRecord{
				EmailAddress:   "lead@example.com",
				FromEmail:      "sender@example.com",
				EmailMessage:   "hello",
				EmailSubject:   "subject",
				CampaignID:     7,
				CampaignName:   "Camp A",
				EmailStatus:    "bounced",
				IsBounced:      true,
				SequenceNumber: 2,
			},
			wantTime: "2024-03-01T10:00:00Z",
		},
		{
			name: "explicit is_bounced false is kept",
			raw: smartlead.RawEvent{
				LeadEmail: "lead@example.com",
				SentTime:  "2024-03-01T10:00:00Z",
				IsBounced: boolp(false),
			},
			want: bouncefeed.BounceRecord{
				EmailAddress: "lead@example.com",
				CampaignID:   7,
				CampaignName: "Camp A",
				EmailStatus:  bouncefeed.StatusBounced,
				IsBounced:    false,
			},
			wantTime: "2024-03-01T10:00:00Z",
		},
		{
			name: "optional fields default",
			raw: smartlead.RawEvent{
				LeadEmail: "lead@example.com",
				SentTime:  "2024-03-01T10:00:00Z",
			},
			want: bouncefeed.BounceRecord{
				EmailAddress: "lead@example.com",
				CampaignID:   7,
				CampaignName: "Camp A",
				EmailStatus:  bouncefeed.StatusBounced,
				IsBounced:    true,
			},
			wantTime: "2024-03-01T10:00:00Z",
		},
		{
			name: "offset converted to utc",
			raw: smartlead.RawEvent{
				LeadEmail: "lead@example.com",
				SentTime:  "2024-03-01T12:00:00+02:00",
			},
			want: bouncefeed.BounceRecord{
				EmailAddress: "lead@example.com",
				CampaignID:   7,
				CampaignName: "Camp A",
				EmailStatus:  bouncefeed.StatusBounced,
				IsBounced:    true,
			},
			wantTime: "2024-03-01T10:00:00Z",
		},
		{
			name: "naive timestamp treated as utc",
			raw: smartlead.RawEvent{
				LeadEmail: "lead@example.com",
				SentTime:  "2024-03-01T10:00:00",
			},
			want: bouncefeed.BounceRecord{
				EmailAddress: "lead@example.com",
				CampaignID:   7,
				CampaignName: "Camp A",
				EmailStatus:  bouncefeed.StatusBounced,
				IsBounced:    true,
			},
			wantTime: "2024-03-01T10:00:00Z",
		},
		{
			name:    "missing lead email",
			raw:     smartlead.RawEvent{SentTime: "2024-03-01T10:00:00Z"},
			wantErr: true,
		},
		{
			name:    "missing sent time",
			raw:     smartlead.RawEvent{LeadEmail: "lead@example.com"},
			wantErr: true,
		},
		{
			name:    "unparsable sent time",
			raw:     smartlead.RawEvent{LeadEmail: "lead@example.com", SentTime: "last tuesday"},
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := normalize(tc.raw, 7, "Camp A")

			if tc.wantErr {
				if !errors.Is(err, ErrIncompleteEvent) {
					t.Fatalf("expected ErrIncompleteEvent, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("normalize failed: %v", err)
			}

			wantTime, err := time.Parse(time.RFC3339, tc.wantTime)
			if err != nil {
				t.Fatal(err)
			}
			if !got.SentTime.Equal(wantTime) {
				t.Errorf("expected sent time %s, got %s", wantTime, got.SentTime)
			}

			got.SentTime = time.Time{}
			if got != tc.want {
				t.Errorf("expected record %+v, got %+v", tc.want, got)
			}
		})
	}
}
