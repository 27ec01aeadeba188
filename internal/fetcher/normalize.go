package fetcher

import (
	"errors"
	"fmt"
	"time"

	"github.com/ruthkhan/bouncefeed"
	"github.com/ruthkhan/bouncefeed/internal/smartlead"
)

// ErrIncompleteEvent marks an upstream event that cannot be turned into a
// record, the event is skipped rather than failing the run.
var ErrIncompleteEvent = errors.New("event is missing required fields")

var sentTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseSentTime(s string) (time.Time, error) {
	var err error
	for _, layout := range sentTimeLayouts {
		var t time.Time
		t, err = time.Parse(layout, s)
		if err == nil {
			return t.In(time.UTC), nil
		}
	}
	return time.Time{}, err
}

// normalize maps one raw provider event onto the canonical record shape.
// Missing optional fields get zero value defaults, a missing recipient or
// send time is an error since both are part of the record identity.
func normalize(raw smartlead.RawEvent, campaignID int64, campaignName string) (bouncefeed.BounceRecord, error) {

	if raw.LeadEmail == "" {
		return bouncefeed.BounceRecord{}, fmt.Errorf("%w, no lead_email", ErrIncompleteEvent)
	}
	if raw.SentTime == "" {
		return bouncefeed.BounceRecord{}, fmt.Errorf("%w, no sent_time", ErrIncompleteEvent)
	}

	sentTime, err := parseSentTime(raw.SentTime)
	if err != nil {
		return bouncefeed.BounceRecord{}, fmt.Errorf("%w, could not parse sent_time %q, %w", ErrIncompleteEvent, raw.SentTime, err)
	}

	status := raw.EmailStatus
	if status == "" {
		status = bouncefeed.StatusBounced
	}

	var sequence int
	if raw.SequenceNumber != nil {
		sequence = *raw.SequenceNumber
	}

	// events are fetched with the bounced status filter, so an absent
	// is_bounced flag means bounced
	bounced := true
	if raw.IsBounced != nil {
		bounced = *raw.IsBounced
	}

	return bouncefeed.BounceRecord{
		EmailAddress:   raw.LeadEmail,
		FromEmail:      raw.FromEmail,
		EmailMessage:   raw.EmailMessage,
		EmailSubject:   raw.EmailSubject,
		CampaignID:     campaignID,
		CampaignName:   campaignName,
		EmailStatus:    status,
		IsBounced:      bounced,
		SentTime:       sentTime,
		SequenceNumber: sequence,
	}, nil
}
