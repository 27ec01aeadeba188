package bouncefeed

import (
	"fmt"
	"time"
)

// BounceRecord is one normalized bounce event pulled from the upstream
// provider. A fetch run fully replaces the stored set, records are never
// patched in place.
type BounceRecord struct {
	EmailAddress   string    `json:"email_address"`
	FromEmail      string    `json:"from_email"`
	EmailMessage   string    `json:"email_message"`
	EmailSubject   string    `json:"email_subject"`
	CampaignID     int64     `json:"campaign_id"`
	CampaignName   string    `json:"campaign_name"`
	EmailStatus    string    `json:"email_status"`
	IsBounced      bool      `json:"is_bounced"`
	SentTime       time.Time `json:"sent_time"`
	SequenceNumber int       `json:"sequence_number"`
}

// Key identifies a record within one fetch, campaign + recipient + send time
// + position in the sequence.
func (r BounceRecord) Key() string {
	return fmt.Sprintf("%d|%s|%s|%d", r.CampaignID, r.EmailAddress, r.SentTime.UTC().Format(time.RFC3339), r.SequenceNumber)
}

const StatusBounced = "bounced"

type FetchStatus string

func (s FetchStatus) String() string {
	return string(s)
}

// FetchSuccess the run completed and the snapshot was replaced.
const FetchSuccess FetchStatus = "success"

// FetchError the run was aborted, the previous snapshot is left untouched.
const FetchError FetchStatus = "error"

// FetchLog is the outcome of one fetch run, appended after every run and
// never mutated.
type FetchLog struct {
	RunID          string      `json:"run_id"`
	FetchedAt      time.Time   `json:"fetched_at"`
	Status         FetchStatus `json:"status"`
	TotalBounced   int         `json:"total_bounced"`
	TotalCampaigns int         `json:"total_campaigns"`
	ErrorDetail    string      `json:"error_detail,omitempty"`
}
