package dao

import (
	"time"

	"github.com/ruthkhan/bouncefeed"
)

type bounceRow struct {
	EmailAddress   string    `db:"email_address"`
	FromEmail      string    `db:"from_email"`
	EmailMessage   string    `db:"email_message"`
	EmailSubject   string    `db:"email_subject"`
	CampaignID     int64     `db:"campaign_id"`
	CampaignName   string    `db:"campaign_name"`
	EmailStatus    string    `db:"email_status"`
	IsBounced      bool      `db:"is_bounced"`
	SentTime       time.Time `db:"sent_time"`
	SequenceNumber int       `db:"sequence_number"`
	FetchedAt      time.Time `db:"fetched_at"`
}

func (r bounceRow) record() bouncefeed.BounceRecord {
	return bouncefeed.BounceRecord{
		EmailAddress:   r.EmailAddress,
		FromEmail:      r.FromEmail,
		EmailMessage:   r.EmailMessage,
		EmailSubject:   r.EmailSubject,
		CampaignID:     r.CampaignID,
		CampaignName:   r.CampaignName,
		EmailStatus:    r.EmailStatus,
		IsBounced:      r.IsBounced,
		SentTime:       r.SentTime.In(time.UTC),
		SequenceNumber: r.SequenceNumber,
	}
}

type fetchLogRow struct {
	RunID          string    `db:"run_id"`
	Status         string    `db:"status"`
	TotalBounced   int       `db:"total_bounced"`
	TotalCampaigns int       `db:"total_campaigns"`
	ErrorDetail    string    `db:"error_detail"`
	FetchedAt      time.Time `db:"fetched_at"`
}

func (r fetchLogRow) entry() bouncefeed.FetchLog {
	return bouncefeed.FetchLog{
		RunID:          r.RunID,
		FetchedAt:      r.FetchedAt.In(time.UTC),
		Status:         bouncefeed.FetchStatus(r.Status),
		TotalBounced:   r.TotalBounced,
		TotalCampaigns: r.TotalCampaigns,
		ErrorDetail:    r.ErrorDetail,
	}
}
