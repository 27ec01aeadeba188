package dao

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/modfin/henry/slicez"
	"github.com/ruthkhan/bouncefeed"
)

type DAO interface {
	CommitFetch(records []bouncefeed.BounceRecord, entry bouncefeed.FetchLog) error
	AddFetchLog(entry bouncefeed.FetchLog) error
	GetBounces() ([]bouncefeed.BounceRecord, error)
	GetFetchLogs(limit int) ([]bouncefeed.FetchLog, error)
	LatestSuccess() (*bouncefeed.FetchLog, error)
}

func NewSQLite(path string) (DAO, error) {
	lite := &sqlite{path: path}
	err := lite.ensureSchema()
	return lite, err
}

type sqlite struct {
	mu   sync.Mutex
	db   *sqlx.DB
	path string
}

// CommitFetch replaces the bounce snapshot and appends the run log entry in
// one transaction, so readers observe both or neither.
func (s *sqlite) CommitFetch(records []bouncefeed.BounceRecord, entry bouncefeed.FetchLog) (err error) {

	var tx *sqlx.Tx
	tx, err = s.getTX()
	if err != nil {
		return fmt.Errorf("failed to get transaction, %w", err)
	}
	defer func() {
		if err == nil {
			err = tx.Commit()
			return
		}
		_ = tx.Rollback()
	}()

	_, err = tx.Exec(`DELETE FROM bounce_email`)
	if err != nil {
		return fmt.Errorf("failed to clear bounce snapshot, %w", err)
	}

	q := `
	INSERT INTO bounce_email (email_address, from_email, email_message, email_subject,
	                          campaign_id, campaign_name, email_status, is_bounced,
	                          sent_time, sequence_number, fetched_at)
	VALUES (:email_address, :from_email, :email_message, :email_subject,
	        :campaign_id, :campaign_name, :email_status, :is_bounced,
	        :sent_time, :sequence_number, :fetched_at)
	`
	stmt, err := tx.PrepareNamed(q)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot insert, %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err = stmt.Exec(map[string]interface{}{
			"email_address":   r.EmailAddress,
			"from_email":      r.FromEmail,
			"email_message":   r.EmailMessage,
			"email_subject":   r.EmailSubject,
			"campaign_id":     r.CampaignID,
			"campaign_name":   r.CampaignName,
			"email_status":    r.EmailStatus,
			"is_bounced":      r.IsBounced,
			"sent_time":       r.SentTime.In(time.UTC),
			"sequence_number": r.SequenceNumber,
			"fetched_at":      entry.FetchedAt.In(time.UTC),
		})
		if err != nil {
			return fmt.Errorf("failed to insert bounce record for %s, %w", r.EmailAddress, err)
		}
	}

	err = s.addFetchLogTx(tx, entry)
	return
}

func (s *sqlite) AddFetchLog(entry bouncefeed.FetchLog) error {

	tx, err := s.getTX()
	if err != nil {
		return err
	}
	err = s.addFetchLogTx(tx, entry)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (s *sqlite) addFetchLogTx(tx *sqlx.Tx, entry bouncefeed.FetchLog) error {
	q := `
	INSERT INTO fetch_log (run_id, status, total_bounced, total_campaigns, error_detail, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := tx.Exec(q, entry.RunID, entry.Status.String(), entry.TotalBounced,
		entry.TotalCampaigns, entry.ErrorDetail, entry.FetchedAt.In(time.UTC))
	if err != nil {
		return fmt.Errorf("failed to insert fetch log entry, %w", err)
	}
	return nil
}

func (s *sqlite) GetBounces() ([]bouncefeed.BounceRecord, error) {
	q := `
	    SELECT *
		FROM bounce_email
		ORDER BY sent_time DESC
	`
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var rows []bounceRow
	err = db.Select(&rows, q)
	if err != nil {
		return nil, err
	}
	return slicez.Map(rows, func(r bounceRow) bouncefeed.BounceRecord { return r.record() }), nil
}

func (s *sqlite) GetFetchLogs(limit int) ([]bouncefeed.FetchLog, error) {
	q := `
	    SELECT *
		FROM fetch_log
		ORDER BY fetched_at DESC
		LIMIT ?
	`
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var rows []fetchLogRow
	err = db.Select(&rows, q, limit)
	if err != nil {
		return nil, err
	}
	return slicez.Map(rows, func(r fetchLogRow) bouncefeed.FetchLog { return r.entry() }), nil
}

func (s *sqlite) LatestSuccess() (*bouncefeed.FetchLog, error) {
	q := `
	    SELECT *
		FROM fetch_log
		WHERE status = 'success'
		ORDER BY fetched_at DESC
		LIMIT 1
	`
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var row fetchLogRow
	err = db.Get(&row, q)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entry := row.entry()
	return &entry, nil
}

func (s *sqlite) tuneDatabase() error {
	q := `pragma journal_mode = WAL;
			pragma synchronous = normal;
			pragma temp_store = memory;`

	if s.db == nil {
		return errors.New("db must be instantiated")
	}
	_, err := s.db.Exec(q)
	return err
}

// getDB guards the handle, the reconnect loop swaps it out while readers and
// the fetch commit run concurrently.
func (s *sqlite) getDB() (*sqlx.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for s.db == nil || s.db.Ping() != nil {

		if s.db != nil {
			_ = s.db.Close()
			s.db = nil
		}

		s.db, err = sqlx.Connect("sqlite3", s.path)
		if err != nil {
			return nil, fmt.Errorf("error while connecting, %w", err)
		}
		err = s.tuneDatabase()
		if err != nil {
			return nil, fmt.Errorf("error while tuning db instance, %w", err)
		}
	}

	return s.db, nil
}

func (s *sqlite) getTX() (*sqlx.Tx, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	return db.Beginx()
}

func (s *sqlite) ensureSchema() error {

	db, err := s.getDB()
	if err != nil {
		return fmt.Errorf("could not get db, %w", err)
	}

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS bounce_email (
	    email_address   TEXT NOT NULL,
	    from_email      TEXT NOT NULL DEFAULT '',
	    email_message   TEXT NOT NULL DEFAULT '',
	    email_subject   TEXT NOT NULL DEFAULT '',

	    campaign_id     INTEGER NOT NULL,
	    campaign_name   TEXT NOT NULL DEFAULT '',
	    email_status    TEXT NOT NULL DEFAULT 'bounced',
	    is_bounced      INTEGER NOT NULL DEFAULT 1,

	    sent_time       DATETIME NOT NULL,
	    sequence_number INTEGER NOT NULL DEFAULT 0,

	    fetched_at      DATETIME NOT NULL,

	    PRIMARY KEY (campaign_id, email_address, sent_time, sequence_number)
	);

	CREATE TABLE IF NOT EXISTS fetch_log (
	    run_id          TEXT PRIMARY KEY,
	    status          TEXT NOT NULL, -- success, error
	    total_bounced   INT DEFAULT 0,
	    total_campaigns INT DEFAULT 0,
	    error_detail    TEXT NOT NULL DEFAULT '',
	    fetched_at      DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_fetch_log_fetched_at ON fetch_log(fetched_at);
`)
	if err != nil {
		return fmt.Errorf("could not upsert schema, %w", err)
	}

	return err
}
