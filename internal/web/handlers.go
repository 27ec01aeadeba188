package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ruthkhan/bouncefeed"
	"github.com/ruthkhan/bouncefeed/internal/fetcher"
)

const defaultLogLimit = 10

func respond(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func root(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]string{
			"status":    "running",
			"service":   "bouncefeed",
			"timestamp": time.Now().In(time.UTC).Format(time.RFC3339),
		})
	}
}

// bouncedEmails serves the current snapshot wrapped with the time of the
// last successful fetch. The snapshot is already sorted by sent_time
// descending by the store.
func bouncedEmails(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		latest, err := s.db.LatestSuccess()
		if err != nil {
			s.log.WithError(err).Error("could not read fetch log")
			respond(w, http.StatusInternalServerError, map[string]string{"error": "could not read store"})
			return
		}
		if latest == nil {
			respond(w, http.StatusOK, bouncefeed.RecordsResponse{
				Status:  "no_data",
				Message: "No data available yet. Run /refresh to fetch data.",
			})
			return
		}

		records, err := s.db.GetBounces()
		if err != nil {
			s.log.WithError(err).Error("could not read bounce snapshot")
			respond(w, http.StatusInternalServerError, map[string]string{"error": "could not read store"})
			return
		}

		if records == nil {
			records = []bouncefeed.BounceRecord{}
		}
		respond(w, http.StatusOK, bouncefeed.RecordsResponse{
			Status:       "success",
			Data:         records,
			FetchedAt:    latest.FetchedAt.Format(time.RFC3339),
			TotalBounced: len(records),
		})
	}
}

// refresh triggers a synchronous fetch run. The run outcome is returned as
// the body whatever it is, only an already running fetch or an unreadable
// store map to non 200 codes.
func refresh(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		entry, err := s.runner.Run(r.Context())
		if errors.Is(err, fetcher.ErrFetchInProgress) {
			respond(w, http.StatusConflict, map[string]string{
				"status":  "error",
				"message": err.Error(),
			})
			return
		}
		if err != nil {
			s.log.WithError(err).Error("refresh failed")
			respond(w, http.StatusInternalServerError, map[string]string{"error": "could not run fetch"})
			return
		}

		respond(w, http.StatusOK, entry)
	}
}

func fetchLogs(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		limit := defaultLogLimit
		if q := r.URL.Query().Get("limit"); q != "" {
			n, err := strconv.Atoi(q)
			if err != nil || n < 1 {
				respond(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}

		logs, err := s.db.GetFetchLogs(limit)
		if err != nil {
			s.log.WithError(err).Error("could not read fetch log")
			respond(w, http.StatusInternalServerError, map[string]string{"error": "could not read store"})
			return
		}

		if logs == nil {
			logs = []bouncefeed.FetchLog{}
		}
		respond(w, http.StatusOK, bouncefeed.LogsResponse{Logs: logs})
	}
}

func scheduleInfo(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, s.sched.Info())
	}
}
