package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modfin/henry/compare"
	"github.com/ruthkhan/bouncefeed/internal/dao"
	"github.com/ruthkhan/bouncefeed/internal/metrics"
	"github.com/ruthkhan/bouncefeed/internal/scheduler"
	"github.com/ruthkhan/bouncefeed/tools"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Interface string `cli:"api-interface"`
	Port      int    `cli:"api-port"`
}

func New(cfg Config, db dao.DAO, runner scheduler.Runner, sched *scheduler.Scheduler, m *metrics.Metrics, lc *tools.Logger) *Server {

	return &Server{
		cfg:     cfg,
		db:      db,
		runner:  runner,
		sched:   sched,
		metrics: m,
		log:     lc.New("web"),
	}
}

type Server struct {
	cfg     Config
	db      dao.DAO
	runner  scheduler.Runner
	sched   *scheduler.Scheduler
	metrics *metrics.Metrics
	log     *logrus.Logger

	srv *http.Server
}

// Router builds the http routing, split out so tests can drive the mux
// without a listener.
func (s *Server) Router() http.Handler {

	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: s.log}))
	mux.Use(middleware.Heartbeat("/ping"))
	mux.Use(s.metrics.Middleware())

	mux.Get("/", root(s))
	mux.Get("/bounced-emails", bouncedEmails(s))
	mux.Get("/refresh", refresh(s))
	mux.Post("/refresh", refresh(s))
	mux.Get("/logs", fetchLogs(s))
	mux.Get("/schedule-info", scheduleInfo(s))
	mux.Get("/metrics", s.metrics.HttpMetrics())

	return mux
}

func (s *Server) Start() {

	s.srv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Interface, compare.Coalesce(s.cfg.Port, 8080)),
		Handler: s.Router(),
	}

	go func() {
		s.log.Infof("starting webserver on %s", s.srv.Addr)

		err := s.srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Fatal("webserver failed")
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
