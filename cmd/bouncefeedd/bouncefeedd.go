package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/ruthkhan/bouncefeed/internal/clix"
	"github.com/ruthkhan/bouncefeed/internal/config"
	"github.com/ruthkhan/bouncefeed/internal/dao"
	"github.com/ruthkhan/bouncefeed/internal/fetcher"
	"github.com/ruthkhan/bouncefeed/internal/metrics"
	"github.com/ruthkhan/bouncefeed/internal/scheduler"
	"github.com/ruthkhan/bouncefeed/internal/smartlead"
	"github.com/ruthkhan/bouncefeed/internal/web"
	"github.com/ruthkhan/bouncefeed/tools"
)

func main() {

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "api-interface",
			EnvVars: []string{"BOUNCEFEED_API_INTERFACE"},
			Usage:   "interface the api listens on, defaults to all",
		},
		&cli.IntFlag{
			Name:    "api-port",
			Value:   8080,
			EnvVars: []string{"BOUNCEFEED_API_PORT"},
		},
		&cli.StringFlag{
			Name:    "service-name",
			Value:   "bouncefeed",
			EnvVars: []string{"BOUNCEFEED_SERVICE_NAME"},
		},
		&cli.StringFlag{
			Name:    "metrics-push-url",
			EnvVars: []string{"BOUNCEFEED_METRICS_PUSH_URL"},
			Usage:   "push gateway url, polling is used when unset",
		},
		&cli.DurationFlag{
			Name:    "metrics-push-interval",
			Value:   time.Minute,
			EnvVars: []string{"BOUNCEFEED_METRICS_PUSH_INTERVAL"},
		},
		&cli.BoolFlag{
			Name:    "metrics-poll",
			Value:   true,
			EnvVars: []string{"BOUNCEFEED_METRICS_POLL"},
		},
		&cli.StringFlag{
			Name:    "metrics-poll-basic-auth-user",
			EnvVars: []string{"BOUNCEFEED_METRICS_POLL_BASIC_AUTH_USER"},
		},
		&cli.StringFlag{
			Name:    "metrics-poll-basic-auth-pass",
			EnvVars: []string{"BOUNCEFEED_METRICS_POLL_BASIC_AUTH_PASS"},
		},
	}

	app := &cli.App{
		Name:   "bouncefeedd",
		Usage:  "a service that aggregates bounced campaign emails from smartlead",
		Flags:  flags,
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Action: serve,
				Flags:  flags,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type Stoppable interface {
	Stop(ctx context.Context) error
}

func serve(c *cli.Context) error {
	l := log.New()
	l.AddHook(tools.LoggerWho{Name: "bouncefeedd"})
	lc := tools.LoggerCloner(l)

	cfg := config.Get()
	if cfg.SmartleadAPIKey == "" {
		return errors.New("SMARTLEAD_API_KEY must be set")
	}

	l.Infof("starting bouncefeed")

	db, err := dao.NewSQLite(cfg.DbURI)
	if err != nil {
		return err
	}

	m := metrics.New(clix.Parse[metrics.Config](c), lc)
	m.Start()

	upstream := smartlead.New(smartlead.Config{
		BaseURL:  cfg.SmartleadURL,
		APIKey:   cfg.SmartleadAPIKey,
		PageSize: cfg.PageSize,
		Timeout:  cfg.HTTPTimeout,
		Backoff: &smartlead.FailConfig{
			Base:        smartlead.DefaultFailConfig.Base,
			Cap:         smartlead.DefaultFailConfig.Cap,
			Jitter:      smartlead.DefaultFailConfig.Jitter,
			MaxAttempts: cfg.MaxRetries,
		},
	}, lc)

	f := fetcher.New(fetcher.Config{
		WindowDays: cfg.WindowDays,
		Workers:    cfg.Workers,
		RunTimeout: cfg.RunTimeout,
	}, db, upstream, lc, m)

	sched := scheduler.New(scheduler.Config{HourUTC: cfg.FetchHourUTC}, f, lc)
	sched.Start()

	srv := web.New(clix.Parse[web.Config](c), db, f, sched, m, lc)
	srv.Start()

	services := []Stoppable{srv, sched, m}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	sig := <-sigc
	l.Infof("got signal: %s, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()

	wg := &sync.WaitGroup{}
	for _, service := range services {
		wg.Add(1)
		service := service
		go func(service Stoppable) {
			defer wg.Done()
			err := service.Stop(shutdownCtx)
			if err != nil {
				l.WithError(err).Error("failed to stop service")
			}
		}(service)
	}

	go func() {
		<-shutdownCtx.Done()
		l.WithError(shutdownCtx.Err()).Warn("shutdown was forced, terminating now")
		os.Exit(1)
	}()

	wg.Wait()
	l.Infof("shutdown complete")

	return nil
}
