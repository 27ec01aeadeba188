package config

import (
	"log"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	SmartleadAPIKey string `env:"SMARTLEAD_API_KEY"`
	SmartleadURL    string `env:"BOUNCEFEED_SMARTLEAD_URL" envDefault:"https://server.smartlead.ai/api/v1"`

	DbURI string `env:"BOUNCEFEED_DB_URI" envDefault:"./bouncefeed.sqlite"`

	WindowDays int `env:"BOUNCEFEED_WINDOW_DAYS" envDefault:"7"`
	PageSize   int `env:"BOUNCEFEED_PAGE_SIZE" envDefault:"100"`

	Workers    int           `env:"BOUNCEFEED_WORKERS" envDefault:"5"`
	MaxRetries int           `env:"BOUNCEFEED_MAX_RETRIES" envDefault:"4"`
	RunTimeout time.Duration `env:"BOUNCEFEED_RUN_TIMEOUT" envDefault:"10m"`

	HTTPTimeout time.Duration `env:"BOUNCEFEED_HTTP_TIMEOUT" envDefault:"60s"`

	FetchHourUTC int `env:"BOUNCEFEED_FETCH_HOUR_UTC" envDefault:"3"` // daily fetch trigger, hour of day in UTC
}

var (
	once sync.Once
	cfg  Config
)

func Get() *Config {
	once.Do(func() {
		cfg = Config{}
		if err := env.Parse(&cfg); err != nil {
			log.Panic("Couldn't parse Config from env: ", err)
		}
	})
	return &cfg
}
