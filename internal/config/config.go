// Package config loads the process configuration from the environment.
package config

import (
	"strings"
	"time"

	"github.com/myrjola/whistleblower/internal/envstruct"
	"github.com/myrjola/whistleblower/internal/errors"
)

// Config is read once at start-up and never mutated afterwards.
type Config struct {
	// Addr is the address the HTTP API listens on. Use port 0 to pick a free port.
	Addr string `env:"WHISTLEBLOWER_ADDR" envDefault:"localhost:4000"`
	// DebugAddr is the loopback address serving pprof and Prometheus metrics. Empty disables it.
	DebugAddr string `env:"WHISTLEBLOWER_DEBUG_ADDR" envDefault:"localhost:6060"`
	// SqliteURL is the path of the investigation history database. ":memory:" keeps it in memory.
	SqliteURL string `env:"WHISTLEBLOWER_SQLITE_URL" envDefault:"./whistleblower.sqlite3"`
	// AllowedOrigins is a comma separated list of CORS origins.
	AllowedOrigins string `env:"WHISTLEBLOWER_ALLOWED_ORIGINS" envDefault:"http://localhost:3000,http://localhost:3001"`

	FetchTimeout time.Duration `env:"WHISTLEBLOWER_FETCH_TIMEOUT" envDefault:"5s"`

	HFAPIKey      string        `env:"HF_API_KEY" envDefault:""`
	HFModel       string        `env:"HF_MODEL" envDefault:"moonshotai/Kimi-K2-Instruct:novita"`
	HFBaseURL     string        `env:"HF_BASE_URL" envDefault:"https://router.huggingface.co/v1"`
	HFMinInterval time.Duration `env:"HF_MIN_INTERVAL" envDefault:"0s"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY" envDefault:""`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:""`

	NarrativeTimeout time.Duration `env:"WHISTLEBLOWER_NARRATIVE_TIMEOUT" envDefault:"30s"`
}

// Load populates a Config using lookupEnv, which has the signature of [os.LookupEnv].
func Load(lookupEnv func(string) (string, bool)) (Config, error) {
	var cfg Config
	if err := envstruct.Populate(&cfg, lookupEnv); err != nil {
		return Config{}, errors.Wrap(err, "populate config")
	}
	return cfg, nil
}

// Origins returns the configured CORS origins with blanks removed.
func (c Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
