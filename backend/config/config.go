package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const (
	defaultPort         = 5000
	defaultLogLevel     = "debug"
	defaultHistoryLimit = 100
	defaultRateLimit    = 200
	defaultRateBurst    = 400

	envPort           = "PORT"
	envAllowedOrigins = "ALLOWED_ORIGINS"
)

var (
	defaultAllowedOrigins = []string{"http://localhost:5173"}

	ErrInvalidEnv = errors.New("invalid environment variable")
)

type Config struct {
	Port           int
	AllowedOrigins []string
	LogLevel       string
	HistoryLimit   int
	RoomTTL        time.Duration
	RateLimit      float64
	RateBurst      int
}

func (c *Config) ListenAddr() string {
	return ":" + strconv.Itoa(c.Port)
}

// Parse reads configuration from command line arguments falling back to
// the environment and then to defaults.
func Parse(args []string, getenv func(string) string) (*Config, error) {
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		cfg Config

		port = fs.IntP("port", "p", defaultPort,
			"listen port (env "+envPort+")")
		origins = fs.StringSliceP("allowed-origins", "o", defaultAllowedOrigins,
			"allowed cross-origin callers, * allows any (env "+envAllowedOrigins+")")
	)
	fs.StringVarP(&cfg.LogLevel, "log-level", "l", defaultLogLevel, "log level")
	fs.IntVar(&cfg.HistoryLimit, "history-limit", defaultHistoryLimit,
		"max undo (and redo) snapshots per room, 0 for unbounded")
	fs.DurationVar(&cfg.RoomTTL, "room-ttl", 0,
		"evict rooms without live members after this long, 0 disables eviction")
	fs.Float64Var(&cfg.RateLimit, "rate-limit", defaultRateLimit,
		"inbound events per second per connection")
	fs.IntVar(&cfg.RateBurst, "rate-burst", defaultRateBurst,
		"inbound event burst per connection")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Port = *port
	if v := getenv(envPort); v != "" && !fs.Changed("port") {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrInvalidEnv, envPort, err)
		}
		cfg.Port = p
	}

	cfg.AllowedOrigins = *origins
	if v := getenv(envAllowedOrigins); v != "" && !fs.Changed("allowed-origins") {
		cfg.AllowedOrigins = splitList(v)
	}
	return &cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
