/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	port           int
	prefix         string
	profile        bool
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	assets          string
	catalog         string
	catalogRetry    time.Duration
	autoAdvance     time.Duration
	tempoRamp       bool
	scoreReveals    bool
	prefetchWorkers int

	prefs         string
	prefsFile     string
	redisAddr     string
	redisPassword string
	redisDB       int
	databaseURL   string

	natsURL     string
	natsSubject string

	metrics     bool
	corsOrigins []string
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.autoAdvance <= 0 {
		return fmt.Errorf("invalid auto-advance delay (must be positive): %s", c.autoAdvance)
	}
	if c.catalogRetry <= 0 {
		return fmt.Errorf("invalid catalog retry interval (must be positive): %s", c.catalogRetry)
	}
	if c.prefetchWorkers < 1 {
		return fmt.Errorf("invalid prefetch worker count (must be at least 1): %d", c.prefetchWorkers)
	}

	switch c.prefs {
	case "memory", "file":
	case "redis":
		if c.redisAddr == "" {
			return errors.New("--redis-addr is required when --prefs=redis")
		}
	case "postgres":
		if c.databaseURL == "" {
			return errors.New("--database-url is required when --prefs=postgres")
		}
	default:
		return fmt.Errorf("invalid preference backend (must be memory, file, redis or postgres): %q", c.prefs)
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// catalogPath defaults to catalog.yaml inside the assets directory.
func (c *Config) catalogPath() string {
	if c.catalog != "" {
		return c.catalog
	}

	return filepath.Join(c.assets, "catalog.yaml")
}

func (c *Config) remoteCatalog() bool {
	p := c.catalogPath()

	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

func newCmd(cfg *Config) *cobra.Command {
	// A missing .env file is normal.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "could not load .env file: %v\n", err)
	}

	v := viper.New()
	v.SetEnvPrefix("SNAPCARDS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "snapcards",
		Short:         "A tap-to-reveal picture and name flashcard game for the browser.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cfg)

			return cfg.validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.PersistentFlags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: SNAPCARDS_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: SNAPCARDS_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: SNAPCARDS_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: SNAPCARDS_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle games are ended (env: SNAPCARDS_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: SNAPCARDS_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: SNAPCARDS_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: SNAPCARDS_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: SNAPCARDS_VERSION)")

	fs.StringVarP(&cfg.assets, "assets", "a", ".", "directory containing card images and sounds (env: SNAPCARDS_ASSETS)")
	fs.StringVarP(&cfg.catalog, "catalog", "c", "", "catalog file or http(s) url, defaults to <assets>/catalog.yaml (env: SNAPCARDS_CATALOG)")
	fs.DurationVar(&cfg.catalogRetry, "catalog-retry", 5*time.Second, "time between attempts to load the catalog (env: SNAPCARDS_CATALOG_RETRY)")
	fs.DurationVar(&cfg.autoAdvance, "auto-advance", 800*time.Millisecond, "delay before moving on once a name is shown (env: SNAPCARDS_AUTO_ADVANCE)")
	fs.BoolVar(&cfg.tempoRamp, "tempo-ramp", true, "speed up the music as the round runs out (env: SNAPCARDS_TEMPO_RAMP)")
	fs.BoolVar(&cfg.scoreReveals, "score-reveals", true, "count every revealed name as a point (env: SNAPCARDS_SCORE_REVEALS)")
	fs.IntVar(&cfg.prefetchWorkers, "prefetch-workers", 8, "concurrent image loads when warming the cache (env: SNAPCARDS_PREFETCH_WORKERS)")

	fs.StringVar(&cfg.prefs, "prefs", "file", "where to store round duration preferences: memory, file, redis or postgres (env: SNAPCARDS_PREFS)")
	fs.StringVar(&cfg.prefsFile, "prefs-file", "snapcards-prefs.json", "preference file, for --prefs=file (env: SNAPCARDS_PREFS_FILE)")
	fs.StringVar(&cfg.redisAddr, "redis-addr", "", "redis address, for --prefs=redis (env: SNAPCARDS_REDIS_ADDR)")
	fs.StringVar(&cfg.redisPassword, "redis-password", "", "redis password (env: SNAPCARDS_REDIS_PASSWORD)")
	fs.IntVar(&cfg.redisDB, "redis-db", 0, "redis database number (env: SNAPCARDS_REDIS_DB)")
	fs.StringVar(&cfg.databaseURL, "database-url", "", "postgres connection string, for --prefs=postgres (env: SNAPCARDS_DATABASE_URL)")

	fs.StringVar(&cfg.natsURL, "nats-url", "", "publish round events to this nats server (env: SNAPCARDS_NATS_URL)")
	fs.StringVar(&cfg.natsSubject, "nats-subject", "snapcards", "subject prefix for round events (env: SNAPCARDS_NATS_SUBJECT)")

	fs.BoolVar(&cfg.metrics, "metrics", false, "expose prometheus metrics at /metrics (env: SNAPCARDS_METRICS)")
	fs.StringSliceVar(&cfg.corsOrigins, "cors-origin", nil, "origin allowed to read /api (repeatable, default any) (env: SNAPCARDS_CORS_ORIGIN)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.AddCommand(newCheckCmd(cfg))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("snapcards v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
