/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/Seednode/snapcards/internal/catalog"
	"github.com/Seednode/snapcards/internal/events"
	"github.com/Seednode/snapcards/internal/prefetch"
	"github.com/Seednode/snapcards/internal/prefs"
	"github.com/Seednode/snapcards/internal/session"
)

const (
	logDate string        = `2006-01-02T15:04:05.000-07:00`
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("snapcards v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Version page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// serveCatalog lists categories for other front ends, so it is CORS-enabled.
func serveCatalog(cfg *Config, svc *services, errs chan<- error) http.Handler {
	type response struct {
		Ready      bool           `json:"ready"`
		Categories []CategoryInfo `json:"categories"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := response{Categories: []CategoryInfo{}}

		if cat, err := svc.catalog.Catalog(); err == nil {
			resp.Ready = true
			resp.Categories = categoryInfo(cat)
		}

		data, err := json.Marshal(resp)
		if err != nil {
			errs <- err

			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)
		w.Header().Set("Cross-Origin-Resource-Policy", "cross-origin")

		_, err = w.Write(data)
		if err != nil {
			errs <- err
		}
	})
}

func newCORS(cfg *Config) *cors.Cors {
	origins := cfg.corsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowedOrigins: origins,
	})
}

func newCatalogSource(cfg *Config, fs afero.Fs, clock clockwork.Clock) *catalog.Source {
	var load catalog.LoadFunc
	if cfg.remoteCatalog() {
		load = catalog.FromURL(&http.Client{Timeout: timeout}, cfg.catalogPath())
	} else {
		load = catalog.FromFile(fs, cfg.catalogPath())
	}

	return catalog.NewSource(load, clock, cfg.catalogRetry)
}

func newServices(ctx context.Context, cfg *Config, fs afero.Fs) (*services, error) {
	clock := clockwork.NewRealClock()

	store, err := prefs.Open(ctx, prefs.Options{
		Backend:       cfg.prefs,
		Fs:            fs,
		File:          cfg.prefsFile,
		RedisAddr:     cfg.redisAddr,
		RedisPassword: cfg.redisPassword,
		RedisDB:       cfg.redisDB,
		DatabaseURL:   cfg.databaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open preference store: %w", err)
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.natsURL != "" {
		publisher, err = events.NewNATSPublisher(cfg.natsURL, cfg.natsSubject)
		if err != nil {
			_ = store.Close()

			return nil, err
		}
	}

	policy := session.DefaultPolicy()
	policy.AutoAdvance = cfg.autoAdvance
	policy.ScoreReveals = cfg.scoreReveals
	policy.Levels.TempoRamp = cfg.tempoRamp

	return &services{
		cfg:     cfg,
		catalog: newCatalogSource(cfg, fs, clock),
		images:  prefetch.New(prefetch.NewFSLoader(fs, cfg.assets), cfg.prefetchWorkers, timeout),
		prefs:   store,
		events:  publisher,
		policy:  policy,
		clock:   clock,
	}, nil
}

func (s *services) close() {
	if err := s.events.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close event publisher")
	}
	if err := s.prefs.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close preference store")
	}
}

// prefetchAll warms the image cache for every category once the catalog is
// available.
func prefetchAll(ctx context.Context, svc *services) {
	select {
	case <-ctx.Done():
		return
	case <-svc.catalog.Ready():
	}

	cat, err := svc.catalog.Catalog()
	if err != nil {
		return
	}

	for _, name := range cat.Names() {
		items, err := cat.Items(name)
		if err != nil {
			continue
		}

		svc.images.Prefetch(name, items, nil)
	}
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	log.Info().Str("version", releaseVersion).Msg("starting snapcards")

	fs := afero.NewOsFs()

	svc, err := newServices(ctx, cfg, fs)
	if err != nil {
		return err
	}
	defer svc.close()

	mux := httprouter.New()

	var handler http.Handler = mux
	if cfg.scheme() == "http" {
		handler = h2c.NewHandler(mux, &http2.Server{})
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           handler,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
	}

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		log.Error().Interface("panic", i).Str("path", r.URL.Path).Msg("recovered from panic")

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	errs := make(chan error, 64)

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	g, gctx := errgroup.WithContext(ctx)

	gm := newGameManager(gctx, svc, cfg.sessionTimeout)

	mux.GET(cfg.prefix+"/", serveHomePage(cfg))

	mux.GET(cfg.prefix+"/assets/*asset", serveAssets(cfg, errs))

	mux.GET(cfg.prefix+"/favicons/*favicon", serveFavicons(cfg, errs))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, errs))

	mux.ServeFiles(cfg.prefix+"/sounds/*filepath", afero.NewHttpFs(fs).Dir(filepath.Join(cfg.assets, "sounds")))

	catalogAPI := newCORS(cfg).Handler(serveCatalog(cfg, svc, errs))
	mux.Handler(http.MethodGet, cfg.prefix+"/api/catalog", catalogAPI)
	mux.Handler(http.MethodOptions, cfg.prefix+"/api/catalog", catalogAPI)

	if cfg.metrics {
		registerMetrics(cfg, mux, gm)
	}

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	registerGame(cfg, gamePath, mux, gm, errs)

	svc.catalog.Start(gctx)

	g.Go(func() error {
		prefetchAll(gctx, svc)

		return nil
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case err := <-errs:
				logf(cfg, "ERROR: %v", err)
			}
		}
	})

	g.Go(func() error {
		log.Info().Msgf("listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)

		var err error
		if cfg.scheme() == "https" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
