/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// LoadFunc resolves a catalog from wherever it lives.
type LoadFunc func(ctx context.Context) (*Catalog, error)

// FromFile loads the catalog from path on fs.
func FromFile(fs afero.Fs, path string) LoadFunc {
	return func(ctx context.Context) (*Catalog, error) {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog file: %w", err)
		}

		return Parse(path, data)
	}
}

// FromURL fetches the catalog over HTTP.
func FromURL(client *http.Client, url string) LoadFunc {
	return func(ctx context.Context) (*Catalog, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch catalog: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("failed to fetch catalog: unexpected status %s", resp.Status)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog body: %w", err)
		}

		name := url
		if ct := resp.Header.Get("Content-Type"); strings.Contains(ct, "json") {
			name = "catalog.json"
		}

		return Parse(name, data)
	}
}

// Source resolves a catalog in the background. Until it resolves, Catalog
// returns ErrCatalogUnavailable and no session may start.
type Source struct {
	load  LoadFunc
	clock clockwork.Clock
	retry time.Duration

	ready chan struct{}
	once  sync.Once

	mu  sync.RWMutex
	cat *Catalog
}

func NewSource(load LoadFunc, clock clockwork.Clock, retry time.Duration) *Source {
	return &Source{
		load:  load,
		clock: clock,
		retry: retry,
		ready: make(chan struct{}),
	}
}

// Resolved returns a Source that is ready immediately.
func Resolved(c *Catalog) *Source {
	s := NewSource(nil, clockwork.NewRealClock(), 0)
	s.resolve(c)

	return s
}

// Start loads the catalog, retrying every retry interval until it succeeds
// or ctx is cancelled.
func (s *Source) Start(ctx context.Context) {
	go func() {
		for attempt := 1; ; attempt++ {
			cat, err := s.load(ctx)
			if err == nil {
				s.resolve(cat)

				log.Info().
					Int("categories", len(cat.Names())).
					Int("attempt", attempt).
					Msg("catalog loaded")

				return
			}

			log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", s.retry).Msg("catalog load failed")

			select {
			case <-s.clock.After(s.retry):
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Source) resolve(c *Catalog) {
	s.once.Do(func() {
		s.mu.Lock()
		s.cat = c
		s.mu.Unlock()

		close(s.ready)
	})
}

// Ready is closed once the catalog has resolved.
func (s *Source) Ready() <-chan struct{} {
	return s.ready
}

func (s *Source) Catalog() (*Catalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cat == nil {
		return nil, ErrCatalogUnavailable
	}

	return s.cat, nil
}
