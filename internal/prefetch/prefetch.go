/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package prefetch warms a process-wide cache of card images. It is purely an
// optimisation: every lookup may miss and callers fall back to Fetch.
package prefetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/Seednode/snapcards/internal/catalog"
	"github.com/Seednode/snapcards/internal/metrics"
)

var ErrAssetLoad = errors.New("failed to load asset")

// Image is a loaded image handle.
type Image struct {
	Ref         string
	ContentType string
	Data        []byte
	ModTime     time.Time
}

// Loader loads a single image by reference.
type Loader interface {
	Load(ctx context.Context, ref string) (*Image, error)
}

// FSLoader reads images from a directory on an afero filesystem.
type FSLoader struct {
	fs   afero.Fs
	root string
}

func NewFSLoader(fs afero.Fs, root string) *FSLoader {
	return &FSLoader{
		fs:   fs,
		root: root,
	}
}

func (l *FSLoader) Load(ctx context.Context, ref string) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Rooting the reference before cleaning keeps it inside l.root.
	full := filepath.Join(l.root, filepath.FromSlash(path.Clean("/"+ref)))

	info, err := l.fs.Stat(full)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAssetLoad, ref, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s: is a directory", ErrAssetLoad, ref)
	}

	data, err := afero.ReadFile(l.fs, full)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAssetLoad, ref, err)
	}

	return &Image{
		Ref:         ref,
		ContentType: http.DetectContentType(data),
		Data:        data,
		ModTime:     info.ModTime(),
	}, nil
}

type key struct {
	category string
	ref      string
}

// Cache is append-only. Entries are never removed or replaced with a
// negative result; a racing double load simply stores the later handle.
type Cache struct {
	entries sync.Map
}

func (c *Cache) Lookup(category, ref string) (*Image, bool) {
	v, ok := c.entries.Load(key{category, ref})
	if !ok {
		return nil, false
	}

	return v.(*Image), true
}

func (c *Cache) store(category, ref string, img *Image) {
	c.entries.Store(key{category, ref}, img)
}

// Len counts cached entries.
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})

	return n
}

// Prefetcher issues background loads into a Cache with bounded concurrency.
type Prefetcher struct {
	loader  Loader
	cache   *Cache
	timeout time.Duration

	sem      chan struct{}
	inflight sync.Map
	wg       sync.WaitGroup
}

func New(loader Loader, workers int, timeout time.Duration) *Prefetcher {
	if workers < 1 {
		workers = 1
	}

	return &Prefetcher{
		loader:  loader,
		cache:   &Cache{},
		timeout: timeout,
		sem:     make(chan struct{}, workers),
	}
}

func (p *Prefetcher) Cache() *Cache { return p.cache }

// Prefetch starts a load for every item of category that is neither cached
// nor already being loaded, and returns immediately. onReady, if not nil,
// is called from the loading goroutine after each successful load.
func (p *Prefetcher) Prefetch(category string, items []catalog.Item, onReady func(category, ref string)) {
	for _, item := range items {
		k := key{category, item.ImageRef}

		if _, ok := p.cache.Lookup(category, item.ImageRef); ok {
			continue
		}
		if _, loading := p.inflight.LoadOrStore(k, struct{}{}); loading {
			continue
		}

		p.wg.Add(1)
		go p.load(k, onReady)
	}
}

func (p *Prefetcher) load(k key, onReady func(category, ref string)) {
	defer p.wg.Done()
	defer p.inflight.Delete(k)

	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	img, err := p.loader.Load(ctx, k.ref)
	if err != nil {
		metrics.ImageLoads.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Str("category", k.category).Str("image", k.ref).Msg("image prefetch failed")

		return
	}

	p.cache.store(k.category, k.ref, img)
	metrics.ImageLoads.WithLabelValues("cached").Inc()

	if onReady != nil {
		onReady(k.category, k.ref)
	}
}

// Wait blocks until every load started so far has finished.
func (p *Prefetcher) Wait() {
	p.wg.Wait()
}

// Lookup never blocks.
func (p *Prefetcher) Lookup(category, ref string) (*Image, bool) {
	return p.cache.Lookup(category, ref)
}

// Fetch returns the cached image or loads it on demand. On-demand loads are
// not written to the cache.
func (p *Prefetcher) Fetch(ctx context.Context, category, ref string) (*Image, error) {
	if img, ok := p.cache.Lookup(category, ref); ok {
		metrics.ImageLookups.WithLabelValues("hit").Inc()
		return img, nil
	}

	metrics.ImageLookups.WithLabelValues("miss").Inc()

	return p.loader.Load(ctx, ref)
}
