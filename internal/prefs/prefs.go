/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package prefs persists the one setting a player has: the round duration.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/afero"
)

const (
	DefaultDuration = 90
	MinDuration     = 5
	MaxDuration     = 3600
)

var (
	ErrNotFound        = errors.New("preference not set")
	ErrInvalidDuration = fmt.Errorf("duration must be between %d and %d seconds", MinDuration, MaxDuration)
	ErrUnknownBackend  = errors.New("unknown preference backend")
)

// Store keeps durations keyed by player.
type Store interface {
	Duration(ctx context.Context, player string) (int, error)
	SetDuration(ctx context.Context, player string, seconds int) error
	Close() error
}

func Validate(seconds int) error {
	if seconds < MinDuration || seconds > MaxDuration {
		return fmt.Errorf("%w: got %d", ErrInvalidDuration, seconds)
	}

	return nil
}

// Options selects and configures a backend for Open.
type Options struct {
	Backend string // memory, file, redis or postgres

	Fs   afero.Fs
	File string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DatabaseURL string
}

func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(opts.Fs, opts.File), nil
	case "redis":
		return NewRedisStore(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
	case "postgres":
		return NewPostgresStore(ctx, opts.DatabaseURL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

// Preference binds a Store to a single player.
type Preference struct {
	store  Store
	player string
}

func Bind(store Store, player string) *Preference {
	return &Preference{
		store:  store,
		player: player,
	}
}

// Load returns the stored duration, or DefaultDuration if none was stored
// or the stored value is out of range.
func (p *Preference) Load(ctx context.Context) (int, error) {
	seconds, err := p.store.Duration(ctx, p.player)
	switch {
	case errors.Is(err, ErrNotFound):
		return DefaultDuration, nil
	case err != nil:
		return DefaultDuration, err
	case Validate(seconds) != nil:
		return DefaultDuration, nil
	}

	return seconds, nil
}

func (p *Preference) Save(ctx context.Context, seconds int) error {
	if err := Validate(seconds); err != nil {
		return err
	}

	return p.store.SetDuration(ctx, p.player, seconds)
}

type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]int)}
}

func (s *MemoryStore) Duration(_ context.Context, player string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[player]
	if !ok {
		return 0, ErrNotFound
	}

	return v, nil
}

func (s *MemoryStore) SetDuration(_ context.Context, player string, seconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[player] = seconds

	return nil
}

func (s *MemoryStore) Close() error { return nil }
