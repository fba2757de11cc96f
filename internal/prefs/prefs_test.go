/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package prefs

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		seconds int
		ok      bool
	}{
		{MinDuration - 1, false},
		{MinDuration, true},
		{30, true},
		{90, true},
		{MaxDuration, true},
		{MaxDuration + 1, false},
		{-30, false},
	}

	for _, tc := range cases {
		err := Validate(tc.seconds)
		if tc.ok && err != nil {
			t.Fatalf("Validate(%d) = %v, want nil", tc.seconds, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("Validate(%d) = %v, want ErrInvalidDuration", tc.seconds, err)
		}
	}
}

// exercise runs the same checks against any backend.
func exercise(t *testing.T, store Store) {
	t.Helper()

	ctx := context.Background()
	player := uuid.NewString()
	p := Bind(store, player)

	got, err := p.Load(ctx)
	if err != nil {
		t.Fatalf("Load on empty store: %v", err)
	}
	if got != DefaultDuration {
		t.Fatalf("Load on empty store = %d, want %d", got, DefaultDuration)
	}

	if err := p.Save(ctx, 30); err != nil {
		t.Fatalf("Save(30): %v", err)
	}

	got, err = p.Load(ctx)
	if err != nil || got != 30 {
		t.Fatalf("Load after Save(30) = %d, %v", got, err)
	}

	if err := p.Save(ctx, 0); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("Save(0) = %v, want ErrInvalidDuration", err)
	}

	got, _ = p.Load(ctx)
	if got != 30 {
		t.Fatalf("rejected save changed stored value to %d", got)
	}

	other, _ := Bind(store, uuid.NewString()).Load(ctx)
	if other != DefaultDuration {
		t.Fatalf("players share preferences: %d", other)
	}
}

func TestMemoryStore(t *testing.T) {
	exercise(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	fs := afero.NewMemMapFs()
	exercise(t, NewFileStore(fs, "state/prefs.json"))

	// A second store over the same file sees the persisted values.
	ctx := context.Background()
	first := NewFileStore(fs, "state/prefs.json")
	if err := first.SetDuration(ctx, "player", 120); err != nil {
		t.Fatalf("SetDuration: %v", err)
	}

	second := NewFileStore(fs, "state/prefs.json")
	got, err := second.Duration(ctx, "player")
	if err != nil || got != 120 {
		t.Fatalf("reopened store Duration = %d, %v", got, err)
	}

	if ok, _ := afero.Exists(fs, "state/prefs.json.tmp"); ok {
		t.Fatalf("temporary file left behind")
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "prefs.json", []byte("{not json"), 0o644)

	p := Bind(NewFileStore(fs, "prefs.json"), "player")

	got, err := p.Load(context.Background())
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if got != DefaultDuration {
		t.Fatalf("Load on corrupt file = %d, want default", got)
	}
}

func TestOutOfRangeStoredValueFallsBack(t *testing.T) {
	store := NewMemoryStore()
	_ = store.SetDuration(context.Background(), "player", 100000)

	got, err := Bind(store, "player").Load(context.Background())
	if err != nil || got != DefaultDuration {
		t.Fatalf("Load = %d, %v, want default", got, err)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Options{Backend: "floppy"}); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}

// Integration-style tests: run only if the backing service is configured.
func TestRedisStoreIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping integration test")
	}
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			db = n
		}
	}

	store, err := NewRedisStore(context.Background(), addr, os.Getenv("REDIS_PASSWORD"), db)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer store.Close()

	exercise(t, store)
}

func TestPostgresStoreIntegration(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	store, err := NewPostgresStore(context.Background(), url)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	defer store.Close()

	exercise(t, store)
}
