/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package catalog

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

const animalsYAML = `
animals:
  - image: images/animals/lion.png
    name: Lion
  - image: images/animals/zebra.png
    name: Zebra
things: []
`

func TestParseFormats(t *testing.T) {
	cases := []struct {
		name string
		file string
		data string
	}{
		{"yaml", "categories.yaml", animalsYAML},
		{"json", "categories.json", `{"animals":[{"image":"images/animals/lion.png","name":"Lion"},{"image":"images/animals/zebra.png","name":"Zebra"}],"things":[]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Parse(tc.file, []byte(tc.data))
			if err != nil {
				t.Fatalf("Parse() error: %v", err)
			}

			if got := c.Names(); !slices.Equal(got, []string{"animals", "things"}) {
				t.Fatalf("Names() = %v", got)
			}

			items, err := c.Items("animals")
			if err != nil {
				t.Fatalf("Items(animals) error: %v", err)
			}
			if len(items) != 2 || items[1].DisplayName != "Zebra" {
				t.Fatalf("unexpected items %+v", items)
			}

			if c.Len("things") != 0 {
				t.Fatalf("expected empty things category")
			}
		})
	}
}

func TestItemsReturnsCopy(t *testing.T) {
	c, err := New(map[string][]Item{"animals": {{ImageRef: "a.png", DisplayName: "A"}}})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	items, _ := c.Items("animals")
	items[0].DisplayName = "changed"

	again, _ := c.Items("animals")
	if again[0].DisplayName != "A" {
		t.Fatalf("catalog was mutated through returned slice")
	}
}

func TestUnknownCategory(t *testing.T) {
	c, _ := New(nil)

	if _, err := c.Items("nope"); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestDuplicateImageRejected(t *testing.T) {
	_, err := New(map[string][]Item{
		"animals": {
			{ImageRef: "a.png", DisplayName: "A"},
			{ImageRef: "a.png", DisplayName: "B"},
		},
	})
	if !errors.Is(err, ErrDuplicateImage) {
		t.Fatalf("expected ErrDuplicateImage, got %v", err)
	}

	// The same reference in two different categories is fine.
	_, err = New(map[string][]Item{
		"animals": {{ImageRef: "a.png", DisplayName: "A"}},
		"things":  {{ImageRef: "a.png", DisplayName: "A"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSourceUnavailableUntilResolved(t *testing.T) {
	fs := afero.NewMemMapFs()
	clock := clockwork.NewFakeClock()

	s := NewSource(FromFile(fs, "categories.yaml"), clock, 5*time.Second)

	if _, err := s.Catalog(); !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable before start, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.Start(ctx)

	// First attempt fails because the file does not exist yet; the loader
	// then waits on the retry timer.
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("loader never waited for retry: %v", err)
	}

	if _, err := s.Catalog(); !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable after failed load, got %v", err)
	}

	if err := afero.WriteFile(fs, "categories.yaml", []byte(animalsYAML), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	clock.Advance(5 * time.Second)

	select {
	case <-s.Ready():
	case <-ctx.Done():
		t.Fatalf("catalog never resolved")
	}

	c, err := s.Catalog()
	if err != nil {
		t.Fatalf("Catalog() error after ready: %v", err)
	}
	if c.Len("animals") != 2 {
		t.Fatalf("expected 2 animals, got %d", c.Len("animals"))
	}
}

func TestFindMissing(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "assets/images/animals/lion.png", []byte("png"), 0o644)

	c, err := Parse("categories.yaml", []byte(animalsYAML))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	missing := FindMissing(fs, "assets", c)
	if len(missing) != 1 {
		t.Fatalf("expected 1 missing image, got %d: %+v", len(missing), missing)
	}
	if missing[0].Item.DisplayName != "Zebra" || missing[0].Category != "animals" {
		t.Fatalf("unexpected missing entry %+v", missing[0])
	}
}
