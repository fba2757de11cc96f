/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package catalog holds the immutable category -> items mapping the game
// draws its cards from.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrCatalogUnavailable = errors.New("catalog is not available yet")
	ErrUnknownCategory    = errors.New("unknown category")
	ErrDuplicateImage     = errors.New("duplicate image reference in category")
)

// Item is a single card: a picture and the name revealed after it.
// ImageRef identifies the item within its category.
type Item struct {
	ImageRef    string `json:"image" yaml:"image"`
	DisplayName string `json:"name" yaml:"name"`
}

// Catalog is read-only after construction and safe for concurrent use.
type Catalog struct {
	categories map[string][]Item
	names      []string
}

// New copies categories into a Catalog. Categories may be empty, but image
// references must be unique within a category.
func New(categories map[string][]Item) (*Catalog, error) {
	c := &Catalog{
		categories: make(map[string][]Item, len(categories)),
		names:      make([]string, 0, len(categories)),
	}

	for name, items := range categories {
		seen := make(map[string]bool, len(items))
		for _, item := range items {
			if seen[item.ImageRef] {
				return nil, fmt.Errorf("%w: %s/%s", ErrDuplicateImage, name, item.ImageRef)
			}
			seen[item.ImageRef] = true
		}

		c.categories[name] = slices.Clone(items)
		c.names = append(c.names, name)
	}

	slices.Sort(c.names)

	return c, nil
}

// Parse decodes a catalog document. Format is picked from the file extension
// of name; anything that is not .json is treated as YAML.
func Parse(name string, data []byte) (*Catalog, error) {
	var raw map[string][]Item

	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse catalog %s: %w", name, err)
		}
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse catalog %s: %w", name, err)
		}
	}

	return New(raw)
}

// Names returns the category names in sorted order.
func (c *Catalog) Names() []string {
	return slices.Clone(c.names)
}

// Items returns a copy of the named category's items.
func (c *Catalog) Items(category string) ([]Item, error) {
	items, ok := c.categories[category]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	return slices.Clone(items), nil
}

// Len returns the number of items in category, or 0 if it does not exist.
func (c *Catalog) Len(category string) int {
	return len(c.categories[category])
}
