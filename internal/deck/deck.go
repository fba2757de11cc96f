/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package deck implements the shuffled, endlessly replayable working copy of
// a category that a round is played from.
package deck

import (
	"errors"
	"math/rand/v2"
	"slices"

	"github.com/Seednode/snapcards/internal/catalog"
)

var ErrEmptyCategory = errors.New("category has no items")

// Deck is not safe for concurrent use; the session loop owns it.
type Deck struct {
	category string
	items    []catalog.Item
	cursor   int
	laps     int
	rng      *rand.Rand
}

// New copies items and shuffles them. A nil rng uses a randomly seeded PCG.
func New(category string, items []catalog.Item, rng *rand.Rand) (*Deck, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCategory
	}

	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	d := &Deck{
		category: category,
		items:    slices.Clone(items),
		rng:      rng,
	}
	d.shuffle()

	return d, nil
}

// shuffle is an in-place Fisher-Yates permutation.
func (d *Deck) shuffle() {
	for i := len(d.items) - 1; i > 0; i-- {
		j := d.rng.IntN(i + 1)
		d.items[i], d.items[j] = d.items[j], d.items[i]
	}
}

func (d *Deck) Current() catalog.Item {
	return d.items[d.cursor]
}

// Advance moves to the next item. When the cursor runs off the end the deck
// is reshuffled in place, the cursor returns to 0 and Advance reports true.
func (d *Deck) Advance() bool {
	d.cursor++
	if d.cursor < len(d.items) {
		return false
	}

	d.shuffle()
	d.cursor = 0
	d.laps++

	return true
}

// Category is the name of the category the deck was built from.
func (d *Deck) Category() string { return d.category }

func (d *Deck) Cursor() int { return d.cursor }

func (d *Deck) Len() int { return len(d.items) }

// Laps counts completed passes (reshuffles) through the deck.
func (d *Deck) Laps() int { return d.laps }

// Items returns a copy of the current lap order.
func (d *Deck) Items() []catalog.Item {
	return slices.Clone(d.items)
}
