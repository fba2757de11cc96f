/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/Seednode/snapcards/internal/catalog"
)

var sizeUnits = []string{"kB", "MB", "GB", "TB", "PB", "EB"}

// humanReadableSize formats bytes in decimal units, e.g. "1.5 MB".
func humanReadableSize(bytes int64) string {
	if bytes < 1000 {
		return fmt.Sprintf("%d B", bytes)
	}

	size := float64(bytes) / 1000
	unit := 0
	for size >= 1000 && unit < len(sizeUnits)-1 {
		size /= 1000
		unit++
	}

	return fmt.Sprintf("%.1f %s", size, sizeUnits[unit])
}

// catalogImageBytes sums the on-disk size of every catalog image found
// under root. Missing images count as zero.
func catalogImageBytes(fs afero.Fs, root string, cat *catalog.Catalog) int64 {
	var total int64

	for _, name := range cat.Names() {
		items, err := cat.Items(name)
		if err != nil {
			continue
		}

		for _, item := range items {
			info, err := fs.Stat(filepath.Join(root, filepath.FromSlash(item.ImageRef)))
			if err != nil || info.IsDir() {
				continue
			}

			total += info.Size()
		}
	}

	return total
}
