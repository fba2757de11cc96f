/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package catalog

import (
	"path/filepath"

	"github.com/spf13/afero"
)

// Missing is an item whose image could not be found under the asset root.
type Missing struct {
	Category string
	Item     Item
	Path     string
}

// FindMissing walks every category and reports items whose image is absent
// (or is a directory) under root.
func FindMissing(fs afero.Fs, root string, c *Catalog) []Missing {
	var missing []Missing

	for _, name := range c.names {
		for _, item := range c.categories[name] {
			path := filepath.Join(root, filepath.FromSlash(item.ImageRef))

			info, err := fs.Stat(path)
			if err == nil && !info.IsDir() {
				continue
			}

			missing = append(missing, Missing{
				Category: name,
				Item:     item,
				Path:     path,
			})
		}
	}

	return missing
}
