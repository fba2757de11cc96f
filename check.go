/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Seednode/snapcards/internal/catalog"
)

// Sounds the browser client plays, relative to <assets>/sounds.
var soundFiles = []string{
	"background_music.wav",
	"reveal_picture.wav",
	"reveal_name.wav",
	"correct.wav",
	"timer_end.wav",
}

var ErrMissingImages = errors.New("catalog references missing images")

func newCheckCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify that every image in the catalog exists under the assets directory.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			return runCheck(ctx, cfg, afero.NewOsFs(), cmd.OutOrStdout())
		},
	}
}

func runCheck(ctx context.Context, cfg *Config, fs afero.Fs, out io.Writer) error {
	var load catalog.LoadFunc
	if cfg.remoteCatalog() {
		load = catalog.FromURL(&http.Client{Timeout: timeout}, cfg.catalogPath())
	} else {
		load = catalog.FromFile(fs, cfg.catalogPath())
	}

	cat, err := load(ctx)
	if err != nil {
		return err
	}

	total := 0
	for _, name := range cat.Names() {
		total += cat.Len(name)
	}

	missing := catalog.FindMissing(fs, cfg.assets, cat)
	for _, m := range missing {
		fmt.Fprintf(out, "MISSING: %s: %q (%s)\n", m.Category, m.Item.DisplayName, m.Path)
	}

	for _, name := range soundFiles {
		path := filepath.Join(cfg.assets, "sounds", name)
		if ok, _ := afero.Exists(fs, path); !ok {
			fmt.Fprintf(out, "WARNING: sound %s not found, rounds will play silently\n", path)
		}
	}

	fmt.Fprintf(out, "Checked %d images (%s) in %d categories, %d missing\n",
		total,
		humanReadableSize(catalogImageBytes(fs, cfg.assets, cat)),
		len(cat.Names()),
		len(missing),
	)

	if len(missing) > 0 {
		return fmt.Errorf("%w: %d of %d", ErrMissingImages, len(missing), total)
	}

	return nil
}
