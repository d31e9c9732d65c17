package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/hvalfangst/csvstats/internal/config"
	"github.com/hvalfangst/csvstats/internal/storage"
)

func runGet(c *cli.Context) error {
	cfg := config.Read()

	key := c.String("key")
	if key == "" {
		key = cfg.Storage.OutputKey
	}

	store, err := storage.New(c.Context, cfg.Storage, zerolog.Nop())
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}

	data, err := store.GetObject(c.Context, key)
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}

	if path := c.Path("out"); path != "" {
		return os.WriteFile(path, data, 0o644)
	}
	_, err = c.App.Writer.Write(data)
	return err
}
