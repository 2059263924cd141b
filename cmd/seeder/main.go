package main

import (
	"context"
	"flag"

	"github.com/arhyth/pinledger"
)

func main() {
	cfp := flag.String("config", "config.yml", "path to configuration file")
	importPath := flag.String("import", "", "JSON account document to import into the configured storage")
	flag.Parse()

	cfg, err := pinledger.LoadConfig(*cfp)
	logger := pinledger.NewLogger(cfg.Log)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *cfp).Msg("error loading config file")
	}

	if cfg.Storage.Backend == "postgres" {
		lh := pinledger.NewLocalHelper(&cfg, nil, &logger)
		if err = lh.MigrateUp(); err != nil {
			logger.Fatal().Err(err).Msg("error migrating database")
		}
	}

	if *importPath == "" {
		return
	}

	blobs, closeBlobs, err := pinledger.OpenBlobStore(cfg.Storage, &logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("error opening storage")
	}
	defer closeBlobs()

	lh := pinledger.NewLocalHelper(&cfg, pinledger.NewDocumentStore(blobs, cfg.Storage.Key), &logger)
	if _, err = lh.ImportDocument(context.Background(), *importPath); err != nil {
		logger.Fatal().Err(err).Str("path", *importPath).Msg("error importing document")
	}
}
