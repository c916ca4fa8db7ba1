// Command payloadserver serves auction payloads over vsock.
//
// The configuration file is named by the PAYLOAD_CONFIG environment
// variable; PAYLOAD_* variables override individual settings.
package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/cloudx-io/protectedauction/adselection"
	"github.com/cloudx-io/protectedauction/buyerinput"
	"github.com/cloudx-io/protectedauction/clock"
	"github.com/cloudx-io/protectedauction/compression"
	"github.com/cloudx-io/protectedauction/config"
	"github.com/cloudx-io/protectedauction/envelope"
	"github.com/cloudx-io/protectedauction/format"
	"github.com/cloudx-io/protectedauction/metrics"
)

// NewPayloadServer wires every component described by cfg. The returned
// cleanup flushes buffered metrics.
func NewPayloadServer(cfg *config.Config, clk clock.Clock, logger *slog.Logger) (*PayloadServer, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}

	compressor, err := compression.New(cfg.CompressionVersion)
	if err != nil {
		return nil, nil, err
	}
	formatter, err := format.New(cfg.FormatterConfig())
	if err != nil {
		return nil, nil, err
	}

	fetcher, err := LoadFixtureFetcher(cfg.Server.FixturePath, clk)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("INFO: Loaded candidate fixture %s", cfg.Server.FixturePath)

	var keyManager *KeyManager
	if cfg.Server.SigningKeyPath != "" {
		keyManager, err = LoadKeyManager(cfg.Server.SigningKeyPath, cfg.Server.SigningKeyID)
	} else {
		keyManager, err = NewKeyManager(cfg.Server.SigningKeyID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize key manager: %w", err)
	}
	log.Printf("INFO: KeyManager initialized")

	sink := metrics.NewAsync(metrics.NewLogSink(logger), cfg.BuyerInput.MetricsBuffer)

	generator, err := buyerinput.NewGenerator(buyerinput.GeneratorConfig{
		Compressor:                  compressor,
		Fetcher:                     fetcher,
		Sink:                        sink,
		Clock:                       clk,
		Logger:                      logger,
		Freshness:                   cfg.BuyerInput.Freshness,
		SellerMax:                   cfg.SellerMax(),
		PerBuyerSignalsMaxSizeBytes: cfg.BuyerInput.PerBuyerSignalsMaxSizeBytes,
	})
	if err != nil {
		sink.Close()
		return nil, nil, err
	}

	var sealer *envelope.Sealer
	if cfg.Server.Seal {
		sealer = keyManager.Sealer()
	}
	payloads, err := adselection.NewPayloadGenerator(adselection.Config{
		BuyerInputs: generator,
		Formatter:   formatter,
		Sealer:      sealer,
		Clock:       clk,
		Logger:      logger,
	})
	if err != nil {
		sink.Close()
		return nil, nil, err
	}

	server := &PayloadServer{
		port:               cfg.Server.VsockPort,
		maxWorkers:         cfg.Server.MaxWorkers,
		readTimeout:        cfg.Server.ReadTimeout,
		generator:          payloads,
		keyManager:         keyManager,
		formatVersion:      formatter.Version(),
		compressionVersion: compressor.Version(),
		clock:              clk,
	}
	cleanup := func() {
		sink.Close()
		if dropped := sink.Dropped(); dropped > 0 {
			log.Printf("INFO: Dropped %d metrics reports", dropped)
		}
	}
	return server, cleanup, nil
}

func main() {
	path := os.Getenv("PAYLOAD_CONFIG")
	if path == "" {
		log.Fatal("ERROR: required environment variable PAYLOAD_CONFIG is not set")
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	server, cleanup, err := NewPayloadServer(cfg, clock.Real(), slog.Default())
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	defer cleanup()

	if err := server.Start(); err != nil {
		log.Printf("ERROR: %v", err)
	}
}
