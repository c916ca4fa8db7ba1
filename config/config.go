// Package config loads the payload service configuration.
//
// Configuration is read from a single YAML file, then a fixed set of
// PAYLOAD_* environment variables is applied on top. Validate must pass
// before any component is built from the result.
package config

import (
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cloudx-io/protectedauction/bidding"
	"github.com/cloudx-io/protectedauction/buyerinput"
	"github.com/cloudx-io/protectedauction/compression"
	"github.com/cloudx-io/protectedauction/core"
	"github.com/cloudx-io/protectedauction/format"
	"github.com/cloudx-io/protectedauction/metrics"
)

// Config is the complete payload service configuration.
type Config struct {
	// CompressionVersion selects the buyer input compressor.
	// Default: 2 (gzip)
	CompressionVersion uint8 `yaml:"compression_version"`

	Format     FormatConfig     `yaml:"format"`
	BuyerInput BuyerInputConfig `yaml:"buyer_input"`
	Bidding    BiddingConfig    `yaml:"bidding"`
	Server     ServerConfig     `yaml:"server"`
}

// BiddingConfig configures per-buyer bidding runs.
type BiddingConfig struct {
	// Parallelism is the number of partitions per buyer.
	// Default: 4
	Parallelism int `yaml:"parallelism"`

	// PoolSize bounds partitions executing at once across all buyers.
	// Default: 8
	PoolSize int `yaml:"pool_size"`

	// Deadline bounds each buyer's run.
	// Default: 500ms
	Deadline time.Duration `yaml:"deadline"`

	// PerCandidateTimeout bounds a single bidding call. Zero disables it.
	PerCandidateTimeout time.Duration `yaml:"per_candidate_timeout"`
}

// FormatConfig selects the payload framing.
type FormatConfig struct {
	// Version is 0 (bucket list), 1 (power of two) or 2 (exact size).
	Version uint8 `yaml:"version"`

	// BucketSizes are the allowed sizes for version 0, ascending.
	BucketSizes []int `yaml:"bucket_sizes"`

	// TargetSize is the fixed size for version 2.
	TargetSize int `yaml:"target_size"`
}

// BuyerInputConfig configures buyer input assembly.
type BuyerInputConfig struct {
	// Freshness limits candidates to those updated within this window.
	// Zero disables the check.
	Freshness time.Duration `yaml:"freshness"`

	// PerBuyerSignalsMaxSizeBytes caps a buyer's app signals blob.
	// Default: 1024
	PerBuyerSignalsMaxSizeBytes int `yaml:"per_buyer_signals_max_size_bytes"`

	SellerMax SellerMaxConfig `yaml:"seller_max"`

	// MetricsBuffer sizes the asynchronous metrics queue.
	// Default: 256
	MetricsBuffer int `yaml:"metrics_buffer"`
}

// SellerMaxConfig configures the seller budget strategy.
type SellerMaxConfig struct {
	// DropOrder is "lowest-priority" or "round-robin".
	DropOrder string `yaml:"drop_order"`

	// MaxRecalculations caps recompression passes.
	// Default: 10
	MaxRecalculations int `yaml:"max_recalculations"`
}

// ServerConfig configures the vsock payload service.
type ServerConfig struct {
	// VsockPort is the port the service listens on.
	// Default: 5000
	VsockPort uint32 `yaml:"vsock_port"`

	// MaxWorkers bounds concurrently handled connections. Connections
	// arriving when all workers are busy are closed immediately.
	// Default: 16
	MaxWorkers int `yaml:"max_workers"`

	// ReadTimeout bounds how long a request may take to arrive.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// FixturePath is the YAML file holding candidates and signals.
	FixturePath string `yaml:"fixture_path"`

	// SigningKeyPath is an optional PEM-encoded EC private key. Without it
	// a fresh P-256 key is generated at startup.
	SigningKeyPath string `yaml:"signing_key_path"`

	// SigningKeyID is carried in every sealed envelope.
	SigningKeyID string `yaml:"signing_key_id"`

	// Seal enables COSE sealing of payload responses.
	Seal bool `yaml:"seal"`
}

// Default returns the configuration used as the base before the file is
// applied.
func Default() *Config {
	return &Config{
		CompressionVersion: compression.VersionGzip,
		Format: FormatConfig{
			Version:     format.VersionBucketList,
			BucketSizes: []int{1024, 2048, 4096, 8192, 16384, 32768, 65536},
		},
		BuyerInput: BuyerInputConfig{
			PerBuyerSignalsMaxSizeBytes: buyerinput.DefaultPerBuyerSignalsMaxSizeBytes,
			SellerMax: SellerMaxConfig{
				DropOrder:         string(buyerinput.DropLowestPriority),
				MaxRecalculations: buyerinput.DefaultMaxRecalculations,
			},
			MetricsBuffer: metrics.DefaultAsyncBuffer,
		},
		Bidding: BiddingConfig{
			Parallelism: 4,
			PoolSize:    bidding.DefaultPoolSize,
			Deadline:    500 * time.Millisecond,
		},
		Server: ServerConfig{
			VsockPort:   5000,
			MaxWorkers:  16,
			ReadTimeout: 30 * time.Second,
		},
	}
}

// LoadFile reads path over the defaults and applies environment overrides.
// The result is not validated.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.applyEnvironment(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Environment variables that override file values.
const (
	EnvCompressionVersion = "PAYLOAD_COMPRESSION_VERSION"
	EnvFormatVersion      = "PAYLOAD_FORMAT_VERSION"
	EnvVsockPort          = "PAYLOAD_VSOCK_PORT"
	EnvMaxWorkers         = "PAYLOAD_MAX_WORKERS"
	EnvFixturePath        = "PAYLOAD_FIXTURE_PATH"
	EnvSigningKeyPath     = "PAYLOAD_SIGNING_KEY_PATH"
	EnvFreshness          = "PAYLOAD_FRESHNESS"
	EnvBiddingPoolSize    = "PAYLOAD_BIDDING_POOL_SIZE"
)

func (c *Config) applyEnvironment() error {
	if v, ok, err := getEnvInt(EnvCompressionVersion); err != nil {
		return err
	} else if ok {
		if v > math.MaxUint8 {
			return fmt.Errorf("invalid value for %s: %d (must fit in a byte)", EnvCompressionVersion, v)
		}
		c.CompressionVersion = uint8(v)
	}
	if v, ok, err := getEnvInt(EnvFormatVersion); err != nil {
		return err
	} else if ok {
		if v > math.MaxUint8 {
			return fmt.Errorf("invalid value for %s: %d (must fit in a byte)", EnvFormatVersion, v)
		}
		c.Format.Version = uint8(v)
	}
	if v, ok, err := getEnvInt(EnvVsockPort); err != nil {
		return err
	} else if ok {
		if uint64(v) > math.MaxUint32 {
			return fmt.Errorf("invalid value for %s: %d (must fit in 32 bits)", EnvVsockPort, v)
		}
		c.Server.VsockPort = uint32(v)
	}
	if v, ok, err := getEnvInt(EnvMaxWorkers); err != nil {
		return err
	} else if ok {
		c.Server.MaxWorkers = v
	}
	if v, ok, err := getEnvInt(EnvBiddingPoolSize); err != nil {
		return err
	} else if ok {
		c.Bidding.PoolSize = v
	}
	if v := os.Getenv(EnvFixturePath); v != "" {
		c.Server.FixturePath = v
	}
	if v := os.Getenv(EnvSigningKeyPath); v != "" {
		c.Server.SigningKeyPath = v
	}
	if v := os.Getenv(EnvFreshness); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %s (must be a duration)", EnvFreshness, v)
		}
		c.BuyerInput.Freshness = d
	}
	return nil
}

// getEnvInt returns the integer value of key and whether it was set.
func getEnvInt(key string) (int, bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false, nil
	}

	intValue, err := strconv.Atoi(value)
	if err != nil || intValue < 0 {
		return 0, false, fmt.Errorf("invalid value for %s: %s (must be a non-negative integer)", key, value)
	}

	log.Printf("INFO: Using %s=%d from environment", key, intValue)
	return intValue, true, nil
}

// Validate checks every section and reports all problems at once, each
// wrapping core.ErrConfiguration.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(msg string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", core.ErrConfiguration, fmt.Sprintf(msg, args...)))
	}

	if _, err := compression.New(c.CompressionVersion); err != nil {
		errs = append(errs, err)
	}
	if _, err := format.New(c.FormatterConfig()); err != nil {
		errs = append(errs, err)
	}

	if c.BuyerInput.Freshness < 0 {
		invalid("buyer_input.freshness must not be negative")
	}
	if c.BuyerInput.PerBuyerSignalsMaxSizeBytes <= 0 {
		invalid("buyer_input.per_buyer_signals_max_size_bytes must be positive")
	}
	if c.BuyerInput.MetricsBuffer < 0 {
		invalid("buyer_input.metrics_buffer must not be negative")
	}
	switch buyerinput.DropOrder(c.BuyerInput.SellerMax.DropOrder) {
	case buyerinput.DropLowestPriority, buyerinput.DropRoundRobin:
	default:
		invalid("unknown buyer_input.seller_max.drop_order %q", c.BuyerInput.SellerMax.DropOrder)
	}
	if c.BuyerInput.SellerMax.MaxRecalculations <= 0 {
		invalid("buyer_input.seller_max.max_recalculations must be positive")
	}

	if c.Bidding.PoolSize <= 0 {
		invalid("bidding.pool_size must be positive")
	}
	if c.Bidding.Deadline <= 0 {
		invalid("bidding.deadline must be positive")
	}
	if c.Bidding.PerCandidateTimeout < 0 {
		invalid("bidding.per_candidate_timeout must not be negative")
	}

	if c.Server.MaxWorkers <= 0 {
		invalid("server.max_workers must be positive")
	}
	if c.Server.ReadTimeout <= 0 {
		invalid("server.read_timeout must be positive")
	}
	if c.Server.FixturePath == "" {
		invalid("server.fixture_path is required")
	}

	return errors.Join(errs...)
}

// FormatterConfig returns the format section as a format.Config.
func (c *Config) FormatterConfig() format.Config {
	return format.Config{
		Version:     c.Format.Version,
		BucketSizes: append([]int(nil), c.Format.BucketSizes...),
		TargetSize:  c.Format.TargetSize,
	}
}

// SellerMax returns the seller budget strategy settings. The budget itself
// arrives with each request.
func (c *Config) SellerMax() buyerinput.SellerMaxConfig {
	return buyerinput.SellerMaxConfig{
		MaxRecalculations:           c.BuyerInput.SellerMax.MaxRecalculations,
		DropOrder:                   buyerinput.DropOrder(c.BuyerInput.SellerMax.DropOrder),
		PerBuyerSignalsMaxSizeBytes: c.BuyerInput.PerBuyerSignalsMaxSizeBytes,
	}
}

// BiddingRunner returns the bidding runner settings for executor. Clock,
// sink and logger are left for the caller.
func (c *Config) BiddingRunner(executor bidding.Executor) bidding.Config {
	return bidding.Config{
		Executor:            executor,
		Parallelism:         c.Bidding.Parallelism,
		Deadline:            c.Bidding.Deadline,
		PoolSize:            c.Bidding.PoolSize,
		PerCandidateTimeout: c.Bidding.PerCandidateTimeout,
	}
}
