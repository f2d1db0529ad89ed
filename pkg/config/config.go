// Package config loads and validates the TOML configuration file
// described in spec.md §6.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config represents the full server configuration.
type Config struct {
	Addr  []string `toml:"addr"`
	Port  uint16   `toml:"port"`
	Trace bool     `toml:"trace"`

	BanPublicMatch  bool    `toml:"ban_public_match"`
	BanPrivateMatch bool    `toml:"ban_private_match"`
	BanResetPuzzle  bool    `toml:"ban_reset_puzzle"`
	BanVariant      []int64 `toml:"ban_variant"`

	LimitConcurrentMatch    int    `toml:"limit_concurrent_match"`
	LimitPublicWaiting      int    `toml:"limit_public_waiting"`
	LimitConnectionDuration uint64 `toml:"limit_connection_duration"`
	// LimitMessageLength is the codec's MAX_FRAME; must be at least
	// wire.MinFrame.
	LimitMessageLength int `toml:"limit_message_length"`
}

// Load reads and parses the TOML file at path. If the file does not
// exist, it writes Default() to path and returns that instead, per
// §6's "on missing file, a default config is written at that path and
// used" rule. Any other read or parse failure is returned as-is for
// the caller to treat as a fatal exit.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := WriteDefault(path); err != nil {
			return nil, errors.Wrap(err, "writing default config")
		}
		return cfg, nil
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration with every field at its §6 default.
func Default() *Config {
	return &Config{
		Addr:                    []string{"0.0.0.0", "::"},
		Port:                    39005,
		LimitConcurrentMatch:    2000,
		LimitPublicWaiting:      100,
		LimitConnectionDuration: 259200,
		LimitMessageLength:      4096,
	}
}

// WriteDefault marshals Default() to path as TOML.
func WriteDefault(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(Default())
}

// Validate rejects a config whose values can't be honored, notably
// limit_message_length below the wire codec's minimum frame size.
func (c *Config) Validate() error {
	if c.LimitMessageLength < minFrame {
		return errors.Errorf("limit_message_length %d is below the minimum of %d", c.LimitMessageLength, minFrame)
	}
	if c.Port == 0 {
		return errors.New("port must be nonzero")
	}
	if len(c.Addr) == 0 {
		return errors.New("addr must list at least one bind address")
	}
	return nil
}

// minFrame mirrors wire.MinFrame; duplicated here to avoid pkg/config
// depending on pkg/wire for a single constant.
const minFrame = 1008

// AllowedVariants returns the default variant set {1..45} with
// BanVariant removed, per §6.
func (c *Config) AllowedVariants() map[int64]bool {
	banned := make(map[int64]bool, len(c.BanVariant))
	for _, v := range c.BanVariant {
		banned[v] = true
	}
	allowed := make(map[int64]bool, 45)
	for v := int64(1); v <= 45; v++ {
		if !banned[v] {
			allowed[v] = true
		}
	}
	return allowed
}
