// Package config loads the enclave's YAML deployment document: which
// connections exist, which PMs participate in bootstrap and with what key
// material, and how to log, grounded on the config-loading shape used
// throughout the example pack's YAML-configured tools.
package config

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vulcan-project/leia/attest"
	"github.com/vulcan-project/leia/spongent"
)

// Config is the root deployment document.
type Config struct {
	AECID       uint16             `yaml:"aec_id"`
	Connections []ConnectionConfig `yaml:"connections"`
	PMKeys      []PMKeyConfig      `yaml:"pm_keys"`
	Logging     LoggingConfig      `yaml:"logging"`
}

// ConnectionConfig declares one data connection the node participates in.
type ConnectionConfig struct {
	ID uint16 `yaml:"id"`
}

// PMKeyConfig declares one protected module's pre-shared key and the
// connections it should receive during the attestation bootstrap, in order.
type PMKeyConfig struct {
	ID         uint16   `yaml:"id"`
	KeyHex     string   `yaml:"key_hex,omitempty"`
	Passphrase string   `yaml:"passphrase,omitempty"`
	ConnIDs    []uint16 `yaml:"conn_ids"`
}

// LoggingConfig configures the zerolog logger threaded through the process.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads, parses and validates a Config document from path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural invariants the rest of the system relies on.
func (c *Config) Validate() error {
	if c.AECID == 0 {
		return fmt.Errorf("config.aec_id is required and must be nonzero")
	}

	seen := make(map[uint16]bool)
	for i, conn := range c.Connections {
		if conn.ID == 0 {
			return fmt.Errorf("config.connections[%d].id must be nonzero", i)
		}
		if conn.ID == c.AECID {
			return fmt.Errorf("config.connections[%d].id collides with aec_id", i)
		}
		if seen[conn.ID] {
			return fmt.Errorf("config.connections[%d].id %#x is duplicated", i, conn.ID)
		}
		seen[conn.ID] = true
	}

	if len(c.PMKeys) == 0 {
		return fmt.Errorf("config.pm_keys must declare at least one protected module")
	}
	for i, pm := range c.PMKeys {
		if pm.ID == 0 {
			return fmt.Errorf("config.pm_keys[%d].id must be nonzero", i)
		}
		if strings.TrimSpace(pm.KeyHex) == "" && strings.TrimSpace(pm.Passphrase) == "" {
			return fmt.Errorf("config.pm_keys[%d] must set key_hex or passphrase", i)
		}
		if pm.KeyHex != "" {
			raw, err := hex.DecodeString(pm.KeyHex)
			if err != nil {
				return fmt.Errorf("config.pm_keys[%d].key_hex is invalid: %w", i, err)
			}
			if len(raw) != spongent.KeySize {
				return fmt.Errorf("config.pm_keys[%d].key_hex must decode to %d bytes, got %d", i, spongent.KeySize, len(raw))
			}
		}
		if len(pm.ConnIDs) == 0 {
			return fmt.Errorf("config.pm_keys[%d].conn_ids must list at least one connection", i)
		}
		for _, connID := range pm.ConnIDs {
			if !seen[connID] {
				return fmt.Errorf("config.pm_keys[%d] references undeclared connection %#x", i, connID)
			}
		}
	}

	return nil
}

// Key resolves the module's pre-shared key, preferring an explicit hex key
// over a derived passphrase.
func (pm PMKeyConfig) Key() (spongent.Key, error) {
	var key spongent.Key
	if pm.KeyHex != "" {
		raw, err := hex.DecodeString(pm.KeyHex)
		if err != nil {
			return key, fmt.Errorf("decode key_hex: %w", err)
		}
		copy(key[:], raw)
		return key, nil
	}
	return attest.DeriveProvisioningKey(pm.Passphrase), nil
}

// Participations builds the attestation distributor's participation list in
// the order declared by the document (§4.5 requires sender-before-receiver
// ordering, which the operator encodes via pm_keys order).
func (c *Config) Participations() ([]attest.Participation, error) {
	out := make([]attest.Participation, 0, len(c.PMKeys))
	for _, pm := range c.PMKeys {
		key, err := pm.Key()
		if err != nil {
			return nil, fmt.Errorf("config.pm_keys id %#x: %w", pm.ID, err)
		}
		out = append(out, attest.Participation{PMID: pm.ID, PMKey: key, ConnIDs: pm.ConnIDs})
	}
	return out, nil
}
