// Package config loads the actor system's TOML configuration file and
// layers environment-variable overrides on top of it, following the same
// file-then-env precedence the rest of this codebase's configuration
// tooling uses.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ActorSystemConfig is the root configuration document, normally loaded
// from a file named fraktor.toml.
type ActorSystemConfig struct {
	System   SystemConfig   `toml:"system"`
	Remoting RemotingConfig `toml:"remoting"`
	Streams  StreamsConfig  `toml:"streams"`
}

type SystemConfig struct {
	Name                string `toml:"name"`
	CanonicalHost       string `toml:"canonical_host"`
	CanonicalPort       uint16 `toml:"canonical_port"`
	QuarantineDurationS int    `toml:"quarantine_duration_seconds"`
	DefaultGuardianKind string `toml:"default_guardian_kind"`
	MailboxCapacity     int    `toml:"mailbox_capacity"`
}

type RemotingConfig struct {
	HandshakeTimeoutMS  int `toml:"handshake_timeout_ms"`
	HeartbeatIntervalMS int `toml:"heartbeat_interval_ms"`
	ReapIntervalMS      int `toml:"reap_interval_ms"`
	FlushTimeoutMS      int `toml:"flush_timeout_ms"`
}

type StreamsConfig struct {
	DefaultBufferCapacity int    `toml:"default_buffer_capacity"`
	OverflowPolicy        string `toml:"overflow_policy"`
}

func Default() ActorSystemConfig {
	return ActorSystemConfig{
		System: SystemConfig{
			Name:                "fraktor",
			QuarantineDurationS: 5 * 24 * 60 * 60,
			DefaultGuardianKind: "user",
			MailboxCapacity:     128,
		},
		Remoting: RemotingConfig{
			HandshakeTimeoutMS:  3000,
			HeartbeatIntervalMS: 100,
			ReapIntervalMS:      200,
			FlushTimeoutMS:      5000,
		},
		Streams: StreamsConfig{
			DefaultBufferCapacity: 16,
			OverflowPolicy:        "Block",
		},
	}
}

func (c ActorSystemConfig) QuarantineDuration() time.Duration {
	return time.Duration(c.System.QuarantineDurationS) * time.Second
}

func (c ActorSystemConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.Remoting.HandshakeTimeoutMS) * time.Millisecond
}

func (c ActorSystemConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.Remoting.HeartbeatIntervalMS) * time.Millisecond
}

func (c ActorSystemConfig) ReapInterval() time.Duration {
	return time.Duration(c.Remoting.ReapIntervalMS) * time.Millisecond
}

func (c ActorSystemConfig) FlushTimeout() time.Duration {
	return time.Duration(c.Remoting.FlushTimeoutMS) * time.Millisecond
}

// envPrefix mirrors the FRAKTOR__section__key convention: double
// underscores separate nesting levels, e.g. FRAKTOR__SYSTEM__NAME.
const envPrefix = "FRAKTOR__"

// Load reads path (if it exists; a missing file is not an error, Default()
// is used instead) and then applies FRAKTOR__ environment overrides on
// top.
func Load(path string) (ActorSystemConfig, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return cfg, fmt.Errorf("config: decode %s: %w", path, err)
			}
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *ActorSystemConfig) {
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, envPrefix) {
			continue
		}
		pair := strings.SplitN(kv, "=", 2)
		if len(pair) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(pair[0], envPrefix))
		setByKey(cfg, key, pair[1])
	}
}

func setByKey(cfg *ActorSystemConfig, key, value string) {
	switch key {
	case "system__name":
		cfg.System.Name = value
	case "system__canonical_host":
		cfg.System.CanonicalHost = value
	case "system__canonical_port":
		if v, err := strconv.ParseUint(value, 10, 16); err == nil {
			cfg.System.CanonicalPort = uint16(v)
		}
	case "system__quarantine_duration_seconds":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.System.QuarantineDurationS = v
		}
	case "system__mailbox_capacity":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.System.MailboxCapacity = v
		}
	case "remoting__handshake_timeout_ms":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.Remoting.HandshakeTimeoutMS = v
		}
	case "remoting__heartbeat_interval_ms":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.Remoting.HeartbeatIntervalMS = v
		}
	case "streams__default_buffer_capacity":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.Streams.DefaultBufferCapacity = v
		}
	case "streams__overflow_policy":
		cfg.Streams.OverflowPolicy = value
	}
}
