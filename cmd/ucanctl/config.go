package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/ucan/internal/service"
)

const loopbackInterface = "loopback"

type serviceConfig struct {
	NodeConfig  string
	Interface   string
	AdminAddr   string
	CorsOrigins []string
	Runtime     service.Config
}

func defaultServiceConfig() serviceConfig {
	return serviceConfig{
		NodeConfig: "cmd/ucanctl/node.toml",
		Interface:  loopbackInterface,
		AdminAddr:  "",
		Runtime:    service.DefaultConfig(),
	}
}

type fileConfig struct {
	NodeConfig        string   `toml:"node_config"`
	Interface         string   `toml:"interface"`
	AdminAddr         string   `toml:"admin_addr"`
	CorsOrigins       []string `toml:"cors_origins"`
	CyclePeriod       string   `toml:"cycle_period"`
	CyclePeriodMS     int64    `toml:"cycle_period_ms"`
	ReopenDelay       string   `toml:"reopen_delay"`
	ReopenMaxDelay    string   `toml:"reopen_max_delay"`
	ReopenMultiplier  float64  `toml:"reopen_multiplier"`
	ReopenJitter      bool     `toml:"reopen_jitter"`
	ReopenMaxAttempts int      `toml:"reopen_max_attempts"`
}

func loadServiceConfig(path string) (serviceConfig, error) {
	cfg := defaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return serviceConfig{}, fmt.Errorf("load ucanctl config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return serviceConfig{}, fmt.Errorf("load ucanctl config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("node_config") {
		if v := strings.TrimSpace(raw.NodeConfig); v != "" {
			cfg.NodeConfig = v
		}
	}
	if meta.IsDefined("interface") {
		if v := strings.TrimSpace(raw.Interface); v != "" {
			cfg.Interface = v
		}
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeOrigins(raw.CorsOrigins)
	}

	if meta.IsDefined("cycle_period") {
		d, err := parseDuration("cycle_period", raw.CyclePeriod)
		if err != nil {
			return serviceConfig{}, err
		}
		cfg.Runtime.CyclePeriod = d
	}
	if meta.IsDefined("cycle_period_ms") {
		cfg.Runtime.CyclePeriod = time.Duration(raw.CyclePeriodMS) * time.Millisecond
	}
	if cfg.Runtime.CyclePeriod <= 0 {
		return serviceConfig{}, fmt.Errorf("%w: %s", service.ErrInvalidCyclePeriod, cfg.Runtime.CyclePeriod)
	}

	if meta.IsDefined("reopen_delay") {
		d, err := parseDuration("reopen_delay", raw.ReopenDelay)
		if err != nil {
			return serviceConfig{}, err
		}
		cfg.Runtime.Backoff.InitialDelay = d
	}
	if meta.IsDefined("reopen_max_delay") {
		d, err := parseDuration("reopen_max_delay", raw.ReopenMaxDelay)
		if err != nil {
			return serviceConfig{}, err
		}
		cfg.Runtime.Backoff.MaxDelay = d
	}
	if meta.IsDefined("reopen_multiplier") {
		cfg.Runtime.Backoff.Multiplier = raw.ReopenMultiplier
	}
	if meta.IsDefined("reopen_jitter") {
		cfg.Runtime.Backoff.Jitter = raw.ReopenJitter
	}
	if meta.IsDefined("reopen_max_attempts") {
		cfg.Runtime.MaxReopenAttempts = raw.ReopenMaxAttempts
	}

	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
