package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/ucan/internal/config"
	"github.com/danmuck/ucan/internal/service"
)

func TestLoadServiceConfigDefaultsAndOverrides(t *testing.T) {
	cfg, err := loadServiceConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.NodeConfig != "cmd/ucanctl/node.toml" {
		t.Fatalf("unexpected node config: %q", cfg.NodeConfig)
	}
	if cfg.Interface != "can0" {
		t.Fatalf("unexpected interface: %q", cfg.Interface)
	}
	if cfg.AdminAddr != "127.0.0.1:7020" {
		t.Fatalf("unexpected admin addr: %q", cfg.AdminAddr)
	}
	if len(cfg.CorsOrigins) != 1 || cfg.CorsOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected cors origins: %+v", cfg.CorsOrigins)
	}
	if cfg.Runtime.CyclePeriod != 50*time.Millisecond {
		t.Fatalf("unexpected cycle period: %v", cfg.Runtime.CyclePeriod)
	}
	b := cfg.Runtime.Backoff
	if b.InitialDelay != 100*time.Millisecond || b.MaxDelay != 2*time.Second || b.Jitter {
		t.Fatalf("unexpected backoff: %+v", b)
	}
	if b.Multiplier != service.DefaultConfig().Backoff.Multiplier {
		t.Fatalf("expected default multiplier, got=%v", b.Multiplier)
	}
	if cfg.Runtime.MaxReopenAttempts != 20 {
		t.Fatalf("unexpected max reopen attempts: %d", cfg.Runtime.MaxReopenAttempts)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadServiceConfigEmptyKeepsDefaults(t *testing.T) {
	cfg, err := loadServiceConfig(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	def := defaultServiceConfig()
	if cfg.Interface != loopbackInterface || cfg.NodeConfig != def.NodeConfig || cfg.AdminAddr != "" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Runtime.CyclePeriod != def.Runtime.CyclePeriod {
		t.Fatalf("unexpected cycle period: %v", cfg.Runtime.CyclePeriod)
	}
}

func TestLoadServiceConfigRejects(t *testing.T) {
	cases := map[string]string{
		"bad duration": `cycle_period = "soon"`,
		"unknown key":  `heartbeat = "1s"`,
		"zero period":  `cycle_period_ms = 0`,
	}
	for name, body := range cases {
		if _, err := loadServiceConfig(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	_, err := loadServiceConfig(writeConfig(t, `cycle_period = "-1s"`))
	if !errors.Is(err, service.ErrInvalidCyclePeriod) {
		t.Fatalf("expected ErrInvalidCyclePeriod, got=%v", err)
	}
}

func TestExampleNodeFileIsValid(t *testing.T) {
	node, err := config.LoadNode("node.toml")
	if err != nil {
		t.Fatalf("load node: %v", err)
	}
	if node.Name != "dash" || len(node.Tx) != 2 {
		t.Fatalf("unexpected node: name=%q tx=%d", node.Name, len(node.Tx))
	}
}

func TestRunCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.toml")
	if err := run([]string{"init", "-role", "client", "-output", path}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := run([]string{"validate", "-node", path}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := run([]string{"init", "-role", "client", "-output", path}); err == nil {
		t.Fatalf("expected init to refuse an existing file")
	}
	if err := run([]string{"flash"}); err == nil {
		t.Fatalf("expected unknown command error")
	}
}

func TestOpenerLoopback(t *testing.T) {
	open := opener(loopbackInterface)
	a, err := open()
	if err != nil {
		t.Fatalf("open loopback: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
