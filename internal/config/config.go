package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/ucan/internal/protocol"
	"github.com/danmuck/ucan/internal/protocol/binding"
	"github.com/danmuck/ucan/internal/protocol/handshake"
	"github.com/pelletier/go-toml/v2"
)

// NodeConfig is the on-disk description of one node: its handshake identity,
// timing, named variables and the tx/rx frames built from them.
type NodeConfig struct {
	Node      NodeSection      `toml:"node"`
	Handshake HandshakeSection `toml:"handshake"`
	Vars      []VarEntry       `toml:"vars"`
	Tx        []FrameEntry     `toml:"tx"`
	Rx        []FrameEntry     `toml:"rx"`
}

type NodeSection struct {
	Name     string   `toml:"name"`
	Role     string   `toml:"role"`
	ID       uint32   `toml:"id"`
	MasterID uint32   `toml:"master_id"`
	Clients  []uint32 `toml:"clients"`
}

// HandshakeSection thresholds are in ticks (milliseconds). Zero keeps the default.
type HandshakeSection struct {
	PingInterval uint32 `toml:"ping_interval"`
	Timeout      uint32 `toml:"timeout"`
	Lost         uint32 `toml:"lost"`
}

type VarEntry struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
	Init uint32 `toml:"init"`
}

// FrameEntry lists variable names in payload order.
type FrameEntry struct {
	ID    uint32   `toml:"id"`
	Items []string `toml:"items"`
}

// Node is a NodeConfig resolved into protocol values.
type Node struct {
	Name      string
	Info      handshake.NodeInfo
	Handshake handshake.Config
	Vars      *binding.Vars
	Tx        []binding.FrameSpec
	Rx        []binding.FrameSpec
}

func LoadNodeConfig(path string) (NodeConfig, error) {
	var cfg NodeConfig
	if err := loadToml(path, &cfg); err != nil {
		return NodeConfig{}, err
	}
	if cfg.Node.Name == "" {
		cfg.Node.Name = "ucan-node"
	}
	if err := ValidateNodeConfig(cfg); err != nil {
		return NodeConfig{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

// LoadNode reads, validates and resolves a node file.
func LoadNode(path string) (Node, error) {
	cfg, err := LoadNodeConfig(path)
	if err != nil {
		return Node{}, err
	}
	return cfg.Build()
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := decodeStrict(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func decodeStrict(data []byte, out any) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("%w: %s", protocol.ErrInvalidConfiguration, strict.String())
		}
		return err
	}
	return nil
}

// ValidateNodeConfig checks the file shape. Protocol rules (id ranges, duplicate
// ids, frame lengths) are enforced again when the handle starts.
func ValidateNodeConfig(cfg NodeConfig) error {
	role, err := handshake.ParseRole(cfg.Node.Role)
	if err != nil {
		return err
	}
	switch role {
	case handshake.RoleMaster:
		if len(cfg.Node.Clients) == 0 {
			return fmt.Errorf("%w: master node requires clients", protocol.ErrInvalidConfiguration)
		}
	case handshake.RoleClient:
		if cfg.Node.MasterID == cfg.Node.ID {
			return fmt.Errorf("%w: client node requires a master_id distinct from id", protocol.ErrInvalidConfiguration)
		}
	}
	if len(cfg.Tx) == 0 || len(cfg.Rx) == 0 {
		return fmt.Errorf("%w: node requires at least one tx and one rx frame", protocol.ErrInvalidConfiguration)
	}

	declared := make(map[string]struct{}, len(cfg.Vars))
	for i, v := range cfg.Vars {
		name := strings.TrimSpace(v.Name)
		if name == "" {
			return fmt.Errorf("vars[%d]: %w: name is required", i, protocol.ErrInvalidConfiguration)
		}
		if _, err := binding.ParseKind(v.Type); err != nil {
			return fmt.Errorf("vars[%d] %s: %w", i, name, err)
		}
		if _, ok := declared[name]; ok {
			return fmt.Errorf("vars[%d]: %w: %q", i, binding.ErrVarExists, name)
		}
		declared[name] = struct{}{}
	}
	for _, group := range []struct {
		label   string
		entries []FrameEntry
	}{{"tx", cfg.Tx}, {"rx", cfg.Rx}} {
		for i, f := range group.entries {
			if len(f.Items) == 0 {
				return fmt.Errorf("%s[%d] 0x%03X: %w: items are required", group.label, i, f.ID, protocol.ErrInvalidConfiguration)
			}
			for _, item := range f.Items {
				if _, ok := declared[strings.TrimSpace(item)]; !ok {
					return fmt.Errorf("%s[%d] 0x%03X: %w: %q", group.label, i, f.ID, binding.ErrVarUnknown, item)
				}
			}
		}
	}
	return nil
}

// Build declares every variable, applies init values and resolves frames to
// bindings. A variable may appear in several frames; they share storage.
func (cfg NodeConfig) Build() (Node, error) {
	role, err := handshake.ParseRole(cfg.Node.Role)
	if err != nil {
		return Node{}, err
	}
	vars := binding.NewVars()
	for _, v := range cfg.Vars {
		kind, err := binding.ParseKind(v.Type)
		if err != nil {
			return Node{}, fmt.Errorf("var %s: %w", v.Name, err)
		}
		if _, err := vars.Declare(v.Name, kind); err != nil {
			return Node{}, err
		}
		if err := vars.Set(v.Name, v.Init); err != nil {
			return Node{}, err
		}
	}
	tx, err := resolveFrames(vars, cfg.Tx)
	if err != nil {
		return Node{}, fmt.Errorf("tx: %w", err)
	}
	rx, err := resolveFrames(vars, cfg.Rx)
	if err != nil {
		return Node{}, fmt.Errorf("rx: %w", err)
	}

	info := handshake.NodeInfo{Role: role, SelfID: cfg.Node.ID}
	switch role {
	case handshake.RoleMaster:
		info.Clients = append([]uint32(nil), cfg.Node.Clients...)
	case handshake.RoleClient:
		info.MasterID = cfg.Node.MasterID
	}
	return Node{
		Name: cfg.Node.Name,
		Info: info,
		Handshake: handshake.Config{
			PingInterval: handshake.Tick(cfg.Handshake.PingInterval),
			Timeout:      handshake.Tick(cfg.Handshake.Timeout),
			Lost:         handshake.Tick(cfg.Handshake.Lost),
		}.WithDefaults(),
		Vars: vars,
		Tx:   tx,
		Rx:   rx,
	}, nil
}

func resolveFrames(vars *binding.Vars, entries []FrameEntry) ([]binding.FrameSpec, error) {
	out := make([]binding.FrameSpec, 0, len(entries))
	for i, f := range entries {
		spec := binding.FrameSpec{ID: f.ID, Items: make([]binding.Binding, 0, len(f.Items))}
		for _, name := range f.Items {
			b, ok := vars.Resolve(name)
			if !ok {
				return nil, fmt.Errorf("[%d] 0x%03X: %w: %q", i, f.ID, binding.ErrVarUnknown, name)
			}
			spec.Items = append(spec.Items, b)
		}
		out = append(out, spec)
	}
	return out, nil
}
