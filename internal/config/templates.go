package config

import (
	"fmt"
	"os"
	"strings"
)

// Template returns a starter node file for role.
func Template(role string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "master":
		return masterTemplate, nil
	case "client", "listener":
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown node template: %s", role)
	}
}

func WriteTemplate(path, role string, overwrite bool) error {
	template, err := Template(role)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const masterTemplate = `[node]
name = "dash"
role = "master"
id = 0x010
clients = [0x100, 0x101]

[handshake]
ping_interval = 500
timeout = 700
lost = 2000

[[vars]]
name = "speed"
type = "u16"

[[vars]]
name = "rpm"
type = "u32"

[[vars]]
name = "gear"
type = "u8"
init = 1

[[vars]]
name = "coolant_temp"
type = "u16"

[[tx]]
id = 0x240
items = ["speed"]

[[tx]]
id = 0x245
items = ["rpm", "gear"]

[[rx]]
id = 0x360
items = ["coolant_temp"]
`

const clientTemplate = `[node]
name = "engine"
role = "client"
id = 0x100
master_id = 0x010

[[vars]]
name = "coolant_temp"
type = "u16"

[[vars]]
name = "speed"
type = "u16"

[[tx]]
id = 0x360
items = ["coolant_temp"]

[[rx]]
id = 0x240
items = ["speed"]
`
