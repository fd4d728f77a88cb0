package observability

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger tags the process logger with the app name and the node identity,
// installs it as the global logger and returns it. logging.Configure must run first.
func InitLogger(app, role string, nodeID uint32) zerolog.Logger {
	logger := log.Logger.With().
		Str("app", app).
		Str("role", role).
		Str("node", NodeLabel(nodeID)).
		Logger()
	log.Logger = logger
	return logger
}

// NodeLabel formats a CAN id the way logs and metric labels carry it.
func NodeLabel(id uint32) string {
	return fmt.Sprintf("0x%03X", id)
}
