package cascade

import (
	"sitepulse.io/sitepulse/internal/pkg/logger"
)

func init() {
	// Initialize logger for tests
	_ = logger.Init("error", "json")
}
