package handshake

import (
	"github.com/peerwire/peerwire/infrastructure/logger"
)

var log = logger.RegisterSubSystem("HNDS")
