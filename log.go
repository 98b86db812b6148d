package peerwire

import (
	"github.com/peerwire/peerwire/infrastructure/logger"
	"github.com/peerwire/peerwire/util/panics"
)

var log = logger.RegisterSubSystem("PRWR")
var spawn = panics.GoroutineWrapperFunc(log)
