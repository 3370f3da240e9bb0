package utils

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

var debug atomic.Bool

// InitLogging initializes logging
func InitLogging(level string) {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	debug.Store(strings.EqualFold(strings.TrimSpace(level), "debug"))
}

// DebugEnabled reports whether debug lines are written
func DebugEnabled() bool {
	return debug.Load()
}

// Debugf logs only when the level is debug
func Debugf(format string, args ...any) {
	if debug.Load() {
		log.Output(2, "DEBUG "+fmt.Sprintf(format, args...))
	}
}
