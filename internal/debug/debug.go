// Package debug provides opt-in debug logging to a rotating workspace log
// file. Logging is a no-op unless IDSE_DEBUG is set.
package debug

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/untoldecay/idse/internal/workspace"
)

var (
	once   sync.Once
	logger *log.Logger
)

// Enabled reports whether debug logging is on.
func Enabled() bool {
	return os.Getenv("IDSE_DEBUG") != ""
}

func sink() *log.Logger {
	once.Do(func() {
		path := filepath.Join(os.TempDir(), "idse-debug.log")
		if idseDir := workspace.Find(); idseDir != "" {
			path = filepath.Join(idseDir, "debug.log")
		}
		logger = log.New(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // MB
			MaxBackups: 3,
		}, "", log.LstdFlags|log.Lmicroseconds)
	})
	return logger
}

// Logf writes a formatted line to the debug log when enabled.
func Logf(format string, args ...any) {
	if !Enabled() {
		return
	}
	_ = sink().Output(2, fmt.Sprintf(format, args...))
}
