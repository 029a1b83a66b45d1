package audit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
)

var enabled atomic.Bool

func init() {
	RefreshFromEnv()
}

// Set toggles audit tracing.
func Set(on bool) {
	enabled.Store(on)
}

// Enabled reports whether audit tracing is on.
func Enabled() bool {
	return enabled.Load()
}

// RefreshFromEnv re-reads TGD_DEBUG; "1" turns tracing on.
func RefreshFromEnv() {
	enabled.Store(os.Getenv("TGD_DEBUG") == "1")
}

// Log emits a debug-level audit record when tracing is enabled.
func Log(format string, args ...any) {
	if !Enabled() {
		return
	}
	slog.Default().Log(context.Background(), slog.LevelDebug, fmt.Sprintf(format, args...), slog.Bool("audit", true))
}
