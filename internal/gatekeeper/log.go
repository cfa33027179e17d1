package gatekeeper

import (
	"log/slog"
	"os"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// newLogger builds the process's base logger, verbose (slog.LevelDebug) when
// the DEBUG environment variable is set, matching internal/home/log.go's
// Enabled/Verbose switch.
func newLogger() *slog.Logger {
	lvl := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		lvl = slog.LevelDebug
	}

	return slogutil.New(&slogutil.Config{
		Format:       slogutil.FormatAdGuardLegacy,
		Level:        lvl,
		AddTimestamp: true,
	})
}
