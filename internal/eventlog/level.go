// Package eventlog defines the operator-facing severity tiers as slog levels and
// keeps a bounded journal of log events for the HTTP and WebSocket surfaces.
package eventlog

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gateway-fm/activitybot/pkg/types"
)

// Severity tiers. wait, delay and success sit between info and warn so the
// usual level filtering keeps working.
const (
	LevelDebug   = slog.LevelDebug
	LevelInfo    = slog.LevelInfo
	LevelWait    = slog.Level(1)
	LevelDelay   = slog.Level(2)
	LevelSuccess = slog.Level(3)
	LevelWarn    = slog.LevelWarn
	LevelError   = slog.LevelError
)

// SeverityOf maps a level to its tier. Levels between tiers round down.
func SeverityOf(l slog.Level) types.Severity {
	switch {
	case l >= LevelError:
		return types.SeverityError
	case l >= LevelWarn:
		return types.SeverityWarn
	case l >= LevelSuccess:
		return types.SeveritySuccess
	case l >= LevelDelay:
		return types.SeverityDelay
	case l >= LevelWait:
		return types.SeverityWait
	case l >= LevelInfo:
		return types.SeverityInfo
	default:
		return types.SeverityDebug
	}
}

// ParseLevel parses a -log-level value. Any tier name is accepted.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "wait":
		return LevelWait, nil
	case "delay":
		return LevelDelay, nil
	case "success":
		return LevelSuccess, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// ReplaceLevel is a slog.HandlerOptions.ReplaceAttr that prints tier names
// instead of "INFO+1" style offsets.
func ReplaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey && len(groups) == 0 {
		if l, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(strings.ToUpper(string(SeverityOf(l))))
		}
	}
	return a
}
