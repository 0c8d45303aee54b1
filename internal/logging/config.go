// Package logging owns process-wide zerolog configuration profiles.
//
// The runtime level comes from the TOML config; tests always run at debug.
package logging

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

var configureOnce sync.Once

func ConfigureRuntime(level string) {
	configure(ProfileRuntime, level)
}

func ConfigureTests() {
	configure(ProfileTest, "")
}

func configure(profile Profile, level string) {
	configureOnce.Do(func() {
		if profile == ProfileTest {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
			return
		}
		lvl := zerolog.InfoLevel
		if parsed, ok := ParseLevel(level); ok {
			lvl = parsed
		}
		zerolog.SetGlobalLevel(lvl)
	})
}

// ParseLevel maps a config-file level name onto a zerolog level. The second
// return is false for empty or unknown names.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	default:
		return zerolog.InfoLevel, false
	}
}
