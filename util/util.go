// Package util holds the process-wide logger and a few small helpers
// shared by the other packages.
package util

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log is the default logger for every component that isn't given
// its own.
var Log = zerolog.New(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: time.RFC3339,
}).With().Timestamp().Logger()

// Logging is a clumsy switch that affects what Logf does.
//
// If Logging is true, then Logf writes a debug record to Log.
var Logging = false

// Logf is a silly utility function that logs at debug level if
// Logging is true.
func Logf(format string, args ...interface{}) {
	if !Logging {
		return
	}
	Log.Debug().Msgf(format, args...)
}

// Component returns a child of the given logger (or Log if nil)
// tagged with the component name.
func Component(l *zerolog.Logger, name string) zerolog.Logger {
	if l == nil {
		l = &Log
	}
	return l.With().Str("component", name).Logger()
}

// JS renders its argument as JSON or as a string indicating an error.
func JS(x interface{}) string {
	bs, err := json.Marshal(&x)
	if err != nil {
		return fmt.Sprintf("%#v", x)
	}
	return string(bs)
}
