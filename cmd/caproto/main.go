// Command caproto is a collision-avoidance prototype: it propagates TLE
// catalogs with SGP4, screens every pair for close approaches on a uniform
// time grid, refines the time of closest approach locally, and writes
// report artifacts. It can also serve archived results over HTTP.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"

	"github.com/spf13/cobra"
)

var logger *slog.Logger

func main() {
	logger = newLogger()

	root := &cobra.Command{
		Use:           "caproto",
		Short:         "TLE/SGP4 conjunction screening, refinement, and reporting",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newFetchCmd(),
		newPropagateCmd(),
		newScreenCmd(),
		newRefineCmd(),
		newReportCmd(),
		newDvplanCmd(),
		newServeCmd(),
	)

	if err := root.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if v := os.Getenv("CAPROTO_LOG_LEVEL"); v != "" {
		switch v {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			fmt.Fprintf(os.Stderr, "invalid CAPROTO_LOG_LEVEL %q, using info\n", v)
		}
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// envString returns the environment value or a default.
func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt returns the environment value as a positive int, warning and
// falling back to the default on bad input.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		logger.Warn("invalid value, using default", "var", key, "value", v, "default", def)
		return def
	}
	return n
}

// envInt64 returns the environment value as an int64, warning and falling
// back to the default on bad input.
func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		logger.Warn("invalid value, using default", "var", key, "value", v, "default", def)
		return def
	}
	return n
}

// envFloat returns the environment value as a non-negative float, warning
// and falling back to the default on bad input.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		logger.Warn("invalid value, using default", "var", key, "value", v, "default", def)
		return def
	}
	return f
}

// envBool returns the environment value as a bool, warning and falling
// back to the default on bad input.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("invalid value, using default", "var", key, "value", v, "default", def)
		return def
	}
	return b
}

func defaultWorkers() int {
	return envInt("CAPROTO_WORKERS", runtime.NumCPU())
}
