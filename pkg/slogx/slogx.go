// Package slogx builds the gate's structured logger and carries it through
// request contexts.
package slogx

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Redacted replaces the value of any attribute whose key names a credential.
const Redacted = "[redacted]"

// credentialKeys are matched case-insensitively against attribute keys at
// any group depth.
var credentialKeys = map[string]struct{}{
	"password":      {},
	"token":         {},
	"assertion":     {},
	"authorization": {},
	"cookie":        {},
	"pepper":        {},
	"secret":        {},
}

type Config struct {
	Service  string
	Version  string
	Env      string // "dev" adds source locations
	Level    string // debug, info, warn, error
	Format   string // json or text
	Instance string // replica name; defaults to the hostname

	Output io.Writer // defaults to os.Stdout
}

// New returns a logger tagged with service, version, env and instance, and
// installs it as the slog default. Credential attributes are always
// redacted.
func New(cfg Config) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{
		AddSource:   cfg.Env == "dev",
		Level:       level,
		ReplaceAttr: redact,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	case "", "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		return nil, fmt.Errorf("slogx: unknown log format %q", cfg.Format)
	}

	instance := cfg.Instance
	if instance == "" {
		instance, _ = os.Hostname()
	}

	logger := slog.New(handler).With(
		slog.String("service", cfg.Service),
		slog.String("version", cfg.Version),
		slog.String("env", cfg.Env),
		slog.String("instance", instance),
	)
	slog.SetDefault(logger)
	return logger, nil
}

// ParseLevel maps a level name to slog.Level. An empty name is info;
// anything unrecognised is an error so a typo in LOG_LEVEL fails startup.
func ParseLevel(lvl string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("slogx: unknown log level %q", lvl)
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := credentialKeys[strings.ToLower(a.Key)]; ok && a.Value.Kind() != slog.KindGroup {
		return slog.String(a.Key, Redacted)
	}
	return a
}
