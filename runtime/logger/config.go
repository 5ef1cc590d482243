package logger

import (
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
)

// Log format constants.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Spec is the logging section of the relay configuration.
type Spec struct {
	Level        string
	Format       string
	CommonFields map[string]string
}

var (
	configMu            sync.Mutex
	logOutput           io.Writer = os.Stderr
	currentCommonFields []slog.Attr
	currentJSON         bool
)

// ParseLevel converts a level name into a slog.Level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Configure rebuilds the global logger from spec. A nil spec is a no-op.
func Configure(spec *Spec) {
	if spec == nil {
		return
	}

	keys := make([]string, 0, len(spec.CommonFields))
	for k := range spec.CommonFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	common := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		common = append(common, slog.String(k, spec.CommonFields[k]))
	}

	initLogger(ParseLevel(spec.Level), common, strings.EqualFold(spec.Format, FormatJSON))
}

// SetOutput redirects log output. Passing nil restores stderr.
// The current level is kept only for subsequent Configure/SetLevel calls.
func SetOutput(w io.Writer) {
	configMu.Lock()
	if w == nil {
		w = os.Stderr
	}
	logOutput = w
	configMu.Unlock()
}

func initLogger(level slog.Level, common []slog.Attr, useJSON bool) {
	configMu.Lock()
	defer configMu.Unlock()

	opts := &slog.HandlerOptions{Level: level}

	var base slog.Handler
	if useJSON {
		base = slog.NewJSONHandler(logOutput, opts)
	} else {
		base = slog.NewTextHandler(logOutput, opts)
	}

	currentCommonFields = common
	currentJSON = useJSON
	DefaultLogger = slog.New(NewContextHandler(base, common...))
}
