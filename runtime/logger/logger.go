// Package logger provides structured logging with automatic secret redaction.
//
// This package wraps Go's standard log/slog with convenience functions for:
//   - LLM provider call logging (requests, responses, errors)
//   - Automatic API key and bearer token redaction
//   - Contextual logging carrying session, call, and turn identifiers
//   - Level-based verbosity control
//
// All exported functions use the global DefaultLogger, which Configure can
// switch between text and JSON output.
package logger

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

var (
	// DefaultLogger is the global structured logger instance.
	// It is safe for concurrent use and initialized with slog.LevelInfo by default.
	DefaultLogger *slog.Logger
)

func init() {
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		level = ParseLevel(envLevel)
	}
	initLogger(level, nil, false)
}

// SetLevel changes the logging level for all subsequent log operations.
// The current format and common fields are preserved.
func SetLevel(level slog.Level) {
	configMu.Lock()
	common, useJSON := currentCommonFields, currentJSON
	configMu.Unlock()
	initLogger(level, common, useJSON)
}

// SetVerbose enables debug-level logging when verbose is true, otherwise sets info-level.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// Info logs an informational message with structured key-value attributes.
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// InfoContext logs an informational message, enriched with the logging fields stored in ctx.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message with structured attributes.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// DebugContext logs a debug message with context and structured attributes.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs a warning message with structured attributes.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// WarnContext logs a warning message with context and structured attributes.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs an error message with structured attributes.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs an error message with context and structured attributes.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// LLMCall logs an outbound streaming completion request.
func LLMCall(ctx context.Context, provider, model string, messages int, temperature float64, attrs ...any) {
	allAttrs := make([]any, 0, 8+len(attrs))
	allAttrs = append(allAttrs,
		"provider", provider,
		"model", model,
		"messages", messages,
		"temperature", temperature,
	)
	allAttrs = append(allAttrs, attrs...)
	InfoContext(ctx, "LLM stream opened", allAttrs...)
}

// LLMStreamDone logs the end of a completion stream.
func LLMStreamDone(ctx context.Context, provider string, deltas int, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs,
		"provider", provider,
		"deltas", deltas,
	)
	allAttrs = append(allAttrs, attrs...)
	InfoContext(ctx, "LLM stream finished", allAttrs...)
}

// LLMError logs a provider failure. The error is swallowed by callers after logging.
func LLMError(ctx context.Context, provider string, err error, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs,
		"provider", provider,
		"error", err,
	)
	allAttrs = append(allAttrs, attrs...)
	ErrorContext(ctx, "LLM stream failed", allAttrs...)
}

var (
	// apiKeyPatterns matches credential formats that may appear in URLs, headers, or bodies.
	apiKeyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`sk-[a-zA-Z0-9_-]{32,}`),   // OpenAI / OpenRouter keys
		regexp.MustCompile(`pk-[a-zA-Z0-9_-]{20,}`),   // Portkey keys
		regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_.-]+`), // Bearer tokens
	}
)

// RedactSensitiveData removes API keys and bearer tokens from a string.
// Keys keep their first four characters for debugging; bearer tokens are
// replaced entirely.
func RedactSensitiveData(input string) string {
	result := input

	for _, pattern := range apiKeyPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if strings.HasPrefix(match, "Bearer") {
				return "Bearer [REDACTED]"
			}
			if len(match) > 8 {
				return match[:4] + "...[REDACTED]"
			}
			return "[REDACTED]"
		})
	}

	return result
}

// APIRequest logs an outbound HTTP request at debug level with redaction.
// It is a no-op when debug logging is disabled.
func APIRequest(provider, method, url string, headers map[string]string, body any) {
	if !DefaultLogger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := make([]any, 0, 8)
	attrs = append(attrs,
		"provider", provider,
		"method", method,
		"url", RedactSensitiveData(url),
	)

	if len(headers) > 0 {
		redacted := make(map[string]string, len(headers))
		for key, value := range headers {
			redacted[key] = RedactSensitiveData(value)
		}
		attrs = append(attrs, "headers", redacted)
	}

	if body != nil {
		bodyJSON, err := json.Marshal(body)
		if err != nil {
			attrs = append(attrs, "body_error", err.Error())
		} else {
			attrs = append(attrs, "body", RedactSensitiveData(string(bodyJSON)))
		}
	}

	Debug("API request", attrs...)
}

// APIResponse logs the status line of a provider response at debug level.
// Non-2xx bodies are included after redaction.
func APIResponse(provider string, statusCode int, body string) {
	if !DefaultLogger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := []any{"provider", provider, "status_code", statusCode}
	if body != "" {
		attrs = append(attrs, "body", RedactSensitiveData(body))
	}
	Debug("API response", attrs...)
}
