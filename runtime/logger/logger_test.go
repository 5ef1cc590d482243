package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

// captureLogs redirects the global logger into a buffer for the duration of the test.
func captureLogs(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(level)
	t.Cleanup(func() {
		SetOutput(nil)
		SetLevel(slog.LevelInfo)
	})
	return &buf
}

func TestSetLevel(t *testing.T) {
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		SetLevel(level)
		if DefaultLogger == nil {
			t.Fatal("Expected DefaultLogger to be set")
		}
		if !DefaultLogger.Enabled(context.Background(), level) {
			t.Errorf("Expected level %v to be enabled", level)
		}
	}
	SetLevel(slog.LevelInfo)
}

func TestSetVerbose(t *testing.T) {
	SetVerbose(true)
	if !DefaultLogger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Expected debug enabled after SetVerbose(true)")
	}

	SetVerbose(false)
	if DefaultLogger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Expected debug disabled after SetVerbose(false)")
	}
}

func TestLevelHelpers(t *testing.T) {
	buf := captureLogs(t, slog.LevelDebug)
	ctx := context.Background()

	Info("info message", "key", "value")
	InfoContext(ctx, "info ctx")
	Debug("debug message")
	DebugContext(ctx, "debug ctx")
	Warn("warn message")
	WarnContext(ctx, "warn ctx")
	Error("error message")
	ErrorContext(ctx, "error ctx")

	out := buf.String()
	for _, want := range []string{
		"info message", "key=value", "info ctx", "debug message", "debug ctx",
		"warn message", "warn ctx", "error message", "error ctx",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got: %s", want, out)
		}
	}
}

func TestLLMHelpers(t *testing.T) {
	buf := captureLogs(t, slog.LevelInfo)
	ctx := WithResponseID(context.Background(), 3)

	LLMCall(ctx, "openai", "mixtral", 4, 0.9)
	LLMStreamDone(ctx, "openai", 12, "reason", "stop")
	LLMError(ctx, "openai", errors.New("rate limited"))

	out := buf.String()
	if !strings.Contains(out, "LLM stream opened") || !strings.Contains(out, "messages=4") {
		t.Errorf("missing LLMCall output: %s", out)
	}
	if !strings.Contains(out, "deltas=12") || !strings.Contains(out, "reason=stop") {
		t.Errorf("missing LLMStreamDone output: %s", out)
	}
	if !strings.Contains(out, "rate limited") || !strings.Contains(out, "level=ERROR") {
		t.Errorf("missing LLMError output: %s", out)
	}
	if !strings.Contains(out, "response_id=3") {
		t.Errorf("expected response_id from context, got: %s", out)
	}
}

func TestRedactSensitiveData(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		notWant string
		want    string
	}{
		{
			name:    "openai key",
			input:   "key sk-abcdefghijklmnopqrstuvwxyz0123456789ABCD here",
			notWant: "abcdefghijklmnopqrstuvwxyz",
			want:    "sk-a...[REDACTED]",
		},
		{
			name:    "bearer token",
			input:   "Authorization: Bearer abc.def-123",
			notWant: "abc.def-123",
			want:    "Bearer [REDACTED]",
		},
		{
			name:  "nothing sensitive",
			input: "plain text",
			want:  "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RedactSensitiveData(tt.input)
			if tt.notWant != "" && strings.Contains(got, tt.notWant) {
				t.Errorf("expected %q to be redacted, got %q", tt.notWant, got)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("expected %q in %q", tt.want, got)
			}
		})
	}
}

func TestAPIRequest_RedactsHeaders(t *testing.T) {
	buf := captureLogs(t, slog.LevelDebug)

	APIRequest("openai", "POST", "https://gateway.example/v1/chat/completions",
		map[string]string{"Authorization": "Bearer secret-token"},
		map[string]any{"model": "m", "stream": true})

	out := buf.String()
	if strings.Contains(out, "secret-token") {
		t.Errorf("expected bearer token redacted, got: %s", out)
	}
	if !strings.Contains(out, "API request") {
		t.Errorf("expected API request log, got: %s", out)
	}
}

func TestAPIRequest_SkippedWhenNotVerbose(t *testing.T) {
	buf := captureLogs(t, slog.LevelInfo)

	APIRequest("openai", "POST", "https://x", nil, nil)
	APIResponse("openai", 200, "")

	if buf.Len() != 0 {
		t.Errorf("expected no output at info level, got: %s", buf.String())
	}
}

func TestAPIResponse(t *testing.T) {
	buf := captureLogs(t, slog.LevelDebug)

	APIResponse("openai", 401, `{"error":"bad key sk-abcdefghijklmnopqrstuvwxyz0123456789"}`)

	out := buf.String()
	if !strings.Contains(out, "status_code=401") {
		t.Errorf("expected status code, got: %s", out)
	}
	if strings.Contains(out, "abcdefghijklmnopqrstuvwxyz") {
		t.Errorf("expected key redacted, got: %s", out)
	}
}
