package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"wabridge/pkg/config"
)

func TestLoggerJSONEntryShape(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.With("component", "relay.outbound").Info("Dispatched message", "chat_id", "123", "deleted", true)

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}

	if entry.Level != "info" {
		t.Fatalf("level = %q, want %q", entry.Level, "info")
	}
	if entry.Message != "Dispatched message" {
		t.Fatalf("message = %q, want %q", entry.Message, "Dispatched message")
	}
	if entry.Component != "relay.outbound" {
		t.Fatalf("component = %q, want %q", entry.Component, "relay.outbound")
	}
	if got := entry.Fields["chat_id"]; got != "123" {
		t.Fatalf("fields.chat_id = %v, want %q", got, "123")
	}
	if got := entry.Fields["deleted"]; got != true {
		t.Fatalf("fields.deleted = %v, want true", got)
	}
}

func TestLoggerRendersErrorValues(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Error("Dispatch failed", "error", errors.New("connection reset"))

	var entry LogEntry
	if err := json.Unmarshal(out.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	if got := entry.Fields["error"]; got != "connection reset" {
		t.Fatalf("fields.error = %v, want error message string", got)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Info("Ignored")
	if got := strings.TrimSpace(out.String()); got != "" {
		t.Fatalf("expected no output for info, got %q", got)
	}

	log.Error("Kept")
	if got := strings.TrimSpace(out.String()); got == "" {
		t.Fatal("expected output for error")
	}
}

func TestLoggerEnvironmentOverrides(t *testing.T) {
	t.Setenv("WABRIDGE_LOG_LEVEL", "debug")
	t.Setenv("WABRIDGE_LOG_FORMAT", "text")
	defer unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Debug("Debug enabled", "component", "test")
	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected debug output with env override")
	}
	if strings.HasPrefix(line, "{") {
		t.Fatalf("expected text format override, got %q", line)
	}
}

func unsetLoggingEnv(t *testing.T) {
	t.Helper()
	_ = os.Unsetenv("WABRIDGE_LOG_LEVEL")
	_ = os.Unsetenv("WABRIDGE_LOG_FORMAT")
	_ = os.Unsetenv("WABRIDGE_LOG_ADD_SOURCE")
}
