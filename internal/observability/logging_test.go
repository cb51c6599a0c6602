package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerEmitsServiceAndCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Service: "codeforge-worker", Output: &buf})

	ctx := AddRequestID(context.Background(), "req-1")
	ctx = AddRunID(ctx, "run-1")
	logger.Info(ctx, "run started")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if record["service"] != "codeforge-worker" {
		t.Errorf("service = %v", record["service"])
	}
	if record["request_id"] != "req-1" {
		t.Errorf("request_id = %v", record["request_id"])
	}
	if record["run_id"] != "run-1" {
		t.Errorf("run_id = %v", record["run_id"])
	}
	if record["msg"] != "run started" {
		t.Errorf("msg = %v", record["msg"])
	}
}

func TestLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})
	logger.Info(context.Background(), "token leaked", "value", "sk-ant-"+strings.Repeat("a", 100))

	if strings.Contains(buf.String(), "sk-ant-") {
		t.Errorf("expected secret to be redacted, got: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "[REDACTED]") {
		t.Errorf("expected [REDACTED] marker, got: %s", buf.String())
	}
}

func TestLogLevelFromString(t *testing.T) {
	cases := map[string]string{"debug": "DEBUG", "warn": "WARN", "error": "ERROR", "bogus": "INFO"}
	for in, want := range cases {
		if got := LogLevelFromString(in).String(); got != want {
			t.Errorf("LogLevelFromString(%q) = %q, want %q", in, got, want)
		}
	}
}
