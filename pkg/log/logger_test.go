package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestZerologLogger_CloudLoggingFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewZerologLogger(buf, LevelInfo)

	logger.Info("Training completed", ModelNameKey, "KNN", AccuracyKey, 0.75)

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["severity"] != "INFO" {
		t.Errorf("severity = %v, want INFO", entry["severity"])
	}
	if entry["message"] != "Training completed" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry[ModelNameKey] != "KNN" {
		t.Errorf("%s = %v", ModelNameKey, entry[ModelNameKey])
	}
	if entry[AccuracyKey] != 0.75 {
		t.Errorf("%s = %v", AccuracyKey, entry[AccuracyKey])
	}
}

func TestZerologLogger_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewZerologLogger(buf, LevelWarn)
	ctx := context.Background()

	if logger.Enabled(ctx, LevelInfo) {
		t.Error("Info should be disabled at WARN level")
	}
	if !logger.Enabled(ctx, LevelError) {
		t.Error("Error should be enabled at WARN level")
	}

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")

	entries := decodeLines(t, buf)
	if len(entries) != 1 || entries[0]["message"] != "shown" {
		t.Fatalf("unexpected entries: %v", entries)
	}
}

func TestZerologLogger_ErrorWithStacktrace(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewZerologLogger(buf, LevelDebug)

	err := errors.New("dataset missing")
	logger.Error("startup failed", err, DataPathKey, "./heart.csv")

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry[ErrAttrKey] != "dataset missing" {
		t.Errorf("error = %v", entry[ErrAttrKey])
	}
	if st, _ := entry[StacktraceAttrKey].(string); st == "" {
		t.Error("Expected stacktrace for cockroachdb error")
	}
	if entry[DataPathKey] != "./heart.csv" {
		t.Errorf("%s = %v", DataPathKey, entry[DataPathKey])
	}
}

func TestZerologLogger_ErrorKeyWithPlainError(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewZerologLogger(buf, LevelDebug)

	logger.Warn("request failed", ErrAttrKey, fmt.Errorf("plain"))

	entry := decodeLines(t, buf)[0]
	if entry[ErrAttrKey] != "plain" {
		t.Errorf("error = %v", entry[ErrAttrKey])
	}
	if _, ok := entry[StacktraceAttrKey]; ok {
		t.Error("plain errors carry no stacktrace")
	}
}

func TestZerologLogger_With(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewZerologLogger(buf, LevelInfo).With(ComponentKey, "service")

	logger.Info("first", OperationKey, OperationFit)
	logger.With(ModelNameKey, "Logistic Regression").Info("second")

	entries := decodeLines(t, buf)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e[ComponentKey] != "service" {
			t.Errorf("component missing in %v", e)
		}
	}
	if _, ok := entries[0][ModelNameKey]; ok {
		t.Error("With must not mutate the parent logger")
	}
	if entries[1][ModelNameKey] != "Logistic Regression" {
		t.Errorf("model name = %v", entries[1][ModelNameKey])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestWarningHandler(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)
	handler := WarningHandler(testLogger)

	handler(fmt.Errorf("lbfgs failed to converge"))

	if !testLogger.ContainsField("severity", "WARN") {
		t.Error("warning should be logged at WARN level")
	}
	if !testLogger.ContainsField("warning", "lbfgs failed to converge") {
		t.Error("warning text not logged")
	}
}

func TestOutput_RotatingFile(t *testing.T) {
	var stdout bytes.Buffer
	path := filepath.Join(t.TempDir(), "heartpredict.log")
	logger := NewZerologLogger(output(&stdout, FileOptions{Path: path, MaxSize: 1}), LevelInfo)

	logger.Info("Model trained", ModelNameKey, "KNN")

	if !strings.Contains(stdout.String(), "Model trained") {
		t.Error("stdout should receive the entry")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), `"model.name":"KNN"`) {
		t.Errorf("log file content = %s", data)
	}
}

func TestOutput_StdoutOnly(t *testing.T) {
	var stdout bytes.Buffer
	if w := output(&stdout, FileOptions{}); w != &stdout {
		t.Error("without a path the writer should be stdout itself")
	}
}

func TestSetupLogger_InvalidLevel(t *testing.T) {
	if _, err := SetupLogger("verbose", FileOptions{}); err == nil {
		t.Error("expected an error for an unknown level")
	}
}
