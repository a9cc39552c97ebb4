package common

import (
	"bytes"
	"strings"
	"testing"

	"github.com/lni/dragonboat/v4/logger"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in       string
		expected logger.LogLevel
		wantErr  bool
	}{
		{"debug", logger.DEBUG, false},
		{"INFO", logger.INFO, false},
		{"", logger.INFO, false},
		{"warn", logger.WARNING, false},
		{"warning", logger.WARNING, false},
		{"error", logger.ERROR, false},
		{"verbose", logger.INFO, true},
	}
	for _, tt := range tests {
		level, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q): expected error=%t, got %v", tt.in, tt.wantErr, err)
		}
		if level != tt.expected {
			t.Errorf("ParseLogLevel(%q): expected %v, got %v", tt.in, tt.expected, level)
		}
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	if err := InitLoggers(LogConfig{Level: "warn", Format: "json", Output: &buf}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	log := CreateLogger("test")
	log.SetLevel(logger.WARNING)
	log.Infof("hidden %d", 1)
	log.Warningf("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected info message to be filtered, got %s", out)
	}
	if !strings.Contains(out, "shown 2") || !strings.Contains(out, `"pkg":"test"`) {
		t.Errorf("Expected warning with pkg field, got %s", out)
	}

	if err := InitLoggers(LogConfig{Level: "info", Format: "xml"}); err == nil {
		t.Errorf("Expected error for an invalid format")
	}
}

func TestMetrics(t *testing.T) {
	c := Counter("ibs_test_total", "db", "shop", "store", "items")
	c.Inc()
	c.Add(2)
	if c.Get() != 3 {
		t.Errorf("Expected counter 3, got %d", c.Get())
	}

	var buf bytes.Buffer
	WritePrometheus(&buf)
	if !strings.Contains(buf.String(), `ibs_test_total{db="shop",store="items"} 3`) {
		t.Errorf("Expected counter in prometheus output, got %s", buf.String())
	}

	r := NewRegistry()
	r.Histogram("batch").Update(4)
	r.Histogram("batch").Update(6)
	r.Timer("tx").Update(2000)

	s := r.Summaries()
	if s["batch"].Count != 2 || s["batch"].Mean != 5 || s["batch"].Max != 6 {
		t.Errorf("Unexpected histogram summary: %+v", s["batch"])
	}
	if s["tx"].Count != 1 {
		t.Errorf("Unexpected timer summary: %+v", s["tx"])
	}
	if len(s) != 2 {
		t.Errorf("Expected summaries for batch and tx, got %v", s)
	}
}

func TestInitLoggersTwice(t *testing.T) {
	var first, second bytes.Buffer
	if err := InitLoggers(LogConfig{Level: "info", Output: &first}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	log := logger.GetLogger(LoggerIBS)
	log.Infof("before %d", 1)
	if !strings.Contains(first.String(), "before 1") || !strings.Contains(first.String(), "pkg=ibs") {
		t.Fatalf("Expected the package logger to write to the first sink, got %q", first.String())
	}

	if err := InitLoggers(LogConfig{Level: "debug", Format: "json", Output: &second}); err != nil {
		t.Fatalf("Unexpected error on the second call: %v", err)
	}
	log.Debugf("after %d", 2)

	if strings.Contains(first.String(), "after") {
		t.Errorf("Expected nothing more on the first sink, got %q", first.String())
	}
	out := second.String()
	if !strings.Contains(out, "after 2") || !strings.Contains(out, `"pkg":"ibs"`) {
		t.Errorf("Expected a json debug line from the already used logger, got %q", out)
	}
}
