package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer, level LogLevel) *Logger {
	return NewLogger(&Config{
		Level:   level,
		Format:  "text",
		Output:  buf,
		Sync:    true,
		NoColor: true,
	})
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{
			name:   "default config",
			config: nil,
		},
		{
			name: "json format",
			config: &Config{
				Level:  LevelInfo,
				Format: "json",
				Output: &bytes.Buffer{},
				Sync:   true,
			},
		},
		{
			name: "text format",
			config: &Config{
				Level:  LevelDebug,
				Format: "text",
				Output: &bytes.Buffer{},
				Sync:   true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if logger := NewLogger(tt.config); logger == nil {
				t.Error("NewLogger() returned nil")
			}
		})
	}
}

func TestLoggerWithFdAndRegion(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, LevelDebug)

	fdLogger := logger.WithFd(7)
	fdLogger.Info("descriptor message")

	output := buf.String()
	if !strings.Contains(output, "fd=7") {
		t.Errorf("Expected fd=7 in output, got: %s", output)
	}

	buf.Reset()
	fdLogger.WithRegion(0x7f0000001000, 4096).Info("region message")

	output = buf.String()
	if !strings.Contains(output, "fd=7") {
		t.Errorf("Expected fd=7 in region logger output, got: %s", output)
	}
	if !strings.Contains(output, "addr=0x7f0000001000") {
		t.Errorf("Expected addr=0x7f0000001000 in output, got: %s", output)
	}
	if !strings.Contains(output, "length=4096") {
		t.Errorf("Expected length=4096 in output, got: %s", output)
	}
}

func TestLoggerWithOp(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, LevelDebug)

	logger.WithOp("MUNMAP").Debug("releasing")

	output := buf.String()
	if !strings.Contains(output, "op=MUNMAP") {
		t.Errorf("Expected op=MUNMAP in output, got: %s", output)
	}
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, LevelDebug)

	logger.WithError(errors.New("test error")).Error("operation failed")

	output := buf.String()
	if !strings.Contains(output, "test error") {
		t.Errorf("Expected 'test error' in output, got: %s", output)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, LevelWarn)

	logger.Debug("hidden debug")
	logger.Info("hidden info")
	if buf.Len() != 0 {
		t.Errorf("Expected no output below warn level, got: %s", buf.String())
	}

	logger.Warn("visible warning", "fd", 3)
	output := buf.String()
	if !strings.Contains(output, "visible warning") || !strings.Contains(output, "fd=3") {
		t.Errorf("Expected warning with fd=3, got: %s", output)
	}
}

func TestNopLogger(t *testing.T) {
	// Must not panic
	Nop().WithFd(1).WithRegion(0, 0).Error("dropped", "key", "value")
}

func TestFormatAddr(t *testing.T) {
	tests := []struct {
		addr uintptr
		want string
	}{
		{0, "0x0"},
		{0x1, "0x1"},
		{0xdeadbeef, "0xdeadbeef"},
	}
	for _, tt := range tests {
		if got := formatAddr(tt.addr); got != tt.want {
			t.Errorf("formatAddr(%#x) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	prev := Default()
	SetDefault(newTestLogger(&buf, LevelDebug))
	defer SetDefault(prev)

	Debug("debug message", "key", "value")
	output := buf.String()
	if !strings.Contains(output, "debug message") {
		t.Errorf("Expected debug message, got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("Expected key=value, got: %s", output)
	}

	buf.Reset()
	Info("info message")
	if !strings.Contains(buf.String(), "info message") {
		t.Errorf("Expected info message, got: %s", buf.String())
	}

	buf.Reset()
	Warn("warning message")
	if !strings.Contains(buf.String(), "warning message") {
		t.Errorf("Expected warning message, got: %s", buf.String())
	}

	buf.Reset()
	Error("error message")
	if !strings.Contains(buf.String(), "error message") {
		t.Errorf("Expected error message, got: %s", buf.String())
	}
}

func TestPrintfStyleMethods(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, LevelDebug)

	logger.Debugf("mapped %d bytes", 4096)
	logger.Infof("kernel %s", "6.1.0")
	logger.Warnf("retrying in %s", "50ms")
	logger.Errorf("invalid size %q", "lots")

	output := buf.String()
	for _, want := range []string{"mapped 4096 bytes", "kernel 6.1.0", "retrying in 50ms", `invalid size "lots"`} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output, got: %s", want, output)
		}
	}
}
