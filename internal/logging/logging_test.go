package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{input: "debug", want: LevelDebug},
		{input: "INFO", want: LevelInfo},
		{input: "", want: LevelInfo},
		{input: "warn", want: LevelWarn},
		{input: "warning", want: LevelWarn},
		{input: " error ", want: LevelError},
		{input: "verbose", want: LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestLogger_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New("[autoprint] ", &buf, LevelWarn)

	log.Debugf("debug %d", 1)
	log.Infof("info %d", 2)
	log.Warnf("warn %d", 3)
	log.Errorf("error %d", 4)

	out := buf.String()
	for _, dropped := range []string{"debug 1", "info 2"} {
		if strings.Contains(out, dropped) {
			t.Errorf("Expected %q to be filtered, got %q", dropped, out)
		}
	}
	for _, kept := range []string{"WARN warn 3", "ERROR error 4"} {
		if !strings.Contains(out, kept) {
			t.Errorf("Expected %q in output, got %q", kept, out)
		}
	}
	if !strings.HasPrefix(out, "[autoprint] ") {
		t.Errorf("Expected prefix, got %q", out)
	}

	buf.Reset()
	log.SetLevel(LevelDebug)
	log.Debugf("now visible")
	if !strings.Contains(buf.String(), "DEBUG now visible") {
		t.Errorf("Expected debug output after SetLevel, got %q", buf.String())
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	parent := New("[autoprint] ", &buf, LevelInfo)
	child := parent.With("[feed] ")

	child.Infof("client connected")
	if !strings.HasPrefix(buf.String(), "[feed] ") {
		t.Errorf("Expected child prefix, got %q", buf.String())
	}
	if child.Level() != LevelInfo {
		t.Errorf("Expected inherited level info, got %v", child.Level())
	}
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Errorf("dropped")
	if log.Std() == nil {
		t.Error("Expected non-nil standard logger")
	}
}

func TestWriter_RotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autoprint.log")

	w, closer := Writer(FileOptions{Path: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})
	log := New("[autoprint] ", w, LevelInfo)
	log.Infof("printed %s", "invoice.pdf")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "printed invoice.pdf") {
		t.Errorf("Expected message in log file, got %q", data)
	}
}

func TestWriter_StderrOnly(t *testing.T) {
	w, closer := Writer(FileOptions{})
	if w != os.Stderr {
		t.Errorf("Expected stderr writer")
	}
	if err := closer.Close(); err != nil {
		t.Errorf("Close() on stderr-only writer failed: %v", err)
	}
}
