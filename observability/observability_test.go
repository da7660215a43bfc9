package observability

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNopLoggerWith(t *testing.T) {
	var l Logger = NopLogger{}
	l = l.With(String("k", "v"))
	l.Info("ignored", Int("n", 1))
	if _, ok := l.(NopLogger); !ok {
		t.Fatalf("With on NopLogger should stay a NopLogger, got %T", l)
	}
	if _, ok := OrNop(nil).(NopLogger); !ok {
		t.Fatalf("OrNop(nil) should return NopLogger")
	}
}

func TestSlogLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := NewSlogLogger(base).With(String("doc", "out.pdf"))
	l.Warn("close failed", Error("err", errors.New("disk full")), Int64("bytes", 42), Bool("encrypted", true))

	out := buf.String()
	for _, want := range []string{"close failed", "doc=out.pdf", `err="disk full"`, "bytes=42", "encrypted=true", "level=WARN"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %q: %s", want, out)
		}
	}
}
