package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	return out
}

func TestZerologAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologAdapterWithLogger(zerolog.New(&buf))

	l.Info("hello",
		String("s", "v"),
		Int("i", 3),
		Int64("i64", 7),
		Bool("b", true),
		Strings("list", []string{"a", "b"}),
		Err(errors.New("boom")),
	)

	got := decode(t, &buf)
	if got["message"] != "hello" {
		t.Errorf("message = %v, want hello", got["message"])
	}
	if got["level"] != "info" {
		t.Errorf("level = %v, want info", got["level"])
	}
	if got["s"] != "v" {
		t.Errorf("s = %v, want v", got["s"])
	}
	if got["i"] != float64(3) || got["i64"] != float64(7) {
		t.Errorf("ints = %v/%v, want 3/7", got["i"], got["i64"])
	}
	if got["b"] != true {
		t.Errorf("b = %v, want true", got["b"])
	}
	if got["error"] != "boom" {
		t.Errorf("error = %v, want boom", got["error"])
	}
}

func TestZerologAdapter_With(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologAdapterWithLogger(zerolog.New(&buf)).With(String("activation", "abc"))

	l.Warn("scoped", Duration("d", time.Second))

	got := decode(t, &buf)
	if got["activation"] != "abc" {
		t.Errorf("activation = %v, want abc", got["activation"])
	}
	if got["level"] != "warn" {
		t.Errorf("level = %v, want warn", got["level"])
	}
}

func TestNoopLogger(t *testing.T) {
	var l Logger = NewNoopLogger()
	l = l.With(String("k", "v"))
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
}
