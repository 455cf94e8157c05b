package logger

import (
	"log/slog"
	"testing"
)

func TestInitWithConfigDefaultsToJSON(t *testing.T) {
	InitWithConfig(Config{Level: "debug", Output: "stdout"})
	if Log == nil {
		t.Fatal("expected logger to be initialized")
	}
	if _, ok := Log.Handler().(*slog.JSONHandler); !ok {
		t.Errorf("expected a JSON handler when Format is unset, got %T", Log.Handler())
	}
}

func TestWithRequestID(t *testing.T) {
	Init("info")
	l := WithRequestID("req-123")
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}
