package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/tailored-agentic-units/autods/observability"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		name  string
		level observability.Level
		want  string
	}{
		{name: "trace range", level: 1, want: "TRACE"},
		{name: "verbose maps to DEBUG", level: observability.LevelVerbose, want: "DEBUG"},
		{name: "info maps to INFO", level: observability.LevelInfo, want: "INFO"},
		{name: "warning maps to WARN", level: observability.LevelWarning, want: "WARN"},
		{name: "error maps to ERROR", level: observability.LevelError, want: "ERROR"},
		{name: "fatal range", level: 21, want: "FATAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
			}
		})
	}
}

func TestLevel_SlogLevel(t *testing.T) {
	tests := []struct {
		level observability.Level
		want  slog.Level
	}{
		{observability.LevelVerbose, slog.LevelDebug},
		{observability.LevelInfo, slog.LevelInfo},
		{observability.LevelWarning, slog.LevelWarn},
		{observability.LevelError, slog.LevelError},
	}

	for _, tt := range tests {
		if got := tt.level.SlogLevel(); got != tt.want {
			t.Errorf("Level(%d).SlogLevel() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestEmit(t *testing.T) {
	var events []observability.Event
	obs := &captureObserver{events: &events}

	before := time.Now()
	observability.Emit(context.Background(), obs, "sandbox.run", observability.LevelInfo, "test", map[string]any{"k": 1})

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Timestamp.Before(before) {
		t.Error("Emit should stamp the event with the current time")
	}
	if events[0].Source != "test" {
		t.Errorf("got source %q, want %q", events[0].Source, "test")
	}

	// nil observer is a no-op
	observability.Emit(context.Background(), nil, "x", observability.LevelInfo, "test", nil)
}

func TestFuncObserver(t *testing.T) {
	var got observability.EventType
	obs := observability.FuncObserver(func(_ context.Context, e observability.Event) {
		got = e.Type
	})

	obs.OnEvent(context.Background(), observability.Event{Type: "kernel.turn.start"})

	if got != "kernel.turn.start" {
		t.Errorf("got %q, want %q", got, "kernel.turn.start")
	}
}

func TestMultiObserver_NilFiltering(t *testing.T) {
	var events1, events2 []observability.Event

	multi := observability.NewMultiObserver(nil, &captureObserver{events: &events1}, nil, &captureObserver{events: &events2})
	multi.OnEvent(context.Background(), observability.Event{Type: "test.event", Level: observability.LevelInfo})

	if len(events1) != 1 || len(events2) != 1 {
		t.Errorf("got %d and %d events, want 1 each", len(events1), len(events2))
	}
}

func TestSlogObserver_LevelMapping(t *testing.T) {
	tests := []struct {
		name      string
		level     observability.Level
		minLevel  slog.Level
		expectLog bool
	}{
		{name: "verbose at debug handler", level: observability.LevelVerbose, minLevel: slog.LevelDebug, expectLog: true},
		{name: "verbose at info handler", level: observability.LevelVerbose, minLevel: slog.LevelInfo, expectLog: false},
		{name: "info at warn handler", level: observability.LevelInfo, minLevel: slog.LevelWarn, expectLog: false},
		{name: "error at error handler", level: observability.LevelError, minLevel: slog.LevelError, expectLog: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: tt.minLevel}))

			observability.NewSlogObserver(logger).OnEvent(context.Background(), observability.Event{
				Type:  "test.event",
				Level: tt.level,
			})

			if hasOutput := buf.Len() > 0; hasOutput != tt.expectLog {
				t.Errorf("log output = %v, want %v (buf: %q)", hasOutput, tt.expectLog, buf.String())
			}
		})
	}
}

func TestSlogObserver_Attributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := observability.WithSession(context.Background(), "s-42")
	observability.NewSlogObserver(logger).OnEvent(ctx, observability.Event{
		Type:   "kernel.turn.start",
		Level:  observability.LevelInfo,
		Source: "kernel.Stream",
		Data:   map[string]any{"prompt_length": 42},
	})

	output := buf.String()
	for _, want := range []string{"kernel.turn.start", "source=kernel.Stream", "session=s-42", "prompt_length=42"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestSessionFrom(t *testing.T) {
	if _, ok := observability.SessionFrom(context.Background()); ok {
		t.Error("bare context should carry no session")
	}
	if _, ok := observability.SessionFrom(observability.WithSession(context.Background(), "")); ok {
		t.Error("empty session id should not be reported")
	}
}

func TestRegistry(t *testing.T) {
	var events []observability.Event
	observability.RegisterObserver("test-capture", &captureObserver{events: &events})

	tests := []struct {
		name    string
		names   []string
		wantErr bool
	}{
		{name: "none selects noop", names: nil},
		{name: "single", names: []string{"test-capture"}},
		{name: "multiple", names: []string{"noop", "test-capture"}},
		{name: "unknown fails", names: []string{"noop", "nonexistent"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := observability.Select(tt.names...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Select(%v) error = %v, wantErr %v", tt.names, err, tt.wantErr)
			}
			if !tt.wantErr && obs == nil {
				t.Fatal("Select returned nil observer")
			}
		})
	}

	obs, _ := observability.GetObserver("test-capture")
	obs.OnEvent(context.Background(), observability.Event{Type: "test.event"})
	if len(events) != 1 {
		t.Errorf("received %d events, want 1", len(events))
	}
}

type captureObserver struct {
	events *[]observability.Event
}

func (c *captureObserver) OnEvent(ctx context.Context, event observability.Event) {
	*c.events = append(*c.events, event)
}
