package worker

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-gota/gota/dataframe"

	"github.com/tailored-agentic-units/autods/sandbox"
)

const fakeWorker = `import json, os, signal, sys, time
signal.signal(signal.SIGINT, signal.default_int_handler)

def send(m):
    sys.stdout.write(json.dumps(m) + "\n")
    sys.stdout.flush()

send({"id": "", "type": "ready"})
state = {}
while True:
    try:
        line = sys.stdin.readline()
    except KeyboardInterrupt:
        continue
    if not line:
        break
    req = json.loads(line)
    rid, op = req["id"], req["op"]
    try:
        if op == "execute":
            code = req["code"]
            if code == "sleep":
                time.sleep(30)
            elif code == "crash":
                os._exit(3)
            elif code == "fail":
                send({"id": rid, "type": "error", "ename": "ValueError", "evalue": "bad",
                      "traceback": ["Traceback (most recent call last):\n", "ValueError: bad\n"]})
            elif code == "plot":
                send({"id": rid, "type": "display", "artifact": {"kind": "raster", "data": "iVBORw0KGgo="}})
            elif code == "badplot":
                send({"id": rid, "type": "display", "artifact": {"kind": "error", "error": "TypeError: not serializable"}})
            else:
                send({"id": rid, "type": "stream", "name": "stdout", "text": code + "\n"})
        elif op == "bind":
            state[req["name"]] = req.get("value")
            send({"id": rid, "type": "reply", "found": True})
        elif op == "lookup":
            if req["name"] in state:
                send({"id": rid, "type": "reply", "found": True, "value": state[req["name"]]})
            else:
                send({"id": rid, "type": "reply", "found": False})
        else:
            send({"id": rid, "type": "reply", "found": True})
    except KeyboardInterrupt:
        send({"id": rid, "type": "error", "ename": "KeyboardInterrupt", "evalue": "", "traceback": []})
    send({"id": rid, "type": "status", "state": "idle"})
`

func requirePython(t *testing.T) string {
	t.Helper()
	path, err := resolvePython("")
	if err != nil {
		t.Skip("python not available")
	}
	return path
}

func requirePandas(t *testing.T, python string) {
	t.Helper()
	if err := exec.Command(python, "-c", "import pandas").Run(); err != nil {
		t.Skip("pandas not available")
	}
}

func testConfig() *sandbox.Config {
	return &sandbox.Config{
		Kind:           sandbox.KindWorker,
		Timeout:        sandbox.Duration(10 * time.Second),
		ReadInterval:   sandbox.Duration(20 * time.Millisecond),
		StartTimeout:   sandbox.Duration(20 * time.Second),
		InterruptGrace: sandbox.Duration(2 * time.Second),
	}
}

func writeScript(t *testing.T, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.py")
	if err := os.WriteFile(path, []byte(source), 0o600); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func newFake(t *testing.T) *Environment {
	t.Helper()
	requirePython(t)

	env, err := New(context.Background(), testConfig(), WithScript(writeScript(t, fakeWorker)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { env.Close() })
	return env
}

func TestRun_Stream(t *testing.T) {
	env := newFake(t)

	res := env.Run(context.Background(), "hello", time.Second)

	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	if res.Stdout != "hello\n" {
		t.Errorf("got stdout %q, want %q", res.Stdout, "hello\n")
	}
}

func TestRun_Error(t *testing.T) {
	env := newFake(t)

	res := env.Run(context.Background(), "fail", time.Second)

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error.Kind != sandbox.ExecutionError {
		t.Errorf("got kind %s, want %s", res.Error.Kind, sandbox.ExecutionError)
	}
	if res.Error.Message != "ValueError: bad" {
		t.Errorf("got message %q", res.Error.Message)
	}
	if !strings.Contains(res.Error.Trace, "Traceback") {
		t.Errorf("expected traceback, got %q", res.Error.Trace)
	}
}

func TestRun_Artifacts(t *testing.T) {
	env := newFake(t)
	ctx := context.Background()

	res := env.Run(ctx, "plot", time.Second)
	if res.Artifact.Kind != sandbox.ArtifactRaster {
		t.Errorf("got artifact %s, want raster", res.Artifact.Kind)
	}

	res = env.Run(ctx, "badplot", time.Second)
	if !res.Success {
		t.Errorf("serialization failure must not fail the run: %+v", res.Error)
	}
	if res.Artifact.Present() {
		t.Error("expected no artifact")
	}
	if !strings.Contains(res.Notice, "not serializable") {
		t.Errorf("expected notice, got %q", res.Notice)
	}
}

func TestRun_TimeoutKeepsState(t *testing.T) {
	env := newFake(t)
	ctx := context.Background()

	if err := env.Bind(ctx, "x", 1); err != nil {
		t.Fatalf("bind: %v", err)
	}

	res := env.Run(ctx, "sleep", 200*time.Millisecond)
	if res.Kind() != sandbox.TimeoutError {
		t.Fatalf("got kind %q, want %s", res.Kind(), sandbox.TimeoutError)
	}
	if res.Error.Message != "Execution timed out." {
		t.Errorf("got message %q", res.Error.Message)
	}

	res = env.Run(ctx, "after", time.Second)
	if !res.Success || res.Stdout != "after\n" {
		t.Fatalf("expected recovery, got %+v", res)
	}
	if res.Notice != "" {
		t.Errorf("interrupted worker should not restart, got notice %q", res.Notice)
	}

	v, ok, err := env.Lookup(ctx, "x")
	if err != nil || !ok {
		t.Fatalf("lookup: %v %v", ok, err)
	}
	if v != float64(1) {
		t.Errorf("got %v, want 1", v)
	}
}

func TestRun_RestartAfterCrash(t *testing.T) {
	env := newFake(t)
	ctx := context.Background()

	if err := env.Bind(ctx, "x", 5); err != nil {
		t.Fatalf("bind: %v", err)
	}

	res := env.Run(ctx, "crash", time.Second)
	if res.Success {
		t.Fatal("expected failure")
	}

	res = env.Run(ctx, "again", time.Second)
	if !res.Success {
		t.Fatalf("expected restart, got %+v", res.Error)
	}
	if !strings.Contains(res.Notice, "restarted") || !strings.Contains(res.Notice, "x") {
		t.Errorf("got notice %q", res.Notice)
	}

	v, ok, err := env.Lookup(ctx, "x")
	if err != nil || !ok || v != float64(5) {
		t.Errorf("binding not replayed: %v %v %v", v, ok, err)
	}
}

func TestNew_InitFailure(t *testing.T) {
	requirePython(t)

	tests := []struct {
		name   string
		script string
	}{
		{"exits", "import sys\nsys.exit(1)\n"},
		{"never ready", "import time\ntime.sleep(30)\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.StartTimeout = sandbox.Duration(300 * time.Millisecond)

			_, err := New(context.Background(), cfg, WithScript(writeScript(t, tt.script)))
			if !errors.Is(err, sandbox.ErrEnvironmentInit) {
				t.Errorf("got %v, want ErrEnvironmentInit", err)
			}
		})
	}
}

func TestClose(t *testing.T) {
	env := newFake(t)
	ctx := context.Background()

	if err := env.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := env.Bind(ctx, "x", 1); !errors.Is(err, sandbox.ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
	if res := env.Run(ctx, "hello", time.Second); res.Success {
		t.Error("expected failure after close")
	}
}

func newPython(t *testing.T) *Environment {
	t.Helper()
	requirePython(t)

	env, err := New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { env.Close() })
	return env
}

func TestPython_Execute(t *testing.T) {
	env := newPython(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		code    string
		stdout  string
		message string
	}{
		{name: "print", code: "print(1 + 1)", stdout: "2\n"},
		{name: "assign", code: "x = 41", stdout: ""},
		{name: "expression", code: "x + 1", stdout: "42\n"},
		{name: "raise", code: "raise ValueError('bad')", message: "ValueError: bad"},
		{name: "reassign", code: "x = x + 1\nprint(x)", stdout: "42\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.Run(ctx, tt.code, 10*time.Second)
			if tt.message != "" {
				if res.Success || res.Error.Message != tt.message {
					t.Fatalf("got %+v, want error %q", res.Error, tt.message)
				}
				return
			}
			if !res.Success {
				t.Fatalf("unexpected failure: %+v", res.Error)
			}
			if res.Stdout != tt.stdout {
				t.Errorf("got stdout %q, want %q", res.Stdout, tt.stdout)
			}
		})
	}
}

func TestPython_TimeoutRecovers(t *testing.T) {
	env := newPython(t)
	ctx := context.Background()

	if res := env.Run(ctx, "kept = 'yes'", 10*time.Second); !res.Success {
		t.Fatalf("setup: %+v", res.Error)
	}

	res := env.Run(ctx, "import time\ntime.sleep(30)", 300*time.Millisecond)
	if res.Kind() != sandbox.TimeoutError {
		t.Fatalf("got %q, want timeout", res.Kind())
	}

	res = env.Run(ctx, "print(kept)", 10*time.Second)
	if !res.Success || res.Stdout != "yes\n" {
		t.Fatalf("expected state to survive, got %+v %q", res.Error, res.Stdout)
	}
}

func TestPython_Dataset(t *testing.T) {
	env := newPython(t)
	requirePandas(t, env.python)
	ctx := context.Background()

	ds := &sandbox.Dataset{
		Name: "scores",
		Frame: dataframe.LoadRecords([][]string{
			{"name", "score"},
			{"a", "1"},
			{"b", "2"},
		}),
	}
	if err := env.Bind(ctx, sandbox.DatasetVariable, ds); err != nil {
		t.Fatalf("bind: %v", err)
	}

	state, err := env.DataState(ctx)
	if err != nil || state == nil {
		t.Fatalf("data state: %v %v", state, err)
	}
	if state.Rows != 2 || state.Cols != 2 || state.Source != "scores" {
		t.Errorf("got %+v", state)
	}

	res := env.Run(ctx, "print(int(df['score'].sum()))", 10*time.Second)
	if !res.Success || res.Stdout != "3\n" {
		t.Errorf("got %+v %q", res.Error, res.Stdout)
	}
}

func TestPython_ReadOnlyRepeatable(t *testing.T) {
	env := newPython(t)
	requirePandas(t, env.python)
	ctx := context.Background()

	ds := &sandbox.Dataset{
		Name: "scores",
		Frame: dataframe.LoadRecords([][]string{
			{"name", "score"},
			{"a", "1"},
			{"b", "2"},
		}),
	}
	if err := env.Bind(ctx, sandbox.DatasetVariable, ds); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if res := env.Run(ctx, "total = int(df['score'].sum())", 10*time.Second); !res.Success {
		t.Fatalf("setup: %+v", res.Error)
	}

	code := "print(df.head())\nprint(total)"
	first := env.Run(ctx, code, 10*time.Second)
	second := env.Run(ctx, code, 10*time.Second)
	if !first.Success || !second.Success {
		t.Fatalf("got %+v and %+v", first.Error, second.Error)
	}
	if first.Stdout != second.Stdout {
		t.Errorf("repeated run differs:\n%q\n%q", first.Stdout, second.Stdout)
	}

	total, ok, err := env.Lookup(ctx, "total")
	if err != nil || !ok {
		t.Fatalf("lookup: %v %v", ok, err)
	}
	if total != float64(3) {
		t.Errorf("got total %v, want 3", total)
	}

	state, err := env.DataState(ctx)
	if err != nil || state == nil || state.Rows != 2 {
		t.Errorf("dataset changed by read-only code: %+v %v", state, err)
	}
}
