package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaultScenario(t *testing.T) {
	sc, err := loadScenario("")
	if err != nil {
		t.Fatal(err)
	}
	if sc.tick != 50*time.Millisecond || sc.workers != 2 {
		t.Errorf("wrong settings: tick=%s workers=%d", sc.tick, sc.workers)
	}
	var names []string
	for _, f := range sc.fibers {
		names = append(names, f.name)
	}
	want := []string{"heartbeat", "spinner", "watcher", "fetcher", "listener", "emitter", "idler"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("fibers mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadScenarioErrors(t *testing.T) {
	tests := []struct {
		scenario string
		config   string
		err      string
	}{
		{"no fibers", `tick_ms = 10`, "no fibers"},
		{"unknown kind", "[[fiber]]\nkind = \"spin\"", `unknown kind "spin"`},
		{"unknown key", "tick = 10\n[[fiber]]\nkind = \"yield\"", "unknown scenario keys"},
		{"negative interval", "[[fiber]]\nkind = \"sleep\"\ninterval_ms = -1", "negative duration"},
		{"negative count", "[[fiber]]\nkind = \"sleep\"\ncount = -1", "invalid count"},
		{"syntax", "[[fiber]", "failed to read scenario"},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			_, err := loadScenario(writeFile(t, "scenario.toml", test.config))
			if err == nil || !strings.Contains(err.Error(), test.err) {
				t.Errorf("wrong error: want=%q got=%v", test.err, err)
			}
		})
	}
}

const testScenario = `
tick_ms = 1
duration_ms = 10000
workers = 1

[[fiber]]
name = "spinner"
kind = "yield"
count = 2

[[fiber]]
name = "sleeper"
kind = "sleep"
interval_ms = 5

[[fiber]]
name = "listener"
kind = "receive"

[[fiber]]
name = "emitter"
kind = "emit"
interval_ms = 5

[[fiber]]
name = "fetcher"
kind = "await"
interval_ms = 1

[[fiber]]
name = "idler"
kind = "forever"
`

func TestRunAndInspect(t *testing.T) {
	config := writeFile(t, "scenario.toml", testScenario)
	snapshot := filepath.Join(t.TempDir(), "snapshot.mp")

	var out bytes.Buffer
	runCmd.SetOut(&out)
	runCmd.SetContext(context.Background())
	for name, value := range map[string]string{"config": config, "snapshot": snapshot} {
		if err := runCmd.Flags().Set(name, value); err != nil {
			t.Fatal(err)
		}
	}
	if err := runScenario(runCmd, nil); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"received event 0", "received result 0", "finished"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output does not contain %q:\n%s", want, out.String())
		}
	}
	if strings.Contains(out.String(), "timed out") {
		t.Errorf("scenario did not finish on its own:\n%s", out.String())
	}

	out.Reset()
	inspectCmd.SetOut(&out)
	if err := inspectCmd.Flags().Set("json", "true"); err != nil {
		t.Fatal(err)
	}
	if err := inspectSnapshot(inspectCmd, []string{snapshot}); err != nil {
		t.Fatal(err)
	}

	var doc struct {
		Fibers []struct {
			Name  string `json:"name"`
			State string `json:"state"`
			Cond  string `json:"cond"`
		} `json:"fibers"`
	}
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("%v\n%s", err, out.String())
	}
	// The snapshot is taken when the host loop stops: only the fiber which
	// never finishes on its own is left.
	if len(doc.Fibers) != 1 || doc.Fibers[0].Name != "idler" || doc.Fibers[0].Cond != "forever" {
		t.Errorf("wrong fibers in snapshot: %+v", doc.Fibers)
	}
}
