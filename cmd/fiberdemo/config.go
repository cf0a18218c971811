package main

import (
	"errors"
	"fmt"
	"time"

	"fortio.org/safecast"
	"github.com/BurntSushi/toml"
)

type scenarioConfig struct {
	TickMS     int64         `toml:"tick_ms"`
	DurationMS int64         `toml:"duration_ms"`
	StackSize  int64         `toml:"stack_size"`
	Workers    int64         `toml:"workers"`
	Fibers     []fiberConfig `toml:"fiber"`
}

type fiberConfig struct {
	Name       string `toml:"name"`
	Kind       string `toml:"kind"`
	Count      int64  `toml:"count"`
	IntervalMS int64  `toml:"interval_ms"`
}

// scenario is a validated scenarioConfig.
type scenario struct {
	tick      time.Duration
	duration  time.Duration
	stackSize int
	workers   int
	fibers    []fiberSpec
}

type fiberSpec struct {
	name     string
	kind     string
	count    int
	interval time.Duration
}

var kinds = map[string]bool{
	"yield":   true,
	"sleep":   true,
	"poll":    true,
	"await":   true,
	"emit":    true,
	"receive": true,
	"forever": true,
}

const defaultScenario = `
tick_ms = 50
duration_ms = 3000
workers = 2

[[fiber]]
name = "heartbeat"
kind = "sleep"
count = 5
interval_ms = 200

[[fiber]]
name = "spinner"
kind = "yield"
count = 3

[[fiber]]
name = "watcher"
kind = "poll"
interval_ms = 500

[[fiber]]
name = "fetcher"
kind = "await"
count = 2
interval_ms = 300

[[fiber]]
name = "listener"
kind = "receive"
count = 2

[[fiber]]
name = "emitter"
kind = "emit"
count = 2
interval_ms = 400

[[fiber]]
name = "idler"
kind = "forever"
`

func loadScenario(path string) (*scenario, error) {
	var cfg scenarioConfig
	var meta toml.MetaData
	var err error
	if path == "" {
		meta, err = toml.Decode(defaultScenario, &cfg)
	} else {
		meta, err = toml.DecodeFile(path, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown scenario keys: %v", undecoded)
	}

	sc := &scenario{
		tick:     50 * time.Millisecond,
		duration: 10 * time.Second,
		workers:  1,
	}
	if meta.IsDefined("tick_ms") {
		if sc.tick, err = millis(cfg.TickMS); err != nil {
			return nil, fmt.Errorf("tick_ms: %w", err)
		}
	}
	if meta.IsDefined("duration_ms") {
		if sc.duration, err = millis(cfg.DurationMS); err != nil {
			return nil, fmt.Errorf("duration_ms: %w", err)
		}
	}
	if sc.stackSize, err = safecast.Conv[int](cfg.StackSize); err != nil {
		return nil, fmt.Errorf("stack_size: %w", err)
	}
	if meta.IsDefined("workers") {
		if sc.workers, err = safecast.Conv[int](cfg.Workers); err != nil {
			return nil, fmt.Errorf("workers: %w", err)
		}
	}
	if len(cfg.Fibers) == 0 {
		return nil, errors.New("scenario has no fibers")
	}

	for i, f := range cfg.Fibers {
		if !kinds[f.Kind] {
			return nil, fmt.Errorf("fiber %d: unknown kind %q", i, f.Kind)
		}
		spec := fiberSpec{name: f.Name, kind: f.Kind, count: 1}
		if spec.name == "" {
			spec.name = fmt.Sprintf("%s-%d", f.Kind, i)
		}
		if f.Count != 0 {
			if spec.count, err = safecast.Conv[int](f.Count); err != nil || spec.count < 0 {
				return nil, fmt.Errorf("fiber %q: invalid count %d", spec.name, f.Count)
			}
		}
		if spec.interval, err = millis(f.IntervalMS); err != nil {
			return nil, fmt.Errorf("fiber %q: interval_ms: %w", spec.name, err)
		}
		sc.fibers = append(sc.fibers, spec)
	}
	return sc, nil
}

func millis(ms int64) (time.Duration, error) {
	if ms < 0 {
		return 0, fmt.Errorf("negative duration: %dms", ms)
	}
	if ms > int64(time.Duration(1<<63-1)/time.Millisecond) {
		return 0, fmt.Errorf("duration too large: %dms", ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
