package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stealthrocket/fiber"
	"github.com/stealthrocket/fiber/async"
	"github.com/stealthrocket/fiber/event"
	"github.com/stealthrocket/fiber/inspect"
)

var runCmd = &cobra.Command{
	Use:   "run [flags]",
	Short: "Run a scenario of fibers",
	Long: `Run the fibers of a scenario until they all finish or the scenario
duration elapses, printing their state changes.

A scenario is a TOML file:

  tick_ms = 50        # tick interval
  duration_ms = 3000  # stop after this long
  stack_size = 0      # default fiber stack size, 0 for the platform default
  workers = 2         # goroutines running asynchronous work

  [[fiber]]
  name = "heartbeat"
  kind = "sleep"      # yield, sleep, poll, await, emit, receive or forever
  count = 5
  interval_ms = 200

Without --config, a built-in scenario runs.`,
	Args: cobra.NoArgs,
	RunE: runScenario,
}

func init() {
	runCmd.Flags().StringP("config", "c", "", "path to the scenario file")
	runCmd.Flags().StringP("snapshot", "o", "", "write the final snapshot of the scheduler to this file")
}

func runScenario(cmd *cobra.Command, _ []string) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	snapshotPath, err := cmd.Flags().GetString("snapshot")
	if err != nil {
		return fmt.Errorf("failed to get snapshot flag: %w", err)
	}

	sc, err := loadScenario(configPath)
	if err != nil {
		return err
	}
	if err := fiber.SetDefaultStackSize(sc.stackSize); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeoutCause(cmd.Context(), sc.duration, errScenarioTimeout)
	defer cancel()

	pool, err := async.NewPool(ctx, sc.workers)
	if err != nil {
		return err
	}
	defer func() { _ = pool.Shutdown() }()

	out := newPrinter(cmd.OutOrStdout())
	d := &demo{
		sched: fiber.NewScheduler(fiber.WithLogger(slog.Default())),
		pool:  pool,
		out:   out,
		start: time.Now(),
	}

	for _, spec := range sc.fibers {
		d.spawn(spec)
	}

	// The supervisor stops the host loop once every fiber which can finish on
	// its own did.
	d.sched.New(func() {
		fiber.Poll(func() bool { return d.active == 0 }, 0)
		cancel()
	}, fiber.WithName("supervisor"))

	err = d.sched.Run(ctx, sc.tick)
	snap := d.sched.Snapshot()

	if cerr := d.sched.Close(); cerr != nil {
		return cerr
	}
	if errors.Is(err, errScenarioTimeout) {
		out.note("scenario timed out after %s with %d fibers left", sc.duration, len(snap.Fibers))
	} else if !errors.Is(err, context.Canceled) {
		return err
	}
	out.note("%d ticks in %s", snap.Ticks, time.Since(d.start).Round(time.Millisecond))

	if snapshotPath != "" {
		return writeSnapshot(snapshotPath, snap)
	}
	return nil
}

var errScenarioTimeout = errors.New("scenario timed out")

type demo struct {
	sched  *fiber.Scheduler
	pool   *async.Pool
	out    *printer
	start  time.Time
	events event.Signal[int]
	active int
}

func (d *demo) spawn(spec fiberSpec) {
	name := spec.name
	observe := fiber.WithStateChange(func(st fiber.State) {
		d.out.state(time.Since(d.start), name, st)
	})
	f := d.sched.New(d.body(spec), fiber.WithName(name), observe)
	if spec.kind != "forever" && !f.IsFinished() {
		d.active++
		f.OnFinished(func() { d.active-- })
	}
}

func (d *demo) body(spec fiberSpec) func() {
	switch spec.kind {
	case "yield":
		return func() {
			for range spec.count {
				fiber.Yield()
			}
		}
	case "sleep":
		return func() {
			for range spec.count {
				fiber.Sleep(spec.interval)
			}
		}
	case "poll":
		return func() {
			deadline := time.Now().Add(spec.interval)
			fiber.Poll(func() bool { return !time.Now().Before(deadline) }, spec.interval/4)
		}
	case "await":
		return func() {
			for i := range spec.count {
				f := async.Submit(d.pool, func(ctx context.Context) (int, error) {
					select {
					case <-time.After(spec.interval):
						return i, nil
					case <-ctx.Done():
						return 0, context.Cause(ctx)
					}
				})
				v, err := fiber.Await(f).Result()
				if err != nil {
					d.out.note("%s: %v", spec.name, err)
					return
				}
				d.out.note("%s: received result %d", spec.name, v)
			}
		}
	case "emit":
		return func() {
			for i := range spec.count {
				fiber.Sleep(spec.interval)
				d.events.Emit(i)
			}
		}
	case "receive":
		return func() {
			for range spec.count {
				v := fiber.Receive(&d.events)
				d.out.note("%s: received event %d", spec.name, v)
			}
		}
	default: // forever
		return fiber.YieldForever
	}
}

func writeSnapshot(path string, snap fiber.Snapshot) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return inspect.Encode(f, snap)
}
