// Package inspect serializes scheduler snapshots and reads them back.
//
// Snapshots are encoded with MessagePack, which keeps them compact enough to
// be written on every tick, and can be converted to protobuf structs and JSON
// for tooling.
package inspect

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/stealthrocket/fiber"
)

// Version is the version of the encoding produced by Marshal.
const Version = 1

// ErrVersion is returned when decoding a snapshot of an unsupported version.
var ErrVersion = errors.New("inspect: unsupported snapshot version")

type record struct {
	Version int           `msgpack:"v"`
	Time    time.Time     `msgpack:"time"`
	Ticks   uint64        `msgpack:"ticks"`
	Pending int           `msgpack:"pending"`
	Fibers  []fiberRecord `msgpack:"fibers"`
}

type fiberRecord struct {
	ID        uint64 `msgpack:"id"`
	Name      string `msgpack:"name,omitempty"`
	State     string `msgpack:"state"`
	Condition string `msgpack:"cond,omitempty"`
	StackSize int    `msgpack:"stack,omitempty"`
	Waits     uint64 `msgpack:"waits"`
}

// Marshal encodes a snapshot.
func Marshal(snap fiber.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes the encoding of a snapshot to w.
func Encode(w io.Writer, snap fiber.Snapshot) error {
	rec := record{
		Version: Version,
		Time:    snap.Time,
		Ticks:   snap.Ticks,
		Pending: snap.Pending,
		Fibers:  make([]fiberRecord, len(snap.Fibers)),
	}
	for i, f := range snap.Fibers {
		rec.Fibers[i] = fiberRecord{
			ID:        uint64(f.ID),
			Name:      f.Name,
			State:     f.State.String(),
			Condition: f.Condition,
			StackSize: f.StackSize,
			Waits:     f.Waits,
		}
	}
	enc := msgpack.NewEncoder(w)
	enc.SetSortMapKeys(true)
	return enc.Encode(&rec)
}

// Inspect decodes a snapshot produced by Marshal.
func Inspect(b []byte) (*State, error) {
	return Decode(bytes.NewReader(b))
}

// Decode reads a snapshot written by Encode.
func Decode(r io.Reader) (*State, error) {
	var rec record
	if err := msgpack.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("inspect: decoding snapshot: %w", err)
	}
	if rec.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, rec.Version)
	}
	return &State{rec: rec}, nil
}

// State is a decoded scheduler snapshot.
type State struct {
	rec record
}

// Time returns the time at which the snapshot was taken, according to the
// clock of the scheduler.
func (s *State) Time() time.Time { return s.rec.Time }

// Ticks returns the number of ticks the scheduler had run.
func (s *State) Ticks() uint64 { return s.rec.Ticks }

// Pending returns the number of fibers which were waiting.
func (s *State) Pending() int { return s.rec.Pending }

// NumFiber returns the number of fibers in the snapshot.
func (s *State) NumFiber() int { return len(s.rec.Fibers) }

// Fiber returns a fiber by index.
func (s *State) Fiber(i int) *Fiber {
	if i < 0 || i >= len(s.rec.Fibers) {
		panic(fmt.Sprintf("fiber %d not found", i))
	}
	return &Fiber{rec: &s.rec.Fibers[i], index: i}
}

// Fiber is the status of one fiber in a snapshot.
type Fiber struct {
	rec   *fiberRecord
	index int
}

// Index returns the index of the fiber in its snapshot.
func (f *Fiber) Index() int { return f.index }

// ID returns the identifier of the fiber in its scheduler.
func (f *Fiber) ID() fiber.ID { return fiber.ID(f.rec.ID) }

func (f *Fiber) Name() string { return f.rec.Name }

// State returns the state of the fiber, as spelled by fiber.State.String.
func (f *Fiber) State() string { return f.rec.State }

// Condition describes what a waiting fiber waits for.
func (f *Fiber) Condition() string { return f.rec.Condition }

func (f *Fiber) StackSize() int { return f.rec.StackSize }

// Waits returns the number of times the fiber yielded.
func (f *Fiber) Waits() uint64 { return f.rec.Waits }

// Format implements fmt.Formatter. The %+v verb adds the stack size and the
// number of waits.
func (f *Fiber) Format(s fmt.State, v rune) {
	name := f.rec.Name
	if name == "" {
		name = "-"
	}
	fmt.Fprintf(s, "%s %s %s", f.ID(), name, f.rec.State)
	if f.rec.Condition != "" {
		fmt.Fprintf(s, " on %s", f.rec.Condition)
	}
	if s.Flag('+') {
		fmt.Fprintf(s, " (stack=%d waits=%d)", f.rec.StackSize, f.rec.Waits)
	}
}
