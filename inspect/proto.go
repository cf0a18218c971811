package inspect

import (
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/stealthrocket/fiber"
)

// Proto converts the snapshot to a protobuf struct, with the same field names
// as the MessagePack encoding. The time is formatted as RFC 3339 in UTC, and
// fiber IDs as strings.
func (s *State) Proto() (*structpb.Struct, error) {
	fibers := make([]any, len(s.rec.Fibers))
	for i, f := range s.rec.Fibers {
		m := map[string]any{
			"id":    fiber.ID(f.ID).String(),
			"state": f.State,
			"waits": f.Waits,
		}
		if f.Name != "" {
			m["name"] = f.Name
		}
		if f.Condition != "" {
			m["cond"] = f.Condition
		}
		if f.StackSize != 0 {
			m["stack"] = f.StackSize
		}
		fibers[i] = m
	}
	return structpb.NewStruct(map[string]any{
		"v":       s.rec.Version,
		"time":    s.rec.Time.UTC().Format(time.RFC3339Nano),
		"ticks":   s.rec.Ticks,
		"pending": s.rec.Pending,
		"fibers":  fibers,
	})
}

// MarshalJSON implements json.Marshaler using the protobuf JSON mapping of
// Proto.
func (s *State) MarshalJSON() ([]byte, error) {
	m, err := s.Proto()
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(m)
}

// MarshalIndent is like MarshalJSON but indents the output for humans.
func (s *State) MarshalIndent() ([]byte, error) {
	m, err := s.Proto()
	if err != nil {
		return nil, err
	}
	return protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(m)
}
