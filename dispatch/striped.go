package dispatch

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Striped is a set of serial lanes. Work for the same key always lands on
// the same lane, so it keeps submission order per key while different keys
// run in parallel.
type Striped struct {
	label string
	lanes []*Serial
}

func NewStriped(label string, lanes int, opts ...Option) *Striped {
	if lanes < 1 {
		lanes = 1
	}
	s := &Striped{
		label: label,
		lanes: make([]*Serial, lanes),
	}
	for i := range s.lanes {
		s.lanes[i] = NewSerial(fmt.Sprintf("%s/%d", label, i), opts...)
	}
	return s
}

// Lane returns the serial queue that owns key.
func (s *Striped) Lane(key string) *Serial {
	idx := xxhash.Sum64String(key) % uint64(len(s.lanes))
	return s.lanes[idx]
}

func (s *Striped) Lanes() int {
	return len(s.lanes)
}

func (s *Striped) Close() {
	for _, lane := range s.lanes {
		lane.Close()
	}
}
