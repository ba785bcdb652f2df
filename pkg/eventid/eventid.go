// Package eventid generates server-assigned event ids: 64-bit, unique
// across the deployment, and strictly increasing for any single caller.
// Because each room funnels id assignment through its sequencer, ids are
// monotonically increasing per room, which makes server order (not the
// client-claimed timestamp) authoritative for conflict resolution.
package eventid

import (
	"errors"
	"sync"
	"time"
)

const (
	nodeBits        = 10
	stepBits        = 12
	nodeMax         = -1 ^ (-1 << nodeBits)
	stepMask        = -1 ^ (-1 << stepBits)
	timeShift       = nodeBits + stepBits
	nodeShift       = stepBits
	epoch     int64 = 1704067200000 // 2024-01-01 00:00:00 UTC
)

// Generator mints ids from a millisecond timestamp, a node id, and a
// per-millisecond step counter. Node ids must be unique per gateway
// instance.
type Generator struct {
	mu   sync.Mutex
	last int64
	node int64
	step int64
}

func NewGenerator(node int64) (*Generator, error) {
	if node < 0 || node > nodeMax {
		return nil, errors.New("eventid: node must be between 0 and 1023")
	}
	return &Generator{node: node}, nil
}

func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < g.last {
		// Clock moved backwards, hold the line instead of reissuing ids.
		now = g.last
	}

	if now == g.last {
		g.step = (g.step + 1) & stepMask
		if g.step == 0 {
			for now <= g.last {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		g.step = 0
	}
	g.last = now

	return ((now - epoch) << timeShift) | (g.node << nodeShift) | g.step
}
