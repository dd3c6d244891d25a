package comm

import (
	"math"
	"sync"
)

// Group is an in-process communicator for tests: n ranks on n goroutines,
// rendezvousing on every collective call. It mirrors the blocking behavior
// of the real transport without leaving the process.
type Group struct {
	size int

	mu      sync.Mutex
	cond    *sync.Cond
	gen     uint64
	pending map[int]any
	result  any
}

// NewGroup creates a loopback communicator with the given number of ranks.
func NewGroup(size int) *Group {
	g := &Group{size: size, pending: make(map[int]any)}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Rank returns the communicator handle for one rank. Each handle must be
// driven by its own goroutine.
func (g *Group) Rank(rank int) Comm {
	return &groupRank{group: g, rank: rank}
}

// exchange blocks until every rank has contributed a value for the current
// round, then hands all ranks the reduction over the contributions.
func (g *Group) exchange(rank int, v any, reduce func(map[int]any) any) any {
	g.mu.Lock()
	defer g.mu.Unlock()

	gen := g.gen
	g.pending[rank] = v
	if len(g.pending) == g.size {
		g.result = reduce(g.pending)
		g.pending = make(map[int]any)
		g.gen++
		g.cond.Broadcast()
		return g.result
	}
	for gen == g.gen {
		g.cond.Wait()
	}
	return g.result
}

type groupRank struct {
	group *Group
	rank  int
}

func (c *groupRank) Rank() int { return c.rank }
func (c *groupRank) Size() int { return c.group.size }

func (c *groupRank) AllReduceSumFloats(v []float64) []float64 {
	res := c.group.exchange(c.rank, v, func(all map[int]any) any {
		out := make([]float64, len(v))
		for _, contrib := range all {
			for i, x := range contrib.([]float64) {
				out[i] += x
			}
		}
		return out
	})
	return res.([]float64)
}

func (c *groupRank) AllReduceSumInts(v []int64) []int64 {
	res := c.group.exchange(c.rank, v, func(all map[int]any) any {
		out := make([]int64, len(v))
		for _, contrib := range all {
			for i, x := range contrib.([]int64) {
				out[i] += x
			}
		}
		return out
	})
	return res.([]int64)
}

func (c *groupRank) AllReduceMin(v float64) float64 {
	res := c.group.exchange(c.rank, v, func(all map[int]any) any {
		out := math.Inf(1)
		for _, contrib := range all {
			out = math.Min(out, contrib.(float64))
		}
		return out
	})
	return res.(float64)
}

func (c *groupRank) AllReduceMax(v float64) float64 {
	res := c.group.exchange(c.rank, v, func(all map[int]any) any {
		out := math.Inf(-1)
		for _, contrib := range all {
			out = math.Max(out, contrib.(float64))
		}
		return out
	})
	return res.(float64)
}

func (c *groupRank) AllReduceMinFloats(v []float64) []float64 {
	res := c.group.exchange(c.rank, v, func(all map[int]any) any {
		out := make([]float64, len(v))
		for i := range out {
			out[i] = math.Inf(1)
		}
		for _, contrib := range all {
			for i, x := range contrib.([]float64) {
				out[i] = math.Min(out[i], x)
			}
		}
		return out
	})
	return res.([]float64)
}

func (c *groupRank) AllReduceMaxFloats(v []float64) []float64 {
	res := c.group.exchange(c.rank, v, func(all map[int]any) any {
		out := make([]float64, len(v))
		for i := range out {
			out[i] = math.Inf(-1)
		}
		for _, contrib := range all {
			for i, x := range contrib.([]float64) {
				out[i] = math.Max(out[i], x)
			}
		}
		return out
	})
	return res.([]float64)
}

type loc struct {
	value float64
	rank  int
}

func (c *groupRank) MinLoc(v float64) (float64, int) {
	res := c.group.exchange(c.rank, v, func(all map[int]any) any {
		best := loc{value: math.Inf(1), rank: -1}
		for r := 0; r < c.group.size; r++ {
			x := all[r].(float64)
			if x < best.value || best.rank < 0 {
				best = loc{value: x, rank: r}
			}
		}
		return best
	})
	l := res.(loc)
	return l.value, l.rank
}

func (c *groupRank) MaxLoc(v float64) (float64, int) {
	res := c.group.exchange(c.rank, v, func(all map[int]any) any {
		best := loc{value: math.Inf(-1), rank: -1}
		for r := 0; r < c.group.size; r++ {
			x := all[r].(float64)
			if x > best.value || best.rank < 0 {
				best = loc{value: x, rank: r}
			}
		}
		return best
	})
	l := res.(loc)
	return l.value, l.rank
}

func (c *groupRank) BroadcastString(s string, root int) string {
	res := c.group.exchange(c.rank, s, func(all map[int]any) any {
		return all[root]
	})
	return res.(string)
}

func (c *groupRank) BroadcastFloats(v []float64, root int) []float64 {
	res := c.group.exchange(c.rank, v, func(all map[int]any) any {
		src := all[root].([]float64)
		out := make([]float64, len(src))
		copy(out, src)
		return out
	})
	return res.([]float64)
}
