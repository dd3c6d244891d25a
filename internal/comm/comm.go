// Package comm is the narrow abstraction over the collective transport that
// parallel filters reduce through. The core never touches MPI directly; it
// sees only this interface. A Serial implementation backs single-process
// runs, and a loopback Group backs multi-rank tests.
package comm

import (
	"fmt"
	"sync"
)

// ErrRankDisagreement is returned when ranks disagree on a value that must
// be uniform across the communicator.
var ErrRankDisagreement = fmt.Errorf("rank disagreement")

// Comm is one rank's handle onto a communicator. All collective calls must
// be entered by every rank in the same order; the scheduler's deterministic
// topological ordering provides that.
type Comm interface {
	Rank() int
	Size() int

	// Element-wise SUM across ranks. The input slice is not modified.
	AllReduceSumFloats(v []float64) []float64
	AllReduceSumInts(v []int64) []int64

	// Element-wise MIN / MAX across ranks.
	AllReduceMin(v float64) float64
	AllReduceMax(v float64) float64
	AllReduceMinFloats(v []float64) []float64
	AllReduceMaxFloats(v []float64) []float64

	// MINLOC / MAXLOC: the winning value plus the rank that held it.
	// Ties resolve to the lowest rank.
	MinLoc(v float64) (float64, int)
	MaxLoc(v float64) (float64, int)

	// BroadcastString sends root's string to every rank. The exchange is
	// length-agnostic; no fixed buffer sizes are involved.
	BroadcastString(s string, root int) string
	// BroadcastFloats sends root's slice to every rank.
	BroadcastFloats(v []float64, root int) []float64
}

// Agree broadcasts local from rank 0 and fails with ErrRankDisagreement on
// any rank whose local value differs. String parameters that participate in
// comparisons (topology names, associations) go through here so fatal
// errors surface deterministically on every rank.
func Agree(c Comm, local string) (string, error) {
	global := c.BroadcastString(local, 0)
	if global != local {
		return "", fmt.Errorf("%w: rank %d has %q, rank 0 has %q",
			ErrRankDisagreement, c.Rank(), local, global)
	}
	return global, nil
}

// Serial is the single-rank communicator. Every collective is an identity.
type Serial struct{}

func (Serial) Rank() int { return 0 }
func (Serial) Size() int { return 1 }

func (Serial) AllReduceSumFloats(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

func (Serial) AllReduceSumInts(v []int64) []int64 {
	out := make([]int64, len(v))
	copy(out, v)
	return out
}

func (Serial) AllReduceMin(v float64) float64 { return v }
func (Serial) AllReduceMax(v float64) float64 { return v }

func (Serial) AllReduceMinFloats(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

func (Serial) AllReduceMaxFloats(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

func (Serial) MinLoc(v float64) (float64, int) { return v, 0 }
func (Serial) MaxLoc(v float64) (float64, int) { return v, 0 }

func (Serial) BroadcastString(s string, root int) string { return s }

func (Serial) BroadcastFloats(v []float64, root int) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

// Process-wide optional default communicator. This is the only process-wide
// state the core keeps besides the per-workspace tables.
var (
	defaultMu   sync.RWMutex
	defaultComm Comm = Serial{}
)

// SetDefault installs the default communicator used by workspaces that are
// not given one explicitly.
func SetDefault(c Comm) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultComm = c
}

// Default returns the process default communicator (Serial unless the host
// installed one).
func Default() Comm {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultComm
}
