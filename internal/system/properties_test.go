package system

import (
	"testing"

	"pgregory.net/rapid"
)

// TestPidAllocationIsMonotonicUnderArbitraryBurstSizes checks the same
// never-reused-pid invariant as TestPidAllocationIsUniqueAndMonotonic, but
// against an arbitrary number of allocations per system instance rather
// than a single fixed count.
func TestPidAllocationIsMonotonicUnderArbitraryBurstSizes(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sys := NewSystemState(DefaultConfig("test"))
		n := rapid.IntRange(1, 2000).Draw(t, "allocations")

		seen := make(map[uint64]bool, n)
		var last uint64
		for i := 0; i < n; i++ {
			pid := sys.allocatePid()
			if seen[pid.Value] {
				t.Fatalf("pid value reused: %d", pid.Value)
			}
			seen[pid.Value] = true
			if pid.Value <= last {
				t.Fatalf("pid value did not increase: last=%d got=%d", last, pid.Value)
			}
			last = pid.Value
		}
	})
}
