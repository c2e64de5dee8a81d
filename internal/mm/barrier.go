package mm

// barrier.go captures the cache-maintenance and TLB-invalidation contract of spec §4.2:
// after mutating a page table the MMU may walk, clean the dirty line(s), then DSB;SY;ISB,
// and after retargeting translation table base registers, TLBI;DSB;ISB.
//
// The contract is expressed as an interface, not direct asm calls, because this core is
// built and tested as a software simulation of the described machine (the teacher's own
// approach: vm.LC3 simulates a CPU rather than targeting real silicon). A real port swaps
// in an implementation that lowers straight to DC/DSB/ISB/TLBI instructions.
type Barrier interface {
	// CleanInvalidate cleans every cache line backing the given table to the point of
	// coherency (DC CIVAC per 64-byte line in the real instruction set).
	CleanInvalidate(table *Table512)

	// Sync issues a DSB SY; ISB pair, ordering prior stores before anything that follows.
	Sync()

	// FlushTLB issues TLBI VMALLE1IS; DSB ISH; ISB, invalidating every TLB entry for the
	// current address space after a translation table base register change.
	FlushTLB()
}

// CountingBarrier is a Barrier that records how many times each operation was invoked, for
// tests asserting the bring-up sequence performs its maintenance in the right order and
// doesn't skip a step.
type CountingBarrier struct {
	Cleaned []*Table512
	Syncs   int
	Flushes int
}

func (b *CountingBarrier) CleanInvalidate(t *Table512) { b.Cleaned = append(b.Cleaned, t) }
func (b *CountingBarrier) Sync()                       { b.Syncs++ }
func (b *CountingBarrier) FlushTLB()                   { b.Flushes++ }
