package mm

import "fmt"

// Walk resolves a virtual address through the translation table l0, returning the PTE of the
// 2 MiB block that covers va. A high-half (TTBR1) address is walked L0/L1/L2; a low-half
// (TTBR0) address is walked from l0 as a table of 1 GiB entries (the user table's entries
// 0..3 cover 0..4 GiB), then through the L2 table each entry points to. It exists for debugging and testing
// address translation end to end, mirroring the teacher's Memory.Fetch/Memory.Store pair
// that always resolve logical addresses through a single chokepoint (SPEC_FULL.md, C2).
func Walk(l0 *Table512, va uint64) (PTE, error) {
	const (
		l0Shift = 39
		l1Shift = 30
		l2Shift = 21
		idxMask = 0x1ff
	)

	l1 := l0

	if va&(1<<63) != 0 {
		l0i := (va >> l0Shift) & idxMask
		l0e := l0[l0i]

		if !l0e.Valid() {
			return 0, fmt.Errorf("mm: walk: L0[%d] not valid for va %#x", l0i, va)
		}

		if !l0e.IsTable() {
			// A block descriptor at L0 ends the walk here.
			return l0e, nil
		}

		l1 = tableAt(l0e.Address())
	}

	l1i := (va >> l1Shift) & idxMask
	l1e := l1[l1i]

	if !l1e.Valid() {
		return 0, fmt.Errorf("mm: walk: L1[%d] not valid for va %#x", l1i, va)
	}

	if !l1e.IsTable() {
		return l1e, nil
	}

	l2 := tableAt(l1e.Address())
	l2i := (va >> l2Shift) & idxMask
	l2e := l2[l2i]

	if !l2e.Valid() {
		return 0, fmt.Errorf("mm: walk: L2[%d] not valid for va %#x", l2i, va)
	}

	return l2e, nil
}
