package mm

// pte.go implements the 4-level ARM64 page table descriptor format used by the core.
// Only L0/L1/L2 are ever populated: the design uses 2 MiB block mappings at L2 exclusively,
// so 4 KiB (L3) page descriptors never appear (spec §3).

import "fmt"

// PTE is a 64-bit ARM64 page table descriptor.
type PTE uint64

// Descriptor bit fields relevant to this core.
const (
	ptValid PTE = 1 << 0 // VALID
	ptTable PTE = 1 << 1 // TABLE(1) / BLOCK(0)

	ptMemAttrShift = 2
	ptMemAttrNorm  = PTE(0b001) << ptMemAttrShift // Normal, write-back memory.

	ptAPShift  = 6
	apKernelRW = PTE(0b00) << ptAPShift
	apUserRW   = PTE(0b01) << ptAPShift
	apKernelRO = PTE(0b10) << ptAPShift
	apUserRO   = PTE(0b11) << ptAPShift

	ptSHShift    = 8
	ptSHInner    = PTE(0b11) << ptSHShift // Inner shareable.
	ptAF         = 1 << 10                // Access flag.
	ptAddrMask   = PTE(0x0000_ffff_ffff_f000)
	ptPXN        = PTE(1) << 53 // Privileged execute-never.
	ptUXN        = PTE(1) << 54 // Unprivileged execute-never.
)

func (p PTE) String() string {
	return fmt.Sprintf("PTE(%#016x valid=%t table=%t)", uint64(p), p.Valid(), p.IsTable())
}

// Valid reports whether the VALID bit is set (invariant 1, spec §8).
func (p PTE) Valid() bool { return p&ptValid != 0 }

// IsTable reports whether the descriptor references a next-level table rather than a block.
func (p PTE) IsTable() bool { return p&ptTable != 0 }

// Address extracts the output address (physical frame for a block, table base for a table).
func (p PTE) Address() Frame { return Frame(p & ptAddrMask) }

// UserAccess reports whether the descriptor's AP bits grant EL0 access (spec §3's
// "kernel-RW+X" vs "user-RWX" distinction): the low bit of the AP[2:1] pair (apUserRW,
// apUserRO) is the one that selects the user/kernel pair, independent of the RW/RO bit.
func (p PTE) UserAccess() bool {
	return p&(PTE(1)<<ptAPShift) != 0
}

// Table constructs a table descriptor pointing at the next-level table's physical base.
// Invariant: bit 0 = 1, bit 1 = 1 (spec §8, invariant 1).
func Table(phys Frame) PTE {
	return PTE(phys)&ptAddrMask | ptValid | ptTable
}

// Block constructs a 2 MiB block descriptor.
//
//   - userAccess selects the AP[2:1] user/kernel access pair.
//   - writable selects read-only vs read-write within that pair.
//   - executable, when false, sets both PXN and UXN so the mapping can never be fetched from.
//
// Invariant: bit 0 = 1, bit 1 = 0 (spec §8, invariant 1).
func Block(phys Frame, userAccess, writable, executable bool) PTE {
	pte := PTE(phys)&ptAddrMask | ptValid | ptMemAttrNorm | ptSHInner | ptAF

	switch {
	case userAccess && writable:
		pte |= apUserRW
	case userAccess && !writable:
		pte |= apUserRO
	case !userAccess && writable:
		pte |= apKernelRW
	default:
		pte |= apKernelRO
	}

	if !executable {
		pte |= ptPXN | ptUXN
	}

	return pte
}

// entriesPerTable is the fan-out of every translation table level: 4 KiB / 8 bytes.
const entriesPerTable = 512

// Table512 is one level of the translation table hierarchy: 512 eight-byte descriptors
// packed into a single 4 KiB page, exactly as the ARM64 architecture requires.
type Table512 [entriesPerTable]PTE

// BlockSize2M is the span of a single L2 block descriptor.
const BlockSize2M = 2 << 20
