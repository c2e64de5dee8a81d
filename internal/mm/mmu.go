package mm

// mmu.go implements MMU bring-up and the kernel/user address space layout (spec §4.3).

import (
	"fmt"
	"unsafe"
)

// KernelBase is the virtual base of the high half of the address space, walked via TTBR1.
// Its L0 index is 510, leaving one L0 slot (511) unused by this core.
const KernelBase = uint64(0xFFFF_FF00_0000_0000)

// KernelL0Index is the L0 entry that maps KernelBase.
const KernelL0Index = 510

// L0EntriesUser is how many L0 entries the user address space's 0..4 GiB block mapping
// occupies (spec §3: "entries 0..3 cover 0..4 GiB").
const L0EntriesUser = 4

// AddressSpace holds the two top-level translation tables that exist at any moment: a
// kernel L0 (walked via TTBR1, shared by every process) and a per-process user L0 (walked
// via TTBR0).
type AddressSpace struct {
	KernelL0 *Table512
	UserL0   *Table512
}

// frameOf and tableAt give every in-memory Table512 a stand-in physical address so that
// Table()/Block() descriptors -- which, on real hardware, embed the next level's physical
// base -- have something concrete to embed in this software model. Spec §4.2 requires
// every static page table to live 4 KiB-aligned in BSS; Go's allocator doesn't expose
// addresses that way, so the core treats a table's runtime address as its "physical"
// address, exactly the identity the boot-time tables have on the real hardware this
// core targets (kernel code and data live below 4 GiB).
func frameOf(t *Table512) Frame { return Frame(uintptr(unsafe.Pointer(t))) } //nolint:gosec

func tableAt(f Frame) *Table512 { return (*Table512)(unsafe.Pointer(uintptr(f))) } //nolint:gosec

// BringUp performs the procedure of spec §4.3: it builds the kernel's high-half mapping of
// physical 0..4 GiB and a user mapping of the same range, installs the kernel mapping at
// KernelL0[510], preserves the UEFI L0's device-MMIO entries (4..511) in the user table,
// and issues the required cache/TLB maintenance through barrier.
//
// It does not itself touch TTBR0/TTBR1 or TCR_EL1: those are register pokes outside the
// scope of a software model and are left to the caller, matching spec §4.3
// step 5's note that TTBR0 is switched "later" to the per-process table.
func BringUp(uefiL0 *Table512, barrier Barrier) (*AddressSpace, error) {
	if uefiL0 == nil {
		return nil, fmt.Errorf("mm: bring-up requires the UEFI identity-map L0 (MMU must already be enabled)")
	}

	kernelL0 := &Table512{}
	userL0 := &Table512{}

	// Step 1: snapshot UEFI's L0 into both new tables so device MMIO (entries 4..511)
	// survives the transition.
	copy(kernelL0[:], uefiL0[:])
	copy(userL0[:], uefiL0[:])

	// Step 2: build the kernel L1, mapping physical 0..4 GiB into KernelBase+0..4GiB via
	// four L2 tables of 2 MiB blocks, and install it at kernel L0[510].
	kernelL1 := &Table512{}

	for gib := 0; gib < 4; gib++ {
		l2 := buildL2(Frame(uint64(gib)<<30), false /* kernel-only */)
		kernelL1[gib] = Table(frameOf(l2))
		barrier.CleanInvalidate(l2)
	}

	barrier.CleanInvalidate(kernelL1)
	kernelL0[KernelL0Index] = Table(frameOf(kernelL1))

	// Step 3: build the user L2 tables mapping 0..4 GiB as user-RWX 2 MiB blocks, and install
	// each as a table descriptor in user L0[0..3], one entry per GiB.
	for i := 0; i < L0EntriesUser; i++ {
		l2 := buildL2(Frame(uint64(i)<<30), true /* user */)
		userL0[i] = Table(frameOf(l2))
		barrier.CleanInvalidate(l2)
	}

	// Step 4: clean the top-level tables themselves and fence.
	barrier.CleanInvalidate(kernelL0)
	barrier.CleanInvalidate(userL0)
	barrier.Sync()

	return &AddressSpace{KernelL0: kernelL0, UserL0: userL0}, nil
}

// buildL2 builds one 2 MiB-block L2 table covering [base, base+1GiB), RW+X throughout, with
// the AP bits set by userAccess (spec §3, §4.3 step 3). The kernel identity L1's sub-tables
// (TTBR1, KernelBase..KernelBase+4GiB) pass userAccess=false -- kernel-RW+X, not reachable
// from EL0 -- and only the user L0's direct entries (TTBR0, 0..4GiB) pass userAccess=true.
func buildL2(base Frame, userAccess bool) *Table512 {
	l2 := &Table512{}

	for i := 0; i < entriesPerTable; i++ {
		phys := base + Frame(i*BlockSize2M)
		l2[i] = Block(phys, userAccess, true /* writable */, true /* executable */)
	}

	return l2
}

// Activate installs the address space's kernel table as the system-wide TTBR1 target and
// the given user table (or nil, for kernel-only threads) as TTBR0. Like BringUp, the
// register pokes themselves are outside a software model's reach; Activate issues the
// TLB-invalidation barrier the real instruction sequence requires after a TTBR change and
// returns the pair a caller would load into the two registers.
func Activate(space *AddressSpace, userL0 *Table512, barrier Barrier) (ttbr0, ttbr1 Frame) {
	barrier.FlushTLB()

	if userL0 == nil {
		return 0, frameOf(space.KernelL0)
	}

	return frameOf(userL0), frameOf(space.KernelL0)
}
