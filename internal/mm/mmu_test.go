package mm_test

import (
	"testing"

	"github.com/rost-kernel/rost/internal/mm"
)

func TestBringUpRequiresUEFITable(t *testing.T) {
	barrier := &mm.CountingBarrier{}

	if _, err := mm.BringUp(nil, barrier); err == nil {
		t.Errorf("expected error when UEFI L0 is nil")
	}
}

func TestBringUpPreservesDeviceEntries(t *testing.T) {
	uefi := &mm.Table512{}
	uefi[4] = mm.Table(0xdead_0000) // stand-in PCI ECAM sub-table.

	barrier := &mm.CountingBarrier{}

	space, err := mm.BringUp(uefi, barrier)
	if err != nil {
		t.Fatalf("bring-up: %s", err)
	}

	if space.UserL0[4] != uefi[4] {
		t.Errorf("user L0[4] = %s, want preserved UEFI entry %s", space.UserL0[4], uefi[4])
	}

	if space.KernelL0[4] != uefi[4] {
		t.Errorf("kernel L0[4] = %s, want preserved UEFI entry %s", space.KernelL0[4], uefi[4])
	}

	if barrier.Syncs == 0 {
		t.Errorf("expected at least one Sync() during bring-up")
	}

	if len(barrier.Cleaned) == 0 {
		t.Errorf("expected cache maintenance on mutated tables")
	}
}

func TestBringUpInstallsKernelL0Entry510(t *testing.T) {
	uefi := &mm.Table512{}
	barrier := &mm.CountingBarrier{}

	space, err := mm.BringUp(uefi, barrier)
	if err != nil {
		t.Fatalf("bring-up: %s", err)
	}

	entry := space.KernelL0[mm.KernelL0Index]
	if !entry.Valid() || !entry.IsTable() {
		t.Errorf("kernel L0[510] = %s, want a valid table descriptor", entry)
	}
}

func TestBringUpKernelMappingIsNotUserAccessible(t *testing.T) {
	uefi := &mm.Table512{}
	barrier := &mm.CountingBarrier{}

	space, err := mm.BringUp(uefi, barrier)
	if err != nil {
		t.Fatalf("bring-up: %s", err)
	}

	const va = mm.KernelBase + 0x1000

	pte, err := mm.Walk(space.KernelL0, va)
	if err != nil {
		t.Fatalf("walk: %s", err)
	}

	if pte.UserAccess() {
		t.Errorf("kernel mapping at %#x is user-accessible, want kernel-RW+X only", va)
	}

	userPTE, err := mm.Walk(space.UserL0, 0x1000)
	if err != nil {
		t.Fatalf("walk user: %s", err)
	}

	if !userPTE.UserAccess() {
		t.Errorf("user mapping at 0x1000 is not user-accessible, want user-RWX")
	}
}

func TestWalkResolvesUserMapping(t *testing.T) {
	uefi := &mm.Table512{}
	barrier := &mm.CountingBarrier{}

	space, err := mm.BringUp(uefi, barrier)
	if err != nil {
		t.Fatalf("bring-up: %s", err)
	}

	const va = 0x3000_0000 // inside the first GiB.

	pte, err := mm.Walk(space.UserL0, va)
	if err != nil {
		t.Fatalf("walk: %s", err)
	}

	if !pte.Valid() {
		t.Errorf("resolved PTE not valid")
	}

	blockBase := uint64(pte.Address())
	if va < blockBase || va >= blockBase+mm.BlockSize2M {
		t.Errorf("va %#x not covered by block at %#x", va, blockBase)
	}
}

func TestActivateFlushesTLB(t *testing.T) {
	uefi := &mm.Table512{}
	barrier := &mm.CountingBarrier{}

	space, err := mm.BringUp(uefi, barrier)
	if err != nil {
		t.Fatalf("bring-up: %s", err)
	}

	before := barrier.Flushes

	ttbr0, ttbr1 := mm.Activate(space, space.UserL0, barrier)

	if barrier.Flushes != before+1 {
		t.Errorf("Activate must issue exactly one TLB flush")
	}

	if ttbr1 == 0 {
		t.Errorf("ttbr1 must reference the kernel L0")
	}

	if ttbr0 == 0 {
		t.Errorf("ttbr0 must reference the user L0")
	}
}
