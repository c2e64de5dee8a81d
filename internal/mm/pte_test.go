package mm_test

import (
	"testing"

	"github.com/rost-kernel/rost/internal/mm"
)

func TestTableDescriptorBits(t *testing.T) {
	pte := mm.Table(0x8000_0000)

	if !pte.Valid() {
		t.Errorf("table descriptor must have VALID set")
	}

	if !pte.IsTable() {
		t.Errorf("table descriptor must have TABLE bit set")
	}
}

func TestBlockDescriptorBits(t *testing.T) {
	pte := mm.Block(0x4000_0000, true, true, true)

	if !pte.Valid() {
		t.Errorf("block descriptor must have VALID set")
	}

	if pte.IsTable() {
		t.Errorf("block descriptor must have TABLE bit clear")
	}

	if pte.Address() != 0x4000_0000 {
		t.Errorf("address = %s, want 0x40000000", pte.Address())
	}
}

func TestBlockNonExecutableSetsPXNAndUXN(t *testing.T) {
	exe := mm.Block(0, false, true, true)
	noExe := mm.Block(0, false, true, false)

	if exe == noExe {
		t.Fatalf("executable and non-executable blocks must differ")
	}

	// The only bits that should differ are PXN/UXN (bits 53, 54).
	diff := uint64(exe) ^ uint64(noExe)
	if diff&^(uint64(1)<<53|uint64(1)<<54) != 0 {
		t.Errorf("unexpected bits differ: %#x", diff)
	}
}
