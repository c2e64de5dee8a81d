package mm_test

import (
	"errors"
	"testing"

	"github.com/rost-kernel/rost/internal/mm"
)

func TestAllocatorMonotonic(t *testing.T) {
	alloc := mm.NewAllocator(0x1000, 0x4000)

	first, err := alloc.AllocPage()
	if err != nil {
		t.Fatalf("alloc page: %s", err)
	}

	if first != 0x1000 {
		t.Errorf("first frame = %s, want 0x1000", first)
	}

	second, err := alloc.AllocPage()
	if err != nil {
		t.Fatalf("alloc page: %s", err)
	}

	if second != 0x2000 {
		t.Errorf("second frame = %s, want 0x2000", second)
	}
}

func TestAllocatorExhausted(t *testing.T) {
	alloc := mm.NewAllocator(0x1000, 0x2000)

	if _, err := alloc.AllocPage(); err != nil {
		t.Fatalf("first page should fit: %s", err)
	}

	if _, err := alloc.AllocPage(); !errors.Is(err, mm.ErrExhausted) {
		t.Errorf("err = %v, want ErrExhausted", err)
	}
}

func TestAllocatePagesZero(t *testing.T) {
	alloc := mm.NewAllocator(0x1000, 0x4000)

	if _, err := alloc.AllocatePages(0); !errors.Is(err, mm.ErrExhausted) {
		t.Errorf("AllocatePages(0) err = %v, want ErrExhausted", err)
	}
}

func TestAllocatePagesContiguous(t *testing.T) {
	alloc := mm.NewAllocator(0x1000, 0x10000)

	base, err := alloc.AllocatePages(4)
	if err != nil {
		t.Fatalf("allocate pages: %s", err)
	}

	if base != 0x1000 {
		t.Errorf("base = %s, want 0x1000", base)
	}

	watermark, _ := alloc.Stats()
	if watermark != 0x1000+4*mm.PageSize {
		t.Errorf("watermark = %s, want %#x", watermark, 0x1000+4*mm.PageSize)
	}
}

func TestNewAllocatorRejectsMisalignment(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic for misaligned region")
		}
	}()

	mm.NewAllocator(0x1001, 0x2000)
}
