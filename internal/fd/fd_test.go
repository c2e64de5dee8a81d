package fd_test

import (
	"errors"
	"testing"

	"github.com/rost-kernel/rost/internal/fd"
)

func TestAllocGetClose(t *testing.T) {
	var table fd.Table

	n, err := table.Alloc("hello", fd.FlagRead)
	if err != nil {
		t.Fatalf("alloc: %s", err)
	}

	entry, err := table.Get(n)
	if err != nil {
		t.Fatalf("get: %s", err)
	}

	if entry.Name != "hello" || entry.Offset != 0 {
		t.Errorf("entry = %+v, want name=hello offset=0", entry)
	}

	if err := table.Close(n); err != nil {
		t.Fatalf("close: %s", err)
	}

	if _, err := table.Get(n); !errors.Is(err, fd.ErrBadDescriptor) {
		t.Errorf("get after close = %v, want ErrBadDescriptor", err)
	}
}

func TestAllocExhausted(t *testing.T) {
	var table fd.Table

	for i := 0; i < fd.Capacity; i++ {
		if _, err := table.Alloc("f", fd.FlagRead); err != nil {
			t.Fatalf("alloc %d: %s", i, err)
		}
	}

	if _, err := table.Alloc("overflow", fd.FlagRead); !errors.Is(err, fd.ErrNoFreeSlot) {
		t.Errorf("err = %v, want ErrNoFreeSlot", err)
	}
}

func TestCloseBadDescriptor(t *testing.T) {
	var table fd.Table

	if err := table.Close(3); !errors.Is(err, fd.ErrBadDescriptor) {
		t.Errorf("err = %v, want ErrBadDescriptor", err)
	}
}
