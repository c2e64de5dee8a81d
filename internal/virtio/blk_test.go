package virtio_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rost-kernel/rost/internal/virtio"
)

type memBackend struct {
	data []byte
}

func newMemBackend(sectors uint64) *memBackend {
	return &memBackend{data: make([]byte, sectors*virtio.SectorSize)}
}

func (m *memBackend) ReadAt(p []byte, off int64) (int, error)  { return copy(p, m.data[off:]), nil }
func (m *memBackend) WriteAt(p []byte, off int64) (int, error) { return copy(m.data[off:], p), nil }

func TestReadWriteRoundTrip(t *testing.T) {
	backend := newMemBackend(8)
	disk := virtio.NewDisk(backend, 8)

	var want [virtio.SectorSize]byte
	copy(want[:], []byte("hello sector"))

	if err := disk.WriteSector(3, &want); err != nil {
		t.Fatalf("write: %s", err)
	}

	var got [virtio.SectorSize]byte
	if err := disk.ReadSector(3, &got); err != nil {
		t.Fatalf("read: %s", err)
	}

	if !bytes.Equal(want[:], got[:]) {
		t.Errorf("round trip mismatch")
	}
}

func TestOutOfRangeSector(t *testing.T) {
	disk := virtio.NewDisk(newMemBackend(2), 2)

	var buf [virtio.SectorSize]byte
	if err := disk.ReadSector(5, &buf); !errors.Is(err, virtio.ErrIO) {
		t.Errorf("err = %v, want ErrIO", err)
	}
}

func TestRequestHeaderRoundTrip(t *testing.T) {
	h := virtio.RequestHeader{Type: virtio.ReqOut, Sector: 42}

	bin, err := h.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %s", err)
	}

	var got virtio.RequestHeader
	if err := got.UnmarshalBinary(bin); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}

	if got != h {
		t.Errorf("got %+v, want %+v", got, h)
	}
}
