package fs_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rost-kernel/rost/internal/fs"
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

func newMountedFS(t *testing.T, sectors uint64) *fs.FileSystem {
	t.Helper()

	disk := virtio.NewDisk(newMemBackend(sectors), sectors)
	if err := fs.Format(disk, sectors); err != nil {
		t.Fatalf("format: %s", err)
	}

	fsys, err := fs.Mount(disk)
	if err != nil {
		t.Fatalf("mount: %s", err)
	}

	return fsys
}

func TestFormatMountEmpty(t *testing.T) {
	fsys := newMountedFS(t, 64)

	if got := fsys.ListFiles(); len(got) != 0 {
		t.Errorf("ListFiles() = %v, want empty", got)
	}
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	fsys := newMountedFS(t, 64)

	data := []byte("hello, rost filesystem")
	if err := fsys.CreateFile("greet", uint32(len(data))); err != nil {
		t.Fatalf("create: %s", err)
	}

	if err := fsys.WriteFile("greet", data); err != nil {
		t.Fatalf("write: %s", err)
	}

	out := make([]byte, len(data))
	n, err := fsys.ReadFile("greet", out)
	if err != nil {
		t.Fatalf("read: %s", err)
	}

	if n != len(data) || !bytes.Equal(out, data) {
		t.Errorf("read = %q (%d), want %q", out, n, data)
	}
}

func TestCreateDuplicateRejected(t *testing.T) {
	fsys := newMountedFS(t, 64)

	if err := fsys.CreateFile("dup", 10); err != nil {
		t.Fatalf("create: %s", err)
	}

	if err := fsys.CreateFile("dup", 10); !errors.Is(err, fs.ErrDuplicateName) {
		t.Errorf("err = %v, want ErrDuplicateName", err)
	}
}

func TestCreateBadName(t *testing.T) {
	fsys := newMountedFS(t, 64)

	if err := fsys.CreateFile("", 1); !errors.Is(err, fs.ErrBadName) {
		t.Errorf("empty name: err = %v, want ErrBadName", err)
	}

	if err := fsys.CreateFile("toolongname", 1); !errors.Is(err, fs.ErrBadName) {
		t.Errorf("long name: err = %v, want ErrBadName", err)
	}
}

func TestCreateOutOfSpace(t *testing.T) {
	fsys := newMountedFS(t, fs.DefaultDataStartSector+1)

	if err := fsys.CreateFile("a", virtio.SectorSize); err != nil {
		t.Fatalf("create a: %s", err)
	}

	if err := fsys.CreateFile("b", virtio.SectorSize); !errors.Is(err, fs.ErrOutOfSpace) {
		t.Errorf("err = %v, want ErrOutOfSpace", err)
	}
}

func TestDeleteDoesNotReclaimSectors(t *testing.T) {
	fsys := newMountedFS(t, fs.DefaultDataStartSector+1)

	if err := fsys.CreateFile("a", virtio.SectorSize); err != nil {
		t.Fatalf("create a: %s", err)
	}

	if err := fsys.DeleteFile("a"); err != nil {
		t.Fatalf("delete: %s", err)
	}

	if got := fsys.ListFiles(); len(got) != 0 {
		t.Errorf("ListFiles() after delete = %v, want empty", got)
	}

	// The one remaining sector was already consumed by "a" and is not
	// reclaimed, so a second same-size file no longer fits.
	if err := fsys.CreateFile("b", virtio.SectorSize); !errors.Is(err, fs.ErrOutOfSpace) {
		t.Errorf("err = %v, want ErrOutOfSpace (sectors must not be reclaimed)", err)
	}
}

func TestRenameFile(t *testing.T) {
	fsys := newMountedFS(t, 64)

	if err := fsys.CreateFile("old", 4); err != nil {
		t.Fatalf("create: %s", err)
	}

	if err := fsys.RenameFile("old", "new"); err != nil {
		t.Fatalf("rename: %s", err)
	}

	if _, err := fsys.ReadFile("old", make([]byte, 4)); !errors.Is(err, fs.ErrNotFound) {
		t.Errorf("read old after rename: err = %v, want ErrNotFound", err)
	}

	out := make([]byte, 4)
	if _, err := fsys.ReadFile("new", out); err != nil {
		t.Errorf("read new after rename: %s", err)
	}
}

func TestWriteFileTooLarge(t *testing.T) {
	fsys := newMountedFS(t, 64)

	if err := fsys.CreateFile("small", 4); err != nil {
		t.Fatalf("create: %s", err)
	}

	if err := fsys.WriteFile("small", make([]byte, 8)); !errors.Is(err, fs.ErrDataTooLarge) {
		t.Errorf("err = %v, want ErrDataTooLarge", err)
	}
}

func TestReadFileShortBuffer(t *testing.T) {
	fsys := newMountedFS(t, 64)

	if err := fsys.CreateFile("f", 16); err != nil {
		t.Fatalf("create: %s", err)
	}

	if _, err := fsys.ReadFile("f", make([]byte, 4)); !errors.Is(err, fs.ErrShortBuffer) {
		t.Errorf("err = %v, want ErrShortBuffer", err)
	}
}

func TestMountRejectsBadMagic(t *testing.T) {
	disk := virtio.NewDisk(newMemBackend(64), 64)

	if _, err := fs.Mount(disk); !errors.Is(err, fs.ErrBadMagic) {
		t.Errorf("err = %v, want ErrBadMagic", err)
	}
}

func TestSuperblockRoundTrip(t *testing.T) {
	super := fs.Superblock{
		Magic:           0x524F5354,
		Version:         1,
		TotalSectors:    2048,
		DataStartSector: fs.DefaultDataStartSector,
		FileCount:       3,
	}

	bin, err := super.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %s", err)
	}

	var got fs.Superblock
	if err := got.UnmarshalBinary(bin); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}

	if got != super {
		t.Errorf("got %+v, want %+v", got, super)
	}
}
