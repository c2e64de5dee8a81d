// Package fs implements the flat filesystem (C12): a superblock, a fixed
// 32-entry file table, and contiguous sector extents over a virtio.Disk.
//
// Grounded in the teacher's monitor.SystemImage load/format idiom -- fixed
// on-disk layouts marshalled field-by-field with encoding/binary rather than
// through reflection-based codecs. The teacher's internal/encoding package
// (an Intel-Hex text format specific to LC-3 object images) has no on-disk
// binary-record equivalent of its own, so the marshalling here goes directly
// through encoding/binary, the same library the teacher uses one layer
// lower in internal/vm for its own register encoding.
package fs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/rost-kernel/rost/internal/virtio"
)

const (
	// NameMaxLen is the longest file name the table can hold (spec §3).
	NameMaxLen = 8

	// FileTableEntries is the fixed capacity of the file table (spec §3).
	FileTableEntries = 32

	// entrySize is the packed on-disk size of one file table entry.
	entrySize = 20

	superblockSector     = 0
	fileTableStartSector = 1
	fileTableSectors     = 2

	// DefaultDataStartSector is the first sector of the data region (spec §3).
	DefaultDataStartSector = 11

	// magic is "ROST" read as a little-endian u32 (spec §6).
	magic = 0x524F5354

	version = 1

	flagUsed uint8 = 0x01
)

var (
	ErrBadName       = errors.New("fs: file name must be 1..8 bytes")
	ErrDuplicateName = errors.New("fs: file already exists")
	ErrNotFound      = errors.New("fs: file not found")
	ErrOutOfSpace    = errors.New("fs: out of space")
	ErrBadMagic      = errors.New("fs: bad superblock magic")
	ErrBadVersion    = errors.New("fs: unsupported superblock version")
	ErrShortBuffer   = errors.New("fs: destination buffer too small")
	ErrDataTooLarge  = errors.New("fs: data exceeds file's allocated size")
)

// Superblock is sector 0's contents (spec §3).
type Superblock struct {
	Magic           uint32
	Version         uint32
	TotalSectors    uint64
	DataStartSector uint64
	FileCount       uint32
}

// MarshalBinary encodes the superblock into a 512-byte, zero-padded sector.
func (s Superblock) MarshalBinary() ([]byte, error) {
	buf := make([]byte, virtio.SectorSize)
	binary.LittleEndian.PutUint32(buf[0:4], s.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], s.Version)
	binary.LittleEndian.PutUint64(buf[8:16], s.TotalSectors)
	binary.LittleEndian.PutUint64(buf[16:24], s.DataStartSector)
	binary.LittleEndian.PutUint32(buf[24:28], s.FileCount)

	return buf, nil
}

// UnmarshalBinary decodes a 512-byte superblock sector.
func (s *Superblock) UnmarshalBinary(buf []byte) error {
	if len(buf) < 28 {
		return fmt.Errorf("fs: short superblock: %d bytes", len(buf))
	}

	s.Magic = binary.LittleEndian.Uint32(buf[0:4])
	s.Version = binary.LittleEndian.Uint32(buf[4:8])
	s.TotalSectors = binary.LittleEndian.Uint64(buf[8:16])
	s.DataStartSector = binary.LittleEndian.Uint64(buf[16:24])
	s.FileCount = binary.LittleEndian.Uint32(buf[24:28])

	return nil
}

// FileEntry is one 20-byte on-disk file table entry (spec §3).
type FileEntry struct {
	Name        [NameMaxLen]byte
	StartSector uint16
	SizeSectors uint16
	SizeBytes   uint32
	Flags       uint8
	Reserved    [3]byte
}

// Used reports whether the entry's USED flag is set.
func (e *FileEntry) Used() bool { return e.Flags&flagUsed != 0 }

// nameString returns the entry's name with trailing NUL padding stripped.
func (e *FileEntry) nameString() string {
	n := 0
	for n < NameMaxLen && e.Name[n] != 0 {
		n++
	}

	return string(e.Name[:n])
}

// FileName returns e's name with trailing NUL padding stripped.
func (e FileEntry) FileName() string { return (&e).nameString() } //nolint:govet

func (e FileEntry) marshalInto(buf []byte) {
	copy(buf[0:8], e.Name[:])
	binary.LittleEndian.PutUint16(buf[8:10], e.StartSector)
	binary.LittleEndian.PutUint16(buf[10:12], e.SizeSectors)
	binary.LittleEndian.PutUint32(buf[12:16], e.SizeBytes)
	buf[16] = e.Flags
	copy(buf[17:20], e.Reserved[:])
}

func (e *FileEntry) unmarshalFrom(buf []byte) {
	copy(e.Name[:], buf[0:8])
	e.StartSector = binary.LittleEndian.Uint16(buf[8:10])
	e.SizeSectors = binary.LittleEndian.Uint16(buf[10:12])
	e.SizeBytes = binary.LittleEndian.Uint32(buf[12:16])
	e.Flags = buf[16]
	copy(e.Reserved[:], buf[17:20])
}

// FileSystem is a mounted flat filesystem: an in-RAM copy of the superblock
// and file table, backed by a virtio.Disk. All operations share a single
// coarse lock (spec §4.12: "Concurrency: single global lock").
type FileSystem struct {
	mut      sync.Mutex
	disk     *virtio.Disk
	super    Superblock
	table    [FileTableEntries]FileEntry
	nextFree uint64
}

// Format writes a fresh superblock and an all-zero (all-free) file table to
// disk, sized for totalSectors (spec §4.12).
func Format(disk *virtio.Disk, totalSectors uint64) error {
	super := Superblock{
		Magic:           magic,
		Version:         version,
		TotalSectors:    totalSectors,
		DataStartSector: DefaultDataStartSector,
		FileCount:       0,
	}

	sbBuf, _ := super.MarshalBinary()

	var sector [virtio.SectorSize]byte
	copy(sector[:], sbBuf)

	if err := disk.WriteSector(superblockSector, &sector); err != nil {
		return fmt.Errorf("fs: format: superblock: %w", err)
	}

	var empty [virtio.SectorSize]byte
	for i := 0; i < fileTableSectors; i++ {
		if err := disk.WriteSector(uint64(fileTableStartSector+i), &empty); err != nil {
			return fmt.Errorf("fs: format: file table sector %d: %w", i, err)
		}
	}

	return nil
}

// Mount reads and validates the superblock, loads the file table into RAM,
// and reconstructs next_free_sector (spec §4.12).
func Mount(disk *virtio.Disk) (*FileSystem, error) {
	var sbSector [virtio.SectorSize]byte
	if err := disk.ReadSector(superblockSector, &sbSector); err != nil {
		return nil, fmt.Errorf("fs: mount: %w", err)
	}

	var super Superblock
	if err := super.UnmarshalBinary(sbSector[:]); err != nil {
		return nil, err
	}

	if super.Magic != magic {
		return nil, ErrBadMagic
	}

	if super.Version != version {
		return nil, ErrBadVersion
	}

	fsys := &FileSystem{disk: disk, super: super}

	raw := make([]byte, 0, fileTableSectors*virtio.SectorSize)

	for i := 0; i < fileTableSectors; i++ {
		var sector [virtio.SectorSize]byte
		if err := disk.ReadSector(uint64(fileTableStartSector+i), &sector); err != nil {
			return nil, fmt.Errorf("fs: mount: file table sector %d: %w", i, err)
		}

		raw = append(raw, sector[:]...)
	}

	nextFree := super.DataStartSector

	for i := range fsys.table {
		fsys.table[i].unmarshalFrom(raw[i*entrySize : (i+1)*entrySize])

		if fsys.table[i].Used() {
			end := uint64(fsys.table[i].StartSector) + uint64(fsys.table[i].SizeSectors)
			if end > nextFree {
				nextFree = end
			}
		}
	}

	fsys.nextFree = nextFree

	return fsys, nil
}

// ListFiles returns the used entries in table order (spec §4.12).
func (f *FileSystem) ListFiles() []FileEntry {
	f.mut.Lock()
	defer f.mut.Unlock()

	out := make([]FileEntry, 0, f.super.FileCount)

	for _, e := range f.table {
		if e.Used() {
			out = append(out, e)
		}
	}

	return out
}

func validateName(name string) error {
	if len(name) < 1 || len(name) > NameMaxLen {
		return ErrBadName
	}

	return nil
}

func (f *FileSystem) findByName(name string) (int, *FileEntry) {
	for i := range f.table {
		if f.table[i].Used() && f.table[i].nameString() == name {
			return i, &f.table[i]
		}
	}

	return -1, nil
}

func (f *FileSystem) findFree() int {
	for i := range f.table {
		if !f.table[i].Used() {
			return i
		}
	}

	return -1
}

func ceilSectors(sizeBytes uint32) uint64 {
	return (uint64(sizeBytes) + virtio.SectorSize - 1) / virtio.SectorSize
}

// CreateFile validates the name, rejects duplicates, reserves the next free
// entry and sector extent, and persists the superblock and file table
// (spec §4.12).
func (f *FileSystem) CreateFile(name string, sizeBytes uint32) error {
	f.mut.Lock()
	defer f.mut.Unlock()

	if err := validateName(name); err != nil {
		return err
	}

	if idx, _ := f.findByName(name); idx >= 0 {
		return ErrDuplicateName
	}

	slot := f.findFree()
	if slot < 0 {
		return fmt.Errorf("fs: %w: file table full", ErrOutOfSpace)
	}

	sizeSectors := ceilSectors(sizeBytes)
	if f.nextFree+sizeSectors > f.super.TotalSectors {
		return ErrOutOfSpace
	}

	var entry FileEntry
	copy(entry.Name[:], name)
	entry.StartSector = uint16(f.nextFree)
	entry.SizeSectors = uint16(sizeSectors)
	entry.SizeBytes = sizeBytes
	entry.Flags = flagUsed

	f.table[slot] = entry
	f.nextFree += sizeSectors
	f.super.FileCount++

	return f.persist()
}

// RenameFile updates only the name bytes of an existing entry (spec §4.12).
func (f *FileSystem) RenameFile(oldName, newName string) error {
	f.mut.Lock()
	defer f.mut.Unlock()

	if err := validateName(newName); err != nil {
		return err
	}

	if idx, _ := f.findByName(newName); idx >= 0 {
		return ErrDuplicateName
	}

	_, entry := f.findByName(oldName)
	if entry == nil {
		return ErrNotFound
	}

	entry.Name = [NameMaxLen]byte{}
	copy(entry.Name[:], newName)

	return f.persist()
}

// DeleteFile marks an entry free and decrements file_count without
// reclaiming its sectors (spec §4.12: "Sectors are not reclaimed").
func (f *FileSystem) DeleteFile(name string) error {
	f.mut.Lock()
	defer f.mut.Unlock()

	_, entry := f.findByName(name)
	if entry == nil {
		return ErrNotFound
	}

	*entry = FileEntry{}
	f.super.FileCount--

	return f.persist()
}

// WriteFile writes data into name's sector extent, zero-padding the tail of
// the last sector (spec §4.12).
func (f *FileSystem) WriteFile(name string, data []byte) error {
	f.mut.Lock()
	defer f.mut.Unlock()

	_, entry := f.findByName(name)
	if entry == nil {
		return ErrNotFound
	}

	if uint32(len(data)) > entry.SizeBytes {
		return ErrDataTooLarge
	}

	for i := 0; i < int(entry.SizeSectors); i++ {
		var sector [virtio.SectorSize]byte

		lo := i * virtio.SectorSize
		hi := lo + virtio.SectorSize
		if hi > len(data) {
			hi = len(data)
		}

		if lo < len(data) {
			copy(sector[:], data[lo:hi])
		}

		if err := f.disk.WriteSector(uint64(entry.StartSector)+uint64(i), &sector); err != nil {
			return fmt.Errorf("fs: write_file: %w", err)
		}
	}

	return nil
}

// ReadFile reads name's size_bytes into out, which must be at least that
// long, and returns the byte count read (spec §4.12).
func (f *FileSystem) ReadFile(name string, out []byte) (int, error) {
	f.mut.Lock()
	defer f.mut.Unlock()

	_, entry := f.findByName(name)
	if entry == nil {
		return 0, ErrNotFound
	}

	if uint32(len(out)) < entry.SizeBytes {
		return 0, ErrShortBuffer
	}

	for i := 0; i < int(entry.SizeSectors); i++ {
		var sector [virtio.SectorSize]byte
		if err := f.disk.ReadSector(uint64(entry.StartSector)+uint64(i), &sector); err != nil {
			return 0, fmt.Errorf("fs: read_file: %w", err)
		}

		lo := i * virtio.SectorSize
		hi := lo + virtio.SectorSize
		if hi > int(entry.SizeBytes) {
			hi = int(entry.SizeBytes)
		}

		if lo < int(entry.SizeBytes) {
			copy(out[lo:hi], sector[:hi-lo])
		}
	}

	return int(entry.SizeBytes), nil
}

// persist writes the superblock and file table sectors back to disk. Callers
// must hold f.mut. Grounded in the teacher's "static scratch buffer under a
// spinlock" pattern (spec §4.12): the buffers here are stack-local rather
// than package-level statics, since nothing in this core recurses into
// persist while holding f.mut.
func (f *FileSystem) persist() error {
	sbBuf, _ := f.super.MarshalBinary()

	var sbSector [virtio.SectorSize]byte
	copy(sbSector[:], sbBuf)

	if err := f.disk.WriteSector(superblockSector, &sbSector); err != nil {
		return fmt.Errorf("fs: persist: superblock: %w", err)
	}

	raw := make([]byte, fileTableSectors*virtio.SectorSize)

	for i, e := range f.table {
		e.marshalInto(raw[i*entrySize : (i+1)*entrySize])
	}

	for i := 0; i < fileTableSectors; i++ {
		var sector [virtio.SectorSize]byte
		copy(sector[:], raw[i*virtio.SectorSize:(i+1)*virtio.SectorSize])

		if err := f.disk.WriteSector(uint64(fileTableStartSector+i), &sector); err != nil {
			return fmt.Errorf("fs: persist: file table sector %d: %w", i, err)
		}
	}

	return nil
}
