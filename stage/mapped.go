package stage

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/jbigot/ah5go/errors"
)

// MappedBuffer stages into a memory-mapped file created in a
// caller-nominated directory, page-aligned, optionally growable via
// unmap/truncate/remap.
type MappedBuffer struct {
	file     *os.File
	data     []byte
	used     int
	growable bool
	pageSize int
}

// NewMapped creates a staging file in dir and maps it. A zero capBytes
// means growable, starting at one page; a positive capBytes is rounded up
// to the page size and the buffer never grows beyond it.
func NewMapped(dir string, capBytes int) (*MappedBuffer, error) {
	pageSize := unix.Getpagesize()
	growable := capBytes == 0
	size := capBytes
	if size == 0 {
		size = pageSize
	}
	size = roundUp(size, pageSize)

	f, err := os.CreateTemp(dir, "ah5go-stage-*.bin")
	if err != nil {
		return nil, errors.E(errors.Storage, "stage: create mapped staging file", err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, errors.E(errors.Storage, "stage: size mapped staging file", err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, errors.E(errors.Storage, "stage: mmap staging file", err)
	}
	return &MappedBuffer{file: f, data: data, growable: growable, pageSize: pageSize}, nil
}

// EnsureCapacity grows the mapping to at least n bytes, page-aligned, if
// the strategy was constructed growable; otherwise it reports whether the
// fixed mapping already covers n.
func (b *MappedBuffer) EnsureCapacity(n int) (bool, error) {
	if len(b.data) >= n {
		return true, nil
	}
	if !b.growable {
		return false, nil
	}
	newSize := roundUp(n, b.pageSize)
	if err := unix.Munmap(b.data); err != nil {
		return false, errors.E(errors.Internal, "stage: unmap staging file", err)
	}
	if err := b.file.Truncate(int64(newSize)); err != nil {
		return false, errors.E(errors.Storage, "stage: grow mapped staging file", err)
	}
	data, err := unix.Mmap(int(b.file.Fd()), 0, newSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return false, errors.E(errors.Storage, "stage: remap staging file", err)
	}
	b.data = data
	return true, nil
}

// Reset rewinds the used length to zero.
func (b *MappedBuffer) Reset() { b.used = 0 }

// Remaining returns the unused mapped capacity.
func (b *MappedBuffer) Remaining() int { return len(b.data) - b.used }

// Take returns the next n bytes of the mapping and advances the cursor.
func (b *MappedBuffer) Take(n int) []byte {
	if n > b.Remaining() {
		panic("stage: MappedBuffer.Take exceeds remaining capacity")
	}
	s := b.data[b.used : b.used+n]
	b.used += n
	return s
}

// Close unmaps and removes the backing file.
func (b *MappedBuffer) Close() (err error) {
	name := b.file.Name()
	defer errors.CleanUp(func() error { return os.Remove(name) }, &err)
	defer errors.CleanUp(b.file.Close, &err)
	return unix.Munmap(b.data)
}
