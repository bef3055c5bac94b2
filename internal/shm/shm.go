// Package shm implements the shared-memory publish step of C6's
// rollover: a single named POSIX shared-memory region ("RealTimeData",
// 4096 bytes) that the writer zero-fills and then writes the combined
// bar's JSON into under the data lock, with no framing beyond a NUL
// terminator. Grounded in golang.org/x/sys/unix (already an indirect
// dependency in the pack via alpaca-trade-api-go's go.mod) for the
// Mmap/Munmap calls — no POSIX-shm wrapper library exists anywhere in
// the pack, so this boundary is built directly on the syscall package.
package shm

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// RegionSize is the fixed size of the shared-memory region (§6).
const RegionSize = 4096

// RegionName is the shared-memory region's name, backed by a file under
// /dev/shm as this platform has no native named-segment API.
const RegionName = "RealTimeData"

// Writer owns the mmap'd region, writing under its own mutex. Open
// removes any stale region before creating a fresh one; Close removes
// it again, matching spec.md's "removed on start and on stop".
type Writer struct {
	mu   sync.Mutex
	path string
	fd   int
	data []byte
}

// Open creates (or re-creates) the named region at /dev/shm/<name>.
func Open(name string) (*Writer, error) {
	if name == "" {
		name = RegionName
	}
	path := "/dev/shm/" + name
	_ = os.Remove(path)

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm open %s: %w", path, err)
	}
	if err := unix.Ftruncate(fd, RegionSize); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm truncate %s: %w", path, err)
	}
	data, err := unix.Mmap(fd, 0, RegionSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm mmap %s: %w", path, err)
	}
	return &Writer{path: path, fd: fd, data: data}, nil
}

// Write zero-fills the region then copies payload starting at offset 0,
// NUL-terminated (truncating if payload would overflow the region).
func (w *Writer) Write(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.data == nil {
		return fmt.Errorf("shm region %s is closed", w.path)
	}
	for i := range w.data {
		w.data[i] = 0
	}
	n := len(payload)
	if n > RegionSize-1 {
		n = RegionSize - 1
	}
	copy(w.data[:n], payload[:n])
	w.data[n] = 0
	return nil
}

// Close unmaps and removes the region.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.data == nil {
		return nil
	}
	err := unix.Munmap(w.data)
	w.data = nil
	unix.Close(w.fd)
	_ = os.Remove(w.path)
	return err
}
