// transport_shmem.go - POSIX shared-memory transport

// License: GPLv3 or later

package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// SharedMemory is the transport interface the service loop and replay
// engine depend on. Two implementations exist: SharedMemoryTransport (a
// real mmap'd POSIX shared-memory object) and simMemoryTransport (a plain
// Go slice, used by tests and non-Linux development builds).
type SharedMemory interface {
	ControlRegion() *ControlRegion
	Ring() []byte
	Heap() []byte
	ReadPending() []byte
	Advance(n uint64)
	CompleteFence(v uint64)
	Close() error
}

// SharedMemoryTransport maps a named region under shmemPath (conventionally
// /dev/shm/<name>, matching how a hypervisor-backed POSIX shm object would
// be published) and exposes the control region, ring, and heap views over
// it.
type SharedMemoryTransport struct {
	file *os.File
	buf  []byte

	control *ControlRegion
	ring    []byte
	heap    []byte
}

// OpenSharedMemory opens and maps an existing shared-memory object of at
// least size bytes, and validates its control-region header.
func OpenSharedMemory(shmemPath string, size uint64) (*SharedMemoryTransport, error) {
	if size < ControlRegionSize {
		return nil, fmt.Errorf("shared memory size %d smaller than control region (%d)", size, ControlRegionSize)
	}

	f, err := os.OpenFile(shmemPath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open shared memory %q: %w", shmemPath, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat shared memory %q: %w", shmemPath, err)
	}
	if uint64(info.Size()) < size {
		f.Close()
		return nil, fmt.Errorf("shared memory %q is %d bytes, want at least %d", shmemPath, info.Size(), size)
	}

	buf, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap shared memory %q: %w", shmemPath, err)
	}

	control, err := NewControlRegion(buf)
	if err != nil {
		unix.Munmap(buf)
		f.Close()
		return nil, err
	}
	if err := ValidateControlRegion(control); err != nil {
		unix.Munmap(buf)
		f.Close()
		return nil, err
	}

	t := &SharedMemoryTransport{file: f, buf: buf, control: control}
	if err := t.bindViews(); err != nil {
		unix.Munmap(buf)
		f.Close()
		return nil, err
	}
	return t, nil
}

func (t *SharedMemoryTransport) bindViews() error {
	ringOff, ringSize := t.control.RingOffset(), t.control.RingSize()
	heapOff, heapSize := t.control.HeapOffset(), t.control.HeapSize()
	if uint64(ringOff)+uint64(ringSize) > uint64(len(t.buf)) {
		return fmt.Errorf("ring region [%d, %d) exceeds mapped size %d", ringOff, ringOff+ringSize, len(t.buf))
	}
	if uint64(heapOff)+uint64(heapSize) > uint64(len(t.buf)) {
		return fmt.Errorf("heap region [%d, %d) exceeds mapped size %d", heapOff, heapOff+heapSize, len(t.buf))
	}
	t.ring = t.buf[ringOff : ringOff+ringSize]
	t.heap = t.buf[heapOff : heapOff+heapSize]
	return nil
}

func (t *SharedMemoryTransport) ControlRegion() *ControlRegion { return t.control }
func (t *SharedMemoryTransport) Ring() []byte                  { return t.ring }
func (t *SharedMemoryTransport) Heap() []byte                  { return t.heap }

// ReadPending returns the contiguous unread slice of the ring, never
// crossing the wrap point (spec section 4.2).
func (t *SharedMemoryTransport) ReadPending() []byte {
	return readPendingFrom(t.control, t.ring)
}

// Advance release-stores consumer_ptr += n.
func (t *SharedMemoryTransport) Advance(n uint64) {
	advanceConsumer(t.control, n)
}

// CompleteFence release-stores host_fence_completed := v.
func (t *SharedMemoryTransport) CompleteFence(v uint64) {
	t.control.SetHostFenceCompleted(v)
}

// Close unmaps the region and closes the backing file descriptor.
func (t *SharedMemoryTransport) Close() error {
	if err := unix.Munmap(t.buf); err != nil {
		t.file.Close()
		return err
	}
	return t.file.Close()
}

// readPendingFrom and advanceConsumer are shared between the real and
// simulated transports so the ring-wrap logic has exactly one
// implementation.
func readPendingFrom(c *ControlRegion, ring []byte) []byte {
	R := uint64(len(ring))
	if R == 0 {
		return nil
	}
	producer := c.ProducerPtr()
	consumer := c.ConsumerPtr()
	pending := producer - consumer
	if pending == 0 {
		return nil
	}
	start := consumer % R
	toWrapEnd := R - start
	n := pending
	if n > toWrapEnd {
		n = toWrapEnd
	}
	return ring[start : start+n]
}

func advanceConsumer(c *ControlRegion, n uint64) {
	c.SetConsumerPtr(c.ConsumerPtr() + n)
}
