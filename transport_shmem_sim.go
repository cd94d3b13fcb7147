// transport_shmem_sim.go - in-process shared-memory transport for tests
// and non-POSIX development builds

// License: GPLv3 or later

package main

import "fmt"

// simMemoryTransport backs SharedMemory with a plain Go byte slice instead
// of a real mmap'd region. It resolves the "hypervisor publishes shared
// memory" external dependency spec section 1 places out of scope: there is
// no hypervisor in a unit test, so the guest side of the region is driven
// directly by the test via ControlRegion()/Ring()/Heap().
type simMemoryTransport struct {
	buf     []byte
	control *ControlRegion
	ring    []byte
	heap    []byte
}

// NewSimSharedMemory allocates a region of the given total size with the
// ring and heap laid out immediately after the 4096-byte control region,
// and writes a valid control-region header.
func NewSimSharedMemory(totalSize, ringSize, heapSize uint64) (*simMemoryTransport, error) {
	if totalSize < ControlRegionSize+ringSize+heapSize {
		return nil, fmt.Errorf("requested total size %d too small for control region + ring (%d) + heap (%d)",
			totalSize, ringSize, heapSize)
	}
	buf := make([]byte, totalSize)
	control, err := NewControlRegion(buf)
	if err != nil {
		return nil, err
	}
	ringOff := uint32(ControlRegionSize)
	heapOff := ringOff + uint32(ringSize)
	control.InitLayout(ringOff, uint32(ringSize), heapOff, uint32(heapSize), FeaturesMVP)

	return &simMemoryTransport{
		buf:     buf,
		control: control,
		ring:    buf[ringOff : ringOff+uint32(ringSize)],
		heap:    buf[heapOff : heapOff+uint32(heapSize)],
	}, nil
}

func (t *simMemoryTransport) ControlRegion() *ControlRegion { return t.control }
func (t *simMemoryTransport) Ring() []byte                  { return t.ring }
func (t *simMemoryTransport) Heap() []byte                  { return t.heap }

func (t *simMemoryTransport) ReadPending() []byte { return readPendingFrom(t.control, t.ring) }
func (t *simMemoryTransport) Advance(n uint64)     { advanceConsumer(t.control, n) }
func (t *simMemoryTransport) CompleteFence(v uint64) {
	t.control.SetHostFenceCompleted(v)
}
func (t *simMemoryTransport) Close() error { return nil }

// PushRecord is a test/dev helper emulating the guest side: it writes data
// at the current producer position (padding with a no-op record if it
// would straddle the wrap) and release-stores the advanced producer_ptr.
func (t *simMemoryTransport) PushRecord(data []byte) error {
	R := uint64(len(t.ring))
	producer := t.control.ProducerPtr()
	start := producer % R
	toWrapEnd := R - start

	if uint64(len(data)) > toWrapEnd {
		if toWrapEnd < CommandHeaderSize {
			return fmt.Errorf("wrap gap %d smaller than command header", toWrapEnd)
		}
		pad := CommandHeader{Opcode: 0, SizeTotal: uint32(toWrapEnd), ResourceID: 0, Flags: 0}
		pad.Encode(t.ring[start:])
		for i := CommandHeaderSize; i < int(toWrapEnd); i++ {
			t.ring[start+uint64(i)] = 0
		}
		producer += toWrapEnd
		start = 0
		toWrapEnd = R
	}
	if uint64(len(data)) > toWrapEnd {
		return fmt.Errorf("record of %d bytes exceeds ring size %d", len(data), R)
	}
	copy(t.ring[start:start+uint64(len(data))], data)
	producer += uint64(len(data))
	t.control.SetProducerPtr(producer)
	return nil
}
