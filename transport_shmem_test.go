package main

import "testing"

func TestControlRegionLayout(t *testing.T) {
	buf := make([]byte, ControlRegionSize)
	c, err := NewControlRegion(buf)
	if err != nil {
		t.Fatalf("NewControlRegion: %v", err)
	}
	if len(buf) != ControlRegionSize {
		t.Fatalf("control region size = %d, want %d", len(buf), ControlRegionSize)
	}
	seen := map[int]bool{}
	for _, off := range cacheLineOffsets {
		if off%cacheLineSize+8 > cacheLineSize {
			t.Errorf("counter at 0x%03X straddles a 64-byte cache line", off)
		}
		line := off / cacheLineSize
		if seen[line] {
			t.Errorf("offset 0x%03X shares a cache line with another hot counter", off)
		}
		seen[line] = true
	}
	_ = c
}

func TestControlRegionTooSmall(t *testing.T) {
	if _, err := NewControlRegion(make([]byte, ControlRegionSize-1)); err == nil {
		t.Fatal("expected error for undersized buffer")
	}
}

func TestValidateControlRegion(t *testing.T) {
	buf := make([]byte, ControlRegionSize)
	c, _ := NewControlRegion(buf)
	c.InitLayout(ControlRegionSize, 1024, ControlRegionSize+1024, 4096, FeaturesMVP)
	if err := ValidateControlRegion(c); err != nil {
		t.Fatalf("expected valid region, got %v", err)
	}

	bad := make([]byte, ControlRegionSize)
	badC, _ := NewControlRegion(bad)
	if err := ValidateControlRegion(badC); err == nil {
		t.Fatal("expected error for zero magic")
	}
}

func TestErrorSettingSetsStatusBit(t *testing.T) {
	buf := make([]byte, ControlRegionSize)
	c, _ := NewControlRegion(buf)
	c.SetError(ErrDeviceLost, 7)
	if c.Status()&StatusError == 0 {
		t.Fatal("SetError with nonzero code must set StatusError")
	}
	if c.ErrorCode() != ErrDeviceLost || c.ErrorData() != 7 {
		t.Fatalf("got (%v, %d), want (%v, 7)", c.ErrorCode(), c.ErrorData(), ErrDeviceLost)
	}

	c.SetError(ErrSuccess, 0)
	if c.ErrorCode() != ErrSuccess {
		t.Fatalf("ErrorCode after clearing = %v, want SUCCESS", c.ErrorCode())
	}
}

func TestSimSharedMemoryReadPendingReturnsPushedRecord(t *testing.T) {
	const ringSize = 64
	tr, err := NewSimSharedMemory(ControlRegionSize+ringSize+256, ringSize, 256)
	if err != nil {
		t.Fatalf("NewSimSharedMemory: %v", err)
	}

	rec := make([]byte, CommandHeaderSize)
	CommandHeader{Opcode: OpFlush, SizeTotal: CommandHeaderSize}.Encode(rec)
	if err := tr.PushRecord(rec); err != nil {
		t.Fatalf("PushRecord: %v", err)
	}

	pending := tr.ReadPending()
	if len(pending) != CommandHeaderSize {
		t.Fatalf("ReadPending length = %d, want %d", len(pending), CommandHeaderSize)
	}
	h, err := DecodeCommandHeader(pending)
	if err != nil {
		t.Fatalf("DecodeCommandHeader: %v", err)
	}
	if h.Opcode != OpFlush {
		t.Fatalf("opcode = 0x%X, want 0x%X", h.Opcode, OpFlush)
	}

	tr.Advance(uint64(len(pending)))
	if got := tr.ReadPending(); len(got) != 0 {
		t.Fatalf("ReadPending after full advance = %d bytes, want 0", len(got))
	}
}

func TestSimSharedMemoryPushRecordPadsAtWrap(t *testing.T) {
	const ringSize = 48
	tr, err := NewSimSharedMemory(ControlRegionSize+ringSize+256, ringSize, 256)
	if err != nil {
		t.Fatalf("NewSimSharedMemory: %v", err)
	}

	first := make([]byte, CommandHeaderSize+16)
	CommandHeader{Opcode: OpFlush, SizeTotal: uint32(len(first))}.Encode(first)
	if err := tr.PushRecord(first); err != nil {
		t.Fatalf("PushRecord(first): %v", err)
	}
	tr.Advance(uint64(len(first)))

	// 48 - 32 = 16 bytes left before wrap, enough to hold a pad header but
	// not the next 20-byte record, so PushRecord must insert a pad record
	// before writing it at the start of the ring.
	second := make([]byte, CommandHeaderSize+4)
	CommandHeader{Opcode: OpFence, SizeTotal: uint32(len(second))}.Encode(second)
	if err := tr.PushRecord(second); err != nil {
		t.Fatalf("PushRecord(second): %v", err)
	}
	tr.Advance(16) // consume the pad record first, exactly as the drain loop would

	pending := tr.ReadPending()
	h, err := DecodeCommandHeader(pending)
	if err != nil {
		t.Fatalf("DecodeCommandHeader: %v", err)
	}
	if h.Opcode != OpFence {
		t.Fatalf("opcode after consuming pad = 0x%X, want 0x%X", h.Opcode, OpFence)
	}
}

func TestCompleteFenceNeverDecreasesObservedValue(t *testing.T) {
	tr, err := NewSimSharedMemory(ControlRegionSize+64+64, 64, 64)
	if err != nil {
		t.Fatalf("NewSimSharedMemory: %v", err)
	}
	tr.CompleteFence(5)
	if tr.ControlRegion().HostFenceCompleted() != 5 {
		t.Fatalf("HostFenceCompleted = %d, want 5", tr.ControlRegion().HostFenceCompleted())
	}
	tr.CompleteFence(9)
	if tr.ControlRegion().HostFenceCompleted() != 9 {
		t.Fatalf("HostFenceCompleted = %d, want 9", tr.ControlRegion().HostFenceCompleted())
	}
}
