// replay_engine_test.go - ProcessCommand dispatch and boundary behavior

// License: GPLv3 or later

package main

import "testing"

func encodeCreateTexture(resourceID uint32, width, height uint32) []byte {
	buf := make([]byte, cmdCreateResourceSize)
	CommandHeader{Opcode: OpCreateResource, SizeTotal: uint32(cmdCreateResourceSize), ResourceID: resourceID}.Encode(buf)
	b := buf[CommandHeaderSize:]
	putU32(b, 0, ResTypeTexture2D)
	putU32(b, 4, FormatRGBA8Unorm)
	putU32(b, 8, width)
	putU32(b, 12, height)
	return buf
}

func encodeCreateRenderTargetView(viewID, textureID uint32) []byte {
	buf := make([]byte, cmdCreateResourceSize)
	CommandHeader{Opcode: OpCreateResource, SizeTotal: uint32(cmdCreateResourceSize), ResourceID: viewID}.Encode(buf)
	b := buf[CommandHeaderSize:]
	putU32(b, 0, ResTypeRenderTargetView)
	putU32(b, 8, textureID) // Width doubles as source texture id for view creates
	return buf
}

func encodeClearRenderTarget(resourceID uint32, r, g, bl, a float32) []byte {
	buf := make([]byte, cmdClearRenderTargetSize)
	CommandHeader{Opcode: OpClearRenderTarget, SizeTotal: uint32(cmdClearRenderTargetSize), ResourceID: resourceID}.Encode(buf)
	b := buf[CommandHeaderSize:]
	putF32(b, 0, r)
	putF32(b, 4, g)
	putF32(b, 8, bl)
	putF32(b, 12, a)
	return buf
}

func encodeFence(value uint64) []byte {
	buf := make([]byte, cmdFenceSize)
	CommandHeader{Opcode: OpFence, SizeTotal: uint32(cmdFenceSize)}.Encode(buf)
	putU64(buf[CommandHeaderSize:], 0, value)
	return buf
}

func encodePresent(backbufferID, syncInterval uint32) []byte {
	buf := make([]byte, cmdPresentSize)
	CommandHeader{Opcode: OpPresent, SizeTotal: uint32(cmdPresentSize), ResourceID: backbufferID}.Encode(buf)
	b := buf[CommandHeaderSize:]
	putU32(b, 0, syncInterval)
	return buf
}

func putU64(dst []byte, off int, v uint64) {
	for i := 0; i < 8; i++ {
		dst[off+i] = byte(v >> (8 * i))
	}
}

func newTestEngine() (*ReplayEngine, *fakeDevice) {
	dev := newFakeDevice()
	table := NewResourceTable()
	return NewReplayEngine(dev, table, 8, nil), dev
}

func TestProcessCommandCreateTexture(t *testing.T) {
	e, _ := newTestEngine()
	cmd := encodeCreateTexture(1, 64, 64)
	n, err := e.ProcessCommand(cmd, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(cmd) {
		t.Fatalf("expected to consume %d bytes, consumed %d", len(cmd), n)
	}
	if _, ok := e.table.GetTexture2D(1); !ok {
		t.Fatalf("expected texture 1 to be present in the resource table")
	}
	if e.Stats().ResourcesCreated != 1 {
		t.Fatalf("expected ResourcesCreated=1, got %d", e.Stats().ResourcesCreated)
	}
}

func TestProcessCommandClearAndPresent(t *testing.T) {
	e, dev := newTestEngine()
	for _, cmd := range [][]byte{
		encodeCreateTexture(1, 64, 64),
		encodeCreateRenderTargetView(2, 1),
		encodeClearRenderTarget(2, 1, 0, 0, 1),
		encodePresent(1, 1),
	} {
		if _, err := e.ProcessCommand(cmd, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if dev.clears != 1 {
		t.Fatalf("expected one ClearRenderTargetView call, got %d", dev.clears)
	}
	pp := e.TakePendingPresent()
	if pp == nil {
		t.Fatalf("expected a pending present after OP_PRESENT")
	}
	if pp.BackbufferID != 1 || pp.SyncInterval != 1 {
		t.Fatalf("unexpected pending present: %+v", pp)
	}
	if e.TakePendingPresent() != nil {
		t.Fatalf("TakePendingPresent should clear the slot")
	}
}

func TestProcessCommandFenceAdvancesWithoutFlush(t *testing.T) {
	e, _ := newTestEngine()
	if _, err := e.ProcessCommand(encodeFence(42), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.CurrentFence() != 42 {
		t.Fatalf("expected CurrentFence=42, got %d", e.CurrentFence())
	}
}

func TestProcessCommandShortRecordWaitsForMoreData(t *testing.T) {
	e, _ := newTestEngine()
	full := encodeCreateTexture(1, 64, 64)
	n, err := e.ProcessCommand(full[:CommandHeaderSize+4], nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected (0, nil) when size_total exceeds available bytes, got n=%d", n)
	}
}

func TestProcessCommandUnknownOpcodeSkipsBySize(t *testing.T) {
	e, _ := newTestEngine()
	buf := make([]byte, CommandHeaderSize+16)
	CommandHeader{Opcode: 0x0199, SizeTotal: uint32(len(buf))}.Encode(buf)
	n, err := e.ProcessCommand(buf, nil)
	if err != nil {
		t.Fatalf("unknown opcode within a known range should not error, got %v", err)
	}
	if n != len(buf) {
		t.Fatalf("expected to advance by size_total=%d, got %d", len(buf), n)
	}
}

func TestProcessCommandClearUnknownTargetIsWarningNotError(t *testing.T) {
	e, _ := newTestEngine()
	cmd := encodeClearRenderTarget(99, 0, 0, 0, 1)
	n, err := e.ProcessCommand(cmd, nil)
	if err != nil {
		t.Fatalf("clear against an unknown rtv id should warn and continue, got error: %v", err)
	}
	if n != len(cmd) {
		t.Fatalf("expected %d bytes consumed, got %d", len(cmd), n)
	}
}

func TestProcessCommandFramingErrorIsFatal(t *testing.T) {
	e, _ := newTestEngine()
	buf := make([]byte, CommandHeaderSize)
	CommandHeader{Opcode: OpFence, SizeTotal: 4}.Encode(buf)
	_, err := e.ProcessCommand(buf, nil)
	if err == nil {
		t.Fatalf("expected a framing error for size_total smaller than the header")
	}
	ce, ok := err.(ClassifiedError)
	if !ok || !ce.Fatal() {
		t.Fatalf("expected a fatal ClassifiedError, got %v (%T)", err, err)
	}
}
