// replay_engine.go - per-opcode translation to native GPU calls (C5)

// License: GPLv3 or later

package main

import (
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Stats mirrors the original implementation's CommandProcessorStats: a
// read-only snapshot of counters the operator console and service loop
// report, reset only on explicit request.
type Stats struct {
	CommandsProcessed  uint64
	DrawCalls          uint64
	Presents           uint64
	ResourcesCreated   uint64
	ResourcesDestroyed uint64
	Errors             uint64
}

// PendingPresent is the single-slot state a PRESENT command leaves for the
// service loop to act on (spec section 3).
type PendingPresent struct {
	BackbufferID uint32
	SyncInterval uint32
	Flags        uint32
}

// PendingResize is the single-slot state a RESIZE_BUFFERS command leaves
// for the service loop.
type PendingResize struct {
	SwapchainID uint32
	Width       uint32
	Height      uint32
}

type mapKey struct {
	resourceID  uint32
	subresource uint32
}

type activeMap struct {
	kind        ResourceKind // KindTexture2D or KindBuffer
	staging     NativeHandle
	mapType     MapType
	rowPitch    uint32
	depthPitch  uint32
	width       uint32
	height      uint32
}

// ReplayEngine exposes one public operation, ProcessCommand, that decodes
// and executes a single ring record against the resource table and native
// device (spec section 4.5).
type ReplayEngine struct {
	device NativeDevice
	table  *ResourceTable
	log    *slog.Logger

	currentFence   uint64
	pendingPresent *PendingPresent
	pendingResize  *PendingResize

	maps    map[mapKey]*activeMap
	mapsMu  sync.Mutex
	mapSem  *semaphore.Weighted

	statsMu sync.Mutex
	stats   Stats
}

// NewReplayEngine constructs an engine against device and table. maxConcurrentMaps
// bounds how many outstanding staging resources the guest may hold open at
// once (spec section 9, "Map-as-staging ... bounded by the guest" — here
// additionally enforced on the host side so a misbehaving guest cannot
// exhaust the staging budget unboundedly).
func NewReplayEngine(device NativeDevice, table *ResourceTable, maxConcurrentMaps int64, log *slog.Logger) *ReplayEngine {
	if log == nil {
		log = slog.Default()
	}
	return &ReplayEngine{
		device: device,
		table:  table,
		log:    log,
		maps:   make(map[mapKey]*activeMap),
		mapSem: semaphore.NewWeighted(maxConcurrentMaps),
	}
}

// CurrentFence returns the highest fence value FENCE has advanced to.
func (e *ReplayEngine) CurrentFence() uint64 { return e.currentFence }

// TakePendingPresent returns and clears the pending-present slot.
func (e *ReplayEngine) TakePendingPresent() *PendingPresent {
	p := e.pendingPresent
	e.pendingPresent = nil
	return p
}

// TakePendingResize returns and clears the pending-resize slot.
func (e *ReplayEngine) TakePendingResize() *PendingResize {
	r := e.pendingResize
	e.pendingResize = nil
	return r
}

// Stats returns a snapshot of the running counters.
func (e *ReplayEngine) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// ResetStats zeroes the counters.
func (e *ReplayEngine) ResetStats() {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	e.stats = Stats{}
}

func (e *ReplayEngine) bumpErrors() {
	e.statsMu.Lock()
	e.stats.Errors++
	e.statsMu.Unlock()
}

// ProcessCommand decodes one record from the front of data and executes
// it, returning the number of bytes consumed. A return of (0, nil) means
// the declared size_total exceeds the bytes available in data — the
// caller must wait for more of the ring to fill rather than treat this as
// an error (spec section 8, "Header size_total > pending bytes → wait, do
// not parse").
func (e *ReplayEngine) ProcessCommand(data, heap []byte) (int, error) {
	if len(data) < CommandHeaderSize {
		return 0, nil
	}
	h, err := DecodeCommandHeader(data)
	if err != nil {
		return 0, FramingError{Reason: err.Error()}
	}
	if h.SizeTotal < CommandHeaderSize {
		return 0, FramingError{Reason: "size_total smaller than command header"}
	}
	if int(h.SizeTotal) > len(data) {
		return 0, nil
	}
	record := data[:h.SizeTotal]

	e.statsMu.Lock()
	e.stats.CommandsProcessed++
	e.statsMu.Unlock()

	if h.Opcode == 0 {
		return int(h.SizeTotal), nil
	}

	var execErr error
	switch {
	case h.Opcode >= OpcodeResourceLo && h.Opcode <= OpcodeResourceHi && h.Opcode < OpcodeShaderLo:
		execErr = e.dispatchResourceOp(h, record, heap)
	case h.Opcode >= OpcodeShaderLo && h.Opcode <= OpcodeShaderHi:
		execErr = e.dispatchShaderOp(h, record, heap)
	case h.Opcode >= OpcodeStateLo && h.Opcode <= OpcodeStateHi:
		execErr = e.dispatchStateOp(h, record)
	case h.Opcode >= OpcodeDrawLo && h.Opcode <= OpcodeDrawHi:
		execErr = e.dispatchDrawOp(h, record)
	case h.Opcode >= OpcodeSyncLo && h.Opcode <= OpcodeSyncHi:
		execErr = e.dispatchSyncOp(h, record)
	default:
		e.log.Warn("unknown opcode, skipping", "opcode", h.Opcode, "size", h.SizeTotal)
		return int(h.SizeTotal), nil
	}

	if execErr != nil {
		if ce, ok := execErr.(ClassifiedError); ok {
			if ce.Fatal() {
				return int(h.SizeTotal), execErr
			}
			e.bumpErrors()
			e.log.Warn("command failed", "opcode", h.Opcode, "resource_id", h.ResourceID, "error", execErr)
			return int(h.SizeTotal), execErr
		}
		e.bumpErrors()
		return int(h.SizeTotal), InternalError{ResourceID: h.ResourceID, Cause: execErr}
	}
	return int(h.SizeTotal), nil
}

func (e *ReplayEngine) dispatchSyncOp(h CommandHeader, record []byte) error {
	switch h.Opcode {
	case OpFence:
		cmd, err := DecodeCmdFence(record)
		if err != nil {
			return FramingError{Reason: err.Error()}
		}
		// No flush here: the native API preserves in-order execution
		// within the context, and flushing on every fence would destroy
		// pipelining (spec section 4.5).
		if cmd.Value > e.currentFence {
			e.currentFence = cmd.Value
		}
		return nil

	case OpPresent:
		cmd, err := DecodeCmdPresent(record)
		if err != nil {
			return FramingError{Reason: err.Error()}
		}
		e.pendingPresent = &PendingPresent{
			BackbufferID: h.ResourceID,
			SyncInterval: cmd.SyncInterval,
			Flags:        cmd.PresentFlags,
		}
		e.device.Flush()
		e.statsMu.Lock()
		e.stats.Presents++
		e.statsMu.Unlock()
		return nil

	case OpFlush:
		e.device.Flush()
		return nil

	case OpWaitFence:
		// The replay engine is single-threaded with the native context;
		// WAIT_FENCE is a guest-side synchronization primitive honored by
		// the control region's host_fence_completed field, not something
		// that blocks the replay loop itself.
		return nil

	case OpResizeBuffers:
		cmd, err := DecodeCmdResizeBuffers(record)
		if err != nil {
			return FramingError{Reason: err.Error()}
		}
		e.pendingResize = &PendingResize{SwapchainID: cmd.SwapchainID, Width: cmd.Width, Height: cmd.Height}
		e.device.Flush()
		return nil

	default:
		e.log.Warn("unknown sync opcode, skipping", "opcode", h.Opcode)
		return nil
	}
}
