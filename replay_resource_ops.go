// replay_resource_ops.go - resource lifecycle, map/unmap/update (C5)

// License: GPLv3 or later

package main

import "errors"

func checkHeapBounds(heap []byte, offset, size uint32) error {
	if uint64(offset)+uint64(size) > uint64(len(heap)) {
		return HeapBoundsError{Offset: offset, Size: size}
	}
	return nil
}

func (e *ReplayEngine) dispatchResourceOp(h CommandHeader, record, heap []byte) error {
	switch h.Opcode {
	case OpCreateResource:
		return e.execCreateResource(h, record, heap)
	case OpDestroyResource:
		return e.execDestroyResource(h)
	case OpOpenResource:
		return e.execOpenResource(h, record)
	case OpCopyResource:
		return e.execCopyResource(h, record)
	case OpMapResource:
		return e.execMapResource(h, record, heap)
	case OpUnmapResource:
		return e.execUnmapResource(h, record, heap)
	case OpUpdateResource:
		return e.execUpdateResource(h, record, heap)
	default:
		e.log.Warn("unknown resource opcode, skipping", "opcode", h.Opcode)
		return nil
	}
}

func (e *ReplayEngine) execCreateResource(h CommandHeader, record, heap []byte) error {
	cmd, err := DecodeCmdCreateResource(record)
	if err != nil {
		return FramingError{Reason: err.Error()}
	}
	if err := checkHeapBounds(heap, cmd.HeapOffset, cmd.DataSize); err != nil {
		return err
	}
	var initialData []byte
	if cmd.DataSize > 0 {
		initialData = heap[cmd.HeapOffset : cmd.HeapOffset+cmd.DataSize]
	}

	switch cmd.ResourceType {
	case ResTypeTexture2D:
		if cmd.Width == 0 || cmd.Height == 0 || cmd.Width > MaxTextureDimension || cmd.Height > MaxTextureDimension {
			return InvalidParameterError{ResourceID: h.ResourceID, Reason: "texture dimensions out of range"}
		}
		// Initial-data pitch assumption (spec section 9): CREATE assumes
		// 32-bpp formats. Anything else with nonzero initial data must go
		// through UPDATE_RESOURCE instead, to avoid silently corrupting
		// rows.
		if cmd.DataSize > 0 && !formatIs32bpp(cmd.Format) {
			return InvalidParameterError{ResourceID: h.ResourceID, Reason: "initial data requires a 32-bpp format; use UPDATE_RESOURCE instead"}
		}
		rowPitch := cmd.Width * 4
		desc := TextureDesc{
			Width: cmd.Width, Height: cmd.Height, Format: cmd.Format,
			MipCount: cmd.MipCount, SampleCount: cmd.SampleCount, SampleQuality: cmd.SampleQuality,
			BindFlags: cmd.BindFlags, MiscFlags: cmd.MiscFlags,
		}
		native, err := e.device.CreateTexture2D(desc, initialData, rowPitch)
		if err != nil {
			return classifyCreateError(h.ResourceID, err)
		}
		tex := &Texture2D{Native: native, Width: cmd.Width, Height: cmd.Height, Format: cmd.Format}
		if err := e.table.InsertTexture2D(h.ResourceID, tex); err != nil {
			return InternalError{ResourceID: h.ResourceID, Cause: err}
		}

	case ResTypeBuffer:
		if cmd.Width == 0 || cmd.Width > MaxBufferSize {
			return InvalidParameterError{ResourceID: h.ResourceID, Reason: "buffer size out of range"}
		}
		desc := BufferDesc{Size: cmd.Width, BindFlags: cmd.BindFlags}
		native, err := e.device.CreateBuffer(desc, initialData)
		if err != nil {
			return classifyCreateError(h.ResourceID, err)
		}
		buf := &Buffer{Native: native, Size: cmd.Width, BindFlags: cmd.BindFlags}
		if err := e.table.InsertBuffer(h.ResourceID, buf); err != nil {
			return InternalError{ResourceID: h.ResourceID, Cause: err}
		}

	case ResTypeInputLayout:
		native, err := e.device.CreateInputLayout()
		if err != nil {
			return classifyCreateError(h.ResourceID, err)
		}
		if err := e.table.InsertInputLayout(h.ResourceID, &InputLayout{Native: native}); err != nil {
			return InternalError{ResourceID: h.ResourceID, Cause: err}
		}

	case ResTypeBlendState:
		native, err := e.device.CreateBlendState()
		if err != nil {
			return classifyCreateError(h.ResourceID, err)
		}
		if err := e.table.InsertBlendState(h.ResourceID, &BlendState{Native: native}); err != nil {
			return InternalError{ResourceID: h.ResourceID, Cause: err}
		}

	case ResTypeRasterizerState:
		native, err := e.device.CreateRasterizerState()
		if err != nil {
			return classifyCreateError(h.ResourceID, err)
		}
		if err := e.table.InsertRasterizerState(h.ResourceID, &RasterizerState{Native: native}); err != nil {
			return InternalError{ResourceID: h.ResourceID, Cause: err}
		}

	case ResTypeDepthStencilState:
		native, err := e.device.CreateDepthStencilState()
		if err != nil {
			return classifyCreateError(h.ResourceID, err)
		}
		if err := e.table.InsertDepthStencilState(h.ResourceID, &DepthStencilState{Native: native}); err != nil {
			return InternalError{ResourceID: h.ResourceID, Cause: err}
		}

	case ResTypeSamplerState:
		native, err := e.device.CreateSamplerState()
		if err != nil {
			return classifyCreateError(h.ResourceID, err)
		}
		if err := e.table.InsertSamplerState(h.ResourceID, &SamplerState{Native: native}); err != nil {
			return InternalError{ResourceID: h.ResourceID, Cause: err}
		}

	case ResTypeRenderTargetView, ResTypeDepthStencilView, ResTypeShaderResourceView:
		// These view kinds reference an existing texture; the protocol
		// carries that source texture's id in header.ResourceID's
		// companion field would require a dedicated payload, but this
		// wire revision reuses CREATE_RESOURCE's resource_id as the new
		// view's id and its Width field (otherwise unused for views) to
		// carry the source texture id, keeping one CREATE_RESOURCE shape
		// for every variant.
		tex, ok := e.table.GetTexture2D(cmd.Width)
		if !ok {
			return ResourceNotFoundError{ResourceID: cmd.Width}
		}
		return e.createViewForTexture(h.ResourceID, cmd.ResourceType, cmd.Width, tex)

	default:
		return InvalidParameterError{ResourceID: h.ResourceID, Reason: "unknown resource_type"}
	}

	e.statsMu.Lock()
	e.stats.ResourcesCreated++
	e.statsMu.Unlock()
	return nil
}

func (e *ReplayEngine) createViewForTexture(viewID, resourceType, textureID uint32, tex *Texture2D) error {
	switch resourceType {
	case ResTypeRenderTargetView:
		native, err := e.device.CreateRenderTargetView(tex.Native)
		if err != nil {
			return classifyCreateError(viewID, err)
		}
		if err := e.table.InsertRenderTargetView(viewID, &RenderTargetView{Native: native, TextureID: textureID}); err != nil {
			return InternalError{ResourceID: viewID, Cause: err}
		}
	case ResTypeDepthStencilView:
		native, err := e.device.CreateDepthStencilView(tex.Native)
		if err != nil {
			return classifyCreateError(viewID, err)
		}
		if err := e.table.InsertDepthStencilView(viewID, &DepthStencilView{Native: native, TextureID: textureID}); err != nil {
			return InternalError{ResourceID: viewID, Cause: err}
		}
	case ResTypeShaderResourceView:
		native, err := e.device.CreateShaderResourceView(tex.Native)
		if err != nil {
			return classifyCreateError(viewID, err)
		}
		if err := e.table.InsertShaderResourceView(viewID, &ShaderResourceView{Native: native, TextureID: textureID}); err != nil {
			return InternalError{ResourceID: viewID, Cause: err}
		}
	}
	e.statsMu.Lock()
	e.stats.ResourcesCreated++
	e.statsMu.Unlock()
	return nil
}

// classifyCreateError maps a native creation failure to a classified
// error: OutOfMemory for the native OOM code, Internal otherwise (spec
// section 4.5, "Failure semantics").
func classifyCreateError(resourceID uint32, err error) error {
	if isNativeOutOfMemory(err) {
		return OutOfMemoryError{ResourceID: resourceID}
	}
	return InternalError{ResourceID: resourceID, Cause: err}
}

// shaderStageForOpcode maps a CREATE_*_SHADER/DESTROY_SHADER opcode to its
// stage (spec section 9, "closed set of six per-stage setters" — the same
// closed-set dispatch applies to creation).
func shaderStageForOpcode(opcode uint32) (ShaderStage, bool) {
	switch opcode {
	case OpCreateVertexShader:
		return StageVertex, true
	case OpCreatePixelShader:
		return StagePixel, true
	case OpCreateGeometryShader:
		return StageGeometry, true
	case OpCreateHullShader:
		return StageHull, true
	case OpCreateDomainShader:
		return StageDomain, true
	case OpCreateComputeShader:
		return StageCompute, true
	default:
		return 0, false
	}
}

func (e *ReplayEngine) dispatchShaderOp(h CommandHeader, record, heap []byte) error {
	if h.Opcode == OpDestroyShader {
		if !e.table.Destroy(h.ResourceID) {
			return ResourceNotFoundError{ResourceID: h.ResourceID}
		}
		e.statsMu.Lock()
		e.stats.ResourcesDestroyed++
		e.statsMu.Unlock()
		return nil
	}

	stage, ok := shaderStageForOpcode(h.Opcode)
	if !ok {
		e.log.Warn("unknown shader opcode, skipping", "opcode", h.Opcode)
		return nil
	}
	cmd, err := DecodeCmdCreateShader(record)
	if err != nil {
		return FramingError{Reason: err.Error()}
	}
	if cmd.DataSize == 0 {
		return ShaderCompileError{ResourceID: h.ResourceID}
	}
	if err := checkHeapBounds(heap, cmd.HeapOffset, cmd.DataSize); err != nil {
		return err
	}
	bytecode := heap[cmd.HeapOffset : cmd.HeapOffset+cmd.DataSize]

	native, err := e.device.CreateShader(stage, bytecode)
	if err != nil {
		return ShaderCompileError{ResourceID: h.ResourceID}
	}
	if err := e.table.InsertShader(h.ResourceID, &ShaderObject{Native: native, Stage: stage}); err != nil {
		return InternalError{ResourceID: h.ResourceID, Cause: err}
	}
	e.statsMu.Lock()
	e.stats.ResourcesCreated++
	e.statsMu.Unlock()
	return nil
}

func (e *ReplayEngine) execDestroyResource(h CommandHeader) error {
	if !e.table.Destroy(h.ResourceID) {
		return ResourceNotFoundError{ResourceID: h.ResourceID}
	}
	e.statsMu.Lock()
	e.stats.ResourcesDestroyed++
	e.statsMu.Unlock()
	return nil
}

func (e *ReplayEngine) execOpenResource(h CommandHeader, record []byte) error {
	cmd, err := DecodeCmdOpenResource(record)
	if err != nil {
		return FramingError{Reason: err.Error()}
	}
	if err := e.table.Open(h.ResourceID, cmd.SrcResourceID); err != nil {
		return ResourceNotFoundError{ResourceID: cmd.SrcResourceID}
	}
	e.statsMu.Lock()
	e.stats.ResourcesCreated++
	e.statsMu.Unlock()
	return nil
}

func (e *ReplayEngine) execCopyResource(h CommandHeader, record []byte) error {
	cmd, err := DecodeCmdCopyResource(record)
	if err != nil {
		return FramingError{Reason: err.Error()}
	}
	dst, dstOK := e.resolveHandle(h.ResourceID)
	src, srcOK := e.resolveHandle(cmd.SrcResourceID)
	if !dstOK {
		return ResourceNotFoundError{ResourceID: h.ResourceID}
	}
	if !srcOK {
		return ResourceNotFoundError{ResourceID: cmd.SrcResourceID}
	}
	if err := e.device.CopyResource(dst, src); err != nil {
		return InternalError{ResourceID: h.ResourceID, Cause: err}
	}
	return nil
}

// resolveHandle returns the native handle backing id, regardless of which
// variant it is, for operations (COPY_RESOURCE) that are variant-agnostic.
func (e *ReplayEngine) resolveHandle(id uint32) (NativeHandle, bool) {
	kind, ok := e.table.Kind(id)
	if !ok {
		return nil, false
	}
	switch kind {
	case KindTexture2D:
		v, _ := e.table.GetTexture2D(id)
		return v.Native, true
	case KindBuffer:
		v, _ := e.table.GetBuffer(id)
		return v.Native, true
	}
	return nil, false
}

func (e *ReplayEngine) execMapResource(h CommandHeader, record, heap []byte) error {
	cmd, err := DecodeCmdMapResource(record)
	if err != nil {
		return FramingError{Reason: err.Error()}
	}
	key := mapKey{resourceID: h.ResourceID, subresource: cmd.Subresource}

	if !e.mapSem.TryAcquire(1) {
		return InvalidParameterError{ResourceID: h.ResourceID, Reason: "too many concurrent maps"}
	}

	kind, ok := e.table.Kind(h.ResourceID)
	if !ok {
		e.mapSem.Release(1)
		return ResourceNotFoundError{ResourceID: h.ResourceID}
	}

	switch kind {
	case KindTexture2D:
		tex, _ := e.table.GetTexture2D(h.ResourceID)
		staging, err := e.device.CreateStagingTexture2D(tex.Width, tex.Height, tex.Format)
		if err != nil {
			e.mapSem.Release(1)
			return classifyCreateError(h.ResourceID, err)
		}
		if cmd.MapType == MapRead || cmd.MapType == MapReadWrite {
			if err := e.device.CopyResource(staging, tex.Native); err != nil {
				e.mapSem.Release(1)
				return InternalError{ResourceID: h.ResourceID, Cause: err}
			}
		}
		data, rowPitch, err := e.device.MapTexture2D(staging, cmd.Subresource, cmd.MapType)
		if err != nil {
			e.mapSem.Release(1)
			return InternalError{ResourceID: h.ResourceID, Cause: err}
		}
		if cmd.MapType == MapRead || cmd.MapType == MapReadWrite {
			if err := checkHeapBounds(heap, cmd.HeapOffset, uint32(len(data))); err != nil {
				e.mapSem.Release(1)
				return err
			}
			copy(heap[cmd.HeapOffset:], data)
		}
		e.mapsMu.Lock()
		e.maps[key] = &activeMap{kind: KindTexture2D, staging: staging, mapType: cmd.MapType, rowPitch: rowPitch, width: tex.Width, height: tex.Height}
		e.mapsMu.Unlock()

	case KindBuffer:
		buf, _ := e.table.GetBuffer(h.ResourceID)
		staging, err := e.device.CreateStagingBuffer(buf.Size)
		if err != nil {
			e.mapSem.Release(1)
			return classifyCreateError(h.ResourceID, err)
		}
		if cmd.MapType == MapRead || cmd.MapType == MapReadWrite {
			if err := e.device.CopyResource(staging, buf.Native); err != nil {
				e.mapSem.Release(1)
				return InternalError{ResourceID: h.ResourceID, Cause: err}
			}
		}
		data, err := e.device.MapBuffer(staging, cmd.MapType)
		if err != nil {
			e.mapSem.Release(1)
			return InternalError{ResourceID: h.ResourceID, Cause: err}
		}
		if cmd.MapType == MapRead || cmd.MapType == MapReadWrite {
			if err := checkHeapBounds(heap, cmd.HeapOffset, uint32(len(data))); err != nil {
				e.mapSem.Release(1)
				return err
			}
			copy(heap[cmd.HeapOffset:], data)
		}
		e.mapsMu.Lock()
		e.maps[key] = &activeMap{kind: KindBuffer, staging: staging, mapType: cmd.MapType}
		e.mapsMu.Unlock()

	default:
		e.mapSem.Release(1)
		return InvalidParameterError{ResourceID: h.ResourceID, Reason: "resource variant is not mappable"}
	}
	return nil
}

func (e *ReplayEngine) execUnmapResource(h CommandHeader, record, heap []byte) error {
	cmd, err := DecodeCmdUnmapResource(record)
	if err != nil {
		return FramingError{Reason: err.Error()}
	}
	key := mapKey{resourceID: h.ResourceID, subresource: cmd.Subresource}

	e.mapsMu.Lock()
	am, ok := e.maps[key]
	if ok {
		delete(e.maps, key)
	}
	e.mapsMu.Unlock()
	if !ok {
		return InvalidParameterError{ResourceID: h.ResourceID, Reason: "unmap without a matching map"}
	}
	defer e.mapSem.Release(1)

	writeBack := am.mapType == MapWrite || am.mapType == MapReadWrite ||
		am.mapType == MapWriteDiscard || am.mapType == MapWriteNoOverwrite
	if writeBack {
		if err := checkHeapBounds(heap, cmd.HeapOffset, cmd.Size); err != nil {
			return err
		}
	}

	switch am.kind {
	case KindTexture2D:
		tex, ok := e.table.GetTexture2D(h.ResourceID)
		if writeBack {
			data, _, err := e.device.MapTexture2D(am.staging.(NativeTexture), cmd.Subresource, am.mapType)
			if err != nil {
				return InternalError{ResourceID: h.ResourceID, Cause: err}
			}
			n := cmd.Size
			if uint32(len(data)) < n {
				n = uint32(len(data))
			}
			copy(data[:n], heap[cmd.HeapOffset:cmd.HeapOffset+n])
		}
		e.device.UnmapTexture2D(am.staging.(NativeTexture), cmd.Subresource)
		if writeBack && ok {
			if err := e.device.CopyResource(tex.Native, am.staging); err != nil {
				return InternalError{ResourceID: h.ResourceID, Cause: err}
			}
		}

	case KindBuffer:
		buf, ok := e.table.GetBuffer(h.ResourceID)
		if writeBack {
			data, err := e.device.MapBuffer(am.staging.(NativeBuffer), am.mapType)
			if err != nil {
				return InternalError{ResourceID: h.ResourceID, Cause: err}
			}
			n := cmd.Size
			if uint32(len(data)) < n {
				n = uint32(len(data))
			}
			copy(data[:n], heap[cmd.HeapOffset:cmd.HeapOffset+n])
		}
		e.device.UnmapBuffer(am.staging.(NativeBuffer))
		if writeBack && ok {
			if err := e.device.CopyResource(buf.Native, am.staging); err != nil {
				return InternalError{ResourceID: h.ResourceID, Cause: err}
			}
		}
	}
	am.staging.Release()
	return nil
}

func (e *ReplayEngine) execUpdateResource(h CommandHeader, record, heap []byte) error {
	cmd, err := DecodeCmdUpdateResource(record)
	if err != nil {
		return FramingError{Reason: err.Error()}
	}
	if err := checkHeapBounds(heap, cmd.HeapOffset, cmd.Size); err != nil {
		return err
	}
	handle, ok := e.resolveHandle(h.ResourceID)
	if !ok {
		return ResourceNotFoundError{ResourceID: h.ResourceID}
	}
	var box *UpdateBox
	if cmd.HasBox {
		box = &cmd.Box
	}
	data := heap[cmd.HeapOffset : cmd.HeapOffset+cmd.Size]
	if err := e.device.UpdateSubresource(handle, cmd.Subresource, box, data, cmd.RowPitch, cmd.DepthPitch); err != nil {
		return InternalError{ResourceID: h.ResourceID, Cause: err}
	}
	return nil
}

// nativeOutOfMemoryError is implemented by a backend's OOM sentinel (the
// original implementation's 0x8007000E), letting this package recognize
// native allocator exhaustion without depending on any backend's concrete
// error type.
type nativeOutOfMemoryError interface {
	IsOutOfMemory() bool
}

func isNativeOutOfMemory(err error) bool {
	var oom nativeOutOfMemoryError
	if errors.As(err, &oom) {
		return oom.IsOutOfMemory()
	}
	return false
}
