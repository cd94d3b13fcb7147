// replay_state_ops.go - pipeline state setters (C5)

// License: GPLv3 or later

package main

// resolveSamplers builds a native sampler slice from a wire id array,
// logging and leaving a nil slot for any id that is missing or of the
// wrong variant rather than failing the whole command (spec section 4.5,
// "A wrong-type id is logged and the setter is a no-op for that slot").
func (e *ReplayEngine) resolveSamplers(ids []uint32) []NativeSamplerState {
	out := make([]NativeSamplerState, len(ids))
	for i, id := range ids {
		if id == 0 {
			continue
		}
		v, ok := e.table.GetSamplerState(id)
		if !ok {
			e.log.Warn("set_samplers: missing or wrong-type sampler id, leaving slot unbound", "id", id)
			continue
		}
		out[i] = v.Native
	}
	return out
}

func (e *ReplayEngine) resolveShaderResources(ids []uint32) []NativeShaderResourceView {
	out := make([]NativeShaderResourceView, len(ids))
	for i, id := range ids {
		if id == 0 {
			continue
		}
		v, ok := e.table.GetShaderResourceView(id)
		if !ok {
			e.log.Warn("set_shader_resources: missing or wrong-type srv id, leaving slot unbound", "id", id)
			continue
		}
		out[i] = v.Native
	}
	return out
}

func (e *ReplayEngine) dispatchStateOp(h CommandHeader, record []byte) error {
	switch h.Opcode {
	case OpSetRenderTarget:
		cmd, err := DecodeCmdSetRenderTarget(record)
		if err != nil {
			return FramingError{Reason: err.Error()}
		}
		n := int(cmd.NumRTV)
		if n > MaxRenderTargets {
			n = MaxRenderTargets
		}
		rtvs := make([]NativeRenderTargetView, 0, n)
		for i := 0; i < n; i++ {
			id := cmd.RTVIDs[i]
			if id == 0 {
				continue
			}
			v, ok := e.table.GetRenderTargetView(id)
			if !ok {
				e.log.Warn("set_render_target: missing or wrong-type rtv id, skipping slot", "id", id)
				continue
			}
			rtvs = append(rtvs, v.Native)
		}
		var dsv NativeDepthStencilView
		if cmd.DSVID != 0 {
			if v, ok := e.table.GetDepthStencilView(cmd.DSVID); ok {
				dsv = v.Native
			} else {
				e.log.Warn("set_render_target: missing or wrong-type dsv id, unbinding depth target", "id", cmd.DSVID)
			}
		}
		e.device.SetRenderTargets(rtvs, dsv)
		return nil

	case OpSetViewport:
		cmd, err := DecodeCmdSetViewport(record)
		if err != nil {
			return FramingError{Reason: err.Error()}
		}
		n := int(cmd.Count)
		if n > MaxViewports {
			n = MaxViewports
		}
		e.device.SetViewports(cmd.Viewports[:n])
		return nil

	case OpSetScissor:
		cmd, err := DecodeCmdSetScissor(record)
		if err != nil {
			return FramingError{Reason: err.Error()}
		}
		n := int(cmd.Count)
		if n > MaxScissors {
			n = MaxScissors
		}
		e.device.SetScissorRects(cmd.Rects[:n])
		return nil

	case OpSetBlendState:
		var bs NativeBlendState
		if h.ResourceID != 0 {
			v, ok := e.table.GetBlendState(h.ResourceID)
			if !ok {
				e.log.Warn("set_blend_state: missing or wrong-type id, unbinding", "id", h.ResourceID)
			} else {
				bs = v.Native
			}
		}
		e.device.SetBlendState(bs)
		return nil

	case OpSetRasterizerState:
		var rs NativeRasterizerState
		if h.ResourceID != 0 {
			v, ok := e.table.GetRasterizerState(h.ResourceID)
			if !ok {
				e.log.Warn("set_rasterizer_state: missing or wrong-type id, unbinding", "id", h.ResourceID)
			} else {
				rs = v.Native
			}
		}
		e.device.SetRasterizerState(rs)
		return nil

	case OpSetDepthStencil:
		cmd, err := DecodeCmdSetDepthStencil(record)
		if err != nil {
			return FramingError{Reason: err.Error()}
		}
		var ds NativeDepthStencilState
		if h.ResourceID != 0 {
			v, ok := e.table.GetDepthStencilState(h.ResourceID)
			if !ok {
				e.log.Warn("set_depth_stencil: missing or wrong-type state id, unbinding", "id", h.ResourceID)
			} else {
				ds = v.Native
			}
		}
		e.device.SetDepthStencilState(ds, cmd.StencilRef)
		return nil

	case OpSetShader:
		cmd, err := DecodeCmdSetShader(record)
		if err != nil {
			return FramingError{Reason: err.Error()}
		}
		var sh NativeShader
		if h.ResourceID != 0 {
			v, ok := e.table.GetShader(h.ResourceID, cmd.Stage)
			if !ok {
				e.log.Warn("set_shader: missing or wrong-stage shader id, unbinding", "id", h.ResourceID, "stage", cmd.Stage)
			} else {
				sh = v.Native
			}
		}
		e.device.SetShader(cmd.Stage, sh)
		return nil

	case OpSetSamplers:
		cmd, err := DecodeCmdSetSamplers(record)
		if err != nil {
			return FramingError{Reason: err.Error()}
		}
		n := int(cmd.Num)
		if n > MaxSamplers {
			n = MaxSamplers
		}
		e.device.SetSamplers(cmd.Stage, cmd.StartSlot, e.resolveSamplers(cmd.IDs[:n]))
		return nil

	case OpSetConstantBuffer:
		cmd, err := DecodeCmdSetConstantBuffer(record)
		if err != nil {
			return FramingError{Reason: err.Error()}
		}
		var buf NativeBuffer
		if h.ResourceID != 0 {
			v, ok := e.table.GetBuffer(h.ResourceID)
			if !ok {
				e.log.Warn("set_constant_buffer: missing or wrong-type id, unbinding", "id", h.ResourceID)
			} else {
				buf = v.Native
			}
		}
		e.device.SetConstantBuffer(cmd.Stage, cmd.Slot, buf)
		return nil

	case OpSetVertexBuffer:
		cmd, err := DecodeCmdSetVertexBuffer(record)
		if err != nil {
			return FramingError{Reason: err.Error()}
		}
		n := int(cmd.NumBuffers)
		if n > MaxVertexBuffers {
			n = MaxVertexBuffers
		}
		buffers := make([]NativeBuffer, n)
		strides := make([]uint32, n)
		offsets := make([]uint32, n)
		for i := 0; i < n; i++ {
			b := cmd.Buffers[i]
			strides[i] = b.Stride
			offsets[i] = b.Offset
			if b.BufferID == 0 {
				continue
			}
			v, ok := e.table.GetBuffer(b.BufferID)
			if !ok {
				e.log.Warn("set_vertex_buffer: missing or wrong-type id, leaving slot unbound", "id", b.BufferID)
				continue
			}
			buffers[i] = v.Native
		}
		e.device.SetVertexBuffers(cmd.StartSlot, buffers, strides, offsets)
		return nil

	case OpSetIndexBuffer:
		cmd, err := DecodeCmdSetIndexBuffer(record)
		if err != nil {
			return FramingError{Reason: err.Error()}
		}
		var buf NativeBuffer
		if h.ResourceID != 0 {
			v, ok := e.table.GetBuffer(h.ResourceID)
			if !ok {
				e.log.Warn("set_index_buffer: missing or wrong-type id, unbinding", "id", h.ResourceID)
			} else {
				buf = v.Native
			}
		}
		e.device.SetIndexBuffer(buf, cmd.Format, cmd.Offset)
		return nil

	case OpSetInputLayout:
		var il NativeInputLayout
		if h.ResourceID != 0 {
			v, ok := e.table.GetInputLayout(h.ResourceID)
			if !ok {
				e.log.Warn("set_input_layout: missing or wrong-type id, unbinding", "id", h.ResourceID)
			} else {
				il = v.Native
			}
		}
		e.device.SetInputLayout(il)
		return nil

	case OpSetPrimitiveTopology:
		cmd, err := DecodeCmdSetPrimitiveTopology(record)
		if err != nil {
			return FramingError{Reason: err.Error()}
		}
		e.device.SetPrimitiveTopology(cmd.Topology)
		return nil

	case OpSetShaderResources:
		cmd, err := DecodeCmdSetShaderResources(record)
		if err != nil {
			return FramingError{Reason: err.Error()}
		}
		n := int(cmd.Num)
		if n > MaxShaderResources {
			n = MaxShaderResources
		}
		e.device.SetShaderResources(cmd.Stage, cmd.StartSlot, e.resolveShaderResources(cmd.IDs[:n]))
		return nil

	default:
		e.log.Warn("unknown state opcode, skipping", "opcode", h.Opcode)
		return nil
	}
}
