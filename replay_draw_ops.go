// replay_draw_ops.go - draws, dispatch, clears (C5)

// License: GPLv3 or later

package main

// resolveRenderTargetView resolves id to a render target view, accepting
// either a direct RTV id or a texture id carrying an associated view
// (spec section 4.5, "Clears tolerate either a direct RTV/DSV id or a
// texture id that has an associated view").
func (e *ReplayEngine) resolveRenderTargetView(id uint32) (*RenderTargetView, bool) {
	if v, ok := e.table.GetRenderTargetView(id); ok {
		return v, true
	}
	if tex, ok := e.table.GetTexture2D(id); ok && tex.RTV != nil {
		return tex.RTV, true
	}
	return nil, false
}

func (e *ReplayEngine) resolveDepthStencilView(id uint32) (*DepthStencilView, bool) {
	if v, ok := e.table.GetDepthStencilView(id); ok {
		return v, true
	}
	if tex, ok := e.table.GetTexture2D(id); ok && tex.DSV != nil {
		return tex.DSV, true
	}
	return nil, false
}

func (e *ReplayEngine) bumpDrawCalls() {
	e.statsMu.Lock()
	e.stats.DrawCalls++
	e.statsMu.Unlock()
}

func (e *ReplayEngine) dispatchDrawOp(h CommandHeader, record []byte) error {
	switch h.Opcode {
	case OpDraw:
		cmd, err := DecodeCmdDraw(record)
		if err != nil {
			return FramingError{Reason: err.Error()}
		}
		e.device.Draw(cmd.VertexCount, cmd.StartVertex)
		e.bumpDrawCalls()
		return nil

	case OpDrawIndexed:
		cmd, err := DecodeCmdDrawIndexed(record)
		if err != nil {
			return FramingError{Reason: err.Error()}
		}
		e.device.DrawIndexed(cmd.IndexCount, cmd.StartIndex, cmd.BaseVertex)
		e.bumpDrawCalls()
		return nil

	case OpDrawInstanced:
		cmd, err := DecodeCmdDrawInstanced(record)
		if err != nil {
			return FramingError{Reason: err.Error()}
		}
		e.device.DrawInstanced(cmd.VertexCountPerInstance, cmd.InstanceCount, cmd.StartVertex, cmd.StartInstance)
		e.bumpDrawCalls()
		return nil

	case OpDrawIndexedInstanced:
		cmd, err := DecodeCmdDrawIndexedInstanced(record)
		if err != nil {
			return FramingError{Reason: err.Error()}
		}
		e.device.DrawIndexedInstanced(cmd.IndexCountPerInstance, cmd.InstanceCount, cmd.StartIndex, cmd.BaseVertex, cmd.StartInstance)
		e.bumpDrawCalls()
		return nil

	case OpDispatch:
		cmd, err := DecodeCmdDispatch(record)
		if err != nil {
			return FramingError{Reason: err.Error()}
		}
		e.device.Dispatch(cmd.ThreadGroupX, cmd.ThreadGroupY, cmd.ThreadGroupZ)
		e.bumpDrawCalls()
		return nil

	case OpClearRenderTarget:
		cmd, err := DecodeCmdClearRenderTarget(record)
		if err != nil {
			return FramingError{Reason: err.Error()}
		}
		rtv, ok := e.resolveRenderTargetView(h.ResourceID)
		if !ok {
			e.log.Warn("clear_render_target: missing or wrong-type rtv id, skipping", "id", h.ResourceID)
			return nil
		}
		e.device.ClearRenderTargetView(rtv.Native, cmd.Color)
		return nil

	case OpClearDepthStencil:
		cmd, err := DecodeCmdClearDepthStencil(record)
		if err != nil {
			return FramingError{Reason: err.Error()}
		}
		dsv, ok := e.resolveDepthStencilView(h.ResourceID)
		if !ok {
			e.log.Warn("clear_depth_stencil: missing or wrong-type dsv id, skipping", "id", h.ResourceID)
			return nil
		}
		e.device.ClearDepthStencilView(dsv.Native, cmd.Flags, cmd.Depth, cmd.Stencil)
		return nil

	default:
		e.log.Warn("unknown draw opcode, skipping", "opcode", h.Opcode)
		return nil
	}
}
