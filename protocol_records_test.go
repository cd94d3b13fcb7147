// protocol_records_test.go - Encode/Decode round-trip law (spec section 8:
// "Encoding a record and decoding it ... yields exactly the original
// payload")

// License: GPLv3 or later

package main

import "testing"

func TestCmdRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		encode func() []byte
		decode func([]byte) (any, error)
	}{
		{
			"CreateResource",
			func() []byte {
				return CmdCreateResource{
					Header:        CommandHeader{Opcode: OpCreateResource, SizeTotal: uint32(cmdCreateResourceSize), ResourceID: 7},
					ResourceType:  ResTypeTexture2D,
					Format:        FormatRGBA8Unorm,
					Width:         640,
					Height:        480,
					Depth:         1,
					MipCount:      1,
					SampleCount:   1,
					SampleQuality: 0,
					BindFlags:     1,
					MiscFlags:     0,
					HeapOffset:    4096,
					DataSize:      640 * 480 * 4,
				}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdCreateResource(b) },
		},
		{
			"OpenResource",
			func() []byte {
				return CmdOpenResource{Header: CommandHeader{Opcode: OpOpenResource, SizeTotal: uint32(cmdOpenResourceSize), ResourceID: 9}, SrcResourceID: 3, ResourceType: ResTypeTexture2D}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdOpenResource(b) },
		},
		{
			"CopyResource",
			func() []byte {
				return CmdCopyResource{Header: CommandHeader{Opcode: OpCopyResource, SizeTotal: uint32(cmdCopyResourceSize), ResourceID: 5}, SrcResourceID: 2}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdCopyResource(b) },
		},
		{
			"CreateShader",
			func() []byte {
				return CmdCreateShader{Header: CommandHeader{Opcode: OpCreatePixelShader, SizeTotal: uint32(cmdCreateShaderSize), ResourceID: 11}, HeapOffset: 256, DataSize: 128}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdCreateShader(b) },
		},
		{
			"MapResource",
			func() []byte {
				return CmdMapResource{Header: CommandHeader{Opcode: OpMapResource, SizeTotal: uint32(cmdMapResourceSize), ResourceID: 4}, Subresource: 0, MapType: 1, HeapOffset: 8192}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdMapResource(b) },
		},
		{
			"UnmapResource",
			func() []byte {
				return CmdUnmapResource{Header: CommandHeader{Opcode: OpUnmapResource, SizeTotal: uint32(cmdUnmapResourceSize), ResourceID: 4}, Subresource: 0, HeapOffset: 8192, Size: 1024}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdUnmapResource(b) },
		},
		{
			"UpdateResourceNoBox",
			func() []byte {
				return CmdUpdateResource{Header: CommandHeader{Opcode: OpUpdateResource, SizeTotal: uint32(cmdUpdateResourceSize), ResourceID: 6}, Subresource: 0, HeapOffset: 16, Size: 64, HasBox: false}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdUpdateResource(b) },
		},
		{
			"UpdateResourceWithBox",
			func() []byte {
				return CmdUpdateResource{
					Header: CommandHeader{Opcode: OpUpdateResource, SizeTotal: uint32(cmdUpdateResourceSize), ResourceID: 6},
					Subresource: 1, HeapOffset: 32, Size: 128, HasBox: true,
					Box:        UpdateBox{Left: 1, Top: 2, Front: 0, Right: 10, Bottom: 20, Back: 1},
					RowPitch:   256, DepthPitch: 0,
				}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdUpdateResource(b) },
		},
		{
			"SetRenderTarget",
			func() []byte {
				c := CmdSetRenderTarget{Header: CommandHeader{Opcode: OpSetRenderTarget, SizeTotal: uint32(cmdSetRenderTargetSize)}, NumRTV: 2, DSVID: 9}
				c.RTVIDs[0] = 3
				c.RTVIDs[1] = 4
				return c.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdSetRenderTarget(b) },
		},
		{
			"SetViewport",
			func() []byte {
				c := CmdSetViewport{Header: CommandHeader{Opcode: OpSetViewport, SizeTotal: uint32(cmdSetViewportSize)}, Count: 1}
				c.Viewports[0] = Viewport{TopLeftX: 0, TopLeftY: 0, Width: 1920, Height: 1080, MinDepth: 0, MaxDepth: 1}
				return c.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdSetViewport(b) },
		},
		{
			"SetScissor",
			func() []byte {
				c := CmdSetScissor{Header: CommandHeader{Opcode: OpSetScissor, SizeTotal: uint32(cmdSetScissorSize)}, Count: 1}
				c.Rects[0] = ScissorRect{Left: 0, Top: 0, Right: 1920, Bottom: 1080}
				return c.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdSetScissor(b) },
		},
		{
			"SetShader",
			func() []byte {
				return CmdSetShader{Header: CommandHeader{Opcode: OpSetShader, SizeTotal: uint32(cmdSetShaderSize), ResourceID: 11}, Stage: StagePixel}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdSetShader(b) },
		},
		{
			"SetSamplers",
			func() []byte {
				c := CmdSetSamplers{Header: CommandHeader{Opcode: OpSetSamplers, SizeTotal: uint32(cmdSetSamplersSize)}, Stage: StagePixel, StartSlot: 0, Num: 1}
				c.IDs[0] = 5
				return c.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdSetSamplers(b) },
		},
		{
			"SetConstantBuffer",
			func() []byte {
				return CmdSetConstantBuffer{Header: CommandHeader{Opcode: OpSetConstantBuffer, SizeTotal: uint32(cmdSetConstantBufferSize), ResourceID: 8}, Stage: StageVertex, Slot: 2}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdSetConstantBuffer(b) },
		},
		{
			"SetShaderResources",
			func() []byte {
				c := CmdSetShaderResources{Header: CommandHeader{Opcode: OpSetShaderResources, SizeTotal: uint32(cmdSetShaderResourcesSize)}, Stage: StagePixel, StartSlot: 0, Num: 1}
				c.IDs[0] = 12
				return c.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdSetShaderResources(b) },
		},
		{
			"SetVertexBuffer",
			func() []byte {
				c := CmdSetVertexBuffer{Header: CommandHeader{Opcode: OpSetVertexBuffer, SizeTotal: uint32(cmdSetVertexBufferSize)}, StartSlot: 0, NumBuffers: 1}
				c.Buffers[0] = VertexBufferBinding{BufferID: 3, Stride: 32, Offset: 0}
				return c.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdSetVertexBuffer(b) },
		},
		{
			"SetIndexBuffer",
			func() []byte {
				return CmdSetIndexBuffer{Header: CommandHeader{Opcode: OpSetIndexBuffer, SizeTotal: uint32(cmdSetIndexBufferSize), ResourceID: 4}, Format: FormatR8Unorm, Offset: 0}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdSetIndexBuffer(b) },
		},
		{
			"SetPrimitiveTopology",
			func() []byte {
				return CmdSetPrimitiveTopology{Header: CommandHeader{Opcode: OpSetPrimitiveTopology, SizeTotal: uint32(cmdSetPrimitiveTopologySize)}, Topology: 4}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdSetPrimitiveTopology(b) },
		},
		{
			"SetDepthStencil",
			func() []byte {
				return CmdSetDepthStencil{Header: CommandHeader{Opcode: OpSetDepthStencil, SizeTotal: uint32(cmdSetDepthStencilSize), ResourceID: 1}, DSVID: 9, StencilRef: 0}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdSetDepthStencil(b) },
		},
		{
			"Draw",
			func() []byte {
				return CmdDraw{Header: CommandHeader{Opcode: OpDraw, SizeTotal: uint32(cmdDrawSize)}, VertexCount: 3, StartVertex: 0}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdDraw(b) },
		},
		{
			"DrawIndexed",
			func() []byte {
				return CmdDrawIndexed{Header: CommandHeader{Opcode: OpDrawIndexed, SizeTotal: uint32(cmdDrawIndexedSize)}, IndexCount: 6, StartIndex: 0, BaseVertex: -2}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdDrawIndexed(b) },
		},
		{
			"DrawInstanced",
			func() []byte {
				return CmdDrawInstanced{Header: CommandHeader{Opcode: OpDrawInstanced, SizeTotal: uint32(cmdDrawInstancedSize)}, VertexCountPerInstance: 3, InstanceCount: 10, StartVertex: 0, StartInstance: 0}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdDrawInstanced(b) },
		},
		{
			"DrawIndexedInstanced",
			func() []byte {
				return CmdDrawIndexedInstanced{Header: CommandHeader{Opcode: OpDrawIndexedInstanced, SizeTotal: uint32(cmdDrawIndexedInstancedSize)}, IndexCountPerInstance: 6, InstanceCount: 5, StartIndex: 0, BaseVertex: 1, StartInstance: 0}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdDrawIndexedInstanced(b) },
		},
		{
			"Dispatch",
			func() []byte {
				return CmdDispatch{Header: CommandHeader{Opcode: OpDispatch, SizeTotal: uint32(cmdDispatchSize)}, ThreadGroupX: 8, ThreadGroupY: 8, ThreadGroupZ: 1}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdDispatch(b) },
		},
		{
			"ClearRenderTarget",
			func() []byte {
				return CmdClearRenderTarget{Header: CommandHeader{Opcode: OpClearRenderTarget, SizeTotal: uint32(cmdClearRenderTargetSize), ResourceID: 2}, Color: [4]float32{0.1, 0.2, 0.3, 1}}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdClearRenderTarget(b) },
		},
		{
			"ClearDepthStencil",
			func() []byte {
				return CmdClearDepthStencil{Header: CommandHeader{Opcode: OpClearDepthStencil, SizeTotal: uint32(cmdClearDepthStencilSize), ResourceID: 2}, Flags: ClearFlagDepth | ClearFlagStencil, Depth: 1, Stencil: 0}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdClearDepthStencil(b) },
		},
		{
			"Fence",
			func() []byte {
				return CmdFence{Header: CommandHeader{Opcode: OpFence, SizeTotal: uint32(cmdFenceSize)}, Value: 42}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdFence(b) },
		},
		{
			"Present",
			func() []byte {
				return CmdPresent{Header: CommandHeader{Opcode: OpPresent, SizeTotal: uint32(cmdPresentSize), ResourceID: 1}, SyncInterval: 1, PresentFlags: PresentFlagAllowTearing}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdPresent(b) },
		},
		{
			"WaitFence",
			func() []byte {
				return CmdWaitFence{Header: CommandHeader{Opcode: OpWaitFence, SizeTotal: uint32(cmdWaitFenceSize)}, Value: 7}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdWaitFence(b) },
		},
		{
			"ResizeBuffers",
			func() []byte {
				return CmdResizeBuffers{Header: CommandHeader{Opcode: OpResizeBuffers, SizeTotal: uint32(cmdResizeBuffersSize)}, SwapchainID: 1, Width: 1280, Height: 720, Format: FormatRGBA8Unorm, BufferCount: 3, Flags: 0}.Encode()
			},
			func(b []byte) (any, error) { return DecodeCmdResizeBuffers(b) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := tt.encode()
			decoded, err := tt.decode(encoded)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			reencoded := reencode(t, decoded)
			if len(reencoded) != len(encoded) {
				t.Fatalf("length mismatch: got %d, want %d", len(reencoded), len(encoded))
			}
			for i := range encoded {
				if encoded[i] != reencoded[i] {
					t.Fatalf("byte %d mismatch: got %#x, want %#x", i, reencoded[i], encoded[i])
				}
			}
		})
	}
}

// reencode calls Encode on whatever concrete CmdXxx value decode produced,
// so the test asserts the full round trip (encode -> decode -> encode)
// rather than just comparing decoded fields.
func reencode(t *testing.T, v any) []byte {
	t.Helper()
	switch c := v.(type) {
	case CmdCreateResource:
		return c.Encode()
	case CmdOpenResource:
		return c.Encode()
	case CmdCopyResource:
		return c.Encode()
	case CmdCreateShader:
		return c.Encode()
	case CmdMapResource:
		return c.Encode()
	case CmdUnmapResource:
		return c.Encode()
	case CmdUpdateResource:
		return c.Encode()
	case CmdSetRenderTarget:
		return c.Encode()
	case CmdSetViewport:
		return c.Encode()
	case CmdSetScissor:
		return c.Encode()
	case CmdSetShader:
		return c.Encode()
	case CmdSetSamplers:
		return c.Encode()
	case CmdSetConstantBuffer:
		return c.Encode()
	case CmdSetShaderResources:
		return c.Encode()
	case CmdSetVertexBuffer:
		return c.Encode()
	case CmdSetIndexBuffer:
		return c.Encode()
	case CmdSetPrimitiveTopology:
		return c.Encode()
	case CmdSetDepthStencil:
		return c.Encode()
	case CmdDraw:
		return c.Encode()
	case CmdDrawIndexed:
		return c.Encode()
	case CmdDrawInstanced:
		return c.Encode()
	case CmdDrawIndexedInstanced:
		return c.Encode()
	case CmdDispatch:
		return c.Encode()
	case CmdClearRenderTarget:
		return c.Encode()
	case CmdClearDepthStencil:
		return c.Encode()
	case CmdFence:
		return c.Encode()
	case CmdPresent:
		return c.Encode()
	case CmdWaitFence:
		return c.Encode()
	case CmdResizeBuffers:
		return c.Encode()
	default:
		t.Fatalf("reencode: unhandled type %T", v)
		return nil
	}
}
