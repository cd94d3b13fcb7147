// protocol_constants.go - PVGPU wire protocol constants

// License: GPLv3 or later

package main

// Control region layout constants (spec section 6).
const (
	ControlRegionSize = 4096

	PVGPUMagic        = 0x50564750 // "PVGP"
	PVGPUVersionMajor  = 1
	PVGPUVersionMinor  = 0
	PVGPUVersion       = (PVGPUVersionMajor << 16) | PVGPUVersionMinor

	DefaultShmemSize      = 0x10000000 // 256MB
	DefaultCommandRingSize = 0x1000000 // 16MB
)

// Status bits (control region status word).
const (
	StatusReady      uint32 = 1 << 0
	StatusError      uint32 = 1 << 1
	StatusDeviceLost uint32 = 1 << 2
	StatusBackendBusy uint32 = 1 << 3
	StatusResizing   uint32 = 1 << 4
	StatusRecovery   uint32 = 1 << 5
	StatusShutdown   uint32 = 1 << 6
)

// Guest-visible error codes (control region error_code field).
type ErrorCode uint32

const (
	ErrSuccess             ErrorCode = 0
	ErrInvalidCommand      ErrorCode = 1
	ErrResourceNotFound    ErrorCode = 2
	ErrOutOfMemory         ErrorCode = 3
	ErrShaderCompile       ErrorCode = 4
	ErrDeviceLost          ErrorCode = 5
	ErrInvalidParameter    ErrorCode = 6
	ErrUnsupportedFormat   ErrorCode = 7
	ErrBackendDisconnected ErrorCode = 8
	ErrRingFull            ErrorCode = 9
	ErrTimeout             ErrorCode = 10
	ErrHeapExhausted       ErrorCode = 11
	ErrInternal            ErrorCode = 12
	ErrUnknown             ErrorCode = 0xFFFF
)

func (e ErrorCode) String() string {
	switch e {
	case ErrSuccess:
		return "SUCCESS"
	case ErrInvalidCommand:
		return "INVALID_COMMAND"
	case ErrResourceNotFound:
		return "RESOURCE_NOT_FOUND"
	case ErrOutOfMemory:
		return "OUT_OF_MEMORY"
	case ErrShaderCompile:
		return "SHADER_COMPILE"
	case ErrDeviceLost:
		return "DEVICE_LOST"
	case ErrInvalidParameter:
		return "INVALID_PARAMETER"
	case ErrUnsupportedFormat:
		return "UNSUPPORTED_FORMAT"
	case ErrBackendDisconnected:
		return "BACKEND_DISCONNECTED"
	case ErrRingFull:
		return "RING_FULL"
	case ErrTimeout:
		return "TIMEOUT"
	case ErrHeapExhausted:
		return "HEAP_EXHAUSTED"
	case ErrInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// Command header size and opcode ranges (spec section 4.1 / 6).
const (
	CommandHeaderSize = 16

	OpcodeResourceLo = 0x0001
	OpcodeResourceHi = 0x00FF
	OpcodeShaderLo   = 0x0030
	OpcodeShaderHi   = 0x003F
	OpcodeStateLo    = 0x0100
	OpcodeStateHi    = 0x01FF
	OpcodeDrawLo     = 0x0200
	OpcodeDrawHi     = 0x02FF
	OpcodeSyncLo     = 0x0300
	OpcodeSyncHi     = 0x03FF
)

// Opcodes.
const (
	OpCreateResource  uint32 = 0x0001
	OpDestroyResource uint32 = 0x0002
	OpOpenResource    uint32 = 0x0003
	OpCopyResource    uint32 = 0x0004
	OpMapResource     uint32 = 0x0005
	OpUnmapResource   uint32 = 0x0006
	OpUpdateResource  uint32 = 0x0007

	OpCreateVertexShader   uint32 = 0x0030
	OpCreatePixelShader    uint32 = 0x0031
	OpCreateGeometryShader uint32 = 0x0032
	OpCreateHullShader     uint32 = 0x0033
	OpCreateDomainShader   uint32 = 0x0034
	OpCreateComputeShader  uint32 = 0x0035
	OpDestroyShader        uint32 = 0x0036

	OpSetRenderTarget      uint32 = 0x0100
	OpSetViewport          uint32 = 0x0101
	OpSetScissor           uint32 = 0x0102
	OpSetBlendState        uint32 = 0x0103
	OpSetRasterizerState   uint32 = 0x0104
	OpSetDepthStencil      uint32 = 0x0105
	OpSetShader            uint32 = 0x0106
	OpSetSamplers          uint32 = 0x0107
	OpSetConstantBuffer    uint32 = 0x0108
	OpSetVertexBuffer      uint32 = 0x0109
	OpSetIndexBuffer       uint32 = 0x010A
	OpSetInputLayout       uint32 = 0x010B
	OpSetPrimitiveTopology uint32 = 0x010C
	OpSetShaderResources   uint32 = 0x010D

	OpDraw                 uint32 = 0x0200
	OpDrawIndexed          uint32 = 0x0201
	OpDrawInstanced        uint32 = 0x0202
	OpDrawIndexedInstanced uint32 = 0x0203
	OpDispatch             uint32 = 0x0204
	OpClearRenderTarget    uint32 = 0x0205
	OpClearDepthStencil    uint32 = 0x0206

	OpFence         uint32 = 0x0300
	OpPresent       uint32 = 0x0301
	OpFlush         uint32 = 0x0302
	OpWaitFence     uint32 = 0x0303
	OpResizeBuffers uint32 = 0x0304
)

// Resource variant type tags (CREATE_RESOURCE.resource_type / OPEN_RESOURCE.resource_type).
const (
	ResTypeTexture2D           uint32 = 1
	ResTypeBuffer              uint32 = 2
	ResTypeInputLayout         uint32 = 3
	ResTypeBlendState          uint32 = 4
	ResTypeRasterizerState     uint32 = 5
	ResTypeDepthStencilState   uint32 = 6
	ResTypeSamplerState        uint32 = 7
	ResTypeRenderTargetView    uint32 = 8
	ResTypeDepthStencilView    uint32 = 9
	ResTypeShaderResourceView  uint32 = 10
)

// Shader stage enum (spec section 9, "Dynamic dispatch by shader stage").
type ShaderStage int

const (
	StageVertex ShaderStage = iota
	StagePixel
	StageGeometry
	StageHull
	StageDomain
	StageCompute
)

// Map types (MAP_RESOURCE.map_type).
type MapType uint32

const (
	MapRead             MapType = 0
	MapWrite            MapType = 1
	MapReadWrite        MapType = 2
	MapWriteDiscard     MapType = 3
	MapWriteNoOverwrite MapType = 4
)

// Fixed limits referenced throughout the replay engine (spec section 4.1/4.5).
const (
	MaxViewports       = 16
	MaxScissors        = 16
	MaxVertexBuffers   = 16
	MaxSamplers        = 16
	MaxShaderResources = 128

	MaxTextureDimension = 16384
	MaxBufferSize       = 1 << 30 // 1 GiB

	SwapchainBufferIDWidth = 0 // RESIZE_BUFFERS targets swapchain id 0 in this design
)

// Control channel message types (spec section 6).
const (
	MsgHandshake    uint32 = 1
	MsgHandshakeAck uint32 = 2
	MsgDoorbell     uint32 = 3
	MsgIRQ          uint32 = 4
	MsgShutdown     uint32 = 5
)

const ControlMessageHeaderSize = 8

// Feature bitmask negotiated at handshake. FeaturesMVP is the only feature
// set this implementation understands; unknown bits requested by the guest
// are masked off in HANDSHAKE_ACK.
const (
	FeatureTextures uint64 = 1 << 0
	FeatureShaders  uint64 = 1 << 1
	FeatureFencing  uint64 = 1 << 2
	FeaturesMVP     uint64 = FeatureTextures | FeatureShaders | FeatureFencing
)
