// Package proto implements the framed request/response protocol engine of
// spec.md §4.3: command dispatch from Idle, per-command bulk-transfer
// sub-states, an inactivity timeout, and back-pressure through bounded
// ring buffers.
package proto

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"
	"github.com/pkg/errors"

	"github.com/seatag/firmware/conf"
)

// Cmd identifies a protocol command (spec.md §4.3.2). The exact wire
// values live in the shared schema the device and host both build
// against; spec.md §1 treats that schema as a pure data table out of
// scope, so this is this repository's own assignment, kept internally
// consistent across seatagd and seatagctl.
type Cmd uint8

const (
	CmdStatus Cmd = iota + 1
	CmdBatteryStatus
	CmdReset
	CmdCfgRead
	CmdCfgWrite
	CmdCfgErase
	CmdCfgSave
	CmdCfgRestore
	CmdCfgProtect
	CmdCfgUnprotect
	CmdLogCreate
	CmdLogErase
	CmdLogRead
	CmdGpsConfig
	CmdBleConfig
	CmdGpsWrite
	CmdGpsRead
	CmdBleWrite
	CmdBleRead
	CmdFwSendImage
	CmdFwSendImageComplete
	CmdFwApplyImage
)

// Header is the fixed 5-byte prefix of every message (spec.md §3.7,
// §6.2): a constant syncword followed by the command byte.
type Header struct {
	Sync uint32
	Cmd  Cmd
}

// HeaderSize is the packed size of Header.
const HeaderSize = 5

func packHeader(cmd Cmd) []byte {
	buf, err := restruct.Pack(binary.LittleEndian, &Header{Sync: conf.SyncWord, Cmd: cmd})
	if err != nil {
		panic(err) // Header is a fixed, always-packable struct.
	}
	return buf
}

func unpackHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderSize {
		return h, FaultPacketWrongSize
	}
	if err := restruct.Unpack(buf[:HeaderSize], binary.LittleEndian, &h); err != nil {
		return h, errors.Wrap(err, "proto: unpacking header")
	}
	if h.Sync != conf.SyncWord {
		return h, FaultPacketWrongSize
	}
	return h, nil
}

// OneOrAll selects a single-tag or whole-store operation (spec.md
// §4.3.2's "CfgRead(one)"/"CfgErase(one|all)").
type OneOrAll uint8

const (
	One OneOrAll = 0
	All OneOrAll = 1
)

// LogCreateMode selects the log file's open mode (spec.md §4.3.2
// "LogCreate(fill|circular, sync_enable)").
type LogCreateMode uint8

const (
	LogFill     LogCreateMode = 0
	LogCircular LogCreateMode = 1
)

// ImageKind identifies which firmware image a bulk transfer targets
// (spec.md §4.3.6, §6.4's STM32_IMAGE/BLE_IMAGE file ids).
type ImageKind uint8

const (
	ImageSTM32 ImageKind = 0
	ImageBLE   ImageKind = 1
)

// ResetKind parameterizes Reset (spec.md §4.3.2 "Reset(kind)").
type ResetKind uint8

const (
	ResetNormal        ResetKind = 0
	ResetBootload      ResetKind = 1
	ResetFlashEraseAll ResetKind = 2
)

// Fixed-size request/response payloads, little-endian packed via
// restruct (spec.md §6.2). Requests with no payload (StatusReq,
// CfgSaveReq, CfgRestoreReq, LogEraseReq) are represented only by their
// Header; there is no empty struct to pack.

type StatusResp struct {
	Error        ErrorCode
	StmFwVersion uint32
	BleFwVersion uint32
	CfgFormatVer uint8
	Reserved     [2]byte
}

type BatteryStatusResp struct {
	Error        ErrorCode
	MillivoltsNow uint16
	Charging     uint8
}

type ResetReq struct {
	Kind ResetKind
}

type ResetResp struct {
	Error ErrorCode
}

type CfgReadReq struct {
	Mode OneOrAll
	Tag  uint16
}

// CfgReadResp announces the total byte length of the tag||value stream
// that follows as raw data packets (spec.md §3.7, §4.3.3 CfgReadNext).
// Sent only for CfgRead(all); CfgRead(one) is answered in a single
// packet by CfgReadOneResp instead (spec.md §4.3.2 lists it under
// "Simple request/response").
type CfgReadResp struct {
	Error ErrorCode
	Len   uint32
}

// CfgReadOneResp answers CfgRead(one). Value is sized to the schema's
// widest field (4 bytes); Len gives the tag's actual width, the way
// CfgWriteNext's carry buffer already has to know per-tag widths.
type CfgReadOneResp struct {
	Error ErrorCode
	Tag   uint16
	Len   uint8
	Value [4]byte
}

// CfgWriteReq opens a bulk upload of Len bytes of tag||value pairs
// (spec.md §4.3.2, §4.3.3 CfgWriteNext).
type CfgWriteReq struct {
	Len uint32
}

type CfgWriteResp struct {
	Error ErrorCode
}

type CfgEraseReq struct {
	Mode OneOrAll
	Tag  uint16
}

type CfgEraseResp struct {
	Error ErrorCode
}

type CfgSaveResp struct {
	Error ErrorCode
}

type CfgRestoreResp struct {
	Error ErrorCode
}

type CfgProtectResp struct {
	Error ErrorCode
}

type CfgUnprotectResp struct {
	Error ErrorCode
}

type LogCreateReq struct {
	Mode       LogCreateMode
	SyncEnable uint8
}

type LogCreateResp struct {
	Error ErrorCode
}

type LogEraseResp struct {
	Error ErrorCode
}

type LogReadReq struct {
	Start uint32
	Len   uint32
}

type LogReadResp struct {
	Error ErrorCode
	Len   uint32
}

type GpsConfigReq struct {
	Enable uint8
}

type GpsConfigResp struct {
	Error ErrorCode
}

type BleConfigReq struct {
	Enable uint8
}

type BleConfigResp struct {
	Error ErrorCode
}

// GpsWriteReq/BleWriteReq open a bridging upload straight to the GPS or
// BLE device driver (spec.md §4.3.2, §4.3.3's "passthrough streaming").
// The BLE variant additionally carries a register address prepended to
// every forwarded chunk.
type GpsWriteReq struct {
	Len uint32
}

type GpsWriteResp struct {
	Error ErrorCode
}

type BleWriteReq struct {
	Addr uint8
	Len  uint32
}

type BleWriteResp struct {
	Error ErrorCode
}

type GpsReadReq struct {
	Len uint32
}

type GpsReadResp struct {
	Error ErrorCode
	Len   uint32
}

type BleReadReq struct {
	Addr uint8
	Len  uint32
}

type BleReadResp struct {
	Error ErrorCode
	Len   uint32
}

type FwSendImageReq struct {
	Kind  ImageKind
	Len   uint32
	Crc32 uint32
}

type FwSendImageResp struct {
	Error ErrorCode
}

type FwSendImageCompleteCnf struct {
	Error ErrorCode
}

type FwApplyImageReq struct {
	Kind ImageKind
}

type FwApplyImageResp struct {
	Error ErrorCode
}
