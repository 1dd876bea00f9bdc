package proto

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"

	"github.com/seatag/firmware/cfgstore"
	"github.com/seatag/firmware/conf"
	"github.com/seatag/firmware/flashfs"
)

func flashfsCreateMode(m LogCreateMode) flashfs.Mode {
	if m == LogCircular {
		return flashfs.CreateCircular
	}
	return flashfs.Create
}

// stmFwVersion stands in for the build-time firmware version constant
// spec.md §6.4/E3 references (FW_VERSION_CONST); a real build stamps it
// via linker flags. The BLE firmware version is normally read from the
// BLE driver (an external collaborator, spec.md §1); CmdStatus reports
// it as zero, meaning "not yet queried".
const stmFwVersion uint32 = 0x00010000

// dispatch handles one Idle-state packet: unpack its header, validate
// the command's fixed request size, and either answer inline (simple
// commands) or enter a bulk-transfer sub-state (spec.md §4.3.2).
func (e *Engine) dispatch(buf []byte) error {
	hdr, err := unpackHeader(buf)
	if err != nil {
		return nil // malformed header: drop silently, no response
	}
	rest := buf[HeaderSize:]

	switch hdr.Cmd {
	case CmdStatus:
		if len(rest) != 0 {
			return nil
		}
		var bleFw uint32
		return e.sendHeaderAnd(CmdStatus, &StatusResp{
			Error:        NoError,
			StmFwVersion: stmFwVersion,
			BleFwVersion: bleFw,
			CfgFormatVer: cfgstore.FormatVersion,
		})

	case CmdBatteryStatus:
		if len(rest) != 0 {
			return nil
		}
		return e.sendHeaderAnd(CmdBatteryStatus, &BatteryStatusResp{Error: NoError})

	case CmdReset:
		var req ResetReq
		if !unpackFixed(rest, &req) {
			return nil
		}
		errc := NoError
		switch req.Kind {
		case ResetNormal, ResetBootload:
			// Actually rebooting the MCU is outside this engine's reach
			// (spec.md §1: it owns the protocol, not the platform); the
			// caller restarts the process after seeing this response.
		case ResetFlashEraseAll:
			if err := e.fs.EraseAll(); err != nil {
				errc = FileNotFound
			}
		default:
			errc = InvalidParameter
		}
		return e.sendHeaderAnd(CmdReset, &ResetResp{Error: errc})

	case CmdCfgRead:
		var req CfgReadReq
		if !unpackFixed(rest, &req) {
			return nil
		}
		return e.startCfgRead(req)

	case CmdCfgWrite:
		var req CfgWriteReq
		if !unpackFixed(rest, &req) {
			return nil
		}
		e.ulTotal, e.ulRecv, e.ulCarry = int(req.Len), 0, nil
		e.state = subCfgWriteNext
		return nil

	case CmdCfgErase:
		var req CfgEraseReq
		if !unpackFixed(rest, &req) {
			return nil
		}
		return e.handleCfgErase(req)

	case CmdCfgSave:
		if len(rest) != 0 {
			return nil
		}
		errc := NoError
		if err := e.cfg.Save(e.fs); err != nil {
			errc = FileNotFound
		}
		return e.sendHeaderAnd(CmdCfgSave, &CfgSaveResp{Error: errc})

	case CmdCfgRestore:
		if len(rest) != 0 {
			return nil
		}
		errc := NoError
		restored, err := cfgstore.Restore(e.fs)
		switch {
		case err == nil:
			*e.cfg = *restored
		default:
			errc = FileIncompatible
		}
		return e.sendHeaderAnd(CmdCfgRestore, &CfgRestoreResp{Error: errc})

	case CmdCfgProtect:
		if len(rest) != 0 {
			return nil
		}
		errc := NoError
		if err := e.fs.Protect(conf.FileConf); err != nil {
			errc = FileNotFound
		}
		return e.sendHeaderAnd(CmdCfgProtect, &CfgProtectResp{Error: errc})

	case CmdCfgUnprotect:
		if len(rest) != 0 {
			return nil
		}
		errc := NoError
		if err := e.fs.Unprotect(conf.FileConf); err != nil {
			errc = FileNotFound
		}
		return e.sendHeaderAnd(CmdCfgUnprotect, &CfgUnprotectResp{Error: errc})

	case CmdLogCreate:
		var req LogCreateReq
		if !unpackFixed(rest, &req) {
			return nil
		}
		return e.handleLogCreate(req)

	case CmdLogErase:
		if len(rest) != 0 {
			return nil
		}
		errc := NoError
		if err := e.fs.Delete(conf.FileLog); err != nil {
			errc = FileNotFound
		}
		return e.sendHeaderAnd(CmdLogErase, &LogEraseResp{Error: errc})

	case CmdLogRead:
		var req LogReadReq
		if !unpackFixed(rest, &req) {
			return nil
		}
		return e.startLogRead(req)

	case CmdGpsConfig:
		var req GpsConfigReq
		if !unpackFixed(rest, &req) {
			return nil
		}
		return e.sendHeaderAnd(CmdGpsConfig, &GpsConfigResp{Error: NoError})

	case CmdBleConfig:
		var req BleConfigReq
		if !unpackFixed(rest, &req) {
			return nil
		}
		return e.sendHeaderAnd(CmdBleConfig, &BleConfigResp{Error: NoError})

	case CmdGpsWrite:
		var req GpsWriteReq
		if !unpackFixed(rest, &req) {
			return nil
		}
		if e.gps == nil {
			return e.sendHeaderAnd(CmdGpsWrite, &GpsWriteResp{Error: BridgingDisabled})
		}
		e.ulTotal, e.ulRecv = int(req.Len), 0
		e.state = subGpsWriteNext
		return nil

	case CmdBleWrite:
		var req BleWriteReq
		if !unpackFixed(rest, &req) {
			return nil
		}
		if e.ble == nil {
			return e.sendHeaderAnd(CmdBleWrite, &BleWriteResp{Error: BridgingDisabled})
		}
		e.ulTotal, e.ulRecv, e.ulAddr = int(req.Len), 0, req.Addr
		e.state = subBleWriteNext
		return nil

	case CmdGpsRead:
		var req GpsReadReq
		if !unpackFixed(rest, &req) {
			return nil
		}
		if e.gps == nil {
			return e.sendHeaderAnd(CmdGpsRead, &GpsReadResp{Error: BridgingDisabled})
		}
		e.dlTotal, e.dlSent = int(req.Len), 0
		e.state = subGpsReadNext
		return e.sendHeaderAnd(CmdGpsRead, &GpsReadResp{Error: NoError, Len: req.Len})

	case CmdBleRead:
		var req BleReadReq
		if !unpackFixed(rest, &req) {
			return nil
		}
		if e.ble == nil {
			return e.sendHeaderAnd(CmdBleRead, &BleReadResp{Error: BridgingDisabled})
		}
		e.dlTotal, e.dlSent, e.dlAddr = int(req.Len), 0, req.Addr
		e.state = subBleReadNext
		return e.sendHeaderAnd(CmdBleRead, &BleReadResp{Error: NoError, Len: req.Len})

	case CmdFwSendImage:
		var req FwSendImageReq
		if !unpackFixed(rest, &req) {
			return nil
		}
		return e.startFwSendImage(req)

	case CmdFwApplyImage:
		var req FwApplyImageReq
		if !unpackFixed(rest, &req) {
			return nil
		}
		return e.sendHeaderAnd(CmdFwApplyImage, &FwApplyImageResp{Error: NoError})

	default:
		return nil
	}
}

func unpackFixed(rest []byte, v interface{}) bool {
	if err := restruct.Unpack(rest, binary.LittleEndian, v); err != nil {
		return false
	}
	return true
}

func (e *Engine) handleCfgErase(req CfgEraseReq) error {
	// spec.md §9.2: the source sets InvalidConfigTag even on the success
	// path in one branch; this is a documented bug and NoError is the
	// correct response here.
	if req.Mode == All {
		var cur cfgstore.Cursor
		for {
			t, ok := e.cfg.Iterate(&cur)
			if !ok {
				break
			}
			_ = e.cfg.Unset(t)
		}
		return e.sendHeaderAnd(CmdCfgErase, &CfgEraseResp{Error: NoError})
	}
	if err := e.cfg.Unset(cfgstore.Tag(req.Tag)); err != nil {
		return e.sendHeaderAnd(CmdCfgErase, &CfgEraseResp{Error: InvalidConfigTag})
	}
	return e.sendHeaderAnd(CmdCfgErase, &CfgEraseResp{Error: NoError})
}

func (e *Engine) handleLogCreate(req LogCreateReq) error {
	mode := flashfsCreateMode(req.Mode)
	var flags uint8
	if req.SyncEnable != 0 {
		// Persisted in the file's header flags (spec.md §4.1 user_flags)
		// so every later LogRead/CmdLogCreate-less reopen of the log
		// sees the same behavior the creating request asked for.
		flags |= conf.FlagSyncWrite
	}
	h, err := e.fs.Open(conf.FileLog, mode, flags)
	if err != nil {
		return e.sendHeaderAnd(CmdLogCreate, &LogCreateResp{Error: FileAlreadyExists})
	}
	_ = h.Close()
	return e.sendHeaderAnd(CmdLogCreate, &LogCreateResp{Error: NoError})
}
