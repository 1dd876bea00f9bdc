package proto

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/seatag/firmware/cfgstore"
	"github.com/seatag/firmware/conf"
)

// continueUpload consumes one RX packet of an active upload sub-state
// (CfgWriteNext, GpsWriteNext, BleWriteNext, FwSendImageNext). Unlike
// command packets, these carry no Header: they are raw stream bytes
// (spec.md §4.3.1, §4.3.3).
func (e *Engine) continueUpload(buf []byte) error {
	if e.ulRecv+len(buf) > e.ulTotal {
		return e.abortUpload(DataOversize)
	}

	switch e.state {
	case subCfgWriteNext:
		return e.stepCfgWrite(buf)
	case subGpsWriteNext:
		if err := e.gps.Write(buf); err != nil {
			return e.abortUpload(Unknown)
		}
		e.ulRecv += len(buf)
		if e.ulRecv >= e.ulTotal {
			e.reset()
			return e.sendHeaderAnd(CmdGpsWrite, &GpsWriteResp{Error: NoError})
		}
		return nil
	case subBleWriteNext:
		if err := e.ble.Write(e.ulAddr, buf); err != nil {
			return e.abortUpload(Unknown)
		}
		e.ulRecv += len(buf)
		if e.ulRecv >= e.ulTotal {
			e.reset()
			return e.sendHeaderAnd(CmdBleWrite, &BleWriteResp{Error: NoError})
		}
		return nil
	case subFwSendImageNext:
		return e.stepFwSendImage(buf)
	}
	return nil
}

// abortUpload drops the active upload session and sends the appropriate
// command's error response (spec.md §4.3.3 "drop session, error, Idle").
func (e *Engine) abortUpload(errc ErrorCode) error {
	state := e.state
	if state == subFwSendImageNext && e.fwHandle != nil {
		_ = e.fwHandle.Close()
		e.fwHandle = nil
	}
	e.reset()

	switch state {
	case subCfgWriteNext:
		return e.sendHeaderAnd(CmdCfgWrite, &CfgWriteResp{Error: errc})
	case subGpsWriteNext:
		return e.sendHeaderAnd(CmdGpsWrite, &GpsWriteResp{Error: errc})
	case subBleWriteNext:
		return e.sendHeaderAnd(CmdBleWrite, &BleWriteResp{Error: errc})
	case subFwSendImageNext:
		return e.sendHeaderAnd(CmdFwSendImageComplete, &FwSendImageCompleteCnf{Error: errc})
	default:
		return nil
	}
}

// stepCfgWrite parses as many complete tag(u16)||value(size_of(tag))
// pairs as buf contains, tolerating a pair split across packet
// boundaries via ulCarry (spec.md §4.3.3 CfgWriteNext).
func (e *Engine) stepCfgWrite(buf []byte) error {
	data := append(e.ulCarry, buf...)
	e.ulCarry = nil
	e.ulRecv += len(buf)

	pos := 0
	for pos+2 <= len(data) {
		tag := cfgstore.Tag(binary.LittleEndian.Uint16(data[pos:]))
		width, ok := cfgstore.WidthOf(tag)
		if !ok {
			return e.abortUpload(InvalidConfigTag)
		}
		if pos+2+width > len(data) {
			break // incomplete pair: carry the remainder to the next packet
		}
		if err := e.cfg.Set(tag, data[pos+2:pos+2+width]); err != nil {
			return e.abortUpload(InvalidConfigTag)
		}
		pos += 2 + width
	}
	e.ulCarry = append(e.ulCarry, data[pos:]...)

	if e.ulRecv >= e.ulTotal {
		e.reset()
		return e.sendHeaderAnd(CmdCfgWrite, &CfgWriteResp{Error: NoError})
	}
	return nil
}

func fwImageFileID(kind ImageKind) uint8 {
	if kind == ImageBLE {
		return conf.FileBLEImage
	}
	return conf.FileSTM32Image
}

// stepFwSendImage streams buf into the target image file, maintaining a
// running CRC-32 (spec.md §4.3.3, §4.3.6's "updating a running CRC-32").
// On completion it compares against the advertised CRC and deletes the
// image file on mismatch (spec.md §4.3.3).
func (e *Engine) stepFwSendImage(buf []byte) error {
	if _, err := e.fwHandle.Write(buf); err != nil {
		return e.abortUpload(FileNotFound)
	}
	e.fwCrc = crc32.Update(e.fwCrc, crc32.IEEETable, buf)
	e.ulRecv += len(buf)

	if e.ulRecv < e.ulTotal {
		return nil
	}

	closeErr := e.fwHandle.Close()
	e.fwHandle = nil
	finalCrc, wantCrc, kind := e.fwCrc, e.fwWant, e.fwKind
	e.reset()

	if closeErr != nil {
		return e.sendHeaderAnd(CmdFwSendImageComplete, &FwSendImageCompleteCnf{Error: FileNotFound})
	}
	if finalCrc != wantCrc {
		_ = e.fs.Delete(fwImageFileID(kind))
		return e.sendHeaderAnd(CmdFwSendImageComplete, &FwSendImageCompleteCnf{Error: ImageCrcMismatch})
	}
	return e.sendHeaderAnd(CmdFwSendImageComplete, &FwSendImageCompleteCnf{Error: NoError})
}
