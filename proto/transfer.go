package proto

import (
	"encoding/binary"

	"github.com/seatag/firmware/cfgstore"
	"github.com/seatag/firmware/conf"
	"github.com/seatag/firmware/flashfs"
)

// startCfgRead answers CfgRead(one) inline, or opens the CfgReadNext
// sub-state for CfgRead(all) (spec.md §4.3.2, §4.3.3).
func (e *Engine) startCfgRead(req CfgReadReq) error {
	if req.Mode == One {
		v, err := e.cfg.Get(cfgstore.Tag(req.Tag))
		if err != nil {
			errc := ConfigTagNotSet
			if err == cfgstore.ErrInvalidTag {
				errc = InvalidConfigTag
			}
			return e.sendHeaderAnd(CmdCfgRead, &CfgReadOneResp{Error: errc, Tag: req.Tag})
		}
		var val [4]byte
		copy(val[:], v)
		return e.sendHeaderAnd(CmdCfgRead, &CfgReadOneResp{Error: NoError, Tag: req.Tag, Len: uint8(len(v)), Value: val})
	}

	total := 0
	var cur cfgstore.Cursor
	for {
		t, ok := e.cfg.Iterate(&cur)
		if !ok {
			break
		}
		if !e.cfg.IsSet(t) {
			continue
		}
		w, _ := cfgstore.WidthOf(t)
		total += 2 + w
	}
	e.dlTotal, e.dlSent = total, 0
	e.cfgCursor = cfgstore.Cursor{}
	e.state = subCfgReadNext
	return e.sendHeaderAnd(CmdCfgRead, &CfgReadResp{Error: NoError, Len: uint32(total)})
}

// startLogRead opens the LogReadNext sub-state (spec.md §4.3.3,
// end-to-end scenario E4).
func (e *Engine) startLogRead(req LogReadReq) error {
	h, err := e.fs.Open(conf.FileLog, flashfs.ReadOnly, 0)
	if err != nil {
		return e.sendHeaderAnd(CmdLogRead, &LogReadResp{Error: FileNotFound})
	}
	skip := make([]byte, 4096)
	remaining := int(req.Start)
	for remaining > 0 {
		n := remaining
		if n > len(skip) {
			n = len(skip)
		}
		got, err := h.Read(skip[:n])
		if err != nil {
			_ = h.Close()
			return e.sendHeaderAnd(CmdLogRead, &LogReadResp{Error: InvalidParameter})
		}
		remaining -= got
	}
	e.fwHandle = h // reused slot: at most one handle-bearing transfer is ever live
	e.dlTotal, e.dlSent = int(req.Len), 0
	e.state = subLogReadNext
	return e.sendHeaderAnd(CmdLogRead, &LogReadResp{Error: NoError, Len: req.Len})
}

// startFwSendImage opens the FwSendImageNext sub-state (spec.md §4.3.2,
// §4.3.6).
func (e *Engine) startFwSendImage(req FwSendImageReq) error {
	fileID := conf.FileSTM32Image
	if req.Kind == ImageBLE {
		fileID = conf.FileBLEImage
	}
	if _, err := e.fs.Stat(fileID); err == nil {
		_ = e.fs.Delete(fileID)
	}
	h, err := e.fs.Open(fileID, flashfs.Create, 0)
	if err != nil {
		return e.sendHeaderAnd(CmdFwSendImage, &FwSendImageResp{Error: FileAlreadyExists})
	}
	e.fwHandle = h
	e.fwKind = req.Kind
	e.fwWant = req.Crc32
	e.fwCrc = 0
	e.ulTotal, e.ulRecv = int(req.Len), 0
	e.state = subFwSendImageNext
	return e.sendHeaderAnd(CmdFwSendImage, &FwSendImageResp{Error: NoError})
}

// stepDownload produces the next chunk of an active download sub-state
// (CfgReadNext, GpsReadNext, BleReadNext, LogReadNext). Downloads need
// no RX input; they only need TX room (spec.md §4.3.1 back-pressure).
func (e *Engine) stepDownload() error {
	remaining := e.dlTotal - e.dlSent
	if remaining <= 0 {
		e.finishDownload()
		return nil
	}

	var chunk []byte
	var err error
	switch e.state {
	case subCfgReadNext:
		chunk = e.nextCfgReadChunk(e.tx.SlotSize())
	case subLogReadNext:
		chunk, err = e.readChunk(e.fwHandle, min(remaining, e.tx.SlotSize()))
	case subGpsReadNext:
		chunk, err = e.bridgeReadChunk(func(b []byte) (int, error) { return e.gps.Read(b) }, min(remaining, e.tx.SlotSize()))
	case subBleReadNext:
		chunk, err = e.bridgeReadChunk(func(b []byte) (int, error) { return e.ble.Read(e.dlAddr, b) }, min(remaining, e.tx.SlotSize()))
	}
	if err != nil {
		return err
	}
	if len(chunk) == 0 {
		return nil // transport back-pressure or transient short read; retry next iteration
	}
	if sendErr := e.sendPacket(chunk); sendErr != nil {
		return sendErr
	}
	e.dlSent += len(chunk)
	if e.dlSent >= e.dlTotal {
		e.finishDownload()
	}
	return nil
}

func (e *Engine) finishDownload() {
	if e.fwHandle != nil {
		_ = e.fwHandle.Close()
		e.fwHandle = nil
	}
	e.reset()
}

func (e *Engine) readChunk(h *flashfs.Handle, want int) ([]byte, error) {
	buf := make([]byte, want)
	n, err := h.Read(buf)
	if err != nil && err != flashfs.ErrEndOfFile {
		return nil, FaultFsError
	}
	return buf[:n], nil
}

func (e *Engine) bridgeReadChunk(read func([]byte) (int, error), want int) ([]byte, error) {
	buf := make([]byte, want)
	n, err := read(buf)
	if err != nil {
		return nil, FaultGpsSendError
	}
	return buf[:n], nil
}

// nextCfgReadChunk packs as many complete tag||value pairs as fit in one
// packet, deferring any pair that would overflow to the next call
// (spec.md §4.3.3: "if the next tag would overflow the current packet,
// the tag is deferred to the next packet (cursor rolled back by one)").
func (e *Engine) nextCfgReadChunk(packetLen int) []byte {
	chunk := make([]byte, 0, packetLen)
	for {
		save := e.cfgCursor
		t, ok := e.cfg.Iterate(&e.cfgCursor)
		if !ok {
			break
		}
		if !e.cfg.IsSet(t) {
			continue
		}
		v, _ := e.cfg.Get(t)
		pair := make([]byte, 2+len(v))
		binary.LittleEndian.PutUint16(pair, uint16(t))
		copy(pair[2:], v)

		if len(chunk)+len(pair) > packetLen {
			e.cfgCursor = save
			break
		}
		chunk = append(chunk, pair...)
	}
	return chunk
}
