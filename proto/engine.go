package proto

import (
	"encoding/binary"
	"time"

	"github.com/go-restruct/restruct"
	log "github.com/sirupsen/logrus"

	"github.com/seatag/firmware/cfgstore"
	"github.com/seatag/firmware/conf"
	"github.com/seatag/firmware/flashfs"
	"github.com/seatag/firmware/ringbuf"
)

// substate is the engine's sub-state-machine selector (spec.md §4.3.3):
// either Idle or a single active bulk-transfer context, never more than
// one live transfer at a time.
type substate int

const (
	subIdle substate = iota
	subCfgReadNext
	subCfgWriteNext
	subGpsWriteNext
	subBleWriteNext
	subGpsReadNext
	subBleReadNext
	subLogReadNext
	subFwSendImageNext
)

// GpsBridge and BleBridge are the bridging targets for the GpsWrite/
// GpsRead/BleWrite/BleRead commands (spec.md's "Bridging" glossary
// entry): raw byte passthrough to the GPS or BLE device driver. Both
// are external hardware collaborators (spec.md §1), so the engine is
// given capability interfaces rather than concrete driver types — the
// Go equivalent of spec.md §9.1's "capability-set passed in at init".
type GpsBridge interface {
	Write(p []byte) error
	Read(buf []byte) (int, error)
}

type BleBridge interface {
	Write(addr uint8, p []byte) error
	Read(addr uint8, buf []byte) (int, error)
}

// Engine is the protocol engine (spec.md §4.3). It owns no transport of
// its own: a Transport implementation feeds RX and drains TX
// asynchronously (spec.md §4.3.1), the way ISRs feed ring-buffer cursors
// while never calling into the engine directly (spec.md §5).
type Engine struct {
	fs  *flashfs.FS
	cfg *cfgstore.Store

	rx *ringbuf.Ring
	tx *ringbuf.Ring

	inactivity time.Duration

	gps GpsBridge
	ble BleBridge

	connected    bool
	state        substate
	lastActivity time.Time

	// Bulk-download context (CfgReadNext, GpsReadNext, BleReadNext,
	// LogReadNext): how many bytes of the announced total remain.
	dlTotal int
	dlSent  int
	dlAddr  uint8 // BLE register address, BleReadNext only

	cfgCursor cfgstore.Cursor

	// Bulk-upload context (CfgWriteNext, GpsWriteNext, BleWriteNext,
	// FwSendImageNext).
	ulTotal int
	ulRecv  int
	ulAddr  uint8
	ulCarry []byte // tolerates a tag/value pair split across packets (CfgWriteNext only)

	fwKind   ImageKind
	fwHandle *flashfs.Handle
	fwWant   uint32
	fwCrc    uint32
}

// New returns an Idle engine. packetLen bounds every RX/TX slot
// (spec.md §3.7 TRANSPORT_PACKET_SIZE); gps/ble may be nil, in which
// case bridging commands fail with BridgingDisabled.
func New(fs *flashfs.FS, cfgStore *cfgstore.Store, packetLen int, gps GpsBridge, ble BleBridge) *Engine {
	return &Engine{
		fs:         fs,
		cfg:        cfgStore,
		rx:         ringbuf.New(packetLen, 1),
		tx:         ringbuf.New(packetLen, 2),
		inactivity: time.Duration(conf.DefaultInactivityTimeoutMS) * time.Millisecond,
		gps:        gps,
		ble:        ble,
	}
}

// RX and TX expose the engine's ring buffers for a Transport to pump
// bytes through (spec.md §4.3.1); the engine itself only Peeks/Reserves
// on them from Iterate.
func (e *Engine) RX() *ringbuf.Ring { return e.rx }
func (e *Engine) TX() *ringbuf.Ring { return e.tx }

// SetConnected records the transport's connect/disconnect events
// (spec.md component B), consulted by the top-level state machine's
// transition rule 3 (spec.md §4.4.1).
func (e *Engine) SetConnected(c bool) { e.connected = c }

// Connected reports the last SetConnected value.
func (e *Engine) Connected() bool { return e.connected }

// Idle reports whether the engine is out of any bulk-transfer sub-state.
func (e *Engine) Idle() bool { return e.state == subIdle }

// reset forces the engine back to Idle and releases any open handle or
// partial transfer state (spec.md §4.3.4's inactivity recovery, and
// §7.2's abandon-sub-state-on-exception policy).
func (e *Engine) reset() {
	if e.fwHandle != nil {
		_ = e.fwHandle.Close()
		e.fwHandle = nil
	}
	e.state = subIdle
	e.dlTotal, e.dlSent, e.dlAddr = 0, 0, 0
	e.ulTotal, e.ulRecv, e.ulAddr = 0, 0, 0
	e.ulCarry = nil
	e.fwWant, e.fwCrc = 0, 0
}

func (e *Engine) touch(now time.Time) { e.lastActivity = now }

func (e *Engine) sendPacket(buf []byte) error {
	w, err := e.tx.Reserve()
	if err != nil {
		return FaultTxBufferFull
	}
	if _, err := w.Write(buf); err != nil {
		return err
	}
	return e.tx.Commit(w)
}

func packPayload(v interface{}) []byte {
	buf, err := restruct.Pack(binary.LittleEndian, v)
	if err != nil {
		panic(err) // every payload type here is a fixed, restruct-packable struct.
	}
	return buf
}

func (e *Engine) sendHeaderAnd(cmd Cmd, payload interface{}) error {
	return e.sendPacket(append(packHeader(cmd), packPayload(payload)...))
}

func isDownloadState(s substate) bool {
	switch s {
	case subCfgReadNext, subGpsReadNext, subBleReadNext, subLogReadNext:
		return true
	default:
		return false
	}
}

// Iterate runs one engine step: apply the inactivity timeout, then either
// push the next chunk of an active download (which needs no RX input) or
// drain at most one RX packet for Idle dispatch or an active upload
// (spec.md §4.3.1 "the RX ring has a single slot," §5 "the super-loop
// calls...protocol_engine.iterate()").
func (e *Engine) Iterate(now time.Time) error {
	if e.state != subIdle && !e.lastActivity.IsZero() && now.Sub(e.lastActivity) > e.inactivity {
		log.WithField("state", e.state).Info("proto: inactivity timeout, forcing Idle")
		e.reset()
	}

	if isDownloadState(e.state) {
		err := e.stepDownload()
		if err == FaultTxBufferFull {
			return err
		}
		if err != nil {
			log.WithError(err).Warn("proto: download step failed")
			e.reset()
		}
		e.touch(now)
		return nil
	}

	buf, err := e.rx.Peek()
	if err != nil {
		return nil // nothing pending, not an error
	}

	if e.state == subIdle {
		if err := e.dispatch(buf); err != nil {
			if err == FaultTxBufferFull {
				return err // back-pressure: leave the packet for the next Iterate
			}
			log.WithError(err).Warn("proto: dispatch failed")
		}
	} else {
		if err := e.continueUpload(buf); err != nil {
			if err == FaultTxBufferFull {
				return err
			}
			log.WithError(err).Warn("proto: transfer step failed")
		}
	}

	_ = e.rx.Advance()
	e.touch(now)
	return nil
}
