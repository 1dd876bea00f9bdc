package flashfs

import (
	"github.com/pkg/errors"

	"github.com/seatag/firmware/conf"
)

// Mode is an open mode (spec.md §4.1.2).
type Mode int

const (
	Create Mode = iota
	CreateCircular
	WriteOnly
	ReadOnly
)

// Handle is an open file handle (spec.md §3.4).
type Handle struct {
	fs     *FS
	id     int
	fileID uint8
	mode   Mode

	root int
	cur  int

	// write cursor: offset within cur's data area of the next byte to
	// write, and bytes written there since the last flush.
	writeOffset     int
	bytesSinceFlush int
	dirty           bool
	syncWrite       bool // conf.FlagSyncWrite: flush a session record after every Write

	// read cursor.
	readSector int
	readOffset int
}

func (fs *FS) allocHandleSlot() (int, error) {
	for i, h := range fs.handles {
		if h == nil {
			return i, nil
		}
	}
	return 0, ErrNoFreeHandle
}

// Open opens fileID in mode, per the table in spec.md §4.1.2.
// userFlags is read for Create/CreateCircular (it seeds the file's
// application flag bits) and ignored otherwise.
func (fs *FS) Open(fileID uint8, mode Mode, userFlags uint8) (*Handle, error) {
	slot, err := fs.allocHandleSlot()
	if err != nil {
		return nil, err
	}

	switch mode {
	case Create, CreateCircular:
		if _, exists := fs.roots[fileID]; exists {
			return nil, ErrFileAlreadyExists
		}
		sector, counter, ok := fs.pickFree()
		if !ok {
			return nil, ErrFileSystemFull
		}
		// Start unprotected (bit set) regardless of what the caller passed
		// in userFlags's reserved bits; protect()/unprotect() own those.
		flags := userFlags&conf.FlagAppMask | conf.FlagProtected
		if mode == CreateCircular {
			flags |= conf.FlagCircular
		}
		if err := fs.dev.EraseSector(sector); err != nil {
			return nil, err
		}
		if err := writeHeaderFields(fs.dev, sector, fileID, flags, 0xFF, counter+1); err != nil {
			return nil, err
		}
		fs.alloc.markUsed(sector)
		fs.roots[fileID] = sector

		h := &Handle{fs: fs, id: slot, fileID: fileID, mode: mode, root: sector, cur: sector, syncWrite: flags&conf.FlagSyncWrite != 0}
		fs.handles[slot] = h
		return h, nil

	case WriteOnly:
		root, ok := fs.roots[fileID]
		if !ok {
			return nil, ErrFileNotFound
		}
		rh, err := readHeader(fs.dev, root, fs.cfg)
		if err != nil {
			return nil, err
		}
		if rh.IsProtected() {
			return nil, ErrFileProtected
		}
		tail, tailHeader, err := fs.tailOf(root)
		if err != nil {
			return nil, err
		}
		h := &Handle{
			fs: fs, id: slot, fileID: fileID, mode: mode,
			root: root, cur: tail, writeOffset: tailHeader.liveLength(),
			syncWrite: rh.UserFlags&conf.FlagSyncWrite != 0,
		}
		fs.handles[slot] = h
		return h, nil

	case ReadOnly:
		root, ok := fs.roots[fileID]
		if !ok {
			return nil, ErrFileNotFound
		}
		h := &Handle{fs: fs, id: slot, fileID: fileID, mode: mode, root: root, cur: root, readSector: root}
		fs.handles[slot] = h
		return h, nil
	}
	return nil, errors.Errorf("flashfs: unknown mode %d", mode)
}

func (fs *FS) tailOf(root int) (int, header, error) {
	cur := root
	for {
		h, err := readHeader(fs.dev, cur, fs.cfg)
		if err != nil {
			return 0, header{}, err
		}
		if h.IsEndOfChain() {
			return cur, h, nil
		}
		cur = int(h.NextSector)
	}
}

// pickFree returns a free sector and its current allocation counter.
func (fs *FS) pickFree() (int, uint32, bool) {
	s, ok := fs.alloc.pick()
	if !ok {
		return 0, 0, false
	}
	return s, fs.alloc.counter[s], true
}

// allocateNext extends h's chain by one sector, carrying carryOver bytes
// (may be nil) into the fresh sector's data area, and updates h's write
// cursor to point at it (spec.md §4.1.3, §4.1.4).
func (fs *FS) allocateNext(h *Handle, carryOver []byte) error {
	rootHeader, err := readHeader(fs.dev, h.root, fs.cfg)
	if err != nil {
		return err
	}

	var next int
	var counter uint32
	var newRoot = -1

	if s, c, ok := fs.pickFree(); ok {
		next, counter = s, c
	} else if rootHeader.IsCircular() {
		// Reclaim the head sector: read its link before erasing it, then
		// re-admit it as the new tail and advance the root pointer past
		// it (spec.md §4.1.3 circular reclaim).
		headHeader, err := readHeader(fs.dev, h.root, fs.cfg)
		if err != nil {
			return err
		}
		if headHeader.IsEndOfChain() {
			return ErrFileSystemFull // single-sector file: nothing to reclaim from
		}
		next = h.root
		counter = headHeader.AllocCounter
		newRoot = int(headHeader.NextSector)
	} else {
		return ErrFileSystemFull
	}

	wasFree := fs.alloc.isFree(next)
	if err := fs.dev.EraseSector(next); err != nil {
		return err
	}
	if err := writeHeaderFields(fs.dev, next, h.fileID, rootHeader.UserFlags, 0xFF, counter+1); err != nil {
		return err
	}
	if wasFree {
		fs.alloc.markUsed(next)
	}

	// Link the previous tail to the new sector.
	prevHeader, err := readHeader(fs.dev, h.cur, fs.cfg)
	if err != nil {
		return err
	}
	if err := writeHeaderFields(fs.dev, h.cur, prevHeader.FileID, prevHeader.UserFlags, uint8(next), prevHeader.AllocCounter); err != nil {
		return err
	}

	if newRoot >= 0 {
		fs.roots[h.fileID] = newRoot
		h.root = newRoot
	}

	if len(carryOver) > 0 {
		if err := fs.dev.WriteAt(next, dataOffset(fs.cfg), carryOver); err != nil {
			return err
		}
	}

	h.cur = next
	h.writeOffset = len(carryOver)
	return nil
}

// Write appends buf to the handle's current sector, rolling over to a new
// sector when the current one's data area fills (spec.md §4.1 "write").
func (h *Handle) Write(buf []byte) (int, error) {
	if h.mode != Create && h.mode != CreateCircular && h.mode != WriteOnly {
		return 0, errors.New("flashfs: handle not open for write")
	}
	capacity := h.fs.cfg.UsableBytesPerSector()
	n := 0
	for len(buf) > 0 {
		room := capacity - h.writeOffset
		if room <= 0 {
			if h.bytesSinceFlush > 0 {
				// Commit the full sector before leaving it, so its bytes
				// stay visible once the chain moves on.
				if err := h.Flush(); err != nil {
					return n, err
				}
				continue
			}
			if err := h.fs.allocateNext(h, nil); err != nil {
				return n, err
			}
			continue
		}
		take := room
		if take > len(buf) {
			take = len(buf)
		}
		if err := h.fs.dev.WriteAt(h.cur, dataOffset(h.fs.cfg)+h.writeOffset, buf[:take]); err != nil {
			return n, errors.Wrap(err, "flashfs: write")
		}
		h.writeOffset += take
		h.bytesSinceFlush += take
		n += take
		buf = buf[take:]
	}
	h.dirty = true
	if h.syncWrite {
		if err := h.Flush(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Flush commits the handle's current sector length as a new session
// record. It is a no-op if no bytes were written since the last flush,
// preserving the bounded session-record budget (spec.md §4.1, property 7).
func (h *Handle) Flush() error {
	if h.bytesSinceFlush == 0 {
		return nil
	}

	hdr, err := readHeader(h.fs.dev, h.cur, h.fs.cfg)
	if err != nil {
		return err
	}

	if _, ok := hdr.freeSessionSlot(); !ok {
		// No room left to commit in this sector: seal it at its last
		// committed length and carry the pending bytes into a fresh
		// sector (spec.md §4.1.4).
		committed := hdr.liveLength()
		pending := make([]byte, h.writeOffset-committed)
		if err := h.fs.dev.ReadAt(h.cur, dataOffset(h.fs.cfg)+committed, pending); err != nil {
			return err
		}
		if err := h.fs.allocateNext(h, pending); err != nil {
			return err
		}
		hdr, err = readHeader(h.fs.dev, h.cur, h.fs.cfg)
		if err != nil {
			return err
		}
	}

	slot, ok := hdr.freeSessionSlot()
	if !ok {
		return errors.New("flashfs: freshly allocated sector has no free session slot")
	}
	if err := writeSessionRecord(h.fs.dev, h.cur, slot, uint16(h.writeOffset)); err != nil {
		return err
	}
	h.bytesSinceFlush = 0
	h.dirty = false
	return nil
}

// Close flushes and releases the handle (spec.md §4.1 "close").
func (h *Handle) Close() error {
	err := h.Flush()
	h.fs.handles[h.id] = nil
	return err
}

// Read copies up to len(buf) bytes, advancing the chain as needed,
// returning ErrEndOfFile when the live length is exhausted (spec.md §4.1
// "read").
func (h *Handle) Read(buf []byte) (int, error) {
	if h.mode != ReadOnly {
		return 0, errors.New("flashfs: handle not open for read")
	}
	n := 0
	for n < len(buf) {
		hdr, err := readHeader(h.fs.dev, h.readSector, h.fs.cfg)
		if err != nil {
			return n, err
		}
		live := hdr.liveLength()
		if h.readOffset >= live {
			if hdr.IsEndOfChain() {
				if n > 0 {
					return n, nil
				}
				return 0, ErrEndOfFile
			}
			h.readSector = int(hdr.NextSector)
			h.readOffset = 0
			continue
		}
		take := live - h.readOffset
		if take > len(buf)-n {
			take = len(buf) - n
		}
		if err := h.fs.dev.ReadAt(h.readSector, dataOffset(h.fs.cfg)+h.readOffset, buf[n:n+take]); err != nil {
			return n, err
		}
		h.readOffset += take
		n += take
	}
	return n, nil
}
