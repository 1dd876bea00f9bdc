// Package flashfs implements the wear-levelled, append-only flash file
// system of spec.md §4.1: files are singly-linked chains of NOR-flash
// sectors, writes are append-only and flush to a bounded array of
// write-session records per sector, and allocation always favors the
// globally least-worn free sector.
package flashfs

import (
	"sort"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/seatag/firmware/conf"
)

// FS is a mounted flash file system. It owns no goroutines: every method
// runs to completion on the caller's goroutine, matching the
// single-threaded cooperative model of spec.md §5.
type FS struct {
	dev   BlockDevice
	cfg   conf.Config
	alloc *allocator

	// roots maps a live file_id to the sector index of its chain root.
	roots map[uint8]int

	handles []*Handle // index is the handle id; nil entries are free slots
}

// Init validates the backing device against the configured geometry
// (spec.md §4.1 "init(device)").
func Init(dev BlockDevice, cfg conf.Config) error {
	if dev.SectorSize() != cfg.SectorSize || dev.NumSectors() != cfg.NumSectors {
		return ErrBadDevice
	}
	return nil
}

// Mount scans every sector header and builds the in-memory file_id -> root
// index plus the free-sector allocator, without modifying any sector
// (spec.md §4.1 "mount").
func Mount(dev BlockDevice, cfg conf.Config) (*FS, error) {
	if err := Init(dev, cfg); err != nil {
		return nil, err
	}

	fs := &FS{
		dev:     dev,
		cfg:     cfg,
		alloc:   newAllocator(cfg.NumSectors),
		roots:   make(map[uint8]int),
		handles: make([]*Handle, cfg.MaxHandles),
	}

	headers := make([]header, cfg.NumSectors)
	referenced := make(map[int]bool)
	var scanErrs *multierror.Error
	for s := 0; s < cfg.NumSectors; s++ {
		h, err := readHeader(dev, s, cfg)
		if err != nil {
			// Keep scanning instead of bailing on the first bad sector,
			// so a mount failure reports every broken header at once
			// rather than just the lowest-numbered one.
			scanErrs = multierror.Append(scanErrs, err)
			continue
		}
		headers[s] = h
		if !h.IsFree() && !h.IsEndOfChain() {
			referenced[int(h.NextSector)] = true
		}
	}
	if scanErrs.ErrorOrNil() != nil {
		return nil, scanErrs.ErrorOrNil()
	}

	reachable := make([]bool, cfg.NumSectors)
	for s := 0; s < cfg.NumSectors; s++ {
		h := headers[s]
		if h.IsFree() || referenced[s] {
			continue // not a root
		}
		// s is a root: walk its chain.
		fs.roots[h.FileID] = s
		cur := s
		for {
			reachable[cur] = true
			nh := headers[cur]
			if nh.IsEndOfChain() {
				break
			}
			cur = int(nh.NextSector)
		}
	}

	for s := 0; s < cfg.NumSectors; s++ {
		h := headers[s]
		if h.IsFree() || !reachable[s] {
			// Free, or an orphaned sector never linked into any chain
			// (spec.md §4.1.5: a header present but unreferenced by any
			// file chain is treated as free on mount).
			fs.alloc.markFree(s, h.AllocCounter)
		} else {
			fs.alloc.markUsed(s)
		}
	}

	log.WithField("files", len(fs.roots)).
		WithField("free_sectors", fs.alloc.freeCount()).
		Debug("flashfs: mounted")
	return fs, nil
}

// EraseAll reformats the mounted device in place and drops every live
// file and handle, mirroring RESET_REQ_FLASH_ERASE_ALL: the original
// firmware's full-flash-erase reset variant (fs_format from reset_req)
// rather than a file-by-file delete.
func (fs *FS) EraseAll() error {
	if err := Format(fs.dev, fs.cfg); err != nil {
		return err
	}
	fs.roots = make(map[uint8]int)
	fs.handles = make([]*Handle, fs.cfg.MaxHandles)
	fs.alloc = newAllocator(fs.cfg.NumSectors)
	for s := 0; s < fs.cfg.NumSectors; s++ {
		h, err := readHeader(fs.dev, s, fs.cfg)
		if err != nil {
			return err
		}
		fs.alloc.markFree(s, h.AllocCounter)
	}
	return nil
}

// Format erases every sector, preserving each one's allocation_counter
// across the wipe by incrementing it by exactly one (spec.md §4.1
// "format", tested property 3).
func Format(dev BlockDevice, cfg conf.Config) error {
	if err := Init(dev, cfg); err != nil {
		return err
	}
	for s := 0; s < cfg.NumSectors; s++ {
		h, err := readHeader(dev, s, cfg)
		if err != nil {
			return err
		}
		if err := dev.EraseSector(s); err != nil {
			return err
		}
		if err := writeHeaderFields(dev, s, conf.FileNone, 0, 0xFF, h.AllocCounter+1); err != nil {
			return err
		}
	}
	return nil
}

// Stat is the result of stat(): spec.md §4.1's {size, user_flags,
// is_circular, is_protected}.
type Stat struct {
	Size         int64
	UserFlags    uint8
	IsCircular   bool
	IsProtected  bool
}

// Stat returns file metadata, or for fileID == conf.FileNone the device's
// total free capacity in bytes (spec.md §4.1 "stat").
func (fs *FS) Stat(fileID uint8) (Stat, error) {
	if fileID == conf.FileNone {
		return Stat{Size: int64(fs.alloc.freeCount()) * int64(fs.cfg.UsableBytesPerSector())}, nil
	}

	root, ok := fs.roots[fileID]
	if !ok {
		return Stat{}, ErrFileNotFound
	}

	h, err := readHeader(fs.dev, root, fs.cfg)
	if err != nil {
		return Stat{}, err
	}

	var size int64
	cur := root
	for {
		ch, err := readHeader(fs.dev, cur, fs.cfg)
		if err != nil {
			return Stat{}, err
		}
		size += int64(ch.liveLength())
		if ch.IsEndOfChain() {
			break
		}
		cur = int(ch.NextSector)
	}

	return Stat{
		Size:        size,
		UserFlags:   h.UserFlags,
		IsCircular:  h.IsCircular(),
		IsProtected: h.IsProtected(),
	}, nil
}

// chain returns the sector indices of fileID's chain in order, root first.
func (fs *FS) chain(fileID uint8) ([]int, error) {
	root, ok := fs.roots[fileID]
	if !ok {
		return nil, ErrFileNotFound
	}
	var sectors []int
	cur := root
	for {
		sectors = append(sectors, cur)
		h, err := readHeader(fs.dev, cur, fs.cfg)
		if err != nil {
			return nil, err
		}
		if h.IsEndOfChain() {
			break
		}
		cur = int(h.NextSector)
	}
	return sectors, nil
}

// sortedFreeByWear is a debug/test helper returning free sector indices
// ascending by allocation counter (ties by index), matching the order
// spec.md's wear-level property 4 and scenario E5 describe.
func (fs *FS) sortedFreeByWear() []int {
	var out []int
	for s := 0; s < fs.cfg.NumSectors; s++ {
		if fs.alloc.isFree(s) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return fs.alloc.counter[out[i]] < fs.alloc.counter[out[j]]
	})
	return out
}
