package flashfs

import "github.com/seatag/firmware/conf"

// Delete erases every sector in fileID's chain (spec.md §4.1 "delete").
// Each erased sector's header is rewritten free with allocation_counter
// incremented by one. Fails with ErrFileProtected if the file is
// protected.
func (fs *FS) Delete(fileID uint8) error {
	root, ok := fs.roots[fileID]
	if !ok {
		return ErrFileNotFound
	}
	rh, err := readHeader(fs.dev, root, fs.cfg)
	if err != nil {
		return err
	}
	if rh.IsProtected() {
		return ErrFileProtected
	}

	sectors, err := fs.chain(fileID)
	if err != nil {
		return err
	}
	for _, s := range sectors {
		h, err := readHeader(fs.dev, s, fs.cfg)
		if err != nil {
			return err
		}
		if err := fs.dev.EraseSector(s); err != nil {
			return err
		}
		if err := writeHeaderFields(fs.dev, s, conf.FileNone, 0, 0xFF, h.AllocCounter+1); err != nil {
			return err
		}
		fs.alloc.markFree(s, h.AllocCounter+1)
	}
	delete(fs.roots, fileID)
	return nil
}

// Protect sets the protected bit. This only clears a bit in place (normal
// is 1, protected is 0 — spec.md §4.1), so it never needs to move the
// root sector.
func (fs *FS) Protect(fileID uint8) error {
	root, ok := fs.roots[fileID]
	if !ok {
		return ErrFileNotFound
	}
	rh, err := readHeader(fs.dev, root, fs.cfg)
	if err != nil {
		return err
	}
	if rh.IsProtected() {
		return nil
	}
	return writeHeaderFields(fs.dev, root, rh.FileID, rh.UserFlags&^conf.FlagProtected, rh.NextSector, rh.AllocCounter)
}

// Unprotect clears the protected condition, i.e. sets the protected bit
// back to 1. NOR flash cannot set a bit in place, so the root sector's
// header (and its already-committed data) is relocated to a freshly
// allocated sector and the old root is freed (spec.md §4.1 "unprotect").
func (fs *FS) Unprotect(fileID uint8) error {
	root, ok := fs.roots[fileID]
	if !ok {
		return ErrFileNotFound
	}
	rh, err := readHeader(fs.dev, root, fs.cfg)
	if err != nil {
		return err
	}
	if !rh.IsProtected() {
		return nil
	}

	newRoot, counter, ok := fs.pickFree()
	if !ok {
		return ErrFileSystemFull
	}

	live := rh.liveLength()
	data := make([]byte, live)
	if live > 0 {
		if err := fs.dev.ReadAt(root, dataOffset(fs.cfg), data); err != nil {
			return err
		}
	}

	if err := fs.dev.EraseSector(newRoot); err != nil {
		return err
	}
	if err := writeHeaderFields(fs.dev, newRoot, rh.FileID, rh.UserFlags|conf.FlagProtected, rh.NextSector, counter+1); err != nil {
		return err
	}
	if live > 0 {
		if err := fs.dev.WriteAt(newRoot, dataOffset(fs.cfg), data); err != nil {
			return err
		}
		if err := writeSessionRecord(fs.dev, newRoot, 0, uint16(live)); err != nil {
			return err
		}
	}
	fs.alloc.markUsed(newRoot)

	if err := fs.dev.EraseSector(root); err != nil {
		return err
	}
	if err := writeHeaderFields(fs.dev, root, conf.FileNone, 0, 0xFF, rh.AllocCounter+1); err != nil {
		return err
	}
	fs.alloc.markFree(root, rh.AllocCounter+1)

	fs.roots[fileID] = newRoot
	return nil
}
