package flashfs

// DebugAllocationCounters and DebugRootSector expose internal layout for
// tests that assert on spec.md's wear-levelling properties (§8.1 items
// 3-4, scenario E5); they perform no mutation.

func (fs *FS) DebugAllocationCounters() []uint32 {
	out := make([]uint32, len(fs.alloc.counter))
	copy(out, fs.alloc.counter)
	return out
}

func (fs *FS) DebugRootSector(fileID uint8) int {
	return fs.roots[fileID]
}
