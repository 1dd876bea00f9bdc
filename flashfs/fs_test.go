package flashfs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatag/firmware/conf"
	"github.com/seatag/firmware/flashfs"
	"github.com/seatag/firmware/flashfs/memdevice"
)

func testConfig() conf.Config {
	c := conf.Default()
	c.SectorSize = 256
	c.NumSectors = 8
	c.NumWriteSessions = 4
	c.MaxHandles = 4
	return c
}

func mustMount(t *testing.T, dev *memdevice.Device, cfg conf.Config) *flashfs.FS {
	t.Helper()
	require.NoError(t, flashfs.Format(dev, cfg))
	fs, err := flashfs.Mount(dev, cfg)
	require.NoError(t, err)
	return fs
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	cfg := testConfig()
	dev := memdevice.New(cfg.SectorSize, cfg.NumSectors)
	fs := mustMount(t, dev, cfg)

	w, err := fs.Open(10, flashfs.Create, 0)
	require.NoError(t, err)
	payload := make([]byte, 500)
	for i := range payload {
		payload[i] = byte(i)
	}
	n, err := w.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.NoError(t, w.Close())

	r, err := fs.Open(10, flashfs.ReadOnly, 0)
	require.NoError(t, err)
	got := make([]byte, len(payload))
	total := 0
	for total < len(got) {
		n, err := r.Read(got[total:])
		total += n
		if err != nil {
			require.NoError(t, err)
		}
		if n == 0 {
			break
		}
	}
	assert.Equal(t, payload, got)

	_, err = r.Read(make([]byte, 1))
	assert.ErrorIs(t, err, flashfs.ErrEndOfFile)
}

func TestStatSizeMatchesWrittenBytes(t *testing.T) {
	cfg := testConfig()
	dev := memdevice.New(cfg.SectorSize, cfg.NumSectors)
	fs := mustMount(t, dev, cfg)

	w, err := fs.Open(1, flashfs.Create, 0)
	require.NoError(t, err)
	_, err = w.Write(make([]byte, 300))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	st, err := fs.Stat(1)
	require.NoError(t, err)
	assert.EqualValues(t, 300, st.Size)
}

func TestFormatPreservesAndIncrementsAllocationCounters(t *testing.T) {
	cfg := testConfig()
	dev := memdevice.New(cfg.SectorSize, cfg.NumSectors)
	require.NoError(t, flashfs.Format(dev, cfg))

	fs, err := flashfs.Mount(dev, cfg)
	require.NoError(t, err)
	before := fs.DebugAllocationCounters()

	require.NoError(t, flashfs.Format(dev, cfg))
	fs2, err := flashfs.Mount(dev, cfg)
	require.NoError(t, err)
	after := fs2.DebugAllocationCounters()

	for s := range before {
		assert.Equal(t, before[s]+1, after[s])
	}
}

func TestWearLevelAllocationPicksGlobalMinimum(t *testing.T) {
	cfg := testConfig()
	dev := memdevice.New(cfg.SectorSize, cfg.NumSectors)
	dev.SeedAllocationCounters([]uint32{10, 3, 7, 1, 5, 12, 0, 9})
	fs, err := flashfs.Mount(dev, cfg)
	require.NoError(t, err)

	expectRoot := map[uint8]int{
		0: 6, 1: 3, 2: 1, 3: 4, 4: 2, 5: 7, 6: 0, 7: 5,
	}
	for fid := uint8(0); fid < 8; fid++ {
		w, err := fs.Open(fid, flashfs.Create, 0)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		st, err := fs.Stat(fid)
		require.NoError(t, err)
		_ = st
		assert.Equal(t, expectRoot[fid], fs.DebugRootSector(fid), "file %d", fid)
	}
}

func TestFlushWithoutNewDataIsNoOp(t *testing.T) {
	cfg := testConfig()
	cfg.NumSectors = 2
	dev := memdevice.New(cfg.SectorSize, cfg.NumSectors)
	fs := mustMount(t, dev, cfg)

	w, err := fs.Open(1, flashfs.Create, 0)
	require.NoError(t, err)

	limit := cfg.NumSectors*cfg.NumWriteSessions*4 + 50
	for i := 0; i < limit; i++ {
		require.NoError(t, w.Flush())
	}
	n, err := w.Write([]byte("hi"))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	st, err := fs.Stat(1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.Size)
}

func TestCircularFileOverwritesOldestSector(t *testing.T) {
	cfg := testConfig()
	cfg.NumSectors = 3
	dev := memdevice.New(cfg.SectorSize, cfg.NumSectors)
	fs := mustMount(t, dev, cfg)

	w, err := fs.Open(2, flashfs.CreateCircular, 0)
	require.NoError(t, err)

	capacity := cfg.UsableBytesPerSector()
	block := make([]byte, capacity)
	for round := 0; round < 6; round++ {
		for i := range block {
			block[i] = byte(round)
		}
		_, err := w.Write(block)
		require.NoError(t, err)
		require.NoError(t, w.Flush())
	}
	require.NoError(t, w.Close())

	st, err := fs.Stat(2)
	require.NoError(t, err)
	assert.True(t, st.IsCircular)
	assert.LessOrEqual(t, st.Size, int64(capacity)*int64(cfg.NumSectors))
}

func TestProtectedFileCannotBeWrittenOrDeleted(t *testing.T) {
	cfg := testConfig()
	dev := memdevice.New(cfg.SectorSize, cfg.NumSectors)
	fs := mustMount(t, dev, cfg)

	w, err := fs.Open(5, flashfs.Create, 0)
	require.NoError(t, err)
	_, err = w.Write([]byte("seed"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, fs.Protect(5))

	_, err = fs.Open(5, flashfs.WriteOnly, 0)
	assert.ErrorIs(t, err, flashfs.ErrFileProtected)

	err = fs.Delete(5)
	assert.ErrorIs(t, err, flashfs.ErrFileProtected)

	r, err := fs.Open(5, flashfs.ReadOnly, 0)
	require.NoError(t, err)
	buf := make([]byte, 4)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "seed", string(buf[:n]))

	require.NoError(t, fs.Unprotect(5))
	w2, err := fs.Open(5, flashfs.WriteOnly, 0)
	require.NoError(t, err)
	_, err = w2.Write([]byte("!"))
	require.NoError(t, err)
	require.NoError(t, w2.Close())

	require.NoError(t, fs.Delete(5))
	_, err = fs.Stat(5)
	assert.ErrorIs(t, err, flashfs.ErrFileNotFound)
}

func TestOpeningNonexistentFileFails(t *testing.T) {
	cfg := testConfig()
	dev := memdevice.New(cfg.SectorSize, cfg.NumSectors)
	fs := mustMount(t, dev, cfg)

	_, err := fs.Open(99, flashfs.ReadOnly, 0)
	assert.ErrorIs(t, err, flashfs.ErrFileNotFound)
}

func TestCreatingExistingFileFails(t *testing.T) {
	cfg := testConfig()
	dev := memdevice.New(cfg.SectorSize, cfg.NumSectors)
	fs := mustMount(t, dev, cfg)

	w, err := fs.Open(3, flashfs.Create, 0)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = fs.Open(3, flashfs.Create, 0)
	assert.ErrorIs(t, err, flashfs.ErrFileAlreadyExists)
}

func TestNonCircularFileSystemFullOnExhaustion(t *testing.T) {
	cfg := testConfig()
	cfg.NumSectors = 2
	dev := memdevice.New(cfg.SectorSize, cfg.NumSectors)
	fs := mustMount(t, dev, cfg)

	w, err := fs.Open(1, flashfs.Create, 0)
	require.NoError(t, err)
	capacity := cfg.UsableBytesPerSector()
	_, err = w.Write(make([]byte, capacity)) // fills the root sector exactly
	require.NoError(t, err)
	_, err = w.Write(make([]byte, capacity)) // rolls onto the one remaining free sector
	require.NoError(t, err)
	_, err = w.Write([]byte{1}) // no free sectors left, file is not circular
	assert.ErrorIs(t, err, flashfs.ErrFileSystemFull)
}

func TestSyncWriteFlagCommitsEveryWrite(t *testing.T) {
	cfg := testConfig()
	dev := memdevice.New(cfg.SectorSize, cfg.NumSectors)
	fs := mustMount(t, dev, cfg)

	w, err := fs.Open(7, flashfs.Create, conf.FlagSyncWrite)
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)

	// No Close/Flush yet: a reader only sees this without the write handle
	// ever closing if FlagSyncWrite committed a session record on its own.
	r, err := fs.Open(7, flashfs.ReadOnly, 0)
	require.NoError(t, err)
	got := make([]byte, len("partial"))
	n, err := r.Read(got)
	require.NoError(t, err)
	assert.Equal(t, "partial", string(got[:n]))
}

func TestEraseAllReformatsAndDropsFiles(t *testing.T) {
	cfg := testConfig()
	dev := memdevice.New(cfg.SectorSize, cfg.NumSectors)
	fs := mustMount(t, dev, cfg)

	w, err := fs.Open(1, flashfs.Create, 0)
	require.NoError(t, err)
	_, err = w.Write([]byte("doomed"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, fs.EraseAll())

	_, err = fs.Stat(1)
	assert.ErrorIs(t, err, flashfs.ErrFileNotFound)

	free, err := fs.Stat(conf.FileNone)
	require.NoError(t, err)
	assert.EqualValues(t, cfg.NumSectors*cfg.UsableBytesPerSector(), free.Size)

	w2, err := fs.Open(1, flashfs.Create, 0)
	require.NoError(t, err)
	require.NoError(t, w2.Close())
}

func TestMountRoundTripAfterOperations(t *testing.T) {
	cfg := testConfig()
	dev := memdevice.New(cfg.SectorSize, cfg.NumSectors)
	fs := mustMount(t, dev, cfg)

	w, err := fs.Open(1, flashfs.Create, 0)
	require.NoError(t, err)
	_, err = w.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	fs2, err := flashfs.Mount(dev, cfg)
	require.NoError(t, err)
	st, err := fs2.Stat(1)
	require.NoError(t, err)
	assert.EqualValues(t, len("hello world"), st.Size)
}
