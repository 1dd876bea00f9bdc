package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileOverlaysNonZeroFields(t *testing.T) {
	p := filepath.Join(t.TempDir(), "board.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"NumSectors": 16}`), 0o600))

	cfg, err := LoadFile(p)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.NumSectors)
	assert.Equal(t, DefaultSectorSize, cfg.SectorSize)
}

func TestUsableBytesPerSector(t *testing.T) {
	cfg := Default()
	assert.Equal(t, cfg.SectorSize-SectorHeaderFixedSize-cfg.NumWriteSessions, cfg.UsableBytesPerSector())
}
