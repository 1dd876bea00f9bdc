// Package conf holds the platform constants of the tracker firmware: flash
// geometry, protocol limits and timing budgets that spec.md §6 fixes at
// compile time on the real MCU, plus the handful of knobs it leaves to a
// board configuration file.
//
// The layout mirrors the teacher's conf.MenderConfigFromFile: a struct
// loaded from JSON with conservative defaults filled in when the file is
// absent or a field is zero.
package conf

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Reserved file ids (spec.md §6.4).
const (
	FileConf       uint8 = 0
	FileSTM32Image uint8 = 1
	FileBLEImage   uint8 = 2
	FileLog        uint8 = 4
	FileNone       uint8 = 0xFF
)

// Flash geometry and FS limits (spec.md §3.1, §3.2, §4.1).
const (
	SyncWord uint32 = 0x7E7E7E7E

	DefaultSectorSize         = 64 * 1024
	DefaultNumSectors         = 8
	DefaultNumWriteSessions   = 32
	DefaultMaxHandles         = 4
	DefaultTransportPacketLen = 512

	// SectorHeaderFixedSize is the bit-exact layout of spec.md §6.1:
	// file_id(1) + user_flags(1) + next_sector(1) + reserved(1) +
	// allocation_counter(4) = 8 bytes, followed by the session array.
	SectorHeaderFixedSize = 8
)

// User-flag bits (spec.md §3.1).
const (
	FlagCircular uint8 = 1 << 7
	FlagProtected uint8 = 1 << 6
	FlagAppMask   uint8 = 0x3F

	// FlagSyncWrite marks a file whose handle flushes a session record
	// after every write instead of batching (original firmware's
	// log_create_req sync_enable parameter). It lives in the app-flag
	// bits so it survives remount the same way FlagCircular does.
	FlagSyncWrite uint8 = 1 << 5
)

// Protocol and state-machine timing (spec.md §4.3.4, §4.4.2).
const (
	DefaultInactivityTimeoutMS = 2000
	DefaultLogFlushPeriodSec   = 86340
	DefaultUSBEnumerateBudgetS = 10
)

// Config is the set of platform constants a board may override. Zero
// values are replaced by the defaults above, the way the teacher's
// MenderConfigFromFile leaves absent fields to be filled by
// LoadConfig's caller.
type Config struct {
	SectorSize         int `json:"SectorSize"`
	NumSectors         int `json:"NumSectors"`
	NumWriteSessions   int `json:"NumWriteSessions"`
	MaxHandles         int `json:"MaxHandles"`
	TransportPacketLen int `json:"TransportPacketLen"`

	InactivityTimeoutMS int `json:"InactivityTimeoutMS"`
	LogFlushPeriodSec   int `json:"LogFlushPeriodSec"`
	USBEnumerateBudgetS int `json:"USBEnumerateBudgetS"`

	BatteryLowThresholdMillivolts int `json:"BatteryLowThresholdMillivolts"`
}

// Default returns the compiled-in constants, matching the real device's
// build-time configuration.
func Default() Config {
	return Config{
		SectorSize:                    DefaultSectorSize,
		NumSectors:                    DefaultNumSectors,
		NumWriteSessions:              DefaultNumWriteSessions,
		MaxHandles:                    DefaultMaxHandles,
		TransportPacketLen:            DefaultTransportPacketLen,
		InactivityTimeoutMS:           DefaultInactivityTimeoutMS,
		LogFlushPeriodSec:             DefaultLogFlushPeriodSec,
		USBEnumerateBudgetS:           DefaultUSBEnumerateBudgetS,
		BatteryLowThresholdMillivolts: 3300,
	}
}

// LoadFile reads a JSON board-configuration file, overlaying non-zero
// fields onto Default(). A missing file is not an error: the caller gets
// the defaults, the way a freshly provisioned device would.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "conf: opening %s", path)
	}
	defer f.Close()

	var overlay Config
	if err := json.NewDecoder(f).Decode(&overlay); err != nil {
		return cfg, errors.Wrapf(err, "conf: decoding %s", path)
	}
	cfg.overlay(overlay)
	return cfg, nil
}

func (c *Config) overlay(o Config) {
	if o.SectorSize != 0 {
		c.SectorSize = o.SectorSize
	}
	if o.NumSectors != 0 {
		c.NumSectors = o.NumSectors
	}
	if o.NumWriteSessions != 0 {
		c.NumWriteSessions = o.NumWriteSessions
	}
	if o.MaxHandles != 0 {
		c.MaxHandles = o.MaxHandles
	}
	if o.TransportPacketLen != 0 {
		c.TransportPacketLen = o.TransportPacketLen
	}
	if o.InactivityTimeoutMS != 0 {
		c.InactivityTimeoutMS = o.InactivityTimeoutMS
	}
	if o.LogFlushPeriodSec != 0 {
		c.LogFlushPeriodSec = o.LogFlushPeriodSec
	}
	if o.USBEnumerateBudgetS != 0 {
		c.USBEnumerateBudgetS = o.USBEnumerateBudgetS
	}
	if o.BatteryLowThresholdMillivolts != 0 {
		c.BatteryLowThresholdMillivolts = o.BatteryLowThresholdMillivolts
	}
}

// SessionRecordsOffset is where the write-session array begins within a
// sector, per spec.md §6.1.
func (c Config) SessionRecordsOffset() int { return SectorHeaderFixedSize }

// SessionRecordWidth is the byte width of one write-session record. A
// single byte can only address 254 live bytes (0xFF reserved as the
// erased/unused marker), too small for any real NOR sector; spec.md §3.2's
// own "0xFF…" notation for the erased value implies a multi-byte field, so
// records are a little-endian uint16 (erased = 0xFFFF), wide enough to
// span a 64 KiB sector. See DESIGN.md for this decision.
const SessionRecordWidth = 2

// SessionArrayBytes is the on-flash size of the write-session array.
func (c Config) SessionArrayBytes() int { return c.NumWriteSessions * SessionRecordWidth }

// UsableBytesPerSector is the sector capacity left for user data, i.e. the
// sector minus its fixed header and its write-session array.
func (c Config) UsableBytesPerSector() int {
	return c.SectorSize - SectorHeaderFixedSize - c.SessionArrayBytes()
}
