package cfgstore

// Tag identifies a configuration value (spec.md §3.5). The real device
// keeps the authoritative tag/size table in a static, hand-maintained
// schema file (spec.md §1 lists it explicitly out of scope, "a pure data
// schema"); this is the store's own copy of that schema, grouped by
// domain the way spec.md §4.2 describes (logging, GPS, pressure,
// accelerometer, temperature, battery, Bluetooth, RTC).
type Tag uint16

// GPS trigger modes (spec.md §4.4.5, §9.2).
type GPSTriggerMode uint8

const (
	GPSTriggerSwitch    GPSTriggerMode = 0
	GPSTriggerScheduled GPSTriggerMode = 1
	GPSTriggerHybrid    GPSTriggerMode = 2
)

// Periodic/threshold sampling modes (spec.md §6.3).
type SampleMode uint8

const (
	SamplePeriodic  SampleMode = 0
	SampleThreshold SampleMode = 1
)

const (
	// Logging domain.
	TagLoggingEnable Tag = 0x0100
	TagLoggingDateTimeStamp Tag = 0x0101

	// GPS domain.
	TagGPSLogPositionEnable   Tag = 0x0200
	TagGPSTriggerMode         Tag = 0x0201
	TagGPSScheduledIntervalS  Tag = 0x0202
	TagGPSMaxAcquisitionTimeS Tag = 0x0203
	TagGPSNoFixTimeoutS       Tag = 0x0204
	TagGPSLastKnownLat        Tag = 0x0205
	TagGPSLastKnownLon        Tag = 0x0206

	// Pressure domain.
	TagPressureMode         Tag = 0x0300
	TagPressureLowThreshold Tag = 0x0301
	TagPressureHighThreshold Tag = 0x0302
	TagPressureSamplePeriodS Tag = 0x0303

	// Accelerometer domain.
	TagAxlMode            Tag = 0x0400
	TagAxlHighThreshold    Tag = 0x0401
	TagAxlSamplePeriodS    Tag = 0x0402

	// Temperature domain.
	TagTemperatureEnable    Tag = 0x0500
	TagTemperatureSamplePeriodS Tag = 0x0501

	// Battery domain.
	TagBatteryLowThresholdMv Tag = 0x0600

	// Bluetooth domain.
	TagBLEAdvertisingEnable Tag = 0x0700
	TagBLEConnectionParams  Tag = 0x0701
	TagBLEPreferredPHY      Tag = 0x0702

	// RTC domain.
	TagRTCEpochSeconds Tag = 0x0800
)

// fieldSize is the schema's per-tag value width in bytes.
var fieldSize = map[Tag]int{
	TagLoggingEnable:         1,
	TagLoggingDateTimeStamp:  1,
	TagGPSLogPositionEnable:  1,
	TagGPSTriggerMode:        1,
	TagGPSScheduledIntervalS: 4,
	TagGPSMaxAcquisitionTimeS: 4,
	TagGPSNoFixTimeoutS:      4,
	TagGPSLastKnownLat:       4,
	TagGPSLastKnownLon:       4,
	TagPressureMode:          1,
	TagPressureLowThreshold:  4,
	TagPressureHighThreshold: 4,
	TagPressureSamplePeriodS: 4,
	TagAxlMode:               1,
	TagAxlHighThreshold:      4,
	TagAxlSamplePeriodS:      4,
	TagTemperatureEnable:     1,
	TagTemperatureSamplePeriodS: 4,
	TagBatteryLowThresholdMv: 4,
	TagBLEAdvertisingEnable:  1,
	TagBLEConnectionParams:   4,
	TagBLEPreferredPHY:       1,
	TagRTCEpochSeconds:       4,
}

// allTags is fieldSize's keys in a stable order, used by Iterate and by
// persistence so the on-flash layout is deterministic.
var allTags = func() []Tag {
	tags := make([]Tag, 0, len(fieldSize))
	for t := range fieldSize {
		tags = append(tags, t)
	}
	// Simple insertion sort: the table is small and static, and this
	// keeps iteration order stable without pulling in sort for a
	// one-time startup cost.
	for i := 1; i < len(tags); i++ {
		for j := i; j > 0 && tags[j] < tags[j-1]; j-- {
			tags[j], tags[j-1] = tags[j-1], tags[j]
		}
	}
	return tags
}()

func sizeOf(t Tag) (int, bool) {
	n, ok := fieldSize[t]
	return n, ok
}

// WidthOf returns tag's fixed value width per the schema, for callers
// (notably proto's CfgWriteNext) that must know how many stream bytes to
// consume for a tag before calling Set.
func WidthOf(t Tag) (int, bool) { return sizeOf(t) }
