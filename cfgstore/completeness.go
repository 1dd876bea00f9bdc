package cfgstore

// Complete implements configuration_complete (spec.md §6.3): a
// configuration is ready for Operational state when every tag that
// currently matters is set, where "matters" depends on other tags'
// values (a conditional mask, not a flat required-set).
//
// Required reads that fail with ErrNotSet are the precise signal spec.md
// ties to remaining in ProvisioningNeeded; Complete folds that into a
// single bool plus the first missing tag, for logging.
func (s *Store) Complete() (ok bool, missing Tag) {
	required := s.requiredTags()
	for _, t := range required {
		if !s.IsSet(t) {
			return false, t
		}
	}
	return true, 0
}

// requiredTags computes which tags must currently be set, applying the
// conditional-mask implications of spec.md §6.3 in order: a gating tag is
// itself always required (so its own absence short-circuits the
// sub-tree), and its dependents are only required once it reads true.
func (s *Store) requiredTags() []Tag {
	req := []Tag{TagLoggingEnable}

	if !s.boolTag(TagLoggingEnable) {
		// spec.md §6.3: "if logging.enable == false, all logging and
		// sensor-log tags are irrelevant" — the entire sensor-log
		// subtree below is gated on logging being on, not just its own
		// per-domain enable bit, so a logging-off device never gets
		// stranded in ProvisioningNeeded waiting on sensor config it
		// will never use.
		return req
	}

	req = append(req, TagLoggingDateTimeStamp, TagGPSLogPositionEnable, TagPressureMode, TagAxlMode, TagTemperatureEnable)

	if s.boolTag(TagGPSLogPositionEnable) {
		req = append(req, TagGPSTriggerMode)

		switch s.gpsTriggerMode() {
		case GPSTriggerScheduled, GPSTriggerHybrid:
			req = append(req, TagGPSScheduledIntervalS, TagGPSMaxAcquisitionTimeS, TagGPSNoFixTimeoutS)
		case GPSTriggerSwitch:
			// Switch-triggered acquisition needs no scheduled interval or
			// no-fix timeout (spec.md §6.3).
		}
	}

	switch s.sampleMode(TagPressureMode) {
	case SampleThreshold:
		req = append(req, TagPressureLowThreshold, TagPressureHighThreshold)
	case SamplePeriodic:
		req = append(req, TagPressureSamplePeriodS)
	}

	switch s.sampleMode(TagAxlMode) {
	case SampleThreshold:
		req = append(req, TagAxlHighThreshold)
	case SamplePeriodic:
		req = append(req, TagAxlSamplePeriodS)
	}

	if s.boolTag(TagTemperatureEnable) {
		req = append(req, TagTemperatureSamplePeriodS)
	}

	// GPS last-known-position, the battery low threshold and every
	// Bluetooth tag are always optional (spec.md §6.3): a provisioned
	// device with sane compiled-in defaults for them is still complete.

	return req
}

func (s *Store) boolTag(t Tag) bool {
	v, err := s.Get(t)
	return err == nil && len(v) == 1 && v[0] != 0
}

func (s *Store) gpsTriggerMode() GPSTriggerMode {
	v, err := s.Get(TagGPSTriggerMode)
	if err != nil || len(v) != 1 {
		return GPSTriggerSwitch
	}
	return GPSTriggerMode(v[0])
}

func (s *Store) sampleMode(t Tag) SampleMode {
	v, err := s.Get(t)
	if err != nil || len(v) != 1 {
		return SamplePeriodic
	}
	return SampleMode(v[0])
}
