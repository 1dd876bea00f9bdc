// Package sm implements the top-level operational state machine and the
// GPS acquisition sub-state machine (spec.md component G, §4.4). The
// shape follows the teacher's app.State/Controller split: states are
// named by an id, transitions are decided centrally each iteration, and
// entry/exit actions run exactly once per state visit rather than being
// sprinkled through per-state booleans.
package sm

// StateID names one of the top-level states (spec.md §4.4).
type StateID uint8

const (
	Boot StateID = iota
	BatteryCharging
	BatteryLevelLow
	LogFileFull
	ProvisioningNeeded
	Provisioning
	Operational
)

func (s StateID) String() string {
	switch s {
	case Boot:
		return "Boot"
	case BatteryCharging:
		return "BatteryCharging"
	case BatteryLevelLow:
		return "BatteryLevelLow"
	case LogFileFull:
		return "LogFileFull"
	case ProvisioningNeeded:
		return "ProvisioningNeeded"
	case Provisioning:
		return "Provisioning"
	case Operational:
		return "Operational"
	default:
		return "Unknown"
	}
}
