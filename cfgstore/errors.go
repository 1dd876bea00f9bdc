package cfgstore

// Error is the configuration store's failure taxonomy (spec.md §4.2,
// §7.1's InvalidConfigTag/ConfigTagNotSet/FileIncompatible).
type Error string

const (
	ErrInvalidTag          Error = "invalid config tag"
	ErrNotSet              Error = "config tag not set"
	ErrWrongSize           Error = "wrong value size for config tag"
	ErrFileVersionMismatch Error = "config file version mismatch"
)

func (e Error) Error() string { return string(e) }

func (e Error) Is(target error) bool {
	t, ok := target.(Error)
	return ok && t == e
}
