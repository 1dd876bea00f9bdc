package flashfs

import "github.com/pkg/errors"

// Error is the flash file system's failure taxonomy (spec.md §4.1.6). The
// FS never panics: every operation that can fail returns one of these,
// wrapped with context via github.com/pkg/errors the way the teacher wraps
// its own errors.
type Error string

const (
	ErrBadDevice           Error = "bad device"
	ErrFileNotFound        Error = "file not found"
	ErrFileAlreadyExists   Error = "file already exists"
	ErrFileProtected       Error = "file protected"
	ErrNoFreeHandle        Error = "no free handle"
	ErrFileSystemFull      Error = "file system full"
	ErrEndOfFile           Error = "end of file"
	ErrFileVersionMismatch Error = "file version mismatch"
	ErrFlashMedia          Error = "flash media error"
)

func (e Error) Error() string { return string(e) }

// Is lets errors.Is match a wrapped sentinel, e.g.
// errors.Is(err, flashfs.ErrFileNotFound).
func (e Error) Is(target error) bool {
	t, ok := target.(Error)
	return ok && t == e
}

// Cause unwraps to the sentinel itself so github.com/pkg/errors.Cause(err)
// returns a value test code can compare directly.
func Cause(err error) error {
	return errors.Cause(err)
}
