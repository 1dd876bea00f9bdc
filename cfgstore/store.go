// Package cfgstore implements the configuration store of spec.md §4.2: a
// flat, fully in-RAM tag -> value registry, each tag's size fixed by the
// static schema in schema.go, persisted as one packed blob to file id
// conf.FileConf via flashfs.
package cfgstore

import (
	"github.com/pkg/errors"

	"github.com/seatag/firmware/conf"
	"github.com/seatag/firmware/flashfs"
)

// FormatVersion is the first byte of the persisted blob (spec.md §4.2).
const FormatVersion uint8 = 1

type entry struct {
	value []byte
	set   bool
}

// Store is the configuration registry. It is not safe for concurrent use,
// matching spec.md §5's single-main-loop-mutator model.
type Store struct {
	entries map[Tag]*entry
}

// New returns a store with every known tag present but unset, the way
// configuration_complete (see completeness.go) expects to enumerate
// "known tags whether or not set".
func New() *Store {
	s := &Store{entries: make(map[Tag]*entry, len(allTags))}
	for _, t := range allTags {
		s.entries[t] = &entry{}
	}
	return s
}

// Reset clears every tag back to unset, the way the teacher's
// set_default_global_values resets process-wide state between tests.
func (s *Store) Reset() {
	for _, e := range s.entries {
		e.set = false
		e.value = nil
	}
}

// Get returns tag's value. ErrNotSet if the tag has never been written,
// ErrInvalidTag if it isn't in the schema.
func (s *Store) Get(tag Tag) ([]byte, error) {
	e, ok := s.entries[tag]
	if !ok {
		return nil, ErrInvalidTag
	}
	if !e.set {
		return nil, ErrNotSet
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores value under tag. ErrWrongSize if len(value) doesn't match
// the schema's fixed width for tag.
func (s *Store) Set(tag Tag, value []byte) error {
	e, ok := s.entries[tag]
	if !ok {
		return ErrInvalidTag
	}
	width, _ := sizeOf(tag)
	if len(value) != width {
		return ErrWrongSize
	}
	e.value = append([]byte(nil), value...)
	e.set = true
	return nil
}

// Unset marks tag as never-written again, distinguishing it from a tag
// explicitly set to all zeros (spec.md §3.5).
func (s *Store) Unset(tag Tag) error {
	e, ok := s.entries[tag]
	if !ok {
		return ErrInvalidTag
	}
	e.set = false
	e.value = nil
	return nil
}

// IsSet reports whether tag has been explicitly written.
func (s *Store) IsSet(tag Tag) bool {
	e, ok := s.entries[tag]
	return ok && e.set
}

// Cursor walks every known tag in a fixed order (spec.md §4.2 "iterate").
type Cursor struct{ i int }

// Iterate advances cur and returns the next known tag, or ok=false when
// exhausted. Callers check set-ness separately via IsSet, per spec.md.
func (s *Store) Iterate(cur *Cursor) (Tag, bool) {
	if cur.i >= len(allTags) {
		return 0, false
	}
	t := allTags[cur.i]
	cur.i++
	return t, true
}

// Marshal packs the whole store into the persisted blob format: a format
// version byte, then for every known tag (in schema order) a set-flag
// byte followed by its value bytes when set.
//
// This is hand-rolled rather than github.com/go-restruct/restruct (used
// elsewhere in this repo for fixed Go structs) because the tag table is a
// runtime map of heterogeneously-sized fields; restruct packs static
// struct layouts, not a schema-driven variable record set. See DESIGN.md.
func (s *Store) Marshal() []byte {
	buf := []byte{FormatVersion}
	for _, t := range allTags {
		e := s.entries[t]
		if e.set {
			buf = append(buf, 1)
			buf = append(buf, e.value...)
		} else {
			buf = append(buf, 0)
		}
	}
	return buf
}

// Unmarshal restores a store from Marshal's output. ErrFileVersionMismatch
// if the leading version byte doesn't match FormatVersion.
func Unmarshal(blob []byte) (*Store, error) {
	if len(blob) < 1 {
		return nil, ErrFileVersionMismatch
	}
	if blob[0] != FormatVersion {
		return nil, ErrFileVersionMismatch
	}
	s := New()
	pos := 1
	for _, t := range allTags {
		if pos >= len(blob) {
			return nil, errors.New("cfgstore: truncated configuration blob")
		}
		isSet := blob[pos]
		pos++
		width, _ := sizeOf(t)
		if isSet == 1 {
			if pos+width > len(blob) {
				return nil, errors.New("cfgstore: truncated configuration blob")
			}
			s.entries[t].set = true
			s.entries[t].value = append([]byte(nil), blob[pos:pos+width]...)
			pos += width
		}
	}
	return s, nil
}

// Save persists the store to file id conf.FileConf. The flash file system
// is append-only with no in-place truncation (spec.md's general-purpose
// semantics, e.g. truncation, are an explicit Non-goal), so a save
// deletes any prior CONF file and writes a fresh one.
func (s *Store) Save(fsys *flashfs.FS) error {
	if _, err := fsys.Stat(conf.FileConf); err == nil {
		if err := fsys.Delete(conf.FileConf); err != nil {
			return errors.Wrap(err, "cfgstore: deleting previous config file")
		}
	}
	h, err := fsys.Open(conf.FileConf, flashfs.Create, 0)
	if err != nil {
		return errors.Wrap(err, "cfgstore: creating config file")
	}
	blob := s.Marshal()
	if _, err := h.Write(blob); err != nil {
		_ = h.Close()
		return errors.Wrap(err, "cfgstore: writing config file")
	}
	return h.Close()
}

// Restore loads the store from file id conf.FileConf.
func Restore(fsys *flashfs.FS) (*Store, error) {
	h, err := fsys.Open(conf.FileConf, flashfs.ReadOnly, 0)
	if err != nil {
		return nil, errors.Wrap(err, "cfgstore: opening config file")
	}
	var blob []byte
	buf := make([]byte, 256)
	for {
		n, err := h.Read(buf)
		blob = append(blob, buf[:n]...)
		if err == flashfs.ErrEndOfFile {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "cfgstore: reading config file")
		}
		if n == 0 {
			break
		}
	}
	return Unmarshal(blob)
}
