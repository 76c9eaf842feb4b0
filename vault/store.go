package vault

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Store is the ordered, label-unique collection of entries held in memory.
type Store struct {
	entries []Entry
}

// NewStore builds a store from entries, failing on the first invalid or
// duplicate one.
func NewStore(entries ...Entry) (*Store, error) {
	s := &Store{}
	for _, e := range entries {
		if err := s.Add(e); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Prepare applies defaults and validates e without touching any store.
func Prepare(e Entry) (Entry, error) {
	if strings.TrimSpace(e.Label) == "" {
		return e, fmt.Errorf("%w: empty label", ErrInvalidEntry)
	}
	// Labels are stored as JSON strings, which cannot carry invalid UTF-8.
	if !utf8.ValidString(e.Label) {
		return e, fmt.Errorf("%w: label %q is not valid UTF-8", ErrInvalidEntry, e.Label)
	}
	e.Key = e.Key.WithDefaults()
	if err := e.Key.Validate(); err != nil {
		return e, fmt.Errorf("%w: %q: %w", ErrInvalidEntry, e.Label, err)
	}
	return e, nil
}

func (s *Store) Add(e Entry) error {
	e, err := Prepare(e)
	if err != nil {
		return err
	}
	if s.index(e.Label) >= 0 {
		return fmt.Errorf("%w: %q", ErrDuplicateLabel, e.Label)
	}
	s.entries = append(s.entries, e.Clone())
	return nil
}

// Replace swaps the entry stored under label for e, keeping its position.
// e may carry a new label as long as it does not collide with another entry.
func (s *Store) Replace(label string, e Entry) error {
	i := s.index(label)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrEntryNotFound, label)
	}
	e, err := Prepare(e)
	if err != nil {
		return err
	}
	if j := s.index(e.Label); j >= 0 && j != i {
		return fmt.Errorf("%w: %q", ErrDuplicateLabel, e.Label)
	}
	zero(s.entries[i].Secret)
	s.entries[i] = e.Clone()
	return nil
}

func (s *Store) Remove(label string) error {
	i := s.index(label)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrEntryNotFound, label)
	}
	zero(s.entries[i].Secret)
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	return nil
}

// Get finds an entry by exact, case-sensitive label.
func (s *Store) Get(label string) (Entry, bool) {
	if i := s.index(label); i >= 0 {
		return s.entries[i].Clone(), true
	}
	return Entry{}, false
}

// Resolve tries an exact match, then a case-insensitive match, then the first
// case-insensitive prefix match.
func (s *Store) Resolve(query string) (Entry, bool) {
	if e, ok := s.Get(query); ok {
		return e, true
	}
	q := strings.ToLower(query)
	for _, e := range s.entries {
		if strings.ToLower(e.Label) == q {
			return e.Clone(), true
		}
	}
	if q == "" {
		return Entry{}, false
	}
	for _, e := range s.entries {
		if strings.HasPrefix(strings.ToLower(e.Label), q) {
			return e.Clone(), true
		}
	}
	return Entry{}, false
}

// Search returns the entries whose label contains query, ignoring case.
func (s *Store) Search(query string) []Entry {
	q := strings.ToLower(strings.TrimSpace(query))
	out := []Entry{}
	for _, e := range s.entries {
		if strings.Contains(strings.ToLower(e.Label), q) {
			out = append(out, e.Clone())
		}
	}
	return out
}

// Entries returns copies of all entries in insertion order.
func (s *Store) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Clone()
	}
	return out
}

func (s *Store) Len() int { return len(s.entries) }

// Merge appends every entry of other whose label is not already present and
// returns the skipped labels. Nothing is applied if any entry is invalid.
func (s *Store) Merge(other *Store) (added, skipped []string, err error) {
	batch := make([]Entry, 0, other.Len())
	for _, e := range other.entries {
		e, err := Prepare(e)
		if err != nil {
			return nil, nil, err
		}
		batch = append(batch, e)
	}

	seen := make(map[string]bool, len(batch))
	for _, e := range batch {
		if seen[e.Label] || s.index(e.Label) >= 0 {
			skipped = append(skipped, e.Label)
			continue
		}
		seen[e.Label] = true
		s.entries = append(s.entries, e.Clone())
		added = append(added, e.Label)
	}
	return added, skipped, nil
}

// Zero wipes every secret held by the store and empties it.
func (s *Store) Zero() {
	for i := range s.entries {
		zero(s.entries[i].Secret)
	}
	s.entries = nil
}

func (s *Store) index(label string) int {
	for i, e := range s.entries {
		if e.Label == label {
			return i
		}
	}
	return -1
}
