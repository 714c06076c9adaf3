package coverage

import (
	"path/filepath"
	"sort"
)

// Normalizer converts a possibly-relative or aliased path into the
// canonical key used to index the store. Two spellings of the same
// physical file must normalize to the same key.
type Normalizer func(path string) (string, error)

// DefaultNormalizer resolves to an absolute, cleaned path, following
// symlinks when the file exists.
func DefaultNormalizer(path string) (string, error) {
	if path == "" {
		return "", validationErrorf("empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return abs, nil
}

// Store holds one SourceFile per tracked file for the duration of a
// session.
//
// The store assumes exclusive, serialized access: during a session every
// runtime event arrives synchronously on the interpreter's own goroutine,
// so there is no internal locking. Cross-process aggregation happens only
// through snapshot merging after sessions stop.
type Store struct {
	normalize Normalizer

	// canon caches normalization results; the hot path sees the same raw
	// spelling on every event.
	canon map[string]string

	files  map[string]*SourceFile
	sealed bool
}

// NewStore creates an empty store. A nil normalizer selects
// DefaultNormalizer.
func NewStore(normalize Normalizer) *Store {
	if normalize == nil {
		normalize = DefaultNormalizer
	}
	return &Store{
		normalize: normalize,
		canon:     make(map[string]string),
		files:     make(map[string]*SourceFile),
	}
}

// Canonical returns the canonical key for path.
func (s *Store) Canonical(path string) (string, error) {
	if key, ok := s.canon[path]; ok {
		return key, nil
	}
	key, err := s.normalize(path)
	if err != nil {
		return "", err
	}
	s.canon[path] = key
	return key, nil
}

// HasFile reports whether the store tracks path.
func (s *Store) HasFile(path string) bool {
	key, err := s.Canonical(path)
	if err != nil {
		return false
	}
	_, ok := s.files[key]
	return ok
}

// InitFile registers a file with its source and CodeMap. It is
// idempotent: a second call for the same canonical path returns the
// existing entry untouched, so it does not matter which component touches
// a file first.
func (s *Store) InitFile(path, source string, cm *CodeMap) (*SourceFile, error) {
	if cm == nil {
		return nil, validationErrorf("nil code map for %s", path)
	}
	key, err := s.Canonical(path)
	if err != nil {
		return nil, err
	}
	if sf, ok := s.files[key]; ok {
		return sf, nil
	}
	if s.sealed {
		return nil, ErrSealed
	}
	sf := newSourceFile(key, source, cm)
	s.files[key] = sf
	return sf, nil
}

// GetFile returns the record for path.
func (s *Store) GetFile(path string) (*SourceFile, error) {
	key, err := s.Canonical(path)
	if err != nil {
		return nil, err
	}
	sf, ok := s.files[key]
	if !ok {
		return nil, ErrUnknownFile
	}
	return sf, nil
}

// Files returns the canonical keys of all tracked files, sorted.
func (s *Store) Files() []string {
	keys := make([]string, 0, len(s.files))
	for key := range s.files {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Line returns a copy of the record for line n of path.
func (s *Store) Line(path string, n int) (Line, error) {
	sf, err := s.GetFile(path)
	if err != nil {
		return Line{}, err
	}
	ln, ok := sf.Line(n)
	if !ok {
		return Line{}, validationErrorf("%s: line %d out of range", sf.path, n)
	}
	return ln, nil
}

// SetLineExecuted records an execution observation for a line.
func (s *Store) SetLineExecuted(path string, n int) error {
	sf, err := s.mutable(path)
	if err != nil {
		return err
	}
	return sf.markLineExecuted(n)
}

// SetLineCovered records an assertion-validated observation for a line,
// forcing execution if the line was never observed running.
func (s *Store) SetLineCovered(path string, n int) error {
	sf, err := s.mutable(path)
	if err != nil {
		return err
	}
	return sf.markLineCovered(n)
}

// SetBlockExecuted records an execution observation for a block.
func (s *Store) SetBlockExecuted(path string, id BlockID) error {
	sf, err := s.mutable(path)
	if err != nil {
		return err
	}
	return sf.markBlockExecuted(id)
}

// SetBlockCovered marks a block covered, forcing execution first.
func (s *Store) SetBlockCovered(path string, id BlockID) error {
	sf, err := s.mutable(path)
	if err != nil {
		return err
	}
	return sf.markBlockCovered(id)
}

// SetConditionExecuted counts one evaluation of a condition.
func (s *Store) SetConditionExecuted(path string, id CondID) error {
	sf, err := s.mutable(path)
	if err != nil {
		return err
	}
	return sf.markConditionExecuted(id)
}

// SetConditionOutcome records an observed boolean outcome for a condition.
func (s *Store) SetConditionOutcome(path string, id CondID, outcome bool) error {
	sf, err := s.mutable(path)
	if err != nil {
		return err
	}
	return sf.markConditionOutcome(id, outcome)
}

// SetFunctionExecuted records a call observation for a function.
func (s *Store) SetFunctionExecuted(path string, id FuncID) error {
	sf, err := s.mutable(path)
	if err != nil {
		return err
	}
	return sf.markFunctionExecuted(id)
}

// SetFunctionCovered marks a function covered, forcing execution first.
func (s *Store) SetFunctionCovered(path string, id FuncID) error {
	sf, err := s.mutable(path)
	if err != nil {
		return err
	}
	return sf.markFunctionCovered(id)
}

// ClearLineExecution strips runtime state from a line. Patchup uses this
// to revoke observations on lines the analyzer proves non-executable.
func (s *Store) ClearLineExecution(path string, n int) error {
	sf, err := s.mutable(path)
	if err != nil {
		return err
	}
	sf.clearLineExecution(n)
	return nil
}

// ClearBlockExecution strips runtime state from a block.
func (s *Store) ClearBlockExecution(path string, id BlockID) error {
	sf, err := s.mutable(path)
	if err != nil {
		return err
	}
	sf.clearBlockExecution(id)
	return nil
}

// RelinkBlockToRoot reparents an orphaned block under the root sentinel.
func (s *Store) RelinkBlockToRoot(path string, id BlockID) error {
	sf, err := s.mutable(path)
	if err != nil {
		return err
	}
	sf.relinkBlockToRoot(id)
	return nil
}

// Seal rejects all further runtime mutation. Called after patchup so the
// exported snapshot is the final word; late hook events become no-ops at
// the collector boundary.
func (s *Store) Seal() { s.sealed = true }

// Sealed reports whether the store has been sealed.
func (s *Store) Sealed() bool { return s.sealed }

// Reset clears all runtime state and unseals the store. With keepAnalysis
// the files and their structural maps stay registered; without it the
// store forgets everything.
func (s *Store) Reset(keepAnalysis bool) {
	s.sealed = false
	if !keepAnalysis {
		s.files = make(map[string]*SourceFile)
		return
	}
	for _, sf := range s.files {
		sf.resetRuntime()
	}
}

func (s *Store) mutable(path string) (*SourceFile, error) {
	if s.sealed {
		return nil, ErrSealed
	}
	return s.GetFile(path)
}
