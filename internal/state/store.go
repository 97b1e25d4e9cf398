package state

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/stanza/internal/path"
	"github.com/aretw0/stanza/pkg/domain"
)

// Owner tags who controls a variable. System and database-owned variables
// are read-only to SET and FORM.
type Owner string

const (
	OwnerUser     Owner = "user"
	OwnerDatabase Owner = "database"
	OwnerSystem   Owner = "system"
)

// Built-in system variable names. They are computed once per execution tick
// so a single document pass sees a consistent instant.
const (
	VarTime     = "TIME"
	VarDate     = "DATE"
	VarTimezone = "TIMEZONE"
	VarDay      = "DAY"
)

type variable struct {
	value domain.Value
	owner Owner
	kind  domain.Kind // established on first non-null write
}

// Store is the mutable variable environment of one document execution.
// Variable names are unique; a variable's type, once established, never
// changes. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	vars     map[string]*variable
	order    []string
	modified map[string]struct{}
}

// New creates an empty store.
func New() *Store {
	return &Store{
		vars:     make(map[string]*variable),
		modified: make(map[string]struct{}),
	}
}

// Declare registers a new variable. Redeclaring an existing name returns
// DuplicateVariableError.
func (s *Store) Declare(name string, v domain.Value, owner Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vars[name]; exists {
		return &domain.DuplicateVariableError{Name: name}
	}
	if v == nil {
		v = domain.Null{}
	}
	s.vars[name] = &variable{value: v, owner: owner, kind: v.Kind()}
	s.order = append(s.order, name)
	return nil
}

// Get returns the current value of a variable.
func (s *Store) Get(name string) (domain.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.vars[name]
	if !ok {
		return domain.Null{}, false
	}
	return entry.value, true
}

// Owner returns the owner tag of a variable.
func (s *Store) Owner(name string) (Owner, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.vars[name]
	if !ok {
		return "", false
	}
	return entry.owner, true
}

// Set replaces a variable's value, enforcing the established type.
// System and database-owned variables are rejected.
func (s *Store) Set(name string, v domain.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(name, v)
}

func (s *Store) setLocked(name string, v domain.Value) error {
	entry, ok := s.vars[name]
	if !ok {
		return &domain.TypeMismatchError{Target: name, Want: domain.KindNull, Got: kindOf(v)}
	}
	if entry.owner != OwnerUser {
		return &domain.AssignmentTargetError{Target: name, Reason: fmt.Sprintf("variable is %s-owned", entry.owner)}
	}
	if err := checkKind(name, entry, v); err != nil {
		return err
	}
	entry.value = v
	if entry.kind == domain.KindNull {
		entry.kind = kindOf(v)
	}
	s.modified[name] = struct{}{}
	return nil
}

// SetPath writes through a parsed path. Wildcard paths and non-user roots
// are rejected with AssignmentTargetError; strict write rules apply below
// the root (missing intermediates and out-of-range indices fail).
func (s *Store) SetPath(p path.Path, v domain.Value) error {
	if p.HasWildcard() {
		return &domain.AssignmentTargetError{Target: p.String(), Reason: "cannot assign through a wildcard"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	root := p.Root()
	if len(p.Segments) == 1 {
		return s.setLocked(root, v)
	}

	entry, ok := s.vars[root]
	if !ok {
		return &domain.TypeMismatchError{Target: p.String(), Want: domain.KindNull, Got: kindOf(v)}
	}
	if entry.owner != OwnerUser {
		return &domain.AssignmentTargetError{Target: p.String(), Reason: fmt.Sprintf("variable is %s-owned", entry.owner)}
	}

	rest := p.Segments[1:]
	// Type check against the existing slot when it exists; a new object key
	// establishes its type on this first write.
	if existing, ok := path.Existing(entry.value, rest); ok {
		if existingKind := kindOf(existing); existingKind != domain.KindNull && kindOf(v) != domain.KindNull && existingKind != kindOf(v) {
			return &domain.TypeMismatchError{Target: p.String(), Want: existingKind, Got: kindOf(v)}
		}
	}

	newRoot, err := path.Assign(entry.value, rest, v)
	if err != nil {
		return &domain.AssignmentTargetError{Target: p.String(), Reason: err.Error()}
	}
	entry.value = newRoot
	s.modified[root] = struct{}{}
	return nil
}

// Resolve reads a parsed path permissively: an unknown root resolves to Null.
func (s *Store) Resolve(p path.Path) domain.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.vars[p.Root()]
	if !ok {
		return domain.Null{}
	}
	return path.Resolve(entry.value, p.Segments[1:])
}

// ResolveString parses and resolves a raw path. Malformed paths resolve to
// Null, matching the permissive read contract.
func (s *Store) ResolveString(raw string) domain.Value {
	p, err := path.Parse(raw)
	if err != nil {
		return domain.Null{}
	}
	return s.Resolve(p)
}

// RefreshSystem computes the built-in system variables for one execution
// tick. TIME is minutes since midnight so bare-hour and HH:MM comparisons
// stay monotonic.
func (s *Store) RefreshSystem(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	zone, _ := now.Zone()
	s.putSystem(VarTime, domain.Number(now.Hour()*60+now.Minute()))
	s.putSystem(VarDate, domain.String(now.Format("2006-01-02")))
	s.putSystem(VarTimezone, domain.String(zone))
	s.putSystem(VarDay, domain.String(strings.ToLower(now.Weekday().String())))
}

func (s *Store) putSystem(name string, v domain.Value) {
	entry, ok := s.vars[name]
	if !ok {
		s.vars[name] = &variable{value: v, owner: OwnerSystem, kind: v.Kind()}
		s.order = append(s.order, name)
		return
	}
	entry.value = v
}

// Bind registers a database-owned variable. The bound value is immutable for
// the lifetime of the binding; rebinding the same name replaces it.
func (s *Store) Bind(name string, v domain.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.vars[name]
	if !ok {
		s.vars[name] = &variable{value: v, owner: OwnerDatabase, kind: v.Kind()}
		s.order = append(s.order, name)
		return
	}
	entry.value = v
	entry.owner = OwnerDatabase
	entry.kind = v.Kind()
}

// Names returns all variable names in declaration order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// ModifiedKeys returns the set of variables written since the last Clear,
// sorted for deterministic sync/persistence.
func (s *Store) ModifiedKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.modified))
	for k := range s.modified {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ClearModified resets the modified-keys set.
func (s *Store) ClearModified() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modified = make(map[string]struct{})
}

type snapshotVar struct {
	Name  string          `json:"name"`
	Owner Owner           `json:"owner"`
	Kind  domain.Kind     `json:"kind"`
	Value json.RawMessage `json:"value"`
}

type snapshot struct {
	Vars []snapshotVar `json:"vars"`
}

// Snapshot serializes the full variable environment for scheduler hand-off.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{Vars: make([]snapshotVar, 0, len(s.order))}
	for _, name := range s.order {
		entry := s.vars[name]
		raw, err := domain.MarshalValue(entry.value)
		if err != nil {
			return nil, fmt.Errorf("snapshot %q: %w", name, err)
		}
		snap.Vars = append(snap.Vars, snapshotVar{
			Name:  name,
			Owner: entry.owner,
			Kind:  entry.kind,
			Value: raw,
		})
	}
	return json.Marshal(snap)
}

// Restore rebuilds a store from a snapshot, replacing all current contents.
func (s *Store) Restore(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.vars = make(map[string]*variable, len(snap.Vars))
	s.order = s.order[:0]
	s.modified = make(map[string]struct{})
	for _, sv := range snap.Vars {
		v, err := domain.UnmarshalValue(sv.Value)
		if err != nil {
			return fmt.Errorf("restore %q: %w", sv.Name, err)
		}
		s.vars[sv.Name] = &variable{value: v, owner: sv.Owner, kind: sv.Kind}
		s.order = append(s.order, sv.Name)
	}
	return nil
}

func checkKind(name string, entry *variable, v domain.Value) error {
	got := kindOf(v)
	// Null is assignable to any variable; it clears the value without
	// changing the established type.
	if got == domain.KindNull || entry.kind == domain.KindNull {
		return nil
	}
	if got != entry.kind {
		return &domain.TypeMismatchError{Target: name, Want: entry.kind, Got: got}
	}
	return nil
}

func kindOf(v domain.Value) domain.Kind {
	if v == nil {
		return domain.KindNull
	}
	return v.Kind()
}
