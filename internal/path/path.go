package path

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/stanza/pkg/domain"
)

// SegmentKind discriminates path segments.
type SegmentKind int

const (
	SegField SegmentKind = iota
	SegIndex
	SegWildcard
)

// Segment is one step of a parsed path.
type Segment struct {
	Kind  SegmentKind
	Field string
	Index int
}

// Path is a parsed dotted/bracket path. The first segment is always the
// root variable name (SegField).
type Path struct {
	Segments []Segment
}

// Root returns the root variable name.
func (p Path) Root() string {
	if len(p.Segments) == 0 {
		return ""
	}
	return p.Segments[0].Field
}

// HasWildcard reports whether any segment is a [*] wildcard.
// Wildcard paths are valid read targets only, never write targets.
func (p Path) HasWildcard() bool {
	for _, s := range p.Segments {
		if s.Kind == SegWildcard {
			return true
		}
	}
	return false
}

// String reassembles the canonical path text.
func (p Path) String() string {
	var b strings.Builder
	for i, s := range p.Segments {
		switch s.Kind {
		case SegField:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(s.Field)
		case SegIndex:
			fmt.Fprintf(&b, "[%d]", s.Index)
		case SegWildcard:
			b.WriteString("[*]")
		}
	}
	return b.String()
}

// Parse parses a path such as "gold", "$db.npc[*].name" or "party[0].hp".
// A leading '$' sigil on the root name is accepted and stripped.
func Parse(raw string) (Path, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	if s == "" {
		return Path{}, fmt.Errorf("empty path")
	}

	var segs []Segment
	i := 0
	expectField := true
	for i < len(s) {
		switch {
		case s[i] == '.':
			if expectField {
				return Path{}, fmt.Errorf("path %q: unexpected '.'", raw)
			}
			expectField = true
			i++
		case s[i] == '[':
			if expectField {
				return Path{}, fmt.Errorf("path %q: unexpected '['", raw)
			}
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return Path{}, fmt.Errorf("path %q: unterminated '['", raw)
			}
			inner := s[i+1 : i+end]
			if inner == "*" {
				segs = append(segs, Segment{Kind: SegWildcard})
			} else {
				idx, err := strconv.Atoi(inner)
				if err != nil || idx < 0 {
					return Path{}, fmt.Errorf("path %q: invalid index %q", raw, inner)
				}
				segs = append(segs, Segment{Kind: SegIndex, Index: idx})
			}
			i += end + 1
		default:
			j := i
			for j < len(s) && s[j] != '.' && s[j] != '[' {
				j++
			}
			name := s[i:j]
			if !validName(name) {
				return Path{}, fmt.Errorf("path %q: invalid segment %q", raw, name)
			}
			segs = append(segs, Segment{Kind: SegField, Field: name})
			expectField = false
			i = j
		}
	}
	if expectField {
		return Path{}, fmt.Errorf("path %q: trailing '.'", raw)
	}
	if segs[0].Kind != SegField {
		return Path{}, fmt.Errorf("path %q: must start with a variable name", raw)
	}
	return Path{Segments: segs}, nil
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Resolve walks the segments below the root over a value.
// Reads are permissive: missing keys, out-of-range indices, and non-matching
// shapes resolve to Null (or an empty array under a wildcard), never errors.
//
// Each [*] maps the path remainder over every element of an array and
// flattens exactly one level when the remainder itself contains a wildcard.
// Chained wildcards therefore flatten one level per [*], never recursively.
func Resolve(v domain.Value, segs []Segment) domain.Value {
	if v == nil {
		v = domain.Null{}
	}
	if len(segs) == 0 {
		return v
	}
	seg := segs[0]
	rest := segs[1:]
	switch seg.Kind {
	case SegField:
		obj, ok := v.(*domain.Object)
		if !ok {
			return domain.Null{}
		}
		field, ok := obj.Get(seg.Field)
		if !ok {
			return domain.Null{}
		}
		return Resolve(field, rest)
	case SegIndex:
		arr, ok := v.(domain.Array)
		if !ok || seg.Index >= len(arr) {
			return domain.Null{}
		}
		return Resolve(arr[seg.Index], rest)
	case SegWildcard:
		arr, ok := v.(domain.Array)
		if !ok {
			return domain.Array{}
		}
		flatten := hasWildcard(rest)
		out := make(domain.Array, 0, len(arr))
		for _, elem := range arr {
			result := Resolve(elem, rest)
			if flatten {
				if inner, ok := result.(domain.Array); ok {
					out = append(out, inner...)
					continue
				}
			}
			out = append(out, result)
		}
		return out
	}
	return domain.Null{}
}

func hasWildcard(segs []Segment) bool {
	for _, s := range segs {
		if s.Kind == SegWildcard {
			return true
		}
	}
	return false
}

// Assign writes a value at the segments below the root, mutating the
// containing object or array in place. Unlike reads, writes are strict:
// wildcards are rejected by the caller before Assign, and a missing
// intermediate container or out-of-range index is an error.
//
// The returned value is the (possibly replaced) root. Existing returns the
// value currently at the target, or Null if the final object key is new.
func Assign(root domain.Value, segs []Segment, v domain.Value) (domain.Value, error) {
	if len(segs) == 0 {
		return v, nil
	}
	if err := assign(root, segs, v); err != nil {
		return root, err
	}
	return root, nil
}

func assign(container domain.Value, segs []Segment, v domain.Value) error {
	seg := segs[0]
	rest := segs[1:]
	switch seg.Kind {
	case SegField:
		obj, ok := container.(*domain.Object)
		if !ok {
			return fmt.Errorf("cannot access field %q on %s", seg.Field, kindOf(container))
		}
		if len(rest) == 0 {
			obj.Set(seg.Field, v)
			return nil
		}
		next, ok := obj.Get(seg.Field)
		if !ok {
			return fmt.Errorf("missing key %q", seg.Field)
		}
		return assign(next, rest, v)
	case SegIndex:
		arr, ok := container.(domain.Array)
		if !ok {
			return fmt.Errorf("cannot index %s", kindOf(container))
		}
		if seg.Index >= len(arr) {
			return fmt.Errorf("index %d out of range (len %d)", seg.Index, len(arr))
		}
		if len(rest) == 0 {
			arr[seg.Index] = v
			return nil
		}
		return assign(arr[seg.Index], rest, v)
	case SegWildcard:
		return fmt.Errorf("cannot assign through a wildcard")
	}
	return fmt.Errorf("unknown segment kind")
}

// Existing returns the value currently at the segments below the root,
// reporting whether the full path resolves to an existing slot.
func Existing(root domain.Value, segs []Segment) (domain.Value, bool) {
	v := root
	for _, seg := range segs {
		switch seg.Kind {
		case SegField:
			obj, ok := v.(*domain.Object)
			if !ok {
				return domain.Null{}, false
			}
			field, ok := obj.Get(seg.Field)
			if !ok {
				return domain.Null{}, false
			}
			v = field
		case SegIndex:
			arr, ok := v.(domain.Array)
			if !ok || seg.Index >= len(arr) {
				return domain.Null{}, false
			}
			v = arr[seg.Index]
		default:
			return domain.Null{}, false
		}
	}
	return v, true
}

func kindOf(v domain.Value) domain.Kind {
	if v == nil {
		return domain.KindNull
	}
	return v.Kind()
}
