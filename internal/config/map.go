package config

import (
	"strconv"
	"time"
)

// Map accumulates typed directive readers (String, Int, Bool, Duration,
// Custom) against a parsed Node block and resolves them all in one
// Process call, the same two-phase "declare then process" idiom used
// throughout the pack's config layers: components declare what they
// expect to find, then ask the Map to walk the actual block once.
type Map struct {
	Block Node

	entries      []entry
	allowUnknown bool
	seen         map[string]bool
}

type entry struct {
	name     string
	required bool
	apply    func(Node) error
	def      func() error
}

// NewMap creates a Map that will read directives out of block.
func NewMap(block Node) *Map {
	return &Map{Block: block, seen: map[string]bool{}}
}

// AllowUnknown makes Process skip directives with no matching entry
// instead of failing.
func (m *Map) AllowUnknown() { m.allowUnknown = true }

func (m *Map) String(name string, required bool, defaultVal string, store *string) {
	*store = defaultVal
	m.entries = append(m.entries, entry{
		name:     name,
		required: required,
		apply: func(n Node) error {
			if len(n.Args) != 1 {
				return NodeErr(n, "%s: expected exactly one argument", name)
			}
			*store = n.Args[0]
			return nil
		},
	})
}

func (m *Map) StringList(name string, required bool, store *[]string) {
	m.entries = append(m.entries, entry{
		name:     name,
		required: required,
		apply: func(n Node) error {
			*store = append([]string{}, n.Args...)
			return nil
		},
	})
}

func (m *Map) Int(name string, required bool, defaultVal int, store *int) {
	*store = defaultVal
	m.entries = append(m.entries, entry{
		name:     name,
		required: required,
		apply: func(n Node) error {
			if len(n.Args) != 1 {
				return NodeErr(n, "%s: expected exactly one argument", name)
			}
			v, err := strconv.Atoi(n.Args[0])
			if err != nil {
				return NodeErr(n, "%s: %v", name, err)
			}
			*store = v
			return nil
		},
	})
}

func (m *Map) Bool(name string, defaultVal bool, store *bool) {
	*store = defaultVal
	m.entries = append(m.entries, entry{
		name: name,
		apply: func(n Node) error {
			if len(n.Args) == 0 {
				*store = true
				return nil
			}
			v, err := strconv.ParseBool(n.Args[0])
			if err != nil {
				return NodeErr(n, "%s: %v", name, err)
			}
			*store = v
			return nil
		},
	})
}

func (m *Map) Duration(name string, required bool, defaultVal time.Duration, store *time.Duration) {
	*store = defaultVal
	m.entries = append(m.entries, entry{
		name:     name,
		required: required,
		apply: func(n Node) error {
			if len(n.Args) != 1 {
				return NodeErr(n, "%s: expected exactly one argument", name)
			}
			v, err := time.ParseDuration(n.Args[0])
			if err != nil {
				return NodeErr(n, "%s: %v", name, err)
			}
			*store = v
			return nil
		},
	})
}

// Custom lets a caller handle an arbitrarily-shaped directive (typically
// a sub-block), calling mapper with the Map's Block passed down so
// nested directives can themselves use Custom/String/etc. recursively.
func (m *Map) Custom(name string, required bool, mapper func(*Map, Node) error) {
	m.entries = append(m.entries, entry{
		name:     name,
		required: required,
		apply: func(n Node) error {
			sub := NewMap(n)
			if err := mapper(sub, n); err != nil {
				return err
			}
			return nil
		},
	})
}

// Process walks m.Block's children once, applying each matching entry,
// then reports any required entry that was never seen.
func (m *Map) Process() error {
	byName := make(map[string]*entry, len(m.entries))
	for i := range m.entries {
		byName[m.entries[i].name] = &m.entries[i]
	}

	for _, child := range m.Block.Children {
		e, ok := byName[child.Name]
		if !ok {
			if m.allowUnknown {
				continue
			}
			return NodeErr(child, "unknown directive: %s", child.Name)
		}
		if err := e.apply(child); err != nil {
			return err
		}
		m.seen[child.Name] = true
	}

	for _, e := range m.entries {
		if e.required && !m.seen[e.name] {
			return NodeErr(m.Block, "missing required directive: %s", e.name)
		}
	}
	return nil
}
