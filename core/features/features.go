// Package features provides the ordered attribute map attached to documents
// and annotations.
//
// Names are strings and keep insertion order. Values are restricted to a
// closed variant so that equality and serialization stay well defined:
//
//   - nil, bool, string
//   - all integer and floating point kinds
//   - []any and []string
//   - map[string]any and map[string]string
//
// Sequences and maps nest recursively. Names starting with "__" are transient
// and are left out of plain dumps unless internal names are requested; a
// single leading "_" marks a name that is internal but persisted.
//
// A Map may carry a Logger. Every mutation is reported to the logger before it
// is applied, and a logger error aborts the mutation, so a log built from
// these events never describes a state the map did not reach.
package features

import (
	"fmt"
	"iter"
	"reflect"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/FocuswithJustin/standoff/core/errors"
)

// Op identifies the kind of mutation reported to a Logger.
type Op string

// Mutation kinds.
const (
	OpSet    Op = "feature:set"
	OpRemove Op = "feature:remove"
	OpClear  Op = "features:clear"
)

// Name prefixes.
const (
	// InternalPrefix marks a name that is internal but persisted.
	InternalPrefix = "_"
	// TransientPrefix marks a name that is dropped from plain dumps by default.
	TransientPrefix = "__"
)

// Event describes one mutation of a Map.
type Event struct {
	Op    Op
	Name  string // empty for OpClear
	Value any    // set only for OpSet
}

// Logger receives mutation events before they are applied.
type Logger interface {
	LogFeature(ev Event) error
}

// LoggerFunc adapts a function to the Logger interface.
type LoggerFunc func(ev Event) error

// LogFeature calls f(ev).
func (f LoggerFunc) LogFeature(ev Event) error {
	return f(ev)
}

// Map is an insertion-ordered attribute map.
type Map struct {
	data   *orderedmap.OrderedMap[string, any]
	logger Logger
}

// New returns an empty map with no logger.
func New() *Map {
	return &Map{data: orderedmap.New[string, any]()}
}

// NewWithLogger returns an empty map that reports mutations to l.
func NewWithLogger(l Logger) *Map {
	m := New()
	m.logger = l
	return m
}

// FromMap builds a detached map from m. Go maps carry no order, so names are
// inserted in sorted order to keep the result deterministic.
func FromMap(m map[string]any) (*Map, error) {
	out := New()
	for _, name := range sortedKeys(m) {
		if err := out.Set(name, m[name]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SetLogger replaces the logger. A nil logger detaches the map.
func (m *Map) SetLogger(l Logger) {
	m.logger = l
}

// Set stores value under name.
func (m *Map) Set(name string, value any) error {
	if err := CheckName(name); err != nil {
		return err
	}
	if err := CheckValue(name, value); err != nil {
		return err
	}
	if err := m.log(Event{Op: OpSet, Name: name, Value: value}); err != nil {
		return err
	}
	m.data.Set(name, value)
	return nil
}

// Get returns the value stored under name.
func (m *Map) Get(name string) (any, bool) {
	return m.data.Get(name)
}

// GetString returns the value under name if it is a string.
func (m *Map) GetString(name string) (string, bool) {
	v, ok := m.data.Get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Has reports whether name is present.
func (m *Map) Has(name string) bool {
	_, ok := m.data.Get(name)
	return ok
}

// Len returns the number of names.
func (m *Map) Len() int {
	return m.data.Len()
}

// Remove deletes name. It fails with ErrUnknownKey if name is absent.
func (m *Map) Remove(name string) error {
	if !m.Has(name) {
		return errors.NewUnknownKey(name)
	}
	if err := m.log(Event{Op: OpRemove, Name: name}); err != nil {
		return err
	}
	m.data.Delete(name)
	return nil
}

// Clear removes every name.
func (m *Map) Clear() error {
	if err := m.log(Event{Op: OpClear}); err != nil {
		return err
	}
	m.data = orderedmap.New[string, any]()
	return nil
}

// Names returns the names in insertion order.
func (m *Map) Names() []string {
	names := make([]string, 0, m.data.Len())
	for pair := m.data.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// All iterates over name/value pairs in insertion order.
func (m *Map) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for pair := m.data.Oldest(); pair != nil; pair = pair.Next() {
			if !yield(pair.Key, pair.Value) {
				return
			}
		}
	}
}

// Copy returns a detached copy. A shallow copy shares nested sequences and
// maps with m; a deep copy clones them.
func (m *Map) Copy(deep bool) *Map {
	out := New()
	for pair := m.data.Oldest(); pair != nil; pair = pair.Next() {
		v := pair.Value
		if deep {
			v = DeepCopy(v)
		}
		out.data.Set(pair.Key, v)
	}
	return out
}

// ToPlainMap returns a snapshot as a Go map. Transient names are dropped
// unless includeInternal is set.
func (m *Map) ToPlainMap(deep, includeInternal bool) map[string]any {
	out := make(map[string]any, m.data.Len())
	for pair := m.data.Oldest(); pair != nil; pair = pair.Next() {
		if !includeInternal && IsTransient(pair.Key) {
			continue
		}
		v := pair.Value
		if deep {
			v = DeepCopy(v)
		}
		out[pair.Key] = v
	}
	return out
}

// Equal reports whether both maps hold the same names, in the same order,
// with equal values.
func (m *Map) Equal(other *Map) bool {
	if m.Len() != other.Len() {
		return false
	}
	a, b := m.data.Oldest(), other.data.Oldest()
	for a != nil && b != nil {
		if a.Key != b.Key || !ValueEqual(a.Value, b.Value) {
			return false
		}
		a, b = a.Next(), b.Next()
	}
	return a == nil && b == nil
}

// String renders the map as name=value pairs in order.
func (m *Map) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	i := 0
	for pair := m.data.Oldest(); pair != nil; pair = pair.Next() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%v", pair.Key, pair.Value)
		i++
	}
	sb.WriteByte('}')
	return sb.String()
}

func (m *Map) log(ev Event) error {
	if m.logger == nil {
		return nil
	}
	return m.logger.LogFeature(ev)
}

// IsTransient reports whether name is excluded from plain dumps by default.
func IsTransient(name string) bool {
	return strings.HasPrefix(name, TransientPrefix)
}

// IsInternal reports whether name carries the internal marker.
func IsInternal(name string) bool {
	return strings.HasPrefix(name, InternalPrefix)
}

// CheckName validates an attribute name.
func CheckName(name string) error {
	if name == "" {
		return errors.NewInvalidKey(name, "name must not be empty")
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CheckValue validates v against the value variant. path names v in errors.
func CheckValue(path string, v any) error {
	switch x := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		[]string, map[string]string:
		return nil
	case []any:
		for i, e := range x {
			if err := CheckValue(fmt.Sprintf("%s[%d]", path, i), e); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		for _, k := range sortedKeys(x) {
			if err := CheckValue(path+"."+k, x[k]); err != nil {
				return err
			}
		}
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() != reflect.String {
		return errors.NewInvalidKey(path, fmt.Sprintf("nested map keys must be strings, got %s", rv.Type().Key()))
	}
	return errors.NewValue(path, v)
}

// DeepCopy clones nested sequences and maps of a valid value. Shared
// references inside v are not preserved: a value reachable twice is copied
// twice.
func DeepCopy(v any) any {
	switch x := v.(type) {
	case []any:
		if x == nil {
			return x
		}
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = DeepCopy(e)
		}
		return out
	case []string:
		if x == nil {
			return x
		}
		return append([]string(nil), x...)
	case map[string]any:
		if x == nil {
			return x
		}
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = DeepCopy(e)
		}
		return out
	case map[string]string:
		if x == nil {
			return x
		}
		out := make(map[string]string, len(x))
		for k, e := range x {
			out[k] = e
		}
		return out
	}
	return v
}
