// Package offsets maps character offsets between Unicode code points (the
// native unit of the store) and UTF-16 code units (the unit used by UTF-16
// based interop partners).
//
// A Mapper is built once for a fixed text. When every code point fits in a
// single UTF-16 unit the two spaces coincide and the mapper keeps no tables.
package offsets

// UTF-16 constants
const (
	// SurrogateOffset is the first code point that needs a surrogate pair.
	SurrogateOffset = 0x10000
)

// Mapper converts offsets between code points and UTF-16 code units.
// It is immutable after construction and safe for concurrent use.
type Mapper struct {
	length    int   // text length in code points
	altLength int   // text length in UTF-16 code units
	toAlt     []int // code point offset -> code unit offset, nil when identity
	toNative  []int // code unit offset -> code point offset, nil when identity
}

// Width returns the number of UTF-16 code units needed to encode r.
func Width(r rune) int {
	if r >= SurrogateOffset {
		return 2
	}
	return 1
}

// New scans text once and builds the translation tables.
func New(text string) *Mapper {
	m := &Mapper{}
	for _, r := range text {
		m.length++
		m.altLength += Width(r)
	}
	if m.length == m.altLength {
		return m
	}

	m.toAlt = make([]int, m.length+1)
	m.toNative = make([]int, m.altLength+1)
	cp, cu := 0, 0
	for _, r := range text {
		m.toAlt[cp] = cu
		m.toNative[cu] = cp
		if Width(r) == 2 {
			// The low surrogate belongs to the same code point.
			m.toNative[cu+1] = cp
		}
		cu += Width(r)
		cp++
	}
	m.toAlt[cp] = cu
	m.toNative[cu] = cp
	return m
}

// IsIdentity reports whether both offset spaces coincide.
func (m *Mapper) IsIdentity() bool {
	return m.toAlt == nil
}

// Len returns the text length in code points.
func (m *Mapper) Len() int {
	return m.length
}

// AltLen returns the text length in UTF-16 code units.
func (m *Mapper) AltLen() int {
	return m.altLength
}

// ToAlt converts a code point offset to a UTF-16 code unit offset.
// Offsets outside [0, Len()] are not validated.
func (m *Mapper) ToAlt(offset int) int {
	if m.toAlt == nil {
		return offset
	}
	return m.toAlt[offset]
}

// ToNative converts a UTF-16 code unit offset to a code point offset. An
// offset pointing at a low surrogate maps to the code point it belongs to.
// Offsets outside [0, AltLen()] are not validated.
func (m *Mapper) ToNative(offset int) int {
	if m.toNative == nil {
		return offset
	}
	return m.toNative[offset]
}

// ToAltSlice converts each offset with ToAlt, preserving order.
func (m *Mapper) ToAltSlice(offsets []int) []int {
	out := make([]int, len(offsets))
	for i, o := range offsets {
		out[i] = m.ToAlt(o)
	}
	return out
}

// ToNativeSlice converts each offset with ToNative, preserving order.
func (m *Mapper) ToNativeSlice(offsets []int) []int {
	out := make([]int, len(offsets))
	for i, o := range offsets {
		out[i] = m.ToNative(o)
	}
	return out
}
