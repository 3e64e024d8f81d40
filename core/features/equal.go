package features

import "math"

// ValueEqual compares two values of the variant. Integers compare exactly
// across kinds; an integer equals a float only when the float holds exactly
// that integer, so an int stored locally equals the float64 2.0 but not a
// float64 that rounded it. []string compares equal to an []any holding the
// same strings, and likewise for the two map forms.
func ValueEqual(a, b any) bool {
	if na, ok := toNumber(a); ok {
		nb, ok := toNumber(b)
		return ok && na.equal(nb)
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	}
	if la, ok := toList(a); ok {
		lb, ok := toList(b)
		if !ok || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !ValueEqual(la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	if ma, ok := toDict(a); ok {
		mb, ok := toDict(b)
		if !ok || len(ma) != len(mb) {
			return false
		}
		for k, va := range ma {
			vb, ok := mb[k]
			if !ok || !ValueEqual(va, vb) {
				return false
			}
		}
		return true
	}
	return false
}

// number is a numeric value: a float, or an integer as sign and magnitude.
type number struct {
	isFloat bool
	f       float64
	neg     bool
	mag     uint64
}

func signed(i int64) number {
	if i < 0 {
		return number{neg: true, mag: uint64(-(i + 1)) + 1}
	}
	return number{mag: uint64(i)}
}

func toNumber(v any) (number, bool) {
	switch x := v.(type) {
	case int:
		return signed(int64(x)), true
	case int8:
		return signed(int64(x)), true
	case int16:
		return signed(int64(x)), true
	case int32:
		return signed(int64(x)), true
	case int64:
		return signed(x), true
	case uint:
		return number{mag: uint64(x)}, true
	case uint8:
		return number{mag: uint64(x)}, true
	case uint16:
		return number{mag: uint64(x)}, true
	case uint32:
		return number{mag: uint64(x)}, true
	case uint64:
		return number{mag: x}, true
	case float32:
		return number{isFloat: true, f: float64(x)}, true
	case float64:
		return number{isFloat: true, f: x}, true
	}
	return number{}, false
}

func (n number) equal(o number) bool {
	switch {
	case n.isFloat && o.isFloat:
		return n.f == o.f
	case n.isFloat:
		return o.equalFloat(n.f)
	case o.isFloat:
		return n.equalFloat(o.f)
	}
	return n.neg == o.neg && n.mag == o.mag
}

// equalFloat reports whether the integer n is exactly f.
func (n number) equalFloat(f float64) bool {
	if math.IsInf(f, 0) || f != math.Trunc(f) {
		return false
	}
	neg := f < 0
	if neg {
		f = -f
	}
	if f >= 1<<64 {
		return false
	}
	mag := uint64(f)
	if mag == 0 {
		neg = false
	}
	return n.neg == neg && n.mag == mag
}

func toList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func toDict(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		return x, true
	case map[string]string:
		out := make(map[string]any, len(x))
		for k, s := range x {
			out[k] = s
		}
		return out, true
	}
	return nil, false
}
