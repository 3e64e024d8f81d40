package features

import (
	"encoding/json"
	"strconv"
)

// FromJSON converts a value decoded with json.Decoder.UseNumber back into
// the variant. Integral numbers become int64 (uint64 above the int64 range)
// so they survive a round trip exactly; other numbers become float64.
// Nested lists and maps are converted in place.
func FromJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		return fromNumber(x)
	case []any:
		for i, e := range x {
			x[i] = FromJSON(e)
		}
		return x
	case map[string]any:
		for k, e := range x {
			x[k] = FromJSON(e)
		}
		return x
	}
	return v
}

func fromNumber(n json.Number) any {
	s := string(n)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return u
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
