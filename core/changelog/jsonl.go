package changelog

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/FocuswithJustin/standoff/core/errors"
	"github.com/FocuswithJustin/standoff/core/features"
)

// Encode writes records as JSON Lines, one record per line.
func Encode(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return errors.Wrapf(err, "encoding record %d", i)
		}
	}
	return nil
}

// UnmarshalJSON decodes a record keeping integer feature values exact:
// integral numbers become int64, others float64.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var p plain
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return err
	}
	p.Value = features.FromJSON(p.Value)
	for k, v := range p.Features {
		p.Features[k] = features.FromJSON(v)
	}
	*r = Record(p)
	return nil
}

// Decode reads JSON Lines records until EOF.
func Decode(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	var out []Record
	for {
		var rec Record
		err := dec.Decode(&rec)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "decoding record %d: %v", len(out), err)
		}
		if !rec.Command.IsValid() {
			return nil, errors.Wrapf(errors.ErrUnknownCommand, "record %d: %q", len(out), rec.Command)
		}
		out = append(out, rec)
	}
}
