// Package bundle archives a document baseline together with the change log
// recorded on top of it.
//
// A bundle holds the text, the features and the annotation sets of a
// document at the moment recording began, plus every change record since.
// Replaying a bundle rebuilds the baseline and applies the records, which
// reproduces the final document exactly. Bundles are JSON, compressed with
// XZ by default or gzip on request.
package bundle

import (
	"bytes"
	"cmp"
	"compress/gzip"
	"encoding/hex"
	"encoding/json"
	"io"
	"iter"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/standoff/core/changelog"
	"github.com/FocuswithJustin/standoff/core/errors"
	"github.com/FocuswithJustin/standoff/core/features"
	"github.com/FocuswithJustin/standoff/core/standoff"
)

// Version is the bundle format version written by this package.
const Version = 1

// Injectable functions for testing
var (
	xzNewWriter   = xz.NewWriter
	xzNewReader   = xz.NewReader
	gzipNewReader = gzip.NewReader
	jsonMarshal   = json.Marshal
	timeNow       = time.Now
)

// CompressionType specifies the compression algorithm for bundles.
type CompressionType string

const (
	// CompressionXZ uses XZ/LZMA2 compression (default, best ratio).
	CompressionXZ CompressionType = "xz"
	// CompressionGzip uses gzip compression (stdlib, faster).
	CompressionGzip CompressionType = "gzip"
)

// Feature is one named value; features are stored as a list to keep their
// order.
type Feature struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// UnmarshalJSON decodes a feature keeping integer values exact.
func (f *Feature) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name  string `json:"name"`
		Value any    `json:"value"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	f.Name, f.Value = raw.Name, features.FromJSON(raw.Value)
	return nil
}

// Annotation is a stored annotation.
type Annotation struct {
	ID       int       `json:"id"`
	Type     string    `json:"type"`
	Start    int       `json:"start"`
	End      int       `json:"end"`
	Features []Feature `json:"features,omitempty"`
}

// Set is a stored annotation set.
type Set struct {
	Name        string       `json:"name"`
	NextID      int          `json:"next_id"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// Bundle is a baseline snapshot plus the change records made after it.
type Bundle struct {
	Version   int                `json:"version"`
	ID        string             `json:"id"`
	CreatedAt time.Time          `json:"created_at"`
	TextHash  string             `json:"text_hash"`
	Text      string             `json:"text"`
	Features  []Feature          `json:"features,omitempty"`
	Sets      []Set              `json:"sets,omitempty"`
	Records   []changelog.Record `json:"records,omitempty"`
}

// FromDocument snapshots doc as the baseline of a new bundle holding
// records.
func FromDocument(doc *standoff.Document, records []changelog.Record) *Bundle {
	b := &Bundle{
		Version:   Version,
		ID:        doc.ID().String(),
		CreatedAt: timeNow().UTC(),
		TextHash:  doc.Fingerprint(),
		Text:      doc.Text(),
		Features:  snapshot(doc.Features().All()),
		Records:   append([]changelog.Record(nil), records...),
	}
	for _, name := range doc.SetNames() {
		set := doc.Set(name)
		stored := Set{Name: name, NextID: set.NextID()}
		for ann := range set.All() {
			stored.Annotations = append(stored.Annotations, Annotation{
				ID:       ann.ID(),
				Type:     ann.Type(),
				Start:    ann.Start(),
				End:      ann.End(),
				Features: snapshot(ann.Features().All()),
			})
		}
		b.Sets = append(b.Sets, stored)
	}
	return b
}

func snapshot(all iter.Seq2[string, any]) []Feature {
	var out []Feature
	for name, value := range all {
		out = append(out, Feature{Name: name, Value: features.DeepCopy(value)})
	}
	return out
}

// Baseline rebuilds the document the records were recorded against. It
// fails with ErrBaselineMismatch if the text does not match TextHash.
func (b *Bundle) Baseline() (*standoff.Document, error) {
	sum := blake3.Sum256([]byte(b.Text))
	if hex.EncodeToString(sum[:]) != b.TextHash {
		return nil, errors.Wrapf(errors.ErrBaselineMismatch, "text hash of bundle %s", b.ID)
	}
	var opts []standoff.Option
	if id, err := uuid.Parse(b.ID); err == nil {
		opts = append(opts, standoff.WithID(id))
	}
	doc := standoff.New(b.Text, opts...)
	for _, f := range b.Features {
		if err := doc.Features().Set(f.Name, f.Value); err != nil {
			return nil, errors.Wrapf(err, "baseline feature %q", f.Name)
		}
	}
	for _, stored := range b.Sets {
		set := doc.Set(stored.Name)
		// Ids are only accepted in increasing order.
		byID := slices.SortedFunc(slices.Values(stored.Annotations), func(x, y Annotation) int {
			return cmp.Compare(x.ID, y.ID)
		})
		for _, a := range byID {
			ann, err := set.AddWithID(a.ID, a.Start, a.End, a.Type, nil)
			if err != nil {
				return nil, errors.Wrapf(err, "baseline annotation %d of set %q", a.ID, stored.Name)
			}
			for _, f := range a.Features {
				if err := ann.Features().Set(f.Name, f.Value); err != nil {
					return nil, errors.Wrapf(err, "baseline annotation %d feature %q", a.ID, f.Name)
				}
			}
		}
		if err := set.SetNextID(stored.NextID); err != nil {
			return nil, errors.Wrapf(err, "baseline set %q", stored.Name)
		}
	}
	return doc, nil
}

// Replay rebuilds the baseline and applies the records to it.
func (b *Bundle) Replay() (*standoff.Document, error) {
	doc, err := b.Baseline()
	if err != nil {
		return nil, err
	}
	if err := standoff.Apply(b.Records, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Write encodes b as compressed JSON.
func Write(w io.Writer, b *Bundle, compression CompressionType) error {
	data, err := jsonMarshal(b)
	if err != nil {
		return errors.Wrap(err, "encoding bundle")
	}

	var cw io.WriteCloser
	switch compression {
	case CompressionXZ, "":
		xw, err := xzNewWriter(w)
		if err != nil {
			return errors.Wrap(err, "creating xz writer")
		}
		cw = xw
	case CompressionGzip:
		cw = gzip.NewWriter(w)
	default:
		return errors.Wrapf(errors.ErrInvalidInput, "unsupported compression %q", compression)
	}

	if _, err := cw.Write(data); err != nil {
		cw.Close()
		return errors.Wrap(err, "writing bundle")
	}
	return errors.Wrap(cw.Close(), "closing bundle writer")
}

// Read decodes a bundle written by Write, detecting the compression from
// its magic bytes.
func Read(r io.Reader) (*Bundle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading bundle")
	}

	var dr io.Reader
	switch DetectCompression(data) {
	case CompressionXZ:
		xr, err := xzNewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "xz stream: %v", err)
		}
		dr = xr
	case CompressionGzip:
		gr, err := gzipNewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "gzip stream: %v", err)
		}
		defer gr.Close()
		dr = gr
	default:
		return nil, errors.Wrap(errors.ErrInvalidInput, "unknown bundle compression")
	}

	var b Bundle
	if err := json.NewDecoder(dr).Decode(&b); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "decoding bundle: %v", err)
	}
	if b.Version != Version {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "bundle version %d, want %d", b.Version, Version)
	}
	for i, rec := range b.Records {
		if !rec.Command.IsValid() {
			return nil, errors.Wrapf(errors.ErrUnknownCommand, "record %d: %q", i, rec.Command)
		}
	}
	return &b, nil
}

// DetectCompression reports the compression of data from its magic bytes,
// or "" if it is not recognised.
func DetectCompression(data []byte) CompressionType {
	// Check for gzip magic (1f 8b)
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		return CompressionGzip
	}
	// Check for XZ magic (fd 37 7a 58 5a 00)
	if bytes.HasPrefix(data, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}) {
		return CompressionXZ
	}
	return ""
}

// WriteFile writes b to path.
func WriteFile(path string, b *Bundle, compression CompressionType) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	if err := Write(f, b, compression); err != nil {
		f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "closing %s", path)
}

// ReadFile reads a bundle from path.
func ReadFile(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	return Read(f)
}

// Recorder captures a baseline and collects the changes made afterwards.
type Recorder struct {
	baseline *Bundle
	log      *changelog.Log
}

// Record snapshots doc and attaches a log that receives every later change.
// A change log already attached to doc keeps receiving records first.
func Record(doc *standoff.Document) *Recorder {
	r := &Recorder{baseline: FromDocument(doc, nil), log: changelog.NewLog()}
	if prev := doc.ChangeLog(); prev != nil {
		doc.SetChangeLog(changelog.Multi(prev, r.log))
	} else {
		doc.SetChangeLog(r.log)
	}
	return r
}

// Len returns the number of records collected so far.
func (r *Recorder) Len() int { return r.log.Len() }

// Bundle returns the baseline with the records collected so far.
func (r *Recorder) Bundle() *Bundle {
	b := *r.baseline
	b.Records = r.log.Records()
	return &b
}
