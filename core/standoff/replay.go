package standoff

import (
	"github.com/FocuswithJustin/standoff/core/changelog"
	"github.com/FocuswithJustin/standoff/core/errors"
)

// Apply replays records onto doc in order.
//
// doc must start from the same baseline as the document that produced the
// records: same text, same sets and the same id counters. Annotations are
// re-created under their recorded ids, so the result holds the same
// (id, type, start, end, features) tuples as the source. Apply stops at the
// first record that fails and returns a *errors.ReplayError naming it;
// records before it remain applied.
//
// If doc has a change log attached, the replayed mutations are logged to it.
func Apply(records []changelog.Record, doc *Document) error {
	for i, rec := range records {
		if err := applyRecord(rec, doc); err != nil {
			return &errors.ReplayError{Index: i, Command: string(rec.Command), Err: err}
		}
	}
	return nil
}

func applyRecord(rec changelog.Record, doc *Document) error {
	switch rec.Command {
	case changelog.DocFeatureSet:
		return doc.Features().Set(rec.Feature, rec.Value)
	case changelog.DocFeatureRemove:
		return doc.Features().Remove(rec.Feature)
	case changelog.DocFeaturesClear:
		return doc.Features().Clear()
	case changelog.AnnotationsClear:
		return doc.Set(rec.Set).Clear()
	case changelog.AnnotationAdd:
		_, err := doc.Set(rec.Set).AddWithID(rec.ID, rec.Start, rec.End, rec.Type, rec.Features)
		return err
	case changelog.AnnotationRemove:
		return doc.Set(rec.Set).Remove(rec.ID)
	}

	var ann *Annotation
	switch rec.Command {
	case changelog.AnnFeatureSet, changelog.AnnFeatureRemove, changelog.AnnFeaturesClear:
		var err error
		if ann, err = doc.Set(rec.Set).Get(rec.ID); err != nil {
			return err
		}
	default:
		return errors.Wrapf(errors.ErrUnknownCommand, "%q", rec.Command)
	}

	switch rec.Command {
	case changelog.AnnFeatureSet:
		return ann.Features().Set(rec.Feature, rec.Value)
	case changelog.AnnFeatureRemove:
		return ann.Features().Remove(rec.Feature)
	default:
		return ann.Features().Clear()
	}
}
