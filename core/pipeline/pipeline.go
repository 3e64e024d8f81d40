// Package pipeline runs annotators over documents.
//
// An Annotator adds annotations to one document at a time. A Pipeline calls
// Start on every annotator once per run, then Annotate for each document in
// annotator order, then Finish. RunAll spreads documents over a bounded
// number of goroutines; a document is only ever touched by one goroutine, so
// the single-writer rule of standoff.Document holds.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FocuswithJustin/standoff/core/errors"
	"github.com/FocuswithJustin/standoff/core/standoff"
	"github.com/FocuswithJustin/standoff/internal/logging"
)

// Annotator processes documents. Annotate may be called concurrently for
// different documents between Start and Finish.
type Annotator interface {
	Start() error
	Annotate(ctx context.Context, doc *standoff.Document) error
	Finish() error
}

// Named is implemented by annotators that report a name in logs and errors.
type Named interface {
	Name() string
}

// Base provides no-op Start and Finish. Embed it in annotators that need no
// per-run setup.
type Base struct{}

// Start does nothing.
func (Base) Start() error { return nil }

// Finish does nothing.
func (Base) Finish() error { return nil }

// Func adapts a function to an Annotator.
type Func struct {
	Base
	Label string
	Fn    func(ctx context.Context, doc *standoff.Document) error
}

// Annotate calls f.Fn.
func (f Func) Annotate(ctx context.Context, doc *standoff.Document) error {
	return f.Fn(ctx, doc)
}

// Name returns f.Label.
func (f Func) Name() string { return f.Label }

// NameOf returns the name of a, or its type when it has none.
func NameOf(a Annotator) string {
	if n, ok := a.(Named); ok && n.Name() != "" {
		return n.Name()
	}
	return fmt.Sprintf("%T", a)
}

// Pipeline is an ordered list of annotators.
type Pipeline struct {
	Annotators []Annotator
}

// New returns a pipeline running annotators in order.
func New(annotators ...Annotator) *Pipeline {
	return &Pipeline{Annotators: annotators}
}

// Run processes a single document.
func (p *Pipeline) Run(ctx context.Context, doc *standoff.Document) error {
	return p.RunAll(ctx, []*standoff.Document{doc}, 1)
}

// RunAll processes docs with at most workers documents in flight; workers <= 0
// means GOMAXPROCS. The first failure cancels the documents not yet started.
// Finish is called on every started annotator even when the run fails.
func (p *Pipeline) RunAll(ctx context.Context, docs []*standoff.Document, workers int) (err error) {
	start := time.Now()
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	started := 0
	defer func() {
		for _, a := range p.Annotators[:started] {
			if ferr := a.Finish(); ferr != nil {
				logging.AnnotatorError(ctx, NameOf(a), "finish", ferr)
				if err == nil {
					err = errors.Wrapf(ferr, "finishing %s", NameOf(a))
				}
			}
		}
		logging.PipelineRun(ctx, p.names(), len(docs), time.Since(start), "ok", err == nil)
	}()

	for _, a := range p.Annotators {
		if serr := a.Start(); serr != nil {
			logging.AnnotatorError(ctx, NameOf(a), "start", serr)
			return errors.Wrapf(serr, "starting %s", NameOf(a))
		}
		started++
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, doc := range docs {
		g.Go(func() error {
			return p.annotate(gctx, doc)
		})
	}
	return g.Wait()
}

func (p *Pipeline) annotate(ctx context.Context, doc *standoff.Document) error {
	ctx = logging.WithDocumentID(ctx, doc.ID().String())
	for _, a := range p.Annotators {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.Annotate(ctx, doc); err != nil {
			logging.AnnotatorError(ctx, NameOf(a), "annotate", err)
			return errors.Wrapf(err, "%s on document %s", NameOf(a), doc.ID())
		}
	}
	return nil
}

func (p *Pipeline) names() string {
	names := make([]string, len(p.Annotators))
	for i, a := range p.Annotators {
		names[i] = NameOf(a)
	}
	return strings.Join(names, ",")
}
