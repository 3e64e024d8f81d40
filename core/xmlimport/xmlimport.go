// Package xmlimport turns inline XML markup into stand-off annotations.
//
// The character content of the selected element becomes the document text
// and every element becomes an annotation spanning its content, typed by its
// tag name and carrying its attributes as features. Offsets are code points.
//
// Security Notes:
//   - The xmlquery library parses with Go's encoding/xml, which does not
//     fetch external entities, so XXE attacks do not apply.
package xmlimport

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/FocuswithJustin/standoff/core/errors"
	"github.com/FocuswithJustin/standoff/core/standoff"
)

// DefaultSetName is the set imported markup is stored in unless Options
// names another.
const DefaultSetName = "Original markups"

// Options controls an import.
type Options struct {
	// Root is an XPath expression selecting the element to import. The
	// first match is used; empty means the document element.
	Root string
	// SetName is the annotation set receiving the elements.
	SetName string
	// SkipRoot leaves the selected element itself unannotated.
	SkipRoot bool
}

type element struct {
	typ        string
	start, end int
	attrs      map[string]any
}

// builder accumulates text and element spans in document order.
type builder struct {
	text     strings.Builder
	length   int
	elements []*element
}

// Import parses data and returns a document holding its text and markup.
func Import(data []byte, opts Options) (*standoff.Document, error) {
	if opts.SetName == "" {
		opts.SetName = DefaultSetName
	}

	root, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "parsing XML: %v", err)
	}
	top, err := selectRoot(root, opts.Root)
	if err != nil {
		return nil, err
	}

	b := &builder{}
	if opts.SkipRoot {
		for child := top.FirstChild; child != nil; child = child.NextSibling {
			b.walk(child)
		}
	} else {
		b.walk(top)
	}

	doc := standoff.New(b.text.String())
	set := doc.Set(opts.SetName)
	for _, e := range b.elements {
		if _, err := set.Add(e.start, e.end, e.typ, e.attrs); err != nil {
			return nil, errors.Wrapf(err, "element <%s>", e.typ)
		}
	}
	return doc, nil
}

// selectRoot returns the element named by expr, or the document element.
func selectRoot(doc *xmlquery.Node, expr string) (*xmlquery.Node, error) {
	if expr == "" {
		for child := doc.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == xmlquery.ElementNode {
				return child, nil
			}
		}
		return nil, errors.Wrap(errors.ErrInvalidInput, "XML has no document element")
	}

	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "invalid xpath %q: %v", expr, err)
	}
	node := xmlquery.QuerySelector(doc, compiled)
	if node == nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "xpath %q matched nothing", expr)
	}
	if node.Type != xmlquery.ElementNode {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "xpath %q does not select an element", expr)
	}
	return node, nil
}

func (b *builder) walk(n *xmlquery.Node) {
	switch n.Type {
	case xmlquery.TextNode, xmlquery.CharDataNode:
		b.text.WriteString(n.Data)
		b.length += utf8.RuneCountInString(n.Data)

	case xmlquery.ElementNode:
		e := &element{typ: qualified(n.Prefix, n.Data), start: b.length}
		if len(n.Attr) > 0 {
			e.attrs = make(map[string]any, len(n.Attr))
			for _, attr := range n.Attr {
				e.attrs[qualified(attr.Name.Space, attr.Name.Local)] = attr.Value
			}
		}
		// Parents precede their children so ids follow document order.
		b.elements = append(b.elements, e)
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			b.walk(child)
		}
		e.end = b.length
	}
	// Comments, processing instructions and declarations carry no text.
}

func qualified(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}
