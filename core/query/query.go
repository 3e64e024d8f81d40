// Package query implements a small expression language over annotation sets.
//
// An expression names an optional set and optional types, then narrows the
// result through a pipeline of positional steps:
//
//	words.Token,Name | within 0..120 | overlapping 30..40 | firsts
//
// The set part ends with a dot; the default set is written "". or omitted.
// Steps take a span a..b or a single offset n (read as the point n..n):
//
//	overlapping a..b   within a..b   covering a..b   coextensive a..b
//	before n           after n       at n            starting_at n
//	firsts             lasts
package query

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/standoff/core/errors"
	"github.com/FocuswithJustin/standoff/core/standoff"
)

//nolint:govet // participle grammar tags are not standard struct tags
type queryGrammar struct {
	Set   *string     `( @SetName )?`
	Types []string    `( @Ident ( "," @Ident )* )?`
	Steps []*stepPart `( "|" @@ )*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type stepPart struct {
	Span   *spanStep   `  @@`
	Offset *offsetStep `| @@`
	Edge   string      `| @( "firsts" | "lasts" )`
}

//nolint:govet // participle grammar tags are not standard struct tags
type spanStep struct {
	Op    string `@( "overlapping" | "within" | "covering" | "coextensive" | "before" | "after" )`
	Start int    `@Int`
	End   *int   `( ".." @Int )?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type offsetStep struct {
	Op     string `@( "at" | "starting_at" )`
	Offset int    `@Int`
}

// queryLexer splits expressions. A set name is an identifier or a quoted
// string immediately followed by a dot.
var queryLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "SetName", Pattern: `(?:[A-Za-z_][A-Za-z0-9_\-]*|"(?:\\.|[^"\\])*")\.`},
	{Name: "Range", Pattern: `\.\.`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_\-]*`},
	{Name: "Punct", Pattern: `[,|]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var queryParser = participle.MustBuild[queryGrammar](
	participle.Lexer(queryLexer),
	participle.Elide("Whitespace"),
)

// Step is one narrowing step of a query.
type Step struct {
	Op   string
	Span standoff.Span
}

func (s Step) String() string {
	switch s.Op {
	case "firsts", "lasts":
		return s.Op
	case "at", "starting_at":
		return s.Op + " " + strconv.Itoa(s.Span.Start)
	}
	if s.Span.IsPoint() {
		return s.Op + " " + strconv.Itoa(s.Span.Start)
	}
	return s.Op + " " + strconv.Itoa(s.Span.Start) + ".." + strconv.Itoa(s.Span.End)
}

// Query is a parsed expression.
type Query struct {
	// Set is the set name; the default set when empty.
	Set   string
	Types []string
	Steps []Step
}

// Parse parses an expression. Syntax errors and spans with end < start fail
// with ErrInvalidInput.
func Parse(s string) (*Query, error) {
	parsed, err := queryParser.ParseString("", s)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "query %q: %v", s, err)
	}

	q := &Query{Types: parsed.Types}
	if parsed.Set != nil {
		name := strings.TrimSuffix(*parsed.Set, ".")
		if strings.HasPrefix(name, `"`) {
			unquoted, err := strconv.Unquote(name)
			if err != nil {
				return nil, errors.Wrapf(errors.ErrInvalidInput, "query %q: set name %s: %v", s, name, err)
			}
			name = unquoted
		}
		q.Set = name
	}

	for _, p := range parsed.Steps {
		switch {
		case p.Span != nil:
			end := p.Span.Start
			if p.Span.End != nil {
				end = *p.Span.End
			}
			if end < p.Span.Start {
				return nil, errors.Wrapf(errors.ErrInvalidInput, "query %q: %s %d..%d ends before it starts",
					s, p.Span.Op, p.Span.Start, end)
			}
			q.Steps = append(q.Steps, Step{Op: p.Span.Op, Span: standoff.Range(p.Span.Start, end)})
		case p.Offset != nil:
			q.Steps = append(q.Steps, Step{Op: p.Offset.Op, Span: standoff.Range(p.Offset.Offset, p.Offset.Offset)})
		default:
			q.Steps = append(q.Steps, Step{Op: p.Edge})
		}
	}
	return q, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) *Query {
	q, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return q
}

// String returns the expression in normalized form.
func (q *Query) String() string {
	var sb strings.Builder
	if q.Set != "" {
		if isIdent(q.Set) {
			sb.WriteString(q.Set)
		} else {
			sb.WriteString(strconv.Quote(q.Set))
		}
		sb.WriteString(".")
	}
	sb.WriteString(strings.Join(q.Types, ","))
	for _, s := range q.Steps {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString("| ")
		sb.WriteString(s.String())
	}
	return sb.String()
}

func isIdent(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case i > 0 && (r == '-' || r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return s != ""
}

// Run evaluates q against doc. Naming a set that doc does not have fails with
// ErrInvalidInput; a missing default set yields an empty view. Run never
// creates sets.
//
// Positional steps stay lazy and follow later mutations of the set. firsts
// and lasts are resolved when Run is called.
func (q *Query) Run(doc *standoff.Document) (*standoff.View, error) {
	var set *standoff.AnnotationSet
	switch {
	case doc.HasSet(q.Set):
		set = doc.Set(q.Set)
	case q.Set == standoff.DefaultSetName:
		set = standoff.NewAnnotationSet(q.Set, doc.Len(), nil)
	default:
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unknown annotation set %q", q.Set)
	}

	v := set.View()
	if len(q.Types) > 0 {
		v = v.WithType(q.Types...)
	}
	for _, s := range q.Steps {
		v = apply(v, s)
	}
	return v, nil
}

func apply(v *standoff.View, s Step) *standoff.View {
	switch s.Op {
	case "overlapping":
		return v.Overlapping(s.Span)
	case "within":
		return v.Within(s.Span)
	case "covering":
		return v.Covering(s.Span)
	case "coextensive":
		return v.Coextensive(s.Span)
	case "before":
		return v.Before(s.Span)
	case "after":
		return v.After(s.Span)
	case "at":
		return v.At(s.Span.Start)
	case "starting_at":
		return v.StartingAt(s.Span.Start)
	case "firsts":
		if first := v.First(); first != nil {
			return v.StartingAt(first.Start())
		}
	case "lasts":
		if lasts := v.Lasts(); len(lasts) > 0 {
			end := lasts[0].End()
			return v.Covering(standoff.Range(end, end))
		}
	}
	return v
}
