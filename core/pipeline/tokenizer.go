package pipeline

import (
	"context"
	"iter"
	"unicode"

	"github.com/FocuswithJustin/standoff/core/errors"
	"github.com/FocuswithJustin/standoff/core/standoff"
)

// Annotation types and kinds produced by Tokenizer.
const (
	TokenType      = "Token"
	SpaceTokenType = "SpaceToken"

	KindWord        = "word"
	KindNumber      = "number"
	KindPunctuation = "punctuation"
	KindSpace       = "space"
	KindControl     = "control"
)

// Tokenizer splits document text into Token and SpaceToken annotations.
//
// Runs of letters (with apostrophes and combining marks) become word
// tokens, runs of digits number tokens, and every other symbol a
// punctuation token of its own. Runs of spaces become SpaceToken
// annotations of kind space; line breaks and other control characters are
// kind control. Each annotation carries kind, string and length features.
type Tokenizer struct {
	Base
	// SetName is the set receiving the tokens; the default set when empty.
	SetName string
	// SkipSpace suppresses SpaceToken annotations.
	SkipSpace bool
}

// Name returns "tokenizer".
func (*Tokenizer) Name() string { return "tokenizer" }

// Annotate adds the tokens of doc's text.
func (t *Tokenizer) Annotate(ctx context.Context, doc *standoff.Document) error {
	set := doc.Set(t.SetName)
	for tok := range Tokenize(doc.Text()) {
		if err := ctx.Err(); err != nil {
			return err
		}
		typ := TokenType
		if tok.Kind == KindSpace || tok.Kind == KindControl {
			if t.SkipSpace {
				continue
			}
			typ = SpaceTokenType
		}
		_, err := set.Add(tok.Start, tok.End, typ, map[string]any{
			"kind":   tok.Kind,
			"string": tok.Text,
			"length": tok.End - tok.Start,
		})
		if err != nil {
			return errors.Wrapf(err, "token %q at %d", tok.Text, tok.Start)
		}
	}
	return nil
}

// Token is one token found by Tokenize. Start and End are code point offsets.
type Token struct {
	Start, End int
	Kind       string
	Text       string
}

func kindOf(r rune) string {
	switch {
	case unicode.IsControl(r) && r != '\t':
		return KindControl
	case unicode.IsSpace(r):
		return KindSpace
	case unicode.IsLetter(r) || unicode.IsMark(r) || r == '\'' || r == '’':
		return KindWord
	case unicode.IsDigit(r):
		return KindNumber
	default:
		return KindPunctuation
	}
}

// Tokenize yields the tokens of text in order. Adjacent tokens touch, so
// together they cover the whole text.
func Tokenize(text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		runes := []rune(text)
		for i := 0; i < len(runes); {
			kind := kindOf(runes[i])
			j := i + 1
			if kind != KindPunctuation && kind != KindControl {
				for j < len(runes) && kindOf(runes[j]) == kind {
					j++
				}
			}
			if !yield(Token{Start: i, End: j, Kind: kind, Text: string(runes[i:j])}) {
				return
			}
			i = j
		}
	}
}
